package handler

import (
	"net/http"

	"github.com/go-hr-sync/internal/domain"
	"github.com/go-hr-sync/internal/portal/offer"
)

// OfferHandler handles offer endpoints.
type OfferHandler struct {
	svc offer.Service
}

func NewOfferHandler(svc offer.Service) *OfferHandler {
	return &OfferHandler{svc: svc}
}

func (h *OfferHandler) List(w http.ResponseWriter, r *http.Request) {
	offers, err := h.svc.ListActive(r.Context())
	if err != nil {
		httpError(w, err)
		return
	}
	if offers == nil {
		offers = []domain.Offer{}
	}
	writeJSON(w, http.StatusOK, offers)
}

func (h *OfferHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateOfferRequest
	if !decode(w, r, &req) {
		return
	}
	o, notified, err := h.svc.Create(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, OfferCreatedEnvelope{Offer: o, Notified: notified})
}
