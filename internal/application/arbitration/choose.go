package arbitration

import "github.com/go-hr-sync/internal/domain"

// choose returns the candidate with the strictly latest CreatedAt. On a tie
// one backed by a notification wins. Nil candidates are skipped.
func choose(candidates []*Interstitial) *Interstitial {
	var best *Interstitial
	for _, c := range candidates {
		switch {
		case c == nil:
		case best == nil:
			best = c
		case c.CreatedAt.After(best.CreatedAt):
			best = c
		case c.CreatedAt.Equal(best.CreatedAt) && c.Notification != nil && best.Notification == nil:
			best = c
		}
	}
	return best
}

func newestOffer(list []domain.Offer) *domain.Offer {
	var newest *domain.Offer
	for i := range list {
		o := list[i]
		if !o.IsActive || o.OfferID == "" {
			continue
		}
		if newest == nil || o.CreatedAt.After(newest.CreatedAt) {
			newest = &o
		}
	}
	return newest
}

func fromOffer(o domain.Offer) *Interstitial {
	return &Interstitial{
		Kind:      domain.KindOffer,
		EntityID:  o.OfferID,
		Title:     o.Title,
		Body:      o.Description,
		CreatedAt: o.CreatedAt,
		Offer:     &o,
	}
}

// fromNotification presents n in the kind stream. Offer-kind entities carry
// the watermark id of the offer they announce.
func fromNotification(n domain.Notification, kind domain.Kind) *Interstitial {
	entityID := n.NotificationID
	if kind == domain.KindOffer {
		entityID = n.WatermarkID()
	}
	return &Interstitial{
		Kind:         kind,
		EntityID:     entityID,
		Title:        n.Title,
		Body:         n.Message,
		CreatedAt:    n.CreatedAt,
		Notification: &n,
	}
}
