package domain

import "time"

// Kind is the arbitration stream an interstitial candidate comes from.
type Kind string

const (
	KindOffer        Kind = "offer"
	KindNotification Kind = "notification"
)

// Watermark is the last acknowledged entity id for one Kind on this device.
type Watermark struct {
	Kind      Kind
	EntityID  string
	UpdatedAt time.Time
}
