package domain

import (
	"strings"
	"time"
	"unicode"
)

// Display categories. The server assigns one on creation; payloads from
// older producers may leave it empty.
const (
	CategoryGeneral      = "general"
	CategoryOffer        = "offer"
	CategoryPayroll      = "payroll"
	CategoryLeave        = "leave"
	CategoryAttendance   = "attendance"
	CategoryDocument     = "document"
	CategoryAnnouncement = "announcement"
)

var knownCategories = map[string]bool{
	CategoryGeneral:      true,
	CategoryOffer:        true,
	CategoryPayroll:      true,
	CategoryLeave:        true,
	CategoryAttendance:   true,
	CategoryDocument:     true,
	CategoryAnnouncement: true,
}

// titleKeywords is checked in order; the first match wins. Keywords match
// whole words of the title, optionally with a plural "s".
var titleKeywords = []struct {
	category string
	words    []string
}{
	{CategoryOffer, []string{"offer", "discount", "deal", "% off", "cashback", "voucher", "coupon"}},
	{CategoryPayroll, []string{"salary", "payslip", "payroll", "reimbursement"}},
	{CategoryLeave, []string{"leave", "holiday", "time off"}},
	{CategoryAttendance, []string{"attendance", "check in", "shift"}},
	{CategoryDocument, []string{"document", "policy", "letter"}},
	{CategoryAnnouncement, []string{"announcement", "town hall", "event"}},
}

type Notification struct {
	NotificationID string    `json:"id" dynamodbav:"notification_id"`
	UserID         string    `json:"user_id,omitempty" dynamodbav:"user_id"`
	Title          string    `json:"title" dynamodbav:"title"`
	Message        string    `json:"message" dynamodbav:"message"`
	Category       string    `json:"category,omitempty" dynamodbav:"category"`
	// OfferID links an offer announcement to the offer it announces.
	OfferID        string    `json:"offer_id,omitempty" dynamodbav:"offer_id,omitempty"`
	IsRead         bool      `json:"is_read" dynamodbav:"is_read"`
	CreatedAt      time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt      time.Time `json:"updated,omitempty" dynamodbav:"updated_at"`
}

// DisplayCategory prefers the server-assigned category and falls back to
// title keywords for legacy payloads. Unknown values map to CategoryGeneral.
func (n Notification) DisplayCategory() string {
	if c := strings.ToLower(strings.TrimSpace(n.Category)); c != "" {
		if knownCategories[c] {
			return c
		}
		return CategoryGeneral
	}
	return CategoryFromTitle(n.Title)
}

// CategoryFromTitle classifies a title by keyword.
func CategoryFromTitle(title string) string {
	t := words(title)
	for _, k := range titleKeywords {
		for _, w := range k.words {
			if strings.Contains(t, " "+w+" ") || strings.Contains(t, " "+w+"s ") {
				return k.category
			}
		}
	}
	return CategoryGeneral
}

// words lowercases s and reduces it to space separated words with a space
// at both ends. "%" is kept as a word of its own so "20% off" has "% off".
func words(s string) string {
	var b strings.Builder
	b.WriteByte(' ')
	space := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r == '%':
			if !space {
				b.WriteByte(' ')
			}
			b.WriteString("% ")
			space = true
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			space = false
		case !space:
			b.WriteByte(' ')
			space = true
		}
	}
	if !space {
		b.WriteByte(' ')
	}
	return b.String()
}

// Kind resolves which arbitration stream a notification belongs to.
func (n Notification) Kind() Kind {
	if n.DisplayCategory() == CategoryOffer {
		return KindOffer
	}
	return KindNotification
}

// WatermarkID is the id recorded when the notification is acknowledged. An
// offer announcement shares the id of its offer so the two are seen once.
func (n Notification) WatermarkID() string {
	if n.OfferID != "" && n.Kind() == KindOffer {
		return n.OfferID
	}
	return n.NotificationID
}

type CreateNotificationRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	Title    string `json:"title" validate:"required,max=200"`
	Message  string `json:"message" validate:"required"`
	Category string `json:"category" validate:"omitempty,oneof=general offer payroll leave attendance document announcement"`
	OfferID  string `json:"offer_id,omitempty"`
}
