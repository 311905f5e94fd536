// README: Ride assistant intent and quota errors.
package assist

import (
	"errors"

	"twende/internal/modules/ride"
)

var (
	// ErrQuotaExceeded is returned when the user has no assistant requests left this month.
	ErrQuotaExceeded = errors.New("assistant quota exceeded")
	ErrEmptyMessage  = errors.New("empty message")
)

const (
	IntentBooking       = "booking"
	IntentClarification = "clarification"
	IntentChat          = "chat"
)

// Intent is the structured reading of one free-text ride request.
type Intent struct {
	Intent        string  `json:"intent"`
	Origin        *string `json:"origin"`
	Destination   *string `json:"destination"`
	PaymentMethod *string `json:"payment_method"`
	Reply         string  `json:"reply"`
}

// Bookable reports whether the intent carries enough to request a ride.
func (i *Intent) Bookable() bool {
	return i.Intent == IntentBooking && i.Destination != nil && *i.Destination != ""
}

// Answer is what the assistant returns to the rider. Ride is set when a
// booking was made.
type Answer struct {
	Intent    string     `json:"intent"`
	Reply     string     `json:"reply"`
	Remaining int        `json:"remaining"`
	Ride      *ride.Ride `json:"ride,omitempty"`
}
