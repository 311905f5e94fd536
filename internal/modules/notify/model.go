// README: Push messages: per-state ride messages, admin system messages, and bulk sends.
package notify

import (
	"time"

	"twende/internal/modules/ride"
	"twende/internal/types"
)

const DefaultSound = "default"

type Kind string

const (
	KindRide   Kind = "ride"
	KindSystem Kind = "system"
)

// Message is one push to one receiver. Ride messages carry the ride and its
// state; system messages carry neither and may belong to a bulk send.
type Message struct {
	ID             int64      `json:"id"`
	Kind           Kind       `json:"kind"`
	RideID         types.ID   `json:"ride_id,omitempty"`
	RideState      ride.State `json:"ride_state,omitempty"`
	BulkID         *int64     `json:"bulk_id,omitempty"`
	Title          string     `json:"title"`
	Body           string     `json:"message"`
	ReceiverID     types.ID   `json:"receiver_id"`
	Sound          string     `json:"sound"`
	NotifyHelpdesk bool       `json:"notify_helpdesk"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Bulk is one subject and message sent to a set of receivers.
type Bulk struct {
	ID        int64      `json:"id"`
	Subject   string     `json:"subject"`
	Message   string     `json:"message"`
	Receivers int        `json:"receivers"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type BulkResult struct {
	Bulk   *Bulk      `json:"bulk"`
	Sent   int        `json:"sent"`
	Failed []types.ID `json:"failed"`
}
