// README: Ride aggregate, lifecycle states and events, ride log and rating records.
package ride

import (
	"time"

	"twende/internal/modules/geo"
	"twende/internal/modules/user"
	"twende/internal/types"
)

type State string

const (
	StateNew       State = "new"
	StateSelecting State = "selecting"
	StateRequested State = "requested"
	StateAccepted  State = "accepted"
	StateDriving   State = "driving"
	StateDropoff   State = "dropoff"
	StatePayment   State = "payment"
	StateRating    State = "rating"
	StateDeclined  State = "declined"
	StateCanceled  State = "canceled"
	StateFinalized State = "finalized"
)

// Terminal states accept no further events.
func (s State) Terminal() bool {
	return s == StateDeclined || s == StateCanceled || s == StateFinalized
}

func (s State) in(states ...State) bool {
	for _, v := range states {
		if s == v {
			return true
		}
	}
	return false
}

// activeStates are the states in which a ride is shown to its participants.
var activeStates = []State{StateRequested, StateAccepted, StateDriving, StateDropoff, StatePayment, StateRating}

func (s State) Active() bool {
	return s.in(activeStates...)
}

type Event string

const (
	EventSelect   Event = "select"
	EventRequest  Event = "request"
	EventAccept   Event = "accept"
	EventDecline  Event = "decline"
	EventCancel   Event = "cancel"
	EventStart    Event = "start"
	EventDropoff  Event = "dropoff"
	EventPayment  Event = "payment"
	EventRate     Event = "rate"
	EventFinalize Event = "finalize"

	// eventAuto marks state changes made by the save pipeline rather than a caller.
	eventAuto Event = "auto"
)

type PaymentMethod string

const (
	PaymentCash  PaymentMethod = "cash"
	PaymentMpesa PaymentMethod = "mpesa"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentCash || m == PaymentMpesa
}

type Ride struct {
	ID              types.ID      `json:"id"`
	CustomerID      types.ID      `json:"customer_id"`
	DriverID        *types.ID     `json:"driver_id,omitempty"`
	Origin          *types.Point  `json:"origin,omitempty"`
	Destination     *types.Point  `json:"destination,omitempty"`
	OriginText      string        `json:"origin_text"`
	DestinationText string        `json:"destination_text"`
	State           State         `json:"state"`
	Version         int           `json:"version"`
	PaymentMethod   PaymentMethod `json:"payment_method"`
	CustomerRating  *int          `json:"customer_rating,omitempty"`
	DriverRating    *int          `json:"driver_rating,omitempty"`
	Fare            *types.Money  `json:"fare,omitempty"`
	LiveFare        *types.Money  `json:"live_fare,omitempty"`
	DriverDistance  *geo.Distance `json:"driver_distance"`
	Distance        *geo.Distance `json:"distance"`
	LiveDistance    *geo.Distance `json:"live_distance"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

func (r *Ride) HasDriver() bool {
	return r.DriverID != nil && *r.DriverID != ""
}

// Participant reports whether id is the ride's customer or driver.
func (r *Ride) Participant(id types.ID) bool {
	return r.CustomerID == id || (r.HasDriver() && *r.DriverID == id)
}

// Log is one row of the append-only state history.
type Log struct {
	ID        int64        `json:"id"`
	RideID    types.ID     `json:"ride_id"`
	State     State        `json:"state"`
	UserID    *types.ID    `json:"user_id,omitempty"`
	Location  *types.Point `json:"location,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

type Rating struct {
	ID        int64     `json:"id"`
	RideID    types.ID  `json:"ride_id"`
	RaterID   types.ID  `json:"rater_id"`
	Grade     int       `json:"grade"`
	Comments  string    `json:"comments"`
	CreatedAt time.Time `json:"created_at"`
}

// Command is a follow-up write on the driver produced by a transition.
type Command struct {
	DriverID    types.ID
	DriverState user.State
}

type Outcome struct {
	Event    Event
	From     State
	To       State
	Commands []Command
}
