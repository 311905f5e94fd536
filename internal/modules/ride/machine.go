// README: Ride state machine: transition table and the pure Apply function.
package ride

import (
	"errors"
	"fmt"

	"twende/internal/modules/user"
)

var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrUnknownEvent      = errors.New("unknown ride event")
	ErrDriverRequired    = errors.New("ride has no driver")
)

// TransitionError reports an event that is not allowed from the ride's state.
type TransitionError struct {
	From  State
	Event Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s a ride in state %s", e.Event, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

type transition struct {
	// from == nil means any non-terminal state.
	from        []State
	to          State
	driverState user.State
	needsDriver bool
}

var transitions = map[Event]transition{
	EventSelect:   {from: []State{StateNew}, to: StateSelecting},
	EventRequest:  {from: []State{StateNew, StateSelecting}, to: StateRequested, driverState: user.StateRequested, needsDriver: true},
	EventAccept:   {from: []State{StateRequested}, to: StateAccepted, driverState: user.StateDriving, needsDriver: true},
	EventDecline:  {from: []State{StateNew}, to: StateDeclined, driverState: user.StateAvailable},
	EventCancel:   {to: StateCanceled, driverState: user.StateNotResponding},
	EventStart:    {from: []State{StateAccepted}, to: StateDriving, driverState: user.StateDriving},
	EventDropoff:  {from: []State{StateAccepted, StateDriving}, to: StateDropoff, driverState: user.StateDriving},
	EventPayment:  {to: StatePayment, driverState: user.StateDriving},
	EventRate:     {to: StateRating, driverState: user.StateDriving},
	EventFinalize: {to: StateFinalized, driverState: user.StateAvailable},
}

func (t transition) allows(s State) bool {
	if t.from == nil {
		return !s.Terminal()
	}
	return s.in(t.from...)
}

// eventOrder is the order events are listed to clients.
var eventOrder = []Event{
	EventSelect, EventRequest, EventAccept, EventDecline, EventStart,
	EventDropoff, EventPayment, EventRate, EventFinalize, EventCancel,
}

// AllowedEvents lists the events legal from s, in lifecycle order.
func AllowedEvents(s State) []Event {
	out := []Event{}
	for _, ev := range eventOrder {
		if CanApply(s, ev) {
			out = append(out, ev)
		}
	}
	return out
}

// CanApply reports whether ev is legal from s, ignoring driver requirements.
func CanApply(s State, ev Event) bool {
	t, ok := transitions[ev]
	return ok && t.allows(s)
}

// Apply computes the result of ev on r without mutating anything. Driver
// commands are only emitted when a driver is assigned.
func Apply(r Ride, ev Event) (Outcome, error) {
	t, ok := transitions[ev]
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownEvent, ev)
	}
	if !t.allows(r.State) {
		return Outcome{}, &TransitionError{From: r.State, Event: ev}
	}
	if t.needsDriver && !r.HasDriver() {
		return Outcome{}, ErrDriverRequired
	}
	out := Outcome{Event: ev, From: r.State, To: t.to}
	if t.driverState != "" && r.HasDriver() {
		out.Commands = []Command{{DriverID: *r.DriverID, DriverState: t.driverState}}
	}
	return out, nil
}
