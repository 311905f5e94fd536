// README: Derived ride fields (destination, distances, fares) and save-time auto-advance.
package ride

import (
	"context"

	"twende/internal/modules/geo"
	"twende/internal/types"
)

// FareFunc prices a distance in meters.
type FareFunc func(meters int) types.Money

type Inputs struct {
	Ride             Ride
	DriverPosition   *types.Point
	CustomerPosition *types.Point
	// Route is the driver's recorded path inside the ride window. Only read
	// in dropoff, payment and finalized.
	Route []types.Point
}

// Derived holds recomputed fields. A nil field was not recomputed and keeps
// its stored value.
type Derived struct {
	Destination    *types.Point
	DriverDistance *geo.Distance
	LiveDistance   *geo.Distance
	LiveFare       *types.Money
	Distance       *geo.Distance
	Fare           *types.Money
}

// needsRoute reports whether the billed distance is computed in state s.
func needsRoute(s State) bool {
	return s.in(StateDropoff, StatePayment, StateFinalized)
}

// Derive recomputes route and fare fields. It never fails: missing positions
// or calculator errors leave the affected field nil.
func Derive(ctx context.Context, calc geo.Calculator, fare FareFunc, in Inputs) Derived {
	r := in.Ride
	var d Derived

	dest := r.Destination
	if r.HasDriver() && r.State.in(StateDriving, StateDropoff) {
		dest = in.DriverPosition
	}
	if dest == nil {
		dest = r.Origin
	}
	d.Destination = dest

	if r.State.in(StateRequested, StateAccepted) {
		d.DriverDistance = geo.Between(ctx, calc, r.Origin, in.DriverPosition)
	}

	if r.State.in(StateDriving, StateDropoff) && dest != nil {
		d.LiveDistance = geo.Between(ctx, calc, r.Origin, in.DriverPosition)
	}
	if d.LiveDistance != nil && fare != nil {
		m := fare(d.LiveDistance.Meters)
		d.LiveFare = &m
	}

	if r.State == StateAccepted && in.DriverPosition != nil && in.CustomerPosition != nil {
		if pickup := geo.Between(ctx, calc, in.DriverPosition, in.CustomerPosition); pickup != nil {
			d.DriverDistance = pickup
		}
	}

	if needsRoute(r.State) {
		w := geo.Waypoints(in.Route)
		d.Distance = &w
		if fare != nil {
			m := fare(w.Meters)
			d.Fare = &m
		}
	}
	return d
}

// applyTo copies recomputed fields onto r.
func (d Derived) applyTo(r *Ride) {
	r.Destination = d.Destination
	if d.DriverDistance != nil {
		r.DriverDistance = d.DriverDistance
	}
	if d.LiveDistance != nil {
		r.LiveDistance = d.LiveDistance
	}
	if d.LiveFare != nil {
		r.LiveFare = d.LiveFare
	}
	if d.Distance != nil {
		r.Distance = d.Distance
	}
	if d.Fare != nil {
		r.Fare = d.Fare
	}
}

// autoAdvance applies the save-time rules: an assigned driver moves a new ride
// to requested (with the request side effect), and cash rides skip payment.
// Applying it to its own result is a no-op.
func autoAdvance(r Ride) (Outcome, bool) {
	if r.HasDriver() && r.State == StateNew {
		out, err := Apply(r, EventRequest)
		if err == nil {
			out.Event = eventAuto
			return out, true
		}
	}
	if r.PaymentMethod == PaymentCash && r.State == StatePayment {
		return Outcome{Event: eventAuto, From: StatePayment, To: StateRating}, true
	}
	return Outcome{}, false
}
