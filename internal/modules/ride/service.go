// README: Ride service: commands, the save pipeline (derive, auto-advance, CAS commit) and post-commit hooks.
package ride

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"twende/internal/events"
	"twende/internal/modules/geo"
	"twende/internal/modules/user"
	"twende/internal/observability"
	"twende/internal/types"
)

var (
	ErrNotFound   = errors.New("ride not found")
	ErrConflict   = errors.New("ride state conflict")
	ErrValidation = errors.New("invalid ride request")
	ErrForbidden  = errors.New("not a participant of this ride")
	ErrActiveRide = errors.New("customer has an active ride")
)

const recentLimit = 10

type Repository interface {
	Create(ctx context.Context, r *Ride, l *Log) error
	Get(ctx context.Context, id types.ID) (*Ride, error)
	Commit(ctx context.Context, c Change) error
	Logs(ctx context.Context, rideID types.ID) ([]Log, error)
	Latest(ctx context.Context, userID types.ID, asDriver bool) (*Ride, error)
	Recent(ctx context.Context, userID types.ID, asDriver bool, limit int) ([]*Ride, error)
}

type Users interface {
	Get(ctx context.Context, id types.ID) (*user.User, error)
}

type Locations interface {
	Points(ctx context.Context, userID types.ID, start, end time.Time) ([]types.Point, error)
}

type Fares interface {
	Fare(ctx context.Context, meters int) types.Money
}

type Geocoder interface {
	Geocode(ctx context.Context, address string) (types.Point, error)
}

// PaymentStarter is called when an M-Pesa ride enters payment.
type PaymentStarter interface {
	StartPayment(ctx context.Context, rideID types.ID) error
}

type PaymentStarterFunc func(ctx context.Context, rideID types.ID) error

func (f PaymentStarterFunc) StartPayment(ctx context.Context, rideID types.ID) error {
	return f(ctx, rideID)
}

type Notifier interface {
	RideStateChanged(ctx context.Context, r *Ride, from State) error
}

// Deps wires the service. Geocoder, Publisher, Payments and Notifier are optional.
type Deps struct {
	Store      Repository
	Users      Users
	Locations  Locations
	Fares      Fares
	Calculator geo.Calculator
	Geocoder   Geocoder
	Publisher  events.Publisher
	Payments   PaymentStarter
	Notifier   Notifier
	Log        logrus.FieldLogger
}

type Service struct {
	store     Repository
	users     Users
	locations Locations
	fares     Fares
	calc      geo.Calculator
	geocoder  Geocoder
	pub       events.Publisher
	payments  PaymentStarter
	notifier  Notifier
	validate  *validator.Validate
	log       logrus.FieldLogger
	now       func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		store:     d.Store,
		users:     d.Users,
		locations: d.Locations,
		fares:     d.Fares,
		calc:      d.Calculator,
		geocoder:  d.Geocoder,
		pub:       d.Publisher,
		payments:  d.Payments,
		notifier:  d.Notifier,
		validate:  validator.New(),
		log:       d.Log,
		now:       time.Now,
	}
	if s.calc == nil {
		s.calc = geo.HaversineCalculator{}
	}
	if s.pub == nil {
		s.pub = events.Nop{}
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	return s
}

type CreateCommand struct {
	CustomerID      types.ID `validate:"required"`
	DriverID        *types.ID
	Origin          *types.Point
	Destination     *types.Point
	OriginText      string `validate:"max=255"`
	DestinationText string `validate:"max=255"`
	PaymentMethod   PaymentMethod
}

type UpdateCommand struct {
	RideID          types.ID `validate:"required"`
	ActorID         types.ID `validate:"required"`
	Admin           bool
	DriverID        *types.ID
	Destination     *types.Point
	DestinationText *string `validate:"omitempty,max=255"`
	PaymentMethod   *PaymentMethod
}

type TransitionCommand struct {
	RideID  types.ID `validate:"required"`
	Event   Event    `validate:"required"`
	ActorID types.ID `validate:"required"`
	Admin   bool
}

type RatingCommand struct {
	RideID   types.ID `validate:"required"`
	RaterID  types.ID `validate:"required"`
	Grade    int      `validate:"min=1,max=5"`
	Comments string   `validate:"max=500"`
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Ride, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if cmd.PaymentMethod == "" {
		cmd.PaymentMethod = PaymentCash
	}
	if !cmd.PaymentMethod.Valid() {
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrValidation, cmd.PaymentMethod)
	}
	if err := checkPoint(cmd.Origin); err != nil {
		return nil, err
	}
	if err := checkPoint(cmd.Destination); err != nil {
		return nil, err
	}

	switch latest, err := s.store.Latest(ctx, cmd.CustomerID, false); {
	case err == nil && latest.State.Active():
		return nil, ErrActiveRide
	case err != nil && !errors.Is(err, ErrNotFound):
		return nil, err
	}

	if cmd.DriverID != nil {
		if err := s.checkDriver(ctx, *cmd.DriverID); err != nil {
			return nil, err
		}
	}

	now := s.now()
	r := &Ride{
		ID:              types.NewID(),
		CustomerID:      cmd.CustomerID,
		Origin:          cmd.Origin,
		Destination:     cmd.Destination,
		OriginText:      cmd.OriginText,
		DestinationText: cmd.DestinationText,
		State:           StateNew,
		PaymentMethod:   cmd.PaymentMethod,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if r.Origin == nil {
		r.Origin = s.geocode(ctx, r.OriginText)
	}
	if r.Destination == nil {
		r.Destination = s.geocode(ctx, r.DestinationText)
	}

	actor := cmd.CustomerID
	if err := s.store.Create(ctx, r, &Log{RideID: r.ID, State: r.State, UserID: &actor, CreatedAt: now}); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"ride_id": r.ID, "customer_id": r.CustomerID}).Info("ride created")

	next := *r
	next.DriverID = cmd.DriverID
	return s.save(ctx, write{ride: &next, prev: r, actor: &actor})
}

// Update assigns a driver or changes the destination or payment method.
// A driver can only be assigned before the ride is requested.
func (s *Service) Update(ctx context.Context, cmd UpdateCommand) (*Ride, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if !cmd.Admin && !r.Participant(cmd.ActorID) {
		return nil, ErrForbidden
	}
	if r.State.Terminal() {
		return nil, fmt.Errorf("%w: ride is %s", ErrValidation, r.State)
	}

	next := *r
	if cmd.DriverID != nil {
		if !r.State.in(StateNew, StateSelecting) {
			return nil, fmt.Errorf("%w: driver cannot change in state %s", ErrValidation, r.State)
		}
		if err := s.checkDriver(ctx, *cmd.DriverID); err != nil {
			return nil, err
		}
		id := *cmd.DriverID
		next.DriverID = &id
	}
	if cmd.PaymentMethod != nil {
		if !cmd.PaymentMethod.Valid() {
			return nil, fmt.Errorf("%w: unknown payment method %q", ErrValidation, *cmd.PaymentMethod)
		}
		next.PaymentMethod = *cmd.PaymentMethod
	}
	if cmd.DestinationText != nil {
		next.DestinationText = *cmd.DestinationText
		if cmd.Destination == nil {
			if p := s.geocode(ctx, next.DestinationText); p != nil {
				next.Destination = p
			}
		}
	}
	if cmd.Destination != nil {
		if err := checkPoint(cmd.Destination); err != nil {
			return nil, err
		}
		p := *cmd.Destination
		next.Destination = &p
	}

	actor := cmd.ActorID
	return s.save(ctx, write{ride: &next, prev: r, actor: &actor})
}

// Transition applies ev to the ride. A driver accepting a ride assigned to
// someone else takes it over; the previous driver is released.
func (s *Service) Transition(ctx context.Context, cmd TransitionCommand) (*Ride, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}

	next := *r
	var released []Command
	if cmd.Event == EventAccept && !cmd.Admin && cmd.ActorID == r.CustomerID {
		return nil, ErrForbidden
	}
	if cmd.Event == EventAccept && !cmd.Admin && !r.Participant(cmd.ActorID) {
		if err := s.checkDriver(ctx, cmd.ActorID); err != nil {
			return nil, ErrForbidden
		}
		if r.HasDriver() && r.State == StateRequested {
			released = append(released, Command{DriverID: *r.DriverID, DriverState: user.StateAvailable})
		}
		id := cmd.ActorID
		next.DriverID = &id
	} else if !cmd.Admin && !r.Participant(cmd.ActorID) {
		return nil, ErrForbidden
	}

	out, err := Apply(next, cmd.Event)
	if err != nil {
		return nil, err
	}
	out.Commands = append(released, out.Commands...)
	next.State = out.To

	actor := cmd.ActorID
	return s.save(ctx, write{ride: &next, prev: r, actor: &actor, outcomes: []Outcome{out}})
}

// SubmitRating records a grade from either participant. The customer's grade
// is stored as customer_rating and the driver's as driver_rating.
func (s *Service) SubmitRating(ctx context.Context, cmd RatingCommand) (*Ride, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if !r.Participant(cmd.RaterID) {
		return nil, ErrForbidden
	}
	if !r.State.in(StatePayment, StateRating, StateFinalized) {
		return nil, fmt.Errorf("%w: ride cannot be rated in state %s", ErrValidation, r.State)
	}

	next := *r
	grade := cmd.Grade
	if r.CustomerID == cmd.RaterID {
		if r.CustomerRating != nil {
			return nil, fmt.Errorf("%w: already rated", ErrValidation)
		}
		next.CustomerRating = &grade
	} else {
		if r.DriverRating != nil {
			return nil, fmt.Errorf("%w: already rated", ErrValidation)
		}
		next.DriverRating = &grade
	}

	rating := &Rating{
		RideID:    r.ID,
		RaterID:   cmd.RaterID,
		Grade:     cmd.Grade,
		Comments:  cmd.Comments,
		CreatedAt: s.now(),
	}
	actor := cmd.RaterID
	return s.save(ctx, write{ride: &next, prev: r, actor: &actor, rating: rating})
}

// Refresh recomputes derived fields and applies auto-advance.
func (s *Service) Refresh(ctx context.Context, id types.ID) (*Ride, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next := *r
	return s.save(ctx, write{ride: &next, prev: r})
}

// RefreshActive refreshes the user's active ride, if any.
func (s *Service) RefreshActive(ctx context.Context, userID types.ID) (*Ride, error) {
	r, err := s.Active(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.Refresh(ctx, r.ID)
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Ride, error) {
	return s.store.Get(ctx, id)
}

// Active returns the user's latest ride when it is between requested and rating.
func (s *Service) Active(ctx context.Context, userID types.ID) (*Ride, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	r, err := s.store.Latest(ctx, userID, u.IsDriver)
	if err != nil {
		return nil, err
	}
	if !r.State.Active() {
		return nil, ErrNotFound
	}
	return r, nil
}

// Recent lists the user's last finalized rides, newest first.
func (s *Service) Recent(ctx context.Context, userID types.ID) ([]*Ride, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.store.Recent(ctx, userID, u.IsDriver, recentLimit)
}

// Route returns the driver's recorded path for the ride window.
func (s *Service) Route(ctx context.Context, id types.ID) ([]types.Point, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.routePoints(ctx, r)
}

func (s *Service) routePoints(ctx context.Context, r *Ride) ([]types.Point, error) {
	if !r.HasDriver() || s.locations == nil {
		return nil, nil
	}
	logs, err := s.store.Logs(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	start, end := WindowFor(*r, logs, s.now())
	return s.locations.Points(ctx, *r.DriverID, start, end)
}

type write struct {
	ride     *Ride
	prev     *Ride
	actor    *types.ID
	outcomes []Outcome
	rating   *Rating
}

// save runs the pipeline on w.ride and commits it against w.prev.
func (s *Service) save(ctx context.Context, w write) (*Ride, error) {
	r := w.ride
	log := s.log.WithField("ride_id", r.ID)

	driverPos, customerPos := s.positions(ctx, r)
	in := Inputs{Ride: *r, DriverPosition: driverPos, CustomerPosition: customerPos}
	if needsRoute(r.State) {
		pts, err := s.routePoints(ctx, r)
		if err != nil {
			return nil, err
		}
		in.Route = pts
	}
	Derive(ctx, s.calc, s.fareFunc(ctx), in).applyTo(r)

	outcomes := w.outcomes
	if adv, ok := autoAdvance(*r); ok {
		r.State = adv.To
		outcomes = append(outcomes, adv)
	}

	now := s.now()
	r.UpdatedAt = now
	c := Change{Ride: r, ExpectedState: w.prev.State, ExpectedVersion: w.prev.Version, Rating: w.rating}
	for _, out := range outcomes {
		c.Commands = append(c.Commands, out.Commands...)
		c.Logs = append(c.Logs, Log{RideID: r.ID, State: out.To, UserID: w.actor, Location: driverPos, CreatedAt: now})
	}

	if err := s.store.Commit(ctx, c); err != nil {
		if errors.Is(err, ErrConflict) {
			observability.RideConflictsTotal.Inc()
		}
		return nil, err
	}

	for _, out := range outcomes {
		observability.RideTransitionsTotal.WithLabelValues(string(out.Event), string(out.To)).Inc()
		log.WithFields(logrus.Fields{"event": out.Event, "from": out.From, "to": out.To}).Info("ride transition")
		s.publish(ctx, r, out, now)
	}
	if r.State != w.prev.State {
		s.afterStateChange(ctx, r, w.prev.State)
	}
	return r, nil
}

func (s *Service) afterStateChange(ctx context.Context, r *Ride, from State) {
	log := s.log.WithFields(logrus.Fields{"ride_id": r.ID, "state": r.State})
	if s.notifier != nil {
		if err := s.notifier.RideStateChanged(ctx, r, from); err != nil {
			log.WithError(err).Warn("ride notification failed")
		}
	}
	if r.State == StatePayment && r.PaymentMethod == PaymentMpesa && s.payments != nil {
		if err := s.payments.StartPayment(ctx, r.ID); err != nil {
			log.WithError(err).Warn("start payment failed")
		}
	}
}

func (s *Service) publish(ctx context.Context, r *Ride, out Outcome, at time.Time) {
	e := events.RideEvent{
		RideID:     r.ID,
		CustomerID: r.CustomerID,
		DriverID:   r.DriverID,
		Event:      string(out.Event),
		From:       string(out.From),
		To:         string(out.To),
		Fare:       r.Fare,
		At:         at,
	}
	if err := s.pub.PublishRide(ctx, e); err != nil {
		s.log.WithError(err).WithField("ride_id", r.ID).Warn("publish ride event failed")
	}
}

// positions loads the last known driver and customer positions. Lookup
// failures leave the position unknown.
func (s *Service) positions(ctx context.Context, r *Ride) (driver, customer *types.Point) {
	if s.users == nil {
		return nil, nil
	}
	if u, err := s.users.Get(ctx, r.CustomerID); err == nil {
		customer = u.Position
	} else {
		s.log.WithError(err).WithField("user_id", r.CustomerID).Debug("customer lookup failed")
	}
	if r.HasDriver() {
		if u, err := s.users.Get(ctx, *r.DriverID); err == nil {
			driver = u.Position
		} else {
			s.log.WithError(err).WithField("user_id", *r.DriverID).Debug("driver lookup failed")
		}
	}
	return driver, customer
}

func (s *Service) fareFunc(ctx context.Context) FareFunc {
	if s.fares == nil {
		return nil
	}
	return func(meters int) types.Money { return s.fares.Fare(ctx, meters) }
}

func (s *Service) checkDriver(ctx context.Context, id types.ID) error {
	u, err := s.users.Get(ctx, id)
	if errors.Is(err, user.ErrNotFound) {
		return fmt.Errorf("%w: driver %s not found", ErrValidation, id)
	}
	if err != nil {
		return err
	}
	if !u.IsDriver {
		return fmt.Errorf("%w: user %s is not a driver", ErrValidation, id)
	}
	return nil
}

func (s *Service) geocode(ctx context.Context, address string) *types.Point {
	if s.geocoder == nil || address == "" {
		return nil
	}
	p, err := s.geocoder.Geocode(ctx, address)
	if err != nil {
		s.log.WithError(err).WithField("address", address).Debug("geocode failed")
		return nil
	}
	return &p
}

func checkPoint(p *types.Point) error {
	if p != nil && !p.Valid() {
		return fmt.Errorf("%w: coordinates out of range", ErrValidation)
	}
	return nil
}
