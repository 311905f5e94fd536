// README: Ride message service: per-state texts for each participant, dedupe, push.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"twende/internal/modules/ride"
	"twende/internal/modules/user"
	"twende/internal/observability"
	"twende/internal/types"
)

var (
	ErrDuplicate = errors.New("ride message already exists")
	ErrNoDevice  = errors.New("receiver has no push token")
)

const inboxLimit = 50

type Repository interface {
	Create(ctx context.Context, m *Message) error
	MarkSent(ctx context.Context, m *Message, at time.Time) error
	ForReceiver(ctx context.Context, receiverID types.ID, limit int) ([]Message, error)
	CreateBulk(ctx context.Context, b *Bulk) error
	MarkBulkSent(ctx context.Context, id int64, at time.Time) error
}

type Users interface {
	Get(ctx context.Context, id types.ID) (*user.User, error)
}

type Pusher interface {
	Push(ctx context.Context, deviceToken string, m *Message) (string, error)
}

type Service struct {
	store  Repository
	users  Users
	pusher Pusher
	log    logrus.FieldLogger
	now    func() time.Time
}

// NewService builds the service. A nil pusher stores messages without sending.
func NewService(store Repository, users Users, pusher Pusher, log logrus.FieldLogger) *Service {
	return &Service{store: store, users: users, pusher: pusher, log: log, now: time.Now}
}

type draft struct {
	receiver types.ID
	title    string
	body     string
	helpdesk bool
}

// RideStateChanged creates and pushes the messages for the ride's new state.
// Messages already sent for the same state and receiver are skipped.
func (s *Service) RideStateChanged(ctx context.Context, r *ride.Ride, from ride.State) error {
	var errs []error
	for _, d := range s.drafts(ctx, r) {
		m := &Message{
			Kind:           KindRide,
			RideID:         r.ID,
			RideState:      r.State,
			Title:          d.title,
			Body:           d.body,
			ReceiverID:     d.receiver,
			Sound:          DefaultSound,
			NotifyHelpdesk: d.helpdesk,
			CreatedAt:      s.now(),
		}
		if err := s.Send(ctx, m); err != nil && !errors.Is(err, ErrDuplicate) {
			errs = append(errs, err)
		}
	}
	s.log.WithFields(logrus.Fields{"ride_id": r.ID, "from": from, "to": r.State}).Debug("ride messages processed")
	return errors.Join(errs...)
}

// Send stores m and pushes it to the receiver's device.
func (s *Service) Send(ctx context.Context, m *Message) error {
	if m.Kind == "" {
		m.Kind = KindRide
	}
	if err := s.store.Create(ctx, m); err != nil {
		return err
	}
	if m.NotifyHelpdesk {
		s.log.WithFields(logrus.Fields{"ride_id": m.RideID, "ride_state": m.RideState, "receiver_id": m.ReceiverID}).Warn("ride message flagged for helpdesk")
	}
	if s.pusher == nil {
		return nil
	}
	receiver, err := s.users.Get(ctx, m.ReceiverID)
	if err != nil {
		return err
	}
	if receiver.PushToken == "" {
		observability.PushNotificationsTotal.WithLabelValues("no_device").Inc()
		return nil
	}
	id, err := s.pusher.Push(ctx, receiver.PushToken, m)
	if err != nil {
		observability.PushNotificationsTotal.WithLabelValues("error").Inc()
		return err
	}
	observability.PushNotificationsTotal.WithLabelValues("sent").Inc()
	s.log.WithFields(logrus.Fields{"kind": m.Kind, "ride_id": m.RideID, "receiver_id": m.ReceiverID, "fcm_id": id}).Info("message sent")
	at := s.now()
	if err := s.store.MarkSent(ctx, m, at); err != nil {
		return err
	}
	m.SentAt = &at
	return nil
}

func (s *Service) Inbox(ctx context.Context, userID types.ID) ([]Message, error) {
	return s.store.ForReceiver(ctx, userID, inboxLimit)
}

func (s *Service) drafts(ctx context.Context, r *ride.Ride) []draft {
	customer := r.CustomerID
	var driver types.ID
	driverName := "Your driver"
	if r.HasDriver() {
		driver = *r.DriverID
		if u, err := s.users.Get(ctx, driver); err == nil {
			driverName = u.DisplayName()
		}
	}
	pickup := r.OriginText
	if pickup == "" && r.Origin != nil {
		pickup = fmt.Sprintf("%.5f, %.5f", r.Origin.Lat, r.Origin.Lng)
	}
	fare := "-"
	if r.Fare != nil {
		fare = r.Fare.String()
	}

	var out []draft
	add := func(to types.ID, title, body string) {
		if to != "" {
			out = append(out, draft{receiver: to, title: title, body: body})
		}
	}
	// A customer left without a ride is followed up by the helpdesk.
	addHelpdesk := func(to types.ID, title, body string) {
		if to != "" {
			out = append(out, draft{receiver: to, title: title, body: body, helpdesk: true})
		}
	}
	switch r.State {
	case ride.StateRequested:
		add(driver, "New ride request", "Pickup at "+pickup)
	case ride.StateAccepted:
		add(customer, "Driver on the way", driverName+" accepted your ride")
	case ride.StateDriving:
		add(customer, "Trip started", "Enjoy your ride")
	case ride.StateDropoff:
		add(customer, "You have arrived", "Trip fare "+fare)
	case ride.StatePayment:
		add(customer, "Complete your payment", "Approve the M-Pesa prompt for "+fare)
	case ride.StateRating:
		add(customer, "Rate your trip", "How was your ride with "+driverName+"?")
		add(driver, "Rate your customer", "Trip fare "+fare)
	case ride.StateDeclined:
		addHelpdesk(customer, "Ride declined", "Please request another driver")
	case ride.StateCanceled:
		addHelpdesk(customer, "Ride canceled", "Your ride was canceled")
		add(driver, "Ride canceled", "The ride from "+pickup+" was canceled")
	case ride.StateFinalized:
		add(driver, "Ride completed", "Trip fare "+fare)
	}
	return out
}
