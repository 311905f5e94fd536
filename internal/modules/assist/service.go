// README: Ride assistant: quota check, intent parsing, and booking through the ride service.
package assist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"twende/internal/modules/ride"
	"twende/internal/modules/user"
	"twende/internal/types"
)

const maxMessageLen = 1000

type Parser interface {
	Parse(ctx context.Context, message string, pc PromptContext) (*Intent, error)
}

type Quota interface {
	Use(ctx context.Context, userID types.ID, period string, quota int) (int, error)
}

type Rides interface {
	Create(ctx context.Context, cmd ride.CreateCommand) (*ride.Ride, error)
}

type Users interface {
	Get(ctx context.Context, id types.ID) (*user.User, error)
}

type Service struct {
	parser Parser
	quota  Quota
	rides  Rides
	users  Users
	limit  int
	log    logrus.FieldLogger
	now    func() time.Time
}

func NewService(parser Parser, quota Quota, rides Rides, users Users, monthlyLimit int, log logrus.FieldLogger) *Service {
	return &Service{parser: parser, quota: quota, rides: rides, users: users, limit: monthlyLimit, log: log, now: time.Now}
}

type BookCommand struct {
	UserID  types.ID
	Message string
}

// Book reads a free-text request and, when it names a destination, creates
// the ride. Pickup defaults to the rider's last known position.
func (s *Service) Book(ctx context.Context, cmd BookCommand) (*Answer, error) {
	msg := strings.TrimSpace(cmd.Message)
	if msg == "" {
		return nil, ErrEmptyMessage
	}
	if len(msg) > maxMessageLen {
		msg = msg[:maxMessageLen]
	}

	u, err := s.users.Get(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	remaining, err := s.quota.Use(ctx, cmd.UserID, now.Format("2006-01"), s.limit)
	if err != nil {
		return nil, err
	}

	pc := PromptContext{Now: now.Format(time.RFC3339), Name: u.DisplayName()}
	if u.Position != nil {
		pc.CurrentLocation = fmt.Sprintf("%.5f,%.5f", u.Position.Lat, u.Position.Lng)
	}
	in, err := s.parser.Parse(ctx, msg, pc)
	if err != nil {
		return nil, err
	}

	ans := &Answer{Intent: in.Intent, Reply: in.Reply, Remaining: remaining}
	if !in.Bookable() {
		return ans, nil
	}

	create := ride.CreateCommand{
		CustomerID:      cmd.UserID,
		DestinationText: *in.Destination,
	}
	if in.Origin != nil && *in.Origin != "" {
		create.OriginText = *in.Origin
	} else if u.Position != nil {
		p := *u.Position
		create.Origin = &p
	}
	if in.PaymentMethod != nil {
		create.PaymentMethod = ride.PaymentMethod(*in.PaymentMethod)
	}
	if !create.PaymentMethod.Valid() {
		create.PaymentMethod = ride.PaymentCash
	}

	r, err := s.rides.Create(ctx, create)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"user_id": cmd.UserID, "ride_id": r.ID}).Info("ride booked by assistant")
	ans.Ride = r
	return ans, nil
}
