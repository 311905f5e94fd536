// README: Location service ingests samples and fans them out to position, matching, and events.
package location

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"twende/internal/events"
	"twende/internal/modules/user"
	"twende/internal/observability"
	"twende/internal/types"
)

var ErrInvalidPoint = errors.New("invalid coordinates")

const maxRecent = 200

type SampleStore interface {
	Append(ctx context.Context, smp *Sample) error
	Between(ctx context.Context, userID types.ID, start, end time.Time) ([]Sample, error)
	Recent(ctx context.Context, userID types.ID, limit int) ([]Sample, error)
}

type Users interface {
	Get(ctx context.Context, id types.ID) (*user.User, error)
	UpdatePosition(ctx context.Context, id types.ID, p types.Point, at time.Time) error
}

// DriverIndex keeps the nearby-driver search current.
type DriverIndex interface {
	Track(ctx context.Context, id types.ID, p types.Point) error
}

type Service struct {
	store  SampleStore
	users  Users
	index  DriverIndex
	events events.Publisher
	log    logrus.FieldLogger
	now    func() time.Time
}

func NewService(store SampleStore, users Users, index DriverIndex, pub events.Publisher, log logrus.FieldLogger) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{store: store, users: users, index: index, events: pub, log: log, now: time.Now}
}

type RecordCommand struct {
	UserID   types.ID
	Position types.Point
}

// Record appends a sample. The log row is the source of truth; position,
// index and event updates are best effort.
func (s *Service) Record(ctx context.Context, cmd RecordCommand) (*Sample, error) {
	if !cmd.Position.Valid() {
		return nil, ErrInvalidPoint
	}
	u, err := s.users.Get(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}

	smp := &Sample{UserID: cmd.UserID, Position: cmd.Position, CreatedAt: s.now().UTC()}
	if err := s.store.Append(ctx, smp); err != nil {
		return nil, err
	}
	observability.LocationSamplesTotal.Inc()

	log := s.log.WithField("user_id", cmd.UserID)
	if err := s.users.UpdatePosition(ctx, cmd.UserID, cmd.Position, smp.CreatedAt); err != nil {
		log.WithError(err).Warn("update user position")
	}
	if u.IsDriver && s.index != nil {
		if err := s.index.Track(ctx, cmd.UserID, cmd.Position); err != nil {
			log.WithError(err).Warn("index driver position")
		}
	}
	if err := s.events.PublishLocation(ctx, events.LocationEvent{
		UserID:   cmd.UserID,
		IsDriver: u.IsDriver,
		Position: cmd.Position,
		At:       smp.CreatedAt,
	}); err != nil {
		log.WithError(err).Warn("publish location event")
	}
	return smp, nil
}

// Points returns the user's positions in [start, end), oldest first.
func (s *Service) Points(ctx context.Context, userID types.ID, start, end time.Time) ([]types.Point, error) {
	if !end.After(start) {
		return nil, nil
	}
	samples, err := s.store.Between(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}
	points := make([]types.Point, len(samples))
	for i, smp := range samples {
		points[i] = smp.Position
	}
	return points, nil
}

func (s *Service) Recent(ctx context.Context, userID types.ID, limit int) ([]Sample, error) {
	if limit <= 0 || limit > maxRecent {
		limit = maxRecent
	}
	return s.store.Recent(ctx, userID, limit)
}
