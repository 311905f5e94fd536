// README: User service: registration, profile, admin state changes, and rating.
package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"twende/internal/types"
)

var (
	ErrNotFound     = errors.New("user not found")
	ErrExists       = errors.New("user already exists")
	ErrBadRequest   = errors.New("bad request")
	ErrInvalidState = errors.New("invalid driver state")
)

type Repository interface {
	Create(ctx context.Context, u *User) error
	Get(ctx context.Context, id types.ID) (*User, error)
	GetMany(ctx context.Context, ids []types.ID) ([]*User, error)
	UpdateProfile(ctx context.Context, u *User) error
	UpdatePosition(ctx context.Context, id types.ID, p types.Point, at time.Time) error
	SetState(ctx context.Context, id types.ID, state State) error
	Rating(ctx context.Context, id types.ID, isDriver bool) (float64, error)
}

type Service struct {
	store    Repository
	validate *validator.Validate
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewService(store Repository, log logrus.FieldLogger) *Service {
	return &Service{store: store, validate: validator.New(), log: log, now: time.Now}
}

type RegisterCommand struct {
	ID            types.ID `validate:"required,max=128"`
	Username      string   `validate:"required,max=150"`
	FirstName     string   `validate:"max=150"`
	LastName      string   `validate:"max=150"`
	Phone         string   `validate:"required,numeric,min=9,max=15"`
	IsDriver      bool
	PushToken     string `validate:"max=256"`
	LicenseNumber string `validate:"max=20"`
}

type ProfileCommand struct {
	UserID        types.ID `validate:"required"`
	FirstName     *string  `validate:"omitempty,max=150"`
	LastName      *string  `validate:"omitempty,max=150"`
	Phone         *string  `validate:"omitempty,numeric,min=9,max=15"`
	PushToken     *string  `validate:"omitempty,max=256"`
	LicenseNumber *string  `validate:"omitempty,max=20"`
}

func (s *Service) Register(ctx context.Context, cmd RegisterCommand) (*User, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	u := &User{
		ID:            cmd.ID,
		Username:      cmd.Username,
		FirstName:     cmd.FirstName,
		LastName:      cmd.LastName,
		Phone:         cmd.Phone,
		IsDriver:      cmd.IsDriver,
		State:         StateAvailable,
		PushToken:     cmd.PushToken,
		LicenseNumber: cmd.LicenseNumber,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"user_id": u.ID, "is_driver": u.IsDriver}).Info("user registered")
	return u, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*User, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) GetMany(ctx context.Context, ids []types.ID) ([]*User, error) {
	return s.store.GetMany(ctx, ids)
}

func (s *Service) UpdateProfile(ctx context.Context, cmd ProfileCommand) (*User, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	u, err := s.store.Get(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	if cmd.FirstName != nil {
		u.FirstName = *cmd.FirstName
	}
	if cmd.LastName != nil {
		u.LastName = *cmd.LastName
	}
	if cmd.Phone != nil {
		u.Phone = *cmd.Phone
	}
	if cmd.PushToken != nil {
		u.PushToken = *cmd.PushToken
	}
	if cmd.LicenseNumber != nil {
		u.LicenseNumber = *cmd.LicenseNumber
	}
	if err := s.store.UpdateProfile(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) UpdatePosition(ctx context.Context, id types.ID, p types.Point, at time.Time) error {
	return s.store.UpdatePosition(ctx, id, p, at)
}

// SetState is the admin override for a driver's availability. Ride transitions
// change driver state through the ride store instead.
func (s *Service) SetState(ctx context.Context, id types.ID, state State) error {
	if !state.Valid() {
		return ErrInvalidState
	}
	u, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !u.IsDriver {
		return fmt.Errorf("%w: user is not a driver", ErrBadRequest)
	}
	if err := s.store.SetState(ctx, id, state); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"user_id": id, "from": u.State, "to": state}).Info("driver state set by admin")
	return nil
}

func (s *Service) Rating(ctx context.Context, id types.ID) (float64, error) {
	u, err := s.store.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return s.store.Rating(ctx, id, u.IsDriver)
}
