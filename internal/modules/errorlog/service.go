// README: Client error reports: validated, logged at the reported level, appended.
package errorlog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"twende/internal/observability"
	"twende/internal/types"
)

var (
	ErrBadRequest  = errors.New("invalid error report")
	ErrUnknownRide = errors.New("error report references an unknown ride")
	ErrUnknownUser = errors.New("error report references an unknown user")
)

const maxRecent = 200

type Repository interface {
	Append(ctx context.Context, e *Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
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

type ReportCommand struct {
	UserID  types.ID
	RideID  types.ID `validate:"omitempty,max=128"`
	Token   string   `validate:"max=1000"`
	Level   string   `validate:"required,max=100"`
	Message string
	Data    string
}

// Report stores a client error. Reports from callers without an account are
// kept without a user.
func (s *Service) Report(ctx context.Context, cmd ReportCommand) (*Entry, error) {
	cmd.Level = strings.TrimSpace(cmd.Level)
	if err := s.validate.Struct(cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	e := &Entry{
		Token:     cmd.Token,
		Level:     cmd.Level,
		Message:   cmd.Message,
		Data:      cmd.Data,
		CreatedAt: s.now().UTC(),
	}
	if cmd.RideID != "" {
		e.RideID = &cmd.RideID
	}
	if cmd.UserID != "" {
		e.UserID = &cmd.UserID
	}

	err := s.store.Append(ctx, e)
	if errors.Is(err, ErrUnknownUser) {
		e.UserID = nil
		err = s.store.Append(ctx, e)
	}
	if err != nil {
		return nil, err
	}

	lvl := logLevel(e.Level)
	observability.ClientErrorsTotal.WithLabelValues(lvl.String()).Inc()
	fields := logrus.Fields{"error_id": e.ID, "level": e.Level}
	if e.RideID != nil {
		fields["ride_id"] = *e.RideID
	}
	if e.UserID != nil {
		fields["user_id"] = *e.UserID
	}
	s.log.WithFields(fields).Log(lvl, "client error: "+e.Message)
	return e, nil
}

func (s *Service) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > maxRecent {
		limit = maxRecent
	}
	return s.store.Recent(ctx, limit)
}

// logLevel maps a reported level onto logrus, never above error and
// defaulting to warn.
func logLevel(reported string) logrus.Level {
	lvl, err := logrus.ParseLevel(strings.ToLower(reported))
	if err != nil {
		return logrus.WarnLevel
	}
	if lvl < logrus.ErrorLevel {
		return logrus.ErrorLevel
	}
	return lvl
}
