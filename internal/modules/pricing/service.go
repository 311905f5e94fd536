// README: Pricing service resolves the active tariff and computes fares.
package pricing

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"twende/internal/types"
)

var ErrBadRequest = errors.New("bad request")

type RateStore interface {
	GetRate(ctx context.Context, name string) (Rate, error)
	UpsertRate(ctx context.Context, r Rate) error
}

type Service struct {
	store    RateStore
	defaults Rate
	log      logrus.FieldLogger
}

// NewService falls back to defaults when store is nil or holds no override.
func NewService(store RateStore, defaults Rate, log logrus.FieldLogger) *Service {
	if defaults.Name == "" {
		defaults.Name = DefaultRateName
	}
	return &Service{store: store, defaults: defaults, log: log}
}

func (s *Service) Rate(ctx context.Context) Rate {
	if s.store == nil {
		return s.defaults
	}
	r, err := s.store.GetRate(ctx, s.defaults.Name)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.log.WithError(err).Warn("load fare rate, using defaults")
		}
		return s.defaults
	}
	return r
}

// Fare prices a distance with the active tariff.
func (s *Service) Fare(ctx context.Context, meters int) types.Money {
	return s.Rate(ctx).Fare(meters)
}

func (s *Service) SetRate(ctx context.Context, r Rate) (Rate, error) {
	if r.BaseFare < 0 || r.PerKm < 0 || r.MinimumFare < 0 || len(r.Currency) != 3 {
		return Rate{}, ErrBadRequest
	}
	if s.store == nil {
		return Rate{}, errors.New("rate store not configured")
	}
	r.Name = s.defaults.Name
	if err := s.store.UpsertRate(ctx, r); err != nil {
		return Rate{}, err
	}
	return r, nil
}
