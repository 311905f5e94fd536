// README: Matching service lists available drivers around a point.
package matching

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"twende/internal/config"
	"twende/internal/modules/geo"
	"twende/internal/modules/user"
	"twende/internal/types"
)

var ErrBadRequest = errors.New("bad request")

type GeoIndex interface {
	Upsert(ctx context.Context, id types.ID, p types.Point) error
	Remove(ctx context.Context, id types.ID) error
	Nearby(ctx context.Context, p types.Point, radiusKm float64) ([]Candidate, error)
}

type Users interface {
	GetMany(ctx context.Context, ids []types.ID) ([]*user.User, error)
}

type Service struct {
	index GeoIndex
	users Users
	cfg   config.MatchingConfig
	log   logrus.FieldLogger
}

func NewService(index GeoIndex, users Users, cfg config.MatchingConfig, log logrus.FieldLogger) *Service {
	return &Service{index: index, users: users, cfg: cfg, log: log}
}

func (s *Service) Track(ctx context.Context, id types.ID, p types.Point) error {
	return s.index.Upsert(ctx, id, p)
}

func (s *Service) Forget(ctx context.Context, id types.ID) error {
	return s.index.Remove(ctx, id)
}

// NearbyDrivers returns available drivers within radiusKm (config default when
// <= 0 or above the configured maximum), closest first.
func (s *Service) NearbyDrivers(ctx context.Context, p types.Point, radiusKm float64) ([]NearbyDriver, error) {
	if !p.Valid() {
		return nil, ErrBadRequest
	}
	if radiusKm <= 0 || radiusKm > s.cfg.RadiusKm {
		radiusKm = s.cfg.RadiusKm
	}
	candidates, err := s.index.Nearby(ctx, p, radiusKm)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	ids := make([]types.ID, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	users, err := s.users.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[types.ID]*user.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	var out []NearbyDriver
	for _, c := range candidates {
		u, ok := byID[c.ID]
		if !ok || !u.IsDriver || u.State != user.StateAvailable {
			continue
		}
		dist := c.DistanceKm
		if u.Position != nil {
			dist = geo.HaversineKm(p, *u.Position)
		}
		out = append(out, NearbyDriver{Driver: u, DistanceKm: dist})
	}
	sortByDistance(out, func(d NearbyDriver) float64 { return d.DistanceKm })
	return out, nil
}

// sortByDistance performs an insertion sort (fine for small N) on any slice
// where each element exposes a distance via the accessor function.
func sortByDistance[T any](items []T, dist func(T) float64) {
	for i := 1; i < len(items); i++ {
		key := items[i]
		j := i - 1
		for j >= 0 && dist(items[j]) > dist(key) {
			items[j+1] = items[j]
			j--
		}
		items[j+1] = key
	}
}
