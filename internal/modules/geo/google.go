// README: Calculator backed by Google Maps driving routes.
package geo

import (
	"context"

	"twende/internal/maps"
	"twende/internal/types"
)

type RouteEstimator interface {
	GetTravelEstimate(ctx context.Context, origin, destination types.Point) (maps.Estimate, error)
}

type RouteCalculator struct {
	routes RouteEstimator
}

func NewRouteCalculator(routes RouteEstimator) *RouteCalculator {
	return &RouteCalculator{routes: routes}
}

func (c *RouteCalculator) Distance(ctx context.Context, origin, destination types.Point) (Distance, error) {
	est, err := c.routes.GetTravelEstimate(ctx, origin, destination)
	if err != nil {
		return Distance{}, err
	}
	return Distance{
		Distance: est.HumanMeters,
		Duration: est.HumanMinutes,
		Meters:   est.Meters,
	}, nil
}
