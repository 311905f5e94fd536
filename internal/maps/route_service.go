package maps

import (
	"context"
	"fmt"
	"time"

	"googlemaps.github.io/maps"

	"twende/internal/types"
)

// RouteService handles driving-route lookups against the Google Maps API.
type RouteService struct {
	client *maps.Client
}

// Estimate is the first leg of the best driving route.
type Estimate struct {
	Meters       int
	Duration     time.Duration
	HumanMeters  string
	HumanMinutes string
}

// NewRouteService creates a new RouteService with the given API Key.
func NewRouteService(apiKey string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client}, nil
}

// GetTravelEstimate returns distance and duration for a driving trip between two points.
func (s *RouteService) GetTravelEstimate(ctx context.Context, origin, destination types.Point) (Estimate, error) {
	r := &maps.DirectionsRequest{
		Origin:      latLng(origin),
		Destination: latLng(destination),
		Mode:        maps.TravelModeDriving,
		Region:      "ke",
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return Estimate{}, fmt.Errorf("maps api error: %w", err)
	}

	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return Estimate{}, ErrNoRoute
	}

	leg := routes[0].Legs[0]
	return Estimate{
		Meters:       leg.Distance.Meters,
		Duration:     leg.Duration,
		HumanMeters:  leg.Distance.HumanReadable,
		HumanMinutes: humanDuration(leg.Duration),
	}, nil
}

func latLng(p types.Point) string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
}

func humanDuration(d time.Duration) string {
	mins := int(d.Round(time.Minute) / time.Minute)
	if mins <= 1 {
		return "1 min"
	}
	return fmt.Sprintf("%d mins", mins)
}
