package maps

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"googlemaps.github.io/maps"

	"twende/internal/types"
)

var (
	ErrNoRoute   = errors.New("no route found")
	ErrNoAddress = errors.New("address not found")
)

// GeocodeService resolves free-text pickup and drop-off addresses.
type GeocodeService struct {
	client *maps.Client
	region string
}

// NewGeocodeService creates a new GeocodeService biased to Kenya.
func NewGeocodeService(apiKey string) (*GeocodeService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GeocodeService{client: client, region: "ke"}, nil
}

// Geocode returns the coordinates of the best match for address.
func (s *GeocodeService) Geocode(ctx context.Context, address string) (types.Point, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return types.Point{}, ErrNoAddress
	}
	results, err := s.client.Geocode(ctx, &maps.GeocodingRequest{
		Address: address,
		Region:  s.region,
	})
	if err != nil {
		return types.Point{}, fmt.Errorf("maps geocode error: %w", err)
	}
	if len(results) == 0 {
		return types.Point{}, ErrNoAddress
	}
	loc := results[0].Geometry.Location
	return types.Point{Lat: loc.Lat, Lng: loc.Lng}, nil
}
