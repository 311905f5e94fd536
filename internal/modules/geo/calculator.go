// README: Haversine calculator, fallback chain, and nil-safe distance helper.
package geo

import (
	"context"
	"math"

	"twende/internal/types"
)

// HaversineCalculator estimates road distance as the great-circle distance and
// derives duration from a fixed average speed.
type HaversineCalculator struct {
	SpeedKmh float64
}

func (h HaversineCalculator) Distance(_ context.Context, origin, destination types.Point) (Distance, error) {
	km := HaversineKm(origin, destination)
	speed := h.SpeedKmh
	if speed <= 0 {
		speed = 30
	}
	return Distance{
		Distance: formatKm(km),
		Duration: formatMinutes(km / speed * 60),
		Meters:   int(math.Round(km * 1000)),
	}, nil
}

type fallback struct {
	primary   Calculator
	secondary Calculator
}

// Fallback uses secondary whenever primary fails. A nil primary returns secondary.
func Fallback(primary, secondary Calculator) Calculator {
	if primary == nil {
		return secondary
	}
	return &fallback{primary: primary, secondary: secondary}
}

func (f *fallback) Distance(ctx context.Context, origin, destination types.Point) (Distance, error) {
	d, err := f.primary.Distance(ctx, origin, destination)
	if err == nil {
		return d, nil
	}
	return f.secondary.Distance(ctx, origin, destination)
}

// Between returns nil when either point is missing or the calculator fails.
func Between(ctx context.Context, calc Calculator, a, b *types.Point) *Distance {
	if calc == nil || a == nil || b == nil {
		return nil
	}
	d, err := calc.Distance(ctx, *a, *b)
	if err != nil {
		return nil
	}
	return &d
}
