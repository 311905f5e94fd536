// README: Distance snapshot and calculator contract used for ETA and fare derivation.
package geo

import (
	"context"

	"twende/internal/types"
)

// Distance is the JSON snapshot stored on rides (driver_distance, distance, live_distance).
type Distance struct {
	Distance string `json:"distance"`
	Duration string `json:"duration"`
	Meters   int    `json:"meters"`
}

// Calculator computes the travel distance between two coordinates.
type Calculator interface {
	Distance(ctx context.Context, origin, destination types.Point) (Distance, error)
}

// CalculatorFunc adapts a function to Calculator.
type CalculatorFunc func(ctx context.Context, origin, destination types.Point) (Distance, error)

func (f CalculatorFunc) Distance(ctx context.Context, origin, destination types.Point) (Distance, error) {
	return f(ctx, origin, destination)
}
