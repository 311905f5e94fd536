// README: Nearby-driver search results.
package matching

import (
	"twende/internal/modules/user"
	"twende/internal/types"
)

type Candidate struct {
	ID         types.ID
	Position   types.Point
	DistanceKm float64
}

type NearbyDriver struct {
	Driver     *user.User `json:"driver"`
	DistanceKm float64    `json:"distance_km"`
}
