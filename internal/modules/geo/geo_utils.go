// README: Pure geographic computation helpers.
package geo

import (
	"fmt"
	"math"

	"twende/internal/types"
)

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance in kilometres between two points.
func HaversineKm(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// PlanarDistance is the euclidean distance in degrees, treating lat/lng as a plane.
// This is the engine unit for recorded routes.
func PlanarDistance(a, b types.Point) float64 {
	return math.Hypot(b.Lat-a.Lat, b.Lng-a.Lng)
}

// PathLength sums planar distances between consecutive points. Fewer than two
// points yield 0.
func PathLength(points []types.Point) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		total += PlanarDistance(points[i-1], points[i])
	}
	return total
}

// engineUnitsPerKm scales the planar length into the kilometre figure used for
// display and billing.
const engineUnitsPerKm = 100

// Waypoints turns a recorded path into the billed distance snapshot.
// Meters come from the unrounded length; the display string is rounded to 0.1 km.
func Waypoints(points []types.Point) Distance {
	km := PathLength(points) * engineUnitsPerKm
	return Distance{
		Distance: formatKm(km),
		Duration: "-",
		Meters:   int(math.Round(km * 1000)),
	}
}

func formatKm(km float64) string {
	return fmt.Sprintf("%.1f km", km)
}

func formatMinutes(d float64) string {
	mins := int(math.Ceil(d))
	if mins <= 1 {
		return "1 min"
	}
	return fmt.Sprintf("%d mins", mins)
}
