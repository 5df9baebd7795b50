// Package distance provides great-circle distance calculations on a spherical Earth.
package distance

import (
	"math"
)

// EarthRadiusKm is the mean Earth radius used for all distance calculations
const EarthRadiusKm = 6371.0

// CalculateDistance computes the great-circle distance between two points using the Haversine formula.
// Coordinates are decimal degrees and are not range-checked. Returns distance in kilometers.
func CalculateDistance(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := degreesToRadians(lat1)
	lat2Rad := degreesToRadians(lat2)
	deltaLat := lat2Rad - lat1Rad
	deltaLon := degreesToRadians(lon2) - degreesToRadians(lon1)

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)

	// Rounding can push a just outside [0, 1] for antipodal points
	a = clamp(a, 0, 1)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// degreesToRadians converts degrees to radians
func degreesToRadians(degrees float64) float64 {
	return degrees * math.Pi / 180.0
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
