// README: Pure geographic helpers (distance, movement threshold).
package location

import (
	"math"

	"travelflow/internal/types"
)

const earthRadiusKm = 6371.0

// haversineKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees.
func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLng := degreesToRadians(lng2 - lng1)

	rLat1 := degreesToRadians(lat1)
	rLat2 := degreesToRadians(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// moved reports whether b is farther than thresholdKm from a. A missing
// point on either side always counts as moved.
func moved(a, b *types.Point, thresholdKm float64) bool {
	if a == nil || b == nil {
		return true
	}
	return haversineKm(a.Lat, a.Lng, b.Lat, b.Lng) > thresholdKm
}
