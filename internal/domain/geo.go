package domain

import "math"

const earthRadiusMeters = 6371000

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// DistanceMeters is the great-circle (haversine) distance between two
// points in meters.
func DistanceMeters(a, b LatLng) float64 {
	latDiff := toRadians(b.Lat - a.Lat)
	lngDiff := toRadians(b.Lng - a.Lng)
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)

	h := math.Sin(latDiff/2)*math.Sin(latDiff/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(lngDiff/2)*math.Sin(lngDiff/2)

	centralAngle := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusMeters * centralAngle
}
