package geo

import (
	"math"
)

const earthRadius = 6371000.0 // meters

// MetersPerDegree is the equirectangular length of one degree of latitude.
const MetersPerDegree = 111320.0

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// Haversine computes the distance between two points in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := toRadians(lat1)
	lon1Rad := toRadians(lon1)
	lat2Rad := toRadians(lat2)
	lon2Rad := toRadians(lon2)

	dLat := lat2Rad - lat1Rad
	dLon := lon2Rad - lon1Rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadius * c
}

// Offset moves a point by meters along bearing angle (radians, 0 = north)
// using the small-angle equirectangular approximation.
func Offset(lat, lon, meters, angle float64) (float64, float64) {
	dLat := (meters / MetersPerDegree) * math.Cos(angle)
	dLon := (meters / (MetersPerDegree * math.Cos(toRadians(lat)))) * math.Sin(angle)
	return lat + dLat, lon + dLon
}

// PathLength sums the haversine length of consecutive points.
func PathLength(lats, lons []float64) float64 {
	total := 0.0
	for i := 0; i+1 < len(lats) && i+1 < len(lons); i++ {
		total += Haversine(lats[i], lons[i], lats[i+1], lons[i+1])
	}
	return total
}
