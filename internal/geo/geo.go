package geo

import (
	"math"

	"github.com/saviobatista/aman-bridge/internal/types"
)

const (
	earthRadiusMeters = 6371000
	nmPerMeter        = 0.000539957
)

func rad(d float64) float64 { return d / 180 * math.Pi }

// DistanceNM returns the great-circle distance between two positions in nautical miles
func DistanceNM(a, b types.Position) float64 {
	lat1, lon1 := rad(a.Latitude), rad(a.Longitude)
	lat2, lon2 := rad(b.Latitude), rad(b.Longitude)
	dlat, dlon := lat2-lat1, lon2-lon1

	x := math.Sin(dlat/2)*math.Sin(dlat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(x), math.Sqrt(1-x))
	return earthRadiusMeters * c * nmPerMeter
}

// Bearing returns the initial true bearing from one position to another, in [0, 360)
func Bearing(from, to types.Position) float64 {
	lat1, lon1 := rad(from.Latitude), rad(from.Longitude)
	lat2, lon2 := rad(to.Latitude), rad(to.Longitude)

	dlon := lon2 - lon1
	y := math.Sin(dlon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dlon)
	bearing := math.Atan2(y, x) * 180 / math.Pi
	if bearing < 0 {
		bearing += 360
	}
	return bearing
}

// PathDistanceNM sums the leg distances along consecutive positions
func PathDistanceNM(points []types.Position) float64 {
	total := 0.0
	for i := 1; i < len(points); i++ {
		total += DistanceNM(points[i-1], points[i])
	}
	return total
}
