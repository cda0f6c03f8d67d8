package tracking

import (
	"math"

	"agent-tracking/internal/models"
)

// earthRadiusMeters is the mean earth radius used by the spherical
// approximation. The error against the real geoid is within ~0.5%.
const earthRadiusMeters = 6371000.0

// Distance returns the great-circle distance in meters between two
// coordinates using the Haversine formula.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)

	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Bearing returns the initial great-circle bearing in degrees from the first
// coordinate to the second, normalized to [0, 360).
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	dLon := toRad(lon2 - lon1)
	y := math.Sin(dLon) * math.Cos(toRad(lat2))
	x := math.Cos(toRad(lat1))*math.Sin(toRad(lat2)) -
		math.Sin(toRad(lat1))*math.Cos(toRad(lat2))*math.Cos(dLon)

	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// AccuracyLevel classifies a reported GPS accuracy radius. A nil accuracy
// means the device did not report one.
func AccuracyLevel(accuracy *float64) models.GpsAccuracyLevel {
	switch {
	case accuracy == nil:
		return models.AccuracyUnknown
	case *accuracy < 5:
		return models.AccuracyHigh
	case *accuracy <= 20:
		return models.AccuracyMedium
	default:
		return models.AccuracyLow
	}
}

// SpeedKmh derives a speed in km/h from a distance in meters covered over the
// given number of seconds. Non-positive durations yield 0 so that clock skew
// never produces a negative or infinite speed.
func SpeedKmh(meters, seconds float64) float64 {
	if seconds <= 0 {
		return 0
	}
	return meters / seconds * 3.6
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
