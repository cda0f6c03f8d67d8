package tracking

import "agent-tracking/internal/models"

// AccumulatePing folds one ping into the session's cumulative stats and
// returns the distance delta (meters) and derived speed (km/h) it
// contributed.
//
// The first ping of a session and pings whose timestamp does not advance past
// the previous one contribute zero distance and zero speed: the ping is still
// counted and stored, but a device clock that jumps backwards must never
// shrink the cumulative distance or fabricate a speed from negative time.
func AccumulatePing(sess *models.TrackingSession, prev, ping *models.LocationPing) (float64, float64) {
	var distance, speedKmh float64

	if prev != nil && ping.RecordedAt.After(prev.RecordedAt) {
		distance = Distance(prev.Latitude, prev.Longitude, ping.Latitude, ping.Longitude)
		elapsed := ping.RecordedAt.Sub(prev.RecordedAt).Seconds()
		speedKmh = SpeedKmh(distance, elapsed)
	}

	sess.TotalDistance += distance
	if speedKmh > sess.MaxSpeed {
		sess.MaxSpeed = speedKmh
	}
	sess.PingCount++

	return distance, speedKmh
}
