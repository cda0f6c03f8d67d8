package models

import "time"

// WriteSet is the atomic unit handed to the persistence store for one accepted
// ping: the ping itself, the updated session row, the overwritten
// current-location row and any geofence events the ping produced. The store
// commits all of it or none of it.
type WriteSet struct {
	Ping            *LocationPing
	Session         *TrackingSession
	CurrentLocation *AgentCurrentLocation
	Events          []GeofenceEvent
}

// AgentStats aggregates an agent's movement over a period.
type AgentStats struct {
	AgentID              string                   `json:"agent_id"`
	From                 time.Time                `json:"from"`
	To                   time.Time                `json:"to"`
	TotalDistance        float64                  `json:"total_distance"` // meters
	MaxSpeed             float64                  `json:"max_speed"`      // km/h
	AverageSpeed         float64                  `json:"average_speed"`  // km/h
	PingCount            int                      `json:"ping_count"`
	SessionCount         int                      `json:"session_count"`
	AccuracyDistribution map[GpsAccuracyLevel]int `json:"accuracy_distribution"`
}
