package models

import "time"

// SessionStatus is the lifecycle state of a tracking session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "ACTIVE"
	SessionPaused    SessionStatus = "PAUSED"
	SessionCompleted SessionStatus = "COMPLETED"
	SessionError     SessionStatus = "ERROR"
)

// TrackingSession is one logical trip of a delivery agent. At most one session
// per agent is ACTIVE at any time; starting a new one force-completes the
// previous session.
type TrackingSession struct {
	ID             string        `json:"id"`
	AgentID        string        `json:"agent_id"`
	TaskID         *string       `json:"task_id,omitempty"`
	Status         SessionStatus `json:"status"`
	StartedAt      time.Time     `json:"started_at"`
	StartLatitude  float64       `json:"start_latitude"`
	StartLongitude float64       `json:"start_longitude"`
	EndedAt        *time.Time    `json:"ended_at,omitempty"`
	EndLatitude    *float64      `json:"end_latitude,omitempty"`
	EndLongitude   *float64      `json:"end_longitude,omitempty"`
	TotalDistance  float64       `json:"total_distance"` // meters, non-decreasing while ACTIVE
	MaxSpeed       float64       `json:"max_speed"`      // km/h
	AverageSpeed   float64       `json:"average_speed"`  // km/h, computed on completion
	PingCount      int           `json:"ping_count"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// StartSessionRequest is the body of POST /tracking/sessions/start.
type StartSessionRequest struct {
	AgentID   string  `json:"agent_id" validate:"required"`
	TaskID    *string `json:"task_id,omitempty"`
	Latitude  float64 `json:"latitude" validate:"min=-90,max=90"`
	Longitude float64 `json:"longitude" validate:"min=-180,max=180"`
}

// EndSessionRequest is the body of POST /tracking/sessions/:sessionId/end.
// The end location is optional; when absent the session keeps its last known
// ping as the implicit end point.
type EndSessionRequest struct {
	Latitude  *float64 `json:"latitude,omitempty" validate:"omitempty,min=-90,max=90"`
	Longitude *float64 `json:"longitude,omitempty" validate:"omitempty,min=-180,max=180"`
}
