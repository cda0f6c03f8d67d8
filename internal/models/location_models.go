package models

import "time"

// GpsAccuracyLevel classifies the reported GPS accuracy of a ping.
type GpsAccuracyLevel string

const (
	AccuracyHigh    GpsAccuracyLevel = "HIGH"    // accuracy < 5m
	AccuracyMedium  GpsAccuracyLevel = "MEDIUM"  // 5m <= accuracy <= 20m
	AccuracyLow     GpsAccuracyLevel = "LOW"     // accuracy > 20m
	AccuracyUnknown GpsAccuracyLevel = "UNKNOWN" // accuracy not reported
)

// LocationPing is a single accepted GPS report from a delivery agent.
// Pings are immutable once stored and identified by (agent, session, recorded_at).
type LocationPing struct {
	ID             string           `json:"id"`
	AgentID        string           `json:"agent_id"`
	SessionID      string           `json:"session_id"`
	TaskID         *string          `json:"task_id,omitempty"`
	Latitude       float64          `json:"latitude"`
	Longitude      float64          `json:"longitude"`
	Altitude       *float64         `json:"altitude,omitempty"`
	Accuracy       *float64         `json:"accuracy,omitempty"` // meters
	Speed          *float64         `json:"speed,omitempty"`    // m/s as reported by the device
	Bearing        *float64         `json:"bearing,omitempty"`  // degrees, 0-360
	BatteryLevel   *int             `json:"battery_level,omitempty"`
	SignalStrength *int             `json:"signal_strength,omitempty"`
	AccuracyLevel  GpsAccuracyLevel `json:"accuracy_level"`
	RecordedAt     time.Time        `json:"recorded_at"`
	CreatedAt      time.Time        `json:"created_at"`
}

// AgentCurrentLocation is the materialized "latest known position" of an agent.
// Exactly one row per agent, overwritten in place. Last-writer-wins is decided
// by RecordedAt, not by arrival order.
type AgentCurrentLocation struct {
	AgentID      string    `json:"agent_id"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	Accuracy     *float64  `json:"accuracy,omitempty"`
	Speed        *float64  `json:"speed,omitempty"`
	Bearing      *float64  `json:"bearing,omitempty"`
	BatteryLevel *int      `json:"battery_level,omitempty"`
	SessionID    string    `json:"session_id"`
	TaskID       *string   `json:"task_id,omitempty"`
	IsTracking   bool      `json:"is_tracking"`
	RecordedAt   time.Time `json:"recorded_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// LocationPingRequest is the body of POST /tracking/locations.
// RecordedAt is optional; the server stamps ingestion time when it is absent.
type LocationPingRequest struct {
	AgentID        string     `json:"agent_id" validate:"required"`
	TaskID         *string    `json:"task_id,omitempty"`
	Latitude       float64    `json:"latitude" validate:"min=-90,max=90"`
	Longitude      float64    `json:"longitude" validate:"min=-180,max=180"`
	Altitude       *float64   `json:"altitude,omitempty"`
	Accuracy       *float64   `json:"accuracy,omitempty" validate:"omitempty,gte=0"`
	Speed          *float64   `json:"speed,omitempty" validate:"omitempty,gte=0"`
	Bearing        *float64   `json:"bearing,omitempty" validate:"omitempty,gte=0,lte=360"`
	BatteryLevel   *int       `json:"battery_level,omitempty" validate:"omitempty,min=0,max=100"`
	SignalStrength *int       `json:"signal_strength,omitempty"`
	RecordedAt     *time.Time `json:"recorded_at,omitempty"`
}

// BatchLocationRequest is the body of POST /tracking/locations/batch.
// The pings may arrive in any order; the pipeline sorts them by timestamp.
type BatchLocationRequest struct {
	AgentID   string                `json:"agent_id" validate:"required"`
	SessionID *string               `json:"session_id,omitempty"`
	Pings     []LocationPingRequest `json:"pings" validate:"required,min=1,dive"`
}
