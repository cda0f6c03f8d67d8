package models

import "time"

// GeofenceEventType marks the direction of a geofence boundary crossing.
type GeofenceEventType string

const (
	GeofenceEnter GeofenceEventType = "ENTER"
	GeofenceExit  GeofenceEventType = "EXIT"
)

// Geofence is a circular zone (center + radius). Definitions are created by an
// admin workflow and are read-only to the tracking core.
type Geofence struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	CenterLatitude  float64   `json:"center_latitude"`
	CenterLongitude float64   `json:"center_longitude"`
	RadiusMeters    float64   `json:"radius_meters"`
	IsActive        bool      `json:"is_active"`
	OwnerID         string    `json:"owner_id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// GeofenceEvent records a single boundary crossing. The event log is
// append-only; exactly one event is written per physical crossing.
type GeofenceEvent struct {
	ID         string            `json:"id"`
	GeofenceID string            `json:"geofence_id"`
	AgentID    string            `json:"agent_id"`
	SessionID  string            `json:"session_id"`
	Type       GeofenceEventType `json:"type"`
	Latitude   float64           `json:"latitude"`
	Longitude  float64           `json:"longitude"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// CreateGeofenceRequest is the body of POST /tracking/geofences (admin only).
type CreateGeofenceRequest struct {
	Name            string  `json:"name" validate:"required,min=2,max=100"`
	CenterLatitude  float64 `json:"center_latitude" validate:"min=-90,max=90"`
	CenterLongitude float64 `json:"center_longitude" validate:"min=-180,max=180"`
	RadiusMeters    float64 `json:"radius_meters" validate:"required,gt=0"`
}

// UpdateGeofenceRequest is the body of PUT /tracking/geofences/:geofenceId.
// Pointer fields distinguish "not provided" from zero values.
type UpdateGeofenceRequest struct {
	Name            *string  `json:"name,omitempty" validate:"omitempty,min=2,max=100"`
	CenterLatitude  *float64 `json:"center_latitude,omitempty" validate:"omitempty,min=-90,max=90"`
	CenterLongitude *float64 `json:"center_longitude,omitempty" validate:"omitempty,min=-180,max=180"`
	RadiusMeters    *float64 `json:"radius_meters,omitempty" validate:"omitempty,gt=0"`
	IsActive        *bool    `json:"is_active,omitempty"`
}
