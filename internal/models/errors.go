package models

import "errors"

var (
	// ErrNotFound is returned when a requested resource is not found.
	ErrNotFound = errors.New("resource not found")

	// ErrLatitudeOutOfRange is returned when a ping reports a latitude
	// outside [-90, 90].
	ErrLatitudeOutOfRange = errors.New("latitude must be between -90 and 90")

	// ErrLongitudeOutOfRange is returned when a ping reports a longitude
	// outside [-180, 180].
	ErrLongitudeOutOfRange = errors.New("longitude must be between -180 and 180")

	// ErrNegativeAccuracy is returned when a ping reports a negative GPS
	// accuracy radius.
	ErrNegativeAccuracy = errors.New("accuracy must not be negative")

	// ErrNegativeSpeed is returned when a ping reports a negative speed.
	ErrNegativeSpeed = errors.New("speed must not be negative")

	// ErrBearingOutOfRange is returned when a ping reports a bearing outside
	// [0, 360].
	ErrBearingOutOfRange = errors.New("bearing must be between 0 and 360")

	// ErrEmptyBatch is returned when a batch request carries no pings.
	ErrEmptyBatch = errors.New("batch must contain at least one ping")

	// ErrSessionNotActive is returned when an operation requires an ACTIVE
	// session (e.g. ending a session that is already completed).
	ErrSessionNotActive = errors.New("tracking session is not active")

	// ErrStoreUnavailable wraps transient persistence failures. The whole
	// write-set of the ping was rejected; the caller may retry the identical
	// ping safely because re-ingestion of the same (agent, timestamp) ping is
	// idempotent at the storage layer.
	ErrStoreUnavailable = errors.New("persistence store unavailable")
)

// ErrorResponse is the JSON error body returned by the API.
type ErrorResponse struct {
	Message string `json:"message"`
}
