package notify

import (
	"context"
	"errors"

	"agent-tracking/internal/models"
)

// Dispatcher is the outbound notification contract the tracking pipeline
// consumes. Implementations in this package: AmqpDispatcher, EmailAlerter.
type Dispatcher interface {
	NotifyLocationUpdate(ctx context.Context, ping *models.LocationPing, session *models.TrackingSession) error
	NotifyGeofenceEvent(ctx context.Context, event *models.GeofenceEvent, fence *models.Geofence) error
}

// Multi fans a notification out to several channels. Every channel is
// attempted; failures are joined so the caller's warning log names all of
// them.
type Multi struct {
	dispatchers []Dispatcher
}

// NewMulti creates a fan-out dispatcher.
func NewMulti(dispatchers ...Dispatcher) *Multi {
	return &Multi{dispatchers: dispatchers}
}

// NotifyLocationUpdate forwards to every channel.
func (m *Multi) NotifyLocationUpdate(ctx context.Context, ping *models.LocationPing, session *models.TrackingSession) error {
	var errs []error
	for _, d := range m.dispatchers {
		if err := d.NotifyLocationUpdate(ctx, ping, session); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NotifyGeofenceEvent forwards to every channel.
func (m *Multi) NotifyGeofenceEvent(ctx context.Context, event *models.GeofenceEvent, fence *models.Geofence) error {
	var errs []error
	for _, d := range m.dispatchers {
		if err := d.NotifyGeofenceEvent(ctx, event, fence); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
