package tracking

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"agent-tracking/internal/models"
)

// GeofenceRegistry keeps an in-memory snapshot of the active geofence
// definitions. The snapshot is read on every ping, so it is refreshed
// out-of-band (a ticker plus an explicit refresh after admin mutations)
// instead of hitting the store per evaluation. Readers never block a refresh;
// they simply see the previous snapshot until the swap.
type GeofenceRegistry struct {
	store StoreInterface

	mu     sync.RWMutex
	fences []models.Geofence
}

// NewGeofenceRegistry creates a registry. Call Refresh once during wiring so
// the first pings do not evaluate against an empty snapshot.
func NewGeofenceRegistry(store StoreInterface) *GeofenceRegistry {
	return &GeofenceRegistry{store: store}
}

// Refresh reloads the active geofences from the store and swaps the snapshot.
func (r *GeofenceRegistry) Refresh(ctx context.Context) error {
	fences, err := r.store.ActiveGeofences(ctx)
	if err != nil {
		return fmt.Errorf("registry.Refresh: %w", err)
	}

	r.mu.Lock()
	r.fences = fences
	r.mu.Unlock()
	return nil
}

// Active returns the current snapshot of active geofences. The returned slice
// must not be modified by callers.
func (r *GeofenceRegistry) Active() []models.Geofence {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fences
}

// Run refreshes the snapshot on the given interval until the context is
// cancelled. Refresh failures are logged and retried on the next tick.
func (r *GeofenceRegistry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				log.Printf("WARN: geofence registry refresh failed: %v", err)
			}
		}
	}
}
