package tracking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"agent-tracking/internal/models"

	"github.com/google/uuid"
)

// DispatcherInterface is the outbound notification collaborator. Delivery is
// best-effort: the pipeline logs and swallows dispatcher failures and never
// rolls back an accepted ping because of one.
type DispatcherInterface interface {
	NotifyLocationUpdate(ctx context.Context, ping *models.LocationPing, session *models.TrackingSession) error
	NotifyGeofenceEvent(ctx context.Context, event *models.GeofenceEvent, fence *models.Geofence) error
}

// ServiceInterface defines the tracking operations exposed to the HTTP layer.
type ServiceInterface interface {
	Update(ctx context.Context, req models.LocationPingRequest) (*models.LocationPing, error)
	UpdateBatch(ctx context.Context, req models.BatchLocationRequest) ([]*models.LocationPing, error)
	StartSession(ctx context.Context, req models.StartSessionRequest) (*models.TrackingSession, error)
	EndSession(ctx context.Context, sessionID string, req models.EndSessionRequest) (*models.TrackingSession, error)
	GetSession(ctx context.Context, sessionID string) (*models.TrackingSession, error)
	CurrentLocation(ctx context.Context, agentID string) (*models.AgentCurrentLocation, error)
	AgentStats(ctx context.Context, agentID string, from, to time.Time) (*models.AgentStats, error)
}

// Service is the ingestion pipeline. Per ping it resolves the session,
// classifies accuracy, folds stats, evaluates geofences, overwrites the
// current-location row and hands a single atomic write-set to the store. All
// of that happens under the agent's keyed lock; the store and dispatcher are
// called with bounded timeouts.
type Service struct {
	store      StoreInterface
	dispatcher DispatcherInterface
	sessions   *SessionManager
	evaluator  *GeofenceEvaluator
	registry   *GeofenceRegistry
	locks      *agentLocks

	storeTimeout  time.Duration
	notifyTimeout time.Duration

	mu        sync.Mutex
	lastPings map[string]*models.LocationPing // session id -> last accepted ping
}

// NewService wires the pipeline together.
func NewService(
	store StoreInterface,
	dispatcher DispatcherInterface,
	sessions *SessionManager,
	evaluator *GeofenceEvaluator,
	registry *GeofenceRegistry,
	storeTimeout, notifyTimeout time.Duration,
) *Service {
	return &Service{
		store:         store,
		dispatcher:    dispatcher,
		sessions:      sessions,
		evaluator:     evaluator,
		registry:      registry,
		locks:         newAgentLocks(),
		storeTimeout:  storeTimeout,
		notifyTimeout: notifyTimeout,
		lastPings:     make(map[string]*models.LocationPing),
	}
}

// Update ingests a single ping.
func (s *Service) Update(ctx context.Context, req models.LocationPingRequest) (*models.LocationPing, error) {
	if err := validatePing(&req); err != nil {
		return nil, err
	}

	unlock := s.locks.acquire(req.AgentID)
	defer unlock()

	return s.ingest(ctx, req)
}

// UpdateBatch ingests a batch of pings for one agent. The whole batch is
// validated up front and rejected atomically if any ping is invalid, then the
// pings are sorted by timestamp and processed sequentially under the agent's
// lock: each ping's stats depend on the one before it, so a batch is never
// parallelized internally. Cancellation is honored between pings; a single
// ping's write-set stays all-or-nothing.
func (s *Service) UpdateBatch(ctx context.Context, req models.BatchLocationRequest) ([]*models.LocationPing, error) {
	if len(req.Pings) == 0 {
		return nil, models.ErrEmptyBatch
	}

	now := time.Now().UTC()
	for i := range req.Pings {
		req.Pings[i].AgentID = req.AgentID
		if req.Pings[i].RecordedAt == nil {
			// Stamp ingestion time once so sorting is stable.
			ts := now
			req.Pings[i].RecordedAt = &ts
		}
		if err := validatePing(&req.Pings[i]); err != nil {
			return nil, fmt.Errorf("ping %d: %w", i, err)
		}
	}

	sort.SliceStable(req.Pings, func(i, j int) bool {
		return req.Pings[i].RecordedAt.Before(*req.Pings[j].RecordedAt)
	})

	unlock := s.locks.acquire(req.AgentID)
	defer unlock()

	stored := make([]*models.LocationPing, 0, len(req.Pings))
	for i := range req.Pings {
		if err := ctx.Err(); err != nil {
			return stored, fmt.Errorf("batch aborted after %d pings: %w", len(stored), err)
		}
		ping, err := s.ingest(ctx, req.Pings[i])
		if err != nil {
			return stored, fmt.Errorf("ping %d: %w", i, err)
		}
		stored = append(stored, ping)
	}
	return stored, nil
}

// ingest runs the per-ping pipeline. The caller must hold the agent's lock.
func (s *Service) ingest(ctx context.Context, req models.LocationPingRequest) (*models.LocationPing, error) {
	recordedAt := time.Now().UTC()
	if req.RecordedAt != nil {
		recordedAt = req.RecordedAt.UTC()
	}

	// 1. Resolve the ACTIVE session, auto-creating one from this ping.
	session, err := s.sessions.ResolveOrCreate(ctx, req.AgentID, req.TaskID, req.Latitude, req.Longitude, recordedAt)
	if err != nil {
		return nil, err
	}

	// 2. Build the ping with its derived accuracy classification.
	ping := &models.LocationPing{
		ID:             uuid.New().String(),
		AgentID:        req.AgentID,
		SessionID:      session.ID,
		TaskID:         req.TaskID,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		Altitude:       req.Altitude,
		Accuracy:       req.Accuracy,
		Speed:          req.Speed,
		Bearing:        req.Bearing,
		BatteryLevel:   req.BatteryLevel,
		SignalStrength: req.SignalStrength,
		AccuracyLevel:  AccuracyLevel(req.Accuracy),
		RecordedAt:     recordedAt,
		CreatedAt:      time.Now().UTC(),
	}

	// 3. Fold stats into a copy of the session so a failed write leaves the
	// cached session untouched.
	prev, err := s.previousPing(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	updated := *session
	AccumulatePing(&updated, prev, ping)
	updated.UpdatedAt = time.Now().UTC()

	// 4. Evaluate all active geofences.
	fences := s.registry.Active()
	events, err := s.evaluator.Evaluate(ctx, ping, fences)
	if err != nil {
		return nil, err
	}

	// 5. Overwrite the agent's current location.
	current := currentLocationFrom(ping, &updated)

	// 6. One atomic write-set: ping, session update, current location,
	// geofence events. No partial commits.
	writeSet := &models.WriteSet{
		Ping:            ping,
		Session:         &updated,
		CurrentLocation: current,
		Events:          events,
	}
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.store.WriteAtomic(storeCtx, writeSet); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	// 7. The write is durable; advance the in-process state.
	s.sessions.Apply(&updated)
	s.evaluator.Commit(events)
	s.rememberPing(ping)

	// 8. Side effects, best-effort.
	s.dispatch(ping, &updated, events, fences)

	return ping, nil
}

// StartSession explicitly starts a session for an agent.
func (s *Service) StartSession(ctx context.Context, req models.StartSessionRequest) (*models.TrackingSession, error) {
	if req.Latitude < -90 || req.Latitude > 90 {
		return nil, models.ErrLatitudeOutOfRange
	}
	if req.Longitude < -180 || req.Longitude > 180 {
		return nil, models.ErrLongitudeOutOfRange
	}

	unlock := s.locks.acquire(req.AgentID)
	defer unlock()

	return s.sessions.Start(ctx, req.AgentID, req.TaskID, req.Latitude, req.Longitude)
}

// EndSession completes a session and returns it with frozen totals.
func (s *Service) EndSession(ctx context.Context, sessionID string, req models.EndSessionRequest) (*models.TrackingSession, error) {
	session, err := s.store.FindSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("service.EndSession: %w", err)
	}

	unlock := s.locks.acquire(session.AgentID)
	defer unlock()

	ended, err := s.sessions.End(ctx, sessionID, req.Latitude, req.Longitude)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	delete(s.lastPings, sessionID)
	s.mu.Unlock()

	if err := s.store.StopTracking(ctx, ended.AgentID); err != nil {
		// The session itself completed; a stale is_tracking flag self-heals on
		// the next ping.
		log.Printf("WARN: failed to clear tracking flag for agent %s: %v", ended.AgentID, err)
	}

	return ended, nil
}

// GetSession returns a session by id.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*models.TrackingSession, error) {
	session, err := s.store.FindSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("service.GetSession: %w", err)
	}
	return session, nil
}

// CurrentLocation returns the latest known position of an agent.
func (s *Service) CurrentLocation(ctx context.Context, agentID string) (*models.AgentCurrentLocation, error) {
	location, err := s.store.CurrentLocation(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("service.CurrentLocation: %w", err)
	}
	return location, nil
}

// AgentStats aggregates distance, speed and accuracy distribution over a
// period.
func (s *Service) AgentStats(ctx context.Context, agentID string, from, to time.Time) (*models.AgentStats, error) {
	stats, err := s.store.AgentStats(ctx, agentID, from, to)
	if err != nil {
		return nil, fmt.Errorf("service.AgentStats: %w", err)
	}
	return stats, nil
}

// previousPing returns the last accepted ping of the session, warming the
// cache from the store on a miss (e.g. after a restart mid-session).
func (s *Service) previousPing(ctx context.Context, sessionID string) (*models.LocationPing, error) {
	s.mu.Lock()
	prev, ok := s.lastPings[sessionID]
	s.mu.Unlock()
	if ok {
		return prev, nil
	}

	prev, err := s.store.LastPing(ctx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("service.previousPing: %w", err)
	}
	s.rememberPing(prev)
	return prev, nil
}

// rememberPing keeps the newest ping per session for delta computation. The
// guard on RecordedAt keeps a late out-of-order ping from rewinding the
// reference point.
func (s *Service) rememberPing(ping *models.LocationPing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.lastPings[ping.SessionID]; ok && existing.RecordedAt.After(ping.RecordedAt) {
		return
	}
	s.lastPings[ping.SessionID] = ping
}

// dispatch triggers notifications for geofence events and, when the ping
// belongs to an active task, a location update. Runs detached from the
// request with its own timeout so a slow notification channel cannot block or
// fail ingestion.
func (s *Service) dispatch(ping *models.LocationPing, session *models.TrackingSession, events []models.GeofenceEvent, fences []models.Geofence) {
	if s.dispatcher == nil {
		return
	}
	if len(events) == 0 && ping.TaskID == nil {
		return
	}

	fenceByID := make(map[string]models.Geofence, len(fences))
	for _, fence := range fences {
		fenceByID[fence.ID] = fence
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
		defer cancel()

		for i := range events {
			fence := fenceByID[events[i].GeofenceID]
			if err := s.dispatcher.NotifyGeofenceEvent(ctx, &events[i], &fence); err != nil {
				log.Printf("WARN: geofence %s notification failed for agent %s: %v", events[i].Type, ping.AgentID, err)
			}
		}
		if ping.TaskID != nil {
			if err := s.dispatcher.NotifyLocationUpdate(ctx, ping, session); err != nil {
				log.Printf("WARN: location update notification failed for agent %s: %v", ping.AgentID, err)
			}
		}
	}()
}

// validatePing enforces the ingestion contract before anything is written.
func validatePing(req *models.LocationPingRequest) error {
	if req.Latitude < -90 || req.Latitude > 90 {
		return models.ErrLatitudeOutOfRange
	}
	if req.Longitude < -180 || req.Longitude > 180 {
		return models.ErrLongitudeOutOfRange
	}
	if req.Accuracy != nil && *req.Accuracy < 0 {
		return models.ErrNegativeAccuracy
	}
	if req.Speed != nil && *req.Speed < 0 {
		return models.ErrNegativeSpeed
	}
	if req.Bearing != nil && (*req.Bearing < 0 || *req.Bearing > 360) {
		return models.ErrBearingOutOfRange
	}
	return nil
}

// currentLocationFrom materializes the agent's current-location row from the
// accepted ping.
func currentLocationFrom(ping *models.LocationPing, session *models.TrackingSession) *models.AgentCurrentLocation {
	return &models.AgentCurrentLocation{
		AgentID:      ping.AgentID,
		Latitude:     ping.Latitude,
		Longitude:    ping.Longitude,
		Accuracy:     ping.Accuracy,
		Speed:        ping.Speed,
		Bearing:      ping.Bearing,
		BatteryLevel: ping.BatteryLevel,
		SessionID:    session.ID,
		TaskID:       ping.TaskID,
		IsTracking:   session.Status == models.SessionActive,
		RecordedAt:   ping.RecordedAt,
		UpdatedAt:    time.Now().UTC(),
	}
}
