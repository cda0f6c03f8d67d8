package tracking

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"agent-tracking/internal/models"
)

// memStore is an in-memory StoreInterface used by the tests. It mimics the
// storage semantics the pipeline relies on: atomic write-sets, idempotent
// ping inserts and a last-writer-wins current-location row.
type memStore struct {
	mu sync.Mutex

	sessions map[string]*models.TrackingSession
	pings    map[string][]*models.LocationPing // keyed by session id
	events   []models.GeofenceEvent
	fences   []models.Geofence
	current  map[string]*models.AgentCurrentLocation

	failWrites bool
	writeCalls int
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[string]*models.TrackingSession),
		pings:    make(map[string][]*models.LocationPing),
		current:  make(map[string]*models.AgentCurrentLocation),
	}
}

func (m *memStore) CreateSession(_ context.Context, s *models.TrackingSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return errors.New("store down")
	}
	clone := *s
	m.sessions[s.ID] = &clone
	return nil
}

func (m *memStore) UpdateSession(_ context.Context, s *models.TrackingSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return errors.New("store down")
	}
	if _, ok := m.sessions[s.ID]; !ok {
		return models.ErrNotFound
	}
	clone := *s
	m.sessions[s.ID] = &clone
	return nil
}

func (m *memStore) FindSession(_ context.Context, sessionID string) (*models.TrackingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, models.ErrNotFound
	}
	clone := *s
	return &clone, nil
}

func (m *memStore) ActiveSession(_ context.Context, agentID string) (*models.TrackingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.TrackingSession
	for _, s := range m.sessions {
		if s.AgentID != agentID || s.Status != models.SessionActive {
			continue
		}
		if latest == nil || s.StartedAt.After(latest.StartedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, models.ErrNotFound
	}
	clone := *latest
	return &clone, nil
}

func (m *memStore) CompleteStaleSessions(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	closed := 0
	now := time.Now().UTC()
	for _, s := range m.sessions {
		if s.Status == models.SessionActive && s.UpdatedAt.Before(cutoff) {
			s.Status = models.SessionCompleted
			s.EndedAt = &now
			s.UpdatedAt = now
			closed++
		}
	}
	return closed, nil
}

func (m *memStore) LastPing(_ context.Context, sessionID string) (*models.LocationPing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pings := m.pings[sessionID]
	if len(pings) == 0 {
		return nil, models.ErrNotFound
	}
	latest := pings[0]
	for _, p := range pings[1:] {
		if p.RecordedAt.After(latest.RecordedAt) {
			latest = p
		}
	}
	clone := *latest
	return &clone, nil
}

func (m *memStore) WriteAtomic(_ context.Context, ws *models.WriteSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeCalls++
	if m.failWrites {
		return errors.New("store down")
	}

	// Idempotent ping insert on (session, recorded_at).
	duplicate := false
	for _, p := range m.pings[ws.Ping.SessionID] {
		if p.RecordedAt.Equal(ws.Ping.RecordedAt) {
			duplicate = true
			break
		}
	}
	if !duplicate {
		ping := *ws.Ping
		m.pings[ws.Ping.SessionID] = append(m.pings[ws.Ping.SessionID], &ping)
	}

	session := *ws.Session
	m.sessions[session.ID] = &session

	// Last-writer-wins by recorded time.
	if existing, ok := m.current[ws.CurrentLocation.AgentID]; !ok || !existing.RecordedAt.After(ws.CurrentLocation.RecordedAt) {
		loc := *ws.CurrentLocation
		m.current[loc.AgentID] = &loc
	}

	m.events = append(m.events, ws.Events...)
	return nil
}

func (m *memStore) LastGeofenceEvent(_ context.Context, agentID, geofenceID string) (*models.GeofenceEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.GeofenceEvent
	for i := range m.events {
		ev := &m.events[i]
		if ev.AgentID != agentID || ev.GeofenceID != geofenceID {
			continue
		}
		if latest == nil || ev.OccurredAt.After(latest.OccurredAt) {
			latest = ev
		}
	}
	if latest == nil {
		return nil, models.ErrNotFound
	}
	clone := *latest
	return &clone, nil
}

func (m *memStore) ActiveGeofences(_ context.Context) ([]models.Geofence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var fences []models.Geofence
	for _, f := range m.fences {
		if f.IsActive {
			fences = append(fences, f)
		}
	}
	return fences, nil
}

func (m *memStore) CurrentLocation(_ context.Context, agentID string) (*models.AgentCurrentLocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.current[agentID]
	if !ok {
		return nil, models.ErrNotFound
	}
	clone := *c
	return &clone, nil
}

func (m *memStore) StopTracking(_ context.Context, agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.current[agentID]; ok {
		c.IsTracking = false
	}
	return nil
}

func (m *memStore) AgentStats(_ context.Context, agentID string, from, to time.Time) (*models.AgentStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &models.AgentStats{
		AgentID:              agentID,
		From:                 from,
		To:                   to,
		AccuracyDistribution: make(map[models.GpsAccuracyLevel]int),
	}
	for _, s := range m.sessions {
		if s.AgentID != agentID || s.StartedAt.Before(from) || s.StartedAt.After(to) {
			continue
		}
		stats.SessionCount++
		stats.TotalDistance += s.TotalDistance
		stats.PingCount += s.PingCount
		if s.MaxSpeed > stats.MaxSpeed {
			stats.MaxSpeed = s.MaxSpeed
		}
	}
	return stats, nil
}

// agentEvents returns the stored events for an agent in insertion order.
func (m *memStore) agentEvents(agentID string) []models.GeofenceEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var events []models.GeofenceEvent
	for _, ev := range m.events {
		if ev.AgentID == agentID {
			events = append(events, ev)
		}
	}
	return events
}

// activeSessionCount reports how many ACTIVE sessions an agent has.
func (m *memStore) activeSessionCount(agentID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, s := range m.sessions {
		if s.AgentID == agentID && s.Status == models.SessionActive {
			count++
		}
	}
	return count
}

// sessionPings returns a session's stored pings sorted by recorded time.
func (m *memStore) sessionPings(sessionID string) []*models.LocationPing {
	m.mu.Lock()
	defer m.mu.Unlock()
	pings := append([]*models.LocationPing(nil), m.pings[sessionID]...)
	sort.Slice(pings, func(i, j int) bool { return pings[i].RecordedAt.Before(pings[j].RecordedAt) })
	return pings
}

func (m *memStore) setFailWrites(fail bool) {
	m.mu.Lock()
	m.failWrites = fail
	m.mu.Unlock()
}

// mockDispatcher records notifications; deliveries are signalled on a channel
// so tests can wait for the pipeline's detached dispatch goroutine.
type mockDispatcher struct {
	mu        sync.Mutex
	locations []string
	events    []models.GeofenceEvent
	failAll   bool
	delivered chan struct{}
}

func newMockDispatcher() *mockDispatcher {
	return &mockDispatcher{delivered: make(chan struct{}, 64)}
}

func (d *mockDispatcher) NotifyLocationUpdate(_ context.Context, ping *models.LocationPing, _ *models.TrackingSession) error {
	d.mu.Lock()
	fail := d.failAll
	if !fail {
		d.locations = append(d.locations, ping.AgentID)
	}
	d.mu.Unlock()
	d.delivered <- struct{}{}
	if fail {
		return errors.New("dispatch down")
	}
	return nil
}

func (d *mockDispatcher) NotifyGeofenceEvent(_ context.Context, event *models.GeofenceEvent, _ *models.Geofence) error {
	d.mu.Lock()
	fail := d.failAll
	if !fail {
		d.events = append(d.events, *event)
	}
	d.mu.Unlock()
	d.delivered <- struct{}{}
	if fail {
		return errors.New("dispatch down")
	}
	return nil
}
