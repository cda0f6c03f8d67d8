package tracking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"agent-tracking/internal/models"

	"github.com/google/uuid"
)

// SessionManager owns the tracking-session lifecycle. It enforces the single
// invariant the rest of the pipeline relies on: at most one ACTIVE session per
// agent. Active sessions are cached in process and backed by the store, so the
// hot path does not issue a "most recent session" query per ping.
type SessionManager struct {
	store StoreInterface

	mu     sync.RWMutex
	active map[string]*models.TrackingSession // agent id -> ACTIVE session
}

// NewSessionManager creates a session manager.
func NewSessionManager(store StoreInterface) *SessionManager {
	return &SessionManager{
		store:  store,
		active: make(map[string]*models.TrackingSession),
	}
}

// Start begins a new ACTIVE session for the agent. If the agent already has an
// ACTIVE session it is force-completed first, stamped with the current time
// and no explicit end location: one physical agent drives one logical trip,
// and orphaned ACTIVE rows must never accumulate. A persistence failure
// surfaces to the caller and leaves all state unchanged.
func (m *SessionManager) Start(ctx context.Context, agentID string, taskID *string, lat, lon float64) (*models.TrackingSession, error) {
	previous, err := m.currentActive(ctx, agentID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("sessions.Start: %w", err)
	}

	if previous != nil {
		if err := m.complete(ctx, previous, time.Now().UTC(), nil, nil); err != nil {
			return nil, fmt.Errorf("sessions.Start: force-complete previous: %w", err)
		}
		log.Printf("session %s for agent %s force-completed by new session start", previous.ID, agentID)
	}

	now := time.Now().UTC()
	session := &models.TrackingSession{
		ID:             uuid.New().String(),
		AgentID:        agentID,
		TaskID:         taskID,
		Status:         models.SessionActive,
		StartedAt:      now,
		StartLatitude:  lat,
		StartLongitude: lon,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := m.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("sessions.Start: %w", err)
	}

	m.mu.Lock()
	m.active[agentID] = session
	m.mu.Unlock()

	return session, nil
}

// ResolveOrCreate returns the agent's ACTIVE session, creating one implicitly
// when none exists. The auto-created session uses the ping's own coordinates
// and timestamp as its start, which lets pings arrive before any explicit
// session-start call.
func (m *SessionManager) ResolveOrCreate(ctx context.Context, agentID string, taskID *string, lat, lon float64, at time.Time) (*models.TrackingSession, error) {
	session, err := m.currentActive(ctx, agentID)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("sessions.ResolveOrCreate: %w", err)
	}

	session = &models.TrackingSession{
		ID:             uuid.New().String(),
		AgentID:        agentID,
		TaskID:         taskID,
		Status:         models.SessionActive,
		StartedAt:      at,
		StartLatitude:  lat,
		StartLongitude: lon,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}

	if err := m.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("sessions.ResolveOrCreate: %w", err)
	}

	m.mu.Lock()
	m.active[agentID] = session
	m.mu.Unlock()

	return session, nil
}

// End transitions a session from ACTIVE to COMPLETED, freezing its cumulative
// stats and computing the final average speed from total distance over
// elapsed duration.
func (m *SessionManager) End(ctx context.Context, sessionID string, endLat, endLon *float64) (*models.TrackingSession, error) {
	session, err := m.store.FindSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("sessions.End: %w", err)
	}
	if session.Status != models.SessionActive {
		return nil, models.ErrSessionNotActive
	}

	if err := m.complete(ctx, session, time.Now().UTC(), endLat, endLon); err != nil {
		return nil, fmt.Errorf("sessions.End: %w", err)
	}
	return session, nil
}

// Apply replaces the cached ACTIVE session after the pipeline has durably
// written an updated copy. Called under the agent's lock.
func (m *SessionManager) Apply(session *models.TrackingSession) {
	m.mu.Lock()
	m.active[session.AgentID] = session
	m.mu.Unlock()
}

// CloseStale force-completes ACTIVE sessions that have not seen an update for
// longer than idleFor. It returns the number of sessions closed.
func (m *SessionManager) CloseStale(ctx context.Context, idleFor time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-idleFor)
	closed, err := m.store.CompleteStaleSessions(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sessions.CloseStale: %w", err)
	}

	if closed > 0 {
		// Drop cached sessions that the store just completed behind our back.
		m.mu.Lock()
		for agentID, session := range m.active {
			if session.UpdatedAt.Before(cutoff) {
				delete(m.active, agentID)
			}
		}
		m.mu.Unlock()
	}
	return closed, nil
}

// currentActive returns the agent's ACTIVE session from the cache, falling
// back to the store on a cold cache. Returns models.ErrNotFound when the
// agent has no ACTIVE session.
func (m *SessionManager) currentActive(ctx context.Context, agentID string) (*models.TrackingSession, error) {
	m.mu.RLock()
	session, ok := m.active[agentID]
	m.mu.RUnlock()
	if ok && session.Status == models.SessionActive {
		return session, nil
	}

	session, err := m.store.ActiveSession(ctx, agentID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.active[agentID] = session
	m.mu.Unlock()
	return session, nil
}

// complete writes the COMPLETED state. The session's stats are frozen as they
// stand; average speed falls out of total distance over elapsed time (0 for a
// zero-length session).
func (m *SessionManager) complete(ctx context.Context, session *models.TrackingSession, endedAt time.Time, endLat, endLon *float64) error {
	elapsed := endedAt.Sub(session.StartedAt).Seconds()

	session.Status = models.SessionCompleted
	session.EndedAt = &endedAt
	session.EndLatitude = endLat
	session.EndLongitude = endLon
	session.AverageSpeed = SpeedKmh(session.TotalDistance, elapsed)
	session.UpdatedAt = endedAt

	if err := m.store.UpdateSession(ctx, session); err != nil {
		// Leave no half-completed state behind on a store failure.
		session.Status = models.SessionActive
		session.EndedAt = nil
		session.EndLatitude = nil
		session.EndLongitude = nil
		session.AverageSpeed = 0
		return err
	}

	m.mu.Lock()
	if cached, ok := m.active[session.AgentID]; ok && cached.ID == session.ID {
		delete(m.active, session.AgentID)
	}
	m.mu.Unlock()
	return nil
}
