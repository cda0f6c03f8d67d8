package tracking

import (
	"context"
	"errors"
	"testing"
	"time"

	"agent-tracking/internal/models"
)

func TestSessionManager_StartCreatesActiveSession(t *testing.T) {
	store := newMemStore()
	mgr := NewSessionManager(store)

	session, err := mgr.Start(context.Background(), "agent-1", nil, 37.50, 127.00)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.Status != models.SessionActive {
		t.Errorf("expected ACTIVE, got %s", session.Status)
	}
	if session.StartLatitude != 37.50 || session.StartLongitude != 127.00 {
		t.Errorf("unexpected start location: %f, %f", session.StartLatitude, session.StartLongitude)
	}
	if store.activeSessionCount("agent-1") != 1 {
		t.Errorf("expected exactly one ACTIVE session")
	}
}

func TestSessionManager_StartForceCompletesPrevious(t *testing.T) {
	store := newMemStore()
	mgr := NewSessionManager(store)

	first, err := mgr.Start(context.Background(), "agent-1", nil, 37.50, 127.00)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second, err := mgr.Start(context.Background(), "agent-1", nil, 37.60, 127.10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if store.activeSessionCount("agent-1") != 1 {
		t.Fatalf("expected exactly one ACTIVE session after restart, got %d", store.activeSessionCount("agent-1"))
	}

	stored, err := store.FindSession(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.Status != models.SessionCompleted {
		t.Errorf("expected first session COMPLETED, got %s", stored.Status)
	}
	if stored.EndedAt == nil {
		t.Error("expected first session to carry an end time")
	}
	if stored.EndLatitude != nil {
		t.Error("force-completed session must not invent an end location")
	}
	if second.ID == first.ID {
		t.Error("expected a fresh session id")
	}
}

func TestSessionManager_ResolveOrCreateAutoStarts(t *testing.T) {
	store := newMemStore()
	mgr := NewSessionManager(store)
	at := time.Now().UTC().Add(-time.Minute)

	session, err := mgr.ResolveOrCreate(context.Background(), "agent-1", nil, 37.51, 127.01, at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.StartLatitude != 37.51 || session.StartLongitude != 127.01 {
		t.Errorf("auto-created session must start at the ping's location")
	}
	if !session.StartedAt.Equal(at) {
		t.Errorf("auto-created session must start at the ping's timestamp")
	}

	// A second resolve returns the same session, not another one.
	again, err := mgr.ResolveOrCreate(context.Background(), "agent-1", nil, 37.52, 127.02, time.Now().UTC())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.ID != session.ID {
		t.Errorf("expected existing session %s, got %s", session.ID, again.ID)
	}
	if store.activeSessionCount("agent-1") != 1 {
		t.Errorf("expected exactly one ACTIVE session")
	}
}

func TestSessionManager_EndComputesAverageSpeed(t *testing.T) {
	store := newMemStore()
	mgr := NewSessionManager(store)

	session, err := mgr.Start(context.Background(), "agent-1", nil, 37.50, 127.00)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Simulate 20 seconds of movement worth 1000 m.
	session.StartedAt = time.Now().UTC().Add(-20 * time.Second)
	session.TotalDistance = 1000
	if err := store.UpdateSession(context.Background(), session); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mgr.Apply(session)

	ended, err := mgr.End(context.Background(), session.ID, ptr(37.51), ptr(127.01))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ended.Status != models.SessionCompleted {
		t.Errorf("expected COMPLETED, got %s", ended.Status)
	}
	// 1000 m over ~20 s = 50 m/s = 180 km/h; allow timer slack.
	if ended.AverageSpeed < 175 || ended.AverageSpeed > 185 {
		t.Errorf("expected average speed ~180 km/h, got %f", ended.AverageSpeed)
	}
	if ended.EndLatitude == nil || *ended.EndLatitude != 37.51 {
		t.Errorf("expected end latitude 37.51")
	}
}

func TestSessionManager_EndRejectsCompletedSession(t *testing.T) {
	store := newMemStore()
	mgr := NewSessionManager(store)

	session, err := mgr.Start(context.Background(), "agent-1", nil, 37.50, 127.00)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := mgr.End(context.Background(), session.ID, nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = mgr.End(context.Background(), session.ID, nil, nil)
	if !errors.Is(err, models.ErrSessionNotActive) {
		t.Errorf("expected ErrSessionNotActive, got %v", err)
	}
}

func TestSessionManager_StartLeavesNoStateOnStoreFailure(t *testing.T) {
	store := newMemStore()
	mgr := NewSessionManager(store)
	store.setFailWrites(true)

	if _, err := mgr.Start(context.Background(), "agent-1", nil, 37.50, 127.00); err == nil {
		t.Fatal("expected error")
	}

	store.setFailWrites(false)
	if _, err := store.ActiveSession(context.Background(), "agent-1"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected no session to exist, got %v", err)
	}
}

func TestSessionManager_CloseStale(t *testing.T) {
	store := newMemStore()
	mgr := NewSessionManager(store)

	session, err := mgr.Start(context.Background(), "agent-1", nil, 37.50, 127.00)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Age the session past the cutoff.
	session.UpdatedAt = time.Now().UTC().Add(-2 * time.Hour)
	if err := store.UpdateSession(context.Background(), session); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mgr.Apply(session)

	closed, err := mgr.CloseStale(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if closed != 1 {
		t.Errorf("expected 1 closed session, got %d", closed)
	}
	if store.activeSessionCount("agent-1") != 0 {
		t.Errorf("expected no ACTIVE sessions after sweep")
	}
}
