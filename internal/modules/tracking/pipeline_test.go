package tracking

import (
	"context"
	"errors"
	"testing"
	"time"

	"agent-tracking/internal/models"
)

func newTestService(t *testing.T, store *memStore, dispatcher DispatcherInterface) *Service {
	t.Helper()
	sessions := NewSessionManager(store)
	evaluator := NewGeofenceEvaluator(store)
	registry := NewGeofenceRegistry(store)
	if err := registry.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return NewService(store, dispatcher, sessions, evaluator, registry, 2*time.Second, time.Second)
}

func pingRequest(agentID string, lat, lon float64, at time.Time) models.LocationPingRequest {
	return models.LocationPingRequest{
		AgentID:    agentID,
		Latitude:   lat,
		Longitude:  lon,
		RecordedAt: &at,
	}
}

func TestService_Update_TwoPingsAdvanceSessionStats(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store, nil)
	ctx := context.Background()

	session, err := svc.StartSession(ctx, models.StartSessionRequest{
		AgentID: "agent-1", Latitude: 37.50, Longitude: 127.00,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	base := time.Now().UTC()
	first, err := svc.Update(ctx, pingRequest("agent-1", 37.501, 127.001, base.Add(10*time.Second)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.Update(ctx, pingRequest("agent-1", 37.502, 127.002, base.Add(20*time.Second)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.SessionID != session.ID || second.SessionID != session.ID {
		t.Errorf("pings must attach to the started session")
	}

	stored, err := store.FindSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.PingCount != 2 {
		t.Errorf("expected ping count 2, got %d", stored.PingCount)
	}
	if stored.TotalDistance <= 0 {
		t.Errorf("expected positive total distance, got %f", stored.TotalDistance)
	}
	if stored.MaxSpeed <= 0 {
		t.Errorf("expected positive max speed, got %f", stored.MaxSpeed)
	}

	current, err := svc.CurrentLocation(ctx, "agent-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if current.Latitude != 37.502 || current.Longitude != 127.002 {
		t.Errorf("current location not at latest ping: %f, %f", current.Latitude, current.Longitude)
	}
	if !current.IsTracking {
		t.Error("expected is_tracking to be set while the session is active")
	}
}

func TestService_Update_AutoCreatesSession(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store, nil)

	ping, err := svc.Update(context.Background(), pingRequest("agent-1", 37.50, 127.00, time.Now().UTC()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ping.SessionID == "" {
		t.Fatal("expected an auto-created session")
	}
	if store.activeSessionCount("agent-1") != 1 {
		t.Errorf("expected one ACTIVE session")
	}
}

func TestService_Update_ValidationRejectsBeforeAnyWrite(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store, nil)
	now := time.Now().UTC()

	tests := []struct {
		name string
		req  models.LocationPingRequest
		want error
	}{
		{"latitude too high", pingRequest("agent-1", 91, 127.00, now), models.ErrLatitudeOutOfRange},
		{"longitude too low", pingRequest("agent-1", 37.50, -181, now), models.ErrLongitudeOutOfRange},
		{"negative accuracy", func() models.LocationPingRequest {
			r := pingRequest("agent-1", 37.50, 127.00, now)
			r.Accuracy = ptr(-1.0)
			return r
		}(), models.ErrNegativeAccuracy},
		{"negative speed", func() models.LocationPingRequest {
			r := pingRequest("agent-1", 37.50, 127.00, now)
			r.Speed = ptr(-0.1)
			return r
		}(), models.ErrNegativeSpeed},
		{"bearing over 360", func() models.LocationPingRequest {
			r := pingRequest("agent-1", 37.50, 127.00, now)
			r.Bearing = ptr(360.5)
			return r
		}(), models.ErrBearingOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Update(context.Background(), tt.req); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if store.writeCalls != 0 {
		t.Errorf("rejected pings must never reach the store, got %d writes", store.writeCalls)
	}
	if store.activeSessionCount("agent-1") != 0 {
		t.Errorf("rejected pings must not auto-create sessions")
	}
}

func TestService_UpdateBatch_SortsOutOfOrderPings(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store, nil)
	base := time.Now().UTC()

	// Deliberately shuffled: t+20s, t, t+10s.
	stored, err := svc.UpdateBatch(context.Background(), models.BatchLocationRequest{
		AgentID: "agent-1",
		Pings: []models.LocationPingRequest{
			pingRequest("agent-1", 37.502, 127.002, base.Add(20*time.Second)),
			pingRequest("agent-1", 37.500, 127.000, base),
			pingRequest("agent-1", 37.501, 127.001, base.Add(10*time.Second)),
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stored) != 3 {
		t.Fatalf("expected 3 stored pings, got %d", len(stored))
	}
	for i := 1; i < len(stored); i++ {
		if stored[i].RecordedAt.Before(stored[i-1].RecordedAt) {
			t.Fatalf("batch must be processed in timestamp order")
		}
	}

	session, err := store.FindSession(context.Background(), stored[0].SessionID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.PingCount != 3 {
		t.Errorf("expected ping count 3, got %d", session.PingCount)
	}
	// All three pings are in order, so every leg contributes distance.
	if session.TotalDistance <= 0 {
		t.Errorf("expected positive distance, got %f", session.TotalDistance)
	}
}

func TestService_UpdateBatch_RejectsWholeBatchOnInvalidPing(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store, nil)
	base := time.Now().UTC()

	_, err := svc.UpdateBatch(context.Background(), models.BatchLocationRequest{
		AgentID: "agent-1",
		Pings: []models.LocationPingRequest{
			pingRequest("agent-1", 37.500, 127.000, base),
			pingRequest("agent-1", 95.0, 127.001, base.Add(10*time.Second)), // invalid
		},
	})
	if !errors.Is(err, models.ErrLatitudeOutOfRange) {
		t.Fatalf("expected ErrLatitudeOutOfRange, got %v", err)
	}
	if store.writeCalls != 0 {
		t.Errorf("an invalid batch must be rejected before any write, got %d writes", store.writeCalls)
	}
}

func TestService_UpdateBatch_Empty(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store, nil)

	_, err := svc.UpdateBatch(context.Background(), models.BatchLocationRequest{AgentID: "agent-1"})
	if !errors.Is(err, models.ErrEmptyBatch) {
		t.Errorf("expected ErrEmptyBatch, got %v", err)
	}
}

func TestService_Update_StoreFailureLeavesStateUntouched(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store, nil)
	ctx := context.Background()
	base := time.Now().UTC()

	if _, err := svc.Update(ctx, pingRequest("agent-1", 37.500, 127.000, base)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	store.setFailWrites(true)
	_, err := svc.Update(ctx, pingRequest("agent-1", 37.501, 127.001, base.Add(10*time.Second)))
	if !errors.Is(err, models.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	store.setFailWrites(false)

	// The failed ping must not have advanced the cached session: retrying it
	// lands on the same pre-failure baseline.
	retried, err := svc.Update(ctx, pingRequest("agent-1", 37.501, 127.001, base.Add(10*time.Second)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	session, err := store.FindSession(ctx, retried.SessionID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.PingCount != 2 {
		t.Errorf("expected ping count 2 after one failure and one retry, got %d", session.PingCount)
	}
}

func TestService_Update_DuplicatePingIsIdempotentInStore(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store, nil)
	ctx := context.Background()
	at := time.Now().UTC()

	first, err := svc.Update(ctx, pingRequest("agent-1", 37.500, 127.000, at))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Same agent, same recorded time: a client retry of an already-delivered ping.
	if _, err := svc.Update(ctx, pingRequest("agent-1", 37.500, 127.000, at)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := len(store.sessionPings(first.SessionID)); got != 1 {
		t.Errorf("expected one stored ping for duplicate delivery, got %d", got)
	}
}

func TestService_Update_OutOfOrderPingKeepsNewerCurrentLocation(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store, nil)
	ctx := context.Background()
	base := time.Now().UTC()

	if _, err := svc.Update(ctx, pingRequest("agent-1", 37.502, 127.002, base.Add(20*time.Second))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// A late ping recorded earlier arrives afterwards.
	if _, err := svc.Update(ctx, pingRequest("agent-1", 37.500, 127.000, base)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	current, err := svc.CurrentLocation(ctx, "agent-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if current.Latitude != 37.502 {
		t.Errorf("late ping must not rewind the current location, got latitude %f", current.Latitude)
	}
}

func TestService_Update_GeofenceEventStoredAndDispatched(t *testing.T) {
	store := newMemStore()
	store.fences = []models.Geofence{testFence("f1")}
	dispatcher := newMockDispatcher()
	svc := newTestService(t, store, dispatcher)

	if _, err := svc.Update(context.Background(), pingRequest("agent-1", 37.50, 127.00, time.Now().UTC())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events := store.agentEvents("agent-1")
	if len(events) != 1 || events[0].Type != models.GeofenceEnter {
		t.Fatalf("expected one stored ENTER, got %v", events)
	}

	select {
	case <-dispatcher.delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for geofence notification")
	}
	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()
	if len(dispatcher.events) != 1 || dispatcher.events[0].Type != models.GeofenceEnter {
		t.Errorf("expected dispatched ENTER, got %v", dispatcher.events)
	}
}

func TestService_Update_DispatchFailureDoesNotFailIngestion(t *testing.T) {
	store := newMemStore()
	store.fences = []models.Geofence{testFence("f1")}
	dispatcher := newMockDispatcher()
	dispatcher.failAll = true
	svc := newTestService(t, store, dispatcher)

	req := pingRequest("agent-1", 37.50, 127.00, time.Now().UTC())
	req.TaskID = ptr("task-9")
	ping, err := svc.Update(context.Background(), req)
	if err != nil {
		t.Fatalf("dispatch failures must not surface to the caller, got %v", err)
	}

	// Both the geofence event and the location update fail; wait for both so
	// the goroutine has finished before the test tears down.
	for i := 0; i < 2; i++ {
		select {
		case <-dispatcher.delivered:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for dispatch attempts")
		}
	}

	if len(store.sessionPings(ping.SessionID)) != 1 {
		t.Errorf("ping must be durable regardless of dispatch outcome")
	}
	if len(store.agentEvents("agent-1")) != 1 {
		t.Errorf("event must be durable regardless of dispatch outcome")
	}
}

func TestService_EndSession_FreezesTotalsAndClearsTracking(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store, nil)
	ctx := context.Background()
	base := time.Now().UTC()

	ping, err := svc.Update(ctx, pingRequest("agent-1", 37.500, 127.000, base))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Update(ctx, pingRequest("agent-1", 37.501, 127.001, base.Add(10*time.Second))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ended, err := svc.EndSession(ctx, ping.SessionID, models.EndSessionRequest{
		Latitude: ptr(37.501), Longitude: ptr(127.001),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ended.Status != models.SessionCompleted {
		t.Errorf("expected COMPLETED, got %s", ended.Status)
	}
	if ended.PingCount != 2 {
		t.Errorf("expected frozen ping count 2, got %d", ended.PingCount)
	}

	current, err := svc.CurrentLocation(ctx, "agent-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if current.IsTracking {
		t.Error("expected is_tracking cleared after the session ended")
	}
}

func TestService_AgentStats_AggregatesSessions(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store, nil)
	ctx := context.Background()
	base := time.Now().UTC()

	ping, err := svc.Update(ctx, pingRequest("agent-1", 37.500, 127.000, base))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Update(ctx, pingRequest("agent-1", 37.501, 127.001, base.Add(10*time.Second))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.EndSession(ctx, ping.SessionID, models.EndSessionRequest{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stats, err := svc.AgentStats(ctx, "agent-1", base.Add(-time.Hour), base.Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.SessionCount != 1 {
		t.Errorf("expected 1 session, got %d", stats.SessionCount)
	}
	if stats.PingCount != 2 {
		t.Errorf("expected 2 pings, got %d", stats.PingCount)
	}
	if stats.TotalDistance <= 0 {
		t.Errorf("expected positive distance, got %f", stats.TotalDistance)
	}
}
