package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"agent-tracking/internal/models"

	"github.com/google/uuid"
)

// fenceState is the evaluator's view of an agent relative to one geofence.
type fenceState int

const (
	stateUnknown fenceState = iota
	stateInside
	stateOutside
)

// GeofenceEvaluator tracks, per (agent, geofence) pair, whether the agent is
// currently inside the zone and emits debounced ENTER/EXIT events on boundary
// crossings only. The previous state is derived from the most recent stored
// GeofenceEvent for the pair rather than recomputed from raw pings; after the
// first lookup the state is cached in process.
//
// The stored-event lookup deliberately spans sessions: a driver who ended the
// day inside a zone and resumes there the next morning does not re-ENTER.
type GeofenceEvaluator struct {
	store StoreInterface

	mu    sync.Mutex
	state map[string]map[string]fenceState // agent id -> geofence id -> state
}

// NewGeofenceEvaluator creates an evaluator.
func NewGeofenceEvaluator(store StoreInterface) *GeofenceEvaluator {
	return &GeofenceEvaluator{
		store: store,
		state: make(map[string]map[string]fenceState),
	}
}

// Evaluate checks the ping against every active geofence and returns the
// boundary events it produces, zero or more. Geofences are independent; an
// agent can be inside several at once. The returned events are not yet
// reflected in the evaluator's cache: the caller commits them with Commit
// once the write-set is durable, so a failed write never desynchronizes the
// debounce state.
func (e *GeofenceEvaluator) Evaluate(ctx context.Context, ping *models.LocationPing, fences []models.Geofence) ([]models.GeofenceEvent, error) {
	var events []models.GeofenceEvent

	for _, fence := range fences {
		dist := Distance(ping.Latitude, ping.Longitude, fence.CenterLatitude, fence.CenterLongitude)
		inside := dist <= fence.RadiusMeters

		previous, err := e.previousState(ctx, ping.AgentID, fence.ID)
		if err != nil {
			return nil, fmt.Errorf("evaluator.Evaluate: geofence %s: %w", fence.ID, err)
		}

		switch {
		case inside && previous != stateInside:
			events = append(events, e.newEvent(ping, fence.ID, models.GeofenceEnter))
		case !inside && previous == stateInside:
			events = append(events, e.newEvent(ping, fence.ID, models.GeofenceExit))
		}
	}

	return events, nil
}

// Commit folds successfully persisted events into the cached state. Called
// under the agent's lock.
func (e *GeofenceEvaluator) Commit(events []models.GeofenceEvent) {
	if len(events) == 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, event := range events {
		agentState, ok := e.state[event.AgentID]
		if !ok {
			agentState = make(map[string]fenceState)
			e.state[event.AgentID] = agentState
		}
		if event.Type == models.GeofenceEnter {
			agentState[event.GeofenceID] = stateInside
		} else {
			agentState[event.GeofenceID] = stateOutside
		}
	}
}

// previousState answers "was the agent inside this geofence the last time we
// looked". Cache first, then the stored event log; no event on record means
// the state is unknown, which debounces to "outside" for ENTER purposes.
func (e *GeofenceEvaluator) previousState(ctx context.Context, agentID, geofenceID string) (fenceState, error) {
	e.mu.Lock()
	if agentState, ok := e.state[agentID]; ok {
		if state, ok := agentState[geofenceID]; ok {
			e.mu.Unlock()
			return state, nil
		}
	}
	e.mu.Unlock()

	event, err := e.store.LastGeofenceEvent(ctx, agentID, geofenceID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			e.remember(agentID, geofenceID, stateUnknown)
			return stateUnknown, nil
		}
		return stateUnknown, err
	}

	state := stateOutside
	if event.Type == models.GeofenceEnter {
		state = stateInside
	}
	e.remember(agentID, geofenceID, state)
	return state, nil
}

func (e *GeofenceEvaluator) remember(agentID, geofenceID string, state fenceState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	agentState, ok := e.state[agentID]
	if !ok {
		agentState = make(map[string]fenceState)
		e.state[agentID] = agentState
	}
	agentState[geofenceID] = state
}

func (e *GeofenceEvaluator) newEvent(ping *models.LocationPing, geofenceID string, eventType models.GeofenceEventType) models.GeofenceEvent {
	return models.GeofenceEvent{
		ID:         uuid.New().String(),
		GeofenceID: geofenceID,
		AgentID:    ping.AgentID,
		SessionID:  ping.SessionID,
		Type:       eventType,
		Latitude:   ping.Latitude,
		Longitude:  ping.Longitude,
		OccurredAt: ping.RecordedAt,
	}
}
