package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agent-tracking/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StoreInterface is the persistence collaborator consumed by the tracking
// core. Implementations must make WriteAtomic all-or-nothing and keep
// re-ingestion of the same (session, timestamp) ping idempotent.
type StoreInterface interface {
	CreateSession(ctx context.Context, session *models.TrackingSession) error
	UpdateSession(ctx context.Context, session *models.TrackingSession) error
	FindSession(ctx context.Context, sessionID string) (*models.TrackingSession, error)
	ActiveSession(ctx context.Context, agentID string) (*models.TrackingSession, error)
	CompleteStaleSessions(ctx context.Context, cutoff time.Time) (int, error)
	LastPing(ctx context.Context, sessionID string) (*models.LocationPing, error)
	WriteAtomic(ctx context.Context, ws *models.WriteSet) error
	LastGeofenceEvent(ctx context.Context, agentID, geofenceID string) (*models.GeofenceEvent, error)
	ActiveGeofences(ctx context.Context) ([]models.Geofence, error)
	CurrentLocation(ctx context.Context, agentID string) (*models.AgentCurrentLocation, error)
	StopTracking(ctx context.Context, agentID string) error
	AgentStats(ctx context.Context, agentID string, from, to time.Time) (*models.AgentStats, error)
}

// Repository is the PostgreSQL implementation of StoreInterface.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new tracking repository.
func NewRepository(db *pgxpool.Pool) StoreInterface {
	return &Repository{db: db}
}

const sessionColumns = `id, agent_id, task_id, status, started_at, start_latitude, start_longitude,
	ended_at, end_latitude, end_longitude, total_distance, max_speed, average_speed, ping_count,
	created_at, updated_at`

// CreateSession inserts a new tracking session.
func (r *Repository) CreateSession(ctx context.Context, s *models.TrackingSession) error {
	query := `
		INSERT INTO tracking_sessions
			(id, agent_id, task_id, status, started_at, start_latitude, start_longitude,
			 total_distance, max_speed, average_speed, ping_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.db.Exec(ctx, query,
		s.ID, s.AgentID, s.TaskID, s.Status, s.StartedAt, s.StartLatitude, s.StartLongitude,
		s.TotalDistance, s.MaxSpeed, s.AverageSpeed, s.PingCount, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("repository.CreateSession: %w", err)
	}
	return nil
}

// UpdateSession writes the session row as it stands.
func (r *Repository) UpdateSession(ctx context.Context, s *models.TrackingSession) error {
	query := `
		UPDATE tracking_sessions
		SET status = $2, ended_at = $3, end_latitude = $4, end_longitude = $5,
		    total_distance = $6, max_speed = $7, average_speed = $8, ping_count = $9, updated_at = $10
		WHERE id = $1`

	cmdTag, err := r.db.Exec(ctx, query,
		s.ID, s.Status, s.EndedAt, s.EndLatitude, s.EndLongitude,
		s.TotalDistance, s.MaxSpeed, s.AverageSpeed, s.PingCount, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("repository.UpdateSession: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// FindSession retrieves a session by id.
func (r *Repository) FindSession(ctx context.Context, sessionID string) (*models.TrackingSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM tracking_sessions WHERE id = $1`
	return r.scanSession(r.db.QueryRow(ctx, query, sessionID))
}

// ActiveSession retrieves the agent's ACTIVE session, if any.
func (r *Repository) ActiveSession(ctx context.Context, agentID string) (*models.TrackingSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM tracking_sessions
		WHERE agent_id = $1 AND status = 'ACTIVE'
		ORDER BY started_at DESC
		LIMIT 1`
	return r.scanSession(r.db.QueryRow(ctx, query, agentID))
}

// CompleteStaleSessions force-completes ACTIVE sessions that stopped
// receiving pings before the cutoff.
func (r *Repository) CompleteStaleSessions(ctx context.Context, cutoff time.Time) (int, error) {
	query := `
		UPDATE tracking_sessions
		SET status = 'COMPLETED', ended_at = NOW(), updated_at = NOW()
		WHERE status = 'ACTIVE' AND updated_at < $1`

	cmdTag, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("repository.CompleteStaleSessions: %w", err)
	}
	return int(cmdTag.RowsAffected()), nil
}

const pingColumns = `id, agent_id, session_id, task_id, latitude, longitude, altitude, accuracy,
	speed, bearing, battery_level, signal_strength, accuracy_level, recorded_at, created_at`

// LastPing returns the most recent ping of a session by recorded time.
func (r *Repository) LastPing(ctx context.Context, sessionID string) (*models.LocationPing, error) {
	query := `
		SELECT ` + pingColumns + `
		FROM location_pings
		WHERE session_id = $1
		ORDER BY recorded_at DESC
		LIMIT 1`
	return r.scanPing(r.db.QueryRow(ctx, query, sessionID))
}

// WriteAtomic commits one ping's write-set in a single transaction: the ping,
// the updated session row, the current-location upsert and any geofence
// events. The ping insert tolerates duplicates on (session_id, recorded_at)
// and the current-location upsert only moves forward in recorded time, so
// retrying an identical ping is safe.
func (r *Repository) WriteAtomic(ctx context.Context, ws *models.WriteSet) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository.WriteAtomic: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	p := ws.Ping
	_, err = tx.Exec(ctx, `
		INSERT INTO location_pings
			(id, agent_id, session_id, task_id, latitude, longitude, altitude, accuracy,
			 speed, bearing, battery_level, signal_strength, accuracy_level, recorded_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (session_id, recorded_at) DO NOTHING`,
		p.ID, p.AgentID, p.SessionID, p.TaskID, p.Latitude, p.Longitude, p.Altitude, p.Accuracy,
		p.Speed, p.Bearing, p.BatteryLevel, p.SignalStrength, p.AccuracyLevel, p.RecordedAt, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("repository.WriteAtomic: ping: %w", err)
	}

	s := ws.Session
	_, err = tx.Exec(ctx, `
		INSERT INTO tracking_sessions
			(id, agent_id, task_id, status, started_at, start_latitude, start_longitude,
			 total_distance, max_speed, average_speed, ping_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, total_distance = EXCLUDED.total_distance,
		    max_speed = EXCLUDED.max_speed, average_speed = EXCLUDED.average_speed,
		    ping_count = EXCLUDED.ping_count, updated_at = EXCLUDED.updated_at`,
		s.ID, s.AgentID, s.TaskID, s.Status, s.StartedAt, s.StartLatitude, s.StartLongitude,
		s.TotalDistance, s.MaxSpeed, s.AverageSpeed, s.PingCount, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("repository.WriteAtomic: session: %w", err)
	}

	c := ws.CurrentLocation
	_, err = tx.Exec(ctx, `
		INSERT INTO agent_current_locations
			(agent_id, latitude, longitude, accuracy, speed, bearing, battery_level,
			 session_id, task_id, is_tracking, recorded_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (agent_id) DO UPDATE
		SET latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude,
		    accuracy = EXCLUDED.accuracy, speed = EXCLUDED.speed, bearing = EXCLUDED.bearing,
		    battery_level = EXCLUDED.battery_level, session_id = EXCLUDED.session_id,
		    task_id = EXCLUDED.task_id, is_tracking = EXCLUDED.is_tracking,
		    recorded_at = EXCLUDED.recorded_at, updated_at = EXCLUDED.updated_at
		WHERE agent_current_locations.recorded_at <= EXCLUDED.recorded_at`,
		c.AgentID, c.Latitude, c.Longitude, c.Accuracy, c.Speed, c.Bearing, c.BatteryLevel,
		c.SessionID, c.TaskID, c.IsTracking, c.RecordedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("repository.WriteAtomic: current location: %w", err)
	}

	for i := range ws.Events {
		ev := &ws.Events[i]
		_, err = tx.Exec(ctx, `
			INSERT INTO geofence_events
				(id, geofence_id, agent_id, session_id, event_type, latitude, longitude, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			ev.ID, ev.GeofenceID, ev.AgentID, ev.SessionID, ev.Type, ev.Latitude, ev.Longitude, ev.OccurredAt)
		if err != nil {
			return fmt.Errorf("repository.WriteAtomic: geofence event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("repository.WriteAtomic: commit: %w", err)
	}
	return nil
}

// LastGeofenceEvent returns the most recent boundary event for the
// (agent, geofence) pair across all sessions.
func (r *Repository) LastGeofenceEvent(ctx context.Context, agentID, geofenceID string) (*models.GeofenceEvent, error) {
	query := `
		SELECT id, geofence_id, agent_id, session_id, event_type, latitude, longitude, occurred_at
		FROM geofence_events
		WHERE agent_id = $1 AND geofence_id = $2
		ORDER BY occurred_at DESC
		LIMIT 1`

	ev := &models.GeofenceEvent{}
	err := r.db.QueryRow(ctx, query, agentID, geofenceID).Scan(
		&ev.ID, &ev.GeofenceID, &ev.AgentID, &ev.SessionID, &ev.Type, &ev.Latitude, &ev.Longitude, &ev.OccurredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("repository.LastGeofenceEvent: %w", err)
	}
	return ev, nil
}

// ActiveGeofences lists all geofences flagged active.
func (r *Repository) ActiveGeofences(ctx context.Context) ([]models.Geofence, error) {
	query := `
		SELECT id, name, center_latitude, center_longitude, radius_meters, is_active, owner_id, created_at, updated_at
		FROM geofences
		WHERE is_active = TRUE
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("repository.ActiveGeofences: %w", err)
	}
	defer rows.Close()

	var fences []models.Geofence
	for rows.Next() {
		var f models.Geofence
		if err := rows.Scan(&f.ID, &f.Name, &f.CenterLatitude, &f.CenterLongitude, &f.RadiusMeters,
			&f.IsActive, &f.OwnerID, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("repository.ActiveGeofences scan: %w", err)
		}
		fences = append(fences, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository.ActiveGeofences rows: %w", err)
	}
	return fences, nil
}

// CurrentLocation reads the agent's current-location row.
func (r *Repository) CurrentLocation(ctx context.Context, agentID string) (*models.AgentCurrentLocation, error) {
	query := `
		SELECT agent_id, latitude, longitude, accuracy, speed, bearing, battery_level,
		       session_id, task_id, is_tracking, recorded_at, updated_at
		FROM agent_current_locations
		WHERE agent_id = $1`

	c := &models.AgentCurrentLocation{}
	err := r.db.QueryRow(ctx, query, agentID).Scan(
		&c.AgentID, &c.Latitude, &c.Longitude, &c.Accuracy, &c.Speed, &c.Bearing, &c.BatteryLevel,
		&c.SessionID, &c.TaskID, &c.IsTracking, &c.RecordedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("repository.CurrentLocation: %w", err)
	}
	return c, nil
}

// StopTracking clears the is_tracking flag after a session ends.
func (r *Repository) StopTracking(ctx context.Context, agentID string) error {
	query := `UPDATE agent_current_locations SET is_tracking = FALSE, updated_at = NOW() WHERE agent_id = $1`
	if _, err := r.db.Exec(ctx, query, agentID); err != nil {
		return fmt.Errorf("repository.StopTracking: %w", err)
	}
	return nil
}

// AgentStats aggregates session totals and the ping accuracy distribution for
// the agent over [from, to]. Sessions are matched on start time; distance and
// speed come from the session rows the pipeline maintains, not from
// re-walking raw pings.
func (r *Repository) AgentStats(ctx context.Context, agentID string, from, to time.Time) (*models.AgentStats, error) {
	stats := &models.AgentStats{
		AgentID:              agentID,
		From:                 from,
		To:                   to,
		AccuracyDistribution: make(map[models.GpsAccuracyLevel]int),
	}

	sessionQuery := `
		SELECT COALESCE(SUM(total_distance), 0), COALESCE(MAX(max_speed), 0),
		       COALESCE(SUM(ping_count), 0), COUNT(*),
		       COALESCE(SUM(EXTRACT(EPOCH FROM (COALESCE(ended_at, updated_at) - started_at))), 0)
		FROM tracking_sessions
		WHERE agent_id = $1 AND started_at >= $2 AND started_at <= $3`

	var elapsedSeconds float64
	err := r.db.QueryRow(ctx, sessionQuery, agentID, from, to).Scan(
		&stats.TotalDistance, &stats.MaxSpeed, &stats.PingCount, &stats.SessionCount, &elapsedSeconds)
	if err != nil {
		return nil, fmt.Errorf("repository.AgentStats sessions: %w", err)
	}
	stats.AverageSpeed = SpeedKmh(stats.TotalDistance, elapsedSeconds)

	accuracyQuery := `
		SELECT accuracy_level, COUNT(*)
		FROM location_pings
		WHERE agent_id = $1 AND recorded_at >= $2 AND recorded_at <= $3
		GROUP BY accuracy_level`

	rows, err := r.db.Query(ctx, accuracyQuery, agentID, from, to)
	if err != nil {
		return nil, fmt.Errorf("repository.AgentStats accuracy: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var level models.GpsAccuracyLevel
		var count int
		if err := rows.Scan(&level, &count); err != nil {
			return nil, fmt.Errorf("repository.AgentStats scan: %w", err)
		}
		stats.AccuracyDistribution[level] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository.AgentStats rows: %w", err)
	}
	return stats, nil
}

// scanSession scans a session row, mapping pgx.ErrNoRows to ErrNotFound.
func (r *Repository) scanSession(row pgx.Row) (*models.TrackingSession, error) {
	s := &models.TrackingSession{}
	err := row.Scan(
		&s.ID, &s.AgentID, &s.TaskID, &s.Status, &s.StartedAt, &s.StartLatitude, &s.StartLongitude,
		&s.EndedAt, &s.EndLatitude, &s.EndLongitude, &s.TotalDistance, &s.MaxSpeed, &s.AverageSpeed,
		&s.PingCount, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	return s, nil
}

// scanPing scans a ping row, mapping pgx.ErrNoRows to ErrNotFound.
func (r *Repository) scanPing(row pgx.Row) (*models.LocationPing, error) {
	p := &models.LocationPing{}
	err := row.Scan(
		&p.ID, &p.AgentID, &p.SessionID, &p.TaskID, &p.Latitude, &p.Longitude, &p.Altitude,
		&p.Accuracy, &p.Speed, &p.Bearing, &p.BatteryLevel, &p.SignalStrength, &p.AccuracyLevel,
		&p.RecordedAt, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan ping: %w", err)
	}
	return p, nil
}
