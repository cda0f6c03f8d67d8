package geofences

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"agent-tracking/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryInterface defines the contract for the geofence admin repository.
type RepositoryInterface interface {
	Create(ctx context.Context, fence *models.Geofence) error
	FindByID(ctx context.Context, geofenceID string) (*models.Geofence, error)
	List(ctx context.Context, page, limit int) ([]*models.Geofence, int, error)
	Update(ctx context.Context, geofenceID string, req models.UpdateGeofenceRequest) (*models.Geofence, error)
	Deactivate(ctx context.Context, geofenceID string) error
}

// Repository implements the RepositoryInterface.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new geofence repository.
func NewRepository(db *pgxpool.Pool) RepositoryInterface {
	return &Repository{db: db}
}

const geofenceColumns = `id, name, center_latitude, center_longitude, radius_meters, is_active, owner_id, created_at, updated_at`

// Create inserts a new geofence definition.
func (r *Repository) Create(ctx context.Context, f *models.Geofence) error {
	query := `
		INSERT INTO geofences (id, name, center_latitude, center_longitude, radius_meters, is_active, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Exec(ctx, query,
		f.ID, f.Name, f.CenterLatitude, f.CenterLongitude, f.RadiusMeters, f.IsActive, f.OwnerID, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("repository.CreateGeofence: %w", err)
	}
	return nil
}

// FindByID retrieves a single geofence by its ID.
func (r *Repository) FindByID(ctx context.Context, geofenceID string) (*models.Geofence, error) {
	query := `SELECT ` + geofenceColumns + ` FROM geofences WHERE id = $1`
	fence, err := r.scanGeofence(r.db.QueryRow(ctx, query, geofenceID))
	if err != nil {
		return nil, fmt.Errorf("repository.FindByID: %w", err)
	}
	return fence, nil
}

// List retrieves geofences with pagination, newest first.
func (r *Repository) List(ctx context.Context, page, limit int) ([]*models.Geofence, int, error) {
	offset := (page - 1) * limit
	query := `
		SELECT ` + geofenceColumns + `
		FROM geofences
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("repository.List.Query: %w", err)
	}
	defer rows.Close()

	var fences []*models.Geofence
	for rows.Next() {
		fence, err := r.scanGeofence(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("repository.List.Scan: %w", err)
		}
		fences = append(fences, fence)
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM geofences").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repository.List.Count: %w", err)
	}
	return fences, total, nil
}

// Update modifies an existing geofence definition.
func (r *Repository) Update(ctx context.Context, geofenceID string, req models.UpdateGeofenceRequest) (*models.Geofence, error) {
	var setClauses []string
	var args []interface{}
	argIdx := 1

	if req.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", argIdx))
		args = append(args, *req.Name)
		argIdx++
	}
	if req.CenterLatitude != nil {
		setClauses = append(setClauses, fmt.Sprintf("center_latitude = $%d", argIdx))
		args = append(args, *req.CenterLatitude)
		argIdx++
	}
	if req.CenterLongitude != nil {
		setClauses = append(setClauses, fmt.Sprintf("center_longitude = $%d", argIdx))
		args = append(args, *req.CenterLongitude)
		argIdx++
	}
	if req.RadiusMeters != nil {
		setClauses = append(setClauses, fmt.Sprintf("radius_meters = $%d", argIdx))
		args = append(args, *req.RadiusMeters)
		argIdx++
	}
	if req.IsActive != nil {
		setClauses = append(setClauses, fmt.Sprintf("is_active = $%d", argIdx))
		args = append(args, *req.IsActive)
		argIdx++
	}

	if len(setClauses) == 0 {
		return r.FindByID(ctx, geofenceID)
	}

	setClauses = append(setClauses, fmt.Sprintf("updated_at = $%d", argIdx))
	args = append(args, time.Now().UTC())
	argIdx++

	args = append(args, geofenceID) // For the WHERE clause

	query := fmt.Sprintf(`
		UPDATE geofences SET %s
		WHERE id = $%d
		RETURNING `+geofenceColumns,
		strings.Join(setClauses, ", "), argIdx)

	fence, err := r.scanGeofence(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("repository.Update: %w", err)
	}
	return fence, nil
}

// Deactivate flags a geofence inactive so the evaluator stops checking it.
// Definitions are never hard-deleted; the event log references them.
func (r *Repository) Deactivate(ctx context.Context, geofenceID string) error {
	query := `UPDATE geofences SET is_active = FALSE, updated_at = NOW() WHERE id = $1`

	cmdTag, err := r.db.Exec(ctx, query, geofenceID)
	if err != nil {
		return fmt.Errorf("repository.Deactivate: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// scanGeofence is a helper to scan a row into a Geofence model.
func (r *Repository) scanGeofence(row pgx.Row) (*models.Geofence, error) {
	var f models.Geofence
	err := row.Scan(&f.ID, &f.Name, &f.CenterLatitude, &f.CenterLongitude, &f.RadiusMeters,
		&f.IsActive, &f.OwnerID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan geofence: %w", err)
	}
	return &f, nil
}
