package geofences

import (
	"context"
	"fmt"
	"log"
	"time"

	"agent-tracking/internal/models"

	"github.com/google/uuid"
)

// RegistryRefresher lets the admin service push geofence changes into the
// tracking core's in-memory registry without waiting for the next periodic
// refresh.
type RegistryRefresher interface {
	Refresh(ctx context.Context) error
}

// ServiceInterface defines business logic for geofence administration.
type ServiceInterface interface {
	Create(ctx context.Context, ownerID string, req models.CreateGeofenceRequest) (*models.Geofence, error)
	Get(ctx context.Context, geofenceID string) (*models.Geofence, error)
	List(ctx context.Context, page, limit int) ([]*models.Geofence, int, error)
	Update(ctx context.Context, geofenceID string, req models.UpdateGeofenceRequest) (*models.Geofence, error)
	Deactivate(ctx context.Context, geofenceID string) error
}

// Service implements the geofence admin logic.
type Service struct {
	repo     RepositoryInterface
	registry RegistryRefresher
}

// NewService creates a new geofence service.
func NewService(repo RepositoryInterface, registry RegistryRefresher) *Service {
	return &Service{repo: repo, registry: registry}
}

// Create stores a new geofence definition, active immediately.
func (s *Service) Create(ctx context.Context, ownerID string, req models.CreateGeofenceRequest) (*models.Geofence, error) {
	now := time.Now().UTC()
	fence := &models.Geofence{
		ID:              uuid.New().String(),
		Name:            req.Name,
		CenterLatitude:  req.CenterLatitude,
		CenterLongitude: req.CenterLongitude,
		RadiusMeters:    req.RadiusMeters,
		IsActive:        true,
		OwnerID:         ownerID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Create(ctx, fence); err != nil {
		return nil, fmt.Errorf("service.CreateGeofence: %w", err)
	}

	s.refreshRegistry(ctx)
	return fence, nil
}

// Get returns a geofence by id.
func (s *Service) Get(ctx context.Context, geofenceID string) (*models.Geofence, error) {
	return s.repo.FindByID(ctx, geofenceID)
}

// List returns geofences with pagination.
func (s *Service) List(ctx context.Context, page, limit int) ([]*models.Geofence, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.repo.List(ctx, page, limit)
}

// Update modifies a geofence definition.
func (s *Service) Update(ctx context.Context, geofenceID string, req models.UpdateGeofenceRequest) (*models.Geofence, error) {
	fence, err := s.repo.Update(ctx, geofenceID, req)
	if err != nil {
		return nil, fmt.Errorf("service.UpdateGeofence: %w", err)
	}

	s.refreshRegistry(ctx)
	return fence, nil
}

// Deactivate takes a geofence out of evaluation without deleting its history.
func (s *Service) Deactivate(ctx context.Context, geofenceID string) error {
	if err := s.repo.Deactivate(ctx, geofenceID); err != nil {
		return fmt.Errorf("service.DeactivateGeofence: %w", err)
	}

	s.refreshRegistry(ctx)
	return nil
}

// refreshRegistry nudges the tracking registry after a mutation. A failed
// refresh is only logged: the periodic refresh will pick the change up.
func (s *Service) refreshRegistry(ctx context.Context) {
	if s.registry == nil {
		return
	}
	if err := s.registry.Refresh(ctx); err != nil {
		log.Printf("WARN: geofence registry refresh after mutation failed: %v", err)
	}
}
