package geofences

import (
	"net/http"

	"agent-tracking/internal/models"
	"agent-tracking/pkg/utils"

	"github.com/labstack/echo/v4"
)

// Handler handles HTTP requests for geofence administration.
type Handler struct {
	svc ServiceInterface
}

// NewHandler creates a new geofence handler.
func NewHandler(svc ServiceInterface) *Handler {
	return &Handler{svc: svc}
}

// CreateGeofence handles POST /tracking/geofences (admin only).
func (h *Handler) CreateGeofence(c echo.Context) error {
	userID, _, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	var req models.CreateGeofenceRequest
	if err := c.Bind(&req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := utils.GetValidator().Validate(req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, err.Error())
	}

	fence, err := h.svc.Create(c.Request().Context(), userID, req)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}

	return utils.RespondWithJSON(c, http.StatusCreated, fence)
}

// GetGeofence handles GET /tracking/geofences/:geofenceId.
func (h *Handler) GetGeofence(c echo.Context) error {
	fence, err := h.svc.Get(c.Request().Context(), c.Param("geofenceId"))
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, fence)
}

// ListGeofences handles GET /tracking/geofences.
func (h *Handler) ListGeofences(c echo.Context) error {
	page, limit := utils.GetPageLimit(c)
	fences, total, err := h.svc.List(c.Request().Context(), page, limit)
	if err != nil {
		return utils.RespondWithError(c, http.StatusInternalServerError, "Failed to list geofences")
	}
	return utils.RespondWithJSON(c, http.StatusOK, map[string]interface{}{"geofences": fences, "total": total})
}

// UpdateGeofence handles PUT /tracking/geofences/:geofenceId (admin only).
func (h *Handler) UpdateGeofence(c echo.Context) error {
	var req models.UpdateGeofenceRequest
	if err := c.Bind(&req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := utils.GetValidator().Validate(req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, err.Error())
	}

	fence, err := h.svc.Update(c.Request().Context(), c.Param("geofenceId"), req)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}

	return utils.RespondWithJSON(c, http.StatusOK, fence)
}

// DeleteGeofence handles DELETE /tracking/geofences/:geofenceId (admin only).
// Geofences are deactivated rather than removed so the event log stays
// consistent.
func (h *Handler) DeleteGeofence(c echo.Context) error {
	if err := h.svc.Deactivate(c.Request().Context(), c.Param("geofenceId")); err != nil {
		return utils.HandleServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
