package tracking

import (
	"net/http"

	"agent-tracking/internal/models"
	"agent-tracking/pkg/utils"

	"github.com/labstack/echo/v4"
)

// Handler handles HTTP requests for the tracking ingestion API.
type Handler struct {
	svc ServiceInterface
}

// NewHandler creates a new tracking handler.
func NewHandler(svc ServiceInterface) *Handler {
	return &Handler{svc: svc}
}

// ReportLocation handles POST /tracking/locations.
func (h *Handler) ReportLocation(c echo.Context) error {
	var req models.LocationPingRequest
	if err := c.Bind(&req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := utils.GetValidator().Validate(req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, err.Error())
	}

	ping, err := h.svc.Update(c.Request().Context(), req)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}

	return utils.RespondWithJSON(c, http.StatusCreated, ping)
}

// ReportLocationBatch handles POST /tracking/locations/batch. The batch is
// rejected as a whole if any ping fails validation; the stored pings come
// back in chronological order.
func (h *Handler) ReportLocationBatch(c echo.Context) error {
	var req models.BatchLocationRequest
	if err := c.Bind(&req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := utils.GetValidator().Validate(req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, err.Error())
	}

	pings, err := h.svc.UpdateBatch(c.Request().Context(), req)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}

	return utils.RespondWithJSON(c, http.StatusCreated, map[string]interface{}{
		"pings": pings,
		"count": len(pings),
	})
}

// StartSession handles POST /tracking/sessions/start.
func (h *Handler) StartSession(c echo.Context) error {
	var req models.StartSessionRequest
	if err := c.Bind(&req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := utils.GetValidator().Validate(req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, err.Error())
	}

	session, err := h.svc.StartSession(c.Request().Context(), req)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}

	return utils.RespondWithJSON(c, http.StatusCreated, session)
}

// EndSession handles POST /tracking/sessions/:sessionId/end.
func (h *Handler) EndSession(c echo.Context) error {
	sessionID := c.Param("sessionId")
	if sessionID == "" {
		return utils.RespondWithError(c, http.StatusBadRequest, "Missing session ID")
	}

	var req models.EndSessionRequest
	if err := c.Bind(&req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := utils.GetValidator().Validate(req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, err.Error())
	}

	session, err := h.svc.EndSession(c.Request().Context(), sessionID, req)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}

	return utils.RespondWithJSON(c, http.StatusOK, session)
}

// GetSession handles GET /tracking/sessions/:sessionId.
func (h *Handler) GetSession(c echo.Context) error {
	session, err := h.svc.GetSession(c.Request().Context(), c.Param("sessionId"))
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, session)
}

// GetCurrentLocation handles GET /tracking/agents/:agentId/location.
func (h *Handler) GetCurrentLocation(c echo.Context) error {
	location, err := h.svc.CurrentLocation(c.Request().Context(), c.Param("agentId"))
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, location)
}

// GetAgentStats handles GET /tracking/stats/:agentId?from&to.
func (h *Handler) GetAgentStats(c echo.Context) error {
	from, to, err := utils.GetTimeRange(c)
	if err != nil {
		return err
	}

	stats, err := h.svc.AgentStats(c.Request().Context(), c.Param("agentId"), from, to)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, stats)
}
