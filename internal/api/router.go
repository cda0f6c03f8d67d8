package api

import (
	"net/http"

	"agent-tracking/internal/api/middleware"
	"agent-tracking/internal/modules/geofences"
	"agent-tracking/internal/modules/tracking"

	"github.com/labstack/echo/v4"
)

// SetupRoutes sets up all the API endpoints for the application.
func SetupRoutes(
	e *echo.Echo,
	trackingHandler *tracking.Handler,
	geofenceHandler *geofences.Handler,
	jwtSecret string,
) {
	// Initialize the JWT authentication middleware
	authMiddleware := middleware.JWTMAuth(jwtSecret)
	// Initialize an Admin role authorization middleware
	adminRequired := middleware.AdminRequired()

	// --- Public Routes ---
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"message": "Agent Tracking Service"})
	})
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// --- Tracking Ingestion & Query Routes ---
	trackingGroup := e.Group("/tracking", authMiddleware)
	{
		trackingGroup.POST("/locations", trackingHandler.ReportLocation)
		trackingGroup.POST("/locations/batch", trackingHandler.ReportLocationBatch)

		trackingGroup.POST("/sessions/start", trackingHandler.StartSession)
		trackingGroup.POST("/sessions/:sessionId/end", trackingHandler.EndSession)
		trackingGroup.GET("/sessions/:sessionId", trackingHandler.GetSession)

		trackingGroup.GET("/agents/:agentId/location", trackingHandler.GetCurrentLocation)
		trackingGroup.GET("/stats/:agentId", trackingHandler.GetAgentStats)

		// Geofence definitions: reads for any authenticated caller,
		// mutations admin-only.
		trackingGroup.GET("/geofences", geofenceHandler.ListGeofences)
		trackingGroup.GET("/geofences/:geofenceId", geofenceHandler.GetGeofence)
		trackingGroup.POST("/geofences", geofenceHandler.CreateGeofence, adminRequired)
		trackingGroup.PUT("/geofences/:geofenceId", geofenceHandler.UpdateGeofence, adminRequired)
		trackingGroup.DELETE("/geofences/:geofenceId", geofenceHandler.DeleteGeofence, adminRequired)
	}

	// --- Live Tracking (WebSocket) ---
	e.GET("/ws/agents/:agentId/track", trackingHandler.HandleLiveTrack, authMiddleware)
}
