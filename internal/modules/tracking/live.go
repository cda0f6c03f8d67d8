package tracking

import (
	"errors"
	"time"

	"agent-tracking/internal/models"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// upgrader is used to upgrade HTTP connections to WebSocket connections for
// the live position feed.
var upgrader = websocket.Upgrader{}

// liveFeedInterval is how often the feed re-reads the current-location row.
const liveFeedInterval = 3 * time.Second

// HandleLiveTrack upgrades the connection to a WebSocket and streams the
// agent's current location until the client disconnects. Each frame is the
// agent_current_locations row as JSON; frames are only sent when the row has
// advanced in recorded time.
func (h *Handler) HandleLiveTrack(c echo.Context) error {
	agentID := c.Param("agentId")

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Drain the read side so close frames from the client are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(liveFeedInterval)
	defer ticker.Stop()

	var lastSent time.Time
	for {
		select {
		case <-done:
			return nil
		case <-c.Request().Context().Done():
			return nil
		case <-ticker.C:
			location, err := h.svc.CurrentLocation(c.Request().Context(), agentID)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					continue // no position yet, keep waiting
				}
				return err
			}
			if !location.RecordedAt.After(lastSent) {
				continue
			}
			if err := conn.WriteJSON(location); err != nil {
				return nil // client went away
			}
			lastSent = location.RecordedAt
		}
	}
}
