package handler

import (
	"encoding/json"
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/attendhq/attendance-api/pkg/events"
)

// EventsHandler streams mutation events to admin views over SSE. Clients
// treat the stream as best-effort and keep their polling fallback.
type EventsHandler struct {
	bus       *events.Bus
	heartbeat time.Duration
}

// NewEventsHandler constructs EventsHandler.
func NewEventsHandler(bus *events.Bus, heartbeat time.Duration) *EventsHandler {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &EventsHandler{bus: bus, heartbeat: heartbeat}
}

// Stream handles GET /events.
func (h *EventsHandler) Stream(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ch, cancel := h.bus.Subscribe()
	defer cancel()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-clientGone:
			return false
		case evt, ok := <-ch:
			if !ok {
				return false
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				return true
			}
			c.SSEvent(string(evt.Type), string(payload))
			return true
		case <-ticker.C:
			c.SSEvent("heartbeat", time.Now().UTC().Format(time.RFC3339))
			return true
		}
	})
}
