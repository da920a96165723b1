package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/example/adgen/internal/domain"
)

// streamRunEvents streams a run's events via SSE.
// GET /api/run/:id/events
//
// The stream first replays any retained events for the run (at minimum
// its Started event if still live, or its terminal event if the run has
// already ended), then forwards live events until the run reaches a
// terminal state or the client disconnects.
func (s *Server) streamRunEvents(c echo.Context) error {
	runID := c.Param("id")

	s.runMu.Lock()
	orch := s.current
	known := orch != nil && orch.Run().ID == runID
	if !known && s.lastID == runID {
		known = true
	}
	s.runMu.Unlock()

	if !known {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
	}

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)
	if flusher, ok := c.Response().Writer.(http.Flusher); ok {
		flusher.Flush()
	}

	if orch == nil {
		// The run already ended and is no longer the current run; there is
		// nothing left to replay from a bus that no longer exists.
		return nil
	}

	events, unsubscribe := orch.Events()
	defer unsubscribe()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := s.sendSSEEvent(c, ev); err != nil {
				return err
			}
			if ev.IsTerminal() {
				return nil
			}
		}
	}
}

func (s *Server) sendSSEEvent(c echo.Context, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(c.Response().Writer, "data: %s\n\n", data); err != nil {
		return err
	}
	if flusher, ok := c.Response().Writer.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}
