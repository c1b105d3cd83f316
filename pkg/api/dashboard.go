package api

import (
	"context"
	"encoding/json"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/meshgate/pkg/events"
)

// dashboardWSHandler handles GET /ws (flag-gated, off by default). It attaches
// the client to a teacher-style ConnectionManager channel subscription model,
// for internal operational tooling (spec §6.1 addendum). The only events
// published to the dashboard channel are scheduler leadership changes
// (BroadcastSchedulerStatus); SSE task status/final events are not mirrored.
// Catchup-on-reconnect is not wired for this channel: it exists purely as a
// live tail, and a client that needs guaranteed delivery should use
// GET /sse/subscribe/{taskId} instead.
func (s *Server) dashboardWSHandler(c *echo.Context) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		OriginPatterns: s.allowedWSOrigins(),
	})
	if err != nil {
		return err
	}
	s.dashboard.HandleConnection(c.Request().Context(), conn)
	return nil
}

func (s *Server) allowedWSOrigins() []string {
	if s.cfg.Server != nil {
		return s.cfg.Server.AllowedWSOrigins
	}
	return nil
}

// BroadcastSchedulerStatus mirrors a scheduler leadership transition onto the
// dashboard channel. Called by the scheduler engine's status callback.
func (s *Server) BroadcastSchedulerStatus(ctx context.Context, status any) {
	if s.dashboard == nil {
		return
	}
	s.broadcastDashboard(events.EventTypeSchedulerStatus, status)
}

// broadcastDashboard JSON-encodes an SSE-equivalent event and publishes it to
// the dashboard channel's subscribers.
func (s *Server) broadcastDashboard(eventType string, payload any) {
	if s.dashboard == nil {
		return
	}
	body, err := json.Marshal(map[string]any{
		"type": eventType,
		"data": payload,
	})
	if err != nil {
		return
	}
	s.dashboard.Broadcast(events.DashboardChannel, body)
}
