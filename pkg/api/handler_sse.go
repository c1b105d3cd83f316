package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/meshgate/pkg/sse"
)

// sseSubscribeHandler handles GET /sse/subscribe/{taskId}?reconnect&last_event_timestamp
// (spec §4.2, §4.3, §6.2): a long-lived stream of status_update/artifact_update/
// final_response/error frames. The DB connection used to look up the task (if
// any) must be released before the first event is yielded (spec §5 "Shared
// resources" connection policy) — this handler does no DB I/O of its own.
func (s *Server) sseSubscribeHandler(c *echo.Context) error {
	taskID := c.Param("taskId")
	if taskID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "taskId is required")
	}

	resp := c.Response()
	resp.Header().Set("Content-Type", "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	// Leading SSE comment: opens the stream before any event is known to
	// exist and doubles as a keepalive (spec §8 scenario 1).
	if _, err := resp.Write([]byte(": connected\n\n")); err != nil {
		return nil
	}
	resp.Flush()

	consumer, backlog := s.sseManager.Subscribe(c.Request().Context(), taskID)
	defer s.sseManager.Unsubscribe(taskID, consumer)

	reconnect := queryBool(c, "reconnect")
	if reconnect {
		backlog = sse.FilterReplay(backlog)
	}
	for _, e := range backlog {
		if _, err := resp.Write(sse.Format(e.Type, e.Data)); err != nil {
			return nil
		}
	}
	resp.Flush()

	clientGone := c.Request().Context().Done()
	for {
		select {
		case <-clientGone:
			return nil
		default:
		}

		frame, closed := consumer.Recv()
		if closed {
			return nil
		}
		if _, err := resp.Write(frame); err != nil {
			return nil
		}
		resp.Flush()
	}
}
