package api

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/meshgate/pkg/dispatch"
	"github.com/codeready-toolchain/meshgate/pkg/errs"
	"github.com/codeready-toolchain/meshgate/pkg/model"
)

// buildSubmissionParts turns a multipart task submission's message field and
// attached files into A2A message parts: one text part for the message,
// then one data part per file carrying its base64 content and metadata.
func buildSubmissionParts(c *echo.Context, message string) ([]model.MessagePart, error) {
	parts := []model.MessagePart{{Kind: "text", Text: message}}

	form, err := c.MultipartForm()
	if err != nil {
		// No multipart body at all (e.g. a plain form submission) is fine;
		// only a malformed multipart body is an error.
		if errors.Is(err, http.ErrNotMultipart) {
			return parts, nil
		}
		return nil, errs.Wrap(errs.BadRequest, "parse multipart body", err)
	}
	for _, fh := range form.File["files[]"] {
		f, err := fh.Open()
		if err != nil {
			return nil, errs.Wrap(errs.BadRequest, "open uploaded file", err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, errs.Wrap(errs.BadRequest, "read uploaded file", err)
		}
		parts = append(parts, model.MessagePart{
			Kind: "data",
			Data: map[string]any{
				"fileName":    fh.Filename,
				"contentType": fh.Header.Get("Content-Type"),
				"base64":      base64.StdEncoding.EncodeToString(data),
			},
		})
	}
	return parts, nil
}

// tasksSendHandler handles POST /tasks/send (spec §6.1, non-streaming).
func (s *Server) tasksSendHandler(c *echo.Context) error {
	agentName := c.FormValue("agent_name")
	message := c.FormValue("message")
	if agentName == "" || message == "" {
		return writeRPCError(c, "", errs.New(errs.BadRequest, "agent_name and message are required"))
	}

	parts, err := buildSubmissionParts(c, message)
	if err != nil {
		return writeRPCError(c, "", err)
	}

	ctx := c.Request().Context()
	user := extractAuthor(c)

	prepared, err := s.dispatcher.Prepare(ctx, dispatch.SubmissionRequest{
		TargetAgentName: agentName,
		Parts:           parts,
		UserID:          user,
		ClientID:        user,
		SessionID:       c.FormValue("session_id"),
		IsStreaming:     false,
		Background:      queryBool(c, "background"),
	})
	if err != nil {
		return writeRPCError(c, "", err)
	}
	if err := s.dispatcher.Publish(ctx, prepared); err != nil {
		return writeRPCError(c, prepared.TaskID, err)
	}

	result, err := s.dispatcher.Await(ctx, prepared.TaskID)
	if err != nil {
		return writeRPCError(c, prepared.TaskID, err)
	}

	return c.JSON(http.StatusOK, &rpcResult{Result: map[string]any{"taskId": prepared.TaskID, "result": result}})
}

// tasksSubscribeHandler handles POST /tasks/subscribe (spec §6.1, streaming
// submission). The caller is expected to open GET /sse/subscribe/{taskId}
// immediately after receiving taskId.
func (s *Server) tasksSubscribeHandler(c *echo.Context) error {
	agentName := c.FormValue("agent_name")
	message := c.FormValue("message")
	if agentName == "" || message == "" {
		return writeRPCError(c, "", errs.New(errs.BadRequest, "agent_name and message are required"))
	}

	parts, err := buildSubmissionParts(c, message)
	if err != nil {
		return writeRPCError(c, "", err)
	}

	ctx := c.Request().Context()
	user := extractAuthor(c)
	sessionID := c.FormValue("session_id")

	prepared, err := s.dispatcher.Prepare(ctx, dispatch.SubmissionRequest{
		TargetAgentName: agentName,
		Parts:           parts,
		UserID:          user,
		ClientID:        user,
		SessionID:       sessionID,
		IsStreaming:     true,
		Background:      queryBool(c, "background"),
	})
	if err != nil {
		return writeRPCError(c, "", err)
	}
	if err := s.dispatcher.Publish(ctx, prepared); err != nil {
		return writeRPCError(c, prepared.TaskID, err)
	}

	return c.JSON(http.StatusOK, &rpcResult{Result: map[string]any{
		"taskId":    prepared.TaskID,
		"sessionId": sessionID,
	}})
}

// tasksCancelHandler handles POST /tasks/cancel (form: task_id).
func (s *Server) tasksCancelHandler(c *echo.Context) error {
	taskID := c.FormValue("task_id")
	if taskID == "" {
		return writeRPCError(c, "", errs.New(errs.BadRequest, "task_id is required"))
	}

	ctx := c.Request().Context()
	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return writeRPCError(c, taskID, err)
	}

	var agentName string
	if task.AgentName != nil {
		agentName = *task.AgentName
	}
	if err := s.dispatcher.Cancel(ctx, agentName, taskID); err != nil {
		return writeRPCError(c, taskID, errs.Wrap(errs.UpstreamUnavailable, "publish cancel request", err))
	}
	return c.JSON(http.StatusOK, &rpcResult{Result: map[string]any{"taskId": taskID, "cancelled": true}})
}

// taskStatusHandler handles GET /tasks/{id}/status.
func (s *Server) taskStatusHandler(c *echo.Context) error {
	taskID := c.Param("id")
	task, err := s.tasks.Get(c.Request().Context(), taskID)
	if err != nil {
		return writeError(c, err)
	}

	isRunning := task.Status == model.TaskStatusPending || task.Status == model.TaskStatusRunning
	canReconnect := task.BackgroundExecutionEnabled && task.HasBufferedEvents

	return c.JSON(http.StatusOK, map[string]any{
		"task":         task,
		"isRunning":    isRunning,
		"isBackground": task.BackgroundExecutionEnabled,
		"canReconnect": canReconnect,
	})
}

// taskEventsHandler handles GET /tasks/{id}/events?since_timestamp&limit
// (replay for reconnection, spec §6.1).
func (s *Server) taskEventsHandler(c *echo.Context) error {
	taskID := c.Param("id")
	task, err := s.tasks.Get(c.Request().Context(), taskID)
	if err != nil {
		return writeError(c, err)
	}

	limit := queryIntDefault(c, "limit", 200)
	since := queryInt64Default(c, "since_timestamp", 0)

	events, err := s.persistent.GetBufferedEvents(c.Request().Context(), taskID, false)
	if err != nil {
		return writeError(c, err)
	}

	var out []map[string]any
	for _, e := range events {
		if e.CreatedAt < since {
			continue
		}
		out = append(out, map[string]any{
			"type":      e.Type,
			"sequence":  e.Sequence,
			"createdAt": e.CreatedAt,
			"data":      e.Data,
		})
	}
	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
	}

	return c.JSON(http.StatusOK, map[string]any{
		"task":        task,
		"events":      out,
		"totalEvents": len(events),
		"hasMore":     hasMore,
	})
}

// tasksBackgroundActiveHandler handles GET /tasks/background/active?user_id.
func (s *Server) tasksBackgroundActiveHandler(c *echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		userID = extractAuthor(c)
	}
	tasks, err := s.tasks.ListRecoverableOnStartup(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	out := tasks[:0]
	for _, t := range tasks {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return c.JSON(http.StatusOK, map[string]any{"data": out})
}
