package api

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/google/uuid"

	"github.com/codeready-toolchain/meshgate/pkg/assistant"
	"github.com/codeready-toolchain/meshgate/pkg/errs"
	"github.com/codeready-toolchain/meshgate/pkg/model"
	"github.com/codeready-toolchain/meshgate/pkg/scheduler"
)

type scheduledTaskRequest struct {
	Name               string                     `json:"name"`
	ScheduleType       model.ScheduleType         `json:"scheduleType"`
	ScheduleExpression string                     `json:"scheduleExpression"`
	Timezone           string                     `json:"timezone"`
	TargetAgentName    string                     `json:"targetAgentName"`
	TaskMessage        []model.MessagePart        `json:"taskMessage"`
	TaskMetadata       map[string]any             `json:"taskMetadata"`
	Enabled            *bool                      `json:"enabled"`
	MaxRetries         int                        `json:"maxRetries"`
	RetryDelaySeconds  int                        `json:"retryDelaySeconds"`
	TimeoutSeconds     int                        `json:"timeoutSeconds"`
	NotificationConfig *model.NotificationConfig  `json:"notificationConfig"`
}

// createScheduledTaskHandler handles POST /scheduled-tasks.
func (s *Server) createScheduledTaskHandler(c *echo.Context) error {
	var req scheduledTaskRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, errs.Wrap(errs.BadRequest, "invalid request body", err))
	}
	if req.Name == "" || req.TargetAgentName == "" || req.ScheduleExpression == "" {
		return writeError(c, errs.New(errs.BadRequest, "name, targetAgentName and scheduleExpression are required"))
	}

	user := extractAuthor(c)
	now := time.Now().UnixMilli()
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	timezone := req.Timezone
	if timezone == "" {
		timezone = "UTC"
	}

	t := &model.ScheduledTask{
		ID:                 uuid.New().String(),
		Name:               req.Name,
		Namespace:          namespaceOf(c),
		UserID:             &user,
		CreatedBy:          user,
		ScheduleType:       req.ScheduleType,
		ScheduleExpression: req.ScheduleExpression,
		Timezone:           timezone,
		TargetAgentName:    req.TargetAgentName,
		TaskMessage:        req.TaskMessage,
		TaskMetadata:       req.TaskMetadata,
		Enabled:            enabled,
		MaxRetries:         req.MaxRetries,
		RetryDelaySeconds:  req.RetryDelaySeconds,
		TimeoutSeconds:     req.TimeoutSeconds,
		NotificationConfig: req.NotificationConfig,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	next, err := scheduler.NextRun(t, time.Now())
	if err != nil {
		return writeError(c, err)
	}
	t.NextRunAt = next

	if err := s.schedTasks.Create(c.Request().Context(), t); err != nil {
		return writeError(c, errs.Wrap(errs.Internal, "store scheduled task", err))
	}
	return c.JSON(http.StatusCreated, t)
}

// namespaceOf reads the caller-scoped namespace for a scheduled task
// (spec §3 "ScheduledTask... namespace"); there is no per-tenant
// namespace config in this gateway, so the caller supplies it explicitly.
func namespaceOf(c *echo.Context) string {
	if ns := c.QueryParam("namespace"); ns != "" {
		return ns
	}
	if ns := c.FormValue("namespace"); ns != "" {
		return ns
	}
	return "default"
}

// listScheduledTasksHandler handles GET /scheduled-tasks?namespace.
func (s *Server) listScheduledTasksHandler(c *echo.Context) error {
	tasks, err := s.schedTasks.ListByNamespace(c.Request().Context(), namespaceOf(c))
	if err != nil {
		return writeError(c, errs.Wrap(errs.Internal, "list scheduled tasks", err))
	}
	return c.JSON(http.StatusOK, map[string]any{"data": tasks})
}

// getScheduledTaskHandler handles GET /scheduled-tasks/{id}.
func (s *Server) getScheduledTaskHandler(c *echo.Context) error {
	t, err := s.schedTasks.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

// updateScheduledTaskHandler handles PATCH /scheduled-tasks/{id}. Only the
// trigger-defining fields are mutable; recomputing nextRunAt on every
// update keeps the stored schedule always in sync with its expression.
func (s *Server) updateScheduledTaskHandler(c *echo.Context) error {
	var req scheduledTaskRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, errs.Wrap(errs.BadRequest, "invalid request body", err))
	}

	id := c.Param("id")
	existing, err := s.schedTasks.Get(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}

	if req.Name != "" {
		existing.Name = req.Name
	}
	if req.ScheduleType != "" {
		existing.ScheduleType = req.ScheduleType
	}
	if req.ScheduleExpression != "" {
		existing.ScheduleExpression = req.ScheduleExpression
	}
	if req.Timezone != "" {
		existing.Timezone = req.Timezone
	}
	if req.TargetAgentName != "" {
		existing.TargetAgentName = req.TargetAgentName
	}
	if req.TaskMessage != nil {
		existing.TaskMessage = req.TaskMessage
	}
	if req.TaskMetadata != nil {
		existing.TaskMetadata = req.TaskMetadata
	}
	if req.NotificationConfig != nil {
		existing.NotificationConfig = req.NotificationConfig
	}
	existing.MaxRetries = req.MaxRetries
	existing.RetryDelaySeconds = req.RetryDelaySeconds
	existing.TimeoutSeconds = req.TimeoutSeconds

	next, err := scheduler.NextRun(existing, time.Now())
	if err != nil {
		return writeError(c, err)
	}

	var lastRunAt int64
	if existing.LastRunAt != nil {
		lastRunAt = *existing.LastRunAt
	}
	now := time.Now().UnixMilli()
	if err := s.schedTasks.UpdateRunTimes(c.Request().Context(), id, lastRunAt, next); err != nil {
		return writeError(c, err)
	}
	existing.UpdatedAt = now
	existing.NextRunAt = next
	return c.JSON(http.StatusOK, existing)
}

// deleteScheduledTaskHandler handles DELETE /scheduled-tasks/{id}.
func (s *Server) deleteScheduledTaskHandler(c *echo.Context) error {
	if err := s.schedTasks.SoftDelete(c.Request().Context(), c.Param("id"), time.Now().UnixMilli()); err != nil {
		return writeError(c, errs.Wrap(errs.Internal, "delete scheduled task", err))
	}
	return c.NoContent(http.StatusNoContent)
}

// enableScheduledTaskHandler handles POST /scheduled-tasks/{id}/enable.
func (s *Server) enableScheduledTaskHandler(c *echo.Context) error {
	return s.setScheduledTaskEnabled(c, true)
}

// disableScheduledTaskHandler handles POST /scheduled-tasks/{id}/disable.
func (s *Server) disableScheduledTaskHandler(c *echo.Context) error {
	return s.setScheduledTaskEnabled(c, false)
}

func (s *Server) setScheduledTaskEnabled(c *echo.Context, enabled bool) error {
	id := c.Param("id")
	if err := s.schedTasks.SetEnabled(c.Request().Context(), id, enabled, time.Now().UnixMilli()); err != nil {
		return writeError(c, errs.Wrap(errs.Internal, "update scheduled task enabled state", err))
	}
	t, err := s.schedTasks.Get(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

// listExecutionsHandler handles GET /scheduled-tasks/{id}/executions.
func (s *Server) listExecutionsHandler(c *echo.Context) error {
	if _, err := s.schedTasks.Get(c.Request().Context(), c.Param("id")); err != nil {
		return writeError(c, err)
	}
	cutoff := queryInt64Default(c, "stale_before", 0)
	limit := queryIntDefault(c, "limit", 50)
	executions, err := s.schedExecs.ListStaleRunning(c.Request().Context(), cutoff, limit)
	if err != nil {
		return writeError(c, errs.Wrap(errs.Internal, "list executions", err))
	}
	return c.JSON(http.StatusOK, map[string]any{"data": executions})
}

type taskBuilderChatRequest struct {
	Message         string                          `json:"message"`
	History         []assistantMessage              `json:"history"`
	CurrentTask     assistant.ScheduledTaskUpdates  `json:"currentTask"`
	AvailableAgents []string                        `json:"availableAgents"`
}

type assistantMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// scheduledTaskBuilderChatHandler handles POST /scheduled-tasks/builder/chat
// (spec §4.9 "TaskBuilderAssistant").
func (s *Server) scheduledTaskBuilderChatHandler(c *echo.Context) error {
	var req taskBuilderChatRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, errs.Wrap(errs.BadRequest, "invalid request body", err))
	}

	history := make([]assistant.Message, 0, len(req.History))
	for _, m := range req.History {
		history = append(history, assistant.Message{Role: m.Role, Text: m.Text})
	}

	turn := s.taskBuilder.ProcessMessage(c.Request().Context(), req.Message, history, req.CurrentTask, req.AvailableAgents)
	return c.JSON(http.StatusOK, turn)
}
