package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/meshgate/pkg/conversation"
	"github.com/codeready-toolchain/meshgate/pkg/errs"
)

// listSessionsHandler handles GET /sessions?pageNumber&pageSize&project_id.
func (s *Server) listSessionsHandler(c *echo.Context) error {
	pageNumber, pageSize, err := parsePage(c)
	if err != nil {
		return writeError(c, err)
	}
	projectID := strPtr(c.QueryParam("project_id"))

	page, projectNames, err := s.conv.GetUserSessions(c.Request().Context(), extractAuthor(c), pageNumber, pageSize, projectID)
	if err != nil {
		return writeError(c, err)
	}

	envelope := newPageEnvelope(page)
	return c.JSON(http.StatusOK, map[string]any{
		"data":         envelope.Data,
		"meta":         envelope.Meta,
		"projectNames": projectNames,
	})
}

// searchSessionsHandler handles GET /sessions/search?query&projectId&pageNumber&pageSize.
func (s *Server) searchSessionsHandler(c *echo.Context) error {
	query := c.QueryParam("query")
	pageNumber, pageSize, err := parsePage(c)
	if err != nil {
		return writeError(c, err)
	}

	page, err := s.conv.SearchSessions(c.Request().Context(), extractAuthor(c), query, pageNumber, pageSize)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, newPageEnvelope(page))
}

// getSessionHandler handles GET /sessions/{id}.
func (s *Server) getSessionHandler(c *echo.Context) error {
	sess, err := s.conv.GetSession(c.Request().Context(), extractAuthor(c), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, sess)
}

type updateSessionRequest struct {
	Name *string `json:"name"`
}

// updateSessionHandler handles PATCH /sessions/{id}.
func (s *Server) updateSessionHandler(c *echo.Context) error {
	var req updateSessionRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, errs.Wrap(errs.BadRequest, "invalid request body", err))
	}
	if req.Name == nil {
		return writeError(c, errs.New(errs.BadRequest, "name is required"))
	}

	id := c.Param("id")
	user := extractAuthor(c)
	if err := s.conv.UpdateSessionName(c.Request().Context(), user, id, *req.Name); err != nil {
		return writeError(c, err)
	}
	sess, err := s.conv.GetSession(c.Request().Context(), user, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, sess)
}

// deleteSessionHandler handles DELETE /sessions/{id}.
func (s *Server) deleteSessionHandler(c *echo.Context) error {
	if err := s.conv.SoftDeleteSession(c.Request().Context(), extractAuthor(c), c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type moveSessionProjectRequest struct {
	ProjectID *string `json:"projectId"`
}

// moveSessionProjectHandler handles PATCH /sessions/{id}/project.
func (s *Server) moveSessionProjectHandler(c *echo.Context) error {
	var req moveSessionProjectRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, errs.Wrap(errs.BadRequest, "invalid request body", err))
	}
	if err := s.conv.MoveSessionToProject(c.Request().Context(), extractAuthor(c), c.Param("id"), req.ProjectID); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type upsertChatTaskRequest struct {
	TaskID         string  `json:"taskId"`
	UserMessage    *string `json:"userMessage"`
	MessageBubbles string  `json:"messageBubbles"`
	TaskMetadata   string  `json:"taskMetadata"`
}

// upsertChatTaskHandler handles POST /sessions/{id}/chat-tasks.
func (s *Server) upsertChatTaskHandler(c *echo.Context) error {
	var req upsertChatTaskRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, errs.Wrap(errs.BadRequest, "invalid request body", err))
	}
	if req.TaskID == "" {
		return writeError(c, errs.New(errs.BadRequest, "taskId is required"))
	}

	task, err := s.conv.SaveTask(c.Request().Context(), req.TaskID, c.Param("id"), extractAuthor(c),
		req.UserMessage, req.MessageBubbles, req.TaskMetadata)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, task)
}

// listChatTasksHandler handles GET /sessions/{id}/chat-tasks.
func (s *Server) listChatTasksHandler(c *echo.Context) error {
	sessionID := c.Param("id")
	if _, err := s.conv.GetSession(c.Request().Context(), extractAuthor(c), sessionID); err != nil {
		return writeError(c, err)
	}
	tasks, err := s.conv.GetSessionTasks(c.Request().Context(), sessionID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"data": tasks})
}

// sessionMessagesHandler handles GET /sessions/{id}/messages (flattened legacy view).
func (s *Server) sessionMessagesHandler(c *echo.Context) error {
	sessionID := c.Param("id")
	if _, err := s.conv.GetSession(c.Request().Context(), extractAuthor(c), sessionID); err != nil {
		return writeError(c, err)
	}
	messages, err := s.conv.GetSessionMessagesFromTasks(c.Request().Context(), sessionID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"data": messages})
}

type compressAndBranchRequest struct {
	AgentID     *string `json:"agentId"`
	Name        *string `json:"name"`
	LLMProvider string  `json:"llmProvider"`
	LLMModel    string  `json:"llmModel"`
}

// compressAndBranchHandler handles POST /sessions/{id}/compress-and-branch
// (spec §4.5, §4.9).
func (s *Server) compressAndBranchHandler(c *echo.Context) error {
	var req compressAndBranchRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, errs.Wrap(errs.BadRequest, "invalid request body", err))
	}

	result, err := s.conv.CompressAndBranchSession(c.Request().Context(), extractAuthor(c), c.Param("id"),
		conversation.CompressionOptions{
			AgentID:     req.AgentID,
			BranchName:  req.Name,
			LLMProvider: req.LLMProvider,
			LLMModel:    req.LLMModel,
		}, s.compression, s.cfg.Conversation)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"session":                result.NewSession,
		"summaryTask":            result.SummaryTask,
		"compressedMessageCount": result.CompressedMessageCount,
	})
}
