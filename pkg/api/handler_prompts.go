package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/meshgate/pkg/assistant"
	"github.com/codeready-toolchain/meshgate/pkg/errs"
)

type promptBuilderChatRequest struct {
	Message          string                           `json:"message"`
	History          []assistantMessage               `json:"history"`
	CurrentTemplate  assistant.PromptTemplateUpdates  `json:"currentTemplate"`
	ExistingCommands []string                         `json:"existingCommands"`
}

// promptBuilderChatHandler handles POST /prompts/builder/chat (spec §4.9
// "PromptBuilderAssistant"). There is no prompt-template persistence layer
// in this gateway (promptLibrary=false in GET /config) — this endpoint is
// the chat loop only, for a caller that stores the result itself.
func (s *Server) promptBuilderChatHandler(c *echo.Context) error {
	var req promptBuilderChatRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, errs.Wrap(errs.BadRequest, "invalid request body", err))
	}

	history := make([]assistant.Message, 0, len(req.History))
	for _, m := range req.History {
		history = append(history, assistant.Message{Role: m.Role, Text: m.Text})
	}

	turn := s.promptBuilder.ProcessMessage(c.Request().Context(), req.Message, history, req.CurrentTemplate, req.ExistingCommands)
	return c.JSON(http.StatusOK, turn)
}

// promptBuilderGreetingHandler handles GET /prompts/builder/greeting.
func (s *Server) promptBuilderGreetingHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.promptBuilder.InitialGreeting())
}
