package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/meshgate/pkg/version"
)

// configHandler handles GET /config. Feature flags describe what this
// deployment actually has wired, letting the frontend hide UI for
// capabilities that have no backing store (spec §4.9, §9).
func (s *Server) configHandler(c *echo.Context) error {
	promptAIAssisted := s.cfg.LLM != nil && s.cfg.LLM.Enabled

	return c.JSON(http.StatusOK, map[string]any{
		"version": version.Full(),
		"features": map[string]bool{
			"persistence":          true,
			"feedback":             true,
			"promptLibrary":        false,
			"promptAIAssisted":     promptAIAssisted,
			"promptVersionHistory": false,
		},
	})
}
