package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// schedulerStatusHandler handles GET /scheduler/status (spec §4.7 "Leader
// election").
func (s *Server) schedulerStatusHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.sched.Status())
}
