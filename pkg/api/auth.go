package api

import (
	echo "github.com/labstack/echo/v5"
)

// devUser is the fixed development identity used when no oauth2-proxy
// header is present (spec §6.1 "With authorization disabled, a fixed
// development user is used").
const devUser = "api-client"

// extractAuthor extracts the caller's identity from oauth2-proxy headers.
// Priority: X-Forwarded-User > X-Forwarded-Email > devUser.
func extractAuthor(c *echo.Context) string {
	if user := c.Request().Header.Get("X-Forwarded-User"); user != "" {
		return user
	}
	if email := c.Request().Header.Get("X-Forwarded-Email"); email != "" {
		return email
	}
	return devUser
}
