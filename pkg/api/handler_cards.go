package api

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/meshgate/pkg/errs"
	"github.com/codeready-toolchain/meshgate/pkg/model"
)

// callerScopes reads the oauth2-proxy group header (spec §6.1 "Scope-gated
// endpoints"). There is no separate scope/entitlement store in this gateway;
// the proxy's group claims are treated as the caller's scopes directly.
func callerScopes(c *echo.Context) map[string]bool {
	raw := c.Request().Header.Get("X-Forwarded-Groups")
	out := make(map[string]bool)
	for _, g := range strings.Split(raw, ",") {
		g = strings.TrimSpace(g)
		if g != "" {
			out[g] = true
		}
	}
	return out
}

func hasScopes(granted map[string]bool, required []string) bool {
	for _, r := range required {
		if !granted[r] {
			return false
		}
	}
	return true
}

// filterToolsByScope returns a copy of the card whose Capabilities carry an
// "allowedTools" list naming only the tools whose required scopes the caller
// holds; the card itself stays visible (spec §6.1 "Filtered by... per-tool
// required scopes" — the card is filtered, not hidden). Extensions.Tools is
// left as it is; it is not serialized.
func filterToolsByScope(card model.AgentCard, granted map[string]bool) model.AgentCard {
	if len(card.Extensions.Tools) == 0 {
		return card
	}
	var allowed []string
	for _, t := range card.Extensions.Tools {
		if hasScopes(granted, t.RequiredScopes) {
			allowed = append(allowed, t.Name)
		}
	}
	filtered := card
	filtered.Capabilities = make(map[string]any, len(card.Capabilities))
	for k, v := range card.Capabilities {
		filtered.Capabilities[k] = v
	}
	filtered.Capabilities["allowedTools"] = allowed
	return filtered
}

// agentCardsHandler handles GET /agentCards.
func (s *Server) agentCardsHandler(c *echo.Context) error {
	granted := callerScopes(c)
	cards := s.agents.List()
	out := make([]model.AgentCard, 0, len(cards))
	for _, card := range cards {
		out = append(out, filterToolsByScope(card, granted))
	}
	return c.JSON(http.StatusOK, map[string]any{"data": out})
}

// agentModelHandler handles GET /agents/{name}/model.
func (s *Server) agentModelHandler(c *echo.Context) error {
	name := c.Param("name")
	card, ok := s.agents.Get(name)
	if !ok {
		return writeError(c, errs.New(errs.NotFound, "agent not found"))
	}
	model, _ := card.Metadata["model"].(string)
	return c.JSON(http.StatusOK, map[string]any{"agentName": name, "model": model})
}

// gatewayCardsHandler handles GET /gatewayCards.
func (s *Server) gatewayCardsHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"data": s.gateways.List()})
}

// gatewaysHealthHandler handles GET /gateways/health.
func (s *Server) gatewaysHealthHandler(c *echo.Context) error {
	cards := s.gateways.List()
	out := make([]map[string]any, 0, len(cards))
	for _, card := range cards {
		expired, since, _ := s.gateways.Health(card.Name)
		out = append(out, map[string]any{
			"name":                 card.Name,
			"expired":              expired,
			"secondsSinceLastSeen": since,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"data": out})
}

// gatewayHealthHandler handles GET /gateways/{id}/health.
func (s *Server) gatewayHealthHandler(c *echo.Context) error {
	name := c.Param("id")
	expired, since, ok := s.gateways.Health(name)
	if !ok {
		return writeError(c, errs.New(errs.NotFound, "gateway not found"))
	}
	return c.JSON(http.StatusOK, map[string]any{
		"name":                 name,
		"expired":              expired,
		"secondsSinceLastSeen": since,
	})
}
