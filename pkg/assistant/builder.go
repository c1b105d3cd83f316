package assistant

import (
	"context"
	"encoding/json"
	"regexp"
)

// builderResponse is the JSON-constrained reply shape both builder
// assistants parse: {message, <updatesField>, confidence, readyToSave}
// (spec §4.9). The updates payload is kept as a raw map since its keys
// differ between the prompt builder and the task builder.
type builderResponse struct {
	Message    string
	Updates    map[string]any
	Confidence float64
	ReadyToSave bool
}

// fallbackBuilderResponse is returned verbatim whenever the LLM call or
// JSON parsing fails outright (spec §4.9 "total failure returns a fixed
// fallback object").
func fallbackBuilderResponse(msg string) builderResponse {
	return builderResponse{Message: msg, Updates: map[string]any{}, Confidence: 0.3, ReadyToSave: false}
}

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// runBuilderTurn sends one conversational turn through the shared
// client and parses the JSON-constrained reply, retrying a parse failure
// once against the span from the first '{' to the last '}' in the response
// text (spec §4.9 "parse errors trigger a JSON-object-extraction retry").
func runBuilderTurn(ctx context.Context, c *client, systemPrompt string, history []Message, updatesField string, fallbackMsg string) builderResponse {
	if c == nil {
		return fallbackBuilderResponse(fallbackMsg)
	}

	raw, err := c.complete(ctx, systemPrompt, history)
	if err != nil {
		return fallbackBuilderResponse(fallbackMsg)
	}

	resp, ok := parseBuilderResponse(raw, updatesField)
	if ok {
		return resp
	}

	if match := jsonObjectPattern.FindString(raw); match != "" {
		if resp, ok := parseBuilderResponse(match, updatesField); ok {
			return resp
		}
	}

	return fallbackBuilderResponse(fallbackMsg)
}

func parseBuilderResponse(raw, updatesField string) (builderResponse, bool) {
	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return builderResponse{}, false
	}

	resp := builderResponse{Updates: map[string]any{}}
	if m, ok := decoded["message"].(string); ok {
		resp.Message = m
	} else {
		return builderResponse{}, false
	}
	if u, ok := decoded[updatesField].(map[string]any); ok {
		resp.Updates = u
	}
	if c, ok := decoded["confidence"].(float64); ok {
		resp.Confidence = clamp01(c)
	} else {
		resp.Confidence = 0.5
	}
	if r, ok := decoded["readyToSave"].(bool); ok {
		resp.ReadyToSave = r
	}
	return resp, true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
