package assistant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseBuilderResponse(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		updatesField string
		wantOK       bool
		wantMessage  string
		wantReady    bool
		wantConfidence float64
	}{
		{
			name:         "well formed",
			raw:          `{"message":"hi","templateUpdates":{"name":"Foo"},"confidence":0.9,"readyToSave":true}`,
			updatesField: "templateUpdates",
			wantOK:       true,
			wantMessage:  "hi",
			wantReady:    true,
			wantConfidence: 0.9,
		},
		{
			name:         "missing message is rejected",
			raw:          `{"templateUpdates":{},"confidence":0.5}`,
			updatesField: "templateUpdates",
			wantOK:       false,
		},
		{
			name:         "not json",
			raw:          "I understand.",
			updatesField: "templateUpdates",
			wantOK:       false,
		},
		{
			name:         "confidence defaults when absent",
			raw:          `{"message":"ok"}`,
			updatesField: "taskUpdates",
			wantOK:       true,
			wantMessage:  "ok",
			wantReady:    false,
			wantConfidence: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, ok := parseBuilderResponse(tt.raw, tt.updatesField)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantMessage, resp.Message)
				assert.Equal(t, tt.wantReady, resp.ReadyToSave)
				assert.Equal(t, tt.wantConfidence, resp.Confidence)
			}
		})
	}
}

func TestParseBuilderResponseExtractsFromSurroundingText(t *testing.T) {
	raw := "Sure thing, here you go:\n```json\n{\"message\":\"done\",\"confidence\":0.8,\"readyToSave\":true}\n```\nLet me know!"
	match := jsonObjectPattern.FindString(raw)
	resp, ok := parseBuilderResponse(match, "templateUpdates")
	assert.True(t, ok)
	assert.Equal(t, "done", resp.Message)
	assert.True(t, resp.ReadyToSave)
}

func TestFallbackBuilderResponse(t *testing.T) {
	resp := fallbackBuilderResponse("try again")
	assert.Equal(t, "try again", resp.Message)
	assert.Equal(t, 0.3, resp.Confidence)
	assert.False(t, resp.ReadyToSave)
	assert.NotNil(t, resp.Updates)
}

func TestRunBuilderTurnWithNoClientFallsBack(t *testing.T) {
	resp := runBuilderTurn(t.Context(), nil, promptBuilderSystemPrompt, nil, "templateUpdates", "fallback message")
	assert.Equal(t, "fallback message", resp.Message)
	assert.False(t, resp.ReadyToSave)
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, clamp01(-1))
	assert.Equal(t, 1.0, clamp01(2))
	assert.Equal(t, 0.5, clamp01(0.5))
}
