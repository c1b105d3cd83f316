// Package assistant implements spec §4.9's LLM-backed services: the
// CompressionService that plugs into pkg/conversation.Summarizer, and the
// PromptBuilderAssistant/TaskBuilderAssistant JSON-constrained chat loops.
package assistant

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/codeready-toolchain/meshgate/pkg/config"
	"github.com/codeready-toolchain/meshgate/pkg/errs"
)

// Message is a provider-agnostic role/text turn, shared by the
// compression summarizer and the builder assistants below.
type Message struct {
	Role string // "user" or "assistant"
	Text string
}

// client wraps the Anthropic Messages API (anthropic-sdk-go), following the
// direct (non-Bedrock) construction shown in the example pack's
// AnthropicChatModel: option.WithAPIKey + client.Messages.New.
type client struct {
	sdk         anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

func newClient(cfg *config.LLMConfig) (*client, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	apiKeyEnv := cfg.APIKeyEnv
	if apiKeyEnv == "" {
		apiKeyEnv = "ANTHROPIC_API_KEY"
	}
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("assistant: %s is not set", apiKeyEnv)
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	opts = append(opts, option.WithRequestTimeout(timeout))

	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-6"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2000
	}

	return &client{
		sdk:         anthropic.NewClient(opts...),
		model:       model,
		maxTokens:   int64(maxTokens),
		temperature: cfg.Temperature,
	}, nil
}

// complete sends a system prompt plus chat history and returns the
// assistant's text reply. A nil receiver (no configured client)
// always errors so callers fall back to their deterministic paths.
func (c *client) complete(ctx context.Context, system string, messages []Message) (string, error) {
	if c == nil {
		return "", errs.New(errs.UpstreamUnavailable, "no LLM client configured")
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(c.temperature),
		System:      []anthropic.TextBlockParam{{Text: system}},
	}
	for _, m := range messages {
		switch m.Role {
		case "assistant":
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Text)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Text)))
		}
	}

	resp, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return "", errs.Wrap(errs.UpstreamUnavailable, "anthropic messages.new failed", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return "", errs.New(errs.UpstreamUnavailable, "anthropic response contained no text block")
	}
	return text, nil
}
