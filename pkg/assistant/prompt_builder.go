package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/codeready-toolchain/meshgate/pkg/config"
)

const promptBuilderSystemPrompt = `You are an AI assistant helping users create reusable prompt templates.

CRITICAL RULES:
1. You MUST respond with valid JSON in this exact format
2. ONLY create placeholders for DATA that changes (names, paths, dates, numbers, specific values)
3. Keep instructions, steps, requirements, and process descriptions as FIXED TEXT
4. Use descriptive variable names in snake_case
5. Suggest appropriate categories (Development, Analysis, Documentation, Communication, Testing, etc.)
6. Generate short command names (lowercase, hyphens only)

RESPONSE FORMAT (REQUIRED):
{
  "message": "your conversational response here",
  "templateUpdates": {
    "name": "Template Name",
    "category": "Category",
    "command": "command-name",
    "promptText": "Template with {placeholders} for variable data only",
    "description": "Brief description"
  },
  "confidence": 0.0-1.0,
  "readyToSave": false
}

VARIABLE PLACEHOLDER RULES:
- Use {variable_name} format for placeholders
- ONLY for data that changes: file paths, names, dates, numbers, specific values
- NOT for instructions, steps, or requirements

Ask clarifying questions until you understand what data changes between uses, then set readyToSave to true once the template is complete.`

// PromptTemplateUpdates is the subset of a prompt template the assistant
// can propose changes to (spec §4.9, mirrors PromptBuilderResponse.template_updates).
type PromptTemplateUpdates struct {
	Name        string `json:"name,omitempty"`
	Category    string `json:"category,omitempty"`
	Command     string `json:"command,omitempty"`
	PromptText  string `json:"promptText,omitempty"`
	Description string `json:"description,omitempty"`
}

// PromptBuilderTurn is one reply of the conversational prompt-template
// builder (spec §4.9 "PromptBuilderAssistant").
type PromptBuilderTurn struct {
	Message         string
	TemplateUpdates PromptTemplateUpdates
	Confidence      float64
	ReadyToSave     bool
}

// PromptBuilderAssistant drives the JSON-constrained chat loop that builds
// a PromptTemplate from natural language, grounded on
// original_source/.../prompt_builder_assistant.py's PromptBuilderAssistant.
type PromptBuilderAssistant struct {
	client *client
}

func NewPromptBuilderAssistant(cfg *config.LLMConfig) *PromptBuilderAssistant {
	c, _ := newClient(cfg)
	return &PromptBuilderAssistant{client: c}
}

// InitialGreeting is returned before any user message, mirroring
// get_initial_greeting.
func (a *PromptBuilderAssistant) InitialGreeting() PromptBuilderTurn {
	return PromptBuilderTurn{
		Message: "Hi! I'll help you create a prompt template. You can either:\n\n" +
			"1. Describe a recurring task you'd like to template\n" +
			"2. Paste an example transcript of the task\n\n" +
			"What would you like to create a template for?",
		Confidence:  1.0,
		ReadyToSave: false,
	}
}

// ProcessMessage advances the conversation by one user turn. history
// holds prior user/assistant turns (oldest first); currentTemplate is the
// template-in-progress echoed into the prompt for context; existingCommands
// lists command shortcuts already taken by the user, so the assistant can
// steer away from collisions.
func (a *PromptBuilderAssistant) ProcessMessage(ctx context.Context, userMessage string, history []Message, currentTemplate PromptTemplateUpdates, existingCommands []string) PromptBuilderTurn {
	templateJSON, _ := json.Marshal(currentTemplate)

	var b strings.Builder
	b.WriteString(userMessage)
	fmt.Fprintf(&b, "\n\nCurrent Template:\n%s", templateJSON)
	if len(existingCommands) > 0 {
		b.WriteString("\n\nEXISTING COMMANDS (avoid these): ")
		for i, cmd := range existingCommands {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("/" + cmd)
		}
	}

	turn := append(append([]Message{}, history...), Message{Role: "user", Text: b.String()})
	resp := runBuilderTurn(ctx, a.client, promptBuilderSystemPrompt, turn, "templateUpdates", "I encountered an error. Could you please rephrase that?")

	return PromptBuilderTurn{
		Message:         resp.Message,
		TemplateUpdates: decodeTemplateUpdates(resp.Updates),
		Confidence:      resp.Confidence,
		ReadyToSave:     resp.ReadyToSave,
	}
}

func decodeTemplateUpdates(m map[string]any) PromptTemplateUpdates {
	var out PromptTemplateUpdates
	data, err := json.Marshal(m)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(data, &out)
	return out
}
