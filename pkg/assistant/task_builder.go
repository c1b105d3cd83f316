package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/codeready-toolchain/meshgate/pkg/config"
)

const taskBuilderSystemPrompt = `You are an AI assistant helping users create scheduled tasks with natural language.

CRITICAL RULES:
1. You MUST respond with valid JSON in this exact format - NO EXCEPTIONS
2. You MUST always include a "message" field with a helpful, conversational response
3. NEVER respond with just "I understand" - always provide actionable guidance
4. Help users define: task name, description, schedule (cron/interval/one_time), target agent, and task message
5. For schedules, suggest common patterns or help convert natural language to cron expressions
6. ONLY suggest agents from the available agents list provided in the context
7. If the user requests an agent not in the list, suggest the closest match or ask for clarification

RESPONSE FORMAT (REQUIRED):
{
  "message": "your conversational response here - MUST be helpful and specific",
  "taskUpdates": {
    "name": "Task Name",
    "description": "Task description",
    "scheduleType": "cron|interval|one_time",
    "scheduleExpression": "cron expression or interval",
    "targetAgentName": "AgentName",
    "taskMessage": "Message to send to agent",
    "timezone": "UTC"
  },
  "confidence": 0.0-1.0,
  "readyToSave": false
}

SCHEDULE PATTERNS:
- Daily at a specific time: "0 9 * * *" (9 AM daily)
- Weekly on specific days: "0 9 * * 1,3,5" (Mon, Wed, Fri at 9 AM)
- Fixed interval: "30m", "2h", "1d"
- A single future run: an RFC3339 timestamp

Set readyToSave to true only once name, schedule, targetAgentName, and taskMessage are all known.`

// ScheduledTaskUpdates is the subset of a ScheduledTask the assistant can
// propose (spec §4.9, mirrors TaskBuilderResponse.task_updates).
type ScheduledTaskUpdates struct {
	Name               string `json:"name,omitempty"`
	Description        string `json:"description,omitempty"`
	ScheduleType       string `json:"scheduleType,omitempty"`
	ScheduleExpression string `json:"scheduleExpression,omitempty"`
	TargetAgentName    string `json:"targetAgentName,omitempty"`
	TaskMessage        string `json:"taskMessage,omitempty"`
	Timezone           string `json:"timezone,omitempty"`
}

// TaskBuilderTurn is one reply of the conversational scheduled-task
// builder (spec §4.9 "TaskBuilderAssistant").
type TaskBuilderTurn struct {
	Message     string
	TaskUpdates ScheduledTaskUpdates
	Confidence  float64
	ReadyToSave bool
}

// TaskBuilderAssistant drives the JSON-constrained chat loop that builds a
// ScheduledTask from natural language, grounded on
// original_source/.../task_builder_assistant.py's TaskBuilderAssistant.
type TaskBuilderAssistant struct {
	client *client
}

func NewTaskBuilderAssistant(cfg *config.LLMConfig) *TaskBuilderAssistant {
	c, _ := newClient(cfg)
	return &TaskBuilderAssistant{client: c}
}

// ProcessMessage advances the conversation by one user turn. availableAgents
// restricts which target_agent_name values the assistant should suggest.
func (a *TaskBuilderAssistant) ProcessMessage(ctx context.Context, userMessage string, history []Message, currentTask ScheduledTaskUpdates, availableAgents []string) TaskBuilderTurn {
	taskJSON, _ := json.Marshal(currentTask)

	var b strings.Builder
	b.WriteString(userMessage)
	fmt.Fprintf(&b, "\n\nCurrent Task:\n%s", taskJSON)
	if len(availableAgents) > 0 {
		b.WriteString("\n\nAvailable agents: " + strings.Join(availableAgents, ", "))
	}

	turn := append(append([]Message{}, history...), Message{Role: "user", Text: b.String()})
	resp := runBuilderTurn(ctx, a.client, taskBuilderSystemPrompt, turn, "taskUpdates",
		"I understand. Could you provide more details about what this scheduled task should do?")

	return TaskBuilderTurn{
		Message:     resp.Message,
		TaskUpdates: decodeTaskUpdates(resp.Updates),
		Confidence:  resp.Confidence,
		ReadyToSave: resp.ReadyToSave,
	}
}

func decodeTaskUpdates(m map[string]any) ScheduledTaskUpdates {
	var out ScheduledTaskUpdates
	data, err := json.Marshal(m)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(data, &out)
	return out
}
