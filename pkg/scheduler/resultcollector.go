package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/codeready-toolchain/meshgate/pkg/errs"
	"github.com/codeready-toolchain/meshgate/pkg/model"
	"github.com/codeready-toolchain/meshgate/pkg/repository"
)

// taskResult is the shape of an A2A Task object's terminal payload — the
// parts this collector extracts from it (spec §4.8 "Success path").
type taskResult struct {
	Status struct {
		Message struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"message"`
		State string `json:"state"`
	} `json:"status"`
	History []struct {
		Role  string `json:"role"`
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"history"`
	Artifacts []struct {
		ArtifactID string `json:"artifactId"`
		Name       string `json:"name"`
	} `json:"artifacts"`
	Metadata map[string]any `json:"metadata"`
}

const maxAgentResponseChars = 1000
const maxHistoryTextChars = 500

// ResultCollector finalizes ScheduledTaskExecution rows from A2A task
// results (spec §4.8). Implementations differ in how they correlate an
// incoming a2aTaskId back to its pending Execution row.
type ResultCollector interface {
	// Register records that executionID is awaiting a response keyed by
	// a2aTaskID. Called just before the request is published on the bus.
	Register(executionID, a2aTaskID, sessionID, scheduledTaskID string)
	// Finalize writes the terminal outcome (result or error) for a2aTaskID
	// into its Execution row, looking up the execution either from the
	// in-memory map (stateful) or the database (stateless). Returns the
	// parent scheduledTaskId so the caller can clear its Forbid
	// concurrency policy running flag.
	Finalize(ctx context.Context, a2aTaskID string, result json.RawMessage, rpcErr error) (scheduledTaskID string, err error)
}

type pendingExecution struct {
	executionID     string
	sessionID       string
	scheduledTaskID string
}

// StatefulResultCollector keeps an in-memory a2aTaskId -> executionId map
// for O(1) correlation. Not safe across replicas: an execution registered
// on one instance is invisible to others (spec §4.8).
type StatefulResultCollector struct {
	executions *repository.ScheduledTaskExecutionRepository

	mu  sync.Mutex
	idx map[string]pendingExecution // a2aTaskId -> pending execution
}

func NewStatefulResultCollector(executions *repository.ScheduledTaskExecutionRepository) *StatefulResultCollector {
	return &StatefulResultCollector{
		executions: executions,
		idx:        make(map[string]pendingExecution),
	}
}

func (c *StatefulResultCollector) Register(executionID, a2aTaskID, sessionID, scheduledTaskID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idx[a2aTaskID] = pendingExecution{executionID: executionID, sessionID: sessionID, scheduledTaskID: scheduledTaskID}
}

func (c *StatefulResultCollector) Finalize(ctx context.Context, a2aTaskID string, result json.RawMessage, rpcErr error) (string, error) {
	c.mu.Lock()
	pending, ok := c.idx[a2aTaskID]
	delete(c.idx, a2aTaskID)
	c.mu.Unlock()
	if !ok {
		return "", errs.New(errs.NotFound, "no registered execution for a2a task "+a2aTaskID)
	}
	err := finalizeExecution(ctx, c.executions, pending.executionID, pending.sessionID, result, rpcErr)
	return pending.scheduledTaskID, err
}

// StatelessResultCollector uses the scheduled_task_executions table itself
// as the correlation index via its a2a_task_id column, set at Execution
// creation time. Safe for horizontal scaling since no process-local state
// is required (spec §4.8).
type StatelessResultCollector struct {
	executions *repository.ScheduledTaskExecutionRepository
	tasks      *repository.ScheduledTaskRepository
}

func NewStatelessResultCollector(executions *repository.ScheduledTaskExecutionRepository, tasks *repository.ScheduledTaskRepository) *StatelessResultCollector {
	return &StatelessResultCollector{executions: executions, tasks: tasks}
}

// Register is a no-op: the a2a_task_id column, written when the Execution
// row is created, is the only index this variant needs.
func (c *StatelessResultCollector) Register(executionID, a2aTaskID, sessionID, scheduledTaskID string) {}

func (c *StatelessResultCollector) Finalize(ctx context.Context, a2aTaskID string, result json.RawMessage, rpcErr error) (string, error) {
	executionID, scheduledTaskID, err := c.executions.FindIDByA2ATaskID(ctx, a2aTaskID)
	if err != nil {
		return "", fmt.Errorf("lookup execution by a2a task id: %w", err)
	}
	// Stateless collectors have no session id handy; artifact URIs fall
	// back to the bare artifact:// scheme (spec §4.8 "otherwise").
	err = finalizeExecution(ctx, c.executions, executionID, "", result, rpcErr)
	return scheduledTaskID, err
}

func finalizeExecution(ctx context.Context, executions *repository.ScheduledTaskExecutionRepository, executionID, sessionID string, result json.RawMessage, rpcErr error) error {
	now := time.Now().UnixMilli()

	if rpcErr != nil {
		msg := rpcErr.Error()
		summary := map[string]any{"error": msg}
		return executions.Finalize(ctx, executionID, model.ExecutionFailed, now, &msg, summary, nil)
	}

	var tr taskResult
	if err := json.Unmarshal(result, &tr); err != nil {
		msg := fmt.Sprintf("malformed task result: %v", err)
		return executions.Finalize(ctx, executionID, model.ExecutionFailed, now, &msg, map[string]any{"error": msg}, nil)
	}

	messages := make([]map[string]string, 0, len(tr.History))
	for _, h := range tr.History {
		var text string
		for _, p := range h.Parts {
			text += p.Text
		}
		messages = append(messages, map[string]string{"role": h.Role, "text": truncateRunes(text, maxHistoryTextChars)})
	}

	artifacts := make([]model.ExecutionArtifact, 0, len(tr.Artifacts))
	for _, a := range tr.Artifacts {
		artifacts = append(artifacts, model.ExecutionArtifact{Name: a.Name, URI: artifactURI(sessionID, a.ArtifactID)})
	}

	summary := map[string]any{
		"agent_response": agentResponseText(&tr),
		"messages":       messages,
		"metadata":       tr.Metadata,
		"task_status":    tr.Status.State,
	}

	return executions.Finalize(ctx, executionID, model.ExecutionCompleted, now, nil, summary, artifacts)
}

// artifactURI materializes a REST path when the execution's session is
// known, otherwise the bare artifact:// scheme (spec §4.8).
func artifactURI(sessionID, artifactID string) string {
	if sessionID == "" {
		return "artifact://" + artifactID
	}
	return fmt.Sprintf("/api/v1/sessions/%s/artifacts/%s", sessionID, artifactID)
}

// agentResponseText extracts the final status message text, truncated to
// maxAgentResponseChars (spec §4.8 "preserve up to 1000 chars").
func agentResponseText(tr *taskResult) string {
	var text string
	for _, p := range tr.Status.Message.Parts {
		text += p.Text
	}
	return truncateRunes(text, maxAgentResponseChars)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
