// Package dispatch implements the TaskDispatcher of spec §4.1: it turns an
// HTTP task submission into an A2A request on the bus and wires up
// correlation so the eventual reply reaches the right SSE stream.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/meshgate/pkg/bus"
	"github.com/codeready-toolchain/meshgate/pkg/config"
	"github.com/codeready-toolchain/meshgate/pkg/errs"
	"github.com/codeready-toolchain/meshgate/pkg/model"
	"github.com/codeready-toolchain/meshgate/pkg/repository"
	"github.com/codeready-toolchain/meshgate/pkg/sse"
)

// SubmissionRequest is the input to Prepare (spec §4.1 "Submission operation").
type SubmissionRequest struct {
	TargetAgentName    string
	Parts              []model.MessagePart
	UserID             string
	ClientID           string
	SessionID          string
	ExternalContext    map[string]any
	IsStreaming        bool
	Background         bool
	MaxExecutionTimeMs *int64
}

// PreparedSubmission carries a reserved taskId/contextId and the built
// request envelope, handed back to the caller before anything is published
// so an SSE consumer can be registered first (spec §4.1 guarantee 4).
type PreparedSubmission struct {
	TaskID    string
	ContextID string

	req          SubmissionRequest
	topic        string
	envelope     []byte
	quotaExceeded bool
}

// Dispatcher is the TaskDispatcher.
type Dispatcher struct {
	bus        bus.Bus
	namespace  string
	instanceID string
	cfg        *config.DispatcherConfig

	sseManager *sse.Manager
	persistent *sse.PersistentEventBuffer

	tasks      *repository.TaskRepository
	taskEvents *repository.TaskEventRepository
	usage      *repository.MonthlyUsageRepository
	quotaCfg   *config.QuotaConfig

	mu       sync.Mutex
	waiters  map[string]chan *responseEnvelope // taskId -> one-shot waiter for non-streaming submissions

	unsubscribe bus.Unsubscribe
}

// New constructs a Dispatcher bound to a unique gateway instance id — the
// id that names this process's scheduler-response topic.
func New(
	b bus.Bus,
	namespace, instanceID string,
	cfg *config.DispatcherConfig,
	quotaCfg *config.QuotaConfig,
	sseManager *sse.Manager,
	persistent *sse.PersistentEventBuffer,
	tasks *repository.TaskRepository,
	taskEvents *repository.TaskEventRepository,
	usage *repository.MonthlyUsageRepository,
) *Dispatcher {
	return &Dispatcher{
		bus:        b,
		namespace:  namespace,
		instanceID: instanceID,
		cfg:        cfg,
		quotaCfg:   quotaCfg,
		sseManager: sseManager,
		persistent: persistent,
		tasks:      tasks,
		taskEvents: taskEvents,
		usage:      usage,
		waiters:    make(map[string]chan *responseEnvelope),
	}
}

// Start subscribes to this instance's scheduler-response topic. Must be
// called once before any submission is published.
func (d *Dispatcher) Start(ctx context.Context) error {
	topic := schedulerResponseTopic(d.namespace, d.instanceID)
	unsub, err := d.bus.Subscribe(ctx, topic, d.onResponse)
	if err != nil {
		return fmt.Errorf("subscribe to scheduler response topic: %w", err)
	}
	d.unsubscribe = unsub
	return nil
}

func (d *Dispatcher) Stop(ctx context.Context) error {
	if d.unsubscribe == nil {
		return nil
	}
	return d.unsubscribe(ctx)
}

// Prepare reserves a taskId/contextId, records intent, notifies the
// SSEManager of background tasks, and builds the request envelope — all
// before anything is published (spec §4.1 guarantees 1, 2, 5).
func (d *Dispatcher) Prepare(ctx context.Context, req SubmissionRequest) (*PreparedSubmission, error) {
	taskID := uuid.New().String()
	contextID := uuid.New().String()
	now := time.Now().UnixMilli()

	if req.Background {
		d.sseManager.RegisterBackgroundTask(taskID, req.SessionID, req.UserID)
		d.persistent.RegisterTask(taskID)
	}

	parts := make([]messagePart, 0, len(req.Parts))
	for _, p := range req.Parts {
		parts = append(parts, messagePart{Kind: p.Kind, Text: p.Text, Data: p.Data})
	}

	env := requestEnvelope{
		JSONRPC:  "2.0",
		ID:       taskID,
		Method:   "message/send",
		ReplyTo:  schedulerResponseTopic(d.namespace, d.instanceID),
		ClientID: req.ClientID,
		UserID:   req.UserID,
		Params: requestParams{
			ContextID: contextID,
			Message:   requestMessage{Parts: parts},
			Metadata:  req.ExternalContext,
		},
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal request envelope: %w", err)
	}

	quotaExceeded := d.isQuotaExceeded(ctx, req.UserID, now)

	task := &model.Task{
		ID:                         taskID,
		UserID:                     req.UserID,
		SessionID:                  req.SessionID,
		StartTime:                  now,
		Status:                     model.TaskStatusPending,
		AgentName:                  &req.TargetAgentName,
		BackgroundExecutionEnabled: req.Background,
		MaxExecutionTimeMs:         req.MaxExecutionTimeMs,
		LastActivityTime:           now,
	}
	if len(req.Parts) > 0 && req.Parts[0].Kind == "text" {
		task.InitialRequestText = &req.Parts[0].Text
	}
	if err := d.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("record task intent: %w", err)
	}

	return &PreparedSubmission{
		TaskID:        taskID,
		ContextID:     contextID,
		req:           req,
		topic:         agentRequestTopic(d.namespace, req.TargetAgentName),
		envelope:      payload,
		quotaExceeded: quotaExceeded,
	}, nil
}

// Publish sends the prepared request onto the bus. Publish failure is
// fatal to the submission and is never retried at this layer (spec §4.1
// "Failure semantics").
func (d *Dispatcher) Publish(ctx context.Context, p *PreparedSubmission) error {
	if err := d.bus.Publish(ctx, p.topic, p.envelope); err != nil {
		return errs.Wrap(errs.UpstreamUnavailable, "publish task request", err)
	}

	if p.quotaExceeded {
		d.sseManager.SendEvent(ctx, p.TaskID, "status_update", sse.ErrorEvent("quotaExceeded"))
	}
	return nil
}

// Await blocks for a non-streaming submission's terminal response, used by
// the `/tasks/send` handler. Returns the raw opaque result bytes.
func (d *Dispatcher) Await(ctx context.Context, taskID string) (json.RawMessage, error) {
	ch := make(chan *responseEnvelope, 1)
	d.mu.Lock()
	d.waiters[taskID] = ch
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.waiters, taskID)
		d.mu.Unlock()
	}()

	timeout := 2 * time.Minute
	if d.cfg != nil && d.cfg.ReplyTimeout > 0 {
		timeout = d.cfg.ReplyTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case env := <-ch:
		if env.Error != nil {
			return nil, errs.Wrap(errs.UpstreamUnavailable, env.Error.Message, fmt.Errorf("rpc error %d", env.Error.Code))
		}
		return env.Result, nil
	case <-timer.C:
		return nil, errs.New(errs.UpstreamTimeout, "timed out waiting for task response")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel best-effort notifies the owning agent that taskId should stop.
// Cancellation is advisory: publish failure does not roll back any status.
func (d *Dispatcher) Cancel(ctx context.Context, agentName, taskID string) error {
	if agentName == "" {
		return nil
	}
	env := requestEnvelope{
		JSONRPC:  "2.0",
		ID:       taskID,
		Method:   "message/cancel",
		ReplyTo:  schedulerResponseTopic(d.namespace, d.instanceID),
		Params:   requestParams{ContextID: taskID},
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal cancel envelope: %w", err)
	}
	return d.bus.Publish(ctx, agentRequestTopic(d.namespace, agentName), payload)
}

// onResponse is the bus Handler bound to this instance's response topic. It
// always logs the event and feeds it to the SSEManager/persistent buffer;
// for non-streaming submissions with an active Await waiter it also
// delivers the terminal response there.
func (d *Dispatcher) onResponse(msg bus.Message) {
	ctx := context.Background()

	var env responseEnvelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		slog.Error("dispatch: malformed response envelope", "topic", msg.Topic, "error", err)
		return
	}
	if env.ID == "" {
		slog.Warn("dispatch: response envelope missing id", "topic", msg.Topic)
		return
	}

	var kind resultKind
	_ = json.Unmarshal(env.Result, &kind)
	eventType := eventTypeForKind(kind.Kind)
	if env.Error != nil {
		eventType = "error"
	}

	now := time.Now().UnixMilli()
	if err := d.taskEvents.Append(ctx, &model.TaskEvent{
		ID:          uuid.New().String(),
		TaskID:      env.ID,
		CreatedTime: now,
		Topic:       msg.Topic,
		Direction:   model.DirectionResponse,
		Payload:     msg.Payload,
	}); err != nil {
		slog.Error("dispatch: append task event failed", "task_id", env.ID, "error", err)
	}

	if err := d.tasks.Heartbeat(ctx, env.ID, now); err != nil {
		slog.Warn("dispatch: heartbeat task failed", "task_id", env.ID, "error", err)
	}
	if kind.Kind == "task" {
		status := model.TaskStatusCompleted
		if env.Error != nil {
			status = model.TaskStatusFailed
		}
		if err := d.tasks.UpdateStatus(ctx, env.ID, status, &now); err != nil {
			slog.Warn("dispatch: update task status failed", "task_id", env.ID, "error", err)
		}
	}

	payload := env.Result
	if env.Error != nil {
		payload = sse.ErrorEvent(env.Error.Message)
	}
	d.sseManager.SendEvent(ctx, env.ID, eventType, payload)

	d.mu.Lock()
	waiter, ok := d.waiters[env.ID]
	d.mu.Unlock()
	if ok && (kind.Kind == "task" || env.Error != nil) {
		select {
		case waiter <- &env:
		default:
		}
	}
}

// isQuotaExceeded is an advisory-only check against the namespace default
// monthly credit ceiling (no per-user override store — see DESIGN.md).
func (d *Dispatcher) isQuotaExceeded(ctx context.Context, userID string, now int64) bool {
	if d.quotaCfg == nil || !d.quotaCfg.Enabled || d.usage == nil {
		return false
	}
	month := time.UnixMilli(now).UTC().Format("2006-01")
	usage, err := d.usage.Get(ctx, userID, month)
	if err != nil {
		return false
	}
	return usage.TotalUsage >= d.quotaCfg.DefaultMonthlyCredits
}
