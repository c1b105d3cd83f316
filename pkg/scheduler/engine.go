// Package scheduler implements the Scheduler and ResultCollector of spec
// §4.7/§4.8: leader-elected trigger firing and execution-result collection.
package scheduler

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
)

// Engine is the leader-elected trigger-firing scheduler of spec §4.7. In
// embedded mode, the leader polls ScheduledTaskRepository.ListDue and fires
// what's due; next_run_at is the durable schedule state, so a freshly
// promoted leader needs no in-memory job table rebuild — it starts polling
// and the DB tells it everything that's due. Orchestrator-delegated mode
// instead reflects tasks into OrchestratorReflector (spec §4.7).
type Engine struct {
	cfg        *config.SchedulerConfig
	namespace  string
	instanceID string

	tasks      *repository.ScheduledTaskRepository
	executions *repository.ScheduledTaskExecutionRepository
	bus        bus.Bus
	collector  ResultCollector
	reflector  OrchestratorReflector

	elector *leaderElector

	// OnLeadershipChange, if set, is called after every promotion/demotion
	// with the engine's current status (spec §6.1 addendum, dashboard
	// leadership indicator).
	OnLeadershipChange func(Status)

	mu      sync.Mutex
	running map[string]bool // scheduledTaskId -> currently firing (Forbid concurrency policy)

	unsubscribe bus.Unsubscribe
}

// OrchestratorReflector reflects ScheduledTasks into an external
// container-orchestrator's CronJob/Job objects (spec §4.7
// "orchestrator-delegated"). No client for any specific orchestrator
// appears anywhere in the retrieved example pack, so the only
// implementation provided is a logging stub (see DESIGN.md); operators
// wire in a real one (e.g. k8s client-go) via this interface.
type OrchestratorReflector interface {
	ReflectCronJob(ctx context.Context, t *model.ScheduledTask) error
	RunJobNow(ctx context.Context, t *model.ScheduledTask) error
}

// NoopReflector logs what it would do instead of calling an orchestrator API.
type NoopReflector struct{}

func (NoopReflector) ReflectCronJob(ctx context.Context, t *model.ScheduledTask) error {
	slog.Info("scheduler: would reflect CronJob", "task_id", t.ID, "expression", t.ScheduleExpression)
	return nil
}

func (NoopReflector) RunJobNow(ctx context.Context, t *model.ScheduledTask) error {
	slog.Info("scheduler: would run Job immediately for past-due one-shot", "task_id", t.ID)
	return nil
}

func New(
	cfg *config.SchedulerConfig,
	namespace, instanceID string,
	tasks *repository.ScheduledTaskRepository,
	executions *repository.ScheduledTaskExecutionRepository,
	b bus.Bus,
	collector ResultCollector,
	reflector OrchestratorReflector,
	lock *repository.SchedulerLockRepository,
) *Engine {
	if reflector == nil {
		reflector = NoopReflector{}
	}
	e := &Engine{
		cfg:        cfg,
		namespace:  namespace,
		instanceID: instanceID,
		tasks:      tasks,
		executions: executions,
		bus:        b,
		collector:  collector,
		reflector:  reflector,
		running:    make(map[string]bool),
	}
	e.elector = newLeaderElector(lock, instanceID, namespace, cfg.HeartbeatInterval, cfg.LeaseDuration)
	e.elector.onPromoted = e.onPromoted
	e.elector.onDemoted = e.onDemoted
	return e
}

// Run blocks until ctx is cancelled: subscribes to execution responses,
// runs the leader election loop, and (while leader) polls for due tasks
// and reaps stale executions.
func (e *Engine) Run(ctx context.Context) error {
	if e.cfg == nil || !e.cfg.Enabled {
		return nil
	}

	unsub, err := e.bus.Subscribe(ctx, executionResponseTopic(e.namespace, e.instanceID), e.onResponse)
	if err != nil {
		return fmt.Errorf("subscribe to execution response topic: %w", err)
	}
	e.unsubscribe = unsub
	defer func() { _ = e.unsubscribe(context.Background()) }()

	pollInterval := e.cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	reapInterval := e.cfg.StaleExecutionReaper
	if reapInterval <= 0 {
		reapInterval = time.Minute
	}

	pollTicker := time.NewTicker(pollInterval)
	defer pollTicker.Stop()
	reapTicker := time.NewTicker(reapInterval)
	defer reapTicker.Stop()

	go e.elector.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pollTicker.C:
			if e.elector.IsLeader() {
				e.pollDue(ctx)
			}
		case <-reapTicker.C:
			if e.elector.IsLeader() {
				e.reapStale(ctx)
			}
		}
	}
}

func (e *Engine) onPromoted(ctx context.Context) {
	if e.cfg.Mode == config.SchedulerModeOrchestrator {
		e.syncOrchestrator(ctx)
	}
	e.reportLeadership()
}

func (e *Engine) onDemoted() {
	e.mu.Lock()
	e.running = make(map[string]bool)
	e.mu.Unlock()
	e.reportLeadership()
}

func (e *Engine) reportLeadership() {
	if e.OnLeadershipChange != nil {
		e.OnLeadershipChange(e.Status())
	}
}

// syncOrchestrator reflects every enabled task into the orchestrator on
// promotion, running past-due one-shots immediately (spec §4.7).
func (e *Engine) syncOrchestrator(ctx context.Context) {
	due, err := e.tasks.ListByNamespace(ctx, e.namespace)
	if err != nil {
		slog.Error("scheduler: list tasks for orchestrator sync failed", "error", err)
		return
	}
	now := time.Now()
	for _, t := range due {
		if !t.Enabled {
			continue
		}
		if isOneShotDue(t, now) {
			if err := e.reflector.RunJobNow(ctx, t); err != nil {
				slog.Error("scheduler: run job now failed", "task_id", t.ID, "error", err)
			}
			continue
		}
		if err := e.reflector.ReflectCronJob(ctx, t); err != nil {
			slog.Error("scheduler: reflect cronjob failed", "task_id", t.ID, "error", err)
		}
	}
}

// pollDue fires every ScheduledTask whose next_run_at has passed (embedded
// mode only — orchestrator-delegated mode never calls this).
func (e *Engine) pollDue(ctx context.Context) {
	if e.cfg.Mode != config.SchedulerModeEmbedded {
		return
	}
	due, err := e.tasks.ListDue(ctx, time.Now().UnixMilli(), 50)
	if err != nil {
		slog.Error("scheduler: list due tasks failed", "error", err)
		return
	}
	for _, t := range due {
		if e.isRunning(t.ID) {
			continue // Forbid concurrency policy: skip overlapping firings.
		}
		e.fire(ctx, t)
	}
}

// Status reports this instance's scheduler role (GET /scheduler/status).
type Status struct {
	Enabled        bool   `json:"enabled"`
	Mode           string `json:"mode"`
	IsLeader       bool   `json:"isLeader"`
	InstanceID     string `json:"instanceId"`
	RunningCount   int    `json:"runningCount"`
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	running := len(e.running)
	e.mu.Unlock()

	enabled := e.cfg != nil && e.cfg.Enabled
	mode := ""
	if e.cfg != nil {
		mode = string(e.cfg.Mode)
	}
	isLeader := e.elector != nil && e.elector.IsLeader()
	return Status{Enabled: enabled, Mode: mode, IsLeader: isLeader, InstanceID: e.instanceID, RunningCount: running}
}

func (e *Engine) isRunning(taskID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running[taskID]
}

func (e *Engine) setRunning(taskID string, running bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if running {
		e.running[taskID] = true
	} else {
		delete(e.running, taskID)
	}
}

// fire executes spec §4.7's five-step firing sequence.
func (e *Engine) fire(ctx context.Context, t *model.ScheduledTask) {
	e.setRunning(t.ID, true)

	now := time.Now().UnixMilli()
	executionID := uuid.New().String()
	a2aTaskID := uuid.New().String()

	execution := &model.ScheduledTaskExecution{
		ID:              executionID,
		ScheduledTaskID: t.ID,
		Status:          model.ExecutionPending,
		A2ATaskID:       &a2aTaskID,
		ScheduledFor:    now,
	}
	if err := e.executions.Create(ctx, execution); err != nil {
		slog.Error("scheduler: create execution failed", "task_id", t.ID, "error", err)
		e.setRunning(t.ID, false)
		return
	}

	next, err := NextRun(t, time.Now())
	if err != nil {
		slog.Error("scheduler: compute next run failed", "task_id", t.ID, "error", err)
	}
	if t.ScheduleType == model.ScheduleOneTime {
		next = nil // fires exactly once
	}
	if err := e.tasks.UpdateRunTimes(ctx, t.ID, now, next); err != nil {
		slog.Error("scheduler: update run times failed", "task_id", t.ID, "error", err)
	}

	metadata := map[string]any{"sessionBehavior": "RUN_BASED"}
	for k, v := range t.TaskMetadata {
		metadata[k] = v
	}
	env := requestEnvelope{
		JSONRPC: "2.0",
		ID:      a2aTaskID,
		Method:  "message/send",
		ReplyTo: executionResponseTopic(e.namespace, e.instanceID),
		Params: requestParams{
			ContextID: executionID,
			Message:   requestMessage{Parts: t.TaskMessage},
			Metadata:  metadata,
		},
	}
	payload, err := json.Marshal(env)
	if err != nil {
		slog.Error("scheduler: marshal request envelope failed", "task_id", t.ID, "error", err)
		e.setRunning(t.ID, false)
		return
	}

	e.collector.Register(executionID, a2aTaskID, "", t.ID)

	if err := e.executions.UpdateStarted(ctx, executionID, now); err != nil {
		slog.Warn("scheduler: mark execution running failed", "execution_id", executionID, "error", err)
	}

	if err := e.bus.Publish(ctx, agentRequestTopic(e.namespace, t.TargetAgentName), payload); err != nil {
		msg := errs.Wrap(errs.UpstreamUnavailable, "publish scheduled task request", err).Error()
		if err := e.executions.UpdateStatus(ctx, executionID, model.ExecutionFailed, &now, &msg); err != nil {
			slog.Error("scheduler: mark execution failed after publish error failed", "execution_id", executionID, "error", err)
		}
		e.setRunning(t.ID, false)
		return
	}

	timeout := time.Duration(t.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = e.cfg.DefaultTimeout
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	go e.awaitTimeout(t.ID, executionID, timeout)
}

// awaitTimeout marks an execution timed out if no response lands within
// timeout (spec §4.7 execution step 5). Successful/failed completion is
// handled by onResponse, which clears the running flag itself; this goroutine
// only acts if the execution is still pending/running when the timer fires.
func (e *Engine) awaitTimeout(taskID, executionID string, timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	<-timer.C
	if !e.isRunning(taskID) {
		return // already completed
	}
	ctx := context.Background()
	now := time.Now().UnixMilli()
	msg := "execution timed out"
	if err := e.executions.UpdateStatus(ctx, executionID, model.ExecutionTimeout, &now, &msg); err != nil {
		slog.Warn("scheduler: mark execution timeout failed", "execution_id", executionID, "error", err)
	}
	e.setRunning(taskID, false)
}

// onResponse is the bus Handler for this instance's execution response
// topic; it hands the raw result to the ResultCollector and clears the
// Forbid-policy running flag for the originating ScheduledTask.
func (e *Engine) onResponse(msg bus.Message) {
	ctx := context.Background()

	var env responseEnvelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		slog.Error("scheduler: malformed execution response", "error", err)
		return
	}
	if env.ID == "" {
		return
	}

	var rpcErr error
	if env.Error != nil {
		rpcErr = fmt.Errorf("%s", env.Error.Message)
	}
	scheduledTaskID, err := e.collector.Finalize(ctx, env.ID, env.Result, rpcErr)
	if err != nil {
		if !errs.Is(err, errs.NotFound) {
			slog.Error("scheduler: finalize execution failed", "a2a_task_id", env.ID, "error", err)
		}
		return
	}
	if scheduledTaskID != "" {
		e.setRunning(scheduledTaskID, false)
	}
}

// reapStale marks executions stuck in "running" longer than the scheduler's
// DefaultTimeout as timed out (spec §4.7 edge case, §4.8 "Stale reaping").
// A task's own timeoutSeconds is not consulted here; only awaitTimeout
// applies it.
func (e *Engine) reapStale(ctx context.Context) {
	defaultTimeout := e.cfg.DefaultTimeout
	if defaultTimeout <= 0 {
		defaultTimeout = 5 * time.Minute
	}
	cutoff := time.Now().Add(-defaultTimeout).UnixMilli()

	stale, err := e.executions.ListStaleRunning(ctx, cutoff, 100)
	if err != nil {
		slog.Error("scheduler: list stale executions failed", "error", err)
		return
	}
	now := time.Now().UnixMilli()
	for _, ex := range stale {
		msg := "execution timed out (stale reaper)"
		if err := e.executions.UpdateStatus(ctx, ex.ID, model.ExecutionTimeout, &now, &msg); err != nil {
			slog.Warn("scheduler: reap stale execution failed", "execution_id", ex.ID, "error", err)
		}
		e.setRunning(ex.ScheduledTaskID, false)
	}
}
