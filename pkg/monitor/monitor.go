// Package monitor implements the BackgroundTaskMonitor of spec §4.10:
// idempotent startup recovery for tasks orphaned by a crash, and a
// periodic sweep that times out background tasks gone silent.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/codeready-toolchain/meshgate/pkg/config"
	"github.com/codeready-toolchain/meshgate/pkg/dispatch"
	"github.com/codeready-toolchain/meshgate/pkg/model"
	"github.com/codeready-toolchain/meshgate/pkg/repository"
)

// Monitor enforces background-task timeouts and recovers orphans left
// running/pending by a crashed process.
type Monitor struct {
	cfg   *config.MonitorConfig
	tasks *repository.TaskRepository
	disp  *dispatch.Dispatcher
	now   func() int64
	once  sync.Once
}

func New(cfg *config.MonitorConfig, tasks *repository.TaskRepository, disp *dispatch.Dispatcher) *Monitor {
	return &Monitor{
		cfg:   cfg,
		tasks: tasks,
		disp:  disp,
		now:   func() int64 { return time.Now().UnixMilli() },
	}
}

// Run performs startup recovery once, then sweeps on cfg.SweepInterval
// until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	if m.cfg != nil && m.cfg.RecoverOnStartup {
		m.RecoverOnStartup(ctx)
	}

	interval := time.Duration(0)
	if m.cfg != nil {
		interval = m.cfg.SweepInterval
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.SweepTimeouts(ctx)
		}
	}
}

// RecoverOnStartup finds running/pending background tasks with no
// endTime and marks them interrupted — they lost their in-process state
// to a crash and cannot be resumed (spec §4.10). Idempotent: calling it
// more than once is harmless since the second call finds nothing left
// in a running/pending state, but Run only ever calls it on first boot.
func (m *Monitor) RecoverOnStartup(ctx context.Context) {
	m.once.Do(func() {
		orphans, err := m.tasks.ListRecoverableOnStartup(ctx)
		if err != nil {
			slog.Error("monitor: list recoverable tasks failed", "error", err)
			return
		}
		now := m.now()
		for _, t := range orphans {
			if err := m.tasks.UpdateStatus(ctx, t.ID, model.TaskStatusInterrupted, &now); err != nil {
				slog.Error("monitor: mark task interrupted failed", "task_id", t.ID, "error", err)
				continue
			}
			slog.Info("monitor: recovered orphaned background task as interrupted", "task_id", t.ID)
		}
	})
}

// SweepTimeouts marks background tasks whose lastActivityTime exceeds
// their maxExecutionTimeMs (or the monitor default) as timed out, and
// best-effort cancels them at the owning agent (spec §4.10). Only tasks
// idle longer than the monitor default are examined, so a maxExecutionTimeMs
// shorter than the default takes effect only once the default has passed.
func (m *Monitor) SweepTimeouts(ctx context.Context) {
	defaultTimeout := time.Duration(0)
	if m.cfg != nil {
		defaultTimeout = m.cfg.DefaultTimeout
	}
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Minute
	}

	now := m.now()
	cutoff := now - defaultTimeout.Milliseconds()
	stale, err := m.tasks.ListStaleBackgroundTasks(ctx, cutoff, 200)
	if err != nil {
		slog.Error("monitor: list stale background tasks failed", "error", err)
		return
	}

	for _, t := range stale {
		limit := defaultTimeout.Milliseconds()
		if t.MaxExecutionTimeMs != nil && *t.MaxExecutionTimeMs > 0 {
			limit = *t.MaxExecutionTimeMs
		}
		if now-t.LastActivityTime < limit {
			continue // ListStaleBackgroundTasks used the default cutoff; this task's own limit is longer.
		}

		endTime := now
		if err := m.tasks.UpdateStatus(ctx, t.ID, model.TaskStatusTimeout, &endTime); err != nil {
			slog.Error("monitor: mark task timeout failed", "task_id", t.ID, "error", err)
			continue
		}

		if t.AgentName == nil || *t.AgentName == "" {
			continue // cancellation is skipped if the agent name is missing.
		}
		if err := m.disp.Cancel(ctx, *t.AgentName, t.ID); err != nil {
			// Best-effort: cancellation failure does not roll back the status change.
			slog.Warn("monitor: cancel timed-out task failed", "task_id", t.ID, "agent", *t.AgentName, "error", err)
		}
	}
}
