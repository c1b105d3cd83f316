package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/meshgate/pkg/repository"
)

// leaderElector owns the single-row scheduler_lock and notifies the Engine
// of promotion/demotion (spec §4.7 "Leader election").
type leaderElector struct {
	lock       *repository.SchedulerLockRepository
	instanceID string
	namespace  string

	heartbeatInterval time.Duration
	leaseDuration     time.Duration

	onPromoted func(ctx context.Context)
	onDemoted  func()

	isLeader bool
}

func newLeaderElector(lock *repository.SchedulerLockRepository, instanceID, namespace string, heartbeatInterval, leaseDuration time.Duration) *leaderElector {
	if heartbeatInterval <= 0 {
		heartbeatInterval = 30 * time.Second
	}
	if leaseDuration <= 0 {
		leaseDuration = 60 * time.Second
	}
	return &leaderElector{
		lock:              lock,
		instanceID:        instanceID,
		namespace:         namespace,
		heartbeatInterval: heartbeatInterval,
		leaseDuration:     leaseDuration,
	}
}

// Run blocks until ctx is cancelled, periodically attempting to acquire or
// renew leadership.
func (e *leaderElector) Run(ctx context.Context) {
	now := time.Now().UnixMilli()
	if err := e.lock.EnsureRow(ctx, now); err != nil {
		slog.Error("scheduler: ensure lock row failed", "error", err)
	}

	ticker := time.NewTicker(e.heartbeatInterval)
	defer ticker.Stop()

	e.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *leaderElector) tick(ctx context.Context) {
	now := time.Now().UnixMilli()
	expiresAt := now + e.leaseDuration.Milliseconds()

	if !e.isLeader {
		acquired, err := e.lock.TryAcquire(ctx, e.instanceID, e.namespace, now, expiresAt)
		if err != nil {
			slog.Error("scheduler: try acquire leadership failed", "error", err)
			return
		}
		if acquired {
			e.isLeader = true
			slog.Info("scheduler: promoted to leader", "instance_id", e.instanceID)
			if e.onPromoted != nil {
				e.onPromoted(ctx)
			}
		}
		return
	}

	renewed, err := e.lock.Heartbeat(ctx, e.instanceID, now, expiresAt)
	if err != nil {
		slog.Error("scheduler: heartbeat failed", "error", err)
		return
	}
	if !renewed {
		e.isLeader = false
		slog.Warn("scheduler: lost leadership", "instance_id", e.instanceID)
		if e.onDemoted != nil {
			e.onDemoted()
		}
	}
}

func (e *leaderElector) IsLeader() bool { return e.isLeader }
