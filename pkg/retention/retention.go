// Package retention implements the DataRetentionService of spec §4.11:
// periodic, batched pruning of terminal data past its configured TTL.
// Adapted from the teacher's pkg/cleanup.Service ticker-driven loop.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/meshgate/pkg/config"
	"github.com/codeready-toolchain/meshgate/pkg/repository"
)

// Service periodically prunes terminal data past its configured
// retention window: soft-deleted sessions, old task audit rows, old
// feedback, task events past their TTL, and SSE replay-buffer rows (consumed
// or not — spec §4.11 "not restricted to consumed events").
type Service struct {
	cfg *config.RetentionConfig

	sessions   *repository.SessionRepository
	tasks      *repository.TaskRepository
	feedback   *repository.FeedbackRepository
	taskEvents *repository.TaskEventRepository
	sseBuffer  *repository.SSEEventBufferRepository

	now func() int64
}

func New(
	cfg *config.RetentionConfig,
	sessions *repository.SessionRepository,
	tasks *repository.TaskRepository,
	feedback *repository.FeedbackRepository,
	taskEvents *repository.TaskEventRepository,
	sseBuffer *repository.SSEEventBufferRepository,
) *Service {
	return &Service{
		cfg:        cfg,
		sessions:   sessions,
		tasks:      tasks,
		feedback:   feedback,
		taskEvents: taskEvents,
		sseBuffer:  sseBuffer,
		now:        func() int64 { return time.Now().UnixMilli() },
	}
}

// Run sweeps once immediately, then on cfg.CleanupInterval until ctx is
// cancelled.
func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(0)
	if s.cfg != nil {
		interval = s.cfg.CleanupInterval
	}
	if interval <= 0 {
		interval = 12 * time.Hour
	}

	s.sweep(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Service) sweep(ctx context.Context) {
	batchSize := 500
	if s.cfg != nil && s.cfg.BatchSize > 0 {
		batchSize = s.cfg.BatchSize
	}
	now := s.now()

	sessionDays, taskDays, feedbackDays := 365, 90, 180
	taskEventTTL, sseBufferTTL := 30*24*time.Hour, 24*time.Hour
	if s.cfg != nil {
		if s.cfg.SessionRetentionDays > 0 {
			sessionDays = s.cfg.SessionRetentionDays
		}
		if s.cfg.TaskRetentionDays > 0 {
			taskDays = s.cfg.TaskRetentionDays
		}
		if s.cfg.FeedbackRetentionDays > 0 {
			feedbackDays = s.cfg.FeedbackRetentionDays
		}
		if s.cfg.TaskEventTTL > 0 {
			taskEventTTL = s.cfg.TaskEventTTL
		}
		if s.cfg.SSEBufferTTL > 0 {
			sseBufferTTL = s.cfg.SSEBufferTTL
		}
	}

	s.deleteInBatches(ctx, "sessions", batchSize, func(cutoff int64, limit int) (int64, error) {
		return s.sessions.DeleteOlderThan(ctx, cutoff, limit)
	}, daysAgo(now, sessionDays))

	s.deleteInBatches(ctx, "tasks", batchSize, func(cutoff int64, limit int) (int64, error) {
		return s.tasks.DeleteOlderThan(ctx, cutoff, limit)
	}, daysAgo(now, taskDays))

	s.deleteInBatches(ctx, "feedback", batchSize, func(cutoff int64, limit int) (int64, error) {
		return s.feedback.DeleteOlderThan(ctx, cutoff, limit)
	}, daysAgo(now, feedbackDays))

	s.deleteInBatches(ctx, "task_events", batchSize, func(cutoff int64, limit int) (int64, error) {
		return s.taskEvents.DeleteOlderThan(ctx, cutoff, limit)
	}, now-taskEventTTL.Milliseconds())

	s.deleteInBatches(ctx, "sse_event_buffer", batchSize, func(cutoff int64, limit int) (int64, error) {
		return s.sseBuffer.DeleteOlderThan(ctx, cutoff, limit)
	}, now-sseBufferTTL.Milliseconds())
}

// deleteInBatches loops delete until a batch comes back empty, following
// the repositories' own batched-delete contract (spec §4.11 "loop
// deleting in batches until none remain").
func (s *Service) deleteInBatches(ctx context.Context, what string, batchSize int, del func(cutoff int64, limit int) (int64, error), cutoff int64) {
	total := int64(0)
	for {
		n, err := del(cutoff, batchSize)
		if err != nil {
			slog.Error("retention: batched delete failed", "what", what, "error", err)
			return
		}
		total += n
		if n < int64(batchSize) {
			break
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
	if total > 0 {
		slog.Info("retention: pruned rows", "what", what, "count", total)
	}
}

func daysAgo(nowMillis int64, days int) int64 {
	return nowMillis - int64(days)*24*60*60*1000
}
