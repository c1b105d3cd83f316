package sse

import (
	"context"
	"fmt"
	"sync"

	"github.com/codeready-toolchain/meshgate/pkg/errs"
	"github.com/codeready-toolchain/meshgate/pkg/model"
	"github.com/codeready-toolchain/meshgate/pkg/repository"
)

// maxReplayEvents bounds a single replay query; a background task producing
// more events than this in one lifetime is pathological, not a normal case.
const maxReplayEvents = 100000

// PersistentEventBuffer is the durable SSE event log of spec §4.3: it lets
// a background task be replayed from the beginning when a client reattaches
// minutes or hours after the originating request returned.
type PersistentEventBuffer struct {
	events *repository.SSEEventBufferRepository
	tasks  *repository.TaskRepository

	mu      sync.Mutex
	nextSeq map[string]int64 // taskId -> next eventSequence to assign

	now func() int64
}

func NewPersistentEventBuffer(events *repository.SSEEventBufferRepository, tasks *repository.TaskRepository, now func() int64) *PersistentEventBuffer {
	return &PersistentEventBuffer{
		events:  events,
		tasks:   tasks,
		nextSeq: make(map[string]int64),
		now:     now,
	}
}

// RegisterTask primes the sequence counter for taskId. Calling it is
// optional — BufferEvent lazily starts a task's counter at 1 — but the
// dispatcher calls it up front (spec §4.1 step 5), before the Task row
// exists. The task's owner metadata is recorded by
// Manager.RegisterBackgroundTask, not here.
func (b *PersistentEventBuffer) RegisterTask(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.nextSeq[taskID]; !ok {
		b.nextSeq[taskID] = 1
	}
}

// BufferEvent appends one event with a monotonically assigned eventSequence
// and marks the owning Task row as having buffered events, if it exists yet.
func (b *PersistentEventBuffer) BufferEvent(ctx context.Context, taskID, sessionID, userID, eventType string, data []byte) error {
	b.mu.Lock()
	seq := b.nextSeq[taskID]
	if seq == 0 {
		seq = 1
	}
	b.nextSeq[taskID] = seq + 1
	b.mu.Unlock()

	now := b.now()
	if err := b.events.Append(ctx, &model.SSEEventBufferEntry{
		TaskID:        taskID,
		SessionID:     sessionID,
		UserID:        userID,
		EventSequence: seq,
		EventType:     eventType,
		EventData:     data,
		CreatedAt:     now,
	}); err != nil {
		return fmt.Errorf("buffer sse event: %w", err)
	}

	if b.tasks != nil {
		if err := b.tasks.MarkHasBufferedEvents(ctx, taskID, true); err != nil && !errs.Is(err, errs.NotFound) {
			return fmt.Errorf("mark task has buffered events: %w", err)
		}
	}
	return nil
}

// GetBufferedEvents returns taskId's events in sequence order. If
// markConsumed, they are flagged consumed so a second reattach (under the
// at-most-once-under-consumption policy) does not see them again; clients
// that decline consumption always see the full backlog.
func (b *PersistentEventBuffer) GetBufferedEvents(ctx context.Context, taskID string, markConsumed bool) ([]*Event, error) {
	entries, err := b.events.ListUnconsumed(ctx, taskID, maxReplayEvents)
	if err != nil {
		return nil, fmt.Errorf("list buffered events: %w", err)
	}
	out := toEvents(entries)
	if markConsumed && len(entries) > 0 {
		if err := b.events.MarkConsumed(ctx, taskID, b.now()); err != nil {
			return nil, fmt.Errorf("mark sse events consumed: %w", err)
		}
	}
	return out, nil
}

// GetUnconsumedEventsForSession detects attachable background work on
// session load, across every task in the session.
func (b *PersistentEventBuffer) GetUnconsumedEventsForSession(ctx context.Context, sessionID string) ([]*Event, error) {
	entries, err := b.events.ListUnconsumedBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list unconsumed events for session: %w", err)
	}
	return toEvents(entries), nil
}

// CleanupConsumed is the retention hook (spec §4.11): it deletes buffer
// rows older than cutoffMs regardless of consumed state, since unconsumed
// backlogs that were never reattached to must still age out.
func (b *PersistentEventBuffer) CleanupConsumed(ctx context.Context, cutoffMs int64, batchSize int) (int64, error) {
	total, err := b.events.DeleteOlderThan(ctx, cutoffMs, batchSize)
	if err != nil {
		return total, fmt.Errorf("cleanup sse buffer: %w", err)
	}
	return total, nil
}

func toEvents(entries []*model.SSEEventBufferEntry) []*Event {
	out := make([]*Event, 0, len(entries))
	for _, e := range entries {
		out = append(out, &Event{
			TaskID:    e.TaskID,
			Type:      e.EventType,
			Sequence:  e.EventSequence,
			CreatedAt: e.CreatedAt,
			Data:      e.EventData,
		})
	}
	return out
}
