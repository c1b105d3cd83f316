// Package sse fans out task events to HTTP SSE consumers and buffers them
// across connection races and background-task reconnects (spec §4.2, §4.3).
package sse

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/codeready-toolchain/meshgate/pkg/config"
)

// queuePutTimeout bounds how long sendEvent blocks on a single slow
// consumer before dropping that consumer's event and unregistering it.
const queuePutTimeout = 100 * time.Millisecond

// queueItem is either a payload delivery or the close sentinel.
type queueItem struct {
	frame  []byte
	closed bool
}

// Consumer is one attached SSE client's bounded delivery queue.
type Consumer struct {
	id     int
	taskID string
	queue  chan *queueItem
}

// Recv blocks until the next frame or the close sentinel (queueItem.closed).
func (c *Consumer) Recv() (frame []byte, closed bool) {
	item, ok := <-c.queue
	if !ok || item == nil {
		return nil, true
	}
	return item.frame, item.closed
}

// taskMeta tracks everything SSEManager knows about a taskId independent
// of whether any consumer is currently attached.
type taskMeta struct {
	isBackground bool
	sessionID    string
	userID       string
	hadConsumer  bool
}

// Manager is the SSEManager of spec §4.2.
type Manager struct {
	cfg *config.SSEConfig

	mu          sync.Mutex
	consumers   map[string][]*Consumer // taskId -> attached consumers
	inMemBuffer map[string][]*Event    // taskId -> short-lived race-window buffer
	meta        map[string]*taskMeta
	nextConsID  int

	persistent *PersistentEventBuffer
}

// NewManager constructs an SSEManager. persistent may be nil in tests that
// don't exercise background-task replay.
func NewManager(cfg *config.SSEConfig, persistent *PersistentEventBuffer) *Manager {
	return &Manager{
		cfg:         cfg,
		consumers:   make(map[string][]*Consumer),
		inMemBuffer: make(map[string][]*Event),
		meta:        make(map[string]*taskMeta),
		persistent:  persistent,
	}
}

func (m *Manager) metaFor(taskID string) *taskMeta {
	mt, ok := m.meta[taskID]
	if !ok {
		mt = &taskMeta{}
		m.meta[taskID] = mt
	}
	return mt
}

// RegisterBackgroundTask records a task's owner before any Task row or
// consumer necessarily exists, so persisted events can be attributed
// (dispatcher calls this pre-publish, spec §4.1 step 5).
func (m *Manager) RegisterBackgroundTask(taskID, sessionID, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mt := m.metaFor(taskID)
	mt.isBackground = true
	mt.sessionID = sessionID
	mt.userID = userID
}

// Subscribe attaches a new consumer to taskId and atomically drains any
// backlog (in-memory race-window buffer first, else the persistent replay
// log for a background task) so no event is lost between "buffer ended" and
// "queue started".
func (m *Manager) Subscribe(ctx context.Context, taskID string) (*Consumer, []*Event) {
	m.mu.Lock()

	m.nextConsID++
	c := &Consumer{
		id:     m.nextConsID,
		taskID: taskID,
		queue:  make(chan *queueItem, m.queueSize()),
	}
	m.consumers[taskID] = append(m.consumers[taskID], c)

	backlog := m.inMemBuffer[taskID]
	delete(m.inMemBuffer, taskID)

	mt := m.metaFor(taskID)
	wasFirstConsumer := !mt.hadConsumer
	mt.hadConsumer = true
	isBackground := mt.isBackground
	m.mu.Unlock()

	// Background tasks with a prior consumer replay from the durable log
	// instead of the (already-dropped) in-memory buffer.
	if isBackground && !wasFirstConsumer && m.persistent != nil {
		replayed, err := m.persistent.GetBufferedEvents(ctx, taskID, false)
		if err != nil {
			slog.Error("sse: replay from persistent buffer failed", "task_id", taskID, "error", err)
		} else {
			return c, replayed
		}
	}

	return c, backlog
}

func (m *Manager) queueSize() int {
	if m.cfg != nil && m.cfg.QueueBufferSize > 0 {
		return m.cfg.QueueBufferSize
	}
	return 200
}

// Unsubscribe detaches one consumer. If it was the last attached consumer
// for taskId and at least one consumer had ever attached, the in-memory
// buffer becomes droppable and is dropped (spec §4.2 close semantics).
func (m *Manager) Unsubscribe(taskID string, c *Consumer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeConsumerLocked(taskID, c)
}

func (m *Manager) removeConsumerLocked(taskID string, target *Consumer) {
	subs := m.consumers[taskID]
	for i, c := range subs {
		if c == target {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(m.consumers, taskID)
		if mt, ok := m.meta[taskID]; ok && mt.hadConsumer {
			delete(m.inMemBuffer, taskID)
		}
	} else {
		m.consumers[taskID] = subs
	}
}

// SendEvent fans an event out to every attached consumer for taskId and, for
// a background task, unconditionally persists it to the durable buffer
// first — not just when no consumer is attached. Reconnect replay
// (GetBufferedEvents) must return the full event sequence regardless of
// whether a consumer was live when each event arrived, so persistence can't
// be gated on subscriber presence (spec §4.3, §8 scenario 2). The
// short-lived in-memory race buffer is still used, but only to cover the
// window before a task's first consumer ever attaches.
func (m *Manager) SendEvent(ctx context.Context, taskID, eventType string, data []byte) {
	m.mu.Lock()
	subs := append([]*Consumer(nil), m.consumers[taskID]...)
	mt := m.metaFor(taskID)
	isBackground := mt.isBackground
	hadConsumer := mt.hadConsumer
	sessionID, userID := mt.sessionID, mt.userID

	if len(subs) == 0 && !(isBackground && hadConsumer) {
		m.inMemBuffer[taskID] = append(m.inMemBuffer[taskID], &Event{
			TaskID: taskID, Type: eventType, Data: append([]byte(nil), data...),
		})
	}
	m.mu.Unlock()

	if isBackground && m.persistent != nil {
		if err := m.persistent.BufferEvent(ctx, taskID, sessionID, userID, eventType, data); err != nil {
			slog.Error("sse: persist background event failed", "task_id", taskID, "error", err)
		}
	}

	if len(subs) == 0 {
		return
	}
	frame := Format(eventType, data)
	for _, c := range subs {
		m.deliver(taskID, c, &queueItem{frame: frame})
	}
}

// deliver puts item on c's queue with a short bounded timeout; exceeding it
// drops the event for that consumer only and unregisters the offending
// queue, leaving every other consumer unaffected.
func (m *Manager) deliver(taskID string, c *Consumer, item *queueItem) {
	select {
	case c.queue <- item:
	case <-time.After(queuePutTimeout):
		slog.Warn("sse: consumer queue full, dropping and unregistering", "task_id", taskID, "consumer_id", c.id)
		m.Unsubscribe(taskID, c)
	}
}

// Close terminates every consumer attached to taskId (writing the close
// sentinel so their SSE response generators return) and drops its buffer
// if it had ever had a consumer.
func (m *Manager) Close(taskID string) {
	m.mu.Lock()
	subs := m.consumers[taskID]
	delete(m.consumers, taskID)
	if mt, ok := m.meta[taskID]; ok && mt.hadConsumer {
		delete(m.inMemBuffer, taskID)
	}
	m.mu.Unlock()

	for _, c := range subs {
		select {
		case c.queue <- &queueItem{closed: true}:
		default:
		}
	}
}
