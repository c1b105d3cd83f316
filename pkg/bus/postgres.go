package bus

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codeready-toolchain/meshgate/pkg/config"
	"github.com/codeready-toolchain/meshgate/pkg/errs"
)

// maxNotifyPayloadBytes is PostgreSQL's NOTIFY payload limit.
const maxNotifyPayloadBytes = 8000

// listenCmd is a LISTEN/UNLISTEN command executed by the receive loop,
// the sole goroutine that touches the dedicated listen connection.
type listenCmd struct {
	sql     string
	channel string
	gen     uint64 // generation at Unsubscribe time; 0 for LISTEN
	result  chan error
}

// PostgresBus implements Bus on PostgreSQL LISTEN/NOTIFY: publishes go
// through the shared application pool via pg_notify(), and a single
// dedicated connection serializes LISTEN/UNLISTEN and receives
// notifications. This is a direct transcription of the teacher's
// NotifyListener/ConnectionManager split (see DESIGN.md) generalized
// from WebSocket fan-out to the Bus.Subscribe handler contract.
type PostgresBus struct {
	connString string
	pool       *pgxpool.Pool
	prefix     string

	conn   *pgx.Conn
	connMu sync.Mutex

	cmdCh   chan listenCmd
	running atomic.Bool

	listenGen   map[string]uint64
	listenGenMu sync.Mutex

	subsMu    sync.Mutex
	subs      map[string]map[int]Handler // channel -> subID -> handler
	refCount  map[string]int             // channel -> number of live subscriptions
	chanTopic map[string]string          // channel -> original topic, for Message.Topic
	nextSubID int

	reconnectMinDelay time.Duration
	reconnectMaxDelay time.Duration
	receiveTimeout    time.Duration

	cancelLoop context.CancelFunc
	loopDone   chan struct{}
}

// NewPostgresBus creates a bus that publishes through pool and listens on
// a dedicated connection opened from connString.
func NewPostgresBus(connString string, pool *pgxpool.Pool, cfg *config.BusConfig) *PostgresBus {
	return &PostgresBus{
		connString:        connString,
		pool:              pool,
		prefix:            cfg.ChannelPrefix,
		cmdCh:             make(chan listenCmd, 64),
		listenGen:         make(map[string]uint64),
		subs:              make(map[string]map[int]Handler),
		refCount:          make(map[string]int),
		chanTopic:         make(map[string]string),
		reconnectMinDelay: cfg.ReconnectMinDelay,
		reconnectMaxDelay: cfg.ReconnectMaxDelay,
		receiveTimeout:    cfg.ReceiveTimeout,
	}
}

// Start opens the dedicated LISTEN connection and begins the receive loop.
func (b *PostgresBus) Start(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, b.connString)
	if err != nil {
		return fmt.Errorf("connect for LISTEN: %w", err)
	}

	b.connMu.Lock()
	b.conn = conn
	b.connMu.Unlock()
	b.running.Store(true)

	loopCtx, cancel := context.WithCancel(ctx)
	b.cancelLoop = cancel
	b.loopDone = make(chan struct{})
	go func() {
		defer close(b.loopDone)
		b.receiveLoop(loopCtx)
	}()

	slog.Info("bus started")
	return nil
}

// Publish sends payload as a NOTIFY on topic's channel.
func (b *PostgresBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if len(payload) > maxNotifyPayloadBytes {
		return errs.New(errs.Internal, fmt.Sprintf("bus payload for topic %q exceeds %d bytes", topic, maxNotifyPayloadBytes))
	}
	channel := b.channelFor(topic)
	_, err := b.pool.Exec(ctx, "SELECT pg_notify($1, $2)", channel, string(payload))
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers handler for topic, issuing LISTEN on first subscriber
// and UNLISTEN once the last subscriber for that topic unsubscribes.
func (b *PostgresBus) Subscribe(ctx context.Context, topic string, handler Handler) (Unsubscribe, error) {
	channel := b.channelFor(topic)

	b.subsMu.Lock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[int]Handler)
	}
	id := b.nextSubID
	b.nextSubID++
	b.subs[channel][id] = handler
	b.chanTopic[channel] = topic
	first := b.refCount[channel] == 0
	b.refCount[channel]++
	b.subsMu.Unlock()

	if first {
		if err := b.listen(ctx, channel); err != nil {
			b.subsMu.Lock()
			delete(b.subs[channel], id)
			b.refCount[channel]--
			b.subsMu.Unlock()
			return nil, err
		}
	}

	var once sync.Once
	return func(ctx context.Context) error {
		var unlistenErr error
		once.Do(func() {
			b.subsMu.Lock()
			delete(b.subs[channel], id)
			b.refCount[channel]--
			last := b.refCount[channel] <= 0
			if last {
				delete(b.refCount, channel)
				delete(b.subs, channel)
			}
			b.subsMu.Unlock()
			if last {
				unlistenErr = b.unlisten(ctx, channel)
			}
		})
		return unlistenErr
	}, nil
}

// Close stops the receive loop and closes the dedicated connection.
func (b *PostgresBus) Close(ctx context.Context) error {
	b.running.Store(false)
	if b.cancelLoop != nil {
		b.cancelLoop()
	}
	if b.loopDone != nil {
		<-b.loopDone
	}

	b.connMu.Lock()
	defer b.connMu.Unlock()
	if b.conn != nil {
		err := b.conn.Close(ctx)
		b.conn = nil
		return err
	}
	return nil
}

func (b *PostgresBus) channelFor(topic string) string {
	if len(b.prefix)+1+len(topic) <= 63 {
		return b.prefix + "_" + topic
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(topic))
	return fmt.Sprintf("%s_h%x", b.prefix, h.Sum64())
}

func (b *PostgresBus) listen(ctx context.Context, channel string) error {
	if !b.running.Load() {
		return fmt.Errorf("bus not started")
	}
	sanitized := pgx.Identifier{channel}.Sanitize()
	cmd := listenCmd{sql: "LISTEN " + sanitized, channel: channel, result: make(chan error, 1)}
	select {
	case b.cmdCh <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *PostgresBus) unlisten(ctx context.Context, channel string) error {
	if !b.running.Load() {
		return nil
	}
	b.listenGenMu.Lock()
	gen := b.listenGen[channel]
	b.listenGenMu.Unlock()

	sanitized := pgx.Identifier{channel}.Sanitize()
	cmd := listenCmd{sql: "UNLISTEN " + sanitized, channel: channel, gen: gen, result: make(chan error, 1)}
	select {
	case b.cmdCh <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// receiveLoop is the sole goroutine that touches the dedicated LISTEN
// connection, avoiding concurrent-access races between WaitForNotification
// and Exec. Grounded on the teacher's NotifyListener.receiveLoop.
func (b *PostgresBus) receiveLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		b.processPendingCmds(ctx)

		b.connMu.Lock()
		conn := b.conn
		b.connMu.Unlock()

		if conn == nil {
			b.reconnect(ctx)
			continue
		}

		waitCtx, cancel := context.WithTimeout(ctx, b.receiveTimeout)
		notification, err := conn.WaitForNotification(waitCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if waitCtx.Err() != nil {
				continue
			}
			slog.Error("bus NOTIFY receive error", "error", err)
			b.reconnect(ctx)
			continue
		}

		b.subsMu.Lock()
		handlers := make([]Handler, 0, len(b.subs[notification.Channel]))
		for _, h := range b.subs[notification.Channel] {
			handlers = append(handlers, h)
		}
		topic := b.chanTopic[notification.Channel]
		b.subsMu.Unlock()

		msg := Message{Topic: topic, Payload: []byte(notification.Payload)}
		for _, h := range handlers {
			h(msg)
		}
	}
}

func (b *PostgresBus) processPendingCmds(ctx context.Context) {
	for {
		select {
		case cmd := <-b.cmdCh:
			if cmd.gen > 0 {
				b.listenGenMu.Lock()
				stale := b.listenGen[cmd.channel] != cmd.gen
				b.listenGenMu.Unlock()
				if stale {
					cmd.result <- nil
					continue
				}
			}

			b.connMu.Lock()
			conn := b.conn
			b.connMu.Unlock()

			if conn == nil {
				cmd.result <- fmt.Errorf("LISTEN connection not established")
				continue
			}

			_, err := conn.Exec(ctx, cmd.sql)
			if err == nil && cmd.gen == 0 && cmd.channel != "" {
				b.listenGenMu.Lock()
				b.listenGen[cmd.channel]++
				b.listenGenMu.Unlock()
			}
			cmd.result <- err
		default:
			return
		}
	}
}

func (b *PostgresBus) reconnect(ctx context.Context) {
	b.connMu.Lock()
	defer b.connMu.Unlock()

	if b.conn != nil {
		_ = b.conn.Close(ctx)
		b.conn = nil
	}

	backoff := b.reconnectMinDelay
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		conn, err := pgx.Connect(ctx, b.connString)
		if err != nil {
			slog.Error("bus LISTEN reconnect failed", "error", err, "backoff", backoff)
			backoff = min(backoff*2, b.reconnectMaxDelay)
			continue
		}
		b.conn = conn

		b.subsMu.Lock()
		for channel := range b.subs {
			sanitized := pgx.Identifier{channel}.Sanitize()
			if _, err := conn.Exec(ctx, "LISTEN "+sanitized); err != nil {
				slog.Error("bus re-LISTEN failed", "channel", channel, "error", err)
			}
		}
		b.subsMu.Unlock()

		slog.Info("bus reconnected")
		return
	}
}
