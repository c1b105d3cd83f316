// Package bus defines the narrow publish/subscribe contract the gateway
// core dispatches task requests and results over, and a concrete adapter
// implementing it on PostgreSQL LISTEN/NOTIFY.
package bus

import "context"

// Message is one payload delivered on a topic.
type Message struct {
	Topic   string
	Payload []byte
}

// Handler receives messages for a subscribed topic. Handlers run on the
// bus's own dispatch goroutine and must not block for long — callers that
// need to do real work should hand the message off to a worker.
type Handler func(msg Message)

// Unsubscribe removes a prior Subscribe registration. Safe to call more
// than once; the second call is a no-op.
type Unsubscribe func(ctx context.Context) error

// Bus is the abstract pub/sub transport the gateway core depends on. A2A
// task requests are published to an agent's topic and task events/results
// are published back to the gateway's reply topic; the core only ever
// needs this publish/subscribe contract, never the transport's own wire
// format (spec §1, §6.2).
type Bus interface {
	// Publish delivers payload to every current subscriber of topic.
	// Delivery is at-most-once and best-effort: Publish returning nil means
	// the transport accepted the message, not that a subscriber received it.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers handler to receive messages published to topic.
	// Multiple Subscribe calls for the same topic each receive a copy.
	Subscribe(ctx context.Context, topic string, handler Handler) (Unsubscribe, error)

	// Close shuts the transport down, unsubscribing every topic and
	// releasing the underlying connection.
	Close(ctx context.Context) error
}
