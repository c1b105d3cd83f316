// Package events provides a generic WebSocket connection/channel fan-out,
// with PostgreSQL NOTIFY/LISTEN distributing broadcasts across pods.
//
// This gateway's primary real-time surface is SSE (pkg/sse). This package
// backs the supplementary dashboard WebSocket channel (spec §6.1 addendum):
// gateway/scheduler operational events mirrored here for internal tooling,
// never required by a REST/SSE client.
package events

// Dashboard event types. Only EventTypeSchedulerStatus is published (by
// pkg/api's BroadcastSchedulerStatus); nothing publishes the task types.
const (
	EventTypeTaskStatus      = "task.status"
	EventTypeTaskFinal       = "task.final"
	EventTypeSchedulerStatus = "scheduler.status"
)

// DashboardChannel is the single channel dashboard clients subscribe to.
const DashboardChannel = "dashboard"

// ClientMessage is the JSON structure for client → server WebSocket messages.
type ClientMessage struct {
	Action      string `json:"action"`                  // "subscribe", "unsubscribe", "catchup", "ping"
	Channel     string `json:"channel,omitempty"`       // Channel name (e.g., "dashboard")
	LastEventID *int   `json:"last_event_id,omitempty"` // For catchup
}
