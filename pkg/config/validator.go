package config

import (
	"fmt"
	"log/slog"
	"time"
)

// Validate performs hard-floor validation across every config section,
// clamping values that are merely too aggressive (with a warning) and
// rejecting values that are structurally invalid (negative, zero where
// positive is required, inverted relationships).
func Validate(cfg *Config) error {
	if err := validateServer(cfg.Server); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := validateDatabase(cfg.Database); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := validateDispatcher(cfg.Dispatcher); err != nil {
		return fmt.Errorf("dispatcher: %w", err)
	}
	if err := validateSSE(cfg.SSE); err != nil {
		return fmt.Errorf("sse: %w", err)
	}
	if err := validateRegistry(cfg.Registry); err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	if err := validateScheduler(cfg.Scheduler); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	clampRetention(cfg.Retention)
	if err := validateDocConv(cfg.DocConv); err != nil {
		return fmt.Errorf("doc_conversion: %w", err)
	}
	return nil
}

func validateServer(s *ServerConfig) error {
	if s.ListenAddr == "" {
		return NewValidationError("server", "listen_addr", fmt.Errorf("required"))
	}
	if s.ReadTimeout < 0 {
		return NewValidationError("server", "read_timeout", fmt.Errorf("must be non-negative"))
	}
	return nil
}

func validateDatabase(d *DatabaseConfig) error {
	if d.Host == "" {
		return NewValidationError("database", "host", fmt.Errorf("required"))
	}
	if d.Port <= 0 {
		return NewValidationError("database", "port", fmt.Errorf("must be positive"))
	}
	if d.MaxConns < 1 {
		return NewValidationError("database", "max_conns", fmt.Errorf("must be at least 1"))
	}
	if d.MinConns > d.MaxConns {
		return NewValidationError("database", "min_conns", fmt.Errorf("must not exceed max_conns"))
	}
	return nil
}

func validateDispatcher(d *DispatcherConfig) error {
	if d.ReplyTimeout <= 0 {
		return NewValidationError("dispatcher", "reply_timeout", fmt.Errorf("must be positive"))
	}
	if d.MaxPendingTasks < 1 {
		return NewValidationError("dispatcher", "max_pending_tasks", fmt.Errorf("must be at least 1"))
	}
	if d.PublishRetries < 0 {
		return NewValidationError("dispatcher", "publish_retries", fmt.Errorf("must be non-negative"))
	}
	return nil
}

func validateSSE(s *SSEConfig) error {
	if s.QueueBufferSize < 1 {
		return NewValidationError("sse", "queue_buffer_size", fmt.Errorf("must be at least 1"))
	}
	if s.CatchupLimit < 1 {
		return NewValidationError("sse", "catchup_limit", fmt.Errorf("must be at least 1"))
	}
	if s.WriteTimeout <= 0 {
		return NewValidationError("sse", "write_timeout", fmt.Errorf("must be positive"))
	}
	return nil
}

func validateRegistry(r *RegistryConfig) error {
	if r.AgentTTL <= 0 {
		return NewValidationError("registry", "agent_ttl", fmt.Errorf("must be positive"))
	}
	if r.GatewayTTL <= 0 {
		return NewValidationError("registry", "gateway_ttl", fmt.Errorf("must be positive"))
	}
	if r.HealthCheckInterval <= 0 {
		return NewValidationError("registry", "health_check_interval", fmt.Errorf("must be positive"))
	}
	if r.HealthCheckInterval >= r.AgentTTL {
		return NewValidationError("registry", "health_check_interval", fmt.Errorf("must be less than agent_ttl"))
	}
	return nil
}

func validateScheduler(s *SchedulerConfig) error {
	if !s.Enabled {
		return nil
	}
	if s.Mode != SchedulerModeEmbedded && s.Mode != SchedulerModeOrchestrator {
		return NewValidationError("scheduler", "mode", fmt.Errorf("invalid mode: %s", s.Mode))
	}
	if s.LeaseDuration <= 0 {
		return NewValidationError("scheduler", "lease_duration", fmt.Errorf("must be positive"))
	}
	if s.HeartbeatInterval <= 0 {
		return NewValidationError("scheduler", "heartbeat_interval", fmt.Errorf("must be positive"))
	}
	if s.HeartbeatInterval*2 >= s.LeaseDuration {
		return NewValidationError("scheduler", "heartbeat_interval", fmt.Errorf("must leave room for at least two heartbeats within lease_duration"))
	}
	if s.DefaultMaxRetries < 0 {
		return NewValidationError("scheduler", "default_max_retries", fmt.Errorf("must be non-negative"))
	}
	return nil
}

// hard floors below which retention intervals would risk starving the
// cleanup loop or deleting live data; values under the floor are clamped
// up with a warning rather than rejected, since retention is an operator
// tuning knob, not a correctness-critical input.
const (
	minCleanupInterval      = 1 * time.Hour
	minSessionRetentionDays = 1
	minTaskRetentionDays    = 1
	minFeedbackRetentionDays = 1
	minTaskEventTTL         = 1 * time.Hour
	minBatchSize            = 1
	maxBatchSize            = 10000
)

// clampRetention enforces spec §4.11's hard floors — and, for batch size,
// ceiling — with a warning rather than rejecting the config outright,
// since retention is an operator tuning knob, not a correctness-critical input.
func clampRetention(r *RetentionConfig) {
	if r.CleanupInterval < minCleanupInterval {
		slog.Warn("retention.cleanup_interval below floor, clamping",
			"configured", r.CleanupInterval, "floor", minCleanupInterval)
		r.CleanupInterval = minCleanupInterval
	}
	if r.SessionRetentionDays < minSessionRetentionDays {
		slog.Warn("retention.session_retention_days below floor, clamping",
			"configured", r.SessionRetentionDays, "floor", minSessionRetentionDays)
		r.SessionRetentionDays = minSessionRetentionDays
	}
	if r.TaskRetentionDays < minTaskRetentionDays {
		slog.Warn("retention.task_retention_days below floor, clamping",
			"configured", r.TaskRetentionDays, "floor", minTaskRetentionDays)
		r.TaskRetentionDays = minTaskRetentionDays
	}
	if r.FeedbackRetentionDays < minFeedbackRetentionDays {
		slog.Warn("retention.feedback_retention_days below floor, clamping",
			"configured", r.FeedbackRetentionDays, "floor", minFeedbackRetentionDays)
		r.FeedbackRetentionDays = minFeedbackRetentionDays
	}
	if r.TaskEventTTL < minTaskEventTTL {
		slog.Warn("retention.task_event_ttl below floor, clamping",
			"configured", r.TaskEventTTL, "floor", minTaskEventTTL)
		r.TaskEventTTL = minTaskEventTTL
	}
	if r.SSEBufferTTL < minTaskEventTTL {
		slog.Warn("retention.sse_buffer_ttl below floor, clamping",
			"configured", r.SSEBufferTTL, "floor", minTaskEventTTL)
		r.SSEBufferTTL = minTaskEventTTL
	}
	if r.BatchSize < minBatchSize {
		slog.Warn("retention.batch_size below floor, clamping", "configured", r.BatchSize, "floor", minBatchSize)
		r.BatchSize = minBatchSize
	}
	if r.BatchSize > maxBatchSize {
		slog.Warn("retention.batch_size above ceiling, clamping", "configured", r.BatchSize, "ceiling", maxBatchSize)
		r.BatchSize = maxBatchSize
	}
}

func validateDocConv(d *DocConvConfig) error {
	if d.ConversionTimeout <= 0 {
		return NewValidationError("doc_conversion", "conversion_timeout", fmt.Errorf("must be positive"))
	}
	if d.PollMinInterval <= 0 || d.PollMaxInterval < d.PollMinInterval {
		return NewValidationError("doc_conversion", "poll_min_interval/poll_max_interval", fmt.Errorf("poll_min_interval must be positive and not exceed poll_max_interval"))
	}
	if d.MaxPollAttempts < 1 {
		return NewValidationError("doc_conversion", "max_poll_attempts", fmt.Errorf("must be at least 1"))
	}
	return nil
}
