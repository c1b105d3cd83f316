// Package config loads and validates the gateway's YAML configuration,
// following the teacher's load→merge-over-defaults→validate pipeline
// (gopkg.in/yaml.v3 + dario.cat/mergo + joho/godotenv for local .env files).
package config

import "time"

// GatewayYAMLConfig is the top-level shape of gateway.yaml.
type GatewayYAMLConfig struct {
	Server       *ServerConfig       `yaml:"server"`
	Database     *DatabaseConfig     `yaml:"database"`
	Bus          *BusConfig          `yaml:"bus"`
	Dispatcher   *DispatcherConfig   `yaml:"dispatcher"`
	SSE          *SSEConfig          `yaml:"sse"`
	Registry     *RegistryConfig     `yaml:"registry"`
	Conversation *ConversationConfig `yaml:"conversation"`
	Scheduler    *SchedulerConfig    `yaml:"scheduler"`
	Retention    *RetentionConfig    `yaml:"retention"`
	DocConv      *DocConvConfig      `yaml:"doc_conversion"`
	Metrics      *MetricsConfig      `yaml:"metrics"`
	Quota        *QuotaConfig        `yaml:"quota"`
	LLM          *LLMConfig          `yaml:"llm"`
	Monitor      *MonitorConfig      `yaml:"monitor"`
}

// Config is the umbrella object returned by Initialize and threaded through
// the gateway's components.
type Config struct {
	configDir string

	Server       *ServerConfig
	Database     *DatabaseConfig
	Bus          *BusConfig
	Dispatcher   *DispatcherConfig
	SSE          *SSEConfig
	Registry     *RegistryConfig
	Conversation *ConversationConfig
	Scheduler    *SchedulerConfig
	Retention    *RetentionConfig
	DocConv      *DocConvConfig
	Metrics      *MetricsConfig
	Quota        *QuotaConfig
	LLM          *LLMConfig
	Monitor      *MonitorConfig
}

// ConfigDir returns the directory configuration was loaded from.
func (c *Config) ConfigDir() string { return c.configDir }

// ServerConfig controls the echo v5 HTTP/SSE surface (spec §6, §6.1 addendum).
type ServerConfig struct {
	ListenAddr       string        `yaml:"listen_addr"`
	AllowedWSOrigins []string      `yaml:"allowed_ws_origins"`
	DashboardWS      bool          `yaml:"dashboard_ws_enabled"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig is the pgx/v5 pool + golang-migrate configuration.
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	PasswordEnv     string        `yaml:"password_env"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MigrationsPath  string        `yaml:"migrations_path"`
}

// BusConfig is the Postgres LISTEN/NOTIFY transport configuration.
type BusConfig struct {
	ChannelPrefix     string        `yaml:"channel_prefix"`
	ReconnectMinDelay time.Duration `yaml:"reconnect_min_delay"`
	ReconnectMaxDelay time.Duration `yaml:"reconnect_max_delay"`
	ReceiveTimeout    time.Duration `yaml:"receive_timeout"`
}

// DispatcherConfig controls the task submission→bus dispatch path (spec §4.1).
type DispatcherConfig struct {
	ReplyTimeout    time.Duration `yaml:"reply_timeout"`
	MaxPendingTasks int           `yaml:"max_pending_tasks"`
	PublishRetries  int           `yaml:"publish_retries"`
}

// SSEConfig controls the SSEManager + PersistentEventBuffer (spec §4.2, §4.3).
type SSEConfig struct {
	QueueBufferSize          int           `yaml:"queue_buffer_size"`
	WriteTimeout             time.Duration `yaml:"write_timeout"`
	CatchupLimit             int           `yaml:"catchup_limit"`
	HeartbeatInterval        time.Duration `yaml:"heartbeat_interval"`
	BackgroundTaskGracePeriod time.Duration `yaml:"background_task_grace_period"`
}

// RegistryConfig controls AgentRegistry/GatewayRegistry TTLs (spec §4.4).
type RegistryConfig struct {
	AgentTTL            time.Duration `yaml:"agent_ttl"`
	GatewayTTL          time.Duration `yaml:"gateway_ttl"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
	MaxMissedHeartbeats int           `yaml:"max_missed_heartbeats"`
}

// ConversationConfig controls SessionService compression/branching (spec §4.5/§4.6).
type ConversationConfig struct {
	CompressionThresholdTokens int  `yaml:"compression_threshold_tokens"`
	SummaryMaxTokens           int  `yaml:"summary_max_tokens"`
	CompressionFallbackEnabled bool `yaml:"compression_fallback_enabled"`
}

// SchedulerMode controls whether the scheduler runs its own leader
// election, or defers to an external orchestrator (spec §4.7 open question).
type SchedulerMode string

const (
	SchedulerModeEmbedded    SchedulerMode = "embedded"
	SchedulerModeOrchestrator SchedulerMode = "orchestrator_delegated"
)

// SchedulerConfig controls leader election + trigger firing (spec §4.7/§4.8).
type SchedulerConfig struct {
	Enabled              bool          `yaml:"enabled"`
	Mode                 SchedulerMode `yaml:"mode"`
	LeaseDuration        time.Duration `yaml:"lease_duration"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	PollInterval         time.Duration `yaml:"poll_interval"`
	DefaultMaxRetries    int           `yaml:"default_max_retries"`
	DefaultRetryDelay    time.Duration `yaml:"default_retry_delay"`
	DefaultTimeout       time.Duration `yaml:"default_timeout"`
	StaleExecutionReaper time.Duration `yaml:"stale_execution_reaper_interval"`
}

// RetentionConfig controls the DataRetentionService (spec §4.11).
type RetentionConfig struct {
	SessionRetentionDays  int           `yaml:"session_retention_days"`
	TaskRetentionDays     int           `yaml:"task_retention_days"`
	FeedbackRetentionDays int           `yaml:"feedback_retention_days"`
	TaskEventTTL          time.Duration `yaml:"task_event_ttl"`
	SSEBufferTTL          time.Duration `yaml:"sse_buffer_ttl"`
	CleanupInterval       time.Duration `yaml:"cleanup_interval"`
	BatchSize             int           `yaml:"batch_size"`
}

// DocConvConfig controls the Office→PDF conversion cache (SPEC_FULL.md §4.12).
type DocConvConfig struct {
	CacheEnabled      bool          `yaml:"cache_enabled"`
	SofficePath       string        `yaml:"soffice_path"`
	ConversionTimeout time.Duration `yaml:"conversion_timeout"`
	PollMinInterval   time.Duration `yaml:"poll_min_interval"`
	PollMaxInterval   time.Duration `yaml:"poll_max_interval"`
	MaxPollAttempts   int           `yaml:"max_poll_attempts"`
}

// MetricsConfig controls the prometheus client_golang exporter.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// QuotaConfig controls the advisory usage-quota surface ([NEW] per SPEC_FULL.md §3.1).
type QuotaConfig struct {
	Enabled               bool  `yaml:"enabled"`
	DefaultMonthlyCredits int64 `yaml:"default_monthly_credits"`
}

// LLMConfig controls the Anthropic-backed CompressionService and
// PromptBuilderAssistant/TaskBuilderAssistant (spec §4.9).
type LLMConfig struct {
	Enabled     bool          `yaml:"enabled"`
	APIKeyEnv   string        `yaml:"api_key_env"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// MonitorConfig controls the BackgroundTaskMonitor (spec §4.10).
type MonitorConfig struct {
	SweepInterval    time.Duration `yaml:"sweep_interval"`
	DefaultTimeout   time.Duration `yaml:"default_timeout"`
	RecoverOnStartup bool          `yaml:"recover_on_startup"`
}
