package config

import "time"

func defaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ListenAddr:      ":8080",
		DashboardWS:     false,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    0, // SSE streams hold the response open indefinitely
		ShutdownTimeout: 15 * time.Second,
	}
}

func defaultDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		Host:            "localhost",
		Port:            5432,
		User:            "gateway",
		PasswordEnv:     "GATEWAY_DB_PASSWORD",
		Database:        "gateway",
		SSLMode:         "disable",
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: 1 * time.Hour,
		MigrationsPath:  "pkg/database/migrations",
	}
}

func defaultBusConfig() *BusConfig {
	return &BusConfig{
		ChannelPrefix:     "gw",
		ReconnectMinDelay: 500 * time.Millisecond,
		ReconnectMaxDelay: 30 * time.Second,
		ReceiveTimeout:    100 * time.Millisecond,
	}
}

func defaultDispatcherConfig() *DispatcherConfig {
	return &DispatcherConfig{
		ReplyTimeout:    2 * time.Minute,
		MaxPendingTasks: 10000,
		PublishRetries:  3,
	}
}

func defaultSSEConfig() *SSEConfig {
	return &SSEConfig{
		QueueBufferSize:           200,
		WriteTimeout:              10 * time.Second,
		CatchupLimit:              200,
		HeartbeatInterval:         20 * time.Second,
		BackgroundTaskGracePeriod: 5 * time.Minute,
	}
}

func defaultRegistryConfig() *RegistryConfig {
	return &RegistryConfig{
		AgentTTL:            90 * time.Second,
		GatewayTTL:          90 * time.Second,
		HealthCheckInterval: 30 * time.Second,
		MaxMissedHeartbeats: 3,
	}
}

func defaultConversationConfig() *ConversationConfig {
	return &ConversationConfig{
		CompressionThresholdTokens: 100000,
		SummaryMaxTokens:           2000,
		CompressionFallbackEnabled: true,
	}
}

func defaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		Enabled:              true,
		Mode:                 SchedulerModeEmbedded,
		LeaseDuration:        30 * time.Second,
		HeartbeatInterval:    10 * time.Second,
		PollInterval:         5 * time.Second,
		DefaultMaxRetries:    3,
		DefaultRetryDelay:    30 * time.Second,
		DefaultTimeout:       10 * time.Minute,
		StaleExecutionReaper: 5 * time.Minute,
	}
}

func defaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		SessionRetentionDays:  365,
		TaskRetentionDays:     90,
		FeedbackRetentionDays: 180,
		TaskEventTTL:          30 * 24 * time.Hour,
		SSEBufferTTL:          24 * time.Hour,
		CleanupInterval:       12 * time.Hour,
		BatchSize:             500,
	}
}

func defaultDocConvConfig() *DocConvConfig {
	return &DocConvConfig{
		CacheEnabled:      true,
		SofficePath:       "soffice",
		ConversionTimeout: 30 * time.Second,
		PollMinInterval:   200 * time.Millisecond,
		PollMaxInterval:   2 * time.Second,
		MaxPollAttempts:   10,
	}
}

func defaultMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		Enabled:    true,
		ListenAddr: ":9090",
	}
}

func defaultQuotaConfig() *QuotaConfig {
	return &QuotaConfig{
		Enabled:               false,
		DefaultMonthlyCredits: 5_000_000,
	}
}

func defaultLLMConfig() *LLMConfig {
	return &LLMConfig{
		Enabled:     true,
		APIKeyEnv:   "ANTHROPIC_API_KEY",
		Model:       "claude-sonnet-4-6",
		MaxTokens:   2000,
		Temperature: 0.2,
		Timeout:     60 * time.Second,
	}
}

func defaultMonitorConfig() *MonitorConfig {
	return &MonitorConfig{
		SweepInterval:    30 * time.Second,
		DefaultTimeout:   30 * time.Minute,
		RecoverOnStartup: true,
	}
}

// defaultConfig returns a fully-populated Config with every section at its
// built-in default. The loader merges the user's YAML on top of this.
func defaultConfig() *Config {
	return &Config{
		Server:       defaultServerConfig(),
		Database:     defaultDatabaseConfig(),
		Bus:          defaultBusConfig(),
		Dispatcher:   defaultDispatcherConfig(),
		SSE:          defaultSSEConfig(),
		Registry:     defaultRegistryConfig(),
		Conversation: defaultConversationConfig(),
		Scheduler:    defaultSchedulerConfig(),
		Retention:    defaultRetentionConfig(),
		DocConv:      defaultDocConvConfig(),
		Metrics:      defaultMetricsConfig(),
		Quota:        defaultQuotaConfig(),
		LLM:          defaultLLMConfig(),
		Monitor:      defaultMonitorConfig(),
	}
}
