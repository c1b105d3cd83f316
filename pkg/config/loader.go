package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Initialize loads, merges, and validates gateway.yaml from configDir. It is
// the primary entry point used by cmd/gateway.
//
// Steps:
//  1. Load a local .env file, if present, into the process environment.
//  2. Read gateway.yaml and expand ${VAR}/$VAR references against the
//     environment.
//  3. Merge the parsed YAML over the built-in defaults (YAML overrides
//     defaults; unset fields keep their default).
//  4. Validate the merged configuration, clamping values that fall outside
//     a hard floor and warning about the clamp.
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)

	if envPath := filepath.Join(configDir, ".env"); fileExists(envPath) {
		if err := godotenv.Load(envPath); err != nil {
			return nil, NewLoadError(".env", err)
		}
	}

	cfg := defaultConfig()
	cfg.configDir = configDir

	yamlPath := filepath.Join(configDir, "gateway.yaml")
	if fileExists(yamlPath) {
		var parsed GatewayYAMLConfig
		if err := loadYAML(yamlPath, &parsed); err != nil {
			return nil, NewLoadError("gateway.yaml", err)
		}
		if err := mergeInto(cfg, &parsed); err != nil {
			return nil, fmt.Errorf("failed to merge gateway.yaml: %w", err)
		}
	} else {
		log.Warn("gateway.yaml not found, using built-in defaults", "path", yamlPath)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("configuration initialized",
		"listen_addr", cfg.Server.ListenAddr,
		"scheduler_mode", cfg.Scheduler.Mode,
		"metrics_enabled", cfg.Metrics.Enabled)

	return cfg, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func loadYAML(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return nil
}

// mergeInto merges each non-nil section of parsed onto the matching section
// of cfg, following the teacher's queue-config merge pattern (defaults
// first, then user config overrides non-zero fields).
func mergeInto(cfg *Config, parsed *GatewayYAMLConfig) error {
	sections := []struct {
		dst, src any
	}{
		{cfg.Server, parsed.Server},
		{cfg.Database, parsed.Database},
		{cfg.Bus, parsed.Bus},
		{cfg.Dispatcher, parsed.Dispatcher},
		{cfg.SSE, parsed.SSE},
		{cfg.Registry, parsed.Registry},
		{cfg.Conversation, parsed.Conversation},
		{cfg.Scheduler, parsed.Scheduler},
		{cfg.Retention, parsed.Retention},
		{cfg.DocConv, parsed.DocConv},
		{cfg.Metrics, parsed.Metrics},
		{cfg.Quota, parsed.Quota},
		{cfg.LLM, parsed.LLM},
		{cfg.Monitor, parsed.Monitor},
	}

	for _, s := range sections {
		if isNilPtr(s.src) {
			continue
		}
		if err := mergo.Merge(s.dst, s.src, mergo.WithOverride); err != nil {
			return err
		}
	}
	return nil
}

func isNilPtr(v any) bool {
	switch p := v.(type) {
	case *ServerConfig:
		return p == nil
	case *DatabaseConfig:
		return p == nil
	case *BusConfig:
		return p == nil
	case *DispatcherConfig:
		return p == nil
	case *SSEConfig:
		return p == nil
	case *RegistryConfig:
		return p == nil
	case *ConversationConfig:
		return p == nil
	case *SchedulerConfig:
		return p == nil
	case *RetentionConfig:
		return p == nil
	case *DocConvConfig:
		return p == nil
	case *MetricsConfig:
		return p == nil
	case *QuotaConfig:
		return p == nil
	case *LLMConfig:
		return p == nil
	case *MonitorConfig:
		return p == nil
	default:
		return v == nil
	}
}
