// Command gateway is the agent mesh's HTTP/SSE edge: REST task submission,
// streaming, conversation persistence, agent/gateway discovery, the
// distributed scheduler, and data retention, wired into one process.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codeready-toolchain/meshgate/pkg/api"
	"github.com/codeready-toolchain/meshgate/pkg/assistant"
	"github.com/codeready-toolchain/meshgate/pkg/bus"
	"github.com/codeready-toolchain/meshgate/pkg/config"
	"github.com/codeready-toolchain/meshgate/pkg/conversation"
	"github.com/codeready-toolchain/meshgate/pkg/database"
	"github.com/codeready-toolchain/meshgate/pkg/dispatch"
	"github.com/codeready-toolchain/meshgate/pkg/docconv"
	"github.com/codeready-toolchain/meshgate/pkg/events"
	"github.com/codeready-toolchain/meshgate/pkg/logging"
	"github.com/codeready-toolchain/meshgate/pkg/monitor"
	"github.com/codeready-toolchain/meshgate/pkg/registry"
	"github.com/codeready-toolchain/meshgate/pkg/repository"
	"github.com/codeready-toolchain/meshgate/pkg/retention"
	"github.com/codeready-toolchain/meshgate/pkg/scheduler"
	"github.com/codeready-toolchain/meshgate/pkg/sse"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	flag.Parse()

	logging.Setup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("load configuration", "error", err)
		os.Exit(1)
	}

	db, err := database.NewClient(ctx, cfg.Database)
	if err != nil {
		slog.Error("connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to database")

	instanceID := uuid.New().String()
	namespace := ""
	if cfg.Bus != nil {
		namespace = cfg.Bus.ChannelPrefix
	}

	b := bus.NewPostgresBus(database.DSN(cfg.Database), db.Pool, cfg.Bus)
	if err := b.Start(ctx); err != nil {
		slog.Error("start bus", "error", err)
		os.Exit(1)
	}
	defer b.Close(context.Background())

	// Repositories.
	tasks := repository.NewTaskRepository(db.Pool)
	taskEvents := repository.NewTaskEventRepository(db.Pool)
	usage := repository.NewMonthlyUsageRepository(db.Pool)
	sseEvents := repository.NewSSEEventBufferRepository(db.Pool)
	cardSnapshots := repository.NewCardSnapshotRepository(db.Pool)
	sessions := repository.NewSessionRepository(db.Pool)
	chatTasks := repository.NewChatTaskRepository(db.Pool)
	projects := repository.NewProjectRepository(db.Pool)
	feedback := repository.NewFeedbackRepository(db.Pool)
	scheduledTasks := repository.NewScheduledTaskRepository(db.Pool)
	scheduledExecs := repository.NewScheduledTaskExecutionRepository(db.Pool)
	schedulerLock := repository.NewSchedulerLockRepository(db.Pool)
	docconvCache := repository.NewDocConversionCacheRepository(db.Pool)

	// SSE.
	persistent := sse.NewPersistentEventBuffer(sseEvents, tasks, func() int64 { return time.Now().UnixMilli() })
	sseManager := sse.NewManager(cfg.SSE, persistent)

	// Dispatcher.
	dispatcher := dispatch.New(b, namespace, instanceID, cfg.Dispatcher, cfg.Quota, sseManager, persistent, tasks, taskEvents, usage)
	if err := dispatcher.Start(ctx); err != nil {
		slog.Error("start dispatcher", "error", err)
		os.Exit(1)
	}

	// Registries, kept live by the bus's card heartbeat topics. The agent
	// registry is warm-started from persisted snapshots; the gateway
	// registry starts empty.
	agents := registry.NewAgentRegistry(cfg.Registry, cardSnapshots)
	gateways := registry.NewGatewayRegistry(cfg.Registry, cardSnapshots)
	if err := agents.WarmStart(ctx); err != nil {
		slog.Warn("agent registry warm start", "error", err)
	}
	if _, err := registry.SubscribeAgentHeartbeats(ctx, b, namespace, agents); err != nil {
		slog.Error("subscribe agent heartbeats", "error", err)
		os.Exit(1)
	}
	if _, err := registry.SubscribeGatewayHeartbeats(ctx, b, namespace, gateways); err != nil {
		slog.Error("subscribe gateway heartbeats", "error", err)
		os.Exit(1)
	}
	healthChecker := registry.NewHealthChecker(cfg.Registry, agents, gateways)
	go healthChecker.Run(ctx)

	// Conversation + assistants.
	conv := conversation.NewService(sessions, chatTasks, projects)
	compression := assistant.NewCompressionService(cfg.LLM)
	promptBuilder := assistant.NewPromptBuilderAssistant(cfg.LLM)
	taskBuilder := assistant.NewTaskBuilderAssistant(cfg.LLM)

	// Scheduler.
	var collector scheduler.ResultCollector
	if cfg.Scheduler != nil && cfg.Scheduler.Mode == config.SchedulerModeOrchestrator {
		collector = scheduler.NewStatelessResultCollector(scheduledExecs, scheduledTasks)
	} else {
		collector = scheduler.NewStatefulResultCollector(scheduledExecs)
	}
	sched := scheduler.New(cfg.Scheduler, namespace, instanceID, scheduledTasks, scheduledExecs, b, collector, nil, schedulerLock)
	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("scheduler engine stopped", "error", err)
		}
	}()

	// Background task monitor and data retention.
	mon := monitor.New(cfg.Monitor, tasks, dispatcher)
	go func() {
		if err := mon.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("background task monitor stopped", "error", err)
		}
	}()

	retentionSvc := retention.New(cfg.Retention, sessions, tasks, feedback, taskEvents, sseEvents)
	go func() {
		if err := retentionSvc.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("retention service stopped", "error", err)
		}
	}()

	// Document conversion.
	docconvSvc := docconv.New(cfg.DocConv, docconvCache)

	// Dashboard WebSocket (flag-gated, off by default).
	dashboard := events.NewConnectionManager(nil, 5*time.Second)

	server := api.New(
		cfg, db, dispatcher, sseManager, persistent, agents, gateways, conv,
		compression, promptBuilder, taskBuilder, sched, scheduledTasks,
		scheduledExecs, feedback, tasks, docconvSvc, dashboard,
	)
	sched.OnLeadershipChange = func(status scheduler.Status) {
		server.BroadcastSchedulerStatus(context.Background(), status)
	}

	var metricsServer *http.Server
	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server stopped", "error", err)
			}
		}()
	}

	listenAddr := ":8080"
	if cfg.Server != nil && cfg.Server.ListenAddr != "" {
		listenAddr = cfg.Server.ListenAddr
	}

	go func() {
		slog.Info("gateway listening", "addr", listenAddr, "instance_id", instanceID)
		if err := server.Start(listenAddr); err != nil && err != http.ErrServerClosed {
			slog.Error("http server stopped", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownTimeout := 15 * time.Second
	if cfg.Server != nil && cfg.Server.ShutdownTimeout > 0 {
		shutdownTimeout = cfg.Server.ShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown", "error", err)
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		slog.Error("dispatcher stop", "error", err)
	}
}
