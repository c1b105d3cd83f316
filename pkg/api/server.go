// Package api implements the gateway's HTTP/SSE surface on echo v5: task
// submission and streaming (spec §4.1, §6.1), session/conversation
// management, agent/gateway discovery, feedback, scheduled tasks, document
// conversion, and operational config/health.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/codeready-toolchain/meshgate/pkg/assistant"
	"github.com/codeready-toolchain/meshgate/pkg/config"
	"github.com/codeready-toolchain/meshgate/pkg/conversation"
	"github.com/codeready-toolchain/meshgate/pkg/database"
	"github.com/codeready-toolchain/meshgate/pkg/dispatch"
	"github.com/codeready-toolchain/meshgate/pkg/docconv"
	"github.com/codeready-toolchain/meshgate/pkg/events"
	"github.com/codeready-toolchain/meshgate/pkg/registry"
	"github.com/codeready-toolchain/meshgate/pkg/repository"
	"github.com/codeready-toolchain/meshgate/pkg/scheduler"
	"github.com/codeready-toolchain/meshgate/pkg/sse"
	"github.com/codeready-toolchain/meshgate/pkg/version"
)

// Server is the gateway's HTTP API server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	cfg *config.Config
	db  *database.Client

	dispatcher *dispatch.Dispatcher
	sseManager *sse.Manager
	persistent *sse.PersistentEventBuffer

	agents   *registry.AgentRegistry
	gateways *registry.GatewayRegistry

	conv           *conversation.Service
	compression    *assistant.CompressionService
	promptBuilder  *assistant.PromptBuilderAssistant
	taskBuilder    *assistant.TaskBuilderAssistant

	sched      *scheduler.Engine
	schedTasks *repository.ScheduledTaskRepository
	schedExecs *repository.ScheduledTaskExecutionRepository

	feedback *repository.FeedbackRepository
	tasks    *repository.TaskRepository
	docconv  *docconv.Service

	dashboard *events.ConnectionManager
}

// New constructs the API server and registers all routes. Every dependency
// is required at construction time; there is no partially-wired state
// (spec §9 "GatewayContext value created at startup and explicitly passed
// into handlers").
func New(
	cfg *config.Config,
	db *database.Client,
	dispatcher *dispatch.Dispatcher,
	sseManager *sse.Manager,
	persistent *sse.PersistentEventBuffer,
	agents *registry.AgentRegistry,
	gateways *registry.GatewayRegistry,
	conv *conversation.Service,
	compression *assistant.CompressionService,
	promptBuilder *assistant.PromptBuilderAssistant,
	taskBuilder *assistant.TaskBuilderAssistant,
	sched *scheduler.Engine,
	schedTasks *repository.ScheduledTaskRepository,
	schedExecs *repository.ScheduledTaskExecutionRepository,
	feedback *repository.FeedbackRepository,
	tasks *repository.TaskRepository,
	docconvSvc *docconv.Service,
	dashboard *events.ConnectionManager,
) *Server {
	s := &Server{
		echo:          echo.New(),
		cfg:           cfg,
		db:            db,
		dispatcher:    dispatcher,
		sseManager:    sseManager,
		persistent:    persistent,
		agents:        agents,
		gateways:      gateways,
		conv:          conv,
		compression:   compression,
		promptBuilder: promptBuilder,
		taskBuilder:   taskBuilder,
		sched:         sched,
		schedTasks:    schedTasks,
		schedExecs:    schedExecs,
		feedback:      feedback,
		tasks:         tasks,
		docconv:       docconvSvc,
		dashboard:     dashboard,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(8 * 1024 * 1024))
	s.echo.Use(securityHeaders())
	s.echo.Use(httpMetrics())

	s.echo.GET("/health", s.healthHandler)

	v1 := s.echo.Group("/api/v1")

	v1.POST("/tasks/send", s.tasksSendHandler)
	v1.POST("/tasks/subscribe", s.tasksSubscribeHandler)
	v1.POST("/tasks/cancel", s.tasksCancelHandler)
	v1.GET("/tasks/background/active", s.tasksBackgroundActiveHandler)
	v1.GET("/tasks/:id/status", s.taskStatusHandler)
	v1.GET("/tasks/:id/events", s.taskEventsHandler)

	v1.GET("/sse/subscribe/:taskId", s.sseSubscribeHandler)

	v1.GET("/sessions", s.listSessionsHandler)
	v1.GET("/sessions/search", s.searchSessionsHandler)
	v1.GET("/sessions/:id", s.getSessionHandler)
	v1.PATCH("/sessions/:id", s.updateSessionHandler)
	v1.DELETE("/sessions/:id", s.deleteSessionHandler)
	v1.POST("/sessions/:id/chat-tasks", s.upsertChatTaskHandler)
	v1.GET("/sessions/:id/chat-tasks", s.listChatTasksHandler)
	v1.GET("/sessions/:id/messages", s.sessionMessagesHandler)
	v1.PATCH("/sessions/:id/project", s.moveSessionProjectHandler)
	v1.POST("/sessions/:id/compress-and-branch", s.compressAndBranchHandler)

	v1.GET("/agentCards", s.agentCardsHandler)
	v1.GET("/agents/:name/model", s.agentModelHandler)
	v1.GET("/gatewayCards", s.gatewayCardsHandler)
	v1.GET("/gateways/health", s.gatewaysHealthHandler)
	v1.GET("/gateways/:id/health", s.gatewayHealthHandler)

	v1.POST("/feedback", s.submitFeedbackHandler)

	v1.POST("/scheduled-tasks", s.createScheduledTaskHandler)
	v1.GET("/scheduled-tasks", s.listScheduledTasksHandler)
	v1.POST("/scheduled-tasks/builder/chat", s.scheduledTaskBuilderChatHandler)
	v1.GET("/scheduled-tasks/:id", s.getScheduledTaskHandler)
	v1.PATCH("/scheduled-tasks/:id", s.updateScheduledTaskHandler)
	v1.DELETE("/scheduled-tasks/:id", s.deleteScheduledTaskHandler)
	v1.POST("/scheduled-tasks/:id/enable", s.enableScheduledTaskHandler)
	v1.POST("/scheduled-tasks/:id/disable", s.disableScheduledTaskHandler)
	v1.GET("/scheduled-tasks/:id/executions", s.listExecutionsHandler)

	v1.GET("/scheduler/status", s.schedulerStatusHandler)

	v1.GET("/prompts/builder/greeting", s.promptBuilderGreetingHandler)
	v1.POST("/prompts/builder/chat", s.promptBuilderChatHandler)

	v1.POST("/document-conversion/to-pdf", s.docConversionHandler)

	v1.GET("/config", s.configHandler)

	if s.cfg.Server != nil && s.cfg.Server.DashboardWS {
		v1.GET("/ws", s.dashboardWSHandler)
	}
}

// Start starts the HTTP server on the given address (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.echo,
		ReadTimeout:  s.readTimeout(),
		WriteTimeout: s.writeTimeout(),
	}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener, used
// by test infrastructure to serve on a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) readTimeout() time.Duration {
	if s.cfg.Server != nil && s.cfg.Server.ReadTimeout > 0 {
		return s.cfg.Server.ReadTimeout
	}
	return 30 * time.Second
}

func (s *Server) writeTimeout() time.Duration {
	if s.cfg.Server != nil && s.cfg.Server.WriteTimeout > 0 {
		return s.cfg.Server.WriteTimeout
	}
	return 0 // SSE streams are long-lived; no blanket write deadline.
}

// healthHandler handles GET /health (spec §6.1 "Liveness").
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(reqCtx, s.db.Pool)
	status := http.StatusOK
	respStatus := "healthy"
	if err != nil {
		status = http.StatusServiceUnavailable
		respStatus = "unhealthy"
	}

	return c.JSON(status, map[string]any{
		"status":   respStatus,
		"version":  version.Full(),
		"database": dbHealth,
		"scheduler": s.sched.Status(),
	})
}
