package bootstrap

import (
	"context"
	"log"

	"kb-assistant/internal/config"
	"kb-assistant/internal/controller"
	"kb-assistant/internal/handler"
	"kb-assistant/internal/metrics"
	"kb-assistant/internal/pkg/logger"
	"kb-assistant/internal/repository/memory"
	"kb-assistant/internal/service"
	"kb-assistant/internal/websocket"
	"kb-assistant/pkg/eventbus"
	"kb-assistant/pkg/events"
	"kb-assistant/pkg/gateway"
	pktNats "kb-assistant/pkg/nats"
	"kb-assistant/pkg/rag/chat"
	"kb-assistant/pkg/rag/recall"
	"kb-assistant/pkg/rag/session"
	"kb-assistant/pkg/rag/workflow"
	"kb-assistant/pkg/retry"
	"kb-assistant/pkg/store"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/redis/go-redis/v9"
)

type Container struct {
	// Controllers
	SessionController  controller.ISessionController
	WorkflowController controller.IWorkflowController
	HealthController   controller.IHealthController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService
	AuditService    service.IAuditService // nil when NATS is not configured

	// WebSockets & Notification
	NotificationHandler *handler.NotificationHandler
	WebSocketHub        *websocket.Hub

	Logger logger.ILogger

	closers []func()
}

// NewContainer wires the service against backend. Passing nil builds the HTTP gateway from cfg.
func NewContainer(cfg *config.Config, backend gateway.Backend) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	metrics.Init()

	if backend == nil {
		backend = gateway.NewClient(gateway.Config{
			BaseURL:     cfg.API.BaseURL,
			Timeout:     cfg.API.Timeout,
			ChatTimeout: cfg.API.ChatTimeout,
		})
	}

	c := &Container{Logger: sysLogger}

	// 2. Event Bus
	bus := eventbus.New(cfg.App.EventTopic, watermill.NewStdLogger(false, false))
	c.closers = append(c.closers, func() { _ = bus.Close() })

	// 2.5 Infrastructure
	// NATS
	var mirror events.Publisher
	if cfg.App.NatsURL != "" {
		natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		} else {
			mirror = natsPub
			c.closers = append(c.closers, natsPub.Close)
		}

		natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
		} else {
			c.AuditService = service.NewAuditService(natsSub, sysLogger)
			c.closers = append(c.closers, natsSub.Close)
		}
	}

	// Redis
	var rdb *redis.Client
	if cfg.App.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
			opt = &redis.Options{Addr: cfg.App.RedisURL}
		}
		rdb = redis.NewClient(opt)
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			log.Printf("[WARN] Failed to connect to Redis: %v", err)
		}
		c.closers = append(c.closers, func() { _ = rdb.Close() })
	}

	// WebSocket Hub
	wsLogger := logger.NewIsolatedLogger(cfg.App.WsLogFilePath)
	wsHub := websocket.NewHub(rdb, wsLogger)
	go wsHub.Run()

	// 3. Domain
	workflowCfg := WorkflowConfig(cfg)
	sessions := session.NewManager(
		memory.NewSessionRepository(cfg.App.SessionTTL),
		memory.NewWorkflowRepository(),
		func(sess *store.Session) *workflow.Workflow {
			return workflow.New(workflow.Options{
				SessionID: sess.ID,
				Config:    workflowCfg,
				Backend:   backend,
				Publisher: bus,
				Logger:    sysLogger,
				OnCommit:  sess.SetKnowledgeBase,
			})
		},
		sysLogger,
	)
	chatPipeline := chat.NewPipeline(backend, bus, sysLogger, cfg.Workflow.DefaultTopK)
	recallTester := recall.NewTester(backend, bus, sysLogger)

	// 4. Services
	sessionService := service.NewSessionService(sessions, chatPipeline, recallTester, bus, sysLogger)
	workflowService := service.NewWorkflowService(sessions, cfg.Upload)

	healthService := service.NewHealthService(backend, retry.DefaultConfig(), sysLogger)

	c.ConsumerService = service.NewConsumerService(bus, wsHub, mirror, sysLogger)

	// 5. Controllers
	c.SessionController = controller.NewSessionController(sessionService)
	c.WorkflowController = controller.NewWorkflowController(workflowService)
	c.HealthController = controller.NewHealthController(healthService)
	c.NotificationHandler = handler.NewNotificationHandler(sessionService, bus, wsHub, wsLogger)
	c.WebSocketHub = wsHub

	return c
}

// WorkflowConfig derives the workflow defaults from the environment configuration
func WorkflowConfig(cfg *config.Config) workflow.Config {
	return workflow.Config{
		Defaults: workflow.Params{
			ChunkSize:    cfg.Workflow.DefaultChunkSize,
			ChunkOverlap: cfg.Workflow.DefaultChunkOverlap,
			TopK:         cfg.Workflow.DefaultTopK,
		},
		AcceptedTypes: cfg.Upload.AcceptedTypes,
	}
}

// Close releases the transports in reverse order of creation
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	_ = c.Logger.Sync()
}
