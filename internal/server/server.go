package server

import (
	"log"

	"kb-assistant/internal/bootstrap"
	"kb-assistant/internal/config"
	"kb-assistant/internal/metrics"
	"kb-assistant/internal/pkg/serverutils"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

type Server struct {
	app       *fiber.App
	cfg       *config.Config
	container *bootstrap.Container
}

func New(cfg *config.Config, container *bootstrap.Container) *Server {
	// Multipart framing needs headroom above the declared file limit
	app := fiber.New(fiber.Config{
		BodyLimit: cfg.Upload.MaxSize + 64*1024,
	})

	// Middleware
	app.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.App.CorsAllowedOrigins,
		AllowHeaders:  "Origin, Content-Type, Accept",
		AllowMethods:  "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		ExposeHeaders: "Content-Length, Content-Type",
	}))

	// OpenTelemetry tracing middleware (traces all HTTP requests)
	app.Use(otelfiber.Middleware())

	app.Use(serverutils.ErrorHandlerMiddleware(statusMappers...))

	// Routes
	registerRoutes(app, cfg, container)

	return &Server{
		app:       app,
		cfg:       cfg,
		container: container,
	}
}

func (s *Server) GetApp() *fiber.App {
	return s.app
}

func (s *Server) Run() error {
	log.Printf("✅ Server is running on http://localhost:%s", s.cfg.App.Port)
	return s.app.Listen(":" + s.cfg.App.Port)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func registerRoutes(app *fiber.App, cfg *config.Config, c *bootstrap.Container) {
	app.Get("/health", func(ctx *fiber.Ctx) error {
		return ctx.JSON(serverutils.SuccessResponse[any]("ok", nil))
	})
	app.Get("/metrics", metrics.MetricsHandler())
	app.Get("/ws/:id", c.NotificationHandler.ServeWs)

	api := app.Group("/api")

	c.SessionController.RegisterRoutes(api)
	c.WorkflowController.RegisterRoutes(api)
	c.HealthController.RegisterRoutes(api)

	if !cfg.IsProduction() {
		c.NotificationHandler.RegisterRoutes(api)
	}
}
