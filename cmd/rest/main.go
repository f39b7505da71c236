package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"kb-assistant/internal/bootstrap"
	"kb-assistant/internal/config"
	"kb-assistant/internal/server"
	"kb-assistant/internal/tracer"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()

	// 2. Initialize Tracer
	shutdownTracer := tracer.InitTracer(cfg.Telemetry)
	defer func() { _ = shutdownTracer(context.Background()) }()

	// 3. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(cfg, nil)
	defer container.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Start Background Services
	log.Println("Background: Starting Consumer Service...")
	if err := container.ConsumerService.Consume(ctx); err != nil {
		log.Fatalf("Background Consumer Error: %v", err)
	}
	if container.AuditService != nil {
		if err := container.AuditService.Start(ctx); err != nil {
			log.Printf("Background Audit Error: %v", err)
		}
	}

	// 5. Initialize Server
	srv := server.New(cfg, container)

	go func() {
		<-ctx.Done()
		log.Println("Shutting down server...")
		if err := srv.Shutdown(); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// 6. Run Server
	if err := srv.Run(); err != nil {
		log.Printf("Server stopped: %v", err)
	}
}
