package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/efebarandurmaz/ragline/internal/app"
	"github.com/efebarandurmaz/ragline/internal/server"
	temporalmod "github.com/efebarandurmaz/ragline/internal/temporal"
)

func main() {
	_ = godotenv.Load()

	configPath := ""
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	ctx := context.Background()
	a, err := app.Load(ctx, configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	cfg := a.Config
	if cfg.Temporal.Host == "" {
		log.Fatalf("temporal.host is not set")
	}

	temporalmod.SetDependencies(&temporalmod.Dependencies{Ingester: a.Pipeline})

	c, err := temporalmod.Dial(cfg.Temporal.Host, cfg.Temporal.Namespace)
	if err != nil {
		log.Fatalf("%v", err)
	}

	w, err := temporalmod.StartWorker(c, cfg.Temporal.TaskQueue)
	if err != nil {
		c.Close()
		log.Fatalf("worker: %v", err)
	}

	shutdown := server.NewShutdownHandler(&server.ShutdownConfig{
		Timeout: cfg.Server.ShutdownTimeout,
		Signals: server.DefaultShutdownConfig().Signals,
	})
	shutdown.Add(server.TemporalWorkerShutdownHook(w.Stop))
	shutdown.Add(server.TemporalClientShutdownHook(c.Close))
	shutdown.Add(server.TracingShutdownHook(a.Tracing.Shutdown))
	shutdown.Add(server.VectorStoreShutdownHook(a.Gateway.Close))
	shutdown.Add(server.AuditLoggerShutdownHook(a.Audit.Close))
	shutdown.Start()

	slog.Info("worker started", "task_queue", cfg.Temporal.TaskQueue, "backend", cfg.Vector.Backend)

	shutdown.Wait()
	slog.Info("worker stopped")
}
