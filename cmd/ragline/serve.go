package main

import (
	"context"
	"log/slog"

	temporalclient "go.temporal.io/sdk/client"

	"github.com/efebarandurmaz/ragline/internal/app"
	"github.com/efebarandurmaz/ragline/internal/server"
	temporalmod "github.com/efebarandurmaz/ragline/internal/temporal"
)

func runServe(ctx context.Context, configPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := app.Load(ctx, configPath)
	if err != nil {
		return err
	}
	cfg := a.Config

	var apiOpts []server.APIOption
	apiOpts = append(apiOpts, server.WithAuditLogger(a.Audit))

	var tc temporalclient.Client
	if cfg.Temporal.Host != "" {
		tc, err = temporalmod.Dial(cfg.Temporal.Host, cfg.Temporal.Namespace)
		if err != nil {
			_ = a.Close(ctx)
			return err
		}
		apiOpts = append(apiOpts, server.WithAsyncIngester(temporalmod.NewDispatcher(tc, cfg.Temporal.TaskQueue)))
	}

	srv := server.New(server.Config{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Version:         app.Version,
	}, server.NewAPI(a.Pipeline, apiOpts...), a.Metrics)

	srv.Probes.RegisterCheck("vector_store", server.VectorStoreChecker(a.Pipeline.CheckStore))
	srv.Probes.RegisterCheck("embedding", server.EmbeddingChecker(cfg.Embedding.Model, a.Pipeline.CheckModel))

	if tc != nil {
		srv.Probes.RegisterCheck("temporal", server.TemporalChecker(func(ctx context.Context) error {
			_, err := tc.CheckHealth(ctx, &temporalclient.CheckHealthRequest{})
			return err
		}))
		srv.RegisterHook(server.TemporalClientShutdownHook(tc.Close))
	}
	srv.RegisterHook(server.TracingShutdownHook(a.Tracing.Shutdown))
	srv.RegisterHook(server.VectorStoreShutdownHook(a.Gateway.Close))
	srv.RegisterHook(server.AuditLoggerShutdownHook(a.Audit.Close))

	slog.Info("ragline starting",
		"version", app.Version,
		"backend", cfg.Vector.Backend,
		"index", cfg.Vector.IndexName,
		"embedding_provider", cfg.Embedding.Provider,
		"async_ingest", tc != nil,
	)
	return srv.Run(ctx)
}
