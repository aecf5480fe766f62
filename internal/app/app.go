// Package app assembles the pipeline and its dependencies from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/efebarandurmaz/ragline/internal/chunker"
	"github.com/efebarandurmaz/ragline/internal/config"
	"github.com/efebarandurmaz/ragline/internal/embedding"
	"github.com/efebarandurmaz/ragline/internal/llm"
	"github.com/efebarandurmaz/ragline/internal/llmutil"
	"github.com/efebarandurmaz/ragline/internal/observability"
	"github.com/efebarandurmaz/ragline/internal/pipeline"
	"github.com/efebarandurmaz/ragline/internal/vector"
	"github.com/efebarandurmaz/ragline/internal/vector/pgvector"
	"github.com/efebarandurmaz/ragline/internal/vector/qdrant"
)

// Version is overridden at build time with -ldflags "-X ...app.Version=...".
var Version = "0.1.0"

// App holds the long-lived components of one process.
type App struct {
	Config   *config.Config
	Tracing  *observability.TracerProvider
	Audit    *observability.AuditLogger
	Metrics  *observability.PipelineMetrics
	Embedder *embedding.Embedder
	Gateway  *vector.Gateway
	Pipeline *pipeline.Service
}

// Connector returns the vector store connector for backend.
func Connector(backend string) (vector.Connector, error) {
	switch backend {
	case "qdrant":
		return qdrant.Connect, nil
	case "pgvector":
		return pgvector.Connect, nil
	case "memory":
		return vector.MemoryConnector(vector.NewMemoryClient()), nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", backend)
	}
}

// ProviderConfig maps the embedding section onto a provider config.
func ProviderConfig(c config.EmbeddingConfig) llm.ProviderConfig {
	pc := llm.DefaultProviderConfig()
	pc.Provider = c.Provider
	pc.APIKey = c.APIKey
	pc.Model = c.Model
	pc.BaseURL = c.BaseURL
	pc.Dimension = c.Dimension
	pc.MaxRetries = c.MaxRetries
	pc.RequestsPerMinute = c.RequestsPerMinute
	if c.Timeout > 0 {
		pc.Timeout = c.Timeout
	}
	return pc
}

// SetupLogging installs the configured logger as the slog default.
func SetupLogging(cfg config.LogConfig, w io.Writer) *slog.Logger {
	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Level,
		Format: cfg.Format,
		Output: w,
	})
	slog.SetDefault(logger)
	return logger
}

// New builds every component. Nothing connects to the model or the store
// until first use.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	tp, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    "ragline",
		ServiceVersion: Version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	audit, err := observability.NewAuditLogger(&observability.AuditConfig{
		Enabled:    cfg.Audit.Enabled,
		OutputPath: cfg.Audit.Output,
	})
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("audit log: %w", err)
	}
	observability.SetGlobalAuditLogger(audit)

	connect, err := Connector(cfg.Vector.Backend)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	precision, err := vector.ParsePrecision(cfg.Vector.Precision)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	gw := vector.NewGateway(connect, vector.Config{
		Backend: cfg.Vector.Backend,
		Endpoint: vector.Endpoint{
			Host:  cfg.Vector.Host,
			Port:  cfg.Vector.Port,
			Token: cfg.Vector.Token,
			TLS:   cfg.Vector.TLS,
			DSN:   cfg.Vector.DSN,
		},
		IndexName: cfg.Vector.IndexName,
		Dimension: cfg.Embedding.Dimension,
		Precision: precision,
		Timeout:   cfg.Vector.Timeout(),
	})
	gw.OnIndexCreated = func(ctx context.Context, spec vector.IndexSpec) {
		audit.LogIndexCreate(ctx, spec.Name, spec.Dimension, string(spec.Precision))
	}

	enc := embedding.New(
		embedding.FromFactory(llmutil.NewFactory(), ProviderConfig(cfg.Embedding)),
		cfg.Embedding.Dimension,
		cfg.Embedding.Model,
	)

	metrics := observability.Metrics()
	svc := pipeline.New(
		chunker.New(chunker.WithChunkSize(cfg.Chunking.ChunkSize)),
		enc,
		gw,
		pipeline.Config{DefaultTopK: cfg.Search.DefaultTopK, MaxTopK: cfg.Search.MaxTopK},
		pipeline.WithMetrics(metrics),
		pipeline.WithAudit(audit),
	)

	return &App{
		Config:   cfg,
		Tracing:  tp,
		Audit:    audit,
		Metrics:  metrics,
		Embedder: enc,
		Gateway:  gw,
		Pipeline: svc,
	}, nil
}

// Load reads the config at path, sets up logging and builds the App.
func Load(ctx context.Context, path string) (*App, error) {
	cfg, err := config.LoadWithSecrets(ctx, path)
	if err != nil {
		return nil, err
	}
	SetupLogging(cfg.Log, os.Stderr)
	return New(ctx, cfg)
}

// Close releases the store client, flushes traces and closes the audit log.
func (a *App) Close(ctx context.Context) error {
	return errors.Join(
		a.Gateway.Close(),
		a.Tracing.Shutdown(ctx),
		a.Audit.Close(),
	)
}
