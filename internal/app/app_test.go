package app

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efebarandurmaz/ragline/internal/config"
	"github.com/efebarandurmaz/ragline/internal/pipeline"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Embedding: config.EmbeddingConfig{Provider: "local", Model: "local-hash", Dimension: 128},
		Chunking:  config.ChunkingConfig{ChunkSize: 512},
		Search:    config.SearchConfig{DefaultTopK: 5, MaxTopK: 50},
		Vector:    config.VectorConfig{Backend: "memory", IndexName: "kb", Precision: "float32", TimeoutSeconds: 5},
		Tracing:   config.TracingConfig{SampleRate: 1, Environment: "test"},
		Audit:     config.AuditConfig{Enabled: false, Output: "stderr"},
	}
}

func TestConnector(t *testing.T) {
	for _, backend := range config.Backends {
		c, err := Connector(backend)
		require.NoError(t, err, backend)
		assert.NotNil(t, c)
	}

	_, err := Connector("pinecone")
	assert.Error(t, err)
}

func TestProviderConfig(t *testing.T) {
	pc := ProviderConfig(config.EmbeddingConfig{
		Provider:          "tei",
		Model:             "m",
		BaseURL:           "http://tei:80/v1",
		APIKey:            "k",
		Dimension:         384,
		Timeout:           10 * time.Second,
		MaxRetries:        3,
		RequestsPerMinute: 120,
	})

	assert.Equal(t, "tei", pc.Provider)
	assert.Equal(t, "http://tei:80/v1", pc.BaseURL)
	assert.Equal(t, 384, pc.Dimension)
	assert.Equal(t, 10*time.Second, pc.Timeout)
	assert.Equal(t, 3, pc.MaxRetries)
	assert.Equal(t, 120, pc.RequestsPerMinute)
	assert.Equal(t, 500*time.Millisecond, pc.RetryDelay)

	assert.Equal(t, 60*time.Second, ProviderConfig(config.EmbeddingConfig{}).Timeout)
}

func TestNew_MemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, memoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(ctx) })

	res, err := a.Pipeline.Ingest(ctx, "Go has goroutines. Rust has ownership.", "langs")
	require.NoError(t, err)
	assert.Equal(t, 1, res.ChunksStored)

	results, err := a.Pipeline.Search(ctx, "goroutines", 3)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "langs", results[0].Meta["doc_id"])

	assert.Equal(t, pipeline.HealthReport{Status: pipeline.StatusHealthy, DBOK: true, EmbeddingOK: true}, a.Pipeline.Health(ctx))
}

func TestNew_UnknownProviderDegradesHealth(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig()
	cfg.Embedding.Provider = "nonexistent"

	a, err := New(ctx, cfg)
	require.NoError(t, err, "model loading is deferred")
	t.Cleanup(func() { _ = a.Close(ctx) })

	report := a.Pipeline.Health(ctx)
	assert.Equal(t, pipeline.StatusDegraded, report.Status)
	assert.True(t, report.DBOK)
	assert.False(t, report.EmbeddingOK)
}

func TestNew_RejectsBadBackendAndPrecision(t *testing.T) {
	cfg := memoryConfig()
	cfg.Vector.Backend = "pinecone"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)

	cfg = memoryConfig()
	cfg.Vector.Precision = "int4"
	_, err = New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestSetupLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupLogging(config.LogConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.True(t, strings.Contains(out, `"msg":"shown"`), out)
}
