package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/efebarandurmaz/ragline/internal/secrets"
)

// EnvPrefix is prepended to every environment override, e.g. RAGLINE_VECTOR_HOST.
const EnvPrefix = "RAGLINE"

// Backends accepted by vector.backend.
var Backends = []string{"qdrant", "pgvector", "memory"}

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Chunking  ChunkingConfig  `mapstructure:"chunking"`
	Search    SearchConfig    `mapstructure:"search"`
	Vector    VectorConfig    `mapstructure:"vector"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Log       LogConfig       `mapstructure:"log"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Secrets   SecretsConfig   `mapstructure:"secrets"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type EmbeddingConfig struct {
	Provider          string        `mapstructure:"provider"`
	Model             string        `mapstructure:"model"`
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Dimension         int           `mapstructure:"dimension"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
}

type ChunkingConfig struct {
	ChunkSize int `mapstructure:"chunk_size"`
	// ChunkOverlap is accepted for compatibility and not applied.
	ChunkOverlap int `mapstructure:"chunk_overlap"`
}

type SearchConfig struct {
	DefaultTopK int `mapstructure:"default_top_k"`
	MaxTopK     int `mapstructure:"max_top_k"`
}

type VectorConfig struct {
	Backend        string `mapstructure:"backend"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Token          string `mapstructure:"token"`
	TLS            bool   `mapstructure:"tls"`
	DSN            string `mapstructure:"dsn"`
	IndexName      string `mapstructure:"index_name"`
	Precision      string `mapstructure:"precision"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Timeout is the per-call store deadline.
func (c VectorConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type TemporalConfig struct {
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Environment string  `mapstructure:"environment"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Output  string `mapstructure:"output"`
}

type SecretsConfig struct {
	Provider string `mapstructure:"provider"`
	File     string `mapstructure:"file"`
}

// SetDefaults registers every key with its default so environment overrides
// are seen by Unmarshal even without a config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("embedding.provider", "tei")
	v.SetDefault("embedding.model", "sentence-transformers/all-MiniLM-L6-v2")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.dimension", 384)
	v.SetDefault("embedding.timeout", 60*time.Second)
	v.SetDefault("embedding.max_retries", 2)
	v.SetDefault("embedding.requests_per_minute", 0)

	v.SetDefault("chunking.chunk_size", 512)
	v.SetDefault("chunking.chunk_overlap", 64)

	v.SetDefault("search.default_top_k", 5)
	v.SetDefault("search.max_top_k", 50)

	v.SetDefault("vector.backend", "qdrant")
	v.SetDefault("vector.host", "localhost")
	v.SetDefault("vector.port", 6334)
	v.SetDefault("vector.token", "")
	v.SetDefault("vector.tls", false)
	v.SetDefault("vector.dsn", "")
	v.SetDefault("vector.index_name", "knowledge_base")
	v.SetDefault("vector.precision", "int8")
	v.SetDefault("vector.timeout_seconds", 30)

	v.SetDefault("temporal.host", "")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "ragline-ingest")

	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.environment", "development")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.output", "stdout")

	v.SetDefault("secrets.provider", "env")
	v.SetDefault("secrets.file", "")
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	switch c.Embedding.Provider {
	case "openai", "together", "huggingface":
		if c.Embedding.APIKey == "" {
			warnings = append(warnings, fmt.Sprintf("embedding provider '%s' is configured but api_key is empty", c.Embedding.Provider))
		}
	}

	if c.Chunking.ChunkSize > 512 {
		warnings = append(warnings, fmt.Sprintf("chunking chunk_size %d exceeds the 512 character cap and will be capped", c.Chunking.ChunkSize))
	}

	if c.Search.DefaultTopK > c.Search.MaxTopK {
		warnings = append(warnings, fmt.Sprintf("search default_top_k %d is above max_top_k %d", c.Search.DefaultTopK, c.Search.MaxTopK))
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		warnings = append(warnings, fmt.Sprintf("tracing sample_rate %.2f is outside [0.0, 1.0]", c.Tracing.SampleRate))
	}

	return warnings
}

// Check returns an error describing every value the service cannot run with.
func (c *Config) Check() error {
	var errs []error

	if c.Embedding.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension))
	}
	if c.Search.MaxTopK < 1 {
		errs = append(errs, fmt.Errorf("search.max_top_k must be at least 1, got %d", c.Search.MaxTopK))
	}
	if c.Vector.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("vector.timeout_seconds must be positive, got %d", c.Vector.TimeoutSeconds))
	}
	if c.Vector.IndexName == "" {
		errs = append(errs, errors.New("vector.index_name is required"))
	}

	switch c.Vector.Backend {
	case "qdrant", "memory":
	case "pgvector":
		if c.Vector.DSN == "" {
			errs = append(errs, errors.New("vector.dsn is required for the pgvector backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("vector.backend %q is not one of %s", c.Vector.Backend, strings.Join(Backends, ", ")))
	}

	switch c.Vector.Precision {
	case "", "int8", "float16", "float32":
	default:
		errs = append(errs, fmt.Errorf("vector.precision %q is not one of int8, float16, float32", c.Vector.Precision))
	}

	return errors.Join(errs...)
}

// ResolveSecrets fills credentials left empty in the config from m.
func (c *Config) ResolveSecrets(ctx context.Context, m *secrets.Manager) {
	c.Embedding.APIKey = m.Resolve(ctx, secrets.EmbeddingAPIKey, c.Embedding.APIKey)
	c.Vector.Token = m.Resolve(ctx, secrets.VectorToken, c.Vector.Token)
	c.Vector.DSN = m.Resolve(ctx, secrets.VectorDSN, c.Vector.DSN)
}

// Load reads configuration from defaults, an optional file and the
// environment, in increasing precedence, and rejects invalid values.
func Load(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadWithSecrets is Load with credentials resolved through the configured
// secrets provider before the values are checked.
func LoadWithSecrets(ctx context.Context, path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}

	m, err := secrets.NewManager(secrets.Config{Provider: cfg.Secrets.Provider, File: cfg.Secrets.File})
	if err != nil {
		return nil, fmt.Errorf("secrets: %w", err)
	}
	cfg.ResolveSecrets(ctx, m)

	if err := cfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func read(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}
	return &cfg, nil
}
