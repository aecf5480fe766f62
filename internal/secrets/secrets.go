// Package secrets resolves credentials from the environment or a local file.
package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Key identifies a secret.
type Key string

const (
	EmbeddingAPIKey Key = "embedding_api_key"
	VectorToken     Key = "vector_token"
	VectorDSN       Key = "vector_dsn"
	TemporalAPIKey  Key = "temporal_api_key"
)

// DefaultEnvPrefix is prepended to upper-cased keys by the env provider.
const DefaultEnvPrefix = "RAGLINE_SECRET_"

// Provider is a secret backend.
type Provider interface {
	// Get retrieves a secret by key.
	Get(ctx context.Context, key Key) (string, error)
	// Name returns the provider name.
	Name() string
}

// Config configures the secrets manager.
type Config struct {
	// Provider selects the backend: "env" or "file".
	Provider string
	// File is the JSON secrets file used by the file provider.
	File string
	// EnvPrefix defaults to DefaultEnvPrefix.
	EnvPrefix string
}

// Manager reads from a primary provider and falls back to the environment.
type Manager struct {
	primary  Provider
	fallback Provider

	cacheMu sync.RWMutex
	cache   map[Key]string
}

// NewManager creates a Manager for cfg.
func NewManager(cfg Config) (*Manager, error) {
	env := NewEnvProvider(cfg.EnvPrefix)

	m := &Manager{cache: make(map[Key]string)}
	switch cfg.Provider {
	case "env", "":
		m.primary = env
	case "file":
		fp, err := NewFileProvider(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("create file provider: %w", err)
		}
		m.primary = fp
		m.fallback = env
	default:
		return nil, fmt.Errorf("unknown secrets provider: %s", cfg.Provider)
	}
	return m, nil
}

// Name returns the primary provider's name.
func (m *Manager) Name() string { return m.primary.Name() }

// Get retrieves a secret, trying the primary provider and then the fallback.
func (m *Manager) Get(ctx context.Context, key Key) (string, error) {
	m.cacheMu.RLock()
	val, ok := m.cache[key]
	m.cacheMu.RUnlock()
	if ok {
		return val, nil
	}

	for _, p := range []Provider{m.primary, m.fallback} {
		if p == nil {
			continue
		}
		if val, err := p.Get(ctx, key); err == nil && val != "" {
			m.cacheMu.Lock()
			m.cache[key] = val
			m.cacheMu.Unlock()
			return val, nil
		}
	}
	return "", fmt.Errorf("secret not found: %s", key)
}

// Resolve returns current when it is set, otherwise the secret for key, or ""
// when no provider has it.
func (m *Manager) Resolve(ctx context.Context, key Key, current string) string {
	if current != "" {
		return current
	}
	val, err := m.Get(ctx, key)
	if err != nil {
		return ""
	}
	return val
}

// EnvProvider reads secrets from environment variables.
type EnvProvider struct {
	prefix string
}

// NewEnvProvider creates an environment-based provider.
func NewEnvProvider(prefix string) *EnvProvider {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	return &EnvProvider{prefix: prefix}
}

func (p *EnvProvider) Name() string { return "env" }

func (p *EnvProvider) Get(ctx context.Context, key Key) (string, error) {
	envKey := p.prefix + strings.ToUpper(string(key))
	if val := os.Getenv(envKey); val != "" {
		return val, nil
	}
	return "", fmt.Errorf("env var not found: %s", envKey)
}
