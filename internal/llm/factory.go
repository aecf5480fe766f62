package llm

import (
	"fmt"
	"sort"
	"time"
)

// ProviderConfig holds all configuration needed to create any embedding provider.
type ProviderConfig struct {
	Provider  string // "openai", "tei", "ollama", "together", "huggingface", "local", "custom"
	APIKey    string
	Model     string
	BaseURL   string // Override for self-hosted / custom endpoints
	Dimension int    // Expected vector length; used by the local provider

	// Timeout and retry configuration
	Timeout    time.Duration // Per-request timeout (default: 60s)
	MaxRetries int           // Max retry attempts (default: 2)
	RetryDelay time.Duration // Initial retry delay for exponential backoff (default: 500ms)

	// RequestsPerMinute caps outbound embedding calls (0 = unlimited).
	RequestsPerMinute int
}

// DefaultProviderConfig returns a config with sensible defaults.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Timeout:    60 * time.Second,
		MaxRetries: 2,
		RetryDelay: 500 * time.Millisecond,
	}
}

// ProviderFactory creates Provider instances from config.
type ProviderFactory struct {
	constructors map[string]ProviderConstructor
}

// ProviderConstructor builds a Provider from config.
type ProviderConstructor func(cfg ProviderConfig) (Provider, error)

// NewFactory creates an empty factory.
func NewFactory() *ProviderFactory {
	return &ProviderFactory{
		constructors: make(map[string]ProviderConstructor),
	}
}

// Register adds a provider constructor under the given name.
func (f *ProviderFactory) Register(name string, ctor ProviderConstructor) {
	f.constructors[name] = ctor
}

// Create builds a Provider from config. The result is wrapped with retry
// logic when a timeout or retries are configured, and with a rate limiter
// when RequestsPerMinute is set.
func (f *ProviderFactory) Create(cfg ProviderConfig) (Provider, error) {
	if cfg.Provider == "" {
		return nil, fmt.Errorf("embedding provider is not configured")
	}

	ctor, ok := f.constructors[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown embedding provider %q, registered: %v", cfg.Provider, f.Names())
	}

	provider, err := ctor(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Timeout > 0 || cfg.MaxRetries > 0 {
		provider = WrapWithRetry(provider, cfg)
	}
	if cfg.RequestsPerMinute > 0 {
		provider = WithRateLimit(provider, &RateLimitConfig{
			RequestsPerMinute: cfg.RequestsPerMinute,
			BurstSize:         max(1, cfg.RequestsPerMinute/6),
		})
	}

	return provider, nil
}

// Names lists registered providers in sorted order.
func (f *ProviderFactory) Names() []string {
	out := make([]string, 0, len(f.constructors))
	for k := range f.constructors {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// KnownProviders documents the built-in presets with default base URLs.
// All of them speak the OpenAI-compatible /embeddings API.
//
//	openai      → https://api.openai.com/v1
//	tei         → http://localhost:8080/v1 (HuggingFace text-embeddings-inference)
//	ollama      → http://localhost:11434/v1
//	together    → https://api.together.xyz/v1
//	huggingface → https://api-inference.huggingface.co/v1
var KnownProviders = map[string]string{
	"openai":      "https://api.openai.com/v1",
	"tei":         "http://localhost:8080/v1",
	"ollama":      "http://localhost:11434/v1",
	"together":    "https://api.together.xyz/v1",
	"huggingface": "https://api-inference.huggingface.co/v1",
}
