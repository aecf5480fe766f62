// Package llmutil wires the built-in embedding backends into a provider factory.
package llmutil

import (
	"github.com/efebarandurmaz/ragline/internal/llm"
	"github.com/efebarandurmaz/ragline/internal/llm/local"
	"github.com/efebarandurmaz/ragline/internal/llm/openai"
)

// RegisterDefaultProviders registers every built-in embedding provider
// (the local hashing model and all OpenAI-compatible endpoints) into factory.
// app.New builds every binary's factory through NewFactory, so they agree on names.
func RegisterDefaultProviders(factory *llm.ProviderFactory) {
	factory.Register("local", func(c llm.ProviderConfig) (llm.Provider, error) {
		return local.New(c.Dimension), nil
	})
	for name, url := range llm.KnownProviders {
		factory.Register(name, openAICompatible(name, url))
	}
	factory.Register("custom", openAICompatible("custom", ""))
}

func openAICompatible(name, defaultURL string) llm.ProviderConstructor {
	return func(c llm.ProviderConfig) (llm.Provider, error) {
		base := c.BaseURL
		if base == "" {
			base = defaultURL
		}
		return openai.New(name, c.APIKey, c.Model, base), nil
	}
}

// NewFactory returns a factory with the default providers registered.
func NewFactory() *llm.ProviderFactory {
	f := llm.NewFactory()
	RegisterDefaultProviders(f)
	return f
}
