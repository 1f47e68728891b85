package embedding

import (
	"context"
	"fmt"
)

// Provider generates vector embeddings from text.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Config holds embedding provider configuration.
type Config struct {
	Provider  string `json:"provider"` // "api", "ollama" or "hash"
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
}

// New builds the provider named by cfg.Provider. An empty name selects the
// offline hash provider.
func New(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "", "hash":
		return NewHashProvider(cfg.Dimension), nil
	case "api", "openai":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("embedding: %s provider needs an endpoint", cfg.Provider)
		}
		return NewAPIProvider(cfg), nil
	case "ollama", "local":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("embedding: %s provider needs an endpoint", cfg.Provider)
		}
		return NewOllamaProvider(cfg), nil
	default:
		return nil, fmt.Errorf("embedding: unknown provider %q", cfg.Provider)
	}
}
