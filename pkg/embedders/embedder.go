// Package embedders provides text embedding providers for the vector
// collections.
package embedders

import (
	"context"
	"fmt"

	"github.com/hsaeed3/ham/pkg/config"
	"github.com/hsaeed3/ham/pkg/registry"
)

// Embedder turns text into vectors.
type Embedder interface {
	// Embed embeds a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds multiple texts in one request where the API
	// allows it.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	ModelName() string

	// Dimensions of the produced vectors, 0 when unknown until first use.
	Dimensions() int

	Close() error
}

// Registry holds named embedders.
type Registry struct {
	*registry.BaseRegistry[Embedder]
}

// NewRegistry creates an empty embedder registry.
func NewRegistry() *Registry {
	return &Registry{BaseRegistry: registry.NewBaseRegistry[Embedder]()}
}

// CreateFromConfig builds an embedder from config and registers it.
func (r *Registry) CreateFromConfig(name string, cfg *config.EmbedderConfig) (Embedder, error) {
	if name == "" {
		return nil, fmt.Errorf("embedder name cannot be empty")
	}
	if cfg == nil {
		return nil, fmt.Errorf("embedder config cannot be nil")
	}

	embedder, err := NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	if err := r.Register(name, embedder); err != nil {
		return nil, err
	}
	return embedder, nil
}

// NewFromConfig builds an embedder for the configured provider type.
func NewFromConfig(cfg *config.EmbedderConfig) (Embedder, error) {
	switch cfg.Type {
	case "openai", "":
		return NewOpenAIEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unsupported embedder type %q", cfg.Type)
	}
}
