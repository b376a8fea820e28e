package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hsaeed3/ham/pkg/embedders"
)

// ============================================================================
// VECTOR PROVIDER INTERFACE
// ============================================================================

// VectorResult is one similarity match from a provider.
type VectorResult struct {
	ID       string
	Score    float64
	Content  string
	Metadata map[string]any
}

// VectorProvider stores and searches pre-computed embeddings. Embedding
// itself happens outside the provider, in the vector collection.
type VectorProvider interface {
	// Upsert adds or updates a document with its vector.
	Upsert(ctx context.Context, collection string, id string, vector []float32, metadata map[string]any) error

	// Search finds the topK most similar vectors.
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]VectorResult, error)

	// SearchWithFilter combines similarity with exact-match metadata
	// filtering.
	SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]VectorResult, error)

	// Delete removes a document by ID.
	Delete(ctx context.Context, collection string, id string) error

	// CreateCollection ensures the collection exists with the given
	// dimension.
	CreateCollection(ctx context.Context, collection string, vectorDimension int) error

	// DeleteCollection removes a collection and all its documents.
	DeleteCollection(ctx context.Context, collection string) error

	// Name returns the provider name.
	Name() string

	// Close releases resources.
	Close() error
}

// ============================================================================
// VECTOR COLLECTION
// ============================================================================

// vectorCollection embeds item content and stores the vectors in a
// provider. Item bodies are mirrored in memory so Get and TTL checks
// stay local; the provider only answers similarity queries.
type vectorCollection struct {
	name     string
	ttl      time.Duration
	embedder embedders.Embedder
	provider VectorProvider

	mu    sync.RWMutex
	items map[string]*Item
}

func newVectorCollection(name string, ttl time.Duration, embedder embedders.Embedder, provider VectorProvider, vectorSize int) (*vectorCollection, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if provider == nil {
		return nil, fmt.Errorf("vector provider is required")
	}

	if vectorSize > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := provider.CreateCollection(ctx, name, vectorSize); err != nil {
			return nil, fmt.Errorf("creating vector collection: %w", err)
		}
	}

	return &vectorCollection{
		name:     name,
		ttl:      ttl,
		embedder: embedder,
		provider: provider,
		items:    make(map[string]*Item),
	}, nil
}

func (c *vectorCollection) Name() string {
	return c.name
}

func (c *vectorCollection) Add(ctx context.Context, item *Item) error {
	if item == nil {
		return fmt.Errorf("item cannot be nil")
	}
	if item.Content == "" {
		return fmt.Errorf("vector items require content to embed")
	}
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	if item.ExpiresAt.IsZero() && c.ttl > 0 {
		item.ExpiresAt = item.CreatedAt.Add(c.ttl)
	}

	vector, err := c.embedder.Embed(ctx, item.Content)
	if err != nil {
		return fmt.Errorf("embedding content: %w", err)
	}

	metadata := make(map[string]any, len(item.Metadata)+1)
	for k, v := range item.Metadata {
		metadata[k] = v
	}
	metadata["content"] = item.Content

	if err := c.provider.Upsert(ctx, c.name, item.ID, vector, metadata); err != nil {
		return fmt.Errorf("upserting vector: %w", err)
	}

	c.mu.Lock()
	c.items[item.ID] = item
	c.mu.Unlock()
	return nil
}

func (c *vectorCollection) Get(ctx context.Context, id string) (*Item, error) {
	c.mu.RLock()
	item, ok := c.items[id]
	c.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if item.Expired(time.Now()) {
		if err := c.Delete(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return item, nil
}

// Query embeds the query text and asks the provider for the most
// similar items. Expired items are dropped from the results.
func (c *vectorCollection) Query(ctx context.Context, query string, opts ...QueryOption) ([]Result, error) {
	if query == "" {
		return nil, fmt.Errorf("vector queries require query text")
	}
	o := applyQueryOptions(opts)

	vector, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	var matches []VectorResult
	if len(o.filters) > 0 {
		matches, err = c.provider.SearchWithFilter(ctx, c.name, vector, o.limit, o.filters)
	} else {
		matches, err = c.provider.Search(ctx, c.name, vector, o.limit)
	}
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	now := time.Now()
	results := make([]Result, 0, len(matches))
	c.mu.RLock()
	for _, m := range matches {
		item, ok := c.items[m.ID]
		if !ok {
			// Result from a previous process; rebuild the item from
			// the provider's payload.
			item = itemFromVectorResult(m)
		}
		if item.Expired(now) {
			continue
		}
		results = append(results, Result{Item: item, Score: m.Score})
	}
	c.mu.RUnlock()
	return results, nil
}

func (c *vectorCollection) Delete(ctx context.Context, id string) error {
	if err := c.provider.Delete(ctx, c.name, id); err != nil {
		return fmt.Errorf("deleting vector: %w", err)
	}

	c.mu.Lock()
	delete(c.items, id)
	c.mu.Unlock()
	return nil
}

func (c *vectorCollection) Close() error {
	c.mu.Lock()
	c.items = make(map[string]*Item)
	c.mu.Unlock()
	return c.provider.Close()
}

var _ Collection = (*vectorCollection)(nil)

func itemFromVectorResult(r VectorResult) *Item {
	metadata := make(map[string]any, len(r.Metadata))
	for k, v := range r.Metadata {
		if k == "content" {
			continue
		}
		metadata[k] = v
	}
	content := r.Content
	if content == "" {
		if s, ok := r.Metadata["content"].(string); ok {
			content = s
		}
	}
	return &Item{
		ID:       r.ID,
		Content:  content,
		Metadata: metadata,
	}
}
