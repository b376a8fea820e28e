package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hsaeed3/ham/pkg/config"
	"github.com/hsaeed3/ham/pkg/embedders"
)

// ErrNotFound is returned when an item does not exist or has expired.
var ErrNotFound = errors.New("item not found")

// ============================================================================
// ITEMS AND RESULTS
// ============================================================================

// Item is a single entry in a collection.
type Item struct {
	// ID is generated when empty on Add.
	ID string `json:"id"`

	Content string `json:"content"`

	Metadata map[string]any `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is zero when the item never expires.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the item's TTL has elapsed at t.
func (it *Item) Expired(t time.Time) bool {
	return !it.ExpiresAt.IsZero() && t.After(it.ExpiresAt)
}

// Result is one query match.
type Result struct {
	Item  *Item
	Score float64
}

// ============================================================================
// QUERY OPTIONS
// ============================================================================

type queryOptions struct {
	limit   int
	filters map[string]any
}

// QueryOption customizes a single Query call.
type QueryOption func(*queryOptions)

// WithLimit caps the number of results (default 10).
func WithLimit(n int) QueryOption {
	return func(o *queryOptions) {
		o.limit = n
	}
}

// WithFilters restricts results to items whose metadata matches every
// given key/value pair exactly.
func WithFilters(filters map[string]any) QueryOption {
	return func(o *queryOptions) {
		o.filters = filters
	}
}

func applyQueryOptions(opts []QueryOption) queryOptions {
	o := queryOptions{limit: 10}
	for _, opt := range opts {
		opt(&o)
	}
	if o.limit <= 0 {
		o.limit = 10
	}
	return o
}

// matchesFilters reports whether the item's metadata satisfies every
// filter entry. Values are compared by their string form so that a
// filter of 42 matches metadata stored as int or float.
func matchesFilters(item *Item, filters map[string]any) bool {
	for k, v := range filters {
		got, ok := item.Metadata[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(v) {
			return false
		}
	}
	return true
}

// ============================================================================
// COLLECTION INTERFACE
// ============================================================================

// Collection stores and retrieves items. Implementations differ in how
// Query interprets its input: basic collections ignore the query text
// and return filter matches, searchable collections rank by keyword
// overlap, vector collections rank by embedding similarity.
type Collection interface {
	Name() string

	// Add stores the item, generating an ID when empty and applying
	// the collection's default TTL when the item carries none.
	Add(ctx context.Context, item *Item) error

	// Get returns the item by ID, or ErrNotFound when missing or
	// expired.
	Get(ctx context.Context, id string) (*Item, error)

	// Query returns up to limit matching items ranked by relevance.
	Query(ctx context.Context, query string, opts ...QueryOption) ([]Result, error)

	// Delete removes the item by ID. Deleting a missing ID is not an
	// error.
	Delete(ctx context.Context, id string) error

	Close() error
}

// ============================================================================
// DATABASE FACADE
// ============================================================================

// Database holds named collections built from configuration.
type Database struct {
	mu          sync.RWMutex
	collections map[string]Collection
	defaultTTL  time.Duration
	store       *SQLStore
	embedders   *embedders.Registry
	logger      *slog.Logger
}

// NewFromConfig builds a database with every configured collection
// instantiated. The embedder registry may be nil when no vector
// collections are declared.
func NewFromConfig(cfg *config.DatabaseConfig, reg *embedders.Registry) (*Database, error) {
	if cfg == nil {
		cfg = &config.DatabaseConfig{}
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db := &Database{
		collections: make(map[string]Collection),
		defaultTTL:  time.Duration(cfg.DefaultTTLSeconds) * time.Second,
		embedders:   reg,
		logger:      slog.Default().With("component", "database"),
	}

	if cfg.SQL != nil {
		store, err := NewSQLStore(cfg.SQL)
		if err != nil {
			return nil, fmt.Errorf("sql store: %w", err)
		}
		db.store = store
	}

	for name, collCfg := range cfg.Collections {
		if _, err := db.CreateCollection(name, collCfg); err != nil {
			db.Close()
			return nil, fmt.Errorf("collection %q: %w", name, err)
		}
	}

	return db, nil
}

// CreateCollection instantiates and registers a collection. A nil
// config creates a basic in-memory collection.
func (d *Database) CreateCollection(name string, cfg *config.CollectionConfig) (Collection, error) {
	if name == "" {
		return nil, fmt.Errorf("collection name cannot be empty")
	}
	if cfg == nil {
		cfg = &config.CollectionConfig{Kind: config.CollectionKindBasic}
	}

	ttl := d.defaultTTL
	if cfg.TTLSeconds > 0 {
		ttl = time.Duration(cfg.TTLSeconds) * time.Second
	}

	var (
		coll Collection
		err  error
	)
	switch cfg.Kind {
	case config.CollectionKindBasic, "":
		coll, err = newBasicCollection(name, ttl, d.store)
	case config.CollectionKindSearchable:
		coll, err = newSearchableCollection(name, ttl, d.store)
	case config.CollectionKindVector:
		coll, err = d.newVectorCollection(name, ttl, cfg)
	default:
		err = fmt.Errorf("unknown collection kind %q", cfg.Kind)
	}
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.collections[name]; exists {
		coll.Close()
		return nil, fmt.Errorf("collection %q already exists", name)
	}
	d.collections[name] = coll

	d.logger.Debug("Created collection", "name", name, "kind", cfg.Kind)
	return coll, nil
}

func (d *Database) newVectorCollection(name string, ttl time.Duration, cfg *config.CollectionConfig) (Collection, error) {
	if d.embedders == nil {
		return nil, fmt.Errorf("vector collections require an embedder registry")
	}
	embedderName := cfg.Embedder
	if embedderName == "" {
		embedderName = "default"
	}
	embedder, ok := d.embedders.Get(embedderName)
	if !ok {
		return nil, fmt.Errorf("embedder %q not registered", embedderName)
	}

	var (
		provider VectorProvider
		err      error
	)
	switch cfg.Provider {
	case "chromem", "":
		provider, err = NewChromemProvider(ChromemConfig{PersistPath: cfg.PersistPath})
	case "qdrant":
		provider, err = NewQdrantProvider(QdrantConfig{Host: cfg.QdrantHost, Port: cfg.QdrantPort})
	default:
		err = fmt.Errorf("unknown vector provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return newVectorCollection(name, ttl, embedder, provider, cfg.VectorSize)
}

// Collection returns a registered collection by name.
func (d *Database) Collection(name string) (Collection, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	coll, ok := d.collections[name]
	return coll, ok
}

// Names returns the registered collection names.
func (d *Database) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.collections))
	for name := range d.collections {
		names = append(names, name)
	}
	return names
}

// DeleteCollection closes and removes a collection and its data.
func (d *Database) DeleteCollection(name string) error {
	d.mu.Lock()
	coll, ok := d.collections[name]
	if ok {
		delete(d.collections, name)
	}
	d.mu.Unlock()

	if !ok {
		return fmt.Errorf("collection %q does not exist", name)
	}
	return coll.Close()
}

// Close closes every collection and the SQL store if configured.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var firstErr error
	for name, coll := range d.collections {
		if err := coll.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing collection %q: %w", name, err)
		}
	}
	d.collections = make(map[string]Collection)

	if d.store != nil {
		if err := d.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
