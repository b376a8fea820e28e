package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// basicCollection is an in-memory store with per-item TTL and
// exact-match metadata filters. When a SQL store is configured, writes
// go through to it and existing rows are loaded on startup.
type basicCollection struct {
	name  string
	ttl   time.Duration
	store *SQLStore

	mu    sync.RWMutex
	items map[string]*Item
}

func newBasicCollection(name string, ttl time.Duration, store *SQLStore) (*basicCollection, error) {
	c := &basicCollection{
		name:  name,
		ttl:   ttl,
		store: store,
		items: make(map[string]*Item),
	}

	if store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		items, err := store.LoadItems(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("loading persisted items: %w", err)
		}
		now := time.Now()
		for _, item := range items {
			if item.Expired(now) {
				continue
			}
			c.items[item.ID] = item
		}
	}

	return c, nil
}

func (c *basicCollection) Name() string {
	return c.name
}

// prepare fills in ID, CreatedAt, and the default TTL. Shared with the
// searchable collection.
func (c *basicCollection) prepare(item *Item) error {
	if item == nil {
		return fmt.Errorf("item cannot be nil")
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
	return nil
}

func (c *basicCollection) Add(ctx context.Context, item *Item) error {
	if err := c.prepare(item); err != nil {
		return err
	}

	c.mu.Lock()
	c.items[item.ID] = item
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.SaveItem(ctx, c.name, item); err != nil {
			return fmt.Errorf("persisting item: %w", err)
		}
	}
	return nil
}

func (c *basicCollection) Get(ctx context.Context, id string) (*Item, error) {
	c.mu.RLock()
	item, ok := c.items[id]
	c.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if item.Expired(time.Now()) {
		// Lazy expiry: drop on first access past the deadline.
		if err := c.Delete(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return item, nil
}

// Query ignores the query text for basic collections and returns items
// matching the filters, newest first.
func (c *basicCollection) Query(ctx context.Context, query string, opts ...QueryOption) ([]Result, error) {
	o := applyQueryOptions(opts)
	now := time.Now()

	c.mu.RLock()
	matches := make([]*Item, 0, len(c.items))
	for _, item := range c.items {
		if item.Expired(now) {
			continue
		}
		if matchesFilters(item, o.filters) {
			matches = append(matches, item)
		}
	}
	c.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	if len(matches) > o.limit {
		matches = matches[:o.limit]
	}

	results := make([]Result, len(matches))
	for i, item := range matches {
		results[i] = Result{Item: item, Score: 1}
	}
	return results, nil
}

func (c *basicCollection) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	delete(c.items, id)
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.DeleteItem(ctx, c.name, id); err != nil {
			return fmt.Errorf("deleting persisted item: %w", err)
		}
	}
	return nil
}

func (c *basicCollection) Close() error {
	c.mu.Lock()
	c.items = make(map[string]*Item)
	c.mu.Unlock()
	return nil
}

var _ Collection = (*basicCollection)(nil)
