package database

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// searchableCollection layers a keyword index over the basic store.
// Queries rank items by the number of query words found in the item
// content. Word matching is fast but not semantic; use a vector
// collection for semantic search.
type searchableCollection struct {
	*basicCollection

	indexMu sync.RWMutex
	// words maps item ID to the item's indexed word set.
	words map[string]map[string]struct{}
}

func newSearchableCollection(name string, ttl time.Duration, store *SQLStore) (*searchableCollection, error) {
	base, err := newBasicCollection(name, ttl, store)
	if err != nil {
		return nil, err
	}

	c := &searchableCollection{
		basicCollection: base,
		words:           make(map[string]map[string]struct{}),
	}

	// Index whatever the base loaded from persistence.
	base.mu.RLock()
	for id, item := range base.items {
		c.words[id] = tokenize(item.Content)
	}
	base.mu.RUnlock()

	return c, nil
}

func (c *searchableCollection) Add(ctx context.Context, item *Item) error {
	if err := c.basicCollection.Add(ctx, item); err != nil {
		return err
	}

	c.indexMu.Lock()
	c.words[item.ID] = tokenize(item.Content)
	c.indexMu.Unlock()
	return nil
}

func (c *searchableCollection) Delete(ctx context.Context, id string) error {
	if err := c.basicCollection.Delete(ctx, id); err != nil {
		return err
	}

	c.indexMu.Lock()
	delete(c.words, id)
	c.indexMu.Unlock()
	return nil
}

// Query ranks items by query word overlap. An empty query falls back
// to the basic filter-only behavior.
func (c *searchableCollection) Query(ctx context.Context, query string, opts ...QueryOption) ([]Result, error) {
	queryWords := tokenize(query)
	if len(queryWords) == 0 {
		return c.basicCollection.Query(ctx, query, opts...)
	}

	o := applyQueryOptions(opts)
	now := time.Now()

	c.mu.RLock()
	c.indexMu.RLock()
	var results []Result
	for id, item := range c.items {
		if item.Expired(now) || !matchesFilters(item, o.filters) {
			continue
		}
		score := calculateScore(queryWords, c.words[id])
		if score > 0 {
			results = append(results, Result{Item: item, Score: score})
		}
	}
	c.indexMu.RUnlock()
	c.mu.RUnlock()

	// Sort by score descending
	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > o.limit {
		results = results[:o.limit]
	}
	return results, nil
}

func (c *searchableCollection) Close() error {
	c.indexMu.Lock()
	c.words = make(map[string]map[string]struct{})
	c.indexMu.Unlock()
	return c.basicCollection.Close()
}

var _ Collection = (*searchableCollection)(nil)

// tokenize splits text into lowercase words for indexing.
func tokenize(text string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, word := range strings.Fields(strings.ToLower(text)) {
		// Remove punctuation
		word = strings.Trim(word, ".,!?;:\"'()[]{}")
		if len(word) > 2 { // Skip very short words
			words[word] = struct{}{}
		}
	}
	return words
}

// calculateScore returns the number of matching words (simple TF scoring).
func calculateScore(query, doc map[string]struct{}) float64 {
	var score float64
	for word := range query {
		if _, ok := doc[word]; ok {
			score++
		}
	}
	return score
}
