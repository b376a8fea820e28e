package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEmbedder maps known texts to fixed vectors.
type stubEmbedder struct {
	vectors map[string][]float32
}

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, ok := e.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no vector for %q", text)
	}
	return v, nil
}

func (e *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *stubEmbedder) ModelName() string { return "stub" }
func (e *stubEmbedder) Dimensions() int   { return 2 }
func (e *stubEmbedder) Close() error      { return nil }

// fakeVectorProvider records upserts and returns canned search results.
type fakeVectorProvider struct {
	upserts map[string][]float32
	payload map[string]map[string]any
	results []VectorResult
	deleted []string
	filter  map[string]any
	closed  bool
}

func newFakeVectorProvider() *fakeVectorProvider {
	return &fakeVectorProvider{
		upserts: make(map[string][]float32),
		payload: make(map[string]map[string]any),
	}
}

func (p *fakeVectorProvider) Upsert(ctx context.Context, collection, id string, vector []float32, metadata map[string]any) error {
	p.upserts[id] = vector
	p.payload[id] = metadata
	return nil
}

func (p *fakeVectorProvider) Search(ctx context.Context, collection string, vector []float32, topK int) ([]VectorResult, error) {
	return p.results, nil
}

func (p *fakeVectorProvider) SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]VectorResult, error) {
	p.filter = filter
	return p.results, nil
}

func (p *fakeVectorProvider) Delete(ctx context.Context, collection, id string) error {
	p.deleted = append(p.deleted, id)
	return nil
}

func (p *fakeVectorProvider) CreateCollection(ctx context.Context, collection string, vectorDimension int) error {
	return nil
}

func (p *fakeVectorProvider) DeleteCollection(ctx context.Context, collection string) error {
	return nil
}

func (p *fakeVectorProvider) Name() string { return "fake" }

func (p *fakeVectorProvider) Close() error {
	p.closed = true
	return nil
}

func newTestVectorCollection(t *testing.T, provider VectorProvider, ttl time.Duration) *vectorCollection {
	t.Helper()
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"hello":       {1, 0},
		"greetings":   {0.9, 0.1},
		"the query":   {1, 0},
		"other topic": {0, 1},
	}}
	coll, err := newVectorCollection("vec", ttl, embedder, provider, 2)
	require.NoError(t, err)
	return coll
}

func TestVector_AddEmbedsContent(t *testing.T) {
	provider := newFakeVectorProvider()
	coll := newTestVectorCollection(t, provider, 0)

	item := &Item{Content: "hello", Metadata: map[string]any{"topic": "greetings"}}
	require.NoError(t, coll.Add(context.Background(), item))

	assert.Equal(t, []float32{1, 0}, provider.upserts[item.ID])
	assert.Equal(t, "hello", provider.payload[item.ID]["content"], "content travels in the payload")
	assert.Equal(t, "greetings", provider.payload[item.ID]["topic"])
}

func TestVector_AddRequiresContent(t *testing.T) {
	coll := newTestVectorCollection(t, newFakeVectorProvider(), 0)
	assert.Error(t, coll.Add(context.Background(), &Item{Metadata: map[string]any{"k": "v"}}))
}

func TestVector_QueryReturnsProviderMatches(t *testing.T) {
	provider := newFakeVectorProvider()
	coll := newTestVectorCollection(t, provider, 0)

	ctx := context.Background()
	item := &Item{ID: "doc-1", Content: "hello"}
	require.NoError(t, coll.Add(ctx, item))
	provider.results = []VectorResult{{ID: "doc-1", Score: 0.97}}

	results, err := coll.Query(ctx, "the query")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-1", results[0].Item.ID)
	assert.Equal(t, "hello", results[0].Item.Content, "item body served from the local mirror")
	assert.Equal(t, 0.97, results[0].Score)
}

func TestVector_QueryFiltersPassThrough(t *testing.T) {
	provider := newFakeVectorProvider()
	coll := newTestVectorCollection(t, provider, 0)

	_, err := coll.Query(context.Background(), "the query", WithFilters(map[string]any{"topic": "x"}))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"topic": "x"}, provider.filter)
}

func TestVector_QueryRebuildsUnknownItemsFromPayload(t *testing.T) {
	provider := newFakeVectorProvider()
	coll := newTestVectorCollection(t, provider, 0)

	provider.results = []VectorResult{{
		ID:       "persisted",
		Score:    0.5,
		Metadata: map[string]any{"content": "from a previous run", "topic": "old"},
	}}

	results, err := coll.Query(context.Background(), "the query")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "from a previous run", results[0].Item.Content)
	assert.Equal(t, "old", results[0].Item.Metadata["topic"])
	assert.NotContains(t, results[0].Item.Metadata, "content")
}

func TestVector_ExpiredItemsDroppedFromResults(t *testing.T) {
	provider := newFakeVectorProvider()
	coll := newTestVectorCollection(t, provider, 10*time.Millisecond)

	ctx := context.Background()
	item := &Item{ID: "stale", Content: "hello"}
	require.NoError(t, coll.Add(ctx, item))
	provider.results = []VectorResult{{ID: "stale", Score: 0.9}}

	time.Sleep(20 * time.Millisecond)

	results, err := coll.Query(ctx, "the query")
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = coll.Get(ctx, "stale")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVector_DeleteRemovesFromProvider(t *testing.T) {
	provider := newFakeVectorProvider()
	coll := newTestVectorCollection(t, provider, 0)

	ctx := context.Background()
	item := &Item{ID: "doc-1", Content: "hello"}
	require.NoError(t, coll.Add(ctx, item))
	require.NoError(t, coll.Delete(ctx, "doc-1"))

	assert.Equal(t, []string{"doc-1"}, provider.deleted)
	_, err := coll.Get(ctx, "doc-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVector_CloseClosesProvider(t *testing.T) {
	provider := newFakeVectorProvider()
	coll := newTestVectorCollection(t, provider, 0)

	require.NoError(t, coll.Close())
	assert.True(t, provider.closed)
}

func TestVector_EmptyQueryRejected(t *testing.T) {
	coll := newTestVectorCollection(t, newFakeVectorProvider(), 0)
	_, err := coll.Query(context.Background(), "")
	assert.Error(t, err)
}
