package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChromem_UpsertAndSearch(t *testing.T) {
	provider, err := NewChromemProvider(ChromemConfig{})
	require.NoError(t, err)
	defer provider.Close()

	ctx := context.Background()
	require.NoError(t, provider.Upsert(ctx, "docs", "a", []float32{1, 0, 0}, map[string]any{"content": "first"}))
	require.NoError(t, provider.Upsert(ctx, "docs", "b", []float32{0, 1, 0}, map[string]any{"content": "second"}))

	results, err := provider.Search(ctx, "docs", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID, "closest vector first")
	assert.Equal(t, "first", results[0].Content)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestChromem_TopKClampedToStoredCount(t *testing.T) {
	provider, err := NewChromemProvider(ChromemConfig{})
	require.NoError(t, err)
	defer provider.Close()

	ctx := context.Background()
	require.NoError(t, provider.Upsert(ctx, "docs", "only", []float32{1, 0}, map[string]any{"content": "lonely"}))

	results, err := provider.Search(ctx, "docs", []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestChromem_SearchEmptyCollection(t *testing.T) {
	provider, err := NewChromemProvider(ChromemConfig{})
	require.NoError(t, err)
	defer provider.Close()

	results, err := provider.Search(context.Background(), "empty", []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChromem_SearchWithFilter(t *testing.T) {
	provider, err := NewChromemProvider(ChromemConfig{})
	require.NoError(t, err)
	defer provider.Close()

	ctx := context.Background()
	require.NoError(t, provider.Upsert(ctx, "docs", "a", []float32{1, 0}, map[string]any{"content": "go doc", "lang": "go"}))
	require.NoError(t, provider.Upsert(ctx, "docs", "b", []float32{1, 0}, map[string]any{"content": "rust doc", "lang": "rust"}))

	results, err := provider.SearchWithFilter(ctx, "docs", []float32{1, 0}, 2, map[string]any{"lang": "go"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestChromem_Delete(t *testing.T) {
	provider, err := NewChromemProvider(ChromemConfig{})
	require.NoError(t, err)
	defer provider.Close()

	ctx := context.Background()
	require.NoError(t, provider.Upsert(ctx, "docs", "a", []float32{1, 0}, map[string]any{"content": "bye"}))
	require.NoError(t, provider.Delete(ctx, "docs", "a"))

	results, err := provider.Search(ctx, "docs", []float32{1, 0}, 1)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChromem_PersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	provider, err := NewChromemProvider(ChromemConfig{PersistPath: dir})
	require.NoError(t, err)
	require.NoError(t, provider.Upsert(ctx, "docs", "a", []float32{1, 0}, map[string]any{"content": "saved"}))
	require.NoError(t, provider.Close())

	reopened, err := NewChromemProvider(ChromemConfig{PersistPath: dir})
	require.NoError(t, err)
	defer reopened.Close()

	results, err := reopened.Search(ctx, "docs", []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "saved", results[0].Content)
}

func TestChromem_DeleteCollection(t *testing.T) {
	provider, err := NewChromemProvider(ChromemConfig{})
	require.NoError(t, err)
	defer provider.Close()

	ctx := context.Background()
	require.NoError(t, provider.Upsert(ctx, "docs", "a", []float32{1, 0}, map[string]any{"content": "x"}))
	require.NoError(t, provider.DeleteCollection(ctx, "docs"))

	results, err := provider.Search(ctx, "docs", []float32{1, 0}, 1)
	require.NoError(t, err)
	assert.Empty(t, results)
}
