package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchable_RanksByOverlap(t *testing.T) {
	coll, err := newSearchableCollection("docs", 0, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, coll.Add(ctx, &Item{ID: "1", Content: "the quick brown fox jumps"}))
	require.NoError(t, coll.Add(ctx, &Item{ID: "2", Content: "quick brown dogs sleep"}))
	require.NoError(t, coll.Add(ctx, &Item{ID: "3", Content: "nothing relevant here"}))

	results, err := coll.Query(ctx, "quick brown fox")
	require.NoError(t, err)
	require.Len(t, results, 2, "non-matching items are excluded")

	assert.Equal(t, "1", results[0].Item.ID)
	assert.Equal(t, float64(3), results[0].Score)
	assert.Equal(t, "2", results[1].Item.ID)
	assert.Equal(t, float64(2), results[1].Score)
}

func TestSearchable_TokenizeDropsShortWordsAndPunctuation(t *testing.T) {
	words := tokenize("The Fox, a fox! (it IS quick)")

	assert.Contains(t, words, "fox")
	assert.Contains(t, words, "quick")
	assert.NotContains(t, words, "a", "short words are skipped")
	assert.NotContains(t, words, "is")
	assert.NotContains(t, words, "fox,", "punctuation is trimmed")
}

func TestSearchable_EmptyQueryFallsBackToFilters(t *testing.T) {
	coll, err := newSearchableCollection("docs", 0, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, coll.Add(ctx, &Item{Content: "alpha", Metadata: map[string]any{"kind": "x"}}))
	require.NoError(t, coll.Add(ctx, &Item{Content: "beta", Metadata: map[string]any{"kind": "y"}}))

	results, err := coll.Query(ctx, "", WithFilters(map[string]any{"kind": "x"}))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "alpha", results[0].Item.Content)
}

func TestSearchable_FiltersApplyToKeywordMatches(t *testing.T) {
	coll, err := newSearchableCollection("docs", 0, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, coll.Add(ctx, &Item{Content: "shared topic words", Metadata: map[string]any{"lang": "go"}}))
	require.NoError(t, coll.Add(ctx, &Item{Content: "shared topic words", Metadata: map[string]any{"lang": "rust"}}))

	results, err := coll.Query(ctx, "shared topic", WithFilters(map[string]any{"lang": "go"}))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "go", results[0].Item.Metadata["lang"])
}

func TestSearchable_DeleteRemovesFromIndex(t *testing.T) {
	coll, err := newSearchableCollection("docs", 0, nil)
	require.NoError(t, err)

	ctx := context.Background()
	item := &Item{Content: "unique sequence of words"}
	require.NoError(t, coll.Add(ctx, item))
	require.NoError(t, coll.Delete(ctx, item.ID))

	results, err := coll.Query(ctx, "unique sequence")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchable_QueryLimit(t *testing.T) {
	coll, err := newSearchableCollection("docs", 0, nil)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 15; i++ {
		require.NoError(t, coll.Add(ctx, &Item{Content: "common words everywhere"}))
	}

	results, err := coll.Query(ctx, "common words")
	require.NoError(t, err)
	assert.Len(t, results, 10, "default limit")

	results, err = coll.Query(ctx, "common words", WithLimit(3))
	require.NoError(t, err)
	assert.Len(t, results, 3)
}
