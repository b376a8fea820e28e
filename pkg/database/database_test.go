package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsaeed3/ham/pkg/config"
)

func TestNewFromConfig_CreatesCollections(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Collections: map[string]*config.CollectionConfig{
			"notes": {Kind: config.CollectionKindBasic},
			"docs":  {Kind: config.CollectionKindSearchable},
		},
	}

	db, err := NewFromConfig(cfg, nil)
	require.NoError(t, err)
	defer db.Close()

	notes, ok := db.Collection("notes")
	require.True(t, ok)
	assert.Equal(t, "notes", notes.Name())

	_, ok = db.Collection("docs")
	assert.True(t, ok)

	_, ok = db.Collection("missing")
	assert.False(t, ok)

	assert.ElementsMatch(t, []string{"notes", "docs"}, db.Names())
}

func TestNewFromConfig_NilConfig(t *testing.T) {
	db, err := NewFromConfig(nil, nil)
	require.NoError(t, err)
	defer db.Close()

	assert.Empty(t, db.Names())
}

func TestNewFromConfig_InvalidKindRejected(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Collections: map[string]*config.CollectionConfig{
			"bad": {Kind: "graph"},
		},
	}

	_, err := NewFromConfig(cfg, nil)
	assert.Error(t, err)
}

func TestCreateCollection_DefaultsToBasic(t *testing.T) {
	db, err := NewFromConfig(nil, nil)
	require.NoError(t, err)
	defer db.Close()

	coll, err := db.CreateCollection("scratch", nil)
	require.NoError(t, err)

	require.NoError(t, coll.Add(context.Background(), &Item{Content: "x"}))
}

func TestCreateCollection_DuplicateName(t *testing.T) {
	db, err := NewFromConfig(nil, nil)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.CreateCollection("dupe", nil)
	require.NoError(t, err)

	_, err = db.CreateCollection("dupe", nil)
	assert.Error(t, err)
}

func TestCreateCollection_VectorRequiresEmbedders(t *testing.T) {
	db, err := NewFromConfig(nil, nil)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.CreateCollection("vec", &config.CollectionConfig{Kind: config.CollectionKindVector})
	assert.ErrorContains(t, err, "embedder registry")
}

func TestDeleteCollection(t *testing.T) {
	db, err := NewFromConfig(nil, nil)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.CreateCollection("temp", nil)
	require.NoError(t, err)

	require.NoError(t, db.DeleteCollection("temp"))
	_, ok := db.Collection("temp")
	assert.False(t, ok)

	assert.Error(t, db.DeleteCollection("temp"))
}

func TestDatabase_DefaultTTLFlowsToCollections(t *testing.T) {
	cfg := &config.DatabaseConfig{
		DefaultTTLSeconds: 3600,
		Collections: map[string]*config.CollectionConfig{
			"notes": {Kind: config.CollectionKindBasic},
		},
	}

	db, err := NewFromConfig(cfg, nil)
	require.NoError(t, err)
	defer db.Close()

	notes, _ := db.Collection("notes")
	item := &Item{Content: "timed"}
	require.NoError(t, notes.Add(context.Background(), item))
	assert.False(t, item.ExpiresAt.IsZero(), "database default TTL applies")
}
