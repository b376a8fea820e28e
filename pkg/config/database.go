package config

import (
	"fmt"
)

// CollectionKind identifies a collection implementation.
type CollectionKind string

const (
	// CollectionKindBasic is a key/value store with TTL and filters.
	CollectionKindBasic CollectionKind = "basic"
	// CollectionKindSearchable adds keyword search over the basic store.
	CollectionKindSearchable CollectionKind = "searchable"
	// CollectionKindVector stores embeddings for similarity search.
	CollectionKindVector CollectionKind = "vector"
)

// DatabaseConfig configures the collection store.
type DatabaseConfig struct {
	// DefaultTTLSeconds applies to items without an explicit TTL (0 = none).
	DefaultTTLSeconds int `yaml:"default_ttl,omitempty"`

	// SQL enables persistent storage for basic collections.
	SQL *SQLConfig `yaml:"sql,omitempty"`

	// Collections declares named collections.
	Collections map[string]*CollectionConfig `yaml:"collections,omitempty"`
}

// SQLConfig configures the SQL persistence backend.
type SQLConfig struct {
	// Driver is sqlite3, postgres, or mysql.
	Driver string `yaml:"driver,omitempty"`

	// DSN is the driver-specific connection string.
	DSN string `yaml:"dsn,omitempty"`
}

// CollectionConfig declares one collection.
type CollectionConfig struct {
	// Kind is basic, searchable, or vector.
	Kind CollectionKind `yaml:"kind,omitempty"`

	// TTLSeconds overrides the database default TTL.
	TTLSeconds int `yaml:"ttl,omitempty"`

	// Vector collection settings.
	Provider   string `yaml:"provider,omitempty"` // "chromem" (default) or "qdrant"
	Embedder   string `yaml:"embedder,omitempty"`
	VectorSize int    `yaml:"vector_size,omitempty"`

	// Qdrant connection (vector kind with provider "qdrant").
	QdrantHost string `yaml:"qdrant_host,omitempty"`
	QdrantPort int    `yaml:"qdrant_port,omitempty"`

	// PersistPath enables file persistence for chromem collections.
	PersistPath string `yaml:"persist_path,omitempty"`
}

// SetDefaults applies defaults to the database section.
func (c *DatabaseConfig) SetDefaults() {
	if c.SQL != nil && c.SQL.Driver == "" {
		c.SQL.Driver = "sqlite3"
	}
	for _, coll := range c.Collections {
		if coll.Kind == "" {
			coll.Kind = CollectionKindBasic
		}
		if coll.Kind == CollectionKindVector {
			if coll.Provider == "" {
				coll.Provider = "chromem"
			}
			if coll.Provider == "qdrant" {
				if coll.QdrantHost == "" {
					coll.QdrantHost = "localhost"
				}
				if coll.QdrantPort == 0 {
					coll.QdrantPort = 6334
				}
			}
		}
	}
}

// Validate checks database settings.
func (c *DatabaseConfig) Validate() error {
	if c.SQL != nil {
		switch c.SQL.Driver {
		case "sqlite3", "postgres", "mysql":
		default:
			return fmt.Errorf("unsupported sql driver %q", c.SQL.Driver)
		}
		if c.SQL.DSN == "" {
			return fmt.Errorf("sql requires dsn")
		}
	}

	for name, coll := range c.Collections {
		switch coll.Kind {
		case CollectionKindBasic, CollectionKindSearchable, CollectionKindVector:
		default:
			return fmt.Errorf("collection %q: unknown kind %q", name, coll.Kind)
		}

		if coll.Kind == CollectionKindVector {
			switch coll.Provider {
			case "chromem", "qdrant":
			default:
				return fmt.Errorf("collection %q: unknown vector provider %q", name, coll.Provider)
			}
		}
	}

	return nil
}
