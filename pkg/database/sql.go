package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	// SQL drivers registered by import.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hsaeed3/ham/pkg/config"
)

// SQLStore persists collection items to a relational database.
// Supported dialects are sqlite3, postgres, and mysql; one store is
// shared by all persistent collections in a Database.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

const createItemsTableSQL = `
CREATE TABLE IF NOT EXISTS collection_items (
    collection VARCHAR(255) NOT NULL,
    item_id VARCHAR(255) NOT NULL,
    content TEXT NOT NULL,
    metadata_json TEXT,
    created_at TIMESTAMP NOT NULL,
    expires_at TIMESTAMP NULL,
    PRIMARY KEY (collection, item_id)
);
`

// NewSQLStore opens the configured database and ensures the schema
// exists.
func NewSQLStore(cfg *config.SQLConfig) (*SQLStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("SQL configuration is required")
	}

	driverName := cfg.Driver
	if driverName == "sqlite" {
		driverName = "sqlite3"
	}

	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", cfg.Driver, err)
	}

	s := &SQLStore{db: db, dialect: cfg.Driver}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, createItemsTableSQL); err != nil {
		return fmt.Errorf("failed to create collection_items table: %w", err)
	}
	return nil
}

// SaveItem inserts or replaces one item.
func (s *SQLStore) SaveItem(ctx context.Context, collection string, item *Item) error {
	metadataJSON, err := json.Marshal(item.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	var expiresAt any
	if !item.ExpiresAt.IsZero() {
		expiresAt = item.ExpiresAt
	}

	query := `
INSERT INTO collection_items (collection, item_id, content, metadata_json, created_at, expires_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (collection, item_id) DO UPDATE SET
    content = excluded.content,
    metadata_json = excluded.metadata_json,
    created_at = excluded.created_at,
    expires_at = excluded.expires_at
`
	if s.dialect == "postgres" {
		query = `
INSERT INTO collection_items (collection, item_id, content, metadata_json, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (collection, item_id) DO UPDATE SET
    content = EXCLUDED.content,
    metadata_json = EXCLUDED.metadata_json,
    created_at = EXCLUDED.created_at,
    expires_at = EXCLUDED.expires_at
`
	} else if s.dialect == "mysql" {
		query = `
INSERT INTO collection_items (collection, item_id, content, metadata_json, created_at, expires_at)
VALUES (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    content = VALUES(content),
    metadata_json = VALUES(metadata_json),
    created_at = VALUES(created_at),
    expires_at = VALUES(expires_at)
`
	}

	_, err = s.db.ExecContext(ctx, query,
		collection, item.ID, item.Content, string(metadataJSON), item.CreatedAt, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to save item: %w", err)
	}
	return nil
}

// LoadItems returns every persisted item of a collection, including
// expired ones; callers filter by TTL.
func (s *SQLStore) LoadItems(ctx context.Context, collection string) ([]*Item, error) {
	query := `
SELECT item_id, content, metadata_json, created_at, expires_at
FROM collection_items
WHERE collection = ?
ORDER BY created_at
`
	if s.dialect == "postgres" {
		query = `
SELECT item_id, content, metadata_json, created_at, expires_at
FROM collection_items
WHERE collection = $1
ORDER BY created_at
`
	}

	rows, err := s.db.QueryContext(ctx, query, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to load items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		var (
			item         Item
			metadataJSON sql.NullString
			expiresAt    sql.NullTime
		)
		if err := rows.Scan(&item.ID, &item.Content, &metadataJSON, &item.CreatedAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &item.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata for item %s: %w", item.ID, err)
			}
		}
		if expiresAt.Valid {
			item.ExpiresAt = expiresAt.Time
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

// DeleteItem removes one persisted item.
func (s *SQLStore) DeleteItem(ctx context.Context, collection, id string) error {
	query := `DELETE FROM collection_items WHERE collection = ? AND item_id = ?`
	if s.dialect == "postgres" {
		query = `DELETE FROM collection_items WHERE collection = $1 AND item_id = $2`
	}

	if _, err := s.db.ExecContext(ctx, query, collection, id); err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	return nil
}

// DeleteExpired removes all items whose TTL elapsed before now.
func (s *SQLStore) DeleteExpired(ctx context.Context, now time.Time) error {
	query := `DELETE FROM collection_items WHERE expires_at IS NOT NULL AND expires_at < ?`
	if s.dialect == "postgres" {
		query = `DELETE FROM collection_items WHERE expires_at IS NOT NULL AND expires_at < $1`
	}

	if _, err := s.db.ExecContext(ctx, query, now); err != nil {
		return fmt.Errorf("failed to delete expired items: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
