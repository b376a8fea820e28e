// Package database provides named collections of items with optional
// TTL expiry, metadata filtering, keyword search, and vector similarity
// search.
//
// Three collection kinds are available:
//
//   - basic: in-memory key/value store with per-item TTL and exact-match
//     metadata filters, optionally persisted to SQL (sqlite3, postgres,
//     mysql)
//   - searchable: a basic collection with a keyword index layered on
//     top, ranking results by query term overlap
//   - vector: embeddings computed by an embedders.Embedder and stored in
//     a vector provider (embedded chromem-go by default, or Qdrant over
//     gRPC)
//
// Example usage:
//
//	db, err := database.NewFromConfig(cfg, embedderRegistry)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	notes, _ := db.Collection("notes")
//	_ = notes.Add(ctx, &database.Item{Content: "hello", Metadata: map[string]any{"topic": "greetings"}})
//	results, _ := notes.Query(ctx, "hello", database.WithLimit(5))
package database
