package embedders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hsaeed3/ham/pkg/config"
)

func testEmbedderConfig(baseURL string) *config.EmbedderConfig {
	cfg := &config.EmbedderConfig{
		Type:    "openai",
		Model:   "text-embedding-3-small",
		APIKey:  "test-key",
		BaseURL: baseURL,
	}
	cfg.SetDefaults()
	cfg.BaseURL = baseURL
	return cfg
}

func TestOpenAIEmbedder_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("expected /embeddings, got %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}

		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if len(req.Input) != 1 || req.Input[0] != "hello" {
			t.Errorf("unexpected input %v", req.Input)
		}

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"embedding": []float32{0.1, 0.2, 0.3}, "index": 0},
			},
			"usage": map[string]int{"total_tokens": 2},
		})
	}))
	defer server.Close()

	embedder, err := NewOpenAIEmbedder(testEmbedderConfig(server.URL))
	if err != nil {
		t.Fatalf("failed to create embedder: %v", err)
	}

	vector, err := embedder.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vector) != 3 {
		t.Fatalf("expected 3 dimensions, got %d", len(vector))
	}
	if embedder.Dimensions() != 3 {
		t.Errorf("expected learned dimensions 3, got %d", embedder.Dimensions())
	}
}

func TestOpenAIEmbedder_BatchPreservesOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Results returned out of order; index must win.
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"embedding": []float32{2}, "index": 1},
				{"embedding": []float32{1}, "index": 0},
			},
		})
	}))
	defer server.Close()

	embedder, err := NewOpenAIEmbedder(testEmbedderConfig(server.URL))
	if err != nil {
		t.Fatalf("failed to create embedder: %v", err)
	}

	vectors, err := embedder.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if vectors[0][0] != 1 || vectors[1][0] != 2 {
		t.Errorf("results not reordered by index: %v", vectors)
	}
}

func TestOpenAIEmbedder_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"message": "invalid model", "type": "invalid_request_error"},
		})
	}))
	defer server.Close()

	embedder, err := NewOpenAIEmbedder(testEmbedderConfig(server.URL))
	if err != nil {
		t.Fatalf("failed to create embedder: %v", err)
	}

	_, err = embedder.Embed(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestOpenAIEmbedder_RequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIEmbedder(&config.EmbedderConfig{Model: "m"})
	if err == nil {
		t.Fatal("expected an error for missing API key")
	}
}

func TestRegistry_CreateFromConfig(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{{"embedding": []float32{0.5}, "index": 0}},
		})
	}))
	defer server.Close()

	registry := NewRegistry()
	_, err := registry.CreateFromConfig("default", testEmbedderConfig(server.URL))
	if err != nil {
		t.Fatalf("CreateFromConfig failed: %v", err)
	}

	embedder, ok := registry.Get("default")
	if !ok {
		t.Fatal("embedder not registered")
	}
	if embedder.ModelName() != "text-embedding-3-small" {
		t.Errorf("unexpected model %q", embedder.ModelName())
	}

	if _, err := registry.CreateFromConfig("", nil); err == nil {
		t.Error("expected error for empty name")
	}
}
