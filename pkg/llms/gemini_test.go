package llms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hsaeed3/ham/pkg/config"
)

func TestNewGeminiProvider_RequiresAPIKey(t *testing.T) {
	_, err := NewGeminiProvider(&config.LLMConfig{Model: "gemini-2.0-flash"})
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestGeminiProvider_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			t.Errorf("path = %s, want :generateContent suffix", r.URL.Path)
		}
		if key := r.Header.Get("x-goog-api-key"); key != "sk-test-key" {
			t.Errorf("x-goog-api-key = %s", key)
		}

		var req geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.SystemInstruction == nil {
			t.Error("expected systemInstruction")
		}

		json.NewEncoder(w).Encode(geminiResponse{
			Candidates: []geminiCandidate{{
				Content: geminiContent{
					Role:  "model",
					Parts: []geminiPart{{"text": "hello there"}},
				},
				FinishReason: "STOP",
			}},
			UsageMetadata: &geminiUsageMetadata{TotalTokenCount: 21},
		})
	}))
	defer server.Close()

	provider, err := NewGeminiProvider(testLLMConfig(config.LLMProviderGemini, server.URL))
	if err != nil {
		t.Fatalf("NewGeminiProvider() error = %v", err)
	}

	resp, err := provider.Generate(context.Background(), []Message{
		SystemMessage("You are helpful."),
		UserMessage("hi"),
	}, nil)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if resp.Text != "hello there" {
		t.Errorf("Text = %q", resp.Text)
	}
	if resp.Tokens != 21 {
		t.Errorf("Tokens = %d, want 21", resp.Tokens)
	}
}

func TestGeminiProvider_Generate_FunctionCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(geminiResponse{
			Candidates: []geminiCandidate{{
				Content: geminiContent{
					Role: "model",
					Parts: []geminiPart{{
						"functionCall": map[string]interface{}{
							"name": "get_weather",
							"args": map[string]interface{}{"city": "Paris"},
						},
					}},
				},
			}},
		})
	}))
	defer server.Close()

	provider, _ := NewGeminiProvider(testLLMConfig(config.LLMProviderGemini, server.URL))

	resp, err := provider.Generate(context.Background(), []Message{UserMessage("weather?")}, []ToolDefinition{
		{Name: "get_weather", Description: "Get weather", Parameters: map[string]interface{}{"type": "object"}},
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if len(resp.ToolCalls) != 1 {
		t.Fatalf("ToolCalls = %d, want 1", len(resp.ToolCalls))
	}
	tc := resp.ToolCalls[0]
	if tc.Name != "get_weather" || tc.Args["city"] != "Paris" {
		t.Errorf("unexpected tool call: %+v", tc)
	}
	if tc.ID == "" {
		t.Error("expected synthesized tool call ID")
	}
}

func TestGeminiProvider_GenerateStructured_SchemaInConfig(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req geminiRequest
		json.NewDecoder(r.Body).Decode(&req)

		if req.GenerationConfig == nil || req.GenerationConfig.ResponseMimeType != "application/json" {
			t.Errorf("expected application/json mime type, got %+v", req.GenerationConfig)
		}
		if req.GenerationConfig.ResponseSchema == nil {
			t.Error("expected responseSchema")
		}

		json.NewEncoder(w).Encode(geminiResponse{
			Candidates: []geminiCandidate{{
				Content: geminiContent{
					Role:  "model",
					Parts: []geminiPart{{"text": `{"answer":42}`}},
				},
			}},
		})
	}))
	defer server.Close()

	provider, _ := NewGeminiProvider(testLLMConfig(config.LLMProviderGemini, server.URL))

	resp, err := provider.GenerateStructured(context.Background(), []Message{UserMessage("answer?")}, nil, &StructuredOutputConfig{
		Format: "json",
		Schema: map[string]interface{}{"type": "object"},
	})
	if err != nil {
		t.Fatalf("GenerateStructured() error = %v", err)
	}

	var out map[string]interface{}
	if err := json.Unmarshal([]byte(resp.Text), &out); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
}

func TestRegistry_CreateFromConfig(t *testing.T) {
	reg := NewRegistry()

	cfg := testLLMConfig(config.LLMProviderOpenAI, "http://localhost:9")
	provider, err := reg.CreateFromConfig("main", cfg)
	if err != nil {
		t.Fatalf("CreateFromConfig() error = %v", err)
	}
	if provider.ModelName() != "test-model" {
		t.Errorf("ModelName() = %s", provider.ModelName())
	}

	got, err := reg.GetProvider("main")
	if err != nil {
		t.Fatalf("GetProvider() error = %v", err)
	}
	if got != provider {
		t.Error("GetProvider returned a different instance")
	}

	if _, err := reg.GetProvider("missing"); err == nil {
		t.Error("expected error for missing provider")
	}
}

func TestNewFromConfig_UnsupportedProvider(t *testing.T) {
	_, err := NewFromConfig(&config.LLMConfig{Provider: "ollama", Model: "llama3", APIKey: "x"})
	if err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}
