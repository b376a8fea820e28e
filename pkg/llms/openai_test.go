package llms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hsaeed3/ham/pkg/config"
)

func testLLMConfig(provider config.LLMProvider, baseURL string) *config.LLMConfig {
	cfg := &config.LLMConfig{
		Provider: provider,
		Model:    "test-model",
		APIKey:   "sk-test-key",
		BaseURL:  baseURL,
		Timeout:  5,
	}
	return cfg
}

func TestNewOpenAIProvider_RequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIProvider(&config.LLMConfig{Model: "gpt-4o"})
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestOpenAIProvider_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s, want /chat/completions", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test-key" {
			t.Errorf("Authorization = %s", auth)
		}

		var req openAIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if len(req.Messages) != 2 {
			t.Errorf("messages = %d, want 2", len(req.Messages))
		}
		if req.Messages[0].Role != "system" {
			t.Errorf("first role = %s, want system", req.Messages[0].Role)
		}

		json.NewEncoder(w).Encode(openAIResponse{
			Choices: []openAIChoice{{
				Message: &openAIMessage{Role: "assistant", Content: "hello there"},
			}},
			Usage: &openAIUsage{TotalTokens: 42},
		})
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(testLLMConfig(config.LLMProviderOpenAI, server.URL))
	if err != nil {
		t.Fatalf("NewOpenAIProvider() error = %v", err)
	}

	resp, err := provider.Generate(context.Background(), []Message{
		SystemMessage("You are helpful."),
		UserMessage("hi"),
	}, nil)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if resp.Text != "hello there" {
		t.Errorf("Text = %q, want %q", resp.Text, "hello there")
	}
	if resp.Tokens != 42 {
		t.Errorf("Tokens = %d, want 42", resp.Tokens)
	}
}

func TestOpenAIProvider_Generate_ToolCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Tools) != 1 || req.Tools[0].Function.Name != "get_weather" {
			t.Errorf("unexpected tools: %+v", req.Tools)
		}

		json.NewEncoder(w).Encode(openAIResponse{
			Choices: []openAIChoice{{
				Message: &openAIMessage{
					Role: "assistant",
					ToolCalls: []openAIToolCall{{
						ID:   "call_1",
						Type: "function",
						Function: openAIFunctionCall{
							Name:      "get_weather",
							Arguments: `{"city":"Paris"}`,
						},
					}},
				},
				FinishReason: "tool_calls",
			}},
		})
	}))
	defer server.Close()

	provider, _ := NewOpenAIProvider(testLLMConfig(config.LLMProviderOpenAI, server.URL))

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
	if tc.ID != "call_1" || tc.Name != "get_weather" {
		t.Errorf("unexpected tool call: %+v", tc)
	}
	if tc.Args["city"] != "Paris" {
		t.Errorf("Args[city] = %v, want Paris", tc.Args["city"])
	}
}

func TestOpenAIProvider_Generate_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad model"}}`)
	}))
	defer server.Close()

	provider, _ := NewOpenAIProvider(testLLMConfig(config.LLMProviderOpenAI, server.URL))

	_, err := provider.Generate(context.Background(), []Message{UserMessage("hi")}, nil)
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if !strings.Contains(err.Error(), "400") {
		t.Errorf("error = %v, want status 400 mentioned", err)
	}
}

func TestOpenAIProvider_GenerateStreaming(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)

		events := []string{
			`{"choices":[{"delta":{"content":"Hel"}}]}`,
			`{"choices":[{"delta":{"content":"lo"}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"lookup","arguments":"{\"q\":"}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"go\"}"}}]}}]}`,
			`{"choices":[{"delta":{},"finish_reason":"tool_calls"}],"usage":{"total_tokens":17}}`,
			`[DONE]`,
		}
		for _, ev := range events {
			fmt.Fprintf(w, "data: %s\n\n", ev)
			flusher.Flush()
		}
	}))
	defer server.Close()

	provider, _ := NewOpenAIProvider(testLLMConfig(config.LLMProviderOpenAI, server.URL))

	chunks, err := provider.GenerateStreaming(context.Background(), []Message{UserMessage("hi")}, nil)
	if err != nil {
		t.Fatalf("GenerateStreaming() error = %v", err)
	}

	var text string
	var toolCalls []*ToolCall
	var tokens int
	for chunk := range chunks {
		switch chunk.Type {
		case ChunkTypeText:
			text += chunk.Text
		case ChunkTypeToolCall:
			toolCalls = append(toolCalls, chunk.ToolCall)
		case ChunkTypeDone:
			tokens = chunk.Tokens
		case ChunkTypeError:
			t.Fatalf("stream error: %v", chunk.Error)
		}
	}

	if text != "Hello" {
		t.Errorf("text = %q, want Hello", text)
	}
	if len(toolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(toolCalls))
	}
	if toolCalls[0].Name != "lookup" || toolCalls[0].Args["q"] != "go" {
		t.Errorf("unexpected tool call: %+v", toolCalls[0])
	}
	if tokens != 17 {
		t.Errorf("tokens = %d, want 17", tokens)
	}
}

func TestOpenAIProvider_GenerateStructured_Enum(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIRequest
		json.NewDecoder(r.Body).Decode(&req)

		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_schema" {
			t.Fatalf("expected json_schema response_format, got %+v", req.ResponseFormat)
		}

		props := req.ResponseFormat.JSONSchema.Schema["properties"].(map[string]interface{})
		value := props["value"].(map[string]interface{})
		enum := value["enum"].([]interface{})
		if len(enum) != 2 || enum[0] != "yes" || enum[1] != "no" {
			t.Errorf("enum = %v, want [yes no]", enum)
		}

		json.NewEncoder(w).Encode(openAIResponse{
			Choices: []openAIChoice{{
				Message: &openAIMessage{Role: "assistant", Content: `{"value":"yes"}`},
			}},
		})
	}))
	defer server.Close()

	provider, _ := NewOpenAIProvider(testLLMConfig(config.LLMProviderOpenAI, server.URL))

	resp, err := provider.GenerateStructured(context.Background(), []Message{UserMessage("yes or no?")}, nil, &StructuredOutputConfig{
		Format: "enum",
		Enum:   []string{"yes", "no"},
	})
	if err != nil {
		t.Fatalf("GenerateStructured() error = %v", err)
	}
	if resp.Text != `{"value":"yes"}` {
		t.Errorf("text = %q", resp.Text)
	}
}

func TestOpenAIProvider_GenerateStructured(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIRequest
		json.NewDecoder(r.Body).Decode(&req)

		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_schema" {
			t.Errorf("expected json_schema response_format, got %+v", req.ResponseFormat)
		}

		json.NewEncoder(w).Encode(openAIResponse{
			Choices: []openAIChoice{{
				Message: &openAIMessage{Role: "assistant", Content: `{"answer":42}`},
			}},
		})
	}))
	defer server.Close()

	provider, _ := NewOpenAIProvider(testLLMConfig(config.LLMProviderOpenAI, server.URL))

	resp, err := provider.GenerateStructured(context.Background(), []Message{UserMessage("answer?")}, nil, &StructuredOutputConfig{
		Format: "json",
		Schema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"answer": map[string]interface{}{"type": "integer"}},
		},
	})
	if err != nil {
		t.Fatalf("GenerateStructured() error = %v", err)
	}

	var out map[string]interface{}
	if err := json.Unmarshal([]byte(resp.Text), &out); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if out["answer"] != float64(42) {
		t.Errorf("answer = %v, want 42", out["answer"])
	}
}
