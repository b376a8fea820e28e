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

func TestNewAnthropicProvider_RequiresAPIKey(t *testing.T) {
	_, err := NewAnthropicProvider(&config.LLMConfig{Model: "claude-sonnet-4-20250514"})
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestAnthropicProvider_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("path = %s, want /messages", r.URL.Path)
		}
		if key := r.Header.Get("x-api-key"); key != "sk-test-key" {
			t.Errorf("x-api-key = %s", key)
		}
		if v := r.Header.Get("anthropic-version"); v == "" {
			t.Error("missing anthropic-version header")
		}

		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		// System messages travel in the dedicated field, not the list.
		if req.System != "You are helpful." {
			t.Errorf("System = %q", req.System)
		}
		if len(req.Messages) != 1 {
			t.Errorf("messages = %d, want 1", len(req.Messages))
		}

		json.NewEncoder(w).Encode(anthropicResponse{
			Content: []anthropicContent{
				{Type: "text", Text: "hello there"},
			},
			Usage: anthropicUsage{InputTokens: 10, OutputTokens: 5},
		})
	}))
	defer server.Close()

	provider, err := NewAnthropicProvider(testLLMConfig(config.LLMProviderAnthropic, server.URL))
	if err != nil {
		t.Fatalf("NewAnthropicProvider() error = %v", err)
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
	if resp.Tokens != 15 {
		t.Errorf("Tokens = %d, want 15", resp.Tokens)
	}
}

func TestAnthropicProvider_Generate_ToolUse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		input := map[string]interface{}{"city": "Paris"}
		json.NewEncoder(w).Encode(anthropicResponse{
			Content: []anthropicContent{
				{Type: "text", Text: "Checking the weather."},
				{Type: "tool_use", ID: "toolu_1", Name: "get_weather", Input: &input},
			},
			StopReason: "tool_use",
		})
	}))
	defer server.Close()

	provider, _ := NewAnthropicProvider(testLLMConfig(config.LLMProviderAnthropic, server.URL))

	resp, err := provider.Generate(context.Background(), []Message{UserMessage("weather?")}, []ToolDefinition{
		{Name: "get_weather", Description: "Get weather", Parameters: map[string]interface{}{"type": "object"}},
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if len(resp.ToolCalls) != 1 {
		t.Fatalf("ToolCalls = %d, want 1", len(resp.ToolCalls))
	}
	if resp.ToolCalls[0].ID != "toolu_1" || resp.ToolCalls[0].Args["city"] != "Paris" {
		t.Errorf("unexpected tool call: %+v", resp.ToolCalls[0])
	}
}

func TestAnthropicProvider_GenerateStreaming(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)

		events := []string{
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hel"}}`,
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"lo"}}`,
			`{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"lookup"}}`,
			`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"q\":\"go\"}"}}`,
			`{"type":"content_block_stop","index":1}`,
			`{"type":"message_delta","usage":{"output_tokens":9}}`,
			`{"type":"message_stop"}`,
		}
		for _, ev := range events {
			fmt.Fprintf(w, "data: %s\n\n", ev)
			flusher.Flush()
		}
	}))
	defer server.Close()

	provider, _ := NewAnthropicProvider(testLLMConfig(config.LLMProviderAnthropic, server.URL))

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
	if len(toolCalls) != 1 || toolCalls[0].Name != "lookup" || toolCalls[0].Args["q"] != "go" {
		t.Errorf("unexpected tool calls: %+v", toolCalls)
	}
	if tokens != 9 {
		t.Errorf("tokens = %d, want 9", tokens)
	}
}

func TestAnthropicProvider_GenerateStructured_Enum(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req anthropicRequest
		json.NewDecoder(r.Body).Decode(&req)

		if !strings.Contains(req.System, "exactly one of the following values") {
			t.Error("expected enum instructions in system prompt")
		}
		if !strings.Contains(req.System, "- positive") || !strings.Contains(req.System, "- negative") {
			t.Errorf("options missing from system prompt: %q", req.System)
		}

		// No JSON prefill on enum requests; the value is a bare string.
		last := req.Messages[len(req.Messages)-1]
		if last.Role == "assistant" {
			t.Errorf("unexpected assistant prefill: %+v", last)
		}

		json.NewEncoder(w).Encode(anthropicResponse{
			Content: []anthropicContent{
				{Type: "text", Text: "positive"},
			},
		})
	}))
	defer server.Close()

	provider, _ := NewAnthropicProvider(testLLMConfig(config.LLMProviderAnthropic, server.URL))

	resp, err := provider.GenerateStructured(context.Background(), []Message{UserMessage("I love this!")}, nil, &StructuredOutputConfig{
		Format: "enum",
		Enum:   []string{"positive", "negative"},
	})
	if err != nil {
		t.Fatalf("GenerateStructured() error = %v", err)
	}
	if resp.Text != "positive" {
		t.Errorf("text = %q, want positive", resp.Text)
	}
}

func TestAnthropicProvider_GenerateStructured_Prefill(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req anthropicRequest
		json.NewDecoder(r.Body).Decode(&req)

		if !strings.Contains(req.System, "valid JSON") {
			t.Error("expected schema instructions in system prompt")
		}

		// The last message should be the assistant prefill.
		last := req.Messages[len(req.Messages)-1]
		if last.Role != "assistant" {
			t.Errorf("last role = %s, want assistant", last.Role)
		}

		json.NewEncoder(w).Encode(anthropicResponse{
			Content: []anthropicContent{
				{Type: "text", Text: `"answer":42}`},
			},
		})
	}))
	defer server.Close()

	provider, _ := NewAnthropicProvider(testLLMConfig(config.LLMProviderAnthropic, server.URL))

	resp, err := provider.GenerateStructured(context.Background(), []Message{UserMessage("answer?")}, nil, &StructuredOutputConfig{
		Format: "json",
		Schema: map[string]interface{}{"type": "object"},
	})
	if err != nil {
		t.Fatalf("GenerateStructured() error = %v", err)
	}

	// Prefill is prepended so the result is complete JSON.
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(resp.Text), &out); err != nil {
		t.Fatalf("response is not valid JSON: %v (%q)", err, resp.Text)
	}
	if out["answer"] != float64(42) {
		t.Errorf("answer = %v, want 42", out["answer"])
	}
}
