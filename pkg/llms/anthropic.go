package llms

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hsaeed3/ham/pkg/config"
	"github.com/hsaeed3/ham/pkg/httpclient"
)

// ============================================================================
// ANTHROPIC PROVIDER
// ============================================================================

// AnthropicProvider speaks the Anthropic messages API.
type AnthropicProvider struct {
	config     *config.LLMConfig
	httpClient *httpclient.Client
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
	Stream      bool               `json:"stream"`
	System      string             `json:"system,omitempty"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
}

type anthropicMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type anthropicTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

type anthropicContent struct {
	Type      string                  `json:"type"`
	Text      string                  `json:"text,omitempty"`
	Thinking  string                  `json:"thinking,omitempty"`
	ID        string                  `json:"id,omitempty"`
	Name      string                  `json:"name,omitempty"`
	Input     *map[string]interface{} `json:"input,omitempty"`
	ToolUseID string                  `json:"tool_use_id,omitempty"`
	Content   string                  `json:"content,omitempty"`
}

type anthropicResponse struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Role       string             `json:"role"`
	Content    []anthropicContent `json:"content"`
	Model      string             `json:"model"`
	StopReason string             `json:"stop_reason"`
	Usage      anthropicUsage     `json:"usage"`
	Error      *anthropicError    `json:"error,omitempty"`
}

type anthropicStreamResponse struct {
	Type         string             `json:"type"`
	Index        int                `json:"index,omitempty"`
	Delta        *anthropicDelta    `json:"delta,omitempty"`
	ContentBlock *anthropicContent  `json:"content_block,omitempty"`
	Message      *anthropicResponse `json:"message,omitempty"`
	Usage        *anthropicUsage    `json:"usage,omitempty"`
}

type anthropicDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	Thinking    string `json:"thinking,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewAnthropicProvider creates an Anthropic provider from config.
func NewAnthropicProvider(cfg *config.LLMConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for Anthropic")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com/v1"
	}

	client, err := newHTTPClient(cfg, httpclient.ParseAnthropicHeaders)
	if err != nil {
		return nil, err
	}

	return &AnthropicProvider{config: cfg, httpClient: client}, nil
}

func (p *AnthropicProvider) ModelName() string    { return p.config.Model }
func (p *AnthropicProvider) MaxTokens() int       { return p.config.MaxTokens }
func (p *AnthropicProvider) Temperature() float64 { return temperatureOf(p.config) }
func (p *AnthropicProvider) Close() error         { return nil }

func (p *AnthropicProvider) SupportsStructuredOutput() bool { return true }

// Generate performs a non-streaming messages request.
func (p *AnthropicProvider) Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (*Response, error) {
	request := p.buildRequest(messages, false, tools)
	return p.makeRequest(ctx, request, "")
}

// GenerateStreaming performs a streaming messages request.
func (p *AnthropicProvider) GenerateStreaming(ctx context.Context, messages []Message, tools []ToolDefinition) (<-chan StreamChunk, error) {
	request := p.buildRequest(messages, true, tools)
	return p.startStream(ctx, request, ""), nil
}

// GenerateStructured steers the model with a schema in the system prompt and
// a JSON prefill. Anthropic has no native response_format.
func (p *AnthropicProvider) GenerateStructured(ctx context.Context, messages []Message, tools []ToolDefinition, structConfig *StructuredOutputConfig) (*Response, error) {
	request, prefill := p.buildStructuredRequest(messages, false, tools, structConfig)
	return p.makeRequest(ctx, request, prefill)
}

// GenerateStructuredStreaming streams a schema-steered completion. The
// prefill is surfaced as the first text chunk so consumers see valid JSON.
func (p *AnthropicProvider) GenerateStructuredStreaming(ctx context.Context, messages []Message, tools []ToolDefinition, structConfig *StructuredOutputConfig) (<-chan StreamChunk, error) {
	request, prefill := p.buildStructuredRequest(messages, true, tools, structConfig)
	return p.startStream(ctx, request, prefill), nil
}

func (p *AnthropicProvider) startStream(ctx context.Context, request anthropicRequest, prefill string) <-chan StreamChunk {
	chunks := make(chan StreamChunk, 100)

	go func() {
		defer close(chunks)
		if prefill != "" {
			chunks <- StreamChunk{Type: ChunkTypeText, Text: prefill}
		}
		if err := p.makeStreamingRequest(ctx, request, chunks); err != nil {
			chunks <- StreamChunk{Type: ChunkTypeError, Error: err}
		}
	}()

	return chunks
}

func (p *AnthropicProvider) buildRequest(messages []Message, stream bool, tools []ToolDefinition) anthropicRequest {
	var systemParts []string
	anthMessages := make([]anthropicMessage, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			// System prompts travel in a dedicated request field.
			if msg.Content != "" {
				systemParts = append(systemParts, msg.Content)
			}

		case RoleUser:
			anthMessages = append(anthMessages, anthropicMessage{
				Role: "user",
				Content: []anthropicContent{
					{Type: "text", Text: msg.Content},
				},
			})

		case RoleTool:
			// Tool results are user-role tool_result blocks.
			anthMessages = append(anthMessages, anthropicMessage{
				Role: "user",
				Content: []anthropicContent{
					{
						Type:      "tool_result",
						ToolUseID: msg.ToolCallID,
						Content:   msg.Content,
					},
				},
			})

		case RoleAssistant:
			contents := []anthropicContent{}
			if msg.Content != "" {
				contents = append(contents, anthropicContent{Type: "text", Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				input := tc.Args
				if input == nil {
					input = make(map[string]interface{})
				}
				contents = append(contents, anthropicContent{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Name,
					Input: &input,
				})
			}
			if len(contents) > 0 {
				anthMessages = append(anthMessages, anthropicMessage{
					Role:    "assistant",
					Content: contents,
				})
			}
		}
	}

	request := anthropicRequest{
		Model:       p.config.Model,
		Messages:    anthMessages,
		MaxTokens:   p.config.MaxTokens,
		Temperature: temperatureOf(p.config),
		Stream:      stream,
		System:      strings.Join(systemParts, "\n\n"),
	}

	if len(tools) > 0 {
		anthTools := make([]anthropicTool, len(tools))
		for i, tool := range tools {
			anthTools[i] = anthropicTool{
				Name:        tool.Name,
				Description: tool.Description,
				InputSchema: tool.Parameters,
			}
		}
		request.Tools = anthTools
	}

	return request
}

func (p *AnthropicProvider) buildStructuredRequest(messages []Message, stream bool, tools []ToolDefinition, structConfig *StructuredOutputConfig) (anthropicRequest, string) {
	request := p.buildRequest(messages, stream, tools)

	if schemaPrompt := buildSchemaPrompt(structConfig); schemaPrompt != "" {
		if request.System != "" {
			request.System += "\n\n" + schemaPrompt
		} else {
			request.System = schemaPrompt
		}
	}

	prefill := ""
	if structConfig != nil && structConfig.Format == "json" {
		prefill = "{"
		if structConfig.Prefill != "" {
			prefill = structConfig.Prefill
		}
		request.Messages = append(request.Messages, anthropicMessage{
			Role:    "assistant",
			Content: prefill,
		})
	}

	return request, prefill
}

func (p *AnthropicProvider) newHTTPRequest(ctx context.Context, request anthropicRequest) (*http.Request, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/messages", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(jsonData)), nil
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.config.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	return req, nil
}

func (p *AnthropicProvider) makeRequest(ctx context.Context, request anthropicRequest, prefill string) (*Response, error) {
	req, err := p.newHTTPRequest(ctx, request)
	if err != nil {
		return nil, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var response anthropicResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if response.Error != nil {
		return nil, fmt.Errorf("anthropic API error: %s", response.Error.Message)
	}

	result := &Response{
		Tokens: response.Usage.InputTokens + response.Usage.OutputTokens,
	}

	for _, content := range response.Content {
		switch content.Type {
		case "text":
			result.Text += content.Text
		case "thinking":
			result.Thinking += content.Thinking
		case "tool_use":
			var args map[string]interface{}
			if content.Input != nil {
				args = *content.Input
			}
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:   content.ID,
				Name: content.Name,
				Args: args,
			})
		}
	}

	if prefill != "" {
		result.Text = prefill + result.Text
	}

	return result, nil
}

func (p *AnthropicProvider) makeStreamingRequest(ctx context.Context, request anthropicRequest, chunks chan<- StreamChunk) error {
	req, err := p.newHTTPRequest(ctx, request)
	if err != nil {
		return err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	toolCalls := make(map[int]*ToolCall)
	toolJSONBuffers := make(map[int]string)
	var totalTokens int

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")

		var streamResp anthropicStreamResponse
		if err := json.Unmarshal([]byte(data), &streamResp); err != nil {
			return fmt.Errorf("failed to decode streaming response: %w", err)
		}

		switch streamResp.Type {
		case "content_block_start":
			if streamResp.ContentBlock != nil && streamResp.ContentBlock.Type == "tool_use" {
				toolCalls[streamResp.Index] = &ToolCall{
					ID:   streamResp.ContentBlock.ID,
					Name: streamResp.ContentBlock.Name,
					Args: make(map[string]interface{}),
				}
				toolJSONBuffers[streamResp.Index] = ""
			}

		case "content_block_delta":
			if streamResp.Delta == nil {
				continue
			}
			switch {
			case streamResp.Delta.Text != "":
				chunks <- StreamChunk{Type: ChunkTypeText, Text: streamResp.Delta.Text}
			case streamResp.Delta.Thinking != "":
				chunks <- StreamChunk{Type: ChunkTypeThinking, Text: streamResp.Delta.Thinking}
			case streamResp.Delta.Type == "input_json_delta" && streamResp.Delta.PartialJSON != "":
				toolJSONBuffers[streamResp.Index] += streamResp.Delta.PartialJSON
			}

		case "content_block_stop":
			if tc, exists := toolCalls[streamResp.Index]; exists {
				if jsonStr := toolJSONBuffers[streamResp.Index]; jsonStr != "" {
					var args map[string]interface{}
					if err := json.Unmarshal([]byte(jsonStr), &args); err == nil {
						tc.Args = args
					}
				}
				chunks <- StreamChunk{Type: ChunkTypeToolCall, ToolCall: tc}
				delete(toolCalls, streamResp.Index)
			}

		case "message_delta":
			if streamResp.Usage != nil {
				totalTokens = streamResp.Usage.OutputTokens
			}

		case "message_stop":
			chunks <- StreamChunk{Type: ChunkTypeDone, Tokens: totalTokens}
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read streaming response: %w", err)
	}

	chunks <- StreamChunk{Type: ChunkTypeDone, Tokens: totalTokens}
	return nil
}

// buildSchemaPrompt renders schema instructions for providers without native
// structured output.
func buildSchemaPrompt(structConfig *StructuredOutputConfig) string {
	if structConfig == nil {
		return ""
	}

	if structConfig.Format == "enum" && len(structConfig.Enum) > 0 {
		return fmt.Sprintf(`You must respond with exactly one of the following values:

- %s

Output ONLY the chosen value, with no quotes, punctuation, or explanation.`,
			strings.Join(structConfig.Enum, "\n- "))
	}

	if structConfig.Schema == nil {
		return ""
	}

	schemaJSON, err := json.MarshalIndent(structConfig.Schema, "", "  ")
	if err != nil {
		return ""
	}

	return fmt.Sprintf(`You must respond with valid JSON matching this exact schema:

%s

Important:
- Output ONLY valid JSON, no other text
- All required fields must be present
- Follow the exact structure specified
- Use correct data types for each field`, string(schemaJSON))
}

var (
	_ Provider           = (*AnthropicProvider)(nil)
	_ StructuredProvider = (*AnthropicProvider)(nil)
)
