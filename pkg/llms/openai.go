package llms

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/hsaeed3/ham/pkg/config"
	"github.com/hsaeed3/ham/pkg/httpclient"
)

// ============================================================================
// OPENAI PROVIDER
// ============================================================================

// OpenAIProvider speaks the OpenAI chat completions API. It also serves any
// OpenAI-compatible endpoint via base_url.
type OpenAIProvider struct {
	config     *config.LLMConfig
	httpClient *httpclient.Client
}

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	Temperature    float64               `json:"temperature,omitempty"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	Stream         bool                  `json:"stream"`
	StreamOptions  *openAIStreamOptions  `json:"stream_options,omitempty"`
	Tools          []openAITool          `json:"tools,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	Name       string           `json:"name,omitempty"`
}

type openAITool struct {
	Type     string         `json:"type"`
	Function openAIFunction `json:"function"`
}

type openAIFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type openAIToolCall struct {
	Index    *int               `json:"index,omitempty"`
	ID       string             `json:"id,omitempty"`
	Type     string             `json:"type,omitempty"`
	Function openAIFunctionCall `json:"function"`
}

type openAIFunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type openAIResponseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *openAIJSONSchema `json:"json_schema,omitempty"`
}

type openAIJSONSchema struct {
	Name   string                 `json:"name"`
	Strict bool                   `json:"strict"`
	Schema map[string]interface{} `json:"schema"`
}

type openAIResponse struct {
	ID      string         `json:"id"`
	Choices []openAIChoice `json:"choices"`
	Usage   *openAIUsage   `json:"usage,omitempty"`
	Error   *openAIError   `json:"error,omitempty"`
}

type openAIChoice struct {
	Index        int            `json:"index"`
	Message      *openAIMessage `json:"message,omitempty"`
	Delta        *openAIMessage `json:"delta,omitempty"`
	FinishReason string         `json:"finish_reason,omitempty"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

// NewOpenAIProvider creates an OpenAI provider from config.
func NewOpenAIProvider(cfg *config.LLMConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for OpenAI")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}

	client, err := newHTTPClient(cfg, httpclient.ParseOpenAIHeaders)
	if err != nil {
		return nil, err
	}

	return &OpenAIProvider{config: cfg, httpClient: client}, nil
}

func (p *OpenAIProvider) ModelName() string    { return p.config.Model }
func (p *OpenAIProvider) MaxTokens() int       { return p.config.MaxTokens }
func (p *OpenAIProvider) Temperature() float64 { return temperatureOf(p.config) }
func (p *OpenAIProvider) Close() error         { return nil }

func (p *OpenAIProvider) SupportsStructuredOutput() bool { return true }

// Generate performs a non-streaming chat completion.
func (p *OpenAIProvider) Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (*Response, error) {
	request := p.buildRequest(messages, false, tools, nil)
	return p.makeRequest(ctx, request)
}

// GenerateStreaming performs a streaming chat completion.
func (p *OpenAIProvider) GenerateStreaming(ctx context.Context, messages []Message, tools []ToolDefinition) (<-chan StreamChunk, error) {
	request := p.buildRequest(messages, true, tools, nil)
	return p.startStream(ctx, request), nil
}

// GenerateStructured performs a chat completion constrained by a JSON schema
// via response_format.
func (p *OpenAIProvider) GenerateStructured(ctx context.Context, messages []Message, tools []ToolDefinition, structConfig *StructuredOutputConfig) (*Response, error) {
	request := p.buildRequest(messages, false, tools, structConfig)
	return p.makeRequest(ctx, request)
}

// GenerateStructuredStreaming streams a schema-constrained completion.
func (p *OpenAIProvider) GenerateStructuredStreaming(ctx context.Context, messages []Message, tools []ToolDefinition, structConfig *StructuredOutputConfig) (<-chan StreamChunk, error) {
	request := p.buildRequest(messages, true, tools, structConfig)
	return p.startStream(ctx, request), nil
}

func (p *OpenAIProvider) startStream(ctx context.Context, request openAIRequest) <-chan StreamChunk {
	chunks := make(chan StreamChunk, 100)

	go func() {
		defer close(chunks)
		if err := p.makeStreamingRequest(ctx, request, chunks); err != nil {
			chunks <- StreamChunk{Type: ChunkTypeError, Error: err}
		}
	}()

	return chunks
}

func (p *OpenAIProvider) buildRequest(messages []Message, stream bool, tools []ToolDefinition, structConfig *StructuredOutputConfig) openAIRequest {
	oaiMessages := make([]openAIMessage, 0, len(messages))

	for _, msg := range messages {
		m := openAIMessage{
			Role:       string(msg.Role),
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
			Name:       msg.Name,
		}

		for _, tc := range msg.ToolCalls {
			args, _ := json.Marshal(tc.Args)
			m.ToolCalls = append(m.ToolCalls, openAIToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: openAIFunctionCall{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}

		oaiMessages = append(oaiMessages, m)
	}

	request := openAIRequest{
		Model:       p.config.Model,
		Messages:    oaiMessages,
		Temperature: temperatureOf(p.config),
		MaxTokens:   p.config.MaxTokens,
		Stream:      stream,
	}

	if stream {
		request.StreamOptions = &openAIStreamOptions{IncludeUsage: true}
	}

	if len(tools) > 0 {
		oaiTools := make([]openAITool, len(tools))
		for i, tool := range tools {
			oaiTools[i] = openAITool{
				Type: "function",
				Function: openAIFunction{
					Name:        tool.Name,
					Description: tool.Description,
					Parameters:  tool.Parameters,
				},
			}
		}
		request.Tools = oaiTools
	}

	if structConfig != nil {
		switch structConfig.Format {
		case "json":
			if structConfig.Schema != nil {
				request.ResponseFormat = &openAIResponseFormat{
					Type: "json_schema",
					JSONSchema: &openAIJSONSchema{
						Name:   "response",
						Strict: true,
						Schema: structConfig.Schema,
					},
				}
			} else {
				request.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
			}
		case "enum":
			if len(structConfig.Enum) > 0 {
				request.ResponseFormat = &openAIResponseFormat{
					Type: "json_schema",
					JSONSchema: &openAIJSONSchema{
						Name:   "selection",
						Strict: true,
						Schema: enumEnvelopeSchema(structConfig.Enum),
					},
				}
			}
		}
	}

	return request
}

// enumEnvelopeSchema wraps the allowed values in a single-field object;
// strict mode requires a top-level object schema.
func enumEnvelopeSchema(values []string) map[string]interface{} {
	enum := make([]interface{}, len(values))
	for i, v := range values {
		enum[i] = v
	}
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"value": map[string]interface{}{
				"type": "string",
				"enum": enum,
			},
		},
		"required":             []string{"value"},
		"additionalProperties": false,
	}
}

func (p *OpenAIProvider) newHTTPRequest(ctx context.Context, request openAIRequest) (*http.Request, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(jsonData)), nil
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	return req, nil
}

func (p *OpenAIProvider) makeRequest(ctx context.Context, request openAIRequest) (*Response, error) {
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

	var response openAIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if response.Error != nil {
		return nil, fmt.Errorf("openai API error: %s", response.Error.Message)
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	return p.parseResponse(&response)
}

func (p *OpenAIProvider) parseResponse(response *openAIResponse) (*Response, error) {
	msg := response.Choices[0].Message
	if msg == nil {
		return nil, fmt.Errorf("no message in response choice")
	}

	result := &Response{Text: msg.Content}

	for _, tc := range msg.ToolCalls {
		args := make(map[string]interface{})
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("failed to parse tool call arguments for %s: %w", tc.Function.Name, err)
			}
		}
		result.ToolCalls = append(result.ToolCalls, ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}

	if response.Usage != nil {
		result.Tokens = response.Usage.TotalTokens
	}

	return result, nil
}

func (p *OpenAIProvider) makeStreamingRequest(ctx context.Context, request openAIRequest, chunks chan<- StreamChunk) error {
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

	// Tool call deltas arrive keyed by index; arguments accumulate as
	// partial JSON until finish.
	toolCalls := make(map[int]*ToolCall)
	argBuffers := make(map[int]*strings.Builder)
	var totalTokens int

	flushToolCalls := func() {
		indices := make([]int, 0, len(toolCalls))
		for i := range toolCalls {
			indices = append(indices, i)
		}
		sort.Ints(indices)

		for _, i := range indices {
			tc := toolCalls[i]
			if buf := argBuffers[i]; buf != nil && buf.Len() > 0 {
				var args map[string]interface{}
				if err := json.Unmarshal([]byte(buf.String()), &args); err == nil {
					tc.Args = args
				}
			}
			chunks <- StreamChunk{Type: ChunkTypeToolCall, ToolCall: tc}
			delete(toolCalls, i)
		}
	}

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
		if data == "[DONE]" {
			break
		}

		var streamResp openAIResponse
		if err := json.Unmarshal([]byte(data), &streamResp); err != nil {
			return fmt.Errorf("failed to decode streaming response: %w", err)
		}

		if streamResp.Error != nil {
			return fmt.Errorf("openai API error: %s", streamResp.Error.Message)
		}

		if streamResp.Usage != nil {
			totalTokens = streamResp.Usage.TotalTokens
		}

		if len(streamResp.Choices) == 0 {
			continue
		}
		choice := streamResp.Choices[0]
		delta := choice.Delta
		if delta == nil {
			continue
		}

		if delta.Content != "" {
			chunks <- StreamChunk{Type: ChunkTypeText, Text: delta.Content}
		}

		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}

			if existing, ok := toolCalls[idx]; !ok {
				toolCalls[idx] = &ToolCall{
					ID:   tc.ID,
					Name: tc.Function.Name,
					Args: make(map[string]interface{}),
				}
				argBuffers[idx] = &strings.Builder{}
				argBuffers[idx].WriteString(tc.Function.Arguments)
			} else {
				if tc.ID != "" {
					existing.ID = tc.ID
				}
				if tc.Function.Name != "" {
					existing.Name = tc.Function.Name
				}
				argBuffers[idx].WriteString(tc.Function.Arguments)
			}
		}

		if choice.FinishReason == "tool_calls" || choice.FinishReason == "stop" {
			flushToolCalls()
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read streaming response: %w", err)
	}

	flushToolCalls()
	chunks <- StreamChunk{Type: ChunkTypeDone, Tokens: totalTokens}
	return nil
}

var (
	_ Provider           = (*OpenAIProvider)(nil)
	_ StructuredProvider = (*OpenAIProvider)(nil)
)
