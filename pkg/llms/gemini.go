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
// GEMINI PROVIDER
// ============================================================================

// GeminiProvider speaks the Gemini generateContent API.
type GeminiProvider struct {
	config     *config.LLMConfig
	httpClient *httpclient.Client
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
	Tools             []geminiToolSet         `json:"tools,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature      *float64               `json:"temperature,omitempty"`
	MaxOutputTokens  int                    `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string                 `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]interface{} `json:"responseSchema,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

// geminiPart is a loose map; text, functionCall, and functionResponse parts
// share this shape.
type geminiPart map[string]interface{}

type geminiToolSet struct {
	FunctionDeclarations []geminiFunctionDeclaration `json:"functionDeclarations,omitempty"`
}

type geminiFunctionDeclaration struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate    `json:"candidates"`
	UsageMetadata *geminiUsageMetadata `json:"usageMetadata,omitempty"`
	Error         *geminiError         `json:"error,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// NewGeminiProvider creates a Gemini provider from config.
func NewGeminiProvider(cfg *config.LLMConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for Gemini")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	client, err := newHTTPClient(cfg, httpclient.ParseGeminiHeaders)
	if err != nil {
		return nil, err
	}

	return &GeminiProvider{config: cfg, httpClient: client}, nil
}

func (p *GeminiProvider) ModelName() string    { return p.config.Model }
func (p *GeminiProvider) MaxTokens() int       { return p.config.MaxTokens }
func (p *GeminiProvider) Temperature() float64 { return temperatureOf(p.config) }
func (p *GeminiProvider) Close() error         { return nil }

func (p *GeminiProvider) SupportsStructuredOutput() bool { return true }

// Generate performs a non-streaming generateContent request.
func (p *GeminiProvider) Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (*Response, error) {
	request := p.buildRequest(messages, tools, nil)
	return p.makeRequest(ctx, request)
}

// GenerateStreaming performs a streaming request via streamGenerateContent.
func (p *GeminiProvider) GenerateStreaming(ctx context.Context, messages []Message, tools []ToolDefinition) (<-chan StreamChunk, error) {
	request := p.buildRequest(messages, tools, nil)
	return p.startStream(ctx, request), nil
}

// GenerateStructured constrains output natively via responseSchema.
func (p *GeminiProvider) GenerateStructured(ctx context.Context, messages []Message, tools []ToolDefinition, structConfig *StructuredOutputConfig) (*Response, error) {
	request := p.buildRequest(messages, tools, structConfig)
	return p.makeRequest(ctx, request)
}

// GenerateStructuredStreaming streams a schema-constrained completion.
func (p *GeminiProvider) GenerateStructuredStreaming(ctx context.Context, messages []Message, tools []ToolDefinition, structConfig *StructuredOutputConfig) (<-chan StreamChunk, error) {
	request := p.buildRequest(messages, tools, structConfig)
	return p.startStream(ctx, request), nil
}

func (p *GeminiProvider) startStream(ctx context.Context, request *geminiRequest) <-chan StreamChunk {
	chunks := make(chan StreamChunk, 100)

	go func() {
		defer close(chunks)
		if err := p.makeStreamingRequest(ctx, request, chunks); err != nil {
			chunks <- StreamChunk{Type: ChunkTypeError, Error: err}
		}
	}()

	return chunks
}

func (p *GeminiProvider) buildRequest(messages []Message, tools []ToolDefinition, structConfig *StructuredOutputConfig) *geminiRequest {
	request := &geminiRequest{
		GenerationConfig: p.buildGenerationConfig(structConfig),
	}

	var systemParts []geminiPart

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			if msg.Content != "" {
				systemParts = append(systemParts, geminiPart{"text": msg.Content})
			}

		case RoleUser:
			request.Contents = append(request.Contents, geminiContent{
				Role:  "user",
				Parts: []geminiPart{{"text": msg.Content}},
			})

		case RoleAssistant:
			var parts []geminiPart
			if msg.Content != "" {
				parts = append(parts, geminiPart{"text": msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				args := tc.Args
				if args == nil {
					args = map[string]interface{}{}
				}
				parts = append(parts, geminiPart{
					"functionCall": map[string]interface{}{
						"name": tc.Name,
						"args": args,
					},
				})
			}
			if len(parts) > 0 {
				request.Contents = append(request.Contents, geminiContent{
					Role:  "model",
					Parts: parts,
				})
			}

		case RoleTool:
			request.Contents = append(request.Contents, geminiContent{
				Role: "user",
				Parts: []geminiPart{{
					"functionResponse": map[string]interface{}{
						"name": msg.Name,
						"response": map[string]interface{}{
							"content": msg.Content,
						},
					},
				}},
			})
		}
	}

	if len(systemParts) > 0 {
		request.SystemInstruction = &geminiContent{Parts: systemParts}
	}

	if len(tools) > 0 {
		decls := make([]geminiFunctionDeclaration, len(tools))
		for i, tool := range tools {
			decls[i] = geminiFunctionDeclaration{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			}
		}
		request.Tools = []geminiToolSet{{FunctionDeclarations: decls}}
	}

	return request
}

func (p *GeminiProvider) buildGenerationConfig(structConfig *StructuredOutputConfig) *geminiGenerationConfig {
	genConfig := &geminiGenerationConfig{
		MaxOutputTokens: p.config.MaxTokens,
	}

	if temp := temperatureOf(p.config); temp > 0 {
		genConfig.Temperature = &temp
	}

	if structConfig != nil {
		switch structConfig.Format {
		case "json":
			genConfig.ResponseMimeType = "application/json"
			if structConfig.Schema != nil {
				schema := structConfig.Schema
				if len(structConfig.PropertyOrdering) > 0 {
					schema["propertyOrdering"] = structConfig.PropertyOrdering
				}
				genConfig.ResponseSchema = schema
			}
		case "enum":
			genConfig.ResponseMimeType = "text/x.enum"
			if len(structConfig.Enum) > 0 {
				genConfig.ResponseSchema = map[string]interface{}{
					"type": "string",
					"enum": structConfig.Enum,
				}
			}
		}
	}

	return genConfig
}

func (p *GeminiProvider) newHTTPRequest(ctx context.Context, request *geminiRequest, endpoint string) (*http.Request, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:%s", p.config.BaseURL, p.config.Model, endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(jsonData)), nil
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.config.APIKey)

	return req, nil
}

func (p *GeminiProvider) makeRequest(ctx context.Context, request *geminiRequest) (*Response, error) {
	req, err := p.newHTTPRequest(ctx, request, "generateContent")
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

	var response geminiResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if response.Error != nil {
		return nil, fmt.Errorf("gemini API error: %s", response.Error.Message)
	}

	return p.parseResponse(&response)
}

func (p *GeminiProvider) parseResponse(response *geminiResponse) (*Response, error) {
	if len(response.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates in response")
	}

	candidate := response.Candidates[0]
	result := &Response{}
	var textParts []string

	for _, part := range candidate.Content.Parts {
		if text, ok := part["text"].(string); ok {
			textParts = append(textParts, text)
		}
		if fc, ok := part["functionCall"].(map[string]interface{}); ok {
			name, _ := fc["name"].(string)
			args, _ := fc["args"].(map[string]interface{})
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:   fmt.Sprintf("call_%d", len(result.ToolCalls)),
				Name: name,
				Args: args,
			})
		}
	}

	result.Text = strings.Join(textParts, "")
	if response.UsageMetadata != nil {
		result.Tokens = response.UsageMetadata.TotalTokenCount
	}

	return result, nil
}

func (p *GeminiProvider) makeStreamingRequest(ctx context.Context, request *geminiRequest, chunks chan<- StreamChunk) error {
	req, err := p.newHTTPRequest(ctx, request, "streamGenerateContent?alt=sse")
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

	var totalTokens int
	toolCallCount := 0

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

		var streamResp geminiResponse
		if err := json.Unmarshal([]byte(data), &streamResp); err != nil {
			return fmt.Errorf("failed to decode streaming response: %w", err)
		}

		if streamResp.Error != nil {
			return fmt.Errorf("gemini API error: %s", streamResp.Error.Message)
		}

		if streamResp.UsageMetadata != nil {
			totalTokens = streamResp.UsageMetadata.TotalTokenCount
		}

		for _, candidate := range streamResp.Candidates {
			for _, part := range candidate.Content.Parts {
				if text, ok := part["text"].(string); ok && text != "" {
					chunks <- StreamChunk{Type: ChunkTypeText, Text: text}
				}
				// Gemini delivers function calls whole, not as deltas.
				if fc, ok := part["functionCall"].(map[string]interface{}); ok {
					name, _ := fc["name"].(string)
					args, _ := fc["args"].(map[string]interface{})
					chunks <- StreamChunk{
						Type: ChunkTypeToolCall,
						ToolCall: &ToolCall{
							ID:   fmt.Sprintf("call_%d", toolCallCount),
							Name: name,
							Args: args,
						},
					}
					toolCallCount++
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read streaming response: %w", err)
	}

	chunks <- StreamChunk{Type: ChunkTypeDone, Tokens: totalTokens}
	return nil
}

var (
	_ Provider           = (*GeminiProvider)(nil)
	_ StructuredProvider = (*GeminiProvider)(nil)
)
