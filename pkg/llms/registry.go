package llms

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hsaeed3/ham/pkg/config"
	"github.com/hsaeed3/ham/pkg/httpclient"
	"github.com/hsaeed3/ham/pkg/registry"
)

// Provider is a language model capable of tool-calling generation.
type Provider interface {
	// Generate performs a non-streaming request.
	Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (*Response, error)

	// GenerateStreaming performs a streaming request. The returned channel
	// is closed when the stream ends.
	GenerateStreaming(ctx context.Context, messages []Message, tools []ToolDefinition) (<-chan StreamChunk, error)

	ModelName() string

	MaxTokens() int

	Temperature() float64

	Close() error
}

// StructuredProvider adds schema-constrained output.
type StructuredProvider interface {
	Provider

	GenerateStructured(ctx context.Context, messages []Message, tools []ToolDefinition, structConfig *StructuredOutputConfig) (*Response, error)

	GenerateStructuredStreaming(ctx context.Context, messages []Message, tools []ToolDefinition, structConfig *StructuredOutputConfig) (<-chan StreamChunk, error)

	SupportsStructuredOutput() bool
}

// Registry holds named providers.
type Registry struct {
	*registry.BaseRegistry[Provider]
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		BaseRegistry: registry.NewBaseRegistry[Provider](),
	}
}

// RegisterProvider registers a provider under a name.
func (r *Registry) RegisterProvider(name string, provider Provider) error {
	if name == "" {
		return fmt.Errorf("provider name cannot be empty")
	}
	if provider == nil {
		return fmt.Errorf("provider cannot be nil")
	}
	return r.Register(name, provider)
}

// CreateFromConfig builds a provider from config and registers it.
func (r *Registry) CreateFromConfig(name string, cfg *config.LLMConfig) (Provider, error) {
	if name == "" {
		return nil, fmt.Errorf("provider name cannot be empty")
	}
	if cfg == nil {
		return nil, fmt.Errorf("provider config cannot be nil")
	}

	provider, err := NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	if err := r.RegisterProvider(name, provider); err != nil {
		return nil, fmt.Errorf("failed to register provider: %w", err)
	}

	return provider, nil
}

// GetProvider looks up a registered provider.
func (r *Registry) GetProvider(name string) (Provider, error) {
	provider, exists := r.Get(name)
	if !exists {
		return nil, fmt.Errorf("llm provider %q not found", name)
	}
	return provider, nil
}

// NewFromConfig builds a provider for the configured type.
func NewFromConfig(cfg *config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case config.LLMProviderOpenAI:
		return NewOpenAIProvider(cfg)
	case config.LLMProviderAnthropic:
		return NewAnthropicProvider(cfg)
	case config.LLMProviderGemini:
		return NewGeminiProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s (supported: openai, anthropic, gemini)", cfg.Provider)
	}
}

// newHTTPClient builds the retrying HTTP client shared by all providers.
func newHTTPClient(cfg *config.LLMConfig, parser httpclient.RateLimitHeaderParser) (*httpclient.Client, error) {
	httpc := &http.Client{
		Timeout: time.Duration(cfg.Timeout) * time.Second,
	}

	if cfg.InsecureSkipVerify || cfg.CACertificate != "" {
		transport, err := httpclient.ConfigureTLS(&httpclient.TLSConfig{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			CACertificate:      cfg.CACertificate,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
		httpc.Transport = transport
	}

	return httpclient.New(
		httpclient.WithHTTPClient(httpc),
		httpclient.WithMaxRetries(cfg.MaxRetries),
		httpclient.WithBaseDelay(time.Duration(cfg.RetryDelay)*time.Second),
		httpclient.WithHeaderParser(parser),
	), nil
}

func temperatureOf(cfg *config.LLMConfig) float64 {
	if cfg.Temperature != nil {
		return *cfg.Temperature
	}
	return 0.7
}
