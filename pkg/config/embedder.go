package config

import (
	"fmt"
	"os"
)

// EmbedderConfig configures an embedding provider.
type EmbedderConfig struct {
	// Type is the provider type; "openai" covers any OpenAI-compatible API.
	Type string `yaml:"type,omitempty"`

	// Model name (e.g. "text-embedding-3-small").
	Model string `yaml:"model,omitempty"`

	// APIKey for authentication.
	APIKey string `yaml:"api_key,omitempty"`

	// BaseURL overrides the default endpoint.
	BaseURL string `yaml:"base_url,omitempty"`

	// Dimensions requests a specific output dimensionality (0 = model default).
	Dimensions int `yaml:"dimensions,omitempty"`

	// Timeout is the request timeout in seconds.
	Timeout int `yaml:"timeout,omitempty"`

	// MaxRetries bounds HTTP-level retries.
	MaxRetries int `yaml:"max_retries,omitempty"`
}

// SetDefaults applies defaults.
func (c *EmbedderConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "openai"
	}
	if c.Model == "" {
		c.Model = "text-embedding-3-small"
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.Timeout == 0 {
		c.Timeout = 60
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}

// Validate checks embedder settings.
func (c *EmbedderConfig) Validate() error {
	if c.Type != "openai" {
		return fmt.Errorf("unknown embedder type %q", c.Type)
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	return nil
}
