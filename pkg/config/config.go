// Package config defines the YAML configuration surface for ham.
//
// Configuration is loaded from a file (or raw bytes), environment variables
// are expanded, the result is decoded with mapstructure, and every section
// gets defaults applied and validated.
package config

import (
	"fmt"
)

// Config is the root configuration document.
type Config struct {
	// LLMs maps provider names to language model configurations.
	LLMs map[string]*LLMConfig `yaml:"llms,omitempty"`

	// Agents maps agent names to their configurations.
	Agents map[string]*AgentConfig `yaml:"agents,omitempty"`

	// Tools maps tool names to their configurations.
	Tools map[string]*ToolConfig `yaml:"tools,omitempty"`

	// Embedders maps embedder names to their configurations.
	Embedders map[string]*EmbedderConfig `yaml:"embedders,omitempty"`

	// Database configures the collection store.
	Database *DatabaseConfig `yaml:"database,omitempty"`

	// Logging configures the slog-based logger.
	Logging LoggingConfig `yaml:"logging,omitempty"`

	// Tracing configures span export.
	Tracing TracingConfig `yaml:"tracing,omitempty"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level,omitempty"`

	// Format is "simple" or "verbose".
	Format string `yaml:"format,omitempty"`

	// File is an optional log file path (empty = stderr).
	File string `yaml:"file,omitempty"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled,omitempty"`
	ServiceName  string  `yaml:"service_name,omitempty"`
	SamplingRate float64 `yaml:"sampling_rate,omitempty"`
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	if c.LLMs == nil {
		c.LLMs = map[string]*LLMConfig{}
	}

	// A bare config still gets one usable LLM entry, detected from env.
	if len(c.LLMs) == 0 {
		c.LLMs["default"] = &LLMConfig{}
	}

	for _, llm := range c.LLMs {
		llm.SetDefaults()
	}
	for name, agent := range c.Agents {
		if agent.Name == "" {
			agent.Name = name
		}
		agent.SetDefaults()
	}
	for _, tool := range c.Tools {
		tool.SetDefaults()
	}
	for _, emb := range c.Embedders {
		emb.SetDefaults()
	}
	if c.Database != nil {
		c.Database.SetDefaults()
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "simple"
	}
	if c.Tracing.SamplingRate == 0 {
		c.Tracing.SamplingRate = 1.0
	}
}

// Validate checks the whole document, failing on the first error.
func (c *Config) Validate() error {
	for name, llm := range c.LLMs {
		if err := llm.Validate(); err != nil {
			return fmt.Errorf("llm %q: %w", name, err)
		}
	}

	for name, agent := range c.Agents {
		if err := agent.Validate(); err != nil {
			return fmt.Errorf("agent %q: %w", name, err)
		}
		if agent.LLM != "" {
			if _, ok := c.LLMs[agent.LLM]; !ok {
				return fmt.Errorf("agent %q references unknown llm %q", name, agent.LLM)
			}
		}
		for _, toolName := range agent.Tools {
			if _, ok := c.Tools[toolName]; !ok {
				return fmt.Errorf("agent %q references unknown tool %q", name, toolName)
			}
		}
	}

	for name, tool := range c.Tools {
		if err := tool.Validate(); err != nil {
			return fmt.Errorf("tool %q: %w", name, err)
		}
	}

	for name, emb := range c.Embedders {
		if err := emb.Validate(); err != nil {
			return fmt.Errorf("embedder %q: %w", name, err)
		}
	}

	if c.Database != nil {
		if err := c.Database.Validate(); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		for cname, coll := range c.Database.Collections {
			if coll.Kind == CollectionKindVector && coll.Embedder != "" {
				if _, ok := c.Embedders[coll.Embedder]; !ok {
					return fmt.Errorf("collection %q references unknown embedder %q", cname, coll.Embedder)
				}
			}
		}
	}

	return nil
}
