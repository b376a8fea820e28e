package config

import (
	"fmt"
)

// ContextUpdateTiming says when the context side-loop runs.
type ContextUpdateTiming string

const (
	ContextUpdateBefore ContextUpdateTiming = "before"
	ContextUpdateAfter  ContextUpdateTiming = "after"
)

// ContextStrategy selects how context updates are applied.
type ContextStrategy string

const (
	// ContextStrategyAll updates the whole context in one structured call.
	ContextStrategyAll ContextStrategy = "all"
	// ContextStrategySelective asks the model which fields to update, then
	// updates each selected field with its own call.
	ContextStrategySelective ContextStrategy = "selective"
)

// ContextFormat selects how the context object is rendered into the system
// prompt.
type ContextFormat string

const (
	ContextFormatJSON     ContextFormat = "json"
	ContextFormatGo       ContextFormat = "go"
	ContextFormatMarkdown ContextFormat = "markdown"
)

// AgentConfig configures a single agent.
type AgentConfig struct {
	// Name of the agent.
	Name string `yaml:"name,omitempty"`

	// Description of what the agent does.
	Description string `yaml:"description,omitempty"`

	// Instructions is the system prompt.
	Instructions string `yaml:"instructions,omitempty"`

	// LLM references an entry in the top-level llms map.
	LLM string `yaml:"llm,omitempty"`

	// Tools references entries in the top-level tools map.
	Tools []string `yaml:"tools,omitempty"`

	// MaxSteps bounds the reasoning loop.
	MaxSteps int `yaml:"max_steps,omitempty"`

	// AddNameToInstructions prefixes instructions with "You are <name>.".
	AddNameToInstructions *bool `yaml:"add_name_to_instructions,omitempty"`

	// ParallelTools executes a step's tool calls concurrently.
	ParallelTools bool `yaml:"parallel_tools,omitempty"`

	// Context management.
	ContextUpdates    []ContextUpdateTiming `yaml:"context_updates,omitempty"`
	ContextConfirm    bool                  `yaml:"context_confirm,omitempty"`
	ContextStrategy   ContextStrategy       `yaml:"context_strategy,omitempty"`
	ContextMaxRetries int                   `yaml:"context_max_retries,omitempty"`
	ContextFormat     ContextFormat         `yaml:"context_format,omitempty"`

	// Optional custom instructions for the context sub-prompts.
	ContextConfirmInstructions   string `yaml:"context_confirm_instructions,omitempty"`
	ContextSelectionInstructions string `yaml:"context_selection_instructions,omitempty"`
	ContextUpdateInstructions    string `yaml:"context_update_instructions,omitempty"`
}

// SetDefaults applies the loop defaults.
func (c *AgentConfig) SetDefaults() {
	if c.Name == "" {
		c.Name = "agent"
	}
	if c.MaxSteps == 0 {
		c.MaxSteps = 10
	}
	if c.AddNameToInstructions == nil {
		v := true
		c.AddNameToInstructions = &v
	}
	if c.ContextStrategy == "" {
		c.ContextStrategy = ContextStrategyAll
	}
	if c.ContextMaxRetries == 0 {
		c.ContextMaxRetries = 3
	}
	if c.ContextFormat == "" {
		c.ContextFormat = ContextFormatJSON
	}
}

// Validate checks agent settings.
func (c *AgentConfig) Validate() error {
	if c.MaxSteps < 1 {
		return fmt.Errorf("max_steps must be at least 1")
	}

	switch c.ContextStrategy {
	case ContextStrategyAll, ContextStrategySelective:
	default:
		return fmt.Errorf("unknown context_strategy %q", c.ContextStrategy)
	}

	switch c.ContextFormat {
	case ContextFormatJSON, ContextFormatGo, ContextFormatMarkdown:
	default:
		return fmt.Errorf("unknown context_format %q", c.ContextFormat)
	}

	for _, timing := range c.ContextUpdates {
		switch timing {
		case ContextUpdateBefore, ContextUpdateAfter:
		default:
			return fmt.Errorf("unknown context update timing %q", timing)
		}
	}

	return nil
}
