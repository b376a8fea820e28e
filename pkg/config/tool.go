package config

import (
	"fmt"
)

const (
	// ToolTypeLocal marks an in-process tool.
	ToolTypeLocal = "local"
	// ToolTypeMCP marks a tool served by an MCP server.
	ToolTypeMCP = "mcp"
)

// ToolConfig configures a tool source entry.
type ToolConfig struct {
	// Type is "local" for in-process tools or "mcp" for an MCP server.
	Type string `yaml:"type,omitempty"`

	// Description overrides the tool's own description.
	Description string `yaml:"description,omitempty"`

	// Enabled turns the tool on or off (default on).
	Enabled *bool `yaml:"enabled,omitempty"`

	// Internal hides the tool from agents (used for infrastructure tools).
	Internal bool `yaml:"internal,omitempty"`

	// ServerURL is the MCP server endpoint (mcp type only).
	ServerURL string `yaml:"server_url,omitempty"`

	// Headers are sent with every MCP request (mcp type only).
	Headers map[string]string `yaml:"headers,omitempty"`

	// TimeoutSeconds bounds MCP calls (mcp type only).
	TimeoutSeconds int `yaml:"timeout,omitempty"`
}

// SetDefaults applies defaults.
func (c *ToolConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = ToolTypeLocal
	}
	if c.Enabled == nil {
		v := true
		c.Enabled = &v
	}
	if c.Type == ToolTypeMCP && c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 30
	}
}

// Validate checks tool settings.
func (c *ToolConfig) Validate() error {
	switch c.Type {
	case ToolTypeLocal, ToolTypeMCP:
	default:
		return fmt.Errorf("unknown tool type %q", c.Type)
	}

	if c.Type == ToolTypeMCP && c.ServerURL == "" {
		return fmt.Errorf("mcp tool requires server_url")
	}

	return nil
}
