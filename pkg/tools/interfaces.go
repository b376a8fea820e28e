// Package tools provides the tool registry, typed function tools with
// generated JSON schemas, and local and MCP tool sources.
package tools

import (
	"context"
	"time"
)

// ToolInfo describes a tool to the model. Parameters is a JSON Schema
// object.
type ToolInfo struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
	ServerURL   string                 `json:"server_url,omitempty"`
}

// ToolResult is the outcome of one tool execution.
type ToolResult struct {
	Success       bool                   `json:"success"`
	Content       string                 `json:"content,omitempty"`
	Output        interface{}            `json:"output,omitempty"`
	Error         string                 `json:"error,omitempty"`
	ToolName      string                 `json:"tool_name"`
	ToolCallID    string                 `json:"tool_call_id,omitempty"`
	ExecutionTime time.Duration          `json:"execution_time,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// Tool is an executable capability exposed to the model.
type Tool interface {
	Info() ToolInfo

	Name() string

	Description() string

	Execute(ctx context.Context, args map[string]interface{}) (ToolResult, error)
}

// ToolSource discovers and serves a group of tools.
type ToolSource interface {
	Name() string

	Type() string

	DiscoverTools(ctx context.Context) error

	ListTools() []ToolInfo

	GetTool(name string) (Tool, bool)

	// Close releases any connections the source holds.
	Close() error
}
