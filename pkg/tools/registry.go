package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/hsaeed3/ham/pkg/config"
	"github.com/hsaeed3/ham/pkg/observability"
	"github.com/hsaeed3/ham/pkg/registry"
)

// Call is a tool invocation to execute, normally derived from a model
// tool call.
type Call struct {
	ID   string
	Name string
	Args map[string]interface{}
}

// Entry pairs a tool with the source it came from.
type Entry struct {
	Tool       Tool
	Source     ToolSource
	SourceType string
	Name       string
	Internal   bool
}

// RegistryError wraps registry failures with component context.
type RegistryError struct {
	Action  string
	Message string
	Err     error
}

func (e *RegistryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[ToolRegistry:%s] %s: %v", e.Action, e.Message, e.Err)
	}
	return fmt.Sprintf("[ToolRegistry:%s] %s", e.Action, e.Message)
}

func (e *RegistryError) Unwrap() error { return e.Err }

func newRegistryError(action, message string, err error) *RegistryError {
	return &RegistryError{Action: action, Message: message, Err: err}
}

// Registry aggregates tools from multiple sources and executes calls.
type Registry struct {
	*registry.BaseRegistry[Entry]
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		BaseRegistry: registry.NewBaseRegistry[Entry](),
	}
}

// NewRegistryFromConfig builds a registry from tool configuration. Local
// tool configs only declare visibility; the tools themselves are added via
// AddLocalTool. MCP configs create connected sources.
func NewRegistryFromConfig(ctx context.Context, toolConfig map[string]*config.ToolConfig) (*Registry, error) {
	r := NewRegistry()

	for name, tc := range toolConfig {
		if tc == nil || tc.Type != config.ToolTypeMCP {
			continue
		}
		if tc.Enabled != nil && !*tc.Enabled {
			continue
		}

		source, err := NewMCPToolSource(MCPConfig{
			Name:      name,
			ServerURL: tc.ServerURL,
			Headers:   tc.Headers,
			Timeout:   time.Duration(tc.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			slog.Warn("Failed to create MCP source", "source", name, "error", err)
			continue
		}

		if err := r.RegisterSource(ctx, source); err != nil {
			slog.Warn("Failed to register MCP source", "source", name, "error", err)
			continue
		}
	}

	return r, nil
}

// RegisterSource discovers a source's tools and registers them.
func (r *Registry) RegisterSource(ctx context.Context, source ToolSource) error {
	name := source.Name()
	if name == "" {
		return newRegistryError("RegisterSource", "source name cannot be empty", nil)
	}

	if err := source.DiscoverTools(ctx); err != nil {
		return newRegistryError("RegisterSource",
			fmt.Sprintf("failed to discover tools from source %s", name), err)
	}

	for _, info := range source.ListTools() {
		tool, exists := source.GetTool(info.Name)
		if !exists {
			continue
		}

		entry := Entry{
			Tool:       tool,
			Source:     source,
			SourceType: source.Type(),
			Name:       info.Name,
		}

		if err := r.Register(info.Name, entry); err != nil {
			return newRegistryError("RegisterSource",
				fmt.Sprintf("failed to register tool %s", info.Name), err)
		}
	}

	return nil
}

// AddLocalTool registers a single in-process tool.
func (r *Registry) AddLocalTool(tool Tool) error {
	source := NewLocalToolSource("local")
	source.AddTool(tool)

	entry := Entry{
		Tool:       tool,
		Source:     source,
		SourceType: "local",
		Name:       tool.Name(),
	}
	return r.Register(tool.Name(), entry)
}

// MarkInternal hides a tool from agent listings.
func (r *Registry) MarkInternal(name string) error {
	entry, exists := r.Get(name)
	if !exists {
		return newRegistryError("MarkInternal", fmt.Sprintf("tool %s not found", name), nil)
	}
	entry.Internal = true
	return r.Replace(name, entry)
}

// GetTool looks up a tool by name.
func (r *Registry) GetTool(name string) (Tool, error) {
	entry, exists := r.Get(name)
	if !exists {
		return nil, newRegistryError("GetTool", fmt.Sprintf("tool %s not found", name), nil)
	}
	return entry.Tool, nil
}

// ListTools returns the tools visible to agents, sorted by name.
func (r *Registry) ListTools() []ToolInfo {
	var infos []ToolInfo
	for _, entry := range r.List() {
		if entry.Internal {
			continue
		}
		infos = append(infos, entry.Tool.Info())
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// Execute runs a single tool call. Unknown tools produce a failed result
// rather than an execution abort, so the model can correct itself.
func (r *Registry) Execute(ctx context.Context, call Call) ToolResult {
	start := time.Now()

	tracer := observability.GetTracer("ham.tools")
	ctx, span := tracer.Start(ctx, observability.SpanToolExecution,
		trace.WithAttributes(
			attribute.String(observability.AttrToolName, call.Name),
		),
	)
	defer span.End()

	tool, err := r.GetTool(call.Name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "tool not found")

		return ToolResult{
			Success:       false,
			Error:         fmt.Sprintf("tool %q is not available", call.Name),
			ToolName:      call.Name,
			ToolCallID:    call.ID,
			ExecutionTime: time.Since(start),
		}
	}

	result, execErr := tool.Execute(ctx, call.Args)
	result.ToolCallID = call.ID
	duration := time.Since(start)

	switch {
	case execErr != nil:
		span.RecordError(execErr)
		span.SetStatus(codes.Error, execErr.Error())
		// Tool errors surface to the model as failed results.
		result.Success = false
		if result.Error == "" {
			result.Error = execErr.Error()
		}
	case !result.Success:
		span.SetStatus(codes.Error, result.Error)
	default:
		span.SetStatus(codes.Ok, "success")
	}

	span.SetAttributes(
		attribute.Bool("tool.success", result.Success),
		attribute.Int64("tool.duration_ms", duration.Milliseconds()),
	)

	return result
}

// Close shuts down every distinct tool source.
func (r *Registry) Close() error {
	seen := make(map[ToolSource]struct{})
	var firstErr error
	for _, entry := range r.List() {
		if entry.Source == nil {
			continue
		}
		if _, ok := seen[entry.Source]; ok {
			continue
		}
		seen[entry.Source] = struct{}{}
		if err := entry.Source.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ExecuteCalls runs a batch of tool calls, sequentially by default or
// concurrently when parallel is set. Results preserve call order either way.
func (r *Registry) ExecuteCalls(ctx context.Context, calls []Call, parallel bool) []ToolResult {
	results := make([]ToolResult, len(calls))

	if !parallel || len(calls) <= 1 {
		for i, call := range calls {
			results[i] = r.Execute(ctx, call)
		}
		return results
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = r.Execute(gctx, call)
			return nil
		})
	}
	// Workers never return errors; failures live in the results.
	_ = g.Wait()

	return results
}
