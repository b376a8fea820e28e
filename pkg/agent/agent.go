package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hsaeed3/ham/pkg/config"
	"github.com/hsaeed3/ham/pkg/httpclient"
	"github.com/hsaeed3/ham/pkg/llms"
	"github.com/hsaeed3/ham/pkg/observability"
	"github.com/hsaeed3/ham/pkg/tools"
)

// ============================================================================
// AGENT - THE STEP LOOP
// ============================================================================

// Settings configures an agent's loop behavior. The zero value plus
// SetDefaults mirrors the config defaults.
type Settings struct {
	Name         string
	Description  string
	Instructions string

	// MaxSteps bounds the number of tool-calling rounds.
	MaxSteps int

	// AddNameToInstructions prefixes the system prompt with "You are <name>.".
	AddNameToInstructions bool

	// ParallelTools executes a step's tool calls concurrently.
	ParallelTools bool

	// MaxHistoryTokens trims the conversation to fit a token budget before
	// each model call. Zero disables trimming.
	MaxHistoryTokens int

	// Context side-loop settings.
	ContextFormat     config.ContextFormat
	ContextUpdates    []config.ContextUpdateTiming
	ContextConfirm    bool
	ContextStrategy   config.ContextStrategy
	ContextMaxRetries int

	// Optional custom instructions for the context sub-prompts.
	ContextConfirmInstructions   string
	ContextSelectionInstructions string
	ContextUpdateInstructions    string
}

// SetDefaults applies the loop defaults.
func (s *Settings) SetDefaults() {
	if s.MaxSteps == 0 {
		s.MaxSteps = 10
	}
	if s.ContextStrategy == "" {
		s.ContextStrategy = config.ContextStrategyAll
	}
	if s.ContextMaxRetries == 0 {
		s.ContextMaxRetries = 3
	}
	if s.ContextFormat == "" {
		s.ContextFormat = config.ContextFormatJSON
	}
}

// SettingsFromConfig maps an agent config onto loop settings.
func SettingsFromConfig(cfg *config.AgentConfig) Settings {
	s := Settings{
		Name:                         cfg.Name,
		Description:                  cfg.Description,
		Instructions:                 cfg.Instructions,
		MaxSteps:                     cfg.MaxSteps,
		ParallelTools:                cfg.ParallelTools,
		ContextFormat:                cfg.ContextFormat,
		ContextUpdates:               cfg.ContextUpdates,
		ContextConfirm:               cfg.ContextConfirm,
		ContextStrategy:              cfg.ContextStrategy,
		ContextMaxRetries:            cfg.ContextMaxRetries,
		ContextConfirmInstructions:   cfg.ContextConfirmInstructions,
		ContextSelectionInstructions: cfg.ContextSelectionInstructions,
		ContextUpdateInstructions:    cfg.ContextUpdateInstructions,
	}
	if cfg.AddNameToInstructions != nil {
		s.AddNameToInstructions = *cfg.AddNameToInstructions
	}
	s.SetDefaults()
	return s
}

// Agent pairs a language model provider with tools and instructions and
// runs the multi-step tool-calling loop.
type Agent struct {
	provider  llms.Provider
	tools     *tools.Registry
	settings  Settings
	formatter *MessageFormatter
	hooks     *HookManager
	logger    *slog.Logger
}

// New creates an agent. The tool registry may be nil for a tool-less agent.
func New(provider llms.Provider, registry *tools.Registry, settings Settings) *Agent {
	settings.SetDefaults()
	if registry == nil {
		registry = tools.NewRegistry()
	}
	return &Agent{
		provider:  provider,
		tools:     registry,
		settings:  settings,
		formatter: NewMessageFormatter(settings),
		hooks:     NewHookManager(),
		logger:    slog.Default().With("agent", settings.Name),
	}
}

// Hooks returns the agent-level hook manager. Hooks registered here fire
// for every run; per-run hooks are added with WithHooks.
func (a *Agent) Hooks() *HookManager {
	return a.hooks
}

// Settings returns a copy of the agent's settings.
func (a *Agent) Settings() Settings {
	return a.settings
}

// Name returns the agent's name.
func (a *Agent) Name() string {
	return a.settings.Name
}

// Description returns the agent's description.
func (a *Agent) Description() string {
	return a.settings.Description
}

// ============================================================================
// RUN OPTIONS
// ============================================================================

type runOptions struct {
	provider   llms.Provider
	maxSteps   int
	context    interface{}
	structured *llms.StructuredOutputConfig
	hooks      *HookManager
}

// RunOption overrides loop behavior for a single run.
type RunOption func(*runOptions)

// WithProvider swaps the model provider for this run.
func WithProvider(p llms.Provider) RunOption {
	return func(o *runOptions) { o.provider = p }
}

// WithMaxSteps overrides the step budget for this run.
func WithMaxSteps(n int) RunOption {
	return func(o *runOptions) { o.maxSteps = n }
}

// WithContext supplies the context object the loop may read and update.
// Accepts a map[string]interface{} or a struct pointer.
func WithContext(contextObj interface{}) RunOption {
	return func(o *runOptions) { o.context = contextObj }
}

// WithStructuredOutput constrains the final response to a JSON schema.
func WithStructuredOutput(sc *llms.StructuredOutputConfig) RunOption {
	return func(o *runOptions) { o.structured = sc }
}

// WithHooks attaches per-run hooks in addition to the agent-level ones.
func WithHooks(h *HookManager) RunOption {
	return func(o *runOptions) { o.hooks = h }
}

func (a *Agent) buildOptions(opts []RunOption) runOptions {
	o := runOptions{
		provider: a.provider,
		maxSteps: a.settings.MaxSteps,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxSteps < 1 {
		o.maxSteps = 1
	}
	return o
}

// ============================================================================
// RUN - NON-STREAMING ENTRY POINT
// ============================================================================

// Run executes the step loop to completion and assembles the final
// response. Input may be a string, a message list, or a prior
// *AgentResponse to continue a conversation.
func (a *Agent) Run(ctx context.Context, input interface{}, opts ...RunOption) (*AgentResponse, error) {
	o := a.buildOptions(opts)
	return a.run(ctx, input, o, a.newEmitter(o, nil))
}

// run is the shared loop behind Run and RunStream. emit forwards events to
// hooks and, when streaming, the event channel.
func (a *Agent) run(ctx context.Context, input interface{}, o runOptions, emit *emitter) (*AgentResponse, error) {
	startTime := time.Now()
	streaming := emit.streaming

	tracer := observability.GetTracer("ham.agent")
	ctx, span := tracer.Start(ctx, observability.SpanAgentRun,
		trace.WithAttributes(
			attribute.String(observability.AttrAgentName, a.settings.Name),
			attribute.String(observability.AttrLLMModel, o.provider.ModelName()),
		),
	)
	defer span.End()

	messages, err := a.formatter.Format(input, o.context)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid input")
		return nil, err
	}

	toolDefs := a.toolDefinitions()
	contextObj := o.context
	totalTokens := 0
	var steps []Step
	var lastResponse *llms.Response

	for stepIndex := 0; stepIndex < o.maxSteps; stepIndex++ {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "cancelled")
			return nil, err
		}

		emit.send(Event{Type: EventStepStart, Step: stepIndex})

		if a.updatesAt(config.ContextUpdateBefore) && contextObj != nil {
			updated, tokens := a.updateContext(ctx, o.provider, contextObj, messages, emit)
			contextObj = updated
			totalTokens += tokens
		}

		stepStart := time.Now()
		messages = a.trimHistory(messages, o.provider)

		stepCtx, stepSpan := tracer.Start(ctx, observability.SpanAgentStep,
			trace.WithAttributes(attribute.Int("agent.step_index", stepIndex)))

		resp, err := a.callModel(stepCtx, o.provider, messages, toolDefs, o.structured, streaming, emit)
		if err != nil {
			// Rate limits get one agent-level retry after the indicated
			// delay. Anything else is fatal.
			var retryErr *httpclient.RetryableError
			if !errors.As(err, &retryErr) {
				stepSpan.RecordError(err)
				stepSpan.End()
				span.RecordError(err)
				span.SetStatus(codes.Error, "model call failed")
				return nil, err
			}

			waitTime := retryErr.RetryAfter
			if waitTime == 0 {
				waitTime = 120 * time.Second
			}
			a.logger.Warn("rate limited, retrying",
				"status", retryErr.StatusCode,
				"wait", waitTime)

			if err := sleepCtx(stepCtx, waitTime); err != nil {
				stepSpan.End()
				return nil, err
			}
			resp, err = a.callModel(stepCtx, o.provider, messages, toolDefs, o.structured, streaming, emit)
			if err != nil {
				stepSpan.RecordError(err)
				stepSpan.End()
				span.RecordError(err)
				span.SetStatus(codes.Error, "model call failed after retry")
				return nil, fmt.Errorf("model unavailable after retry: %w", err)
			}
		}

		totalTokens += resp.Tokens
		lastResponse = resp

		if len(resp.ToolCalls) == 0 {
			// Terminal response.
			messages = append(messages, llms.AssistantMessage(resp.Text))
			stepSpan.End()
			emit.send(Event{Type: EventStepEnd, Step: stepIndex})

			if a.updatesAt(config.ContextUpdateAfter) && contextObj != nil {
				updated, tokens := a.updateContext(ctx, o.provider, contextObj, messages, emit)
				contextObj = updated
				totalTokens += tokens
			}

			span.SetAttributes(attribute.Int(observability.AttrLLMTokensOutput, totalTokens))
			span.SetStatus(codes.Ok, "completed")
			return a.assemble(resp, messages, steps, totalTokens, contextObj, o, startTime), nil
		}

		// Assistant message with tool calls goes in before the results so
		// the round trip is valid for the provider.
		messages = append(messages, llms.Message{
			Role:      llms.RoleAssistant,
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})

		results := a.executeTools(stepCtx, resp.ToolCalls, emit)
		for _, result := range results {
			messages = append(messages, llms.ToolResultMessage(
				result.ToolCallID, result.ToolName, toolResultContent(result)))
		}

		steps = append(steps, Step{
			Index:       stepIndex,
			Text:        resp.Text,
			Thinking:    resp.Thinking,
			ToolCalls:   resp.ToolCalls,
			ToolResults: results,
			Tokens:      resp.Tokens,
			Duration:    time.Since(stepStart),
		})
		stepSpan.End()
		emit.send(Event{Type: EventStepEnd, Step: stepIndex})

		if a.updatesAt(config.ContextUpdateAfter) && contextObj != nil {
			updated, tokens := a.updateContext(ctx, o.provider, contextObj, messages, emit)
			contextObj = updated
			totalTokens += tokens
		}
	}

	// Step budget exhausted. The final answer is the last recorded
	// response; only when no step ever completed is one last call forced
	// without tools so there is something to return.
	span.SetAttributes(attribute.Int("agent.steps_exhausted", o.maxSteps))

	if len(steps) == 0 || lastResponse == nil {
		forced := append(messages, llms.UserMessage(
			"Provide your final answer based on the work so far. Do not request any more tools."))
		resp, err := a.callModel(ctx, o.provider, forced, nil, o.structured, streaming, emit)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "forced final call failed")
			return nil, err
		}
		totalTokens += resp.Tokens
		lastResponse = resp
	}

	messages = append(messages, llms.AssistantMessage(lastResponse.Text))
	span.SetAttributes(attribute.Int(observability.AttrLLMTokensOutput, totalTokens))
	span.SetStatus(codes.Ok, "max steps reached")
	return a.assemble(lastResponse, messages, steps, totalTokens, contextObj, o, startTime), nil
}

// ============================================================================
// LOOP HELPERS
// ============================================================================

func (a *Agent) toolDefinitions() []llms.ToolDefinition {
	infos := a.tools.ListTools()
	if len(infos) == 0 {
		return nil
	}
	defs := make([]llms.ToolDefinition, len(infos))
	for i, info := range infos {
		defs[i] = llms.ToolDefinition{
			Name:        info.Name,
			Description: info.Description,
			Parameters:  info.Parameters,
		}
	}
	return defs
}

// trimHistory fits the conversation into the history token budget. The
// fitted window never starts with orphaned tool results.
func (a *Agent) trimHistory(messages []llms.Message, provider llms.Provider) []llms.Message {
	if a.settings.MaxHistoryTokens <= 0 {
		return messages
	}

	counter, err := NewTokenCounter(provider.ModelName())
	if err != nil {
		a.logger.Warn("token counter unavailable, skipping history trim", "error", err)
		return messages
	}

	fitted := counter.FitWithinLimit(messages, a.settings.MaxHistoryTokens)

	// Drop tool results whose assistant tool-call turn fell outside the
	// window; providers reject them.
	i := 0
	if len(fitted) > 0 && fitted[0].Role == llms.RoleSystem {
		i = 1
	}
	j := i
	for j < len(fitted) && fitted[j].Role == llms.RoleTool {
		j++
	}
	if j > i {
		fitted = append(fitted[:i:i], fitted[j:]...)
	}
	return fitted
}

// callModel performs one model request, streaming or not, inside an LLM
// request span.
func (a *Agent) callModel(
	ctx context.Context,
	provider llms.Provider,
	messages []llms.Message,
	toolDefs []llms.ToolDefinition,
	structured *llms.StructuredOutputConfig,
	streaming bool,
	emit *emitter,
) (*llms.Response, error) {
	tracer := observability.GetTracer("ham.agent")
	ctx, span := tracer.Start(ctx, observability.SpanLLMRequest,
		trace.WithAttributes(
			attribute.String(observability.AttrLLMModel, provider.ModelName()),
		),
	)
	defer span.End()

	var resp *llms.Response
	var err error

	switch {
	case streaming:
		resp, err = a.consumeStream(ctx, provider, messages, toolDefs, structured, emit)
	case structured != nil:
		sp, ok := provider.(llms.StructuredProvider)
		if !ok || !sp.SupportsStructuredOutput() {
			err = fmt.Errorf("provider %q does not support structured output", provider.ModelName())
		} else {
			resp, err = sp.GenerateStructured(ctx, messages, toolDefs, structured)
		}
	default:
		resp, err = provider.Generate(ctx, messages, toolDefs)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int(observability.AttrLLMTokensOutput, resp.Tokens))
	span.SetStatus(codes.Ok, "success")
	return resp, nil
}

// consumeStream drives a streaming generation, forwarding chunks as events
// while assembling the full response.
func (a *Agent) consumeStream(
	ctx context.Context,
	provider llms.Provider,
	messages []llms.Message,
	toolDefs []llms.ToolDefinition,
	structured *llms.StructuredOutputConfig,
	emit *emitter,
) (*llms.Response, error) {
	var ch <-chan llms.StreamChunk
	var err error

	if structured != nil {
		sp, ok := provider.(llms.StructuredProvider)
		if !ok || !sp.SupportsStructuredOutput() {
			return nil, fmt.Errorf("provider %q does not support structured output", provider.ModelName())
		}
		ch, err = sp.GenerateStructuredStreaming(ctx, messages, toolDefs, structured)
	} else {
		ch, err = provider.GenerateStreaming(ctx, messages, toolDefs)
	}
	if err != nil {
		return nil, err
	}

	resp := &llms.Response{}
	var text, thinking []byte
	for chunk := range ch {
		switch chunk.Type {
		case llms.ChunkTypeText:
			text = append(text, chunk.Text...)
			emit.send(Event{Type: EventText, Text: chunk.Text})
		case llms.ChunkTypeThinking:
			thinking = append(thinking, chunk.Text...)
			emit.send(Event{Type: EventThinking, Text: chunk.Text})
		case llms.ChunkTypeToolCall:
			if chunk.ToolCall != nil {
				resp.ToolCalls = append(resp.ToolCalls, *chunk.ToolCall)
				emit.send(Event{Type: EventToolCall, ToolCall: chunk.ToolCall})
			}
		case llms.ChunkTypeDone:
			resp.Tokens += chunk.Tokens
		case llms.ChunkTypeError:
			return nil, chunk.Error
		}
	}

	resp.Text = string(text)
	resp.Thinking = string(thinking)
	return resp, nil
}

// executeTools runs a step's tool calls and emits result events.
func (a *Agent) executeTools(ctx context.Context, toolCalls []llms.ToolCall, emit *emitter) []tools.ToolResult {
	calls := make([]tools.Call, len(toolCalls))
	for i, tc := range toolCalls {
		calls[i] = tools.Call{ID: tc.ID, Name: tc.Name, Args: tc.Args}
	}

	results := a.tools.ExecuteCalls(ctx, calls, a.settings.ParallelTools)
	for i := range results {
		emit.send(Event{Type: EventToolResult, ToolResult: &results[i]})
	}
	return results
}

func (a *Agent) assemble(
	resp *llms.Response,
	messages []llms.Message,
	steps []Step,
	totalTokens int,
	contextObj interface{},
	o runOptions,
	startTime time.Time,
) *AgentResponse {
	return &AgentResponse{
		Output:       resp.Text,
		Thinking:     resp.Thinking,
		Conversation: messages,
		Steps:        steps,
		TotalTokens:  totalTokens,
		Context:      contextObj,
		Model:        o.provider.ModelName(),
		Duration:     time.Since(startTime),
	}
}

func (a *Agent) updatesAt(timing config.ContextUpdateTiming) bool {
	for _, t := range a.settings.ContextUpdates {
		if t == timing {
			return true
		}
	}
	return false
}

// toolResultContent picks what goes back to the model for a tool result.
func toolResultContent(result tools.ToolResult) string {
	if !result.Success {
		return fmt.Sprintf("Error: %s", result.Error)
	}
	return result.Content
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
