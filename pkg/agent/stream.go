package agent

import (
	"context"
	"sync"

	"github.com/hsaeed3/ham/pkg/llms"
	"github.com/hsaeed3/ham/pkg/tools"
)

// ============================================================================
// STREAMING AND HOOKS
// ============================================================================

// Event kinds emitted during a run.
const (
	EventStepStart     = "step_start"
	EventText          = "text"
	EventThinking      = "thinking"
	EventToolCall      = "tool_call"
	EventToolResult    = "tool_result"
	EventStepEnd       = "step_end"
	EventContextUpdate = "context_update"
	EventError         = "error"
	EventDone          = "done"
)

// Event is one unit of run progress.
type Event struct {
	Type       string
	Step       int
	Text       string
	ToolCall   *llms.ToolCall
	ToolResult *tools.ToolResult
	Context    interface{}
	Err        error
	Response   *AgentResponse
}

// Hook is a named callback invoked for matching events.
type Hook func(Event)

// HookManager dispatches events to registered hooks.
type HookManager struct {
	mu    sync.RWMutex
	hooks map[string][]Hook
}

// NewHookManager creates an empty hook manager.
func NewHookManager() *HookManager {
	return &HookManager{hooks: make(map[string][]Hook)}
}

// On registers a hook for an event kind.
func (h *HookManager) On(eventType string, hook Hook) *HookManager {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks[eventType] = append(h.hooks[eventType], hook)
	return h
}

func (h *HookManager) fire(event Event) {
	if h == nil {
		return
	}
	h.mu.RLock()
	hooks := h.hooks[event.Type]
	h.mu.RUnlock()
	for _, hook := range hooks {
		hook(event)
	}
}

// emitter fans events out to the hook managers and, when streaming, the
// stream channel.
type emitter struct {
	managers  []*HookManager
	ch        chan Event
	streaming bool
}

func (a *Agent) newEmitter(o runOptions, ch chan Event) *emitter {
	managers := []*HookManager{a.hooks}
	if o.hooks != nil {
		managers = append(managers, o.hooks)
	}
	return &emitter{
		managers:  managers,
		ch:        ch,
		streaming: ch != nil,
	}
}

func (e *emitter) send(event Event) {
	for _, m := range e.managers {
		m.fire(event)
	}
	if e.ch != nil {
		e.ch <- event
	}
}

// AgentStream is a running agent exposed as a channel of events. Consume
// Events until it closes, then Wait for the assembled response.
type AgentStream struct {
	events chan Event
	done   chan struct{}

	mu   sync.Mutex
	resp *AgentResponse
	err  error
}

// Events returns the event channel. It closes after the terminal done or
// error event.
func (s *AgentStream) Events() <-chan Event {
	return s.events
}

// Wait blocks until the run finishes and returns the assembled response.
// Events left unconsumed are drained.
func (s *AgentStream) Wait() (*AgentResponse, error) {
	for range s.events {
	}
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resp, s.err
}

// RunStream executes the step loop in the background and returns a stream
// of events. The stream resolves to the same response Run would produce.
func (a *Agent) RunStream(ctx context.Context, input interface{}, opts ...RunOption) *AgentStream {
	o := a.buildOptions(opts)

	stream := &AgentStream{
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(stream.done)
		defer close(stream.events)

		emit := a.newEmitter(o, stream.events)
		resp, err := a.run(ctx, input, o, emit)

		stream.mu.Lock()
		stream.resp = resp
		stream.err = err
		stream.mu.Unlock()

		if err != nil {
			emit.send(Event{Type: EventError, Err: err})
			return
		}
		emit.send(Event{Type: EventDone, Response: resp})
	}()

	return stream
}
