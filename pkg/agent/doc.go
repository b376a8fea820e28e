// Package agent implements the multi-step tool-calling loop.
//
// An Agent pairs a language model provider with a set of tools and
// instructions. Run executes request/response steps until the model stops
// asking for tools or the step budget runs out. Between steps the agent can
// optionally ask the model to update a caller-supplied context object, and
// RunStream exposes the same loop as a channel of typed events.
//
// Key components:
//   - Agent: the step loop with per-run overrides
//   - MessageFormatter: normalizes caller input into conversation turns
//   - AgentResponse: the assembled result (output, steps, tokens, context)
//   - AgentStream / HookManager: streaming events and named callbacks
//
// Example usage:
//
//	ag := agent.New(provider, registry, agent.Settings{
//		Instructions: "You are a helpful assistant.",
//	})
//	resp, err := ag.Run(ctx, "What is 2+2?")
package agent
