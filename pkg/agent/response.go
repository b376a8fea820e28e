package agent

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hsaeed3/ham/pkg/llms"
	"github.com/hsaeed3/ham/pkg/tools"
)

// ============================================================================
// RESPONSE ASSEMBLY
// ============================================================================

// Step records one tool-calling round trip: the model's response and the
// tool results that were fed back into the conversation.
type Step struct {
	Index       int                `json:"index"`
	Text        string             `json:"text,omitempty"`
	Thinking    string             `json:"thinking,omitempty"`
	ToolCalls   []llms.ToolCall    `json:"tool_calls,omitempty"`
	ToolResults []tools.ToolResult `json:"tool_results,omitempty"`
	Tokens      int                `json:"tokens"`
	Duration    time.Duration      `json:"duration"`
}

// AgentResponse is the final result of a run.
type AgentResponse struct {
	// Output is the model's final text. When structured output was
	// requested it holds the raw JSON document; use Decode to unmarshal it.
	Output string `json:"output"`

	// Thinking holds reasoning text from the final response, when the
	// provider surfaces it.
	Thinking string `json:"thinking,omitempty"`

	// Conversation is the full accumulated message history, including tool
	// rounds. Passing an AgentResponse back into Run continues from here.
	Conversation []llms.Message `json:"conversation"`

	// Steps are the recorded tool-calling rounds. A run that finished on
	// its first response has none.
	Steps []Step `json:"steps,omitempty"`

	// TotalTokens sums token usage across every model call in the run,
	// context-update calls included.
	TotalTokens int `json:"total_tokens"`

	// Context is the context object after any updates, nil when the run
	// had none.
	Context interface{} `json:"context,omitempty"`

	Model    string        `json:"model"`
	Duration time.Duration `json:"duration"`
}

// Decode unmarshals structured output into v.
func (r *AgentResponse) Decode(v interface{}) error {
	if r.Output == "" {
		return fmt.Errorf("response has no output to decode")
	}
	if err := json.Unmarshal([]byte(r.Output), v); err != nil {
		return fmt.Errorf("failed to decode structured output: %w", err)
	}
	return nil
}

// String returns the output text.
func (r *AgentResponse) String() string {
	return r.Output
}

// Summary renders the output followed by step and token accounting.
func (r *AgentResponse) Summary() string {
	var b strings.Builder
	b.WriteString(r.Output)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Steps: %d | Tokens: %d | Duration: %v\n",
		len(r.Steps), r.TotalTokens, r.Duration.Round(time.Millisecond))
	for _, step := range r.Steps {
		names := make([]string, 0, len(step.ToolCalls))
		for _, call := range step.ToolCalls {
			names = append(names, call.Name)
		}
		fmt.Fprintf(&b, "  step %d: tools [%s], %d tokens\n",
			step.Index+1, strings.Join(names, ", "), step.Tokens)
	}
	return b.String()
}
