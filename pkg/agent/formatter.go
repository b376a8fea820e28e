package agent

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/hsaeed3/ham/pkg/config"
	"github.com/hsaeed3/ham/pkg/llms"
)

// ============================================================================
// MESSAGE FORMATTING
// ============================================================================

// MessageFormatter builds the initial conversation from heterogeneous caller
// input. Instructions and the rendered context block are injected here, on
// the first step only; later steps see the raw accumulated conversation.
type MessageFormatter struct {
	settings Settings
}

// NewMessageFormatter creates a formatter for the given settings.
func NewMessageFormatter(settings Settings) *MessageFormatter {
	return &MessageFormatter{settings: settings}
}

// Format normalizes input into an ordered message list with a single leading
// system turn. Accepted inputs: string, llms.Message, []llms.Message, and
// *AgentResponse (continues its conversation); anything else is rendered
// with fmt and treated as a user turn.
func (f *MessageFormatter) Format(input interface{}, contextObj interface{}) ([]llms.Message, error) {
	turns, err := normalizeInput(input)
	if err != nil {
		return nil, err
	}

	system := f.systemPrompt(contextObj)

	// Fold any system messages from the input into the leading system turn.
	messages := make([]llms.Message, 0, len(turns)+1)
	var systemParts []string
	if system != "" {
		systemParts = append(systemParts, system)
	}
	for _, msg := range turns {
		if msg.Role == llms.RoleSystem {
			// A continued conversation already carries the built prompt;
			// don't stack another copy.
			if msg.Content != "" && msg.Content != system {
				systemParts = append(systemParts, msg.Content)
			}
			continue
		}
		messages = append(messages, msg)
	}

	if len(systemParts) > 0 {
		combined := llms.SystemMessage(strings.Join(systemParts, "\n\n"))
		messages = append([]llms.Message{combined}, messages...)
	}

	return messages, nil
}

// systemPrompt assembles instructions plus the optional context block.
func (f *MessageFormatter) systemPrompt(contextObj interface{}) string {
	var parts []string

	if f.settings.AddNameToInstructions && f.settings.Name != "" {
		parts = append(parts, fmt.Sprintf("You are %s.", f.settings.Name))
	}
	if f.settings.Instructions != "" {
		parts = append(parts, f.settings.Instructions)
	}
	if contextObj != nil {
		rendered := RenderContext(contextObj, f.settings.ContextFormat)
		if rendered != "" {
			parts = append(parts, "Context:\n"+rendered)
		}
	}

	return strings.Join(parts, "\n\n")
}

func normalizeInput(input interface{}) ([]llms.Message, error) {
	switch v := input.(type) {
	case nil:
		return nil, fmt.Errorf("input cannot be nil")
	case string:
		return []llms.Message{llms.UserMessage(v)}, nil
	case llms.Message:
		return []llms.Message{v}, nil
	case []llms.Message:
		out := make([]llms.Message, len(v))
		copy(out, v)
		return out, nil
	case *AgentResponse:
		if v == nil {
			return nil, fmt.Errorf("input cannot be a nil response")
		}
		out := make([]llms.Message, len(v.Conversation))
		copy(out, v.Conversation)
		return out, nil
	default:
		return []llms.Message{llms.UserMessage(fmt.Sprintf("%v", v))}, nil
	}
}

// RenderContext renders the context object in the configured format for
// injection into the system prompt.
func RenderContext(contextObj interface{}, format config.ContextFormat) string {
	switch format {
	case config.ContextFormatGo:
		return fmt.Sprintf("%+v", contextObj)
	case config.ContextFormatMarkdown:
		return renderContextMarkdown(contextObj)
	default:
		data, err := json.MarshalIndent(contextObj, "", "  ")
		if err != nil {
			return fmt.Sprintf("%+v", contextObj)
		}
		return string(data)
	}
}

func renderContextMarkdown(contextObj interface{}) string {
	fields, err := contextFields(contextObj)
	if err != nil {
		return fmt.Sprintf("%+v", contextObj)
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "- **%s**: %v\n", k, fields[k])
	}
	return strings.TrimRight(b.String(), "\n")
}

// contextFields flattens a context object into a field map. Maps are used
// as-is; structs go through a JSON round trip.
func contextFields(contextObj interface{}) (map[string]interface{}, error) {
	if m, ok := contextObj.(map[string]interface{}); ok {
		return m, nil
	}

	data, err := json.Marshal(contextObj)
	if err != nil {
		return nil, fmt.Errorf("context object is not serializable: %w", err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("context object is not a map or struct: %w", err)
	}
	return fields, nil
}
