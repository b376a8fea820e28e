package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hsaeed3/ham/pkg/config"
	"github.com/hsaeed3/ham/pkg/llms"
	"github.com/hsaeed3/ham/pkg/observability"
)

// ============================================================================
// CONTEXT UPDATE SIDE-LOOP
// ============================================================================

const (
	defaultConfirmInstructions = "You maintain a context object for an ongoing conversation. " +
		"Decide whether the latest conversation turns contain information that should " +
		"change the context. Answer with update=true only when a change is warranted."

	defaultSelectionInstructions = "You maintain a context object for an ongoing conversation. " +
		"Select the context fields that should be updated based on the latest turns. " +
		"Select only fields that genuinely need to change."

	defaultUpdateInstructions = "You maintain a context object for an ongoing conversation. " +
		"Produce updated values reflecting the latest turns. Keep values you have no " +
		"reason to change out of the updates."
)

// updateContext runs the optional context side-loop: an optional
// confirmation gate, then either a whole-context update or per-field
// selective updates. Failure is non-fatal; the original context is kept and
// the run proceeds. Returns the (possibly updated) context and the tokens
// spent on the side-loop's model calls.
func (a *Agent) updateContext(
	ctx context.Context,
	provider llms.Provider,
	contextObj interface{},
	conversation []llms.Message,
	emit *emitter,
) (interface{}, int) {
	tracer := observability.GetTracer("ham.agent")
	ctx, span := tracer.Start(ctx, observability.SpanContextUpdate)
	defer span.End()

	sp, ok := provider.(llms.StructuredProvider)
	if !ok || !sp.SupportsStructuredOutput() {
		a.logger.Warn("context updates need structured output, skipping",
			"model", provider.ModelName())
		span.SetStatus(codes.Error, "structured output unsupported")
		return contextObj, 0
	}

	tokens := 0

	if a.settings.ContextConfirm {
		confirmed, t, err := a.confirmUpdate(ctx, sp, contextObj, conversation)
		tokens += t
		if err != nil {
			a.logger.Warn("context confirmation failed, keeping context", "error", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "confirmation failed")
			return contextObj, tokens
		}
		if !confirmed {
			span.SetStatus(codes.Ok, "update declined")
			return contextObj, tokens
		}
	}

	var updated interface{}
	var t int
	var err error
	switch a.settings.ContextStrategy {
	case config.ContextStrategySelective:
		updated, t, err = a.updateSelective(ctx, sp, contextObj, conversation)
	default:
		updated, t, err = a.updateAll(ctx, sp, contextObj, conversation)
	}
	tokens += t

	if err != nil {
		a.logger.Warn("context update failed, keeping context", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return contextObj, tokens
	}

	span.SetAttributes(attribute.Int(observability.AttrLLMTokensOutput, tokens))
	span.SetStatus(codes.Ok, "updated")
	emit.send(Event{Type: EventContextUpdate, Context: updated})
	return updated, tokens
}

// confirmUpdate asks the model a structured yes/no before touching the
// context.
func (a *Agent) confirmUpdate(
	ctx context.Context,
	provider llms.StructuredProvider,
	contextObj interface{},
	conversation []llms.Message,
) (bool, int, error) {
	instructions := a.settings.ContextConfirmInstructions
	if instructions == "" {
		instructions = defaultConfirmInstructions
	}

	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"update": map[string]interface{}{"type": "boolean"},
		},
		"required":             []string{"update"},
		"additionalProperties": false,
	}

	result, tokens, err := a.structuredCall(ctx, provider, instructions, contextObj, conversation, schema)
	if err != nil {
		return false, tokens, err
	}

	confirmed, _ := result["update"].(bool)
	return confirmed, tokens, nil
}

// updateAll requests a single updates map covering the whole context.
func (a *Agent) updateAll(
	ctx context.Context,
	provider llms.StructuredProvider,
	contextObj interface{},
	conversation []llms.Message,
) (interface{}, int, error) {
	instructions := a.settings.ContextUpdateInstructions
	if instructions == "" {
		instructions = defaultUpdateInstructions
	}

	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"updates": map[string]interface{}{"type": "object"},
		},
		"required": []string{"updates"},
	}

	result, tokens, err := a.structuredCall(ctx, provider, instructions, contextObj, conversation, schema)
	if err != nil {
		return nil, tokens, err
	}

	updates, ok := result["updates"].(map[string]interface{})
	if !ok {
		return nil, tokens, fmt.Errorf("model returned no updates object")
	}

	updated, err := applyUpdates(contextObj, updates)
	return updated, tokens, err
}

// updateSelective first asks which fields should change, then requests a
// new value for each selected field.
func (a *Agent) updateSelective(
	ctx context.Context,
	provider llms.StructuredProvider,
	contextObj interface{},
	conversation []llms.Message,
) (interface{}, int, error) {
	fields, err := contextFields(contextObj)
	if err != nil {
		return nil, 0, err
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	selectionInstructions := a.settings.ContextSelectionInstructions
	if selectionInstructions == "" {
		selectionInstructions = defaultSelectionInstructions
	}

	selectionSchema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"fields": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "string", "enum": names},
			},
		},
		"required": []string{"fields"},
	}

	result, tokens, err := a.structuredCall(ctx, provider, selectionInstructions, contextObj, conversation, selectionSchema)
	if err != nil {
		return nil, tokens, err
	}

	selectedRaw, _ := result["fields"].([]interface{})
	if len(selectedRaw) == 0 {
		// Nothing to change.
		return contextObj, tokens, nil
	}

	updateInstructions := a.settings.ContextUpdateInstructions
	if updateInstructions == "" {
		updateInstructions = defaultUpdateInstructions
	}

	updates := make(map[string]interface{})
	for _, raw := range selectedRaw {
		field, ok := raw.(string)
		if !ok {
			continue
		}
		if _, exists := fields[field]; !exists {
			continue
		}

		fieldSchema := map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				field: map[string]interface{}{},
			},
			"required": []string{field},
		}
		prompt := fmt.Sprintf("%s\n\nUpdate only the %q field.", updateInstructions, field)

		fieldResult, t, err := a.structuredCall(ctx, provider, prompt, contextObj, conversation, fieldSchema)
		tokens += t
		if err != nil {
			return nil, tokens, fmt.Errorf("field %q update failed: %w", field, err)
		}
		if value, ok := fieldResult[field]; ok {
			updates[field] = value
		}
	}

	updated, err := applyUpdates(contextObj, updates)
	return updated, tokens, err
}

// structuredCall makes one schema-constrained model call with retries. The
// retry budget is ContextMaxRetries; each attempt's tokens count either way.
func (a *Agent) structuredCall(
	ctx context.Context,
	provider llms.StructuredProvider,
	instructions string,
	contextObj interface{},
	conversation []llms.Message,
	schema map[string]interface{},
) (map[string]interface{}, int, error) {
	messages := []llms.Message{
		llms.SystemMessage(instructions),
		llms.UserMessage(fmt.Sprintf("Current context:\n%s\n\nRecent conversation:\n%s",
			RenderContext(contextObj, a.settings.ContextFormat),
			renderConversationTail(conversation, 6))),
	}

	structConfig := &llms.StructuredOutputConfig{Format: "json", Schema: schema}

	tokens := 0
	var lastErr error
	for attempt := 0; attempt < a.settings.ContextMaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, tokens, err
		}

		resp, err := provider.GenerateStructured(ctx, messages, nil, structConfig)
		if err != nil {
			lastErr = err
			continue
		}
		tokens += resp.Tokens

		var result map[string]interface{}
		if err := json.Unmarshal([]byte(resp.Text), &result); err != nil {
			lastErr = fmt.Errorf("model returned invalid JSON: %w", err)
			continue
		}
		return result, tokens, nil
	}

	return nil, tokens, fmt.Errorf("context call failed after %d attempts: %w",
		a.settings.ContextMaxRetries, lastErr)
}

// applyUpdates merges an updates map into the context object. Maps are
// shallow-merged into a copy; struct pointers go through a JSON round trip
// so only the updated fields change.
func applyUpdates(contextObj interface{}, updates map[string]interface{}) (interface{}, error) {
	if len(updates) == 0 {
		return contextObj, nil
	}

	if m, ok := contextObj.(map[string]interface{}); ok {
		merged := make(map[string]interface{}, len(m)+len(updates))
		for k, v := range m {
			merged[k] = v
		}
		for k, v := range updates {
			merged[k] = v
		}
		return merged, nil
	}

	data, err := json.Marshal(updates)
	if err != nil {
		return nil, fmt.Errorf("updates are not serializable: %w", err)
	}
	if err := json.Unmarshal(data, contextObj); err != nil {
		return nil, fmt.Errorf("updates do not fit the context type: %w", err)
	}
	return contextObj, nil
}

// renderConversationTail renders the last n turns as plain text for the
// context sub-prompts.
func renderConversationTail(conversation []llms.Message, n int) string {
	start := len(conversation) - n
	if start < 0 {
		start = 0
	}

	var b strings.Builder
	for _, msg := range conversation[start:] {
		content := msg.Content
		if content == "" && len(msg.ToolCalls) > 0 {
			names := make([]string, len(msg.ToolCalls))
			for i, tc := range msg.ToolCalls {
				names[i] = tc.Name
			}
			content = "(called tools: " + strings.Join(names, ", ") + ")"
		}
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, content)
	}
	return strings.TrimRight(b.String(), "\n")
}
