package prompted

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hsaeed3/ham/pkg/llms"
)

// Select asks the model to choose one of the given options via an
// enum-constrained structured call. The returned value is always one of
// the options.
func Select(ctx context.Context, provider llms.Provider, instructions string, input string, options []string) (string, error) {
	if len(options) == 0 {
		return "", fmt.Errorf("selection needs at least one option")
	}

	sp, ok := provider.(llms.StructuredProvider)
	if !ok || !sp.SupportsStructuredOutput() {
		return "", fmt.Errorf("selection needs a provider with structured output")
	}

	if instructions == "" {
		instructions = "Choose the option that best matches the input."
	}

	messages := []llms.Message{
		llms.SystemMessage(fmt.Sprintf("%s\n\nOptions:\n- %s",
			instructions, strings.Join(options, "\n- "))),
		llms.UserMessage(input),
	}

	resp, err := sp.GenerateStructured(ctx, messages, nil, &llms.StructuredOutputConfig{
		Format: "enum",
		Enum:   options,
	})
	if err != nil {
		return "", fmt.Errorf("selection failed: %w", err)
	}

	choice := parseChoice(resp.Text)
	for _, option := range options {
		if choice == option {
			return option, nil
		}
	}
	return "", fmt.Errorf("model chose %q, not one of the options", choice)
}

// parseChoice unwraps a provider's rendering of the chosen value: a bare
// string, a quoted JSON string, or a {"value": ...} envelope.
func parseChoice(text string) string {
	text = strings.TrimSpace(text)

	var envelope struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal([]byte(text), &envelope); err == nil && envelope.Value != "" {
		return envelope.Value
	}

	var quoted string
	if err := json.Unmarshal([]byte(text), &quoted); err == nil {
		return quoted
	}

	return strings.Trim(text, `"`)
}
