package agent

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/hsaeed3/ham/pkg/llms"
)

// ============================================================================
// TOKEN COUNTING
// ============================================================================

// TokenCounter counts tokens with the model's own encoding so the history
// window reflects what the provider will actually bill.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
	model    string
	mu       sync.RWMutex
}

var (
	// Encodings are expensive to build, cache per model.
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	cacheMu       sync.RWMutex
)

// NewTokenCounter creates a counter for the given model. Models without a
// registered encoding (Anthropic, Gemini) fall back to cl100k_base, which
// is close enough for windowing.
func NewTokenCounter(model string) (*TokenCounter, error) {
	cacheMu.RLock()
	cached, exists := encodingCache[model]
	cacheMu.RUnlock()

	if exists {
		return &TokenCounter{encoding: cached, model: model}, nil
	}

	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("failed to get encoding: %w", err)
		}
	}

	cacheMu.Lock()
	encodingCache[model] = encoding
	cacheMu.Unlock()

	return &TokenCounter{encoding: encoding, model: model}, nil
}

// Count returns the token count for a text fragment.
func (tc *TokenCounter) Count(text string) int {
	tc.mu.RLock()
	defer tc.mu.RUnlock()

	return len(tc.encoding.Encode(text, nil, nil))
}

// CountMessages counts tokens across a message list, including the per-turn
// framing overhead of the chat format.
func (tc *TokenCounter) CountMessages(messages []llms.Message) int {
	tc.mu.RLock()
	defer tc.mu.RUnlock()

	// <|start|>role ... <|end|> framing per message.
	const tokensPerMessage = 3

	total := 0
	for _, msg := range messages {
		total += tokensPerMessage
		total += len(tc.encoding.Encode(string(msg.Role), nil, nil))
		total += len(tc.encoding.Encode(msg.Content, nil, nil))
	}

	// Reply priming.
	total += 3

	return total
}

// FitWithinLimit returns the longest suffix of messages that fits within
// the token budget, preserving order. A leading system message is always
// kept and charged against the budget first.
func (tc *TokenCounter) FitWithinLimit(messages []llms.Message, maxTokens int) []llms.Message {
	if len(messages) == 0 || maxTokens <= 0 {
		return messages
	}

	used := 3 // reply priming
	var system *llms.Message
	rest := messages
	if messages[0].Role == llms.RoleSystem {
		system = &messages[0]
		rest = messages[1:]
		used += tc.CountMessages([]llms.Message{*system}) - 3
	}

	fitted := make([]llms.Message, 0, len(rest))
	for i := len(rest) - 1; i >= 0; i-- {
		msgTokens := tc.CountMessages([]llms.Message{rest[i]}) - 3
		if used+msgTokens > maxTokens {
			break
		}
		fitted = append([]llms.Message{rest[i]}, fitted...)
		used += msgTokens
	}

	if system != nil {
		fitted = append([]llms.Message{*system}, fitted...)
	}
	return fitted
}

// Model returns the model this counter was built for.
func (tc *TokenCounter) Model() string {
	return tc.model
}
