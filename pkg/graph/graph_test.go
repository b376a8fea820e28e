package graph

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func upperAction(ctx context.Context, state State, input string) (string, error) {
	return strings.ToUpper(input), nil
}

func TestRun_SequentialChain(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNode("upper", FuncAction(upperAction), "exclaim"))
	require.NoError(t, g.AddNode("exclaim", FuncAction(
		func(ctx context.Context, state State, input string) (string, error) {
			return input + "!", nil
		}), ""))

	resp, err := g.Run(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, "HELLO!", resp.Output)
	require.Len(t, resp.History, 2)
	assert.Equal(t, "upper", resp.History[0].Node)
	assert.Equal(t, "hello", resp.History[0].Input)
	assert.Equal(t, "HELLO", resp.History[0].Output)
	assert.Equal(t, "exclaim", resp.History[1].Node)
	assert.Equal(t, "HELLO", resp.History[1].Input)
	assert.NotEmpty(t, resp.ID)
}

func TestRun_ConditionalRouting(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNode("classify", func(ctx context.Context, state State, input string) (string, string, error) {
		if strings.Contains(input, "?") {
			return input, "answer", nil
		}
		return input, "echo", nil
	}, ""))
	require.NoError(t, g.AddNode("answer", FuncAction(
		func(ctx context.Context, state State, input string) (string, error) {
			return "42", nil
		}), ""))
	require.NoError(t, g.AddNode("echo", FuncAction(
		func(ctx context.Context, state State, input string) (string, error) {
			return input, nil
		}), ""))
	require.NoError(t, g.SetStart("classify"))

	resp, err := g.Run(context.Background(), "what is the answer?")
	require.NoError(t, err)
	assert.Equal(t, "42", resp.Output)
	assert.Equal(t, "answer", resp.History[1].Node)

	resp, err = g.Run(context.Background(), "just a statement")
	require.NoError(t, err)
	assert.Equal(t, "just a statement", resp.Output)
	assert.Equal(t, "echo", resp.History[1].Node)
}

func TestRun_SharedState(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNode("store", FuncAction(
		func(ctx context.Context, state State, input string) (string, error) {
			state["seen"] = input
			return input, nil
		}), "read"))
	require.NoError(t, g.AddNode("read", FuncAction(
		func(ctx context.Context, state State, input string) (string, error) {
			return fmt.Sprintf("stored: %v", state["seen"]), nil
		}), ""))

	resp, err := g.Run(context.Background(), "payload")
	require.NoError(t, err)
	assert.Equal(t, "stored: payload", resp.Output)
	assert.Equal(t, "payload", resp.State["seen"])
}

func TestRun_CycleGuard(t *testing.T) {
	g := New(WithMaxVisits(5))
	require.NoError(t, g.AddNode("a", FuncAction(upperAction), "b"))
	require.NoError(t, g.AddNode("b", FuncAction(upperAction), "a"))

	_, err := g.Run(context.Background(), "loop")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "routing cycle")
}

func TestRun_NodeError(t *testing.T) {
	g := New()
	require.NoError(t, g.AddNode("boom", FuncAction(
		func(ctx context.Context, state State, input string) (string, error) {
			return "", fmt.Errorf("kaput")
		}), ""))

	_, err := g.Run(context.Background(), "go")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `node "boom" failed`)
}

func TestValidate(t *testing.T) {
	g := New()
	_, err := g.Run(context.Background(), "go")
	assert.Error(t, err)

	require.NoError(t, g.AddNode("a", FuncAction(upperAction), "missing"))
	assert.Error(t, g.Validate())

	assert.Error(t, g.SetStart("missing"))
	assert.Error(t, g.AddNode("a", FuncAction(upperAction), ""))
}

func TestRun_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := New()
	require.NoError(t, g.AddNode("a", FuncAction(upperAction), ""))

	_, err := g.Run(ctx, "go")
	assert.ErrorIs(t, err, context.Canceled)
}
