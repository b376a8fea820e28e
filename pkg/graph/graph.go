// Package graph chains agent actions into sequential or conditional
// pipelines. Named nodes run an action against a shared state; each node
// routes to a fixed next node or lets its action pick one at runtime, and
// terminal nodes end the run with a GraphResponse carrying per-node
// history.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hsaeed3/ham/pkg/agent"
)

// ============================================================================
// GRAPH TYPES
// ============================================================================

// State is the shared mutable state all nodes see.
type State map[string]interface{}

// Action runs one node. It receives the shared state and the current
// input (the previous node's output, or the caller input for the start
// node) and returns its output plus an optional next-node override. An
// empty next falls back to the node's configured Next.
type Action func(ctx context.Context, state State, input string) (output string, next string, err error)

// Node is one named step in the graph.
type Node struct {
	Name   string
	Action Action

	// Next names the default successor. Empty means terminal unless the
	// action routes somewhere.
	Next string
}

// NodeResult records one node execution.
type NodeResult struct {
	Node     string        `json:"node"`
	Input    string        `json:"input"`
	Output   string        `json:"output"`
	Tokens   int           `json:"tokens,omitempty"`
	Duration time.Duration `json:"duration"`
}

// GraphResponse is the result of a graph run.
type GraphResponse struct {
	ID          string        `json:"id"`
	Output      string        `json:"output"`
	State       State         `json:"state"`
	History     []NodeResult  `json:"history"`
	TotalTokens int           `json:"total_tokens"`
	Duration    time.Duration `json:"duration"`
}

// ============================================================================
// GRAPH CONSTRUCTION
// ============================================================================

// Graph is a set of named nodes with routing.
type Graph struct {
	nodes     map[string]*Node
	start     string
	maxVisits int
	logger    *slog.Logger
}

// Option configures a graph.
type Option func(*Graph)

// WithMaxVisits caps total node executions per run. The default is 25.
func WithMaxVisits(n int) Option {
	return func(g *Graph) { g.maxVisits = n }
}

// New creates an empty graph.
func New(opts ...Option) *Graph {
	g := &Graph{
		nodes:     make(map[string]*Node),
		maxVisits: 25,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AddNode registers a node. The first node added becomes the start node
// unless SetStart says otherwise.
func (g *Graph) AddNode(name string, action Action, next string) error {
	if name == "" {
		return fmt.Errorf("node name is required")
	}
	if action == nil {
		return fmt.Errorf("node %q needs an action", name)
	}
	if _, exists := g.nodes[name]; exists {
		return fmt.Errorf("node %q already exists", name)
	}

	g.nodes[name] = &Node{Name: name, Action: action, Next: next}
	if g.start == "" {
		g.start = name
	}
	return nil
}

// SetStart picks the entry node.
func (g *Graph) SetStart(name string) error {
	if _, exists := g.nodes[name]; !exists {
		return fmt.Errorf("unknown start node %q", name)
	}
	g.start = name
	return nil
}

// Validate checks that every configured route points at a real node.
func (g *Graph) Validate() error {
	if len(g.nodes) == 0 {
		return fmt.Errorf("graph has no nodes")
	}
	if g.start == "" {
		return fmt.Errorf("graph has no start node")
	}
	for _, node := range g.nodes {
		if node.Next == "" {
			continue
		}
		if _, exists := g.nodes[node.Next]; !exists {
			return fmt.Errorf("node %q routes to unknown node %q", node.Name, node.Next)
		}
	}
	return nil
}

// ============================================================================
// EXECUTION
// ============================================================================

// Run walks the graph from the start node until a terminal node or the
// visit cap, threading each node's output into the next node's input.
func (g *Graph) Run(ctx context.Context, input string) (*GraphResponse, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	startTime := time.Now()
	response := &GraphResponse{
		ID:    uuid.New().String(),
		State: make(State),
	}

	current := g.start
	visits := 0
	for current != "" {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if visits >= g.maxVisits {
			return nil, fmt.Errorf("graph exceeded %d node executions, likely a routing cycle", g.maxVisits)
		}
		visits++

		node, exists := g.nodes[current]
		if !exists {
			return nil, fmt.Errorf("routed to unknown node %q", current)
		}

		g.logger.Debug("executing graph node", "node", node.Name, "visit", visits)

		nodeStart := time.Now()
		output, next, err := node.Action(ctx, response.State, input)
		if err != nil {
			return nil, fmt.Errorf("node %q failed: %w", node.Name, err)
		}

		result := NodeResult{
			Node:     node.Name,
			Input:    input,
			Output:   output,
			Duration: time.Since(nodeStart),
		}
		if tokens, ok := response.State[lastTokensKey].(int); ok {
			result.Tokens = tokens
			response.TotalTokens += tokens
			delete(response.State, lastTokensKey)
		}
		response.History = append(response.History, result)

		input = output
		if next == "" {
			next = node.Next
		}
		current = next
	}

	if len(response.History) > 0 {
		response.Output = response.History[len(response.History)-1].Output
	}
	response.Duration = time.Since(startTime)
	return response, nil
}

// ============================================================================
// ACTION ADAPTERS
// ============================================================================

// AgentAction wraps an agent so a node runs one full loop per visit. The
// node's token usage lands in the result history.
func AgentAction(ag *agent.Agent, opts ...agent.RunOption) Action {
	return func(ctx context.Context, state State, input string) (string, string, error) {
		resp, err := ag.Run(ctx, input, opts...)
		if err != nil {
			return "", "", err
		}
		state[lastTokensKey] = resp.TotalTokens
		return resp.Output, "", nil
	}
}

// FuncAction wraps a plain function as a node action with fixed routing.
func FuncAction(fn func(ctx context.Context, state State, input string) (string, error)) Action {
	return func(ctx context.Context, state State, input string) (string, string, error) {
		output, err := fn(ctx, state, input)
		return output, "", err
	}
}

// lastTokensKey is how agent actions report token usage back to the run.
const lastTokensKey = "_last_tokens"
