package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hsaeed3/ham/pkg/agent"
	"github.com/hsaeed3/ham/pkg/config"
	"github.com/hsaeed3/ham/pkg/llms"
	"github.com/hsaeed3/ham/pkg/runtime"
)

// ============================================================================
// CHAT - INTERACTIVE SESSION
// ============================================================================

// ChatCmd starts an interactive chat session with an agent.
type ChatCmd struct {
	Agent  string `help:"Agent name (defaults to the single configured agent)."`
	Stream *bool  `default:"true" negatable:"" help:"Stream responses as they arrive (use --no-stream to disable)."`
}

func (c *ChatCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, closeCfg, err := loadConfig(ctx, cli)
	if err != nil {
		return err
	}
	defer closeCfg()
	ensureDefaultAgent(cfg)

	rt, err := runtime.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	ag, err := selectAgent(rt, c.Agent)
	if err != nil {
		return err
	}

	reader := bufio.NewReader(os.Stdin)

	fmt.Printf("\nChatting with %s. Commands:\n", ag.Name())
	fmt.Println("  /quit or /exit - end the session")
	fmt.Println("  /clear - clear conversation history")
	fmt.Println()

	// The previous response carries the conversation into the next turn.
	var last *agent.AgentResponse

	for {
		fmt.Print("You: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			switch input {
			case "/quit", "/exit":
				fmt.Println("\nChat session ended")
				return nil
			case "/clear":
				last = nil
				fmt.Println("Conversation history cleared")
				continue
			default:
				fmt.Printf("Unknown command: %s\n", input)
				continue
			}
		}

		resp, err := c.turn(ctx, ag, input, last)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Printf("Error: %v\n\n", err)
			continue
		}
		last = resp
	}
}

// turn runs one exchange, continuing from the previous response when
// present.
func (c *ChatCmd) turn(ctx context.Context, ag *agent.Agent, input string, last *agent.AgentResponse) (*agent.AgentResponse, error) {
	var runInput interface{} = input
	if last != nil {
		conversation := append([]llms.Message{}, last.Conversation...)
		conversation = append(conversation, llms.UserMessage(input))
		runInput = conversation
	}

	fmt.Printf("\n%s: ", ag.Name())

	if c.Stream != nil && !*c.Stream {
		resp, err := ag.Run(ctx, runInput)
		if err != nil {
			return nil, err
		}
		fmt.Printf("%s\n\n", resp.Output)
		return resp, nil
	}

	stream := ag.RunStream(ctx, runInput)
	for event := range stream.Events() {
		switch event.Type {
		case agent.EventText:
			fmt.Print(event.Text)
		case agent.EventToolCall:
			if event.ToolCall != nil {
				fmt.Printf("\n[calling %s]\n", event.ToolCall.Name)
			}
		}
	}
	resp, err := stream.Wait()
	if err != nil {
		return nil, err
	}
	fmt.Print("\n\n")
	return resp, nil
}

// selectAgent resolves the agent flag against the runtime.
func selectAgent(rt *runtime.Runtime, name string) (*agent.Agent, error) {
	if name == "" {
		return rt.DefaultAgent()
	}
	ag, ok := rt.Agent(name)
	if !ok {
		return nil, fmt.Errorf("agent %q not configured (available: %v)", name, rt.AgentNames())
	}
	return ag, nil
}

// ensureDefaultAgent adds a bare agent when the config declares none, so
// zero-config runs still work.
func ensureDefaultAgent(cfg *config.Config) {
	if len(cfg.Agents) > 0 {
		return
	}
	cfg.Agents = map[string]*config.AgentConfig{"default": {}}
	cfg.SetDefaults()
}
