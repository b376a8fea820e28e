package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/hsaeed3/ham/pkg/agent"
	"github.com/hsaeed3/ham/pkg/runtime"
)

// RunCmd runs a single prompt and prints the response.
type RunCmd struct {
	Prompt []string `arg:"" help:"Prompt text."`

	Agent   string `help:"Agent name (defaults to the single configured agent)."`
	Stream  *bool  `default:"true" negatable:"" help:"Stream the response as it arrives (use --no-stream to disable)."`
	JSON    bool   `help:"Print the full response as JSON (implies --no-stream)."`
	Summary bool   `help:"Print step and token usage after the response."`
}

func (c *RunCmd) Run(cli *CLI) error {
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

	prompt := strings.Join(c.Prompt, " ")
	if strings.TrimSpace(prompt) == "" {
		return fmt.Errorf("prompt cannot be empty")
	}

	streaming := c.Stream == nil || *c.Stream
	if c.JSON {
		streaming = false
	}

	var resp *agent.AgentResponse
	if streaming {
		stream := ag.RunStream(ctx, prompt)
		for event := range stream.Events() {
			switch event.Type {
			case agent.EventText:
				fmt.Print(event.Text)
			case agent.EventToolCall:
				if event.ToolCall != nil {
					fmt.Fprintf(os.Stderr, "[calling %s]\n", event.ToolCall.Name)
				}
			}
		}
		resp, err = stream.Wait()
		if err != nil {
			return err
		}
		fmt.Println()
	} else {
		resp, err = ag.Run(ctx, prompt)
		if err != nil {
			return err
		}
		if !c.JSON {
			fmt.Println(resp.Output)
		}
	}

	if c.JSON {
		out, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal response: %w", err)
		}
		fmt.Println(string(out))
	}

	if c.Summary {
		fmt.Fprintf(os.Stderr, "\nSteps: %d | Tokens: %d | Duration: %v\n",
			len(resp.Steps), resp.TotalTokens, resp.Duration)
	}
	return nil
}
