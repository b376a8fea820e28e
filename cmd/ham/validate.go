package main

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hsaeed3/ham/pkg/config"
)

// ValidateCmd validates a configuration file.
type ValidateCmd struct {
	Config string `arg:"" name:"config" help:"Configuration file path." type:"path"`

	PrintConfig bool `short:"p" name:"print-config" help:"Print the expanded configuration (defaults applied, env vars resolved)."`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	ctx := context.Background()

	_ = config.LoadEnvFiles()

	cfg, loader, err := config.LoadFile(ctx, c.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ %s: %v\n", c.Config, err)
		return fmt.Errorf("configuration is invalid")
	}
	if loader != nil {
		defer loader.Close()
	}

	if c.PrintConfig {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to render config: %w", err)
		}
		fmt.Print(string(out))
		return nil
	}

	fmt.Printf("✓ %s is valid\n", c.Config)
	fmt.Printf("  llms: %d, agents: %d, tools: %d, embedders: %d\n",
		len(cfg.LLMs), len(cfg.Agents), len(cfg.Tools), len(cfg.Embedders))
	if cfg.Database != nil {
		fmt.Printf("  collections: %d\n", len(cfg.Database.Collections))
	}
	return nil
}
