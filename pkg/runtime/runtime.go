// Package runtime assembles a ham application from configuration:
// LLM providers, per-agent tool registries, embedders, the collection
// database, and the configured agents.
package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hsaeed3/ham/pkg/agent"
	"github.com/hsaeed3/ham/pkg/config"
	"github.com/hsaeed3/ham/pkg/database"
	"github.com/hsaeed3/ham/pkg/embedders"
	"github.com/hsaeed3/ham/pkg/llms"
	"github.com/hsaeed3/ham/pkg/tools"
)

// Runtime holds every component built from a config document.
type Runtime struct {
	config    *config.Config
	providers *llms.Registry
	embedders *embedders.Registry
	database  *database.Database
	agents    map[string]*agent.Agent

	// toolRegistries tracks per-agent registries for cleanup.
	toolRegistries []*tools.Registry
}

// New builds a runtime from a validated config.
func New(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	rt := &Runtime{
		config: cfg,
		agents: make(map[string]*agent.Agent),
	}

	if err := rt.init(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) init(ctx context.Context) error {
	cfg := rt.config

	rt.providers = llms.NewRegistry()
	for name, llmCfg := range cfg.LLMs {
		if _, err := rt.providers.CreateFromConfig(name, llmCfg); err != nil {
			return fmt.Errorf("llm %q: %w", name, err)
		}
	}

	rt.embedders = embedders.NewRegistry()
	for name, embCfg := range cfg.Embedders {
		if _, err := rt.embedders.CreateFromConfig(name, embCfg); err != nil {
			return fmt.Errorf("embedder %q: %w", name, err)
		}
	}

	if cfg.Database != nil {
		db, err := database.NewFromConfig(cfg.Database, rt.embedders)
		if err != nil {
			return err
		}
		rt.database = db
	}

	for name, agentCfg := range cfg.Agents {
		ag, registry, err := rt.buildAgent(ctx, name, agentCfg)
		if err != nil {
			return fmt.Errorf("agent %q: %w", name, err)
		}
		rt.agents[name] = ag
		rt.toolRegistries = append(rt.toolRegistries, registry)
	}

	slog.Debug("Runtime initialized",
		"llms", len(cfg.LLMs),
		"agents", len(rt.agents),
		"embedders", len(cfg.Embedders))
	return nil
}

func (rt *Runtime) buildAgent(ctx context.Context, name string, agentCfg *config.AgentConfig) (*agent.Agent, *tools.Registry, error) {
	providerName := agentCfg.LLM
	if providerName == "" {
		providerName = "default"
	}
	provider, err := rt.providers.GetProvider(providerName)
	if err != nil {
		return nil, nil, err
	}

	// Each agent gets a registry holding only its configured tools.
	toolConfigs := make(map[string]*config.ToolConfig, len(agentCfg.Tools))
	for _, toolName := range agentCfg.Tools {
		toolCfg, ok := rt.config.Tools[toolName]
		if !ok {
			return nil, nil, fmt.Errorf("references unknown tool %q", toolName)
		}
		toolConfigs[toolName] = toolCfg
	}
	registry, err := tools.NewRegistryFromConfig(ctx, toolConfigs)
	if err != nil {
		return nil, nil, err
	}

	settings := agent.SettingsFromConfig(agentCfg)
	if settings.Name == "" {
		settings.Name = name
	}
	return agent.New(provider, registry, settings), registry, nil
}

// Agent returns a configured agent by name.
func (rt *Runtime) Agent(name string) (*agent.Agent, bool) {
	ag, ok := rt.agents[name]
	return ag, ok
}

// AgentNames returns the configured agent names.
func (rt *Runtime) AgentNames() []string {
	names := make([]string, 0, len(rt.agents))
	for name := range rt.agents {
		names = append(names, name)
	}
	return names
}

// DefaultAgent returns the single configured agent, the one named
// "default", or an error when the choice is ambiguous.
func (rt *Runtime) DefaultAgent() (*agent.Agent, error) {
	if len(rt.agents) == 0 {
		return nil, fmt.Errorf("no agents configured")
	}
	if ag, ok := rt.agents["default"]; ok {
		return ag, nil
	}
	if len(rt.agents) == 1 {
		for _, ag := range rt.agents {
			return ag, nil
		}
	}
	return nil, fmt.Errorf("multiple agents configured; pick one of %v", rt.AgentNames())
}

// Providers returns the LLM provider registry.
func (rt *Runtime) Providers() *llms.Registry {
	return rt.providers
}

// Embedders returns the embedder registry.
func (rt *Runtime) Embedders() *embedders.Registry {
	return rt.embedders
}

// Database returns the collection database, nil when not configured.
func (rt *Runtime) Database() *database.Database {
	return rt.database
}

// Config returns the runtime's configuration.
func (rt *Runtime) Config() *config.Config {
	return rt.config
}

// Close releases tool sources, embedders, and the database.
func (rt *Runtime) Close() error {
	var firstErr error

	for _, registry := range rt.toolRegistries {
		if err := registry.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if rt.embedders != nil {
		for _, emb := range rt.embedders.List() {
			if err := emb.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}

	if rt.database != nil {
		if err := rt.database.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
