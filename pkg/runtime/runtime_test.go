package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsaeed3/ham/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		LLMs: map[string]*config.LLMConfig{
			"default": {Provider: config.LLMProviderOpenAI, Model: "gpt-4o-mini", APIKey: "test-key"},
		},
		Agents: map[string]*config.AgentConfig{
			"assistant": {Instructions: "Help out."},
		},
		Database: &config.DatabaseConfig{
			Collections: map[string]*config.CollectionConfig{
				"notes": {Kind: config.CollectionKindBasic},
			},
		},
	}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNew_BuildsAgentsAndDatabase(t *testing.T) {
	rt, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer rt.Close()

	ag, ok := rt.Agent("assistant")
	require.True(t, ok)
	assert.Equal(t, "assistant", ag.Name())

	require.NotNil(t, rt.Database())
	_, ok = rt.Database().Collection("notes")
	assert.True(t, ok)
}

func TestNew_NilConfig(t *testing.T) {
	_, err := New(context.Background(), nil)
	assert.Error(t, err)
}

func TestNew_UnknownAgentLLM(t *testing.T) {
	cfg := testConfig(t)
	cfg.Agents["assistant"].LLM = "missing"

	_, err := New(context.Background(), cfg)
	assert.ErrorContains(t, err, "missing")
}

func TestDefaultAgent_SingleAgent(t *testing.T) {
	rt, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer rt.Close()

	ag, err := rt.DefaultAgent()
	require.NoError(t, err)
	assert.Equal(t, "assistant", ag.Name())
}

func TestDefaultAgent_AmbiguousWithoutDefaultName(t *testing.T) {
	cfg := testConfig(t)
	cfg.Agents["second"] = &config.AgentConfig{Instructions: "Also help."}
	cfg.SetDefaults()

	rt, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer rt.Close()

	_, err = rt.DefaultAgent()
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.Agents["default"] = &config.AgentConfig{Instructions: "Preferred."}
	cfg.SetDefaults()

	rt2, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer rt2.Close()

	ag, err := rt2.DefaultAgent()
	require.NoError(t, err)
	assert.Equal(t, "default", ag.Name())
}
