package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetDefaults_CreatesDefaultLLM(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg := &Config{}
	cfg.SetDefaults()

	require.Contains(t, cfg.LLMs, "default")
	assert.Equal(t, LLMProviderOpenAI, cfg.LLMs["default"].Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLMs["default"].Model)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 1.0, cfg.Tracing.SamplingRate)
}

func TestSetDefaults_DetectsAnthropicFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

	cfg := &Config{}
	cfg.SetDefaults()

	require.Contains(t, cfg.LLMs, "default")
	assert.Equal(t, LLMProviderAnthropic, cfg.LLMs["default"].Provider)
}

func TestValidate_UnknownReferences(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr string
	}{
		{
			name: "agent references unknown llm",
			cfg: &Config{
				Agents: map[string]*AgentConfig{
					"helper": {LLM: "missing"},
				},
			},
			wantErr: "unknown llm",
		},
		{
			name: "agent references unknown tool",
			cfg: &Config{
				Agents: map[string]*AgentConfig{
					"helper": {Tools: []string{"missing"}},
				},
			},
			wantErr: "unknown tool",
		},
		{
			name: "collection references unknown embedder",
			cfg: &Config{
				Database: &DatabaseConfig{
					Collections: map[string]*CollectionConfig{
						"docs": {Kind: CollectionKindVector, Embedder: "missing"},
					},
				},
			},
			wantErr: "unknown embedder",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.SetDefaults()
			err := tt.cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_BadCollectionKind(t *testing.T) {
	cfg := &Config{
		Database: &DatabaseConfig{
			Collections: map[string]*CollectionConfig{
				"docs": {Kind: "graph"},
			},
		},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown kind")
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("HAM_TEST_VAR", "hello")
	t.Setenv("HAM_TEST_EMPTY", "")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no vars", "plain", "plain"},
		{"braced", "${HAM_TEST_VAR}", "hello"},
		{"simple", "$HAM_TEST_VAR", "hello"},
		{"default used", "${HAM_TEST_EMPTY:-fallback}", "fallback"},
		{"default unused", "${HAM_TEST_VAR:-fallback}", "hello"},
		{"embedded", "prefix-${HAM_TEST_VAR}-suffix", "prefix-hello-suffix"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, expandEnvVars(tt.input))
		})
	}
}

func TestExpandEnvVarsInData_TypeCoercion(t *testing.T) {
	t.Setenv("HAM_TEST_NUM", "42")
	t.Setenv("HAM_TEST_BOOL", "true")

	data := map[string]interface{}{
		"num":  "${HAM_TEST_NUM}",
		"flag": "${HAM_TEST_BOOL}",
		"nested": map[string]interface{}{
			"list": []interface{}{"${HAM_TEST_NUM}"},
		},
	}

	out := ExpandEnvVarsInData(data).(map[string]interface{})
	assert.Equal(t, 42, out["num"])
	assert.Equal(t, true, out["flag"])
	nested := out["nested"].(map[string]interface{})
	assert.Equal(t, []interface{}{42}, nested["list"])
}

func TestLoadFile(t *testing.T) {
	t.Setenv("HAM_TEST_KEY", "sk-from-env")

	dir := t.TempDir()
	path := filepath.Join(dir, "ham.yaml")
	yaml := `
llms:
  main:
    provider: openai
    api_key: ${HAM_TEST_KEY}
    model: gpt-4o
agents:
  helper:
    llm: main
    instructions: "You are helpful."
    max_steps: 5
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, loader, err := LoadFile(context.Background(), path)
	require.NoError(t, err)
	defer loader.Close()

	require.Contains(t, cfg.LLMs, "main")
	assert.Equal(t, "sk-from-env", cfg.LLMs["main"].APIKey)
	assert.Equal(t, "gpt-4o", cfg.LLMs["main"].Model)

	require.Contains(t, cfg.Agents, "helper")
	agent := cfg.Agents["helper"]
	assert.Equal(t, "helper", agent.Name)
	assert.Equal(t, 5, agent.MaxSteps)
	assert.Equal(t, ContextStrategyAll, agent.ContextStrategy)
}

func TestLoadFile_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ham.yaml")
	yaml := `
agents:
  helper:
    llm: nonexistent
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	_, _, err := LoadFile(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown llm")
}

func TestAgentConfigDefaults(t *testing.T) {
	cfg := &AgentConfig{Name: "helper"}
	cfg.SetDefaults()

	assert.Equal(t, 10, cfg.MaxSteps)
	assert.Nil(t, cfg.ContextUpdates)
	assert.Equal(t, ContextStrategyAll, cfg.ContextStrategy)
	assert.Equal(t, 3, cfg.ContextMaxRetries)
	assert.Equal(t, ContextFormatJSON, cfg.ContextFormat)
}
