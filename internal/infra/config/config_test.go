package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"concierge/internal/domain"
)

func TestDefaultsAreValid(t *testing.T) {
	assert.NoError(t, Validate(Defaults()))
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
routing:
  semantic_threshold: 0.7
llm:
  provider: anthropic
  model: claude-sonnet-4-20250514
  timeout: 30s
agents:
  - id: billing
    name: Billing Agent
    type: llm
    patterns:
      - type: literal
        value: refund
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.7, cfg.Routing.SemanticThreshold)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	// Untouched sections keep their defaults.
	assert.True(t, cfg.Routing.PatternFirst)
	assert.Equal(t, 3, cfg.State.Retry.MaxAttempts)
	require.Len(t, cfg.Agents, 1)
	assert.Equal(t, domain.AgentTypeLLM, cfg.Agents[0].Type)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("routing: ["), 0o644))

	_, err := Load(path)
	assert.ErrorIs(t, err, domain.ErrConfigLoad)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Routing.SemanticThreshold = 1.5
	cfg.Routing.SemanticStrategy = "psychic"
	cfg.LLM.Provider = "carrier-pigeon"
	cfg.State.Path = ""

	err := Validate(cfg)
	require.Error(t, err)
	ve, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.GreaterOrEqual(t, len(ve.Errors), 4)
}

func TestValidateVectorStrategyRequiresEmbedding(t *testing.T) {
	cfg := Defaults()
	cfg.Routing.SemanticStrategy = "vector"
	cfg.Embedding.Enabled = false
	assert.Error(t, Validate(cfg))

	cfg.Embedding.Enabled = true
	assert.NoError(t, Validate(cfg))
}

func TestValidateAgentDefinitions(t *testing.T) {
	cfg := Defaults()
	cfg.Agents = []AgentDef{
		{ID: "a", Name: "A", Type: domain.AgentTypeLLM},
		{ID: "a", Name: "Dup", Type: domain.AgentTypeLLM},
		{ID: "b", Name: "", Type: "alien"},
		{ID: "c", Name: "C", Type: domain.AgentTypeRule}, // no rules
		{ID: "d", Name: "D", Type: domain.AgentTypeLLM, Patterns: []domain.Pattern{
			{Type: "telepathy", Value: ""},
		}},
	}

	err := Validate(cfg)
	require.Error(t, err)
	ve := err.(*ValidationError)
	assert.GreaterOrEqual(t, len(ve.Errors), 6)
}
