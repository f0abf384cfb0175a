package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"concierge/internal/domain"
)

// RoutingConfig holds the selection cascade thresholds. All values are
// tuning defaults, not load-bearing constants.
type RoutingConfig struct {
	// PatternFirst runs the deterministic pattern matcher before any
	// semantic selection.
	PatternFirst bool `yaml:"pattern_first"`
	// SemanticStrategy is "llm" or "vector".
	SemanticStrategy string `yaml:"semantic_strategy"`
	// SemanticThreshold is the minimum acceptable semantic confidence.
	SemanticThreshold float64 `yaml:"semantic_threshold"`
	// SimilarityFloor is the minimum vector similarity for a match.
	SimilarityFloor float64 `yaml:"similarity_floor"`
	// ContinuityFloor is the minimum confidence to keep the last agent.
	ContinuityFloor float64 `yaml:"continuity_floor"`
	// ContinuityWindow is how many recent turns the continuity check sees.
	ContinuityWindow int `yaml:"continuity_window"`
	// SpecialCaseFloor is the minimum confidence for greeting/goodbye/
	// handoff short circuits.
	SpecialCaseFloor float64 `yaml:"special_case_floor"`
	// GeneralAgentName designates the general-conversation fallback agent.
	GeneralAgentName string `yaml:"general_agent_name"`
	// FallbackGeneralConfidence is reported when the general agent is
	// selected by fallback.
	FallbackGeneralConfidence float64 `yaml:"fallback_general_confidence"`
	// FallbackFirstConfidence is reported when the first catalog entry is
	// selected as a last resort.
	FallbackFirstConfidence float64 `yaml:"fallback_first_confidence"`
}

// ExecutionConfig holds agent execution settings.
type ExecutionConfig struct {
	// DefaultTimeout bounds agent processing when the agent config has none.
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	// GuardrailsAgent names the dedicated guardrails agent; empty falls
	// back to the generic review prompt.
	GuardrailsAgent string `yaml:"guardrails_agent"`
	// GuardrailsEnabled toggles the post-processing stage.
	GuardrailsEnabled bool `yaml:"guardrails_enabled"`
}

// RetryConfig holds the persistence retry/backoff policy.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// StateConfig holds orchestration state persistence settings.
type StateConfig struct {
	// Path is the SQLite database file; ":memory:" for ephemeral state.
	Path  string      `yaml:"path"`
	Retry RetryConfig `yaml:"retry"`
}

// CircuitBreakerConfig configures the LLM circuit breaker.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32 `yaml:"max_failures"`
	// Timeout is how long the circuit stays open before transitioning to half-open.
	Timeout time.Duration `yaml:"timeout"`
	// Interval is the cyclic period of the closed state for clearing failure counts.
	Interval time.Duration `yaml:"interval"`
}

// RateLimitConfig configures the token-bucket limiter on LLM calls.
type RateLimitConfig struct {
	RequestsPerMin float64 `yaml:"requests_per_min"` // 0 = unlimited
	Burst          int     `yaml:"burst"`
}

// LLMConfig holds LLM provider settings.
type LLMConfig struct {
	// Provider is "openai" or "anthropic".
	Provider    string               `yaml:"provider"`
	Model       string               `yaml:"model"`
	Temperature float64              `yaml:"temperature"`
	MaxTokens   int                  `yaml:"max_tokens"`
	Timeout     time.Duration        `yaml:"timeout"`
	Breaker     CircuitBreakerConfig `yaml:"breaker"`
	RateLimit   RateLimitConfig      `yaml:"rate_limit"`
}

// EmbeddingConfig holds embedding provider settings for vector-based
// semantic selection.
type EmbeddingConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Model     string `yaml:"model"`
	CacheSize int    `yaml:"cache_size"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
	Output string `yaml:"output"` // stdout, stderr, or file path
}

// TracerConfig holds OpenTelemetry tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // stdout, noop
}

// WorkflowStep is one step of a workflow-driven agent definition.
type WorkflowStep struct {
	Name   string `yaml:"name"`
	Prompt string `yaml:"prompt"`
}

// RuleDef maps trigger keywords to a response template key.
type RuleDef struct {
	Keywords []string `yaml:"keywords"`
	Template string   `yaml:"template"`
}

// SnippetDef is one retrievable knowledge snippet for retrieval agents.
type SnippetDef struct {
	Title string `yaml:"title"`
	Text  string `yaml:"text"`
}

// AgentDef is one agent definition in the catalog file. It carries the
// routable identity plus variant-specific behavior inputs.
type AgentDef struct {
	ID          string             `yaml:"id"`
	Name        string             `yaml:"name"`
	Description string             `yaml:"description"`
	Type        domain.AgentType   `yaml:"type"`
	Status      domain.AgentStatus `yaml:"status"`
	Patterns    []domain.Pattern   `yaml:"patterns,omitempty"`
	Config      domain.AgentConfig `yaml:"config"`
	Templates   map[string]string  `yaml:"templates,omitempty"`

	// Variant inputs. Rules for rule agents, snippets for retrieval
	// agents, workflow steps for workflow agents.
	Rules    []RuleDef      `yaml:"rules,omitempty"`
	Snippets []SnippetDef   `yaml:"snippets,omitempty"`
	Workflow []WorkflowStep `yaml:"workflow,omitempty"`
}

// Config is the top-level application configuration.
type Config struct {
	Routing   RoutingConfig   `yaml:"routing"`
	Execution ExecutionConfig `yaml:"execution"`
	State     StateConfig     `yaml:"state"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`
	Agents    []AgentDef      `yaml:"agents"`
}

// Defaults returns a Config populated with sensible defaults.
func Defaults() *Config {
	return &Config{
		Routing: RoutingConfig{
			PatternFirst:              true,
			SemanticStrategy:          "llm",
			SemanticThreshold:         0.5,
			SimilarityFloor:           0.6,
			ContinuityFloor:           0.6,
			ContinuityWindow:          4,
			SpecialCaseFloor:          0.7,
			GeneralAgentName:          "General Conversation Agent",
			FallbackGeneralConfidence: 0.5,
			FallbackFirstConfidence:   0.2,
		},
		Execution: ExecutionConfig{
			DefaultTimeout:    12 * time.Second,
			GuardrailsEnabled: true,
		},
		State: StateConfig{
			Path: "concierge.db",
			Retry: RetryConfig{
				MaxAttempts: 3,
				BaseDelay:   time.Second,
				MaxDelay:    10 * time.Second,
			},
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Temperature: 0.2,
			MaxTokens:   1024,
			Timeout:     15 * time.Second,
		},
		Embedding: EmbeddingConfig{
			CacheSize: 512,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Exporter: "noop",
		},
	}
}

// Load reads the YAML config at path, merging it over Defaults().
// A missing file returns the validated defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("%w: read: %v", domain.ErrConfigLoad, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parse: %v", domain.ErrConfigLoad, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
