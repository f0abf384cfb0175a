package domain

import (
	"context"
	"time"
)

// AgentType identifies the behavior variant backing an agent.
// The orchestration core depends only on the Behavior interface; the
// type is informational (catalog listings, prompts, metrics labels).
type AgentType string

const (
	AgentTypeLLM       AgentType = "llm"
	AgentTypeRule      AgentType = "rule"
	AgentTypeRetrieval AgentType = "retrieval"
	AgentTypeWorkflow  AgentType = "workflow"
)

// AgentStatus is the lifecycle state of an agent definition.
// Only active agents are routable.
type AgentStatus string

const (
	AgentStatusDraft    AgentStatus = "draft"
	AgentStatusActive   AgentStatus = "active"
	AgentStatusArchived AgentStatus = "archived"
)

// PatternType identifies how a detection pattern is evaluated.
type PatternType string

const (
	PatternLiteral  PatternType = "literal"
	PatternRegex    PatternType = "regex"
	PatternSemantic PatternType = "semantic"
)

// Pattern is a single detection pattern attached to an agent. Literal and
// regex patterns drive the deterministic fast path; semantic patterns feed
// the embedding index.
type Pattern struct {
	Type            PatternType `json:"type"             yaml:"type"`
	Value           string      `json:"value"            yaml:"value"`
	Priority        int         `json:"priority"         yaml:"priority"`
	ConfidenceBoost float64     `json:"confidence_boost" yaml:"confidence_boost"`
}

// AgentConfig holds per-agent tuning knobs.
type AgentConfig struct {
	Model               string        `json:"model,omitempty"         yaml:"model,omitempty"`
	Temperature         float64       `json:"temperature,omitempty"   yaml:"temperature,omitempty"`
	SystemPrompt        string        `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	Timeout             time.Duration `json:"timeout,omitempty"       yaml:"timeout,omitempty"`
	ConfidenceThreshold float64       `json:"confidence_threshold,omitempty" yaml:"confidence_threshold,omitempty"`
}

// Agent is a routable unit of behavior. Definitions are loaded from
// configuration at startup and treated as immutable by the orchestration
// core; reloads swap the whole catalog atomically.
type Agent struct {
	ID          string            `json:"id"          yaml:"id"`
	Name        string            `json:"name"        yaml:"name"`
	Description string            `json:"description" yaml:"description"`
	Type        AgentType         `json:"type"        yaml:"type"`
	Status      AgentStatus       `json:"status"      yaml:"status"`
	Patterns    []Pattern         `json:"patterns,omitempty"  yaml:"patterns,omitempty"`
	Config      AgentConfig       `json:"config"      yaml:"config"`
	Templates   map[string]string `json:"templates,omitempty" yaml:"templates,omitempty"`

	// Behavior is attached by the catalog when the definition is loaded.
	// Never serialized.
	Behavior Behavior `json:"-" yaml:"-"`
}

// Active reports whether the agent is routable.
func (a *Agent) Active() bool { return a.Status == AgentStatusActive }

// ProcessResult is what an agent behavior returns for one message.
type ProcessResult struct {
	Response string         `json:"response"`
	Success  bool           `json:"success"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Behavior is the processing capability every catalog entry exposes,
// regardless of its internal implementation.
type Behavior interface {
	// Process handles one user message with turn-scoped context and
	// returns the agent's response.
	Process(ctx context.Context, message string, turnCtx map[string]any) (*ProcessResult, error)
}

// AgentSummary is a read-only listing entry for an agent, including its
// rolling execution metrics.
type AgentSummary struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Type        AgentType    `json:"type"`
	Status      AgentStatus  `json:"status"`
	Metrics     AgentMetrics `json:"metrics"`
}

// AgentMetrics is a snapshot of an agent's rolling execution counters.
type AgentMetrics struct {
	Requests      int           `json:"requests"`
	Successes     int           `json:"successes"`
	Errors        int           `json:"errors"`
	AvgProcessing time.Duration `json:"avg_processing"` // exponential moving average
}
