package domain

import "time"

// Role constants for message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// OrchestratorAgentID is the synthetic agent ID attributed to responses
// produced by the orchestrator itself (special-case short circuits).
const OrchestratorAgentID = "orchestrator"

// Message is a single message in a conversation, attributed to the agent
// that produced it when the role is assistant.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	AgentID   string    `json:"agent_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
