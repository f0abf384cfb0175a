package domain

// SelectionMethod identifies which stage of the routing cascade produced
// a selection decision.
type SelectionMethod string

const (
	MethodSpecialCase     SelectionMethod = "special_case"
	MethodContinuity      SelectionMethod = "continuity"
	MethodPattern         SelectionMethod = "pattern"
	MethodSemanticLLM     SelectionMethod = "semantic_llm"
	MethodSemanticVector  SelectionMethod = "semantic_vector"
	MethodFallbackGeneral SelectionMethod = "fallback_general"
	MethodFallbackFirst   SelectionMethod = "fallback_first"
	MethodNone            SelectionMethod = "none"
)

// SelectionResult is the routing decision for one turn. Transient: it is
// embedded into trace entries, never persisted standalone.
type SelectionResult struct {
	AgentID     string          `json:"agent_id,omitempty"`
	Confidence  float64         `json:"confidence"`
	Method      SelectionMethod `json:"method"`
	Explanation string          `json:"explanation,omitempty"`

	// MatchedPattern is set when Method is MethodPattern.
	MatchedPattern string `json:"matched_pattern,omitempty"`

	// Response is set when the router short-circuited (special case)
	// and no agent execution should occur.
	Response string `json:"response,omitempty"`
}

// ShortCircuit reports whether the router already produced the final
// response and agent execution must be skipped.
func (r SelectionResult) ShortCircuit() bool {
	return r.Method == MethodSpecialCase && r.Response != ""
}

// SpecialCategory classifies a message that bypasses agent selection.
type SpecialCategory string

const (
	SpecialGreeting     SpecialCategory = "greeting"
	SpecialGoodbye      SpecialCategory = "goodbye"
	SpecialHumanRequest SpecialCategory = "human_request"
	SpecialNone         SpecialCategory = "none"
)
