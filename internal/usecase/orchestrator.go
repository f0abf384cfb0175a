package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"concierge/internal/domain"
	"concierge/internal/infra/logger"
	"concierge/internal/infra/tracer"
)

// unavailableResponse is the user-safe reply when routing cannot produce
// an agent at all.
const unavailableResponse = "I'm sorry, I'm unable to help right now. Please try again later."

// TurnResult is what one processed turn returns to the caller. The
// response is always natural language, even on failure; structured error
// detail travels only through Metadata.
type TurnResult struct {
	Success    bool                   `json:"success"`
	Response   string                 `json:"response"`
	AgentID    string                 `json:"agent_id,omitempty"`
	AgentName  string                 `json:"agent_name,omitempty"`
	Confidence float64                `json:"confidence"`
	Method     domain.SelectionMethod `json:"method"`
	Metadata   map[string]any         `json:"metadata,omitempty"`
}

// Selector is the routing surface the orchestrator depends on.
type Selector interface {
	Select(ctx context.Context, message, lastAgentID string, history []domain.Message) (domain.SelectionResult, error)
}

// Reviewer is the guardrails surface the orchestrator depends on.
type Reviewer interface {
	Review(ctx context.Context, response string, rctx ReviewContext) GuardrailsResult
}

// OrchestratorDeps holds the injected collaborators. Everything is
// constructed once per process and passed in explicitly.
type OrchestratorDeps struct {
	Catalog    *Catalog
	Router     Selector
	Executor   *Executor
	Guardrails Reviewer
	States     *StateStore
	Logger     *slog.Logger
}

// Orchestrator coordinates one conversation turn end to end: session
// bookkeeping, routing, execution, guardrails, and state persistence.
// Per-session state in memory (history, last agent, counters) is a cache
// rebuildable from the state store.
type Orchestrator struct {
	deps     OrchestratorDeps
	sessions *SessionManager
	locker   *SessionLocker

	counters *counterCache
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = logger.Discard()
	}
	return &Orchestrator{
		deps:     deps,
		sessions: NewSessionManager(),
		locker:   NewSessionLocker(),
		counters: newCounterCache(),
	}
}

// ProcessTurn handles one user message for a session. Turns for the same
// session serialize; a failed turn still yields a natural-language
// response with error detail in metadata.
func (o *Orchestrator) ProcessTurn(ctx context.Context, sessionID, message string) TurnResult {
	if sessionID == "" {
		sessionID = generateULID(time.Now())
	}
	turnID := uuid.NewString()
	ctx = domain.ContextWithSessionID(ctx, sessionID)
	ctx = domain.ContextWithTurnID(ctx, turnID)

	ctx, span := tracer.StartSpan(ctx, "orchestrator.turn",
		trace.WithAttributes(tracer.StringAttr("session.id", sessionID)))
	defer span.End()

	start := time.Now()
	log := o.deps.Logger.With("session", sessionID, "turn", turnID)

	unlock, err := o.locker.Lock(ctx, sessionID)
	if err != nil {
		tracer.RecordError(span, err)
		return o.failure(sessionID, turnID, start, nil, err)
	}
	defer unlock()

	session, err := o.loadSession(ctx, sessionID)
	if err != nil {
		// A cold session that cannot be rebuilt starts fresh; history in
		// the store is not lost, only unavailable this turn.
		log.Warn("session rebuild failed, starting fresh", "error", err)
		session, _ = o.sessions.GetOrCreate(sessionID)
	}

	turnTrace := []domain.TraceEntry{traceEntry("turn_start", map[string]any{"turn_id": turnID})}
	session.AddMessage(domain.Message{Role: domain.RoleUser, Content: message})
	history := session.Messages()

	sel, err := o.deps.Router.Select(ctx, message, session.LastAgent(), history)
	if err != nil {
		log.Error("routing failed", "error", err)
		tracer.RecordError(span, err)
		return o.failure(sessionID, turnID, start, turnTrace, err)
	}
	turnTrace = append(turnTrace, traceEntry("selection", map[string]any{
		"agent_id":   sel.AgentID,
		"method":     string(sel.Method),
		"confidence": sel.Confidence,
	}))

	response, agentName, execMeta, execErr := o.runAgent(ctx, session, message, history, sel, &turnTrace)

	session.AddMessage(domain.Message{
		Role:    domain.RoleAssistant,
		Content: response,
		AgentID: sel.AgentID,
	})
	// A short-circuited turn (greeting, goodbye) does not take over the
	// session; the agent handling the ongoing task stays pinned.
	if !sel.ShortCircuit() {
		session.SetLastAgent(sel.AgentID)
	}

	o.counters.bump(sessionID, "turns", 1)
	o.counters.bump(sessionID, "method:"+string(sel.Method), 1)

	elapsed := time.Since(start)
	turnTrace = append(turnTrace, traceEntry("turn_end", map[string]any{"elapsed_ms": elapsed.Milliseconds()}))

	stateSaved := true
	data := o.stateData(session, sel, turnTrace)
	if _, perr := o.deps.States.PersistState(ctx, sessionID, data); perr != nil {
		log.Error("state persistence failed", "error", perr)
		tracer.RecordError(span, perr)
		stateSaved = false
		if execErr == nil {
			execErr = perr
		}
	}

	meta := map[string]any{
		"session_id":    sessionID,
		"turn_id":       turnID,
		"trace":         turnTrace,
		"processing_ms": elapsed.Milliseconds(),
		"state_saved":   stateSaved,
	}
	for k, v := range execMeta {
		meta[k] = v
	}
	if execErr != nil {
		meta["error"] = execErr.Error()
		meta["error_code"] = string(domain.ErrorCodeOf(execErr))
	}

	log.Info("turn processed",
		"agent", sel.AgentID, "method", sel.Method,
		"confidence", sel.Confidence, "elapsed", elapsed, "state_saved", stateSaved)
	tracer.SetOK(span)

	return TurnResult{
		Success:    execErr == nil,
		Response:   response,
		AgentID:    sel.AgentID,
		AgentName:  agentName,
		Confidence: sel.Confidence,
		Method:     sel.Method,
		Metadata:   meta,
	}
}

// runAgent executes the selected agent and applies guardrails, unless the
// router already produced the final response.
func (o *Orchestrator) runAgent(ctx context.Context, session *Session, message string, history []domain.Message, sel domain.SelectionResult, entries *[]domain.TraceEntry) (response, agentName string, meta map[string]any, err error) {
	if sel.ShortCircuit() {
		*entries = append(*entries, traceEntry("short_circuit", map[string]any{"category": sel.Explanation}))
		return sel.Response, "orchestrator", nil, nil
	}

	agent, lookupErr := o.deps.Catalog.ByID(sel.AgentID)
	if lookupErr != nil {
		agent = nil
	} else {
		agentName = agent.Name
	}

	exec := o.deps.Executor.Execute(ctx, agent, message, map[string]any{
		"history":    history,
		"session_id": session.ID,
	})
	*entries = append(*entries, traceEntry("execution", map[string]any{
		"success":    exec.Success,
		"elapsed_ms": exec.Elapsed.Milliseconds(),
	}))
	if exec.Err != nil {
		return exec.Response, agentName, exec.Metadata, exec.Err
	}

	reviewed := o.deps.Guardrails.Review(ctx, exec.Response, ReviewContext{
		AgentName:  agentName,
		Confidence: sel.Confidence,
		UserInput:  message,
	})
	if reviewed.Modified {
		*entries = append(*entries, traceEntry("guardrails", map[string]any{"modified": true}))
	}
	return reviewed.Response, agentName, exec.Metadata, nil
}

// failure builds the degraded turn result. The user still receives
// natural language; the error travels through metadata.
func (o *Orchestrator) failure(sessionID, turnID string, start time.Time, entries []domain.TraceEntry, err error) TurnResult {
	entries = append(entries, traceEntry("turn_failed", map[string]any{"error": err.Error()}))
	return TurnResult{
		Success:  false,
		Response: unavailableResponse,
		Method:   domain.MethodNone,
		Metadata: map[string]any{
			"session_id":    sessionID,
			"turn_id":       turnID,
			"trace":         entries,
			"processing_ms": time.Since(start).Milliseconds(),
			"state_saved":   false,
			"error":         err.Error(),
			"error_code":    string(domain.ErrorCodeOf(err)),
		},
	}
}

// loadSession returns the cached session, rebuilding it from the state
// store on a cold start. Pending operations left by a partial failure are
// drained during the rebuild.
func (o *Orchestrator) loadSession(ctx context.Context, sessionID string) (*Session, error) {
	session, created := o.sessions.GetOrCreate(sessionID)
	if !created {
		return session, nil
	}

	state, err := o.deps.States.MostRecentState(ctx, sessionID)
	if err != nil {
		o.sessions.Remove(sessionID)
		return nil, err
	}
	if state == nil {
		return session, nil // genuinely new session
	}

	data, err := o.deps.States.ProcessPendingOperations(ctx, sessionID, state.Data)
	if err != nil {
		o.deps.Logger.Warn("pending operation recovery failed", "session", sessionID, "error", err)
		data = state.Data
	}

	session.Restore(data.Messages, data.LastAgentID)
	o.counters.set(sessionID, data.Counters)
	o.deps.Logger.Info("session rebuilt from state store",
		"session", sessionID, "messages", len(data.Messages))
	return session, nil
}

// stateData composes the durable snapshot for the session's current turn.
func (o *Orchestrator) stateData(session *Session, sel domain.SelectionResult, entries []domain.TraceEntry) domain.StateData {
	return domain.StateData{
		Messages:    session.Messages(),
		LastAgentID: session.LastAgent(),
		Confidence:  sel.Confidence,
		Method:      sel.Method,
		Trace:       entries,
		Counters:    o.counters.snapshot(session.ExternalKey),
	}
}

// CreateCheckpoint snapshots the session's current state under a name,
// rebuilding the session from the state store when the cache is cold.
// ErrSessionNotFound means the session has no history anywhere.
func (o *Orchestrator) CreateCheckpoint(ctx context.Context, sessionID, name string) (*domain.OrchestrationState, error) {
	unlock, err := o.locker.Lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	session, err := o.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(session.Messages()) == 0 {
		o.sessions.Remove(sessionID)
		return nil, domain.NewDomainError("Orchestrator.CreateCheckpoint", domain.ErrSessionNotFound, sessionID)
	}
	data := domain.StateData{
		Messages:    session.Messages(),
		LastAgentID: session.LastAgent(),
		Counters:    o.counters.snapshot(sessionID),
	}
	return o.deps.States.CreateCheckpoint(ctx, sessionID, name, data)
}

// Rollback restores a named checkpoint (or the most recent one when name
// is empty) and rewinds the in-memory session to match.
func (o *Orchestrator) Rollback(ctx context.Context, sessionID, name string) (*domain.OrchestrationState, error) {
	unlock, err := o.locker.Lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	restored, err := o.deps.States.RollbackToCheckpoint(ctx, sessionID, name)
	if err != nil {
		return nil, err
	}

	session, _ := o.sessions.GetOrCreate(sessionID)
	session.Restore(restored.Data.Messages, restored.Data.LastAgentID)
	o.counters.set(sessionID, restored.Data.Counters)
	return restored, nil
}

// ListCheckpoints returns the session's checkpoints, newest first.
func (o *Orchestrator) ListCheckpoints(ctx context.Context, sessionID string) ([]domain.CheckpointInfo, error) {
	return o.deps.States.ListCheckpoints(ctx, sessionID)
}

// SessionInfo reports stored-state counts and the current conversation
// length for a session.
func (o *Orchestrator) SessionInfo(ctx context.Context, sessionID string) (domain.SessionCounts, error) {
	counts, err := o.deps.States.SessionInfo(ctx, sessionID)
	if err != nil {
		return counts, err
	}
	if s := o.sessions.Get(sessionID); s != nil {
		counts.Messages = len(s.Messages())
		return counts, nil
	}
	if state, serr := o.deps.States.MostRecentState(ctx, sessionID); serr == nil && state != nil {
		counts.Messages = len(state.Data.Messages)
	}
	return counts, nil
}

// ListAgents returns catalog entries with their rolling metrics.
func (o *Orchestrator) ListAgents() []domain.AgentSummary {
	agents := o.deps.Catalog.Agents()
	out := make([]domain.AgentSummary, 0, len(agents))
	for _, a := range agents {
		out = append(out, domain.AgentSummary{
			ID:          a.ID,
			Name:        a.Name,
			Description: a.Description,
			Type:        a.Type,
			Status:      a.Status,
			Metrics:     o.deps.Executor.Metrics(a.ID),
		})
	}
	return out
}

// ReapSessions evicts cached sessions idle longer than maxIdle.
func (o *Orchestrator) ReapSessions(maxIdle time.Duration) int {
	return o.sessions.Reap(maxIdle)
}

func traceEntry(step string, fields map[string]any) domain.TraceEntry {
	return domain.TraceEntry{Step: step, Timestamp: time.Now().UTC(), Fields: fields}
}
