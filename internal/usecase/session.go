package usecase

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"concierge/internal/domain"
)

// Session is an active conversation. The in-memory session is a cache of
// the conversational working set; the durable copy lives in the state
// store and the session can be rebuilt from it at any time.
type Session struct {
	mu          sync.RWMutex
	ID          string           `json:"id"` // ULID, globally unique
	ExternalKey string           `json:"external_key"`
	Msgs        []domain.Message `json:"messages"`
	LastAgentID string           `json:"last_agent_id"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// NewSession creates an empty session with a generated ULID. The
// externalKey is the caller-supplied lookup key.
func NewSession(externalKey string) *Session {
	now := time.Now()
	return &Session{
		ID:          generateULID(now),
		ExternalKey: externalKey,
		Msgs:        make([]domain.Message, 0),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// ulidEntropy is process-wide and monotonic: IDs minted within the same
// millisecond stay unique and ordered, which matters because snapshot
// IDs are primary keys.
var ulidEntropy = &ulid.LockedMonotonicReader{
	MonotonicReader: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
}

func generateULID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulidEntropy).String()
}

// AddMessage appends a message and updates the timestamp (thread-safe).
func (s *Session) AddMessage(msg domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	s.Msgs = append(s.Msgs, msg)
	s.UpdatedAt = time.Now()
}

// Messages returns a copy of the message history (thread-safe).
func (s *Session) Messages() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make([]domain.Message, len(s.Msgs))
	copy(cp, s.Msgs)
	return cp
}

// SetLastAgent records which agent handled the latest turn.
func (s *Session) SetLastAgent(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastAgentID = agentID
	s.UpdatedAt = time.Now()
}

// LastAgent returns the agent that handled the latest turn, if any.
func (s *Session) LastAgent() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LastAgentID
}

// Restore replaces the session's conversational state wholesale. Used
// after a checkpoint rollback.
func (s *Session) Restore(msgs []domain.Message, lastAgentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Msgs = make([]domain.Message, len(msgs))
	copy(s.Msgs, msgs)
	s.LastAgentID = lastAgentID
	s.UpdatedAt = time.Now()
}

// Truncate keeps only the last N messages.
func (s *Session) Truncate(maxMessages int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Msgs) <= maxMessages {
		return
	}
	s.Msgs = s.Msgs[len(s.Msgs)-maxMessages:]
}

// SessionManager caches sessions by external key. Durable state lives in
// the state store; the manager only holds the hot working set.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionManager creates a session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*Session)}
}

// GetOrCreate returns the session for a key, creating it when missing.
// The second return reports whether the session was newly created.
func (sm *SessionManager) GetOrCreate(key string) (*Session, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if s, ok := sm.sessions[key]; ok {
		return s, false
	}
	s := NewSession(key)
	sm.sessions[key] = s
	return s, true
}

// Get returns the session for a key, or nil.
func (sm *SessionManager) Get(key string) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[key]
}

// Put installs a rebuilt session under its external key.
func (sm *SessionManager) Put(s *Session) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.sessions[s.ExternalKey] = s
}

// Remove drops a session from the cache. The durable copy is unaffected.
func (sm *SessionManager) Remove(key string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sessions, key)
}

// Reap evicts cached sessions idle longer than maxIdle and returns how
// many were dropped. Evicted sessions rebuild from the state store on
// next use.
func (sm *SessionManager) Reap(maxIdle time.Duration) int {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	n := 0
	for key, s := range sm.sessions {
		s.mu.RLock()
		idle := s.UpdatedAt.Before(cutoff)
		s.mu.RUnlock()
		if idle {
			delete(sm.sessions, key)
			n++
		}
	}
	return n
}

// Len returns the number of cached sessions.
func (sm *SessionManager) Len() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}
