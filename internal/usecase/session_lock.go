package usecase

import (
	"context"
	"fmt"
	"sync"
)

// SessionLocker serializes turns per session: two concurrent operations
// on the same session run one at a time, while different sessions
// proceed in parallel. Each session gets a one-slot semaphore; a waiter
// abandons acquisition cleanly when its context ends.
type SessionLocker struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	sem  chan struct{} // holds one token while the session is locked
	refs int           // holders plus waiters
}

// NewSessionLocker creates a session locker.
func NewSessionLocker() *SessionLocker {
	return &SessionLocker{slots: make(map[string]*lockSlot)}
}

// Lock acquires the session's slot, blocking until it is free or the
// context is done. The returned unlock MUST be called exactly once.
func (sl *SessionLocker) Lock(ctx context.Context, sessionID string) (unlock func(), err error) {
	sl.mu.Lock()
	slot, ok := sl.slots[sessionID]
	if !ok {
		slot = &lockSlot{sem: make(chan struct{}, 1)}
		sl.slots[sessionID] = slot
	}
	slot.refs++
	sl.mu.Unlock()

	select {
	case slot.sem <- struct{}{}:
		return func() {
			<-slot.sem
			sl.unref(sessionID, slot)
		}, nil
	case <-ctx.Done():
		sl.unref(sessionID, slot)
		return nil, fmt.Errorf("session lock %s: %w", sessionID, ctx.Err())
	}
}

// unref drops one reference and frees the slot once nothing holds or
// waits on it. A slot is only deleted at zero refs, so an outstanding
// unlock can never touch a recycled slot.
func (sl *SessionLocker) unref(sessionID string, slot *lockSlot) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(sl.slots, sessionID)
	}
}

// ActiveCount returns the number of sessions with a held or pending
// lock. Intended for testing.
func (sl *SessionLocker) ActiveCount() int {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return len(sl.slots)
}
