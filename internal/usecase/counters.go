package usecase

import "sync"

// counterCache holds per-session counters between turns. Like the
// session cache it is rebuildable from persisted state.
type counterCache struct {
	mu       sync.Mutex
	sessions map[string]map[string]int
}

func newCounterCache() *counterCache {
	return &counterCache{sessions: make(map[string]map[string]int)}
}

func (c *counterCache) bump(sessionID, name string, by int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.sessions[sessionID]
	if !ok {
		m = make(map[string]int)
		c.sessions[sessionID] = m
	}
	m[name] += by
}

// set replaces a session's counters, e.g. after a rebuild or rollback.
func (c *counterCache) set(sessionID string, counters map[string]int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if counters == nil {
		delete(c.sessions, sessionID)
		return
	}
	m := make(map[string]int, len(counters))
	for k, v := range counters {
		m[k] = v
	}
	c.sessions[sessionID] = m
}

func (c *counterCache) snapshot(sessionID string) map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.sessions[sessionID]
	if !ok {
		return nil
	}
	cp := make(map[string]int, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
