package tracking

import "sync"

// agentLocks hands out one mutex per agent id. Every mutation of an agent's
// session, geofence state and current location happens under that agent's
// lock, while different agents proceed fully in parallel. A batch holds the
// lock end-to-end so it never interleaves with a concurrent single-ping
// update for the same agent.
type agentLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newAgentLocks() *agentLocks {
	return &agentLocks{locks: make(map[string]*sync.Mutex)}
}

// acquire locks the mutex for the given agent and returns the unlock func.
func (l *agentLocks) acquire(agentID string) func() {
	l.mu.Lock()
	m, ok := l.locks[agentID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[agentID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
