package conversation

import "sync"

// personaLocks serializes mutations per persona id. Entries are never
// reclaimed; the set of live personas stays small.
type personaLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newPersonaLocks() *personaLocks {
	return &personaLocks{locks: make(map[string]*sync.Mutex)}
}

// acquire locks the persona's mutex and returns its unlock func.
func (l *personaLocks) acquire(personaID string) func() {
	l.mu.Lock()
	m, ok := l.locks[personaID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[personaID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
