package engine

import "sync"

// ownerLocks serializes engine operations per owner while letting distinct
// owners proceed in parallel. Entries are never evicted; the map grows with
// the owner population, which is bounded for this service.
type ownerLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// acquire locks the named owner and returns the release func.
func (l *ownerLocks) acquire(ownerID string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	lock, ok := l.locks[ownerID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[ownerID] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
