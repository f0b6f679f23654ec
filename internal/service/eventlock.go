package service

import "sync"

// eventLocks serializes all mutating engine operations per event. The
// original system interleaved check-then-act steps from concurrent channels
// freely, which could admit one request over the rate limit, pass two
// identical tracks through the duplicate check, or hand the same queue
// position to two accepts. A single writer per event closes all three
// windows without a global lock.
//
// Entries are reference-counted so the map does not grow with every event
// id ever seen.
type eventLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newEventLocks() *eventLocks {
	return &eventLocks{locks: make(map[string]*lockEntry)}
}

// NewEventLocks builds the lock table the admission and vote services
// share. One table per deployment.
func NewEventLocks() *eventLocks {
	return newEventLocks()
}

// Lock acquires the lock for one event and returns its release func.
func (el *eventLocks) Lock(eID string) func() {
	el.mu.Lock()
	e, ok := el.locks[eID]
	if !ok {
		e = &lockEntry{}
		el.locks[eID] = e
	}
	e.refs++
	el.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		el.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(el.locks, eID)
		}
		el.mu.Unlock()
	}
}
