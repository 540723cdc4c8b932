package terminal

import (
	"slices"
	"sync"
)

// entry is everything the registry keeps for one live session.
type entry struct {
	state      *SessionState
	ioStop     chan struct{}
	renderStop chan struct{}
}

// registry maps session ids to their state and the single-slot stop
// channels of their two loops. It has its own lock, independent of every
// session's state lock.
type registry struct {
	mu      sync.Mutex
	entries map[uint64]*entry
}

func newRegistry() *registry {
	return &registry{entries: make(map[uint64]*entry)}
}

func (r *registry) insert(id uint64, e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = e
}

func (r *registry) get(id uint64) (*SessionState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.state, true
}

// remove drops the entry and returns it. The second call for the same id
// returns false.
func (r *registry) remove(id uint64) (*entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	return e, ok
}

func (r *registry) ids() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]uint64, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// signal posts a stop without blocking. A full slot already holds one.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
