package pty

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// SessionInfo is a read-only snapshot of a multiplexed session.
type SessionInfo struct {
	ID        uint64
	Argv      []string
	Alive     bool
	Title     string
	CreatedAt time.Time
}

// Result is the outcome of one ProcessOutputWait call made by ProcessAll.
type Result struct {
	ID  uint64
	N   int
	Err error
}

// Multiplexer owns several driven-mode sessions.
type Multiplexer struct {
	mu       sync.RWMutex
	sessions map[uint64]*Session
	nextID   atomic.Uint64
}

// NewMultiplexer creates a new, empty Multiplexer.
func NewMultiplexer() *Multiplexer {
	return &Multiplexer{
		sessions: make(map[uint64]*Session),
	}
}

// Create spawns a session and registers it under a fresh id.
func (m *Multiplexer) Create(opts Options) (uint64, error) {
	id := m.nextID.Add(1)
	sess, err := NewSession(id, opts)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()
	return id, nil
}

// Get returns the session with the given id.
func (m *Multiplexer) Get(id uint64) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return sess, nil
}

// Close removes the session and terminates its child.
func (m *Multiplexer) Close(id uint64) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	delete(m.sessions, id)
	m.mu.Unlock()

	return sess.Close()
}

// List returns the ids of all sessions in ascending order.
func (m *Multiplexer) List() []uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]uint64, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Infos returns a snapshot of every session, ordered by id.
func (m *Multiplexer) Infos() []SessionInfo {
	ids := m.List()
	infos := make([]SessionInfo, 0, len(ids))
	for _, id := range ids {
		sess, err := m.Get(id)
		if err != nil {
			continue
		}
		title, _ := sess.Title()
		infos = append(infos, SessionInfo{
			ID:        id,
			Argv:      sess.Argv(),
			Alive:     sess.IsAlive(),
			Title:     title,
			CreatedAt: sess.CreatedAt(),
		})
	}
	return infos
}

// ProcessAll calls ProcessOutputWait once on every session in id order. A
// positive wait bounds each read so idle sessions report zero bytes
// instead of blocking the others. A zero wait blocks on each session.
func (m *Multiplexer) ProcessAll(wait time.Duration) []Result {
	ids := m.List()
	results := make([]Result, 0, len(ids))
	for _, id := range ids {
		sess, err := m.Get(id)
		if err != nil {
			continue
		}
		n, err := sess.ProcessOutputWait(wait)
		results = append(results, Result{ID: id, N: n, Err: err})
	}
	return results
}

// CloseAll terminates and removes all sessions.
func (m *Multiplexer) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, sess := range m.sessions {
		_ = sess.Close()
		delete(m.sessions, id)
	}
}
