package terminal

import (
	"fmt"
	"sync"
	"time"

	"github.com/user/phantom/internal/pty"
)

// SessionState is the per-session state shared by the I/O loop, the render
// pump and command handlers. Every field is guarded by mu.
type SessionState struct {
	mu       sync.Mutex
	poisoned bool

	session        *pty.Session
	needsFullFrame bool
	lastTitle      string
	hasLastTitle   bool
	hasPtyData     bool

	readerDone bool
	exitSeenAt time.Time
}

func newSessionState(sess *pty.Session) *SessionState {
	return &SessionState{
		session:        sess,
		needsFullFrame: true,
	}
}

// with runs fn while holding the state lock. A panic inside fn poisons the
// state: the lock is released and every later call fails with ErrPoisoned.
func (s *SessionState) with(fn func(*SessionState) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poisoned {
		return ErrPoisoned
	}
	defer func() {
		if r := recover(); r != nil {
			s.poisoned = true
			err = fmt.Errorf("%w: %v", ErrPoisoned, r)
		}
	}()
	return fn(s)
}

// Poisoned reports whether a critical section panicked.
func (s *SessionState) Poisoned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.poisoned
}

// close terminates the child. It runs even on a poisoned state so the
// process never outlives its registry entry.
func (s *SessionState) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Close()
}
