// Package terminal runs live terminal sessions. Each session gets an I/O
// loop pinned to its own OS thread and a render pump that turns VT damage
// into wire events at a fixed frame rate.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/user/phantom/internal/pty"
	"github.com/user/phantom/internal/sandbox"
	"github.com/user/phantom/internal/wire"
)

var (
	// ErrSessionNotFound is returned for ids that are not registered.
	ErrSessionNotFound = errors.New("terminal: session not found")
	// ErrPoisoned is returned once a session's state lock was poisoned by a
	// panic. The session's loops have stopped; only Close still works.
	ErrPoisoned = errors.New("terminal: session state poisoned")
)

const defaultEventBuffer = 64

// nextSessionID is shared by every Service in the process.
var nextSessionID atomic.Uint64

// Recorder persists session metadata. Errors are logged and never fail a
// session operation.
type Recorder interface {
	SessionStarted(ctx context.Context, rec Record) error
	SessionTitle(ctx context.Context, id uint64, title string) error
	SessionExited(ctx context.Context, id uint64, code *int) error
	SessionClosed(ctx context.Context, id uint64) error
}

// Record describes a session at creation time.
type Record struct {
	ID         uint64
	Command    string
	WorkingDir string
	Cols       uint16
	Rows       uint16
	Sandboxed  bool
	CreatedAt  time.Time
}

// CreateOptions describes a new session.
type CreateOptions struct {
	Shell      string
	Command    []string
	Cols       uint16
	Rows       uint16
	WorkingDir string
	Env        []string
	// Sandbox confines the child to WorkingDir with sandbox-exec.
	Sandbox bool
}

// Config configures a Service.
type Config struct {
	RenderInterval time.Duration
	EventBuffer    int
	Recorder       Recorder
	Logger         *slog.Logger
}

// Info is a point-in-time view of one session.
type Info struct {
	ID         uint64    `json:"id"`
	Command    []string  `json:"command"`
	WorkingDir string    `json:"working_dir,omitempty"`
	Cols       int       `json:"cols"`
	Rows       int       `json:"rows"`
	Title      string    `json:"title,omitempty"`
	Alive      bool      `json:"alive"`
	ExitCode   *int      `json:"exit_code"`
	CreatedAt  time.Time `json:"created_at"`
}

// Service owns the session registry and implements the session commands.
type Service struct {
	cfg    Config
	reg    *registry
	logger *slog.Logger
}

// NewService creates a Service with no sessions.
func NewService(cfg Config) *Service {
	if cfg.RenderInterval <= 0 {
		cfg.RenderInterval = DefaultRenderInterval
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:    cfg,
		reg:    newRegistry(),
		logger: logger.With("component", "terminal"),
	}
}

// Create spawns a session and starts its loops. Events for the session are
// delivered in order on the returned channel, which is closed when the
// render pump stops. The first event is always a FullFrame.
func (s *Service) Create(ctx context.Context, opts CreateOptions) (uint64, <-chan wire.Event, error) {
	id := nextSessionID.Add(1)

	popts := pty.Options{
		Shell:   opts.Shell,
		Command: opts.Command,
		Cols:    opts.Cols,
		Rows:    opts.Rows,
		Dir:     opts.WorkingDir,
		Env:     opts.Env,
	}
	if opts.Sandbox {
		if opts.WorkingDir == "" {
			return 0, nil, fmt.Errorf("%w: sandbox requires a working directory", pty.ErrSpawnFailed)
		}
		argv, err := sandbox.Command(opts.WorkingDir, popts.Argv())
		if err != nil {
			return 0, nil, fmt.Errorf("%w: %w", pty.ErrSpawnFailed, err)
		}
		popts.Command = argv
	}

	sess, err := pty.NewSession(id, popts)
	if err != nil {
		return 0, nil, err
	}

	cols, rows := sessionSize(sess)
	reader := sess.TakeReader()
	st := newSessionState(sess)
	e := &entry{
		state:      st,
		ioStop:     make(chan struct{}, 1),
		renderStop: make(chan struct{}, 1),
	}
	events := make(chan wire.Event, s.cfg.EventBuffer)

	if s.cfg.Recorder != nil {
		rec := Record{
			ID:         id,
			Command:    shellquote.Join(sess.Argv()...),
			WorkingDir: opts.WorkingDir,
			Cols:       uint16(cols),
			Rows:       uint16(rows),
			Sandboxed:  opts.Sandbox,
			CreatedAt:  sess.CreatedAt(),
		}
		if err := s.cfg.Recorder.SessionStarted(ctx, rec); err != nil {
			s.logger.Warn("record session", "session_id", id, "error", err)
		}
	}

	s.reg.insert(id, e)
	go runIOLoop(id, st, reader, e.ioStop, s.logger)
	p := &pump{
		id:       id,
		state:    st,
		out:      events,
		stop:     e.renderStop,
		interval: s.cfg.RenderInterval,
		recorder: s.cfg.Recorder,
		logger:   s.logger,
	}
	go p.run()

	s.logger.Info("session created",
		"session_id", id,
		"command", shellquote.Join(sess.Argv()...),
		"pid", sess.Pid(),
		"size", fmt.Sprintf("%dx%d", cols, rows))

	return id, events, nil
}

// WriteInput forwards keyboard input to the session's child. The pty write
// happens outside the state lock.
func (s *Service) WriteInput(id uint64, data []byte) error {
	st, ok := s.reg.get(id)
	if !ok {
		return ErrSessionNotFound
	}
	var sess *pty.Session
	err := st.with(func(st *SessionState) error {
		if !st.session.IsAlive() {
			return fmt.Errorf("%w: session %d has exited", pty.ErrIO, id)
		}
		sess = st.session
		return nil
	})
	if err != nil {
		return err
	}
	return sess.WriteInput(data)
}

// Resize resizes the pty and the VT engine together and schedules a full
// frame for the next tick.
func (s *Service) Resize(id uint64, cols, rows uint16) error {
	st, ok := s.reg.get(id)
	if !ok {
		return ErrSessionNotFound
	}
	return st.with(func(st *SessionState) error {
		if err := st.session.Resize(cols, rows); err != nil {
			return err
		}
		st.needsFullFrame = true
		return nil
	})
}

// Close stops both loops, drops the session and terminates its child.
// Closing an unknown or already closed id is not an error.
func (s *Service) Close(id uint64) error {
	e, ok := s.reg.remove(id)
	if !ok {
		return nil
	}
	signal(e.ioStop)
	signal(e.renderStop)

	if err := e.state.close(); err != nil {
		s.logger.Debug("close pty", "session_id", id, "error", err)
	}
	s.logger.Info("session closed", "session_id", id)

	if s.cfg.Recorder != nil {
		if err := s.cfg.Recorder.SessionClosed(context.Background(), id); err != nil {
			s.logger.Warn("record session", "session_id", id, "error", err)
		}
	}
	return nil
}

// Shutdown closes every session.
func (s *Service) Shutdown() {
	for _, id := range s.reg.ids() {
		_ = s.Close(id)
	}
}

// IDs returns the registered session ids in ascending order.
func (s *Service) IDs() []uint64 {
	return s.reg.ids()
}

// Info returns a view of one session.
func (s *Service) Info(id uint64) (Info, error) {
	st, ok := s.reg.get(id)
	if !ok {
		return Info{}, ErrSessionNotFound
	}
	var info Info
	err := st.with(func(st *SessionState) error {
		info = describe(st.session)
		return nil
	})
	return info, err
}

// List returns a view of every session that is not poisoned.
func (s *Service) List() []Info {
	ids := s.reg.ids()
	out := make([]Info, 0, len(ids))
	for _, id := range ids {
		info, err := s.Info(id)
		if err != nil {
			continue
		}
		out = append(out, info)
	}
	return out
}

// Snapshot encodes the whole screen without consuming damage.
func (s *Service) Snapshot(id uint64) (wire.FullFrame, error) {
	st, ok := s.reg.get(id)
	if !ok {
		return wire.FullFrame{}, ErrSessionNotFound
	}
	var frame wire.FullFrame
	err := st.with(func(st *SessionState) error {
		eng := st.session.Engine()
		frame = wire.NewFullFrame(eng.Screen(), eng.Cursor())
		return nil
	})
	return frame, err
}

func describe(sess *pty.Session) Info {
	cols, rows := sessionSize(sess)
	info := Info{
		ID:         sess.ID(),
		Command:    sess.Argv(),
		WorkingDir: sess.Dir(),
		Cols:       cols,
		Rows:       rows,
		Alive:      sess.IsAlive(),
		CreatedAt:  sess.CreatedAt(),
	}
	info.Title, _ = sess.Title()
	if code, ok := sess.ExitCode(); ok {
		info.ExitCode = &code
	}
	return info
}

func sessionSize(sess *pty.Session) (cols, rows int) {
	scr := sess.Engine().Screen()
	return scr.Cols(), scr.Rows()
}
