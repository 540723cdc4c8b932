package pty

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/user/phantom/internal/vt"
)

const drivenReadSize = 4096

// Session binds one pty Handle to one VT engine under a session id.
//
// A session runs in one of two modes. In driven mode the caller loops on
// ProcessOutput. In extracted-reader mode the caller takes the reader with
// TakeReader, reads on its own goroutine and hands the bytes to Feed.
//
// Session is not safe for concurrent use except for WriteInput, which only
// touches the pty master.
type Session struct {
	id     uint64
	handle *Handle
	engine vt.Engine
	reader io.Reader
	buf    []byte

	// chunks is fed by the background reader started by ProcessOutputWait.
	chunks  chan readChunk
	quit    chan struct{}
	readErr error

	argv []string
	dir  string

	title    string
	hasTitle bool

	alive    bool
	exitCode int

	createdAt time.Time
	closeOnce sync.Once
}

// NewSession spawns the child described by opts and attaches a fresh VT
// engine of the same size.
func NewSession(id uint64, opts Options) (*Session, error) {
	if opts.Cols == 0 {
		opts.Cols = DefaultCols
	}
	if opts.Rows == 0 {
		opts.Rows = DefaultRows
	}

	h, err := Spawn(opts)
	if err != nil {
		return nil, err
	}
	return &Session{
		id:        id,
		handle:    h,
		engine:    vt.New(int(opts.Cols), int(opts.Rows)),
		reader:    h,
		quit:      make(chan struct{}),
		argv:      opts.Argv(),
		dir:       opts.Dir,
		alive:     true,
		exitCode:  -1,
		createdAt: time.Now(),
	}, nil
}

func (s *Session) ID() uint64 { return s.id }

func (s *Session) Argv() []string { return s.argv }

func (s *Session) Dir() string { return s.dir }

func (s *Session) CreatedAt() time.Time { return s.createdAt }

func (s *Session) Pid() int { return s.handle.Pid() }

// Engine exposes the VT engine for screen extraction.
func (s *Session) Engine() vt.Engine { return s.engine }

// ProcessOutput reads once from the pty, feeds the engine, flushes
// write-backs, refreshes the title and polls for exit. It blocks until the
// child writes. Once the child side closes it returns io.EOF.
func (s *Session) ProcessOutput() (int, error) {
	return s.ProcessOutputWait(0)
}

// ProcessOutputWait is ProcessOutput with a bound: when wait is positive and
// no output arrives in time it returns (0, nil). The first bounded call moves
// reading onto a background goroutine that owns the reader from then on.
func (s *Session) ProcessOutputWait(wait time.Duration) (int, error) {
	if s.readErr != nil {
		s.IsAlive()
		return 0, s.readErr
	}
	if s.reader == nil && s.chunks == nil {
		return 0, ErrReaderTaken
	}

	var chunk readChunk
	switch {
	case s.chunks == nil && wait <= 0:
		if s.buf == nil {
			s.buf = make([]byte, drivenReadSize)
		}
		n, err := s.reader.Read(s.buf)
		chunk = readChunk{data: s.buf[:n], err: err}
	case wait <= 0:
		select {
		case chunk = <-s.chunks:
		case <-s.quit:
			return 0, ErrClosed
		}
	default:
		s.startReader()
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case chunk = <-s.chunks:
		case <-s.quit:
			return 0, ErrClosed
		case <-timer.C:
			s.IsAlive()
			return 0, nil
		}
	}
	return s.apply(chunk)
}

func (s *Session) apply(chunk readChunk) (int, error) {
	n, err := len(chunk.data), chunk.err
	if n > 0 {
		s.engine.Write(chunk.data)
		if werr := s.HandleWriteBacks(); werr != nil && err == nil {
			err = werr
		}
		s.syncTitle()
	}
	s.IsAlive()
	if chunk.err != nil {
		s.readErr = chunk.err
	}
	return n, err
}

type readChunk struct {
	data []byte
	err  error
}

// startReader moves the blocking reads onto their own goroutine. It stops
// after the first read error or when the session is closed.
func (s *Session) startReader() {
	if s.chunks != nil {
		return
	}
	r := s.reader
	s.reader = nil
	s.chunks = make(chan readChunk)
	go func() {
		for {
			buf := make([]byte, drivenReadSize)
			n, err := r.Read(buf)
			select {
			case s.chunks <- readChunk{data: buf[:n], err: err}:
			case <-s.quit:
				return
			}
			if err != nil {
				return
			}
		}
	}()
}

// TakeReader hands ownership of the blocking reader to the caller. After
// this ProcessOutput fails with ErrReaderTaken. It returns nil once a
// bounded ProcessOutputWait has started the background reader.
func (s *Session) TakeReader() io.Reader {
	r := s.reader
	s.reader = nil
	return r
}

// Feed pushes bytes read by an external loop into the engine. The caller
// follows up with HandleWriteBacks.
func (s *Session) Feed(p []byte) {
	s.engine.Write(p)
	s.syncTitle()
}

// HandleWriteBacks sends the engine's pending replies to the child.
func (s *Session) HandleWriteBacks() error {
	var first error
	for _, w := range s.engine.TakePtyWrites() {
		if _, err := s.handle.Write(w); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// WriteInput forwards user input to the child.
func (s *Session) WriteInput(p []byte) error {
	_, err := s.handle.Write(p)
	return err
}

// Resize resizes the pty and the engine together. When the pty resize
// fails the engine keeps its size.
func (s *Session) Resize(cols, rows uint16) error {
	if cols == 0 || rows == 0 {
		return resizeError(errors.New("size must be positive"))
	}
	if err := s.handle.Resize(cols, rows); err != nil {
		return err
	}
	s.engine.Resize(int(cols), int(rows))
	return nil
}

// Title returns the last title the child set.
func (s *Session) Title() (string, bool) {
	s.syncTitle()
	return s.title, s.hasTitle
}

func (s *Session) syncTitle() {
	s.title, s.hasTitle = s.engine.Title()
}

// IsAlive polls the child only while it is still believed alive. The first
// observed exit is cached.
func (s *Session) IsAlive() bool {
	if !s.alive {
		return false
	}
	if code, exited := s.handle.PollExit(); exited {
		s.alive = false
		s.exitCode = code
	}
	return s.alive
}

// ExitCode returns the child's exit code once it has exited. ok is false
// while the child runs or when it was killed by a signal.
func (s *Session) ExitCode() (code int, ok bool) {
	if s.IsAlive() {
		return 0, false
	}
	if s.exitCode < 0 {
		return 0, false
	}
	return s.exitCode, true
}

// Close terminates the child and releases the pty.
func (s *Session) Close() error {
	s.closeOnce.Do(func() { close(s.quit) })
	return s.handle.Close()
}
