package pty

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	creackpty "github.com/creack/pty"
)

const (
	// DefaultShell is used when neither an explicit shell nor $SHELL is set.
	DefaultShell = "/bin/sh"
	DefaultCols  = 80
	DefaultRows  = 24

	killGrace = 2 * time.Second
)

// Options describes the child process to start.
type Options struct {
	// Shell is the program started when Command is empty. Resolved with
	// ResolveShell.
	Shell string
	// Command, when set, is the full argv and Shell is ignored.
	Command []string
	Cols    uint16
	Rows    uint16
	Dir     string
	// Env is appended to the current environment.
	Env []string
}

// ResolveShell returns shell, else $SHELL, else DefaultShell.
func ResolveShell(shell string) string {
	if shell != "" {
		return shell
	}
	if env := os.Getenv("SHELL"); env != "" {
		return env
	}
	return DefaultShell
}

// Argv returns the command line Spawn will execute.
func (o Options) Argv() []string {
	if len(o.Command) > 0 {
		return append([]string(nil), o.Command...)
	}
	return []string{ResolveShell(o.Shell)}
}

// Handle is a child process attached to the slave side of a pty. The
// master side is kept for reading, writing and resizing.
type Handle struct {
	cmd  *exec.Cmd
	ptmx *os.File

	done     chan struct{}
	exitCode int

	closeOnce sync.Once
}

// Spawn starts the child described by opts in a new pty.
func Spawn(opts Options) (*Handle, error) {
	argv := opts.Argv()
	if argv[0] == "" {
		return nil, spawnError("resolve", errors.New("empty command"))
	}
	if opts.Cols == 0 {
		opts.Cols = DefaultCols
	}
	if opts.Rows == 0 {
		opts.Rows = DefaultRows
	}
	if opts.Dir != "" {
		info, err := os.Stat(opts.Dir)
		if err != nil {
			return nil, spawnError("workdir", err)
		}
		if !info.IsDir() {
			return nil, spawnError("workdir", errors.New(opts.Dir+" is not a directory"))
		}
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = opts.Dir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color", "COLORTERM=truecolor")
	cmd.Env = append(cmd.Env, opts.Env...)

	ptmx, err := creackpty.StartWithSize(cmd, &creackpty.Winsize{
		Cols: opts.Cols,
		Rows: opts.Rows,
	})
	if err != nil {
		return nil, spawnError("start", err)
	}

	h := &Handle{
		cmd:      cmd,
		ptmx:     ptmx,
		done:     make(chan struct{}),
		exitCode: -1,
	}
	go h.wait()
	return h, nil
}

// wait reaps the child. The exit code is published by closing done.
func (h *Handle) wait() {
	_ = h.cmd.Wait()
	if state := h.cmd.ProcessState; state != nil {
		h.exitCode = state.ExitCode()
	}
	close(h.done)
}

// Pid returns the child's process id.
func (h *Handle) Pid() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Read blocks until the child writes output. It returns io.EOF once the
// child side of the pty is gone.
func (h *Handle) Read(p []byte) (int, error) {
	n, err := h.ptmx.Read(p)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, syscall.EIO) || errors.Is(err, os.ErrClosed) {
			return n, io.EOF
		}
		return n, ioError("read", err)
	}
	return n, nil
}

// Write sends input to the child.
func (h *Handle) Write(p []byte) (int, error) {
	n, err := h.ptmx.Write(p)
	if err != nil {
		if errors.Is(err, os.ErrClosed) {
			return n, ioError("write", ErrClosed)
		}
		return n, ioError("write", err)
	}
	return n, nil
}

// Resize changes the pty window size.
func (h *Handle) Resize(cols, rows uint16) error {
	if err := creackpty.Setsize(h.ptmx, &creackpty.Winsize{Cols: cols, Rows: rows}); err != nil {
		return resizeError(err)
	}
	return nil
}

// Size reports the current pty window size.
func (h *Handle) Size() (cols, rows uint16, err error) {
	ws, err := creackpty.GetsizeFull(h.ptmx)
	if err != nil {
		return 0, 0, err
	}
	return ws.Cols, ws.Rows, nil
}

// PollExit reports whether the child has exited and its exit code. It never
// blocks. The code is -1 when the child was killed by a signal.
func (h *Handle) PollExit() (code int, exited bool) {
	select {
	case <-h.done:
		return h.exitCode, true
	default:
		return 0, false
	}
}

// Done is closed when the child has been reaped.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Close hangs up the child, releases the pty and kills the child if it is
// still running after a grace period. It is safe to call more than once.
func (h *Handle) Close() error {
	var err error
	h.closeOnce.Do(func() {
		if h.cmd.Process != nil {
			_ = h.cmd.Process.Signal(syscall.SIGHUP)
		}
		err = h.ptmx.Close()

		go func() {
			select {
			case <-h.done:
			case <-time.After(killGrace):
				if h.cmd.Process != nil {
					_ = h.cmd.Process.Kill()
				}
			}
		}()
	})
	return err
}
