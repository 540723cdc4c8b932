package terminal

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	ioBufferSize = 64 * 1024
	// idleRecheck is how long the loop waits after a zero-byte read that
	// was not EOF before checking liveness again.
	idleRecheck = 10 * time.Millisecond
)

// runIOLoop owns the session's blocking reader. It pins itself to an OS
// thread, reads outside the state lock and takes the lock only to feed the
// engine. It returns on a stop signal, EOF, a read error or a poisoned lock.
func runIOLoop(id uint64, st *SessionState, r io.Reader, stop <-chan struct{}, logger *slog.Logger) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	log := logger.With("session_id", id, "thread", fmt.Sprintf("pty-io-%d", id))
	buf := make([]byte, ioBufferSize)
	var total uint64
	reason := "eof"

	defer func() {
		_ = st.with(func(st *SessionState) error {
			st.readerDone = true
			return nil
		})
		log.Debug("pty reader stopped", "reason", reason, "read", humanize.Bytes(total))
	}()

	for {
		select {
		case <-stop:
			reason = "stopped"
			return
		default:
		}

		n, err := r.Read(buf)
		if n > 0 {
			total += uint64(n)
			chunk := buf[:n]
			perr := st.with(func(st *SessionState) error {
				st.session.Feed(chunk)
				if werr := st.session.HandleWriteBacks(); werr != nil {
					log.Warn("write-back failed", "error", werr)
				}
				st.hasPtyData = true
				return nil
			})
			if perr != nil {
				reason = "poisoned"
				log.Error("session state poisoned", "error", perr)
				return
			}
		}

		if err != nil {
			if !errors.Is(err, io.EOF) {
				reason = "error"
				log.Warn("pty read failed", "error", err)
			}
			return
		}

		if n == 0 {
			var alive bool
			if perr := st.with(func(st *SessionState) error {
				alive = st.session.IsAlive()
				return nil
			}); perr != nil {
				reason = "poisoned"
				return
			}
			if !alive {
				reason = "exited"
				return
			}
			time.Sleep(idleRecheck)
		}
	}
}
