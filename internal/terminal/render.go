package terminal

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/user/phantom/internal/vt"
	"github.com/user/phantom/internal/wire"
)

const (
	// DefaultRenderInterval is roughly one frame at 60Hz.
	DefaultRenderInterval = time.Second / 60

	// exitDrainTimeout bounds how long the pump waits for the I/O loop to
	// drain a dead child's output before reporting the exit. A grandchild
	// holding the pty open would otherwise keep the reader alive forever.
	exitDrainTimeout = 500 * time.Millisecond

	// sendTimeout bounds a single event delivery. A consumer that stalls
	// past it loses the event and gets a full frame on the next tick.
	sendTimeout = time.Second
)

// tickResult is what one render tick produced.
type tickResult struct {
	events []wire.Event

	title    *string
	exited   bool
	exitCode *int
}

// tick inspects the session once under the state lock and builds the events
// to send. Events are sent by the caller after the lock is released.
func (s *SessionState) tick(now time.Time) (tickResult, error) {
	var res tickResult
	err := s.with(func(st *SessionState) error {
		hadData := st.hasPtyData
		st.hasPtyData = false

		eng := st.session.Engine()
		if st.needsFullFrame {
			st.needsFullFrame = false
			eng.ResetDamage()
			res.events = append(res.events, wire.NewFullFrame(eng.Screen(), eng.Cursor()))
		} else {
			damage := eng.Damage()
			eng.ResetDamage()
			cursor := eng.Cursor()

			switch {
			case damage.Full:
				res.events = append(res.events, wire.NewFullFrame(eng.Screen(), cursor))
			case len(damage.Lines) > 0:
				rows := damagedRows(damage.Lines, eng.Screen().Rows())
				// A lone damaged cursor row with no new pty bytes is a cursor
				// blink. Skipping it avoids a frame per blink.
				if len(rows) > 0 && !(!hadData && len(rows) == 1 && rows[0] == cursor.Row) {
					res.events = append(res.events, wire.NewDirtyRows(eng.Screen(), rows, cursor))
				}
			}
		}

		title, ok := st.session.Title()
		if ok != st.hasLastTitle || title != st.lastTitle {
			st.lastTitle, st.hasLastTitle = title, ok
			if ok {
				t := title
				res.title = &t
				res.events = append(res.events, wire.TitleChanged{Title: title})
			}
		}

		if eng.HasBell() {
			res.events = append(res.events, wire.Bell{})
		}

		if !st.session.IsAlive() {
			if st.exitSeenAt.IsZero() {
				st.exitSeenAt = now
			}
			if st.readerDone || now.Sub(st.exitSeenAt) >= exitDrainTimeout {
				var code *int
				if c, ok := st.session.ExitCode(); ok {
					code = &c
				}
				res.exited = true
				res.exitCode = code
				res.events = append(res.events, wire.Exited{Code: code})
			}
		}
		return nil
	})
	return res, err
}

// damagedRows returns the unique in-range rows in ascending order.
func damagedRows(lines []vt.LineDamage, rows int) []int {
	out := make([]int, 0, len(lines))
	for _, l := range lines {
		if l.Row >= 0 && l.Row < rows {
			out = append(out, l.Row)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// markStale forces the next tick to send a full frame.
func (s *SessionState) markStale() {
	_ = s.with(func(st *SessionState) error {
		st.needsFullFrame = true
		return nil
	})
}

// pump drives the render loop for one session.
type pump struct {
	id       uint64
	state    *SessionState
	out      chan<- wire.Event
	stop     <-chan struct{}
	interval time.Duration
	recorder Recorder
	logger   *slog.Logger
}

// run ticks until a stop signal, a poisoned lock or the child's exit. It
// closes out on return; it is the only sender.
func (p *pump) run() {
	defer close(p.out)

	log := p.logger.With("session_id", p.id)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			log.Debug("render pump stopped")
			return
		case now := <-ticker.C:
			res, err := p.state.tick(now)
			if err != nil {
				log.Error("session state poisoned", "error", err)
				return
			}
			for _, ev := range res.events {
				if !p.send(ev) {
					return
				}
			}
			if res.title != nil {
				p.record(func(r Recorder) error { return r.SessionTitle(context.Background(), p.id, *res.title) })
			}
			if res.exited {
				p.record(func(r Recorder) error { return r.SessionExited(context.Background(), p.id, res.exitCode) })
				log.Info("session exited", "code", exitCodeAttr(res.exitCode))
				return
			}
		}
	}
}

// send delivers one event. It reports false only when the pump was told to
// stop while waiting; a stalled consumer drops the event instead.
func (p *pump) send(ev wire.Event) bool {
	timer := time.NewTimer(sendTimeout)
	defer timer.Stop()

	select {
	case p.out <- ev:
		return true
	case <-p.stop:
		return false
	case <-timer.C:
		p.logger.Warn("event dropped", "session_id", p.id, "type", ev.Kind())
		p.state.markStale()
		return true
	}
}

func (p *pump) record(fn func(Recorder) error) {
	if p.recorder == nil {
		return
	}
	if err := fn(p.recorder); err != nil {
		p.logger.Warn("record session", "session_id", p.id, "error", err)
	}
}

func exitCodeAttr(code *int) any {
	if code == nil {
		return "signal"
	}
	return *code
}
