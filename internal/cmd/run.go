package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/user/phantom/internal/profiles"
	"github.com/user/phantom/internal/pty"
	"github.com/user/phantom/internal/sandbox"
	"github.com/user/phantom/internal/wire"
)

const (
	pollInterval = 50 * time.Millisecond
	reapTimeout  = time.Second
	exitDrain    = 500 * time.Millisecond
)

// runResult is the final state of a one-shot session.
type runResult struct {
	frame wire.FullFrame
	title string
	code  *int
}

func newRunCmd(configPath *string) *cobra.Command {
	var profile string
	var cols, rows uint16
	var color bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "run [--profile=<id>] [--cols=N --rows=N] [--color] [-- <command> [args...]]",
		Short: "Run a command headless and print its final screen",
		Long: `Run a command in a headless terminal until it exits, then print the
screen it left behind. The size defaults to this terminal's size when there
is one. The process exits with the child's exit status.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			reg, err := profiles.NewRegistry(cfg.ProfilesDir)
			if err != nil {
				return fmt.Errorf("load profiles: %w", err)
			}
			reg.SetDefaults(profiles.Defaults{Shell: cfg.Shell, Cols: cfg.Cols, Rows: cfg.Rows, Sandbox: cfg.Sandbox})
			opts, err := reg.Resolve(profiles.Request{Profile: profile})
			if err != nil {
				return err
			}
			if len(args) > 0 {
				opts.Command = args
			}
			if c, r, err := term.GetSize(int(os.Stdout.Fd())); err == nil && !cmd.Flags().Changed("cols") && !cmd.Flags().Changed("rows") {
				opts.Cols, opts.Rows = uint16(c), uint16(r)
			}
			if cmd.Flags().Changed("cols") {
				opts.Cols = cols
			}
			if cmd.Flags().Changed("rows") {
				opts.Rows = rows
			}

			popts := pty.Options{
				Shell:   opts.Shell,
				Command: opts.Command,
				Cols:    opts.Cols,
				Rows:    opts.Rows,
				Dir:     opts.WorkingDir,
				Env:     opts.Env,
			}
			if opts.Sandbox {
				argv, err := sandbox.Command(opts.WorkingDir, popts.Argv())
				if err != nil {
					return err
				}
				popts.Command = argv
			}

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			res, err := runOnce(ctx, popts)
			if err != nil {
				return err
			}

			profileOut := termenv.Ascii
			if color {
				profileOut = termenv.TrueColor
			}
			if err := printResult(cmd.OutOrStdout(), res, profileOut); err != nil {
				return err
			}
			switch {
			case res.code == nil:
				return &exitError{code: 1}
			case *res.code != 0:
				return &exitError{code: *res.code}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&profile, "profile", "", "profile to start from")
	cmd.Flags().Uint16Var(&cols, "cols", 80, "terminal columns")
	cmd.Flags().Uint16Var(&rows, "rows", 24, "terminal rows")
	cmd.Flags().BoolVar(&color, "color", false, "print the screen with colors and attributes")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "kill the command after this long (0 waits forever)")
	return cmd
}

// runOnce drives one session with a Multiplexer until its output ends and
// returns the final screen.
func runOnce(ctx context.Context, opts pty.Options) (runResult, error) {
	mux := pty.NewMultiplexer()
	defer mux.CloseAll()

	id, err := mux.Create(opts)
	if err != nil {
		return runResult{}, err
	}
	sess, err := mux.Get(id)
	if err != nil {
		return runResult{}, err
	}

	var drainUntil time.Time
	for done := false; !done; {
		select {
		case <-ctx.Done():
			return runResult{}, ctx.Err()
		default:
		}
		for _, r := range mux.ProcessAll(pollInterval) {
			switch {
			case errors.Is(r.Err, io.EOF), errors.Is(r.Err, pty.ErrIO):
				done = true
			case r.Err != nil:
				return runResult{}, r.Err
			case r.N == 0 && !sess.IsAlive():
				// A grandchild may keep the pty open after the child exits.
				if drainUntil.IsZero() {
					drainUntil = time.Now().Add(exitDrain)
				} else if time.Now().After(drainUntil) {
					done = true
				}
			}
		}
	}

	deadline := time.Now().Add(reapTimeout)
	for sess.IsAlive() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	eng := sess.Engine()
	res := runResult{frame: wire.NewFullFrame(eng.Screen(), eng.Cursor())}
	res.title, _ = sess.Title()
	if code, ok := sess.ExitCode(); ok {
		res.code = &code
	}
	return res, nil
}

func printResult(w io.Writer, res runResult, profile termenv.Profile) error {
	scr := newScreen(termenv.NewOutput(w, termenv.WithProfile(profile)))
	text, err := scr.dump(res.frame)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, text)
	return err
}
