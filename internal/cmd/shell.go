package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/user/phantom/internal/profiles"
	"github.com/user/phantom/internal/terminal"
	"github.com/user/phantom/internal/wire"
)

func newShellCmd(configPath *string) *cobra.Command {
	var profile string
	var sandbox bool

	cmd := &cobra.Command{
		Use:   "shell [--profile=<id>] [-- <command> [args...]]",
		Short: "Run an interactive session in this terminal",
		Long: `Run a command in a headless session and paint its screen here.

Without a command the profile's command is used, or the default shell when
no profile is given. The process exits with the child's exit status.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			fd := int(os.Stdin.Fd())
			if !term.IsTerminal(fd) {
				return errors.New("shell needs an interactive terminal")
			}
			cols, rows, err := term.GetSize(fd)
			if err != nil {
				return fmt.Errorf("get terminal size: %w", err)
			}

			reg, err := profiles.NewRegistry(cfg.ProfilesDir)
			if err != nil {
				return fmt.Errorf("load profiles: %w", err)
			}
			reg.SetDefaults(profiles.Defaults{Shell: cfg.Shell, Sandbox: cfg.Sandbox})
			opts, err := reg.Resolve(profiles.Request{Profile: profile, Sandbox: sandbox})
			if err != nil {
				return err
			}
			if len(args) > 0 {
				opts.Command = args
			}
			opts.Cols, opts.Rows = uint16(cols), uint16(rows)

			logger, closeLog, err := shellLogger(cfg.DataDir)
			if err != nil {
				return err
			}
			defer closeLog()

			svc := terminal.NewService(terminal.Config{
				RenderInterval: cfg.RenderInterval,
				Logger:         logger,
			})
			defer svc.Shutdown()

			id, events, err := svc.Create(cmd.Context(), opts)
			if err != nil {
				return err
			}

			state, err := term.MakeRaw(fd)
			if err != nil {
				return fmt.Errorf("set raw mode: %w", err)
			}
			out := termenv.NewOutput(os.Stdout)
			out.AltScreen()
			defer func() {
				out.ExitAltScreen()
				out.ShowCursor()
				term.Restore(fd, state)
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGWINCH)
			defer signal.Stop(sigCh)
			go func() {
				for range sigCh {
					if c, r, err := term.GetSize(fd); err == nil {
						_ = svc.Resize(id, uint16(c), uint16(r))
					}
				}
			}()

			go forwardInput(os.Stdin, func(p []byte) error { return svc.WriteInput(id, p) })

			code, err := paint(newScreen(out), events)
			if err != nil {
				return err
			}
			if code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&profile, "profile", "", "profile to start from")
	cmd.Flags().BoolVar(&sandbox, "sandbox", false, "confine the session to its working directory (macOS)")
	return cmd
}

// paint applies events until the stream ends and returns the child's exit
// code. A child killed by a signal reports 1.
func paint(scr *screen, events <-chan wire.Event) (int, error) {
	code := 1
	for ev := range events {
		if err := scr.apply(ev); err != nil {
			return 1, err
		}
		if exited, ok := ev.(wire.Exited); ok && exited.Code != nil {
			code = *exited.Code
		}
	}
	return code, nil
}

// forwardInput copies r to write until either fails.
func forwardInput(r io.Reader, write func([]byte) error) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if werr := write(buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// shellLogger logs to a file in the data dir so the screen stays clean.
func shellLogger(dataDir string) (*slog.Logger, func(), error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dataDir, "shell.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open shell log: %w", err)
	}
	return newLogger(f, slog.LevelInfo), func() { _ = f.Close() }, nil
}
