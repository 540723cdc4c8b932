package cmd

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/user/phantom/internal/api"
	"github.com/user/phantom/internal/config"
	"github.com/user/phantom/internal/db"
	"github.com/user/phantom/internal/hub"
	"github.com/user/phantom/internal/profiles"
	"github.com/user/phantom/internal/server"
	"github.com/user/phantom/internal/terminal"
)

func newServeCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve terminal sessions over WebSocket and HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if err := cfg.ApplyFlags(cmd.Flags()); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if _, err := cfg.EnsureToken(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", cfg.Port))
			if err != nil {
				return err
			}
			return runServe(ctx, cfg, ln, cmd.OutOrStdout(), os.Stderr)
		},
	}
	config.Default().BindFlags(cmd.Flags())
	return cmd
}

// runServe owns ln and serves until ctx is done. Only one server may use a
// data directory at a time.
func runServe(ctx context.Context, cfg *config.Config, ln net.Listener, out, logOut io.Writer) error {
	defer ln.Close()

	level, err := cfg.Level()
	if err != nil {
		return err
	}
	logger := newLogger(logOut, level)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock data dir: %w", err)
	}
	if !locked {
		return fmt.Errorf("another phantom server is already using %s", cfg.DataDir)
	}
	defer lock.Unlock()

	database, err := db.Open(ctx, cfg.DBPath())
	if err != nil {
		return err
	}
	defer database.Close()

	repo := database.Sessions()
	if n, err := repo.MarkLost(ctx); err != nil {
		return err
	} else if n > 0 {
		logger.Warn("sessions from a previous run marked lost", "count", n)
	}
	if cfg.HistoryRetention > 0 {
		n, err := repo.Prune(ctx, time.Now().Add(-cfg.HistoryRetention))
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info("pruned session history", "count", n)
		}
	}

	reg, err := profiles.NewRegistry(cfg.ProfilesDir)
	if err != nil {
		return fmt.Errorf("load profiles: %w", err)
	}
	reg.SetDefaults(profiles.Defaults{
		Shell:   cfg.Shell,
		Cols:    cfg.Cols,
		Rows:    cfg.Rows,
		Sandbox: cfg.Sandbox,
	})

	svc := terminal.NewService(terminal.Config{
		RenderInterval: cfg.RenderInterval,
		Recorder:       db.NewRecorder(repo),
		Logger:         logger,
	})

	h := hub.New(cfg.Token, svc, reg, logger)
	hubCtx, cancelHub := context.WithCancel(context.Background())
	go h.Run(hubCtx)

	srv := server.New(cfg, h, api.NewRouter(database.SQL(), svc, h, reg, cfg.Token), logger)

	fmt.Fprintf(out, "\nphantom running at http://localhost:%d?token=%s\n\n", portOf(ln, cfg.Port), cfg.Token)

	err = srv.Serve(ctx, ln)

	svc.Shutdown()
	h.WaitForwarders()
	cancelHub()
	return err
}

func portOf(ln net.Listener, fallback int) int {
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return fallback
}
