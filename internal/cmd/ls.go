package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/user/phantom/internal/db"
)

func newLsCmd(configPath *string) *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list", "history"},
		Short:   "List recorded sessions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if _, err := os.Stat(cfg.DBPath()); errors.Is(err, os.ErrNotExist) {
				fmt.Fprintln(out, "No sessions recorded.")
				return nil
			}
			database, err := db.Open(cmd.Context(), cfg.DBPath())
			if err != nil {
				return err
			}
			defer database.Close()

			sessions, err := database.Sessions().List(cmd.Context(), db.SessionFilter{Status: status, Limit: limit})
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No sessions recorded.")
				return nil
			}
			return printSessions(out, sessions, time.Now())
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only show sessions with this status (running, exited, closed, lost)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of sessions to show (0 for all)")
	return cmd
}

func printSessions(w io.Writer, sessions []*db.Session, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tEXIT\tSTARTED\tDURATION\tTITLE\tCOMMAND")
	for _, s := range sessions {
		exit := "-"
		if s.ExitCode != nil {
			exit = strconv.Itoa(*s.ExitCode)
		}
		end := now
		if s.EndedAt != nil {
			end = *s.EndedAt
		}
		duration := end.Sub(s.CreatedAt).Round(time.Second)
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.SessionID, s.Status, exit,
			humanize.RelTime(s.CreatedAt, now, "ago", "from now"),
			duration, s.Title, s.Command)
	}
	return tw.Flush()
}
