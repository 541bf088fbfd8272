package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/autodialer/internal/audit"
	"github.com/zulandar/autodialer/internal/models"
)

func newLogCmd() *cobra.Command {
	var (
		configPath string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "log [session-id]",
		Short: "Show recorded call sessions",
		Long:  "Lists recent call sessions from the audit database, or the call log of one session.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if cfg.Audit.Driver == "" {
				return fmt.Errorf("audit is disabled: set audit.driver in %s", configPath)
			}
			gormDB, err := connectAudit(cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				entries, err := audit.Entries(gormDB, args[0])
				if err != nil {
					return err
				}
				printEntries(out, entries)
				return nil
			}
			sessions, err := audit.Sessions(gormDB, limit)
			if err != nil {
				return err
			}
			printSessions(out, sessions)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "autodialer.yaml", "path to autodialer config file")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum sessions to list")
	return cmd
}

func printSessions(out io.Writer, sessions []models.CallSession) {
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions recorded.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tSTARTED\tSTATUS\tCALLER\tPHONE\tERROR")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.SessionID, s.StartedAt.Format(time.DateTime), s.Status, s.Name, s.Phone, truncate(s.Error, 40))
	}
	w.Flush()
}

func printEntries(out io.Writer, entries []models.CallLogRecord) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No entries recorded.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tTIME\tKIND\tMESSAGE")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.Seq, e.LoggedAt.Format(time.TimeOnly), e.Kind, e.Message)
	}
	w.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
