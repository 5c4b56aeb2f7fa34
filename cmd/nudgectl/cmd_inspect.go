package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sapo-planner/nudge-controller/internal/store"
)

// #region inspect

func newInspectCmd(a *app) *cobra.Command {
	var (
		dbPath    string
		sessionID string
		last      int
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show recorded sessions, passes and dismissals",
		Long: `Without --session, lists the most recent sessions with pass, memo-hit
and dismissal counts. With --session, lists that session's latest passes and
every dismissal.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				dbPath = a.cfg.DB
			}
			if dbPath == "" {
				return fmt.Errorf("no audit db: pass --db or set NUDGES_DB")
			}
			st, err := store.NewStore(dbPath)
			if err != nil {
				return fmt.Errorf("open audit store: %w", err)
			}
			defer st.Close()

			out := cmd.OutOrStdout()
			if sessionID == "" {
				sessions, err := st.ListSessions(last)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(out, sessions)
				}
				printSessions(out, sessions)
				return nil
			}

			passes, err := st.ListPasses(sessionID, last)
			if err != nil {
				return err
			}
			dismissals, err := st.ListDismissals(sessionID)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(out, struct {
					Passes     []store.PassRecord      `json:"passes"`
					Dismissals []store.DismissalRecord `json:"dismissals"`
				}{passes, dismissals})
			}
			printSession(out, passes, dismissals)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite audit db (default: config db)")
	cmd.Flags().StringVar(&sessionID, "session", "", "Session id to expand")
	cmd.Flags().IntVar(&last, "last", 10, "Number of sessions or passes to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

// #endregion

// #region output

func printSessions(w io.Writer, sessions []store.SessionSummary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tSTARTED\tRULES\tPASSES\tMEMO\tDISMISSED")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%d (%s)\t%d\t%d\t%d\n",
			s.SessionID, s.StartedAt.Format(time.RFC3339), s.RuleCount, s.RulesSource,
			s.Passes, s.MemoHits, s.Dismissals)
	}
	tw.Flush()
}

func printSession(w io.Writer, passes []store.PassRecord, dismissals []store.DismissalRecord) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PASS\tAT\tRESULT\tNUDGES\tVISIBLE\tTOOK")
	for _, p := range passes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			p.PassID, p.CreatedAt.Format(time.RFC3339Nano), p.Result, p.NudgeCount, p.VisibleCount, p.Took)
	}
	tw.Flush()

	fmt.Fprintf(w, "\n%d dismissals\n", len(dismissals))
	for _, d := range dismissals {
		fmt.Fprintf(w, "  %s  %s\n", d.CreatedAt.Format(time.RFC3339), d.NudgeID)
	}
}

// #endregion
