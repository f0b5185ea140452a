package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-distillo/pkg/history"
)

var historyFlags struct {
	limit int
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recently mixed drinks",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyFlags.limit, "limit", "n", 20, "Number of mixes to show (0 for all)")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := cfg.HistoryPath
	if path == "" {
		if path, err = history.DefaultPath(); err != nil {
			return err
		}
	}
	store, err := history.NewJSONStore(path)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	sessions, err := store.List()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No drinks mixed yet.")
		return nil
	}
	if historyFlags.limit > 0 && len(sessions) > historyFlags.limit {
		sessions = sessions[:historyFlags.limit]
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ENDED\tRECIPE\tOUTCOME\tSTEPS\tDURATION\tREASON")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			s.EndedAt.Local().Format("2006-01-02 15:04"),
			s.Recipe,
			s.Outcome,
			s.StepsCompleted, s.Steps,
			s.Duration().Round(time.Second),
			s.Reason,
		)
	}
	return w.Flush()
}
