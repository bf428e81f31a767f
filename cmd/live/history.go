package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cartridge/live/internal/history"
)

var (
	historyLimit   int
	historyReloads bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent episodes or reloads from the history database",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of rows")
	historyCmd.Flags().BoolVar(&historyReloads, "reloads", false, "Show reload attempts instead of episodes")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.HistoryDB == "" {
		return fmt.Errorf("history-db is required")
	}
	store, err := history.NewSQLiteStore(cfg.HistoryDB)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	if historyReloads {
		reloads, err := store.RecentReloads(ctx, historyLimit)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "AT\tOUTCOME\tCHECKPOINT\tVERSION\tERROR")
		for _, r := range reloads {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", r.At.Format(time.RFC3339), r.Outcome, r.Checkpoint, r.Version, r.Error)
		}
		return w.Flush()
	}

	episodes, err := store.RecentEpisodes(ctx, historyLimit)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "ENDED\tMODE\tSTEPS\tAVG REWARD\tREASON\tCHECKPOINT")
	for _, e := range episodes {
		fmt.Fprintf(w, "%s\t%s\t%d\t%.6f\t%s\t%s\n", e.EndedAt.Format(time.RFC3339), e.Mode, e.Steps, e.AverageReward, e.Reason, e.Checkpoint)
	}
	return w.Flush()
}
