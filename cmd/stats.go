package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/hurdle/internal/observability"
	"github.com/xkilldash9x/hurdle/internal/store"
)

// newStatsCmd reports how each strategy has fared in persisted run history.
func newStatsCmd(a *app) *cobra.Command {
	var since time.Duration

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Shows strategy success rates from the attempt history database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			url := a.cfg.Database().URL
			if url == "" {
				return fmt.Errorf("database URL is not configured (HURDLE_DATABASE_URL)")
			}
			ctx := cmd.Context()
			st, closeStore, err := connectStore(ctx, url, observability.GetLogger())
			if err != nil {
				return err
			}
			defer closeStore()

			stats, err := st.StrategyStats(ctx, time.Now().Add(-since))
			if err != nil {
				return err
			}
			return printStats(cmd.OutOrStdout(), stats)
		},
	}

	statsCmd.Flags().DurationVar(&since, "since", 7*24*time.Hour, "How far back to look.")
	return statsCmd
}

func printStats(w io.Writer, stats []store.StrategyStat) error {
	if len(stats) == 0 {
		_, err := fmt.Fprintln(w, "No attempts recorded.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STRATEGY\tKIND\tATTEMPTS\tSUCCESS\tAVG MS")
	for _, s := range stats {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.0f%%\t%.0f\n", s.Strategy, s.Kind, s.Attempts, s.SuccessRate()*100, s.AvgDuration)
	}
	return tw.Flush()
}
