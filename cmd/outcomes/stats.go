package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"setup-outcome-lab/internal/metrics"
)

func newStatsCmd(root *rootFlags) *cobra.Command {
	var q metrics.Query

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Aggregate stored verdicts and print the statistics as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, root)
			if err != nil {
				return err
			}
			defer a.close()

			stats, err := metrics.NewService(a.stores.outcomes).Load(ctx, q)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}

	cmd.Flags().IntVar(&q.Days, "days", metrics.DefaultStatsDays, "Evaluation lookback in days")
	cmd.Flags().StringVar(&q.AssetID, "asset", "", "Filter by asset id")
	cmd.Flags().StringVar(&q.PlaybookID, "playbook", "", "Filter by playbook id")
	cmd.Flags().StringVar(&q.EngineVersion, "engine-version", "", "Filter by engine version")
	cmd.Flags().StringVar(&q.Profile, "profile", "", "Filter by profile (default SWING)")
	cmd.Flags().StringVar(&q.Timeframe, "timeframe", "", "Filter by timeframe (default 1D)")
	cmd.Flags().IntVar(&q.Limit, "limit", metrics.DefaultStatsLimit, "Maximum verdicts to aggregate")
	return cmd
}
