package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

func newEvaluateCmd(root *rootFlags) *cobra.Command {
	var (
		daysBack   int
		limit      int
		assetID    string
		playbookID string
		dryRun     bool
		debug      bool
		windowBars int
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run one settlement batch and print the result as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, root)
			if err != nil {
				return err
			}
			defer a.close()

			job, err := a.newJob()
			if err != nil {
				return err
			}

			params := a.defaultParams()
			if cmd.Flags().Changed("days-back") {
				params.DaysBack = daysBack
			}
			if cmd.Flags().Changed("limit") {
				params.Limit = limit
			}
			params.AssetID = assetID
			params.PlaybookID = playbookID
			params.DryRun = dryRun
			params.Debug = debug
			params.WindowBars = windowBars

			res, err := job.Run(ctx, "cli", params)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if debug {
				return enc.Encode(res)
			}
			return enc.Encode(map[string]any{
				"metrics":    res.Metrics,
				"processed":  res.Processed,
				"dryRun":     res.DryRun,
				"topReasons": res.TopReasons,
				"inserted":   res.Inserted,
				"updated":    res.Updated,
				"unchanged":  res.Unchanged,
			})
		},
	}

	cmd.Flags().IntVar(&daysBack, "days-back", 30, "Snapshot lookback in days")
	cmd.Flags().IntVar(&limit, "limit", 200, "Maximum candidates per batch (max 500)")
	cmd.Flags().StringVar(&assetID, "asset", "", "Only settle setups of this asset (GOLD matches gold aliases)")
	cmd.Flags().StringVar(&playbookID, "playbook", "", "Only settle setups of this playbook or family")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Evaluate without persisting verdicts")
	cmd.Flags().BoolVar(&debug, "debug", false, "Print the full batch result including selection diagnostics")
	cmd.Flags().IntVar(&windowBars, "window-bars", 0, "Override the evaluation window (0 uses config)")
	return cmd
}
