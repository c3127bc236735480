package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"setup-outcome-lab/internal/metrics"
	"setup-outcome-lab/internal/observability"
	"setup-outcome-lab/internal/server"
	"setup-outcome-lab/internal/settlement"
)

func newServeCmd(root *rootFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP trigger and run batches on the configured interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, root)
			if err != nil {
				return err
			}
			defer a.close()

			job, err := a.newJob()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			srv := server.New(server.Options{
				Addr:    addr,
				Batch:   job,
				Stats:   metrics.NewService(a.stores.outcomes),
				Metrics: observability.HandlerFor(a.registry),
				Logger:  a.logger,
			})

			g, gctx := errgroup.WithContext(ctx)
			g.Go(srv.Start)
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			g.Go(func() error {
				return runScheduler(gctx, a, job)
			})

			err = g.Wait()
			a.logger.Info().Msg("server stopped")
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (default from config)")
	return cmd
}

// runScheduler triggers a batch on every tick until ctx is done. A zero
// interval disables scheduling.
func runScheduler(ctx context.Context, a *app, job *settlement.Job) error {
	interval := a.cfg.Batch.Interval.Duration
	if interval <= 0 {
		a.logger.Info().Msg("batch scheduler disabled")
		return nil
	}
	logger := a.logger.With().Str("component", "scheduler").Logger()
	logger.Info().Dur("interval", interval).Msg("batch scheduler started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			res, err := job.Run(ctx, "scheduler", a.defaultParams())
			switch {
			case errors.Is(err, settlement.ErrBatchInProgress):
				logger.Info().Msg("previous batch still running, skipping tick")
			case err != nil:
				logger.Error().Err(err).Msg("scheduled batch failed")
			default:
				logger.Info().
					Int("processed", res.Processed).
					Int("settled", res.Metrics.Settled()).
					Msg("scheduled batch finished")
			}
		}
	}
}
