package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/daviddao/mailtriage/internal/app"
	"github.com/daviddao/mailtriage/internal/config"
	"github.com/daviddao/mailtriage/internal/display"
	"github.com/daviddao/mailtriage/internal/metrics"
)

var (
	watchInterval    time.Duration
	watchMetricsAddr string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Triage unread messages on an interval",
	Long: `Run a triage pass immediately and then every --interval until interrupted.
With --metrics-addr, Prometheus metrics are served at /metrics.`,
	Example: `  mt watch --interval 15m
  mt watch --interval 1h --window 1h --metrics-addr :9090`,
	RunE: func(cmd *cobra.Command, args []string) error {
		applyRunFlags(cmd)
		if cmd.Flags().Changed("interval") {
			cfg.Run.Interval = watchInterval
		}
		if cmd.Flags().Changed("metrics-addr") {
			cfg.Metrics.Addr = watchMetricsAddr
		}
		if err := config.Validate(cfg); err != nil {
			return err
		}
		if cfg.Run.Interval <= 0 {
			return errors.New("run.interval must be positive")
		}

		ctx := cmd.Context()
		a, err := app.New(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		g, gctx := errgroup.WithContext(ctx)
		if cfg.Metrics.Addr != "" {
			g.Go(func() error { return serveMetrics(gctx, cfg.Metrics.Addr) })
		}
		g.Go(func() error {
			ticker := time.NewTicker(cfg.Run.Interval)
			defer ticker.Stop()
			for {
				summary, err := a.Runner.Run(gctx, cfg.Run.Window)
				switch {
				case gctx.Err() != nil:
					return nil
				case err != nil:
					// Listing failures are retried on the next tick.
					logger.Error("Triage run failed", zap.Error(err))
				case jsonOutput:
					if err := writeJSON(cmd, summary); err != nil {
						return err
					}
				case !quietFlag:
					display.Summary(cmd.OutOrStdout(), summary)
				}

				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		})
		return g.Wait()
	},
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Serving metrics", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func init() {
	addRunFlags(watchCmd)
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 15*time.Minute, "Time between runs")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	rootCmd.AddCommand(watchCmd)
}
