package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/hurdle/internal/artifacts"
	"github.com/xkilldash9x/hurdle/internal/browser"
	"github.com/xkilldash9x/hurdle/internal/browser/stealth"
	"github.com/xkilldash9x/hurdle/internal/challenge"
	"github.com/xkilldash9x/hurdle/internal/config"
	"github.com/xkilldash9x/hurdle/internal/extract"
	"github.com/xkilldash9x/hurdle/internal/manual"
	"github.com/xkilldash9x/hurdle/internal/observability"
	"github.com/xkilldash9x/hurdle/internal/results"
	"github.com/xkilldash9x/hurdle/internal/scrape"
	"github.com/xkilldash9x/hurdle/internal/store"
)

// scrapeFlagKeys maps scrape flags to the config keys they override.
var scrapeFlagKeys = map[string]string{
	"output":      "output.path",
	"max-records": "output.max_records",
	"headless":    "browser.headless",
	"proxy":       "browser.proxies",
	"concurrency": "browser.concurrency",
	"manual":      "manual.mode",
	"query":       "search.query",
}

// newScrapeCmd creates and configures the `scrape` command.
func newScrapeCmd(a *app) *cobra.Command {
	scrapeCmd := &cobra.Command{
		Use:   "scrape [urls...]",
		Short: "Visits each URL, clears any challenges and extracts listing records",
		Args:  cobra.MinimumNArgs(1),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Flags must be bound before the root hook unmarshals the config.
			for name, key := range scrapeFlagKeys {
				if err := a.v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
					return err
				}
			}
			return cmd.Root().PersistentPreRunE(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			mgr := browser.NewManager(a.cfg.Browser(), logger)
			defer mgr.Close()
			opener := scrape.OpenerFunc(func(ctx context.Context, p stealth.Profile, proxy string) (scrape.Page, error) {
				page, err := mgr.Open(ctx, p, proxy)
				if err != nil {
					// Avoid handing back a typed nil.
					return nil, err
				}
				return page, nil
			})

			report, err := runScrape(ctx, a.cfg, args, opener, cmd.InOrStdin(), cmd.OutOrStdout(), logger)
			if report != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "\nRun %s: %d targets, %d resolved, %d exhausted, %d records written to %s\n",
					report.RunID, report.Summary["targets"], report.Summary["resolved"]+report.Summary["manual_resolved"],
					report.Summary["exhausted"], len(report.Records), a.cfg.Output().Path)
			}
			if errors.Is(err, context.Canceled) {
				return fmt.Errorf("scrape aborted by user signal")
			}
			return err
		},
	}

	scrapeCmd.Flags().StringP("output", "o", "", "Output file for extracted records. (Overrides config/env)")
	scrapeCmd.Flags().Int("max-records", 0, "Maximum number of records to keep across the run. (Overrides config/env)")
	scrapeCmd.Flags().Bool("headless", false, "Run browsers without a window. (Overrides config/env)")
	scrapeCmd.Flags().StringArray("proxy", nil, "Proxy endpoint, scheme://[user:pass@]host:port. Repeat to rotate. (Overrides config/env)")
	scrapeCmd.Flags().IntP("concurrency", "j", 0, "Number of concurrent browser sessions. (Overrides config/env)")
	scrapeCmd.Flags().String("manual", "", "Manual fallback mode: none, console or http. (Overrides config/env)")
	scrapeCmd.Flags().StringP("query", "q", "", "Search each target for this place, e.g. \"Austin, TX\". (Overrides config/env)")
	return scrapeCmd
}

// runScrape wires the engine from cfg and runs it over targets. Operator
// front ends run alongside the scrape and stop when it does. The report is
// written even when the run is interrupted.
func runScrape(ctx context.Context, cfg config.Interface, targets []string, opener scrape.Opener, in io.Reader, out io.Writer, logger *zap.Logger) (*results.Report, error) {
	shots, err := artifacts.NewDir(cfg.Artifacts().Dir, logger)
	if err != nil {
		return nil, err
	}

	runCtx, stopServices := context.WithCancel(ctx)
	defer stopServices()
	services, runCtx := errgroup.WithContext(runCtx)

	sinks := challenge.MultiSink{challenge.NewLogSink(logger)}
	var st *store.Store
	if url := cfg.Database().URL; url != "" {
		var closeStore func()
		st, closeStore, err = connectStore(ctx, url, logger)
		if err != nil {
			return nil, err
		}
		defer closeStore()
		if err := st.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		sink := store.NewPostgresSink(st, 0, logger)
		sink.Start(ctx)
		defer func() {
			sink.Close()
			if n := sink.Dropped(); n > 0 {
				logger.Warn("Some challenge events were not persisted", zap.Int64("dropped", n))
			}
		}()
		sinks = append(sinks, sink)
	}

	cc := cfg.Challenge()
	detector := challenge.NewDetector(logger, cc.AmbiguityThreshold)
	oracle := challenge.NewOracle(detector, cc.PollInterval, cc.SuccessMarkers, logger)
	orchOpts := []challenge.Option{
		challenge.WithSink(sinks),
		challenge.WithScreenshotStore(shots),
	}
	if gw := startOperator(runCtx, services, cfg.Manual(), in, out, logger); gw != nil {
		orchOpts = append(orchOpts, challenge.WithGateway(gw))
	}
	orch, err := challenge.NewOrchestrator(detector, oracle, logger, orchOpts...)
	if err != nil {
		return nil, err
	}

	maxRecords := cfg.Output().MaxRecords
	runner, err := scrape.New(scrape.ConfigFrom(cfg), opener, orch,
		extract.New(maxRecords, logger), results.NewCollector(maxRecords, logger), logger,
		scrape.WithScreenshots(shots))
	if err != nil {
		return nil, err
	}

	report, runErr := runner.Run(runCtx, targets)
	stopServices()
	if err := services.Wait(); err != nil {
		logger.Error("Operator front end failed", zap.Error(err))
		if runErr == nil {
			runErr = err
		}
	}

	if err := results.WriteFile(cfg.Output().Path, report, cfg.Output().Pretty); err != nil {
		return report, err
	}
	if st != nil {
		persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := st.PersistReport(persistCtx, report); err != nil {
			logger.Error("Failed to persist run history", zap.Error(err))
		}
	}
	if runErr != nil && ctx.Err() != nil {
		return report, ctx.Err()
	}
	return report, runErr
}

// startOperator starts the configured manual front end in g and returns its
// gateway, or nil when manual fallback is disabled.
func startOperator(ctx context.Context, g *errgroup.Group, mc config.ManualConfig, in io.Reader, out io.Writer, logger *zap.Logger) *manual.Gateway {
	switch strings.ToLower(strings.TrimSpace(mc.Mode)) {
	case config.ManualModeConsole:
		gw := manual.NewGateway(mc.WaitTimeout, logger)
		op := manual.NewConsoleOperator(gw, in, out, logger)
		g.Go(func() error {
			if err := op.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
		return gw
	case config.ManualModeHTTP:
		gw := manual.NewGateway(mc.WaitTimeout, logger)
		srv := manual.NewServer(mc.ListenAddr, gw, logger)
		g.Go(func() error { return srv.Start(ctx) })
		return gw
	default:
		return nil
	}
}

// connectStore opens a pool for url and wraps it in a store. The returned
// func closes the pool.
func connectStore(ctx context.Context, url string, logger *zap.Logger) (*store.Store, func(), error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	st, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return st, pool.Close, nil
}
