package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/FranksOps/trendhound/internal/backfill"
	"github.com/FranksOps/trendhound/internal/config"
	"github.com/FranksOps/trendhound/internal/enrich"
	"github.com/FranksOps/trendhound/internal/fingerprint"
	"github.com/FranksOps/trendhound/internal/metrics"
	"github.com/FranksOps/trendhound/internal/pipeline"
	"github.com/FranksOps/trendhound/internal/report"
	"github.com/FranksOps/trendhound/internal/source"
	"github.com/FranksOps/trendhound/internal/store"
	"github.com/FranksOps/trendhound/internal/store/jsonstore"
	"github.com/FranksOps/trendhound/internal/store/postgres"
	"github.com/FranksOps/trendhound/internal/store/sqlite"
	"github.com/FranksOps/trendhound/pkg/httpclient"
	"github.com/FranksOps/trendhound/pkg/ratelimit"
	"github.com/FranksOps/trendhound/pkg/useragent"
)

var (
	logLevel   string
	jsonReport bool
)

func main() {
	root := &cobra.Command{
		Use:           "trendhound",
		Short:         "Collects trending keywords and reconciles them into a keyword table",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&jsonReport, "json", false, "emit the run report as JSON")

	root.AddCommand(runCmd(), backfillCmd(), pruneCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Execute one collection run",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			st, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			var metricsSrv *metrics.Server
			if cfg.Metrics.Enabled {
				metricsSrv = metrics.Start(cfg.Metrics.Port)
				defer metricsSrv.Stop(context.Background())
			}

			orch, err := buildPipeline(cfg, st, logger)
			if err != nil {
				return err
			}

			rep, runErr := orch.Run(cmd.Context())
			if err := writeReport(rep); err != nil {
				return err
			}
			return runErr
		},
	}
}

func backfillCmd() *cobra.Command {
	var years int
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Seed the keyword table from historical monthly top articles",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			st, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			client, agents, pacer, err := buildTransport(cfg, logger)
			if err != nil {
				return err
			}

			runner, err := backfill.New(backfill.Config{
				Years:     years,
				Languages: cfg.Sources.WikiLanguages,
				Store:     st,
				Estimator: enrich.NewEstimator(cfg.Estimator.VolumeFloor, nil),
				Client:    client,
				Agents:    agents,
				Pacer:     pacer,
				Logger:    logger,
			})
			if err != nil {
				return err
			}

			stats, err := runner.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("backfill: %d months, %d inserted, %d errors\n",
				stats.MonthsProcessed, stats.Inserted, stats.Errors)
			return nil
		},
	}
	cmd.Flags().IntVar(&years, "years", 1, "how many years back to walk")
	return cmd
}

func pruneCmd() *cobra.Command {
	var maxAge time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete keywords not updated within the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			st, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			deleted, err := st.PruneOlderThan(cmd.Context(), maxAge)
			if err != nil {
				return err
			}
			fmt.Printf("pruned %d keywords older than %s\n", deleted, maxAge)
			return nil
		},
	}
	cmd.Flags().DurationVar(&maxAge, "max-age", 7*24*time.Hour, "retention window")
	return cmd
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Database.Backend {
	case "postgres":
		return postgres.New(ctx, cfg.Database.DSN, logger)
	case "sqlite":
		return sqlite.New(cfg.Database.DSN, logger)
	case "json":
		return jsonstore.New(cfg.Database.DSN)
	default:
		return nil, fmt.Errorf("unknown database backend %q", cfg.Database.Backend)
	}
}

func buildTransport(cfg config.Config, logger *slog.Logger) (*httpclient.Client, *useragent.Pool, *ratelimit.Pacer, error) {
	transport, err := fingerprint.Transport(fingerprint.Profile(cfg.Sources.Fingerprint))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("build transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{Transport: transport})
	if err != nil {
		return nil, nil, nil, err
	}

	agents := useragent.NewPool(nil)
	pacer := ratelimit.NewPacer(cfg.Sources.MinInterval.Std(), 0.2)
	return client, agents, pacer, nil
}

func buildPipeline(cfg config.Config, st store.Store, logger *slog.Logger) (*pipeline.Orchestrator, error) {
	client, agents, pacer, err := buildTransport(cfg, logger)
	if err != nil {
		return nil, err
	}

	var sources []source.Source
	for _, region := range cfg.Sources.TrendsRegions {
		src, err := source.NewTrendsSource(source.TrendsConfig{
			Region: region,
			Client: client,
			Agents: agents,
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	for _, lang := range cfg.Sources.WikiLanguages {
		src, err := source.NewTopSource(source.TopConfig{
			Language: lang,
			Client:   client,
			Agents:   agents,
			Pacer:    pacer,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}

	lookups, err := source.NewPageviewClient(source.WikiConfig{
		Languages: cfg.Sources.WikiLanguages,
		Client:    client,
		Agents:    agents,
		Pacer:     pacer,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	return pipeline.New(pipeline.Config{
		Sources:       sources,
		Lookups:       lookups,
		Store:         st,
		Pacer:         pacer,
		Estimator:     enrich.NewEstimator(cfg.Estimator.VolumeFloor, nil),
		MaxKeywords:   cfg.Pipeline.MaxKeywords,
		RunBudget:     cfg.Pipeline.RunBudget.Std(),
		EnrichWorkers: cfg.Pipeline.EnrichWorkers,
		Logger:        logger,
	})
}

func writeReport(rep *report.Report) error {
	if rep == nil {
		return nil
	}
	if jsonReport {
		return report.WriteJSON(os.Stdout, rep)
	}
	return report.WriteText(os.Stdout, rep)
}
