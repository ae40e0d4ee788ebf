// Package backfill seeds the keyword table with historical top articles,
// one month-aggregate batch at a time. Historical rows never overwrite
// current data; the store's insert-if-absent path guarantees that.
package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/FranksOps/trendhound/internal/enrich"
	"github.com/FranksOps/trendhound/internal/keywords"
	"github.com/FranksOps/trendhound/internal/metrics"
	"github.com/FranksOps/trendhound/internal/source"
	"github.com/FranksOps/trendhound/internal/store"
	"github.com/FranksOps/trendhound/pkg/httpclient"
	"github.com/FranksOps/trendhound/pkg/ratelimit"
	"github.com/FranksOps/trendhound/pkg/useragent"
)

// Config wires a backfill Runner.
type Config struct {
	// Years is how far back to walk, in whole years from the current month.
	Years int
	// Languages selects the wiki editions to pull month-aggregate feeds from.
	Languages []string
	Store     store.Store
	Estimator *enrich.Estimator
	BaseURL   string
	Client    *httpclient.Client
	Agents    *useragent.Pool
	Pacer     *ratelimit.Pacer
	Logger    *slog.Logger
	Now       func() time.Time
}

// Stats summarizes a backfill sweep.
type Stats struct {
	MonthsProcessed int
	Inserted        int
	Errors          int
}

// Runner walks historical months and inserts their top keywords.
type Runner struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Runner, applying defaults for unset fields.
func New(cfg Config) (*Runner, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("backfill requires a store")
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"en"}
	}
	if cfg.Years <= 0 {
		cfg.Years = 1
	}
	if cfg.Estimator == nil {
		cfg.Estimator = enrich.NewEstimator(enrich.DefaultFloor, nil)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{cfg: cfg, logger: logger}, nil
}

// Run walks month by month from the previous month back cfg.Years years,
// fetching each month's top articles per language and inserting the ones
// not already present. A failed month is counted and skipped.
func (r *Runner) Run(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	now := r.cfg.Now().UTC()
	// Current month's aggregate is incomplete; start at the previous one.
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	oldest := month.AddDate(-r.cfg.Years, 0, 0)

	for ; !month.Before(oldest); month = month.AddDate(0, -1, 0) {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		inserted, err := r.runMonth(ctx, month)
		if err != nil {
			stats.Errors++
			r.logger.Warn("backfill month failed", "month", month.Format("2006-01"), "err", err)
			continue
		}
		stats.MonthsProcessed++
		stats.Inserted += inserted
		r.logger.Info("backfill month complete",
			"month", month.Format("2006-01"), "inserted", inserted)
	}

	r.logger.Info("backfill complete",
		"months", stats.MonthsProcessed, "inserted", stats.Inserted, "errors", stats.Errors)
	return stats, nil
}

func (r *Runner) runMonth(ctx context.Context, month time.Time) (int, error) {
	var raw []source.RawKeyword

	for _, lang := range r.cfg.Languages {
		src, err := source.NewTopSource(source.TopConfig{
			BaseURL:  r.cfg.BaseURL,
			Language: lang,
			Date:     month,
			Monthly:  true,
			Client:   r.cfg.Client,
			Agents:   r.cfg.Agents,
			Pacer:    r.cfg.Pacer,
			Logger:   r.logger,
			Now:      r.cfg.Now,
		})
		if err != nil {
			return 0, err
		}

		fetchStart := r.cfg.Now()
		items, err := src.Fetch(ctx)
		metrics.RecordFetch(src.Name(), len(items), r.cfg.Now().Sub(fetchStart), err)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", src.Name(), err)
		}
		raw = append(raw, items...)
	}

	deduped := keywords.Dedupe(raw)
	if len(deduped) == 0 {
		return 0, nil
	}

	// Stamp the records with the period's end so prune and freshness
	// queries treat them as the historical data they are.
	periodEnd := month.AddDate(0, 1, 0).Add(-time.Second)
	records := make([]store.KeywordRecord, 0, len(deduped))

	for _, kw := range deduped {
		m := r.cfg.Estimator.Estimate(kw.Text, nil, kw.Position)
		category := enrich.Categorize(kw.Text)

		records = append(records, store.KeywordRecord{
			Keyword:       kw.Text,
			SearchVolume:  m.SearchVolume,
			Trend:         string(m.Trend),
			ChangePercent: m.ChangePercent,
			Category:      string(category),
			Difficulty:    string(enrich.EstimateDifficulty(kw.Text)),
			CPC:           enrich.EstimateCPC(category, r.cfg.Estimator.Rand),
			Source:        kw.Source,
			Sources: store.Provenance{
				Historical:      true,
				Year:            month.Year(),
				Month:           int(month.Month()),
				EstimatedVolume: m.EstimatedVolume,
				EstimatedChange: m.EstimatedChange,
			},
			CreatedAt: periodEnd,
			UpdatedAt: periodEnd,
		})
	}

	written, err := r.cfg.Store.InsertIfAbsent(ctx, records)
	if err != nil {
		return 0, fmt.Errorf("insert month batch: %w", err)
	}
	metrics.RecordWrite(written)
	return len(written.InsertedKeywords), nil
}
