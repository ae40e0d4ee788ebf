// Package pipeline orchestrates one collection run: fetch raw keywords
// from every configured source, deduplicate, enrich with pageview signal
// and synthesized metrics, and persist the batch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/FranksOps/trendhound/internal/enrich"
	"github.com/FranksOps/trendhound/internal/keywords"
	"github.com/FranksOps/trendhound/internal/metrics"
	"github.com/FranksOps/trendhound/internal/report"
	"github.com/FranksOps/trendhound/internal/source"
	"github.com/FranksOps/trendhound/internal/store"
	"github.com/FranksOps/trendhound/pkg/ratelimit"
	"github.com/FranksOps/trendhound/pkg/retry"
)

// LookupClient resolves a keyword to its pageview signal. Satisfied by
// source.PageviewClient; an interface so tests can substitute a fake.
type LookupClient interface {
	Lookup(ctx context.Context, keyword string) (*source.Lookup, error)
}

// Config wires an Orchestrator.
type Config struct {
	Sources []source.Source
	Lookups LookupClient
	Store   store.Store
	Pacer   *ratelimit.Pacer
	Retry   retry.Policy
	// Estimator synthesizes metrics where upstream signal is missing.
	Estimator *enrich.Estimator
	// MaxKeywords caps the deduplicated keyword set per run.
	MaxKeywords int
	// RunBudget bounds the whole run. Past the deadline no new upstream
	// calls are issued; the write phase still completes.
	RunBudget time.Duration
	// EnrichWorkers bounds concurrent pageview lookups.
	EnrichWorkers int
	Logger        *slog.Logger
	Now           func() time.Time
}

// Orchestrator drives one run end to end.
type Orchestrator struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an Orchestrator, applying defaults for unset fields.
func New(cfg Config) (*Orchestrator, error) {
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("pipeline requires at least one source")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("pipeline requires a store")
	}
	if cfg.Estimator == nil {
		cfg.Estimator = enrich.NewEstimator(enrich.DefaultFloor, nil)
	}
	if cfg.MaxKeywords <= 0 {
		cfg.MaxKeywords = 50
	}
	if cfg.EnrichWorkers <= 0 {
		cfg.EnrichWorkers = 3
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Retry.OnRetry == nil {
		cfg.Retry.OnRetry = func(attempt int, err error, delay time.Duration) {
			logger.Warn("fetch attempt failed, backing off",
				"attempt", attempt, "delay", delay, "err", err)
		}
	}
	return &Orchestrator{cfg: cfg, logger: logger}, nil
}

// Run executes one collection run and always returns a report, even on
// failure. The error mirrors report.Error for callers that want to branch.
func (o *Orchestrator) Run(ctx context.Context) (*report.Report, error) {
	start := o.cfg.Now()
	rep := report.New()

	if o.cfg.RunBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.RunBudget)
		defer cancel()
	}

	o.logger.Info("run started", "run_id", rep.RunID, "sources", len(o.cfg.Sources))

	raw, fetchErrs := o.collect(ctx, rep)
	if len(fetchErrs) == len(o.cfg.Sources) {
		err := fmt.Errorf("all sources failed: %w", errors.Join(fetchErrs...))
		rep.Error = err.Error()
		rep.ExecutionTimeSeconds = o.cfg.Now().Sub(start).Seconds()
		o.logger.Error("run failed", "run_id", rep.RunID, "err", err)
		return rep, err
	}

	deduped := keywords.Dedupe(raw)
	if len(deduped) > o.cfg.MaxKeywords {
		deduped = deduped[:o.cfg.MaxKeywords]
	}
	o.logger.Info("keywords collected",
		"raw", len(raw), "deduplicated", len(deduped), "run_id", rep.RunID)

	records := o.enrich(ctx, deduped)

	names := make([]string, len(records))
	for i, r := range records {
		names[i] = r.Keyword
	}
	rep.SetKeywords(names)

	// The write phase runs even when the deadline already expired; records
	// in hand are worth more persisted late than dropped.
	stats, err := o.cfg.Store.Upsert(context.WithoutCancel(ctx), records)
	if err != nil {
		rep.Error = fmt.Sprintf("persist batch: %v", err)
		rep.ExecutionTimeSeconds = o.cfg.Now().Sub(start).Seconds()
		o.logger.Error("run failed", "run_id", rep.RunID, "err", err)
		return rep, fmt.Errorf("persist batch: %w", err)
	}
	metrics.RecordWrite(stats)
	rep.SetDatabase(stats)

	rep.Success = true
	rep.ExecutionTimeSeconds = o.cfg.Now().Sub(start).Seconds()
	o.logger.Info("run complete",
		"run_id", rep.RunID,
		"keywords", rep.KeywordsCount,
		"inserted", len(stats.InsertedKeywords),
		"updated", len(stats.UpdatedKeywords),
		"duration", rep.ExecutionTimeSeconds)
	return rep, nil
}

// collect fetches from every source sequentially, pacing and retrying
// each. A failed source is recorded and skipped; partial data is fine.
func (o *Orchestrator) collect(ctx context.Context, rep *report.Report) ([]source.RawKeyword, []error) {
	var raw []source.RawKeyword
	var fetchErrs []error

	for _, src := range o.cfg.Sources {
		if ctx.Err() != nil {
			fetchErrs = append(fetchErrs, fmt.Errorf("%s: %w", src.Name(), ctx.Err()))
			continue
		}
		if o.cfg.Pacer != nil {
			if err := o.cfg.Pacer.Wait(ctx, src.Name()); err != nil {
				fetchErrs = append(fetchErrs, fmt.Errorf("%s: %w", src.Name(), err))
				continue
			}
		}

		fetchStart := o.cfg.Now()
		items, err := retry.DoValue(ctx, o.cfg.Retry, func(ctx context.Context) ([]source.RawKeyword, error) {
			items, err := src.Fetch(ctx)
			if err != nil && !source.Retryable(err) {
				return nil, retry.Permanent(err)
			}
			return items, err
		})
		metrics.RecordFetch(src.Name(), len(items), o.cfg.Now().Sub(fetchStart), err)

		if err != nil {
			o.logger.Warn("source failed", "source", src.Name(), "err", err)
			fetchErrs = append(fetchErrs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}

		o.logger.Info("source fetched", "source", src.Name(), "keywords", len(items))
		rep.Sources[src.Name()] = len(items)
		raw = append(raw, items...)
	}
	return raw, fetchErrs
}

// enrich turns deduplicated keywords into persistable records. Lookups
// run on a bounded worker group; a lookup failure degrades that keyword
// to synthesized metrics instead of failing the run.
func (o *Orchestrator) enrich(ctx context.Context, deduped []source.RawKeyword) []store.KeywordRecord {
	runDate := o.cfg.Now().UTC().Format("2006-01-02")
	cache := source.NewLookupCache()
	records := make([]store.KeywordRecord, len(deduped))

	var g errgroup.Group
	g.SetLimit(o.cfg.EnrichWorkers)

	// The estimator's rand source is not goroutine safe; estimation is
	// cheap relative to the lookups, so it runs serialized.
	var estMu sync.Mutex

	for i, kw := range deduped {
		g.Go(func() error {
			lookup := o.lookup(ctx, cache, kw.Text)
			category := enrich.Categorize(kw.Text)

			estMu.Lock()
			m := o.cfg.Estimator.Estimate(kw.Text, lookup, kw.Position)
			cpc := enrich.EstimateCPC(category, o.cfg.Estimator.Rand)
			estMu.Unlock()

			prov := store.Provenance{
				RunDate:         runDate,
				Trends:          strings.HasPrefix(kw.Source, "trends:"),
				EstimatedVolume: m.EstimatedVolume,
				EstimatedChange: m.EstimatedChange,
			}
			if lookup != nil {
				prov.Wikimedia = &store.WikimediaSignal{
					PageExists: lookup.PageExists,
					Title:      lookup.Title,
					Language:   lookup.Language,
					Views30d:   lookup.Views30d,
					Daily:      lookup.Daily,
				}
			}
			if m.EstimatedVolume {
				metrics.EstimatedMetrics.WithLabelValues("volume").Inc()
			}
			if m.EstimatedChange {
				metrics.EstimatedMetrics.WithLabelValues("change").Inc()
			}

			records[i] = store.KeywordRecord{
				Keyword:       kw.Text,
				SearchVolume:  m.SearchVolume,
				Trend:         string(m.Trend),
				ChangePercent: m.ChangePercent,
				Category:      string(category),
				Difficulty:    string(enrich.EstimateDifficulty(kw.Text)),
				CPC:           cpc,
				Source:        kw.Source,
				Sources:       prov,
			}
			return nil
		})
	}
	_ = g.Wait()
	return records
}

// lookup resolves pageview signal through the run cache. Returns nil when
// the client is unset, the budget is spent, or the upstream fails.
func (o *Orchestrator) lookup(ctx context.Context, cache *source.LookupCache, keyword string) *source.Lookup {
	if o.cfg.Lookups == nil {
		return nil
	}
	if l, ok := cache.Get(keyword); ok {
		return l
	}
	if ctx.Err() != nil {
		return nil
	}

	l, err := o.cfg.Lookups.Lookup(ctx, keyword)
	if err != nil {
		o.logger.Warn("pageview lookup failed", "keyword", keyword, "err", err)
		return nil
	}
	cache.Put(keyword, l)
	return l
}
