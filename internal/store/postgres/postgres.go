package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/FranksOps/trendhound/internal/store"
)

// ensure postgresStore implements store.Store
var _ store.Store = (*postgresStore)(nil)

type postgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS trending_keywords (
	keyword TEXT PRIMARY KEY,
	search_volume BIGINT NOT NULL,
	trend TEXT NOT NULL,
	change_percent DOUBLE PRECISION NOT NULL,
	category TEXT NOT NULL,
	difficulty TEXT NOT NULL,
	cpc DOUBLE PRECISION NOT NULL,
	source TEXT,
	sources JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

const upsertSQL = `
INSERT INTO trending_keywords (
	keyword, search_volume, trend, change_percent, category, difficulty, cpc, source, sources, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (keyword)
DO UPDATE SET
	search_volume = EXCLUDED.search_volume,
	trend = EXCLUDED.trend,
	change_percent = EXCLUDED.change_percent,
	category = EXCLUDED.category,
	difficulty = EXCLUDED.difficulty,
	cpc = EXCLUDED.cpc,
	source = EXCLUDED.source,
	sources = EXCLUDED.sources,
	updated_at = EXCLUDED.updated_at
`

const insertAbsentSQL = `
INSERT INTO trending_keywords (
	keyword, search_volume, trend, change_percent, category, difficulty, cpc, source, sources, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (keyword) DO NOTHING
`

// New creates a Postgres-backed store.Store. The connection is verified
// with a round trip before any work begins.
func New(ctx context.Context, dsn string, logger *slog.Logger) (store.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping: %v", store.ErrUnavailable, err)
	}
	logger.Info("database connection established and verified")

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return &postgresStore{pool: pool, logger: logger}, nil
}

func (s *postgresStore) Upsert(ctx context.Context, records []store.KeywordRecord) (store.UpsertStats, error) {
	var stats store.UpsertStats
	if len(records) == 0 {
		return stats, nil
	}

	existing, err := s.existingKeywords(ctx, records)
	if err != nil {
		return stats, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return stats, fmt.Errorf("%w: begin: %v", store.ErrUnavailable, err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()

	for i, r := range records {
		sourcesJSON, err := json.Marshal(r.Sources)
		if err != nil {
			stats.ErrorCount++
			s.logger.Warn("failed to encode provenance", "keyword", r.Keyword, "err", err)
			continue
		}

		createdAt := r.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		updatedAt := r.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = now
		}

		// Savepoint per row: a constraint violation rolls back only the
		// row, keeping the rest of the batch writable.
		inner, err := tx.Begin(ctx)
		if err != nil {
			return stats, fmt.Errorf("%w: savepoint: %v", store.ErrUnavailable, err)
		}

		_, err = inner.Exec(ctx, upsertSQL,
			r.Keyword, r.SearchVolume, r.Trend, r.ChangePercent,
			r.Category, r.Difficulty, r.CPC, r.Source,
			sourcesJSON, createdAt, updatedAt,
		)
		if err != nil {
			_ = inner.Rollback(ctx)
			stats.ErrorCount++
			s.logger.Warn("failed to upsert keyword", "keyword", r.Keyword, "err", err)
			continue
		}
		if err := inner.Commit(ctx); err != nil {
			stats.ErrorCount++
			s.logger.Warn("failed to release savepoint", "keyword", r.Keyword, "err", err)
			continue
		}

		stats.ProcessedCount++
		if existing[r.Keyword] {
			stats.UpdatedKeywords = append(stats.UpdatedKeywords, r.Keyword)
		} else {
			stats.InsertedKeywords = append(stats.InsertedKeywords, r.Keyword)
		}

		if stats.ProcessedCount <= 5 || stats.ProcessedCount%25 == 0 || i == len(records)-1 {
			s.logger.Info("upserted keyword",
				"keyword", r.Keyword,
				"volume", r.SearchVolume,
				"trend", r.Trend,
				"change_percent", r.ChangePercent,
				"progress", fmt.Sprintf("%d/%d", i+1, len(records)))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return store.UpsertStats{}, fmt.Errorf("%w: commit: %v", store.ErrUnavailable, err)
	}

	s.verify(ctx, &stats)

	s.logger.Info("batch write complete",
		"processed", stats.ProcessedCount, "errors", stats.ErrorCount,
		"verified", fmt.Sprintf("%d/%d", stats.VerifiedCount, stats.SampledCount))
	return stats, nil
}

func (s *postgresStore) InsertIfAbsent(ctx context.Context, records []store.KeywordRecord) (store.UpsertStats, error) {
	var stats store.UpsertStats
	if len(records) == 0 {
		return stats, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return stats, fmt.Errorf("%w: begin: %v", store.ErrUnavailable, err)
	}
	defer tx.Rollback(ctx)

	for _, r := range records {
		sourcesJSON, err := json.Marshal(r.Sources)
		if err != nil {
			stats.ErrorCount++
			continue
		}

		inner, err := tx.Begin(ctx)
		if err != nil {
			return stats, fmt.Errorf("%w: savepoint: %v", store.ErrUnavailable, err)
		}

		tag, err := inner.Exec(ctx, insertAbsentSQL,
			r.Keyword, r.SearchVolume, r.Trend, r.ChangePercent,
			r.Category, r.Difficulty, r.CPC, r.Source,
			sourcesJSON, r.CreatedAt, r.UpdatedAt,
		)
		if err != nil {
			_ = inner.Rollback(ctx)
			stats.ErrorCount++
			s.logger.Warn("failed to insert keyword", "keyword", r.Keyword, "err", err)
			continue
		}
		if err := inner.Commit(ctx); err != nil {
			stats.ErrorCount++
			continue
		}

		if tag.RowsAffected() > 0 {
			stats.ProcessedCount++
			stats.InsertedKeywords = append(stats.InsertedKeywords, r.Keyword)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return store.UpsertStats{}, fmt.Errorf("%w: commit: %v", store.ErrUnavailable, err)
	}
	return stats, nil
}

// existingKeywords partitions the batch into inserts and updates before
// the write, since ON CONFLICT hides which branch each row took.
func (s *postgresStore) existingKeywords(ctx context.Context, records []store.KeywordRecord) (map[string]bool, error) {
	kws := make([]string, len(records))
	for i, r := range records {
		kws[i] = r.Keyword
	}

	rows, err := s.pool.Query(ctx, `SELECT keyword FROM trending_keywords WHERE keyword = ANY($1)`, kws)
	if err != nil {
		return nil, fmt.Errorf("%w: existing lookup: %v", store.ErrUnavailable, err)
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan keyword: %w", err)
		}
		existing[k] = true
	}
	return existing, rows.Err()
}

// verify reads back a sample of the written keywords after commit. A
// mismatch is logged, not fatal; the counts land in the run report.
func (s *postgresStore) verify(ctx context.Context, stats *store.UpsertStats) {
	sample := append(append([]string{}, stats.InsertedKeywords...), stats.UpdatedKeywords...)
	if len(sample) == 0 {
		return
	}
	if len(sample) > store.VerifySampleSize {
		sample = sample[:store.VerifySampleSize]
	}
	stats.SampledCount = len(sample)

	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM trending_keywords WHERE keyword = ANY($1)`, sample,
	).Scan(&count)
	if err != nil {
		s.logger.Warn("verification query failed", "err", err)
		return
	}
	stats.VerifiedCount = count
	if count < len(sample) {
		s.logger.Warn("verification found missing keywords", "verified", count, "sampled", len(sample))
	}
}

func (s *postgresStore) Query(ctx context.Context, filter store.Filter) ([]*store.KeywordRecord, error) {
	builder := sq.Select(
		"keyword", "search_volume", "trend", "change_percent", "category",
		"difficulty", "cpc", "source", "sources", "created_at", "updated_at",
	).From("trending_keywords").PlaceholderFormat(sq.Dollar)

	if filter.Keyword != "" {
		builder = builder.Where(sq.Eq{"keyword": filter.Keyword})
	}
	if filter.Category != "" {
		builder = builder.Where(sq.Eq{"category": filter.Category})
	}
	if filter.Trend != "" {
		builder = builder.Where(sq.Eq{"trend": filter.Trend})
	}
	if filter.Since != nil {
		builder = builder.Where(sq.GtOrEq{"updated_at": *filter.Since})
	}

	builder = builder.OrderBy("updated_at DESC")
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", store.ErrUnavailable, err)
	}
	defer rows.Close()

	var results []*store.KeywordRecord
	for rows.Next() {
		var r store.KeywordRecord
		var sourcesJSON []byte

		err := rows.Scan(
			&r.Keyword, &r.SearchVolume, &r.Trend, &r.ChangePercent, &r.Category,
			&r.Difficulty, &r.CPC, &r.Source, &sourcesJSON, &r.CreatedAt, &r.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if err := json.Unmarshal(sourcesJSON, &r.Sources); err != nil {
			return nil, fmt.Errorf("decode provenance: %w", err)
		}
		results = append(results, &r)
	}
	return results, rows.Err()
}

func (s *postgresStore) PruneOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-age)
	tag, err := s.pool.Exec(ctx, `DELETE FROM trending_keywords WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: prune: %v", store.ErrUnavailable, err)
	}
	deleted := tag.RowsAffected()
	if deleted > 0 {
		s.logger.Info("pruned stale keywords", "deleted", deleted, "cutoff", cutoff)
	}
	return deleted, nil
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}
