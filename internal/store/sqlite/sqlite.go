package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/FranksOps/trendhound/internal/store"
)

// ensure sqliteStore implements store.Store
var _ store.Store = (*sqliteStore)(nil)

// sqliteStore mirrors the Postgres store's semantics on a local file or
// in-memory database. Used for development runs and as the persistence
// fixture in tests.
type sqliteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS trending_keywords (
	keyword TEXT PRIMARY KEY,
	search_volume INTEGER NOT NULL,
	trend TEXT NOT NULL,
	change_percent REAL NOT NULL,
	category TEXT NOT NULL,
	difficulty TEXT NOT NULL,
	cpc REAL NOT NULL,
	source TEXT,
	sources TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
`

const upsertSQL = `
INSERT INTO trending_keywords (
	keyword, search_volume, trend, change_percent, category, difficulty, cpc, source, sources, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (keyword)
DO UPDATE SET
	search_volume = excluded.search_volume,
	trend = excluded.trend,
	change_percent = excluded.change_percent,
	category = excluded.category,
	difficulty = excluded.difficulty,
	cpc = excluded.cpc,
	source = excluded.source,
	sources = excluded.sources,
	updated_at = excluded.updated_at
`

const insertAbsentSQL = `
INSERT INTO trending_keywords (
	keyword, search_volume, trend, change_percent, category, difficulty, cpc, source, sources, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (keyword) DO NOTHING
`

// New creates a SQLite-backed store.Store.
func New(dsn string, logger *slog.Logger) (store.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return &sqliteStore{db: db, logger: logger}, nil
}

func (s *sqliteStore) Upsert(ctx context.Context, records []store.KeywordRecord) (store.UpsertStats, error) {
	var stats store.UpsertStats
	if len(records) == 0 {
		return stats, nil
	}

	existing, err := s.existingKeywords(ctx, records)
	if err != nil {
		return stats, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("%w: begin: %v", store.ErrUnavailable, err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	for _, r := range records {
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

		_, err = tx.ExecContext(ctx, upsertSQL,
			r.Keyword, r.SearchVolume, r.Trend, r.ChangePercent,
			r.Category, r.Difficulty, r.CPC, r.Source,
			string(sourcesJSON), createdAt, updatedAt,
		)
		if err != nil {
			stats.ErrorCount++
			s.logger.Warn("failed to upsert keyword", "keyword", r.Keyword, "err", err)
			continue
		}

		stats.ProcessedCount++
		if existing[r.Keyword] {
			stats.UpdatedKeywords = append(stats.UpdatedKeywords, r.Keyword)
		} else {
			stats.InsertedKeywords = append(stats.InsertedKeywords, r.Keyword)
		}
	}

	if err := tx.Commit(); err != nil {
		return store.UpsertStats{}, fmt.Errorf("%w: commit: %v", store.ErrUnavailable, err)
	}

	s.verify(ctx, &stats)
	return stats, nil
}

func (s *sqliteStore) InsertIfAbsent(ctx context.Context, records []store.KeywordRecord) (store.UpsertStats, error) {
	var stats store.UpsertStats
	if len(records) == 0 {
		return stats, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("%w: begin: %v", store.ErrUnavailable, err)
	}
	defer tx.Rollback()

	for _, r := range records {
		sourcesJSON, err := json.Marshal(r.Sources)
		if err != nil {
			stats.ErrorCount++
			continue
		}

		res, err := tx.ExecContext(ctx, insertAbsentSQL,
			r.Keyword, r.SearchVolume, r.Trend, r.ChangePercent,
			r.Category, r.Difficulty, r.CPC, r.Source,
			string(sourcesJSON), r.CreatedAt, r.UpdatedAt,
		)
		if err != nil {
			stats.ErrorCount++
			s.logger.Warn("failed to insert keyword", "keyword", r.Keyword, "err", err)
			continue
		}

		if affected, _ := res.RowsAffected(); affected > 0 {
			stats.ProcessedCount++
			stats.InsertedKeywords = append(stats.InsertedKeywords, r.Keyword)
		}
	}

	if err := tx.Commit(); err != nil {
		return store.UpsertStats{}, fmt.Errorf("%w: commit: %v", store.ErrUnavailable, err)
	}
	return stats, nil
}

func (s *sqliteStore) existingKeywords(ctx context.Context, records []store.KeywordRecord) (map[string]bool, error) {
	placeholders := make([]string, len(records))
	args := make([]any, len(records))
	for i, r := range records {
		placeholders[i] = "?"
		args[i] = r.Keyword
	}

	query := `SELECT keyword FROM trending_keywords WHERE keyword IN (` + strings.Join(placeholders, ",") + `)`
	rows, err := s.db.QueryContext(ctx, query, args...)
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

func (s *sqliteStore) verify(ctx context.Context, stats *store.UpsertStats) {
	sample := append(append([]string{}, stats.InsertedKeywords...), stats.UpdatedKeywords...)
	if len(sample) == 0 {
		return
	}
	if len(sample) > store.VerifySampleSize {
		sample = sample[:store.VerifySampleSize]
	}
	stats.SampledCount = len(sample)

	placeholders := make([]string, len(sample))
	args := make([]any, len(sample))
	for i, k := range sample {
		placeholders[i] = "?"
		args[i] = k
	}

	var count int
	query := `SELECT COUNT(*) FROM trending_keywords WHERE keyword IN (` + strings.Join(placeholders, ",") + `)`
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		s.logger.Warn("verification query failed", "err", err)
		return
	}
	stats.VerifiedCount = count
}

func (s *sqliteStore) Query(ctx context.Context, filter store.Filter) ([]*store.KeywordRecord, error) {
	query := `SELECT keyword, search_volume, trend, change_percent, category, difficulty, cpc, source, sources, created_at, updated_at FROM trending_keywords WHERE 1=1`
	args := []any{}

	if filter.Keyword != "" {
		query += ` AND keyword = ?`
		args = append(args, filter.Keyword)
	}
	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, filter.Category)
	}
	if filter.Trend != "" {
		query += ` AND trend = ?`
		args = append(args, filter.Trend)
	}
	if filter.Since != nil {
		query += ` AND updated_at >= ?`
		args = append(args, *filter.Since)
	}

	query += ` ORDER BY updated_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", store.ErrUnavailable, err)
	}
	defer rows.Close()

	var results []*store.KeywordRecord
	for rows.Next() {
		var r store.KeywordRecord
		var sourcesJSON string

		err := rows.Scan(
			&r.Keyword, &r.SearchVolume, &r.Trend, &r.ChangePercent, &r.Category,
			&r.Difficulty, &r.CPC, &r.Source, &sourcesJSON, &r.CreatedAt, &r.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if err := json.Unmarshal([]byte(sourcesJSON), &r.Sources); err != nil {
			return nil, fmt.Errorf("decode provenance: %w", err)
		}
		results = append(results, &r)
	}
	return results, rows.Err()
}

func (s *sqliteStore) PruneOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-age)
	res, err := s.db.ExecContext(ctx, `DELETE FROM trending_keywords WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: prune: %v", store.ErrUnavailable, err)
	}
	deleted, _ := res.RowsAffected()
	if deleted > 0 {
		s.logger.Info("pruned stale keywords", "deleted", deleted, "cutoff", cutoff)
	}
	return deleted, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
