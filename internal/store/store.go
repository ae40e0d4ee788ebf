// Package store defines the keyword record and the persistence contract
// the pipeline writes through.
package store

import (
	"context"
	"errors"
	"time"
)

// Persistence failure taxonomy.
var (
	// ErrUnavailable means the store has no working connection. It aborts
	// the write phase for the batch, not the whole run.
	ErrUnavailable = errors.New("persistence unavailable")
)

// WikimediaSignal is the raw pageview signal recorded in provenance.
type WikimediaSignal struct {
	PageExists bool   `json:"page_exists"`
	Title      string `json:"title,omitempty"`
	Language   string `json:"language,omitempty"`
	Views30d   int    `json:"views_30d"`
	Daily      []int  `json:"daily,omitempty"`
}

// Provenance records which upstreams contributed to a record and whether
// each metric was measured or synthesized. Stored serialized; opaque to
// the storage engine.
type Provenance struct {
	RunDate         string           `json:"run_date,omitempty"`
	Trends          bool             `json:"trends,omitempty"`
	Wikimedia       *WikimediaSignal `json:"wikimedia,omitempty"`
	EstimatedVolume bool             `json:"estimated_volume,omitempty"`
	EstimatedChange bool             `json:"estimated_change,omitempty"`
	Historical      bool             `json:"historical,omitempty"`
	Year            int              `json:"year,omitempty"`
	Month           int              `json:"month,omitempty"`
}

// KeywordRecord is the unit persisted, keyed uniquely by Keyword.
type KeywordRecord struct {
	Keyword       string
	SearchVolume  int
	Trend         string
	ChangePercent float64
	Category      string
	Difficulty    string
	CPC           float64
	Source        string
	Sources       Provenance
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// UpsertStats reports the outcome of one batch write.
type UpsertStats struct {
	ProcessedCount   int
	ErrorCount       int
	InsertedKeywords []string
	UpdatedKeywords  []string
	// VerifiedCount is how many of the sampled keywords a post-commit
	// read-back found present. Detects silent persistence failures.
	VerifiedCount int
	SampledCount  int
}

// Filter selects keyword records for queries.
type Filter struct {
	Keyword  string
	Category string
	Trend    string
	Since    *time.Time
	Limit    int
	Offset   int
}

// Store is the persistence contract. Upsert is transactional per batch
// with one deliberate exception: a row-level failure is counted and
// logged, not fatal, trading strict atomicity for best-effort throughput.
type Store interface {
	// Upsert inserts or updates each record by keyword. On conflict every
	// mutable field is overwritten and UpdatedAt refreshed; CreatedAt is
	// preserved from the original insert.
	Upsert(ctx context.Context, records []KeywordRecord) (UpsertStats, error)
	// InsertIfAbsent writes records without touching existing rows.
	// Backfill uses it so history never overwrites current data.
	InsertIfAbsent(ctx context.Context, records []KeywordRecord) (UpsertStats, error)
	Query(ctx context.Context, filter Filter) ([]*KeywordRecord, error)
	// PruneOlderThan deletes records not updated within age. Housekeeping
	// only; the collection pipeline itself never deletes.
	PruneOlderThan(ctx context.Context, age time.Duration) (int64, error)
	Close() error
}

// VerifySampleSize caps how many written keywords the read-back checks.
const VerifySampleSize = 20
