package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/FranksOps/trendhound/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := New(":memory:", nil)
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleRecord(keyword string) store.KeywordRecord {
	return store.KeywordRecord{
		Keyword:       keyword,
		SearchVolume:  12000,
		Trend:         "rising",
		ChangePercent: 42.5,
		Category:      "Technology",
		Difficulty:    "High",
		CPC:           1.8,
		Source:        "trends:US",
		Sources: store.Provenance{
			RunDate: "2026-08-30",
			Trends:  true,
			Wikimedia: &store.WikimediaSignal{
				PageExists: true,
				Title:      "Keyword",
				Language:   "en",
				Views30d:   12000,
				Daily:      []int{100, 200, 300},
			},
		},
	}
}

func TestUpsert_InsertThenUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stats, err := s.Upsert(ctx, []store.KeywordRecord{sampleRecord("machine learning")})
	if err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	if stats.ProcessedCount != 1 || stats.ErrorCount != 0 {
		t.Fatalf("expected processed=1 errors=0, got %+v", stats)
	}
	if len(stats.InsertedKeywords) != 1 || len(stats.UpdatedKeywords) != 0 {
		t.Fatalf("expected one insert, got %+v", stats)
	}
	if stats.VerifiedCount != 1 || stats.SampledCount != 1 {
		t.Fatalf("expected verification 1/1, got %d/%d", stats.VerifiedCount, stats.SampledCount)
	}

	first, err := s.Query(ctx, store.Filter{Keyword: "machine learning"})
	if err != nil || len(first) != 1 {
		t.Fatalf("query after insert: %v (%d rows)", err, len(first))
	}

	time.Sleep(10 * time.Millisecond)

	updated := sampleRecord("machine learning")
	updated.SearchVolume = 99000
	updated.Trend = "stable"
	stats, err = s.Upsert(ctx, []store.KeywordRecord{updated})
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if stats.ProcessedCount != 1 {
		t.Fatalf("expected processed=1 on update, got %+v", stats)
	}
	if len(stats.UpdatedKeywords) != 1 || len(stats.InsertedKeywords) != 0 {
		t.Fatalf("expected one update, got %+v", stats)
	}

	second, err := s.Query(ctx, store.Filter{Keyword: "machine learning"})
	if err != nil || len(second) != 1 {
		t.Fatalf("query after update: %v (%d rows)", err, len(second))
	}

	got := second[0]
	if got.SearchVolume != 99000 || got.Trend != "stable" {
		t.Errorf("mutable fields not overwritten: %+v", got)
	}
	if !got.CreatedAt.Equal(first[0].CreatedAt) {
		t.Errorf("created_at changed on update: %v -> %v", first[0].CreatedAt, got.CreatedAt)
	}
	if !got.UpdatedAt.After(first[0].UpdatedAt) {
		t.Errorf("updated_at not refreshed: %v -> %v", first[0].UpdatedAt, got.UpdatedAt)
	}
}

func TestUpsert_IdempotentExceptUpdatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := sampleRecord("world cup")
	if _, err := s.Upsert(ctx, []store.KeywordRecord{rec}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	before, _ := s.Query(ctx, store.Filter{Keyword: "world cup"})

	time.Sleep(10 * time.Millisecond)
	if _, err := s.Upsert(ctx, []store.KeywordRecord{rec}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	after, _ := s.Query(ctx, store.Filter{Keyword: "world cup"})

	if len(before) != 1 || len(after) != 1 {
		t.Fatalf("keyword duplicated: %d then %d rows", len(before), len(after))
	}

	b, a := before[0], after[0]
	if b.SearchVolume != a.SearchVolume || b.Trend != a.Trend || b.ChangePercent != a.ChangePercent ||
		b.Category != a.Category || b.Difficulty != a.Difficulty || b.CPC != a.CPC || b.Source != a.Source {
		t.Errorf("unchanged record mutated fields: %+v vs %+v", b, a)
	}
	if !b.CreatedAt.Equal(a.CreatedAt) {
		t.Errorf("created_at drifted on idempotent upsert")
	}
}

func TestUpsert_ProvenanceRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := sampleRecord("taylor swift")
	rec.Sources.EstimatedChange = true
	if _, err := s.Upsert(ctx, []store.KeywordRecord{rec}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.Query(ctx, store.Filter{Keyword: "taylor swift"})
	if err != nil || len(got) != 1 {
		t.Fatalf("query: %v", err)
	}

	prov := got[0].Sources
	if !prov.EstimatedChange || !prov.Trends || prov.Wikimedia == nil {
		t.Fatalf("provenance lost in round trip: %+v", prov)
	}
	if prov.Wikimedia.Views30d != 12000 || len(prov.Wikimedia.Daily) != 3 {
		t.Errorf("wikimedia signal lost: %+v", prov.Wikimedia)
	}
}

func TestInsertIfAbsent_NeverOverwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	current := sampleRecord("bitcoin")
	current.SearchVolume = 50000
	if _, err := s.Upsert(ctx, []store.KeywordRecord{current}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	old := sampleRecord("bitcoin")
	old.SearchVolume = 111
	old.CreatedAt = time.Date(2021, 6, 30, 0, 0, 0, 0, time.UTC)
	old.UpdatedAt = old.CreatedAt
	fresh := sampleRecord("dogecoin")
	fresh.CreatedAt = old.CreatedAt
	fresh.UpdatedAt = old.CreatedAt

	stats, err := s.InsertIfAbsent(ctx, []store.KeywordRecord{old, fresh})
	if err != nil {
		t.Fatalf("insert if absent: %v", err)
	}
	if stats.ProcessedCount != 1 {
		t.Fatalf("expected only the new keyword inserted, got %+v", stats)
	}

	got, _ := s.Query(ctx, store.Filter{Keyword: "bitcoin"})
	if len(got) != 1 || got[0].SearchVolume != 50000 {
		t.Errorf("existing row was overwritten: %+v", got)
	}
}

func TestQuery_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tech := sampleRecord("machine learning")
	sports := sampleRecord("world cup final")
	sports.Category = "Sports"
	sports.Trend = "stable"
	if _, err := s.Upsert(ctx, []store.KeywordRecord{tech, sports}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	byCategory, err := s.Query(ctx, store.Filter{Category: "Sports"})
	if err != nil || len(byCategory) != 1 || byCategory[0].Keyword != "world cup final" {
		t.Fatalf("category filter failed: %v, %v", err, byCategory)
	}

	byTrend, err := s.Query(ctx, store.Filter{Trend: "rising"})
	if err != nil || len(byTrend) != 1 || byTrend[0].Keyword != "machine learning" {
		t.Fatalf("trend filter failed: %v, %v", err, byTrend)
	}

	limited, err := s.Query(ctx, store.Filter{Limit: 1})
	if err != nil || len(limited) != 1 {
		t.Fatalf("limit failed: %v, %d rows", err, len(limited))
	}
}

func TestPruneOlderThan(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stale := sampleRecord("old news")
	stale.CreatedAt = time.Now().UTC().Add(-30 * 24 * time.Hour)
	stale.UpdatedAt = stale.CreatedAt
	fresh := sampleRecord("fresh topic")

	if _, err := s.Upsert(ctx, []store.KeywordRecord{stale, fresh}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	deleted, err := s.PruneOlderThan(ctx, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted, got %d", deleted)
	}

	remaining, _ := s.Query(ctx, store.Filter{})
	if len(remaining) != 1 || remaining[0].Keyword != "fresh topic" {
		t.Errorf("wrong rows remain after prune: %v", remaining)
	}
}
