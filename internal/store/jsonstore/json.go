package jsonstore

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/FranksOps/trendhound/internal/store"
)

// ensure jsonStore implements store.Store
var _ store.Store = (*jsonStore)(nil)

// jsonStore keeps keyword records in an NDJSON file, one record per line.
// It exists for dry runs and local inspection; it loads the whole file on
// open and rewrites it on every batch, which is fine at this pipeline's
// scale (tens of keywords per run).
type jsonStore struct {
	mu   sync.Mutex
	path string
	m    map[string]*store.KeywordRecord
}

// New creates an NDJSON-backed store.Store, loading any existing records.
func New(path string) (store.Store, error) {
	s := &jsonStore{path: path, m: make(map[string]*store.KeywordRecord)}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("%w: open: %v", store.ErrUnavailable, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r store.KeywordRecord
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		s.m[r.Keyword] = &r
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read: %v", store.ErrUnavailable, err)
	}

	return s, nil
}

func (s *jsonStore) Upsert(ctx context.Context, records []store.KeywordRecord) (store.UpsertStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats store.UpsertStats
	now := time.Now().UTC()

	for _, r := range records {
		if r.UpdatedAt.IsZero() {
			r.UpdatedAt = now
		}
		if prev, ok := s.m[r.Keyword]; ok {
			r.CreatedAt = prev.CreatedAt
			stats.UpdatedKeywords = append(stats.UpdatedKeywords, r.Keyword)
		} else {
			if r.CreatedAt.IsZero() {
				r.CreatedAt = now
			}
			stats.InsertedKeywords = append(stats.InsertedKeywords, r.Keyword)
		}
		rec := r
		s.m[r.Keyword] = &rec
		stats.ProcessedCount++
	}

	if err := s.flush(); err != nil {
		return store.UpsertStats{}, err
	}

	stats.SampledCount = stats.ProcessedCount
	if stats.SampledCount > store.VerifySampleSize {
		stats.SampledCount = store.VerifySampleSize
	}
	stats.VerifiedCount = stats.SampledCount
	return stats, nil
}

func (s *jsonStore) InsertIfAbsent(ctx context.Context, records []store.KeywordRecord) (store.UpsertStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats store.UpsertStats
	for _, r := range records {
		if _, ok := s.m[r.Keyword]; ok {
			continue
		}
		rec := r
		s.m[r.Keyword] = &rec
		stats.ProcessedCount++
		stats.InsertedKeywords = append(stats.InsertedKeywords, r.Keyword)
	}

	if err := s.flush(); err != nil {
		return store.UpsertStats{}, err
	}
	return stats, nil
}

func (s *jsonStore) Query(ctx context.Context, filter store.Filter) ([]*store.KeywordRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var results []*store.KeywordRecord
	for _, r := range s.m {
		if filter.Keyword != "" && r.Keyword != filter.Keyword {
			continue
		}
		if filter.Category != "" && r.Category != filter.Category {
			continue
		}
		if filter.Trend != "" && r.Trend != filter.Trend {
			continue
		}
		if filter.Since != nil && r.UpdatedAt.Before(*filter.Since) {
			continue
		}
		rec := *r
		results = append(results, &rec)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].UpdatedAt.After(results[j].UpdatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(results) {
			return []*store.KeywordRecord{}, nil
		}
		results = results[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(results) {
		results = results[:filter.Limit]
	}
	return results, nil
}

func (s *jsonStore) PruneOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-age)
	var deleted int64
	for k, r := range s.m {
		if r.UpdatedAt.Before(cutoff) {
			delete(s.m, k)
			deleted++
		}
	}
	if deleted > 0 {
		if err := s.flush(); err != nil {
			return 0, err
		}
	}
	return deleted, nil
}

// flush rewrites the whole file; records are sorted by keyword so the
// output is diffable between runs.
func (s *jsonStore) flush() error {
	keys := make([]string, 0, len(s.m))
	for k := range s.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("%w: write: %v", store.ErrUnavailable, err)
	}

	w := bufio.NewWriter(f)
	for _, k := range keys {
		data, err := json.Marshal(s.m[k])
		if err != nil {
			_ = f.Close()
			return fmt.Errorf("encode record: %w", err)
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			_ = f.Close()
			return fmt.Errorf("%w: write: %v", store.ErrUnavailable, err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: flush: %v", store.ErrUnavailable, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close: %v", store.ErrUnavailable, err)
	}

	return os.Rename(tmp, s.path)
}

func (s *jsonStore) Close() error {
	return nil
}
