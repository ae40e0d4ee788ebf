package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Pacer enforces a minimum interval between consecutive requests to the
// same upstream. Each source identifier gets an independent pacing budget,
// so pacing one upstream never delays another. State is per-process and
// resets with it. Safe for concurrent use.
type Pacer struct {
	interval time.Duration
	jitter   float64 // 0.0 to 1.0, fraction of interval added at random

	mu   sync.Mutex
	next map[string]time.Time
}

// NewPacer creates a pacer with the given minimum inter-request interval
// and jitter factor. If interval is <= 0 the pacer never blocks.
func NewPacer(interval time.Duration, jitter float64) *Pacer {
	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}
	return &Pacer{
		interval: interval,
		jitter:   jitter,
		next:     make(map[string]time.Time),
	}
}

// Wait blocks until the minimum interval for sourceID has elapsed since the
// previous Wait for that source, or until the context is canceled. The slot
// is reserved before sleeping, so concurrent callers on one source queue up
// rather than racing through together.
func (p *Pacer) Wait(ctx context.Context, sourceID string) error {
	if p.interval <= 0 {
		return ctx.Err()
	}

	gap := p.interval
	if p.jitter > 0 {
		gap += time.Duration(rand.Float64() * p.jitter * float64(p.interval))
	}

	now := time.Now()

	p.mu.Lock()
	at, ok := p.next[sourceID]
	if !ok || at.Before(now) {
		// First call for this source, or the interval already elapsed.
		p.next[sourceID] = now.Add(gap)
		p.mu.Unlock()
		return ctx.Err()
	}
	p.next[sourceID] = at.Add(gap)
	p.mu.Unlock()

	timer := time.NewTimer(at.Sub(now))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Reset clears the pacing state for all sources.
func (p *Pacer) Reset() {
	p.mu.Lock()
	p.next = make(map[string]time.Time)
	p.mu.Unlock()
}
