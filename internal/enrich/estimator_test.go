package enrich

import (
	"math/rand"
	"testing"

	"github.com/FranksOps/trendhound/internal/source"
)

func TestTrendFor_Boundaries(t *testing.T) {
	cases := []struct {
		change float64
		want   Trend
	}{
		{10.0, TrendStable},
		{10.1, TrendRising},
		{-10.0, TrendStable},
		{-10.1, TrendFalling},
		{0, TrendStable},
		{55.5, TrendRising},
		{-99, TrendFalling},
	}
	for _, c := range cases {
		if got := TrendFor(c.change); got != c.want {
			t.Errorf("TrendFor(%v) = %q, want %q", c.change, got, c.want)
		}
	}
}

func TestEstimate_MeasuredChangeDoubledWeek(t *testing.T) {
	daily := make([]int, 0, 14)
	for i := 0; i < 7; i++ {
		daily = append(daily, 100)
	}
	for i := 0; i < 7; i++ {
		daily = append(daily, 200)
	}

	e := NewEstimator(0, nil)
	m := e.Estimate("keyword", &source.Lookup{
		PageExists: true,
		Views30d:   2100,
		Daily:      daily,
	}, 0)

	if m.ChangePercent != 100.0 {
		t.Errorf("expected change 100.0, got %v", m.ChangePercent)
	}
	if m.Trend != TrendRising {
		t.Errorf("expected rising, got %q", m.Trend)
	}
	if m.EstimatedChange {
		t.Errorf("14-entry series should be measured, not estimated")
	}
	if m.SearchVolume != 2100 || m.EstimatedVolume {
		t.Errorf("expected measured volume 2100, got %d (estimated=%v)", m.SearchVolume, m.EstimatedVolume)
	}
}

func TestEstimate_ZeroPriorWeek(t *testing.T) {
	e := NewEstimator(0, nil)

	daily := make([]int, 14)
	for i := 7; i < 14; i++ {
		daily[i] = 50
	}
	m := e.Estimate("keyword", &source.Lookup{PageExists: true, Views30d: 350, Daily: daily}, 0)
	if m.ChangePercent != 100.0 {
		t.Errorf("zero prior week with traffic should read +100%%, got %v", m.ChangePercent)
	}

	m = e.Estimate("keyword", &source.Lookup{PageExists: true, Views30d: 1, Daily: make([]int, 14)}, 0)
	if m.ChangePercent != 0.0 {
		t.Errorf("two zero weeks should read 0%%, got %v", m.ChangePercent)
	}
}

func TestEstimate_FallbackVolumeFloored(t *testing.T) {
	e := NewEstimator(1000, nil)

	m := e.Estimate("some obscure long tail phrase", &source.Lookup{PageExists: true}, 49)
	if !m.EstimatedVolume {
		t.Fatalf("zero views must take the estimated path")
	}
	if m.SearchVolume < 1000 {
		t.Errorf("volume %d below the floor", m.SearchVolume)
	}
}

func TestEstimate_RankDecay(t *testing.T) {
	e := NewEstimator(100, nil)

	top := e.Estimate("keyword one", nil, 0)
	deep := e.Estimate("keyword two", nil, 40)
	if top.SearchVolume <= deep.SearchVolume {
		t.Errorf("rank 0 volume (%d) should exceed rank 40 volume (%d)", top.SearchVolume, deep.SearchVolume)
	}
}

func TestEstimate_ShapeWeights(t *testing.T) {
	e := NewEstimator(100, nil)

	single := e.Estimate("gadget", nil, 5)
	phrase := e.Estimate("very long keyword phrase here", nil, 5)
	if single.SearchVolume <= phrase.SearchVolume {
		t.Errorf("single word (%d) should outweigh long phrase (%d)", single.SearchVolume, phrase.SearchVolume)
	}
}

func TestEstimate_HeuristicChangeBands(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	e := NewEstimator(0, rng)

	// Resolved page, short series: fresh-trending band.
	for i := 0; i < 25; i++ {
		m := e.Estimate("keyword", &source.Lookup{PageExists: true, Views30d: 500, Daily: []int{1, 2, 3}}, 0)
		if !m.EstimatedChange {
			t.Fatalf("short series must be estimated")
		}
		if m.ChangePercent < 15 || m.ChangePercent > 50 {
			t.Fatalf("fresh band draw %v outside [15, 50]", m.ChangePercent)
		}
	}

	// No lookup at all: broadest band.
	for i := 0; i < 25; i++ {
		m := e.Estimate("keyword", nil, -1)
		if m.ChangePercent < -20 || m.ChangePercent > 40 {
			t.Fatalf("general band draw %v outside [-20, 40]", m.ChangePercent)
		}
	}
}

func TestEstimate_DeterministicWithoutRand(t *testing.T) {
	e := NewEstimator(0, nil)
	a := e.Estimate("keyword", nil, 3)
	b := e.Estimate("keyword", nil, 3)
	if a != b {
		t.Errorf("nil Rand should be deterministic: %+v vs %+v", a, b)
	}
}

func TestEstimate_NoLookupNoPosition(t *testing.T) {
	e := NewEstimator(1000, nil)
	m := e.Estimate("mystery keyword", nil, -1)
	if m.SearchVolume < 1000 {
		t.Errorf("unranked keyword volume %d below floor", m.SearchVolume)
	}
	if !m.EstimatedVolume || !m.EstimatedChange {
		t.Errorf("both metrics should be estimated, got %+v", m)
	}
}
