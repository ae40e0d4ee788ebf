package enrich

import (
	"math"
	"math/rand"
	"strings"

	"github.com/FranksOps/trendhound/internal/source"
)

// Trend is the direction derived from change percentage.
type Trend string

const (
	TrendRising  Trend = "rising"
	TrendFalling Trend = "falling"
	TrendStable  Trend = "stable"
)

// Change-percent thresholds for trend derivation. Strictly greater/less:
// exactly +10 or -10 is still stable.
const (
	risingThreshold  = 10.0
	fallingThreshold = -10.0
)

// TrendFor derives the trend enum from a change percentage.
func TrendFor(changePercent float64) Trend {
	switch {
	case changePercent > risingThreshold:
		return TrendRising
	case changePercent < fallingThreshold:
		return TrendFalling
	default:
		return TrendStable
	}
}

// Heuristic change-percent bands, used when the daily series is too short
// to measure. Terms that resolved to a live page are assumed freshly
// trending (positive band); everything else gets the broad general band.
var (
	freshTrendingBand = [2]float64{15, 50}
	generalBand       = [2]float64{-20, 40}
)

// minSeriesForChange is the shortest daily series a change percentage may
// be measured from: one trailing week against the week before it.
const minSeriesForChange = 14

// highTrafficTerms weight the volume fallback up for terms that reliably
// draw heavy search demand regardless of pageview signal.
var highTrafficTerms = []string{
	"ai", "crypto", "bitcoin", "iphone", "netflix", "election", "world cup", "olympics",
}

// Metrics is the canonical derived metric set for one keyword.
type Metrics struct {
	SearchVolume  int
	ChangePercent float64
	Trend         Trend
	// EstimatedVolume and EstimatedChange flag values that were
	// synthesized rather than measured; they are recorded in the
	// provenance blob so downstream consumers can tell the two apart.
	EstimatedVolume bool
	EstimatedChange bool
}

// Estimator converts raw signal into Metrics, falling back to bounded
// heuristic estimates when authoritative signal is missing.
type Estimator struct {
	// Floor is the minimum search volume ever emitted, on any path.
	Floor int
	// Rand perturbs heuristic draws. Nil means deterministic midpoints.
	Rand *rand.Rand
}

// DefaultFloor protects downstream consumers from zero-volume records.
const DefaultFloor = 1000

// NewEstimator returns an estimator with the given floor (<=0 selects
// DefaultFloor) and optional randomness source.
func NewEstimator(floor int, rng *rand.Rand) *Estimator {
	if floor <= 0 {
		floor = DefaultFloor
	}
	return &Estimator{Floor: floor, Rand: rng}
}

// Estimate derives the metric set for keyword. lookup may be nil (lookup
// failed or was skipped); position is the keyword's rank in its source
// list, or negative when unranked.
func (e *Estimator) Estimate(keyword string, lookup *source.Lookup, position int) Metrics {
	var m Metrics

	if lookup != nil && lookup.Views30d > 0 {
		m.SearchVolume = lookup.Views30d
	} else {
		m.SearchVolume = e.fallbackVolume(keyword, position)
		m.EstimatedVolume = true
	}
	if m.SearchVolume < e.Floor {
		m.SearchVolume = e.Floor
	}

	if lookup != nil && len(lookup.Daily) >= minSeriesForChange {
		m.ChangePercent = measuredChange(lookup.Daily)
	} else {
		band := generalBand
		if lookup != nil && lookup.PageExists {
			band = freshTrendingBand
		}
		m.ChangePercent = e.draw(band)
		m.EstimatedChange = true
	}

	m.Trend = TrendFor(m.ChangePercent)
	return m
}

// measuredChange compares the trailing week against the week before it.
// A zero prior week with traffic in the last week reads as +100%; two
// zero weeks read as no change.
func measuredChange(daily []int) float64 {
	n := len(daily)
	last7 := sum(daily[n-7:])
	prior7 := sum(daily[n-14 : n-7])

	switch {
	case prior7 > 0:
		return round1(float64(last7-prior7) / float64(prior7) * 100)
	case last7 > 0:
		return 100.0
	default:
		return 0.0
	}
}

// fallbackVolume is the deterministic demand estimate used when no
// pageview signal exists: rank decay shaped by the keyword's form.
func (e *Estimator) fallbackVolume(keyword string, position int) int {
	if position < 0 {
		position = 99 // unranked keywords estimate as deep-list entries
	}

	base := 25000 / (position + 1)

	words := len(strings.Fields(keyword))
	switch {
	case words == 1:
		base = base * 3 / 2
	case words > 3:
		base = base / 2
	}

	k := strings.ToLower(keyword)
	for _, term := range highTrafficTerms {
		if strings.Contains(k, term) {
			base *= 2
			break
		}
	}

	if base < e.Floor {
		return e.Floor
	}
	return base
}

func (e *Estimator) draw(band [2]float64) float64 {
	lo, hi := band[0], band[1]
	if e.Rand == nil {
		return round1((lo + hi) / 2)
	}
	return round1(lo + e.Rand.Float64()*(hi-lo))
}

func sum(xs []int) int {
	total := 0
	for _, x := range xs {
		total += x
	}
	return total
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
