// Package enrich derives the canonical metric set for a keyword from raw
// source signal: category, difficulty, CPC, search volume and trend.
package enrich

import (
	"math"
	"math/rand"
	"strings"
)

// Category is the closed classification set for keywords.
type Category string

const (
	CategoryTechnology      Category = "Technology"
	CategorySports          Category = "Sports"
	CategoryBusinessFinance Category = "Business & Finance"
	CategoryEntertainment   Category = "Entertainment"
	CategoryHealthWellness  Category = "Health & Wellness"
	CategoryNewsPolitics    Category = "News & Politics"
	CategoryGeneral         Category = "General"
)

// categoryRules is checked in order; the first group with a matching
// substring wins, so overlapping matches resolve the same way every time.
var categoryRules = []struct {
	category Category
	terms    []string
}{
	{CategoryTechnology, []string{
		"ai", "artificial intelligence", "machine learning", "python", "javascript",
		"software", "app", "cloud", "cyber", "blockchain", "nvidia", "chatgpt", "iphone", "android",
	}},
	{CategorySports, []string{
		" vs ", "cup", "league", "golf", "tennis", "basketball", "soccer", "football", "olympics",
	}},
	{CategoryBusinessFinance, []string{
		"stock", "market", "economy", "startup", "investment", "crypto", "earnings", "bitcoin",
	}},
	{CategoryEntertainment, []string{
		"movie", "film", "series", "netflix", "music", "concert", "celebrity", "actor", "trailer",
	}},
	{CategoryHealthWellness, []string{
		"health", "diet", "workout", "fitness", "covid", "vaccine", "virus", "therapy",
	}},
	{CategoryNewsPolitics, []string{
		"election", "politics", "breaking", "news", "update", "war", "climate",
	}},
}

// Categorize classifies a keyword by substring rules. Pure and total:
// anything unmatched is General.
func Categorize(keyword string) Category {
	k := strings.ToLower(keyword)
	for _, group := range categoryRules {
		for _, term := range group.terms {
			if strings.Contains(k, term) {
				return group.category
			}
		}
	}
	return CategoryGeneral
}

// Difficulty buckets how contested a keyword is.
type Difficulty string

const (
	DifficultyLow    Difficulty = "Low"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHigh   Difficulty = "High"
)

// EstimateDifficulty maps word count to difficulty. Short head terms are
// the contested ones; long-tail phrases are cheap to rank for, so
// difficulty falls as word count rises: <=2 words High, <=4 Medium,
// longer Low.
func EstimateDifficulty(keyword string) Difficulty {
	words := len(strings.Fields(keyword))
	switch {
	case words <= 2:
		return DifficultyHigh
	case words <= 4:
		return DifficultyMedium
	default:
		return DifficultyLow
	}
}

// cpcRanges are per-category base cost-per-click bands in USD.
var cpcRanges = map[Category][2]float64{
	CategoryBusinessFinance: {2.0, 6.0},
	CategoryTechnology:      {1.5, 3.0},
	CategoryHealthWellness:  {1.0, 2.5},
	CategoryEntertainment:   {0.5, 1.5},
	CategorySports:          {0.8, 2.0},
	CategoryNewsPolitics:    {0.3, 1.0},
	CategoryGeneral:         {0.4, 1.2},
}

// EstimateCPC returns a cost-per-click estimate for the category. When rng
// is non-nil the value is drawn uniformly from the category's band; a nil
// rng yields the band midpoint, which callers needing determinism use.
func EstimateCPC(category Category, rng *rand.Rand) float64 {
	band, ok := cpcRanges[category]
	if !ok {
		band = cpcRanges[CategoryGeneral]
	}
	lo, hi := band[0], band[1]

	cpc := (lo + hi) / 2
	if rng != nil {
		cpc = lo + rng.Float64()*(hi-lo)
	}
	return math.Round(cpc*100) / 100
}
