package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"

	"github.com/PuerkitoBio/goquery"

	"github.com/FranksOps/trendhound/pkg/httpclient"
	"github.com/FranksOps/trendhound/pkg/useragent"
)

const (
	defaultTrendsBaseURL = "https://trends.google.com"
	defaultMaxRelated    = 3

	// The daily-trends endpoint prefixes its JSON with an XSSI guard.
	trendsJSONPrefix = ")]}'"
)

// TrendsConfig configures a trends source for one region.
type TrendsConfig struct {
	BaseURL    string
	Region     string // ISO region code, e.g. "US"
	Lang       string // hl parameter, default "en-US"
	MaxRelated int    // related queries kept per trending item
	Client     *httpclient.Client
	Agents     *useragent.Pool
	Logger     *slog.Logger
}

// TrendsSource pulls ranked trending searches for one region from the
// daily-trends JSON endpoint, expanding each item with a few related
// queries. When the JSON endpoint misbehaves it falls back to the public
// RSS feed, which carries bare titles only.
type TrendsSource struct {
	cfg    TrendsConfig
	logger *slog.Logger
}

// NewTrendsSource creates a trends source, applying defaults for any
// unset configuration.
func NewTrendsSource(cfg TrendsConfig) (*TrendsSource, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("trends source requires a region")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTrendsBaseURL
	}
	if cfg.Lang == "" {
		cfg.Lang = "en-US"
	}
	if cfg.MaxRelated <= 0 {
		cfg.MaxRelated = defaultMaxRelated
	}
	if cfg.Client == nil {
		c, err := httpclient.New(httpclient.Config{})
		if err != nil {
			return nil, err
		}
		cfg.Client = c
	}
	if cfg.Agents == nil {
		cfg.Agents = useragent.NewPool(nil)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TrendsSource{cfg: cfg, logger: logger}, nil
}

// Name identifies the source in reports and provenance blobs.
func (s *TrendsSource) Name() string {
	return "trends:" + s.cfg.Region
}

// Fetch returns the region's trending searches in rank order. A failure of
// the JSON endpoint degrades to the RSS feed before the error surfaces,
// except when the host signalled throttling: a second immediate request at
// the same host would only make that worse.
func (s *TrendsSource) Fetch(ctx context.Context) ([]RawKeyword, error) {
	items, err := s.fetchDaily(ctx)
	if err == nil {
		return items, nil
	}
	if errors.Is(err, ErrThrottled) {
		return nil, err
	}

	s.logger.Warn("daily trends endpoint failed, falling back to rss",
		"source", s.Name(), "err", err)

	rssItems, rssErr := s.fetchRSS(ctx)
	if rssErr != nil {
		// Report the primary failure; the fallback one is secondary.
		return nil, err
	}
	return rssItems, nil
}

// dailyTrendsResponse mirrors the slice of the payload we consume.
type dailyTrendsResponse struct {
	Default struct {
		TrendingSearchesDays []struct {
			TrendingSearches []struct {
				Title struct {
					Query string `json:"query"`
				} `json:"title"`
				RelatedQueries []struct {
					Query string `json:"query"`
				} `json:"relatedQueries"`
			} `json:"trendingSearches"`
		} `json:"trendingSearchesDays"`
	} `json:"default"`
}

func (s *TrendsSource) fetchDaily(ctx context.Context) ([]RawKeyword, error) {
	endpoint := fmt.Sprintf("%s/trends/api/dailytrends?%s", s.cfg.BaseURL, url.Values{
		"hl":  {s.cfg.Lang},
		"tz":  {"-120"},
		"geo": {s.cfg.Region},
		"ns":  {"15"},
	}.Encode())

	body, err := s.get(ctx, endpoint, "application/json")
	if err != nil {
		return nil, err
	}

	body = bytes.TrimPrefix(bytes.TrimSpace(body), []byte(trendsJSONPrefix))

	var payload dailyTrendsResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode daily trends: %v", ErrMalformed, err)
	}

	var out []RawKeyword
	for _, day := range payload.Default.TrendingSearchesDays {
		for _, ts := range day.TrendingSearches {
			if ts.Title.Query != "" {
				out = append(out, RawKeyword{Text: ts.Title.Query, Source: s.Name(), Position: len(out)})
			}
			related := ts.RelatedQueries
			if len(related) > s.cfg.MaxRelated {
				related = related[:s.cfg.MaxRelated]
			}
			for _, rq := range related {
				if rq.Query != "" {
					out = append(out, RawKeyword{Text: rq.Query, Source: s.Name(), Position: len(out)})
				}
			}
		}
	}
	return out, nil
}

func (s *TrendsSource) fetchRSS(ctx context.Context) ([]RawKeyword, error) {
	endpoint := fmt.Sprintf("%s/trending/rss?geo=%s", s.cfg.BaseURL, url.QueryEscape(s.cfg.Region))

	body, err := s.get(ctx, endpoint, "application/rss+xml")
	if err != nil {
		return nil, err
	}

	// goquery's lenient parser is good enough for pulling item titles out
	// of the feed; we do not care about the rest of the RSS structure.
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: parse trends rss: %v", ErrMalformed, err)
	}

	var out []RawKeyword
	doc.Find("item title").Each(func(i int, sel *goquery.Selection) {
		text := sel.Text()
		if text != "" {
			out = append(out, RawKeyword{Text: text, Source: s.Name(), Position: len(out)})
		}
	})
	return out, nil
}

func (s *TrendsSource) get(ctx context.Context, endpoint, accept string) ([]byte, error) {
	resp, err := s.cfg.Client.Get(ctx, endpoint, map[string]string{
		"User-Agent": s.cfg.Agents.GetSequential(),
		"Accept":     accept,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	if err := ClassifyResponse(resp.StatusCode, resp.Header, body); err != nil {
		return nil, err
	}
	return body, nil
}
