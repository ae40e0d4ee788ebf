package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/FranksOps/trendhound/pkg/httpclient"
	"github.com/FranksOps/trendhound/pkg/ratelimit"
	"github.com/FranksOps/trendhound/pkg/useragent"
)

const (
	topArticlesScanned = 20
	topArticlesKept    = 15
	topMinViews        = 1000
)

// metaPrefixes are wiki namespace pages that show up in the top-articles
// feed but are not keywords anyone searches for.
var metaPrefixes = []string{
	"File:", "Category:", "Template:", "Wikipedia:", "User:", "Talk:", "Special:", "Portal:",
}

// TopConfig configures a TopSource for one wiki language edition.
type TopConfig struct {
	BaseURL  string
	Language string
	// Date is the day to fetch; zero means yesterday (today's data is
	// incomplete on this API).
	Date time.Time
	// Monthly switches to the month-aggregate feed for Date's month.
	Monthly bool
	Client  *httpclient.Client
	Agents  *useragent.Pool
	Pacer   *ratelimit.Pacer
	Logger  *slog.Logger
	Now     func() time.Time
}

// TopSource produces the most-viewed article titles of one wiki language
// edition as keyword candidates. It complements the trends source with
// non-English and evergreen terms.
type TopSource struct {
	cfg    TopConfig
	logger *slog.Logger
}

// NewTopSource creates a top-articles source for cfg.Language.
func NewTopSource(cfg TopConfig) (*TopSource, error) {
	if cfg.Language == "" {
		return nil, fmt.Errorf("top source requires a language")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultPageviewBaseURL
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
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TopSource{cfg: cfg, logger: logger}, nil
}

// Name identifies the source in reports and provenance blobs.
func (s *TopSource) Name() string {
	return "wikipedia-top:" + s.cfg.Language
}

// Fetch returns the day's most-viewed article titles, filtered down to
// plausible keyword candidates. A 404 (no data published for the day yet)
// is an empty success.
func (s *TopSource) Fetch(ctx context.Context) ([]RawKeyword, error) {
	if s.cfg.Pacer != nil {
		if err := s.cfg.Pacer.Wait(ctx, s.Name()); err != nil {
			return nil, err
		}
	}

	date := s.cfg.Date
	if date.IsZero() {
		date = s.cfg.Now().UTC().AddDate(0, 0, -1)
	}

	day := date.Format("2006/01/02")
	if s.cfg.Monthly {
		// Month-aggregate feed; the API spells the day as "all-days".
		day = date.Format("2006/01") + "/all-days"
	}

	endpoint := fmt.Sprintf("%s/metrics/pageviews/top/%s.wikipedia.org/all-access/%s",
		s.cfg.BaseURL, s.cfg.Language, day)

	resp, err := s.cfg.Client.Get(ctx, endpoint, map[string]string{
		"User-Agent": s.cfg.Agents.GetSequential(),
		"Accept":     "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	if resp.StatusCode == 404 {
		s.logger.Info("no top-articles data for date", "source", s.Name(), "date", date.Format("2006-01-02"))
		return nil, nil
	}
	if err := ClassifyResponse(resp.StatusCode, resp.Header, body); err != nil {
		return nil, err
	}

	var payload struct {
		Items []struct {
			Articles []struct {
				Article string `json:"article"`
				Views   int    `json:"views"`
			} `json:"articles"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode top articles: %v", ErrMalformed, err)
	}
	if len(payload.Items) == 0 {
		return nil, nil
	}

	articles := payload.Items[0].Articles
	if len(articles) > topArticlesScanned {
		articles = articles[:topArticlesScanned]
	}

	var out []RawKeyword
	for _, a := range articles {
		if len(out) >= topArticlesKept {
			break
		}
		title := strings.ReplaceAll(a.Article, "_", " ")
		if !keepTopArticle(title, a.Views) {
			continue
		}
		out = append(out, RawKeyword{Text: title, Source: s.Name(), Position: len(out)})
	}
	return out, nil
}

func keepTopArticle(title string, views int) bool {
	if utf8.RuneCountInString(title) <= 3 || views < topMinViews {
		return false
	}
	if title == "Main Page" || strings.HasPrefix(title, "Special:") {
		return false
	}
	for _, prefix := range metaPrefixes {
		if strings.HasPrefix(title, prefix) {
			return false
		}
	}
	return true
}
