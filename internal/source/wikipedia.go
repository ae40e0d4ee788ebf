package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"github.com/FranksOps/trendhound/pkg/httpclient"
	"github.com/FranksOps/trendhound/pkg/ratelimit"
	"github.com/FranksOps/trendhound/pkg/useragent"
)

const (
	defaultWikiSearchTemplate = "https://%s.wikipedia.org/w/rest.php/v1/search/title"
	defaultPageviewBaseURL    = "https://wikimedia.org/api/rest_v1"

	// The per-article endpoint serves at most a 31-day trailing window and
	// we keep at most 30 daily buckets of it.
	pageviewWindowDays = 31
	maxDailyEntries    = 30
)

// Lookup is the ephemeral result of resolving a keyword against the
// wiki pageview APIs. It lives for one run, in the run's cache.
type Lookup struct {
	PageExists bool
	Title      string
	Language   string
	Views30d   int
	// Daily view counts, oldest to newest, at most 30 entries.
	Daily []int
}

// WikiConfig configures a PageviewClient.
type WikiConfig struct {
	// SearchURLTemplate takes the language code as its single %s verb.
	SearchURLTemplate string
	PageviewBaseURL   string
	// Languages are tried in order when resolving a title. Trend terms are
	// often non-English, so a handful of languages improves the hit rate.
	Languages []string
	Client    *httpclient.Client
	Agents    *useragent.Pool
	Pacer     *ratelimit.Pacer
	Logger    *slog.Logger
	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

// PageviewClient resolves keywords to wiki article titles and fetches
// their trailing daily pageview series.
type PageviewClient struct {
	cfg    WikiConfig
	logger *slog.Logger
}

// NewPageviewClient creates a client, applying defaults for unset fields.
func NewPageviewClient(cfg WikiConfig) (*PageviewClient, error) {
	if cfg.SearchURLTemplate == "" {
		cfg.SearchURLTemplate = defaultWikiSearchTemplate
	}
	if cfg.PageviewBaseURL == "" {
		cfg.PageviewBaseURL = defaultPageviewBaseURL
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"en", "es", "pt", "fr", "de"}
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
	return &PageviewClient{cfg: cfg, logger: logger}, nil
}

// Lookup resolves keyword to an article title across the configured
// languages and returns its trailing 30-day pageview series. A title that
// resolves but has no recorded views is a valid, zero-view success.
func (c *PageviewClient) Lookup(ctx context.Context, keyword string) (*Lookup, error) {
	title, lang, found := c.resolveTitle(ctx, keyword)

	if err := c.pace(ctx, "wikimedia:pageviews"); err != nil {
		return nil, err
	}

	now := c.cfg.Now().UTC()
	start := now.AddDate(0, 0, -pageviewWindowDays).Format("20060102") + "00"
	end := now.AddDate(0, 0, -1).Format("20060102") + "00"

	endpoint := fmt.Sprintf("%s/metrics/pageviews/per-article/%s.wikipedia.org/all-access/user/%s/daily/%s/%s",
		c.cfg.PageviewBaseURL, lang, url.PathEscape(title), start, end)

	body, status, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	lookup := &Lookup{
		PageExists: found,
		Title:      title,
		Language:   lang,
	}

	if status == 404 {
		// The article has no pageview records in the window. Empty success.
		c.logger.Debug("no pageviews recorded", "keyword", keyword, "title", title, "lang", lang)
		return lookup, nil
	}

	var payload struct {
		Items []struct {
			Views int `json:"views"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode pageviews: %v", ErrMalformed, err)
	}

	for _, item := range payload.Items {
		lookup.Views30d += item.Views
		lookup.Daily = append(lookup.Daily, item.Views)
	}
	if len(lookup.Daily) > maxDailyEntries {
		lookup.Daily = lookup.Daily[len(lookup.Daily)-maxDailyEntries:]
	}
	return lookup, nil
}

// resolveTitle tries each configured language's title search. Misses and
// transport errors just move on to the next language; when everything
// misses, the raw keyword against the first language is the last resort.
func (c *PageviewClient) resolveTitle(ctx context.Context, keyword string) (title, lang string, found bool) {
	for _, candidate := range c.cfg.Languages {
		if err := c.pace(ctx, "wikipedia:"+candidate); err != nil {
			break
		}

		endpoint := fmt.Sprintf(c.cfg.SearchURLTemplate, candidate) + "?" + url.Values{
			"q":     {keyword},
			"limit": {"1"},
		}.Encode()

		body, status, err := c.get(ctx, endpoint)
		if err != nil || status != 200 {
			continue
		}

		var payload struct {
			Pages []struct {
				Title string `json:"title"`
			} `json:"pages"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			continue
		}
		if len(payload.Pages) > 0 && payload.Pages[0].Title != "" {
			return payload.Pages[0].Title, candidate, true
		}
	}

	return keyword, c.cfg.Languages[0], false
}

func (c *PageviewClient) pace(ctx context.Context, id string) error {
	if c.cfg.Pacer == nil {
		return ctx.Err()
	}
	return c.cfg.Pacer.Wait(ctx, id)
}

// get returns the body and status. Non-2xx statuses other than 404 are
// classified into the taxonomy; 404 is passed through for the caller to
// interpret, since on these APIs it usually means "no data", not failure.
func (c *PageviewClient) get(ctx context.Context, endpoint string) ([]byte, int, error) {
	resp, err := c.cfg.Client.Get(ctx, endpoint, map[string]string{
		"User-Agent": c.cfg.Agents.GetSequential(),
		"Accept":     "application/json",
	})
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	if resp.StatusCode == 404 {
		return body, 404, nil
	}
	if err := ClassifyResponse(resp.StatusCode, resp.Header, body); err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}
