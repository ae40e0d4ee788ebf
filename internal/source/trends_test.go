package source

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const dailyTrendsBody = `)]}'
{
  "default": {
    "trendingSearchesDays": [
      {
        "trendingSearches": [
          {
            "title": {"query": "Solar Eclipse"},
            "relatedQueries": [
              {"query": "solar eclipse time"},
              {"query": "eclipse glasses"},
              {"query": "next eclipse"},
              {"query": "eclipse map"}
            ]
          },
          {
            "title": {"query": "World Cup"},
            "relatedQueries": []
          }
        ]
      }
    ]
  }
}`

const trendsRSSBody = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Daily Search Trends</title>
    <item><title>Solar Eclipse</title></item>
    <item><title>World Cup</title></item>
  </channel>
</rss>`

func newTrendsSource(t *testing.T, baseURL string) *TrendsSource {
	t.Helper()
	s, err := NewTrendsSource(TrendsConfig{
		BaseURL: baseURL,
		Region:  "US",
		Logger:  discardLogger(),
	})
	if err != nil {
		t.Fatalf("failed to create trends source: %v", err)
	}
	return s
}

func TestTrendsFetch_DailyEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/trends/api/dailytrends" {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("geo"); got != "US" {
			t.Errorf("geo = %q, want US", got)
		}
		if r.Header.Get("User-Agent") == "" {
			t.Error("request missing User-Agent")
		}
		_, _ = w.Write([]byte(dailyTrendsBody))
	}))
	defer srv.Close()

	got, err := newTrendsSource(t, srv.URL).Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	// Title + 3 related (capped from 4), then second title with none.
	want := []string{"Solar Eclipse", "solar eclipse time", "eclipse glasses", "next eclipse", "World Cup"}
	if len(got) != len(want) {
		t.Fatalf("got %d keywords, want %d: %v", len(got), len(want), got)
	}
	for i, kw := range got {
		if kw.Text != want[i] {
			t.Errorf("keyword[%d] = %q, want %q", i, kw.Text, want[i])
		}
		if kw.Position != i {
			t.Errorf("keyword[%d].Position = %d, want %d", i, kw.Position, i)
		}
		if kw.Source != "trends:US" {
			t.Errorf("keyword[%d].Source = %q", i, kw.Source)
		}
	}
}

func TestTrendsFetch_FallsBackToRSS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/trends/api/dailytrends":
			_, _ = w.Write([]byte(")]}'\nnot json at all"))
		case "/trending/rss":
			w.Header().Set("Content-Type", "application/rss+xml")
			_, _ = w.Write([]byte(trendsRSSBody))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	got, err := newTrendsSource(t, srv.URL).Fetch(context.Background())
	if err != nil {
		t.Fatalf("expected rss fallback to succeed, got %v", err)
	}
	if len(got) != 2 || got[0].Text != "Solar Eclipse" || got[1].Text != "World Cup" {
		t.Fatalf("unexpected rss keywords: %v", got)
	}
}

func TestTrendsFetch_BothEndpointsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTrendsSource(t, srv.URL).Fetch(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestTrendsFetch_ThrottledSkipsFallback(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTrendsSource(t, srv.URL).Fetch(context.Background())
	if !errors.Is(err, ErrThrottled) {
		t.Fatalf("expected ErrThrottled, got %v", err)
	}
	// A throttled host must not get hit again with the RSS fallback.
	if requests != 1 {
		t.Fatalf("got %d requests to a throttling host, want 1", requests)
	}
}

func TestNewTrendsSource_RequiresRegion(t *testing.T) {
	if _, err := NewTrendsSource(TrendsConfig{}); err == nil {
		t.Fatal("expected error for missing region")
	}
}
