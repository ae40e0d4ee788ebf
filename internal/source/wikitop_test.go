package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type topArticle struct {
	Article string `json:"article"`
	Views   int    `json:"views"`
}

func topServer(t *testing.T, articles []topArticle) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/metrics/pageviews/top/en.wikipedia.org/all-access/") {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{{"articles": articles}},
		})
	}))
}

func newTopSource(t *testing.T, baseURL string) *TopSource {
	t.Helper()
	s, err := NewTopSource(TopConfig{
		BaseURL:  baseURL,
		Language: "en",
		Logger:   discardLogger(),
		Now:      func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("failed to create top source: %v", err)
	}
	return s
}

func TestTopFetch_FiltersMetaAndLowTraffic(t *testing.T) {
	srv := topServer(t, []topArticle{
		{"Main_Page", 9000000},
		{"Special:Search", 500000},
		{"Solar_eclipse", 80000},
		{"File:Example.jpg", 60000},
		{"Taylor_Swift", 50000},
		{"Wikipedia:About", 40000},
		{"Tiny", 999},
		{"AI", 30000},
		{"Дом", 25000}, // 3 characters (6 bytes): still too short
		{"Война_и_мир", 22000},
		{"Machine_learning", 20000},
	})
	defer srv.Close()

	got, err := newTopSource(t, srv.URL).Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	want := []string{"Solar eclipse", "Taylor Swift", "Война и мир", "Machine learning"}
	if len(got) != len(want) {
		t.Fatalf("got %d keywords %v, want %v", len(got), got, want)
	}
	for i, kw := range got {
		if kw.Text != want[i] {
			t.Errorf("keyword[%d] = %q, want %q", i, kw.Text, want[i])
		}
		if kw.Source != "wikipedia-top:en" {
			t.Errorf("keyword[%d].Source = %q", i, kw.Source)
		}
	}
}

func TestTopFetch_KeepsAtMostFifteen(t *testing.T) {
	var articles []topArticle
	for i := 0; i < 25; i++ {
		articles = append(articles, topArticle{
			Article: "Long_article_title_" + string(rune('a'+i)),
			Views:   100000 - i,
		})
	}
	srv := topServer(t, articles)
	defer srv.Close()

	got, err := newTopSource(t, srv.URL).Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(got) != 15 {
		t.Fatalf("got %d keywords, want 15", len(got))
	}
}

func TestTopFetch_MissingDayIsEmptySuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	got, err := newTopSource(t, srv.URL).Fetch(context.Background())
	if err != nil {
		t.Fatalf("404 must be an empty success, got %v", err)
	}
	if got != nil {
		t.Errorf("expected no keywords, got %v", got)
	}
}

func TestTopFetch_DefaultsToYesterday(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"items": []}`))
	}))
	defer srv.Close()

	if _, err := newTopSource(t, srv.URL).Fetch(context.Background()); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if !strings.HasSuffix(gotPath, "/all-access/2026/08/29") {
		t.Errorf("expected yesterday's date in path, got %q", gotPath)
	}
}
