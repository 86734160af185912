package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"ContentCurator/internal/connector"
)

func TestNewsAPIBuildURL(t *testing.T) {
	t.Parallel()

	c := NewNewsAPI("newsapi", "https://newsapi.example.org/v2/everything", "secret", nil)

	from := time.Date(2026, time.August, 28, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, time.August, 30, 0, 0, 0, 0, time.UTC)
	u, err := c.buildURL(connector.Query{
		Keywords: []string{"ai", "chips"},
		From:     from,
		To:       to,
		Limit:    25,
	})
	if err != nil {
		t.Fatalf("buildURL error: %v", err)
	}

	parsed, err := url.Parse(u)
	if err != nil {
		t.Fatalf("parse result: %v", err)
	}

	q := parsed.Query()
	if q.Get("q") != "ai OR chips" {
		t.Fatalf("unexpected q: %s", q.Get("q"))
	}
	if q.Get("from") != "2026-08-28" {
		t.Fatalf("unexpected from: %s", q.Get("from"))
	}
	if q.Get("to") != "2026-08-30" {
		t.Fatalf("unexpected to: %s", q.Get("to"))
	}
	if q.Get("pageSize") != "25" {
		t.Fatalf("unexpected pageSize: %s", q.Get("pageSize"))
	}
	if q.Get("apiKey") != "secret" {
		t.Fatalf("unexpected apiKey: %s", q.Get("apiKey"))
	}
}

func TestNewsAPISearch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "ok",
			"articles": [
				{
					"source": {"id": "techdaily", "name": "Tech Daily"},
					"title": "Chipmaker Unveils New Accelerator",
					"description": "A new inference chip was announced today.",
					"url": "https://techdaily.example.org/accelerator",
					"publishedAt": "2026-08-29T10:30:00Z"
				},
				{
					"source": {"id": "", "name": "Wire"},
					"title": "Minor Update",
					"description": "",
					"url": "https://wire.example.org/minor",
					"publishedAt": "not-a-date"
				}
			]
		}`))
	}))
	defer server.Close()

	c := NewNewsAPI("newsapi", server.URL, "secret", server.Client())

	candidates, err := c.Search(context.Background(), connector.Query{Keywords: []string{"chips"}})
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}

	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}

	first := candidates[0]
	if first.ExternalID != "techdaily:https://techdaily.example.org/accelerator" {
		t.Fatalf("unexpected id: %s", first.ExternalID)
	}
	if first.Title != "Chipmaker Unveils New Accelerator" {
		t.Fatalf("unexpected title: %s", first.Title)
	}
	if first.Provider != "newsapi" {
		t.Fatalf("unexpected provider: %s", first.Provider)
	}
	if first.PublishedAt.IsZero() {
		t.Fatal("expected a parsed publish date")
	}

	// Malformed timestamps are tolerated, not fatal.
	if !candidates[1].PublishedAt.IsZero() {
		t.Fatalf("expected zero time for malformed date, got %v", candidates[1].PublishedAt)
	}
}

func TestNewsAPISearchServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewNewsAPI("newsapi", server.URL, "secret", server.Client())

	_, err := c.Search(context.Background(), connector.Query{})
	if err == nil {
		t.Fatal("expected error")
	}
}
