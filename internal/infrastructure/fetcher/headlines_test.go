package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"NewsCollector/internal/domain"
)

func headlineSources(n int) []domain.Source {
	out := make([]domain.Source, 0, n)
	for i := range n {
		out = append(out, domain.Source{
			ID:      int64(i + 1),
			Name:    fmt.Sprintf("Provider %d", i+1),
			Type:    domain.SourceTypeNewsAPI,
			Locator: fmt.Sprintf("provider-%d", i+1),
		})
	}
	return out
}

func TestHeadlineFetcherSupports(t *testing.T) {
	t.Parallel()

	f := NewHeadlineFetcher(nil, HeadlineOptions{APIKey: "k"}, discardLogger())
	if !f.Supports(domain.SourceTypeNewsAPI) {
		t.Fatal("expected NEWSAPI support")
	}
	if f.Supports(domain.SourceTypeRSS) {
		t.Fatal("unexpected RSS support")
	}
}

func TestHeadlineFetcherSkipsWithoutAPIKey(t *testing.T) {
	t.Parallel()

	f := NewHeadlineFetcher(nil, HeadlineOptions{}, discardLogger())
	got, err := f.Fetch(context.Background(), headlineSources(2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no candidates without an api key, got %d", len(got))
	}
}

func TestHeadlineFetcherMapsAndDropsUnmatched(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Api-Key"); got != "secret" {
			t.Errorf("missing api key header, got %q", got)
		}
		q := r.URL.Query()
		if q.Get("sources") != "provider-1" || q.Get("page") != "1" || q.Get("pageSize") != "50" {
			t.Errorf("query params not encoded: %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "ok",
			"articles": [
				{
					"source": {"id": "provider-1", "name": "Provider 1"},
					"author": "A. Reporter",
					"title": "Budget passes after long debate",
					"description": "The vote closed late.",
					"url": "https://example.org/budget",
					"publishedAt": "2026-08-17T10:00:00Z"
				},
				{
					"source": {"id": "unknown-outlet", "name": "Unknown"},
					"title": "Should be dropped",
					"url": "https://example.org/dropped"
				},
				{
					"source": {"id": "provider-1", "name": "Provider 1"},
					"title": "",
					"url": "https://example.org/untitled"
				}
			]
		}`))
	}))
	defer server.Close()

	f := NewHeadlineFetcher(server.Client(), HeadlineOptions{
		APIKey:  "secret",
		BaseURL: server.URL,
	}, discardLogger())

	got, err := f.Fetch(context.Background(), headlineSources(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}

	c := got[0]
	if c.SourceID != 1 || c.SourceName != "Provider 1" {
		t.Fatalf("source attribution wrong: %+v", c)
	}
	if c.Title != "Budget passes after long debate" || c.Author != "A. Reporter" {
		t.Fatalf("fields not mapped: %+v", c)
	}
	want := time.Date(2026, 8, 17, 10, 0, 0, 0, time.UTC)
	if !c.PublishedAt.Equal(want) {
		t.Fatalf("publishedAt = %s, want %s", c.PublishedAt, want)
	}
}

func TestHeadlineFetcherAbandonsBatchOn429(t *testing.T) {
	t.Parallel()

	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	f := NewHeadlineFetcher(server.Client(), HeadlineOptions{
		APIKey:           "secret",
		BaseURL:          server.URL,
		MaxPagesPerBatch: 3,
	}, discardLogger())

	var slept time.Duration
	f.sleep = func(d time.Duration) { slept = d }

	got, err := f.Fetch(context.Background(), headlineSources(1))
	if err != nil {
		t.Fatalf("rate limiting must not fail the batch: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no candidates, got %d", len(got))
	}
	if requests.Load() != 1 {
		t.Fatalf("batch should be abandoned after 429, got %d requests", requests.Load())
	}
	if slept != time.Minute {
		t.Fatalf("Retry-After of 120s should clamp to 60s, slept %s", slept)
	}
}

func TestHeadlineFetcherStopsOnShortPage(t *testing.T) {
	t.Parallel()

	var pagesServed atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pagesServed.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "ok",
			"articles": [
				{"source": {"id": "provider-1"}, "title": "One", "url": "https://example.org/1"}
			]
		}`))
	}))
	defer server.Close()

	f := NewHeadlineFetcher(server.Client(), HeadlineOptions{
		APIKey:           "secret",
		BaseURL:          server.URL,
		PageSize:         50,
		MaxPagesPerBatch: 5,
	}, discardLogger())

	got, err := f.Fetch(context.Background(), headlineSources(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	if pagesServed.Load() != 1 {
		t.Fatalf("a short page should end paging, got %d requests", pagesServed.Load())
	}
}

func TestPartitionSources(t *testing.T) {
	t.Parallel()

	parts := partitionSources(headlineSources(45), 20)
	if len(parts) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(parts))
	}
	if len(parts[0]) != 20 || len(parts[1]) != 20 || len(parts[2]) != 5 {
		t.Fatalf("unexpected batch sizes: %d/%d/%d", len(parts[0]), len(parts[1]), len(parts[2]))
	}
}

func TestParseHeadlineRetryAfter(t *testing.T) {
	t.Parallel()

	cases := []struct {
		header string
		want   time.Duration
	}{
		{"", time.Second},
		{"junk", time.Second},
		{"5", 5 * time.Second},
		{"300", time.Minute},
	}

	for _, tc := range cases {
		if got := parseHeadlineRetryAfter(tc.header); got != tc.want {
			t.Fatalf("parseHeadlineRetryAfter(%q) = %s, want %s", tc.header, got, tc.want)
		}
	}
}
