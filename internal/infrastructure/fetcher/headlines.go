package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"NewsCollector/internal/domain"
	"NewsCollector/internal/ports"
)

// errRateLimited signals that the provider returned 429 and the remaining
// pages of the current batch should be abandoned.
var errRateLimited = errors.New("headline api rate limited")

// HeadlineOptions tunes the headline-API fetcher. Zero values fall back to
// provider defaults.
type HeadlineOptions struct {
	APIKey               string
	BaseURL              string
	PageSize             int
	MaxPagesPerBatch     int
	MaxSourcesPerRequest int
	MatchBySourceName    bool
	UserAgent            string
	Timeout              time.Duration
}

// HeadlineFetcher pulls top headlines from a NewsAPI-shaped provider. Sources
// are partitioned into batches to stay under the provider's query-size limit;
// returned items are mapped back to locally configured sources by provider id
// (optionally by display name) and dropped when no match exists.
type HeadlineFetcher struct {
	client *http.Client
	opts   HeadlineOptions
	logger *slog.Logger
	sleep  func(time.Duration)
}

var _ ports.SourceFetcher = (*HeadlineFetcher)(nil)

// NewHeadlineFetcher wires an HTTP client; pass nil to build one with the
// configured timeout.
func NewHeadlineFetcher(client *http.Client, opts HeadlineOptions, logger *slog.Logger) *HeadlineFetcher {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://newsapi.org/v2/top-headlines"
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	if opts.MaxPagesPerBatch <= 0 {
		opts.MaxPagesPerBatch = 1
	}
	if opts.MaxSourcesPerRequest <= 0 {
		opts.MaxSourcesPerRequest = 20
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "NewsCollector/1.0"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	return &HeadlineFetcher{client: client, opts: opts, logger: logger, sleep: time.Sleep}
}

// Supports identifies the source type this fetcher handles.
func (f *HeadlineFetcher) Supports(t domain.SourceType) bool {
	return t == domain.SourceTypeNewsAPI
}

// Fetch queries the provider batch by batch, paging until a page comes back
// short or the per-batch page cap is hit.
func (f *HeadlineFetcher) Fetch(ctx context.Context, sources []domain.Source) ([]domain.ArticleCandidate, error) {
	if len(sources) == 0 {
		f.logger.Info("newsapi: no enabled sources; skipping")
		return nil, nil
	}
	if strings.TrimSpace(f.opts.APIKey) == "" {
		f.logger.Warn("newsapi: api key empty; skipping")
		return nil, nil
	}

	valid := make([]domain.Source, 0, len(sources))
	for _, s := range sources {
		if strings.TrimSpace(s.Locator) != "" {
			valid = append(valid, s)
		}
	}
	if len(valid) == 0 {
		f.logger.Info("newsapi: enabled sources exist but provider id empty; skipping")
		return nil, nil
	}

	batches := partitionSources(valid, f.opts.MaxSourcesPerRequest)
	f.logger.Info("newsapi: starting fetch",
		"sources", len(valid), "batches", len(batches),
		"page_size", f.opts.PageSize, "max_pages_per_batch", f.opts.MaxPagesPerBatch)

	var out []domain.ArticleCandidate

	for b, batch := range batches {
		byProviderID := make(map[string]domain.Source, len(batch))
		byName := make(map[string]domain.Source, len(batch))
		ids := make([]string, 0, len(batch))

		for _, s := range batch {
			id := strings.TrimSpace(s.Locator)
			byProviderID[id] = s
			byName[strings.ToLower(strings.TrimSpace(s.Name))] = s
			ids = append(ids, id)
		}
		sourcesParam := strings.Join(ids, ",")

		for page := 1; page <= f.opts.MaxPagesPerBatch; page++ {
			resp, err := f.topHeadlines(ctx, sourcesParam, page)
			if err != nil {
				if !errors.Is(err, errRateLimited) {
					f.logger.Warn("newsapi: request failed", "batch", b+1, "page", page, "error", err)
				}
				break
			}
			if len(resp.Articles) == 0 {
				break
			}

			accepted := 0
			for _, a := range resp.Articles {
				if cand, ok := f.toCandidate(a, byProviderID, byName); ok {
					out = append(out, cand)
					accepted++
				}
			}

			f.logger.Info("newsapi: page done",
				"batch", b+1, "batches", len(batches), "page", page,
				"returned", len(resp.Articles), "accepted", accepted)

			if len(resp.Articles) < f.opts.PageSize {
				break
			}
		}
	}

	f.logger.Info("newsapi: fetched candidates", "candidates", len(out))
	return out, nil
}

type headlineResponse struct {
	Status   string            `json:"status"`
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Articles []headlineArticle `json:"articles"`
}

type headlineArticle struct {
	Source struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"source"`
	Author      string `json:"author"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
	Content     string `json:"content"`
}

func (f *HeadlineFetcher) topHeadlines(ctx context.Context, sourcesParam string, page int) (*headlineResponse, error) {
	params := url.Values{}
	params.Set("sources", sourcesParam)
	params.Set("page", strconv.Itoa(page))
	params.Set("pageSize", strconv.Itoa(f.opts.PageSize))
	reqURL := f.opts.BaseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("X-Api-Key", f.opts.APIKey)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		wait := parseHeadlineRetryAfter(resp.Header.Get("Retry-After"))
		f.logger.Warn("newsapi: 429, sleeping then abandoning batch", "sleep_ms", wait.Milliseconds())
		f.sleep(wait)
		return nil, errRateLimited
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("non-2xx status=%d page=%d", resp.StatusCode, page)
	}

	var parsed headlineResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if !strings.EqualFold(parsed.Status, "ok") {
		return nil, fmt.Errorf("non-ok status=%s code=%s message=%s", parsed.Status, parsed.Code, parsed.Message)
	}

	return &parsed, nil
}

// toCandidate maps a provider item back to a configured source. Items whose
// provider source cannot be matched are dropped, never fabricated.
func (f *HeadlineFetcher) toCandidate(a headlineArticle, byProviderID, byName map[string]domain.Source) (domain.ArticleCandidate, bool) {
	externalURL := strings.TrimSpace(a.URL)
	title := strings.TrimSpace(a.Title)
	if externalURL == "" || title == "" {
		return domain.ArticleCandidate{}, false
	}

	internal, ok := byProviderID[strings.TrimSpace(a.Source.ID)]
	if !ok && f.opts.MatchBySourceName && a.Source.Name != "" {
		internal, ok = byName[strings.ToLower(strings.TrimSpace(a.Source.Name))]
	}
	if !ok {
		return domain.ArticleCandidate{}, false
	}

	var published time.Time
	if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(a.PublishedAt)); err == nil {
		published = ts
	}

	return domain.ArticleCandidate{
		SourceID:    internal.ID,
		SourceName:  internal.Name,
		ExternalURL: externalURL,
		Title:       title,
		Author:      strings.TrimSpace(a.Author),
		Description: strings.TrimSpace(a.Description),
		Content:     strings.TrimSpace(a.Content),
		PublishedAt: published,
	}, true
}

// parseHeadlineRetryAfter interprets the header as seconds, defaulting to 1s
// and clamping to 60s.
func parseHeadlineRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return time.Second
	}

	sec, err := strconv.ParseInt(header, 10, 64)
	if err != nil {
		return time.Second
	}

	wait := time.Duration(sec) * time.Second
	if wait > time.Minute {
		wait = time.Minute
	}
	return wait
}

func partitionSources(sources []domain.Source, size int) [][]domain.Source {
	if size < 1 {
		size = 1
	}

	parts := make([][]domain.Source, 0, (len(sources)+size-1)/size)
	for i := 0; i < len(sources); i += size {
		end := min(i+size, len(sources))
		parts = append(parts, sources[i:end])
	}
	return parts
}
