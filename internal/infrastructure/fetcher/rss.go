// Package fetcher provides the SourceFetcher implementations that turn
// configured sources into article candidates.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"NewsCollector/internal/domain"
	"NewsCollector/internal/ports"
)

// ContentExtractor pulls full article text for feed entries. An empty string
// means extraction failed or yielded too little text.
type ContentExtractor interface {
	ExtractMainText(ctx context.Context, url string) string
}

// RSSOptions tunes the RSS fetcher. Zero values fall back to defaults.
type RSSOptions struct {
	UserAgent     string
	Timeout       time.Duration
	LogPerArticle bool
}

// RSSFetcher downloads configured feeds and keeps only entries whose full
// text could be extracted: an entry without extractable text is dropped, not
// retried.
type RSSFetcher struct {
	extractor ContentExtractor
	client    *http.Client
	parser    *gofeed.Parser
	opts      RSSOptions
	logger    *slog.Logger
}

var _ ports.SourceFetcher = (*RSSFetcher)(nil)

// NewRSSFetcher wires an HTTP client; pass nil to build one with the
// configured timeout.
func NewRSSFetcher(ex ContentExtractor, client *http.Client, opts RSSOptions, logger *slog.Logger) *RSSFetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = "NewsCollector/1.0 (+https://example.com)"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 12 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	return &RSSFetcher{
		extractor: ex,
		client:    client,
		parser:    gofeed.NewParser(),
		opts:      opts,
		logger:    logger,
	}
}

// Supports identifies the source type this fetcher handles.
func (f *RSSFetcher) Supports(t domain.SourceType) bool {
	return t == domain.SourceTypeRSS
}

// Fetch walks each feed source, extracting full text per entry. A failing
// feed is logged and skipped; it never affects the other feeds.
func (f *RSSFetcher) Fetch(ctx context.Context, sources []domain.Source) ([]domain.ArticleCandidate, error) {
	if len(sources) == 0 {
		f.logger.Info("rss: no enabled feeds; skipping")
		return nil, nil
	}

	var out []domain.ArticleCandidate
	totalSeen, totalExtracted, totalSkipped := 0, 0, 0

	for _, src := range sources {
		feedURL := strings.TrimSpace(src.Locator)
		if feedURL == "" {
			totalSkipped++
			continue
		}

		t0 := time.Now()
		f.logger.Info("rss: fetching feed", "source_id", src.ID, "source_name", src.Name, "feed_url", feedURL)

		feed, err := f.fetchFeed(ctx, feedURL)
		if err != nil {
			f.logger.Warn("rss: feed failed", "source_id", src.ID, "feed_url", feedURL, "error", err)
			continue
		}

		seen, extracted, skipped := 0, 0, 0

		for _, item := range feed.Items {
			seen++

			link := strings.TrimSpace(item.Link)
			title := strings.TrimSpace(item.Title)
			if link == "" || title == "" {
				skipped++
				continue
			}

			published := time.Now()
			if item.PublishedParsed != nil {
				published = *item.PublishedParsed
			}

			if f.opts.LogPerArticle {
				f.logger.Debug("rss: extracting fulltext", "source_id", src.ID, "url", link, "title", title)
			}

			fullText := f.extractor.ExtractMainText(ctx, link)
			if fullText == "" {
				if f.opts.LogPerArticle {
					f.logger.Debug("rss: skip, no fulltext extracted", "source_id", src.ID, "url", link)
				}
				skipped++
				continue
			}
			extracted++

			author := ""
			if item.Author != nil {
				author = strings.TrimSpace(item.Author.Name)
			}

			out = append(out, domain.ArticleCandidate{
				SourceID:    src.ID,
				SourceName:  src.Name,
				ExternalURL: link,
				Title:       title,
				Author:      author,
				Description: stripHTML(item.Description),
				Content:     fullText,
				PublishedAt: published,
			})
		}

		f.logger.Info("rss: feed done",
			"source_id", src.ID, "seen", seen, "extracted_ok", extracted, "skipped", skipped,
			"took_ms", time.Since(t0).Milliseconds())

		totalSeen += seen
		totalExtracted += extracted
		totalSkipped += skipped
	}

	f.logger.Info("rss: fetched candidates",
		"candidates", len(out), "entries_seen", totalSeen,
		"extracted_ok", totalExtracted, "skipped", totalSkipped)

	return out, nil
}

func (f *RSSFetcher) fetchFeed(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.1")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("feed fetch non-2xx status=%d", resp.StatusCode)
	}

	feed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	return feed, nil
}

// stripHTML renders feed-entry markup down to plain text.
func stripHTML(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}

	return strings.TrimSpace(doc.Text())
}
