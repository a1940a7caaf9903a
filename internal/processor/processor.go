// Package processor cleans a fetched candidate batch before ingestion:
// validation, field normalization, in-batch deduplication, and the cross-run
// filter against already persisted URLs.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"NewsCollector/internal/domain"
	"NewsCollector/internal/ports"
)

// Future-dated timestamps within this skew are kept, anything beyond is
// treated as invalid clock data and the candidate is dropped.
const maxFutureSkew = 24 * time.Hour

var whitespaceRun = regexp.MustCompile(`\s+`)

// Processor implements ports.CandidateProcessor.
type Processor struct {
	articles ports.ArticleRepository
	logger   *slog.Logger
	now      func() time.Time
}

var _ ports.CandidateProcessor = (*Processor)(nil)

func New(articles ports.ArticleRepository, logger *slog.Logger) *Processor {
	return &Processor{articles: articles, logger: logger, now: time.Now}
}

// Process runs the batch through validate, normalize, dedupe, and the
// persisted-URL filter, in that order. Only the repository lookup can fail;
// bad candidates are dropped with a warning, never returned as errors.
func (p *Processor) Process(ctx context.Context, candidates []domain.ArticleCandidate) ([]domain.ArticleCandidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	valid := p.validate(candidates)
	normalized := p.normalize(valid)
	deduped := p.dedupe(normalized)

	kept, err := p.filterExisting(ctx, deduped)
	if err != nil {
		return nil, err
	}

	p.logger.Info("process: batch cleaned",
		"fetched", len(candidates), "valid", len(valid),
		"after_dedupe", len(deduped), "new", len(kept))

	return kept, nil
}

func (p *Processor) validate(in []domain.ArticleCandidate) []domain.ArticleCandidate {
	out := make([]domain.ArticleCandidate, 0, len(in))
	horizon := p.now().Add(maxFutureSkew)

	for _, c := range in {
		switch {
		case c.SourceID == 0:
			p.logger.Warn("process: drop candidate without source", "url", c.ExternalURL)
		case strings.TrimSpace(c.ExternalURL) == "":
			p.logger.Warn("process: drop candidate without url", "title", c.Title)
		case strings.TrimSpace(c.Title) == "":
			p.logger.Warn("process: drop candidate without title", "url", c.ExternalURL)
		case !c.PublishedAt.IsZero() && c.PublishedAt.After(horizon):
			p.logger.Warn("process: drop candidate published in the future",
				"url", c.ExternalURL, "published_at", c.PublishedAt)
		default:
			out = append(out, c)
		}
	}
	return out
}

func (p *Processor) normalize(in []domain.ArticleCandidate) []domain.ArticleCandidate {
	out := make([]domain.ArticleCandidate, 0, len(in))
	for _, c := range in {
		c.SourceName = cleanWhitespace(c.SourceName)
		c.Title = cleanWhitespace(c.Title)
		c.Author = cleanWhitespace(c.Author)
		c.Description = cleanWhitespace(c.Description)
		c.ExternalURL = CanonicalizeURL(c.ExternalURL)
		out = append(out, c)
	}
	return out
}

// dedupe keeps the first candidate per canonical URL, preserving batch order.
func (p *Processor) dedupe(in []domain.ArticleCandidate) []domain.ArticleCandidate {
	seen := make(map[string]bool, len(in))
	out := make([]domain.ArticleCandidate, 0, len(in))

	for _, c := range in {
		if seen[c.ExternalURL] {
			continue
		}
		seen[c.ExternalURL] = true
		out = append(out, c)
	}
	return out
}

func (p *Processor) filterExisting(ctx context.Context, in []domain.ArticleCandidate) ([]domain.ArticleCandidate, error) {
	if len(in) == 0 {
		return nil, nil
	}

	urls := make([]string, 0, len(in))
	for _, c := range in {
		urls = append(urls, c.ExternalURL)
	}

	existing, err := p.articles.FindExistingURLs(ctx, urls)
	if err != nil {
		return nil, fmt.Errorf("lookup existing urls: %w", err)
	}

	out := make([]domain.ArticleCandidate, 0, len(in))
	for _, c := range in {
		if existing[c.ExternalURL] {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// CanonicalizeURL lowercases scheme and host, drops query and fragment, and
// strips a single trailing slash from the path. Unparseable input is returned
// trimmed so the uniqueness constraint still applies to it verbatim.
func CanonicalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.RawQuery = ""
	u.Fragment = ""
	u.RawFragment = ""

	canon := u.String()
	if strings.HasSuffix(u.Path, "/") && u.Path != "/" {
		canon = strings.TrimSuffix(canon, "/")
	}
	return canon
}

func cleanWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}
