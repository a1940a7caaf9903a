// Package extractor fetches article pages and pulls out their main body text.
package extractor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"NewsCollector/internal/metrics"
)

const (
	defaultUserAgent      = "NewsCollector/1.0 (+https://example.com)"
	defaultRequestTimeout = 15 * time.Second
	defaultMaxHTMLBytes   = 2 * 1024 * 1024
	defaultMinTextLength  = 400
	defaultWarnCooldown   = time.Minute
	defaultBackoff        = 5 * time.Second
	defaultBackoffMax     = 5 * time.Minute

	connectTimeout   = 7 * time.Second
	minParagraphLen  = 30
	minDenseParas    = 3
	mainCandidateSel = "main, [role=main], #content, #main, .content, .main, .article, .post, .entry-content"
)

var (
	multiWS    = regexp.MustCompile(`\s+`)
	lineBreaks = regexp.MustCompile(`[\r\n]+`)
)

// removeSelectors are stripped before any scoring: scripts, chrome, forms,
// and boilerplate-role elements.
var removeSelectors = []string{
	"script", "style", "noscript", "svg", "canvas",
	"header", "footer", "nav", "aside",
	"form", "button", "input",
	"[role=banner]", "[role=navigation]", "[role=contentinfo]",
}

// badClassIDHints mark elements whose class or id suggests non-content.
var badClassIDHints = []string{
	"cookie", "consent", "subscribe", "newsletter",
	"promo", "advert", "ads", "banner", "paywall",
	"share", "social", "comment", "related", "recommend",
}

// Config tunes the extractor. Zero values fall back to defaults.
type Config struct {
	UserAgent      string
	RequestTimeout time.Duration
	MaxHTMLBytes   int64
	MinTextLength  int
	WarnCooldown   time.Duration
	HostBackoffMax time.Duration
}

// Extractor downloads a URL and applies a main-content heuristic. It never
// returns an error to the caller: every failure degrades to "no text".
// Per-host backoff and warn-cooldown state is shared across all concurrent
// fetch tasks.
type Extractor struct {
	cfg     Config
	client  *http.Client
	logger  *slog.Logger
	metrics *metrics.Metrics

	backoffUntil sync.Map // host -> time.Time
	lastWarn     sync.Map // host -> time.Time
}

// New wires an HTTP client; pass nil to build one with the default connect
// and request timeouts.
func New(cfg Config, client *http.Client, logger *slog.Logger, m *metrics.Metrics) *Extractor {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.MaxHTMLBytes <= 0 {
		cfg.MaxHTMLBytes = defaultMaxHTMLBytes
	}
	if cfg.MinTextLength <= 0 {
		cfg.MinTextLength = defaultMinTextLength
	}
	if cfg.WarnCooldown <= 0 {
		cfg.WarnCooldown = defaultWarnCooldown
	}
	if cfg.HostBackoffMax <= 0 {
		cfg.HostBackoffMax = defaultBackoffMax
	}

	if client == nil {
		client = &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				Proxy:       http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
			},
		}
	}

	return &Extractor{cfg: cfg, client: client, logger: logger, metrics: m}
}

// ExtractMainText fetches the URL and returns cleaned main-body text, or ""
// when the host is backing off, the fetch fails, or the page yields too
// little text.
func (e *Extractor) ExtractMainText(ctx context.Context, rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		e.warnOrDebug(rawURL, "invalid url", err)
		return ""
	}

	host := hostOf(parsed)
	if until, ok := e.backoffDeadline(host); ok {
		e.debug("host backoff active", "host", host, "until", until, "url", rawURL)
		return ""
	}

	body, contentType, err := e.fetchHTML(ctx, rawURL, host)
	if err != nil {
		e.warnOrDebug(rawURL, "fetch failed", err)
		return ""
	}
	if len(body) == 0 {
		return ""
	}

	text := e.extractFromHTML(body, contentType)
	text = normalize(text)

	if len(text) < e.cfg.MinTextLength {
		e.debug("text too short", "len", len(text), "url", rawURL)
		e.countFailure("too_short")
		return ""
	}

	return text
}

func (e *Extractor) fetchHTML(ctx context.Context, rawURL, host string) ([]byte, string, error) {
	e.debug("GET", "url", rawURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", e.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := e.client.Do(req)
	if err != nil {
		e.countFailure("fetch")
		return nil, "", fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")

	if resp.StatusCode == http.StatusTooManyRequests {
		backoff := parseRetryAfter(resp.Header.Get("Retry-After"), e.cfg.HostBackoffMax)
		e.backoffUntil.Store(host, time.Now().Add(backoff))
		e.countFailure("rate_limited")
		return nil, "", fmt.Errorf("rate limited status=429 backoff=%s url=%s", backoff, rawURL)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e.countFailure("fetch")
		return nil, "", fmt.Errorf("non-2xx status=%d contentType=%s url=%s", resp.StatusCode, contentType, rawURL)
	}

	if ct := strings.ToLower(contentType); ct != "" &&
		!strings.Contains(ct, "text/html") && !strings.Contains(ct, "application/xhtml+xml") {
		e.countFailure("fetch")
		return nil, "", fmt.Errorf("non-HTML contentType=%s url=%s", contentType, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.cfg.MaxHTMLBytes+1))
	if err != nil {
		e.countFailure("fetch")
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > e.cfg.MaxHTMLBytes {
		e.countFailure("fetch")
		return nil, "", fmt.Errorf("body exceeded %d bytes url=%s", e.cfg.MaxHTMLBytes, rawURL)
	}

	return body, contentType, nil
}

func (e *Extractor) extractFromHTML(body []byte, contentType string) string {
	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		reader = bytes.NewReader(body)
	}

	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return ""
	}

	for _, sel := range removeSelectors {
		doc.Find(sel).Remove()
	}
	removeByHints(doc)

	if text := bestTextFromSelection(doc.Find("article")); len(text) >= e.cfg.MinTextLength {
		return text
	}

	if text := bestTextFromSelection(doc.Find(mainCandidateSel)); len(text) >= e.cfg.MinTextLength {
		return text
	}

	body2 := doc.Find("body")
	if body2.Length() == 0 {
		return ""
	}

	var best *goquery.Selection
	bestScore := 0

	body2.Find("div, section").Each(func(_ int, el *goquery.Selection) {
		paragraphs := el.Find("p")
		if paragraphs.Length() < minDenseParas {
			return
		}

		score := 0
		paragraphs.Each(func(_ int, p *goquery.Selection) {
			score += len(p.Text())
		})

		if score > bestScore {
			bestScore = score
			best = el
		}
	})

	if best == nil {
		return strings.TrimSpace(body2.Text())
	}

	return paragraphText(best)
}

func removeByHints(doc *goquery.Document) {
	doc.Find("[class], [id]").Each(func(_ int, el *goquery.Selection) {
		class, _ := el.Attr("class")
		id, _ := el.Attr("id")
		hay := strings.ToLower(class + " " + id)

		for _, hint := range badClassIDHints {
			if strings.Contains(hay, hint) {
				el.Remove()
				return
			}
		}
	})
}

// bestTextFromSelection scores each element by the concatenated length of its
// substantial paragraphs and returns the winner's text.
func bestTextFromSelection(els *goquery.Selection) string {
	best := ""

	els.Each(func(_ int, el *goquery.Selection) {
		text := paragraphText(el)
		if text == "" {
			text = strings.TrimSpace(el.Text())
		}
		if len(text) > len(best) {
			best = text
		}
	})

	return best
}

// paragraphText joins an element's paragraphs of at least minParagraphLen
// characters with newlines.
func paragraphText(el *goquery.Selection) string {
	var sb strings.Builder

	el.Find("p").Each(func(_ int, p *goquery.Selection) {
		t := strings.TrimSpace(p.Text())
		if len(t) < minParagraphLen {
			return
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(t)
	})

	return sb.String()
}

// normalize trims the text, collapses internal whitespace per line, drops
// blank lines, and joins the remainder with single newlines.
func normalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	var sb strings.Builder
	for _, part := range lineBreaks.Split(s, -1) {
		line := strings.TrimSpace(multiWS.ReplaceAllString(part, " "))
		if line == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(line)
	}

	return sb.String()
}

// parseRetryAfter interprets the header as seconds. Absent, malformed, or
// non-positive values fall back to the 5s default; the result is clamped to
// maxBackoff.
func parseRetryAfter(header string, maxBackoff time.Duration) time.Duration {
	backoff := defaultBackoff

	if v := strings.TrimSpace(header); v != "" {
		if sec, err := strconv.ParseInt(v, 10, 64); err == nil && sec > 0 {
			backoff = time.Duration(sec) * time.Second
		}
	}

	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	return backoff
}

func (e *Extractor) backoffDeadline(host string) (time.Time, bool) {
	v, ok := e.backoffUntil.Load(host)
	if !ok {
		return time.Time{}, false
	}
	until := v.(time.Time)
	if time.Now().After(until) {
		return time.Time{}, false
	}
	return until, true
}

// warnOrDebug logs at warn level at most once per cooldown window per host;
// repeats within the window are demoted to debug.
func (e *Extractor) warnOrDebug(rawURL, msg string, err error) {
	host := safeHost(rawURL)
	now := time.Now()

	if v, ok := e.lastWarn.Load(host); ok && now.Sub(v.(time.Time)) < e.cfg.WarnCooldown {
		e.debug(msg, "url", rawURL, "error", err)
		return
	}

	e.lastWarn.Store(host, now)
	if e.logger != nil {
		e.logger.Warn(msg, "url", rawURL, "error", err)
	}
}

func (e *Extractor) debug(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}

func (e *Extractor) countFailure(reason string) {
	if e.metrics != nil {
		e.metrics.ExtractorFailuresTotal.WithLabelValues(reason).Inc()
	}
}

func hostOf(u *url.URL) string {
	if h := u.Hostname(); h != "" {
		return h
	}
	return "unknown"
}

func safeHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "unknown"
	}
	return hostOf(u)
}
