// Package usecase contains the application services: the per-article
// ingestion pipeline and the run-level orchestration around it.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"NewsCollector/internal/chunk"
	"NewsCollector/internal/domain"
	"NewsCollector/internal/metrics"
	"NewsCollector/internal/ports"
)

// PipelineDeps wires the pipeline's collaborators.
type PipelineDeps struct {
	Sources   ports.SourceRepository
	Articles  ports.ArticleRepository
	Segmenter ports.SentenceSegmenter
	Embedder  ports.Embedder
	Index     ports.ChunkIndex
	Logger    *slog.Logger
	Metrics   *metrics.Metrics

	SentencesPerChunk int
	MaxCharsPerChunk  int
}

// Pipeline drives each candidate through the article state machine:
// PENDING -> PROCESSING -> PROCESSED or FAILED. A failure in one article is
// recorded on that article and never interrupts the rest of the batch.
type Pipeline struct {
	deps PipelineDeps
}

var _ ports.ArticleIngestor = (*Pipeline)(nil)

func NewPipeline(deps PipelineDeps) *Pipeline {
	if deps.SentencesPerChunk <= 0 {
		deps.SentencesPerChunk = 4
	}
	if deps.MaxCharsPerChunk <= 0 {
		deps.MaxCharsPerChunk = 1200
	}
	return &Pipeline{deps: deps}
}

// IngestAll processes the batch and returns how many articles reached
// PROCESSED. Skips (no usable text, duplicate URL) count as neither processed
// nor failed.
func (p *Pipeline) IngestAll(ctx context.Context, candidates []domain.ArticleCandidate, correlationID string) int {
	processed := 0

	for _, cand := range candidates {
		ok, err := p.ingestOne(ctx, cand, correlationID)
		if err != nil {
			p.deps.Logger.Error("pipeline: article failed",
				"url", cand.ExternalURL, "correlation_id", correlationID, "error", err)
			if p.deps.Metrics != nil {
				p.deps.Metrics.ArticlesFailedTotal.Inc()
			}
			continue
		}
		if ok {
			processed++
			if p.deps.Metrics != nil {
				p.deps.Metrics.ArticlesProcessedTotal.Inc()
			}
		}
	}

	return processed
}

// ingestOne returns (true, nil) when the article reached PROCESSED,
// (false, nil) on a benign skip, and (false, err) when the article was marked
// FAILED.
func (p *Pipeline) ingestOne(ctx context.Context, cand domain.ArticleCandidate, correlationID string) (bool, error) {
	if cand.SourceID == 0 {
		p.deps.Logger.Warn("pipeline: skip candidate without source", "url", cand.ExternalURL)
		return false, nil
	}

	source, err := p.deps.Sources.GetByID(ctx, cand.SourceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			p.deps.Logger.Warn("pipeline: skip candidate with unknown source",
				"source_id", cand.SourceID, "url", cand.ExternalURL)
			return false, nil
		}
		return false, fmt.Errorf("resolve source %d: %w", cand.SourceID, err)
	}

	sourceName := cand.SourceName
	if sourceName == "" {
		sourceName = source.Name
	}

	text := usableText(cand)
	if text == "" {
		p.deps.Logger.Warn("pipeline: skip candidate without usable text", "url", cand.ExternalURL)
		return false, nil
	}

	article, err := p.deps.Articles.Create(ctx, domain.Article{
		SourceID:    cand.SourceID,
		ExternalURL: cand.ExternalURL,
		Title:       cand.Title,
		Description: cand.Description,
		PublishedAt: cand.PublishedAt,
		Status:      domain.StatusPending,
		FetchedAt:   time.Now(),
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateArticle) {
			p.deps.Logger.Debug("pipeline: skip duplicate url", "url", cand.ExternalURL)
			return false, nil
		}
		return false, fmt.Errorf("persist article: %w", err)
	}

	if err := p.processAndIndex(ctx, &article, sourceName, text, correlationID); err != nil {
		p.markFailed(ctx, article, err)
		return false, err
	}

	return true, nil
}

func (p *Pipeline) processAndIndex(ctx context.Context, article *domain.Article, sourceName, text, correlationID string) error {
	article.Status = domain.StatusProcessing
	if err := p.deps.Articles.Update(ctx, *article); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	sentences, err := p.deps.Segmenter.Segment(ctx, text, correlationID)
	if err != nil {
		return fmt.Errorf("segment text: %w", err)
	}
	if len(sentences) == 0 {
		return errors.New("segmenter returned no sentences")
	}

	chunks := chunk.Split(sentences, p.deps.SentencesPerChunk, p.deps.MaxCharsPerChunk)
	if len(chunks) == 0 {
		return errors.New("chunking produced no chunks")
	}

	embeddings, err := p.deps.Embedder.EmbedChunks(ctx, chunks, correlationID)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}

	if err := p.deps.Index.IndexArticleChunks(ctx, *article, sourceName, chunks, embeddings, correlationID); err != nil {
		return fmt.Errorf("index chunks: %w", err)
	}

	article.Status = domain.StatusProcessed
	article.ChunkCount = len(chunks)
	article.Indexed = true
	article.ErrorMessage = ""
	if err := p.deps.Articles.Update(ctx, *article); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}

	p.deps.Logger.Info("pipeline: article processed",
		"article_id", article.ID, "chunks", len(chunks), "correlation_id", correlationID)
	return nil
}

// markFailed records the failure on the article. A persistence error here is
// only logged: the original failure already determines the article's fate.
func (p *Pipeline) markFailed(ctx context.Context, article domain.Article, cause error) {
	article.Status = domain.StatusFailed
	article.ErrorMessage = truncate(cause.Error(), 1000)

	if err := p.deps.Articles.Update(ctx, article); err != nil {
		p.deps.Logger.Error("pipeline: cannot record article failure",
			"article_id", article.ID, "error", err)
	}
}

// usableText prefers the full extracted content and falls back to the feed
// description.
func usableText(cand domain.ArticleCandidate) string {
	if t := strings.TrimSpace(cand.Content); t != "" {
		return t
	}
	return strings.TrimSpace(cand.Description)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
