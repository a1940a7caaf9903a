package ports

import (
	"context"
	"time"

	"NewsCollector/internal/domain"
)

// SourceFetcher turns configured sources of a supported type into article
// candidates. Implementations are registered in a list the aggregator walks;
// a source is handed to the first fetcher whose Supports returns true.
type SourceFetcher interface {
	Supports(t domain.SourceType) bool
	Fetch(ctx context.Context, sources []domain.Source) ([]domain.ArticleCandidate, error)
}

// CandidateAggregator fans out all enabled sources across fetchers and
// concatenates their results, isolating per-fetcher failures.
type CandidateAggregator interface {
	Aggregate(ctx context.Context) ([]domain.ArticleCandidate, error)
	AggregateSource(ctx context.Context, source domain.Source) ([]domain.ArticleCandidate, error)
}

// CandidateProcessor validates, normalizes, and deduplicates fetched
// candidates, including the cross-run filter against persisted URLs.
type CandidateProcessor interface {
	Process(ctx context.Context, candidates []domain.ArticleCandidate) ([]domain.ArticleCandidate, error)
}

// ArticleIngestor runs the per-article state machine over a batch of
// candidates and reports how many reached PROCESSED. Per-article failures are
// contained inside the call.
type ArticleIngestor interface {
	IngestAll(ctx context.Context, candidates []domain.ArticleCandidate, correlationID string) int
}

// SourceRepository provides read/write access to configured sources.
type SourceRepository interface {
	ListEnabled(ctx context.Context) ([]domain.Source, error)
	List(ctx context.Context) ([]domain.Source, error)
	GetByID(ctx context.Context, id int64) (domain.Source, error)
	Create(ctx context.Context, source domain.Source) (domain.Source, error)
	Update(ctx context.Context, source domain.Source) (domain.Source, error)
}

// ArticleRepository persists articles and answers the batch existence query
// used for cross-run deduplication. Create returns domain.ErrDuplicateArticle
// on a URL uniqueness conflict.
type ArticleRepository interface {
	Create(ctx context.Context, article domain.Article) (domain.Article, error)
	Update(ctx context.Context, article domain.Article) error
	FindExistingURLs(ctx context.Context, urls []string) (map[string]bool, error)
}

// RunRepository records ingestion runs. List returns one page ordered by
// start time descending plus the total run count.
type RunRepository interface {
	Create(ctx context.Context, run domain.IngestionRun) (domain.IngestionRun, error)
	Update(ctx context.Context, run domain.IngestionRun) error
	GetByID(ctx context.Context, id int64) (domain.IngestionRun, error)
	List(ctx context.Context, page, size int) ([]domain.IngestionRun, int64, error)
}

// SentenceSegmenter is the external NLP preprocess collaborator. An empty
// sentence list is a hard failure for the article being processed.
type SentenceSegmenter interface {
	Segment(ctx context.Context, text, correlationID string) ([]string, error)
}

// Embedder turns ordered chunk texts into ordered fixed-dimension vectors,
// one per chunk.
type Embedder interface {
	EmbedChunks(ctx context.Context, chunks []string, correlationID string) ([][]float64, error)
}

// ChunkIndex drives the external vector store: schema management, batch
// upsert, nearest-neighbor search, and ordered chunk retrieval.
type ChunkIndex interface {
	EnsureSchema(ctx context.Context) error
	IndexArticleChunks(ctx context.Context, article domain.Article, sourceName string, chunks []string, embeddings [][]float64, correlationID string) error
	SearchByEmbedding(ctx context.Context, embedding []float64, limit int, minScore float64, correlationID string) ([]domain.ChunkResult, error)
	ChunksForArticle(ctx context.Context, articleID int64) ([]string, error)
}

// Scheduler controls when ingestion runs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
