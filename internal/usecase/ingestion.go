package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"NewsCollector/internal/domain"
	"NewsCollector/internal/metrics"
	"NewsCollector/internal/ports"
)

// Ingestion wraps one full pipeline invocation in a persisted run record.
// Every run gets a correlation id threaded through all external calls.
type Ingestion struct {
	runs       ports.RunRepository
	sources    ports.SourceRepository
	aggregator ports.CandidateAggregator
	processor  ports.CandidateProcessor
	ingestor   ports.ArticleIngestor
	index      ports.ChunkIndex
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewIngestion(
	runs ports.RunRepository,
	sources ports.SourceRepository,
	aggregator ports.CandidateAggregator,
	processor ports.CandidateProcessor,
	ingestor ports.ArticleIngestor,
	index ports.ChunkIndex,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Ingestion {
	return &Ingestion{
		runs:       runs,
		sources:    sources,
		aggregator: aggregator,
		processor:  processor,
		ingestor:   ingestor,
		index:      index,
		logger:     logger,
		metrics:    m,
		now:        time.Now,
	}
}

// IngestOnce executes a full run across all enabled sources.
func (i *Ingestion) IngestOnce(ctx context.Context, correlationID string) (domain.IngestionRun, error) {
	return i.run(ctx, correlationID, func(ctx context.Context) ([]domain.ArticleCandidate, error) {
		return i.aggregator.Aggregate(ctx)
	})
}

// IngestSourceOnce executes a run limited to a single source, used by the
// on-demand admin trigger.
func (i *Ingestion) IngestSourceOnce(ctx context.Context, sourceID int64, correlationID string) (domain.IngestionRun, error) {
	source, err := i.sources.GetByID(ctx, sourceID)
	if err != nil {
		return domain.IngestionRun{}, fmt.Errorf("load source %d: %w", sourceID, err)
	}

	return i.run(ctx, correlationID, func(ctx context.Context) ([]domain.ArticleCandidate, error) {
		return i.aggregator.AggregateSource(ctx, source)
	})
}

func (i *Ingestion) run(ctx context.Context, correlationID string, aggregate func(context.Context) ([]domain.ArticleCandidate, error)) (domain.IngestionRun, error) {
	started := i.now()

	run, err := i.runs.Create(ctx, domain.IngestionRun{
		CorrelationID: correlationID,
		StartedAt:     started,
		Status:        domain.RunRunning,
	})
	if err != nil {
		return domain.IngestionRun{}, fmt.Errorf("create run record: %w", err)
	}

	i.logger.Info("run: started", "run_id", run.ID, "correlation_id", correlationID)

	if err := i.index.EnsureSchema(ctx); err != nil {
		return i.failRun(ctx, run, fmt.Errorf("ensure vector schema: %w", err))
	}

	fetched, err := aggregate(ctx)
	if err != nil {
		return i.failRun(ctx, run, fmt.Errorf("aggregate candidates: %w", err))
	}

	cleaned, err := i.processor.Process(ctx, fetched)
	if err != nil {
		return i.failRun(ctx, run, fmt.Errorf("process candidates: %w", err))
	}

	processed := i.ingestor.IngestAll(ctx, cleaned, correlationID)

	run.ArticlesFetched = len(cleaned)
	run.ArticlesProcessed = processed
	run.ArticlesFailed = len(cleaned) - processed
	run.CompletedAt = i.now()
	if run.ArticlesFailed == 0 {
		run.Status = domain.RunSuccess
	} else {
		run.Status = domain.RunPartial
	}

	if err := i.runs.Update(ctx, run); err != nil {
		return run, fmt.Errorf("finalize run record: %w", err)
	}

	i.observe(run)
	i.logger.Info("run: completed",
		"run_id", run.ID, "status", run.Status,
		"fetched", run.ArticlesFetched, "processed", run.ArticlesProcessed,
		"failed", run.ArticlesFailed, "took_ms", run.CompletedAt.Sub(run.StartedAt).Milliseconds())

	return run, nil
}

// failRun finalizes the same run record as FAILED and re-raises the cause.
func (i *Ingestion) failRun(ctx context.Context, run domain.IngestionRun, cause error) (domain.IngestionRun, error) {
	run.Status = domain.RunFailed
	run.CompletedAt = i.now()
	run.ErrorDetails = cause.Error()

	if err := i.runs.Update(ctx, run); err != nil {
		i.logger.Error("run: cannot record failure", "run_id", run.ID, "error", err)
	}

	i.observe(run)
	i.logger.Error("run: failed", "run_id", run.ID, "error", cause)
	return run, cause
}

func (i *Ingestion) observe(run domain.IngestionRun) {
	if i.metrics == nil {
		return
	}
	i.metrics.RunsTotal.WithLabelValues(string(run.Status)).Inc()
	i.metrics.RunDuration.Observe(run.CompletedAt.Sub(run.StartedAt).Seconds())
}
