// Package app wires configuration to the collector's components and owns
// their lifecycle.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"NewsCollector/internal/aggregator"
	"NewsCollector/internal/config"
	"NewsCollector/internal/infrastructure/embedding"
	"NewsCollector/internal/infrastructure/extractor"
	"NewsCollector/internal/infrastructure/fetcher"
	"NewsCollector/internal/infrastructure/nlp"
	"NewsCollector/internal/infrastructure/scheduler"
	"NewsCollector/internal/infrastructure/storage"
	"NewsCollector/internal/infrastructure/vectorstore"
	"NewsCollector/internal/logging"
	"NewsCollector/internal/metrics"
	"NewsCollector/internal/ports"
	"NewsCollector/internal/processor"
	"NewsCollector/internal/server"
	"NewsCollector/internal/usecase"
)

// Application holds the wired components and their shutdown hooks.
type Application struct {
	cfg        config.Config
	logger     *slog.Logger
	db         *sql.DB
	aggregator *aggregator.Aggregator
	ingestion  *usecase.Ingestion
	scheduler  ports.Scheduler
	server     *server.Server
}

// New builds the full component graph. The database must be reachable at
// startup; every other collaborator is contacted lazily.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sourceRepo := storage.NewSourceRepository(db)
	articleRepo := storage.NewArticleRepository(db)
	runRepo := storage.NewRunRepository(db)

	m := metrics.New(prometheus.DefaultRegisterer)

	ex := extractor.New(extractor.Config{
		UserAgent:      cfg.Crawler.UserAgent,
		RequestTimeout: time.Duration(cfg.Crawler.ArticleTimeoutSeconds) * time.Second,
		MaxHTMLBytes:   cfg.Crawler.MaxHTMLBytes,
		MinTextLength:  cfg.Crawler.MinTextLength,
		WarnCooldown:   time.Duration(cfg.Crawler.WarnCooldownMs) * time.Millisecond,
		HostBackoffMax: time.Duration(cfg.Crawler.HostBackoffMaxMs) * time.Millisecond,
	}, nil, baseLogger.With("component", "extractor"), m)

	rssFetcher := fetcher.NewRSSFetcher(ex, nil, fetcher.RSSOptions{
		UserAgent:     cfg.Crawler.UserAgent,
		Timeout:       time.Duration(cfg.RSS.TimeoutSeconds) * time.Second,
		LogPerArticle: cfg.RSS.LogPerArticle,
	}, baseLogger.With("component", "fetcher.rss"))

	headlineFetcher := fetcher.NewHeadlineFetcher(nil, fetcher.HeadlineOptions{
		APIKey:               cfg.NewsAPI.APIKey,
		BaseURL:              cfg.NewsAPI.BaseURL,
		PageSize:             cfg.NewsAPI.PageSize,
		MaxPagesPerBatch:     cfg.NewsAPI.MaxPagesPerBatch,
		MaxSourcesPerRequest: cfg.NewsAPI.MaxSourcesPerRequest,
		MatchBySourceName:    cfg.NewsAPI.MatchBySourceName,
		UserAgent:            cfg.Crawler.UserAgent,
	}, baseLogger.With("component", "fetcher.newsapi"))

	agg, err := aggregator.New(sourceRepo,
		[]ports.SourceFetcher{rssFetcher, headlineFetcher},
		cfg.Ingestion.WorkerPoolSize,
		baseLogger.With("component", "aggregator"))
	if err != nil {
		return nil, fmt.Errorf("build aggregator: %w", err)
	}

	proc := processor.New(articleRepo, baseLogger.With("component", "processor"))

	segmenter := nlp.NewClient(cfg.NLP.BaseURL,
		&http.Client{Timeout: time.Duration(cfg.NLP.TimeoutSeconds) * time.Second},
		baseLogger.With("component", "nlp"))
	embedder := embedding.NewClient(cfg.Embedding.BaseURL, cfg.Embedding.APIKey,
		&http.Client{Timeout: time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second},
		baseLogger.With("component", "embedding"))

	storeClient := vectorstore.NewClient(cfg.Weaviate.BaseURL,
		&http.Client{Timeout: time.Duration(cfg.Weaviate.TimeoutSeconds) * time.Second},
		baseLogger.With("component", "vectorstore"))
	index := vectorstore.NewIndexingService(storeClient, baseLogger.With("component", "vectorstore"))

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Sources:           sourceRepo,
		Articles:          articleRepo,
		Segmenter:         segmenter,
		Embedder:          embedder,
		Index:             index,
		Logger:            baseLogger.With("component", "pipeline"),
		Metrics:           m,
		SentencesPerChunk: cfg.Ingestion.SentencesPerChunk,
		MaxCharsPerChunk:  cfg.Ingestion.MaxCharactersPerChunk,
	})

	ingestion := usecase.NewIngestion(runRepo, sourceRepo, agg, proc, pipeline, index,
		baseLogger.With("component", "ingestion"), m)

	srv := server.New(ingestion, runRepo, sourceRepo, index,
		baseLogger.With("component", "http"))

	cronScheduler := scheduler.NewCronScheduler(cfg.Scheduler.CronExpression, cfg.Scheduler.Location())

	return &Application{
		cfg:        cfg,
		logger:     baseLogger,
		db:         db,
		aggregator: agg,
		ingestion:  ingestion,
		scheduler:  cronScheduler,
		server:     srv,
	}, nil
}

// Run starts the scheduler and the HTTP server, blocking until the context is
// canceled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	job := func(t time.Time) {
		correlationID := uuid.NewString()
		a.logger.Info("scheduler: triggering ingestion run",
			"scheduled_for", t, "correlation_id", correlationID)

		runCtx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
		defer cancel()

		if _, err := a.ingestion.IngestOnce(runCtx, correlationID); err != nil {
			a.logger.Error("scheduler: ingestion run failed", "correlation_id", correlationID, "error", err)
		}
	}

	if err := a.scheduler.Start(ctx, job); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	httpServer := &http.Server{
		Addr:    a.cfg.Server.Addr,
		Handler: a.server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http: listening", "addr", a.cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.shutdown(context.Background(), httpServer)
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.shutdown(shutdownCtx, httpServer)
		return nil
	}
}

func (a *Application) shutdown(ctx context.Context, httpServer *http.Server) {
	if err := httpServer.Shutdown(ctx); err != nil {
		a.logger.Warn("shutdown: http server", "error", err)
	}
	if err := a.scheduler.Stop(ctx); err != nil {
		a.logger.Warn("shutdown: scheduler", "error", err)
	}
	a.aggregator.Release()
	if err := a.db.Close(); err != nil {
		a.logger.Warn("shutdown: database", "error", err)
	}
	a.logger.Info("shutdown: complete")
}
