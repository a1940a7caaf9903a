// Package server exposes the admin and search HTTP surface.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"NewsCollector/internal/domain"
	"NewsCollector/internal/ports"
)

// IngestionService is the run-triggering surface of the ingestion usecase.
type IngestionService interface {
	IngestOnce(ctx context.Context, correlationID string) (domain.IngestionRun, error)
	IngestSourceOnce(ctx context.Context, sourceID int64, correlationID string) (domain.IngestionRun, error)
}

// Server wires the HTTP routes to the application services.
type Server struct {
	ingestion IngestionService
	runs      ports.RunRepository
	sources   ports.SourceRepository
	index     ports.ChunkIndex
	logger    *slog.Logger
	engine    *gin.Engine
}

func New(ingestion IngestionService, runs ports.RunRepository, sources ports.SourceRepository, index ports.ChunkIndex, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		ingestion: ingestion,
		runs:      runs,
		sources:   sources,
		index:     index,
		logger:    logger,
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLog())

	engine.GET("/health", s.health)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	admin := engine.Group("/admin")
	{
		admin.POST("/ingestion/run", s.triggerRun)
		admin.POST("/ingestion/run/:sourceId", s.triggerSourceRun)
		admin.GET("/ingestion/runs", s.listRuns)
		admin.GET("/ingestion/runs/:id", s.getRun)
		admin.GET("/sources", s.listSources)
		admin.POST("/sources", s.createSource)
		admin.PATCH("/sources/:id", s.updateSource)
	}

	engine.POST("/search", s.search)
	engine.GET("/articles/:id/chunks", s.articleChunks)

	s.engine = engine
	return s
}

// Handler exposes the router for http.Server wiring and tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("http: request",
			"method", c.Request.Method, "path", c.FullPath(),
			"status", c.Writer.Status(), "took_ms", time.Since(start).Milliseconds())
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

func correlationID(c *gin.Context) string {
	if id := c.Query("correlationId"); id != "" {
		return id
	}
	return uuid.NewString()
}

func (s *Server) triggerRun(c *gin.Context) {
	run, err := s.ingestion.IngestOnce(c.Request.Context(), correlationID(c))
	if err != nil {
		// The run record itself carries the failure details.
		c.JSON(http.StatusInternalServerError, runView(run))
		return
	}
	c.JSON(http.StatusOK, runView(run))
}

func (s *Server) triggerSourceRun(c *gin.Context) {
	sourceID, err := strconv.ParseInt(c.Param("sourceId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid source id"})
		return
	}

	run, err := s.ingestion.IngestSourceOnce(c.Request.Context(), sourceID, correlationID(c))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "source not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, runView(run))
		return
	}
	c.JSON(http.StatusOK, runView(run))
}

func (s *Server) listRuns(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "0"))
	if err != nil || page < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page"})
		return
	}
	size, err := strconv.Atoi(c.DefaultQuery("size", "20"))
	if err != nil || size < 1 || size > 200 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid size"})
		return
	}

	runs, total, err := s.runs.List(c.Request.Context(), page, size)
	if err != nil {
		s.logger.Error("http: list runs failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot list runs"})
		return
	}

	items := make([]gin.H, 0, len(runs))
	for _, r := range runs {
		items = append(items, runView(r))
	}

	totalPages := (total + int64(size) - 1) / int64(size)
	c.JSON(http.StatusOK, gin.H{
		"page":          page,
		"size":          size,
		"totalElements": total,
		"totalPages":    totalPages,
		"items":         items,
	})
}

func (s *Server) getRun(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}

	run, err := s.runs.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		s.logger.Error("http: get run failed", "run_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot load run"})
		return
	}
	c.JSON(http.StatusOK, runView(run))
}

func (s *Server) listSources(c *gin.Context) {
	sources, err := s.sources.List(c.Request.Context())
	if err != nil {
		s.logger.Error("http: list sources failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot list sources"})
		return
	}

	items := make([]gin.H, 0, len(sources))
	for _, src := range sources {
		items = append(items, sourceView(src))
	}
	c.JSON(http.StatusOK, items)
}

type sourceRequest struct {
	Name             string   `json:"name" binding:"required"`
	Type             string   `json:"type" binding:"required"`
	Locator          string   `json:"locator" binding:"required"`
	Category         string   `json:"category"`
	Enabled          *bool    `json:"enabled"`
	ReliabilityScore *float64 `json:"reliabilityScore"`
}

func (s *Server) createSource(c *gin.Context) {
	var req sourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	st := domain.SourceType(req.Type)
	if st != domain.SourceTypeRSS && st != domain.SourceTypeNewsAPI {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type must be RSS or NEWSAPI"})
		return
	}

	src := domain.Source{
		Name:             req.Name,
		Type:             st,
		Locator:          req.Locator,
		Category:         "general",
		Enabled:          true,
		ReliabilityScore: 0.5,
	}
	if req.Category != "" {
		src.Category = req.Category
	}
	if req.Enabled != nil {
		src.Enabled = *req.Enabled
	}
	if req.ReliabilityScore != nil {
		src.ReliabilityScore = *req.ReliabilityScore
	}

	created, err := s.sources.Create(c.Request.Context(), src)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateSource) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "source locator already exists"})
			return
		}
		s.logger.Error("http: create source failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot create source"})
		return
	}
	c.JSON(http.StatusCreated, sourceView(created))
}

type sourcePatch struct {
	Name             *string  `json:"name"`
	Locator          *string  `json:"locator"`
	Category         *string  `json:"category"`
	Enabled          *bool    `json:"enabled"`
	ReliabilityScore *float64 `json:"reliabilityScore"`
}

func (s *Server) updateSource(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid source id"})
		return
	}

	var patch sourcePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	src, err := s.sources.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "source not found"})
			return
		}
		s.logger.Error("http: load source failed", "source_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot load source"})
		return
	}

	if patch.Name != nil {
		src.Name = *patch.Name
	}
	if patch.Locator != nil {
		src.Locator = *patch.Locator
	}
	if patch.Category != nil {
		src.Category = *patch.Category
	}
	if patch.Enabled != nil {
		src.Enabled = *patch.Enabled
	}
	if patch.ReliabilityScore != nil {
		src.ReliabilityScore = *patch.ReliabilityScore
	}

	updated, err := s.sources.Update(c.Request.Context(), src)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateSource) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "source locator already exists"})
			return
		}
		s.logger.Error("http: update source failed", "source_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot update source"})
		return
	}
	c.JSON(http.StatusOK, sourceView(updated))
}

type searchRequest struct {
	Embedding []float64 `json:"embedding" binding:"required"`
	Limit     int       `json:"limit"`
	MinScore  *float64  `json:"minScore"`
}

func (s *Server) search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	limit := req.Limit
	if limit == 0 {
		limit = 10
	}
	if limit < 1 || limit > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
		return
	}

	minScore := 0.7
	if req.MinScore != nil {
		minScore = *req.MinScore
	}
	if minScore < 0 || minScore > 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "minScore must be between 0 and 1"})
		return
	}

	results, err := s.index.SearchByEmbedding(c.Request.Context(), req.Embedding, limit, minScore, uuid.NewString())
	if err != nil {
		s.logger.Error("http: search failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}

	items := make([]gin.H, 0, len(results))
	for _, r := range results {
		items = append(items, gin.H{
			"text":          r.Text,
			"articleId":     r.ArticleID,
			"articleUrl":    r.ArticleURL,
			"articleTitle":  r.ArticleTitle,
			"sourceName":    r.SourceName,
			"publishedDate": timeView(r.PublishedDate),
			"chunkIndex":    r.ChunkIndex,
			"score":         r.Score,
		})
	}
	c.JSON(http.StatusOK, gin.H{"results": items})
}

func (s *Server) articleChunks(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid article id"})
		return
	}

	chunks, err := s.index.ChunksForArticle(c.Request.Context(), id)
	if err != nil {
		s.logger.Error("http: article chunks failed", "article_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot load chunks"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"articleId": id, "chunks": chunks})
}

func runView(r domain.IngestionRun) gin.H {
	return gin.H{
		"id":                r.ID,
		"correlationId":     r.CorrelationID,
		"startedAt":         timeView(r.StartedAt),
		"completedAt":       timeView(r.CompletedAt),
		"status":            r.Status,
		"articlesFetched":   r.ArticlesFetched,
		"articlesProcessed": r.ArticlesProcessed,
		"articlesFailed":    r.ArticlesFailed,
		"errorDetails":      r.ErrorDetails,
	}
}

func sourceView(s domain.Source) gin.H {
	return gin.H{
		"id":               s.ID,
		"name":             s.Name,
		"type":             s.Type,
		"locator":          s.Locator,
		"category":         s.Category,
		"enabled":          s.Enabled,
		"reliabilityScore": s.ReliabilityScore,
		"lastFetchedAt":    timeView(s.LastFetchedAt),
		"lastSuccessAt":    timeView(s.LastSuccessAt),
		"failureCount":     s.FailureCount,
	}
}

func timeView(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
