// Package storage implements the repository ports against Postgres.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"NewsCollector/internal/domain"
	"NewsCollector/internal/ports"
)

const uniqueViolation = "23505"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// SourceRepository persists configured sources in content.sources.
type SourceRepository struct {
	db *sql.DB
}

var _ ports.SourceRepository = (*SourceRepository)(nil)

func NewSourceRepository(db *sql.DB) *SourceRepository {
	return &SourceRepository{db: db}
}

var sourceColumns = []string{
	"id", "name", "type", "locator", "category", "enabled",
	"reliability_score", "last_fetched_at", "last_success_at", "failure_count",
}

func (r *SourceRepository) ListEnabled(ctx context.Context) ([]domain.Source, error) {
	return r.list(ctx, psql.Select(sourceColumns...).
		From("content.sources").
		Where(sq.Eq{"enabled": true}).
		OrderBy("id"))
}

func (r *SourceRepository) List(ctx context.Context) ([]domain.Source, error) {
	return r.list(ctx, psql.Select(sourceColumns...).
		From("content.sources").
		OrderBy("id"))
}

func (r *SourceRepository) list(ctx context.Context, builder sq.SelectBuilder) ([]domain.Source, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build source query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var out []domain.Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SourceRepository) GetByID(ctx context.Context, id int64) (domain.Source, error) {
	query, args, err := psql.Select(sourceColumns...).
		From("content.sources").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return domain.Source{}, fmt.Errorf("build source query: %w", err)
	}

	s, err := scanSource(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Source{}, domain.ErrNotFound
	}
	return s, err
}

func (r *SourceRepository) Create(ctx context.Context, s domain.Source) (domain.Source, error) {
	query, args, err := psql.Insert("content.sources").
		Columns("name", "type", "locator", "category", "enabled", "reliability_score", "failure_count").
		Values(s.Name, s.Type, s.Locator, s.Category, s.Enabled, s.ReliabilityScore, s.FailureCount).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return domain.Source{}, fmt.Errorf("build source insert: %w", err)
	}

	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&s.ID); err != nil {
		if isUniqueViolation(err) {
			return domain.Source{}, domain.ErrDuplicateSource
		}
		return domain.Source{}, fmt.Errorf("insert source: %w", err)
	}
	return s, nil
}

func (r *SourceRepository) Update(ctx context.Context, s domain.Source) (domain.Source, error) {
	query, args, err := psql.Update("content.sources").
		Set("name", s.Name).
		Set("type", s.Type).
		Set("locator", s.Locator).
		Set("category", s.Category).
		Set("enabled", s.Enabled).
		Set("reliability_score", s.ReliabilityScore).
		Set("last_fetched_at", nullTime(s.LastFetchedAt)).
		Set("last_success_at", nullTime(s.LastSuccessAt)).
		Set("failure_count", s.FailureCount).
		Where(sq.Eq{"id": s.ID}).
		ToSql()
	if err != nil {
		return domain.Source{}, fmt.Errorf("build source update: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Source{}, domain.ErrDuplicateSource
		}
		return domain.Source{}, fmt.Errorf("update source: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Source{}, domain.ErrNotFound
	}
	return s, nil
}

func scanSource(row sq.RowScanner) (domain.Source, error) {
	var s domain.Source
	var lastFetched, lastSuccess sql.NullTime

	err := row.Scan(&s.ID, &s.Name, &s.Type, &s.Locator, &s.Category, &s.Enabled,
		&s.ReliabilityScore, &lastFetched, &lastSuccess, &s.FailureCount)
	if err != nil {
		return domain.Source{}, err
	}

	s.LastFetchedAt = lastFetched.Time
	s.LastSuccessAt = lastSuccess.Time
	return s, nil
}

// ArticleRepository persists articles in content.articles.
type ArticleRepository struct {
	db *sql.DB
}

var _ ports.ArticleRepository = (*ArticleRepository)(nil)

func NewArticleRepository(db *sql.DB) *ArticleRepository {
	return &ArticleRepository{db: db}
}

func (r *ArticleRepository) Create(ctx context.Context, a domain.Article) (domain.Article, error) {
	query, args, err := psql.Insert("content.articles").
		Columns("source_id", "external_url", "title", "description", "published_at",
			"status", "chunk_count", "indexed", "error_message", "fetched_at").
		Values(a.SourceID, a.ExternalURL, a.Title, a.Description, nullTime(a.PublishedAt),
			a.Status, a.ChunkCount, a.Indexed, a.ErrorMessage, a.FetchedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return domain.Article{}, fmt.Errorf("build article insert: %w", err)
	}

	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&a.ID); err != nil {
		if isUniqueViolation(err) {
			return domain.Article{}, domain.ErrDuplicateArticle
		}
		return domain.Article{}, fmt.Errorf("insert article: %w", err)
	}
	return a, nil
}

func (r *ArticleRepository) Update(ctx context.Context, a domain.Article) error {
	query, args, err := psql.Update("content.articles").
		Set("status", a.Status).
		Set("chunk_count", a.ChunkCount).
		Set("indexed", a.Indexed).
		Set("error_message", a.ErrorMessage).
		Where(sq.Eq{"id": a.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build article update: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update article: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// FindExistingURLs answers the cross-run dedup query in one round trip.
func (r *ArticleRepository) FindExistingURLs(ctx context.Context, urls []string) (map[string]bool, error) {
	out := make(map[string]bool, len(urls))
	if len(urls) == 0 {
		return out, nil
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT external_url FROM content.articles WHERE external_url = ANY($1)",
		pq.Array(urls))
	if err != nil {
		return nil, fmt.Errorf("query existing urls: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		out[u] = true
	}
	return out, rows.Err()
}

// RunRepository persists ingestion runs in content.ingestion_runs.
type RunRepository struct {
	db *sql.DB
}

var _ ports.RunRepository = (*RunRepository)(nil)

func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

var runColumns = []string{
	"id", "correlation_id", "started_at", "completed_at", "status",
	"articles_fetched", "articles_processed", "articles_failed", "error_details",
}

func (r *RunRepository) Create(ctx context.Context, run domain.IngestionRun) (domain.IngestionRun, error) {
	query, args, err := psql.Insert("content.ingestion_runs").
		Columns("correlation_id", "started_at", "status",
			"articles_fetched", "articles_processed", "articles_failed", "error_details").
		Values(run.CorrelationID, run.StartedAt, run.Status,
			run.ArticlesFetched, run.ArticlesProcessed, run.ArticlesFailed, run.ErrorDetails).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return domain.IngestionRun{}, fmt.Errorf("build run insert: %w", err)
	}

	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&run.ID); err != nil {
		return domain.IngestionRun{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

func (r *RunRepository) Update(ctx context.Context, run domain.IngestionRun) error {
	query, args, err := psql.Update("content.ingestion_runs").
		Set("completed_at", nullTime(run.CompletedAt)).
		Set("status", run.Status).
		Set("articles_fetched", run.ArticlesFetched).
		Set("articles_processed", run.ArticlesProcessed).
		Set("articles_failed", run.ArticlesFailed).
		Set("error_details", run.ErrorDetails).
		Where(sq.Eq{"id": run.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build run update: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *RunRepository) GetByID(ctx context.Context, id int64) (domain.IngestionRun, error) {
	query, args, err := psql.Select(runColumns...).
		From("content.ingestion_runs").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return domain.IngestionRun{}, fmt.Errorf("build run query: %w", err)
	}

	run, err := scanRun(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.IngestionRun{}, domain.ErrNotFound
	}
	return run, err
}

// List returns one page of runs, most recent first, plus the total count.
func (r *RunRepository) List(ctx context.Context, page, size int) ([]domain.IngestionRun, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM content.ingestion_runs").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	query, args, err := psql.Select(runColumns...).
		From("content.ingestion_runs").
		OrderBy("started_at DESC", "id DESC").
		Limit(uint64(size)).
		Offset(uint64(page * size)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build run page query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []domain.IngestionRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, run)
	}
	return out, total, rows.Err()
}

func scanRun(row sq.RowScanner) (domain.IngestionRun, error) {
	var run domain.IngestionRun
	var completed sql.NullTime

	err := row.Scan(&run.ID, &run.CorrelationID, &run.StartedAt, &completed, &run.Status,
		&run.ArticlesFetched, &run.ArticlesProcessed, &run.ArticlesFailed, &run.ErrorDetails)
	if err != nil {
		return domain.IngestionRun{}, err
	}

	run.CompletedAt = completed.Time
	return run, nil
}
