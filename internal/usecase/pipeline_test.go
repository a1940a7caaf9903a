package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"NewsCollector/internal/domain"
)

type fakeArticleRepo struct {
	mu       sync.Mutex
	nextID   int64
	articles map[int64]domain.Article
	dupURLs  map[string]bool
}

func newFakeArticleRepo() *fakeArticleRepo {
	return &fakeArticleRepo{articles: map[int64]domain.Article{}, dupURLs: map[string]bool{}}
}

func (r *fakeArticleRepo) Create(_ context.Context, a domain.Article) (domain.Article, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dupURLs[a.ExternalURL] {
		return domain.Article{}, domain.ErrDuplicateArticle
	}
	r.nextID++
	a.ID = r.nextID
	r.articles[a.ID] = a
	return a, nil
}

func (r *fakeArticleRepo) Update(_ context.Context, a domain.Article) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.articles[a.ID] = a
	return nil
}

func (r *fakeArticleRepo) FindExistingURLs(context.Context, []string) (map[string]bool, error) {
	return nil, nil
}

func (r *fakeArticleRepo) byURL(url string) (domain.Article, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.articles {
		if a.ExternalURL == url {
			return a, true
		}
	}
	return domain.Article{}, false
}

type fakeSegmenter struct {
	sentences map[string][]string
	err       error
}

func (s *fakeSegmenter) Segment(_ context.Context, text, _ string) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.sentences != nil {
		return s.sentences[text], nil
	}
	return []string{text}, nil
}

type fakeEmbedder struct {
	err error
}

func (e *fakeEmbedder) EmbedChunks(_ context.Context, chunks []string, _ string) ([][]float64, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float64, len(chunks))
	for i := range chunks {
		out[i] = []float64{0.1, 0.2}
	}
	return out, nil
}

type fakeIndex struct {
	indexed map[int64][]string
	err     error
}

func (f *fakeIndex) EnsureSchema(context.Context) error { return nil }

func (f *fakeIndex) IndexArticleChunks(_ context.Context, article domain.Article, _ string, chunks []string, _ [][]float64, _ string) error {
	if f.err != nil {
		return f.err
	}
	if f.indexed == nil {
		f.indexed = map[int64][]string{}
	}
	f.indexed[article.ID] = chunks
	return nil
}

func (f *fakeIndex) SearchByEmbedding(context.Context, []float64, int, float64, string) ([]domain.ChunkResult, error) {
	return nil, nil
}

func (f *fakeIndex) ChunksForArticle(context.Context, int64) ([]string, error) { return nil, nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPipeline(repo *fakeArticleRepo, seg *fakeSegmenter, emb *fakeEmbedder, idx *fakeIndex) *Pipeline {
	return NewPipeline(PipelineDeps{
		Sources:   &fakeSourceRepoGet{source: domain.Source{ID: 1, Name: "Wire"}},
		Articles:  repo,
		Segmenter: seg,
		Embedder:  emb,
		Index:     idx,
		Logger:    discardLogger(),
	})
}

func TestIngestAllProcessesCandidates(t *testing.T) {
	t.Parallel()

	repo := newFakeArticleRepo()
	idx := &fakeIndex{}
	p := testPipeline(repo, &fakeSegmenter{}, &fakeEmbedder{}, idx)

	processed := p.IngestAll(context.Background(), []domain.ArticleCandidate{
		{SourceID: 1, ExternalURL: "https://example.com/a", Title: "A", Content: "Body of A."},
		{SourceID: 1, ExternalURL: "https://example.com/b", Title: "B", Content: "Body of B."},
	}, "corr-1")

	if processed != 2 {
		t.Fatalf("expected 2 processed, got %d", processed)
	}

	a, ok := repo.byURL("https://example.com/a")
	if !ok {
		t.Fatal("article A not persisted")
	}
	if a.Status != domain.StatusProcessed || !a.Indexed || a.ChunkCount != 1 {
		t.Fatalf("article A not finalized: %+v", a)
	}
	if len(idx.indexed[a.ID]) != 1 {
		t.Fatalf("article A chunks not indexed: %+v", idx.indexed)
	}
}

func TestIngestAllIsolatesPerArticleFailure(t *testing.T) {
	t.Parallel()

	repo := newFakeArticleRepo()
	seg := &fakeSegmenter{sentences: map[string][]string{
		"Good body.": {"Good body."},
		// "Bad body." maps to nil, which the pipeline treats as a failure.
	}}
	p := testPipeline(repo, seg, &fakeEmbedder{}, &fakeIndex{})

	processed := p.IngestAll(context.Background(), []domain.ArticleCandidate{
		{SourceID: 1, ExternalURL: "https://example.com/bad", Title: "Bad", Content: "Bad body."},
		{SourceID: 1, ExternalURL: "https://example.com/good", Title: "Good", Content: "Good body."},
	}, "corr-2")

	if processed != 1 {
		t.Fatalf("expected 1 processed, got %d", processed)
	}

	bad, ok := repo.byURL("https://example.com/bad")
	if !ok {
		t.Fatal("failed article should still be persisted")
	}
	if bad.Status != domain.StatusFailed || bad.ErrorMessage == "" {
		t.Fatalf("failure not recorded: %+v", bad)
	}

	good, _ := repo.byURL("https://example.com/good")
	if good.Status != domain.StatusProcessed {
		t.Fatalf("good article should finish despite the earlier failure: %+v", good)
	}
}

func TestIngestAllSkipsWithoutCountingAsFailure(t *testing.T) {
	t.Parallel()

	repo := newFakeArticleRepo()
	repo.dupURLs["https://example.com/dup"] = true
	p := testPipeline(repo, &fakeSegmenter{}, &fakeEmbedder{}, &fakeIndex{})

	processed := p.IngestAll(context.Background(), []domain.ArticleCandidate{
		{SourceID: 0, ExternalURL: "https://example.com/orphan", Title: "Orphan", Content: "Text."},
		{SourceID: 1, ExternalURL: "https://example.com/empty", Title: "Empty"},
		{SourceID: 1, ExternalURL: "https://example.com/dup", Title: "Dup", Content: "Text."},
	}, "corr-3")

	if processed != 0 {
		t.Fatalf("expected 0 processed, got %d", processed)
	}
	if len(repo.articles) != 0 {
		t.Fatalf("skips must not persist articles, got %d", len(repo.articles))
	}
}

func TestIngestAllSkipsCandidateWithUnknownSource(t *testing.T) {
	t.Parallel()

	repo := newFakeArticleRepo()
	p := NewPipeline(PipelineDeps{
		Sources:   &fakeSourceRepoGet{err: domain.ErrNotFound},
		Articles:  repo,
		Segmenter: &fakeSegmenter{},
		Embedder:  &fakeEmbedder{},
		Index:     &fakeIndex{},
		Logger:    discardLogger(),
	})

	processed := p.IngestAll(context.Background(), []domain.ArticleCandidate{
		{SourceID: 99, ExternalURL: "https://example.com/gone", Title: "Gone", Content: "Text."},
	}, "corr-7")

	if processed != 0 {
		t.Fatalf("expected 0 processed, got %d", processed)
	}
	if len(repo.articles) != 0 {
		t.Fatalf("a deleted source is a skip, not a failure; got %d articles", len(repo.articles))
	}
}

func TestIngestOneFallsBackToDescription(t *testing.T) {
	t.Parallel()

	repo := newFakeArticleRepo()
	idx := &fakeIndex{}
	p := testPipeline(repo, &fakeSegmenter{}, &fakeEmbedder{}, idx)

	processed := p.IngestAll(context.Background(), []domain.ArticleCandidate{
		{SourceID: 1, ExternalURL: "https://example.com/teaser", Title: "Teaser",
			Description: "Only a summary is available."},
	}, "corr-4")

	if processed != 1 {
		t.Fatalf("expected description fallback to process, got %d", processed)
	}
}

func TestIngestAllMarksFailedOnIndexError(t *testing.T) {
	t.Parallel()

	repo := newFakeArticleRepo()
	idx := &fakeIndex{err: errors.New("vector store down")}
	p := testPipeline(repo, &fakeSegmenter{}, &fakeEmbedder{}, idx)

	processed := p.IngestAll(context.Background(), []domain.ArticleCandidate{
		{SourceID: 1, ExternalURL: "https://example.com/a", Title: "A", Content: "Body."},
	}, "corr-5")

	if processed != 0 {
		t.Fatalf("expected 0 processed, got %d", processed)
	}
	a, _ := repo.byURL("https://example.com/a")
	if a.Status != domain.StatusFailed {
		t.Fatalf("expected FAILED, got %s", a.Status)
	}
}
