package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"NewsCollector/internal/domain"
)

type fakeIngestion struct {
	run         domain.IngestionRun
	err         error
	gotSourceID int64
}

func (f *fakeIngestion) IngestOnce(_ context.Context, correlationID string) (domain.IngestionRun, error) {
	f.run.CorrelationID = correlationID
	return f.run, f.err
}

func (f *fakeIngestion) IngestSourceOnce(_ context.Context, sourceID int64, correlationID string) (domain.IngestionRun, error) {
	f.gotSourceID = sourceID
	f.run.CorrelationID = correlationID
	return f.run, f.err
}

type fakeRuns struct {
	runs  []domain.IngestionRun
	total int64
}

func (f *fakeRuns) Create(_ context.Context, r domain.IngestionRun) (domain.IngestionRun, error) {
	return r, nil
}

func (f *fakeRuns) Update(context.Context, domain.IngestionRun) error { return nil }

func (f *fakeRuns) GetByID(_ context.Context, id int64) (domain.IngestionRun, error) {
	for _, r := range f.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.IngestionRun{}, domain.ErrNotFound
}

func (f *fakeRuns) List(context.Context, int, int) ([]domain.IngestionRun, int64, error) {
	return f.runs, f.total, nil
}

type fakeSources struct {
	created *domain.Source
	dup     bool
}

func (f *fakeSources) ListEnabled(context.Context) ([]domain.Source, error) { return nil, nil }
func (f *fakeSources) List(context.Context) ([]domain.Source, error)        { return nil, nil }

func (f *fakeSources) GetByID(context.Context, int64) (domain.Source, error) {
	return domain.Source{}, domain.ErrNotFound
}

func (f *fakeSources) Create(_ context.Context, s domain.Source) (domain.Source, error) {
	if f.dup {
		return domain.Source{}, domain.ErrDuplicateSource
	}
	s.ID = 1
	f.created = &s
	return s, nil
}

func (f *fakeSources) Update(_ context.Context, s domain.Source) (domain.Source, error) {
	return s, nil
}

type fakeChunkIndex struct {
	results []domain.ChunkResult
	chunks  []string
}

func (f *fakeChunkIndex) EnsureSchema(context.Context) error { return nil }

func (f *fakeChunkIndex) IndexArticleChunks(context.Context, domain.Article, string, []string, [][]float64, string) error {
	return nil
}

func (f *fakeChunkIndex) SearchByEmbedding(context.Context, []float64, int, float64, string) ([]domain.ChunkResult, error) {
	return f.results, nil
}

func (f *fakeChunkIndex) ChunksForArticle(context.Context, int64) ([]string, error) {
	return f.chunks, nil
}

func newTestServer(ing *fakeIngestion, runs *fakeRuns, sources *fakeSources, index *fakeChunkIndex) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(ing, runs, sources, index, logger)
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var parsed map[string]any
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &parsed)
	}
	return rec, parsed
}

func TestHealth(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeIngestion{}, &fakeRuns{}, &fakeSources{}, &fakeChunkIndex{})
	rec, body := doJSON(t, s.Handler(), http.MethodGet, "/health", "")

	if rec.Code != http.StatusOK || body["status"] != "UP" {
		t.Fatalf("health = %d %v", rec.Code, body)
	}
}

func TestTriggerRunGeneratesCorrelationID(t *testing.T) {
	t.Parallel()

	ing := &fakeIngestion{run: domain.IngestionRun{ID: 1, Status: domain.RunSuccess}}
	s := newTestServer(ing, &fakeRuns{}, &fakeSources{}, &fakeChunkIndex{})

	rec, body := doJSON(t, s.Handler(), http.MethodPost, "/admin/ingestion/run", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["correlationId"] == "" || body["correlationId"] == nil {
		t.Fatal("a correlation id should be generated")
	}
}

func TestTriggerRunHonorsProvidedCorrelationID(t *testing.T) {
	t.Parallel()

	ing := &fakeIngestion{run: domain.IngestionRun{ID: 1, Status: domain.RunSuccess}}
	s := newTestServer(ing, &fakeRuns{}, &fakeSources{}, &fakeChunkIndex{})

	_, body := doJSON(t, s.Handler(), http.MethodPost, "/admin/ingestion/run?correlationId=my-corr", "")
	if body["correlationId"] != "my-corr" {
		t.Fatalf("correlation id not threaded: %v", body["correlationId"])
	}
}

func TestTriggerSourceRunNotFound(t *testing.T) {
	t.Parallel()

	ing := &fakeIngestion{err: domain.ErrNotFound}
	s := newTestServer(ing, &fakeRuns{}, &fakeSources{}, &fakeChunkIndex{})

	rec, _ := doJSON(t, s.Handler(), http.MethodPost, "/admin/ingestion/run/42", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if ing.gotSourceID != 42 {
		t.Fatalf("source id not parsed: %d", ing.gotSourceID)
	}
}

func TestListRunsPagination(t *testing.T) {
	t.Parallel()

	runs := &fakeRuns{runs: []domain.IngestionRun{{ID: 2}, {ID: 1}}, total: 45}
	s := newTestServer(&fakeIngestion{}, runs, &fakeSources{}, &fakeChunkIndex{})

	rec, body := doJSON(t, s.Handler(), http.MethodGet, "/admin/ingestion/runs?page=0&size=20", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["totalElements"].(float64) != 45 || body["totalPages"].(float64) != 3 {
		t.Fatalf("pagination envelope wrong: %v", body)
	}

	rec, _ = doJSON(t, s.Handler(), http.MethodGet, "/admin/ingestion/runs?size=0", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("size=0 should be rejected, got %d", rec.Code)
	}
}

func TestCreateSourceDefaults(t *testing.T) {
	t.Parallel()

	sources := &fakeSources{}
	s := newTestServer(&fakeIngestion{}, &fakeRuns{}, sources, &fakeChunkIndex{})

	rec, _ := doJSON(t, s.Handler(), http.MethodPost, "/admin/sources",
		`{"name":"Wire","type":"RSS","locator":"https://wire.example/feed"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	if sources.created == nil {
		t.Fatal("source not created")
	}
	if sources.created.Category != "general" || !sources.created.Enabled || sources.created.ReliabilityScore != 0.5 {
		t.Fatalf("defaults not applied: %+v", sources.created)
	}
}

func TestCreateSourceRejectsBadType(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeIngestion{}, &fakeRuns{}, &fakeSources{}, &fakeChunkIndex{})
	rec, _ := doJSON(t, s.Handler(), http.MethodPost, "/admin/sources",
		`{"name":"X","type":"TELEGRAM","locator":"y"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCreateSourceDuplicate(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeIngestion{}, &fakeRuns{}, &fakeSources{dup: true}, &fakeChunkIndex{})
	rec, _ := doJSON(t, s.Handler(), http.MethodPost, "/admin/sources",
		`{"name":"Wire","type":"RSS","locator":"https://wire.example/feed"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSearchValidation(t *testing.T) {
	t.Parallel()

	index := &fakeChunkIndex{results: []domain.ChunkResult{{Text: "hit", Score: 0.9}}}
	s := newTestServer(&fakeIngestion{}, &fakeRuns{}, &fakeSources{}, index)

	rec, body := doJSON(t, s.Handler(), http.MethodPost, "/search", `{"embedding":[0.1,0.2]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if results := body["results"].([]any); len(results) != 1 {
		t.Fatalf("expected 1 result, got %v", body)
	}

	rec, _ = doJSON(t, s.Handler(), http.MethodPost, "/search", `{"limit":5}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing embedding should be rejected, got %d", rec.Code)
	}

	rec, _ = doJSON(t, s.Handler(), http.MethodPost, "/search", `{"embedding":[0.1],"limit":500}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("limit over 100 should be rejected, got %d", rec.Code)
	}

	rec, _ = doJSON(t, s.Handler(), http.MethodPost, "/search", `{"embedding":[0.1],"minScore":1.5}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("minScore over 1 should be rejected, got %d", rec.Code)
	}
}

func TestArticleChunks(t *testing.T) {
	t.Parallel()

	index := &fakeChunkIndex{chunks: []string{"c1", "c2"}}
	s := newTestServer(&fakeIngestion{}, &fakeRuns{}, &fakeSources{}, index)

	rec, body := doJSON(t, s.Handler(), http.MethodGet, "/articles/7/chunks", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if chunks := body["chunks"].([]any); len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %v", body)
	}

	rec, _ = doJSON(t, s.Handler(), http.MethodGet, "/articles/abc/chunks", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("non-numeric id should be rejected, got %d", rec.Code)
	}
}
