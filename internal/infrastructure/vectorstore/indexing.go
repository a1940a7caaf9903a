package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"NewsCollector/internal/domain"
	"NewsCollector/internal/ports"
)

const (
	className          = "ArticleChunk"
	chunksPerArticle   = 512
	publishedTimestamp = time.RFC3339
)

// IndexingService maps article chunks onto the vector store: schema
// management, batch upsert, nearest-neighbor search, and ordered retrieval.
type IndexingService struct {
	client *Client
	logger *slog.Logger
}

var _ ports.ChunkIndex = (*IndexingService)(nil)

func NewIndexingService(client *Client, logger *slog.Logger) *IndexingService {
	return &IndexingService{client: client, logger: logger}
}

// EnsureSchema creates the chunk class unless a class with the same name
// already exists. Safe to call on every run.
func (s *IndexingService) EnsureSchema(ctx context.Context) error {
	schema, err := s.client.GetSchema(ctx)
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}

	for _, class := range schema.Classes {
		if strings.EqualFold(class.Class, className) {
			return nil
		}
	}

	class := schemaClass{
		Class:      className,
		Vectorizer: "none",
		Properties: []schemaProperty{
			{Name: "text", DataType: []string{"text"}},
			{Name: "articleId", DataType: []string{"int"}},
			{Name: "articleUrl", DataType: []string{"text"}},
			{Name: "articleTitle", DataType: []string{"text"}},
			{Name: "sourceName", DataType: []string{"text"}},
			{Name: "publishedDate", DataType: []string{"date"}},
			{Name: "chunkIndex", DataType: []string{"int"}},
		},
	}

	if err := s.client.CreateClass(ctx, class); err != nil {
		return fmt.Errorf("create class %s: %w", className, err)
	}

	s.logger.Info("vectorstore: class created", "class", className)
	return nil
}

// IndexArticleChunks batch-upserts one object per chunk, each carrying its
// precomputed embedding. Chunk and embedding counts must match exactly.
func (s *IndexingService) IndexArticleChunks(ctx context.Context, article domain.Article, sourceName string, chunks []string, embeddings [][]float64, correlationID string) error {
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("chunk/embedding count mismatch: %d chunks, %d embeddings", len(chunks), len(embeddings))
	}

	objects := make([]batchObject, 0, len(chunks))
	for i, text := range chunks {
		objects = append(objects, batchObject{
			Class: className,
			Properties: map[string]any{
				"text":          text,
				"articleId":     article.ID,
				"articleUrl":    article.ExternalURL,
				"articleTitle":  article.Title,
				"sourceName":    sourceName,
				"publishedDate": article.PublishedAt.UTC().Format(publishedTimestamp),
				"chunkIndex":    i,
			},
			Vector: embeddings[i],
		})
	}

	results, err := s.client.BatchObjects(ctx, objects, correlationID)
	if err != nil {
		return fmt.Errorf("batch upsert: %w", err)
	}

	// Per-object errors are advisory: the store has accepted the batch, so
	// they are logged and the article still counts as indexed.
	for i, r := range results {
		for _, e := range r.Result.Errors.Error {
			s.logger.Warn("vectorstore: object rejected",
				"article_id", article.ID, "chunk_index", i, "message", e.Message)
		}
	}

	s.logger.Debug("vectorstore: chunks indexed",
		"article_id", article.ID, "chunks", len(chunks), "correlation_id", correlationID)
	return nil
}

type chunkHit struct {
	Text          string `json:"text"`
	ArticleID     int64  `json:"articleId"`
	ArticleURL    string `json:"articleUrl"`
	ArticleTitle  string `json:"articleTitle"`
	SourceName    string `json:"sourceName"`
	PublishedDate string `json:"publishedDate"`
	ChunkIndex    int    `json:"chunkIndex"`
	Additional    *struct {
		Distance *float64 `json:"distance"`
	} `json:"_additional"`
}

// SearchByEmbedding runs a nearVector query and returns hits scoring at or
// above minScore, best first. Score is 1 - distance; a hit without a distance
// scores zero.
func (s *IndexingService) SearchByEmbedding(ctx context.Context, embedding []float64, limit int, minScore float64, correlationID string) ([]domain.ChunkResult, error) {
	query := fmt.Sprintf(`{
  Get {
    %s(nearVector: {vector: %s}, limit: %d) {
      text articleId articleUrl articleTitle sourceName publishedDate chunkIndex
      _additional { distance }
    }
  }
}`, className, formatVector(embedding), limit)

	hits, err := s.queryChunks(ctx, query, correlationID)
	if err != nil {
		return nil, err
	}

	results := make([]domain.ChunkResult, 0, len(hits))
	for _, h := range hits {
		distance := 1.0
		if h.Additional != nil && h.Additional.Distance != nil {
			distance = *h.Additional.Distance
		}
		score := 1.0 - distance
		if score < minScore {
			continue
		}

		results = append(results, domain.ChunkResult{
			Text:          h.Text,
			ArticleID:     h.ArticleID,
			ArticleURL:    h.ArticleURL,
			ArticleTitle:  h.ArticleTitle,
			SourceName:    h.SourceName,
			PublishedDate: parsePublished(h.PublishedDate),
			ChunkIndex:    h.ChunkIndex,
			Score:         score,
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}

// ChunksForArticle returns an article's chunk texts in chunk-index order,
// dropping blanks.
func (s *IndexingService) ChunksForArticle(ctx context.Context, articleID int64) ([]string, error) {
	query := fmt.Sprintf(`{
  Get {
    %s(where: {path: ["articleId"], operator: Equal, valueInt: %d}, limit: %d) {
      text chunkIndex
    }
  }
}`, className, articleID, chunksPerArticle)

	hits, err := s.queryChunks(ctx, query, "")
	if err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].ChunkIndex < hits[j].ChunkIndex })

	texts := make([]string, 0, len(hits))
	for _, h := range hits {
		if strings.TrimSpace(h.Text) == "" {
			continue
		}
		texts = append(texts, h.Text)
	}
	return texts, nil
}

func (s *IndexingService) queryChunks(ctx context.Context, query, correlationID string) ([]chunkHit, error) {
	data, err := s.client.GraphQL(ctx, query, correlationID)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Get map[string][]chunkHit `json:"Get"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decode graphql data: %w", err)
	}

	return parsed.Get[className], nil
}

func formatVector(v []float64) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	}
	b.WriteByte(']')
	return b.String()
}

func parsePublished(s string) time.Time {
	ts, err := time.Parse(publishedTimestamp, s)
	if err != nil {
		return time.Time{}
	}
	return ts
}
