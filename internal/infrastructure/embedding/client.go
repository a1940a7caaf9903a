// Package embedding calls the external embedding-vector service.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"NewsCollector/internal/ports"
)

// Client turns chunk texts into embedding vectors, one per chunk, in order.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

var _ ports.Embedder = (*Client)(nil)

// NewClient wires an HTTP client; pass nil to build one with a 15s timeout.
// apiKey is optional and sent as a bearer token when set.
func NewClient(baseURL, apiKey string, client *http.Client, logger *slog.Logger) *Client {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		http:    client,
		logger:  logger,
	}
}

type embedRequest struct {
	Texts []string `json:"texts"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// EmbedChunks posts the chunk texts and returns one vector per chunk. A
// count mismatch from the service is an error, never silently padded.
func (c *Client) EmbedChunks(ctx context.Context, chunks []string, correlationID string) ([][]float64, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	raw, err := json.Marshal(embedRequest{Texts: chunks})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if correlationID != "" {
		req.Header.Set("X-Correlation-Id", correlationID)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embed chunks: status=%d", resp.StatusCode)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("embed chunks: decode response: %w", err)
	}

	if len(parsed.Embeddings) != len(chunks) {
		return nil, fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(parsed.Embeddings), len(chunks))
	}

	c.logger.Debug("embedding: chunks embedded", "chunks", len(chunks))
	return parsed.Embeddings, nil
}
