// Package nlp calls the external sentence-segmentation service.
package nlp

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

// Client segments article text into sentences via the preprocess endpoint.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

var _ ports.SentenceSegmenter = (*Client)(nil)

// NewClient wires an HTTP client; pass nil to build one with a 15s timeout.
func NewClient(baseURL string, client *http.Client, logger *slog.Logger) *Client {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    client,
		logger:  logger,
	}
}

type segmentRequest struct {
	Text string `json:"text"`
}

type segmentResponse struct {
	Sentences []string `json:"sentences"`
}

// Segment posts the text and returns the ordered sentence list.
func (c *Client) Segment(ctx context.Context, text, correlationID string) ([]string, error) {
	raw, err := json.Marshal(segmentRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshal segment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/preprocess", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build segment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if correlationID != "" {
		req.Header.Set("X-Correlation-Id", correlationID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("segment text: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("segment text: status=%d", resp.StatusCode)
	}

	var parsed segmentResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("segment text: decode response: %w", err)
	}

	c.logger.Debug("nlp: text segmented", "chars", len(text), "sentences", len(parsed.Sentences))
	return parsed.Sentences, nil
}
