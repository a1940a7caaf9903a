// Package vectorstore drives a Weaviate-compatible vector database over its
// REST and GraphQL APIs.
package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const correlationHeader = "X-Correlation-Id"

// Client is a thin HTTP wrapper around the store's /v1 endpoints.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

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

type schemaResponse struct {
	Classes []schemaClass `json:"classes"`
}

type schemaClass struct {
	Class      string           `json:"class"`
	Vectorizer string           `json:"vectorizer,omitempty"`
	Properties []schemaProperty `json:"properties,omitempty"`
}

type schemaProperty struct {
	Name     string   `json:"name"`
	DataType []string `json:"dataType"`
}

type batchObject struct {
	Class      string         `json:"class"`
	Properties map[string]any `json:"properties"`
	Vector     []float64      `json:"vector"`
}

type batchResult struct {
	Result struct {
		Errors struct {
			Error []struct {
				Message string `json:"message"`
			} `json:"error"`
		} `json:"errors"`
		Status string `json:"status"`
	} `json:"result"`
}

type graphQLRequest struct {
	Query string `json:"query"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// GetSchema lists the classes currently defined in the store.
func (c *Client) GetSchema(ctx context.Context) (*schemaResponse, error) {
	var out schemaResponse
	if err := c.do(ctx, http.MethodGet, "/v1/schema", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateClass registers a new class definition.
func (c *Client) CreateClass(ctx context.Context, class schemaClass) error {
	return c.do(ctx, http.MethodPost, "/v1/schema", class, "", nil)
}

// BatchObjects upserts objects in one call and returns the per-object
// results.
func (c *Client) BatchObjects(ctx context.Context, objects []batchObject, correlationID string) ([]batchResult, error) {
	payload := map[string]any{"objects": objects}
	var out []batchResult
	if err := c.do(ctx, http.MethodPost, "/v1/batch/objects", payload, correlationID, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GraphQL posts a query and returns the raw data document.
func (c *Client) GraphQL(ctx context.Context, query, correlationID string) (json.RawMessage, error) {
	var out graphQLResponse
	if err := c.do(ctx, http.MethodPost, "/v1/graphql", graphQLRequest{Query: query}, correlationID, &out); err != nil {
		return nil, err
	}
	if len(out.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", out.Errors[0].Message)
	}
	return out.Data, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, correlationID string, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if correlationID != "" {
		req.Header.Set(correlationHeader, correlationID)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("vectorstore: request",
		"method", method, "path", path, "status", resp.StatusCode,
		"took_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status=%d body=%s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}
