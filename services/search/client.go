// Package search provides the HTTP client for the document search backend.
// The backend is a black box from the gateway's perspective: it takes a query
// plus retrieval parameters and returns ranked hits carrying passage
// fragments. Only the response fields this package extracts are relied upon.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	// DefaultRanking must match a rank-profile in the deployed schema.
	DefaultRanking = "base-features"
	// DefaultSummary must match a document-summary in the deployed schema.
	DefaultSummary = "no-chunks"

	defaultTimeout = 20 * time.Second
)

// Config holds the search backend connection settings.
type Config struct {
	BaseURL string
	Schema  string
	Ranking string
	Summary string
	// Timeout is the per-query budget, passed to the backend and enforced
	// on the HTTP call.
	Timeout time.Duration
}

// Hit is one ranked result, reduced to the fields the pipeline consumes.
type Hit struct {
	// Location identifies the source document (loc field, falling back to id).
	Location string
	// Relevance is the hit-level score; 0 when missing or unparseable.
	Relevance float64
	// ChunkScore is the best passage-level score for the hit, falling back
	// to Relevance when the backend does not report one.
	ChunkScore float64
	// Chunks are the passage text fragments attached to the hit.
	Chunks []string
}

// Request describes one query against the backend.
type Request struct {
	Query string
	Hits  int
	K     int
	// Ranking and Summary override the client defaults when non-empty.
	Ranking string
	Summary string
}

// Client queries the search backend over HTTP.
type Client struct {
	config     Config
	httpClient *http.Client
	embedder   Embedder
	logger     *zap.Logger
}

// NewClient creates a search client. The embedder is optional; when present
// the query vector is included in each request body.
func NewClient(config Config, embedder Embedder, logger *zap.Logger) *Client {
	if config.Ranking == "" {
		config.Ranking = DefaultRanking
	}
	if config.Summary == "" {
		config.Summary = DefaultSummary
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		embedder:   embedder,
		logger:     logger,
	}
}

// Error is a non-success response from the backend.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("search backend returned status %d: %s", e.StatusCode, e.Body)
}

// Search runs one query and parses the ranked hits.
func (c *Client) Search(ctx context.Context, req Request) ([]Hit, error) {
	body, err := c.RawSearch(ctx, req)
	if err != nil {
		return nil, err
	}
	return parseHits(body), nil
}

// RawSearch runs one query and returns the backend's response body verbatim.
func (c *Client) RawSearch(ctx context.Context, req Request) ([]byte, error) {
	body := map[string]any{
		"yql":             `select * from doc where {defaultIndex:"default"}userInput(@query)`,
		"query":           req.Query,
		"hits":            req.Hits,
		"summary":         c.summaryFor(req),
		"ranking.profile": c.rankingFor(req),
		"input.query(k)":  req.K,
		"timeout":         fmt.Sprintf("%ds", int(c.config.Timeout.Seconds())),
	}

	if c.embedder != nil {
		vector, err := c.embedder.Embed(ctx, req.Query)
		if err != nil {
			return nil, fmt.Errorf("embedding query: %w", err)
		}
		body["input.query(float_embedding)"] = vector
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling search request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/search/", strings.NewReader(string(reqBody)))
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling search backend: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading search response: %w", err)
	}

	if httpResp.StatusCode >= 400 {
		return nil, &Error{StatusCode: httpResp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	return respBody, nil
}

// TotalCount reports the number of indexed documents via a zero-hit query.
func (c *Client) TotalCount(ctx context.Context) (int64, error) {
	body := map[string]any{
		"yql":     fmt.Sprintf("select * from %s where true", c.config.Schema),
		"hits":    0,
		"timeout": "10s",
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshaling count request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/search/", strings.NewReader(string(reqBody)))
	if err != nil {
		return 0, fmt.Errorf("creating count request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("calling search backend: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return 0, fmt.Errorf("reading count response: %w", err)
	}
	if httpResp.StatusCode >= 400 {
		return 0, &Error{StatusCode: httpResp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	total := gjson.GetBytes(respBody, "root.fields.totalCount")
	switch total.Type {
	case gjson.Number:
		return total.Int(), nil
	case gjson.String:
		if n, err := strconv.ParseInt(total.String(), 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, fmt.Errorf("search backend reported no document count")
}

// Schema returns the configured schema name.
func (c *Client) Schema() string {
	return c.config.Schema
}

func (c *Client) rankingFor(req Request) string {
	if req.Ranking != "" {
		return req.Ranking
	}
	return c.config.Ranking
}

func (c *Client) summaryFor(req Request) string {
	if req.Summary != "" {
		return req.Summary
	}
	return c.config.Summary
}

// parseHits extracts hits from a backend response. The response shape is
// loose across backend versions, so parsing is tolerant: missing locations
// fall back to the id field, unparseable relevance becomes 0, and the
// passage-level score falls back to the hit relevance.
func parseHits(body []byte) []Hit {
	children := gjson.GetBytes(body, "root.children").Array()
	hits := make([]Hit, 0, len(children))

	for _, child := range children {
		location := child.Get("fields.loc").String()
		if location == "" {
			location = child.Get("fields.id").String()
		}

		relevance := numericValue(child.Get("relevance"), 0)
		chunkScore := numericValue(firstExisting(child,
			"summaryfeatures.best_chunk_score",
			"summaryFeatures.best_chunk_score",
			"fields.summaryfeatures.best_chunk_score",
		), relevance)

		var chunks []string
		for _, fragment := range child.Get("fields.chunks").Array() {
			chunks = append(chunks, fragment.String())
		}

		hits = append(hits, Hit{
			Location:   location,
			Relevance:  relevance,
			ChunkScore: chunkScore,
			Chunks:     chunks,
		})
	}
	return hits
}

func firstExisting(parent gjson.Result, paths ...string) gjson.Result {
	for _, path := range paths {
		if value := parent.Get(path); value.Exists() {
			return value
		}
	}
	return gjson.Result{}
}

// numericValue converts a JSON value to float64, accepting numbers and
// numeric strings and returning the fallback otherwise.
func numericValue(value gjson.Result, fallback float64) float64 {
	switch value.Type {
	case gjson.Number:
		return value.Float()
	case gjson.String:
		if f, err := strconv.ParseFloat(value.String(), 64); err == nil {
			return f
		}
	}
	return fallback
}
