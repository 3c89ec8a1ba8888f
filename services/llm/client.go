package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout = 60 * time.Second

	// streamScanBuffer bounds a single SSE line; reasoning deltas from some
	// backends run long.
	streamScanBuffer = 1 << 20
)

// Config holds the connection settings for an OpenAI-compatible backend.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client is a minimal OpenAI-compatible chat completions client. It speaks to
// any backend exposing the /chat/completions contract (cloud gateways, local
// model servers) and surfaces API failures as *APIError.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a chat completions client.
func NewClient(config Config) *Client {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	// No transport-level timeout: streaming responses stay open for the
	// duration of the generation. Non-streaming calls get a context deadline.
	return &Client{
		config:     config,
		httpClient: &http.Client{},
	}
}

// APIError is a non-2xx response from the backend. Its message text is what
// capability negotiation matches against, so it keeps the backend's wording.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm backend returned status %d: %s", e.StatusCode, e.Message)
}

// ChatCompletion performs a non-streaming completion call.
func (c *Client) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	httpResp, err := c.post(ctx, req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading completion response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, parseAPIError(httpResp.StatusCode, respBody)
	}

	var resp ChatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decoding completion response: %w", err)
	}
	return &resp, nil
}

// Stream delivers the chunks of a streaming completion in arrival order.
type Stream interface {
	// Recv returns the next chunk, or io.EOF once the stream is exhausted.
	Recv() (*ChatChunk, error)
	Close() error
}

// StreamChatCompletion opens a streaming completion call. The request's
// Stream flag is forced on. The caller owns the returned Stream and must
// Close it.
func (c *Client) StreamChatCompletion(ctx context.Context, req *ChatRequest) (Stream, error) {
	req.Stream = true

	httpResp, err := c.post(ctx, req)
	if err != nil {
		return nil, err
	}

	if httpResp.StatusCode != http.StatusOK {
		respBody, readErr := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("reading error response: %w", readErr)
		}
		return nil, parseAPIError(httpResp.StatusCode, respBody)
	}

	scanner := bufio.NewScanner(httpResp.Body)
	scanner.Buffer(make([]byte, 64*1024), streamScanBuffer)
	return &sseStream{body: httpResp.Body, scanner: scanner}, nil
}

func (c *Client) post(ctx context.Context, req *ChatRequest) (*http.Response, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", strings.NewReader(string(reqBody)))
	if err != nil {
		return nil, fmt.Errorf("creating completion request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling llm backend: %w", err)
	}
	return httpResp, nil
}

// parseAPIError decodes the OpenAI error envelope, falling back to the raw
// body when the backend answered with something else.
func parseAPIError(statusCode int, body []byte) *APIError {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return &APIError{StatusCode: statusCode, Type: envelope.Error.Type, Message: envelope.Error.Message}
	}
	return &APIError{StatusCode: statusCode, Message: strings.TrimSpace(string(body))}
}

// sseStream decodes "data:" frames from a text/event-stream body.
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

func (s *sseStream) Recv() (*ChatChunk, error) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			return nil, io.EOF
		}

		var chunk ChatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil, fmt.Errorf("decoding stream chunk: %w", err)
		}
		return &chunk, nil
	}

	if err := s.scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading stream: %w", err)
	}
	return nil, io.EOF
}

func (s *sseStream) Close() error {
	return s.body.Close()
}
