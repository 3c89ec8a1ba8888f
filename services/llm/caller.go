package llm

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// featureKeywords are the substrings sniffed from a backend error message to
// decide whether a rejection was caused by an optional request feature.
// This is a compatibility shim for local model servers (Ollama, LM Studio,
// vLLM) that reject fields cloud backends accept, not a protocol guarantee.
var featureKeywords = []string{
	"response_format",
	"extra_body",
	"reasoning",
	"json_object",
}

// CompletionParams describes one completion call at the orchestration level.
// JSONMode and Reasoning are best-effort: the Caller drops both when the
// backend rejects them.
type CompletionParams struct {
	Model     string
	Messages  []Message
	JSONMode  bool
	Reasoning bool
}

// Caller issues chat completions with a one-shot feature downgrade: when a
// requested optional feature makes the backend fail, the call is reissued
// once with both optional features stripped and the same model, messages and
// stream setting. Any other failure, or a second failure, propagates.
type Caller struct {
	client *Client
	logger *zap.Logger
}

// NewCaller creates a capability-negotiating completion caller.
func NewCaller(client *Client, logger *zap.Logger) *Caller {
	return &Caller{client: client, logger: logger}
}

// ChatCompletion performs a non-streaming completion.
func (c *Caller) ChatCompletion(ctx context.Context, p CompletionParams) (*ChatResponse, error) {
	if !p.JSONMode && !p.Reasoning {
		return c.client.ChatCompletion(ctx, buildRequest(p, false, false))
	}

	resp, err := c.client.ChatCompletion(ctx, buildRequest(p, false, true))
	if err == nil || !isFeatureRejection(err) {
		return resp, err
	}

	c.logger.Warn("backend rejected optional completion features, retrying without them",
		zap.String("model", p.Model),
		zap.Error(err))
	return c.client.ChatCompletion(ctx, buildRequest(p, false, false))
}

// StreamCompletion opens a streaming completion.
func (c *Caller) StreamCompletion(ctx context.Context, p CompletionParams) (Stream, error) {
	if !p.JSONMode && !p.Reasoning {
		return c.client.StreamChatCompletion(ctx, buildRequest(p, true, false))
	}

	stream, err := c.client.StreamChatCompletion(ctx, buildRequest(p, true, true))
	if err == nil || !isFeatureRejection(err) {
		return stream, err
	}

	c.logger.Warn("backend rejected optional completion features, retrying without them",
		zap.String("model", p.Model),
		zap.Error(err))
	return c.client.StreamChatCompletion(ctx, buildRequest(p, true, false))
}

func buildRequest(p CompletionParams, stream, withFeatures bool) *ChatRequest {
	req := &ChatRequest{
		Model:    p.Model,
		Messages: p.Messages,
		Stream:   stream,
	}
	if withFeatures {
		if p.JSONMode {
			req.ResponseFormat = &ResponseFormat{Type: "json_object"}
		}
		if p.Reasoning {
			req.Reasoning = &ReasoningConfig{Enabled: true}
		}
	}
	return req
}

func isFeatureRejection(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, keyword := range featureKeywords {
		if strings.Contains(msg, keyword) {
			return true
		}
	}
	return false
}
