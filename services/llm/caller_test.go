package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recordingServer captures every request body and answers from a script.
type recordingServer struct {
	requests  []ChatRequest
	responses []func(w http.ResponseWriter)
}

func (s *recordingServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		s.requests = append(s.requests, req)

		idx := len(s.requests) - 1
		require.Less(t, idx, len(s.responses), "unexpected extra request")
		s.responses[idx](w)
	}
}

func respondOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"id":"cmpl-1","choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
}

func respondFeatureRejection(w http.ResponseWriter) {
	w.WriteHeader(http.StatusBadRequest)
	_, _ = w.Write([]byte(`{"error":{"message":"json_object response format is not supported by this model"}}`))
}

func respondServerError(w http.ResponseWriter) {
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte(`{"error":{"message":"model overloaded"}}`))
}

func TestCaller_ChatCompletion_NoFeatures(t *testing.T) {
	rec := &recordingServer{responses: []func(http.ResponseWriter){respondOK}}
	server := httptest.NewServer(rec.handler(t))
	defer server.Close()

	caller := NewCaller(NewClient(Config{BaseURL: server.URL}), zap.NewNop())

	resp, err := caller.ChatCompletion(context.Background(), CompletionParams{
		Model:    "m",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Choices[0].Message.Content.Text())

	require.Len(t, rec.requests, 1)
	assert.Nil(t, rec.requests[0].ResponseFormat)
	assert.Nil(t, rec.requests[0].Reasoning)
}

func TestCaller_ChatCompletion_FeatureDowngrade(t *testing.T) {
	rec := &recordingServer{responses: []func(http.ResponseWriter){respondFeatureRejection, respondOK}}
	server := httptest.NewServer(rec.handler(t))
	defer server.Close()

	caller := NewCaller(NewClient(Config{BaseURL: server.URL}), zap.NewNop())

	messages := []Message{
		{Role: "system", Content: "be terse"},
		{Role: "user", Content: "hi"},
	}
	resp, err := caller.ChatCompletion(context.Background(), CompletionParams{
		Model:     "m",
		Messages:  messages,
		JSONMode:  true,
		Reasoning: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Choices[0].Message.Content.Text())

	require.Len(t, rec.requests, 2)

	first, second := rec.requests[0], rec.requests[1]
	require.NotNil(t, first.ResponseFormat)
	assert.Equal(t, "json_object", first.ResponseFormat.Type)
	require.NotNil(t, first.Reasoning)
	assert.True(t, first.Reasoning.Enabled)

	// The retry strips both optional features and nothing else.
	assert.Nil(t, second.ResponseFormat)
	assert.Nil(t, second.Reasoning)
	assert.Equal(t, first.Model, second.Model)
	assert.Equal(t, first.Messages, second.Messages)
	assert.Equal(t, first.Stream, second.Stream)
}

func TestCaller_ChatCompletion_NonFeatureErrorPropagates(t *testing.T) {
	rec := &recordingServer{responses: []func(http.ResponseWriter){respondServerError}}
	server := httptest.NewServer(rec.handler(t))
	defer server.Close()

	caller := NewCaller(NewClient(Config{BaseURL: server.URL}), zap.NewNop())

	_, err := caller.ChatCompletion(context.Background(), CompletionParams{
		Model:    "m",
		Messages: []Message{{Role: "user", Content: "hi"}},
		JSONMode: true,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
	assert.Len(t, rec.requests, 1, "non-feature errors must not trigger a retry")
}

func TestCaller_ChatCompletion_SecondFailurePropagates(t *testing.T) {
	rec := &recordingServer{responses: []func(http.ResponseWriter){respondFeatureRejection, respondServerError}}
	server := httptest.NewServer(rec.handler(t))
	defer server.Close()

	caller := NewCaller(NewClient(Config{BaseURL: server.URL}), zap.NewNop())

	_, err := caller.ChatCompletion(context.Background(), CompletionParams{
		Model:    "m",
		Messages: []Message{{Role: "user", Content: "hi"}},
		JSONMode: true,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
	assert.Len(t, rec.requests, 2, "the downgrade retry happens at most once")
}

func TestCaller_StreamCompletion_FeatureDowngrade(t *testing.T) {
	streamOK := func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\ndata: [DONE]\n"))
	}
	rec := &recordingServer{responses: []func(http.ResponseWriter){respondFeatureRejection, streamOK}}
	server := httptest.NewServer(rec.handler(t))
	defer server.Close()

	caller := NewCaller(NewClient(Config{BaseURL: server.URL}), zap.NewNop())

	stream, err := caller.StreamCompletion(context.Background(), CompletionParams{
		Model:     "m",
		Messages:  []Message{{Role: "user", Content: "hi"}},
		Reasoning: true,
	})
	require.NoError(t, err)
	defer stream.Close()

	chunk, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "ok", chunk.Choices[0].Delta.Content.Text())

	require.Len(t, rec.requests, 2)
	assert.True(t, rec.requests[0].Stream)
	assert.True(t, rec.requests[1].Stream)
	assert.Nil(t, rec.requests[1].Reasoning)
}

func TestIsFeatureRejection(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"response_format keyword", &APIError{StatusCode: 400, Message: "Response_Format not supported"}, true},
		{"reasoning keyword", &APIError{StatusCode: 400, Message: "unknown field: reasoning"}, true},
		{"extra_body keyword", &APIError{StatusCode: 422, Message: "extra_body rejected"}, true},
		{"json_object keyword", &APIError{StatusCode: 400, Message: "json_object mode unavailable"}, true},
		{"unrelated error", &APIError{StatusCode: 500, Message: "internal error"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isFeatureRejection(tt.err))
		})
	}
}
