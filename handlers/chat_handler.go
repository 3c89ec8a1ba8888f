package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ragline/ragline/config"
	"github.com/ragline/ragline/services/chat"
	"github.com/ragline/ragline/services/llm"
	"github.com/ragline/ragline/utils"
	"go.uber.org/zap"
)

// ChatMessage represents a single conversation turn
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content" validate:"required"`
}

// ChatRequest represents a chat request. Retrieval parameters left unset fall
// back to the configured defaults; query_k zero is meaningful (no expansion),
// so the optional ints are pointers.
type ChatRequest struct {
	Message        string        `json:"message" validate:"required"`
	History        []ChatMessage `json:"history" validate:"omitempty,dive"`
	Hits           *int          `json:"hits" validate:"omitempty,gt=0"`
	K              *int          `json:"k" validate:"omitempty,gt=0"`
	QueryExpansion *int          `json:"query_k" validate:"omitempty,gte=0"`
	Model          string        `json:"model"`
}

// AnswerStreamer defines the interface for the staged answer pipeline
type AnswerStreamer interface {
	Stream(ctx context.Context, req chat.Request) <-chan chat.Event
}

// ChatHandler handles the streaming chat endpoint
type ChatHandler struct {
	streamer     AnswerStreamer
	defaults     config.ChatConfig
	defaultModel string
	logger       *zap.Logger
}

// NewChatHandler creates a new ChatHandler
func NewChatHandler(streamer AnswerStreamer, defaults config.ChatConfig, defaultModel string, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		streamer:     streamer,
		defaults:     defaults,
		defaultModel: defaultModel,
		logger:       logger,
	}
}

// HandleChat handles POST /api/v1/chat. The response is a Server-Sent-Events
// stream of the pipeline's progress; failures before the first event are
// plain HTTP errors, failures after it arrive as a terminal error event.
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var chatReq ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&chatReq); err != nil {
		h.logger.Warn("failed to parse chat request", zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&chatReq); err != nil {
		h.logger.Warn("chat request validation failed", zap.Error(err))
		HandleValidationError(w, err, h.logger)
		return
	}

	model := chatReq.Model
	if model == "" {
		model = h.defaultModel
	}
	if model == "" {
		_ = utils.WriteInternalServerError(w, "LLM model not set. Configure LLM_MODEL or pass model in the request.")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("response writer does not support streaming")
		_ = utils.WriteInternalServerError(w, "Streaming not supported")
		return
	}

	req := chat.Request{
		Message:        chatReq.Message,
		History:        toMessages(chatReq.History),
		Hits:           h.defaults.Hits,
		K:              h.defaults.K,
		QueryExpansion: h.defaults.QueryExpansion,
		Model:          model,
	}
	if chatReq.Hits != nil {
		req.Hits = *chatReq.Hits
	}
	if chatReq.K != nil {
		req.K = *chatReq.K
	}
	if chatReq.QueryExpansion != nil {
		req.QueryExpansion = *chatReq.QueryExpansion
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.logger.Info("chat stream started",
		zap.String("model", model),
		zap.Int("hits", req.Hits),
		zap.Int("k", req.K),
		zap.Int("query_expansion", req.QueryExpansion))

	for event := range h.streamer.Stream(r.Context(), req) {
		if err := writeEvent(w, event); err != nil {
			h.logger.Warn("failed to write stream event", zap.Error(err))
			return
		}
		flusher.Flush()
	}
}

// writeEvent frames one pipeline event as "event: <kind>\ndata: <json>\n\n".
func writeEvent(w http.ResponseWriter, event chat.Event) error {
	data, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshaling event payload: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Kind, data)
	return err
}

func toMessages(history []ChatMessage) []llm.Message {
	if len(history) == 0 {
		return nil
	}
	messages := make([]llm.Message, len(history))
	for i, turn := range history {
		messages[i] = llm.Message{Role: turn.Role, Content: turn.Content}
	}
	return messages
}
