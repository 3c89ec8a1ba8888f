package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ragline/ragline/services/search"
	"github.com/ragline/ragline/utils"
	"go.uber.org/zap"
)

const (
	defaultSearchHits = 10
	defaultSearchK    = 3
)

// SearchRequest represents a direct search request
type SearchRequest struct {
	Query   string `json:"query" validate:"required"`
	Hits    int    `json:"hits" validate:"omitempty,gt=0"`
	K       int    `json:"k" validate:"omitempty,gt=0"`
	Ranking string `json:"ranking"`
	Summary string `json:"summary"`
}

// SearchBackend defines the interface for raw search passthrough
type SearchBackend interface {
	RawSearch(ctx context.Context, req search.Request) ([]byte, error)
}

// SearchHandler handles direct search requests against the backend
type SearchHandler struct {
	backend SearchBackend
	logger  *zap.Logger
}

// NewSearchHandler creates a new SearchHandler
func NewSearchHandler(backend SearchBackend, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{backend: backend, logger: logger}
}

// HandleSearch handles POST /api/v1/search. The backend's JSON response is
// returned verbatim so callers can inspect ranking features directly.
func (h *SearchHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	var searchReq SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&searchReq); err != nil {
		h.logger.Warn("failed to parse search request", zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&searchReq); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	if searchReq.Hits == 0 {
		searchReq.Hits = defaultSearchHits
	}
	if searchReq.K == 0 {
		searchReq.K = defaultSearchK
	}

	body, err := h.backend.RawSearch(r.Context(), search.Request{
		Query:   searchReq.Query,
		Hits:    searchReq.Hits,
		K:       searchReq.K,
		Ranking: searchReq.Ranking,
		Summary: searchReq.Summary,
	})
	if err != nil {
		var backendErr *search.Error
		if errors.As(err, &backendErr) {
			h.logger.Warn("search backend rejected query",
				zap.Int("status", backendErr.StatusCode),
				zap.String("query", searchReq.Query))
			_ = utils.WriteJSON(w, backendErr.StatusCode, utils.ErrorResponse{
				Error:   "search_backend_error",
				Message: backendErr.Body,
			})
			return
		}
		h.logger.Error("search backend unreachable", zap.Error(err))
		_ = utils.WriteBadGateway(w, "Search backend unavailable")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		h.logger.Warn("failed to write search response", zap.Error(err))
	}
}
