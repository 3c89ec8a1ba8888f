package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/ragline/ragline/utils"
	"go.uber.org/zap"
)

// CorpusStats defines the interface for corpus-level statistics
type CorpusStats interface {
	TotalCount(ctx context.Context) (int64, error)
	Schema() string
}

// StatsResponse represents corpus statistics. When the backend is unreachable
// Documents stays null and ConnectionError carries a human-readable reason.
type StatsResponse struct {
	Schema          string `json:"schema"`
	Documents       *int64 `json:"documents"`
	HasData         bool   `json:"has_data"`
	ConnectionError string `json:"connection_error,omitempty"`
}

// StatsHandler handles corpus statistics requests
type StatsHandler struct {
	backend CorpusStats
	logger  *zap.Logger
}

// NewStatsHandler creates a new StatsHandler
func NewStatsHandler(backend CorpusStats, logger *zap.Logger) *StatsHandler {
	return &StatsHandler{backend: backend, logger: logger}
}

// HandleStats handles GET /api/v1/stats. Backend failures are reported inside
// the payload rather than as an HTTP error so dashboards can render them.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{Schema: h.backend.Schema()}

	count, err := h.backend.TotalCount(r.Context())
	if err != nil {
		h.logger.Warn("failed to fetch corpus stats", zap.Error(err))
		resp.ConnectionError = describeBackendError(err)
	} else {
		resp.Documents = &count
		resp.HasData = count > 0
	}

	if err := utils.WriteOK(w, resp); err != nil {
		h.logger.Error("failed to write stats response", zap.Error(err))
	}
}

// describeBackendError maps common connection failures to messages an
// operator can act on without reading logs.
func describeBackendError(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no such host"), strings.Contains(msg, "server misbehaving"):
		return "Search backend hostname could not be resolved"
	case strings.Contains(msg, "connection refused"):
		return "Search backend refused the connection"
	case strings.Contains(msg, "context deadline exceeded"), strings.Contains(msg, "timeout"):
		return "Search backend timed out"
	case strings.Contains(msg, "status 401"), strings.Contains(msg, "status 403"):
		return "Search backend rejected the request as unauthorized"
	case strings.Contains(msg, "status 404"):
		return "Search backend has no such schema or endpoint"
	default:
		return "Search backend is unavailable"
	}
}
