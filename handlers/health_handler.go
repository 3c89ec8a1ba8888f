package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/ragline/ragline/config"
	"github.com/ragline/ragline/utils"
	"go.uber.org/zap"
)

const readinessTimeout = 2 * time.Second

// ReadinessProbe defines the backend check used for readiness
type ReadinessProbe interface {
	TotalCount(ctx context.Context) (int64, error)
}

// HealthHandler handles health and status endpoints
type HealthHandler struct {
	probe  ReadinessProbe
	config *config.Config
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(probe ReadinessProbe, cfg *config.Config, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{probe: probe, config: cfg, logger: logger}
}

// HandleHealth handles GET /healthz
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, map[string]string{"status": "ok"})
}

// HandleReadiness handles GET /readyz. The service is ready once the search
// backend answers queries; the LLM backend is checked lazily per request.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	if _, err := h.probe.TotalCount(ctx); err != nil {
		h.logger.Warn("readiness check failed", zap.Error(err))
		_ = utils.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"reason": "search backend unavailable",
		})
		return
	}

	_ = utils.WriteOK(w, map[string]string{"status": "ready"})
}

// HandleStatus handles GET /api/v1/status
func (h *HealthHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, map[string]string{
		"status":      "ok",
		"environment": h.config.Environment,
		"schema":      h.config.Search.Schema,
		"model":       h.config.LLM.Model,
	})
}
