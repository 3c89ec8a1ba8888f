package routes

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ragline/ragline/app"
	"github.com/ragline/ragline/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func testDependencies() *app.Dependencies {
	cfg := &config.Config{
		Environment: "development",
		Search: config.SearchConfig{
			BaseURL: "http://localhost:8081",
			Schema:  "doc",
			Timeout: 20 * time.Second,
		},
		LLM: config.LLMConfig{
			BaseURL: "http://localhost:4000",
			Model:   "test-model",
		},
		Chat: config.ChatConfig{Hits: 5, K: 3, QueryExpansion: 3},
	}
	return app.NewDependencies(cfg, zap.NewNop())
}

func TestSetupRoutes_UnknownRoute(t *testing.T) {
	router := SetupRoutes(testDependencies())

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_found")
}

func TestSetupRoutes_Health(t *testing.T) {
	router := SetupRoutes(testDependencies())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestSetupRoutes_Status(t *testing.T) {
	router := SetupRoutes(testDependencies())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test-model")
}

func TestSetupRoutes_ChatRejectsInvalidBody(t *testing.T) {
	router := SetupRoutes(testDependencies())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
