package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"kb-rag-api/internal/config"
	"kb-rag-api/internal/interfaces/http/handler"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.App.Name = "kb-rag-api"
	cfg.App.Env = "test"
	cfg.Observability.Metrics.Enabled = true
	cfg.Observability.Metrics.Path = "/metrics"
	cfg.Ephemeral.MaxFileSizeMB = 1
	return cfg
}

func testHandlers() Handlers {
	return Handlers{
		Health:    handler.NewHealthHandler("test"),
		Chat:      handler.NewChatHandler(nil),
		Documents: handler.NewDocumentHandler(nil, nil, nil, 0),
		Ephemeral: handler.NewEphemeralHandler(nil, 0),
	}
}

func TestRoutesRegistered(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := New(testConfig(), testHandlers(), nil)

	got := map[string]bool{}
	for _, route := range r.Engine().Routes() {
		got[route.Method+" "+route.Path] = true
	}
	for _, want := range []string{
		"GET /health", "GET /ready", "GET /live", "GET /metrics",
		"POST /v1/chat",
		"GET /v1/conversations/:id", "DELETE /v1/conversations/:id",
		"POST /v1/documents", "POST /v1/documents/batch", "POST /v1/documents/async",
		"GET /v1/documents", "GET /v1/documents/catalog",
		"DELETE /v1/documents", "DELETE /v1/documents/:source",
		"DELETE /v1/categories/:category", "GET /v1/stats",
		"POST /v1/ephemeral", "GET /v1/ephemeral/:id",
		"POST /v1/ephemeral/:id/ask", "DELETE /v1/ephemeral/:id",
	} {
		assert.True(t, got[want], "missing route %s", want)
	}
	assert.Equal(t, int64(1<<20), r.Engine().MaxMultipartMemory)
}

func TestHealthAndMetricsServed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := New(testConfig(), testHandlers(), nil)

	for _, path := range []string{"/health", "/live", "/metrics"} {
		w := httptest.NewRecorder()
		r.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc")
	r.Engine().ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get("X-Request-ID"))
}
