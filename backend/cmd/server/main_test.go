package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"catalog-graph/backend/internal/api"
	"catalog-graph/backend/internal/catalog"
	"catalog-graph/backend/internal/graph"
	"catalog-graph/backend/pkg/config"
	"catalog-graph/backend/pkg/metrics"
)

// newServer wires the same stack main does, over a temporary bolt file.
func newServer(t *testing.T) (*gin.Engine, *metrics.Collector) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		StoreBackend: config.BackendBolt,
		BoltPath:     filepath.Join(t.TempDir(), "catalog.db"),
	}
	store, err := graph.Open(context.Background(), cfg, catalog.StoreOptions()...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	collector := metrics.NewCollector("catalog")
	svc := catalog.NewService(graph.NewInstrumented(store, collector),
		catalog.WithLogger(zap.NewNop()),
		catalog.WithMetrics(collector))
	return api.NewRouter(svc, collector, zap.NewNop()), collector
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newServer(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "ok", response["status"])
}

func TestCreateItemEndpoint_InvalidRequest(t *testing.T) {
	router, _ := newServer(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/items", bytes.NewBuffer([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateItemEndpoint_CountsStoreOperations(t *testing.T) {
	router, _ := newServer(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/items", bytes.NewBuffer([]byte(`{"name":"Lamp","tags":["home"]}`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/metrics", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "catalog_items_created_total 1")
	assert.Contains(t, body, `catalog_store_operations_total{operation="update",status="success"} 1`)
}
