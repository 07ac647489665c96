package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfolio/quantfolio/internal/pattern"
	"github.com/quantfolio/quantfolio/internal/registry"
	"github.com/quantfolio/quantfolio/internal/reqctx"
)

func testServer(t *testing.T) *Server {
	t.Helper()

	reg := registry.New()
	noop := func(ctx context.Context, rctx reqctx.Ctx, args map[string]any) (any, error) {
		return nil, nil
	}
	require.NoError(t, reg.Register("ledger.load_series", noop))
	require.NoError(t, reg.Register("metrics.compute_twr", noop))

	lib, err := pattern.NewLibrary(&pattern.Pattern{
		ID:          "portfolio_performance",
		Description: "TWR and risk statistics for one portfolio",
		Steps: []pattern.Step{
			{Capability: "ledger.load_series", Args: map[string]any{"portfolio_id": "{{ inputs.portfolio_id }}"}, As: "series"},
			{Capability: "metrics.compute_twr", Args: map[string]any{"observations": "{{ series.observations }}"}, As: "twr"},
		},
		Outputs: []string{"twr"},
	})
	require.NoError(t, err)

	return NewServer(DefaultServerConfig(), reg, lib)
}

func get(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestServer_Health(t *testing.T) {
	rec, body := get(t, testServer(t), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_ReadyNeedsCapabilitiesAndPatterns(t *testing.T) {
	rec, body := get(t, testServer(t), "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ready"])

	empty := NewServer(DefaultServerConfig(), registry.New(), mustEmptyLibrary(t))
	rec, body = get(t, empty, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, false, body["ready"])
}

func mustEmptyLibrary(t *testing.T) *pattern.Library {
	t.Helper()
	lib, err := pattern.NewLibrary()
	require.NoError(t, err)
	return lib
}

func TestServer_CapabilitiesListsOwners(t *testing.T) {
	rec, body := get(t, testServer(t), "/capabilities")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["count"])

	caps := body["capabilities"].([]any)
	first := caps[0].(map[string]any)
	assert.Equal(t, "ledger.load_series", first["name"])
}

func TestServer_PatternByID(t *testing.T) {
	rec, body := get(t, testServer(t), "/patterns/portfolio_performance")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "portfolio_performance", body["id"])

	rec, _ = get(t, testServer(t), "/patterns/unknown")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_PatternsList(t *testing.T) {
	rec, body := get(t, testServer(t), "/patterns")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["count"])
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestServer_NotFoundIsJSON(t *testing.T) {
	rec, body := get(t, testServer(t), "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not found", body["error"])
}
