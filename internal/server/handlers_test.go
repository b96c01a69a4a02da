package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phivault/internal/auditlog"
	"phivault/internal/cache"
	"phivault/internal/core"
	"phivault/internal/detector"
	"phivault/internal/engine"
	"phivault/internal/generator"
	"phivault/internal/service"
	"phivault/internal/vault"
)

func newTestServer(t *testing.T, cfg *Config) *Server {
	t.Helper()
	store := vault.NewMemory()
	eng := engine.New(store, detector.New(), generator.New(), cache.NewNoop(), nil)
	svc := service.New(store, eng, &auditlog.NoopLogger{}, nil)
	return New(svc, cfg)
}

func doJSON(t *testing.T, srv *Server, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) core.Envelope {
	t.Helper()
	var env core.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, &Config{MasterKey: "secret"})

	// Health is public even with authentication enabled.
	rec := doJSON(t, srv, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t, &Config{MasterKey: "secret"})

	rec := doJSON(t, srv, http.MethodPost, "/v1/anonymize", "",
		`{"scope_id":"p1","scope_type":"patient","text":"hi"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/v1/anonymize", "wrong-key",
		`{"scope_id":"p1","scope_type":"patient","text":"hi"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAnonymizeEndpoint(t *testing.T) {
	srv := newTestServer(t, &Config{MasterKey: "secret"})

	rec := doJSON(t, srv, http.MethodPost, "/v1/anonymize", "secret",
		`{"scope_id":"p1","scope_type":"patient","text":"Name: Jane Doe"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	assert.Equal(t, core.StatusOK, env.Status)
	assert.Equal(t, 1, env.EntityCount)

	result, ok := env.Result.(string)
	require.True(t, ok)
	assert.NotContains(t, result, "Jane Doe")
}

func TestRoundTripOverHTTP(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doJSON(t, srv, http.MethodPost, "/v1/anonymize", "",
		`{"scope_id":"p1","scope_type":"patient","text":"Name: Jane Doe, DOB: 01/15/1960"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	anonymized := decodeEnvelope(t, rec).Result.(string)

	body, err := json.Marshal(map[string]string{
		"scope_id": "p1", "scope_type": "patient", "text": anonymized,
	})
	require.NoError(t, err)

	rec = doJSON(t, srv, http.MethodPost, "/v1/deanonymize", "", string(body))
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "Name: Jane Doe, DOB: 01/15/1960", env.Result)
	assert.Equal(t, 2, env.EntityCount)
}

func TestDeAnonymizeUnknownScopeEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doJSON(t, srv, http.MethodPost, "/v1/deanonymize", "",
		`{"scope_id":"never-seen","scope_type":"patient","text":"hello"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	env := decodeEnvelope(t, rec)
	assert.Equal(t, core.StatusError, env.Status)
	require.NotNil(t, env.Error)
	assert.Equal(t, core.ErrorKindUnknownScope, env.Error.Kind)
	assert.False(t, env.Error.Retryable)
}

func TestStructuredEndpointPreservesShape(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doJSON(t, srv, http.MethodPost, "/v1/anonymize/structured", "",
		`{"scope_id":"p1","scope_type":"patient","document":{"name":"John Smith","score":2}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	assert.Equal(t, core.StatusOK, env.Status)
	assert.Equal(t, 1, env.EntityCount)

	doc, ok := env.Result.(map[string]any)
	require.True(t, ok)
	assert.NotEqual(t, "John Smith", doc["name"])
	assert.Equal(t, float64(2), doc["score"])
}

func TestInvalidRequestBody(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doJSON(t, srv, http.MethodPost, "/v1/anonymize", "", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, core.ErrorKindInvalidRequest, env.Error.Kind)
}

func TestMissingScopeParameters(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doJSON(t, srv, http.MethodPost, "/v1/anonymize", "", `{"text":"hello"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScopeSummaryEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := doJSON(t, srv, http.MethodPost, "/v1/anonymize", "",
		`{"scope_id":"p1","scope_type":"patient","text":"Name: Jane Doe"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/v1/scopes/p1/summary?scope_type=patient", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeEnvelope(t, rec)
	assert.Equal(t, core.StatusOK, env.Status)
	summary, ok := env.Result.(map[string]any)
	require.True(t, ok)
	entities, ok := summary["entities"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), entities["NAME"])
}
