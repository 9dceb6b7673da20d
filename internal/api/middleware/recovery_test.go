package middleware_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/navcore/internal/api/middleware"
)

func TestRecovery_WritesProblem(t *testing.T) {
	var logs bytes.Buffer
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recovery(zerolog.New(&logs)))
	r.Get("/v1/sessions/{sessionID}", func(http.ResponseWriter, *http.Request) {
		panic("engine exploded")
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/abc", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/problem+json")

	var problem map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
	assert.Equal(t, "/v1/sessions/abc", problem["instance"])

	var entry map[string]any
	require.NoError(t, json.Unmarshal(logs.Bytes(), &entry))
	assert.Equal(t, "handler panicked", entry["message"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "engine exploded", entry["panic"])
	assert.Equal(t, "/v1/sessions/{sessionID}", entry["route"])
	assert.NotEmpty(t, entry["stack"])
}

func TestRecovery_ReraisesAbort(t *testing.T) {
	handler := middleware.Recovery(zerolog.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}
