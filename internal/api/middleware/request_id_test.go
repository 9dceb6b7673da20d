package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/breatheroute/navcore/internal/api/middleware"
)

// requestIDOf serves one request with the given incoming header and returns
// the ID seen by the handler and the one echoed back.
func requestIDOf(incoming string) (seen, echoed string) {
	handler := middleware.RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = middleware.GetRequestID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/v1/health", http.NoBody)
	if incoming != "" {
		req.Header.Set(middleware.RequestIDHeader, incoming)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return seen, rec.Header().Get(middleware.RequestIDHeader)
}

func TestRequestID_Generated(t *testing.T) {
	ids := make(map[string]bool)
	for i := 0; i < 100; i++ {
		seen, echoed := requestIDOf("")
		assert.True(t, strings.HasPrefix(seen, "req_"))
		assert.Equal(t, seen, echoed)
		assert.False(t, ids[seen], "duplicate request ID %s", seen)
		ids[seen] = true
	}
}

func TestRequestID_KeepsClientID(t *testing.T) {
	for _, id := range []string{"existing_request_id", "device-42.fix-7", strings.Repeat("a", 64)} {
		seen, echoed := requestIDOf(id)
		assert.Equal(t, id, seen)
		assert.Equal(t, id, echoed)
	}
}

func TestRequestID_ReplacesUnsafeID(t *testing.T) {
	tests := map[string]string{
		"newline":   "abc\nlevel=error",
		"space":     "two words",
		"too long":  strings.Repeat("a", 65),
		"non-ascii": "réq",
	}
	for name, incoming := range tests {
		t.Run(name, func(t *testing.T) {
			seen, echoed := requestIDOf(incoming)
			assert.NotEqual(t, incoming, seen)
			assert.True(t, strings.HasPrefix(echoed, "req_"))
		})
	}
}

func TestGetRequestID_Missing(t *testing.T) {
	assert.Empty(t, middleware.GetRequestID(httptest.NewRequest(http.MethodGet, "/", http.NoBody).Context()))
}
