package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/navcore/internal/api"
	"github.com/breatheroute/navcore/internal/api/models"
	"github.com/breatheroute/navcore/internal/auth"
	"github.com/breatheroute/navcore/internal/export"
	"github.com/breatheroute/navcore/internal/provider/resilience"
	"github.com/breatheroute/navcore/internal/route"
	"github.com/breatheroute/navcore/internal/routing"
	"github.com/breatheroute/navcore/internal/session"
)

// stubFetcher answers every fetch with the Berlin route, or with a failure
// status when one is set.
type stubFetcher struct {
	mu     sync.Mutex
	data   []byte
	status int
	last   routing.Request
}

func (f *stubFetcher) Fetch(_ context.Context, req routing.Request, cb routing.Callback) {
	f.mu.Lock()
	f.last = req
	status := f.status
	f.mu.Unlock()

	if status != 0 {
		cb.Failure(status)
		return
	}
	r, err := route.Parse(f.data)
	if err != nil {
		cb.Failure(routing.StatusInternal)
		return
	}
	cb.Success(r)
}

func (f *stubFetcher) fail(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

func (f *stubFetcher) lastRequest() routing.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func testJWTService() *auth.JWTService {
	return auth.NewJWTService(auth.JWTConfig{
		SigningKey: "test-secret-key-for-testing-only",
		Issuer:     "https://nav.example.com",
		Audience:   "navcore-api",
	})
}

type testServer struct {
	router   http.Handler
	fetcher  *stubFetcher
	sessions *session.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	data, err := os.ReadFile("../route/testdata/berlin.json")
	require.NoError(t, err)

	fetcher := &stubFetcher{data: data}
	sessions := session.NewService(session.Config{
		Fetcher:     fetcher,
		MaxPerOwner: 3,
		Logger:      zerolog.Nop(),
	})
	t.Cleanup(sessions.Close)

	router := api.NewRouter(api.RouterConfig{
		Version:     "test",
		BuildTime:   "2024-01-01T00:00:00Z",
		Logger:      zerolog.New(io.Discard),
		AuthService: auth.NewService(testJWTService()),
		Sessions:    sessions,
		Registry:    resilience.NewRegistry(),
	})
	return &testServer{router: router, fetcher: fetcher, sessions: sessions}
}

func (s *testServer) do(t *testing.T, owner, method, path string, body interface{}, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = strings.NewReader(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(data)
		}
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if owner != "" {
		token, _, err := testJWTService().GenerateAccessToken(owner)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func berlinBody() map[string]interface{} {
	return map[string]interface{}{
		"origin":      map[string]interface{}{"lat": 52.5, "lon": 13.4},
		"destination": map[string]interface{}{"lat": 52.504, "lon": 13.413, "name": "Destination"},
		"costing":     "auto",
		"language":    "de-DE",
	}
}

func createSession(t *testing.T, s *testServer, owner string) session.Status {
	t.Helper()
	w := s.do(t, owner, http.MethodPost, "/v1/sessions", berlinBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var st session.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	require.NotEmpty(t, st.SessionID)
	return st
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) models.Problem {
	t.Helper()
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	var p models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	return p
}

func TestRouter_HealthCheck(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, "", http.MethodGet, "/v1/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	var health models.Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "test", health.Details["version"])
}

func TestRouter_ReadinessCheck(t *testing.T) {
	s := newTestServer(t)
	createSession(t, s, "alice")

	w := s.do(t, "", http.MethodGet, "/v1/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var ready models.Readiness
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ready))
	assert.Equal(t, models.HealthStatusOK, ready.Status)
	assert.Equal(t, 1, ready.ActiveSessions)
	assert.NotNil(t, ready.Providers)
}

func TestRouter_SessionsRequireAuth(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/v1/sessions", "/v1/sessions/abc", "/v1/sessions/abc/route.kml"} {
		w := s.do(t, "", http.MethodGet, path, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
		assert.Equal(t, models.ProblemTypeUnauthorized, decodeProblem(t, w).Type)
	}
}

func TestRouter_SessionLifecycle(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, "alice", http.MethodPost, "/v1/sessions", berlinBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created session.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "/v1/sessions/"+created.SessionID, w.Header().Get("Location"))
	assert.Equal(t, "PRE_INSTRUCTION", created.State)
	assert.Equal(t, 1328, created.TotalDistance)
	assert.Equal(t, "1,3 km", created.RemainingDistanceText)
	base := "/v1/sessions/" + created.SessionID

	t.Run("get", func(t *testing.T) {
		w := s.do(t, "alice", http.MethodGet, base, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

		var st session.Status
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
		assert.Equal(t, created.SessionID, st.SessionID)
	})

	t.Run("list", func(t *testing.T) {
		w := s.do(t, "alice", http.MethodGet, "/v1/sessions", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var list models.SessionList
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
		assert.Equal(t, 1, list.Count)
		require.Len(t, list.Items, 1)
		assert.Equal(t, created.SessionID, list.Items[0].SessionID)
	})

	t.Run("instructions", func(t *testing.T) {
		w := s.do(t, "alice", http.MethodPost, base+"/instructions/1/seen", nil)
		require.Equal(t, http.StatusNoContent, w.Code)

		w = s.do(t, "alice", http.MethodGet, base+"/instructions", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var list models.InstructionList
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
		require.Len(t, list.Items, 4)
		assert.True(t, list.Items[1].Seen)
		assert.Equal(t, route.TurnDestination.String(), list.Items[3].Turn)

		w = s.do(t, "alice", http.MethodPost, base+"/instructions/9/seen", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		w = s.do(t, "alice", http.MethodPost, base+"/instructions/first/seen", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("single fix", func(t *testing.T) {
		w := s.do(t, "alice", http.MethodPost, base+"/fixes", map[string]interface{}{
			"lat": 52.5, "lon": 13.4, "timestamp": "2024-05-01T08:00:00Z",
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var result session.FixResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		assert.NotEmpty(t, result.Events)
		assert.Equal(t, created.SessionID, result.Status.SessionID)
	})

	t.Run("batch", func(t *testing.T) {
		w := s.do(t, "alice", http.MethodPost, base+"/fixes", map[string]interface{}{
			"fixes": []map[string]interface{}{
				{"lat": 52.5, "lon": 13.4005, "timestamp": "2024-05-01T08:00:01Z"},
				{"lat": 52.5, "lon": 13.401, "bearing": 90, "timestamp": "2024-05-01T08:00:02Z"},
			},
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	})

	t.Run("stale fix", func(t *testing.T) {
		w := s.do(t, "alice", http.MethodPost, base+"/fixes", map[string]interface{}{
			"lat": 52.5, "lon": 13.401, "timestamp": "2024-05-01T07:59:00Z",
		})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, models.ProblemTypeConflict, decodeProblem(t, w).Type)
	})

	t.Run("invalid fix", func(t *testing.T) {
		w := s.do(t, "alice", http.MethodPost, base+"/fixes", map[string]interface{}{"lat": 95, "lon": 13.4})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		p := decodeProblem(t, w)
		require.Len(t, p.Errors, 1)
		assert.Equal(t, "fixes[0].lat", p.Errors[0].Field)

		w = s.do(t, "alice", http.MethodPost, base+"/fixes", map[string]interface{}{"fixes": []interface{}{}})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = s.do(t, "alice", http.MethodPost, base+"/fixes", "not json")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("kml", func(t *testing.T) {
		w := s.do(t, "alice", http.MethodGet, base+"/route.kml", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, export.ContentType, w.Header().Get("Content-Type"))
		assert.True(t, strings.HasPrefix(w.Body.String(), xml.Header))
		assert.Contains(t, w.Body.String(), "<name>"+route.ArrivalName+"</name>")
	})

	t.Run("other owner", func(t *testing.T) {
		w := s.do(t, "mallory", http.MethodGet, base, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		w = s.do(t, "mallory", http.MethodDelete, base, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("delete", func(t *testing.T) {
		w := s.do(t, "alice", http.MethodDelete, base, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = s.do(t, "alice", http.MethodGet, base, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, models.ProblemTypeNotFound, decodeProblem(t, w).Type)
	})
}

func TestRouter_CreateSession_Validation(t *testing.T) {
	s := newTestServer(t)

	body := berlinBody()
	delete(body, "origin")
	body["costing"] = "rocket"

	w := s.do(t, "alice", http.MethodPost, "/v1/sessions", body)
	require.Equal(t, http.StatusBadRequest, w.Code)

	p := decodeProblem(t, w)
	fields := make([]string, 0, len(p.Errors))
	for _, fe := range p.Errors {
		fields = append(fields, fe.Field)
	}
	assert.ElementsMatch(t, []string{"origin", "costing"}, fields)

	w = s.do(t, "alice", http.MethodPost, "/v1/sessions", `{"origin":{"lat":1,"lon":2},"extra":true}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_CreateSession_RequiresJSON(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, "alice", http.MethodPost, "/v1/sessions", "lat=1", "Content-Type", "text/plain")
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestRouter_CreateSession_AcceptLanguage(t *testing.T) {
	s := newTestServer(t)

	body := berlinBody()
	delete(body, "language")

	w := s.do(t, "alice", http.MethodPost, "/v1/sessions", body, "Accept-Language", "en-US,en;q=0.8")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var st session.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, "en-US", s.fetcher.lastRequest().Language)
	assert.Equal(t, route.Miles, s.fetcher.lastRequest().Units)
	assert.Equal(t, "0.8 mi", st.RemainingDistanceText)

	body["units"] = "kilometers"
	w = s.do(t, "alice", http.MethodPost, "/v1/sessions", body, "Accept-Language", "en-US")
	require.Equal(t, http.StatusCreated, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, route.Kilometers, s.fetcher.lastRequest().Units)
	assert.Equal(t, "1.3 km", st.RemainingDistanceText)
}

func TestRouter_CreateSession_RoutingFailures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantCode   int
		wantType   string
		retryAfter string
	}{
		{"no route", routing.StatusNoRoute, http.StatusUnprocessableEntity, models.ProblemTypeNoRoute, ""},
		{"invalid", routing.StatusInvalidRequest, http.StatusBadRequest, models.ProblemTypeValidation, ""},
		{"rate limited", routing.StatusRateLimited, http.StatusTooManyRequests, models.ProblemTypeTooManyRequests, "60"},
		{"unavailable", routing.StatusUnavailable, http.StatusServiceUnavailable, models.ProblemTypeUnavailable, ""},
		{"provider error", routing.StatusInternal, http.StatusBadGateway, models.ProblemTypeBadGateway, ""},
		{"provider auth", http.StatusForbidden, http.StatusBadGateway, models.ProblemTypeBadGateway, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			s.fetcher.fail(tt.status)

			w := s.do(t, "alice", http.MethodPost, "/v1/sessions", berlinBody())
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantType, decodeProblem(t, w).Type)
			assert.Equal(t, tt.retryAfter, w.Header().Get("Retry-After"))
		})
	}
}

func TestRouter_CreateSession_MaxPerOwner(t *testing.T) {
	s := newTestServer(t)
	for i := 0; i < 3; i++ {
		createSession(t, s, "alice")
	}

	w := s.do(t, "alice", http.MethodPost, "/v1/sessions", berlinBody())
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	createSession(t, s, "bob")
}

func TestRouter_CreateSession_RateLimited(t *testing.T) {
	s := newTestServer(t)
	s.fetcher.fail(routing.StatusNoRoute)

	var last *httptest.ResponseRecorder
	for i := 0; i < 11; i++ {
		last = s.do(t, "carol", http.MethodPost, "/v1/sessions", berlinBody())
	}
	assert.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Equal(t, "60", last.Header().Get("Retry-After"))

	// Limits are per owner.
	w := s.do(t, "dave", http.MethodPost, "/v1/sessions", berlinBody())
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestRouter_NotFoundRoute(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, "", http.MethodGet, "/v1/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_ListEmpty(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, "alice", http.MethodGet, "/v1/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"items":[],"count":0}`, w.Body.String())
}
