package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/breatheroute/navcore/internal/api/models"
)

// RateLimitConfig is a fixed-window request budget.
type RateLimitConfig struct {
	RequestLimit int
	WindowLength time.Duration
}

var (
	// SessionCreateRateLimit bounds session creation, which costs a
	// provider route request each time.
	SessionCreateRateLimit = RateLimitConfig{RequestLimit: 10, WindowLength: time.Minute}

	// FixRateLimit is the per-session fix budget. Devices report about once
	// a second; the rest is headroom for retries.
	FixRateLimit = RateLimitConfig{RequestLimit: 300, WindowLength: time.Minute}

	// StandardRateLimit applies to reads and deletes.
	StandardRateLimit = RateLimitConfig{RequestLimit: 100, WindowLength: time.Minute}
)

// RateLimitByUser limits each authenticated owner, falling back to the
// client IP outside Auth.
func RateLimitByUser(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return limit(cfg, keyByOwner)
}

// RateLimitBySession limits each navigation session separately, so an owner
// driving two devices gets a fix budget per device. It must be mounted below
// the {sessionID} route.
func RateLimitBySession(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return limit(cfg, keyBySession)
}

func limit(cfg RateLimitConfig, key httprate.KeyFunc) func(http.Handler) http.Handler {
	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(key),
		httprate.WithLimitHandler(limitExceeded(cfg.WindowLength)),
	)
}

func keyByOwner(r *http.Request) (string, error) {
	if owner := GetUserID(r.Context()); owner != "" {
		return "owner:" + owner, nil
	}
	return httprate.KeyByRealIP(r)
}

func keyBySession(r *http.Request) (string, error) {
	owner, err := keyByOwner(r)
	if err != nil {
		return "", err
	}
	if id := routeParam(r, "sessionID"); id != "" {
		return owner + "/session:" + id, nil
	}
	return owner, nil
}

// limitExceeded answers with a 429 problem. httprate does not expose the
// window reset, so Retry-After is the whole window.
func limitExceeded(window time.Duration) http.HandlerFunc {
	retryAfter := strconv.Itoa(int(math.Ceil(window.Seconds())))
	return func(w http.ResponseWriter, r *http.Request) {
		problem := models.NewTooManyRequests(GetRequestID(r.Context()), "Rate limit exceeded. Please try again later.")
		problem.Instance = r.URL.Path
		w.Header().Set("Retry-After", retryAfter)
		problem.Write(w)
	}
}
