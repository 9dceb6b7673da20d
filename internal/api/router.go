// Package api provides the HTTP API of the navigation service.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/breatheroute/navcore/internal/api/handler"
	"github.com/breatheroute/navcore/internal/api/middleware"
	"github.com/breatheroute/navcore/internal/provider/resilience"
)

// SessionService is what the router needs from the session layer.
// *session.Service implements it.
type SessionService interface {
	handler.SessionService
	handler.SessionCounter
}

// RateLimits overrides the default per-user limits. Zero values keep the
// defaults from the middleware package.
type RateLimits struct {
	Create   middleware.RateLimitConfig
	Fixes    middleware.RateLimitConfig
	Standard middleware.RateLimitConfig
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	Metrics     *middleware.Metrics
	AuthService middleware.TokenValidator
	Sessions    SessionService
	Registry    *resilience.Registry
	RequireTLS  bool
	RateLimits  RateLimits
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware - order matters
	r.Use(middleware.RequestID) // Generate/propagate request ID first
	r.Use(middleware.Tracing()) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(chimiddleware.RealIP)                  // Real IP extraction
	r.Use(middleware.SecurityHeaders)            // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // TLS enforcement behind a load balancer
	r.Use(middleware.ContentTypeJSON)            // JSON content type

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Registry, cfg.Sessions)
	sessionHandler := handler.NewSessionHandler(cfg.Sessions, cfg.Logger)

	authMiddleware := middleware.Auth(cfg.AuthService)

	limits := withDefaultLimits(cfg.RateLimits)
	createRateLimit := middleware.RateLimitByUser(limits.Create)
	fixRateLimit := middleware.RateLimitBySession(limits.Fixes)
	standardRateLimit := middleware.RateLimitByUser(limits.Standard)

	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Get("/health", opsHandler.HealthCheck)
		r.Get("/ready", opsHandler.ReadinessCheck)

		// Navigation sessions (authenticated, scoped to the token owner)
		r.Route("/sessions", func(r chi.Router) {
			r.Use(authMiddleware)

			r.With(createRateLimit, middleware.RequireJSON).Post("/", sessionHandler.CreateSession)
			r.With(standardRateLimit).Get("/", sessionHandler.ListSessions)

			r.Route("/{sessionID}", func(r chi.Router) {
				// Fix ingestion is budgeted per session
				r.With(fixRateLimit, middleware.RequireJSON).Post("/fixes", sessionHandler.PushFixes)

				r.Group(func(r chi.Router) {
					r.Use(standardRateLimit)
					r.Get("/", sessionHandler.GetSession)
					r.Delete("/", sessionHandler.DeleteSession)
					r.Get("/instructions", sessionHandler.GetInstructions)
					r.Post("/instructions/{index}/seen", sessionHandler.MarkInstructionSeen)
					r.Get("/route.kml", sessionHandler.ExportKML)
				})
			})
		})
	})

	return r
}

func withDefaultLimits(l RateLimits) RateLimits {
	if l.Create.RequestLimit <= 0 || l.Create.WindowLength <= 0 {
		l.Create = middleware.SessionCreateRateLimit
	}
	if l.Fixes.RequestLimit <= 0 || l.Fixes.WindowLength <= 0 {
		l.Fixes = middleware.FixRateLimit
	}
	if l.Standard.RequestLimit <= 0 || l.Standard.WindowLength <= 0 {
		l.Standard = middleware.StandardRateLimit
	}
	return l
}
