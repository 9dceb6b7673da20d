package routing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/breatheroute/navcore/internal/route"
	"github.com/breatheroute/navcore/internal/telemetry"
)

// ServiceConfig holds configuration for the routing service.
type ServiceConfig struct {
	// Provider is the routing data provider.
	Provider Provider

	// Logger for service operations.
	Logger zerolog.Logger

	// Metrics records provider calls and cache use (optional).
	Metrics *telemetry.ProviderMetrics

	// CacheTTL is how long to cache route documents (default: 5 minutes).
	// A negative value disables the cache.
	CacheTTL time.Duration

	// CacheGridSize is the size of cache grid cells in degrees (default: 0.0001 ~ 11m).
	// Requests whose locations fall in the same cells share a cached document.
	CacheGridSize float64

	// StaleIfErrorTTL allows serving stale documents on provider errors (default: 15 minutes).
	StaleIfErrorTTL time.Duration

	// CleanupInterval is how often to clean up expired entries (default: 5 minutes).
	CleanupInterval time.Duration
}

// Service fetches route documents with caching.
type Service struct {
	provider        Provider
	logger          zerolog.Logger
	metrics         *telemetry.ProviderMetrics
	cacheTTL        time.Duration
	cacheGridSize   float64
	staleIfErrorTTL time.Duration
	cleanupInterval time.Duration

	mu          sync.RWMutex
	cache       map[string]*cachedDocument
	lastCleanup time.Time

	// calls collapses concurrent misses for one cache key.
	calls singleflight.Group

	inflight sync.WaitGroup
}

type cachedDocument struct {
	doc       *route.Document
	fetchedAt time.Time
	expiresAt time.Time
}

// NewService creates a new routing service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 5 * time.Minute
	}

	cacheGridSize := cfg.CacheGridSize
	if cacheGridSize == 0 {
		cacheGridSize = 0.0001
	}

	staleIfErrorTTL := cfg.StaleIfErrorTTL
	if staleIfErrorTTL == 0 {
		staleIfErrorTTL = 15 * time.Minute
	}

	cleanupInterval := cfg.CleanupInterval
	if cleanupInterval == 0 {
		cleanupInterval = 5 * time.Minute
	}

	return &Service{
		provider:        cfg.Provider,
		logger:          cfg.Logger,
		metrics:         cfg.Metrics,
		cacheTTL:        cacheTTL,
		cacheGridSize:   cacheGridSize,
		staleIfErrorTTL: staleIfErrorTTL,
		cleanupInterval: cleanupInterval,
		cache:           make(map[string]*cachedDocument),
	}
}

// GetRoute returns the route document for req.
// Uses cached data if available and not expired.
func (s *Service) GetRoute(ctx context.Context, req Request) (*route.Document, error) {
	if err := req.Validate(); err != nil {
		return nil, &Error{
			Provider: s.provider.Name(),
			Code:     "INVALID_REQUEST",
			Message:  "invalid routing request",
			Err:      err,
		}
	}
	req = req.withDefaults()
	if !s.supports(req.Costing) {
		return nil, &Error{
			Provider: s.provider.Name(),
			Code:     "UNSUPPORTED_COSTING",
			Message:  fmt.Sprintf("costing %q is not supported by %s", req.Costing, s.provider.Name()),
			Err:      ErrInvalidRequest,
		}
	}

	if s.cacheTTL < 0 {
		return s.fetch(ctx, req)
	}

	cacheKey := s.cacheKey(req)

	// Check cache (read lock)
	s.mu.RLock()
	if cached, ok := s.cache[cacheKey]; ok && time.Now().Before(cached.expiresAt) {
		s.mu.RUnlock()
		s.metrics.RecordCacheHit(s.provider.Name())
		s.logger.Debug().
			Str("cache_key", cacheKey).
			Msg("cache hit for route")
		return cached.doc, nil
	}
	s.mu.RUnlock()
	s.metrics.RecordCacheMiss(s.provider.Name())

	return s.fetchShared(ctx, req, cacheKey)
}

// maxJoins bounds how often a caller restarts after joining provider calls
// that were cancelled by their leader.
const maxJoins = 3

// fetchShared runs at most one provider call per cache key. Each caller waits
// under its own ctx. A caller whose joined call died with the leader's
// cancellation, while its own ctx is still live, starts a call of its own.
func (s *Service) fetchShared(ctx context.Context, req Request, cacheKey string) (*route.Document, error) {
	for joins := 0; ; joins++ {
		ch := s.calls.DoChan(cacheKey, func() (any, error) {
			return s.fetchAndCache(ctx, req, cacheKey)
		})

		var res singleflight.Result
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res = <-ch:
		}

		if res.Err != nil {
			if res.Shared && ctx.Err() == nil && errors.Is(res.Err, context.Canceled) && joins < maxJoins {
				continue
			}
			return nil, res.Err
		}
		return res.Val.(*route.Document), nil
	}
}

// Fetch computes a route asynchronously and reports the outcome to cb
// exactly once: Success with a freshly built Route, or Failure with a status
// code (see StatusCode). A document that does not describe a route is a
// StatusNoRoute failure. Cancelling ctx interrupts the provider call, which
// then reports Failure(StatusCancelled).
func (s *Service) Fetch(ctx context.Context, req Request, cb Callback) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		doc, err := s.GetRoute(ctx, req)
		if err != nil {
			s.logger.Debug().Err(err).Int("status", StatusCode(err)).Msg("route fetch failed")
			cb.Failure(StatusCode(err))
			return
		}
		if !doc.Found() {
			cb.Failure(StatusNoRoute)
			return
		}

		r, err := route.New(doc)
		if err != nil {
			s.logger.Error().Err(err).Str("provider", s.provider.Name()).Msg("provider returned an unusable route document")
			cb.Failure(StatusInternal)
			return
		}
		cb.Success(r)
	}()
}

// Wait blocks until every Fetch started so far has delivered its callback.
func (s *Service) Wait() {
	s.inflight.Wait()
}

func (s *Service) fetch(ctx context.Context, req Request) (*route.Document, error) {
	start := time.Now()
	doc, err := s.provider.Route(ctx, req)
	s.metrics.RecordRequest(s.provider.Name(), time.Since(start), err)
	return doc, err
}

// fetchAndCache fetches a document from the provider and updates the cache.
// No lock is held during the provider call.
func (s *Service) fetchAndCache(ctx context.Context, req Request, cacheKey string) (*route.Document, error) {
	s.mu.RLock()
	cached, ok := s.cache[cacheKey]
	s.mu.RUnlock()
	if ok && time.Now().Before(cached.expiresAt) {
		s.logger.Debug().
			Str("cache_key", cacheKey).
			Msg("cache hit after double-check")
		return cached.doc, nil
	}

	origin, dest := req.Origin(), req.Destination()
	s.logger.Debug().
		Float64("origin_lat", origin.Lat).
		Float64("origin_lon", origin.Lon).
		Float64("dest_lat", dest.Lat).
		Float64("dest_lon", dest.Lon).
		Int("locations", len(req.Locations)).
		Str("costing", string(req.Costing)).
		Str("provider", s.provider.Name()).
		Msg("fetching route from provider")

	doc, err := s.fetch(ctx, req)
	if err != nil {
		s.logger.Error().Err(err).
			Float64("origin_lat", origin.Lat).
			Float64("origin_lon", origin.Lon).
			Float64("dest_lat", dest.Lat).
			Float64("dest_lon", dest.Lon).
			Str("costing", string(req.Costing)).
			Msg("failed to fetch route")

		// Check for stale data (stale-if-error pattern)
		s.mu.RLock()
		cached, ok = s.cache[cacheKey]
		s.mu.RUnlock()
		if ok && IsRetryable(err) {
			if time.Now().Before(cached.fetchedAt.Add(s.staleIfErrorTTL)) {
				s.logger.Warn().
					Time("fetched_at", cached.fetchedAt).
					Str("cache_key", cacheKey).
					Msg("serving stale route due to provider error")
				return cached.doc, nil
			}
		}

		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// not-found documents are answers too, but only successful routes are cached
	if doc.Found() {
		now := time.Now()
		s.cache[cacheKey] = &cachedDocument{
			doc:       doc,
			fetchedAt: now,
			expiresAt: now.Add(s.cacheTTL),
		}
		s.logger.Debug().
			Str("cache_key", cacheKey).
			Msg("cached route document")
	}

	// Periodic cleanup
	s.cleanupIfNeeded()

	return doc, nil
}

// IsRetryable reports whether err is a transient provider failure.
func IsRetryable(err error) bool {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.IsRetryable()
	}
	return false
}

// cacheKey generates a cache key for a routing request.
// Uses grid-based quantization for every location.
// Format: {costing}:{units}:{language}:{lat},{lon}|{lat},{lon}...
func (s *Service) cacheKey(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s:%s:%s:", req.Costing, req.Units, req.Language)
	for i, loc := range req.Locations {
		if i > 0 {
			b.WriteByte('|')
		}
		gridLat := math.Floor(loc.Lat/s.cacheGridSize) * s.cacheGridSize
		gridLon := math.Floor(loc.Lon/s.cacheGridSize) * s.cacheGridSize
		fmt.Fprintf(&b, "%.4f,%.4f", gridLat, gridLon)
		if loc.Heading != nil {
			fmt.Fprintf(&b, "@%d", *loc.Heading)
		}
	}
	return b.String()
}

// cleanupIfNeeded removes expired entries if cleanup interval has passed.
// The caller holds s.mu for writing.
func (s *Service) cleanupIfNeeded() {
	now := time.Now()
	if now.Sub(s.lastCleanup) < s.cleanupInterval {
		return
	}

	s.lastCleanup = now
	expired := 0

	for key, cached := range s.cache {
		// Remove entries that are past the stale-if-error window
		if now.After(cached.fetchedAt.Add(s.staleIfErrorTTL)) {
			delete(s.cache, key)
			expired++
		}
	}

	if expired > 0 {
		s.logger.Debug().
			Int("expired_entries", expired).
			Msg("cleaned up expired route cache entries")
	}
}

func (s *Service) supports(c Costing) bool {
	for _, supported := range s.provider.SupportedCostings() {
		if supported == c {
			return true
		}
	}
	return false
}

// InvalidateCache clears all cached data.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]*cachedDocument)
}

// CacheStats returns cache statistics.
func (s *Service) CacheStats() CacheStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	fresh := 0
	stale := 0

	for _, c := range s.cache {
		if now.Before(c.expiresAt) {
			fresh++
		} else if now.Before(c.fetchedAt.Add(s.staleIfErrorTTL)) {
			stale++
		}
	}

	return CacheStats{
		TotalEntries: len(s.cache),
		FreshEntries: fresh,
		StaleEntries: stale,
		Provider:     s.provider.Name(),
	}
}

// CacheStats contains cache statistics.
type CacheStats struct {
	TotalEntries int
	FreshEntries int
	StaleEntries int
	Provider     string
}

// ProviderName returns the name of the underlying provider.
func (s *Service) ProviderName() string {
	return s.provider.Name()
}
