package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/breatheroute/navcore/internal/telemetry"

// ProviderMetrics holds metrics for routing provider calls.
type ProviderMetrics struct {
	requestDuration metric.Float64Histogram
	requestTotal    metric.Int64Counter
	cacheHit        metric.Int64Counter
	cacheMiss       metric.Int64Counter
}

// NewProviderMetrics creates metrics for monitoring routing provider calls.
func NewProviderMetrics() (*ProviderMetrics, error) {
	meter := otel.Meter(meterName)

	requestDuration, err := meter.Float64Histogram(
		"provider.request.duration",
		metric.WithDescription("Duration of provider requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	requestTotal, err := meter.Int64Counter(
		"provider.request.total",
		metric.WithDescription("Total number of provider requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	cacheHit, err := meter.Int64Counter(
		"provider.cache.hit",
		metric.WithDescription("Number of route cache hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, err
	}

	cacheMiss, err := meter.Int64Counter(
		"provider.cache.miss",
		metric.WithDescription("Number of route cache misses"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return nil, err
	}

	return &ProviderMetrics{
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheHit:        cacheHit,
		cacheMiss:       cacheMiss,
	}, nil
}

// RecordRequest records one provider request. A nil receiver records nothing.
func (m *ProviderMetrics) RecordRequest(provider string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("provider.name", provider)}
	if err != nil {
		attrs = append(attrs, attribute.Bool("error", true))
	}

	// metrics outlive the request context
	ctx := context.TODO()
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.requestTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCacheHit records a route cache hit.
func (m *ProviderMetrics) RecordCacheHit(provider string) {
	if m == nil {
		return
	}
	m.cacheHit.Add(context.TODO(), 1, metric.WithAttributes(attribute.String("provider.name", provider)))
}

// RecordCacheMiss records a route cache miss.
func (m *ProviderMetrics) RecordCacheMiss(provider string) {
	if m == nil {
		return
	}
	m.cacheMiss.Add(context.TODO(), 1, metric.WithAttributes(attribute.String("provider.name", provider)))
}

// NavigationMetrics counts navigation activity across sessions.
type NavigationMetrics struct {
	fixes          metric.Int64Counter
	lost           metric.Int64Counter
	reroutes       metric.Int64Counter
	completed      metric.Int64Counter
	activeSessions metric.Int64UpDownCounter
}

// NewNavigationMetrics creates the navigation instruments.
func NewNavigationMetrics() (*NavigationMetrics, error) {
	meter := otel.Meter(meterName)

	fixes, err := meter.Int64Counter(
		"navigation.fixes.total",
		metric.WithDescription("Location fixes processed, by outcome"),
		metric.WithUnit("{fix}"),
	)
	if err != nil {
		return nil, err
	}

	lost, err := meter.Int64Counter(
		"navigation.lost.total",
		metric.WithDescription("Fixes that could not be matched to the route"),
		metric.WithUnit("{fix}"),
	)
	if err != nil {
		return nil, err
	}

	reroutes, err := meter.Int64Counter(
		"navigation.reroutes.total",
		metric.WithDescription("Route recalculations, by outcome"),
		metric.WithUnit("{reroute}"),
	)
	if err != nil {
		return nil, err
	}

	completed, err := meter.Int64Counter(
		"navigation.routes.completed",
		metric.WithDescription("Routes navigated to the destination"),
		metric.WithUnit("{route}"),
	)
	if err != nil {
		return nil, err
	}

	activeSessions, err := meter.Int64UpDownCounter(
		"navigation.sessions.active",
		metric.WithDescription("Navigation sessions currently held in memory"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, err
	}

	return &NavigationMetrics{
		fixes:          fixes,
		lost:           lost,
		reroutes:       reroutes,
		completed:      completed,
		activeSessions: activeSessions,
	}, nil
}

// RecordFix records one processed fix.
func (m *NavigationMetrics) RecordFix(ctx context.Context, snapped bool) {
	if m == nil {
		return
	}
	m.fixes.Add(ctx, 1, metric.WithAttributes(attribute.Bool("snapped", snapped)))
	if !snapped {
		m.lost.Add(ctx, 1)
	}
}

// RecordReroute records a recalculation attempt and whether it produced a route.
func (m *NavigationMetrics) RecordReroute(ctx context.Context, ok bool) {
	if m == nil {
		return
	}
	m.reroutes.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", ok)))
}

// RecordCompleted records a route navigated to the end.
func (m *NavigationMetrics) RecordCompleted(ctx context.Context) {
	if m == nil {
		return
	}
	m.completed.Add(ctx, 1)
}

// SessionOpened and SessionClosed track the active session gauge.
func (m *NavigationMetrics) SessionOpened(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeSessions.Add(ctx, 1)
}

func (m *NavigationMetrics) SessionClosed(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeSessions.Add(ctx, -1)
}
