package resilience_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/navcore/internal/provider/resilience"
)

type fixedBreaker gobreaker.State

func (b fixedBreaker) CircuitBreakerState() gobreaker.State   { return gobreaker.State(b) }
func (b fixedBreaker) CircuitBreakerCounts() gobreaker.Counts { return gobreaker.Counts{} }

func TestRegistry_ClientRegistersItself(t *testing.T) {
	registry := resilience.NewRegistry()
	cfg := resilience.DefaultClientConfig("valhalla")
	cfg.Registry = registry
	client := resilience.NewClient(cfg)

	assert.Equal(t, 1, registry.Len())
	assert.Equal(t, "valhalla", client.Name())

	health := registry.Health("valhalla")
	require.NotNil(t, health)
	assert.Equal(t, gobreaker.StateClosed, health.CircuitState)
	assert.True(t, health.IsHealthy())
	assert.Nil(t, health.LastSuccessAt)
	assert.Nil(t, health.LastFailureAt)
}

func TestRegistry_RecordOutcomes(t *testing.T) {
	registry := resilience.NewRegistry()
	registry.Register("valhalla", fixedBreaker(gobreaker.StateClosed))

	registry.RecordSuccess("valhalla")
	registry.RecordFailure("valhalla", assert.AnError)

	health := registry.Health("valhalla")
	require.NotNil(t, health)
	require.NotNil(t, health.LastSuccessAt)
	require.NotNil(t, health.LastFailureAt)
	assert.WithinDuration(t, time.Now(), *health.LastFailureAt, time.Second)
	assert.Equal(t, assert.AnError.Error(), health.LastError)
}

func TestRegistry_UnknownProvider(t *testing.T) {
	registry := resilience.NewRegistry()

	assert.NotPanics(t, func() {
		registry.RecordSuccess("nonexistent")
		registry.RecordFailure("nonexistent", assert.AnError)
	})
	assert.Nil(t, registry.Health("nonexistent"))
	assert.Zero(t, registry.Len())
}

func TestRegistry_SnapshotSorted(t *testing.T) {
	registry := resilience.NewRegistry()
	registry.Register("valhalla", fixedBreaker(gobreaker.StateClosed))
	registry.Register("googlemaps", fixedBreaker(gobreaker.StateHalfOpen))
	registry.Register("openrouteservice", fixedBreaker(gobreaker.StateClosed))

	health := registry.Snapshot()
	require.Len(t, health, 3)
	assert.Equal(t, "googlemaps", health[0].Name)
	assert.True(t, health[0].IsDegraded())
	assert.Equal(t, "openrouteservice", health[1].Name)
	assert.Equal(t, "valhalla", health[2].Name)
	assert.True(t, registry.Ready(), "half-open is not a failure")

	registry.Register("valhalla", fixedBreaker(gobreaker.StateOpen))
	assert.False(t, registry.Ready())
}

func TestRegistry_Ready(t *testing.T) {
	registry := resilience.NewRegistry()
	assert.True(t, registry.Ready(), "empty registry is ready")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cbConfig := resilience.CircuitBreakerConfig{
		Name:        "valhalla",
		MaxRequests: 1,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 2 },
	}
	client := resilience.NewClient(resilience.ClientConfig{
		Name:            "valhalla",
		MaxRetries:      1,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		CircuitBreaker:  &cbConfig,
		Registry:        registry,
	})
	assert.True(t, registry.Ready())

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)
	resp, _ := client.Do(req)
	if resp != nil {
		resp.Body.Close()
	}

	assert.Equal(t, gobreaker.StateOpen, client.CircuitBreakerState())
	assert.False(t, registry.Ready())

	health := registry.Health("valhalla")
	require.NotNil(t, health)
	require.NotNil(t, health.LastFailureAt)
	assert.NotEmpty(t, health.LastError)
}

func TestRegistry_RecordsClientSuccess(t *testing.T) {
	registry := resilience.NewRegistry()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := resilience.DefaultClientConfig("valhalla")
	cfg.Registry = registry
	client := resilience.NewClient(cfg)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	health := registry.Health("valhalla")
	require.NotNil(t, health)
	require.NotNil(t, health.LastSuccessAt)
	assert.Nil(t, health.LastFailureAt)
}

func TestProviderHealth_States(t *testing.T) {
	tests := []struct {
		state      gobreaker.State
		isHealthy  bool
		isDegraded bool
		isUnhealth bool
	}{
		{gobreaker.StateClosed, true, false, false},
		{gobreaker.StateHalfOpen, false, true, false},
		{gobreaker.StateOpen, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			h := &resilience.ProviderHealth{CircuitState: tt.state}
			assert.Equal(t, tt.isHealthy, h.IsHealthy())
			assert.Equal(t, tt.isDegraded, h.IsDegraded())
			assert.Equal(t, tt.isUnhealth, h.IsUnhealthy())
		})
	}
}
