package main

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/breatheroute/navcore/internal/config"
	"github.com/breatheroute/navcore/internal/provider/resilience"
	"github.com/breatheroute/navcore/internal/routing"
	"github.com/breatheroute/navcore/internal/routing/googlemaps"
	"github.com/breatheroute/navcore/internal/routing/openrouteservice"
	"github.com/breatheroute/navcore/internal/routing/valhalla"
)

// newProvider builds the configured routing provider on a resilient HTTP
// client registered with registry.
func newProvider(cfg *config.Config, registry *resilience.Registry, logger zerolog.Logger) (routing.Provider, error) {
	rc := cfg.Routing
	httpClient := resilientClient(cfg, rc.Provider, registry, logger)

	switch rc.Provider {
	case config.ProviderValhalla:
		return valhalla.NewClient(valhalla.ClientConfig{
			BaseURL:    rc.Valhalla.BaseURL,
			APIKey:     rc.Valhalla.APIKey,
			HTTPClient: httpClient,
			Timeout:    rc.Timeout,
			Registry:   registry,
			Logger:     logger,
		}), nil
	case config.ProviderOpenRouteService:
		return openrouteservice.NewClient(openrouteservice.ClientConfig{
			APIKey:     rc.OpenRouteService.APIKey,
			BaseURL:    rc.OpenRouteService.BaseURL,
			HTTPClient: httpClient,
			Timeout:    rc.Timeout,
			Registry:   registry,
			Logger:     logger,
		}), nil
	case config.ProviderGoogleMaps:
		return googlemaps.NewClient(googlemaps.ClientConfig{
			APIKey:     rc.GoogleMaps.APIKey,
			BaseURL:    rc.GoogleMaps.BaseURL,
			HTTPClient: &http.Client{Transport: httpClient},
			Timeout:    rc.Timeout,
			Registry:   registry,
			Logger:     logger,
		})
	}
	return nil, fmt.Errorf("unknown routing provider %q", rc.Provider)
}

func resilientClient(cfg *config.Config, name string, registry *resilience.Registry, logger zerolog.Logger) *resilience.Client {
	clientCfg := resilience.DefaultClientConfig(name)
	clientCfg.Timeout = cfg.Routing.Timeout
	clientCfg.MaxRetries = cfg.Resilience.MaxRetries
	clientCfg.InitialInterval = cfg.Resilience.InitialInterval
	clientCfg.MaxInterval = cfg.Resilience.MaxInterval
	clientCfg.CircuitBreaker.Timeout = cfg.Resilience.BreakerTimeout
	clientCfg.Registry = registry
	clientCfg.Logger = logger
	return resilience.NewClient(clientCfg)
}
