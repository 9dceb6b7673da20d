// Package main provides the entrypoint for the navd navigation server.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/navcore/internal/api"
	"github.com/breatheroute/navcore/internal/api/middleware"
	"github.com/breatheroute/navcore/internal/auth"
	"github.com/breatheroute/navcore/internal/config"
	"github.com/breatheroute/navcore/internal/engine"
	"github.com/breatheroute/navcore/internal/provider/resilience"
	"github.com/breatheroute/navcore/internal/routing"
	"github.com/breatheroute/navcore/internal/session"
	"github.com/breatheroute/navcore/internal/telemetry"
	"github.com/breatheroute/navcore/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "navd"

func main() {
	configPath := flag.String("config", os.Getenv("NAVCORE_CONFIG"), "path to the YAML config file")
	flag.Parse()

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	if err := run(*configPath, log); err != nil {
		log.Fatal().Err(err).Msg("navd stopped with error")
	}
	log.Info().Msg("navd stopped")
}

func run(configPath string, log zerolog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log.Info().
		Str("build_time", BuildTime).
		Str("environment", cfg.Environment).
		Str("provider", cfg.Routing.Provider).
		Msg("starting navd")
	if cfg.Auth.SigningKey == config.DevSigningKey {
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return err
	}
	log.Info().Bool("exporting", tp.Exporting()).Str("endpoint", cfg.Telemetry.OTLPEndpoint).Msg("telemetry initialized")
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		return err
	}
	providerMetrics, err := telemetry.NewProviderMetrics()
	if err != nil {
		return err
	}
	navMetrics, err := telemetry.NewNavigationMetrics()
	if err != nil {
		return err
	}

	// Routing
	registry := resilience.NewRegistry()
	provider, err := newProvider(cfg, registry, log)
	if err != nil {
		return err
	}
	routes := routing.NewService(routing.ServiceConfig{
		Provider:        provider,
		Logger:          log,
		Metrics:         providerMetrics,
		CacheTTL:        cfg.Routing.CacheTTL,
		StaleIfErrorTTL: cfg.Routing.StaleIfErrorTTL,
	})
	log.Info().Str("provider", provider.Name()).Msg("routing service initialized")

	// Sessions
	engineCfg := engine.DefaultConfig()
	engineCfg.ApproachRadius = cfg.Engine.ApproachRadius
	engineCfg.AlertRadius = cfg.Engine.AlertRadius
	engineCfg.DestinationRadius = cfg.Engine.DestinationRadius

	sessions := session.NewService(session.Config{
		Fetcher:         routes,
		Engine:          engineCfg,
		IdleTTL:         cfg.Sessions.IdleTTL,
		Reroute:         cfg.Sessions.Reroute,
		RerouteCooldown: cfg.Sessions.RerouteCooldown,
		RerouteTimeout:  cfg.Sessions.RerouteTimeout,
		MaxPerOwner:     cfg.Sessions.MaxPerOwner,
		Metrics:         navMetrics,
		Logger:          log,
	})
	defer func() {
		sessions.Close()
		routes.Wait()
	}()

	authService := auth.NewService(auth.NewJWTService(auth.JWTConfig{
		SigningKey: cfg.Auth.SigningKey,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
		Expiry:     cfg.Auth.TokenTTL,
	}))

	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		Logger:      log,
		Metrics:     httpMetrics,
		AuthService: authService,
		Sessions:    sessions,
		Registry:    registry,
		RequireTLS:  cfg.Server.RequireTLS,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Background jobs share ctx and stop with the server.
	var wg sync.WaitGroup
	janitor := worker.NewJanitor(worker.JanitorConfig{Interval: cfg.Sessions.JanitorInterval}, sessions, log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		janitor.Run(ctx)
	}()

	if cfg.PubSub.Enabled {
		subCfg := worker.DefaultSubscriberConfig(cfg.PubSub.ProjectID, cfg.PubSub.Subscription)
		subCfg.MaxOutstanding = cfg.PubSub.MaxOutstanding
		subscriber, err := worker.NewFixSubscriber(ctx, subCfg, sessions, log)
		if err != nil {
			return err
		}
		defer subscriber.Close()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := subscriber.Start(ctx); err != nil {
				log.Error().Err(err).Msg("fix subscriber stopped")
			}
		}()
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		stop()
		wg.Wait()
		return err
	}

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	err = server.Shutdown(shutdownCtx)
	wg.Wait()
	return err
}
