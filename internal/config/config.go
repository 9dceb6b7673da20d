// Package config loads the navd configuration from a YAML file with
// environment overrides for deploy-time values.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Routing providers.
const (
	ProviderValhalla         = "valhalla"
	ProviderOpenRouteService = "openrouteservice"
	ProviderGoogleMaps       = "googlemaps"
)

// DevSigningKey is used for tokens in development when no key is configured.
const DevSigningKey = "local-dev-signing-key-change-in-production"

// Config is the complete navd configuration.
type Config struct {
	Environment string           `yaml:"environment" validate:"required"`
	Server      ServerConfig     `yaml:"server"`
	Routing     RoutingConfig    `yaml:"routing"`
	Resilience  ResilienceConfig `yaml:"resilience"`
	Sessions    SessionsConfig   `yaml:"sessions"`
	Engine      EngineConfig     `yaml:"engine"`
	Auth        AuthConfig       `yaml:"auth"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	PubSub      PubSubConfig     `yaml:"pubsub"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port            int           `yaml:"port" validate:"gt=0,lt=65536"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"gt=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
	RequireTLS      bool          `yaml:"require_tls"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return ":" + strconv.Itoa(s.Port)
}

// RoutingConfig selects the route provider and tunes the document cache.
type RoutingConfig struct {
	Provider         string                 `yaml:"provider" validate:"oneof=valhalla openrouteservice googlemaps"`
	Timeout          time.Duration          `yaml:"timeout" validate:"gt=0"`
	CacheTTL         time.Duration          `yaml:"cache_ttl"`
	StaleIfErrorTTL  time.Duration          `yaml:"stale_if_error_ttl" validate:"gte=0"`
	Valhalla         ValhallaConfig         `yaml:"valhalla"`
	OpenRouteService OpenRouteServiceConfig `yaml:"openrouteservice"`
	GoogleMaps       GoogleMapsConfig       `yaml:"googlemaps"`
}

// ValhallaConfig points at a Valhalla instance.
type ValhallaConfig struct {
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
	APIKey  string `yaml:"api_key"`
}

// OpenRouteServiceConfig holds openrouteservice credentials.
type OpenRouteServiceConfig struct {
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
	APIKey  string `yaml:"api_key"`
}

// GoogleMapsConfig holds Google Directions credentials.
type GoogleMapsConfig struct {
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
	APIKey  string `yaml:"api_key"`
}

// ResilienceConfig tunes retries and the circuit breaker of provider calls.
type ResilienceConfig struct {
	MaxRetries      uint64        `yaml:"max_retries" validate:"lte=10"`
	InitialInterval time.Duration `yaml:"initial_interval" validate:"gt=0"`
	MaxInterval     time.Duration `yaml:"max_interval" validate:"gtefield=InitialInterval"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout" validate:"gt=0"`
}

// SessionsConfig bounds the in-memory session store.
type SessionsConfig struct {
	IdleTTL         time.Duration `yaml:"idle_ttl" validate:"gt=0"`
	JanitorInterval time.Duration `yaml:"janitor_interval" validate:"gt=0"`
	Reroute         bool          `yaml:"reroute"`
	RerouteCooldown time.Duration `yaml:"reroute_cooldown" validate:"gte=0"`
	RerouteTimeout  time.Duration `yaml:"reroute_timeout" validate:"gt=0"`
	MaxPerOwner     int           `yaml:"max_per_owner" validate:"gte=0"`
}

// EngineConfig holds the navigation radii in meters.
type EngineConfig struct {
	ApproachRadius    float64 `yaml:"approach_radius" validate:"gt=0"`
	AlertRadius       float64 `yaml:"alert_radius" validate:"gt=0"`
	DestinationRadius float64 `yaml:"destination_radius" validate:"gt=0"`
}

// AuthConfig configures access tokens.
type AuthConfig struct {
	SigningKey string        `yaml:"signing_key" validate:"required,min=16"`
	Issuer     string        `yaml:"issuer"`
	Audience   string        `yaml:"audience"`
	TokenTTL   time.Duration `yaml:"token_ttl" validate:"gt=0"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" validate:"required_if=Enabled true"`
	SampleRatio  float64 `yaml:"sample_ratio" validate:"gte=0,lte=1"`
}

// PubSubConfig enables the streaming fix subscriber.
type PubSubConfig struct {
	Enabled        bool   `yaml:"enabled"`
	ProjectID      string `yaml:"project_id" validate:"required_if=Enabled true"`
	Subscription   string `yaml:"subscription" validate:"required_if=Enabled true"`
	MaxOutstanding int    `yaml:"max_outstanding" validate:"gte=0"`
}

// Default returns the configuration used for anything a file or the
// environment leaves out.
func Default() Config {
	return Config{
		Environment: "development",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Routing: RoutingConfig{
			Provider:        ProviderValhalla,
			Timeout:         10 * time.Second,
			CacheTTL:        5 * time.Minute,
			StaleIfErrorTTL: 15 * time.Minute,
		},
		Resilience: ResilienceConfig{
			MaxRetries:      3,
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     5 * time.Second,
			BreakerTimeout:  60 * time.Second,
		},
		Sessions: SessionsConfig{
			IdleTTL:         30 * time.Minute,
			JanitorInterval: time.Minute,
			Reroute:         true,
			RerouteCooldown: 10 * time.Second,
			RerouteTimeout:  15 * time.Second,
			MaxPerOwner:     5,
		},
		Engine: EngineConfig{
			ApproachRadius:    50,
			AlertRadius:       100,
			DestinationRadius: 30,
		},
		Auth: AuthConfig{
			Issuer:   "navcore",
			Audience: "navcore-api",
			TokenTTL: time.Hour,
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "localhost:4317",
			SampleRatio:  1,
		},
		PubSub: PubSubConfig{
			MaxOutstanding: 100,
		},
	}
}

// Load reads path (when non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return nil, err
	}

	if cfg.Auth.SigningKey == "" && cfg.IsDevelopment() {
		cfg.Auth.SigningKey = DevSigningKey
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsDevelopment reports whether the service runs in the development environment.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Validate checks field constraints and the credentials of the selected provider.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	switch c.Routing.Provider {
	case ProviderOpenRouteService:
		if c.Routing.OpenRouteService.APIKey == "" {
			return errors.New("invalid config: routing.openrouteservice.api_key is required")
		}
	case ProviderGoogleMaps:
		if c.Routing.GoogleMaps.APIKey == "" {
			return errors.New("invalid config: routing.googlemaps.api_key is required")
		}
	}
	return nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", key, err)
		}
		*dst = b
		return nil
	}

	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing PORT: %w", err)
		}
		cfg.Server.Port = port
	}

	str("NAVCORE_ENV", &cfg.Environment)
	str("NAVCORE_ROUTING_PROVIDER", &cfg.Routing.Provider)
	str("NAVCORE_VALHALLA_URL", &cfg.Routing.Valhalla.BaseURL)
	str("NAVCORE_VALHALLA_API_KEY", &cfg.Routing.Valhalla.APIKey)
	str("NAVCORE_ORS_URL", &cfg.Routing.OpenRouteService.BaseURL)
	str("NAVCORE_ORS_API_KEY", &cfg.Routing.OpenRouteService.APIKey)
	str("NAVCORE_GOOGLE_MAPS_API_KEY", &cfg.Routing.GoogleMaps.APIKey)
	str("NAVCORE_JWT_SIGNING_KEY", &cfg.Auth.SigningKey)
	str("NAVCORE_JWT_ISSUER", &cfg.Auth.Issuer)
	str("NAVCORE_OTLP_ENDPOINT", &cfg.Telemetry.OTLPEndpoint)
	str("NAVCORE_PUBSUB_PROJECT", &cfg.PubSub.ProjectID)
	str("NAVCORE_PUBSUB_SUBSCRIPTION", &cfg.PubSub.Subscription)

	for key, dst := range map[string]*bool{
		"NAVCORE_TELEMETRY_ENABLED": &cfg.Telemetry.Enabled,
		"NAVCORE_PUBSUB_ENABLED":    &cfg.PubSub.Enabled,
		"NAVCORE_REQUIRE_TLS":       &cfg.Server.RequireTLS,
	} {
		if err := boolean(key, dst); err != nil {
			return err
		}
	}
	return nil
}
