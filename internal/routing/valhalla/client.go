// Package valhalla provides a routing provider backed by a Valhalla routing
// service. Its responses are already in the route document format.
package valhalla

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/navcore/internal/provider/resilience"
	"github.com/breatheroute/navcore/internal/route"
	"github.com/breatheroute/navcore/internal/routing"
)

const (
	// ProviderName identifies this routing provider.
	ProviderName = "valhalla"

	// DefaultBaseURL is the public Valhalla demo server.
	DefaultBaseURL = "https://valhalla1.openstreetmap.de"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second
)

// Valhalla error codes that mean the locations cannot be connected.
const (
	errorCodeNoSuitableEdges = 171
	errorCodeNoPath          = 442
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the Valhalla client.
type ClientConfig struct {
	// BaseURL is the service root; requests go to {BaseURL}/route.
	BaseURL string

	// APIKey is sent as the api_key query parameter when set.
	APIKey string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is a Valhalla route API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

var _ routing.Provider = (*Client)(nil)

// NewClient creates a new Valhalla client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = timeout
		clientCfg.Registry = cfg.Registry
		clientCfg.Logger = cfg.Logger
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// SupportedCostings returns every costing; Valhalla serves them all.
func (c *Client) SupportedCostings() []routing.Costing {
	return []routing.Costing{
		routing.CostingAuto,
		routing.CostingPedestrian,
		routing.CostingBicycle,
		routing.CostingMultimodal,
	}
}

type routeRequest struct {
	Locations         []location        `json:"locations"`
	Costing           routing.Costing   `json:"costing"`
	DirectionsOptions directionsOptions `json:"directions_options"`
}

type location struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Type    string  `json:"type,omitempty"`
	Heading *int    `json:"heading,omitempty"`
	Name    string  `json:"name,omitempty"`
}

type directionsOptions struct {
	Units    route.Units `json:"units"`
	Language string      `json:"language"`
}

type errorResponse struct {
	ErrorCode  int    `json:"error_code"`
	Error      string `json:"error"`
	StatusCode int    `json:"status_code"`
	Status     string `json:"status"`
}

// Route retrieves a route through the request locations.
func (c *Client) Route(ctx context.Context, req routing.Request) (*route.Document, error) {
	if err := req.Validate(); err != nil {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "INVALID_REQUEST",
			Message:  "invalid routing request",
			Err:      err,
		}
	}

	body, err := json.Marshal(newRouteRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := c.baseURL + "/route"
	if c.apiKey != "" {
		endpoint += "?" + url.Values{"api_key": {c.apiKey}}.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	origin, dest := req.Origin(), req.Destination()
	c.logger.Debug().
		Str("costing", string(req.Costing)).
		Float64("origin_lat", origin.Lat).
		Float64("origin_lon", origin.Lon).
		Float64("dest_lat", dest.Lat).
		Float64("dest_lon", dest.Lon).
		Msg("requesting route from valhalla")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &routing.Error{
				Provider: ProviderName,
				Code:     "CANCELLED",
				Message:  "routing request cancelled",
				Err:      ctxErr,
			}
		}
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach routing provider",
			Err:      routing.ErrProviderUnavailable,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, handleErrorResponse(resp.StatusCode, respBody)
	}

	doc, err := route.ParseDocument(respBody)
	if err != nil {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "BAD_RESPONSE",
			Message:  "routing provider returned an unreadable document",
			Err:      err,
		}
	}

	c.logger.Debug().
		Int("status", doc.Status()).
		Msg("received route from valhalla")

	return doc, nil
}

func newRouteRequest(req routing.Request) routeRequest {
	costing := req.Costing
	if costing == "" {
		costing = routing.CostingAuto
	}
	units := req.Units
	if units == "" {
		units = route.Kilometers
	}
	lang := req.Language
	if lang == "" {
		lang = "en-US"
	}

	locations := make([]location, 0, len(req.Locations))
	for i, loc := range req.Locations {
		kind := "through"
		if i == 0 || i == len(req.Locations)-1 {
			kind = "break"
		}
		locations = append(locations, location{
			Lat:     loc.Lat,
			Lon:     loc.Lon,
			Type:    kind,
			Heading: loc.Heading,
			Name:    loc.Name,
		})
	}

	return routeRequest{
		Locations:         locations,
		Costing:           costing,
		DirectionsOptions: directionsOptions{Units: units, Language: lang},
	}
}

// handleErrorResponse maps Valhalla error responses to domain errors.
func handleErrorResponse(statusCode int, body []byte) error {
	var vErr errorResponse
	if err := json.Unmarshal(body, &vErr); err != nil || vErr.ErrorCode == 0 {
		return &routing.Error{
			Provider:   ProviderName,
			Code:       fmt.Sprintf("HTTP_%d", statusCode),
			Message:    fmt.Sprintf("routing provider returned status %d", statusCode),
			StatusCode: statusCode,
			Err:        statusError(statusCode),
		}
	}

	switch vErr.ErrorCode {
	case errorCodeNoPath, errorCodeNoSuitableEdges:
		return &routing.Error{
			Provider:   ProviderName,
			Code:       "NO_ROUTE",
			Message:    vErr.Error,
			StatusCode: statusCode,
			Err:        routing.ErrNoRouteFound,
		}
	}

	return &routing.Error{
		Provider:   ProviderName,
		Code:       fmt.Sprintf("VALHALLA_%d", vErr.ErrorCode),
		Message:    vErr.Error,
		StatusCode: statusCode,
		Err:        statusError(statusCode),
	}
}

func statusError(statusCode int) error {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return routing.ErrRateLimitExceeded
	case statusCode >= 500, statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return routing.ErrProviderUnavailable
	case statusCode >= 400:
		return routing.ErrInvalidRequest
	}
	return routing.ErrProviderUnavailable
}
