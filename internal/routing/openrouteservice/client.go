// Package openrouteservice provides a routing provider backed by the
// OpenRouteService directions API.
package openrouteservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"github.com/breatheroute/navcore/internal/provider/resilience"
	"github.com/breatheroute/navcore/internal/route"
	"github.com/breatheroute/navcore/internal/routing"
	"github.com/breatheroute/navcore/pkg/polyline"
)

const (
	// ProviderName identifies this routing provider.
	ProviderName = "openrouteservice"

	// DefaultBaseURL is the OpenRouteService API base URL.
	DefaultBaseURL = "https://api.openrouteservice.org"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the OpenRouteService client.
type ClientConfig struct {
	// APIKey is the ORS API key (required).
	APIKey string

	// BaseURL is the API base URL (optional, defaults to ORS API).
	BaseURL string

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

// Client is an OpenRouteService API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

var _ routing.Provider = (*Client)(nil)

// NewClient creates a new OpenRouteService client.
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

// SupportedCostings returns the costings that have an ORS profile.
func (c *Client) SupportedCostings() []routing.Costing {
	return []routing.Costing{
		routing.CostingAuto,
		routing.CostingPedestrian,
		routing.CostingBicycle,
	}
}

// profile maps a costing to the ORS profile name.
func profile(c routing.Costing) (string, bool) {
	switch c {
	case routing.CostingAuto:
		return "driving-car", true
	case routing.CostingPedestrian:
		return "foot-walking", true
	case routing.CostingBicycle:
		return "cycling-regular", true
	}
	return "", false
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
	prof, ok := profile(req.Costing)
	if req.Costing == "" {
		prof, ok = profile(routing.CostingAuto)
	}
	if !ok {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "UNSUPPORTED_COSTING",
			Message:  fmt.Sprintf("costing %q has no openrouteservice profile", req.Costing),
			Err:      routing.ErrInvalidRequest,
		}
	}

	orsReq := orsRequest{
		Instructions: true,
		Geometry:     true,
		Units:        "m",
		Language:     languageCode(req.Language),
	}
	hasBearing := false
	for _, loc := range req.Locations {
		// ORS uses [lon, lat] order (GeoJSON)
		orsReq.Coordinates = append(orsReq.Coordinates, []float64{loc.Lon, loc.Lat})
		if loc.Heading != nil {
			hasBearing = true
		}
	}
	if hasBearing {
		for _, loc := range req.Locations {
			if loc.Heading == nil {
				orsReq.Bearings = append(orsReq.Bearings, []int{})
				continue
			}
			orsReq.Bearings = append(orsReq.Bearings, []int{*loc.Heading, 45})
		}
	}

	body, err := json.Marshal(orsReq)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/v2/directions/%s", c.baseURL, prof)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", c.apiKey)
	httpReq.Header.Set("Accept", "application/json, application/geo+json")

	origin, dest := req.Origin(), req.Destination()
	c.logger.Debug().
		Str("profile", prof).
		Float64("origin_lat", origin.Lat).
		Float64("origin_lon", origin.Lon).
		Float64("dest_lat", dest.Lat).
		Float64("dest_lon", dest.Lon).
		Msg("requesting directions from ORS")

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
		return nil, c.handleErrorResponse(resp.StatusCode, respBody)
	}

	var orsResp orsResponse
	if err := json.Unmarshal(respBody, &orsResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if len(orsResp.Routes) == 0 {
		return routing.NoRouteDocument("openrouteservice returned no routes"), nil
	}

	doc, err := toDocument(req, &orsResp.Routes[0])
	if err != nil {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "BAD_GEOMETRY",
			Message:  "routing provider returned an undecodable geometry",
			Err:      err,
		}
	}

	c.logger.Debug().
		Float64("distance_m", orsResp.Routes[0].Summary.Distance).
		Int("maneuvers", len(doc.Trip.Legs[0].Maneuvers)).
		Msg("received directions from ORS")

	return doc, nil
}

// handleErrorResponse maps ORS error responses to domain errors.
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	var orsErr orsErrorResponse
	if err := json.Unmarshal(body, &orsErr); err != nil {
		// Fall back to generic error if we can't parse
		return &routing.Error{
			Provider:   ProviderName,
			Code:       fmt.Sprintf("HTTP_%d", statusCode),
			Message:    fmt.Sprintf("routing provider returned status %d", statusCode),
			StatusCode: statusCode,
			Err:        routing.ErrProviderUnavailable,
		}
	}

	switch statusCode {
	case http.StatusTooManyRequests:
		return &routing.Error{
			Provider:   ProviderName,
			Code:       "RATE_LIMIT",
			Message:    "API rate limit exceeded, please try again later",
			StatusCode: statusCode,
			Err:        routing.ErrRateLimitExceeded,
		}
	case http.StatusForbidden:
		return &routing.Error{
			Provider:   ProviderName,
			Code:       "FORBIDDEN",
			Message:    "API access denied - check API key configuration",
			StatusCode: statusCode,
			Err:        routing.ErrProviderUnavailable,
		}
	case http.StatusNotFound:
		return &routing.Error{
			Provider:   ProviderName,
			Code:       "NO_ROUTE",
			Message:    "no route found between the given points",
			StatusCode: statusCode,
			Err:        routing.ErrNoRouteFound,
		}
	case http.StatusBadRequest:
		// Check for specific ORS error codes
		if orsErr.Error.Code == orsErrorCodeNotFound || orsErr.Error.Code == orsErrorCodePointNotFound {
			return &routing.Error{
				Provider:   ProviderName,
				Code:       "NO_ROUTE",
				Message:    orsErr.Error.Message,
				StatusCode: statusCode,
				Err:        routing.ErrNoRouteFound,
			}
		}
		return &routing.Error{
			Provider:   ProviderName,
			Code:       "BAD_REQUEST",
			Message:    orsErr.Error.Message,
			StatusCode: statusCode,
			Err:        routing.ErrInvalidCoordinates,
		}
	default:
		if statusCode >= 500 {
			return &routing.Error{
				Provider:   ProviderName,
				Code:       fmt.Sprintf("SERVER_%d", statusCode),
				Message:    "routing provider is temporarily unavailable",
				StatusCode: statusCode,
				Err:        routing.ErrProviderUnavailable,
			}
		}
		return &routing.Error{
			Provider:   ProviderName,
			Code:       fmt.Sprintf("HTTP_%d", statusCode),
			Message:    orsErr.Error.Message,
			StatusCode: statusCode,
			Err:        routing.ErrProviderUnavailable,
		}
	}
}

// toDocument converts the first ORS route to a route document. The encoded
// geometry is at 1e5 precision; step way points index into it directly.
func toDocument(req routing.Request, r *orsRoute) (*route.Document, error) {
	points, err := polyline.Decode(r.Geometry, polyline.Precision5)
	if err != nil {
		return nil, fmt.Errorf("decoding geometry: %w", err)
	}

	b := routing.NewDocumentBuilder(req)
	b.SetPoints(points)

	for i := range r.Segments {
		segment := &r.Segments[i]
		last := i == len(r.Segments)-1
		for j := range segment.Steps {
			step := &segment.Steps[j]
			// only the final goal is a destination; intermediate goals are via points
			if step.Type == stepGoal && !last {
				continue
			}
			begin, end := 0, 0
			if len(step.WayPoints) >= 2 {
				begin, end = step.WayPoints[0], step.WayPoints[1]
			}
			b.AddStep(routing.Step{
				Turn:        turnType(step.Type),
				Instruction: step.Instruction,
				StreetNames: streetNames(step.Name),
				Meters:      step.Distance,
				Seconds:     step.Duration,
				Begin:       begin,
				End:         end,
			})
		}
	}
	b.SetTotals(r.Summary.Distance, r.Summary.Duration)

	return b.Document(), nil
}

// turnType maps an ORS instruction type to the Valhalla maneuver type.
func turnType(orsType int) route.TurnType {
	switch orsType {
	case stepLeft:
		return route.TurnLeft
	case stepRight:
		return route.TurnRight
	case stepSharpLeft:
		return route.TurnSharpLeft
	case stepSharpRight:
		return route.TurnSharpRight
	case stepSlightLeft:
		return route.TurnSlightLeft
	case stepSlightRight:
		return route.TurnSlightRight
	case stepStraight:
		return route.TurnContinue
	case stepEnterRoundabout:
		return route.TurnRoundaboutEnter
	case stepExitRoundabout:
		return route.TurnRoundaboutExit
	case stepUTurn:
		return route.TurnUTurnLeft
	case stepGoal:
		return route.TurnDestination
	case stepDepart:
		return route.TurnStart
	case stepKeepLeft:
		return route.TurnStayLeft
	case stepKeepRight:
		return route.TurnStayRight
	}
	return route.TurnUnknown
}

// streetNames drops the placeholder ORS uses for unnamed ways.
func streetNames(name string) []string {
	if name == "" || name == "-" {
		return nil
	}
	return []string{name}
}

// languageCode reduces a BCP 47 tag to the base language ORS accepts.
func languageCode(tag string) string {
	if tag == "" {
		return "en"
	}
	t, err := language.Parse(tag)
	if err != nil {
		return "en"
	}
	base, _ := t.Base()
	return base.String()
}
