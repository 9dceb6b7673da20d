// Package googlemaps provides a routing provider backed by the Google
// Directions API.
package googlemaps

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"googlemaps.github.io/maps"

	"github.com/breatheroute/navcore/internal/provider/resilience"
	"github.com/breatheroute/navcore/internal/route"
	"github.com/breatheroute/navcore/internal/routing"
	"github.com/breatheroute/navcore/pkg/polyline"
)

const (
	// ProviderName identifies this routing provider.
	ProviderName = "googlemaps"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second
)

// ClientConfig holds configuration for the Google Directions client.
type ClientConfig struct {
	// APIKey is the Google Maps Platform key (required).
	APIKey string

	// BaseURL overrides the API host (optional, for tests and proxies).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, requests go through a resilient transport.
	HTTPClient *http.Client

	// Timeout is the request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is a Google Directions API client.
type Client struct {
	maps   *maps.Client
	logger zerolog.Logger
}

var _ routing.Provider = (*Client)(nil)

// NewClient creates a new Google Directions client.
func NewClient(cfg ClientConfig) (*Client, error) {
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
		httpClient = &http.Client{Transport: resilience.NewClient(clientCfg)}
	}

	opts := []maps.ClientOption{
		maps.WithAPIKey(cfg.APIKey),
		maps.WithHTTPClient(httpClient),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, maps.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")))
	}

	mc, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating google maps client: %w", err)
	}

	return &Client{maps: mc, logger: cfg.Logger}, nil
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// SupportedCostings returns the costings that have a Google travel mode.
func (c *Client) SupportedCostings() []routing.Costing {
	return []routing.Costing{
		routing.CostingAuto,
		routing.CostingPedestrian,
		routing.CostingBicycle,
		routing.CostingMultimodal,
	}
}

func travelMode(c routing.Costing) maps.Mode {
	switch c {
	case routing.CostingPedestrian:
		return maps.TravelModeWalking
	case routing.CostingBicycle:
		return maps.TravelModeBicycling
	case routing.CostingMultimodal:
		return maps.TravelModeTransit
	}
	return maps.TravelModeDriving
}

func latLng(l routing.Location) string {
	return fmt.Sprintf("%f,%f", l.Lat, l.Lon)
}

// Route retrieves a route through the request locations. Intermediate
// locations are passed as via points so the answer is a single leg.
func (c *Client) Route(ctx context.Context, req routing.Request) (*route.Document, error) {
	if err := req.Validate(); err != nil {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "INVALID_REQUEST",
			Message:  "invalid routing request",
			Err:      err,
		}
	}

	dr := &maps.DirectionsRequest{
		Origin:      latLng(req.Origin()),
		Destination: latLng(req.Destination()),
		Mode:        travelMode(req.Costing),
		Language:    req.Language,
		Units:       maps.UnitsMetric,
	}
	if req.Units == route.Miles {
		dr.Units = maps.UnitsImperial
	}
	for _, via := range req.Locations[1 : len(req.Locations)-1] {
		dr.Waypoints = append(dr.Waypoints, "via:"+latLng(via))
	}

	c.logger.Debug().
		Str("mode", string(dr.Mode)).
		Str("origin", dr.Origin).
		Str("destination", dr.Destination).
		Int("waypoints", len(dr.Waypoints)).
		Msg("requesting directions from google")

	routes, _, err := c.maps.Directions(ctx, dr)
	if err != nil {
		return nil, classifyError(ctx, err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return routing.NoRouteDocument("google returned no routes"), nil
	}

	doc, err := toDocument(req, &routes[0])
	if err != nil {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "BAD_GEOMETRY",
			Message:  "routing provider returned an undecodable geometry",
			Err:      err,
		}
	}
	return doc, nil
}

// classifyError maps a Directions error to a domain error. The SDK only
// exposes the API status inside the error text.
func classifyError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &routing.Error{Provider: ProviderName, Code: "CANCELLED", Message: "routing request cancelled", Err: ctxErr}
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return &routing.Error{Provider: ProviderName, Code: "CIRCUIT_OPEN", Message: "routing provider circuit is open", Err: routing.ErrProviderUnavailable}
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "NOT_FOUND"), strings.Contains(msg, "ZERO_RESULTS"):
		return &routing.Error{Provider: ProviderName, Code: "NO_ROUTE", Message: msg, Err: routing.ErrNoRouteFound}
	case strings.Contains(msg, "OVER_QUERY_LIMIT"), strings.Contains(msg, "OVER_DAILY_LIMIT"):
		return &routing.Error{Provider: ProviderName, Code: "RATE_LIMIT", Message: msg, StatusCode: http.StatusTooManyRequests, Err: routing.ErrRateLimitExceeded}
	case strings.Contains(msg, "INVALID_REQUEST"), strings.Contains(msg, "MAX_WAYPOINTS_EXCEEDED"), strings.Contains(msg, "MAX_ROUTE_LENGTH_EXCEEDED"):
		return &routing.Error{Provider: ProviderName, Code: "BAD_REQUEST", Message: msg, Err: routing.ErrInvalidRequest}
	case strings.Contains(msg, "REQUEST_DENIED"):
		return &routing.Error{Provider: ProviderName, Code: "FORBIDDEN", Message: "API access denied - check API key configuration", Err: routing.ErrProviderUnavailable}
	}
	return &routing.Error{Provider: ProviderName, Code: "REQUEST_FAILED", Message: "failed to reach routing provider", Err: routing.ErrProviderUnavailable}
}

// toDocument concatenates the step polylines of the route into one shape and
// turns every step into a maneuver, followed by a destination maneuver.
func toDocument(req routing.Request, r *maps.Route) (*route.Document, error) {
	b := routing.NewDocumentBuilder(req)

	first := true
	for _, leg := range r.Legs {
		for _, step := range leg.Steps {
			path, err := step.Polyline.Decode()
			if err != nil {
				return nil, fmt.Errorf("decoding step polyline: %w", err)
			}
			points := make([]polyline.Coordinate, 0, len(path))
			for _, p := range path {
				points = append(points, polyline.Coordinate{Lat: p.Lat, Lon: p.Lng})
			}

			begin := b.PointCount() - 1
			if begin < 0 {
				begin = 0
			}
			end := b.AddPoints(points)

			text := plainText(step.HTMLInstructions)
			main, _, _ := strings.Cut(step.HTMLInstructions, "<div")
			turn := turnType(plainText(main))
			if first {
				turn = route.TurnStart
				first = false
			}
			b.AddStep(routing.Step{
				Turn:        turn,
				Instruction: text,
				StreetNames: streetNames(step.HTMLInstructions),
				Meters:      float64(step.Distance.Meters),
				Seconds:     step.Duration.Seconds(),
				Begin:       begin,
				End:         end,
			})
		}
	}
	if b.PointCount() == 0 {
		return routing.NoRouteDocument("google returned an empty route"), nil
	}

	last := b.PointCount() - 1
	b.AddStep(routing.Step{
		Turn:        route.TurnDestination,
		Instruction: route.ArrivalName,
		Begin:       last,
		End:         last,
	})

	return b.Document(), nil
}

var (
	tagPattern    = regexp.MustCompile(`<[^>]*>`)
	streetPattern = regexp.MustCompile(`(?:onto|on|toward) <b>([^<]+)</b>`)
)

// plainText strips the markup from a Google instruction. Trailing <div>
// notes such as "Destination will be on the left" become separate words.
func plainText(s string) string {
	s = strings.ReplaceAll(s, "<div", " <div")
	return strings.Join(strings.Fields(html.UnescapeString(tagPattern.ReplaceAllString(s, ""))), " ")
}

// streetNames returns the street the step continues on, if the instruction names one.
func streetNames(instruction string) []string {
	m := streetPattern.FindStringSubmatch(instruction)
	if m == nil {
		return nil
	}
	return []string{html.UnescapeString(m[1])}
}

// turnType classifies a Google instruction. The order matters: more
// specific phrases are matched first.
func turnType(text string) route.TurnType {
	t := strings.ToLower(text)
	right := strings.Contains(t, "right")
	left := strings.Contains(t, "left")

	side := func(r, l, straight route.TurnType) route.TurnType {
		switch {
		case right:
			return r
		case left:
			return l
		}
		return straight
	}

	switch {
	case strings.Contains(t, "u-turn"):
		return side(route.TurnUTurnRight, route.TurnUTurnLeft, route.TurnUTurnLeft)
	case strings.Contains(t, "exit the roundabout"), strings.Contains(t, "exit the traffic circle"):
		return route.TurnRoundaboutExit
	case strings.Contains(t, "roundabout"), strings.Contains(t, "traffic circle"):
		return route.TurnRoundaboutEnter
	case strings.Contains(t, "ferry"):
		return route.TurnFerryEnter
	case strings.Contains(t, "merge"):
		return route.TurnMerge
	case strings.Contains(t, "ramp"):
		return side(route.TurnRampRight, route.TurnRampLeft, route.TurnRampStraight)
	case strings.Contains(t, "take exit"), strings.Contains(t, "take the exit"):
		return side(route.TurnExitRight, route.TurnExitLeft, route.TurnExitRight)
	case strings.Contains(t, "keep"):
		return side(route.TurnStayRight, route.TurnStayLeft, route.TurnStayStraight)
	case strings.Contains(t, "slight"):
		return side(route.TurnSlightRight, route.TurnSlightLeft, route.TurnContinue)
	case strings.Contains(t, "sharp"):
		return side(route.TurnSharpRight, route.TurnSharpLeft, route.TurnContinue)
	case strings.HasPrefix(t, "turn"):
		return side(route.TurnRight, route.TurnLeft, route.TurnContinue)
	case strings.HasPrefix(t, "head"):
		return route.TurnStart
	}
	return route.TurnContinue
}
