// Package routing fetches route documents from an external routing provider
// and hands them to the navigation core.
package routing

import (
	"context"
	"errors"
	"fmt"

	"github.com/breatheroute/navcore/internal/route"
)

// Sentinel errors for routing operations.
var (
	// ErrProviderUnavailable indicates the routing provider is down or the circuit breaker is open.
	ErrProviderUnavailable = errors.New("routing provider unavailable")
	// ErrNoRouteFound indicates no valid route exists between the given points.
	ErrNoRouteFound = errors.New("no route found between the given points")
	// ErrRateLimitExceeded indicates the API quota has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrInvalidCoordinates indicates the provided coordinates are invalid or out of range.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	// ErrInvalidRequest indicates a request the provider cannot serve as given.
	ErrInvalidRequest = errors.New("invalid routing request")
)

// Provider defines the interface for routing providers.
type Provider interface {
	// Route computes a route through the request locations. The returned
	// document is Valhalla shaped; providers with other wire formats convert.
	Route(ctx context.Context, req Request) (*route.Document, error)
	// Name returns the provider identifier for logging and metrics.
	Name() string
	// SupportedCostings returns the costing models this provider can serve.
	SupportedCostings() []Costing
}

// Costing is the travel mode a route is computed for.
type Costing string

const (
	CostingAuto       Costing = "auto"
	CostingPedestrian Costing = "pedestrian"
	CostingBicycle    Costing = "bicycle"
	CostingMultimodal Costing = "multimodal"
)

// ParseCosting validates a costing name. The empty string is CostingAuto.
func ParseCosting(s string) (Costing, error) {
	switch c := Costing(s); c {
	case "":
		return CostingAuto, nil
	case CostingAuto, CostingPedestrian, CostingBicycle, CostingMultimodal:
		return c, nil
	}
	return "", fmt.Errorf("%w: unknown costing %q", ErrInvalidRequest, s)
}

// Location is one point a route is requested through.
type Location struct {
	Lat float64
	Lon float64
	// Heading is the direction of travel at the location in degrees, if known.
	Heading *int
	Name    string
}

// Request is a route computation request.
type Request struct {
	Locations []Location
	Costing   Costing
	Units     route.Units
	Language  string
}

// Origin returns the first location.
func (r Request) Origin() Location { return r.Locations[0] }

// Destination returns the last location.
func (r Request) Destination() Location { return r.Locations[len(r.Locations)-1] }

// Validate checks the request has at least two locations with coordinates in range.
func (r Request) Validate() error {
	if len(r.Locations) < 2 {
		return fmt.Errorf("%w: at least two locations are required", ErrInvalidRequest)
	}
	for i, loc := range r.Locations {
		if err := validateCoordinates(loc); err != nil {
			return fmt.Errorf("%w: location %d: %v", ErrInvalidCoordinates, i, err)
		}
	}
	if _, err := ParseCosting(string(r.Costing)); err != nil {
		return err
	}
	return nil
}

// withDefaults fills the costing, units and language when unset.
func (r Request) withDefaults() Request {
	if r.Costing == "" {
		r.Costing = CostingAuto
	}
	if r.Units == "" {
		r.Units = route.Kilometers
	}
	if r.Language == "" {
		r.Language = "en-US"
	}
	return r
}

// Error provides detailed error information from the routing provider.
type Error struct {
	Provider   string // Provider that generated the error
	Code       string // Error code from the provider
	Message    string // Human-readable error message
	StatusCode int    // HTTP status of the provider response, zero when none
	Err        error  // Underlying error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is transient and the request can be retried.
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrProviderUnavailable) || errors.Is(e.Err, ErrRateLimitExceeded)
}

// validateCoordinates checks if coordinates are within valid ranges.
func validateCoordinates(l Location) error {
	if l.Lat < -90 || l.Lat > 90 {
		return fmt.Errorf("latitude %f out of range [-90, 90]", l.Lat)
	}
	if l.Lon < -180 || l.Lon > 180 {
		return fmt.Errorf("longitude %f out of range [-180, 180]", l.Lon)
	}
	return nil
}
