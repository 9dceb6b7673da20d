package routing

import (
	"context"
	"errors"
	"net/http"

	"github.com/breatheroute/navcore/internal/route"
)

// Failure status codes reported through Callback.Failure.
const (
	// StatusNoRoute is the provider specific "no route found" code. It is
	// distinct from every transport failure.
	StatusNoRoute = 442

	StatusInvalidRequest = http.StatusBadRequest
	StatusRateLimited    = http.StatusTooManyRequests
	StatusCancelled      = 499
	StatusInternal       = http.StatusInternalServerError
	StatusUnavailable    = http.StatusServiceUnavailable
)

// Callback receives the outcome of an asynchronous fetch. Exactly one of
// its methods is called, once.
type Callback interface {
	Success(r *route.Route)
	Failure(statusCode int)
}

// CallbackFuncs adapts a pair of functions to Callback.
type CallbackFuncs struct {
	OnSuccess func(r *route.Route)
	OnFailure func(statusCode int)
}

func (c CallbackFuncs) Success(r *route.Route) {
	if c.OnSuccess != nil {
		c.OnSuccess(r)
	}
}

func (c CallbackFuncs) Failure(statusCode int) {
	if c.OnFailure != nil {
		c.OnFailure(statusCode)
	}
}

// StatusCode maps a fetch error to the status code reported to callbacks.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusCancelled
	case errors.Is(err, ErrNoRouteFound):
		return StatusNoRoute
	case errors.Is(err, ErrRateLimitExceeded):
		return StatusRateLimited
	case errors.Is(err, ErrInvalidCoordinates), errors.Is(err, ErrInvalidRequest):
		return StatusInvalidRequest
	}

	var rerr *Error
	if errors.As(err, &rerr) && rerr.StatusCode >= 400 {
		return rerr.StatusCode
	}
	if errors.Is(err, ErrProviderUnavailable) {
		return StatusUnavailable
	}
	return StatusInternal
}
