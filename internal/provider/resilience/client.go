package resilience

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned without calling the provider while its breaker
// is open, or half-open with its probe already in flight.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ClientConfig configures a resilient provider client. Zero durations and
// retry counts take the defaults of DefaultClientConfig.
type ClientConfig struct {
	// Name is the provider name, used for the breaker and the registry.
	Name string

	// Timeout bounds each attempt, not the whole retried call.
	Timeout time.Duration

	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// CircuitBreaker overrides DefaultCircuitBreakerConfig(Name).
	CircuitBreaker *CircuitBreakerConfig

	// Registry, when set, receives this client under Name and is told about
	// every call outcome.
	Registry *Registry

	// Logger receives breaker state changes.
	Logger zerolog.Logger
}

// DefaultClientConfig returns the settings used for routing providers.
func DefaultClientConfig(name string) ClientConfig {
	cb := DefaultCircuitBreakerConfig(name)
	return ClientConfig{
		Name:            name,
		Timeout:         10 * time.Second,
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		CircuitBreaker:  &cb,
	}
}

func (c ClientConfig) withDefaults() ClientConfig {
	d := DefaultClientConfig(c.Name)
	if c.Timeout == 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.InitialInterval == 0 {
		c.InitialInterval = d.InitialInterval
	}
	if c.MaxInterval == 0 {
		c.MaxInterval = d.MaxInterval
	}
	if c.CircuitBreaker == nil {
		c.CircuitBreaker = d.CircuitBreaker
	}
	return c
}

// Client sends provider requests through a circuit breaker and retries
// network errors and 5xx responses with exponential backoff. Responses below
// 500 are returned as they are; interpreting them is the provider's job.
type Client struct {
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
	cfg     ClientConfig
}

// NewClient creates a client and registers it when cfg.Registry is set.
func NewClient(cfg ClientConfig) *Client {
	cfg = cfg.withDefaults()

	cb := *cfg.CircuitBreaker
	if cb.OnStateChange == nil {
		logger := cfg.Logger
		cb.OnStateChange = func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		}
	}

	c := &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: NewCircuitBreaker[*http.Response](cb), //nolint:bodyclose // type parameter
		cfg:     cfg,
	}
	if cfg.Registry != nil {
		cfg.Registry.Register(cfg.Name, c)
	}
	return c
}

// Do sends req with the context it carries.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.DoWithContext(req.Context(), req)
}

// RoundTrip makes the client usable as the Transport of SDKs that only take
// an *http.Client.
func (c *Client) RoundTrip(req *http.Request) (*http.Response, error) {
	return c.DoWithContext(req.Context(), req)
}

// DoWithContext sends req under ctx. When every attempt ends in a 5xx, the
// last 5xx response is returned with a nil error so the caller can read the
// provider's error body.
func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialInterval
	bo.MaxInterval = c.cfg.MaxInterval
	bo.MaxElapsedTime = 0

	var last *http.Response
	keep := func(resp *http.Response) {
		if last != nil && last != resp {
			last.Body.Close()
		}
		last = resp
	}

	attempt := func() error {
		resp, err := c.breaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // returned to the caller
			return c.send(ctx, req)
		})
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return backoff.Permanent(ErrCircuitOpen)
		case resp != nil:
			keep(resp)
		}
		return err
	}

	err := backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(bo, c.cfg.MaxRetries), ctx))
	if err != nil {
		c.recordFailure(err)
		if last != nil {
			return last, nil
		}
		return nil, err
	}
	c.recordSuccess()
	return last, nil
}

// send makes one attempt. A 5xx comes back with both the response and a
// ServerError so the breaker counts it and the retry loop retries it.
func (c *Client) send(ctx context.Context, req *http.Request) (*http.Response, error) {
	attempt := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		attempt.Body = body
	}
	resp, err := c.http.Do(attempt)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return resp, &ServerError{StatusCode: resp.StatusCode}
	}
	return resp, nil
}

func (c *Client) recordSuccess() {
	if c.cfg.Registry != nil {
		c.cfg.Registry.RecordSuccess(c.cfg.Name)
	}
}

func (c *Client) recordFailure(err error) {
	if c.cfg.Registry != nil && !errors.Is(err, context.Canceled) {
		c.cfg.Registry.RecordFailure(c.cfg.Name, err)
	}
}

// ServerError is a 5xx answer from a provider.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return "server error: " + http.StatusText(e.StatusCode)
}

// Name returns the provider name.
func (c *Client) Name() string {
	return c.cfg.Name
}

// CircuitBreakerState returns the breaker state.
func (c *Client) CircuitBreakerState() gobreaker.State {
	return c.breaker.State()
}

// CircuitBreakerCounts returns the breaker counts of the current generation.
func (c *Client) CircuitBreakerCounts() gobreaker.Counts {
	return c.breaker.Counts()
}
