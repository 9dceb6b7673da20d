package models

import (
	"encoding/json"
	"net/http"
)

// Problem is an RFC 7807 error body, sent as application/problem+json.
type Problem struct {
	Type     string       `json:"type"`
	Title    string       `json:"title"`
	Status   int          `json:"status"`
	Detail   string       `json:"detail,omitempty"`
	Instance string       `json:"instance,omitempty"`
	TraceID  string       `json:"traceId"`
	Errors   []FieldError `json:"errors,omitempty"`
}

// FieldError points at one invalid request field, named by its JSON path
// (for example "fixes[2].lat").
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

const problemBase = "https://navcore.dev/problems/"

// Problem types.
const (
	ProblemTypeValidation       = problemBase + "validation-error"
	ProblemTypeUnauthorized     = problemBase + "unauthorized"
	ProblemTypeTLSRequired      = problemBase + "tls-required"
	ProblemTypeNotFound         = problemBase + "not-found"
	ProblemTypeConflict         = problemBase + "conflict"
	ProblemTypeUnsupportedMedia = problemBase + "unsupported-media-type"
	ProblemTypeNoRoute          = problemBase + "no-route"
	ProblemTypeTooManyRequests  = problemBase + "too-many-requests"
	ProblemTypeInternal         = problemBase + "internal-error"
	ProblemTypeBadGateway       = problemBase + "bad-gateway"
	ProblemTypeUnavailable      = problemBase + "service-unavailable"
)

// NewProblem creates a problem without detail.
func NewProblem(problemType, title string, status int, traceID string) *Problem {
	return &Problem{Type: problemType, Title: title, Status: status, TraceID: traceID}
}

func newProblem(problemType, title string, status int, traceID, detail string) *Problem {
	p := NewProblem(problemType, title, status, traceID)
	p.Detail = detail
	return p
}

// Write sends the problem, echoing the trace ID as the request ID header.
func (p *Problem) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	if p.TraceID != "" {
		w.Header().Set("X-Request-Id", p.TraceID)
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// NewBadRequest is a 400 carrying field errors.
func NewBadRequest(traceID, detail string, errors []FieldError) *Problem {
	p := newProblem(ProblemTypeValidation, "Validation error", http.StatusBadRequest, traceID, detail)
	p.Errors = errors
	return p
}

func NewUnauthorized(traceID, detail string) *Problem {
	return newProblem(ProblemTypeUnauthorized, "Unauthorized", http.StatusUnauthorized, traceID, detail)
}

// NewTLSRequired is a 403 for plain HTTP behind a TLS-terminating proxy.
func NewTLSRequired(traceID string) *Problem {
	return newProblem(ProblemTypeTLSRequired, "TLS required", http.StatusForbidden, traceID, "This endpoint requires HTTPS")
}

func NewNotFound(traceID, detail string) *Problem {
	return newProblem(ProblemTypeNotFound, "Not found", http.StatusNotFound, traceID, detail)
}

func NewConflict(traceID, detail string) *Problem {
	return newProblem(ProblemTypeConflict, "Conflict", http.StatusConflict, traceID, detail)
}

// NewUnsupportedMedia is a 415 for request bodies that are not JSON.
func NewUnsupportedMedia(traceID string) *Problem {
	return newProblem(ProblemTypeUnsupportedMedia, "Unsupported media type", http.StatusUnsupportedMediaType, traceID, "Content-Type must be application/json")
}

// NewNoRoute is a 422: the request was valid but the provider found no route
// between its locations.
func NewNoRoute(traceID, detail string) *Problem {
	return newProblem(ProblemTypeNoRoute, "No route", http.StatusUnprocessableEntity, traceID, detail)
}

func NewTooManyRequests(traceID, detail string) *Problem {
	return newProblem(ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests, traceID, detail)
}

func NewInternalError(traceID, detail string) *Problem {
	return newProblem(ProblemTypeInternal, "Internal server error", http.StatusInternalServerError, traceID, detail)
}

// NewBadGateway is a 502 for routing provider failures that are not the
// caller's fault.
func NewBadGateway(traceID, detail string) *Problem {
	return newProblem(ProblemTypeBadGateway, "Bad gateway", http.StatusBadGateway, traceID, detail)
}

func NewServiceUnavailable(traceID, detail string) *Problem {
	return newProblem(ProblemTypeUnavailable, "Service unavailable", http.StatusServiceUnavailable, traceID, detail)
}
