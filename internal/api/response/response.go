// Package response writes JSON bodies and RFC 7807 problems for the API
// handlers. Every response echoes the request ID.
package response

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/breatheroute/navcore/internal/api/middleware"
	"github.com/breatheroute/navcore/internal/api/models"
)

// JSON writes data as a JSON body. A nil data writes no body.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	write(w, r, status, "application/json", data)
}

// Created writes a 201 with a Location header pointing at the new resource.
func Created(w http.ResponseWriter, r *http.Request, location string, data any) {
	if location != "" {
		w.Header().Set("Location", location)
	}
	JSON(w, r, http.StatusCreated, data)
}

// NoContent writes a 204.
func NoContent(w http.ResponseWriter, r *http.Request) {
	write(w, r, http.StatusNoContent, "", nil)
}

// BadRequest writes a 400 validation problem with per-field errors.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errors []models.FieldError) {
	send(w, r, models.NewBadRequest(requestID(r), detail, errors))
}

// NotFound writes a 404. Sessions of other owners are reported this way too.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	send(w, r, models.NewNotFound(requestID(r), detail))
}

// Conflict writes a 409, used for out-of-order fixes.
func Conflict(w http.ResponseWriter, r *http.Request, detail string) {
	send(w, r, models.NewConflict(requestID(r), detail))
}

// NoRoute writes a 422 for locations the provider could not connect.
func NoRoute(w http.ResponseWriter, r *http.Request, detail string) {
	send(w, r, models.NewNoRoute(requestID(r), detail))
}

// TooManyRequests writes a 429. A positive retryAfter, in seconds, is sent
// as Retry-After.
func TooManyRequests(w http.ResponseWriter, r *http.Request, detail string, retryAfter int) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}
	send(w, r, models.NewTooManyRequests(requestID(r), detail))
}

// InternalError writes a 500.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	send(w, r, models.NewInternalError(requestID(r), detail))
}

// BadGateway writes a 502 for routing provider failures.
func BadGateway(w http.ResponseWriter, r *http.Request, detail string) {
	send(w, r, models.NewBadGateway(requestID(r), detail))
}

// ServiceUnavailable writes a 503.
func ServiceUnavailable(w http.ResponseWriter, r *http.Request, detail string) {
	send(w, r, models.NewServiceUnavailable(requestID(r), detail))
}

func send(w http.ResponseWriter, r *http.Request, p *models.Problem) {
	p.Instance = r.URL.Path
	p.Write(w)
}

func write(w http.ResponseWriter, r *http.Request, status int, contentType string, data any) {
	if id := requestID(r); id != "" {
		w.Header().Set(middleware.RequestIDHeader, id)
	}
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func requestID(r *http.Request) string {
	return middleware.GetRequestID(r.Context())
}
