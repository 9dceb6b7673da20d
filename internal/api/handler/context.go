package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/breatheroute/navcore/internal/api/middleware"
)

// owner is the authenticated subject; sessions are scoped to it.
func owner(r *http.Request) string {
	return middleware.GetUserID(r.Context())
}

func sessionID(r *http.Request) string {
	return chi.URLParam(r, "sessionID")
}
