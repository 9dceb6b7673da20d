package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/breatheroute/navcore/internal/api/models"
	"github.com/breatheroute/navcore/internal/auth"
)

type userIDKey struct{}

// TokenValidator resolves a bearer token to the owner it was issued to.
// *auth.Service implements it.
type TokenValidator interface {
	ValidateAccessToken(token string) (string, error)
}

// Auth rejects requests without a valid bearer token and stores the token's
// owner in the context. Every session operation is scoped to that owner.
func Auth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, problem := bearerToken(r.Header.Get("Authorization"))
			if problem != "" {
				writeUnauthorized(w, r, problem)
				return
			}

			owner, err := validator.ValidateAccessToken(token)
			switch {
			case errors.Is(err, auth.ErrAccessTokenExpired):
				writeUnauthorized(w, r, "access token has expired")
				return
			case errors.Is(err, auth.ErrInvalidAccessToken):
				writeUnauthorized(w, r, "invalid access token")
				return
			case err != nil:
				writeUnauthorized(w, r, "authentication failed")
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey{}, owner)))
		})
	}
}

// bearerToken extracts the token from an Authorization header value. The
// second result describes what is wrong with the header, if anything.
func bearerToken(header string) (string, string) {
	if header == "" {
		return "", "missing authorization header"
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", "invalid authorization header format"
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", "missing bearer token"
	}
	return token, ""
}

// writeUnauthorized lives here rather than in response, which imports this
// package.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	problem := models.NewUnauthorized(GetRequestID(r.Context()), detail)
	problem.Instance = r.URL.Path
	w.Header().Set("WWW-Authenticate", `Bearer realm="navcore"`)
	problem.Write(w)
}

// GetUserID returns the authenticated owner, or "" outside Auth.
func GetUserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}
