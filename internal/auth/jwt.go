// Package auth issues and validates the bearer tokens that guard the
// session API.
//
// Tokens are HS256 JWTs carrying the owner ID in the "uid" claim and as the
// subject. Sessions are scoped to that owner: a token for one owner never
// sees another owner's sessions.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultAccessTokenExpiry is used when JWTConfig.Expiry is zero.
const DefaultAccessTokenExpiry = time.Hour

var (
	ErrInvalidAccessToken = errors.New("invalid access token")
	ErrAccessTokenExpired = errors.New("access token has expired")
	ErrMissingSubject     = errors.New("subject is required")
)

// JWTClaims are the claims of an access token.
type JWTClaims struct {
	jwt.RegisteredClaims
	Owner string `json:"uid"`
}

// JWTConfig configures a JWTService.
type JWTConfig struct {
	SigningKey string
	Issuer     string
	Audience   string
	Expiry     time.Duration

	// Now overrides the clock for both issuing and validating.
	Now func() time.Time
}

// JWTService signs and checks access tokens with a shared HMAC key.
type JWTService struct {
	key    []byte
	cfg    JWTConfig
	parser *jwt.Parser
}

// NewJWTService creates a JWTService. The issuer and audience of validated
// tokens must match cfg exactly.
func NewJWTService(cfg JWTConfig) *JWTService {
	if cfg.Expiry <= 0 {
		cfg.Expiry = DefaultAccessTokenExpiry
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &JWTService{
		key: []byte(cfg.SigningKey),
		cfg: cfg,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithAudience(cfg.Audience),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(cfg.Now),
		),
	}
}

// GenerateAccessToken signs a token for owner and returns it with its
// expiry.
func (s *JWTService) GenerateAccessToken(owner string) (string, time.Time, error) {
	if owner == "" {
		return "", time.Time{}, ErrMissingSubject
	}

	now := s.cfg.Now()
	expiresAt := now.Add(s.cfg.Expiry)
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.cfg.Issuer,
			Subject:   owner,
			Audience:  jwt.ClaimStrings{s.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Owner: owner,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing access token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateAccessToken checks signature, issuer, audience and expiry. Expired
// tokens report ErrAccessTokenExpired; every other failure wraps
// ErrInvalidAccessToken.
func (s *JWTService) ValidateAccessToken(token string) (*JWTClaims, error) {
	var claims JWTClaims
	_, err := s.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrAccessTokenExpired
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccessToken, err)
	case claims.Owner == "" || claims.Owner != claims.Subject:
		return nil, ErrInvalidAccessToken
	}
	return &claims, nil
}
