package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/navcore/internal/auth"
)

func testConfig() auth.JWTConfig {
	return auth.JWTConfig{
		SigningKey: "test-secret-key-for-testing-only",
		Issuer:     "https://nav.example.com",
		Audience:   "navcore-api",
	}
}

func TestJWTService_GenerateAndValidateAccessToken(t *testing.T) {
	svc := auth.NewJWTService(testConfig())

	token, expiresAt, err := svc.GenerateAccessToken("usr_test123")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "usr_test123", claims.Owner)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, "usr_test123", claims.Subject)
	assert.Equal(t, "https://nav.example.com", claims.Issuer)
}

func TestJWTService_MissingSubject(t *testing.T) {
	svc := auth.NewJWTService(testConfig())
	_, _, err := svc.GenerateAccessToken("")
	assert.ErrorIs(t, err, auth.ErrMissingSubject)
}

func TestJWTService_InvalidToken(t *testing.T) {
	svc := auth.NewJWTService(testConfig())

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"malformed token", "not.a.valid.jwt"},
		{"invalid base64", "xxx.yyy.zzz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateAccessToken(tt.token)
			assert.ErrorIs(t, err, auth.ErrInvalidAccessToken)
		})
	}
}

func TestJWTService_Expired(t *testing.T) {
	issued := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	cfg := testConfig()
	cfg.Expiry = 10 * time.Minute
	cfg.Now = func() time.Time { return issued }
	token, expiresAt, err := auth.NewJWTService(cfg).GenerateAccessToken("usr_test123")
	require.NoError(t, err)
	assert.Equal(t, issued.Add(10*time.Minute), expiresAt)

	cfg.Now = func() time.Time { return issued.Add(time.Hour) }
	_, err = auth.NewJWTService(cfg).ValidateAccessToken(token)
	assert.ErrorIs(t, err, auth.ErrAccessTokenExpired)
}

func TestJWTService_Mismatch(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*auth.JWTConfig)
	}{
		{"signing key", func(c *auth.JWTConfig) { c.SigningKey = "key-two" }},
		{"issuer", func(c *auth.JWTConfig) { c.Issuer = "issuer-two" }},
		{"audience", func(c *auth.JWTConfig) { c.Audience = "audience-two" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, _, err := auth.NewJWTService(testConfig()).GenerateAccessToken("usr_test123")
			require.NoError(t, err)

			cfg := testConfig()
			tt.mutate(&cfg)
			_, err = auth.NewJWTService(cfg).ValidateAccessToken(token)
			assert.ErrorIs(t, err, auth.ErrInvalidAccessToken)
		})
	}
}

func TestService_IssueAndValidate(t *testing.T) {
	svc := auth.NewService(auth.NewJWTService(testConfig()))

	resp, err := svc.IssueToken("alice")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)

	userID, err := svc.ValidateAccessToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", userID)
}

func TestJWTService_RejectsOtherAlgorithms(t *testing.T) {
	cfg := testConfig()
	now := time.Now()
	claims := auth.JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   "alice",
			Audience:  jwt.ClaimStrings{cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Owner: "alice",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(cfg.SigningKey))
	require.NoError(t, err)

	_, err = auth.NewJWTService(cfg).ValidateAccessToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidAccessToken)
}

func TestJWTService_OwnerMustMatchSubject(t *testing.T) {
	cfg := testConfig()
	claims := auth.JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   "alice",
			Audience:  jwt.ClaimStrings{cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Owner: "mallory",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.SigningKey))
	require.NoError(t, err)

	_, err = auth.NewJWTService(cfg).ValidateAccessToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidAccessToken)
}
