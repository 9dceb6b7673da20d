package auth

import "time"

// TokenResponse is what a token mint hands back to a caller.
type TokenResponse struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Service provides the token operations used by the API and the tools.
type Service struct {
	jwtService *JWTService
}

// NewService creates a new auth service.
func NewService(jwtService *JWTService) *Service {
	return &Service{jwtService: jwtService}
}

// IssueToken mints an access token for owner.
func (s *Service) IssueToken(owner string) (*TokenResponse, error) {
	token, expiresAt, err := s.jwtService.GenerateAccessToken(owner)
	if err != nil {
		return nil, err
	}
	return &TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
	}, nil
}

// ValidateAccessToken validates an access token and returns its owner.
func (s *Service) ValidateAccessToken(tokenString string) (string, error) {
	claims, err := s.jwtService.ValidateAccessToken(tokenString)
	if err != nil {
		return "", err
	}
	return claims.Owner, nil
}
