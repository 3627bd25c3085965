package auth

import (
	"time"

	"github.com/madina-market/madina_pay/internal/config"
	"github.com/madina-market/madina_pay/internal/identity"
)

// Service issues access tokens for authenticated users.
type Service struct {
	cfg config.Config
}

// NewService builds an auth service.
func NewService(cfg config.Config) *Service {
	return &Service{cfg: cfg}
}

// Token carries an issued access token.
type Token struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Issue signs an access token for the user.
func (s *Service) Issue(user identity.User) (Token, error) {
	now := time.Now()
	exp := now.Add(s.cfg.AccessTokenTTL)
	claims := map[string]any{
		"sub":         user.ID,
		"role":        user.Role,
		"readable_id": user.ReadableID,
		"iat":         now.Unix(),
		"exp":         exp.Unix(),
	}
	signed, err := SignHS256(claims, []byte(s.cfg.JWTSecret))
	if err != nil {
		return Token{}, err
	}
	return Token{AccessToken: signed, ExpiresIn: int64(s.cfg.AccessTokenTTL.Seconds())}, nil
}
