package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/learnledger/editor-api/internal/models"
	"github.com/learnledger/editor-api/pkg/config"
	appErrors "github.com/learnledger/editor-api/pkg/errors"
)

// TokenService validates access tokens issued by the identity service. This
// API never issues tokens itself; it only verifies the shared-secret HMAC.
type TokenService struct {
	secret []byte
}

// NewTokenService constructs the service.
func NewTokenService(cfg config.JWTConfig) *TokenService {
	return &TokenService{secret: []byte(cfg.Secret)}
}

// ValidateToken parses and validates an access token returning the claims.
func (s *TokenService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	if claims.Account == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token missing account claim")
	}
	return claims, nil
}

// IssueToken signs a token for the account. Used by tests and local tooling.
func (s *TokenService) IssueToken(account, displayName string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := &models.JWTClaims{
		Account:     account,
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}
