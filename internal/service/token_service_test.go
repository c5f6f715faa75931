package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnledger/editor-api/pkg/config"
	appErrors "github.com/learnledger/editor-api/pkg/errors"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewTokenService(config.JWTConfig{Secret: "test-secret"})

	token, err := svc.IssueToken("0xabc", "Ada", time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", claims.Account)
	assert.Equal(t, "Ada", claims.DisplayName)
}

func TestTokenRejectsWrongSecret(t *testing.T) {
	issuer := NewTokenService(config.JWTConfig{Secret: "secret-a"})
	verifier := NewTokenService(config.JWTConfig{Secret: "secret-b"})

	token, err := issuer.IssueToken("0xabc", "Ada", time.Hour)
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestTokenRejectsExpired(t *testing.T) {
	svc := NewTokenService(config.JWTConfig{Secret: "test-secret"})

	token, err := svc.IssueToken("0xabc", "Ada", -time.Minute)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestTokenRejectsGarbage(t *testing.T) {
	svc := NewTokenService(config.JWTConfig{Secret: "test-secret"})
	_, err := svc.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
