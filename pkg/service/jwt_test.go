package service

import (
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "parts-tracker/pkg/errors"
)

func TestJWTService_RoundTrip(t *testing.T) {
	svc := NewJWTService("secret", 5*time.Minute)
	token, expires, err := svc.GenerateLinkToken(ScopeFiles)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), expires, 2*time.Second)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, ScopeFiles, claims.Scope)
}

func TestJWTService_Expired(t *testing.T) {
	svc := NewJWTService("secret", time.Minute).(*jwtService)
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Minute) }
	token, _, err := svc.GenerateLinkToken(ScopeFiles)
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, apperrors.ErrTokenExpired)
}

func TestJWTService_WrongSecretOrMethod(t *testing.T) {
	token, _, err := NewJWTService("one", time.Minute).GenerateLinkToken(ScopeFiles)
	require.NoError(t, err)
	_, err = NewJWTService("two", time.Minute).ValidateToken(token)
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &LinkClaims{Scope: ScopeFiles}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = NewJWTService("one", time.Minute).ValidateToken(unsigned)
	assert.Error(t, err)

	_, _, err = NewJWTService("", time.Minute).GenerateLinkToken(ScopeFiles)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}
