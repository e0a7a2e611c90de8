package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	signer := NewJWTSigner("secret", "test-issuer")

	token, expiresAt, err := signer.Sign(42, "admin", 15*time.Minute)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, 2*time.Second)

	claims, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "42", claims.Subject)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, expiresAt.Unix(), claims.ExpiresAt.Unix())
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	signer := NewJWTSigner("secret", "test-issuer").WithClock(func() time.Time { return past })
	token, _, err := signer.Sign(1, "user", time.Minute)
	require.NoError(t, err)

	_, err = NewJWTSigner("secret", "test-issuer").Verify(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestVerifyRejectsWrongSecretAndIssuer(t *testing.T) {
	token, _, err := NewJWTSigner("secret", "test-issuer").Sign(1, "user", time.Minute)
	require.NoError(t, err)

	_, err = NewJWTSigner("other", "test-issuer").Verify(token)
	assert.Error(t, err)

	_, err = NewJWTSigner("secret", "someone-else").Verify(token)
	assert.Error(t, err)
}

func TestVerifyRejectsNoneAlgorithm(t *testing.T) {
	claims := Claims{UserID: 1, Role: "admin", RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    "test-issuer",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewJWTSigner("secret", "test-issuer").Verify(token)
	assert.Error(t, err)
}
