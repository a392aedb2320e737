package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret []byte, claims Claims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	require.NoError(t, err)
	return signed
}

func TestJWTVerifier_Verify(t *testing.T) {
	ctx := context.Background()
	secret := []byte("test-secret")
	verifier := NewJWTVerifier(secret)

	t.Run("valid token", func(t *testing.T) {
		token := signToken(t, secret, Claims{
			UserID: "alice",
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		})

		userID, err := verifier.Verify(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "alice", userID)
	})

	t.Run("expired token", func(t *testing.T) {
		token := signToken(t, secret, Claims{
			UserID: "alice",
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			},
		})

		_, err := verifier.Verify(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token := signToken(t, []byte("other-secret"), Claims{UserID: "alice"})

		_, err := verifier.Verify(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing user_id claim", func(t *testing.T) {
		token := signToken(t, secret, Claims{})

		_, err := verifier.Verify(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong signing algorithm", func(t *testing.T) {
		// alg=none отклоняется до проверки подписи
		token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "alice"})
		signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = verifier.Verify(ctx, signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := verifier.Verify(ctx, "not.a.jwt")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
