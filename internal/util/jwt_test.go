package util

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func validClaims(sub string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
}

func pemPublicKey(t *testing.T, pub any) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func TestJWTVerifier_HMAC(t *testing.T) {
	v, err := NewJWTVerifier("s3cret")
	require.NoError(t, err)

	claims, err := v.Verify(sign(t, jwt.SigningMethodHS256, []byte("s3cret"), validClaims("user_1")))
	require.NoError(t, err)
	assert.Equal(t, "user_1", claims.Subject)

	_, err = v.Verify(sign(t, jwt.SigningMethodHS256, []byte("other"), validClaims("user_1")))
	assert.Error(t, err)
}

func TestJWTVerifier_RSA(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	v, err := NewJWTVerifier(pemPublicKey(t, &priv.PublicKey))
	require.NoError(t, err)

	claims, err := v.Verify(sign(t, jwt.SigningMethodRS256, priv, validClaims("user_2")))
	require.NoError(t, err)
	assert.Equal(t, "user_2", claims.Subject)

	// An HMAC token must not be accepted against an RSA key.
	_, err = v.Verify(sign(t, jwt.SigningMethodHS256, []byte("x"), validClaims("user_2")))
	assert.Error(t, err)
}

func TestJWTVerifier_ECDSA(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	v, err := NewJWTVerifier(pemPublicKey(t, &priv.PublicKey))
	require.NoError(t, err)

	claims, err := v.Verify(sign(t, jwt.SigningMethodES256, priv, validClaims("user_3")))
	require.NoError(t, err)
	assert.Equal(t, "user_3", claims.Subject)
}

func TestJWTVerifier_Rejects(t *testing.T) {
	v, err := NewJWTVerifier("s3cret")
	require.NoError(t, err)

	expired := jwt.RegisteredClaims{Subject: "u", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))}
	_, err = v.Verify(sign(t, jwt.SigningMethodHS256, []byte("s3cret"), expired))
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	noExp := jwt.RegisteredClaims{Subject: "u"}
	_, err = v.Verify(sign(t, jwt.SigningMethodHS256, []byte("s3cret"), noExp))
	assert.Error(t, err)

	_, err = v.Verify(sign(t, jwt.SigningMethodHS256, []byte("s3cret"), validClaims("")))
	assert.ErrorIs(t, err, ErrMissingSubject)

	_, err = v.Verify("not-a-token")
	assert.Error(t, err)
}

func TestNewJWTVerifier_Empty(t *testing.T) {
	_, err := NewJWTVerifier("  ")
	assert.Error(t, err)
}
