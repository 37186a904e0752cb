package util

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrMissingSubject = errors.New("token has no subject")

// Claims are the session token claims we read. Subject is the external identity id.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier validates session tokens against one key. A PEM public key selects RSA or
// ECDSA verification; anything else is used as an HMAC secret.
type JWTVerifier struct {
	key     any
	methods []string
	leeway  time.Duration
}

func NewJWTVerifier(keyMaterial string) (*JWTVerifier, error) {
	keyMaterial = strings.TrimSpace(keyMaterial)
	if keyMaterial == "" {
		return nil, errors.New("JWT verification key is empty")
	}
	v := &JWTVerifier{leeway: 5 * time.Second}

	block, _ := pem.Decode([]byte(keyMaterial))
	if block == nil {
		v.key = []byte(keyMaterial)
		v.methods = []string{"HS256", "HS384", "HS512"}
		return v, nil
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	switch k := pub.(type) {
	case *rsa.PublicKey:
		v.key = k
		v.methods = []string{"RS256", "RS384", "RS512"}
	case *ecdsa.PublicKey:
		v.key = k
		v.methods = []string{"ES256", "ES384", "ES512"}
	default:
		return nil, fmt.Errorf("unsupported public key type %T", pub)
	}
	return v, nil
}

// Verify checks signature, algorithm and expiry and returns the claims.
func (v *JWTVerifier) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	},
		jwt.WithValidMethods(v.methods),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to validate token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}
