// internal/auth/token.go
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier checks externally issued identity tokens. The platform gateway
// signs a JWT whose "sub" claim is the player uid; this service only
// verifies, it never issues.
type Verifier interface {
	// Verify returns the subject uid of a valid token, or an error.
	Verify(token string) (string, error)
}

// ErrNoKey is returned by a verifier configured without a key; every hello
// then degrades to an unverified profile.
var ErrNoKey = errors.New("no verification key configured")

// JWTVerifier validates HMAC-signed identity tokens.
type JWTVerifier struct {
	key []byte
}

func NewJWTVerifier(key string) *JWTVerifier {
	if key == "" {
		return &JWTVerifier{}
	}
	return &JWTVerifier{key: []byte(key)}
}

// Verify parses the token, enforces the HMAC signing method, and returns the
// "sub" claim.
func (v *JWTVerifier) Verify(tokenString string) (string, error) {
	if len(v.key) == 0 {
		return "", ErrNoKey
	}
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.key, nil
	})
	if err != nil {
		return "", fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid jwt claims")
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("missing sub in jwt")
	}
	return sub, nil
}
