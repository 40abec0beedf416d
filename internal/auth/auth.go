// Package auth verifies bearer credentials for inbound API requests.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a credential fails verification.
var ErrInvalidToken = errors.New("invalid token")

// Verifier exchanges a bearer credential for a verified subject identity.
type Verifier interface {
	// Verify returns the opaque subject of a valid token, or fails.
	Verify(token string) (string, error)
}

// hmacVerifier validates HS256-signed JWTs against a shared secret.
type hmacVerifier struct {
	secret []byte
}

// NewHMAC creates a Verifier for HS256 JWTs signed with secret.
func NewHMAC(secret string) Verifier {
	return &hmacVerifier{secret: []byte(secret)}
}

func (v *hmacVerifier) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", ErrInvalidToken
	}

	return subject, nil
}
