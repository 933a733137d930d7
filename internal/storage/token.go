package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DownloadClaims are the claims of a short-lived attachment download token.
// Clients present the token to the file endpoint instead of their session,
// so attachment URLs can be handed to download managers safely.
type DownloadClaims struct {
	jwt.RegisteredClaims
}

// TokenSigner issues and verifies HS256 download tokens for attachments.
type TokenSigner struct {
	key []byte
	ttl time.Duration
}

// NewTokenSigner constructs a TokenSigner. ttl bounds how long a handed-out
// download link stays valid.
func NewTokenSigner(key []byte, ttl time.Duration) *TokenSigner {
	return &TokenSigner{key: key, ttl: ttl}
}

// Sign issues a token scoped to one attachment blob key.
func (s *TokenSigner) Sign(blobKey string) (string, error) {
	now := time.Now()
	claims := DownloadClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   blobKey,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// Verify checks the token and returns the blob key it is scoped to.
func (s *TokenSigner) Verify(token string) (string, error) {
	var claims DownloadClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.key, nil
	})
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("invalid download token: %w", err)
	}
	if claims.Subject == "" {
		return "", errors.New("download token without subject")
	}
	return claims.Subject, nil
}
