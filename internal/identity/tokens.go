// Package identity issues and verifies the short-lived bearer tokens
// that authenticate API callers, and carries the authenticated actor
// on the request context.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/appovenbackend/ticketing/internal/apperrors"
	"github.com/appovenbackend/ticketing/internal/cache"
	"github.com/appovenbackend/ticketing/internal/core"
)

const tokenTypeAccess = "access"

type accessClaims struct {
	Role string `json:"role"`
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// TokenService issues HS256 access tokens and checks them against a
// cache-backed revocation set. Cache-backed revocation gives
// constant-time logout without server-side session state.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	cache  cache.Cache
	now    func() time.Time
}

func NewTokenService(secret string, ttl time.Duration, c cache.Cache) *TokenService {
	if ttl <= 0 {
		ttl = 120 * time.Minute
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, cache: c, now: time.Now}
}

// Issue signs a fresh access token for the user.
func (s *TokenService) Issue(userID string, role core.Role) (string, error) {
	now := s.now()
	claims := accessClaims{
		Role: string(role),
		Type: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify checks signature, expiry, token type, and the revocation set,
// and returns the embedded identity.
func (s *TokenService) Verify(ctx context.Context, token string) (Actor, error) {
	var claims accessClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Actor{}, apperrors.TokenExpired()
		}
		return Actor{}, apperrors.TokenMalformed().WithCause(err)
	}
	if claims.Type != tokenTypeAccess {
		return Actor{}, apperrors.TokenWrongType()
	}

	revoked, err := s.isRevoked(ctx, token)
	if err != nil {
		// Cache is advisory; a cache fault must not lock everyone out.
		slog.Warn("revocation check unavailable", "error", err)
	} else if revoked {
		return Actor{}, apperrors.TokenRevoked()
	}

	return Actor{UserID: claims.Subject, Role: core.Role(claims.Role)}, nil
}

// Revoke invalidates a token for its remaining lifetime. Revoking an
// expired, malformed, or already-revoked token is a no-op.
func (s *TokenService) Revoke(ctx context.Context, token string) error {
	var claims accessClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil
	}

	remaining := claims.ExpiresAt.Time.Sub(s.now())
	if remaining <= 0 {
		return nil
	}
	return s.cache.Set(ctx, cache.RevokedKey(hashToken(token)), []byte("1"), remaining)
}

func (s *TokenService) isRevoked(ctx context.Context, token string) (bool, error) {
	_, err := s.cache.Get(ctx, cache.RevokedKey(hashToken(token)))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, cache.ErrMiss) {
		return false, nil
	}
	return false, err
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
