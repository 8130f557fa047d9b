// Package middleware carries the cross-cutting HTTP concerns: bearer
// authentication, per-caller rate limiting, and request logging.
package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/appovenbackend/ticketing/internal/apperrors"
	"github.com/appovenbackend/ticketing/internal/identity"
)

// Auth authenticates the request and puts the actor on the context.
// Requests without a token pass through unauthenticated; handlers that
// need an actor reject them via identity.RequireActor.
func Auth(tokens *identity.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			actor, err := tokens.Verify(r.Context(), token)
			if err != nil {
				writeErr(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(identity.WithActor(r.Context(), actor)))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// RawToken returns the bearer token as presented, for logout.
func RawToken(r *http.Request) string { return bearerToken(r) }

func writeErr(w http.ResponseWriter, err error) {
	ae := apperrors.As(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ae.HTTPStatus())
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   ae,
	})
}
