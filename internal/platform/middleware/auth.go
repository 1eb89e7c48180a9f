package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"cardledger/pkg/requestcontext"
)

// WalletClaims represents the claims expected from the session token validator.
type WalletClaims struct {
	Address string
}

// SessionValidator validates wallet session tokens.
type SessionValidator interface {
	ValidateToken(tokenString string) (*WalletClaims, error)
}

// RequireWallet authenticates the caller's wallet session and places the
// wallet address in the request context. Handlers behind it can assume
// requestcontext.Caller is non-empty.
func RequireWallet(validator SessionValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				unauthorized(w, "Missing bearer token")
				return
			}
			claims, err := validator.ValidateToken(token)
			if err != nil || claims.Address == "" {
				logger.WarnContext(r.Context(), "unauthorized access - invalid session token",
					"error", err,
					"request_id", requestcontext.RequestID(r.Context()),
				)
				unauthorized(w, "Invalid or expired token")
				return
			}
			ctx := requestcontext.WithCaller(r.Context(), claims.Address)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
