package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/smartpigdefi/smartpig/common"
	"github.com/smartpigdefi/smartpig/model"
)

type contextKey string

const (
	AccountKeyKey contextKey = "accountKey"
	ContractIDKey contextKey = "contractID"
)

// TokenVerifier checks an access token against the live session.
type TokenVerifier interface {
	VerifyAccessToken(token string) (*model.AppClaims, error)
}

func AuthMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				err := common.NewAppError(http.StatusUnauthorized, "Authorization header is required", nil)
				err.Send(w)
				return
			}

			headerParts := strings.Split(authHeader, " ")
			if len(headerParts) != 2 || strings.ToLower(headerParts[0]) != "bearer" {
				err := common.NewAppError(http.StatusUnauthorized, "Invalid authorization header format", nil)
				err.Send(w)
				return
			}

			claims, err := verifier.VerifyAccessToken(headerParts[1])
			if err != nil {
				appErr := common.NewAppError(http.StatusUnauthorized, "Invalid or expired token", err)
				appErr.Send(w)
				return
			}

			ctx := context.WithValue(r.Context(), AccountKeyKey, claims.AccountKey)
			ctx = context.WithValue(ctx, ContractIDKey, claims.ContractID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func accountKeyFrom(r *http.Request) string {
	key, _ := r.Context().Value(AccountKeyKey).(string)
	return key
}
