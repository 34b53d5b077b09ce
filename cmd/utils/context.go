package utils

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

type contextKey string

const PartyIDKey contextKey = "partyID"

var ErrNoParty = errors.New("party ID not found in context")

func GetPartyIDFromContext(ctx context.Context) (string, error) {
	partyID, ok := ctx.Value(PartyIDKey).(string)
	if !ok || partyID == "" {
		return "", ErrNoParty
	}
	return partyID, nil
}

// PartyMiddleware authenticates the caller from a bearer token and stores
// the token subject as the party id. Browsers cannot set headers on a
// websocket handshake, so the token is also accepted as ?token=.
// With an empty secret the middleware is a pass-through.
func PartyMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if tokenString == "" {
				tokenString = r.URL.Query().Get("token")
			}
			if tokenString == "" {
				WriteMessage(w, http.StatusUnauthorized, "Authorization required")
				return
			}

			claims := &jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, errors.New("unexpected signing method")
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid || claims.Subject == "" {
				WriteMessage(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), PartyIDKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
