package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/onkernel/imgport/lib/logger"
	"github.com/onkernel/imgport/lib/oapi"
)

type contextKey string

const subjectKey contextKey = "subject"

// VerifyJWT requires an HMAC (HS256, HS384 or HS512) bearer token signed
// with secret. An empty
// secret disables the check.
func VerifyJWT(secret string) func(http.Handler) http.Handler {
	if secret == "" {
		return func(next http.Handler) http.Handler { return next }
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{
		jwt.SigningMethodHS256.Alg(),
		jwt.SigningMethodHS384.Alg(),
		jwt.SigningMethodHS512.Alg(),
	}))
	keyFunc := func(*jwt.Token) (any, error) { return []byte(secret), nil }

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := logger.FromContext(r.Context())

			token, err := bearerToken(r.Header.Get("Authorization"))
			if err != nil {
				log.WarnContext(r.Context(), "rejected request", "reason", err)
				oapi.WriteError(w, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}

			claims := jwt.RegisteredClaims{}
			if _, err := parser.ParseWithClaims(token, &claims, keyFunc); err != nil {
				log.WarnContext(r.Context(), "invalid token", "error", err)
				oapi.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), subjectKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from "Bearer <token>"
func bearerToken(header string) (string, error) {
	if header == "" {
		return "", fmt.Errorf("authorization header required")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", fmt.Errorf("invalid authorization header format")
	}
	return token, nil
}

// SubjectFromContext returns the verified token subject, if any.
func SubjectFromContext(ctx context.Context) string {
	if sub, ok := ctx.Value(subjectKey).(string); ok {
		return sub
	}
	return ""
}
