package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/plextask/keygate"
)

// Validator verifies access tokens. *keygate.Engine implements it.
type Validator interface {
	ValidateAccess(accessToken string) (keygate.Principal, error)
}

type principalContextKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p keygate.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (keygate.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(keygate.Principal)
	return p, ok
}

// Guard rejects requests without a valid bearer access token and passes the
// token's principal to next through the request context.
func Guard(v Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := authenticate(v, r)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

func authenticate(v Validator, r *http.Request) (keygate.Principal, bool) {
	if v == nil {
		return keygate.Principal{}, false
	}
	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return keygate.Principal{}, false
	}
	p, err := v.ValidateAccess(token)
	if err != nil {
		return keygate.Principal{}, false
	}
	return p, true
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
