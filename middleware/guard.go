// Package middleware adapts the engine's authorization check to net/http.
// The guard reads the Authorization header, calls Engine.Authorize with the
// request's path and method, and injects the verified claims into the
// request context. It makes no authorization decisions of its own.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	authcore "github.com/ecomshop/authcore"
	"github.com/ecomshop/authcore/token"
)

type accessClaimsContextKey struct{}

// ClaimsFromContext returns the access claims the guard stored on the
// request context.
func ClaimsFromContext(ctx context.Context) (*token.AccessClaims, bool) {
	claims, ok := ctx.Value(accessClaimsContextKey{}).(*token.AccessClaims)
	return claims, ok
}

// Guard returns middleware enforcing bearer authentication and role
// permissions for every wrapped route.
//
// A missing or invalid token answers 401. A verified identity whose role
// lacks the route's permission answers 403, never 401: the caller is known,
// just not allowed.
func Guard(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			bearer, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, authcore.ErrMissingAccessToken.Error(), http.StatusUnauthorized)
				return
			}

			ctx := authcore.WithClientIP(r.Context(), clientIP(r))
			ctx = authcore.WithUserAgent(ctx, r.UserAgent())

			claims, err := engine.Authorize(ctx, bearer, r.URL.Path, r.Method)
			if err != nil {
				if errors.Is(err, authcore.ErrPermissionDenied) {
					http.Error(w, err.Error(), http.StatusForbidden)
					return
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx = context.WithValue(ctx, accessClaimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	tok := value[len(bearer):]
	if tok == "" {
		return "", false
	}

	return tok, true
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if i := strings.IndexByte(forwarded, ','); i >= 0 {
			return strings.TrimSpace(forwarded[:i])
		}
		return strings.TrimSpace(forwarded)
	}

	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		return host[:i]
	}
	return host
}
