package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/authshield"
)

// TokenVerifier is implemented by *authshield.Engine.
type TokenVerifier interface {
	VerifyAccessToken(ctx context.Context, sealedAccess string) (*authshield.AccessClaims, error)
}

type claimsContextKey struct{}

// ClaimsFromContext returns the claims stored by RequireAccessToken.
func ClaimsFromContext(ctx context.Context) (*authshield.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*authshield.AccessClaims)
	return claims, ok
}

// RequireAccessToken rejects requests without a valid sealed access token.
// Store outages answer 503 so clients retry instead of re-authenticating.
func RequireAccessToken(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.VerifyAccessToken(r.Context(), token)
			if err != nil {
				if errors.Is(err, authshield.ErrStoreUnavailable) {
					http.Error(w, authshield.PublicMessage(err), http.StatusServiceUnavailable)
					return
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientInfo attaches the caller's IP and user agent to the request context.
// X-Forwarded-For (first hop) and X-Real-IP are trusted when present.
func ClientInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := authshield.WithClientIP(r.Context(), clientIP(r))
		if ua := r.UserAgent(); ua != "" {
			ctx = authshield.WithUserAgent(ctx, ua)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	if rip := strings.TrimSpace(r.Header.Get("X-Real-IP")); rip != "" {
		return rip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
