// Package metadata records the player address a fronting gateway forwards
// with each request.
package metadata

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type contextKeyForwardedAddress struct{}

// ForwardedAddress stores the first address in X-Forwarded-For, or
// X-Real-IP when that is absent. The connection's own RemoteAddr is never
// used: it belongs to the gateway, not the player.
func ForwardedAddress(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addr := AddressFromRequest(r)
		if addr == "" {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithForwardedAddress(r.Context(), addr)))
	})
}

// GetForwardedAddress returns the forwarded player address, or "".
func GetForwardedAddress(ctx context.Context) string {
	addr, _ := ctx.Value(contextKeyForwardedAddress{}).(string)
	return addr
}

// WithForwardedAddress injects addr for code that runs without the middleware.
func WithForwardedAddress(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, contextKeyForwardedAddress{}, addr)
}

// AddressFromRequest extracts the forwarded address with any port removed.
func AddressFromRequest(r *http.Request) string {
	raw := r.Header.Get("X-Forwarded-For")
	if first, _, found := strings.Cut(raw, ","); found {
		raw = first
	}
	if strings.TrimSpace(raw) == "" {
		raw = r.Header.Get("X-Real-IP")
	}
	return stripPort(strings.TrimSpace(raw))
}

func stripPort(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}
