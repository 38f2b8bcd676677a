// Package requesttime pins one "now" per request so the expiry checks and
// audit entries of a single command agree with each other.
package requesttime

import (
	"net/http"
	"time"

	"banguard/pkg/requestcontext"
)

// Middleware stamps each request with the wall clock.
func Middleware(next http.Handler) http.Handler {
	return WithClock(time.Now)(next)
}

// WithClock stamps each request with clock(), truncated to the millisecond
// precision ban records are stored with.
func WithClock(clock func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := clock().Truncate(time.Millisecond)
			next.ServeHTTP(w, r.WithContext(requestcontext.WithTime(r.Context(), now)))
		})
	}
}
