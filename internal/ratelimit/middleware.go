package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	loreerr "github.com/hyperjump/lore/pkg/errors"
)

// KeyFunc derives the client key a request is counted against.
type KeyFunc func(r *http.Request) string

// ClientIP keys requests by remote address without the port. It expects
// chi's middleware.RealIP to have run when behind a proxy.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware limits requests per key and sets X-RateLimit-* headers.
// Denied requests get 429 with Retry-After.
func Middleware(backend Backend, keyFn KeyFunc, logger *zap.Logger) func(http.Handler) http.Handler {
	if keyFn == nil {
		keyFn = ClientIP
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := backend.Allow(r.Context(), keyFn(r))
			if err != nil {
				logger.Warn("rate limit check failed, allowing request", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if !d.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(d.RetryAfter.Seconds())))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error": "rate limit exceeded",
					"code":  string(loreerr.CodeRateLimitExceeded),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
