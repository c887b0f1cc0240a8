package middleware

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/dphaener/ddmark/internal/web/ratelimit"
	"github.com/dphaener/ddmark/internal/web/response"
)

// KeyFunc identifies the client a request is counted against
type KeyFunc func(r *http.Request) string

// ClientIP keys requests by the remote address without its port
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit rejects requests over limiter's budget with 429 and reports the
// budget in X-RateLimit-* headers. Limiter failures let the request through.
// A nil key counts requests per ClientIP.
func RateLimit(limiter ratelimit.Limiter, key KeyFunc) Middleware {
	if key == nil {
		key = ClientIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := limiter.Allow(r.Context(), key(r))
			if err != nil {
				Logger(r.Context()).Warn("rate limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

			if !decision.Allowed {
				response.RenderTooManyRequests(w, time.Until(decision.ResetAt))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
