package middlewares

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/dropDatabas3/portal/internal/observability/logger"
	"github.com/dropDatabas3/portal/internal/rate"
)

// WithRateLimit aplica limiter por IP de cliente. Si el limiter falla se deja
// pasar el request.
func WithRateLimit(limiter rate.Limiter, scope string) Middleware {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := limiter.Allow(r.Context(), scope+":"+clientIP(r))
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter unavailable", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			if !res.Allowed {
				secs := int(math.Ceil(res.RetryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":             "rate_limited",
					"error_description": "Too many attempts. Please wait and try again.",
					"request_id":        GetRequestID(r.Context()),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP usa RemoteAddr: el dashboard escucha local, sin proxies delante.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
