package http

import (
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/dropDatabas3/authserve/internal/observability/logger"
	"github.com/dropDatabas3/authserve/internal/rate"
)

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit gatea endpoints de credenciales por IP de cliente. Un limiter
// caído deja pasar: preferimos degradar a denegar logins legítimos.
func RateLimit(l rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := l.Allow(r.Context(), clientIP(r))
			if err != nil {
				logger.Named("http.rate").Warn("limiter unavailable", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			if !res.Allowed {
				secs := int(math.Ceil(res.RetryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
