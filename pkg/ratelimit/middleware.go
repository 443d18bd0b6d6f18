package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/mcpjam/hosted-gateway/pkg/apierrors"
	"github.com/mcpjam/hosted-gateway/pkg/config"
	"github.com/mcpjam/hosted-gateway/pkg/metrics"
)

// TenantIDFunc resolves the TenantId for an inbound request. It runs before
// the route handler, so it cannot read the decoded body; pkg/gatewayapi's
// router installs the middleware per route-class group and derives the
// tenant from the bearer's unverified claims.
type TenantIDFunc func(r *http.Request) string

// Middleware enforces the limiter for routeClass, using tenantOf to key
// each request. Health-check paths are expected to be mounted outside this
// middleware's scope entirely.
func Middleware(l *Limiter, routeClass config.RouteClass, tenantOf TenantIDFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID := tenantOf(r)
			decision := l.Check(tenantID, routeClass)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

			if !decision.Allowed {
				metrics.RateLimitedTotal.WithLabelValues(string(routeClass)).Inc()
				retryAfterSeconds := int(decision.RetryAfter.Seconds())
				if retryAfterSeconds < 1 {
					retryAfterSeconds = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
				apierrors.WriteEnvelope(w, apierrors.NewRateLimited("rate limit exceeded", nil))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
