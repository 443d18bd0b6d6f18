// Package metrics exposes the gateway's Prometheus instrumentation: request
// counts by route and status, rate-limiter rejections, and MCP session
// lifecycle counters, scraped from /metrics.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts served HTTP requests by chi route pattern and
	// status code.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_http_requests_total",
		Help: "HTTP requests served, by route pattern and status code.",
	}, []string{"route", "status"})

	// RateLimitedTotal counts requests rejected by the tenant rate
	// limiter, by route class.
	RateLimitedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_rate_limited_total",
		Help: "Requests rejected by the tenant rate limiter, by route class.",
	}, []string{"route_class"})

	// SessionsOpened counts MCP sessions that completed their handshake.
	SessionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_mcp_sessions_opened_total",
		Help: "MCP sessions successfully connected.",
	})

	// SessionsClosed counts MCP sessions torn down after connecting.
	SessionsClosed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_mcp_sessions_closed_total",
		Help: "Connected MCP sessions torn down.",
	})
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// statusRecorder captures the response status while preserving the
// Flusher the streaming chat route depends on.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.wroteHeader = true
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.wroteHeader = true
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware counts every served request. Reading the route pattern after
// the handler ran keeps the label cardinality bounded to the mounted
// routes instead of raw URL paths.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		RequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	})
}
