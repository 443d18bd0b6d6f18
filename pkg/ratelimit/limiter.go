// Package ratelimit implements the gateway's tenant rate limiter: a
// process-local, windowed counter per (TenantId, RouteClass) that rejects
// excess requests with 429 before any authorization or MCP call is made.
//
// The mutex-map-of-limiters shape follows a map of per-key limiters behind
// a single sync.Mutex held for the whole check-and-increment, but uses a
// fixed-window counter with Retry-After rather than a continuous token
// bucket: count resets when now >= resetAt rather than leaking
// continuously.
package ratelimit

import (
	"sync"
	"time"

	"github.com/mcpjam/hosted-gateway/pkg/config"
)

// bucket tracks a single (tenant, route class) window: {count, resetAt}.
type bucket struct {
	count   int
	resetAt time.Time
}

// Decision is the outcome of a Check call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	RetryAfter time.Duration
}

// Limiter enforces per-(tenant, route-class) windowed counters. Safe for
// concurrent use; buckets are shared across requests by design.
type Limiter struct {
	limits map[config.RouteClass]config.RouteClassLimit
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

// New constructs a Limiter from the configured per-route-class limits.
func New(limits map[config.RouteClass]config.RouteClassLimit) *Limiter {
	return &Limiter{
		limits:  limits,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

func key(tenantID string, routeClass config.RouteClass) string {
	return tenantID + "\x00" + string(routeClass)
}

// Check increments the counter for (tenantID, routeClass) and reports
// whether the request is admitted. A routeClass absent from the configured
// limits falls back to RouteClassOther's limit, so every class resolves to
// some bucket.
func (l *Limiter) Check(tenantID string, routeClass config.RouteClass) Decision {
	limit, ok := l.limits[routeClass]
	if !ok {
		limit = l.limits[config.RouteClassOther]
	}
	if limit.Limit <= 0 {
		return Decision{Allowed: true}
	}

	now := l.now()
	k := key(tenantID, routeClass)

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[k]
	if !ok || now.After(b.resetAt) || now.Equal(b.resetAt) {
		b = &bucket{count: 0, resetAt: now.Add(limit.Window)}
		l.buckets[k] = b
	}

	b.count++

	if b.count > limit.Limit {
		return Decision{
			Allowed:    false,
			Limit:      limit.Limit,
			Remaining:  0,
			ResetAt:    b.resetAt,
			RetryAfter: b.resetAt.Sub(now),
		}
	}

	return Decision{
		Allowed:   true,
		Limit:     limit.Limit,
		Remaining: limit.Limit - b.count,
		ResetAt:   b.resetAt,
	}
}

// Reset clears every bucket. Exists for test harnesses that need a clean
// slate between cases.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets = make(map[string]*bucket)
}

// setNow overrides the clock for deterministic tests.
func (l *Limiter) setNow(now func() time.Time) {
	l.now = now
}
