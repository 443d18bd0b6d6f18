package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpjam/hosted-gateway/pkg/config"
)

func testLimits() map[config.RouteClass]config.RouteClassLimit {
	return map[config.RouteClass]config.RouteClassLimit{
		config.RouteClassExecute: {Limit: 2, Window: time.Minute},
		config.RouteClassOther:   {Limit: 5, Window: time.Minute},
	}
}

func TestLimiterAllowsWithinWindow(t *testing.T) {
	t.Parallel()
	l := New(testLimits())

	d1 := l.Check("tenant-a", config.RouteClassExecute)
	d2 := l.Check("tenant-a", config.RouteClassExecute)
	require.True(t, d1.Allowed)
	require.True(t, d2.Allowed)
	assert.Equal(t, 0, d2.Remaining)
}

func TestLimiterRejectsOverLimit(t *testing.T) {
	t.Parallel()
	l := New(testLimits())

	l.Check("tenant-a", config.RouteClassExecute)
	l.Check("tenant-a", config.RouteClassExecute)
	third := l.Check("tenant-a", config.RouteClassExecute)

	require.False(t, third.Allowed)
	assert.Greater(t, third.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, third.RetryAfter, time.Minute)
}

func TestLimiterIsPerTenant(t *testing.T) {
	t.Parallel()
	l := New(testLimits())

	l.Check("tenant-a", config.RouteClassExecute)
	l.Check("tenant-a", config.RouteClassExecute)

	d := l.Check("tenant-b", config.RouteClassExecute)
	assert.True(t, d.Allowed)
}

func TestLimiterResetsAfterWindow(t *testing.T) {
	t.Parallel()
	l := New(testLimits())
	current := time.Now()
	l.setNow(func() time.Time { return current })

	l.Check("tenant-a", config.RouteClassExecute)
	l.Check("tenant-a", config.RouteClassExecute)
	blocked := l.Check("tenant-a", config.RouteClassExecute)
	require.False(t, blocked.Allowed)

	current = current.Add(time.Minute + time.Second)
	allowed := l.Check("tenant-a", config.RouteClassExecute)
	assert.True(t, allowed.Allowed)
}

func TestLimiterUnknownRouteClassFallsBackToOther(t *testing.T) {
	t.Parallel()
	l := New(testLimits())
	d := l.Check("tenant-a", config.RouteClass("unknown"))
	assert.Equal(t, 5, d.Limit)
}

func TestLimiterResetClearsBuckets(t *testing.T) {
	t.Parallel()
	l := New(testLimits())
	l.Check("tenant-a", config.RouteClassExecute)
	l.Check("tenant-a", config.RouteClassExecute)
	require.False(t, l.Check("tenant-a", config.RouteClassExecute).Allowed)

	l.Reset()
	assert.True(t, l.Check("tenant-a", config.RouteClassExecute).Allowed)
}
