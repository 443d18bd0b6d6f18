package sessionmanager

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpjam/hosted-gateway/pkg/mcpsession"
)

// unreachableURL points at a closed local port so Connect fails fast with
// connection-refused instead of hanging on a real network round trip.
const unreachableURL = "http://127.0.0.1:1/mcp"

func TestEnsureConnectedClearsKeyOnFailure(t *testing.T) {
	t.Parallel()
	m := New(mcpsession.New)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := m.EnsureConnected(ctx, "backend-1", unreachableURL)
	require.Error(t, err)
	assert.Empty(t, m.Keys())

	_, ok := m.Get("backend-1")
	assert.False(t, ok)
}

func TestEnsureConnectedSingleFlight(t *testing.T) {
	t.Parallel()

	var calls int32
	factory := func(serverURL string, opts ...mcpsession.Option) *mcpsession.Session {
		atomic.AddInt32(&calls, 1)
		return mcpsession.New(serverURL, opts...)
	}
	m := New(factory)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.EnsureConnected(ctx, "backend-1", unreachableURL)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDisconnectAllNoEntries(t *testing.T) {
	t.Parallel()
	m := New(mcpsession.New)
	require.NoError(t, m.DisconnectAll(context.Background()))
}

func TestDisconnectAllEmptiesManager(t *testing.T) {
	t.Parallel()
	m := New(mcpsession.New)

	// Insert ready entries directly, the way EnsureConnected records a
	// successful connect, so teardown has something real to remove.
	m.mu.Lock()
	for _, key := range []string{"backend-1", "backend-2"} {
		e := &entry{ready: make(chan struct{}), session: mcpsession.New(unreachableURL)}
		close(e.ready)
		m.entries[key] = e
	}
	m.mu.Unlock()

	require.Len(t, m.Keys(), 2)
	require.NoError(t, m.DisconnectAll(context.Background()))

	assert.Empty(t, m.Keys())
	_, ok := m.Get("backend-1")
	assert.False(t, ok)

	// Idempotent: a second call on the now-empty manager is a no-op.
	require.NoError(t, m.DisconnectAll(context.Background()))
	assert.Empty(t, m.Keys())
}
