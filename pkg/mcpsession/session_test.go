package mcpsession

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreferSSE(t *testing.T) {
	t.Parallel()
	assert.True(t, preferSSE("https://example.com/mcp/sse"))
	assert.True(t, preferSSE("https://example.com/sse/"))
	assert.False(t, preferSSE("https://example.com/mcp"))
}

func TestIsStreamablePath(t *testing.T) {
	t.Parallel()
	assert.True(t, isStreamablePath("https://example.com/mcp"))
	assert.True(t, isStreamablePath("https://example.com/mcp/"))
	assert.False(t, isStreamablePath("https://example.com/sse"))
}

func TestNewSessionStartsFresh(t *testing.T) {
	t.Parallel()
	s := New("https://example.com/mcp")
	assert.Equal(t, StateFresh, s.State())
	assert.NotEmpty(t, s.ID())
}

func TestOperationsFailBeforeConnect(t *testing.T) {
	t.Parallel()
	s := New("https://example.com/mcp")
	_, err := s.ListTools(context.Background())
	require.Error(t, err)
}

func TestCloseIsIdempotentWithoutConnect(t *testing.T) {
	t.Parallel()
	s := New("https://example.com/mcp")
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, StateClosed, s.State())
}

func TestDispatchNotificationIsolatesPanics(t *testing.T) {
	t.Parallel()
	s := New("https://example.com/mcp")

	var calledOK int32
	var mu sync.Mutex
	var order []string

	s.AddNotificationHandler(NotifyAllMethods, func(mcp.JSONRPCNotification) {
		mu.Lock()
		order = append(order, "first")
		mu.Unlock()
		panic("boom")
	})
	s.AddNotificationHandler(NotifyAllMethods, func(mcp.JSONRPCNotification) {
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
		atomic.AddInt32(&calledOK, 1)
	})

	s.dispatchNotification(mcp.JSONRPCNotification{})

	assert.Equal(t, int32(1), atomic.LoadInt32(&calledOK))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestDispatchNotificationFiltersByMethod(t *testing.T) {
	t.Parallel()
	s := New("https://example.com/mcp")

	var progress, logs int32
	s.AddNotificationHandler("notifications/progress", func(mcp.JSONRPCNotification) {
		atomic.AddInt32(&progress, 1)
	})
	s.AddNotificationHandler("notifications/message", func(mcp.JSONRPCNotification) {
		atomic.AddInt32(&logs, 1)
	})

	n := mcp.JSONRPCNotification{}
	n.Method = "notifications/progress"
	s.dispatchNotification(n)

	assert.Equal(t, int32(1), atomic.LoadInt32(&progress))
	assert.Equal(t, int32(0), atomic.LoadInt32(&logs))
}

func TestElicitationBridgeDelegatesToHandler(t *testing.T) {
	t.Parallel()
	s := New("https://example.com/mcp")
	bridge := elicitationBridge{s}

	// Before any handler is registered the bridge refuses the request.
	_, err := bridge.Elicit(context.Background(), mcp.ElicitationRequest{})
	require.Error(t, err)

	var gotMessage string
	s.SetElicitationHandler(func(_ context.Context, req mcp.ElicitationRequest) (*mcp.ElicitationResult, error) {
		gotMessage = req.Params.Message
		return &mcp.ElicitationResult{}, nil
	})

	req := mcp.ElicitationRequest{}
	req.Params.Message = "confirm the deletion"
	result, err := bridge.Elicit(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "confirm the deletion", gotMessage)
}

func TestRemovedNotificationHandlerNeverFires(t *testing.T) {
	t.Parallel()
	s := New("https://example.com/mcp")

	var fired int32
	remove := s.AddNotificationHandler("notifications/progress", func(mcp.JSONRPCNotification) {
		atomic.AddInt32(&fired, 1)
	})
	remove()

	n := mcp.JSONRPCNotification{}
	n.Method = "notifications/progress"
	s.dispatchNotification(n)

	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
}
