package authorizer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpjam/hosted-gateway/pkg/apierrors"
)

func newPDP(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	c, err := NewClient(ConnectionConfig{URL: ts.URL})
	require.NoError(t, err)
	return c
}

func TestNewClientRejectsBadScheme(t *testing.T) {
	t.Parallel()

	_, err := NewClient(ConnectionConfig{URL: "ftp://policy.example.com"})
	require.Error(t, err)

	_, err = NewClient(ConnectionConfig{URL: "https://policy.example.com"})
	require.NoError(t, err)
}

func TestAuthorizeReturnsDescriptor(t *testing.T) {
	t.Parallel()

	c := newPDP(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer b1", r.Header.Get("Authorization"))

		var body struct {
			Principal map[string]any `json:"principal"`
			Resource  string         `json:"resource"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ws1", body.Principal["workspaceId"])
		assert.Equal(t, "mcp:server:sA", body.Resource)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"authorized": true,
			"role":       "member",
			"serverConfig": map[string]any{
				"transportType": "http-streamable",
				"url":           "https://mcp.example.com/mcp",
				"headers":       map[string]string{"X-Api-Key": "k"},
				"useOAuth":      true,
			},
		})
	})

	desc, err := c.Authorize(context.Background(), "b1", "ws1", "sA")
	require.NoError(t, err)
	assert.Equal(t, TransportHTTPStreamable, desc.Transport)
	assert.Equal(t, "https://mcp.example.com/mcp", desc.URL)
	assert.Equal(t, "k", desc.Headers["X-Api-Key"])
	assert.True(t, desc.UseOAuth)
}

func TestAuthorizeDenialIsForbidden(t *testing.T) {
	t.Parallel()

	c := newPDP(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"authorized": false})
	})

	_, err := c.Authorize(context.Background(), "b1", "ws1", "sA")
	require.Error(t, err)
	assert.Equal(t, apierrors.Forbidden, apierrors.As(err).Code)
}

func TestAuthorizeStdioIsFeatureNotSupported(t *testing.T) {
	t.Parallel()

	c := newPDP(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"authorized":   true,
			"serverConfig": map[string]any{"transportType": "stdio"},
		})
	})

	_, err := c.Authorize(context.Background(), "b1", "ws1", "sA")
	require.Error(t, err)
	assert.Equal(t, apierrors.FeatureNotSupported, apierrors.As(err).Code)
}

func TestAuthorizeNetworkFailureIsServerUnreachable(t *testing.T) {
	t.Parallel()

	c, err := NewClient(ConnectionConfig{URL: "http://127.0.0.1:1"})
	require.NoError(t, err)

	_, err = c.Authorize(context.Background(), "b1", "ws1", "sA")
	require.Error(t, err)
	apiErr := apierrors.As(err)
	assert.Equal(t, apierrors.ServerUnreachable, apiErr.Code)
	assert.Contains(t, apiErr.Message, "authorization service")
}

func TestAuthorizeNonOKStatusIsServerUnreachable(t *testing.T) {
	t.Parallel()

	c := newPDP(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.Authorize(context.Background(), "b1", "ws1", "sA")
	require.Error(t, err)
	assert.Equal(t, apierrors.ServerUnreachable, apierrors.As(err).Code)
}
