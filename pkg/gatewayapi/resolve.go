package gatewayapi

import (
	"context"
	"fmt"

	"github.com/mcpjam/hosted-gateway/pkg/apierrors"
	"github.com/mcpjam/hosted-gateway/pkg/authorizer"
	"github.com/mcpjam/hosted-gateway/pkg/mcpsession"
	"github.com/mcpjam/hosted-gateway/pkg/sessionmanager"
)

// mcpTransport maps the Authorizer Client's transport enum onto the one
// mcpsession.Session understands.
func mcpTransport(t authorizer.Transport) string {
	switch t {
	case authorizer.TransportHTTPStreamable:
		return "streamable-http"
	case authorizer.TransportHTTPSSE:
		return "sse"
	default:
		return "auto"
	}
}

// requireOAuthToken enforces that a server whose descriptor declares
// useOAuth=true must have a per-request OAuth token supplied by the caller,
// checked before any MCP connect is attempted.
func requireOAuthToken(serverID string, desc *authorizer.ServerDescriptor, oauthToken string) error {
	if desc.UseOAuth && oauthToken == "" {
		return apierrors.NewUnauthorized(fmt.Sprintf("server %q requires an OAuth access token", serverID), nil)
	}
	return nil
}

// connectOne authorizes a single server and connects to it through mgr,
// returning the live session. Callers are responsible for calling
// mgr.DisconnectAll on every exit path.
func connectOne(
	ctx context.Context,
	d *Deps,
	mgr *sessionmanager.Manager,
	bearer, workspaceID, serverID, oauthToken string,
) (*mcpsession.Session, error) {
	desc, err := d.Authorizer.Authorize(ctx, bearer, workspaceID, serverID)
	if err != nil {
		return nil, err
	}
	if err := requireOAuthToken(serverID, desc, oauthToken); err != nil {
		return nil, err
	}

	handshakeCtx, cancel := context.WithTimeout(ctx, d.HandshakeTimeout)
	defer cancel()

	return mgr.EnsureConnected(
		handshakeCtx, serverID, desc.URL,
		mcpsession.WithTransport(mcpTransport(desc.Transport)),
		mcpsession.WithHeaders(sessionHeaders(desc, oauthToken)),
	)
}
