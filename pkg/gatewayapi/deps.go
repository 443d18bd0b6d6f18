// Package gatewayapi implements the gateway's route handlers: the
// single-shot /web/* routes that each authorize one or more servers, run a
// request-scoped Session Manager against them, and tear it down on every
// exit path. Streaming chat lives in pkg/chatexec; this package wires it in
// as one more route.
package gatewayapi

import (
	"time"

	"github.com/mcpjam/hosted-gateway/pkg/authorizer"
	"github.com/mcpjam/hosted-gateway/pkg/mcpsession"
	"github.com/mcpjam/hosted-gateway/pkg/sessionmanager"
)

// Deps bundles everything route handlers need. One Deps is constructed at
// startup and shared read-only across every request; nothing in it is
// request-scoped (that's what Manager instances are for).
type Deps struct {
	Authorizer *authorizer.Client

	// HandshakeTimeout bounds the connect + initialize handshake
	// (WEB_CONNECT_TIMEOUT_MS).
	HandshakeTimeout time.Duration
	// OperationTimeout is the default per-call timeout injected when a
	// caller doesn't specify one (WEB_CALL_TIMEOUT_MS).
	OperationTimeout time.Duration
}

// newManager constructs a fresh, request-scoped Session Manager. Every
// route handler creates one of these, uses it for the lifetime of the
// request, and tears it down before returning.
func (d *Deps) newManager() *sessionmanager.Manager {
	return sessionmanager.New(mcpsession.New)
}

// sessionHeaders builds the outbound header map for a server descriptor,
// merging its workspace-configured headers with the caller's own OAuth
// bearer when the descriptor requires one. The map is built fresh for each
// connect attempt and never persisted.
func sessionHeaders(desc *authorizer.ServerDescriptor, oauthToken string) map[string]string {
	headers := make(map[string]string, len(desc.Headers)+1)
	for k, v := range desc.Headers {
		headers[k] = v
	}
	if desc.UseOAuth && oauthToken != "" {
		headers["Authorization"] = "Bearer " + oauthToken
	}
	return headers
}
