package gatewayapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/mcpjam/hosted-gateway/pkg/admission"
	"github.com/mcpjam/hosted-gateway/pkg/logger"
	"github.com/mcpjam/hosted-gateway/pkg/oauthproxy"
)

// checkOAuthRequest is the body of POST /web/servers/check-oauth.
type checkOAuthRequest struct {
	WorkspaceID string `json:"workspaceId"`
	ServerID    string `json:"serverId"`
}

type checkOAuthResponse struct {
	OAuthRequired        bool     `json:"oauthRequired"`
	AuthorizationServers []string `json:"authorizationServers,omitempty"`
	ResourceMetadataURL  string   `json:"resourceMetadataUrl,omitempty"`
}

// discoveryTimeout bounds the optional protected-resource metadata probe; a
// slow or absent document must not stall the preflight.
const discoveryTimeout = 5 * time.Second

// CheckOAuth handles POST /web/servers/check-oauth, the shared-chat
// preflight: it reports whether the server demands a per-request OAuth
// token and, when it does, probes the server's RFC 9728 protected-resource
// metadata for its authorization servers so the browser can start the OAuth
// flow. The probe is best-effort; servers without a published document
// still report oauthRequired and the client falls back to manual discovery
// through the OAuth proxy.
func (rt *Routes) CheckOAuth(w http.ResponseWriter, r *http.Request) error {
	var req checkOAuthRequest
	if err := admission.DecodeJSON(r, &req); err != nil {
		return err
	}
	if err := admission.RequireField("workspaceId", req.WorkspaceID); err != nil {
		return err
	}
	if err := admission.RequireField("serverId", req.ServerID); err != nil {
		return err
	}

	bearer, err := admission.ExtractBearer(r)
	if err != nil {
		return err
	}

	desc, err := rt.deps.Authorizer.Authorize(r.Context(), bearer, req.WorkspaceID, req.ServerID)
	if err != nil {
		return err
	}

	resp := checkOAuthResponse{OAuthRequired: desc.UseOAuth}
	if desc.UseOAuth {
		resp.ResourceMetadataURL, resp.AuthorizationServers = discoverAuthorizationServers(r, desc.URL)
	}
	return writeJSON(w, http.StatusOK, resp)
}

// discoverAuthorizationServers fetches the protected-resource metadata
// published at the server origin's well-known path. Any failure returns an
// empty list; the metadata URL is still reported so the client can retry
// through the OAuth proxy.
func discoverAuthorizationServers(r *http.Request, serverURL string) (metadataURL string, servers []string) {
	parsed, err := url.Parse(serverURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", nil
	}
	metadataURL = parsed.Scheme + "://" + parsed.Host + oauthproxy.WellKnownOAuthResourcePath

	ctx, cancel := context.WithTimeout(r.Context(), discoveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL, nil)
	if err != nil {
		return metadataURL, nil
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		logger.Debugf("gatewayapi: protected-resource metadata probe failed: %v", err)
		return metadataURL, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return metadataURL, nil
	}

	var doc oauthproxy.ResourceMetadata
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return metadataURL, nil
	}
	return metadataURL, doc.AuthorizationServers
}
