package oauthproxy

import (
	"encoding/json"
	"net/http"
	"strings"
)

// WellKnownOAuthResourcePath is the RFC 9728 standard path for OAuth
// Protected Resource metadata. Per RFC 9728 section 3 it must be served
// without authentication so clients can bootstrap discovery.
const WellKnownOAuthResourcePath = "/.well-known/oauth-protected-resource"

// ResourceMetadata is the RFC 9728 protected-resource metadata document the
// gateway publishes about itself. The gateway never issues tokens; the
// document only points clients at the external authorization servers.
type ResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers,omitempty"`
	BearerMethodsSupported []string `json:"bearer_methods_supported,omitempty"`
	ScopesSupported        []string `json:"scopes_supported,omitempty"`
}

// NewWellKnownHandler serves the protected-resource metadata document at
// WellKnownOAuthResourcePath and its subpaths, 404 for every other
// /.well-known/ path. Returns nil when no resource URL is configured, in
// which case nothing should be mounted.
func NewWellKnownHandler(resourceURL string, authorizationServers []string) http.Handler {
	if resourceURL == "" {
		return nil
	}

	doc := ResourceMetadata{
		Resource:               resourceURL,
		AuthorizationServers:   authorizationServers,
		BearerMethodsSupported: []string{"header"},
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, WellKnownOAuthResourcePath) {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_ = json.NewEncoder(w).Encode(doc)
	})
}
