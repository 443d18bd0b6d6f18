// Package authorizer implements the gateway's authorizer client: it
// forwards the caller's bearer token to an external policy decision point
// and turns its verdict into a ServerDescriptor. It never validates the
// bearer itself (no JWKS fetch, no signature check, no audience check);
// that is the policy service's job.
//
// The ConnectionConfig/decisionResponse/PORC request shapes below follow
// the policy-decision-point client contract described in DESIGN.md.
package authorizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/mcpjam/hosted-gateway/pkg/apierrors"
)

// Transport identifies the wire protocol a ServerDescriptor's URL speaks.
type Transport string

const (
	TransportHTTPStreamable Transport = "http-streamable"
	TransportHTTPSSE        Transport = "http-sse"
)

// ServerDescriptor is the opaque handle C3 returns per (workspaceId,
// serverId). It is materialized fresh on every call and never cached.
type ServerDescriptor struct {
	Transport Transport
	URL       string
	Headers   map[string]string
	UseOAuth  bool
}

// ConnectionConfig configures the HTTP client used to talk to the policy
// decision point.
type ConnectionConfig struct {
	URL                string
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// decisionResponse is the policy service's response body.
type decisionResponse struct {
	Authorized   bool              `json:"authorized"`
	Role         string            `json:"role"`
	ServerConfig *serverConfigWire `json:"serverConfig"`
}

type serverConfigWire struct {
	Transport string            `json:"transportType"`
	URL       string            `json:"url"`
	Headers   map[string]string `json:"headers"`
	UseOAuth  bool              `json:"useOAuth"`
}

// porc is the principal/operation/resource request body sent to the
// policy decision point.
type porc struct {
	Principal map[string]any `json:"principal"`
	Operation string         `json:"operation"`
	Resource  string         `json:"resource"`
}

// Client calls the external policy decision point.
type Client struct {
	cfg        ConnectionConfig
	httpClient *http.Client
}

// NewClient validates cfg and constructs a Client. The PDP URL must use
// http or https; anything else (file://, ftp://, ...) is rejected up front.
func NewClient(cfg ConnectionConfig) (*Client, error) {
	parsed, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid policy service URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("URL scheme must be http or https, got: %s", parsed.Scheme)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: tlsConfig(cfg.InsecureSkipVerify),
			},
		},
	}, nil
}

// Authorize forwards bearer, workspaceId, and serverId to the policy
// service and turns its verdict into a ServerDescriptor.
func (c *Client) Authorize(ctx context.Context, bearer, workspaceID, serverID string) (*ServerDescriptor, error) {
	body := porc{
		Principal: map[string]any{"bearer": bearer, "workspaceId": workspaceID},
		Operation: "mcp:server:connect",
		Resource:  fmt.Sprintf("mcp:server:%s", serverID),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, apierrors.NewInternal("failed to encode authorization request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, apierrors.NewInternal("failed to build authorization request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apierrors.NewServerUnreachable("authorization service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apierrors.NewServerUnreachable(
			fmt.Sprintf("authorization service returned status %d", resp.StatusCode), nil)
	}

	var decision decisionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
		return nil, apierrors.NewServerUnreachable("authorization service returned an invalid response", err)
	}

	if !decision.Authorized {
		return nil, apierrors.NewForbidden(fmt.Sprintf("not authorized for server %q", serverID), nil)
	}

	if decision.ServerConfig == nil {
		return nil, apierrors.NewInternal("authorization service did not return a server config", nil)
	}

	transport := Transport(decision.ServerConfig.Transport)
	if transport != TransportHTTPStreamable && transport != TransportHTTPSSE {
		return nil, apierrors.NewFeatureNotSupported("hosted cannot spawn subprocesses", nil)
	}

	return &ServerDescriptor{
		Transport: transport,
		URL:       decision.ServerConfig.URL,
		Headers:   decision.ServerConfig.Headers,
		UseOAuth:  decision.ServerConfig.UseOAuth,
	}, nil
}
