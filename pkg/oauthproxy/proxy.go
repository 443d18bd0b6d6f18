// Package oauthproxy implements the gateway's OAuth CORS proxy: an
// authenticated forwarder the browser's MCP OAuth state machine uses for
// metadata discovery, dynamic client registration, and token exchange
// against origins it cannot reach directly. It is the only route family
// that talks to an origin other than the configured MCP servers.
package oauthproxy

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mcpjam/hosted-gateway/pkg/admission"
	"github.com/mcpjam/hosted-gateway/pkg/apierrors"
	"github.com/mcpjam/hosted-gateway/pkg/logger"
)

// maxUpstreamBody caps how much of an upstream response is relayed; OAuth
// metadata and token responses are tiny, so anything near this size is not
// a legitimate flow.
const maxUpstreamBody = 1 << 20

// hopByHopHeaders are never forwarded in either direction, per RFC 9110
// §7.6.1. Host is handled by the HTTP client itself from the target URL.
var hopByHopHeaders = map[string]bool{
	"connection":          true,
	"keep-alive":          true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"te":                  true,
	"trailer":             true,
	"transfer-encoding":   true,
	"upgrade":             true,
	"host":                true,
}

// outboundRate caps the whole process's forwarded OAuth traffic. The
// per-tenant limiter already buckets callers; this is a backstop so the
// proxy can never be driven into hammering a third-party token endpoint.
const (
	outboundPerSecond = 25
	outboundBurst     = 50
)

// Proxy forwards OAuth requests to HTTPS targets.
type Proxy struct {
	httpClient *http.Client
	outbound   *rate.Limiter
}

// New constructs a Proxy. Redirects are not followed: the browser-side
// state machine needs to see 3xx responses (authorization redirects)
// verbatim.
func New() *Proxy {
	return &Proxy{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		outbound: rate.NewLimiter(rate.Limit(outboundPerSecond), outboundBurst),
	}
}

// proxyRequest is the body of POST /web/oauth/proxy.
type proxyRequest struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Body    string            `json:"body,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// validateTarget enforces the HTTPS-only rule: the target must be an
// absolute https URL, checked before any outbound request is made.
func validateTarget(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, apierrors.NewValidationError("url is required", nil)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, apierrors.NewValidationError("url is not a valid URL", err)
	}
	if !parsed.IsAbs() || parsed.Host == "" {
		return nil, apierrors.NewValidationError("url must be absolute", nil)
	}
	if parsed.Scheme != "https" {
		return nil, apierrors.NewValidationError("url scheme must be https", nil)
	}
	return parsed, nil
}

// Forward handles POST /web/oauth/proxy: it forwards the described request
// to its HTTPS target and relays status, body, and Content-Type back
// verbatim.
func (p *Proxy) Forward(w http.ResponseWriter, r *http.Request) error {
	if _, err := admission.ExtractBearer(r); err != nil {
		return err
	}

	var req proxyRequest
	if err := admission.DecodeJSON(r, &req); err != nil {
		return err
	}
	target, err := validateTarget(req.URL)
	if err != nil {
		return err
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		return apierrors.NewValidationError("method must be one of GET, POST, PUT, DELETE", nil)
	}

	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}

	upstream, err := http.NewRequestWithContext(r.Context(), method, target.String(), body)
	if err != nil {
		return apierrors.NewInternal("failed to build upstream request", err)
	}
	for key, value := range req.Headers {
		if hopByHopHeaders[strings.ToLower(key)] {
			continue
		}
		upstream.Header.Set(key, value)
	}

	return p.relay(w, upstream)
}

// Metadata handles GET /web/oauth/metadata?url=…: identical semantics to
// Forward for discovery GETs, shaped as a query parameter so browsers can
// issue it without a preflight-triggering body.
func (p *Proxy) Metadata(w http.ResponseWriter, r *http.Request) error {
	if _, err := admission.ExtractBearer(r); err != nil {
		return err
	}

	target, err := validateTarget(r.URL.Query().Get("url"))
	if err != nil {
		return err
	}

	upstream, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		return apierrors.NewInternal("failed to build upstream request", err)
	}
	upstream.Header.Set("Accept", "application/json")

	return p.relay(w, upstream)
}

// relay performs the upstream request and passes through status, body, and
// Content-Type only. Every other upstream header is dropped so the proxy
// never launders cookies or caching directives across origins.
func (p *Proxy) relay(w http.ResponseWriter, upstream *http.Request) error {
	if !p.outbound.Allow() {
		return apierrors.NewRateLimited("OAuth proxy is saturated, retry shortly", nil)
	}

	resp, err := p.httpClient.Do(upstream)
	if err != nil {
		return apierrors.NewServerUnreachable("OAuth target unreachable", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, io.LimitReader(resp.Body, maxUpstreamBody)); err != nil {
		// Headers are gone; nothing left to do but note it.
		logger.Debugf("oauthproxy: error relaying upstream body: %v", err)
	}
	return nil
}
