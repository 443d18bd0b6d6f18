package gatewayapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpjam/hosted-gateway/pkg/apierrors"
	"github.com/mcpjam/hosted-gateway/pkg/authorizer"
	"github.com/mcpjam/hosted-gateway/pkg/config"
	"github.com/mcpjam/hosted-gateway/pkg/oauthproxy"
	"github.com/mcpjam/hosted-gateway/pkg/ratelimit"
)

// testBearer mints a syntactically valid JWT. Its signature is never
// checked by the gateway (the fake policy service below stands in for the
// real one), only its claims are read for tenant bucketing.
func testBearer(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

// newFakeMCPServer runs an in-process MCP server over streamable HTTP with
// one echo tool, one prompt, and one ui:// widget resource.
func newFakeMCPServer(t *testing.T) *httptest.Server {
	t.Helper()

	s := server.NewMCPServer("fake-backend", "0.0.1",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithPromptCapabilities(false),
	)

	s.AddTool(
		mcp.NewTool("echo", mcp.WithDescription("echoes its arguments"), mcp.WithString("x")),
		func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			payload, _ := json.Marshal(req.GetArguments())
			return mcp.NewToolResultText(string(payload)), nil
		},
	)

	s.AddPrompt(
		mcp.NewPrompt("greet", mcp.WithPromptDescription("a greeting")),
		func(_ context.Context, _ mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			return mcp.NewGetPromptResult("greeting", []mcp.PromptMessage{
				mcp.NewPromptMessage(mcp.RoleAssistant, mcp.NewTextContent("hello")),
			}), nil
		},
	)

	s.AddResource(
		mcp.NewResource("ui://widget/main", "main widget", mcp.WithMIMEType("text/html")),
		func(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			return []mcp.ResourceContents{
				mcp.TextResourceContents{
					URI:      "ui://widget/main",
					MIMEType: "text/html",
					Text:     "<html><body>widget</body></html>",
				},
			}, nil
		},
	)

	ts := server.NewTestStreamableHTTPServer(s)
	t.Cleanup(ts.Close)
	return ts
}

// fakePolicyService answers authorize calls per serverId: "sA" maps to the
// fake MCP server, "sBad" to a closed port, "sOauth" requires an OAuth
// token, "sStdio" returns a stdio descriptor, and anything else is denied.
func fakePolicyService(t *testing.T, mcpURL string) *httptest.Server {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Resource string `json:"resource"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		serverID := strings.TrimPrefix(body.Resource, "mcp:server:")

		respond := func(transport, url string, useOAuth bool) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"authorized": true,
				"role":       "member",
				"serverConfig": map[string]any{
					"transportType": transport,
					"url":           url,
					"headers":       map[string]string{},
					"useOAuth":      useOAuth,
				},
			})
		}

		switch serverID {
		case "sA":
			respond("http-streamable", mcpURL, false)
		case "sBad":
			respond("http-streamable", "http://127.0.0.1:1/mcp", false)
		case "sOauth":
			respond("http-streamable", mcpURL, true)
		case "sStdio":
			respond("stdio", "", false)
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{"authorized": false})
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

type routerFixture struct {
	router  http.Handler
	limiter *ratelimit.Limiter
	bearer  string
}

func newRouterFixture(t *testing.T, rateLimit bool, limits map[config.RouteClass]config.RouteClassLimit) *routerFixture {
	t.Helper()

	mcpServer := newFakeMCPServer(t)
	pdp := fakePolicyService(t, mcpServer.URL)

	authz, err := authorizer.NewClient(authorizer.ConnectionConfig{URL: pdp.URL})
	require.NoError(t, err)

	if limits == nil {
		limits = map[config.RouteClass]config.RouteClassLimit{
			config.RouteClassOther: {Limit: 1000, Window: time.Minute},
		}
	}
	limiter := ratelimit.New(limits)

	router := Router(RouterOptions{
		Deps: &Deps{
			Authorizer:       authz,
			HandshakeTimeout: 5 * time.Second,
			OperationTimeout: 10 * time.Second,
		},
		Limiter:        limiter,
		AllowedOrigins: []string{"https://inspector.example.com"},
		BodyLimitBytes: 1 << 20,
		RateLimit:      rateLimit,
		WellKnown: oauthproxy.NewWellKnownHandler(
			"https://gateway.example.com", []string{"https://idp.example.com"}),
	})

	return &routerFixture{
		router:  router,
		limiter: limiter,
		bearer:  testBearer(t, jwt.MapClaims{"sub": "user-1", "workspaceId": "ws1"}),
	}
}

func (f *routerFixture) post(t *testing.T, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) apierrors.Envelope {
	t.Helper()
	var env apierrors.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestToolsExecuteHappyPath(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, false, nil)

	rec := f.post(t, "/web/tools/execute", map[string]any{
		"workspaceId": "ws1",
		"serverId":    "sA",
		"toolName":    "echo",
		"parameters":  map[string]any{"x": 1},
	}, f.bearer)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Status string             `json:"status"`
		Result mcp.CallToolResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "completed", resp.Status)
	require.NotEmpty(t, resp.Result.Content)
}

func TestMissingBearerIsUnauthorized(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, false, nil)

	rec := f.post(t, "/web/tools/list", map[string]any{
		"workspaceId": "ws1", "serverId": "sA",
	}, "")

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, apierrors.Unauthorized, decodeEnvelope(t, rec).Code)
}

func TestValidateReportsConnected(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, false, nil)

	rec := f.post(t, "/web/servers/validate", map[string]any{
		"workspaceId": "ws1", "serverId": "sA",
	}, f.bearer)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Success bool   `json:"success"`
		Status  string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "connected", resp.Status)
}

func TestStdioDescriptorIsRejected(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, false, nil)

	rec := f.post(t, "/web/servers/validate", map[string]any{
		"workspaceId": "ws1", "serverId": "sStdio",
	}, f.bearer)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apierrors.FeatureNotSupported, decodeEnvelope(t, rec).Code)
}

func TestUnauthorizedWorkspaceIsForbidden(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, false, nil)

	rec := f.post(t, "/web/servers/validate", map[string]any{
		"workspaceId": "ws1", "serverId": "sDenied",
	}, f.bearer)

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, apierrors.Forbidden, decodeEnvelope(t, rec).Code)
}

func TestOAuthServerWithoutTokenIsUnauthorized(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, false, nil)

	rec := f.post(t, "/web/tools/list", map[string]any{
		"workspaceId": "ws1", "serverId": "sOauth",
	}, f.bearer)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, apierrors.Unauthorized, env.Code)
	assert.Contains(t, env.Message, "sOauth")
}

func TestTaskOptionsRejected(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, false, nil)

	rec := f.post(t, "/web/tools/execute", map[string]any{
		"workspaceId": "ws1",
		"serverId":    "sA",
		"toolName":    "echo",
		"parameters":  map[string]any{},
		"taskOptions": map[string]any{"ttl": 60},
	}, f.bearer)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apierrors.FeatureNotSupported, decodeEnvelope(t, rec).Code)
}

func TestPromptsListMultiPartialFailure(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, false, nil)

	rec := f.post(t, "/web/prompts/list-multi", map[string]any{
		"workspaceId": "ws1",
		"serverIds":   []string{"sA", "sBad"},
	}, f.bearer)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Prompts map[string][]mcp.Prompt `json:"prompts"`
		Errors  map[string]string       `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Prompts["sA"], 1)
	assert.Equal(t, "greet", resp.Prompts["sA"][0].Name)
	assert.Empty(t, resp.Prompts["sBad"])
	assert.Contains(t, resp.Errors, "sBad")
	assert.NotContains(t, resp.Errors, "sA")
}

func TestRateLimitThirdRequestRejected(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, true, map[config.RouteClass]config.RouteClassLimit{
		config.RouteClassOther: {Limit: 2, Window: time.Minute},
	})

	body := map[string]any{"workspaceId": "ws1", "serverId": "sA"}

	for i := 0; i < 2; i++ {
		rec := f.post(t, "/web/tools/list", body, f.bearer)
		require.Equal(t, http.StatusOK, rec.Code, "request %d: %s", i, rec.Body.String())
	}

	rec := f.post(t, "/web/tools/list", body, f.bearer)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, apierrors.RateLimited, decodeEnvelope(t, rec).Code)

	retryAfter := rec.Header().Get("Retry-After")
	require.NotEmpty(t, retryAfter)
	var seconds int
	_, err := fmt.Sscanf(retryAfter, "%d", &seconds)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, seconds, 1)
	assert.LessOrEqual(t, seconds, 60)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestBodyOverLimitIs413(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, false, nil)

	padding := strings.Repeat("a", 1<<20)
	rec := f.post(t, "/web/tools/list", map[string]any{
		"workspaceId": "ws1", "serverId": "sA", "cursor": padding,
	}, f.bearer)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestMCPAppsWidgetContent(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, false, nil)

	rec := f.post(t, "/web/apps/mcp-apps/widget-content", map[string]any{
		"workspaceId": "ws1",
		"serverId":    "sA",
		"uri":         "ui://widget/main",
		"cspMode":     "strict",
	}, f.bearer)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp mcpAppsWidgetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.HTML, "widget")
	assert.Equal(t, "strict", resp.CSP)
	assert.Equal(t, "text/html", resp.MIMEType)
	assert.True(t, resp.MIMETypeValid)
}

func TestWidgetContentRejectsNonUIScheme(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, false, nil)

	rec := f.post(t, "/web/apps/mcp-apps/widget-content", map[string]any{
		"workspaceId": "ws1",
		"serverId":    "sA",
		"uri":         "https://example.com/widget.html",
	}, f.bearer)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apierrors.ValidationError, decodeEnvelope(t, rec).Code)
}

func TestChatGPTAppsWidgetContentSynthesizesCSP(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, false, nil)

	rec := f.post(t, "/web/apps/chatgpt-apps/widget-content", map[string]any{
		"workspaceId": "ws1",
		"serverId":    "sA",
		"uri":         "ui://widget/main",
		"domains": map[string]any{
			"connectSrc":  []string{"https://api.example.com"},
			"resourceSrc": []string{"https://cdn.example.com"},
		},
	}, f.bearer)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp chatGPTAppsWidgetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.HTML, "widget")
	assert.Equal(t, []string{"https://api.example.com"}, resp.CSP.ConnectSrc)
	assert.Contains(t, resp.CSP.Header, "connect-src https://api.example.com")
	assert.Contains(t, resp.CSP.Header, "default-src 'none'")
}

func TestUploadRoutesNotSupported(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, false, nil)

	rec := f.post(t, "/web/apps/chatgpt-apps/upload-file", map[string]any{}, f.bearer)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apierrors.FeatureNotSupported, decodeEnvelope(t, rec).Code)
}

func TestWellKnownMetadataServedWithoutAuth(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, false, nil)

	req := httptest.NewRequest(http.MethodGet, oauthproxy.WellKnownOAuthResourcePath, nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var doc oauthproxy.ResourceMetadata
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "https://gateway.example.com", doc.Resource)
	assert.Equal(t, []string{"https://idp.example.com"}, doc.AuthorizationServers)
}

func TestCheckOAuthReportsRequirement(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, false, nil)

	rec := f.post(t, "/web/servers/check-oauth", map[string]any{
		"workspaceId": "ws1", "serverId": "sOauth",
	}, f.bearer)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		OAuthRequired       bool   `json:"oauthRequired"`
		ResourceMetadataURL string `json:"resourceMetadataUrl"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.OAuthRequired)
	assert.Contains(t, resp.ResourceMetadataURL, "/.well-known/oauth-protected-resource")

	rec = f.post(t, "/web/servers/check-oauth", map[string]any{
		"workspaceId": "ws1", "serverId": "sA",
	}, f.bearer)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.OAuthRequired)
}

func TestToolsListReturnsTokenCount(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t, false, nil)

	rec := f.post(t, "/web/tools/list", map[string]any{
		"workspaceId": "ws1", "serverId": "sA", "modelId": "some-model",
	}, f.bearer)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp toolsListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Tools, 1)
	assert.Equal(t, "echo", resp.Tools[0].Name)
	require.NotNil(t, resp.TokenCount)
	assert.Positive(t, *resp.TokenCount)
}
