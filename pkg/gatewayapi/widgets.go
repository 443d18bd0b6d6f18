package gatewayapi

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mcpjam/hosted-gateway/pkg/admission"
	"github.com/mcpjam/hosted-gateway/pkg/apierrors"
	"github.com/mcpjam/hosted-gateway/pkg/mcpsession"
)

// widgetURIScheme is the resource scheme widget templates must use.
const widgetURIScheme = "ui://"

// widgetContentRequest is the body of both widget-content routes. The
// permissions, border, and domain fields are passed through from the widget
// descriptor the inspector already holds; the gateway's job is fetching the
// template resource, not re-discovering its metadata.
type widgetContentRequest struct {
	WorkspaceID      string   `json:"workspaceId"`
	ServerID         string   `json:"serverId"`
	OAuthAccessToken string   `json:"oauthAccessToken,omitempty"`
	URI              string   `json:"uri"`
	CSPMode          string   `json:"cspMode,omitempty"`
	Permissions      []string `json:"permissions,omitempty"`
	PrefersBorder    *bool    `json:"prefersBorder,omitempty"`

	// ChatGPT Apps only.
	WidgetDescription string         `json:"widgetDescription,omitempty"`
	Domains           *widgetDomains `json:"domains,omitempty"`
	CloseWidget       bool           `json:"closeWidget,omitempty"`
}

// widgetDomains are the resource's declared CSP domain lists.
type widgetDomains struct {
	ConnectSrc  []string `json:"connectSrc,omitempty"`
	ResourceSrc []string `json:"resourceSrc,omitempty"`
}

type mcpAppsWidgetResponse struct {
	HTML          string   `json:"html"`
	CSP           string   `json:"csp,omitempty"`
	Permissions   []string `json:"permissions,omitempty"`
	PrefersBorder *bool    `json:"prefersBorder,omitempty"`
	MIMEType      string   `json:"mimeType"`
	MIMETypeValid bool     `json:"mimeTypeValid"`
}

type chatGPTAppsCSP struct {
	ConnectSrc  []string `json:"connectSrc"`
	ResourceSrc []string `json:"resourceSrc"`
	Header      string   `json:"header"`
}

type chatGPTAppsWidgetResponse struct {
	HTML              string         `json:"html"`
	CSP               chatGPTAppsCSP `json:"csp"`
	WidgetDescription string         `json:"widgetDescription,omitempty"`
	PrefersBorder     bool           `json:"prefersBorder"`
	CloseWidget       bool           `json:"closeWidget"`
}

func decodeWidgetRequest(r *http.Request) (*widgetContentRequest, error) {
	var req widgetContentRequest
	if err := admission.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	if err := admission.RequireField("workspaceId", req.WorkspaceID); err != nil {
		return nil, err
	}
	if err := admission.RequireField("serverId", req.ServerID); err != nil {
		return nil, err
	}
	if err := admission.RequireField("uri", req.URI); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(req.URI, widgetURIScheme) {
		return nil, apierrors.NewValidationError("widget template URI must use the ui:// scheme", nil)
	}
	return &req, nil
}

// extractWidgetHTML pulls the template HTML out of a read-resource result:
// inline text when the server returned TextResourceContents, decoded bytes
// when it returned a base64 blob. The first content entry carrying HTML
// wins.
func extractWidgetHTML(contents []mcp.ResourceContents) (html, mimeType string, err error) {
	for _, content := range contents {
		switch c := content.(type) {
		case mcp.TextResourceContents:
			if c.Text != "" {
				return c.Text, c.MIMEType, nil
			}
		case mcp.BlobResourceContents:
			decoded, decodeErr := base64.StdEncoding.DecodeString(c.Blob)
			if decodeErr != nil {
				return "", "", apierrors.NewValidationError("widget blob is not valid base64", decodeErr)
			}
			return string(decoded), c.MIMEType, nil
		}
	}
	return "", "", apierrors.NewNotFound("widget resource has no HTML content", nil)
}

// isWidgetMIMEType reports whether the resource's declared MIME type is one
// a widget host can render directly.
func isWidgetMIMEType(mimeType string) bool {
	switch {
	case mimeType == "":
		return false
	case strings.HasPrefix(mimeType, "text/html"):
		return true
	default:
		return false
	}
}

// MCPAppsWidgetContent handles POST /web/apps/mcp-apps/widget-content: it
// reads the ui:// template resource, extracts its HTML, and returns it with
// the caller-chosen CSP mode and the widget metadata. Post-processing of
// the HTML itself (runtime script injection, sandboxing) is the rendering
// host's job, not the gateway's.
func (rt *Routes) MCPAppsWidgetContent(w http.ResponseWriter, r *http.Request) error {
	req, err := decodeWidgetRequest(r)
	if err != nil {
		return err
	}

	return rt.withOneServer(r, req.WorkspaceID, req.ServerID, req.OAuthAccessToken,
		func(ctx context.Context, session *mcpsession.Session) error {
			contents, readErr := session.ReadResource(ctx, req.URI)
			if readErr != nil {
				return readErr
			}
			html, mimeType, extractErr := extractWidgetHTML(contents)
			if extractErr != nil {
				return extractErr
			}

			resp := mcpAppsWidgetResponse{
				HTML:          html,
				Permissions:   req.Permissions,
				PrefersBorder: req.PrefersBorder,
				MIMEType:      mimeType,
				MIMETypeValid: isWidgetMIMEType(mimeType),
			}
			if req.CSPMode != "" {
				resp.CSP = req.CSPMode
			}
			return writeJSON(w, http.StatusOK, resp)
		})
}

// permissiveWidgetCSP is the fallback used when a ChatGPT Apps resource
// declares no domain lists of its own.
var permissiveWidgetCSP = widgetDomains{
	ConnectSrc:  []string{"https:", "wss:"},
	ResourceSrc: []string{"https:", "data:", "blob:"},
}

// synthesizeCSPHeader renders the domain lists into a Content-Security-Policy
// header value for the widget iframe.
func synthesizeCSPHeader(domains widgetDomains) string {
	resources := strings.Join(domains.ResourceSrc, " ")
	connect := strings.Join(domains.ConnectSrc, " ")

	directives := []string{
		"default-src 'none'",
		"script-src 'unsafe-inline' 'unsafe-eval' " + resources,
		"style-src 'unsafe-inline' " + resources,
		"img-src " + resources,
		"font-src " + resources,
		"media-src " + resources,
		"connect-src " + connect,
	}
	return strings.Join(directives, "; ")
}

// ChatGPTAppsWidgetContent handles POST /web/apps/chatgpt-apps/widget-content.
// Same template fetch as the MCP Apps route, plus a synthesized CSP header
// built from the resource's declared domain lists, falling back to a
// permissive default when it declares none.
func (rt *Routes) ChatGPTAppsWidgetContent(w http.ResponseWriter, r *http.Request) error {
	req, err := decodeWidgetRequest(r)
	if err != nil {
		return err
	}

	return rt.withOneServer(r, req.WorkspaceID, req.ServerID, req.OAuthAccessToken,
		func(ctx context.Context, session *mcpsession.Session) error {
			contents, readErr := session.ReadResource(ctx, req.URI)
			if readErr != nil {
				return readErr
			}
			html, _, extractErr := extractWidgetHTML(contents)
			if extractErr != nil {
				return extractErr
			}

			domains := permissiveWidgetCSP
			if req.Domains != nil {
				if len(req.Domains.ConnectSrc) > 0 {
					domains.ConnectSrc = req.Domains.ConnectSrc
				}
				if len(req.Domains.ResourceSrc) > 0 {
					domains.ResourceSrc = req.Domains.ResourceSrc
				}
			}

			prefersBorder := req.PrefersBorder != nil && *req.PrefersBorder

			return writeJSON(w, http.StatusOK, chatGPTAppsWidgetResponse{
				HTML: html,
				CSP: chatGPTAppsCSP{
					ConnectSrc:  domains.ConnectSrc,
					ResourceSrc: domains.ResourceSrc,
					Header:      synthesizeCSPHeader(domains),
				},
				WidgetDescription: req.WidgetDescription,
				PrefersBorder:     prefersBorder,
				CloseWidget:       req.CloseWidget,
			})
		})
}

// UploadNotSupported answers the ChatGPT Apps upload-file and file/:id
// routes: the hosted gateway keeps no durable artifacts, so uploads are
// rejected outright rather than silently dropped.
func (rt *Routes) UploadNotSupported(_ http.ResponseWriter, _ *http.Request) error {
	return apierrors.NewFeatureNotSupported("file upload is not supported in hosted mode", nil)
}
