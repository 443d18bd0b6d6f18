package mcpsession

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mcpjam/hosted-gateway/pkg/apierrors"
)

// ListTools returns the tools the upstream server exposes.
func (s *Session) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	tools, _, err := s.ListToolsPage(ctx, "")
	return tools, err
}

// ListToolsPage returns one page of tools starting at cursor (empty for the
// first page) along with the opaque cursor for the next page, if any.
func (s *Session) ListToolsPage(ctx context.Context, cursor string) ([]mcp.Tool, string, error) {
	c, err := s.client()
	if err != nil {
		return nil, "", err
	}
	req := mcp.ListToolsRequest{}
	req.Params.Cursor = mcp.Cursor(cursor)

	result, err := c.ListTools(ctx, req)
	if err != nil {
		return nil, "", wrapUpstreamError("list tools", err)
	}
	return result.Tools, string(result.NextCursor), nil
}

// ExecuteTool invokes a single tool by name and returns its result content.
func (s *Session) ExecuteTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	c, err := s.client()
	if err != nil {
		return nil, err
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := c.CallTool(ctx, req)
	if err != nil {
		return nil, wrapUpstreamError("call tool "+name, err)
	}
	return result, nil
}

// ListResources returns the resources the upstream server exposes.
func (s *Session) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	resources, _, err := s.ListResourcesPage(ctx, "")
	return resources, err
}

// ListResourcesPage returns one page of resources starting at cursor.
func (s *Session) ListResourcesPage(ctx context.Context, cursor string) ([]mcp.Resource, string, error) {
	c, err := s.client()
	if err != nil {
		return nil, "", err
	}
	req := mcp.ListResourcesRequest{}
	req.Params.Cursor = mcp.Cursor(cursor)

	result, err := c.ListResources(ctx, req)
	if err != nil {
		return nil, "", wrapUpstreamError("list resources", err)
	}
	return result.Resources, string(result.NextCursor), nil
}

// ListResourceTemplates returns the resource templates the upstream server
// exposes.
func (s *Session) ListResourceTemplates(ctx context.Context) ([]mcp.ResourceTemplate, error) {
	c, err := s.client()
	if err != nil {
		return nil, err
	}
	result, err := c.ListResourceTemplates(ctx, mcp.ListResourceTemplatesRequest{})
	if err != nil {
		return nil, wrapUpstreamError("list resource templates", err)
	}
	return result.ResourceTemplates, nil
}

// ReadResource fetches the contents of a single resource by URI.
func (s *Session) ReadResource(ctx context.Context, uri string) ([]mcp.ResourceContents, error) {
	c, err := s.client()
	if err != nil {
		return nil, err
	}
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri

	result, err := c.ReadResource(ctx, req)
	if err != nil {
		return nil, wrapUpstreamError("read resource "+uri, err)
	}
	return result.Contents, nil
}

// SubscribeResource asks the upstream server to notify this session of
// changes to the named resource.
func (s *Session) SubscribeResource(ctx context.Context, uri string) error {
	c, err := s.client()
	if err != nil {
		return err
	}
	req := mcp.SubscribeRequest{}
	req.Params.URI = uri
	if err := c.Subscribe(ctx, req); err != nil {
		return wrapUpstreamError("subscribe resource "+uri, err)
	}
	return nil
}

// UnsubscribeResource cancels a prior SubscribeResource.
func (s *Session) UnsubscribeResource(ctx context.Context, uri string) error {
	c, err := s.client()
	if err != nil {
		return err
	}
	req := mcp.UnsubscribeRequest{}
	req.Params.URI = uri
	if err := c.Unsubscribe(ctx, req); err != nil {
		return wrapUpstreamError("unsubscribe resource "+uri, err)
	}
	return nil
}

// ListPrompts returns the prompts the upstream server exposes.
func (s *Session) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	prompts, _, err := s.ListPromptsPage(ctx, "")
	return prompts, err
}

// ListPromptsPage returns one page of prompts starting at cursor.
func (s *Session) ListPromptsPage(ctx context.Context, cursor string) ([]mcp.Prompt, string, error) {
	c, err := s.client()
	if err != nil {
		return nil, "", err
	}
	req := mcp.ListPromptsRequest{}
	req.Params.Cursor = mcp.Cursor(cursor)

	result, err := c.ListPrompts(ctx, req)
	if err != nil {
		return nil, "", wrapUpstreamError("list prompts", err)
	}
	return result.Prompts, string(result.NextCursor), nil
}

// GetPrompt fetches a single prompt by name with the given arguments.
func (s *Session) GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	c, err := s.client()
	if err != nil {
		return nil, err
	}
	req := mcp.GetPromptRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := c.GetPrompt(ctx, req)
	if err != nil {
		return nil, wrapUpstreamError("get prompt "+name, err)
	}
	return result, nil
}

// wrapUpstreamError maps a raw mcp-go transport/protocol error onto the
// gateway's taxonomy. Context deadline/cancellation becomes TIMEOUT; every
// other transport failure becomes SERVER_UNREACHABLE, since by this point
// the session was Live and any failure here is the upstream server's, not a
// caller mistake.
func wrapUpstreamError(op string, err error) error {
	if isDeadline(err) {
		return apierrors.NewTimeout(op+" timed out", err)
	}
	return apierrors.NewServerUnreachable(op+" failed", err)
}

func isDeadline(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "context deadline exceeded") ||
		strings.Contains(err.Error(), "context canceled"))
}
