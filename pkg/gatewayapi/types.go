package gatewayapi

import "github.com/mark3labs/mcp-go/mcp"

// validateRequest is the body of POST /web/servers/validate.
type validateRequest struct {
	WorkspaceID      string `json:"workspaceId"`
	ServerID         string `json:"serverId"`
	OAuthAccessToken string `json:"oauthAccessToken,omitempty"`
}

type validateResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
}

// toolsListRequest is the body of POST /web/tools/list.
type toolsListRequest struct {
	WorkspaceID      string `json:"workspaceId"`
	ServerID         string `json:"serverId"`
	OAuthAccessToken string `json:"oauthAccessToken,omitempty"`
	ModelID          string `json:"modelId,omitempty"`
	Cursor           string `json:"cursor,omitempty"`
}

type toolsListResponse struct {
	Tools         []mcp.Tool     `json:"tools"`
	ToolsMetadata map[string]any `json:"toolsMetadata,omitempty"`
	NextCursor    string         `json:"nextCursor,omitempty"`
	TokenCount    *int           `json:"tokenCount,omitempty"`
}

// toolsExecuteRequest is the body of POST /web/tools/execute.
type toolsExecuteRequest struct {
	WorkspaceID      string         `json:"workspaceId"`
	ServerID         string         `json:"serverId"`
	OAuthAccessToken string         `json:"oauthAccessToken,omitempty"`
	ToolName         string         `json:"toolName"`
	Parameters       map[string]any `json:"parameters"`
	TaskOptions      map[string]any `json:"taskOptions,omitempty"`
}

type toolsExecuteResponse struct {
	Status string              `json:"status"`
	Result *mcp.CallToolResult `json:"result"`
}

// resourcesListRequest is the body of POST /web/resources/list.
type resourcesListRequest struct {
	WorkspaceID      string `json:"workspaceId"`
	ServerID         string `json:"serverId"`
	OAuthAccessToken string `json:"oauthAccessToken,omitempty"`
	Cursor           string `json:"cursor,omitempty"`
}

type resourcesListResponse struct {
	Resources  []mcp.Resource `json:"resources"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

// resourcesReadRequest is the body of POST /web/resources/read.
type resourcesReadRequest struct {
	WorkspaceID      string `json:"workspaceId"`
	ServerID         string `json:"serverId"`
	OAuthAccessToken string `json:"oauthAccessToken,omitempty"`
	URI              string `json:"uri"`
}

type resourcesReadResponse struct {
	Content []mcp.ResourceContents `json:"content"`
}

// promptsListRequest is the body of POST /web/prompts/list.
type promptsListRequest struct {
	WorkspaceID      string `json:"workspaceId"`
	ServerID         string `json:"serverId"`
	OAuthAccessToken string `json:"oauthAccessToken,omitempty"`
	Cursor           string `json:"cursor,omitempty"`
}

type promptsListResponse struct {
	Prompts    []mcp.Prompt `json:"prompts"`
	NextCursor string       `json:"nextCursor,omitempty"`
}

// promptsListMultiRequest is the body of POST /web/prompts/list-multi.
type promptsListMultiRequest struct {
	WorkspaceID string            `json:"workspaceId"`
	ServerIDs   []string          `json:"serverIds"`
	OAuthTokens map[string]string `json:"oauthTokens,omitempty"`
}

type promptsListMultiResponse struct {
	Prompts map[string][]mcp.Prompt `json:"prompts"`
	Errors  map[string]string       `json:"errors,omitempty"`
}

// promptsGetRequest is the body of POST /web/prompts/get.
type promptsGetRequest struct {
	WorkspaceID      string            `json:"workspaceId"`
	ServerID         string            `json:"serverId"`
	OAuthAccessToken string            `json:"oauthAccessToken,omitempty"`
	PromptName       string            `json:"promptName"`
	Arguments        map[string]string `json:"arguments,omitempty"`
}

type promptsGetResponse struct {
	Content *mcp.GetPromptResult `json:"content"`
}
