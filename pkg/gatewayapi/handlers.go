package gatewayapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mcpjam/hosted-gateway/pkg/admission"
	"github.com/mcpjam/hosted-gateway/pkg/apierrors"
	"github.com/mcpjam/hosted-gateway/pkg/logger"
	"github.com/mcpjam/hosted-gateway/pkg/mcpsession"
)

// Routes holds the dependencies every single-shot route handler needs.
type Routes struct {
	deps *Deps
}

// NewRoutes constructs the route handler set.
func NewRoutes(deps *Deps) *Routes {
	return &Routes{deps: deps}
}

// withOneServer implements the request-scoped session pattern for handlers
// that talk to exactly one server: authorize, connect, run fn, and
// disconnect on every exit path including a panic, which is recovered,
// logged, and reported as INTERNAL_ERROR rather than crashing the server.
func (rt *Routes) withOneServer(
	r *http.Request,
	workspaceID, serverID, oauthToken string,
	fn func(ctx context.Context, session *mcpsession.Session) error,
) (err error) {
	bearer, bearerErr := admission.ExtractBearer(r)
	if bearerErr != nil {
		return bearerErr
	}

	mgr := rt.deps.newManager()
	defer func() {
		if p := recover(); p != nil {
			logger.Errorf("gatewayapi: handler panicked: %v", p)
			err = apierrors.NewInternal("internal error", nil)
		}
		if disconnectErr := mgr.DisconnectAll(context.Background()); disconnectErr != nil {
			logger.Warnf("gatewayapi: error tearing down session manager: %v", disconnectErr)
		}
	}()

	ctx, cancel := context.WithTimeout(r.Context(), rt.deps.OperationTimeout)
	defer cancel()

	session, connectErr := connectOne(ctx, rt.deps, mgr, bearer, workspaceID, serverID, oauthToken)
	if connectErr != nil {
		return connectErr
	}

	return fn(ctx, session)
}

func writeJSON(w http.ResponseWriter, status int, body any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		return apierrors.NewInternal("failed to encode response", err)
	}
	return nil
}

// Validate handles POST /web/servers/validate: a connect + initialize
// against one server, reported as reachability rather than semantic
// validity.
func (rt *Routes) Validate(w http.ResponseWriter, r *http.Request) error {
	var req validateRequest
	if err := admission.DecodeJSON(r, &req); err != nil {
		return err
	}
	if err := admission.RequireField("workspaceId", req.WorkspaceID); err != nil {
		return err
	}
	if err := admission.RequireField("serverId", req.ServerID); err != nil {
		return err
	}

	return rt.withOneServer(r, req.WorkspaceID, req.ServerID, req.OAuthAccessToken,
		func(_ context.Context, _ *mcpsession.Session) error {
			return writeJSON(w, http.StatusOK, validateResponse{Success: true, Status: "connected"})
		})
}

// ToolsList handles POST /web/tools/list.
func (rt *Routes) ToolsList(w http.ResponseWriter, r *http.Request) error {
	var req toolsListRequest
	if err := admission.DecodeJSON(r, &req); err != nil {
		return err
	}
	if err := admission.RequireField("workspaceId", req.WorkspaceID); err != nil {
		return err
	}
	if err := admission.RequireField("serverId", req.ServerID); err != nil {
		return err
	}

	return rt.withOneServer(r, req.WorkspaceID, req.ServerID, req.OAuthAccessToken,
		func(ctx context.Context, session *mcpsession.Session) error {
			tools, nextCursor, err := session.ListToolsPage(ctx, req.Cursor)
			if err != nil {
				return err
			}

			resp := toolsListResponse{Tools: tools, NextCursor: nextCursor}
			if req.ModelID != "" {
				count := estimateTokenCount(tools)
				resp.TokenCount = &count
			}
			return writeJSON(w, http.StatusOK, resp)
		})
}

// ToolsExecute handles POST /web/tools/execute. taskOptions is explicitly
// rejected: the hosted gateway never schedules long-running background
// tasks.
func (rt *Routes) ToolsExecute(w http.ResponseWriter, r *http.Request) error {
	var req toolsExecuteRequest
	if err := admission.DecodeJSON(r, &req); err != nil {
		return err
	}
	if err := admission.RequireField("workspaceId", req.WorkspaceID); err != nil {
		return err
	}
	if err := admission.RequireField("serverId", req.ServerID); err != nil {
		return err
	}
	if err := admission.RequireField("toolName", req.ToolName); err != nil {
		return err
	}
	if req.TaskOptions != nil {
		return apierrors.NewFeatureNotSupported("taskOptions is not supported in hosted mode", nil)
	}

	return rt.withOneServer(r, req.WorkspaceID, req.ServerID, req.OAuthAccessToken,
		func(ctx context.Context, session *mcpsession.Session) error {
			result, err := session.ExecuteTool(ctx, req.ToolName, req.Parameters)
			if err != nil {
				return err
			}
			return writeJSON(w, http.StatusOK, toolsExecuteResponse{Status: "completed", Result: result})
		})
}

// ResourcesList handles POST /web/resources/list.
func (rt *Routes) ResourcesList(w http.ResponseWriter, r *http.Request) error {
	var req resourcesListRequest
	if err := admission.DecodeJSON(r, &req); err != nil {
		return err
	}
	if err := admission.RequireField("workspaceId", req.WorkspaceID); err != nil {
		return err
	}
	if err := admission.RequireField("serverId", req.ServerID); err != nil {
		return err
	}

	return rt.withOneServer(r, req.WorkspaceID, req.ServerID, req.OAuthAccessToken,
		func(ctx context.Context, session *mcpsession.Session) error {
			resources, nextCursor, err := session.ListResourcesPage(ctx, req.Cursor)
			if err != nil {
				return err
			}
			return writeJSON(w, http.StatusOK, resourcesListResponse{Resources: resources, NextCursor: nextCursor})
		})
}

// ResourcesRead handles POST /web/resources/read.
func (rt *Routes) ResourcesRead(w http.ResponseWriter, r *http.Request) error {
	var req resourcesReadRequest
	if err := admission.DecodeJSON(r, &req); err != nil {
		return err
	}
	if err := admission.RequireField("workspaceId", req.WorkspaceID); err != nil {
		return err
	}
	if err := admission.RequireField("serverId", req.ServerID); err != nil {
		return err
	}
	if err := admission.RequireField("uri", req.URI); err != nil {
		return err
	}

	return rt.withOneServer(r, req.WorkspaceID, req.ServerID, req.OAuthAccessToken,
		func(ctx context.Context, session *mcpsession.Session) error {
			content, err := session.ReadResource(ctx, req.URI)
			if err != nil {
				return err
			}
			if len(content) == 0 {
				return apierrors.NewNotFound("resource not found: "+req.URI, nil)
			}
			return writeJSON(w, http.StatusOK, resourcesReadResponse{Content: content})
		})
}

// PromptsList handles POST /web/prompts/list.
func (rt *Routes) PromptsList(w http.ResponseWriter, r *http.Request) error {
	var req promptsListRequest
	if err := admission.DecodeJSON(r, &req); err != nil {
		return err
	}
	if err := admission.RequireField("workspaceId", req.WorkspaceID); err != nil {
		return err
	}
	if err := admission.RequireField("serverId", req.ServerID); err != nil {
		return err
	}

	return rt.withOneServer(r, req.WorkspaceID, req.ServerID, req.OAuthAccessToken,
		func(ctx context.Context, session *mcpsession.Session) error {
			prompts, nextCursor, err := session.ListPromptsPage(ctx, req.Cursor)
			if err != nil {
				return err
			}
			return writeJSON(w, http.StatusOK, promptsListResponse{Prompts: prompts, NextCursor: nextCursor})
		})
}

// PromptsGet handles POST /web/prompts/get.
func (rt *Routes) PromptsGet(w http.ResponseWriter, r *http.Request) error {
	var req promptsGetRequest
	if err := admission.DecodeJSON(r, &req); err != nil {
		return err
	}
	if err := admission.RequireField("workspaceId", req.WorkspaceID); err != nil {
		return err
	}
	if err := admission.RequireField("serverId", req.ServerID); err != nil {
		return err
	}
	if err := admission.RequireField("promptName", req.PromptName); err != nil {
		return err
	}

	return rt.withOneServer(r, req.WorkspaceID, req.ServerID, req.OAuthAccessToken,
		func(ctx context.Context, session *mcpsession.Session) error {
			content, err := session.GetPrompt(ctx, req.PromptName, req.Arguments)
			if err != nil {
				return err
			}
			return writeJSON(w, http.StatusOK, promptsGetResponse{Content: content})
		})
}

// estimateTokenCount is a rough, model-agnostic estimate (roughly 4 bytes
// per token) used only to give the caller a ballpark for prompt budgeting;
// it is not a substitute for the LLM backend's own tokenizer.
func estimateTokenCount(tools []mcp.Tool) int {
	total := 0
	for _, t := range tools {
		total += len(t.Name) + len(t.Description)
		if schema, err := json.Marshal(t.InputSchema); err == nil {
			total += len(schema)
		}
	}
	return total / 4
}
