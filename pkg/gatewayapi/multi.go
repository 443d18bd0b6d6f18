package gatewayapi

import (
	"context"
	"net/http"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/mcpjam/hosted-gateway/pkg/admission"
	"github.com/mcpjam/hosted-gateway/pkg/logger"
)

// fanOutConcurrency bounds how many backend servers a single list-multi
// request may dial at once.
const fanOutConcurrency = 8

// PromptsListMulti handles POST /web/prompts/list-multi: list-prompts
// fanned out across every named server concurrently. A server that fails to
// authorize, connect, or respond contributes an entry to the errors map and
// an empty prompt list; it never aborts the aggregate, so the response is
// always 200 with whatever subset succeeded.
func (rt *Routes) PromptsListMulti(w http.ResponseWriter, r *http.Request) error {
	var req promptsListMultiRequest
	if err := admission.DecodeJSON(r, &req); err != nil {
		return err
	}
	if err := admission.RequireField("workspaceId", req.WorkspaceID); err != nil {
		return err
	}
	if err := admission.RequireNonEmpty("serverIds", req.ServerIDs); err != nil {
		return err
	}

	bearer, err := admission.ExtractBearer(r)
	if err != nil {
		return err
	}

	mgr := rt.deps.newManager()
	defer func() {
		if disconnectErr := mgr.DisconnectAll(context.Background()); disconnectErr != nil {
			logger.Warnf("gatewayapi: error tearing down session manager: %v", disconnectErr)
		}
	}()

	ctx, cancel := context.WithTimeout(r.Context(), rt.deps.OperationTimeout)
	defer cancel()

	resp := promptsListMultiResponse{
		Prompts: make(map[string][]mcp.Prompt, len(req.ServerIDs)),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOutConcurrency)
	for _, serverID := range req.ServerIDs {
		g.Go(func() error {
			oauthToken := req.OAuthTokens[serverID]
			session, connectErr := connectOne(gctx, rt.deps, mgr, bearer, req.WorkspaceID, serverID, oauthToken)

			var prompts []mcp.Prompt
			var listErr error
			if connectErr != nil {
				listErr = connectErr
			} else {
				prompts, listErr = session.ListPrompts(gctx)
			}

			mu.Lock()
			defer mu.Unlock()
			if listErr != nil {
				resp.Prompts[serverID] = []mcp.Prompt{}
				if resp.Errors == nil {
					resp.Errors = make(map[string]string)
				}
				resp.Errors[serverID] = listErr.Error()
				return nil
			}
			resp.Prompts[serverID] = prompts
			return nil
		})
	}
	// Per-server failures are captured above, so the group never sees an
	// error; Wait only serves as the join point.
	_ = g.Wait()

	return writeJSON(w, http.StatusOK, resp)
}
