// Package chatexec implements the streaming chat route: it authorizes the
// selected servers, builds a request-scoped session manager with eager
// connects, merges the servers' tools with the built-in skill tools, runs a
// bounded agentic step loop against the LLM backend, and pipes the
// UI-message stream to the HTTP client. Teardown of every MCP session is
// driven by a completion hook that fires exactly once on normal end,
// stream error, or caller abort.
package chatexec

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mcpjam/hosted-gateway/pkg/admission"
	"github.com/mcpjam/hosted-gateway/pkg/apierrors"
	"github.com/mcpjam/hosted-gateway/pkg/authorizer"
	"github.com/mcpjam/hosted-gateway/pkg/logger"
	"github.com/mcpjam/hosted-gateway/pkg/mcpsession"
	"github.com/mcpjam/hosted-gateway/pkg/sessionmanager"
)

// Executor runs the chat-v2 route.
type Executor struct {
	Authorizer *authorizer.Client
	Backend    *BackendClient

	// HandshakeTimeout bounds each server's connect + initialize.
	HandshakeTimeout time.Duration
	// OperationTimeout bounds each individual tool call within a step.
	OperationTimeout time.Duration
	// StreamTimeout bounds the whole agentic loop.
	StreamTimeout time.Duration
	// MaxSteps bounds the number of model rounds per request.
	MaxSteps int
}

type modelDescriptor struct {
	ID       string `json:"id"`
	Provider string `json:"provider,omitempty"`
}

type chatRequest struct {
	WorkspaceID         string            `json:"workspaceId"`
	SelectedServerIDs   []string          `json:"selectedServerIds"`
	OAuthTokens         map[string]string `json:"oauthTokens,omitempty"`
	Messages            []Message         `json:"messages"`
	Model               modelDescriptor   `json:"model"`
	SystemPrompt        string            `json:"systemPrompt,omitempty"`
	Temperature         *float64          `json:"temperature,omitempty"`
	RequireToolApproval bool              `json:"requireToolApproval,omitempty"`
}

// Chat handles POST /web/chat-v2. Errors before the first stream byte are
// returned for the usual envelope; once streaming has begun, errors flow as
// a terminal frame instead, and this function returns nil.
func (e *Executor) Chat(w http.ResponseWriter, r *http.Request) error {
	var req chatRequest
	if err := admission.DecodeJSON(r, &req); err != nil {
		return err
	}
	if err := admission.RequireField("workspaceId", req.WorkspaceID); err != nil {
		return err
	}
	if err := admission.RequireNonEmpty("selectedServerIds", req.SelectedServerIDs); err != nil {
		return err
	}
	if err := admission.RequireNonEmpty("messages", req.Messages); err != nil {
		return err
	}
	if err := admission.RequireField("model.id", req.Model.ID); err != nil {
		return err
	}

	bearer, err := admission.ExtractBearer(r)
	if err != nil {
		return err
	}

	// Every server must authorize before any MCP connection begins.
	bindings, err := e.authorizeServers(r.Context(), bearer, &req)
	if err != nil {
		return err
	}

	mgr := sessionmanager.New(mcpsession.New)
	hook := NewCompletionHook(func() {
		if err := mgr.DisconnectAll(context.Background()); err != nil {
			logger.Warnf("chatexec: error tearing down session manager: %v", err)
		}
	})
	// Defensive teardown for every pre-stream error return below; a no-op
	// once the stream loop has fired the hook itself.
	defer hook.Fire()

	// Eager connect: every handshake starts now, in parallel, so the tool
	// fetch below awaits work already in flight instead of serializing it.
	connectCtx, cancelConnect := context.WithTimeout(r.Context(), e.HandshakeTimeout)
	defer cancelConnect()
	for _, binding := range bindings {
		go func(b serverBinding) {
			_, _ = mgr.EnsureConnected(connectCtx, b.ID, b.URL, b.Options...)
		}(binding)
	}

	tools, err := collectTools(connectCtx, mgr, bindings, req.RequireToolApproval)
	if err != nil {
		return err
	}
	if err := validateToolNames(tools); err != nil {
		return err
	}

	systemPrompt := req.SystemPrompt + skillPromptSection

	stream, err := newStreamWriter(w, r)
	if err != nil {
		return err
	}

	e.runSteps(r.Context(), stream, mgr, tools, &req, systemPrompt)
	hook.Fire()
	return nil
}

// authorizeServers authorizes every selected server in parallel and builds
// its session binding. Any denial, missing OAuth token, or policy-service
// failure aborts the whole request.
func (e *Executor) authorizeServers(ctx context.Context, bearer string, req *chatRequest) ([]serverBinding, error) {
	bindings := make([]serverBinding, len(req.SelectedServerIDs))

	g, gctx := errgroup.WithContext(ctx)
	for i, serverID := range req.SelectedServerIDs {
		g.Go(func() error {
			desc, err := e.Authorizer.Authorize(gctx, bearer, req.WorkspaceID, serverID)
			if err != nil {
				return err
			}
			oauthToken := req.OAuthTokens[serverID]
			if desc.UseOAuth && oauthToken == "" {
				return apierrors.NewUnauthorized(
					fmt.Sprintf("server %q requires an OAuth access token", serverID), nil)
			}

			headers := make(map[string]string, len(desc.Headers)+1)
			for k, v := range desc.Headers {
				headers[k] = v
			}
			if desc.UseOAuth {
				headers["Authorization"] = "Bearer " + oauthToken
			}

			transport := "auto"
			switch desc.Transport {
			case authorizer.TransportHTTPStreamable:
				transport = "streamable-http"
			case authorizer.TransportHTTPSSE:
				transport = "sse"
			}

			bindings[i] = serverBinding{
				ID:  serverID,
				URL: desc.URL,
				Options: []mcpsession.Option{
					mcpsession.WithTransport(transport),
					mcpsession.WithHeaders(headers),
				},
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return bindings, nil
}

// runSteps is the agentic loop. Each step posts the history to the backend,
// forwards its frames to the client, executes any tool calls through the
// manager's already-live sessions, and repeats until the model stops
// calling tools, a bound is hit, or the caller goes away. Tool failures are
// tool results, not stream errors; only backend/transport failures
// terminate the stream early.
func (e *Executor) runSteps(
	ctx context.Context,
	stream *streamWriter,
	mgr *sessionmanager.Manager,
	tools *toolSet,
	req *chatRequest,
	systemPrompt string,
) {
	ctx, cancel := context.WithTimeout(ctx, e.StreamTimeout)
	defer cancel()

	history := append([]Message(nil), req.Messages...)

	maxSteps := e.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 24
	}

	for step := 0; step < maxSteps; step++ {
		result, err := e.Backend.Stream(ctx, StreamRequest{
			Messages:     history,
			Model:        req.Model.ID,
			Temperature:  req.Temperature,
			SystemPrompt: systemPrompt,
			Tools:        tools.schemas,
		}, func(frame Frame) error {
			return stream.sendFrame(frame)
		})
		if err != nil {
			stream.sendError(err)
			return
		}

		history = append(history, Message{
			Role:      "assistant",
			Content:   result.Text,
			ToolCalls: result.ToolCalls,
		})

		if result.FinishReason != FinishToolCalls {
			return
		}

		for _, call := range result.ToolCalls {
			binding, known := tools.bindings[call.Name]
			if !known {
				stream.sendToolResult(call.ID, "unknown tool: "+call.Name, true)
				history = append(history, Message{
					Role: "tool", ToolCallID: call.ID, Content: "unknown tool: " + call.Name,
				})
				continue
			}

			if binding.NeedsApproval {
				stream.sendApprovalRequired(call)
				stream.sendFinish("tool-approval-required")
				return
			}

			output, toolErr := e.executeToolCall(ctx, mgr, binding, call)
			if toolErr != nil {
				msg := toolErr.Error()
				stream.sendToolResult(call.ID, msg, true)
				history = append(history, Message{Role: "tool", ToolCallID: call.ID, Content: msg})
				if apierrors.As(toolErr).Code == apierrors.Timeout {
					// A timed-out tool aborts the loop; the stream itself
					// completes normally with what was produced so far.
					stream.sendFinish(FinishStop)
					return
				}
				continue
			}

			stream.sendToolResult(call.ID, output, false)
			history = append(history, Message{Role: "tool", ToolCallID: call.ID, Content: output})
		}
	}

	stream.sendFinish(FinishStop)
}

// executeToolCall routes one tool call: built-ins run locally, everything
// else goes through the binding server's live session under the per-call
// timeout.
func (e *Executor) executeToolCall(
	ctx context.Context,
	mgr *sessionmanager.Manager,
	binding boundTool,
	call ToolCall,
) (string, error) {
	if binding.ServerID == "" {
		return runSkillTool(call.Name, call.Arguments)
	}

	session, ok := mgr.Get(binding.ServerID)
	if !ok {
		return "", apierrors.NewNotFound("no live session for server "+binding.ServerID, nil)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.OperationTimeout)
	defer cancel()

	result, err := session.ExecuteTool(callCtx, call.Name, call.Arguments)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(result.Content)
	if err != nil {
		return "", apierrors.NewInternal("failed to encode tool result", err)
	}
	return string(payload), nil
}
