package chatexec

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/mcpjam/hosted-gateway/pkg/apierrors"
)

// Message is one entry in the conversation history exchanged with the LLM
// backend. Tool results are carried as role "tool" messages keyed by the
// tool call they answer.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"toolCallId,omitempty"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
}

// ToolCall is one tool invocation the model requested during a step.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolSchema is the tool description posted to the backend so the model
// can decide whether to call it.
type ToolSchema struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InputSchema any    `json:"inputSchema"`
}

// StreamRequest is the body of POST {backend}/stream.
type StreamRequest struct {
	Messages     []Message    `json:"messages"`
	Model        string       `json:"model"`
	Temperature  *float64     `json:"temperature,omitempty"`
	SystemPrompt string       `json:"systemPrompt,omitempty"`
	Tools        []ToolSchema `json:"tools,omitempty"`
}

// Frame is one chunk of the backend's UI-message stream: a text delta, a
// tool-call record, a terminal error, or the step's finish summary.
type Frame struct {
	Type         string    `json:"type"`
	Delta        string    `json:"delta,omitempty"`
	ToolCall     *ToolCall `json:"toolCall,omitempty"`
	FinishReason string    `json:"finishReason,omitempty"`
	Message      string    `json:"message,omitempty"`
}

// Frame types on the backend wire.
const (
	FrameTextDelta = "text-delta"
	FrameToolCall  = "tool-call"
	FrameFinish    = "finish"
	FrameError     = "error"
)

// Finish reasons the step loop acts on.
const (
	FinishToolCalls = "tool-calls"
	FinishStop      = "stop"
)

// StepResult summarizes one completed backend step.
type StepResult struct {
	Text         string
	ToolCalls    []ToolCall
	FinishReason string
}

// BackendClient posts conversation steps to the LLM backend and reads back
// its newline-delimited frame stream. It buffers nothing: each frame is
// handed to the caller as soon as its line is read off the wire.
type BackendClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewBackendClient builds a client for the backend at baseURL. The HTTP
// client carries no overall timeout; per-step deadlines come from the
// caller's context so a healthy long stream is never cut off mid-step.
func NewBackendClient(baseURL string) *BackendClient {
	return &BackendClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// maxFrameBytes bounds a single frame line; a frame larger than this is a
// protocol violation, not a legitimate delta.
const maxFrameBytes = 4 << 20

// Stream posts req and invokes onFrame for every frame as it arrives,
// returning the accumulated step result once the backend reports finish.
// An onFrame error aborts the read immediately (the caller's client went
// away); the underlying response body is always closed.
func (c *BackendClient) Stream(ctx context.Context, req StreamRequest, onFrame func(Frame) error) (*StepResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, apierrors.NewInternal("failed to encode backend request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/stream", bytes.NewReader(payload))
	if err != nil {
		return nil, apierrors.NewInternal("failed to build backend request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apierrors.NewTimeout("LLM backend request cancelled", err)
		}
		return nil, apierrors.NewServerUnreachable("LLM backend unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apierrors.NewServerUnreachable(
			fmt.Sprintf("LLM backend returned status %d", resp.StatusCode), nil)
	}

	result := &StepResult{}
	var text strings.Builder

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxFrameBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var frame Frame
		if err := json.Unmarshal(line, &frame); err != nil {
			return nil, apierrors.NewServerUnreachable("LLM backend sent an invalid frame", err)
		}

		switch frame.Type {
		case FrameTextDelta:
			text.WriteString(frame.Delta)
		case FrameToolCall:
			if frame.ToolCall != nil {
				result.ToolCalls = append(result.ToolCalls, *frame.ToolCall)
			}
		case FrameFinish:
			result.FinishReason = frame.FinishReason
		case FrameError:
			return nil, apierrors.NewServerUnreachable("LLM backend reported: "+frame.Message, nil)
		}

		if onFrame != nil {
			if err := onFrame(frame); err != nil {
				return nil, err
			}
		}

		if frame.Type == FrameFinish {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return nil, apierrors.NewTimeout("LLM backend stream cancelled", err)
		}
		return nil, apierrors.NewServerUnreachable("LLM backend stream failed", err)
	}

	if result.FinishReason == "" {
		return nil, apierrors.NewServerUnreachable("LLM backend stream ended without a finish frame", nil)
	}

	result.Text = text.String()
	return result, nil
}
