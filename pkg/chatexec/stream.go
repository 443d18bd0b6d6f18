package chatexec

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mcpjam/hosted-gateway/pkg/apierrors"
	"github.com/mcpjam/hosted-gateway/pkg/logger"
)

// uiFrame is one chunk of the UI-message stream sent to the browser:
// backend frames forwarded as-is, plus the gateway's own tool-result,
// approval, and terminal frames.
type uiFrame struct {
	Type         string    `json:"type"`
	Delta        string    `json:"delta,omitempty"`
	ToolCall     *ToolCall `json:"toolCall,omitempty"`
	ToolCallID   string    `json:"toolCallId,omitempty"`
	Result       string    `json:"result,omitempty"`
	IsError      bool      `json:"isError,omitempty"`
	FinishReason string    `json:"finishReason,omitempty"`
	Code         string    `json:"code,omitempty"`
	Message      string    `json:"message,omitempty"`
}

// Gateway-originated frame types, in addition to the backend's own.
const (
	frameToolResult       = "tool-result"
	frameApprovalRequired = "tool-approval-required"
)

// streamWriter writes server-sent events to the HTTP client and flushes
// after every frame so the browser renders deltas as they arrive. It
// buffers nothing.
type streamWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newStreamWriter sends the stream headers. After it returns, errors can no
// longer use the JSON envelope; they must flow as terminal frames.
func newStreamWriter(w http.ResponseWriter, _ *http.Request) (*streamWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, apierrors.NewInternal("streaming is not supported by this connection", nil)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &streamWriter{w: w, flusher: flusher}, nil
}

func (s *streamWriter) send(frame uiFrame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return apierrors.NewInternal("failed to encode stream frame", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		// The client went away; the step loop sees this error and unwinds.
		return apierrors.NewInternal("client disconnected", err)
	}
	s.flusher.Flush()
	return nil
}

// sendFrame forwards a backend frame verbatim.
func (s *streamWriter) sendFrame(frame Frame) error {
	return s.send(uiFrame{
		Type:         frame.Type,
		Delta:        frame.Delta,
		ToolCall:     frame.ToolCall,
		FinishReason: frame.FinishReason,
		Message:      frame.Message,
	})
}

func (s *streamWriter) sendToolResult(toolCallID, result string, isError bool) {
	if err := s.send(uiFrame{Type: frameToolResult, ToolCallID: toolCallID, Result: result, IsError: isError}); err != nil {
		logger.Debugf("chatexec: dropping tool-result frame: %v", err)
	}
}

func (s *streamWriter) sendApprovalRequired(call ToolCall) {
	if err := s.send(uiFrame{Type: frameApprovalRequired, ToolCall: &call, ToolCallID: call.ID}); err != nil {
		logger.Debugf("chatexec: dropping approval frame: %v", err)
	}
}

func (s *streamWriter) sendFinish(reason string) {
	if err := s.send(uiFrame{Type: FrameFinish, FinishReason: reason}); err != nil {
		logger.Debugf("chatexec: dropping finish frame: %v", err)
	}
}

// sendError emits the terminal error chunk for failures after headers were
// sent. The taxonomy code rides along so the client can distinguish a
// backend outage from a timeout.
func (s *streamWriter) sendError(err error) {
	apiErr := apierrors.As(err)
	if sendErr := s.send(uiFrame{Type: FrameError, Code: string(apiErr.Code), Message: apiErr.Message}); sendErr != nil {
		logger.Debugf("chatexec: dropping error frame: %v", sendErr)
	}
}
