// Package mcpsession implements a single MCP client session against one
// remote, third-party MCP server: transport selection, the initialize
// handshake, and the state machine a request-scoped session moves through.
//
// Transport selection probes streamable-HTTP first with a bounded timeout
// and falls back to SSE, wrapped in a thin per-server client with a
// mutex-guarded Connect/Close lifecycle.
package mcpsession

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mcpjam/hosted-gateway/pkg/apierrors"
	"github.com/mcpjam/hosted-gateway/pkg/logger"
	"github.com/mcpjam/hosted-gateway/pkg/metrics"
)

// State is the lifecycle stage of a Session.
type State int

const (
	StateFresh State = iota
	StateConnecting
	StateLive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateConnecting:
		return "connecting"
	case StateLive:
		return "live"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// clientName/clientVersion identify this gateway to upstream MCP servers in
// the Initialize handshake.
const (
	clientName    = "mcp-hosted-gateway"
	clientVersion = "1.0.0"
)

// handshakeProbeCap bounds the time a streamable-HTTP attempt is allowed to
// take before the session falls back to SSE, independent of the caller's
// own configured timeout: min(configTimeout, 3s).
const handshakeProbeCap = 3 * time.Second

// NotificationHandler is invoked for every server-to-client notification.
// Handlers are called in registration order; a panicking or slow handler
// must never prevent the others from running.
type NotificationHandler func(notification mcp.JSONRPCNotification)

// ElicitationHandler answers a server-initiated elicitation request. Only
// one may be registered per Session.
type ElicitationHandler func(ctx context.Context, req mcp.ElicitationRequest) (*mcp.ElicitationResult, error)

// Session is a single connection to one upstream MCP server. It is safe for
// concurrent use; all mutable state is behind mu.
type Session struct {
	id        string
	serverURL string
	transport string // explicit override, or "auto"
	headers   map[string]string

	mu              sync.RWMutex
	state           State
	inner           *client.Client
	activeTransport string

	notifyMu   sync.RWMutex
	notify     map[string][]*notifyEntry
	nextNotify int
	elicit     ElicitationHandler
}

// notifyEntry keeps a handler's registration order so removal can be
// by-identity even though funcs are not comparable.
type notifyEntry struct {
	id      int
	handler NotificationHandler
}

// Option configures a Session at construction.
type Option func(*Session)

// WithTransport pins the transport instead of auto-detecting it from the
// server URL's path suffix.
func WithTransport(transport string) Option {
	return func(s *Session) { s.transport = transport }
}

// WithHeaders attaches static headers (workspace-configured secrets, plus
// the caller's forwarded OAuth bearer when the server descriptor requires
// it) to every outbound request this session makes. The caller must build
// this map immediately before connecting and never persist it.
func WithHeaders(headers map[string]string) Option {
	return func(s *Session) { s.headers = headers }
}

// New creates a Fresh Session for serverURL. Connect must be called before
// any MCP operation.
func New(serverURL string, opts ...Option) *Session {
	s := &Session{
		id:        uuid.NewString(),
		serverURL: serverURL,
		transport: "auto",
		state:     StateFresh,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID is the gateway-assigned identifier for this session, not the MCP
// protocol session id the transport may separately negotiate.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SessionID returns the MCP protocol session id negotiated by the
// streamable-HTTP transport. It is empty for SSE sessions and for sessions
// that are not Live: the id only exists while the transport holds it.
func (s *Session) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateLive || s.activeTransport != "streamable-http" || s.inner == nil {
		return ""
	}
	return s.inner.GetSessionId()
}

// preferSSE short-circuits transport auto-detection when the URL's path
// plainly names the legacy SSE endpoint.
func preferSSE(serverURL string) bool {
	return strings.HasSuffix(strings.TrimRight(serverURL, "/"), "/sse")
}

func isStreamablePath(serverURL string) bool {
	trimmed := strings.TrimRight(serverURL, "/")
	return strings.HasSuffix(trimmed, "/mcp")
}

// Connect dials the upstream server. A pinned transport ("sse" or
// "streamable-http"), or in auto mode a URL ending in /sse or /mcp, dials
// only that transport using the caller's full timeout, with no fallback.
// Otherwise, in auto mode, streamable-HTTP is attempted first, bounded by
// min(ctx deadline, 3s), and on failure the session falls back to HTTP-SSE
// using the caller's full timeout.
// Connect transitions Fresh -> Connecting -> Live, or back to Fresh on
// failure so a caller may retry.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateFresh {
		state := s.state
		s.mu.Unlock()
		return apierrors.NewInternal(fmt.Sprintf("session %s: Connect called in state %s", s.id, state), nil)
	}
	s.state = StateConnecting
	s.mu.Unlock()

	inner, activeTransport, err := s.dial(ctx)
	if err != nil {
		s.mu.Lock()
		s.state = StateFresh
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.inner = inner
	s.activeTransport = activeTransport
	s.state = StateLive
	s.mu.Unlock()
	metrics.SessionsOpened.Inc()
	return nil
}

func (s *Session) dial(ctx context.Context) (*client.Client, string, error) {
	wantSSE := s.transport == "sse" || (s.transport == "auto" && preferSSE(s.serverURL))
	wantStreamable := s.transport == "streamable-http" || (s.transport == "auto" && isStreamablePath(s.serverURL))

	if s.transport != "auto" && s.transport != "sse" && s.transport != "streamable-http" {
		return nil, "", apierrors.NewFeatureNotSupported(fmt.Sprintf("transport %q is not supported for hosted MCP sessions", s.transport), nil)
	}

	if wantSSE {
		inner, err := s.dialSSE(ctx)
		return inner, "sse", err
	}
	if wantStreamable {
		inner, err := s.dialStreamable(ctx)
		return inner, "streamable-http", err
	}

	// Auto: try streamable-HTTP first, bounded; fall back to SSE. A
	// SERVER_UNREACHABLE result must carry both underlying reasons.
	probeCtx, cancel := context.WithTimeout(ctx, handshakeProbeCap)
	defer cancel()
	inner, streamableErr := s.dialStreamable(probeCtx)
	if streamableErr == nil {
		return inner, "streamable-http", nil
	}
	logger.Debugf("session %s: streamable-HTTP probe failed, falling back to SSE: %v", s.id, streamableErr)

	inner, sseErr := s.dialSSE(ctx)
	if sseErr != nil {
		return nil, "", apierrors.NewServerUnreachable(
			fmt.Sprintf("both transports failed (streamable-http: %v; sse: %v)", streamableErr, sseErr), sseErr)
	}
	return inner, "sse", nil
}

func (s *Session) dialStreamable(ctx context.Context) (*client.Client, error) {
	var opts []transport.StreamableHTTPCOption
	if len(s.headers) > 0 {
		opts = append(opts, transport.WithHTTPHeaders(s.headers))
	}
	t, err := transport.NewStreamableHTTP(s.serverURL, opts...)
	if err != nil {
		return nil, apierrors.NewServerUnreachable("failed to create streamable-HTTP MCP client", err)
	}
	inner := client.NewClient(t, client.WithElicitationHandler(elicitationBridge{s}))
	if err := s.startAndInitialize(ctx, inner); err != nil {
		_ = inner.Close()
		return nil, err
	}
	return inner, nil
}

func (s *Session) dialSSE(ctx context.Context) (*client.Client, error) {
	var opts []transport.ClientOption
	if len(s.headers) > 0 {
		opts = append(opts, transport.WithHeaders(s.headers))
	}
	t, err := transport.NewSSE(s.serverURL, opts...)
	if err != nil {
		return nil, apierrors.NewServerUnreachable("failed to create SSE MCP client", err)
	}
	inner := client.NewClient(t, client.WithElicitationHandler(elicitationBridge{s}))
	if err := s.startAndInitialize(ctx, inner); err != nil {
		_ = inner.Close()
		return nil, err
	}
	return inner, nil
}

// elicitationBridge answers the client's server-initiated elicitation
// requests by delegating to whichever handler is registered on the Session
// at the time the request arrives. Installing the bridge at construction
// also makes the client declare the elicitation capability during the
// initialize handshake, so every session advertises it regardless of
// whether a handler has been registered yet.
type elicitationBridge struct{ s *Session }

func (b elicitationBridge) Elicit(ctx context.Context, req mcp.ElicitationRequest) (*mcp.ElicitationResult, error) {
	b.s.notifyMu.RLock()
	h := b.s.elicit
	b.s.notifyMu.RUnlock()
	if h == nil {
		return nil, fmt.Errorf("no elicitation handler registered for this session")
	}
	return h(ctx, req)
}

func (s *Session) startAndInitialize(ctx context.Context, inner *client.Client) error {
	op := func() (struct{}, error) {
		if err := inner.Start(ctx); err != nil {
			return struct{}{}, fmt.Errorf("start transport: %w", err)
		}
		return struct{}{}, nil
	}
	// A single bounded retry on transport start smooths over transient
	// connection races without masking a genuinely unreachable server.
	if _, err := backoff.Retry(ctx, op, backoff.WithMaxTries(2)); err != nil {
		return classifyDialError(err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.Capabilities = mcp.ClientCapabilities{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: clientVersion}

	if _, err := inner.Initialize(ctx, initReq); err != nil {
		return classifyDialError(err)
	}

	inner.OnNotification(func(n mcp.JSONRPCNotification) {
		s.dispatchNotification(n)
	})

	return nil
}

func classifyDialError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apierrors.NewTimeout("timed out establishing MCP session", err)
	}
	return apierrors.NewServerUnreachable("failed to establish MCP session", err)
}

// NotifyAllMethods subscribes a handler to every notification method.
const NotifyAllMethods = "*"

// dispatchNotification fans a server notification out to the handlers
// registered for its method (plus wildcard subscribers). The handler list
// is snapshotted first so no lock is held during user callbacks, and each
// handler is isolated so one panicking never starves the rest.
func (s *Session) dispatchNotification(n mcp.JSONRPCNotification) {
	s.notifyMu.RLock()
	entries := make([]*notifyEntry, 0,
		len(s.notify[n.Method])+len(s.notify[NotifyAllMethods]))
	entries = append(entries, s.notify[n.Method]...)
	entries = append(entries, s.notify[NotifyAllMethods]...)
	s.notifyMu.RUnlock()

	for _, e := range entries {
		func(h NotificationHandler) {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("session %s: notification handler panicked: %v", s.id, r)
				}
			}()
			h(n)
		}(e.handler)
	}
}

// AddNotificationHandler registers h for notifications whose method matches
// method (NotifyAllMethods subscribes to everything), in addition to any
// already registered. Handlers for the same method run in registration
// order. The returned function removes exactly this registration; after it
// returns, h is never invoked again.
func (s *Session) AddNotificationHandler(method string, h NotificationHandler) (remove func()) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if s.notify == nil {
		s.notify = make(map[string][]*notifyEntry)
	}
	entry := &notifyEntry{id: s.nextNotify, handler: h}
	s.nextNotify++
	s.notify[method] = append(s.notify[method], entry)

	return func() {
		s.notifyMu.Lock()
		defer s.notifyMu.Unlock()
		entries := s.notify[method]
		for i, e := range entries {
			if e.id == entry.id {
				s.notify[method] = append(entries[:i:i], entries[i+1:]...)
				return
			}
		}
	}
}

// SetElicitationHandler installs the single handler used to answer
// server-initiated elicitation requests. A later call replaces the former.
func (s *Session) SetElicitationHandler(h ElicitationHandler) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.elicit = h
}

// Close tears the session down. It is idempotent and safe to call multiple
// times or concurrently; only the first caller performs the real teardown.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateClosed || s.state == StateClosing {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosing
	inner := s.inner
	s.mu.Unlock()

	var err error
	if inner != nil {
		err = inner.Close()
		metrics.SessionsClosed.Inc()
	}

	s.mu.Lock()
	s.state = StateClosed
	s.inner = nil
	s.mu.Unlock()

	return err
}

func (s *Session) client() (*client.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateLive || s.inner == nil {
		return nil, apierrors.NewInternal(fmt.Sprintf("session %s: operation attempted in state %s", s.id, s.state), nil)
	}
	return s.inner, nil
}
