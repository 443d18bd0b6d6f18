// Package sessionmanager implements the per-request registry of live MCP
// sessions. A Manager is created fresh for each inbound HTTP request, used
// to run one or more MCP operations against possibly several backend
// servers, and then torn down on every exit path via DisconnectAll.
//
// Entries use a lazy-create-under-lock map keyed by server name, with
// single-flight connect semantics: concurrent callers for the same key
// await one in-flight Connect rather than dialing twice. Unlike a
// connection pool with a TTL/reap cycle, this Manager never reaps on a
// timer: its entire lifetime is bounded by one inbound request, and
// teardown only ever happens via explicit DisconnectAll.
package sessionmanager

import (
	"context"
	"sync"

	"github.com/mcpjam/hosted-gateway/pkg/apierrors"
	"github.com/mcpjam/hosted-gateway/pkg/logger"
	"github.com/mcpjam/hosted-gateway/pkg/mcpsession"
)

// Factory creates a not-yet-connected session for the given server URL.
// Exists so Manager can be unit tested with an instrumented constructor;
// production callers pass mcpsession.New.
type Factory func(serverURL string, opts ...mcpsession.Option) *mcpsession.Session

// entry tracks one key's connection attempt so concurrent callers for the
// same key share a single Connect instead of racing to dial twice.
type entry struct {
	ready   chan struct{}
	session *mcpsession.Session
	err     error
}

// Manager is a keyed registry of live MCP sessions scoped to a single
// inbound request. It is safe for concurrent use.
type Manager struct {
	factory Factory

	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty Manager. newSession is typically mcpsession.New.
func New(newSession Factory) *Manager {
	return &Manager{
		factory: newSession,
		entries: make(map[string]*entry),
	}
}

// EnsureConnected returns a Live session for key/serverURL, connecting it if
// this is the first request for key. Concurrent callers for the same key
// block on the same in-flight connect attempt rather than each dialing
// their own session. A failed connect clears the key so a later call gets a
// fresh attempt instead of a poisoned cache entry.
func (m *Manager) EnsureConnected(ctx context.Context, key, serverURL string, opts ...mcpsession.Option) (*mcpsession.Session, error) {
	m.mu.Lock()
	if e, ok := m.entries[key]; ok {
		m.mu.Unlock()
		<-e.ready
		return e.session, e.err
	}

	e := &entry{ready: make(chan struct{})}
	m.entries[key] = e
	m.mu.Unlock()

	session := m.factory(serverURL, opts...)

	err := session.Connect(ctx)
	if err != nil {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		e.err = err
		close(e.ready)
		return nil, err
	}

	e.session = session
	close(e.ready)
	return session, nil
}

// Get returns the already-connected session for key, if any.
func (m *Manager) Get(key string) (*mcpsession.Session, bool) {
	m.mu.Lock()
	e, ok := m.entries[key]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	<-e.ready
	if e.err != nil {
		return nil, false
	}
	return e.session, true
}

// Keys returns the set of keys with a live or in-flight session.
func (m *Manager) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	return keys
}

// DisconnectAll closes every session this Manager holds, concurrently, and
// tolerates partial failures: one backend failing to close cleanly never
// prevents the others from being torn down. It is idempotent; calling it
// more than once (success path then a deferred safety-net, or concurrent
// cancellation paths) is safe because Session.Close is itself idempotent.
//
// This is the teardown hook the Request-Scoped Session Pattern requires on
// every exit path: success, error, or panic recovery in the caller.
func (m *Manager) DisconnectAll(ctx context.Context) error {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	// Empty the map up front: after DisconnectAll returns (and during it),
	// Get and EnsureConnected must not hand out sessions being torn down.
	m.entries = make(map[string]*entry)
	m.mu.Unlock()

	var wg sync.WaitGroup
	errs := make([]error, len(entries))
	for i, e := range entries {
		wg.Add(1)
		go func(i int, e *entry) {
			defer wg.Done()
			<-e.ready
			if e.session == nil {
				return
			}
			if err := e.session.Close(); err != nil {
				logger.Warnf("sessionmanager: error closing session %s: %v", e.session.ID(), err)
				errs[i] = err
			}
		}(i, e)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return apierrors.NewInternal("one or more sessions failed to disconnect cleanly", err)
		}
	}
	return nil
}
