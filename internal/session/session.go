// Package session defines the per-connection state unit described in
// spec.md §3. A Session is created on first frame for a new session id and
// discarded when the transport closes; the handler mutates it in place.
package session

import (
	"encoding/json"
	"sync"

	"graphqlws/internal/registry"
)

// Session is the lifetime unit for one WebSocket connection. Its exported
// methods are safe for concurrent use so a transport that delivers frames
// concurrently doesn't need its own locking (spec.md §5).
type Session struct {
	// ID is a stable identifier for this connection, supplied by the
	// transport (spec.md §6 transport contract).
	ID string

	Registry *registry.Registry

	// CloseFunc, if set by the transport, closes the underlying
	// connection. The handler invokes it exactly once, on
	// connection_terminate (spec.md §3 invariant #4).
	CloseFunc func()

	mu               sync.Mutex
	initialized      bool
	keepAliveStarted bool
	connectionParams json.RawMessage
	closeOnce        sync.Once
}

// Close invokes CloseFunc exactly once, regardless of how many times Close
// is called. A nil CloseFunc makes Close a no-op, so sessions built in
// tests without a real transport remain safe to terminate.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.CloseFunc != nil {
			s.CloseFunc()
		}
	})
}

// New creates a fresh, uninitialized session.
func New(id string) *Session {
	return &Session{
		ID:       id,
		Registry: registry.New(),
	}
}

// Initialized reports whether connection_init has completed successfully.
func (s *Session) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// MarkInitialized sets initialized=true. Called once onConnect succeeds.
func (s *Session) MarkInitialized() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = true
}

// SetConnectionParams records the payload of connection_init, retained for
// hook calls (spec.md §3).
func (s *Session) SetConnectionParams(params json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectionParams = params
}

// ConnectionParams returns the payload recorded by SetConnectionParams, or
// nil if connection_init hasn't happened yet.
func (s *Session) ConnectionParams() json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectionParams
}

// TryStartKeepAlive returns true exactly once per session: the first
// caller wins and is responsible for actually starting the keep-alive
// producer (spec.md §4.C: "only the first connection_init on a given
// session subscribes to it").
func (s *Session) TryStartKeepAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keepAliveStarted {
		return false
	}
	s.keepAliveStarted = true
	return true
}
