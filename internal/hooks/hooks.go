// Package hooks adapts the four user-supplied lifecycle hooks
// (spec.md §4.D) into a uniform Invoker the handler can call without
// caring whether a hook is absent, synchronous, or backed by an async
// effect. onConnect and onOperation are additionally guarded by a
// sony/gobreaker circuit breaker per session-independent hook, so a
// flaky hook implementation degrades to fast failures instead of
// repeatedly stalling every new connection/operation.
package hooks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sony/gobreaker/v2"

	"graphqlws/internal/logger"
	"graphqlws/internal/protoerr"
	"graphqlws/internal/session"
)

// ConnectFunc validates/consumes connection_init's payload.
type ConnectFunc func(ctx context.Context, connectionParams json.RawMessage, sess *session.Session) error

// OperationFunc runs before a start is executed.
type OperationFunc func(ctx context.Context, connectionParams json.RawMessage, sess *session.Session, operationID string) error

// OperationCompleteFunc runs on stop or end-of-stream. Its error, if any,
// is logged and never propagated (spec.md §4.D).
type OperationCompleteFunc func(ctx context.Context, sess *session.Session) error

// DisconnectFunc runs on connection_terminate. Its error, if any, is
// logged and never propagated (spec.md §4.D).
type DisconnectFunc func(ctx context.Context, sess *session.Session, connectionParams json.RawMessage) error

func noopConnect(context.Context, json.RawMessage, *session.Session) error { return nil }
func noopOperation(context.Context, json.RawMessage, *session.Session, string) error { return nil }
func noopOperationComplete(context.Context, *session.Session) error { return nil }
func noopDisconnect(context.Context, *session.Session, json.RawMessage) error { return nil }

// Hooks collects the four lifecycle callbacks. Any nil field defaults to a
// no-op so callers without custom hooks need not configure anything
// (spec.md §4.D).
type Hooks struct {
	OnConnect           ConnectFunc
	OnOperation         OperationFunc
	OnOperationComplete OperationCompleteFunc
	OnDisconnect        DisconnectFunc
}

// Default returns a Hooks value whose every field is a no-op.
func Default() Hooks {
	return Hooks{
		OnConnect:           noopConnect,
		OnOperation:         noopOperation,
		OnOperationComplete: noopOperationComplete,
		OnDisconnect:        noopDisconnect,
	}
}

// normalize fills in no-op defaults for any unset field.
func (h Hooks) normalize() Hooks {
	if h.OnConnect == nil {
		h.OnConnect = noopConnect
	}
	if h.OnOperation == nil {
		h.OnOperation = noopOperation
	}
	if h.OnOperationComplete == nil {
		h.OnOperationComplete = noopOperationComplete
	}
	if h.OnDisconnect == nil {
		h.OnDisconnect = noopDisconnect
	}
	return h
}

// Invoker is the uniform entry point the handler calls at each lifecycle
// point; it owns the circuit breakers guarding OnConnect and OnOperation.
type Invoker struct {
	hooks Hooks

	connectBreaker   *gobreaker.CircuitBreaker[struct{}]
	operationBreaker *gobreaker.CircuitBreaker[struct{}]
}

// NewInvoker builds an Invoker from the given hooks, defaulting any unset
// field to a no-op.
func NewInvoker(h Hooks) *Invoker {
	h = h.normalize()

	breakerSettings := func(name string) gobreaker.Settings {
		return gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.L().Sugar().Warnf("hook circuit breaker %s: %s -> %s", name, from, to)
			},
		}
	}

	return &Invoker{
		hooks:            h,
		connectBreaker:   gobreaker.NewCircuitBreaker[struct{}](breakerSettings("onConnect")),
		operationBreaker: gobreaker.NewCircuitBreaker[struct{}](breakerSettings("onOperation")),
	}
}

// Connect invokes onConnect. Its failure means no connection_ack is sent
// (spec.md §4.D).
func (inv *Invoker) Connect(ctx context.Context, connectionParams json.RawMessage, sess *session.Session) error {
	_, err := inv.connectBreaker.Execute(func() (struct{}, error) {
		return struct{}{}, inv.hooks.OnConnect(ctx, connectionParams, sess)
	})
	return err
}

// Operation invokes onOperation before a start is executed. Its failure
// converts the operation's outbound sequence to a single error envelope
// (spec.md §4.D).
func (inv *Invoker) Operation(ctx context.Context, connectionParams json.RawMessage, sess *session.Session, operationID string) error {
	_, err := inv.operationBreaker.Execute(func() (struct{}, error) {
		return struct{}{}, inv.hooks.OnOperation(ctx, connectionParams, sess, operationID)
	})
	return err
}

// OperationComplete invokes onOperationComplete, logging (not returning)
// any failure per spec.md §4.D.
func (inv *Invoker) OperationComplete(ctx context.Context, sess *session.Session) {
	if err := inv.hooks.OnOperationComplete(ctx, sess); err != nil {
		taxErr := protoerr.NewHookFailureError(protoerr.CodeHookOnOpComplete, "", err)
		logger.WithSession(sess.ID).Sugar().Warnw("onOperationComplete hook failed", "error", taxErr)
	}
}

// Disconnect invokes onDisconnect, logging (not returning) any failure per
// spec.md §4.D. The transport close proceeds regardless.
func (inv *Invoker) Disconnect(ctx context.Context, sess *session.Session, connectionParams json.RawMessage) {
	if err := inv.hooks.OnDisconnect(ctx, sess, connectionParams); err != nil {
		taxErr := protoerr.NewHookFailureError(protoerr.CodeHookOnDisconnect, "", err)
		logger.WithSession(sess.ID).Sugar().Warnw("onDisconnect hook failed", "error", taxErr)
	}
}
