// Package handler implements the graphql-ws (legacy) protocol state
// machine (spec.md §4.E): it classifies each inbound frame, mutates
// session state, and produces the outbound sequence the transport emits
// to the peer. This is the component the rest of the repository exists to
// support — the codec, registry, keep-alive source, and hook invoker are
// all consulted from here.
package handler

import (
	"context"
	"time"

	"graphqlws/internal/executor"
	"graphqlws/internal/hooks"
	"graphqlws/internal/keepalive"
	"graphqlws/internal/logger"
	"graphqlws/internal/protoerr"
	"graphqlws/internal/protocol"
	"graphqlws/internal/registry"
	"graphqlws/internal/session"
)

// Config configures a Handler.
type Config struct {
	Executor executor.Executor
	Hooks    hooks.Hooks
	// KeepAliveInterval enables the per-session keep-alive ticker when
	// positive (spec.md §3 invariant #3, §6).
	KeepAliveInterval time.Duration
}

// Handler is the protocol state machine. One Handler instance is shared
// across every session it serves; all session-scoped state lives on the
// *session.Session passed into Handle.
type Handler struct {
	executor executor.Executor
	hooks    *hooks.Invoker
	kaSource *keepalive.Source
}

// New builds a Handler from cfg.
func New(cfg Config) *Handler {
	return &Handler{
		executor: cfg.Executor,
		hooks:    hooks.NewInvoker(cfg.Hooks),
		kaSource: keepalive.New(cfg.KeepAliveInterval),
	}
}

// Handle is the handler's single operation: given a raw inbound frame and
// the session it belongs to, it returns a lazy sequence of outbound
// envelopes. The onConnect and onOperation hooks and the executor's
// ExecuteSubscription call run synchronously on the caller's goroutine,
// so Handle does not return until they have; emitting the outbound
// envelopes happens in the returned channel's producer goroutine, if any.
func (h *Handler) Handle(ctx context.Context, frame []byte, sess *session.Session) <-chan protocol.Message {
	msg, err := protocol.Decode(frame)
	if err != nil {
		logger.WithSession(sess.ID).Sugar().Debugw("frame decode failed", "error", err)
		return single(protocol.ConnectionError(""))
	}

	if !protocol.IsKnownClientType(msg.Type) {
		taxErr := protoerr.NewUnknownMessageTypeError(msg.Type)
		logger.WithSession(sess.ID).Sugar().Debugw("unrecognized message type", "error", taxErr)
		return single(protocol.ConnectionError(msg.ID))
	}

	switch msg.Type {
	case protocol.TypeConnectionInit:
		return h.handleConnectionInit(ctx, *msg, sess)
	case protocol.TypeStart:
		return h.handleStart(ctx, *msg, sess)
	case protocol.TypeStop:
		return h.handleStop(sess, *msg)
	case protocol.TypeConnectionTerminate:
		return h.handleConnectionTerminate(sess)
	default:
		// Unreachable: IsKnownClientType above already narrowed msg.Type
		// to one of the four cases above.
		return single(protocol.ConnectionError(msg.ID))
	}
}

func (h *Handler) handleConnectionInit(ctx context.Context, msg protocol.Message, sess *session.Session) <-chan protocol.Message {
	sess.SetConnectionParams(msg.Payload)

	if err := h.hooks.Connect(ctx, msg.Payload, sess); err != nil {
		taxErr := protoerr.NewHookFailureError(protoerr.CodeHookOnConnect, msg.ID, err)
		logger.WithSession(sess.ID).Sugar().Warnw("onConnect hook failed", "error", taxErr)
		return single(protocol.ConnectionError(msg.ID))
	}

	sess.MarkInitialized()

	out := make(chan protocol.Message, 1)
	out <- protocol.Ack()

	// The keep-alive ticker is only started when the interval is
	// positive, this is the first time it is started on this session,
	// AND the init frame carried an id. The id requirement is preserved
	// bit-for-bit from the source behavior this protocol was distilled
	// from; see DESIGN.md for the rationale.
	if h.kaSource.Enabled() && msg.ID != "" && sess.TryStartKeepAlive() {
		kaCh := h.kaSource.Start(ctx)
		go func() {
			defer close(out)
			for {
				select {
				case m, ok := <-kaCh:
					if !ok {
						return
					}
					select {
					case out <- m:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}()
		return out
	}

	close(out)
	return out
}

func (h *Handler) handleStart(ctx context.Context, msg protocol.Message, sess *session.Session) <-chan protocol.Message {
	if msg.ID == "" {
		taxErr := protoerr.NewMissingOperationIDError()
		logger.WithSession(sess.ID).Sugar().Debugw("start frame rejected", "error", taxErr)
		return single(protocol.ConnectionError(""))
	}

	req, err := protocol.DecodeGraphQLRequest(msg.ID, msg.Payload)
	if err != nil {
		logger.WithOperation(sess.ID, msg.ID).Sugar().Debugw("start payload decode failed", "error", err)
		return single(protocol.ConnectionError(msg.ID))
	}

	execCtx, execCancel := context.WithCancel(ctx)

	if !sess.Registry.TryInsert(msg.ID, registry.CancelFunc(execCancel)) {
		// Duplicate operation id: spec.md §3 invariant #2 — silent
		// drop, no execution, empty outbound sequence.
		execCancel()
		return empty()
	}

	connectionParams := sess.ConnectionParams()
	if err := h.hooks.Operation(execCtx, connectionParams, sess, msg.ID); err != nil {
		sess.Registry.Remove(msg.ID)
		execCancel()
		taxErr := protoerr.NewHookFailureError(protoerr.CodeHookOnOperation, msg.ID, err)
		logger.WithOperation(sess.ID, msg.ID).Sugar().Warnw("onOperation hook failed", "error", taxErr)
		return single(protocol.ErrorEnvelope(msg.ID, taxErr.Error()))
	}

	respCh, errCh := h.executor.ExecuteSubscription(execCtx, *req)

	out := make(chan protocol.Message)
	go h.runOperation(execCtx, sess, msg.ID, respCh, errCh, out)
	return out
}

// runOperation drains an executor's response sequence, tagging each
// element for operation id, until the sequence ends, fails, or execCtx is
// cancelled. execCtx is cancelled both by an explicit stop/terminate and
// by the caller's own ctx dying; either way spec.md §5 treats that as
// "downstream cancellation" — the registry entry is removed silently,
// with no final complete or error on this operation's own sequence. A
// stop's confirmation to the client is carried on stop's own returned
// sequence instead (see handleStop), matching spec.md §8 scenario 5.
func (h *Handler) runOperation(execCtx context.Context, sess *session.Session, id string, respCh <-chan protocol.GraphQLResponse, errCh <-chan error, out chan<- protocol.Message) {
	defer close(out)

	for {
		select {
		case <-execCtx.Done():
			sess.Registry.Remove(id)
			return

		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				if errCh == nil {
					h.finishOperation(execCtx, sess, id, out)
					return
				}
				continue
			}
			select {
			case out <- protocol.Data(id, resp):
			case <-execCtx.Done():
				sess.Registry.Remove(id)
				return
			}

		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				if respCh == nil {
					h.finishOperation(execCtx, sess, id, out)
					return
				}
				continue
			}
			h.failOperation(execCtx, sess, id, err, out)
			return
		}
	}
}

// finishOperation handles normal end-of-stream: emit complete, remove from
// the registry, and fire the onOperationComplete hook (spec.md §4.E start
// step 6).
func (h *Handler) finishOperation(execCtx context.Context, sess *session.Session, id string, out chan<- protocol.Message) {
	if sess.Registry.Remove(id) == nil {
		// Already removed via stop/terminate racing with completion.
		return
	}
	select {
	case out <- protocol.Complete(id):
	case <-execCtx.Done():
		return
	}
	go h.hooks.OperationComplete(context.Background(), sess)
}

// failOperation handles an executor failure: emit a single error envelope,
// remove from the registry, and fire onOperationComplete (spec.md §4.E
// start step 7).
func (h *Handler) failOperation(execCtx context.Context, sess *session.Session, id string, err error, out chan<- protocol.Message) {
	if sess.Registry.Remove(id) == nil {
		return
	}
	taxErr := protoerr.NewExecutorFailureError(id, err)
	logger.WithOperation(sess.ID, id).Sugar().Warnw("executor failed", "error", taxErr)
	select {
	case out <- protocol.ErrorEnvelope(id, taxErr.Error()):
	case <-execCtx.Done():
		return
	}
	go h.hooks.OperationComplete(context.Background(), sess)
}

func (h *Handler) handleStop(sess *session.Session, msg protocol.Message) <-chan protocol.Message {
	if msg.ID == "" {
		return empty()
	}

	handle := sess.Registry.Remove(msg.ID)
	if handle == nil {
		return empty()
	}

	handle.Cancel()
	go h.hooks.OperationComplete(context.Background(), sess)

	return single(protocol.Complete(msg.ID))
}

func (h *Handler) handleConnectionTerminate(sess *session.Session) <-chan protocol.Message {
	go h.hooks.Disconnect(context.Background(), sess, sess.ConnectionParams())

	for _, handle := range sess.Registry.DrainAll() {
		handle.Cancel()
	}

	sess.Close()

	return empty()
}

func single(msg protocol.Message) <-chan protocol.Message {
	out := make(chan protocol.Message, 1)
	out <- msg
	close(out)
	return out
}

func empty() <-chan protocol.Message {
	out := make(chan protocol.Message)
	close(out)
	return out
}
