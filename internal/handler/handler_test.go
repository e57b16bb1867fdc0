package handler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphqlws/internal/executor"
	"graphqlws/internal/hooks"
	"graphqlws/internal/protocol"
	"graphqlws/internal/session"
)

// scriptedExecutor lets a test control exactly what a subscription
// executes: one response at a time, pushed from the test goroutine.
type scriptedExecutor struct {
	calls   int
	respCh  chan protocol.GraphQLResponse
	errCh   chan error
	lastCtx context.Context
}

func newScriptedExecutor() *scriptedExecutor {
	return &scriptedExecutor{
		respCh: make(chan protocol.GraphQLResponse, 4),
		errCh:  make(chan error, 1),
	}
}

func (e *scriptedExecutor) ExecuteSubscription(ctx context.Context, req protocol.GraphQLRequest) (<-chan protocol.GraphQLResponse, <-chan error) {
	e.calls++
	e.lastCtx = ctx
	return e.respCh, e.errCh
}

func drain(t *testing.T, ch <-chan protocol.Message, timeout time.Duration) []protocol.Message {
	t.Helper()
	var got []protocol.Message
	deadline := time.After(timeout)
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, msg)
		case <-deadline:
			t.Fatalf("timed out waiting for channel to close, got so far: %+v", got)
		}
	}
}

func newTestHandler(exec executor.Executor, h hooks.Hooks, keepAlive time.Duration) *Handler {
	return New(Config{Executor: exec, Hooks: h, KeepAliveInterval: keepAlive})
}

// Scenario 1: undecodable frame.
func TestScenario_UndecodableFrame(t *testing.T) {
	h := newTestHandler(nil, hooks.Default(), 0)
	sess := session.New("s1")

	out := h.Handle(context.Background(), []byte(""), sess)
	got := drain(t, out, time.Second)

	require.Len(t, got, 1)
	assert.Equal(t, protocol.TypeConnectionError, got[0].Type)
	assert.Empty(t, got[0].ID)
}

// Scenario 2: init with keep-alive disabled.
func TestScenario_InitKeepAliveDisabled(t *testing.T) {
	h := newTestHandler(nil, hooks.Default(), 0)
	sess := session.New("s1")

	out := h.Handle(context.Background(), []byte(`{"type":"connection_init"}`), sess)
	got := drain(t, out, time.Second)

	require.Len(t, got, 1)
	assert.Equal(t, protocol.TypeConnectionAck, got[0].Type)
	assert.True(t, sess.Initialized())
}

// Scenario 3: init with id and keep-alive enabled streams ack then ka forever.
func TestScenario_InitWithIDStartsKeepAlive(t *testing.T) {
	h := newTestHandler(nil, hooks.Default(), 15*time.Millisecond)
	sess := session.New("s1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := h.Handle(ctx, []byte(`{"type":"connection_init","id":"abc"}`), sess)

	first := <-out
	assert.Equal(t, protocol.TypeConnectionAck, first.Type)

	second := <-out
	assert.Equal(t, protocol.TypeKeepAlive, second.Type)

	third := <-out
	assert.Equal(t, protocol.TypeKeepAlive, third.Type)

	cancel()
	_, ok := <-out
	assert.False(t, ok, "keep-alive stream must stop once ctx is cancelled")
}

// Init without an id and a positive interval never starts the ticker
// (spec.md §9 open question #1: the id-gating quirk is preserved).
func TestInit_WithoutID_NeverStartsKeepAlive(t *testing.T) {
	h := newTestHandler(nil, hooks.Default(), 15*time.Millisecond)
	sess := session.New("s1")

	out := h.Handle(context.Background(), []byte(`{"type":"connection_init"}`), sess)
	got := drain(t, out, time.Second)

	require.Len(t, got, 1)
	assert.Equal(t, protocol.TypeConnectionAck, got[0].Type)
}

// Scenario 4: start with a valid request streams data then complete.
func TestScenario_StartValidRequest(t *testing.T) {
	exec := newScriptedExecutor()
	h := newTestHandler(exec, hooks.Default(), 0)
	sess := session.New("s1")

	initOut := h.Handle(context.Background(), []byte(`{"type":"connection_init"}`), sess)
	drain(t, initOut, time.Second)

	out := h.Handle(context.Background(), []byte(`{"type":"start","id":"abc","payload":{"query":"{ message }"}}`), sess)

	exec.respCh <- protocol.GraphQLResponse{Data: "myData"}
	close(exec.respCh)
	close(exec.errCh)

	got := drain(t, out, time.Second)
	require.Len(t, got, 2)
	assert.Equal(t, protocol.TypeData, got[0].Type)
	assert.Equal(t, "abc", got[0].ID)

	var resp protocol.GraphQLResponse
	require.NoError(t, json.Unmarshal(got[0].Payload, &resp))
	assert.Equal(t, "myData", resp.Data)

	assert.Equal(t, protocol.TypeComplete, got[1].Type)
	assert.Equal(t, "abc", got[1].ID)
	assert.Equal(t, 1, exec.calls)
}

// Scenario 5: start then stop.
func TestScenario_StartThenStop(t *testing.T) {
	exec := newScriptedExecutor()
	h := newTestHandler(exec, hooks.Default(), 0)
	sess := session.New("s1")

	startOut := h.Handle(context.Background(), []byte(`{"type":"start","id":"abc","payload":{"query":"{ message }"}}`), sess)

	stopOut := h.Handle(context.Background(), []byte(`{"type":"stop","id":"abc"}`), sess)
	stopGot := drain(t, stopOut, time.Second)
	require.Len(t, stopGot, 1)
	assert.Equal(t, protocol.TypeComplete, stopGot[0].Type)
	assert.Equal(t, "abc", stopGot[0].ID)

	startGot := drain(t, startOut, time.Second)
	assert.Empty(t, startGot, "start's own sequence must close with no further data once stopped")
}

// Scenario 6: duplicate start id is a silent no-op; executor runs once.
func TestScenario_DuplicateStartID(t *testing.T) {
	exec := newScriptedExecutor()
	h := newTestHandler(exec, hooks.Default(), 0)
	sess := session.New("s1")

	first := h.Handle(context.Background(), []byte(`{"type":"start","id":"abc","payload":{"query":"{ message }"}}`), sess)
	second := h.Handle(context.Background(), []byte(`{"type":"start","id":"abc","payload":{"query":"{ message }"}}`), sess)

	secondGot := drain(t, second, time.Second)
	assert.Empty(t, secondGot)
	assert.Equal(t, 1, exec.calls)

	exec.respCh <- protocol.GraphQLResponse{Data: "x"}
	close(exec.respCh)
	close(exec.errCh)
	firstGot := drain(t, first, time.Second)
	require.Len(t, firstGot, 2)
}

// Scenario 7: terminate drains operations, closes the transport, and
// fires onDisconnect exactly once.
func TestScenario_Terminate(t *testing.T) {
	var disconnects int
	var gotParams json.RawMessage
	h := newTestHandler(nil, hooks.Hooks{
		OnDisconnect: func(ctx context.Context, sess *session.Session, params json.RawMessage) error {
			disconnects++
			gotParams = params
			return nil
		},
	}, 0)
	sess := session.New("s1")

	var closed int
	sess.CloseFunc = func() { closed++ }

	initOut := h.Handle(context.Background(), []byte(`{"type":"connection_init","payload":{"token":"abc"}}`), sess)
	drain(t, initOut, time.Second)

	out := h.Handle(context.Background(), []byte(`{"type":"connection_terminate"}`), sess)
	got := drain(t, out, time.Second)
	assert.Empty(t, got)

	require.Eventually(t, func() bool { return disconnects == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, closed)
	assert.JSONEq(t, `{"token":"abc"}`, string(gotParams))
}

// Scenario 8: onConnect failure suppresses the ack; the error surfaces on
// a subsequent start instead.
func TestScenario_OnConnectFailureSuppressesAck(t *testing.T) {
	h := newTestHandler(nil, hooks.Hooks{
		OnConnect: func(ctx context.Context, params json.RawMessage, sess *session.Session) error {
			return errors.New("rejected")
		},
	}, 0)
	sess := session.New("s1")

	initOut := h.Handle(context.Background(), []byte(`{"type":"connection_init","id":"init-1"}`), sess)
	initGot := drain(t, initOut, time.Second)
	require.Len(t, initGot, 1)
	assert.Equal(t, protocol.TypeConnectionError, initGot[0].Type)
	assert.False(t, sess.Initialized())

	startOut := h.Handle(context.Background(), []byte(`{"type":"start","id":"op-1","payload":{"query":"{ x }"}}`), sess)
	startGot := drain(t, startOut, time.Second)
	require.Len(t, startGot, 1)
	assert.Equal(t, protocol.TypeConnectionError, startGot[0].Type)
}

func TestUnknownMessageType_EchoesID(t *testing.T) {
	h := newTestHandler(nil, hooks.Default(), 0)
	sess := session.New("s1")

	out := h.Handle(context.Background(), []byte(`{"type":"bogus","id":"xyz"}`), sess)
	got := drain(t, out, time.Second)
	require.Len(t, got, 1)
	assert.Equal(t, protocol.TypeConnectionError, got[0].Type)
	assert.Equal(t, "xyz", got[0].ID)
}

func TestStart_MissingID(t *testing.T) {
	h := newTestHandler(newScriptedExecutor(), hooks.Default(), 0)
	sess := session.New("s1")

	out := h.Handle(context.Background(), []byte(`{"type":"start","payload":{"query":"{ x }"}}`), sess)
	got := drain(t, out, time.Second)
	require.Len(t, got, 1)
	assert.Equal(t, protocol.TypeConnectionError, got[0].Type)
	assert.Empty(t, got[0].ID)
}

func TestStart_BadPayload(t *testing.T) {
	h := newTestHandler(newScriptedExecutor(), hooks.Default(), 0)
	sess := session.New("s1")

	out := h.Handle(context.Background(), []byte(`{"type":"start","id":"op1","payload":"not-an-object"}`), sess)
	got := drain(t, out, time.Second)
	require.Len(t, got, 1)
	assert.Equal(t, protocol.TypeConnectionError, got[0].Type)
	assert.Equal(t, "op1", got[0].ID)
}

func TestStart_OnOperationHookFailure(t *testing.T) {
	exec := newScriptedExecutor()
	h := newTestHandler(exec, hooks.Hooks{
		OnOperation: func(ctx context.Context, params json.RawMessage, sess *session.Session, operationID string) error {
			return errors.New("forbidden")
		},
	}, 0)
	sess := session.New("s1")

	out := h.Handle(context.Background(), []byte(`{"type":"start","id":"op1","payload":{"query":"{ x }"}}`), sess)
	got := drain(t, out, time.Second)
	require.Len(t, got, 1)
	assert.Equal(t, protocol.TypeError, got[0].Type)
	assert.Equal(t, "op1", got[0].ID)
	assert.Equal(t, 0, exec.calls, "executor must not run when onOperation fails")
	assert.Equal(t, 0, sess.Registry.Len())
}

func TestStart_ExecutorFailure(t *testing.T) {
	exec := newScriptedExecutor()
	h := newTestHandler(exec, hooks.Default(), 0)
	sess := session.New("s1")

	out := h.Handle(context.Background(), []byte(`{"type":"start","id":"op1","payload":{"query":"{ x }"}}`), sess)

	exec.errCh <- errors.New("upstream exploded")

	got := drain(t, out, time.Second)
	require.Len(t, got, 1)
	assert.Equal(t, protocol.TypeError, got[0].Type)
	assert.Equal(t, "op1", got[0].ID)
	assert.Equal(t, 0, sess.Registry.Len())
}

// Demonstrates executor.Func adapting a plain function into an Executor,
// as an alternative to hand-rolling a struct like scriptedExecutor.
func TestStart_ExecutorFuncAdapter(t *testing.T) {
	var gotQuery string
	exec := executor.Func(func(ctx context.Context, req protocol.GraphQLRequest) (<-chan protocol.GraphQLResponse, <-chan error) {
		gotQuery = req.Query
		respCh := make(chan protocol.GraphQLResponse, 1)
		respCh <- protocol.GraphQLResponse{Data: "fromFunc"}
		close(respCh)
		errCh := make(chan error)
		close(errCh)
		return respCh, errCh
	})

	h := newTestHandler(exec, hooks.Default(), 0)
	sess := session.New("s1")

	out := h.Handle(context.Background(), []byte(`{"type":"start","id":"op1","payload":{"query":"{ fromFunc }"}}`), sess)
	got := drain(t, out, time.Second)

	require.Len(t, got, 2)
	assert.Equal(t, protocol.TypeData, got[0].Type)
	assert.Equal(t, protocol.TypeComplete, got[1].Type)
	assert.Equal(t, "{ fromFunc }", gotQuery)
}

func TestStop_UnknownID_IsEmpty(t *testing.T) {
	h := newTestHandler(nil, hooks.Default(), 0)
	sess := session.New("s1")

	out := h.Handle(context.Background(), []byte(`{"type":"stop","id":"nope"}`), sess)
	got := drain(t, out, time.Second)
	assert.Empty(t, got)
}

func TestOnConnectBeforeOnOperation_Ordering(t *testing.T) {
	var order []string
	h := newTestHandler(newScriptedExecutor(), hooks.Hooks{
		OnConnect: func(ctx context.Context, params json.RawMessage, sess *session.Session) error {
			order = append(order, "connect")
			return nil
		},
		OnOperation: func(ctx context.Context, params json.RawMessage, sess *session.Session, operationID string) error {
			order = append(order, "operation")
			return nil
		},
	}, 0)
	sess := session.New("s1")

	drain(t, h.Handle(context.Background(), []byte(`{"type":"connection_init"}`), sess), time.Second)
	h.Handle(context.Background(), []byte(`{"type":"start","id":"op1","payload":{"query":"{ x }"}}`), sess)

	require.Eventually(t, func() bool { return len(order) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"connect", "operation"}, order)
}
