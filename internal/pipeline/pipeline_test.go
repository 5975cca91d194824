package pipeline

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepaksubu/norbert/internal/executor"
	"github.com/deepaksubu/norbert/internal/wire"
)

// loopConn lets ServeOne read a pre-written request and capture the
// written response in the same buffer-backed connection.
type loopConn struct {
	in  *bytes.Buffer
	out *bytes.Buffer
}

func (c *loopConn) Read(p []byte) (int, error)  { return c.in.Read(p) }
func (c *loopConn) Write(p []byte) (int, error) { return c.out.Write(p) }

type fakeDispatcher struct {
	result executor.Result
}

func (f fakeDispatcher) Submit(_ context.Context, _ string, _ []byte, onComplete executor.OnComplete) {
	onComplete(f.result)
}

func newLoopConn(t *testing.T, req wire.Envelope) *loopConn {
	t.Helper()
	in := &bytes.Buffer{}
	require.NoError(t, wire.WriteEnvelope(in, req))
	return &loopConn{in: in, out: &bytes.Buffer{}}
}

func TestServeOneEchoesResultAsPayload(t *testing.T) {
	req := wire.Envelope{RequestIDHigh: 1, RequestIDLow: 2, MessageName: "echo"}
	conn := newLoopConn(t, req)

	p := New(conn, fakeDispatcher{result: executor.Result{Kind: executor.ResultOK, Payload: []byte("hi")}}, false)
	require.NoError(t, p.ServeOne(context.Background()))

	resp, err := wire.ReadEnvelope(conn.out, false)
	require.NoError(t, err)
	assert.Equal(t, wire.StatusOK, resp.Status)
	assert.Equal(t, []byte("hi"), resp.Payload)
	assert.Equal(t, uint64(1), resp.RequestIDHigh)
	assert.Equal(t, uint64(2), resp.RequestIDLow)
}

func TestServeOneTranslatesTimeoutToErrorEnvelope(t *testing.T) {
	req := wire.Envelope{RequestIDHigh: 9, MessageName: "slow"}
	conn := newLoopConn(t, req)

	p := New(conn, fakeDispatcher{result: executor.Result{Kind: executor.ResultTimeout}}, false)
	require.NoError(t, p.ServeOne(context.Background()))

	resp, err := wire.ReadEnvelope(conn.out, false)
	require.NoError(t, err)
	assert.Equal(t, wire.StatusError, resp.Status)
	assert.Equal(t, uint64(9), resp.RequestIDHigh)
	assert.NotEmpty(t, resp.ErrorMessage)
}

func TestServeOneTranslatesNoHandlerToErrorEnvelope(t *testing.T) {
	req := wire.Envelope{MessageName: "unknown"}
	conn := newLoopConn(t, req)

	p := New(conn, fakeDispatcher{result: executor.Result{Kind: executor.ResultNoHandler}}, false)
	require.NoError(t, p.ServeOne(context.Background()))

	resp, err := wire.ReadEnvelope(conn.out, false)
	require.NoError(t, err)
	assert.Equal(t, wire.StatusError, resp.Status)
	assert.Contains(t, resp.ErrorMessage, "no handler")
}

func TestServeOneEchoesHeartbeatWithoutDispatch(t *testing.T) {
	req := wire.Envelope{RequestIDHigh: 4, Status: wire.StatusHeartbeat}
	conn := newLoopConn(t, req)

	p := New(conn, fakeDispatcher{result: executor.Result{Kind: executor.ResultOK}}, false)
	require.NoError(t, p.ServeOne(context.Background()))

	resp, err := wire.ReadEnvelope(conn.out, false)
	require.NoError(t, err)
	assert.Equal(t, wire.StatusHeartbeat, resp.Status)
	assert.Equal(t, uint64(4), resp.RequestIDHigh)
}

func TestServeOneWithAvoidPayloadCopyStillDeliversPayload(t *testing.T) {
	req := wire.Envelope{RequestIDHigh: 1, MessageName: "echo", Payload: []byte("hi")}
	conn := newLoopConn(t, req)

	var captured []byte
	dispatcher := dispatcherFunc(func(_ context.Context, _ string, payload []byte, onComplete executor.OnComplete) {
		captured = payload
		onComplete(executor.Result{Kind: executor.ResultOK, Payload: payload})
	})

	p := New(conn, dispatcher, true)
	require.NoError(t, p.ServeOne(context.Background()))

	resp, err := wire.ReadEnvelope(conn.out, false)
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), resp.Payload)
	assert.Equal(t, []byte("hi"), captured)
}

type dispatcherFunc func(ctx context.Context, messageName string, payload []byte, onComplete executor.OnComplete)

func (f dispatcherFunc) Submit(ctx context.Context, messageName string, payload []byte, onComplete executor.OnComplete) {
	f(ctx, messageName, payload, onComplete)
}
