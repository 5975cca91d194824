// Package pipeline wires the per-connection inbound and outbound stages:
// frame decode, envelope decode, dispatch to the executor (which builds the
// RequestContext and runs the filter chain), and the mirrored outbound
// encode. It holds no state between requests on the same connection, but
// it serves one request at a time: the next envelope is read only after
// the previous response has been written.
package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/deepaksubu/norbert/internal/executor"
	"github.com/deepaksubu/norbert/internal/wire"
	"github.com/deepaksubu/norbert/logger"
)

// Dispatcher is the subset of *executor.Executor the pipeline needs,
// narrowed so pipeline does not otherwise depend on executor internals.
type Dispatcher interface {
	Submit(ctx context.Context, messageName string, payload []byte, onComplete executor.OnComplete)
}

// Pipeline runs one connection's inbound/outbound framing against a
// Dispatcher. A Pipeline is not safe for concurrent use by multiple
// goroutines over the same connection; pair one per accepted socket.
type Pipeline struct {
	conn             io.ReadWriter
	dispatcher       Dispatcher
	avoidPayloadCopy bool
}

// New returns a Pipeline bound to conn and dispatcher. avoidPayloadCopy
// hands the handler a zero-copy view of the decoded request payload
// instead of a defensive copy (see wire.Decode).
func New(conn io.ReadWriter, dispatcher Dispatcher, avoidPayloadCopy bool) *Pipeline {
	return &Pipeline{conn: conn, dispatcher: dispatcher, avoidPayloadCopy: avoidPayloadCopy}
}

// ServeOne reads exactly one framed envelope from the connection, submits
// it to the dispatcher, and writes the response frame once the executor
// completes. It returns any I/O or decode error encountered; callers loop
// calling ServeOne until it returns an error (typically io.EOF on
// orderly connection close).
func (p *Pipeline) ServeOne(ctx context.Context) error {
	req, err := wire.ReadEnvelope(p.conn, p.avoidPayloadCopy)
	if err != nil {
		return err
	}

	if req.Status == wire.StatusHeartbeat {
		return wire.WriteEnvelope(p.conn, req)
	}

	reqID := fmt.Sprintf("%016x%016x", req.RequestIDHigh, req.RequestIDLow)
	dispatchCtx := logger.WithRequestID(ctx, reqID)

	done := make(chan wire.Envelope, 1)
	p.dispatcher.Submit(dispatchCtx, req.MessageName, req.Payload, func(r executor.Result) {
		done <- toEnvelope(req, r)
	})

	select {
	case resp := <-done:
		return wire.WriteEnvelope(p.conn, resp)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func toEnvelope(req wire.Envelope, r executor.Result) wire.Envelope {
	switch r.Kind {
	case executor.ResultOK:
		return req.WithPayload(r.Payload)
	case executor.ResultTimeout:
		return req.WithError("request timed out")
	case executor.ResultNoHandler:
		return req.WithError("no handler registered for " + req.MessageName)
	case executor.ResultRejected:
		return req.WithError("executor saturated, request rejected")
	case executor.ResultHandlerError:
		msg := "handler error"
		if r.Err != nil {
			msg = r.Err.Error()
		}
		return req.WithError(msg)
	default:
		return req.WithError("unknown result")
	}
}

// Serve loops ServeOne until the connection is closed or ctx is done,
// logging the terminal error at debug level (connection teardown is
// routine, not a failure worth surfacing louder).
func Serve(ctx context.Context, conn io.ReadWriter, dispatcher Dispatcher, avoidPayloadCopy bool) {
	p := New(conn, dispatcher, avoidPayloadCopy)
	for {
		if err := p.ServeOne(ctx); err != nil {
			logger.Debugw("pipeline: connection closed", logger.FieldError, err.Error())
			return
		}
	}
}
