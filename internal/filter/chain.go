// Package filter implements the ordered before/after interceptor chain
// wrapped around every handler invocation.
package filter

import "context"

// RequestContext is the subset of per-request state a filter may read or
// annotate. Handlers and the dispatcher share the same type; filters only
// see it through this narrower view.
type RequestContext struct {
	MessageName string
	Attributes  map[string]any
}

// Attr sets an attribute on the context, initializing the map on first use.
func (c *RequestContext) Attr(key string, value any) {
	if c.Attributes == nil {
		c.Attributes = make(map[string]any)
	}
	c.Attributes[key] = value
}

// Filter is a pair of hooks invoked around a handler call. OnRequest runs
// before dispatch in registration order; it may return an error to abort
// the call before the handler runs. Exactly one of OnResponse or OnError
// runs afterward, in reverse registration order, for every filter whose
// OnRequest was entered.
type Filter interface {
	OnRequest(ctx context.Context, rc *RequestContext) error
	OnResponse(ctx context.Context, rc *RequestContext, result []byte)
	OnError(ctx context.Context, rc *RequestContext, err error)
}

// Chain is an ordered, append-only list of Filters. Append is the only
// mutator; Chain is otherwise read-only, matching the copy-on-write
// discipline used elsewhere for shared, read-mostly structures.
type Chain struct {
	filters []Filter
}

// NewChain returns a Chain wrapping the given filters in invocation order.
func NewChain(filters ...Filter) *Chain {
	c := &Chain{}
	c.filters = append(c.filters, filters...)
	return c
}

// Append returns a new Chain with filters added after the existing ones.
// The receiver is left unmodified; callers that need to hot-swap a
// server's filter chain should replace their stored pointer with the
// returned Chain.
func (c *Chain) Append(filters ...Filter) *Chain {
	next := make([]Filter, 0, len(c.filters)+len(filters))
	next = append(next, c.filters...)
	next = append(next, filters...)
	return &Chain{filters: next}
}

// Invoke runs the chain around call: OnRequest for every filter in order,
// then call, then OnResponse/OnError for every entered filter in reverse
// order. If any OnRequest returns an error, call is skipped and OnError
// runs for every filter that already entered (including the one that
// failed).
func (c *Chain) Invoke(ctx context.Context, rc *RequestContext, call func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	entered := 0
	var abortErr error

	for _, f := range c.filters {
		if err := f.OnRequest(ctx, rc); err != nil {
			abortErr = err
			entered++
			break
		}
		entered++
	}

	if abortErr != nil {
		c.unwind(ctx, rc, entered, nil, abortErr)
		return nil, abortErr
	}

	result, err := call(ctx)
	c.unwind(ctx, rc, entered, result, err)
	return result, err
}

func (c *Chain) unwind(ctx context.Context, rc *RequestContext, entered int, result []byte, err error) {
	for i := entered - 1; i >= 0; i-- {
		if err != nil {
			c.filters[i].OnError(ctx, rc, err)
		} else {
			c.filters[i].OnResponse(ctx, rc, result)
		}
	}
}
