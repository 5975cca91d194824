// Package executor implements the bounded worker pool that dispatches
// decoded requests to registered handlers under queue- and service-deadline
// enforcement. It is the hardest component in the server: admission,
// timeout racing, and the single-call onComplete guarantee all live here.
//
// The admission/backoff shape (atomic live-worker counter, a bounded task
// channel standing in for the admission queue, workers that self-retire
// after an idle keep-alive) follows the same texture as a bounded HTTP
// worker pool: atomic counters drive admission decisions so the caller
// (the I/O goroutine) is never blocked by pool internals.
package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deepaksubu/norbert/errors"
	"github.com/deepaksubu/norbert/internal/filter"
	"github.com/deepaksubu/norbert/internal/registry"
	"github.com/deepaksubu/norbert/internal/stats"
	"github.com/deepaksubu/norbert/logger"
)

var errShutdown = errors.New("executor: shut down")

// ResultKind classifies how a submitted task completed.
type ResultKind int

const (
	ResultOK ResultKind = iota
	ResultTimeout
	ResultHandlerError
	ResultRejected
	ResultNoHandler
)

func (k ResultKind) String() string {
	switch k {
	case ResultOK:
		return "OK"
	case ResultTimeout:
		return "Timeout"
	case ResultHandlerError:
		return "HandlerError"
	case ResultRejected:
		return "Rejected"
	case ResultNoHandler:
		return "NoHandler"
	default:
		return "Unknown"
	}
}

// Result is delivered to a task's onComplete callback exactly once.
type Result struct {
	Kind    ResultKind
	Payload []byte
	Err     error
}

// OnComplete is invoked exactly once per Submit call.
type OnComplete func(Result)

// Params configures pool sizing and deadlines. RequestTimeout governs the
// queue deadline; ServiceTimeout governs the service deadline and is
// disabled when <= 0. Both deadlines count from the time Submit received
// the request.
type Params struct {
	CorePoolSize   int
	MaxPoolSize    int
	QueueCapacity  int
	KeepAlive      time.Duration
	RequestTimeout time.Duration
	ServiceTimeout time.Duration
}

type task struct {
	ctx            context.Context
	messageName    string
	payload        []byte
	receivedAt     time.Time
	requestTimeout time.Duration
	serviceTimeout time.Duration
	onComplete     OnComplete
	once           sync.Once
}

func (t *task) complete(r Result) {
	t.once.Do(func() {
		t.onComplete(r)
	})
}

// Executor is the bounded request worker pool.
type Executor struct {
	registry *registry.Registry
	stats    *stats.Statistics

	mu      sync.RWMutex
	filters *filter.Chain

	core      int64
	max       int64
	queueCap  int64
	keepAlive time.Duration

	requestTimeout atomic.Int64 // nanoseconds
	serviceTimeout time.Duration

	queue chan *task

	liveWorkers atomic.Int64
	wg          sync.WaitGroup

	shutdown atomic.Bool
}

// New constructs an Executor bound to a handler registry and statistics
// sink. filters is the initial filter chain; use AddFilters to extend it.
func New(reg *registry.Registry, st *stats.Statistics, params Params, filters ...filter.Filter) *Executor {
	e := &Executor{
		registry:       reg,
		stats:          st,
		filters:        filter.NewChain(filters...),
		core:           int64(params.CorePoolSize),
		max:            int64(params.MaxPoolSize),
		queueCap:       int64(params.QueueCapacity),
		keepAlive:      params.KeepAlive,
		serviceTimeout: params.ServiceTimeout,
		queue:          make(chan *task, params.QueueCapacity),
	}
	e.requestTimeout.Store(int64(params.RequestTimeout))
	return e
}

// SetRequestTimeout changes the queue-deadline horizon for subsequently
// submitted requests; in-flight and already-queued tasks keep the deadline
// they were submitted with.
func (e *Executor) SetRequestTimeout(d time.Duration) {
	e.requestTimeout.Store(int64(d))
}

// AddFilters appends filters to the chain wrapping every handler
// invocation. Safe to call concurrently with Submit.
func (e *Executor) AddFilters(filters ...filter.Filter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.filters = e.filters.Append(filters...)
}

func (e *Executor) currentFilters() *filter.Chain {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.filters
}

// Submit accepts a decoded request for dispatch. onComplete is invoked
// exactly once, synchronously for rejections and for messages with no
// registered handler, otherwise from a worker goroutine. Submit itself never blocks the caller.
func (e *Executor) Submit(ctx context.Context, messageName string, payload []byte, onComplete OnComplete) {
	if e.shutdown.Load() {
		onComplete(Result{Kind: ResultRejected, Err: errShutdown})
		return
	}

	if !e.registry.Has(messageName) {
		// Fail fast: an unroutable request should not consume an admission
		// slot or wait out the queue deadline before being rejected.
		logger.LoggerFromContext(ctx).Debugw("executor: no handler registered",
			logger.FieldMessage, messageName)
		onComplete(Result{Kind: ResultNoHandler, Err: registry.ErrNoHandler})
		return
	}

	t := &task{
		ctx:            ctx,
		messageName:    messageName,
		payload:        payload,
		receivedAt:     time.Now(),
		requestTimeout: time.Duration(e.requestTimeout.Load()),
		serviceTimeout: e.serviceTimeout,
		onComplete:     onComplete,
	}

	live := e.liveWorkers.Load()

	// 1. Below corePoolSize: start a dedicated worker for this task.
	if live < e.core {
		e.spawnWorker(t)
		return
	}

	// 2. Queue has room: enqueue for an existing worker to pick up.
	select {
	case e.queue <- t:
		return
	default:
	}

	// 3. Below maxPoolSize: start an overflow worker for this task.
	if live < e.max {
		e.spawnWorker(t)
		return
	}

	// 4. Saturated: reject without blocking the caller.
	logger.LoggerFromContext(ctx).Debugw("executor: rejecting task, pool saturated",
		logger.FieldMessage, messageName, logger.FieldQueueSize, len(e.queue))
	t.complete(Result{Kind: ResultRejected})
}

// spawnWorker starts a new worker goroutine that runs first directly, then
// keeps draining the queue until it sits idle past keepAlive.
func (e *Executor) spawnWorker(first *task) {
	e.liveWorkers.Add(1)
	e.wg.Add(1)
	go e.workerLoop(first)
}

func (e *Executor) workerLoop(first *task) {
	defer e.wg.Done()
	defer e.liveWorkers.Add(-1)

	e.run(first)

	keepAlive := e.keepAlive
	if keepAlive <= 0 {
		keepAlive = time.Second
	}

	for {
		select {
		case t, ok := <-e.queue:
			if !ok {
				return
			}
			if e.shutdown.Load() {
				t.complete(Result{Kind: ResultRejected})
				continue
			}
			e.run(t)
		case <-time.After(keepAlive):
			return
		}
	}
}

func (e *Executor) run(t *task) {
	dequeuedAt := time.Now()
	queueDeadline := t.receivedAt.Add(t.requestTimeout)
	if dequeuedAt.After(queueDeadline) {
		logger.LoggerFromContext(t.ctx).Debugw("executor: queue deadline exceeded",
			logger.FieldMessage, t.messageName)
		e.finish(t, Result{Kind: ResultTimeout}, dequeuedAt.Sub(t.receivedAt), 0, OutcomeFor(ResultTimeout))
		return
	}

	entry, ok := e.registry.Lookup(t.messageName)
	if !ok {
		// Handler was deregistered between Submit's fast-path check and
		// this dequeue; re-check here rather than assuming Submit's
		// snapshot still holds.
		logger.LoggerFromContext(t.ctx).Debugw("executor: no handler registered",
			logger.FieldMessage, t.messageName)
		e.finish(t, Result{Kind: ResultNoHandler, Err: registry.ErrNoHandler}, dequeuedAt.Sub(t.receivedAt), 0, OutcomeFor(ResultNoHandler))
		return
	}

	rc := &filter.RequestContext{MessageName: t.messageName}
	chain := e.currentFilters()

	type handlerResult struct {
		payload []byte
		err     error
	}
	resultCh := make(chan handlerResult, 1)

	go func() {
		payload, err := chain.Invoke(t.ctx, rc, func(ctx context.Context) ([]byte, error) {
			return entry.Handler(ctx, t.payload)
		})
		resultCh <- handlerResult{payload: payload, err: err}
	}()

	if t.serviceTimeout > 0 {
		select {
		case r := <-resultCh:
			e.finishHandlerResult(t, r.payload, r.err, dequeuedAt)
		case <-time.After(time.Until(t.receivedAt.Add(t.serviceTimeout))):
			// The handler is cooperative and not interrupted; its eventual
			// result is discarded by the once-guard in task.complete.
			logger.LoggerFromContext(t.ctx).Debugw("executor: service deadline exceeded",
				logger.FieldMessage, t.messageName)
			e.finish(t, Result{Kind: ResultTimeout}, dequeuedAt.Sub(t.receivedAt), time.Since(dequeuedAt), OutcomeFor(ResultTimeout))
		}
		return
	}

	r := <-resultCh
	e.finishHandlerResult(t, r.payload, r.err, dequeuedAt)
}

func (e *Executor) finishHandlerResult(t *task, payload []byte, err error, dequeuedAt time.Time) {
	queueWait := dequeuedAt.Sub(t.receivedAt)
	service := time.Since(dequeuedAt)
	if err != nil {
		e.finish(t, Result{Kind: ResultHandlerError, Err: err}, queueWait, service, OutcomeFor(ResultHandlerError))
		return
	}
	e.finish(t, Result{Kind: ResultOK, Payload: payload}, queueWait, service, OutcomeFor(ResultOK))
}

func (e *Executor) finish(t *task, r Result, queueWait, service time.Duration, outcome stats.Outcome) {
	if e.stats != nil {
		e.stats.Record(t.messageName, queueWait, service, outcome)
	}
	t.complete(r)
}

// OutcomeFor maps a ResultKind onto the coarser outcome classification
// recorded in request statistics.
func OutcomeFor(k ResultKind) stats.Outcome {
	switch k {
	case ResultOK:
		return stats.OutcomeOK
	case ResultTimeout:
		return stats.OutcomeTimeout
	default:
		return stats.OutcomeHandlerError
	}
}

// Shutdown stops accepting new tasks, rejects anything still queued, and
// waits for in-flight tasks to finish on their own (never forcibly
// cancelled) or for ctx to be done, whichever comes first. Idempotent.
func (e *Executor) Shutdown(ctx context.Context) error {
	if !e.shutdown.CompareAndSwap(false, true) {
		return nil
	}

	close(e.queue)
	for t := range e.queue {
		t.complete(Result{Kind: ResultRejected})
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
