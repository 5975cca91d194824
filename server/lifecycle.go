// Package server implements the NetworkServer lifecycle: the bind /
// available / unavailable / drain state machine that ties a TCP acceptor
// to cluster membership. Collaborators (executor, registry, coordinator)
// are injected explicitly at construction rather than assembled through
// embedding, so tests can swap in fakes.
package server

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deepaksubu/norbert/errors"
	"github.com/deepaksubu/norbert/internal/cluster"
	"github.com/deepaksubu/norbert/internal/executor"
	"github.com/deepaksubu/norbert/internal/pipeline"
	"github.com/deepaksubu/norbert/logger"
)

// State is the NetworkServer's lifecycle position.
type State int32

const (
	Unbound State = iota
	Bound
	ShuttingDown
	ShutDown
)

func (s State) String() string {
	switch s {
	case Unbound:
		return "Unbound"
	case Bound:
		return "Bound"
	case ShuttingDown:
		return "ShuttingDown"
	case ShutDown:
		return "ShutDown"
	default:
		return "Unknown"
	}
}

var (
	ErrAlreadyBound    = errors.New("server: already bound")
	ErrShutdown        = errors.New("server: shut down")
	ErrInvalidNode     = errors.New("server: bind target not in cluster")
	ErrNetworkBind     = errors.New("server: tcp bind/listen failure")
)

// Params configures a NetworkServer's shutdown behavior and per-connection
// dispatch.
type Params struct {
	ShutdownPauseMultiplier int
	CoordinatorSessionMs    int
	AvoidPayloadCopy        bool
}

// NetworkServer binds a TCP acceptor to a cluster node identity, forwards
// accepted connections to the dispatch pipeline, and keeps the
// coordinator's view of this node's availability in sync.
type NetworkServer struct {
	coord      cluster.Coordinator
	dispatcher pipeline.Dispatcher
	exec       *executor.Executor
	params     Params

	mu                sync.Mutex
	state             atomic.Int32
	nodeID            int
	markWhenConnected bool
	initialCapability uint64
	listener          *cluster.ServerListener
	tcpListener       net.Listener

	wg       sync.WaitGroup
	shutdown atomic.Bool
}

// New constructs a NetworkServer in the Unbound state.
func New(coord cluster.Coordinator, dispatcher pipeline.Dispatcher, exec *executor.Executor, params Params) *NetworkServer {
	s := &NetworkServer{coord: coord, dispatcher: dispatcher, exec: exec, params: params}
	s.state.Store(int32(Unbound))
	return s
}

func (s *NetworkServer) State() State { return State(s.state.Load()) }

// Bind looks up nodeID in the coordinator, opens a TCP acceptor on the
// node's declared port, registers a cluster listener, and transitions to
// Bound.
func (s *NetworkServer) Bind(ctx context.Context, nodeID int, markAvailable bool, initialCapability uint64) error {
	switch s.State() {
	case Bound:
		return ErrAlreadyBound
	case ShuttingDown, ShutDown:
		return ErrShutdown
	}

	node, ok := s.coord.NodeByID(nodeID)
	if !ok {
		return errors.Wrapf(ErrInvalidNode, "node %d", nodeID)
	}

	_, port, err := net.SplitHostPort(node.URL)
	if err != nil {
		return errors.Wrapf(ErrNetworkBind, "node url %q: %v", node.URL, err)
	}

	return s.bindAddr(ctx, ":"+port, nodeID, markAvailable, initialCapability)
}

// BindByURL resolves a node whose URL matches host:port in the current
// cluster snapshot, then binds as Bind does.
func (s *NetworkServer) BindByURL(ctx context.Context, host string, port int, markAvailable bool, initialCapability uint64) error {
	url := net.JoinHostPort(host, itoa(port))
	node, ok := s.coord.NodeByURL(url)
	if !ok {
		return errors.Wrapf(ErrInvalidNode, "url %s", url)
	}
	return s.Bind(ctx, node.ID, markAvailable, initialCapability)
}

// BindByPort resolves the local hostname, then binds as BindByURL does.
func (s *NetworkServer) BindByPort(ctx context.Context, port int, markAvailable bool, initialCapability uint64) error {
	host, err := osHostname()
	if err != nil {
		return errors.Wrap(err, "server: resolve local hostname")
	}
	return s.BindByURL(ctx, host, port, markAvailable, initialCapability)
}

func (s *NetworkServer) bindAddr(ctx context.Context, addr string, nodeID int, markAvailable bool, initialCapability uint64) error {
	lc := net.ListenConfig{Control: setReuseAddr}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return errors.Wrapf(ErrNetworkBind, "listen %s: %v", addr, err)
	}

	s.mu.Lock()
	s.nodeID = nodeID
	s.markWhenConnected = markAvailable
	s.initialCapability = initialCapability
	s.tcpListener = ln
	listener := cluster.NewServerListener(s)
	s.listener = listener
	s.mu.Unlock()

	s.coord.AddListener(listener)
	s.state.Store(int32(Bound))

	s.wg.Add(1)
	go s.acceptLoop(ln)

	logger.Infow("server: bound", logger.FieldNodeID, nodeID, logger.FieldAddress, addr)
	return nil
}

func (s *NetworkServer) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.shutdown.Load() {
				return
			}
			logger.Warnw("server: accept error", logger.FieldError, err.Error())
			return
		}
		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.SetNoDelay(true)
		}

		connLog := logger.ChildLogger(logger.ComponentLogger("server"), logger.FieldAddress, conn.RemoteAddr().String())
		connLog.Debugw("connection accepted")

		connCtx := logger.WithComponent(context.Background(), "pipeline")

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()
			pipeline.Serve(connCtx, conn, s.dispatcher, s.params.AvoidPayloadCopy)
		}()
	}
}

// MarkAvailable publishes this node's availability with the given
// capability mask, and arms the listener to restore that state across
// reconnection events.
func (s *NetworkServer) MarkAvailable(capability uint64) {
	if s.State() != Bound {
		return
	}
	s.mu.Lock()
	nodeID := s.nodeID
	s.markWhenConnected = true
	s.initialCapability = capability
	s.mu.Unlock()

	if err := s.coord.SetNodeCapability(nodeID, capability); err != nil {
		logger.Warnw("server: set capability failed", logger.FieldError, err.Error())
	}
	if err := s.coord.MarkNodeAvailable(nodeID); err != nil {
		logger.Warnw("server: mark available failed", logger.FieldError, err.Error())
	}
}

// MarkUnavailable publishes this node's unavailability and disarms the
// listener's reconnection restore, per testable property 7: a later
// Connected event must not re-mark available until MarkAvailable is
// called again.
func (s *NetworkServer) MarkUnavailable() {
	if s.State() != Bound {
		return
	}
	s.mu.Lock()
	nodeID := s.nodeID
	s.markWhenConnected = false
	s.mu.Unlock()

	if err := s.coord.MarkNodeUnavailable(nodeID); err != nil {
		logger.Warnw("server: mark unavailable failed", logger.FieldError, err.Error())
	}
}

// OnConnected implements cluster.ServerHooks: on a coordinator Connected
// event, if markWhenConnected is currently armed, cycle unavailable then
// available so cluster-wide load balancer tables observe a fresh
// transition rather than assuming stale health from a previous session.
// A MarkUnavailable call disarms this until MarkAvailable re-arms it.
func (s *NetworkServer) OnConnected() {
	s.mu.Lock()
	armed := s.markWhenConnected
	capability := s.initialCapability
	s.mu.Unlock()

	if !armed {
		return
	}
	s.MarkUnavailable()
	s.MarkAvailable(capability)
}

// Shutdown is the user-initiated drain path: mark unavailable, pause for
// peers to observe departure, deregister from the coordinator, close the
// acceptor, drain the executor.
func (s *NetworkServer) Shutdown(ctx context.Context) error {
	return s.doShutdown(ctx, false)
}

// ShutdownFromCluster implements cluster.ServerHooks: invoked when the
// coordinator itself reports Shutdown, skipping the coordinator-side
// unregister since the coordinator is already gone.
func (s *NetworkServer) ShutdownFromCluster() {
	_ = s.doShutdown(context.Background(), true)
}

func (s *NetworkServer) doShutdown(ctx context.Context, fromCluster bool) error {
	if !s.shutdown.CompareAndSwap(false, true) {
		return nil
	}
	if !fromCluster {
		// Marked while the state is still Bound: MarkUnavailable is a no-op
		// in any other state.
		s.MarkUnavailable()
	}
	s.state.Store(int32(ShuttingDown))

	if !fromCluster {
		if s.params.ShutdownPauseMultiplier > 0 {
			pause := time.Duration(s.params.ShutdownPauseMultiplier*s.params.CoordinatorSessionMs) * time.Millisecond
			logger.Infow("server: shutdown pause", logger.FieldDurationMS, pause.Milliseconds())
			select {
			case <-time.After(pause):
			case <-ctx.Done():
			}
		}
		s.coord.RemoveListener(s.listener)
	}

	s.mu.Lock()
	ln := s.tcpListener
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	if s.exec != nil {
		if err := s.exec.Shutdown(ctx); err != nil {
			logger.Warnw("server: executor drain incomplete", logger.FieldError, err.Error())
		}
	}

	s.state.Store(int32(ShutDown))
	logger.Infow("server: shutdown complete", logger.FieldState, fromCluster)
	return nil
}
