package server

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepaksubu/norbert/internal/cluster"
	"github.com/deepaksubu/norbert/internal/executor"
	"github.com/deepaksubu/norbert/internal/registry"
	"github.com/deepaksubu/norbert/internal/stats"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func newTestServer(t *testing.T, port int) (*NetworkServer, *cluster.InMemory) {
	t.Helper()
	node := cluster.Node{ID: 1, URL: net.JoinHostPort("", strconv.Itoa(port))}
	coord := cluster.NewInMemory(node)
	require.NoError(t, coord.Start(context.Background()))

	reg := registry.New()
	reg.Register("echo", func(_ context.Context, payload []byte) ([]byte, error) { return payload, nil }, "", "")
	exec := executor.New(reg, stats.New(time.Minute), executor.Params{
		CorePoolSize: 2, MaxPoolSize: 4, QueueCapacity: 10, KeepAlive: time.Second, RequestTimeout: time.Second,
	})

	s := New(coord, exec, exec, Params{ShutdownPauseMultiplier: 0, CoordinatorSessionMs: 1})
	return s, coord
}

func TestBindTransitionsToBound(t *testing.T) {
	port := freePort(t)
	s, _ := newTestServer(t, port)

	require.NoError(t, s.Bind(context.Background(), 1, false, 0))
	assert.Equal(t, Bound, s.State())

	require.NoError(t, s.Shutdown(context.Background()))
}

func TestBindTwiceFailsAlreadyBound(t *testing.T) {
	port := freePort(t)
	s, _ := newTestServer(t, port)

	require.NoError(t, s.Bind(context.Background(), 1, false, 0))
	err := s.Bind(context.Background(), 1, false, 0)
	assert.ErrorIs(t, err, ErrAlreadyBound)

	require.NoError(t, s.Shutdown(context.Background()))
}

func TestBindUnknownNodeFailsInvalidNode(t *testing.T) {
	port := freePort(t)
	s, _ := newTestServer(t, port)

	err := s.Bind(context.Background(), 999, false, 0)
	assert.ErrorIs(t, err, ErrInvalidNode)
	assert.Equal(t, Unbound, s.State())
}

func TestShutdownIsIdempotent(t *testing.T) {
	port := freePort(t)
	s, _ := newTestServer(t, port)

	require.NoError(t, s.Bind(context.Background(), 1, false, 0))
	require.NoError(t, s.Shutdown(context.Background()))
	require.NoError(t, s.Shutdown(context.Background()))
	assert.Equal(t, ShutDown, s.State())
}

func TestConnectedEventCyclesAvailabilityWhenMarkWhenConnected(t *testing.T) {
	port := freePort(t)
	s, coord := newTestServer(t, port)

	require.NoError(t, s.Bind(context.Background(), 1, true, 0b1))
	s.listener.OnEvent(cluster.Event{Kind: cluster.Connected})

	n, ok := coord.NodeByID(1)
	require.True(t, ok)
	assert.Equal(t, uint64(0b1), n.Capability)

	require.NoError(t, s.Shutdown(context.Background()))
}

func TestMarkUnavailableDisarmsReconnectRestore(t *testing.T) {
	port := freePort(t)
	s, _ := newTestServer(t, port)

	require.NoError(t, s.Bind(context.Background(), 1, true, 0b1))
	s.MarkUnavailable()

	s.listener.OnEvent(cluster.Event{Kind: cluster.Connected})

	s.mu.Lock()
	armed := s.markWhenConnected
	s.mu.Unlock()
	assert.False(t, armed, "a Connected event must not re-arm availability restore on its own")

	require.NoError(t, s.Shutdown(context.Background()))
}

func TestCoordinatorShutdownEventShutsDownServer(t *testing.T) {
	port := freePort(t)
	s, coord := newTestServer(t, port)
	require.NoError(t, s.Bind(context.Background(), 1, false, 0))

	require.NoError(t, coord.Shutdown(context.Background()))

	assert.Eventually(t, func() bool { return s.State() == ShutDown }, time.Second, 5*time.Millisecond)
}
