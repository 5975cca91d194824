package cluster

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingListener) OnEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingListener) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]EventKind, len(r.events))
	for i, e := range r.events {
		kinds[i] = e.Kind
	}
	return kinds
}

func TestStartFiresConnected(t *testing.T) {
	c := NewInMemory(Node{ID: 1, URL: "node-1"})
	l := &recordingListener{}
	c.AddListener(l)

	require.NoError(t, c.Start(context.Background()))

	assert.Equal(t, []EventKind{Connected}, l.kinds())
}

func TestAwaitConnectionBlocksUntilStart(t *testing.T) {
	c := NewInMemory()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.AwaitConnection(ctx)
	assert.Error(t, err, "AwaitConnection should time out before Start is called")

	require.NoError(t, c.Start(context.Background()))
	assert.NoError(t, c.AwaitConnection(context.Background()))
}

func TestSetNodeFiresNodesChanged(t *testing.T) {
	c := NewInMemory()
	require.NoError(t, c.Start(context.Background()))

	l := &recordingListener{}
	c.AddListener(l)
	c.SetNode(Node{ID: 2, URL: "node-2"})

	n, ok := c.NodeByID(2)
	require.True(t, ok)
	assert.Equal(t, "node-2", n.URL)
	assert.Equal(t, []EventKind{NodesChanged}, l.kinds())
}

func TestRemoveListenerStopsDelivery(t *testing.T) {
	c := NewInMemory()
	require.NoError(t, c.Start(context.Background()))

	l := &recordingListener{}
	c.AddListener(l)
	c.RemoveListener(l)
	c.SetNode(Node{ID: 3, URL: "node-3"})

	assert.Empty(t, l.kinds())
}

func TestShutdownFiresShutdownEventAndIsIdempotent(t *testing.T) {
	c := NewInMemory()
	l := &recordingListener{}
	c.AddListener(l)

	require.NoError(t, c.Shutdown(context.Background()))
	require.NoError(t, c.Shutdown(context.Background()))

	assert.Equal(t, []EventKind{Shutdown}, l.kinds())
}

type fakeHooks struct {
	mu                  sync.Mutex
	connectedCount      int
	shutdownFromCluster bool
}

func (f *fakeHooks) OnConnected() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectedCount++
}

func (f *fakeHooks) ShutdownFromCluster() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdownFromCluster = true
}

func TestServerListenerForwardsConnectedToHooks(t *testing.T) {
	hooks := &fakeHooks{}
	l := NewServerListener(hooks)

	l.OnEvent(Event{Kind: Connected})

	hooks.mu.Lock()
	defer hooks.mu.Unlock()
	assert.Equal(t, 1, hooks.connectedCount)
}

func TestServerListenerShutsDownServerOnClusterShutdown(t *testing.T) {
	hooks := &fakeHooks{}
	l := NewServerListener(hooks)

	l.OnEvent(Event{Kind: Shutdown})

	hooks.mu.Lock()
	defer hooks.mu.Unlock()
	assert.True(t, hooks.shutdownFromCluster)
}
