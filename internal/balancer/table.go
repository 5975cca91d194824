// Package balancer implements the partition-to-node load balancer: a
// routing table mapping a partition id to a rotating, health- and
// capability-filtered set of endpoints, selected with overflow-safe
// round-robin cursors.
//
// Reads of a PartitionRoute's endpoint slice are lock-free: the table is a
// whole-structure, copy-on-write replacement, never mutated in place, so a
// reader holding a *Table reference never observes a torn update.
package balancer

import (
	"math"
	"sync/atomic"

	"github.com/deepaksubu/norbert/errors"
)

// Node identifies a cluster member.
type Node struct {
	ID                   int
	URL                  string
	PartitionIDs         map[int]struct{}
	Capability           uint64
	PersistentCapability uint64
}

// Endpoint wraps a Node with a health bit observable to the balancer,
// independent of cluster membership (e.g. set false after an observed
// connection failure, without the node having left the cluster).
type Endpoint struct {
	Node             Node
	canServeRequests atomic.Bool
}

// NewEndpoint returns a healthy Endpoint for node.
func NewEndpoint(node Node) *Endpoint {
	e := &Endpoint{Node: node}
	e.canServeRequests.Store(true)
	return e
}

func (e *Endpoint) CanServeRequests() bool   { return e.canServeRequests.Load() }
func (e *Endpoint) SetCanServeRequests(v bool) { e.canServeRequests.Store(v) }

// PartitionRoute is the routing structure for a single partition.
type PartitionRoute struct {
	endpoints []*Endpoint
	cursor    atomic.Uint32
	states    []atomic.Bool // per-route health flag, independent of endpoint health
}

func newPartitionRoute(endpoints []*Endpoint) *PartitionRoute {
	r := &PartitionRoute{endpoints: endpoints}
	r.states = make([]atomic.Bool, len(endpoints))
	for i := range r.states {
		r.states[i].Store(true)
	}
	return r
}

// usable reports whether endpoint i may currently serve requests: both its
// own canServeRequests bit and the route's mirrored health flag must hold.
func (r *PartitionRoute) usable(i int, capability, persistentCapability uint64) bool {
	if !r.states[i].Load() {
		return false
	}
	ep := r.endpoints[i]
	if !ep.CanServeRequests() {
		return false
	}
	n := ep.Node
	return (n.Capability&capability) == capability && (n.PersistentCapability&persistentCapability) == persistentCapability
}

// SetRouteHealth sets PartitionRoute.states[i], the additional per-route
// health flag distinct from the endpoint's own canServeRequests bit.
func (r *PartitionRoute) SetRouteHealth(i int, healthy bool) {
	if i < 0 || i >= len(r.states) {
		return
	}
	r.states[i].Store(healthy)
}

// nextCursor implements the overflow-safe monotonic increment: it reads the
// current cursor, resetting to 0 first if it has reached MaxUint32, then
// returns the pre-increment value as the scan's starting index.
func (r *PartitionRoute) nextCursor() uint32 {
	r.cursor.CompareAndSwap(math.MaxUint32, 0)
	return r.cursor.Add(1) - 1
}

// compensate applies the corrected compensateCounter rule: the cursor is
// set to idx+1+loopCount, or to idx+1+loopCount-MaxUint32 if that would
// overflow back past the representable range.
func (r *PartitionRoute) compensate(idx, loopCount uint32) {
	next := uint64(idx) + 1 + uint64(loopCount)
	if next > math.MaxUint32 {
		next -= math.MaxUint32
	}
	r.cursor.Store(uint32(next))
}

// Table maps partition ids to their PartitionRoute. A Table is immutable
// after Build; replacing routing state means constructing and swapping in
// a new *Table, never mutating one in place.
type Table struct {
	routes map[int]*PartitionRoute
}

// ErrInvalidCluster is returned by Build when every declared partition is
// missing an endpoint (whatever serveRequestsIfPartitionMissing says), and
// wrapped when only some are missing and serveRequestsIfPartitionMissing is
// false.
var ErrInvalidCluster = errors.New("balancer: all partitions missing endpoints")

// Build constructs a Table from endpoints grouped by their declared
// partition ids. numPartitions declares the expected partition space
// [0, numPartitions). If any partition in that space has no endpoints,
// construction fails unless serveRequestsIfPartitionMissing is true, in
// which case the missing partitions are simply absent from the table. If
// every partition is missing, construction fails even when the flag is true.
func Build(endpoints []*Endpoint, numPartitions int, serveRequestsIfPartitionMissing bool) (*Table, error) {
	byPartition := make(map[int][]*Endpoint)
	for _, ep := range endpoints {
		for pid := range ep.Node.PartitionIDs {
			byPartition[pid] = append(byPartition[pid], ep)
		}
	}

	missing := 0
	for pid := 0; pid < numPartitions; pid++ {
		if len(byPartition[pid]) == 0 {
			missing++
		}
	}

	if missing == numPartitions && numPartitions > 0 {
		return nil, ErrInvalidCluster
	}
	if missing > 0 && !serveRequestsIfPartitionMissing {
		return nil, errors.Wrapf(ErrInvalidCluster, "%d of %d partitions have no endpoints", missing, numPartitions)
	}

	routes := make(map[int]*PartitionRoute, len(byPartition))
	for pid, eps := range byPartition {
		routes[pid] = newPartitionRoute(eps)
	}

	return &Table{routes: routes}, nil
}

// NodeForPartition selects one node for pid using overflow-safe
// round-robin, filtered by health and capability masks. Returns (Node{},
// false) if pid has no route. If no endpoint qualifies, it still returns
// the endpoint at the scan's starting index so the caller can make forward
// progress; callers observe the actual failure at the RPC layer.
func NodeForPartition(t *Table, pid int, capability, persistentCapability uint64) (Node, bool) {
	route, ok := t.routes[pid]
	if !ok {
		return Node{}, false
	}
	return route.selectOne(capability, persistentCapability)
}

func (r *PartitionRoute) selectOne(capability, persistentCapability uint64) (Node, bool) {
	n := len(r.endpoints)
	if n == 0 {
		return Node{}, false
	}

	idx := r.nextCursor()
	start := int(idx % uint32(n))

	var loopCount uint32
	for loopCount = 0; int(loopCount) <= n; loopCount++ {
		i := (start + int(loopCount)) % n
		if r.usable(i, capability, persistentCapability) {
			r.compensate(idx, loopCount)
			return r.endpoints[i].Node, true
		}
	}

	r.compensate(idx, loopCount)
	return r.endpoints[start].Node, true
}

// NodesForPartition collects every qualifying endpoint's node for pid, in
// first-seen order starting from the current cursor position, without
// advancing the cursor (a pure read used for cluster-wide fan-out).
func NodesForPartition(t *Table, pid int, capability, persistentCapability uint64) ([]Node, bool) {
	route, ok := t.routes[pid]
	if !ok {
		return nil, false
	}
	return route.selectAll(capability, persistentCapability), true
}

func (r *PartitionRoute) selectAll(capability, persistentCapability uint64) []Node {
	n := len(r.endpoints)
	if n == 0 {
		return nil
	}

	start := int(r.cursor.Load() % uint32(n))
	seen := make(map[int]struct{}, n)
	var nodes []Node

	for loopCount := 0; loopCount < n; loopCount++ {
		i := (start + loopCount) % n
		if !r.usable(i, capability, persistentCapability) {
			continue
		}
		if _, dup := seen[i]; dup {
			continue
		}
		seen[i] = struct{}{}
		nodes = append(nodes, r.endpoints[i].Node)
	}

	return nodes
}

// Route returns the PartitionRoute for pid, for callers that need to mutate
// per-route health flags directly (e.g. a connection-failure observer).
func (t *Table) Route(pid int) (*PartitionRoute, bool) {
	r, ok := t.routes[pid]
	return r, ok
}

// SetCursor forces the route's cursor to a specific value; exposed for
// tests that need to exercise the overflow boundary deterministically.
func (r *PartitionRoute) SetCursor(v uint32) {
	r.cursor.Store(v)
}
