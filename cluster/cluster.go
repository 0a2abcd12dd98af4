// Package cluster tracks peer node lifecycle — discovered, alive,
// disconnected — derived from the DISCOVER/INFO/HEARTBEAT/DISCONNECT
// exchange Transit reports through transit.NodeObserver.
package cluster

import (
	"sort"
	"sync"
	"time"

	"github.com/matgreaves/brokerd/broker"
	"github.com/matgreaves/brokerd/transit"
)

// State is a Node's lifecycle phase.
type State int

const (
	Discovered State = iota
	Alive
	Disconnected
)

func (s State) String() string {
	switch s {
	case Discovered:
		return "discovered"
	case Alive:
		return "alive"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Node is a cluster peer.
type Node struct {
	ID            string
	IPList        []string
	Services      []string
	Actions       []string
	LastHeartbeat time.Time
	State         State
}

// Registry is the subset of broker.Registry the cluster needs to deregister
// a disconnected node's endpoints, kept as an interface so this package
// never needs the concrete broker type for anything but that one effect.
type Registry interface {
	DeregisterNode(nodeID string) []string
}

// Table tracks every known peer node and deregisters a node's endpoints
// from the registry when it disconnects, either explicitly or via a
// stalled heartbeat. It implements transit.NodeObserver.
type Table struct {
	mu    sync.Mutex
	nodes map[string]*Node

	registry         Registry
	heartbeatTimeout time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewTable builds a Table that deregisters disconnected nodes from
// registry and treats a node as disconnected once heartbeatTimeout has
// elapsed since its last-seen frame.
func NewTable(registry Registry, heartbeatTimeout time.Duration) *Table {
	return &Table{
		nodes:            make(map[string]*Node),
		registry:         registry,
		heartbeatTimeout: heartbeatTimeout,
	}
}

// OnSeen implements transit.NodeObserver: records/updates a node on any
// DISCOVER reply, INFO, or HEARTBEAT frame. A node is discovered on its
// first INFO or DISCOVER reply, and stays alive while heartbeats arrive.
func (t *Table) OnSeen(nodeID string, info transit.NodeSeenInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[nodeID]
	if !ok {
		n = &Node{ID: nodeID, State: Discovered}
		t.nodes[nodeID] = n
	}
	if len(info.IPList) > 0 {
		n.IPList = info.IPList
	}
	if len(info.Services) > 0 {
		n.Services = info.Services
	}
	if len(info.Actions) > 0 {
		n.Actions = info.Actions
	}
	n.LastHeartbeat = time.Now()
	n.State = Alive
}

// OnDisconnect implements transit.NodeObserver: marks nodeID disconnected
// and deregisters its endpoints.
func (t *Table) OnDisconnect(nodeID string) {
	t.mu.Lock()
	n, ok := t.nodes[nodeID]
	if ok {
		n.State = Disconnected
	}
	t.mu.Unlock()
	if t.registry != nil {
		t.registry.DeregisterNode(nodeID)
	}
}

// List returns a snapshot of every known node, sorted by ID.
func (t *Table) List() []Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Node, 0, len(t.nodes))
	for _, n := range t.nodes {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListNodes adapts List to broker.NodeLister, so a Table can be handed
// directly to broker.WithNodeLister for $node.list.
func (t *Table) ListNodes() []broker.NodeInfo {
	nodes := t.List()
	out := make([]broker.NodeInfo, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, broker.NodeInfo{
			ID:            n.ID,
			IPList:        n.IPList,
			LastHeartbeat: n.LastHeartbeat,
			Alive:         n.State == Alive,
		})
	}
	return out
}

// Start runs the stall watchdog in the background: every heartbeatTimeout
// it sweeps for nodes whose last-seen frame is older than the timeout and
// marks them disconnected exactly as an explicit DISCONNECT would
// (grounded on a poll-on-ticker watchdog idiom, generalized from a
// one-shot stall check to recurring sweeps).
func (t *Table) Start() {
	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})
	go t.sweepLoop()
}

// Stop halts the background sweep. Idempotent once committed.
func (t *Table) Stop() {
	if t.stopCh == nil {
		return
	}
	select {
	case <-t.stopCh:
	default:
		close(t.stopCh)
	}
	<-t.doneCh
}

func (t *Table) sweepLoop() {
	defer close(t.doneCh)
	interval := t.heartbeatTimeout
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.sweep()
		}
	}
}

func (t *Table) sweep() {
	now := time.Now()
	var stale []string
	t.mu.Lock()
	for id, n := range t.nodes {
		if n.State == Alive && now.Sub(n.LastHeartbeat) >= t.heartbeatTimeout {
			n.State = Disconnected
			stale = append(stale, id)
		}
	}
	t.mu.Unlock()

	if t.registry != nil {
		for _, id := range stale {
			t.registry.DeregisterNode(id)
		}
	}
}
