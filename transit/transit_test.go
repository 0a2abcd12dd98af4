package transit

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/matgreaves/brokerd/broker"
	"github.com/matgreaves/brokerd/transit/serialize"
	"github.com/matgreaves/brokerd/transit/transportmem"
)

// node bundles a broker and the Transit connecting it to a shared Network,
// standing in for one cluster member.
type node struct {
	broker *broker.Broker
	transit *Transit
}

func newNode(t *testing.T, nodeID string, net *transportmem.Network) *node {
	t.Helper()
	cfg := broker.DefaultConfig()
	cfg.NodeID = nodeID
	cfg.InternalActions = false
	b := broker.New(cfg)

	tr := transportmem.New(net)
	tc := Config{NodeID: nodeID, HeartbeatInterval: 20 * time.Millisecond, HeartbeatTimeout: time.Second}
	tn := New(b, tr, serialize.JSON{}, tc, zap.NewNop())
	b.SetRemote(tn)

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = b.Stop(context.Background()) })
	return &node{broker: b, transit: tn}
}

// TestRemoteDispatch exercises a call for an action known only on a second
// node: the caller's broker has no local endpoint, so Call must route the
// request over Transit and resolve from the RESPONSE frame.
func TestRemoteDispatch(t *testing.T) {
	net := transportmem.NewNetwork()
	server := newNode(t, "server-2", net)
	client := newNode(t, "client-1", net)

	var received map[string]any
	svc := broker.NewService("user").Action("create", func(c *broker.Context) (any, error) {
		received = c.Params.(map[string]any)
		return map[string]any{"id": 1}, nil
	})
	if err := server.broker.AddService(svc); err != nil {
		t.Fatalf("AddService() error = %v", err)
	}

	// Hand-register the remote endpoint on the client rather than waiting
	// on DISCOVER/INFO timing, mirroring what handleInfo would do once a
	// real discovery round trip completes.
	client.broker.Registry().Register("server-2", "user", "user.create", false, nil)

	val, err := client.broker.Call(context.Background(), "user.create", map[string]any{"x": float64(1)},
		broker.WithTimeout(2*time.Second))
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	m, ok := val.(map[string]any)
	if !ok || m["id"] != float64(1) {
		t.Errorf("Call() = %v, want {id:1}", val)
	}
	if received["x"] != float64(1) {
		t.Errorf("server received params %v, want {x:1}", received)
	}
}

// TestDisconnectDeregisters drives the frame handlers directly (white-box,
// same package): a HEARTBEAT reaches the observer, and an explicit
// DISCONNECT frame notifies the observer and removes the node's endpoints.
// Heartbeat-timeout sweeping is covered by cluster's own tests.
func TestDisconnectDeregisters(t *testing.T) {
	net := transportmem.NewNetwork()
	cfg := broker.DefaultConfig()
	cfg.NodeID = "client-1"
	cfg.InternalActions = false
	b := broker.New(cfg)
	tr := transportmem.New(net)
	tn := New(b, tr, serialize.JSON{}, Config{NodeID: "client-1"}, zap.NewNop())
	b.SetRemote(tn)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = b.Stop(context.Background()) })

	obs := &fakeObserver{}
	tn.SetNodeObserver(obs)

	b.Registry().Register("server-2", "user", "user.create", false, nil)
	tn.handleHeartbeat(Frame{Sender: "server-2"})
	if len(obs.seen) != 1 || obs.seen[0] != "server-2" {
		t.Fatalf("observer.seen = %v, want [server-2]", obs.seen)
	}

	tn.handleDisconnect(Frame{Sender: "server-2"})
	if len(obs.disconnected) != 1 || obs.disconnected[0] != "server-2" {
		t.Fatalf("observer.disconnected = %v, want [server-2]", obs.disconnected)
	}
	if _, err := b.Call(context.Background(), "user.create", nil); err == nil {
		t.Fatal("Call() succeeded after node disconnect, want ServiceNotFound")
	}
}

type fakeObserver struct {
	seen         []string
	disconnected []string
}

func (f *fakeObserver) OnSeen(nodeID string, info NodeSeenInfo) { f.seen = append(f.seen, nodeID) }
func (f *fakeObserver) OnDisconnect(nodeID string)              { f.disconnected = append(f.disconnected, nodeID) }
