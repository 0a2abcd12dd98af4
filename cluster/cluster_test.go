package cluster

import (
	"testing"
	"time"

	"github.com/matgreaves/brokerd/transit"
)

type fakeRegistry struct {
	deregistered []string
}

func (f *fakeRegistry) DeregisterNode(nodeID string) []string {
	f.deregistered = append(f.deregistered, nodeID)
	return nil
}

func TestOnSeenDiscoversThenAlive(t *testing.T) {
	reg := &fakeRegistry{}
	table := NewTable(reg, time.Second)

	table.OnSeen("server-2", transit.NodeSeenInfo{Services: []string{"user"}, Actions: []string{"user.create"}})

	nodes := table.List()
	if len(nodes) != 1 {
		t.Fatalf("List() = %d nodes, want 1", len(nodes))
	}
	if nodes[0].State != Alive {
		t.Errorf("State = %v, want Alive", nodes[0].State)
	}
	if len(nodes[0].Actions) != 1 || nodes[0].Actions[0] != "user.create" {
		t.Errorf("Actions = %v, want [user.create]", nodes[0].Actions)
	}
}

func TestOnDisconnectDeregisters(t *testing.T) {
	reg := &fakeRegistry{}
	table := NewTable(reg, time.Second)
	table.OnSeen("server-2", transit.NodeSeenInfo{})

	table.OnDisconnect("server-2")

	nodes := table.List()
	if nodes[0].State != Disconnected {
		t.Errorf("State = %v, want Disconnected", nodes[0].State)
	}
	if len(reg.deregistered) != 1 || reg.deregistered[0] != "server-2" {
		t.Errorf("deregistered = %v, want [server-2]", reg.deregistered)
	}
}

// TestHeartbeatLossSweep drives sweep() directly (white-box, same package)
// against a node whose last-seen timestamp has fallen outside
// heartbeatTimeout, confirming S7: a node goes Disconnected and its
// endpoints are deregistered without an explicit DISCONNECT frame.
func TestHeartbeatLossSweep(t *testing.T) {
	reg := &fakeRegistry{}
	table := NewTable(reg, 10*time.Millisecond)
	table.OnSeen("server-2", transit.NodeSeenInfo{})

	time.Sleep(20 * time.Millisecond)
	table.sweep()

	nodes := table.List()
	if nodes[0].State != Disconnected {
		t.Errorf("State = %v, want Disconnected after stale heartbeat", nodes[0].State)
	}
	if len(reg.deregistered) != 1 || reg.deregistered[0] != "server-2" {
		t.Errorf("deregistered = %v, want [server-2]", reg.deregistered)
	}
}

func TestSweepLeavesFreshNodesAlive(t *testing.T) {
	reg := &fakeRegistry{}
	table := NewTable(reg, time.Second)
	table.OnSeen("server-2", transit.NodeSeenInfo{})

	table.sweep()

	nodes := table.List()
	if nodes[0].State != Alive {
		t.Errorf("State = %v, want Alive (heartbeat still fresh)", nodes[0].State)
	}
	if len(reg.deregistered) != 0 {
		t.Errorf("deregistered = %v, want none", reg.deregistered)
	}
}

func TestStartStop(t *testing.T) {
	reg := &fakeRegistry{}
	table := NewTable(reg, 5*time.Millisecond)
	table.OnSeen("server-2", transit.NodeSeenInfo{})
	table.Start()
	time.Sleep(20 * time.Millisecond)
	table.Stop()

	nodes := table.List()
	if nodes[0].State != Disconnected {
		t.Errorf("State = %v, want Disconnected after the background sweep ran", nodes[0].State)
	}
}

func TestListNodesAdaptsToBrokerNodeInfo(t *testing.T) {
	reg := &fakeRegistry{}
	table := NewTable(reg, time.Second)
	table.OnSeen("server-2", transit.NodeSeenInfo{IPList: []string{"10.0.0.2"}})

	infos := table.ListNodes()
	if len(infos) != 1 {
		t.Fatalf("ListNodes() = %d, want 1", len(infos))
	}
	if infos[0].ID != "server-2" || !infos[0].Alive {
		t.Errorf("ListNodes()[0] = %+v, want ID=server-2 Alive=true", infos[0])
	}
	if len(infos[0].IPList) != 1 || infos[0].IPList[0] != "10.0.0.2" {
		t.Errorf("IPList = %v, want [10.0.0.2]", infos[0].IPList)
	}
}
