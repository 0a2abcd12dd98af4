// Package transportmem is an in-process Transport, used for single-node
// deployments and for exercising Transit's wire protocol end-to-end in
// tests without a network. Multiple Transports sharing one *Network
// simulate a cluster within a single process.
package transportmem

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/matgreaves/brokerd/transit/transport"
)

type subEntry struct {
	transportID string
	handler     transport.Handler
}

// Network is the shared virtual wire. Transports publish and subscribe
// through it; delivery is synchronous and in subscription order per topic.
type Network struct {
	mu   sync.Mutex
	subs map[string][]subEntry
}

func NewNetwork() *Network {
	return &Network{subs: make(map[string][]subEntry)}
}

func (n *Network) publish(topic string, payload []byte) {
	n.mu.Lock()
	recipients := append([]subEntry(nil), n.subs[topic]...)
	n.mu.Unlock()
	for _, r := range recipients {
		r.handler(payload)
	}
}

func (n *Network) subscribe(topic, transportID string, h transport.Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subs[topic] = append(n.subs[topic], subEntry{transportID, h})
}

func (n *Network) disconnect(transportID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for topic, entries := range n.subs {
		kept := entries[:0]
		for _, e := range entries {
			if e.transportID != transportID {
				kept = append(kept, e)
			}
		}
		n.subs[topic] = kept
	}
}

// Transport is one node's attachment point to a Network.
type Transport struct {
	net       *Network
	id        string
	connected atomic.Bool
}

// New attaches a fresh Transport to net.
func New(net *Network) *Transport {
	return &Transport{net: net, id: generateID()}
}

func generateID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func (t *Transport) Connect(ctx context.Context) error {
	t.connected.Store(true)
	return nil
}

func (t *Transport) Disconnect(ctx context.Context) error {
	t.connected.Store(false)
	t.net.disconnect(t.id)
	return nil
}

func (t *Transport) Subscribe(topic string, handler transport.Handler) error {
	t.net.subscribe(topic, t.id, handler)
	return nil
}

func (t *Transport) Publish(topic string, payload []byte) error {
	if !t.connected.Load() {
		return errors.New("transportmem: publish on disconnected transport")
	}
	t.net.publish(topic, payload)
	return nil
}
