// Package transportnats is the concrete NATS-backed Transport, built on
// the nats-io/nats.go client.
package transportnats

import (
	"context"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/matgreaves/brokerd/transit/transport"
)

// Transport adapts a *nats.Conn to transport.Transport. Topic names are
// used as-is as NATS subjects ("MOL.REQ.node-1" is a valid subject).
type Transport struct {
	url  string
	opts []nats.Option

	mu   sync.Mutex
	conn *nats.Conn
	subs []*nats.Subscription
}

// New returns a Transport that will dial url on Connect.
func New(url string, opts ...nats.Option) *Transport {
	return &Transport{url: url, opts: opts}
}

func (t *Transport) Connect(ctx context.Context) error {
	conn, err := nats.Connect(t.url, t.opts...)
	if err != nil {
		return fmt.Errorf("transportnats: connect %q: %w", t.url, err)
	}
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	return nil
}

func (t *Transport) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, sub := range t.subs {
		_ = sub.Unsubscribe()
	}
	t.subs = nil
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	return nil
}

func (t *Transport) Subscribe(topic string, handler transport.Handler) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("transportnats: subscribe %q: not connected", topic)
	}
	sub, err := conn.Subscribe(topic, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("transportnats: subscribe %q: %w", topic, err)
	}
	t.mu.Lock()
	t.subs = append(t.subs, sub)
	t.mu.Unlock()
	return nil
}

func (t *Transport) Publish(topic string, payload []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("transportnats: publish %q: not connected", topic)
	}
	if err := conn.Publish(topic, payload); err != nil {
		return fmt.Errorf("transportnats: publish %q: %w", topic, err)
	}
	return nil
}
