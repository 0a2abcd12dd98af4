package transit

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matgreaves/brokerd/broker"
	"github.com/matgreaves/brokerd/brokererr"
	"github.com/matgreaves/brokerd/transit/serialize"
	"github.com/matgreaves/brokerd/transit/transport"
)

// NodeSeenInfo is passed to a NodeObserver whenever a DISCOVER reply,
// INFO, or HEARTBEAT frame is received from a peer.
type NodeSeenInfo struct {
	IPList   []string
	Services []string
	Actions  []string
}

// NodeObserver lets the cluster package track node liveness without Transit
// needing to know anything about heartbeat-timeout policy; cluster.Table
// implements this.
type NodeObserver interface {
	OnSeen(nodeID string, info NodeSeenInfo)
	OnDisconnect(nodeID string)
}

type pendingRequest struct {
	ch         chan Frame
	targetNode string
}

// Config configures a Transit instance: node identity plus heartbeat
// timing for the wire protocol.
type Config struct {
	NodeID            string
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
}

// Transit is the layer between the broker and an abstract transport that
// speaks the cluster protocol. It implements broker.Remote.
type Transit struct {
	cfg Config
	tr  transport.Transport
	ser serialize.Serializer
	b   *broker.Broker
	log *zap.Logger

	observer NodeObserver

	pendingMu sync.Mutex
	pending   map[string]*pendingRequest

	heartbeatCancel context.CancelFunc
	startedAt       time.Time
}

// New builds a Transit bound to broker b, communicating over tr using ser
// to (de)serialize frame bodies.
func New(b *broker.Broker, tr transport.Transport, ser serialize.Serializer, cfg Config, log *zap.Logger) *Transit {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 10 * time.Second
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = 30 * time.Second
	}
	return &Transit{
		cfg:     cfg,
		tr:      tr,
		ser:     ser,
		b:       b,
		log:     log,
		pending: make(map[string]*pendingRequest),
	}
}

// SetNodeObserver wires a NodeObserver (normally *cluster.Table) to receive
// node-seen/node-disconnected notifications.
func (t *Transit) SetNodeObserver(obs NodeObserver) { t.observer = obs }

// Connect subscribes to this node's topics, starts the heartbeat loop, and
// broadcasts DISCOVER.
func (t *Transit) Connect(ctx context.Context) error {
	if err := t.tr.Connect(ctx); err != nil {
		return err
	}

	subs := map[string]transport.Handler{
		reqTopic(t.cfg.NodeID):  t.onFrame,
		resTopic(t.cfg.NodeID):  t.onFrame,
		infoTopic(t.cfg.NodeID): t.onFrame,
		topicHeartbeat:          t.onFrame,
		topicDiscover:           t.onFrame,
		topicEvent:              t.onFrame,
		topicDisconnect:         t.onFrame,
	}
	for topic, handler := range subs {
		if err := t.tr.Subscribe(topic, handler); err != nil {
			return err
		}
	}

	t.startedAt = time.Now()
	hbCtx, cancel := context.WithCancel(context.Background())
	t.heartbeatCancel = cancel
	go t.heartbeatLoop(hbCtx)

	return t.publish(topicDiscover, Frame{Ver: ProtocolVersion, Sender: t.cfg.NodeID, Kind: KindDiscover})
}

// Disconnect broadcasts DISCONNECT, stops the heartbeat loop, and closes
// the transport.
func (t *Transit) Disconnect(ctx context.Context) error {
	_ = t.publish(topicDisconnect, Frame{Ver: ProtocolVersion, Sender: t.cfg.NodeID, Kind: KindDisconnect})
	if t.heartbeatCancel != nil {
		t.heartbeatCancel()
	}
	return t.tr.Disconnect(ctx)
}

func (t *Transit) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = t.publish(topicHeartbeat, Frame{
				Ver:    ProtocolVersion,
				Sender: t.cfg.NodeID,
				Kind:   KindHeartbeat,
				Uptime: time.Since(t.startedAt).Seconds(),
			})
		}
	}
}

// Request implements broker.Remote: it publishes a REQUEST frame to the
// target node's topic, registers a pending-table entry keyed by the
// context's id, and waits for the correlated RESPONSE or for ctx
// cancellation.
func (t *Transit) Request(c *broker.Context) (any, error) {
	pr := &pendingRequest{ch: make(chan Frame, 1), targetNode: c.NodeID}
	t.pendingMu.Lock()
	t.pending[c.ID] = pr
	t.pendingMu.Unlock()
	defer func() {
		t.pendingMu.Lock()
		delete(t.pending, c.ID)
		t.pendingMu.Unlock()
	}()

	frame := Frame{
		Ver:       ProtocolVersion,
		Sender:    t.cfg.NodeID,
		Kind:      KindRequest,
		ID:        c.ID,
		Action:    c.Action,
		Params:    c.Params,
		Meta:      c.Meta,
		Timeout:   c.Timeout.Milliseconds(),
		Level:     c.Level,
		ParentID:  c.ParentID,
		RequestID: c.RequestID,
		Metrics:   c.Metrics,
	}
	if err := t.publish(reqTopic(c.NodeID), frame); err != nil {
		return nil, brokererr.ServiceNotAvailable(c.Action)
	}

	select {
	case resp := <-pr.ch:
		if resp.Success {
			return resp.Data, nil
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return nil, brokererr.CustomError("remote call failed with no error detail", 500)
	case <-c.GoContext().Done():
		return nil, brokererr.RequestTimeout(c.Action, c.Timeout.Milliseconds())
	}
}

// PublishEvent implements broker.Remote: broadcasts an EVENT frame so every
// other node delivers it locally in turn.
func (t *Transit) PublishEvent(name string, payload any) {
	_ = t.publish(topicEvent, Frame{
		Ver:    ProtocolVersion,
		Sender: t.cfg.NodeID,
		Kind:   KindEvent,
		Name:   name,
		Data:   payload,
	})
}

func (t *Transit) publish(topic string, frame Frame) error {
	data, err := t.ser.Serialize(frame)
	if err != nil {
		return err
	}
	return t.tr.Publish(topic, data)
}

func localIPList() []string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	var ips []string
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		ips = append(ips, ipNet.IP.String())
	}
	return ips
}
