package transit

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/matgreaves/brokerd/broker"
	"github.com/matgreaves/brokerd/brokererr"
)

func (t *Transit) onFrame(payload []byte) {
	var frame Frame
	if err := t.ser.Deserialize(payload, &frame); err != nil {
		t.log.Warn("transit: undecodable frame", zap.Error(err))
		return
	}
	if frame.Sender == t.cfg.NodeID {
		switch frame.Kind {
		case KindDiscover, KindHeartbeat, KindEvent, KindDisconnect:
			// Broadcast topics loop back to the sender; ignore our own.
			return
		}
	}

	switch frame.Kind {
	case KindDiscover:
		t.handleDiscover(frame)
	case KindInfo:
		t.handleInfo(frame)
	case KindHeartbeat:
		t.handleHeartbeat(frame)
	case KindDisconnect:
		t.handleDisconnect(frame)
	case KindRequest:
		t.handleRequest(frame)
	case KindResponse:
		t.handleResponse(frame)
	case KindEvent:
		t.handleEvent(frame)
	}
}

func (t *Transit) handleDiscover(frame Frame) {
	reply := Frame{
		Ver:      ProtocolVersion,
		Sender:   t.cfg.NodeID,
		Kind:     KindInfo,
		Services: t.b.Registry().Services(""),
		Actions:  t.b.Registry().LocalActionNames(),
		IPList:   localIPList(),
	}
	_ = t.publish(infoTopic(frame.Sender), reply)
}

func (t *Transit) handleInfo(frame Frame) {
	for _, action := range frame.Actions {
		service := action
		if i := strings.Index(action, "."); i >= 0 {
			service = action[:i]
		}
		t.b.Registry().Register(frame.Sender, service, action, false, nil)
	}
	if t.observer != nil {
		t.observer.OnSeen(frame.Sender, NodeSeenInfo{IPList: frame.IPList, Services: frame.Services, Actions: frame.Actions})
	}
}

func (t *Transit) handleHeartbeat(frame Frame) {
	if t.observer != nil {
		t.observer.OnSeen(frame.Sender, NodeSeenInfo{})
	}
}

func (t *Transit) handleDisconnect(frame Frame) {
	t.b.Registry().DeregisterNode(frame.Sender)

	t.pendingMu.Lock()
	var toReject []*pendingRequest
	for id, pr := range t.pending {
		if pr.targetNode == frame.Sender {
			toReject = append(toReject, pr)
			delete(t.pending, id)
		}
	}
	t.pendingMu.Unlock()
	for _, pr := range toReject {
		pr.ch <- Frame{Kind: KindResponse, Success: false, Error: brokererr.ServiceNotAvailable("")}
	}

	if t.observer != nil {
		t.observer.OnDisconnect(frame.Sender)
	}
}

func (t *Transit) handleRequest(frame Frame) {
	ep, err := t.b.Registry().FindLocalEndpoint(frame.Action)
	if err != nil {
		t.respondError(frame, brokererr.Wrap(err))
		return
	}

	timeout := time.Duration(frame.Timeout) * time.Millisecond
	goCtx := context.Background()
	var cancel context.CancelFunc
	if timeout > 0 {
		goCtx, cancel = context.WithTimeout(goCtx, timeout)
		defer cancel()
	}
	rc := broker.NewRemoteContext(goCtx, frame.ID, frame.RequestID, frame.ParentID, frame.Action, frame.Params, frame.Meta, frame.Level, timeout, frame.Metrics)

	val, err := ep.Handler(rc)
	if err != nil {
		t.respondError(frame, brokererr.Wrap(err))
		return
	}
	_ = t.publish(resTopic(frame.Sender), Frame{
		Ver:     ProtocolVersion,
		Sender:  t.cfg.NodeID,
		Kind:    KindResponse,
		ID:      frame.ID,
		Success: true,
		Data:    val,
	})
}

func (t *Transit) respondError(frame Frame, err *brokererr.Error) {
	_ = t.publish(resTopic(frame.Sender), Frame{
		Ver:     ProtocolVersion,
		Sender:  t.cfg.NodeID,
		Kind:    KindResponse,
		ID:      frame.ID,
		Success: false,
		Error:   err,
	})
}

func (t *Transit) handleResponse(frame Frame) {
	t.pendingMu.Lock()
	pr, ok := t.pending[frame.ID]
	if ok {
		delete(t.pending, frame.ID)
	}
	t.pendingMu.Unlock()
	if !ok {
		return
	}
	pr.ch <- frame
}

func (t *Transit) handleEvent(frame Frame) {
	t.b.EventBus().DeliverRemote(frame.Name, frame.Data)
}
