package broker

import (
	"sort"
	"strings"
	"sync"
)

// EventHandler receives a locally or remotely emitted event.
type EventHandler func(name string, payload any)

type subscription struct {
	seq     uint64
	handler EventHandler
	once    bool
	active  bool
}

// trieNode indexes subscribers by dot-separated segment, giving O(depth)
// wildcard matching.
// A "*" child matches exactly one segment; a "**" child's subscribers match
// any suffix from that point on, however many segments remain.
type trieNode struct {
	children    map[string]*trieNode
	star        *trieNode
	doubleStar  []*subscription
	subscribers []*subscription
}

func newTrieNode() *trieNode {
	return &trieNode{children: make(map[string]*trieNode)}
}

// EventBus implements a two-tier local/bridged publish-subscribe model.
// Local delivery is synchronous, in subscription order; a remote bridge
// (Transit) is wired in by the broker when a transporter is configured.
type EventBus struct {
	mu       sync.Mutex
	root     *trieNode
	nextSeq  uint64
	remote   func(name string, payload any)
	selfNode string
}

func newEventBus() *EventBus {
	return &EventBus{root: newTrieNode()}
}

// Subscribe registers handler for events matching pattern ("*" for one
// segment, "**" for any suffix). Returns an unsubscribe func.
func (b *EventBus) Subscribe(pattern string, handler EventHandler) func() {
	return b.subscribe(pattern, handler, false)
}

// Once registers handler for the first matching event only.
func (b *EventBus) Once(pattern string, handler EventHandler) func() {
	return b.subscribe(pattern, handler, true)
}

func (b *EventBus) subscribe(pattern string, handler EventHandler, once bool) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSeq++
	sub := &subscription{seq: b.nextSeq, handler: handler, once: once, active: true}

	node := b.root
	for _, seg := range strings.Split(pattern, ".") {
		switch seg {
		case "**":
			node.doubleStar = append(node.doubleStar, sub)
			return func() { b.deactivate(sub) }
		case "*":
			if node.star == nil {
				node.star = newTrieNode()
			}
			node = node.star
		default:
			child, ok := node.children[seg]
			if !ok {
				child = newTrieNode()
				node.children[seg] = child
			}
			node = child
		}
	}
	node.subscribers = append(node.subscribers, sub)
	return func() { b.deactivate(sub) }
}

func (b *EventBus) deactivate(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub.active = false
}

// Emit delivers name to every matching local subscriber, in subscription
// order, and — if a remote bridge is wired — publishes it for every other
// node to deliver locally in turn.
func (b *EventBus) Emit(name string, payload any) {
	b.emitLocal(name, payload)
	b.mu.Lock()
	remote := b.remote
	b.mu.Unlock()
	if remote != nil {
		remote(name, payload)
	}
}

// DeliverRemote delivers an EVENT frame received from a peer to this node's
// local subscribers only — it must not re-publish back out to transit, or
// every EVENT would bounce around the cluster forever.
func (b *EventBus) DeliverRemote(name string, payload any) {
	b.emitLocal(name, payload)
}

// emitLocal delivers only to local subscribers, used both by Emit and by
// Transit when it receives an EVENT frame from a peer.
func (b *EventBus) emitLocal(name string, payload any) {
	segs := strings.Split(name, ".")
	b.mu.Lock()
	matched := collect(b.root, segs)
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })
	var toDeactivate []*subscription
	b.mu.Unlock()

	for _, sub := range matched {
		if !sub.active {
			continue
		}
		sub.handler(name, payload)
		if sub.once {
			toDeactivate = append(toDeactivate, sub)
		}
	}
	if len(toDeactivate) > 0 {
		b.mu.Lock()
		for _, sub := range toDeactivate {
			sub.active = false
		}
		b.mu.Unlock()
	}
}

func collect(node *trieNode, segs []string) []*subscription {
	if node == nil {
		return nil
	}
	var out []*subscription
	out = append(out, node.doubleStar...)
	if len(segs) == 0 {
		out = append(out, node.subscribers...)
		return out
	}
	head, rest := segs[0], segs[1:]
	if child, ok := node.children[head]; ok {
		out = append(out, collect(child, rest)...)
	}
	if node.star != nil {
		out = append(out, collect(node.star, rest)...)
	}
	return out
}
