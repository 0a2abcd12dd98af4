package broker

import (
	"math/rand"
	"sync"
)

// ActionHandler is a registered (and possibly middleware-wrapped) action
// implementation.
type ActionHandler func(c *Context) (any, error)

// Strategy picks one endpoint from a non-empty, already-filtered candidate
// set. Implementations must be safe for concurrent use.
type Strategy interface {
	Select(candidates []*Endpoint) *Endpoint
}

// RoundRobin advances a shared cursor modulo the candidate set size. The
// cursor lives on the strategy instance (one per ActionMap) so selection is
// stable and round-robins correctly under concurrent callers.
type RoundRobin struct {
	mu     sync.Mutex
	cursor int
}

func NewRoundRobin() *RoundRobin { return &RoundRobin{} }

func (r *RoundRobin) Select(candidates []*Endpoint) *Endpoint {
	if len(candidates) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ep := candidates[r.cursor%len(candidates)]
	r.cursor++
	return ep
}

// Random picks uniformly among the candidates.
type Random struct{}

func NewRandom() *Random { return &Random{} }

func (Random) Select(candidates []*Endpoint) *Endpoint {
	if len(candidates) == 0 {
		return nil
	}
	return candidates[rand.Intn(len(candidates))]
}

// ActionMap is the ordered set of endpoints exposing one action name. It
// is removed from the registry entirely once empty.
type ActionMap struct {
	mu        sync.Mutex
	endpoints []*Endpoint
	strategy  Strategy
}

func newActionMap(strategy Strategy) *ActionMap {
	return &ActionMap{strategy: strategy}
}

// add inserts ep, returning false if an endpoint for the same node already
// exists (register is idempotent per node).
func (m *ActionMap) add(ep *Endpoint) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.endpoints {
		if existing.NodeID == ep.NodeID {
			return false
		}
	}
	m.endpoints = append(m.endpoints, ep)
	return true
}

// remove drops the endpoint hosted on nodeID, reporting whether the map is
// now empty (the caller removes the ActionMap entirely in that case).
func (m *ActionMap) remove(nodeID string) (removed, empty bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, ep := range m.endpoints {
		if ep.NodeID == nodeID {
			m.endpoints = append(m.endpoints[:i], m.endpoints[i+1:]...)
			return true, len(m.endpoints) == 0
		}
	}
	return false, len(m.endpoints) == 0
}

func (m *ActionMap) byNode(nodeID string) *Endpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ep := range m.endpoints {
		if ep.NodeID == nodeID {
			return ep
		}
	}
	return nil
}

func (m *ActionMap) list() []*Endpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Endpoint, len(m.endpoints))
	copy(out, m.endpoints)
	return out
}

// next applies the endpoint selection policy:
//  1. preferLocal and a local non-OPEN endpoint exists -> that endpoint.
//  2. else among non-OPEN endpoints, pick by strategy.
//  3. (endpoint.State() already auto-promotes OPEN->HALF_OPEN on read once
//     halfOpenTime has elapsed, so a pass over all endpoints naturally
//     surfaces a recovering endpoint as non-OPEN without a separate step.)
//  4. otherwise nil.
func (m *ActionMap) next(preferLocal bool) *Endpoint {
	m.mu.Lock()
	endpoints := make([]*Endpoint, len(m.endpoints))
	copy(endpoints, m.endpoints)
	m.mu.Unlock()

	if preferLocal {
		for _, ep := range endpoints {
			if ep.Local && ep.State() != Open {
				return ep
			}
		}
	}

	candidates := make([]*Endpoint, 0, len(endpoints))
	for _, ep := range endpoints {
		if ep.State() != Open {
			candidates = append(candidates, ep)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	return m.strategy.Select(candidates)
}
