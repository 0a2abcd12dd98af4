package broker

import (
	"sort"
	"sync"

	"github.com/matgreaves/brokerd/brokererr"
)

// RegistryConfig controls endpoint selection policy: which Strategy to use
// and whether a local endpoint is preferred over a remote one.
type RegistryConfig struct {
	PreferLocal bool
	// NewStrategy builds a fresh Strategy for each new ActionMap (a
	// RoundRobin strategy carries its own cursor, so it cannot be shared
	// across actions). Defaults to NewRoundRobin.
	NewStrategy func() Strategy
}

// DefaultRegistryConfig matches Moleculer's own defaults (round robin,
// prefer local).
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		PreferLocal: true,
		NewStrategy: func() Strategy { return NewRoundRobin() },
	}
}

// Registry is the action-name -> ActionMap table, plus the bookkeeping
// needed for node arrival/departure and the $node.* actions.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]*ActionMap

	// serviceActions tracks which actions belong to which (nodeID, service)
	// pair purely for introspection ($node.services, $node.actions); it is
	// not consulted by FindEndpoint.
	serviceActions map[string]map[string][]string // nodeID -> service -> actions

	cfg   RegistryConfig
	cbCfg CircuitBreakerConfig
	bus   *EventBus // may be nil
}

func newRegistry(cfg RegistryConfig, cbCfg CircuitBreakerConfig, bus *EventBus) *Registry {
	if cfg.NewStrategy == nil {
		cfg.NewStrategy = func() Strategy { return NewRoundRobin() }
	}
	return &Registry{
		actions:        make(map[string]*ActionMap),
		serviceActions: make(map[string]map[string][]string),
		cfg:            cfg,
		cbCfg:          cbCfg,
		bus:            bus,
	}
}

// Register adds an endpoint for action on nodeID ("" denotes the local
// node). handler is only meaningful when local is true. Returns whether the
// endpoint is new.
func (r *Registry) Register(nodeID, service, action string, local bool, handler ActionHandler) bool {
	r.mu.Lock()
	m, ok := r.actions[action]
	if !ok {
		m = newActionMap(r.cfg.NewStrategy())
		r.actions[action] = m
	}
	if r.serviceActions[nodeID] == nil {
		r.serviceActions[nodeID] = make(map[string][]string)
	}
	r.serviceActions[nodeID][service] = appendUnique(r.serviceActions[nodeID][service], action)
	r.mu.Unlock()

	ep := newEndpoint(nodeID, action, local, handler, r.cbCfg)
	isNew := m.add(ep)

	// One local "register.action.*" event is emitted for both local
	// and remote registrations; nodeID on the event is the only way to
	// distinguish them.
	if isNew && r.bus != nil {
		r.bus.emitLocal("register.action."+action, map[string]any{
			"action": action,
			"nodeID": nodeID,
			"local":  local,
		})
	}
	return isNew
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// Deregister removes the endpoint for action hosted on nodeID, dropping the
// ActionMap entirely once it becomes empty.
func (r *Registry) Deregister(nodeID, action string) {
	r.mu.RLock()
	m := r.actions[action]
	r.mu.RUnlock()
	if m == nil {
		return
	}
	_, empty := m.remove(nodeID)
	if empty {
		r.mu.Lock()
		delete(r.actions, action)
		r.mu.Unlock()
	}
}

// DeregisterNode removes every endpoint hosted on nodeID, e.g. on DISCONNECT
// or heartbeat timeout. Returns the set of action names that were affected.
func (r *Registry) DeregisterNode(nodeID string) []string {
	r.mu.Lock()
	affected := make([]string, 0, len(r.actions))
	for name := range r.actions {
		affected = append(affected, name)
	}
	delete(r.serviceActions, nodeID)
	r.mu.Unlock()

	var removed []string
	for _, name := range affected {
		r.mu.RLock()
		m := r.actions[name]
		r.mu.RUnlock()
		if m == nil {
			continue
		}
		did, empty := m.remove(nodeID)
		if did {
			removed = append(removed, name)
		}
		if empty {
			r.mu.Lock()
			delete(r.actions, name)
			r.mu.Unlock()
		}
	}
	return removed
}

// FindLocalEndpoint looks up the local endpoint for action, for Transit's
// REQUEST handling: an incoming remote call must dispatch to this node's own
// handler, never re-select among remote endpoints.
func (r *Registry) FindLocalEndpoint(action string) (*Endpoint, error) {
	r.mu.RLock()
	m := r.actions[action]
	r.mu.RUnlock()
	if m == nil {
		return nil, brokererr.ServiceNotFound(action)
	}
	ep := m.byNode("")
	if ep == nil || !ep.Local {
		return nil, brokererr.ServiceNotFound(action)
	}
	return ep, nil
}

// LocalActionNames returns the sorted names of actions hosted locally on
// this node, for the INFO frame's Actions field.
func (r *Registry) LocalActionNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for name, m := range r.actions {
		if ep := m.byNode(""); ep != nil && ep.Local {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// FindEndpoint resolves action to an endpoint via the registry's selection
// policy. Lookups never fail outright: an unknown action or an action with
// no admissible endpoint returns a *brokererr.Error the caller surfaces.
func (r *Registry) FindEndpoint(action, preferNodeID string) (*Endpoint, error) {
	r.mu.RLock()
	m := r.actions[action]
	r.mu.RUnlock()
	if m == nil {
		return nil, brokererr.ServiceNotFound(action)
	}

	if preferNodeID != "" {
		ep := m.byNode(preferNodeID)
		if ep == nil {
			return nil, brokererr.ServiceNotFoundOnNode(action, preferNodeID)
		}
		return ep, nil
	}

	ep := m.next(r.cfg.PreferLocal)
	if ep == nil {
		return nil, brokererr.ServiceNotAvailable(action)
	}
	return ep, nil
}

// HasAction reports whether any endpoint (local or remote) exposes action.
func (r *Registry) HasAction(action string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.actions[action]
	if !ok {
		return false
	}
	return len(m.list()) > 0
}

// ActionNames returns every registered action name, sorted, for $node.actions.
func (r *Registry) ActionNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns every endpoint for action, or every endpoint across all
// actions when action is "".
func (r *Registry) List(action string) []*Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if action != "" {
		m := r.actions[action]
		if m == nil {
			return nil
		}
		return m.list()
	}
	var all []*Endpoint
	for _, m := range r.actions {
		all = append(all, m.list()...)
	}
	return all
}

// NodeIDs returns every distinct nodeID with at least one registered
// service ("" denotes the local node), sorted.
func (r *Registry) NodeIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.serviceActions))
	for id := range r.serviceActions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Services returns the service names known to be hosted on nodeID.
func (r *Registry) Services(nodeID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svcs := r.serviceActions[nodeID]
	names := make([]string, 0, len(svcs))
	for name := range svcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
