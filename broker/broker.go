// Package broker implements the Moleculer-style service broker core: the
// service registry and endpoint selection, the call pipeline with
// middleware/timeout/retry/fallback, and the local half of the event bus.
// Remote dispatch and cluster membership are injected via the Remote and
// NodeLister interfaces so this package never imports transit or cluster
// directly.
package broker

import (
	"context"
	"encoding/json"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matgreaves/brokerd/brokererr"
	"github.com/matgreaves/run"
	"go.uber.org/zap"
)

// Remote is the subset of Transit the broker needs to hand off a remote
// call or bridge an emitted event. transit.Transit implements this.
type Remote interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Request(c *Context) (any, error)
	PublishEvent(name string, payload any)
}

// Cacher stores and invalidates action results. cacher.Memory and
// cacher.Redis implement it.
type Cacher interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	Del(key string)
	Clean(pattern string)
}

// CacherInitializer is an optional capability a Cacher may implement to
// receive a back-reference to the broker during Start, mirroring a
// capability-interface pattern used elsewhere for optional behaviors.
type CacherInitializer interface {
	Init(b *Broker) error
}

// Validator validates action parameters against a schema, used as a
// fallback when an action has no per-action Validate func.
type Validator interface {
	Validate(action string, params any) error
}

// NodeInfo is the minimal cluster view the broker needs for $node.list.
type NodeInfo struct {
	ID            string
	IPList        []string
	LastHeartbeat time.Time
	Alive         bool
}

// NodeLister lets the broker introspect cluster membership without
// importing the cluster package. cluster.Table implements it.
type NodeLister interface {
	ListNodes() []NodeInfo
}

// Config holds the broker's runtime configuration.
type Config struct {
	NodeID            string
	LogLevel          string
	RequestTimeout    time.Duration
	RequestRetry      int
	MaxCallLevel      int
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	Registry          RegistryConfig
	CircuitBreaker    CircuitBreakerConfig
	Metrics           bool
	MetricsRate       float64
	Statistics        bool
	InternalActions   bool
}

// DefaultConfig matches Moleculer's own defaults, with nodeID defaulted to
// the lowercased hostname.
func DefaultConfig() Config {
	nodeID := "local"
	if h, err := os.Hostname(); err == nil && h != "" {
		nodeID = strings.ToLower(h)
	}
	return Config{
		NodeID:            nodeID,
		LogLevel:          "info",
		RequestTimeout:    0,
		RequestRetry:      0,
		MaxCallLevel:      0,
		HeartbeatInterval: 10 * time.Second,
		HeartbeatTimeout:  30 * time.Second,
		Registry:          DefaultRegistryConfig(),
		CircuitBreaker:    DefaultCircuitBreakerConfig(),
		Metrics:           false,
		MetricsRate:       1,
		Statistics:        false,
		InternalActions:   true,
	}
}

type brokerStats struct {
	calls  atomic.Int64
	errors atomic.Int64
}

// Broker is the per-process runtime hosting services and routing calls.
type Broker struct {
	cfg      Config
	registry *Registry
	bus      *EventBus
	sampler  *sampler
	log      *zap.Logger

	remote    Remote
	cacher    Cacher
	validator Validator
	nodes     NodeLister

	mwMu       sync.Mutex
	middleware []Middleware

	svcMu    sync.Mutex
	services map[string]*ServiceDefinition
	unsubs   []func()

	stats     brokerStats
	startedAt time.Time
	started   atomic.Bool
	stopped   atomic.Bool
}

// BrokerOption configures optional collaborators at construction time.
type BrokerOption func(*Broker)

func WithRemote(r Remote) BrokerOption         { return func(b *Broker) { b.remote = r } }
func WithCacher(c Cacher) BrokerOption         { return func(b *Broker) { b.cacher = c } }
func WithValidator(v Validator) BrokerOption   { return func(b *Broker) { b.validator = v } }
func WithNodeLister(n NodeLister) BrokerOption { return func(b *Broker) { b.nodes = n } }
func WithLogger(l *zap.Logger) BrokerOption    { return func(b *Broker) { b.log = l } }

// SetRemote wires the transit layer onto an already-constructed Broker,
// resolving the constructor cycle where Transit.New itself needs a *Broker.
// Call it before Start.
func (b *Broker) SetRemote(r Remote) { b.remote = r }

// SetNodeLister wires cluster membership onto an already-constructed
// Broker, for the same reason as SetRemote: cluster.Table is typically
// built after the broker so it can deregister from its Registry.
func (b *Broker) SetNodeLister(n NodeLister) { b.nodes = n }

// New constructs a Broker from cfg. Internal $node.* actions are registered
// immediately when cfg.InternalActions is set.
func New(cfg Config, opts ...BrokerOption) *Broker {
	b := &Broker{
		cfg:      cfg,
		bus:      newEventBus(),
		sampler:  newSampler(cfg.MetricsRate),
		services: make(map[string]*ServiceDefinition),
		log:      zap.NewNop(),
	}
	b.registry = newRegistry(cfg.Registry, cfg.CircuitBreaker, b.bus)
	for _, opt := range opts {
		opt(b)
	}
	b.bus.remote = func(name string, payload any) {
		if b.remote != nil {
			b.remote.PublishEvent(name, payload)
		}
	}
	if cfg.InternalActions {
		b.registerInternalActions()
	}
	return b
}

// Use appends middlewares to the chain applied to actions registered by
// AddService from this point on. Middlewares added after a service's
// actions are already wrapped do not retroactively apply.
func (b *Broker) Use(mw ...Middleware) {
	b.mwMu.Lock()
	defer b.mwMu.Unlock()
	b.middleware = append(b.middleware, mw...)
}

// AddService registers def's actions and event listeners, running its
// Created hook immediately. Actions are wrapped by the validator (if the
// action has none of its own) and then by the current middleware chain,
// once, at registration time.
func (b *Broker) AddService(def *ServiceDefinition) error {
	if def.created != nil {
		if err := def.created(); err != nil {
			return err
		}
	}

	b.mwMu.Lock()
	chain := make([]Middleware, len(b.middleware))
	copy(chain, b.middleware)
	b.mwMu.Unlock()

	full := def.FullName()
	names := make([]string, 0, len(def.actions))
	for name := range def.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		a := def.actions[name]
		actionName := full + "." + name
		handler := a.Handler
		if a.Validate != nil {
			handler = withValidation(actionName, handler, a.Validate)
		} else if b.validator != nil {
			handler = withValidation(actionName, handler, func(p any) error { return b.validator.Validate(actionName, p) })
		}
		if a.Cache && b.cacher != nil {
			handler = withCache(actionName, handler, b.cacher)
		}
		handler = composeMiddleware(actionName, handler, chain)
		b.registry.Register("", full, actionName, true, handler)
	}

	for pattern, h := range def.events {
		unsub := b.bus.Subscribe(pattern, h)
		b.svcMu.Lock()
		b.unsubs = append(b.unsubs, unsub)
		b.svcMu.Unlock()
	}

	b.svcMu.Lock()
	b.services[full] = def
	b.svcMu.Unlock()
	return nil
}

func withValidation(action string, next ActionHandler, validate func(any) error) ActionHandler {
	return func(c *Context) (any, error) {
		if err := validate(c.Params); err != nil {
			return nil, brokererr.ValidationError(err.Error(), map[string]any{"action": action}, err)
		}
		return next(c)
	}
}

// withCache wraps next with a read-through cache keyed on action name and
// JSON-encoded params, so a hit skips both the handler and any validation
// layered beneath it.
func withCache(action string, next ActionHandler, cacher Cacher) ActionHandler {
	return func(c *Context) (any, error) {
		key := cacheKey(action, c.Params)
		if val, ok := cacher.Get(key); ok {
			return val, nil
		}
		val, err := next(c)
		if err == nil {
			cacher.Set(key, val)
		}
		return val, err
	}
}

func cacheKey(action string, params any) string {
	raw, err := json.Marshal(params)
	if err != nil {
		return action
	}
	return action + ":" + string(raw)
}

// Call delegates to the pipeline in call.go.

// Emit delivers name locally and, if a transporter is attached, bridges it
// to every other node.
func (b *Broker) Emit(name string, payload any) {
	b.bus.Emit(name, payload)
}

// Subscribe registers a standalone local event listener outside of a
// service definition.
func (b *Broker) Subscribe(pattern string, handler EventHandler) func() {
	return b.bus.Subscribe(pattern, handler)
}

// Registry exposes the registry for packages that need direct introspection
// (transit's INFO handling, cluster's disconnect handling).
func (b *Broker) Registry() *Registry { return b.registry }

// EventBus exposes the bus for Transit to deliver bridged EVENT frames.
func (b *Broker) EventBus() *EventBus { return b.bus }

// Config returns the broker's configuration.
func (b *Broker) Config() Config { return b.cfg }

// Start runs init -> transit connect -> service started hooks, in that
// order. Idempotent once committed.
func (b *Broker) Start(ctx context.Context) error {
	if b.started.Swap(true) {
		return nil
	}
	seq := run.Sequence{
		run.Func(func(ctx context.Context) error { return b.initCollaborators() }),
		run.Func(func(ctx context.Context) error {
			if b.remote != nil {
				return b.remote.Connect(ctx)
			}
			return nil
		}),
		run.Func(func(ctx context.Context) error { return b.startServices() }),
	}
	if err := seq.Run(ctx); err != nil {
		return err
	}
	b.startedAt = time.Now()
	return nil
}

func (b *Broker) initCollaborators() error {
	if init, ok := b.cacher.(CacherInitializer); ok {
		return init.Init(b)
	}
	return nil
}

func (b *Broker) startServices() error {
	b.svcMu.Lock()
	names := make([]string, 0, len(b.services))
	for name := range b.services {
		names = append(names, name)
	}
	sort.Strings(names)
	defs := make([]*ServiceDefinition, 0, len(names))
	for _, name := range names {
		defs = append(defs, b.services[name])
	}
	b.svcMu.Unlock()

	for _, def := range defs {
		if def.started != nil {
			if err := def.started(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Stop reverses Start: stopped hooks -> transit disconnect -> release
// resources. Idempotent once committed.
func (b *Broker) Stop(ctx context.Context) error {
	if b.stopped.Swap(true) {
		return nil
	}
	seq := run.Sequence{
		run.Func(func(ctx context.Context) error { return b.stopServices() }),
		run.Func(func(ctx context.Context) error {
			if b.remote != nil {
				return b.remote.Disconnect(ctx)
			}
			return nil
		}),
		run.Func(func(ctx context.Context) error { return b.release() }),
	}
	return seq.Run(ctx)
}

func (b *Broker) stopServices() error {
	b.svcMu.Lock()
	names := make([]string, 0, len(b.services))
	for name := range b.services {
		names = append(names, name)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	defs := make([]*ServiceDefinition, 0, len(names))
	for _, name := range names {
		defs = append(defs, b.services[name])
	}
	b.svcMu.Unlock()

	for _, def := range defs {
		if def.stopped != nil {
			if err := def.stopped(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Broker) release() error {
	b.svcMu.Lock()
	unsubs := b.unsubs
	b.unsubs = nil
	b.svcMu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}
	return nil
}

func (b *Broker) registerInternalActions() {
	register := func(name string, fn ActionHandler) {
		actionName := "$node." + name
		b.registry.Register("", "$node", actionName, true, fn)
	}

	register("list", func(c *Context) (any, error) {
		if b.nodes == nil {
			return []NodeInfo{{ID: b.cfg.NodeID, Alive: true}}, nil
		}
		return b.nodes.ListNodes(), nil
	})

	register("services", func(c *Context) (any, error) {
		nodeIDs := b.registry.NodeIDs()
		out := make(map[string][]string, len(nodeIDs))
		for _, id := range nodeIDs {
			label := id
			if label == "" {
				label = b.cfg.NodeID
			}
			out[label] = b.registry.Services(id)
		}
		return out, nil
	})

	register("actions", func(c *Context) (any, error) {
		return b.registry.ActionNames(), nil
	})

	register("health", func(c *Context) (any, error) {
		return map[string]any{
			"nodeID":     b.cfg.NodeID,
			"uptime":     time.Since(b.startedAt).Seconds(),
			"goroutines": runtime.NumGoroutine(),
			"cpus":       runtime.NumCPU(),
		}, nil
	})

	if b.cfg.Statistics {
		register("stats", func(c *Context) (any, error) {
			return map[string]any{
				"calls":  b.stats.calls.Load(),
				"errors": b.stats.errors.Load(),
			}, nil
		})
	}
}
