package broker

// ActionDef is one action's full definition: its handler plus optional
// cache/validation policy.
type ActionDef struct {
	Name     string
	Handler  ActionHandler
	Cache    bool
	Validate func(params any) error
}

// ActionOption configures an ActionDef at registration time.
type ActionOption func(*ActionDef)

// WithCache marks an action as cacheable by the broker's configured cacher.
func WithCache(enabled bool) ActionOption {
	return func(a *ActionDef) { a.Cache = enabled }
}

// WithValidator attaches a parameter validator run before the handler.
func WithValidator(fn func(params any) error) ActionOption {
	return func(a *ActionDef) { a.Validate = fn }
}

// ServiceDefinition is an explicit builder in place of the dynamic
// "mods"-object schema merge a JS broker would use: fields are typed, and
// re-applying Settings replaces rather than concatenates arrays.
type ServiceDefinition struct {
	name     string
	version  string
	settings map[string]any
	actions  map[string]*ActionDef
	events   map[string]EventHandler
	created  func() error
	started  func() error
	stopped  func() error
}

// NewService starts a builder for a service named name.
func NewService(name string) *ServiceDefinition {
	return &ServiceDefinition{
		name:     name,
		settings: map[string]any{},
		actions:  map[string]*ActionDef{},
		events:   map[string]EventHandler{},
	}
}

// Version sets the service version; FullName becomes "v<version>.<name>".
func (s *ServiceDefinition) Version(v string) *ServiceDefinition {
	s.version = v
	return s
}

// Settings replaces the service's settings map wholesale. Re-calling
// Settings does not deep-merge with a prior call; use Merge for that.
func (s *ServiceDefinition) Settings(m map[string]any) *ServiceDefinition {
	s.settings = m
	return s
}

// Action registers name -> handler with optional cache/validation policy.
func (s *ServiceDefinition) Action(name string, handler ActionHandler, opts ...ActionOption) *ServiceDefinition {
	a := &ActionDef{Name: name, Handler: handler}
	for _, opt := range opts {
		opt(a)
	}
	s.actions[name] = a
	return s
}

// Event registers a local event listener the broker subscribes when the
// service is added via AddService.
func (s *ServiceDefinition) Event(pattern string, handler EventHandler) *ServiceDefinition {
	s.events[pattern] = handler
	return s
}

// Created sets the created hook, run once when the service is added to a
// broker, before Start.
func (s *ServiceDefinition) Created(fn func() error) *ServiceDefinition {
	s.created = fn
	return s
}

// Started sets the started hook, run during broker Start after actions are
// registered.
func (s *ServiceDefinition) Started(fn func() error) *ServiceDefinition {
	s.started = fn
	return s
}

// Stopped sets the stopped hook, run during broker Stop before Transit
// disconnects.
func (s *ServiceDefinition) Stopped(fn func() error) *ServiceDefinition {
	s.stopped = fn
	return s
}

// FullName returns "v<version>.<name>" when versioned, else name.
func (s *ServiceDefinition) FullName() string {
	if s.version != "" {
		return "v" + s.version + "." + s.name
	}
	return s.name
}

// Merge applies mods onto s: settings deep-merge (arrays replaced, not
// concatenated); actions/events shallow merge with mods winning;
// name/version/hooks wholly overridden when set in mods. Returns s for
// chaining.
func (s *ServiceDefinition) Merge(mods *ServiceDefinition) *ServiceDefinition {
	if mods.name != "" {
		s.name = mods.name
	}
	if mods.version != "" {
		s.version = mods.version
	}
	s.settings = deepMergeSettings(s.settings, mods.settings)
	for name, a := range mods.actions {
		s.actions[name] = a
	}
	for pattern, h := range mods.events {
		s.events[pattern] = h
	}
	if mods.created != nil {
		s.created = mods.created
	}
	if mods.started != nil {
		s.started = mods.started
	}
	if mods.stopped != nil {
		s.stopped = mods.stopped
	}
	return s
}

// deepMergeSettings merges src onto dst: nested maps merge recursively,
// everything else (including slices) is replaced wholesale.
func deepMergeSettings(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		if srcMap, ok := v.(map[string]any); ok {
			if dstMap, ok := out[k].(map[string]any); ok {
				out[k] = deepMergeSettings(dstMap, srcMap)
				continue
			}
		}
		out[k] = v
	}
	return out
}
