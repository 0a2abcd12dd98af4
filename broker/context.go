package broker

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MetricSpan records the start/finish timestamps of a sampled call, mirroring
// the span attributes a tracing backend would want without depending on one.
type MetricSpan struct {
	Start    time.Time
	Finish   time.Time
	Error    error
	Sampled  bool
}

// Done marks the span finished, recording err (nil on success).
func (s *MetricSpan) Done(err error) {
	s.Finish = time.Now()
	s.Error = err
}

// Context is the per-call value object threaded through the call pipeline,
// middleware chain, and (for remote calls) Transit. It is immutable after
// dispatch except for RetryCount, which the error handler decrements in
// place when re-entering Call.
type Context struct {
	// goCtx carries cancellation/deadline; never exposed directly so callers
	// can't replace it out from under an in-flight dispatch.
	goCtx context.Context

	ID        string
	RequestID string
	ParentID  string
	Level     int
	NodeID    string // target node; "" means local
	Action    string
	Params    any
	Meta      map[string]any
	Timeout   time.Duration
	RetryCount int
	Metrics   bool
	Span      *MetricSpan
}

// GoContext returns the context.Context governing this call's cancellation.
func (c *Context) GoContext() context.Context {
	if c.goCtx == nil {
		return context.Background()
	}
	return c.goCtx
}

// WithGoContext returns a shallow copy of c with its cancellation context
// replaced, used when the pipeline attaches a timeout around dispatch.
func (c *Context) WithGoContext(ctx context.Context) *Context {
	cp := *c
	cp.goCtx = ctx
	return &cp
}

func newID() string {
	return uuid.NewString()
}

// rootContext builds a new top-level Context for a call with no parent:
// requestID equals id only when metrics sampling selects this call.
func rootContext(ctx context.Context, action string, params any, sampled bool) *Context {
	id := newID()
	c := &Context{
		goCtx:   ctx,
		ID:      id,
		Level:   1,
		Action:  action,
		Params:  params,
		Meta:    map[string]any{},
		Metrics: sampled,
	}
	if sampled {
		c.RequestID = id
		c.Span = &MetricSpan{Start: time.Now(), Sampled: true}
	}
	return c
}

// NewRemoteContext reconstructs a Context on the node hosting action from an
// incoming REQUEST frame's fields, for handing to a local handler. Exported
// so transit can build it without either package needing to know the
// other's internals beyond this one constructor.
func NewRemoteContext(goCtx context.Context, id, requestID, parentID, action string, params any, meta map[string]any, level int, timeout time.Duration, metrics bool) *Context {
	c := &Context{
		goCtx:      goCtx,
		ID:         id,
		RequestID:  requestID,
		ParentID:   parentID,
		Level:      level,
		Action:     action,
		Params:     params,
		Meta:       meta,
		Timeout:    timeout,
		Metrics:    metrics,
	}
	if c.Meta == nil {
		c.Meta = map[string]any{}
	}
	if metrics {
		c.Span = &MetricSpan{Start: time.Now(), Sampled: true}
	}
	return c
}

// childContext builds a new Context from a parent for a nested call:
// level = parent.level+1, requestID and metrics flag inherited, meta
// shallow-merged with the child's overrides taking precedence.
func childContext(ctx context.Context, parent *Context, action string, params any, meta map[string]any) *Context {
	merged := make(map[string]any, len(parent.Meta)+len(meta))
	for k, v := range parent.Meta {
		merged[k] = v
	}
	for k, v := range meta {
		merged[k] = v
	}
	c := &Context{
		goCtx:     ctx,
		ID:        newID(),
		RequestID: parent.RequestID,
		ParentID:  parent.ID,
		Level:     parent.Level + 1,
		Action:    action,
		Params:    params,
		Meta:      merged,
		Metrics:   parent.Metrics,
	}
	if c.RequestID == "" {
		c.RequestID = parent.ID
	}
	if c.Metrics {
		c.Span = &MetricSpan{Start: time.Now(), Sampled: true}
	}
	return c
}
