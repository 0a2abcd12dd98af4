package broker

import "time"

// CallOpts collects the optional parameters of a Call invocation.
type CallOpts struct {
	NodeID           string
	Ctx              *Context
	ParentCtx        *Context
	Meta             map[string]any
	Timeout          time.Duration
	RetryCount       int
	FallbackResponse any // a value, or func(c *Context, err error) (any, error)
}

// CallOption configures a single Call invocation.
type CallOption func(*CallOpts)

// WithNodeID pins the call to a specific node; FindEndpoint fails with
// ServiceNotFound (on-node variant) if that node doesn't host the action.
func WithNodeID(nodeID string) CallOption {
	return func(o *CallOpts) { o.NodeID = nodeID }
}

// WithContext reuses an existing Context, preserving its params and only
// updating endpoint/metrics state.
func WithContext(c *Context) CallOption {
	return func(o *CallOpts) { o.Ctx = c }
}

// WithParentContext builds a child Context under parent (mode 2).
func WithParentContext(parent *Context) CallOption {
	return func(o *CallOpts) { o.ParentCtx = parent }
}

// WithMeta supplies child meta overrides merged over the parent's meta.
func WithMeta(meta map[string]any) CallOption {
	return func(o *CallOpts) { o.Meta = meta }
}

// WithTimeout bounds the call; zero means no timeout.
func WithTimeout(d time.Duration) CallOption {
	return func(o *CallOpts) { o.Timeout = d }
}

// WithRetry sets how many times a retryable error re-enters Call.
func WithRetry(n int) CallOption {
	return func(o *CallOpts) { o.RetryCount = n }
}

// WithFallback supplies a value or a func(c, err) to resolve with instead
// of rejecting, once retries are exhausted.
func WithFallback(v any) CallOption {
	return func(o *CallOpts) { o.FallbackResponse = v }
}
