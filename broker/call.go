package broker

import (
	"context"

	"github.com/matgreaves/brokerd/brokererr"
)

// Call runs the seven-step pipeline: resolve endpoint, build/reuse Context,
// check the circuit breaker, dispatch, apply the timeout, handle errors
// (retry/fallback), then record success.
func (b *Broker) Call(ctx context.Context, action string, params any, opts ...CallOption) (any, error) {
	o := &CallOpts{Timeout: b.cfg.RequestTimeout, RetryCount: b.cfg.RequestRetry}
	for _, opt := range opts {
		opt(o)
	}
	b.stats.calls.Add(1)
	val, err := b.call(ctx, action, params, o)
	if err != nil {
		b.stats.errors.Add(1)
	}
	return val, err
}

func (b *Broker) call(ctx context.Context, action string, params any, o *CallOpts) (any, error) {
	// Step 1 — resolve endpoint.
	ep, err := b.registry.FindEndpoint(action, o.NodeID)
	if err != nil {
		return nil, err
	}

	// Step 2 — build or reuse Context.
	var cc *Context
	switch {
	case o.Ctx != nil:
		cc = o.Ctx
		cc.NodeID = ep.NodeID
	case o.ParentCtx != nil:
		level := o.ParentCtx.Level + 1
		if b.cfg.MaxCallLevel > 0 && level > b.cfg.MaxCallLevel {
			return nil, brokererr.MaxCallLevel(action, level)
		}
		cc = childContext(ctx, o.ParentCtx, action, params, o.Meta)
		cc.NodeID = ep.NodeID
	default:
		sampled := b.cfg.Metrics && b.sampler.shouldMetric()
		cc = rootContext(ctx, action, params, sampled)
		cc.NodeID = ep.NodeID
	}
	cc.Timeout = o.Timeout
	cc.RetryCount = o.RetryCount

	// Step 3 — circuit-breaker gate.
	if b.cfg.CircuitBreaker.Enabled && ep.State() == Open {
		return b.callErrorHandler(ctx, ep, cc, o, brokererr.ServiceNotAvailable(action))
	}

	// Step 4/5 — dispatch, raced against opts.timeout.
	dispatchCtx := cc.GoContext()
	var cancel context.CancelFunc
	if o.Timeout > 0 {
		dispatchCtx, cancel = context.WithTimeout(dispatchCtx, o.Timeout)
	} else {
		dispatchCtx, cancel = context.WithCancel(dispatchCtx)
	}
	defer cancel()

	val, dispatchErr := b.dispatch(cc.WithGoContext(dispatchCtx), ep)
	if dispatchErr != nil {
		if dispatchCtx.Err() == context.DeadlineExceeded {
			dispatchErr = brokererr.RequestTimeout(action, o.Timeout.Milliseconds())
		}
		return b.callErrorHandler(ctx, ep, cc, o, dispatchErr)
	}

	// Step 7 — success.
	ep.Success()
	if cc.Span != nil {
		cc.Span.Done(nil)
	}
	return val, nil
}

// callErrorHandler applies circuit-breaker accounting, then retry, then
// fallback, in that order, to a failed dispatch.
func (b *Broker) callErrorHandler(ctx context.Context, ep *Endpoint, cc *Context, o *CallOpts, errIn error) (any, error) {
	e := brokererr.Wrap(errIn)

	if b.cfg.CircuitBreaker.Enabled && e.CountsAsFailure(b.cfg.CircuitBreaker.FailureOnTimeout, b.cfg.CircuitBreaker.FailureOnReject) {
		ep.Failure()
	}

	if o.RetryCount > 0 && e.Retryable() {
		o.RetryCount--
		cc.RetryCount = o.RetryCount
		next := *o
		next.Ctx = cc
		// Reuses cc (same id/requestID); does not finish the metrics span.
		return b.call(ctx, cc.Action, cc.Params, &next)
	}

	if o.FallbackResponse != nil {
		val, ferr := resolveFallback(o.FallbackResponse, cc, e)
		if cc.Span != nil {
			cc.Span.Done(e)
		}
		return val, ferr
	}

	if cc.Span != nil {
		cc.Span.Done(e)
	}
	return nil, e
}

func resolveFallback(fb any, cc *Context, err *brokererr.Error) (any, error) {
	if fn, ok := fb.(func(*Context, error) (any, error)); ok {
		return fn(cc, err)
	}
	return fb, nil
}

func (b *Broker) dispatch(cc *Context, ep *Endpoint) (any, error) {
	if ep.Local {
		return b.dispatchLocal(cc, ep)
	}
	return b.dispatchRemote(cc, ep)
}

type dispatchResult struct {
	val any
	err error
}

func (b *Broker) dispatchLocal(cc *Context, ep *Endpoint) (any, error) {
	ch := make(chan dispatchResult, 1)
	go func() {
		v, err := ep.Handler(cc)
		ch <- dispatchResult{v, err}
	}()
	select {
	case <-cc.GoContext().Done():
		return nil, brokererr.RequestTimeout(cc.Action, cc.Timeout.Milliseconds())
	case r := <-ch:
		return r.val, r.err
	}
}

func (b *Broker) dispatchRemote(cc *Context, ep *Endpoint) (any, error) {
	if b.remote == nil {
		return nil, brokererr.ServiceNotAvailable(cc.Action)
	}
	return b.remote.Request(cc)
}
