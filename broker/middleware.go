package broker

// Middleware wraps an action handler, producing a new handler. name is the
// fully-qualified action name being wrapped, for middlewares that want to
// branch on it (logging, tracing, auth).
type Middleware func(name string, next ActionHandler) ActionHandler

// composeMiddleware applies chain in registration order but composes
// last-registered-outermost:
//
//	h_out = wrap_n(wrap_{n-1}(... wrap_1(h)))
//
// i.e. the first registered middleware ends up as the innermost wrapper.
func composeMiddleware(name string, handler ActionHandler, chain []Middleware) ActionHandler {
	wrapped := handler
	for _, mw := range chain {
		wrapped = mw(name, wrapped)
	}
	return wrapped
}
