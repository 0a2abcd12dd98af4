package metrics

import (
	"strconv"
	"time"

	"github.com/matgreaves/brokerd/broker"
)

// BrokerMiddleware wraps every action handler to record call counts,
// durations, and in-flight gauges against s.
func (s *Sink) BrokerMiddleware() broker.Middleware {
	return func(name string, next broker.ActionHandler) broker.ActionHandler {
		return func(c *broker.Context) (any, error) {
			s.ActiveCalls.Inc()
			start := time.Now()
			val, err := next(c)
			s.ActiveCalls.Dec()
			s.CallDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
			s.CallsTotal.WithLabelValues(name, strconv.FormatBool(err == nil)).Inc()
			return val, err
		}
	}
}

// RecordCircuitState reports action's current breaker state as a gauge
// value: 0=CLOSED, 1=HALF_OPEN, 2=OPEN.
func (s *Sink) RecordCircuitState(action string, state broker.BreakerState) {
	s.CircuitState.WithLabelValues(action).Set(float64(state))
}

// RecordEvent increments the emitted-event counter for name.
func (s *Sink) RecordEvent(name string) {
	s.EventsEmitted.WithLabelValues(name).Inc()
}

// RecordCacheHit/RecordCacheMiss track action-result cache effectiveness.
func (s *Sink) RecordCacheHit()  { s.CacheHits.Inc() }
func (s *Sink) RecordCacheMiss() { s.CacheMisses.Inc() }
