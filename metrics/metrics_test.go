package metrics

import (
	"errors"
	"testing"

	"github.com/matgreaves/brokerd/broker"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewRegistersAllMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(reg)
	if s.CallsTotal == nil || s.CallDuration == nil || s.ActiveCalls == nil {
		t.Fatalf("New() left a metric unset")
	}
}

func TestBrokerMiddlewareRecordsSuccessAndFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(reg)
	mw := s.BrokerMiddleware()

	ok := mw("users.get", func(c *broker.Context) (any, error) { return "x", nil })
	fail := mw("users.get", func(c *broker.Context) (any, error) { return nil, errors.New("boom") })

	if _, err := ok(nil); err != nil {
		t.Fatalf("ok handler returned error: %v", err)
	}
	if _, err := fail(nil); err == nil {
		t.Fatalf("fail handler returned nil, want error")
	}

	successCount := counterValue(t, s.CallsTotal.WithLabelValues("users.get", "true"))
	failCount := counterValue(t, s.CallsTotal.WithLabelValues("users.get", "false"))
	if successCount != 1 {
		t.Errorf("success CallsTotal = %v, want 1", successCount)
	}
	if failCount != 1 {
		t.Errorf("failure CallsTotal = %v, want 1", failCount)
	}
}

func TestRecordCircuitState(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(reg)
	s.RecordCircuitState("users.get", broker.Open)

	m := &dto.Metric{}
	if err := s.CircuitState.WithLabelValues("users.get").Write(m); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if got := m.GetGauge().GetValue(); got != float64(broker.Open) {
		t.Errorf("CircuitState = %v, want %v", got, broker.Open)
	}
}

func TestRecordCacheHitMiss(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(reg)
	s.RecordCacheHit()
	s.RecordCacheHit()
	s.RecordCacheMiss()

	if got := counterValue(t, s.CacheHits); got != 2 {
		t.Errorf("CacheHits = %v, want 2", got)
	}
	if got := counterValue(t, s.CacheMisses); got != 1 {
		t.Errorf("CacheMisses = %v, want 1", got)
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	return m.GetCounter().GetValue()
}
