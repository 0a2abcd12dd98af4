package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matgreaves/brokerd/brokererr"
)

func testBroker(t *testing.T, cfg Config) *Broker {
	t.Helper()
	b := New(cfg)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = b.Stop(context.Background()) })
	return b
}

func asBrokerErr(t *testing.T, err error) *brokererr.Error {
	t.Helper()
	var be *brokererr.Error
	if !errors.As(err, &be) {
		t.Fatalf("error %v is not a *brokererr.Error", err)
	}
	return be
}

func TestCallLocalNoParams(t *testing.T) {
	b := testBroker(t, DefaultConfig())
	var calls int
	svc := NewService("posts").Action("find", func(c *Context) (any, error) {
		calls++
		if len(c.Params.(map[string]any)) != 0 {
			t.Errorf("Params = %v, want empty", c.Params)
		}
		if c.Level != 1 {
			t.Errorf("Level = %d, want 1", c.Level)
		}
		if c.NodeID != "" {
			t.Errorf("NodeID = %q, want empty (local)", c.NodeID)
		}
		return "ok", nil
	})
	if err := b.AddService(svc); err != nil {
		t.Fatalf("AddService() error = %v", err)
	}

	val, err := b.Call(context.Background(), "posts.find", map[string]any{})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if val != "ok" {
		t.Errorf("Call() = %v, want %q", val, "ok")
	}
	if calls != 1 {
		t.Errorf("handler invoked %d times, want 1", calls)
	}
}

func TestCallUnknownAction(t *testing.T) {
	b := testBroker(t, DefaultConfig())

	_, err := b.Call(context.Background(), "posts.nope", nil)
	if err == nil {
		t.Fatal("Call() returned nil error for unknown action")
	}
	berr := asBrokerErr(t, err)
	if berr.Kind != brokererr.KindServiceNotFound {
		t.Errorf("Kind = %q, want ServiceNotFound", berr.Kind)
	}
	if berr.Data["action"] != "posts.nope" {
		t.Errorf("Data[action] = %v, want posts.nope", berr.Data["action"])
	}
	if berr.Message != "Action 'posts.nope' is not registered!" {
		t.Errorf("Message = %q", berr.Message)
	}
}

func TestCallMaxCallLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxCallLevel = 5
	b := testBroker(t, cfg)

	var invoked bool
	svc := NewService("posts").Action("find", func(c *Context) (any, error) {
		invoked = true
		return "ok", nil
	})
	if err := b.AddService(svc); err != nil {
		t.Fatalf("AddService() error = %v", err)
	}

	parent := &Context{ID: "parent", Level: 5}
	_, err := b.Call(context.Background(), "posts.find", map[string]any{}, WithParentContext(parent))
	if err == nil {
		t.Fatal("Call() returned nil error, want MaxCallLevel")
	}
	berr := asBrokerErr(t, err)
	if berr.Kind != brokererr.KindMaxCallLevel {
		t.Errorf("Kind = %q, want MaxCallLevel", berr.Kind)
	}
	if berr.Code != 500 {
		t.Errorf("Code = %d, want 500", berr.Code)
	}
	if berr.Data["action"] != "posts.find" || berr.Data["level"] != 6 {
		t.Errorf("Data = %v, want {action:posts.find, level:6}", berr.Data)
	}
	if invoked {
		t.Error("handler was invoked, want it skipped")
	}
}

func TestCallTimeoutThenRetryThenFallback(t *testing.T) {
	b := testBroker(t, DefaultConfig())

	var attempts int
	svc := NewService("slow").Action("op", func(c *Context) (any, error) {
		attempts++
		select {
		case <-time.After(5 * time.Second):
			return "too late", nil
		case <-c.GoContext().Done():
			return nil, c.GoContext().Err()
		}
	})
	if err := b.AddService(svc); err != nil {
		t.Fatalf("AddService() error = %v", err)
	}

	val, err := b.Call(context.Background(), "slow.op", nil,
		WithTimeout(50*time.Millisecond),
		WithRetry(1),
		WithFallback(map[string]any{"ok": true}),
	)
	if err != nil {
		t.Fatalf("Call() error = %v, want nil (fallback should resolve)", err)
	}
	got, ok := val.(map[string]any)
	if !ok || got["ok"] != true {
		t.Errorf("Call() = %v, want {ok:true}", val)
	}
	if attempts != 2 {
		t.Errorf("handler invoked %d times, want 2 (original + one retry)", attempts)
	}
}

func TestCallCircuitBreakerTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CircuitBreaker.Enabled = true
	cfg.CircuitBreaker.MaxFailures = 2
	cfg.CircuitBreaker.HalfOpenTime = 30 * time.Millisecond
	cfg.CircuitBreaker.FailureOnTimeout = true
	b := testBroker(t, cfg)

	var attempts int
	svc := NewService("flaky").Action("op", func(c *Context) (any, error) {
		attempts++
		if attempts <= 2 {
			select {
			case <-time.After(time.Second):
			case <-c.GoContext().Done():
			}
			return nil, c.GoContext().Err()
		}
		return "recovered", nil
	})
	if err := b.AddService(svc); err != nil {
		t.Fatalf("AddService() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		_, err := b.Call(context.Background(), "flaky.op", nil, WithTimeout(20*time.Millisecond))
		if err == nil {
			t.Fatalf("call %d: Call() error = nil, want timeout", i)
		}
	}

	_, err := b.Call(context.Background(), "flaky.op", nil, WithTimeout(20*time.Millisecond))
	if err == nil {
		t.Fatal("third call succeeded, want synchronous ServiceNotAvailable from an open breaker")
	}
	berr := asBrokerErr(t, err)
	if berr.Kind != brokererr.KindServiceNotAvailable {
		t.Errorf("Kind = %q, want ServiceNotAvailable", berr.Kind)
	}
	if attempts != 2 {
		t.Errorf("handler invoked %d times after trip, want 2 (third call short-circuited)", attempts)
	}

	time.Sleep(40 * time.Millisecond)

	val, err := b.Call(context.Background(), "flaky.op", nil, WithTimeout(time.Second))
	if err != nil {
		t.Fatalf("half-open call error = %v", err)
	}
	if val != "recovered" {
		t.Errorf("Call() = %v, want recovered", val)
	}

	ep, err := b.registry.FindEndpoint("flaky.op", "")
	if err != nil {
		t.Fatalf("FindEndpoint() error = %v", err)
	}
	if ep.State() != Closed {
		t.Errorf("endpoint state = %v, want Closed after a successful half-open call", ep.State())
	}
}
