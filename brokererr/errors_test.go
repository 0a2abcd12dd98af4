package brokererr_test

import (
	"errors"
	"testing"

	"github.com/matgreaves/brokerd/brokererr"
)

func TestServiceNotFoundMessage(t *testing.T) {
	err := brokererr.ServiceNotFound("posts.nope")
	want := "Action 'posts.nope' is not registered!"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
	if err.Data["action"] != "posts.nope" {
		t.Fatalf("Data[action] = %v, want posts.nope", err.Data["action"])
	}
	if err.Code != 404 {
		t.Fatalf("Code = %d, want 404", err.Code)
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		err  *brokererr.Error
		want bool
	}{
		{brokererr.RequestTimeout("a", 100), true},
		{brokererr.ServiceNotFound("a"), false},
		{brokererr.CustomError("boom", 503), true},
		{brokererr.CustomError("bad request", 400), false},
		{brokererr.MaxCallLevel("a", 6), false},
	}
	for _, c := range cases {
		if got := c.err.Retryable(); got != c.want {
			t.Errorf("%s.Retryable() = %v, want %v", c.err.Kind, got, c.want)
		}
	}
}

func TestCountsAsFailure(t *testing.T) {
	timeout := brokererr.RequestTimeout("a", 100)
	if !timeout.CountsAsFailure(true, true) {
		t.Errorf("timeout should count when failureOnTimeout=true")
	}
	if timeout.CountsAsFailure(false, true) {
		t.Errorf("timeout should not count when failureOnTimeout=false")
	}

	reject := brokererr.CustomError("boom", 503)
	if !reject.CountsAsFailure(true, true) {
		t.Errorf("5xx reject should count when failureOnReject=true")
	}
	if reject.CountsAsFailure(true, false) {
		t.Errorf("5xx reject should not count when failureOnReject=false")
	}

	notFound := brokererr.ServiceNotFound("a")
	if notFound.CountsAsFailure(true, true) {
		t.Errorf("ServiceNotFound should never count as a circuit failure")
	}
}

func TestIsMatchesByKind(t *testing.T) {
	a := brokererr.ServiceNotFound("posts.find")
	b := brokererr.ServiceNotFound("users.get")
	if !errors.Is(a, b) {
		t.Fatalf("expected errors.Is to match on Kind regardless of message/data")
	}
	c := brokererr.RequestTimeout("posts.find", 100)
	if errors.Is(a, c) {
		t.Fatalf("expected errors.Is to not match across kinds")
	}
}

func TestWrapPassesThroughStructuredError(t *testing.T) {
	orig := brokererr.ValidationError("bad params", nil, nil)
	wrapped := brokererr.Wrap(orig)
	if wrapped != orig {
		t.Fatalf("Wrap should return the same *Error unchanged")
	}
}

func TestWrapCoercesPlainError(t *testing.T) {
	wrapped := brokererr.Wrap(errors.New("boom"))
	if wrapped.Kind != brokererr.KindCustomError || wrapped.Code != 500 {
		t.Fatalf("Wrap(plain error) = %+v, want CustomError/500", wrapped)
	}
	if errors.Unwrap(wrapped) == nil {
		t.Fatalf("expected Unwrap to retain the original cause")
	}
}
