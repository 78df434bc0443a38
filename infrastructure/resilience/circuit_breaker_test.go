package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCircuitBreakerOpensAfterMaxFailures(t *testing.T) {
	cb := New(Config{MaxFailures: 2, Timeout: 50 * time.Millisecond, HalfOpenMax: 1})
	failing := func(context.Context) error { return errors.New("boom") }

	_ = cb.Execute(context.Background(), failing)
	if cb.State() != StateClosed {
		t.Fatalf("state after 1 failure = %v, want closed", cb.State())
	}
	_ = cb.Execute(context.Background(), failing)
	if cb.State() != StateOpen {
		t.Fatalf("state after 2 failures = %v, want open", cb.State())
	}

	if err := cb.Execute(context.Background(), func(context.Context) error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen while open, got %v", err)
	}
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	cb := New(Config{MaxFailures: 1, Timeout: 10 * time.Millisecond, HalfOpenMax: 2})
	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("boom") })
	if cb.State() != StateOpen {
		t.Fatalf("expected open, got %v", cb.State())
	}

	time.Sleep(15 * time.Millisecond)

	if err := cb.Execute(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("first half-open probe should succeed, got %v", err)
	}
	if err := cb.Execute(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("second half-open probe should succeed, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("state after HalfOpenMax successes = %v, want closed", cb.State())
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := New(Config{MaxFailures: 1, Timeout: 10 * time.Millisecond, HalfOpenMax: 2})
	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("boom") })
	time.Sleep(15 * time.Millisecond)

	err := cb.Execute(context.Background(), func(context.Context) error { return errors.New("still down") })
	if err == nil {
		t.Fatal("expected failure to propagate")
	}
	if cb.State() != StateOpen {
		t.Fatalf("state after half-open failure = %v, want open", cb.State())
	}
}

func TestOnStateChangeCallback(t *testing.T) {
	changes := make(chan State, 4)
	cb := New(Config{
		MaxFailures: 1,
		Timeout:     time.Millisecond,
		HalfOpenMax: 1,
		OnStateChange: func(from, to State) {
			changes <- to
		},
	})
	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("boom") })

	select {
	case s := <-changes:
		if s != StateOpen {
			t.Fatalf("first transition = %v, want open", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for state change callback")
	}
}
