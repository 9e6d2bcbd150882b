package resilience

import (
	"errors"
	"testing"
	"time"
)

func failN(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		cb.Execute(func() error { return errors.New("down") })
	}
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker("ocr", CircuitBreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     time.Minute,
	})

	failN(cb, 2)
	if got := cb.GetState(); got != StateClosed {
		t.Fatalf("state after 2 failures = %v, want closed", got)
	}

	failN(cb, 1)
	if got := cb.GetState(); got != StateOpen {
		t.Fatalf("state after 3 failures = %v, want open", got)
	}

	err := cb.Execute(func() error {
		t.Fatal("fn ran while circuit open")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Execute() = %v, want ErrCircuitOpen", err)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker("ocr", CircuitBreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     time.Minute,
	})

	failN(cb, 2)
	cb.Execute(func() error { return nil })
	failN(cb, 2)

	if got := cb.GetState(); got != StateClosed {
		t.Fatalf("state = %v, want closed (count reset by success)", got)
	}
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker("ocr", CircuitBreakerConfig{
		FailureThreshold:    2,
		ResetTimeout:        20 * time.Millisecond,
		HalfOpenMaxRequests: 1,
	})

	failN(cb, 2)
	if got := cb.GetState(); got != StateOpen {
		t.Fatalf("state = %v, want open", got)
	}

	time.Sleep(30 * time.Millisecond)

	ran := false
	if err := cb.Execute(func() error { ran = true; return nil }); err != nil {
		t.Fatalf("probe Execute() = %v", err)
	}
	if !ran {
		t.Fatal("probe fn did not run after reset timeout")
	}
	if got := cb.GetState(); got != StateClosed {
		t.Fatalf("state after successful probe = %v, want closed", got)
	}
}

func TestBreakerReopensOnFailedProbe(t *testing.T) {
	cb := NewCircuitBreaker("ocr", CircuitBreakerConfig{
		FailureThreshold:    2,
		ResetTimeout:        20 * time.Millisecond,
		HalfOpenMaxRequests: 1,
	})

	failN(cb, 2)
	time.Sleep(30 * time.Millisecond)

	failN(cb, 1)
	if got := cb.GetState(); got != StateOpen {
		t.Fatalf("state after failed probe = %v, want open", got)
	}
}

func TestBreakerNotifiesStateChanges(t *testing.T) {
	var seen []State
	cb := NewCircuitBreaker("ocr", CircuitBreakerConfig{
		FailureThreshold:    2,
		ResetTimeout:        10 * time.Millisecond,
		HalfOpenMaxRequests: 1,
		OnStateChange:       func(s State) { seen = append(seen, s) },
	})

	failN(cb, 2)
	time.Sleep(20 * time.Millisecond)
	cb.Execute(func() error { return nil })

	want := []State{StateOpen, StateHalfOpen, StateClosed}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", seen, want)
		}
	}
}

func TestBreakerReset(t *testing.T) {
	cb := NewCircuitBreaker("ocr", CircuitBreakerConfig{FailureThreshold: 1})

	failN(cb, 1)
	if got := cb.GetState(); got != StateOpen {
		t.Fatalf("state = %v, want open", got)
	}

	cb.Reset()
	if got := cb.GetState(); got != StateClosed {
		t.Fatalf("state after Reset = %v, want closed", got)
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Execute after Reset = %v", err)
	}
}
