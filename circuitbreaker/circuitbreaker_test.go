package circuitbreaker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeClock is advanced by hand so cooldowns need no sleeping
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(threshold int) (*CircuitBreaker, *fakeClock) {
	clock := newFakeClock()
	cb := New(Config{
		Name:         "test",
		Threshold:    threshold,
		Cooldown:     time.Minute,
		ProbeTimeout: 10 * time.Second,
		Now:          clock.Now,
	})
	return cb, clock
}

func trip(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		cb.RecordFailure()
	}
}

func TestNew_Defaults(t *testing.T) {
	s := New(Config{}).Status()

	if s.Name != "default" {
		t.Errorf("Expected default name, got %q", s.Name)
	}
	if s.Threshold != defaultThreshold {
		t.Errorf("Expected threshold %d, got %d", defaultThreshold, s.Threshold)
	}
	if s.Cooldown != defaultCooldown.String() {
		t.Errorf("Expected cooldown %v, got %s", defaultCooldown, s.Cooldown)
	}
	if s.State != StateClosed {
		t.Errorf("Expected CLOSED, got %s", s.State)
	}
}

func TestCircuitBreaker_Lifecycle(t *testing.T) {
	cb, clock := newTestBreaker(3)

	steps := []struct {
		name    string
		act     func()
		allow   bool
		state   State
		retryIn time.Duration
	}{
		{"Closed allows", func() {}, true, StateClosed, 0},
		{"Below threshold stays closed", func() { trip(cb, 2) }, true, StateClosed, 0},
		{"Threshold opens", func() { cb.RecordFailure() }, false, StateOpen, time.Minute},
		{"Still cooling down", func() { clock.Advance(30 * time.Second) }, false, StateOpen, 30 * time.Second},
		{"Cooldown passed lets a probe through", func() { clock.Advance(30 * time.Second) }, true, StateHalfOpen, 10 * time.Second},
	}

	for _, step := range steps {
		t.Run(step.name, func(t *testing.T) {
			step.act()
			if got := cb.Allow(); got != step.allow {
				t.Errorf("Allow() = %v, expected %v", got, step.allow)
			}
			retry := cb.TimeUntilRetry()
			if cb.State() != step.state {
				t.Errorf("State() = %s, expected %s", cb.State(), step.state)
			}
			if retry != step.retryIn {
				t.Errorf("TimeUntilRetry() = %v, expected %v", retry, step.retryIn)
			}
		})
	}

	// The probe is outstanding, nobody else gets in
	if cb.Allow() {
		t.Error("Expected a second caller to be blocked while probing")
	}

	cb.RecordSuccess()
	if cb.State() != StateClosed || cb.Failures() != 0 {
		t.Errorf("Expected a successful probe to close the circuit, got %s with %d failures", cb.State(), cb.Failures())
	}
}

func TestCircuitBreaker_SuccessResetsStreak(t *testing.T) {
	cb, _ := newTestBreaker(3)

	trip(cb, 2)
	cb.RecordSuccess()
	trip(cb, 2)

	if cb.State() != StateClosed {
		t.Errorf("Expected non-consecutive failures to keep the circuit closed, got %s", cb.State())
	}
	if cb.Failures() != 2 {
		t.Errorf("Expected 2 failures, got %d", cb.Failures())
	}
}

func TestCircuitBreaker_ProbeFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(2)
	trip(cb, 2)
	clock.Advance(time.Minute)

	if !cb.Allow() {
		t.Fatal("Expected the probe to be allowed")
	}
	cb.RecordFailure()

	if !cb.IsOpen() {
		t.Fatalf("Expected OPEN after a failed probe, got %s", cb.State())
	}
	if cb.TimeUntilRetry() != time.Minute {
		t.Errorf("Expected a fresh cooldown, got %v", cb.TimeUntilRetry())
	}
}

func TestCircuitBreaker_ProbeTimeout(t *testing.T) {
	cb, clock := newTestBreaker(2)
	trip(cb, 2)
	clock.Advance(time.Minute)
	cb.Allow()

	clock.Advance(10 * time.Second)
	if cb.Allow() {
		t.Error("Expected a timed-out probe to block callers")
	}
	if !cb.IsOpen() {
		t.Errorf("Expected OPEN after the probe timed out, got %s", cb.State())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _ := newTestBreaker(2)
	trip(cb, 2)

	cb.Reset()

	s := cb.Status()
	if s.State != StateClosed || s.Failures != 0 || !s.LastFailure.IsZero() {
		t.Errorf("Expected a clean CLOSED breaker, got %+v", s)
	}
	if !cb.Allow() {
		t.Error("Expected Allow() after reset")
	}
}

func TestCircuitBreaker_Status(t *testing.T) {
	cb, clock := newTestBreaker(2)
	trip(cb, 2)
	clock.Advance(15 * time.Second)

	s := cb.Status()
	if s.State != StateOpen || s.Failures != 2 || s.Threshold != 2 {
		t.Errorf("Unexpected status %+v", s)
	}
	if s.TimeUntilRetry != "45s" {
		t.Errorf("Expected 45s until retry, got %s", s.TimeUntilRetry)
	}

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"state":"OPEN"`) {
		t.Errorf("Expected the state name in JSON, got %s", data)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateClosed, "CLOSED"},
		{StateOpen, "OPEN"},
		{StateHalfOpen, "HALF-OPEN"},
		{State(42), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("State(%d).String() = %q, expected %q", tt.state, got, tt.expected)
		}
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	clock := newFakeClock()
	var transitions []string
	cb := New(Config{
		Name:      "hooks",
		Threshold: 2,
		Cooldown:  time.Minute,
		Now:       clock.Now,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	})

	trip(cb, 2)
	clock.Advance(time.Minute)
	cb.Allow()
	cb.RecordSuccess()
	cb.Reset() // already closed, no transition

	expected := []string{"hooks:CLOSED->OPEN", "hooks:OPEN->HALF-OPEN", "hooks:HALF-OPEN->CLOSED"}
	if strings.Join(transitions, ",") != strings.Join(expected, ",") {
		t.Errorf("Transitions = %v, expected %v", transitions, expected)
	}
}

func TestCircuitBreaker_HookMayCallBreaker(t *testing.T) {
	var cb *CircuitBreaker
	done := make(chan State, 1)
	cb = New(Config{
		Threshold: 1,
		OnStateChange: func(string, State, State) {
			done <- cb.State() // deadlocks if hooks ran under the lock
		},
	})

	cb.RecordFailure()
	select {
	case s := <-done:
		if s != StateOpen {
			t.Errorf("Expected OPEN inside the hook, got %s", s)
		}
	case <-time.After(time.Second):
		t.Fatal("Hook did not run")
	}
}

func TestCircuitBreaker_OnWarning(t *testing.T) {
	var warnings []int
	cb := New(Config{
		Threshold: 5,
		OnWarning: func(name string, failures, threshold int) {
			warnings = append(warnings, failures)
		},
	})

	trip(cb, 4)
	if len(warnings) != 1 || warnings[0] != 3 {
		t.Fatalf("Expected a single warning at 3 failures, got %v", warnings)
	}

	cb.RecordSuccess()
	trip(cb, 3)
	if len(warnings) != 2 {
		t.Errorf("Expected the warning to re-arm after a success, got %v", warnings)
	}
}

func TestWarningLevel(t *testing.T) {
	tests := map[int]int{1: 2, 3: 2, 5: 3, 10: 6}
	for threshold, expected := range tests {
		if got := warningLevel(threshold); got != expected {
			t.Errorf("warningLevel(%d) = %d, expected %d", threshold, got, expected)
		}
	}
}

func TestCircuitBreaker_Execute(t *testing.T) {
	errUpstream := errors.New("upstream down")
	errMissing := errors.New("not found")
	isFailure := func(err error) bool { return errors.Is(err, errUpstream) }

	cb, _ := newTestBreaker(2)

	if err := cb.Execute(func() error { return errMissing }, isFailure); !errors.Is(err, errMissing) {
		t.Errorf("Expected the call's error to pass through, got %v", err)
	}
	if cb.Failures() != 0 {
		t.Error("Expected ignored errors not to count")
	}

	for i := 0; i < 2; i++ {
		cb.Execute(func() error { return errUpstream }, isFailure)
	}
	if !cb.IsOpen() {
		t.Fatal("Expected the circuit to open")
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil }, isFailure)
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Errorf("Expected ErrCircuitOpen without calling fn, got %v (called=%v)", err, called)
	}
}

func TestCircuitBreaker_ExecuteCancelledProbe(t *testing.T) {
	cb, clock := newTestBreaker(1)
	cb.RecordFailure()
	clock.Advance(time.Minute)

	for _, cancelErr := range []error{context.Canceled, context.DeadlineExceeded} {
		err := cb.Execute(func() error { return cancelErr }, nil)
		if !errors.Is(err, cancelErr) {
			t.Errorf("Expected %v to pass through, got %v", cancelErr, err)
		}
		if cb.State() != StateHalfOpen {
			t.Fatalf("Expected a cancelled probe to leave the circuit HALF-OPEN, got %s", cb.State())
		}
	}

	// The next caller gets to probe right away
	if err := cb.Execute(func() error { return nil }, nil); err != nil {
		t.Fatalf("Expected a fresh probe to run, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected a real success to close the circuit, got %s", cb.State())
	}
}

func TestCircuitBreaker_ExecuteCancelledWhileClosed(t *testing.T) {
	cb, _ := newTestBreaker(2)
	cb.RecordFailure()

	cb.Execute(func() error { return context.Canceled }, nil)
	if cb.Failures() != 1 {
		t.Errorf("Expected cancellation to leave the streak at 1, got %d", cb.Failures())
	}
}

func TestCircuitBreaker_ExecuteNilClassifier(t *testing.T) {
	cb, _ := newTestBreaker(1)
	cb.Execute(func() error { return errors.New("any") }, nil)
	if !cb.IsOpen() {
		t.Error("Expected every error to count with a nil classifier")
	}
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := New(Config{Threshold: 1000, Cooldown: time.Millisecond})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if cb.Allow() {
					if (i+j)%2 == 0 {
						cb.RecordSuccess()
					} else {
						cb.RecordFailure()
					}
				}
				cb.Status()
			}
		}(i)
	}
	wg.Wait()
}
