package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"lyrics-sync-go/logcolors"

	log "github.com/sirupsen/logrus"
)

// State is where the breaker sits in its closed -> open -> half-open cycle
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

var stateNames = map[State]string{
	StateClosed:   "CLOSED",
	StateOpen:     "OPEN",
	StateHalfOpen: "HALF-OPEN",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// MarshalText lets State appear as its name in JSON
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ErrCircuitOpen is returned by Execute while calls are being short-circuited
var ErrCircuitOpen = errors.New("circuit breaker is open")

const (
	defaultThreshold    = 5
	defaultCooldown     = 5 * time.Minute
	defaultProbeTimeout = 30 * time.Second
)

// Config holds circuit breaker configuration
type Config struct {
	Name      string
	Threshold int           // consecutive failures that open the circuit
	Cooldown  time.Duration // time spent open before a probe is let through

	// ProbeTimeout bounds how long a half-open probe may run before the
	// breaker gives up on it and opens again
	ProbeTimeout time.Duration

	// OnStateChange runs after every transition, outside the lock
	OnStateChange func(name string, from, to State)

	// OnWarning runs once per closed period when failures reach 60% of Threshold
	OnWarning func(name string, failures, threshold int)

	// Now replaces time.Now in tests
	Now func() time.Time
}

// CircuitBreaker guards a flaky upstream. After Threshold consecutive
// failures it rejects calls for Cooldown, then lets a single probe through.
type CircuitBreaker struct {
	cfg Config

	mu       sync.Mutex
	state    State
	failures int
	warned   bool
	probing  bool
	openedAt time.Time
	probeAt  time.Time
	lastFail time.Time
}

// Status is a point-in-time view of a breaker
type Status struct {
	Name           string    `json:"name"`
	State          State     `json:"state"`
	Failures       int       `json:"failures"`
	Threshold      int       `json:"threshold"`
	Cooldown       string    `json:"cooldown"`
	TimeUntilRetry string    `json:"time_until_retry"`
	LastFailure    time.Time `json:"last_failure,omitempty"`
}

// New creates a closed circuit breaker
func New(cfg Config) *CircuitBreaker {
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaultThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{cfg: cfg}
}

// Name returns the breaker's name
func (cb *CircuitBreaker) Name() string {
	return cb.cfg.Name
}

func (cb *CircuitBreaker) prefix() string {
	return logcolors.CircuitBreakerPrefix(cb.cfg.Name)
}

// moveTo changes state under the lock and returns the hook to run after unlocking
func (cb *CircuitBreaker) moveTo(to State) func() {
	from := cb.state
	if from == to {
		return nil
	}
	cb.state = to

	now := cb.cfg.Now()
	switch to {
	case StateOpen:
		cb.openedAt = now
		cb.probing = false
	case StateHalfOpen:
		cb.probeAt = now
		cb.probing = true
	case StateClosed:
		cb.failures = 0
		cb.warned = false
		cb.probing = false
	}

	if hook := cb.cfg.OnStateChange; hook != nil {
		name := cb.cfg.Name
		return func() { hook(name, from, to) }
	}
	return nil
}

// locked runs fn under the lock, then the hook fn returned (if any)
func (cb *CircuitBreaker) locked(fn func() func()) {
	cb.mu.Lock()
	after := fn()
	cb.mu.Unlock()
	if after != nil {
		after()
	}
}

// Allow reports whether a call may proceed. While open it returns false until
// the cooldown passes; the first caller after that becomes the half-open probe.
func (cb *CircuitBreaker) Allow() bool {
	allowed := false
	cb.locked(func() func() {
		now := cb.cfg.Now()
		switch cb.state {
		case StateOpen:
			if now.Sub(cb.openedAt) < cb.cfg.Cooldown {
				return nil
			}
			log.Infof("%s Cooldown passed, letting a probe through", cb.prefix())
			allowed = true
			return cb.moveTo(StateHalfOpen)

		case StateHalfOpen:
			if !cb.probing {
				// the previous probe was abandoned without an answer
				cb.probing = true
				cb.probeAt = now
				allowed = true
				return nil
			}
			if now.Sub(cb.probeAt) >= cb.cfg.ProbeTimeout {
				log.Warnf("%s Probe timed out, opening again", cb.prefix())
				return cb.moveTo(StateOpen)
			}
			// one probe at a time
			return nil

		default:
			allowed = true
			return nil
		}
	})
	return allowed
}

// RecordSuccess closes a half-open circuit and clears the failure streak
func (cb *CircuitBreaker) RecordSuccess() {
	cb.locked(func() func() {
		switch cb.state {
		case StateHalfOpen:
			log.Infof("%s Probe succeeded, closing", cb.prefix())
			return cb.moveTo(StateClosed)
		case StateClosed:
			cb.failures = 0
			cb.warned = false
		}
		return nil
	})
}

// Abandon gives up an allowed call without a verdict. A half-open breaker
// stays half-open and lets the next caller probe.
func (cb *CircuitBreaker) Abandon() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateHalfOpen {
		cb.probing = false
	}
}

// RecordFailure counts a failure, opening the circuit at the threshold
func (cb *CircuitBreaker) RecordFailure() {
	cb.locked(func() func() {
		cb.failures++
		cb.lastFail = cb.cfg.Now()

		switch cb.state {
		case StateHalfOpen:
			log.Warnf("%s Probe failed, opening again", cb.prefix())
			return cb.moveTo(StateOpen)

		case StateClosed:
			if cb.failures >= cb.cfg.Threshold {
				log.Warnf("%s %d consecutive failures, opening for %v", cb.prefix(), cb.failures, cb.cfg.Cooldown)
				return cb.moveTo(StateOpen)
			}
			if !cb.warned && cb.failures >= warningLevel(cb.cfg.Threshold) {
				cb.warned = true
				log.Warnf("%s High failure rate (%d/%d)", cb.prefix(), cb.failures, cb.cfg.Threshold)
				if hook := cb.cfg.OnWarning; hook != nil {
					name, failures, threshold := cb.cfg.Name, cb.failures, cb.cfg.Threshold
					return func() { hook(name, failures, threshold) }
				}
			}
		}
		return nil
	})
}

// warningLevel is 60% of the threshold, at least 2
func warningLevel(threshold int) int {
	level := threshold * 3 / 5
	if level < 2 {
		level = 2
	}
	return level
}

// Reset closes the circuit regardless of its state
func (cb *CircuitBreaker) Reset() {
	cb.locked(func() func() {
		after := cb.moveTo(StateClosed)
		cb.failures = 0
		cb.warned = false
		cb.lastFail = time.Time{}
		log.Infof("%s Manually reset to CLOSED", cb.prefix())
		return after
	})
}

// State returns the current state
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// IsOpen reports whether calls are currently being rejected outright
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.State() == StateOpen
}

// Failures returns the current consecutive failure count
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// TimeUntilRetry is the remaining cooldown while open, the remaining probe
// time while half-open, and 0 while closed
func (cb *CircuitBreaker) TimeUntilRetry() time.Duration {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.timeUntilRetry()
}

func (cb *CircuitBreaker) timeUntilRetry() time.Duration {
	var remaining time.Duration
	switch cb.state {
	case StateOpen:
		remaining = cb.cfg.Cooldown - cb.cfg.Now().Sub(cb.openedAt)
	case StateHalfOpen:
		remaining = cb.cfg.ProbeTimeout - cb.cfg.Now().Sub(cb.probeAt)
	}
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Status snapshots the breaker for health and admin endpoints
func (cb *CircuitBreaker) Status() Status {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Status{
		Name:           cb.cfg.Name,
		State:          cb.state,
		Failures:       cb.failures,
		Threshold:      cb.cfg.Threshold,
		Cooldown:       cb.cfg.Cooldown.String(),
		TimeUntilRetry: cb.timeUntilRetry().Round(time.Second).String(),
		LastFailure:    cb.lastFail,
	}
}

// Execute runs fn if the breaker allows it. Only errors for which isFailure
// returns true count against the breaker; anything else, including "not
// found", is a healthy answer. A nil isFailure counts every error. Context
// cancellation says nothing about the upstream and is not recorded at all.
func (cb *CircuitBreaker) Execute(fn func() error, isFailure func(error) bool) error {
	if !cb.Allow() {
		return ErrCircuitOpen
	}

	err := fn()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		cb.Abandon()
		return err
	}
	if err != nil && (isFailure == nil || isFailure(err)) {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return err
}
