package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned when the circuit is open and the cooldown has not
// elapsed. Callers treat it like any other transport failure.
var ErrOpen = errors.New("circuit breaker open")

// State is the breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker fails fast when the backend is down: after failureThreshold
// consecutive failures it opens, rejecting calls until cooldown elapses, then
// lets probe calls through (half-open) and closes again after
// successThreshold consecutive probe successes.
type Breaker struct {
	mu               sync.Mutex
	state            State
	failures         int
	probeSuccesses   int
	openedAt         time.Time
	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	onStateChange    func(from, to State)
}

// Settings holds breaker parameters. Zero values fall back to defaults
// (5 failures, 2 probe successes, 30s cooldown).
type Settings struct {
	FailureThreshold int
	SuccessThreshold int
	Cooldown         time.Duration
	OnStateChange    func(from, to State)
}

// New creates a Breaker with the given settings.
func New(s Settings) *Breaker {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = 5
	}
	if s.SuccessThreshold <= 0 {
		s.SuccessThreshold = 2
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 30 * time.Second
	}
	return &Breaker{
		state:            StateClosed,
		failureThreshold: s.FailureThreshold,
		successThreshold: s.SuccessThreshold,
		cooldown:         s.Cooldown,
		onStateChange:    s.OnStateChange,
	}
}

// Allow reports whether a call may proceed, transitioning open -> half-open
// once the cooldown has elapsed. When it returns false the caller should fail
// with ErrOpen without touching the network.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	if b.state != StateOpen {
		b.mu.Unlock()
		return true
	}
	if time.Since(b.openedAt) < b.cooldown {
		b.mu.Unlock()
		return false
	}
	b.transition(StateHalfOpen)
	b.probeSuccesses = 0
	b.mu.Unlock()
	return true
}

// Record feeds a call outcome into the breaker.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.failureThreshold {
			b.failures = 0
			b.openedAt = time.Now()
			b.transition(StateOpen)
		}
		return
	}

	b.failures = 0
	if b.state == StateHalfOpen {
		b.probeSuccesses++
		if b.probeSuccesses >= b.successThreshold {
			b.probeSuccesses = 0
			b.transition(StateClosed)
		}
	}
}

// transition changes state and fires the hook. Caller holds b.mu.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.onStateChange != nil {
		// Hook runs under the lock; keep it cheap (metrics only).
		b.onStateChange(from, to)
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
