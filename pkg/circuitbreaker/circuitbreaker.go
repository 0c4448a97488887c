package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned without calling the protected function while the
// breaker is open.
var ErrOpen = errors.New("circuit breaker is open")

type Settings struct {
	Name string
	// MaxFailures is the number of failures tolerated inside Window; one more
	// opens the breaker.
	MaxFailures int
	Window      time.Duration
	// Timeout is how long the breaker stays open before letting a probe through.
	Timeout time.Duration
	// IsFailure decides whether an error counts against the breaker. By
	// default every non-nil error does.
	IsFailure     func(err error) bool
	OnStateChange func(name string, from, to State)
}

type CircuitBreaker struct {
	settings Settings
	failures []time.Time
	openedAt time.Time
	state    State
	// generation changes on every state transition; results of calls started
	// in an older generation are ignored.
	generation uint64
	probing    bool
	now        func() time.Time
	mu         sync.Mutex
}

func New(settings Settings) *CircuitBreaker {
	if settings.Window <= 0 {
		settings.Window = 60 * time.Second
	}
	if settings.IsFailure == nil {
		settings.IsFailure = func(err error) bool { return err != nil }
	}
	return &CircuitBreaker{
		settings: settings,
		state:    StateClosed,
		failures: make([]time.Time, 0),
		now:      time.Now,
	}
}

// Execute runs fn unless the breaker is open. While half-open only one call
// at a time is let through; the rest get ErrOpen. The lock is not held while
// fn runs.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	generation, err := cb.beforeRequest()
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			cb.afterRequest(generation, true)
			panic(r)
		}
	}()
	err = fn()
	cb.afterRequest(generation, err != nil && cb.settings.IsFailure(err))
	return err
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Name() string {
	return cb.settings.Name
}

func (cb *CircuitBreaker) beforeRequest() (uint64, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return cb.generation, nil
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.settings.Timeout {
			return 0, ErrOpen
		}
		cb.failures = cb.failures[:0]
		cb.setState(StateHalfOpen)
	}

	if cb.probing {
		return 0, ErrOpen
	}
	cb.probing = true
	return cb.generation, nil
}

func (cb *CircuitBreaker) afterRequest(generation uint64, failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if generation != cb.generation {
		return
	}
	now := cb.now()
	if !failed {
		cb.cleanOldFailures(now)
		if cb.state == StateHalfOpen {
			cb.failures = cb.failures[:0]
			cb.setState(StateClosed)
		}
		return
	}

	cb.failures = append(cb.failures, now)
	cb.cleanOldFailures(now)
	if cb.state == StateHalfOpen || len(cb.failures) > cb.settings.MaxFailures {
		cb.openedAt = now
		cb.setState(StateOpen)
	}
}

// cleanOldFailures drops failures that fell out of the window. failures is
// kept in chronological order.
func (cb *CircuitBreaker) cleanOldFailures(now time.Time) {
	cutoff := now.Add(-cb.settings.Window)
	i := 0
	for i < len(cb.failures) && !cb.failures[i].After(cutoff) {
		i++
	}
	if i > 0 {
		cb.failures = append(cb.failures[:0], cb.failures[i:]...)
	}
}

func (cb *CircuitBreaker) setState(state State) {
	if cb.state == state {
		return
	}
	from := cb.state
	cb.state = state
	cb.generation++
	cb.probing = false
	if cb.settings.OnStateChange != nil {
		cb.settings.OnStateChange(cb.settings.Name, from, state)
	}
}
