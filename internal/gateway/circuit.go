package gateway

import (
	"sync"
	"time"
)

// circuitState mirrors the classic closed/half-open/open machine.
type circuitState int

const (
	circuitClosed circuitState = iota
	circuitHalfOpen
	circuitOpen
)

func (s circuitState) String() string {
	switch s {
	case circuitClosed:
		return "closed"
	case circuitHalfOpen:
		return "half_open"
	case circuitOpen:
		return "open"
	default:
		return "unknown"
	}
}

// circuitBreaker stops hammering a Gateway backend that is already down:
// after failureThreshold consecutive failures it opens and rejects calls
// outright for cooldownPeriod, then lets a small number of probe calls
// through before fully closing again. Grounded on
// control_plane/scheduler/circuit_breaker.go's closed/half-open/open state
// machine, adapted from queue-depth/worker-saturation admission (a
// scheduler concern) to consecutive-call-failure admission (a Gateway
// concern) — this repo has no worker pool to watch, only a backend that
// can be up or down.
type circuitBreaker struct {
	mu sync.Mutex

	state               circuitState
	failureThreshold    int
	cooldownPeriod      time.Duration
	testLimit           int
	consecutiveFailures int
	testCount           int
	openedAt            time.Time
}

func newCircuitBreaker(failureThreshold int, cooldownPeriod time.Duration) *circuitBreaker {
	return &circuitBreaker{
		state:            circuitClosed,
		failureThreshold: failureThreshold,
		cooldownPeriod:   cooldownPeriod,
		testLimit:        3,
	}
}

// allow reports whether a call should be attempted right now.
func (cb *circuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == circuitOpen && time.Since(cb.openedAt) > cb.cooldownPeriod {
		cb.state = circuitHalfOpen
		cb.testCount = 0
	}

	switch cb.state {
	case circuitOpen:
		return false
	case circuitHalfOpen:
		if cb.testCount >= cb.testLimit {
			return false
		}
		cb.testCount++
		return true
	default:
		return true
	}
}

func (cb *circuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFailures = 0
	if cb.state == circuitHalfOpen && cb.testCount >= cb.testLimit {
		cb.state = circuitClosed
	}
}

func (cb *circuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == circuitHalfOpen {
		cb.state = circuitOpen
		cb.openedAt = time.Now()
		cb.testCount = 0
		return
	}

	cb.consecutiveFailures++
	if cb.consecutiveFailures >= cb.failureThreshold {
		cb.state = circuitOpen
		cb.openedAt = time.Now()
	}
}
