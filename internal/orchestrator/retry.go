package orchestrator

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// BackoffKind selects how Coordinator spaces out retries, matching
// the teacher's retry.Coordinator: 0 = fixed, 1 = linear, >1 =
// exponential with that multiplier.
type BackoffKind float64

const (
	BackoffFixed       BackoffKind = 0
	BackoffLinear      BackoffKind = 1
	BackoffExponential BackoffKind = 2
)

// Policy configures one named operation's retry behavior.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Backoff      BackoffKind
}

// DefaultPolicy mirrors the teacher's api.DefaultRetryPolicy: three
// attempts, exponential backoff starting at 500ms, capped at 10s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Backoff:      BackoffExponential,
	}
}

// CircuitState is the breaker's lifecycle state.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// circuitBreaker is a per-tool breaker: it opens after enough
// consecutive failures and half-opens after recoveryTimeout to probe
// whether the tool has recovered, exactly as the teacher's
// pkg/common/retry circuitBreaker does.
type circuitBreaker struct {
	mu               sync.Mutex
	state            CircuitState
	failures         int
	successCount     int
	lastFailure      time.Time
	failureThreshold int
	recoveryTimeout  time.Duration
	successThreshold int
}

func newCircuitBreaker() *circuitBreaker {
	return &circuitBreaker{
		state:            CircuitClosed,
		failureThreshold: 5,
		recoveryTimeout:  30 * time.Second,
		successThreshold: 2,
	}
}

func (cb *circuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if time.Since(cb.lastFailure) > cb.recoveryTimeout {
			cb.state = CircuitHalfOpen
			cb.successCount = 0
			return true
		}
		return false
	default:
		return true
	}
}

func (cb *circuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.state = CircuitClosed
			cb.failures = 0
		}
	default:
		cb.failures = 0
	}
}

func (cb *circuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = time.Now()
	if cb.state == CircuitHalfOpen || cb.failures >= cb.failureThreshold {
		cb.state = CircuitOpen
	}
}

// Coordinator runs operations under a per-name retry policy and
// circuit breaker, generalized from the teacher's struct so the
// orchestrator can hold one Coordinator per workflow run instead of
// a single process-wide instance.
type Coordinator struct {
	mu       sync.RWMutex
	policies map[string]Policy
	breakers map[string]*circuitBreaker
	rng      *rand.Rand
}

// NewCoordinator creates an empty Coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{
		policies: make(map[string]Policy),
		breakers: make(map[string]*circuitBreaker),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// RegisterPolicy overrides the default policy for name.
func (c *Coordinator) RegisterPolicy(name string, policy Policy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.policies[name] = policy
}

func (c *Coordinator) policyFor(name string) Policy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.policies[name]; ok {
		return p
	}
	return DefaultPolicy()
}

func (c *Coordinator) breakerFor(name string) *circuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	cb, ok := c.breakers[name]
	if !ok {
		cb = newCircuitBreaker()
		c.breakers[name] = cb
	}
	return cb
}

// Execute runs fn under name's policy and breaker: retries on error up
// to MaxAttempts, backing off between attempts, short-circuiting
// immediately if the breaker is open.
func (c *Coordinator) Execute(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	policy := c.policyFor(name)
	breaker := c.breakerFor(name)

	if !breaker.CanExecute() {
		return fmt.Errorf("orchestrator: circuit breaker open for %s", name)
	}

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("orchestrator: cancelled: %w", err)
		}

		err := fn(ctx)
		if err == nil {
			breaker.RecordSuccess()
			return nil
		}
		lastErr = err
		breaker.RecordFailure()

		if attempt >= policy.MaxAttempts-1 {
			break
		}

		delay := c.delay(attempt, policy)
		select {
		case <-ctx.Done():
			return fmt.Errorf("orchestrator: cancelled during retry: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("orchestrator: all %d attempts for %s failed: %w", policy.MaxAttempts, name, lastErr)
}

func (c *Coordinator) delay(attempt int, policy Policy) time.Duration {
	var delay time.Duration
	switch policy.Backoff {
	case BackoffFixed:
		delay = policy.InitialDelay
	case BackoffLinear:
		delay = policy.InitialDelay * time.Duration(attempt+1)
	default:
		delay = time.Duration(float64(policy.InitialDelay) * math.Pow(float64(policy.Backoff), float64(attempt)))
	}
	if delay > policy.MaxDelay {
		delay = policy.MaxDelay
	}
	if delay > 0 {
		c.mu.Lock()
		jitter := time.Duration(c.rng.Int63n(int64(delay)/10 + 1))
		c.mu.Unlock()
		delay += jitter
	}
	return delay
}
