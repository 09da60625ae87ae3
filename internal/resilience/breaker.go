package resilience

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"

	"github.com/alanyoungcy/marketscout/internal/domain"
)

// halfOpenSuccesses is the number of consecutive trial successes needed to
// close a half-open breaker.
const halfOpenSuccesses = 2

// BreakerConfig holds the thresholds of one source's breaker.
type BreakerConfig struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	MonitoringWindow time.Duration
}

// DefaultBreakerConfig mirrors the Polymarket defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     60 * time.Second,
		MonitoringWindow: 60 * time.Second,
	}
}

// BreakerSnapshot is a read-only view of a breaker for health endpoints.
type BreakerSnapshot struct {
	Name        string    `json:"name"`
	State       string    `json:"state"`
	Failures    int       `json:"failures"`
	NextAttempt time.Time `json:"next_attempt,omitempty"`
}

// Breaker is a gobreaker circuit breaker whose trip condition is a sliding
// window of failure timestamps rather than a consecutive-failure count.
//
// A failure while half-open reopens the breaker immediately; the failure is
// still recorded in the window. Outside the closed state only one call runs
// at a time, so half-open trials are strictly sequential.
type Breaker struct {
	cb    *gobreaker.CircuitBreaker
	cfg   BreakerConfig
	now   func() time.Time
	trial atomic.Bool

	mu          sync.Mutex
	failures    []time.Time
	nextAttempt time.Time
	onChange    func(name string, from, to gobreaker.State)
}

// BreakerOption customises a Breaker.
type BreakerOption func(*Breaker)

// WithStateListener registers a callback for state transitions.
func WithStateListener(fn func(name string, from, to gobreaker.State)) BreakerOption {
	return func(b *Breaker) { b.onChange = fn }
}

// WithBreakerClock overrides the clock used for the failure window.
func WithBreakerClock(now func() time.Time) BreakerOption {
	return func(b *Breaker) { b.now = now }
}

// NewBreaker creates a breaker named after the source it protects.
func NewBreaker(name string, cfg BreakerConfig, opts ...BreakerOption) *Breaker {
	def := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	if cfg.MonitoringWindow <= 0 {
		cfg.MonitoringWindow = def.MonitoringWindow
	}

	b := &Breaker{cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(b)
	}

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: halfOpenSuccesses,
		Interval:    0,
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(gobreaker.Counts) bool {
			return b.windowFailures() >= b.cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.mu.Lock()
			if to == gobreaker.StateOpen {
				b.nextAttempt = b.now().Add(b.cfg.ResetTimeout)
			} else {
				b.nextAttempt = time.Time{}
			}
			listener := b.onChange
			b.mu.Unlock()
			if listener != nil {
				listener(name, from, to)
			}
		},
	})
	return b
}

// Name returns the breaker name.
func (b *Breaker) Name() string { return b.cb.Name() }

// State returns the current gobreaker state.
func (b *Breaker) State() gobreaker.State { return b.cb.State() }

// Snapshot reports the breaker state for observers.
func (b *Breaker) Snapshot() BreakerSnapshot {
	state := b.cb.State()
	failures := b.windowFailures()
	b.mu.Lock()
	next := b.nextAttempt
	b.mu.Unlock()
	if state != gobreaker.StateOpen {
		next = time.Time{}
	}
	return BreakerSnapshot{
		Name:        b.cb.Name(),
		State:       state.String(),
		Failures:    failures,
		NextAttempt: next,
	}
}

// admit reserves the single trial slot unless the breaker is closed. The
// returned release must be called once the call finishes.
func (b *Breaker) admit() (release func(), ok bool) {
	if b.cb.State() == gobreaker.StateClosed {
		return func() {}, true
	}
	if !b.trial.CompareAndSwap(false, true) {
		return nil, false
	}
	return func() { b.trial.Store(false) }, true
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = append(b.failures, b.now())
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = b.failures[:0]
}

// windowFailures prunes timestamps older than the monitoring window and
// returns how many remain.
func (b *Breaker) windowFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	cutoff := b.now().Add(-b.cfg.MonitoringWindow)
	keep := b.failures[:0]
	for _, ts := range b.failures {
		if ts.After(cutoff) {
			keep = append(keep, ts)
		}
	}
	b.failures = keep
	return len(b.failures)
}

// Execute runs op through the breaker. The error of op never escapes as a
// Go error; it is carried in the returned Result. fallback may be nil.
func Execute[T any](b *Breaker, op func() (T, error), fallback func() (T, error)) Result[T] {
	release, ok := b.admit()
	if !ok {
		return shortCircuit(fallback)
	}
	defer release()
	out, err := b.cb.Execute(func() (interface{}, error) {
		v, err := op()
		if err != nil {
			b.recordFailure()
			return nil, err
		}
		b.recordSuccess()
		return v, nil
	})
	if err == nil {
		v, _ := out.(T)
		return Ok(v)
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return shortCircuit(fallback)
	}

	if fallback == nil {
		return Failed[T](err)
	}
	v, fbErr := fallback()
	if fbErr != nil {
		return Failed[T](errors.Join(err, fbErr))
	}
	return Degraded(v, err)
}

func shortCircuit[T any](fallback func() (T, error)) Result[T] {
	if fallback == nil {
		var zero T
		return Degraded(zero, domain.ErrCircuitOpen)
	}
	v, fbErr := fallback()
	if fbErr != nil {
		return Failed[T](errors.Join(domain.ErrCircuitOpen, fbErr))
	}
	return Degraded(v, domain.ErrCircuitOpen)
}
