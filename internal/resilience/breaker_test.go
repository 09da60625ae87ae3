package resilience

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketscout/internal/domain"
)

var errBoom = errors.New("boom")

func fail() (int, error)    { return 0, errBoom }
func succeed() (int, error) { return 42, nil }

func TestBreakerOpensAfterThresholdWithinWindow(t *testing.T) {
	b := NewBreaker("polymarket", BreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute, MonitoringWindow: time.Minute})

	for i := 0; i < 2; i++ {
		res := Execute(b, fail, nil)
		assert.Equal(t, StatusFailed, res.Status)
		assert.ErrorIs(t, res.Err, errBoom)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())

	Execute(b, fail, nil)
	assert.Equal(t, gobreaker.StateOpen, b.State())

	snap := b.Snapshot()
	assert.Equal(t, "open", snap.State)
	assert.Equal(t, 3, snap.Failures)
	assert.False(t, snap.NextAttempt.IsZero())
}

func TestBreakerOpenShortCircuitsToFallback(t *testing.T) {
	b := NewBreaker("kalshi", BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute, MonitoringWindow: time.Minute})
	Execute(b, fail, nil)
	require.Equal(t, gobreaker.StateOpen, b.State())

	calls := 0
	op := func() (int, error) { calls++; return 1, nil }

	res := Execute(b, op, nil)
	assert.Equal(t, StatusDegraded, res.Status)
	assert.ErrorIs(t, res.Err, domain.ErrCircuitOpen)
	assert.Zero(t, res.Value)

	res = Execute(b, op, func() (int, error) { return 7, nil })
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, 7, res.Value)

	assert.Zero(t, calls, "operation must not run while open")
}

func TestBreakerHalfOpenClosesAfterTwoSuccesses(t *testing.T) {
	b := NewBreaker("polymarket", BreakerConfig{FailureThreshold: 2, ResetTimeout: 50 * time.Millisecond, MonitoringWindow: time.Minute})
	Execute(b, fail, nil)
	Execute(b, fail, nil)
	require.Equal(t, gobreaker.StateOpen, b.State())

	time.Sleep(70 * time.Millisecond)
	assert.Equal(t, gobreaker.StateHalfOpen, b.State())

	calls := 0
	op := func() (int, error) { calls++; return 5, nil }

	res := Execute(b, op, nil)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, 5, res.Value)
	assert.Equal(t, 1, calls)
	assert.Equal(t, gobreaker.StateHalfOpen, b.State())

	Execute(b, op, nil)
	assert.Equal(t, gobreaker.StateClosed, b.State())
	assert.Equal(t, 0, b.Snapshot().Failures)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker("polymarket", BreakerConfig{FailureThreshold: 2, ResetTimeout: 50 * time.Millisecond, MonitoringWindow: time.Minute})
	Execute(b, fail, nil)
	Execute(b, fail, nil)
	time.Sleep(70 * time.Millisecond)
	require.Equal(t, gobreaker.StateHalfOpen, b.State())

	res := Execute(b, fail, nil)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, gobreaker.StateOpen, b.State())
	assert.Equal(t, 3, b.Snapshot().Failures)
}

func TestBreakerFailuresOutsideWindowDoNotTrip(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { mu.Lock(); defer mu.Unlock(); return now }
	advance := func(d time.Duration) { mu.Lock(); now = now.Add(d); mu.Unlock() }

	b := NewBreaker("kalshi", BreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute, MonitoringWindow: time.Minute}, WithBreakerClock(clock))
	Execute(b, fail, nil)
	advance(2 * time.Minute)
	Execute(b, fail, nil)
	assert.Equal(t, gobreaker.StateClosed, b.State())

	Execute(b, fail, nil)
	assert.Equal(t, gobreaker.StateOpen, b.State())
}

func TestBreakerSuccessClearsWindow(t *testing.T) {
	b := NewBreaker("polymarket", BreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute, MonitoringWindow: time.Minute})
	Execute(b, fail, nil)
	Execute(b, fail, nil)
	Execute(b, succeed, nil)
	Execute(b, fail, nil)
	Execute(b, fail, nil)
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestExecuteFallbackOnFailure(t *testing.T) {
	b := NewBreaker("polymarket", DefaultBreakerConfig())

	res := Execute(b, fail, func() (int, error) { return 3, nil })
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, 3, res.Value)
	assert.ErrorIs(t, res.Err, errBoom)

	fbErr := errors.New("fallback down")
	res = Execute(b, fail, func() (int, error) { return 0, fbErr })
	assert.Equal(t, StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, errBoom)
	assert.ErrorIs(t, res.Err, fbErr)
}

func TestStateListenerObservesTransitions(t *testing.T) {
	var transitions []string
	b := NewBreaker("polymarket", BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute, MonitoringWindow: time.Minute},
		WithStateListener(func(_ string, from, to gobreaker.State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		}))
	Execute(b, fail, nil)
	assert.Equal(t, []string{"closed->open"}, transitions)
}

func TestBreakerHalfOpenAdmitsOneTrialAtATime(t *testing.T) {
	b := NewBreaker("polymarket", BreakerConfig{FailureThreshold: 1, ResetTimeout: 50 * time.Millisecond, MonitoringWindow: time.Minute})
	Execute(b, fail, nil)
	require.Equal(t, gobreaker.StateOpen, b.State())
	time.Sleep(70 * time.Millisecond)

	var running atomic.Int32
	entered := make(chan struct{}, 3)
	release := make(chan struct{})
	op := func() (int, error) {
		running.Add(1)
		entered <- struct{}{}
		<-release
		return 1, nil
	}

	results := make(chan Result[int], 3)
	for i := 0; i < 3; i++ {
		go func() { results <- Execute(b, op, nil) }()
	}

	for i := 0; i < 2; i++ {
		res := <-results
		assert.Equal(t, StatusDegraded, res.Status)
		assert.ErrorIs(t, res.Err, domain.ErrCircuitOpen)
	}
	<-entered
	assert.Equal(t, int32(1), running.Load())

	close(release)
	res := <-results
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, gobreaker.StateHalfOpen, b.State())

	// The second trial runs only after the first finished, and closes.
	res = Execute(b, succeed, nil)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, gobreaker.StateClosed, b.State())
	assert.Equal(t, int32(1), running.Load())
}

func TestBreakerNextAttemptUsesClock(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker("kalshi", BreakerConfig{FailureThreshold: 1, ResetTimeout: 2 * time.Minute, MonitoringWindow: time.Minute},
		WithBreakerClock(func() time.Time { return now }))
	Execute(b, fail, nil)
	require.Equal(t, gobreaker.StateOpen, b.State())
	assert.Equal(t, now.Add(2*time.Minute), b.Snapshot().NextAttempt)
}
