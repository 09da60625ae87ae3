package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/marketscout/internal/domain"
)

// RetryPolicy bounds how often and how long a request is retried.
type RetryPolicy struct {
	// Retries is the number of backoff retries after the first attempt.
	Retries int
	// BaseDelay is multiplied by 2^attempt between retries.
	BaseDelay time.Duration
	// RateLimitPause is used when a transient response has no Retry-After.
	RateLimitPause time.Duration
	// MaxRateLimitWaits caps the transient pauses, which do not consume
	// Retries.
	MaxRateLimitWaits int
	// MaxRateLimitPause caps a single pause; longer waits are surfaced to the
	// caller so the source cooldown can take over.
	MaxRateLimitPause time.Duration
}

// DefaultRetryPolicy returns the stock policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Retries:           3,
		BaseDelay:         750 * time.Millisecond,
		RateLimitPause:    5 * time.Second,
		MaxRateLimitWaits: 2,
		MaxRateLimitPause: 30 * time.Second,
	}
}

// Retrier executes requests under a RetryPolicy.
type Retrier struct {
	policy RetryPolicy
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRetrier creates a Retrier that sleeps on the wall clock.
func NewRetrier(policy RetryPolicy, logger *slog.Logger) *Retrier {
	return &Retrier{
		policy: policy,
		logger: logger,
		sleep:  sleepContext,
	}
}

// WithSleep replaces the sleep function, used by tests.
func (r *Retrier) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Retrier {
	r.sleep = fn
	return r
}

// Policy returns the configured policy.
func (r *Retrier) Policy() RetryPolicy { return r.policy }

// Retry runs op until it succeeds, the retry budget is spent, or ctx ends.
// The returned error is always a *domain.FetchError (or ctx.Err()).
func Retry[T any](ctx context.Context, r *Retrier, source domain.Source, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempt := 0
	waits := 0
	for {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		fe, ok := domain.AsFetchError(err)
		if !ok {
			fe = &domain.FetchError{Source: source, Kind: domain.FetchNetwork, Err: err}
		}

		if fe.Kind == domain.FetchTransient {
			pause := fe.RetryAfter
			if pause <= 0 {
				pause = r.policy.RateLimitPause
			}
			if waits >= r.policy.MaxRateLimitWaits || (r.policy.MaxRateLimitPause > 0 && pause > r.policy.MaxRateLimitPause) {
				return zero, fe
			}
			waits++
			r.logger.WarnContext(ctx, "source rate limited, pausing",
				slog.String("source", string(source)),
				slog.Duration("pause", pause),
				slog.Int("wait", waits),
			)
			if err := r.sleep(ctx, pause); err != nil {
				return zero, err
			}
			continue
		}

		if attempt >= r.policy.Retries {
			if attempt == 0 {
				return zero, fe
			}
			out := *fe
			out.Err = fmt.Errorf("after %d retries: %w", attempt, fe.Err)
			return zero, &out
		}
		delay := r.policy.BaseDelay << attempt
		attempt++
		r.logger.DebugContext(ctx, "retrying source request",
			slog.String("source", string(source)),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		if err := r.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
