// Package retry implements the exponential-backoff-with-jitter policy the
// Next-Step Scheduler (cycle.Scheduler) uses to space out same-key/same-model
// retries, grounded on spec.md §6's "retry delay" knob and generalized from a
// fixed delay into the teacher's own backoff shape.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy configures a backoff schedule.
type RetryPolicy struct {
	MaxRetries      int                                               // maximum retry count (0 = no retries)
	InitialDelay    time.Duration                                     // delay before the first retry
	MaxDelay        time.Duration                                     // delay ceiling
	Multiplier      float64                                           // exponential growth factor
	Jitter          bool                                              // randomize delay by ±25% to avoid thundering herds
	RetryableErrors []error                                           // errors worth retrying; empty means retry everything
	OnRetry         func(attempt int, err error, delay time.Duration) // invoked before each retry sleep
}

// DefaultRetryPolicy returns the policy used when none is supplied.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Delay computes the backoff for the given 1-indexed attempt, applying the
// exponential multiplier, the max-delay ceiling, and jitter if enabled. The
// Next-Step Scheduler calls this directly (outside of DoWithResult's loop)
// to space out its own asynchronously-rescheduled retries.
func (p *RetryPolicy) Delay(attempt int) time.Duration {
	initialDelay := p.InitialDelay
	if initialDelay <= 0 {
		initialDelay = 1 * time.Second
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	multiplier := p.Multiplier
	if multiplier < 1.0 {
		multiplier = 2.0
	}

	delay := float64(initialDelay) * math.Pow(multiplier, float64(attempt-1))
	if delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}
	if p.Jitter {
		jitter := delay * 0.25
		delay += (rand.Float64()*2 - 1) * jitter
	}
	if delay < float64(initialDelay) {
		delay = float64(initialDelay)
	}
	return time.Duration(delay)
}

// Retryer executes a function under a backoff policy.
type Retryer interface {
	// Do runs fn, retrying on failure per the policy.
	Do(ctx context.Context, fn func() error) error

	// DoWithResult runs fn and returns its result, retrying on failure per
	// the policy.
	DoWithResult(ctx context.Context, fn func() (any, error)) (any, error)
}

// backoffRetryer is the exponential-backoff Retryer implementation.
type backoffRetryer struct {
	policy *RetryPolicy
	logger *zap.Logger
}

// NewBackoffRetryer constructs a Retryer from policy (DefaultRetryPolicy if
// nil), normalizing out-of-range fields.
func NewBackoffRetryer(policy *RetryPolicy, logger *zap.Logger) Retryer {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = 1 * time.Second
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 30 * time.Second
	}
	if policy.Multiplier < 1.0 {
		policy.Multiplier = 2.0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &backoffRetryer{policy: policy, logger: logger}
}

func (r *backoffRetryer) Do(ctx context.Context, fn func() error) error {
	_, err := r.DoWithResult(ctx, func() (any, error) {
		return nil, fn()
	})
	return err
}

func (r *backoffRetryer) DoWithResult(ctx context.Context, fn func() (any, error)) (any, error) {
	var lastErr error
	var result any

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.policy.Delay(attempt)

			r.logger.Debug("retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", r.policy.MaxRetries),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)

			if r.policy.OnRetry != nil {
				r.policy.OnRetry(attempt, lastErr, delay)
			}

			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("retry canceled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		result, lastErr = fn()
		if lastErr == nil {
			if attempt > 0 {
				r.logger.Info("retry succeeded", zap.Int("attempt", attempt))
			}
			return result, nil
		}

		if !r.isRetryable(lastErr) {
			r.logger.Debug("error not retryable", zap.Error(lastErr))
			return nil, lastErr
		}

		if attempt >= r.policy.MaxRetries {
			break
		}
	}

	r.logger.Warn("retries exhausted",
		zap.Int("attempts", r.policy.MaxRetries+1),
		zap.Error(lastErr),
	)
	return nil, fmt.Errorf("failed after %d retries: %w", r.policy.MaxRetries, lastErr)
}

func (r *backoffRetryer) isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if len(r.policy.RetryableErrors) == 0 {
		return true
	}
	for _, retryableErr := range r.policy.RetryableErrors {
		if errors.Is(err, retryableErr) {
			return true
		}
	}
	return false
}

// RetryableError marks an error as worth retrying.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// IsRetryableError reports whether err was wrapped by WrapRetryable. This is
// distinct from types.IsRetryable, which inspects *types.Error.Retryable.
func IsRetryableError(err error) bool {
	var retryableErr *RetryableError
	return errors.As(err, &retryableErr)
}

// IsRetryable is an alias for IsRetryableError.
//
// Deprecated: use IsRetryableError to avoid confusion with types.IsRetryable.
var IsRetryable = IsRetryableError

// WrapRetryable wraps err as a *RetryableError.
func WrapRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}
