package llm

import (
	"context"
	stderrors "errors"
	"math/rand/v2"
	"time"

	"github.com/adverant/nexus/legalstruct-worker/internal/errors"
)

// RetryPolicy wraps a single network call with exponential backoff.
// MaxRetries counts retries after the first attempt, so 0 means one attempt.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MinDelay   time.Duration
	MaxDelay   time.Duration
	// Jitter adds up to this fraction of the computed delay at random.
	Jitter float64

	Sleep  func(ctx context.Context, d time.Duration) error
	Random func() float64
}

// DefaultRetryPolicy returns the policy used for provider calls
func DefaultRetryPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries: maxRetries,
		BaseDelay:  time.Second,
		MinDelay:   time.Second,
		MaxDelay:   30 * time.Second,
		Jitter:     0.5,
	}
}

// Backoff returns the wait before retry number attempt (0-based)
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	delay := p.BaseDelay
	for i := 0; i < attempt && delay < p.MaxDelay; i++ {
		delay *= 2
	}
	if delay < p.MinDelay {
		delay = p.MinDelay
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if p.Jitter > 0 {
		random := p.Random
		if random == nil {
			random = rand.Float64
		}
		delay += time.Duration(float64(delay) * p.Jitter * random())
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return delay
}

// Do runs fn until it succeeds, fails permanently or runs out of retries.
// It returns the number of attempts made and the last error.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, p.Backoff(attempt-1)); err != nil {
				return attempts, stderrors.Join(lastErr, err)
			}
		}
		attempts++
		lastErr = fn(ctx)
		if lastErr == nil {
			return attempts, nil
		}
		if !Retryable(lastErr) {
			return attempts, lastErr
		}
	}
	return attempts, lastErr
}

// Retryable reports whether err is worth another attempt. Empty responses,
// network failures, rate limits and 5xx answers are; malformed requests,
// auth failures and cancellation are not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.HasCode(err, errors.ErrorPermanentProvider) {
		return false
	}
	return true
}

// ClassifyStatus maps an HTTP status from a provider to a retry decision
func ClassifyStatus(status int) bool {
	switch status {
	case 400, 401, 403, 404:
		return false
	}
	return true
}
