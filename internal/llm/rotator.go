package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const rateWindow = time.Minute

// KeyRotator spreads requests over several API keys so that no key exceeds
// its per-minute budget. It is shared by every document processed in the
// process; the mutex only guards timestamp bookkeeping and is never held
// while sleeping or calling a provider.
type KeyRotator struct {
	mu       sync.Mutex
	keys     []string
	limit    int
	requests [][]time.Time

	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	onWait func(time.Duration)
}

// NewKeyRotator creates a rotator for the given keys and per-key requests/minute
func NewKeyRotator(keys []string, requestsPerMinute int) (*KeyRotator, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("key rotator requires at least one API key")
	}
	if requestsPerMinute <= 0 {
		return nil, fmt.Errorf("rate limit must be positive, got %d", requestsPerMinute)
	}
	for i, key := range keys {
		if strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("API key %d is blank", i)
		}
	}
	return &KeyRotator{
		keys:     append([]string(nil), keys...),
		limit:    requestsPerMinute,
		requests: make([][]time.Time, len(keys)),
		now:      time.Now,
		sleep:    sleepContext,
	}, nil
}

// OnWait registers fn to receive the total time an Acquire call spent
// blocked. Calls that find a free key immediately are not reported.
// Must be set before the rotator is shared.
func (r *KeyRotator) OnWait(fn func(time.Duration)) {
	r.onWait = fn
}

// Acquire returns the first key with spare budget, blocking until one frees up
func (r *KeyRotator) Acquire(ctx context.Context) (string, error) {
	var waited time.Duration
	for {
		key, wait := r.tryAcquire()
		if key != "" {
			if waited > 0 && r.onWait != nil {
				r.onWait(waited)
			}
			return key, nil
		}
		if err := r.sleep(ctx, wait); err != nil {
			return "", err
		}
		waited += wait
	}
}

// Keys returns the number of configured keys
func (r *KeyRotator) Keys() int {
	return len(r.keys)
}

// tryAcquire records a request on the first unsaturated key. When every key
// is saturated it returns the time until the oldest request in any window
// leaves it.
func (r *KeyRotator) tryAcquire() (string, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-rateWindow)
	var wait time.Duration = -1

	for i := range r.keys {
		window := r.requests[i]
		drop := 0
		for drop < len(window) && !window[drop].After(cutoff) {
			drop++
		}
		window = window[drop:]
		r.requests[i] = window

		if len(window) < r.limit {
			r.requests[i] = append(window, now)
			return r.keys[i], 0
		}

		expires := window[0].Add(rateWindow).Sub(now)
		if wait < 0 || expires < wait {
			wait = expires
		}
	}

	if wait <= 0 {
		wait = time.Millisecond
	}
	return "", wait
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
