package llm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func newTestRotator(t *testing.T, keys []string, limit int) (*KeyRotator, *fakeClock) {
	t.Helper()
	r, err := NewKeyRotator(keys, limit)
	require.NoError(t, err)
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	r.now = clock.Now
	r.sleep = clock.Sleep
	return r, clock
}

func TestKeyRotatorFillsKeysInOrder(t *testing.T) {
	r, clock := newTestRotator(t, []string{"k1", "k2"}, 2)
	ctx := context.Background()

	var got []string
	for i := 0; i < 4; i++ {
		key, err := r.Acquire(ctx)
		require.NoError(t, err)
		got = append(got, key)
	}
	assert.Equal(t, []string{"k1", "k1", "k2", "k2"}, got)
	assert.Empty(t, clock.sleeps)
}

func TestKeyRotatorWaitsForOldestRequest(t *testing.T) {
	r, clock := newTestRotator(t, []string{"k1", "k2"}, 1)
	ctx := context.Background()

	_, err := r.Acquire(ctx)
	require.NoError(t, err)
	clock.now = clock.now.Add(20 * time.Second)
	_, err = r.Acquire(ctx)
	require.NoError(t, err)

	var reported []time.Duration
	r.OnWait(func(d time.Duration) { reported = append(reported, d) })

	key, err := r.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, "k1", key)
	require.Len(t, clock.sleeps, 1)
	assert.Equal(t, 40*time.Second, clock.sleeps[0])
	assert.Equal(t, []time.Duration{40 * time.Second}, reported)
}

func TestKeyRotatorHonorsCancellation(t *testing.T) {
	r, err := NewKeyRotator([]string{"k1"}, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	_, err = r.Acquire(ctx)
	require.NoError(t, err)

	cancel()
	_, err = r.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestKeyRotatorConcurrentBudget(t *testing.T) {
	r, clock := newTestRotator(t, []string{"a", "b", "c"}, 5)
	ctx := context.Background()

	var wg sync.WaitGroup
	counts := make(map[string]int)
	var mu sync.Mutex
	for i := 0; i < 15; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key, err := r.Acquire(ctx)
			assert.NoError(t, err)
			mu.Lock()
			counts[key]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, map[string]int{"a": 5, "b": 5, "c": 5}, counts)
	assert.Empty(t, clock.sleeps)
}

func TestNewKeyRotatorRejectsBadConfig(t *testing.T) {
	_, err := NewKeyRotator(nil, 10)
	assert.Error(t, err)
	_, err = NewKeyRotator([]string{"k"}, 0)
	assert.Error(t, err)
	_, err = NewKeyRotator([]string{"k", "  "}, 10)
	assert.EqualError(t, err, "API key 1 is blank")
}
