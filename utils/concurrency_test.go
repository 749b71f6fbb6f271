package utils

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetNoDuplicates(t *testing.T) {
	s := NewSet[string]()

	assert.True(t, s.Add("https://hasznaltalma.hu/iphone/iphone-13-128gb/1001"), "first Add should return true")
	assert.False(t, s.Add("https://hasznaltalma.hu/iphone/iphone-13-128gb/1001"), "second Add of same URL should return false")
	assert.True(t, s.Contains("https://hasznaltalma.hu/iphone/iphone-13-128gb/1001"))
	assert.False(t, s.Contains("https://hasznaltalma.hu/iphone/iphone-12-64gb/7"))
	assert.Equal(t, 1, s.Len())
}

func TestSetConcurrentAdd(t *testing.T) {
	s := NewSet[int64]()
	var added int64

	pool := NewWorkerPool(10, 0)
	for i := 0; i < 100; i++ {
		require.NoError(t, pool.Submit(context.Background(), func(context.Context) {
			if s.Add(1001) {
				atomic.AddInt64(&added, 1)
			}
		}))
	}
	pool.Wait()

	assert.Equal(t, int64(1), added, "expected exactly 1 successful add")
}

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	pool := NewWorkerPool(2, 0)
	var running, peak int64

	for i := 0; i < 10; i++ {
		require.NoError(t, pool.Submit(context.Background(), func(context.Context) {
			n := atomic.AddInt64(&running, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&running, -1)
		}))
	}
	pool.Wait()

	assert.LessOrEqual(t, peak, int64(2))
}

func TestWorkerPoolSpacesJobStarts(t *testing.T) {
	interval := 50 * time.Millisecond
	pool := NewWorkerPool(3, interval)

	var mu sync.Mutex
	var starts []time.Time

	for i := 0; i < 3; i++ {
		require.NoError(t, pool.Submit(context.Background(), func(context.Context) {
			mu.Lock()
			starts = append(starts, time.Now())
			mu.Unlock()
		}))
	}
	pool.Wait()

	require.Len(t, starts, 3)
	first, last := starts[0], starts[0]
	for _, s := range starts {
		if s.Before(first) {
			first = s
		}
		if s.After(last) {
			last = s
		}
	}
	assert.GreaterOrEqual(t, last.Sub(first), 2*interval-5*time.Millisecond)
}

func TestWorkerPoolSubmitCancelled(t *testing.T) {
	pool := NewWorkerPool(1, 0)
	release := make(chan struct{})
	require.NoError(t, pool.Submit(context.Background(), func(context.Context) { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	ran := false
	err := pool.Submit(ctx, func(context.Context) { ran = true })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	pool.Wait()
	assert.False(t, ran)
}

func TestThrottle(t *testing.T) {
	th := NewThrottle(30 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, th.Wait(ctx))
	require.NoError(t, th.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, th.Wait(cancelled), context.Canceled)

	assert.NoError(t, NewThrottle(0).Wait(ctx))
}
