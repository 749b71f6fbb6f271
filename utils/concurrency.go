package utils

import (
	"context"
	"sync"
	"time"
)

// Throttle spaces consecutive calls to Wait by at least interval.
// A zero interval never blocks.
type Throttle struct {
	interval time.Duration
	mu       sync.Mutex
	next     time.Time
}

// NewThrottle returns a Throttle whose first Wait returns immediately.
func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{interval: interval}
}

// Wait blocks until the next slot is due or ctx is done.
func (t *Throttle) Wait(ctx context.Context) error {
	if t.interval <= 0 {
		return ctx.Err()
	}

	t.mu.Lock()
	now := time.Now()
	slot := t.next
	if slot.Before(now) {
		slot = now
	}
	t.next = slot.Add(t.interval)
	t.mu.Unlock()

	delay := time.Until(slot)
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// WorkerPool runs jobs on at most maxWorkers goroutines.
type WorkerPool struct {
	sem      chan struct{}
	wg       sync.WaitGroup
	throttle *Throttle
}

// NewWorkerPool creates a pool with the given concurrency whose job starts
// are spaced by interval.
func NewWorkerPool(maxWorkers int, interval time.Duration) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &WorkerPool{
		sem:      make(chan struct{}, maxWorkers),
		throttle: NewThrottle(interval),
	}
}

// Submit starts job once a worker is free. It returns ctx's error without
// running the job if ctx is done first.
func (wp *WorkerPool) Submit(ctx context.Context, job func(ctx context.Context)) error {
	select {
	case wp.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := wp.throttle.Wait(ctx); err != nil {
		<-wp.sem
		return err
	}

	wp.wg.Add(1)
	go func() {
		defer wp.wg.Done()
		defer func() { <-wp.sem }()
		job(ctx)
	}()
	return nil
}

// Wait blocks until all started jobs have completed.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

// Set is a goroutine-safe set, used to drop listings already seen in a run.
type Set[K comparable] struct {
	mu    sync.RWMutex
	items map[K]struct{}
}

// NewSet creates an empty Set.
func NewSet[K comparable]() *Set[K] {
	return &Set[K]{items: make(map[K]struct{})}
}

// Add reports whether k was newly added.
func (s *Set[K]) Add(k K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[k]; ok {
		return false
	}
	s.items[k] = struct{}{}
	return true
}

func (s *Set[K]) Contains(k K) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[k]
	return ok
}

func (s *Set[K]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
