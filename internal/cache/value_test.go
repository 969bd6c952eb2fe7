package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func TestValueCachesUntilTTL(t *testing.T) {
	clock := newClock()
	v := NewValue[int](time.Minute).WithClock(clock.Now)

	var loads int32
	load := func(context.Context) (int, error) {
		return int(atomic.AddInt32(&loads, 1)), nil
	}

	for i := 0; i < 3; i++ {
		got, err := v.Get(context.Background(), load)
		if err != nil || got != 1 {
			t.Fatalf("Get #%d = %d, %v; want 1", i, got, err)
		}
	}

	clock.Advance(time.Minute)
	got, err := v.Get(context.Background(), load)
	if err != nil || got != 2 {
		t.Fatalf("Get after TTL = %d, %v; want 2", got, err)
	}
}

func TestValueInvalidate(t *testing.T) {
	v := NewValue[string](time.Hour)
	value := "first"
	load := func(context.Context) (string, error) { return value, nil }

	if got, _ := v.Get(context.Background(), load); got != "first" {
		t.Fatalf("got %q", got)
	}
	value = "second"
	if got, _ := v.Get(context.Background(), load); got != "first" {
		t.Fatalf("expected cached value, got %q", got)
	}

	v.Invalidate()
	if _, ok := v.Peek(); ok {
		t.Fatalf("expected empty cache after Invalidate")
	}
	if got, _ := v.Get(context.Background(), load); got != "second" {
		t.Fatalf("expected reload after Invalidate, got %q", got)
	}
}

func TestValueDoesNotCacheErrors(t *testing.T) {
	v := NewValue[int](time.Hour)
	boom := errors.New("boom")

	if _, err := v.Get(context.Background(), func(context.Context) (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	got, err := v.Get(context.Background(), func(context.Context) (int, error) { return 7, nil })
	if err != nil || got != 7 {
		t.Fatalf("Get after error = %d, %v; want 7", got, err)
	}
}

func TestValueCollapsesConcurrentLoads(t *testing.T) {
	v := NewValue[int](time.Hour)
	release := make(chan struct{})
	var loads int32

	load := func(context.Context) (int, error) {
		atomic.AddInt32(&loads, 1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make(chan int, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, _ := v.Get(context.Background(), load)
			results <- got
		}()
	}

	// Give the goroutines a chance to pile up on the in-flight load.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	for got := range results {
		if got != 42 {
			t.Fatalf("got %d, want 42", got)
		}
	}
	if n := atomic.LoadInt32(&loads); n < 1 || n > 10 {
		t.Fatalf("unexpected load count %d", n)
	}
	if _, ok := v.Peek(); !ok {
		t.Fatalf("expected value to be cached")
	}
}

func TestValueInvalidateDuringLoadDiscardsResult(t *testing.T) {
	v := NewValue[string](time.Hour)
	started := make(chan struct{})
	release := make(chan struct{})

	done := make(chan string)
	go func() {
		got, _ := v.Get(context.Background(), func(context.Context) (string, error) {
			close(started)
			<-release
			return "stale", nil
		})
		done <- got
	}()

	<-started
	v.Invalidate()
	close(release)
	<-done

	if _, ok := v.Peek(); ok {
		t.Fatalf("stale load must not repopulate the cache after Invalidate")
	}
	got, _ := v.Get(context.Background(), func(context.Context) (string, error) { return "fresh", nil })
	if got != "fresh" {
		t.Fatalf("got %q, want fresh", got)
	}
}

func TestValueCleanExpired(t *testing.T) {
	clock := newClock()
	v := NewValue[int](time.Minute).WithClock(clock.Now)
	if _, err := v.Get(context.Background(), func(context.Context) (int, error) { return 7, nil }); err != nil {
		t.Fatalf("Get: %v", err)
	}

	if n := v.CleanExpired(); n != 0 {
		t.Fatalf("CleanExpired on fresh value = %d, want 0", n)
	}
	clock.Advance(2 * time.Minute)
	if n := v.CleanExpired(); n != 1 {
		t.Fatalf("CleanExpired on stale value = %d, want 1", n)
	}
	if _, ok := v.Peek(); ok {
		t.Fatal("value still present after cleanup")
	}
}
