package coalescer_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tiercache/tiercache/coalescer"
)

// S3 — stampede coalescing: N concurrent callers on the same key must
// invoke the compute function exactly once.
func TestCoalescesConcurrentCallers(t *testing.T) {
	c := coalescer.New()
	var calls int64

	const n = 100
	var wg sync.WaitGroup
	results := make([]interface{}, n)
	errs := make([]error, n)

	start := time.Now()
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err, _ := c.Do(context.Background(), "k", func(ctx context.Context) (interface{}, error) {
				atomic.AddInt64(&calls, 1)
				time.Sleep(10 * time.Millisecond)
				return "value", nil
			})
			results[i] = v
			errs[i] = err
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Fatalf("compute called %d times, want exactly 1", got)
	}
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("caller %d got error: %v", i, errs[i])
		}
		if results[i] != "value" {
			t.Fatalf("caller %d got %v, want \"value\"", i, results[i])
		}
	}
	if elapsed > 500*time.Millisecond {
		t.Fatalf("coalescing did not serialize compute: took %v", elapsed)
	}

	if n := c.InFlight(); n != 0 {
		t.Fatalf("expected no in-flight keys after completion, got %d", n)
	}
}

func TestDistinctKeysRunIndependently(t *testing.T) {
	c := coalescer.New()
	var calls int64

	var wg sync.WaitGroup
	for _, key := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			_, _, _ = c.Do(context.Background(), key, func(ctx context.Context) (interface{}, error) {
				atomic.AddInt64(&calls, 1)
				return key, nil
			})
		}(key)
	}
	wg.Wait()

	if got := atomic.LoadInt64(&calls); got != 3 {
		t.Fatalf("expected 3 independent calls, got %d", got)
	}
}

func TestPanicStillReleases(t *testing.T) {
	c := coalescer.New()

	func() {
		defer func() { _ = recover() }()
		_, _, _ = c.Do(context.Background(), "panicky", func(ctx context.Context) (interface{}, error) {
			panic("boom")
		})
	}()

	if n := c.InFlight(); n != 0 {
		t.Fatalf("expected cleanup after panic, got %d in-flight", n)
	}

	// A subsequent call for the same key must proceed normally.
	v, err, _ := c.Do(context.Background(), "panicky", func(ctx context.Context) (interface{}, error) {
		return "recovered", nil
	})
	if err != nil || v != "recovered" {
		t.Fatalf("expected clean call after panic recovery, got v=%v err=%v", v, err)
	}
}
