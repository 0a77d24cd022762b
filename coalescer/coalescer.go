// Package coalescer serializes concurrent "miss path" work for the same
// cache key so that at most one recomputation is in flight per key at a
// time, with guaranteed cleanup on every exit path including panic.
package coalescer

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Coalescer is a per-key mutual-exclusion map. It is safe for concurrent
// use. The zero value is not usable; construct with New.
type Coalescer struct {
	group singleflight.Group

	mu       sync.Mutex
	inFlight map[string]int
}

// New returns a ready-to-use Coalescer.
func New() *Coalescer {
	return &Coalescer{inFlight: make(map[string]int)}
}

// Do runs fn under the key's mutex: if another caller is already running
// fn for the same key, this caller blocks until that call returns and
// receives its result instead of invoking fn itself. Release is
// guaranteed on every exit path — including a panic inside fn, which
// singleflight.Group recovers on the worker goroutine and re-panics to
// every waiter.
//
// ctx is passed to fn only by the caller whose call actually runs it; fn
// is expected to honor ctx.Done() itself. A caller that joins an
// in-flight call waits for that call to return even if its own ctx is
// canceled meanwhile, and its ctx never reaches fn.
func (c *Coalescer) Do(ctx context.Context, key string, fn func(ctx context.Context) (interface{}, error)) (interface{}, error, bool) {
	c.enter(key)
	defer c.leave(key)

	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		return fn(ctx)
	})
	return v, err, shared
}

// Forget removes key's in-flight call, if any, allowing a fresh call to
// start immediately rather than joining a stale one.
func (c *Coalescer) Forget(key string) {
	c.group.Forget(key)
}

// InFlight reports the number of distinct keys currently being
// coalesced — spec.md's in_flight_requests_size statistic.
func (c *Coalescer) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inFlight)
}

func (c *Coalescer) enter(key string) {
	c.mu.Lock()
	c.inFlight[key]++
	c.mu.Unlock()
}

func (c *Coalescer) leave(key string) {
	c.mu.Lock()
	c.inFlight[key]--
	if c.inFlight[key] <= 0 {
		delete(c.inFlight, key)
	}
	c.mu.Unlock()
}
