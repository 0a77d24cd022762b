// Package manager is the cache's public façade, composing the ladder,
// coalescer, and invalidation bus and owning the aggregate statistics.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/tiercache/tiercache/backend"
	"github.com/tiercache/tiercache/codec"
	"github.com/tiercache/tiercache/coalescer"
	"github.com/tiercache/tiercache/invalidation"
	"github.com/tiercache/tiercache/ladder"
	"github.com/tiercache/tiercache/strategy"
)

// ErrMisconfiguredStreaming is returned by stream operations when no tier
// backend implements backend.StreamStore.
var ErrMisconfiguredStreaming = errors.New("manager: stream operation requires a streaming-capable backend")

// Statistics are the manager's process-wide atomic counters, per
// spec.md §3. They are zero-initialized and monotonically updated.
type Statistics struct {
	TotalRequests atomic.Int64
	L1Hits        atomic.Int64
	L2Hits        atomic.Int64
	Misses        atomic.Int64
	Promotions    atomic.Int64
}

// StatsSnapshot is a point-in-time read of Statistics plus derived
// ratios and the bus's own counters.
type StatsSnapshot struct {
	TotalRequests    int64
	L1Hits           int64
	L2Hits           int64
	Misses           int64
	Promotions       int64
	InFlightRequests int64
	HitRatio         float64
	Bus              *invalidation.Stats
}

// Config assembles a Manager. Ladder is required; Codec and Bus are optional
// (invalidation.New is left to the caller so Transport/AuditStream choice
// stays a caller concern, per spec.md §1 excluding the builder surface
// from the core contract).
type Config struct {
	Ladder *ladder.Ladder
	Codec  codec.Codec // defaults to codec.JSONCodec{} if nil
	Bus    *invalidation.Bus
}

// Manager is the public façade: C3-C6 composed behind one API, per
// spec.md §2 C7.
type Manager struct {
	ladder    *ladder.Ladder
	codec     codec.Codec
	coalescer *coalescer.Coalescer
	bus       *invalidation.Bus
	stats     Statistics

	busCtx    context.Context
	busCancel context.CancelFunc
}

// New constructs a Manager. If cfg.Bus is non-nil, its subscriber is
// started in the background immediately.
func New(cfg Config) (*Manager, error) {
	if cfg.Ladder == nil {
		return nil, fmt.Errorf("manager: ladder is required")
	}
	c := cfg.Codec
	if c == nil {
		c = codec.JSONCodec{}
	}

	m := &Manager{
		ladder:    cfg.Ladder,
		codec:     c,
		coalescer: coalescer.New(),
		bus:       cfg.Bus,
	}

	if m.bus != nil {
		m.busCtx, m.busCancel = context.WithCancel(context.Background())
		go m.bus.Run(m.busCtx)
	}

	return m, nil
}

// Get performs a fast top-tier lookup; on miss it enters the coalescer,
// double-checks the top tier, then descends the ladder with promotion.
// The zero value of T and found=false are returned on a total miss.
func Get[T any](ctx context.Context, m *Manager, key string) (T, bool, error) {
	var zero T

	m.stats.TotalRequests.Add(1)

	if raw, err := m.ladder.Top().Get(ctx, key); err == nil {
		m.stats.L1Hits.Add(1)
		m.ladder.Top().RecordHit()
		v, err := codec.UnmarshalTyped[T](m.codec, raw)
		if err != nil {
			return zero, false, err
		}
		return v, true, nil
	} else if !errors.Is(err, backend.ErrNotFound) {
		log.Printf("manager: top tier get failed: %v", err)
	}

	v, found, err := m.missPath(ctx, key, 0, nil)
	if err != nil || !found {
		return zero, false, err
	}
	decoded, err := codec.UnmarshalTyped[T](m.codec, v)
	if err != nil {
		return zero, false, err
	}
	return decoded, true, nil
}

// missPath runs under the coalescer: double-check the top tier, then
// descend the remaining ladder (via ladder.Get, which also promotes). If
// compute is non-nil and the ladder itself misses, compute is invoked at
// most once per coalesced batch and its result written to every tier with
// baseTTL (the caller's resolved strategy TTL; ignored when compute is
// nil). Every caller sharing the coalesced result — not just the one that
// actually ran the closure — records exactly one of l1/l2/miss for itself
// so spec.md §8 property 10 (total_requests = l1_hits + l2_hits + misses)
// holds under concurrent coalescing, not only on the sequential path.
func (m *Manager) missPath(ctx context.Context, key string, baseTTL time.Duration, compute func(ctx context.Context) ([]byte, error)) ([]byte, bool, error) {
	v, err, _ := m.coalescer.Do(ctx, key, func(ctx context.Context) (interface{}, error) {
		if raw, err := m.ladder.Top().Get(ctx, key); err == nil {
			m.ladder.Top().RecordHit()
			return missResult{value: raw, found: true, location: ladder.HitTop}, nil
		}

		res, err := m.ladder.Get(ctx, key)
		if err != nil {
			return missResult{}, err
		}
		if res.Found {
			if res.Promotions > 0 {
				m.stats.Promotions.Add(int64(res.Promotions))
			}
			return missResult{value: res.Value, found: true, location: res.Location}, nil
		}

		if compute == nil {
			return missResult{location: ladder.HitNone}, nil
		}

		computed, err := compute(ctx)
		if err != nil {
			return missResult{}, err
		}
		if setErr := m.ladder.Set(ctx, key, computed, baseTTL); setErr != nil {
			log.Printf("manager: write-back after compute failed: %v", setErr)
		}
		return missResult{value: computed, found: true, location: ladder.HitNone}, nil
	})

	if err != nil {
		return nil, false, err
	}
	mr := v.(missResult)
	m.recordLadderHit(mr.location)
	return mr.value, mr.found, nil
}

type missResult struct {
	value    []byte
	found    bool
	location ladder.HitLocation
}

// recordLadderHit attributes one caller's request to exactly one of
// l1/l2/miss, per the outcome the coalesced batch observed. It is called
// once per external caller of missPath (winner and every joined waiter
// alike), not once per closure execution, so the aggregate counters stay
// additive regardless of how many callers were coalesced together.
func (m *Manager) recordLadderHit(loc ladder.HitLocation) {
	switch loc {
	case ladder.HitTop:
		m.stats.L1Hits.Add(1)
	case ladder.HitLower:
		m.stats.L2Hits.Add(1)
	default:
		m.stats.Misses.Add(1)
	}
}

// SetWithStrategy serializes value, resolves strategy to a base TTL, and
// writes through the ladder.
func SetWithStrategy[T any](ctx context.Context, m *Manager, key string, value T, s strategy.Strategy) error {
	raw, err := codec.MarshalTyped(m.codec, value)
	if err != nil {
		return err
	}
	return m.ladder.Set(ctx, key, raw, strategy.Resolve(s))
}

// GetOrCompute performs Get's fast path; on miss, under the coalescer,
// after the ladder itself misses, it invokes compute exactly once per
// coalesced batch, writes the result to every tier, and returns it.
func GetOrCompute[T any](ctx context.Context, m *Manager, key string, s strategy.Strategy, compute func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	m.stats.TotalRequests.Add(1)

	if raw, err := m.ladder.Top().Get(ctx, key); err == nil {
		m.stats.L1Hits.Add(1)
		m.ladder.Top().RecordHit()
		return codec.UnmarshalTyped[T](m.codec, raw)
	}

	wrapped := func(ctx context.Context) ([]byte, error) {
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		return codec.MarshalTyped(m.codec, v)
	}

	v, found, err := m.missPath(ctx, key, strategy.Resolve(s), wrapped)
	if err != nil {
		return zero, err
	}
	if !found {
		return zero, fmt.Errorf("manager: compute produced no value for %q", key)
	}
	return codec.UnmarshalTyped[T](m.codec, v)
}

// Invalidate removes key from every tier and publishes Remove{key} if the
// bus is enabled.
func (m *Manager) Invalidate(ctx context.Context, key string) error {
	if err := m.ladder.Invalidate(ctx, key); err != nil {
		return err
	}
	if m.bus != nil {
		if err := m.bus.Publish(ctx, invalidation.Remove(key)); err != nil {
			log.Printf("manager: publish remove failed: %v", err)
		}
	}
	return nil
}

// UpdateCache writes value to every tier with ttl (or Default), then
// publishes Update{key, value, ttl}.
func UpdateCache[T any](ctx context.Context, m *Manager, key string, value T, ttl *time.Duration) error {
	raw, err := codec.MarshalTyped(m.codec, value)
	if err != nil {
		return err
	}

	resolved := strategy.Resolve(strategy.Default)
	if ttl != nil {
		resolved = *ttl
	}
	if err := m.ladder.Set(ctx, key, raw, resolved); err != nil {
		return err
	}

	if m.bus != nil {
		var ttlSecs *int64
		if ttl != nil {
			secs := int64(ttl.Seconds())
			ttlSecs = &secs
		}
		if err := m.bus.Publish(ctx, invalidation.Update(key, raw, ttlSecs)); err != nil {
			log.Printf("manager: publish update failed: %v", err)
		}
	}
	return nil
}

// SetWithBroadcast is SetWithStrategy followed by an Update publish.
func SetWithBroadcast[T any](ctx context.Context, m *Manager, key string, value T, s strategy.Strategy) error {
	if err := SetWithStrategy(ctx, m, key, value, s); err != nil {
		return err
	}
	if m.bus != nil {
		raw, err := codec.MarshalTyped(m.codec, value)
		if err != nil {
			return err
		}
		secs := int64(strategy.Resolve(s).Seconds())
		if err := m.bus.Publish(ctx, invalidation.Update(key, raw, &secs)); err != nil {
			log.Printf("manager: publish update failed: %v", err)
		}
	}
	return nil
}

// InvalidatePattern pattern-scans the ladder's scan-capable tier, removes
// every matched key from every tier, then publishes RemoveBulk{keys}.
func (m *Manager) InvalidatePattern(ctx context.Context, pattern string) error {
	keys, err := m.ladder.InvalidatePattern(ctx, pattern)
	if err != nil {
		return err
	}
	if m.bus != nil && len(keys) > 0 {
		if err := m.bus.Publish(ctx, invalidation.RemoveBulk(keys)); err != nil {
			log.Printf("manager: publish remove bulk failed: %v", err)
		}
	}
	return nil
}

// streamBackend returns the first tier backend implementing
// backend.StreamStore, or nil.
func (m *Manager) streamBackend() backend.StreamStore {
	for _, t := range m.ladder.Tiers() {
		if s, ok := t.Backend().(backend.StreamStore); ok {
			return s
		}
	}
	return nil
}

// StreamAdd forwards to the streaming backend, if configured.
func (m *Manager) StreamAdd(ctx context.Context, stream string, fields map[string]string, maxlen int64) (string, error) {
	s := m.streamBackend()
	if s == nil {
		return "", ErrMisconfiguredStreaming
	}
	return s.StreamAdd(ctx, stream, fields, maxlen)
}

// StreamReadLatest forwards to the streaming backend, if configured.
func (m *Manager) StreamReadLatest(ctx context.Context, stream string, count int64) ([]backend.StreamEntry, error) {
	s := m.streamBackend()
	if s == nil {
		return nil, ErrMisconfiguredStreaming
	}
	return s.StreamReadLatest(ctx, stream, count)
}

// StreamRead forwards to the streaming backend, if configured.
func (m *Manager) StreamRead(ctx context.Context, stream string, lastID string, count int64, block time.Duration) ([]backend.StreamEntry, error) {
	s := m.streamBackend()
	if s == nil {
		return nil, ErrMisconfiguredStreaming
	}
	return s.StreamRead(ctx, stream, lastID, count, block)
}

// Stats reads all counters with relaxed ordering and computes derived
// ratios.
func (m *Manager) Stats() StatsSnapshot {
	total := m.stats.TotalRequests.Load()
	l1 := m.stats.L1Hits.Load()
	l2 := m.stats.L2Hits.Load()
	misses := m.stats.Misses.Load()

	var ratio float64
	if total > 0 {
		ratio = float64(l1+l2) / float64(total)
	}

	snap := StatsSnapshot{
		TotalRequests:    total,
		L1Hits:           l1,
		L2Hits:           l2,
		Misses:           misses,
		Promotions:       m.stats.Promotions.Load(),
		InFlightRequests: int64(m.coalescer.InFlight()),
		HitRatio:         ratio,
	}
	if m.bus != nil {
		snap.Bus = m.bus.Stats()
	}
	return snap
}

// HealthCheck reports each tier's reachability, keyed by level.
func (m *Manager) HealthCheck(ctx context.Context) map[int]bool {
	return m.ladder.HealthCheck(ctx)
}

// Shutdown stops the invalidation subscriber, if running, and waits for
// it to exit.
func (m *Manager) Shutdown() {
	if m.bus == nil {
		return
	}
	m.bus.Shutdown()
	if m.busCancel != nil {
		m.busCancel()
	}
}
