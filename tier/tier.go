// Package tier wraps one TTL-aware backend with level/promotion/TTL-scale
// metadata and a hit counter, per the tier ladder's algorithmic needs.
package tier

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tiercache/tiercache/backend"
)

// Config is the static, per-tier configuration: level, whether hits at
// this tier should be promoted to faster tiers, and the TTL scale factor
// applied at write time.
type Config struct {
	Level            int
	PromotionEnabled bool
	TTLScale         float64
}

// L1, L2, L3, L4 are the conventional presets from spec.md §3.
var (
	L1 = Config{Level: 1, PromotionEnabled: false, TTLScale: 1.0}
	L2 = Config{Level: 2, PromotionEnabled: true, TTLScale: 1.0}
	L3 = Config{Level: 3, PromotionEnabled: true, TTLScale: 2.0}
	L4 = Config{Level: 4, PromotionEnabled: true, TTLScale: 8.0}
)

// Tier wraps exactly one TTL-aware backend. A tier does not retry its
// backend internally; failures return upward to the ladder.
type Tier struct {
	backend backend.TTLStore
	config  Config
	hits    atomic.Int64
}

// New wraps b with cfg. cfg.Level is not validated here; the ladder
// checks at construction only that levels are strictly ascending, so a
// non-positive level is not rejected.
func New(b backend.TTLStore, cfg Config) *Tier {
	return &Tier{backend: b, config: cfg}
}

func (t *Tier) Level() int               { return t.config.Level }
func (t *Tier) PromotionEnabled() bool   { return t.config.PromotionEnabled }
func (t *Tier) TTLScale() float64        { return t.config.TTLScale }
func (t *Tier) BackendName() string      { return t.backend.Name() }
func (t *Tier) Backend() backend.TTLStore { return t.backend }
func (t *Tier) Hits() int64              { return t.hits.Load() }

// RecordHit increments this tier's hit counter.
func (t *Tier) RecordHit() { t.hits.Add(1) }

// Get fetches the raw value and its remaining TTL, if reported.
func (t *Tier) Get(ctx context.Context, key string) (value []byte, remaining time.Duration, hasTTL bool, err error) {
	return t.backend.GetWithTTL(ctx, key)
}

// Set scales baseTTL by this tier's TTLScale and writes through to the
// backend.
func (t *Tier) Set(ctx context.Context, key string, value []byte, baseTTL time.Duration) error {
	scaled := time.Duration(float64(baseTTL) * t.config.TTLScale)
	if err := t.backend.SetWithTTL(ctx, key, value, scaled); err != nil {
		return fmt.Errorf("tier level=%d backend=%s: set: %w", t.config.Level, t.backend.Name(), err)
	}
	return nil
}

// Remove deletes key from this tier's backend.
func (t *Tier) Remove(ctx context.Context, key string) error {
	if err := t.backend.Remove(ctx, key); err != nil {
		return fmt.Errorf("tier level=%d backend=%s: remove: %w", t.config.Level, t.backend.Name(), err)
	}
	return nil
}

// HealthCheck reports whether the underlying backend is reachable.
func (t *Tier) HealthCheck(ctx context.Context) bool {
	return t.backend.HealthCheck(ctx)
}
