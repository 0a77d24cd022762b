// Package ladder implements the ordered tier sequence: lookup with
// promotion, write-all, and invalidation.
package ladder

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/tiercache/tiercache/backend"
	"github.com/tiercache/tiercache/strategy"
	"github.com/tiercache/tiercache/tier"
)

// ErrTierConfigInvalid is returned at construction when levels are
// duplicated or out of order, or the ladder is empty.
var ErrTierConfigInvalid = errors.New("ladder: tier levels must be non-empty and strictly ascending")

// ErrNotFound is backend.ErrNotFound, re-exported for callers of this
// package. Get does not return it: a total miss is reported as
// GetResult.Found == false with a nil error.
var ErrNotFound = backend.ErrNotFound

// ErrMisconfiguredPatternScan is returned by InvalidatePattern when no
// tier's backend implements backend.PatternScanner.
var ErrMisconfiguredPatternScan = errors.New("ladder: invalidate_pattern requires a pattern-scanning backend")

// HitLocation describes where a Get was satisfied, for the manager's
// aggregate counters.
type HitLocation int

const (
	// HitNone means every tier missed.
	HitNone HitLocation = iota
	// HitTop means the first (fastest) tier satisfied the read.
	HitTop
	// HitLower means some tier below the first satisfied the read.
	HitLower
)

// GetResult carries a lookup's outcome plus bookkeeping the manager needs
// for its aggregate statistics.
type GetResult struct {
	Value      []byte
	Found      bool
	Location   HitLocation
	Promotions int
}

// Ladder is a non-empty, strictly-ascending-by-level sequence of tiers.
type Ladder struct {
	tiers []*tier.Tier
}

// New validates tiers (non-empty, strictly ascending levels) and
// constructs a Ladder. Tiers are stored in the order given; callers are
// expected to pass them already sorted by level (the constructor only
// validates, it does not sort, so ordering mistakes surface immediately).
func New(tiers ...*tier.Tier) (*Ladder, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("%w: empty ladder", ErrTierConfigInvalid)
	}
	for i := 1; i < len(tiers); i++ {
		if tiers[i].Level() <= tiers[i-1].Level() {
			return nil, fmt.Errorf("%w: level %d does not follow level %d", ErrTierConfigInvalid, tiers[i].Level(), tiers[i-1].Level())
		}
	}
	return &Ladder{tiers: tiers}, nil
}

// Tiers returns the ladder's tiers in ascending-level order. Callers must
// not mutate the returned slice.
func (l *Ladder) Tiers() []*tier.Tier { return l.tiers }

// Top returns the fastest tier (index 0).
func (l *Ladder) Top() *tier.Tier { return l.tiers[0] }

// Get descends the ladder until a hit, promoting the value into every
// faster tier along the way when the hitting tier allows promotion.
func (l *Ladder) Get(ctx context.Context, key string) (GetResult, error) {
	for i, t := range l.tiers {
		value, remaining, hasTTL, err := t.Get(ctx, key)
		if err != nil {
			if errors.Is(err, backend.ErrNotFound) {
				continue
			}
			log.Printf("ladder: tier level=%d backend=%s get failed: %v", t.Level(), t.BackendName(), err)
			continue
		}

		t.RecordHit()
		loc := HitTop
		if i > 0 {
			loc = HitLower
		}

		promotions := 0
		if i > 0 && t.PromotionEnabled() {
			promotionTTL := strategy.Resolve(strategy.Default)
			if hasTTL {
				promotionTTL = remaining
			}
			for j := i - 1; j >= 0; j-- {
				if err := l.tiers[j].Set(ctx, key, value, promotionTTL); err != nil {
					log.Printf("ladder: promotion write failed: %v", err)
					continue
				}
				promotions++
			}
		}

		return GetResult{Value: value, Found: true, Location: loc, Promotions: promotions}, nil
	}

	return GetResult{Found: false, Location: HitNone}, nil
}

// Set writes value to every tier, scaling baseTTL per tier. It succeeds if
// at least one tier write succeeded; otherwise it returns the last error
// observed. Writes are not transactional across tiers.
func (l *Ladder) Set(ctx context.Context, key string, value []byte, baseTTL time.Duration) error {
	var lastErr error
	succeeded := 0

	for _, t := range l.tiers {
		if err := t.Set(ctx, key, value, baseTTL); err != nil {
			log.Printf("ladder: %v", err)
			lastErr = err
			continue
		}
		succeeded++
	}

	if succeeded == 0 {
		return fmt.Errorf("ladder: set failed on every tier: %w", lastErr)
	}
	return nil
}

// Invalidate removes key from every tier. Individual tier failures are
// logged but do not fail the operation.
func (l *Ladder) Invalidate(ctx context.Context, key string) error {
	for _, t := range l.tiers {
		if err := t.Remove(ctx, key); err != nil {
			log.Printf("ladder: %v", err)
		}
	}
	return nil
}

// InvalidatePattern scans pattern on a pattern-scanning tier and removes
// every matched key from every tier. It returns the matched keys so the
// caller (the manager) can publish a RemoveBulk message.
func (l *Ladder) InvalidatePattern(ctx context.Context, pattern string) ([]string, error) {
	scanner := l.patternScanner()
	if scanner == nil {
		return nil, ErrMisconfiguredPatternScan
	}

	keys, err := scanner.ScanKeys(ctx, pattern)
	if err != nil {
		return nil, fmt.Errorf("ladder: pattern scan: %w", err)
	}

	for _, k := range keys {
		if err := l.Invalidate(ctx, k); err != nil {
			log.Printf("ladder: invalidate %q during pattern scan: %v", k, err)
		}
	}
	return keys, nil
}

// HealthCheck reports each tier's reachability, keyed by level.
func (l *Ladder) HealthCheck(ctx context.Context) map[int]bool {
	out := make(map[int]bool, len(l.tiers))
	for _, t := range l.tiers {
		out[t.Level()] = t.HealthCheck(ctx)
	}
	return out
}

func (l *Ladder) patternScanner() backend.PatternScanner {
	for _, t := range l.tiers {
		if scanner, ok := t.Backend().(backend.PatternScanner); ok {
			return scanner
		}
	}
	return nil
}
