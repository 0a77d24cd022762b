package tier_test

import (
	"context"
	"testing"
	"time"

	"github.com/tiercache/tiercache/backends/memory"
	"github.com/tiercache/tiercache/tier"
)

func TestSetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	ti := tier.New(memory.New("l1", 0), tier.L1)

	if err := ti.Set(ctx, "k", []byte("v"), 50*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}

	val, _, _, err := ti.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(val) != "v" {
		t.Fatalf("got %q, want v", val)
	}
}

func TestTTLScale(t *testing.T) {
	ctx := context.Background()
	ti := tier.New(memory.New("l3", 0), tier.L3) // scale 2.0

	if err := ti.Set(ctx, "k", []byte("v"), 100*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}

	_, remaining, hasTTL, err := ti.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !hasTTL {
		t.Fatal("expected a TTL to be reported")
	}
	if remaining <= 100*time.Millisecond || remaining > 200*time.Millisecond {
		t.Fatalf("remaining TTL %v out of expected (100ms, 200ms] scaled range", remaining)
	}
}

func TestRecordHit(t *testing.T) {
	ti := tier.New(memory.New("l1", 0), tier.L1)
	if ti.Hits() != 0 {
		t.Fatal("expected zero hits initially")
	}
	ti.RecordHit()
	ti.RecordHit()
	if ti.Hits() != 2 {
		t.Fatalf("got %d hits, want 2", ti.Hits())
	}
}
