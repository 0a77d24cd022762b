package redisstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/tiercache/tiercache/backend"
	"github.com/tiercache/tiercache/backends/redisstore"
)

func newTestStore(t *testing.T) *redisstore.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	return redisstore.New("redis", client)
}

func TestGetSetRemove(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.SetWithTTL(ctx, "a", []byte("1"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(v) != "1" {
		t.Fatalf("got %q, want 1", v)
	}

	if err := s.Remove(ctx, "a"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := s.Get(ctx, "a"); err != backend.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetWithTTLReportsRemaining(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.SetWithTTL(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	_, remaining, hasTTL, err := s.GetWithTTL(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !hasTTL {
		t.Fatal("expected a TTL to be reported")
	}
	if remaining <= 0 || remaining > time.Minute {
		t.Fatalf("unexpected remaining TTL: %v", remaining)
	}
}

func TestScanKeys(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, k := range []string{"u:1", "u:2", "other"} {
		if err := s.SetWithTTL(ctx, k, []byte("v"), 0); err != nil {
			t.Fatalf("seed %q: %v", k, err)
		}
	}

	keys, err := s.ScanKeys(ctx, "u:*")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("got %d keys, want 2: %v", len(keys), keys)
	}
}

func TestStreamAddAndReadLatest(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.StreamAdd(ctx, "events", map[string]string{"type": "remove", "key": "k1"}, 0); err != nil {
		t.Fatalf("stream add: %v", err)
	}
	if _, err := s.StreamAdd(ctx, "events", map[string]string{"type": "remove", "key": "k2"}, 0); err != nil {
		t.Fatalf("stream add: %v", err)
	}

	entries, err := s.StreamReadLatest(ctx, "events", 1)
	if err != nil {
		t.Fatalf("read latest: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Fields["key"] != "k2" {
		t.Fatalf("expected newest entry first, got %+v", entries[0])
	}
}

func TestStreamReadFromStart(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.StreamAdd(ctx, "events", map[string]string{"key": "k1"}, 0); err != nil {
		t.Fatalf("stream add: %v", err)
	}

	entries, err := s.StreamRead(ctx, "events", "0", 10, 0)
	if err != nil {
		t.Fatalf("stream read: %v", err)
	}
	if len(entries) != 1 || entries[0].Fields["key"] != "k1" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestHealthCheck(t *testing.T) {
	s := newTestStore(t)
	if !s.HealthCheck(context.Background()) {
		t.Fatal("expected healthy store")
	}
}
