// Package backend defines the storage-backend capability set every tier
// is built from. It is interfaces only: concrete backends are thin
// collaborators that live under backends/.
package backend

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get/GetWithTTL when the key is absent.
var ErrNotFound = errors.New("backend: key not found")

// Store is the basic capability every backend must provide.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Remove(ctx context.Context, key string) error
	HealthCheck(ctx context.Context) bool
	Name() string
}

// TTLStore is a Store that can also report the remaining TTL of a key at
// read time. A zero remaining value with hasTTL=false means "no expiration".
type TTLStore interface {
	Store
	GetWithTTL(ctx context.Context, key string) (value []byte, remaining time.Duration, hasTTL bool, err error)
}

// StreamEntry is one record appended to a stream, as returned by
// StreamStore reads.
type StreamEntry struct {
	ID     string
	Fields map[string]string
}

// StreamStore is the independent streaming capability (Redis-Streams
// shaped): append, read-latest, and read-from-id with an optional bounded
// block.
type StreamStore interface {
	StreamAdd(ctx context.Context, stream string, fields map[string]string, maxlen int64) (id string, err error)
	StreamReadLatest(ctx context.Context, stream string, count int64) ([]StreamEntry, error)
	StreamRead(ctx context.Context, stream string, lastID string, count int64, block time.Duration) ([]StreamEntry, error)
}

// PatternScanner is the optional capability required only for
// InvalidatePattern: non-blocking cursor iteration over keys matching a
// glob (*, ?, [...]).
type PatternScanner interface {
	ScanKeys(ctx context.Context, pattern string) ([]string, error)
}
