// Package redisstore implements the TTL-aware, streaming, and
// pattern-scanning backend capabilities over Redis — the distributed
// tier collaborator, and the default transport CACHE_REMOTE_URL points
// at.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tiercache/tiercache/backend"
)

const defaultRemoteURL = "redis://127.0.0.1:6379"

// Store wraps a go-redis client and implements backend.TTLStore,
// backend.StreamStore, and backend.PatternScanner.
type Store struct {
	client *redis.Client
	name   string
}

// New wraps an existing client.
func New(name string, client *redis.Client) *Store {
	return &Store{client: client, name: name}
}

// NewFromEnv builds a client from CACHE_REMOTE_URL, falling back to
// spec.md §6's default ("redis://127.0.0.1:6379") if unset. This is the
// one environment interaction the contract permits.
func NewFromEnv(name string) (*Store, error) {
	addr := os.Getenv("CACHE_REMOTE_URL")
	if addr == "" {
		addr = defaultRemoteURL
	}
	opts, err := redis.ParseURL(addr)
	if err != nil {
		return nil, fmt.Errorf("redisstore: parse CACHE_REMOTE_URL: %w", err)
	}
	return New(name, redis.NewClient(opts)), nil
}

func (s *Store) Name() string {
	if s.name == "" {
		return "redis"
	}
	return s.name
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	v, _, _, err := s.GetWithTTL(ctx, key)
	return v, err
}

func (s *Store) GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, bool, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, 0, false, backend.ErrNotFound
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("redisstore: get: %w", err)
	}

	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return val, 0, false, fmt.Errorf("redisstore: ttl: %w", err)
	}
	if ttl < 0 {
		return val, 0, false, nil
	}
	return val, ttl, true, nil
}

func (s *Store) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redisstore: set: %w", err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redisstore: remove: %w", err)
	}
	return nil
}

func (s *Store) HealthCheck(ctx context.Context) bool {
	return s.client.Ping(ctx).Err() == nil
}

// ScanKeys uses non-blocking SCAN cursor iteration with the given glob
// pattern (Redis's own MATCH glob syntax already matches spec.md §6's
// * ? [...] semantics).
func (s *Store) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64

	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("redisstore: scan: %w", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

// StreamAdd appends fields to stream via XADD, trimmed approximately to
// maxlen when maxlen > 0.
func (s *Store) StreamAdd(ctx context.Context, stream string, fields map[string]string, maxlen int64) (string, error) {
	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}

	args := &redis.XAddArgs{Stream: stream, Values: values}
	if maxlen > 0 {
		args.MaxLen = maxlen
		args.Approx = true
	}

	id, err := s.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("redisstore: stream add: %w", err)
	}
	return id, nil
}

// StreamReadLatest returns the newest count entries, newest first.
func (s *Store) StreamReadLatest(ctx context.Context, stream string, count int64) ([]backend.StreamEntry, error) {
	msgs, err := s.client.XRevRangeN(ctx, stream, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: stream read latest: %w", err)
	}
	return toStreamEntries(msgs), nil
}

// StreamRead reads forward from lastID. "0" reads from start, "$" waits
// for new entries; block bounds the wait when non-zero.
func (s *Store) StreamRead(ctx context.Context, stream string, lastID string, count int64, block time.Duration) ([]backend.StreamEntry, error) {
	args := &redis.XReadArgs{
		Streams: []string{stream, lastID},
		Count:   count,
		Block:   block,
	}
	res, err := s.client.XRead(ctx, args).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redisstore: stream read: %w", err)
	}
	if len(res) == 0 {
		return nil, nil
	}
	return toStreamEntries(res[0].Messages), nil
}

func toStreamEntries(msgs []redis.XMessage) []backend.StreamEntry {
	out := make([]backend.StreamEntry, 0, len(msgs))
	for _, m := range msgs {
		fields := make(map[string]string, len(m.Values))
		for k, v := range m.Values {
			if s, ok := v.(string); ok {
				fields[k] = s
			} else {
				fields[k] = fmt.Sprintf("%v", v)
			}
		}
		out = append(out, backend.StreamEntry{ID: m.ID, Fields: fields})
	}
	return out
}
