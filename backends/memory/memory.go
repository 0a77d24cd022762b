// Package memory implements an in-process LRU+TTL backend, the hot-tier
// collaborator used as L1 in most ladders and as a test fixture for the
// rest of the module.
package memory

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/tiercache/tiercache/backend"
	"github.com/tiercache/tiercache/invalidation"
)

type entry struct {
	key       string
	value     []byte
	expiresAt time.Time
	hasTTL    bool
}

// Store is an in-process, LRU-evicted, TTL-aware key/value store. It
// implements backend.TTLStore and backend.PatternScanner.
type Store struct {
	mu       sync.RWMutex
	capacity int
	items    map[string]*list.Element
	order    *list.List // front = most recently used
	name     string
}

// New creates a Store holding up to capacity entries (0 means unbounded).
func New(name string, capacity int) *Store {
	return &Store{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		order:    list.New(),
		name:     name,
	}
}

func (s *Store) Name() string {
	if s.name == "" {
		return "memory"
	}
	return s.name
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	v, _, _, err := s.GetWithTTL(ctx, key)
	return v, err
}

func (s *Store) GetWithTTL(_ context.Context, key string) ([]byte, time.Duration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.items[key]
	if !ok {
		return nil, 0, false, backend.ErrNotFound
	}
	e := el.Value.(*entry)
	if e.hasTTL && time.Now().After(e.expiresAt) {
		s.removeLocked(el)
		return nil, 0, false, backend.ErrNotFound
	}
	s.order.MoveToFront(el)

	if !e.hasTTL {
		return e.value, 0, false, nil
	}
	return e.value, time.Until(e.expiresAt), true, nil
}

func (s *Store) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := &entry{key: key, value: value}
	if ttl > 0 {
		e.hasTTL = true
		e.expiresAt = time.Now().Add(ttl)
	}

	if el, ok := s.items[key]; ok {
		el.Value = e
		s.order.MoveToFront(el)
		return nil
	}

	el := s.order.PushFront(e)
	s.items[key] = el

	if s.capacity > 0 && s.order.Len() > s.capacity {
		back := s.order.Back()
		if back != nil {
			s.removeLocked(back)
		}
	}
	return nil
}

func (s *Store) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.items[key]; ok {
		s.removeLocked(el)
	}
	return nil
}

func (s *Store) removeLocked(el *list.Element) {
	e := el.Value.(*entry)
	delete(s.items, e.key)
	s.order.Remove(el)
}

func (s *Store) HealthCheck(_ context.Context) bool { return true }

// ScanKeys returns every live key matching pattern (glob: * ? [...]).
func (s *Store) ScanKeys(_ context.Context, pattern string) ([]string, error) {
	s.mu.RLock()
	keys := make([]string, 0, len(s.items))
	now := time.Now()
	for k, el := range s.items {
		e := el.Value.(*entry)
		if e.hasTTL && now.After(e.expiresAt) {
			continue
		}
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	return invalidation.FilterKeys(pattern, keys)
}

// Len reports the current number of stored entries, including ones that
// have expired but have not yet been lazily evicted by a Get.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.order.Len()
}
