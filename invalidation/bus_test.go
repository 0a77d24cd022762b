package invalidation_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tiercache/tiercache/invalidation"
)

// fakeTransport is an in-process pub/sub used to test Bus without a real
// Redis instance.
type fakeTransport struct {
	mu   sync.Mutex
	subs map[string][]chan []byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{subs: make(map[string][]chan []byte)}
}

func (f *fakeTransport) Publish(_ context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs[channel] {
		ch <- payload
	}
	return nil
}

func (f *fakeTransport) Subscribe(_ context.Context, channel string) (invalidation.Subscription, error) {
	ch := make(chan []byte, 16)
	f.mu.Lock()
	f.subs[channel] = append(f.subs[channel], ch)
	f.mu.Unlock()

	return &fakeSubscription{msgCh: ch, errCh: make(chan error)}, nil
}

type fakeSubscription struct {
	msgCh chan []byte
	errCh chan error
}

func (s *fakeSubscription) Messages() <-chan []byte { return s.msgCh }
func (s *fakeSubscription) Err() <-chan error        { return s.errCh }
func (s *fakeSubscription) Close() error              { return nil }

// fakeApplier records what was applied to the "top tier".
type fakeApplier struct {
	mu      sync.Mutex
	values  map[string][]byte
	removed map[string]bool
}

func newFakeApplier() *fakeApplier {
	return &fakeApplier{values: make(map[string][]byte), removed: make(map[string]bool)}
}

func (a *fakeApplier) Remove(_ context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.values, key)
	a.removed[key] = true
	return nil
}

func (a *fakeApplier) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.values[key] = append([]byte(nil), value...)
	return nil
}

func (a *fakeApplier) get(key string) ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.values[key]
	return v, ok
}

// S6 — bus update fan-out between two bus instances sharing a transport.
func TestBusUpdateFanOut(t *testing.T) {
	transport := newFakeTransport()
	cfg := invalidation.DefaultConfig()

	applierA := newFakeApplier()
	busA := invalidation.New(cfg, transport, nil, applierA)

	applierB := newFakeApplier()
	busB := invalidation.New(cfg, transport, nil, applierB)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go busB.Run(ctx)
	// Give the subscriber a moment to reach Subscribed/Running.
	waitForState(t, busB, invalidation.StateRunning, time.Second)

	ttl := int64(60)
	if err := busA.Publish(ctx, invalidation.Update("k", []byte(`{"v":2}`), &ttl)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	deadline := time.Now().Add(100 * time.Millisecond)
	for time.Now().Before(deadline) {
		if v, ok := applierB.get("k"); ok && string(v) == `{"v":2}` {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("instance B did not converge within 100ms")
}

func TestRemoveBulkAppliesIndependently(t *testing.T) {
	transport := newFakeTransport()
	cfg := invalidation.DefaultConfig()
	applier := newFakeApplier()
	_ = applier.Set(context.Background(), "a", []byte("1"), 0)
	_ = applier.Set(context.Background(), "b", []byte("2"), 0)

	bus := invalidation.New(cfg, transport, nil, applier)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Run(ctx)
	waitForState(t, bus, invalidation.StateRunning, time.Second)

	if err := bus.Publish(ctx, invalidation.RemoveBulk([]string{"a", "b"})); err != nil {
		t.Fatalf("publish: %v", err)
	}

	deadline := time.Now().Add(100 * time.Millisecond)
	for time.Now().Before(deadline) {
		_, aOk := applier.get("a")
		_, bOk := applier.get("b")
		if !aOk && !bOk {
			if bus.Stats().BulkRemovesReceived.Load() == 1 {
				return
			}
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("bulk remove did not apply within 100ms")
}

func waitForState(t *testing.T, b *invalidation.Bus, want invalidation.State, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if b.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("bus did not reach state %v within %v (last state %v)", want, timeout, b.State())
}
