package invalidation

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tiercache/tiercache/strategy"
)

// Config controls the invalidation bus's channel, audit stream, and
// auto-broadcast behavior.
type Config struct {
	Channel              string
	AutoBroadcastOnWrite bool
	EnableAuditStream    bool
	AuditStream          string
	AuditStreamMaxLen    int64 // 0 means "unset"; DefaultConfig sets 10000
}

// DefaultConfig returns the bus's out-of-the-box defaults.
func DefaultConfig() Config {
	return Config{
		Channel:              "cache:invalidate",
		AutoBroadcastOnWrite: false,
		EnableAuditStream:    false,
		AuditStream:          "cache:invalidations",
		AuditStreamMaxLen:    10_000,
	}
}

// Transport is the publish/subscribe mechanism a Bus runs on. The default
// is RedisTransport; it is swappable for testing.
type Transport interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

// Subscription delivers messages received on a channel until Close is
// called or the underlying connection is lost (in which case Err reports
// why). Bus also treats a closed Messages channel as a lost connection.
type Subscription interface {
	Messages() <-chan []byte
	Err() <-chan error
	Close() error
}

// AuditRecord is one entry in the audit stream: a structured summary of
// an invalidation event, independent of the message's own payload.
type AuditRecord struct {
	Type      string
	Timestamp string
	Key       string
	Count     int
	RequestID string
}

// AuditStream is an append-only log of invalidation events, trimmed
// approximately to a configured maximum length.
type AuditStream interface {
	Append(ctx context.Context, stream string, record AuditRecord, maxlen int64) error
}

// TopTierApplier is the subset of tier.Tier the bus needs to apply
// received messages to the fastest tier. Defined here (rather than
// importing the tier package) so the bus only depends on the shape it
// actually uses.
type TopTierApplier interface {
	Remove(ctx context.Context, key string) error
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// State is the subscriber's connection state machine.
type State int32

const (
	StateConnecting State = iota
	StateSubscribed
	StateRunning
	StateReconnecting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateSubscribed:
		return "Subscribed"
	case StateRunning:
		return "Running"
	case StateReconnecting:
		return "Reconnecting"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Stats are the bus's process-wide atomic counters, per spec.md §3.
type Stats struct {
	MessagesSent        atomic.Int64
	MessagesReceived    atomic.Int64
	RemovesReceived     atomic.Int64
	UpdatesReceived     atomic.Int64
	PatternsReceived    atomic.Int64
	BulkRemovesReceived atomic.Int64
	ProcessingErrors    atomic.Int64
}

const reconnectBackoff = 5 * time.Second

// Bus is the publisher + subscriber pair described in spec.md §4.7.
type Bus struct {
	cfg       Config
	transport Transport
	audit     AuditStream
	applier   TopTierApplier
	stats     Stats
	state     atomic.Int32
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// New constructs a Bus. applier is the ladder's top tier; received
// messages are applied there only, per spec.md §4.7/§9.
func New(cfg Config, transport Transport, audit AuditStream, applier TopTierApplier) *Bus {
	b := &Bus{
		cfg:       cfg,
		transport: transport,
		audit:     audit,
		applier:   applier,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	b.state.Store(int32(StateConnecting))
	return b
}

// Stats returns the bus's live counters.
func (b *Bus) Stats() *Stats { return &b.stats }

// State reports the subscriber's current state.
func (b *Bus) State() State { return State(b.state.Load()) }

// Publish serializes m, emits it on the configured channel, and — if the
// audit stream is enabled — appends a record. Audit failures never fail
// the publish.
func (b *Bus) Publish(ctx context.Context, m Message) error {
	payload, err := Encode(m)
	if err != nil {
		return fmt.Errorf("invalidation: publish: %w", err)
	}

	if err := b.transport.Publish(ctx, b.cfg.Channel, payload); err != nil {
		return fmt.Errorf("invalidation: publish: %w", err)
	}
	b.stats.MessagesSent.Add(1)

	if b.cfg.EnableAuditStream && b.audit != nil {
		if err := b.audit.Append(ctx, b.cfg.AuditStream, auditRecordFor(m), b.cfg.AuditStreamMaxLen); err != nil {
			log.Printf("invalidation: audit append failed: %v", err)
		}
	}
	return nil
}

func auditRecordFor(m Message) AuditRecord {
	r := AuditRecord{
		Timestamp: strconv.FormatInt(time.Now().Unix(), 10),
		RequestID: uuid.NewString(),
	}
	switch m.Kind {
	case KindRemove:
		r.Type = "remove"
		r.Key = m.Key
	case KindUpdate:
		r.Type = "update"
		r.Key = m.Key
	case KindRemovePattern:
		r.Type = "remove_pattern"
		r.Key = m.Pattern
	case KindRemoveBulk:
		r.Type = "remove_bulk"
		r.Count = len(m.Keys)
	}
	return r
}

// Run is the long-lived subscriber worker described in spec.md §4.7. It
// blocks until ctx is canceled or Shutdown is called.
func (b *Bus) Run(ctx context.Context) {
	defer close(b.doneCh)

	for {
		select {
		case <-b.stopCh:
			b.state.Store(int32(StateStopped))
			return
		case <-ctx.Done():
			b.state.Store(int32(StateStopped))
			return
		default:
		}

		b.state.Store(int32(StateConnecting))
		sub, err := b.transport.Subscribe(ctx, b.cfg.Channel)
		if err != nil {
			log.Printf("invalidation: subscribe failed: %v", err)
			if !b.sleepOrStop(ctx, reconnectBackoff) {
				b.state.Store(int32(StateStopped))
				return
			}
			continue
		}

		b.state.Store(int32(StateSubscribed))
		b.runSubscribed(ctx, sub)
	}
}

func (b *Bus) runSubscribed(ctx context.Context, sub Subscription) {
	defer sub.Close()
	b.state.Store(int32(StateRunning))

	for {
		select {
		case <-b.stopCh:
			b.state.Store(int32(StateStopped))
			return
		case <-ctx.Done():
			b.state.Store(int32(StateStopped))
			return
		case err := <-sub.Err():
			log.Printf("invalidation: subscription error: %v", err)
			b.state.Store(int32(StateReconnecting))
			b.sleepOrStop(ctx, reconnectBackoff)
			return
		case payload, ok := <-sub.Messages():
			if !ok {
				b.state.Store(int32(StateReconnecting))
				b.sleepOrStop(ctx, reconnectBackoff)
				return
			}
			b.handle(ctx, payload)
		}
	}
}

func (b *Bus) sleepOrStop(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-b.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

func (b *Bus) handle(ctx context.Context, payload []byte) {
	m, err := Decode(payload)
	if err != nil {
		b.stats.ProcessingErrors.Add(1)
		return
	}

	b.stats.MessagesReceived.Add(1)

	switch m.Kind {
	case KindRemove:
		b.stats.RemovesReceived.Add(1)
		if err := b.applier.Remove(ctx, m.Key); err != nil {
			log.Printf("invalidation: apply remove %q: %v", m.Key, err)
			b.stats.ProcessingErrors.Add(1)
		}
	case KindUpdate:
		b.stats.UpdatesReceived.Add(1)
		ttl := strategy.Resolve(strategy.Default)
		if m.TTLSecs != nil {
			ttl = time.Duration(*m.TTLSecs) * time.Second
		}
		if err := b.applier.Set(ctx, m.Key, []byte(m.Value), ttl); err != nil {
			log.Printf("invalidation: apply update %q: %v", m.Key, err)
			b.stats.ProcessingErrors.Add(1)
		}
	case KindRemovePattern:
		b.stats.PatternsReceived.Add(1)
		// Entries expire naturally or are cleared by the pattern
		// originator; no local action, per spec.md §4.7.
	case KindRemoveBulk:
		b.stats.BulkRemovesReceived.Add(1)
		for _, k := range m.Keys {
			if err := b.applier.Remove(ctx, k); err != nil {
				log.Printf("invalidation: apply bulk remove %q: %v", k, err)
				b.stats.ProcessingErrors.Add(1)
			}
		}
	default:
		b.stats.ProcessingErrors.Add(1)
	}
}

// Shutdown signals Run to exit and waits for it to return.
func (b *Bus) Shutdown() {
	close(b.stopCh)
	<-b.doneCh
}

