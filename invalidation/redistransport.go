package invalidation

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisTransport is the default Transport and AuditStream implementation:
// Redis PUBLISH/SUBSCRIBE for bus messages, Redis Streams (XADD with an
// approximate MAXLEN trim) for the audit stream.
type RedisTransport struct {
	client *redis.Client
}

// NewRedisTransport wraps an existing go-redis client.
func NewRedisTransport(client *redis.Client) *RedisTransport {
	return &RedisTransport{client: client}
}

func (t *RedisTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := t.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis transport: publish: %w", err)
	}
	return nil
}

func (t *RedisTransport) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	pubsub := t.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis transport: subscribe: %w", err)
	}

	sub := &redisSubscription{
		pubsub:  pubsub,
		msgCh:   make(chan []byte),
		errCh:   make(chan error, 1),
		closeCh: make(chan struct{}),
	}
	go sub.pump()
	return sub, nil
}

// Append appends record to stream via XADD, trimmed approximately to
// maxlen (the "~" MAXLEN form, which trades exactness for throughput).
func (t *RedisTransport) Append(ctx context.Context, stream string, record AuditRecord, maxlen int64) error {
	values := map[string]interface{}{
		"type":       record.Type,
		"timestamp":  record.Timestamp,
		"key":        record.Key,
		"count":      record.Count,
		"request_id": record.RequestID,
	}

	args := &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}
	if maxlen > 0 {
		args.MaxLen = maxlen
		args.Approx = true
	}

	if err := t.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis transport: audit append: %w", err)
	}
	return nil
}

type redisSubscription struct {
	pubsub  *redis.PubSub
	msgCh   chan []byte
	errCh   chan error
	closeCh chan struct{}
}

func (s *redisSubscription) pump() {
	ch := s.pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				s.errCh <- fmt.Errorf("redis transport: subscription channel closed")
				return
			}
			select {
			case s.msgCh <- []byte(msg.Payload):
			case <-s.closeCh:
				return
			}
		case <-s.closeCh:
			return
		}
	}
}

func (s *redisSubscription) Messages() <-chan []byte { return s.msgCh }
func (s *redisSubscription) Err() <-chan error        { return s.errCh }

func (s *redisSubscription) Close() error {
	close(s.closeCh)
	return s.pubsub.Close()
}
