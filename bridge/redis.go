package bridge

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tidebell/tidebell/errors"
)

// RedisMedium is a Medium backed by Redis pub/sub. Every instance publishes
// to the same Redis and pattern-subscribes to the shared channel space, which
// is what lets a message reach the one instance holding the recipient's
// connection.
type RedisMedium struct {
	client *redis.Client
	logger *zap.SugaredLogger

	mu      sync.Mutex
	pubsubs []*redis.PubSub
	closed  bool
}

// NewRedisMedium connects to Redis and verifies the connection.
func NewRedisMedium(ctx context.Context, addr, password string, db int, log *zap.SugaredLogger) (*RedisMedium, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "failed to connect to redis at %s", addr)
	}

	return &RedisMedium{
		client: client,
		logger: log.Named("redis-medium"),
	}, nil
}

// Publish sends payload on channel via Redis PUBLISH.
func (m *RedisMedium) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := m.client.Publish(ctx, channel, payload).Err(); err != nil {
		return errors.Wrapf(err, "failed to publish to %s", channel)
	}
	return nil
}

// Subscribe opens a PSUBSCRIBE for pattern and pumps messages into the
// returned channel until ctx is cancelled or the medium closes.
func (m *RedisMedium) Subscribe(ctx context.Context, pattern string) (<-chan Delivery, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, errors.New("medium is closed")
	}
	ps := m.client.PSubscribe(ctx, pattern)
	m.pubsubs = append(m.pubsubs, ps)
	m.mu.Unlock()

	// Force the subscription onto the wire before we report success.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, errors.Wrapf(err, "failed to subscribe to %s", pattern)
	}

	deliveries := make(chan Delivery, memorySubBuffer)
	go func() {
		defer close(deliveries)
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = ps.Close()
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case deliveries <- Delivery{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
				case <-ctx.Done():
					_ = ps.Close()
					return
				}
			}
		}
	}()

	return deliveries, nil
}

// Close shuts down all subscriptions and the client connection.
func (m *RedisMedium) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	for _, ps := range m.pubsubs {
		if err := ps.Close(); err != nil {
			m.logger.Warnw("Error closing subscription", "error", err)
		}
	}
	m.pubsubs = nil
	return m.client.Close()
}
