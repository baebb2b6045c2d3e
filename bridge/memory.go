package bridge

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/tidebell/tidebell/errors"
)

const memorySubBuffer = 64

// memorySub is one live subscription on a MemoryMedium.
type memorySub struct {
	pattern    string
	deliveries chan Delivery
	done       <-chan struct{}
}

// MemoryMedium is an in-process Medium for single-instance deployments and
// tests. Fan-out is synchronous with drop-on-full subscriber channels, so a
// stalled subscriber loses messages instead of blocking publishers.
type MemoryMedium struct {
	mu     sync.Mutex
	subs   []*memorySub
	closed bool
	logger *zap.SugaredLogger
}

// NewMemoryMedium creates an in-process medium.
func NewMemoryMedium(log *zap.SugaredLogger) *MemoryMedium {
	return &MemoryMedium{
		logger: log.Named("memory-medium"),
	}
}

// Publish delivers payload to every subscriber whose pattern matches channel.
func (m *MemoryMedium) Publish(ctx context.Context, channel string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.New("medium is closed")
	}

	for _, sub := range m.subs {
		if !matchPattern(sub.pattern, channel) {
			continue
		}
		select {
		case <-sub.done:
		case sub.deliveries <- Delivery{Channel: channel, Payload: payload}:
		default:
			m.logger.Warnw("Subscriber buffer full, dropping message",
				"channel", channel,
				"pattern", sub.pattern)
		}
	}
	return nil
}

// Subscribe registers a pattern subscription. The returned channel closes
// when ctx is cancelled or the medium is closed.
func (m *MemoryMedium) Subscribe(ctx context.Context, pattern string) (<-chan Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errors.New("medium is closed")
	}

	sub := &memorySub{
		pattern:    pattern,
		deliveries: make(chan Delivery, memorySubBuffer),
		done:       ctx.Done(),
	}
	m.subs = append(m.subs, sub)

	go func() {
		<-ctx.Done()
		m.remove(sub)
	}()

	return sub.deliveries, nil
}

// Close drops all subscriptions and rejects further publishes.
func (m *MemoryMedium) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	for _, sub := range m.subs {
		close(sub.deliveries)
	}
	m.subs = nil
	return nil
}

func (m *MemoryMedium) remove(sub *memorySub) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	for i, s := range m.subs {
		if s == sub {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			close(s.deliveries)
			return
		}
	}
}

// matchPattern supports an exact channel name or a literal prefix followed
// by a trailing '*'. This covers the patterns the bridge uses; full glob
// syntax is left to the Redis medium.
func matchPattern(pattern, channel string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(channel, prefix)
	}
	return pattern == channel
}
