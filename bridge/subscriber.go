package bridge

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Handler consumes deliveries for the channels it supports.
type Handler interface {
	// Supports reports whether this handler wants messages on channel.
	Supports(channel string) bool

	// Handle processes one delivery. Failures are the handler's to log;
	// the dispatch loop never retries.
	Handle(channel string, payload []byte)
}

// LocalSender is the session-layer surface the built-in handlers deliver
// through.
type LocalSender interface {
	SendLocal(recipientID string, payload []byte)
	SendAll(payload []byte)
}

// UserHandler delivers targeted messages to the local connection for the
// recipient named in the channel. If this instance does not hold that
// connection the send is a silent no-op; some other instance does.
type UserHandler struct {
	Sessions LocalSender
}

func (h *UserHandler) Supports(channel string) bool {
	return strings.HasPrefix(channel, UserChannelPrefix)
}

func (h *UserHandler) Handle(channel string, payload []byte) {
	recipientID := strings.TrimPrefix(channel, UserChannelPrefix)
	h.Sessions.SendLocal(recipientID, payload)
}

// BroadcastHandler delivers progress messages to every local connection.
type BroadcastHandler struct {
	Sessions LocalSender
}

func (h *BroadcastHandler) Supports(channel string) bool {
	return channel == BroadcastChannel
}

func (h *BroadcastHandler) Handle(channel string, payload []byte) {
	h.Sessions.SendAll(payload)
}

// Subscriber runs the dispatch loop: one pattern subscription over the
// medium, fanned out to an ordered handler chain. The first handler whose
// Supports matches wins; later handlers never see the message.
type Subscriber struct {
	medium   Medium
	handlers []Handler
	logger   *zap.SugaredLogger

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewSubscriber creates a subscriber with the given handler chain. Handler
// order is dispatch order.
func NewSubscriber(medium Medium, handlers []Handler, log *zap.SugaredLogger) *Subscriber {
	return &Subscriber{
		medium:   medium,
		handlers: handlers,
		logger:   log.Named("subscriber"),
		done:     make(chan struct{}),
	}
}

// Start subscribes to the full delivery channel space and begins dispatching.
func (s *Subscriber) Start(ctx context.Context) error {
	subCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	deliveries, err := s.medium.Subscribe(subCtx, SubscribePattern)
	if err != nil {
		cancel()
		return err
	}

	go func() {
		defer close(s.done)
		for d := range deliveries {
			s.dispatch(d)
		}
		s.logger.Infow("Dispatch loop stopped")
	}()

	s.logger.Infow("Subscribed", "pattern", SubscribePattern)
	return nil
}

// Stop ends the subscription and waits for the dispatch loop to drain.
func (s *Subscriber) Stop() {
	s.once.Do(func() {
		if s.cancel == nil {
			return
		}
		s.cancel()
		<-s.done
	})
}

func (s *Subscriber) dispatch(d Delivery) {
	for _, h := range s.handlers {
		if h.Supports(d.Channel) {
			h.Handle(d.Channel, d.Payload)
			return
		}
	}
	s.logger.Warnw("No handler for channel", "channel", d.Channel)
}
