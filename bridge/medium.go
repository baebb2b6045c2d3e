package bridge

import "context"

// Delivery is one message received from a medium subscription.
type Delivery struct {
	Channel string
	Payload []byte
}

// Medium is the transport the bridge publishes and subscribes through.
type Medium interface {
	// Publish sends payload to every current subscriber whose pattern
	// matches channel. Subscribers that arrive later never see it.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe returns a channel of deliveries for all channels matching
	// pattern (a literal prefix followed by '*', or an exact name). The
	// returned channel closes when ctx is cancelled or the medium closes.
	Subscribe(ctx context.Context, pattern string) (<-chan Delivery, error)

	// Close releases the medium's resources and closes all subscriptions.
	Close() error
}
