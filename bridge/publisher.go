package bridge

import (
	"context"

	"go.uber.org/zap"

	"github.com/tidebell/tidebell/errors"
)

// Publisher writes delivery messages onto the medium. It never knows or
// cares which instance holds the recipient's connection.
type Publisher struct {
	medium Medium
	logger *zap.SugaredLogger
}

// NewPublisher creates a publisher over the given medium.
func NewPublisher(medium Medium, log *zap.SugaredLogger) *Publisher {
	return &Publisher{
		medium: medium,
		logger: log.Named("publisher"),
	}
}

// Publish sends env to a single recipient's channel.
func (p *Publisher) Publish(ctx context.Context, recipientID string, env Envelope) error {
	if recipientID == "" {
		return errors.New("recipient id is required")
	}

	env.RecipientID = recipientID
	payload, err := env.Encode()
	if err != nil {
		return errors.Wrap(err, "failed to encode envelope")
	}

	if err := p.medium.Publish(ctx, UserChannel(recipientID), payload); err != nil {
		return err
	}

	p.logger.Debugw("Message published",
		"recipient_id", recipientID,
		"title", env.Title)
	return nil
}

// Broadcast sends env to the shared progress channel. All connected clients
// on all instances receive it.
func (p *Publisher) Broadcast(ctx context.Context, env Envelope) error {
	payload, err := env.Encode()
	if err != nil {
		return errors.Wrap(err, "failed to encode envelope")
	}
	return p.medium.Publish(ctx, BroadcastChannel, payload)
}
