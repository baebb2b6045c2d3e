// Package bridge routes delivery messages between instances. Messages are
// published to named channels on a medium (Redis in multi-instance
// deployments, in-process for a single instance); every instance subscribes
// to the full channel space and delivers to whichever websocket connections
// it holds locally. Delivery is fire-and-forget: no acks, no retries, no
// persistence.
package bridge

import (
	"encoding/json"
	"time"
)

// Channel naming. Targeted messages go to a per-recipient channel; progress
// fan-out goes to a single broadcast channel.
const (
	UserChannelPrefix = "ws:user:"
	BroadcastChannel  = "ws:crawling"
	SubscribePattern  = "ws:*"
)

// UserChannel returns the targeted channel for a recipient id.
func UserChannel(recipientID string) string {
	return UserChannelPrefix + recipientID
}

// Envelope is the wire form of a delivery message.
type Envelope struct {
	RecipientID string    `json:"recipient_id,omitempty"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Status      string    `json:"status,omitempty"`
	Progress    int       `json:"progress,omitempty"`
	Timestamp   time.Time `json:"ts"`
}

// Encode marshals the envelope for publication.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}
