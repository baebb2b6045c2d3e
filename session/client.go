// Package session tracks which websocket connections this instance holds and
// delivers payloads to them. It is purely local: cross-instance routing is
// the bridge's job.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocket timeout constants following Gorilla best practices
// See: https://github.com/gorilla/websocket/blob/master/examples/chat/client.go
const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer; clients only send pings
	maxMessageSize = 4096

	// Outbound payloads buffered per connection before drops begin
	sendBuffer = 32
)

// Client is one websocket connection held by this instance.
type Client struct {
	conn        *websocket.Conn
	send        chan []byte
	recipientID string
	logger      *zap.SugaredLogger

	// OnClose runs once when the connection dies; the server uses it to
	// unregister the session.
	OnClose func(*Client)

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient wraps an upgraded websocket connection.
func NewClient(conn *websocket.Conn, recipientID string, log *zap.SugaredLogger) *Client {
	return &Client{
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		recipientID: recipientID,
		logger:      log.Named("client"),
		done:        make(chan struct{}),
	}
}

// RecipientID returns the id this connection was registered under.
func (c *Client) RecipientID() string {
	return c.recipientID
}

// Enqueue queues a payload for delivery. Returns false when the connection
// is closed or its buffer is full; the caller drops the message either way.
func (c *Client) Enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// ReadPump consumes the connection until it dies. Inbound frames carry no
// application data; reading exists to observe pongs and disconnects.
func (c *Client) ReadPump() {
	defer func() {
		c.Close()
		if c.OnClose != nil {
			c.OnClose(c)
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNoStatusReceived,
			) {
				c.logger.Warnw("WebSocket read error",
					"recipient_id", c.recipientID,
					"error", err)
			}
			return
		}
	}
}

// WritePump drains the send buffer onto the wire and keeps the connection
// alive with pings.
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Debugw("Message write error",
					"recipient_id", c.recipientID,
					"error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close tears down the connection. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}
