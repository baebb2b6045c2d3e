package server

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidebell/tidebell/bridge"
	"github.com/tidebell/tidebell/logger"
)

func dialWS(t *testing.T, httpURL, user string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(httpURL, "http") + "/ws"
	if user != "" {
		wsURL += "?user=" + user
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketConnectAndDeliver(t *testing.T) {
	srv, ts := newTestServer(t)

	conn := dialWS(t, ts.URL, "alice")

	require.Eventually(t, func() bool {
		return srv.sessions.Get("alice") != nil
	}, 2*time.Second, 10*time.Millisecond)

	srv.sessions.SendLocal("alice", []byte(`{"title":"New posts"}`))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"New posts"}`, string(payload))
}

func TestWebSocketRequiresUser(t *testing.T) {
	_, ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestBridgeToWebSocketDelivery(t *testing.T) {
	srv, ts := newTestServer(t)

	conn := dialWS(t, ts.URL, "alice")
	require.Eventually(t, func() bool {
		return srv.sessions.Get("alice") != nil
	}, 2*time.Second, 10*time.Millisecond)

	log := logger.NewTestLogger()
	medium := bridge.NewMemoryMedium(log)
	t.Cleanup(func() { _ = medium.Close() })

	sub := bridge.NewSubscriber(medium, []bridge.Handler{
		&bridge.UserHandler{Sessions: srv.sessions},
		&bridge.BroadcastHandler{Sessions: srv.sessions},
	}, log)
	require.NoError(t, sub.Start(context.Background()))
	t.Cleanup(sub.Stop)

	pub := bridge.NewPublisher(medium, log)
	require.NoError(t, pub.Publish(context.Background(), "alice",
		bridge.Envelope{Title: "New posts", Content: "3 new posts", Timestamp: time.Now().UTC()}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var env bridge.Envelope
	require.NoError(t, json.Unmarshal(payload, &env))
	assert.Equal(t, "alice", env.RecipientID)
	assert.Equal(t, "New posts", env.Title)

	// A message for a recipient with no connection here is silently dropped
	require.NoError(t, pub.Publish(context.Background(), "bob",
		bridge.Envelope{Title: "unseen"}))
}
