package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidebell/tidebell/logger"
)

func newTestClient(recipientID string) *Client {
	return NewClient(nil, recipientID, logger.NewTestLogger())
}

func TestRegisterAndGet(t *testing.T) {
	registry := NewRegistry(logger.NewTestLogger())

	alice := newTestClient("alice")
	registry.Register(alice)

	assert.Same(t, alice, registry.Get("alice"))
	assert.Nil(t, registry.Get("bob"))
	assert.Equal(t, 1, registry.Count())
}

func TestRegisterLastConnectionWins(t *testing.T) {
	registry := NewRegistry(logger.NewTestLogger())

	first := newTestClient("alice")
	second := newTestClient("alice")
	registry.Register(first)
	registry.Register(second)

	assert.Same(t, second, registry.Get("alice"))
	assert.Equal(t, 1, registry.Count())

	// The displaced connection is closed and refuses new payloads
	assert.False(t, first.Enqueue([]byte("late")))
	assert.True(t, second.Enqueue([]byte("ok")))
}

func TestUnregisterIdentityCheck(t *testing.T) {
	registry := NewRegistry(logger.NewTestLogger())

	first := newTestClient("alice")
	second := newTestClient("alice")
	registry.Register(first)
	registry.Register(second)

	// A stale disconnect for the displaced connection must not evict the
	// newer one
	registry.Unregister(first)
	assert.Same(t, second, registry.Get("alice"))

	registry.Unregister(second)
	assert.Nil(t, registry.Get("alice"))
}

func TestSendLocalMissingRecipientIsSwallowed(t *testing.T) {
	registry := NewRegistry(logger.NewTestLogger())

	assert.NotPanics(t, func() {
		registry.SendLocal("nobody", []byte("hello"))
	})
}

func TestSendLocalDelivers(t *testing.T) {
	registry := NewRegistry(logger.NewTestLogger())

	alice := newTestClient("alice")
	registry.Register(alice)

	registry.SendLocal("alice", []byte("hello"))

	select {
	case payload := <-alice.send:
		assert.Equal(t, "hello", string(payload))
	default:
		t.Fatal("expected a queued payload")
	}
}

func TestSendLocalClosedConnectionIsSwallowed(t *testing.T) {
	registry := NewRegistry(logger.NewTestLogger())

	alice := newTestClient("alice")
	registry.Register(alice)
	alice.Close()

	assert.NotPanics(t, func() {
		registry.SendLocal("alice", []byte("hello"))
	})
}

func TestSendLocalFullBufferDrops(t *testing.T) {
	registry := NewRegistry(logger.NewTestLogger())

	alice := newTestClient("alice")
	registry.Register(alice)

	for i := 0; i < sendBuffer; i++ {
		require.True(t, alice.Enqueue([]byte("fill")))
	}

	// Buffer full: the drop is silent, nothing blocks
	assert.NotPanics(t, func() {
		registry.SendLocal("alice", []byte("overflow"))
	})
	assert.Len(t, alice.send, sendBuffer)
}

func TestSendAll(t *testing.T) {
	registry := NewRegistry(logger.NewTestLogger())

	alice := newTestClient("alice")
	bob := newTestClient("bob")
	registry.Register(alice)
	registry.Register(bob)

	registry.SendAll([]byte("progress"))

	assert.Len(t, alice.send, 1)
	assert.Len(t, bob.send, 1)
}

func TestCloseAll(t *testing.T) {
	registry := NewRegistry(logger.NewTestLogger())

	alice := newTestClient("alice")
	bob := newTestClient("bob")
	registry.Register(alice)
	registry.Register(bob)

	registry.CloseAll()
	assert.Equal(t, 0, registry.Count())
	assert.False(t, alice.Enqueue([]byte("late")))
	assert.False(t, bob.Enqueue([]byte("late")))
}
