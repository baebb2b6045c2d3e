package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidebell/tidebell/logger"
)

func TestMatchPattern(t *testing.T) {
	assert.True(t, matchPattern("ws:*", "ws:user:alice"))
	assert.True(t, matchPattern("ws:*", "ws:crawling"))
	assert.True(t, matchPattern("ws:crawling", "ws:crawling"))
	assert.False(t, matchPattern("ws:crawling", "ws:user:alice"))
	assert.False(t, matchPattern("ws:*", "notify:alice"))
	assert.True(t, matchPattern("*", "anything"))
}

func TestMemoryMediumPublishSubscribe(t *testing.T) {
	medium := NewMemoryMedium(logger.NewTestLogger())
	t.Cleanup(func() { _ = medium.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	deliveries, err := medium.Subscribe(ctx, "ws:*")
	require.NoError(t, err)

	require.NoError(t, medium.Publish(ctx, "ws:user:alice", []byte("hello")))

	select {
	case d := <-deliveries:
		assert.Equal(t, "ws:user:alice", d.Channel)
		assert.Equal(t, "hello", string(d.Payload))
	case <-time.After(time.Second):
		t.Fatal("expected a delivery")
	}
}

func TestMemoryMediumPatternFiltering(t *testing.T) {
	medium := NewMemoryMedium(logger.NewTestLogger())
	t.Cleanup(func() { _ = medium.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	broadcastOnly, err := medium.Subscribe(ctx, "ws:crawling")
	require.NoError(t, err)

	require.NoError(t, medium.Publish(ctx, "ws:user:alice", []byte("targeted")))
	require.NoError(t, medium.Publish(ctx, "ws:crawling", []byte("progress")))

	select {
	case d := <-broadcastOnly:
		assert.Equal(t, "ws:crawling", d.Channel)
	case <-time.After(time.Second):
		t.Fatal("expected the broadcast delivery")
	}
	// The targeted message never arrives on this subscription
	select {
	case d := <-broadcastOnly:
		t.Fatalf("unexpected delivery on %s", d.Channel)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryMediumSubscriptionClosesWithContext(t *testing.T) {
	medium := NewMemoryMedium(logger.NewTestLogger())
	t.Cleanup(func() { _ = medium.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	deliveries, err := medium.Subscribe(ctx, "ws:*")
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-deliveries:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("expected the subscription channel to close")
	}
}

func TestMemoryMediumClosedRejectsPublish(t *testing.T) {
	medium := NewMemoryMedium(logger.NewTestLogger())
	require.NoError(t, medium.Close())

	err := medium.Publish(context.Background(), "ws:user:alice", []byte("late"))
	assert.Error(t, err)

	_, err = medium.Subscribe(context.Background(), "ws:*")
	assert.Error(t, err)
}

func TestPublisherChannelNaming(t *testing.T) {
	medium := NewMemoryMedium(logger.NewTestLogger())
	t.Cleanup(func() { _ = medium.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	deliveries, err := medium.Subscribe(ctx, "ws:*")
	require.NoError(t, err)

	pub := NewPublisher(medium, logger.NewTestLogger())
	env := Envelope{Title: "New posts", Content: "3 new posts on general", Timestamp: time.Now().UTC()}
	require.NoError(t, pub.Publish(ctx, "alice", env))
	require.NoError(t, pub.Broadcast(ctx, Envelope{Title: "Crawling", Status: "RUNNING", Progress: 40}))

	d := <-deliveries
	assert.Equal(t, "ws:user:alice", d.Channel)
	assert.Contains(t, string(d.Payload), `"recipient_id":"alice"`)

	d = <-deliveries
	assert.Equal(t, "ws:crawling", d.Channel)
}

func TestPublisherEmptyRecipient(t *testing.T) {
	medium := NewMemoryMedium(logger.NewTestLogger())
	t.Cleanup(func() { _ = medium.Close() })

	pub := NewPublisher(medium, logger.NewTestLogger())
	err := pub.Publish(context.Background(), "", Envelope{Title: "nobody"})
	assert.Error(t, err)
}

// recordingSender records local deliveries for dispatch assertions.
type recordingSender struct {
	mu        sync.Mutex
	targeted  map[string][]string
	broadcast []string
}

func newRecordingSender() *recordingSender {
	return &recordingSender{targeted: make(map[string][]string)}
}

func (r *recordingSender) SendLocal(recipientID string, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targeted[recipientID] = append(r.targeted[recipientID], string(payload))
}

func (r *recordingSender) SendAll(payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcast = append(r.broadcast, string(payload))
}

func (r *recordingSender) targetedFor(id string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.targeted[id]...)
}

func (r *recordingSender) broadcasts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.broadcast...)
}

func TestSubscriberDispatchFirstMatch(t *testing.T) {
	medium := NewMemoryMedium(logger.NewTestLogger())
	t.Cleanup(func() { _ = medium.Close() })

	sessions := newRecordingSender()
	sub := NewSubscriber(medium, []Handler{
		&BroadcastHandler{Sessions: sessions},
		&UserHandler{Sessions: sessions},
	}, logger.NewTestLogger())

	require.NoError(t, sub.Start(context.Background()))
	t.Cleanup(sub.Stop)

	ctx := context.Background()
	require.NoError(t, medium.Publish(ctx, "ws:user:alice", []byte("for alice")))
	require.NoError(t, medium.Publish(ctx, "ws:crawling", []byte("progress")))

	require.Eventually(t, func() bool {
		return len(sessions.targetedFor("alice")) == 1 && len(sessions.broadcasts()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"for alice"}, sessions.targetedFor("alice"))
	assert.Equal(t, []string{"progress"}, sessions.broadcasts())
}

func TestSubscriberTwoInstancesOnlyHolderDelivers(t *testing.T) {
	// Two subscribers on one shared medium stand in for two instances.
	medium := NewMemoryMedium(logger.NewTestLogger())
	t.Cleanup(func() { _ = medium.Close() })

	holder := newRecordingSender()
	other := newRecordingSender()

	for _, sessions := range []*recordingSender{holder, other} {
		sub := NewSubscriber(medium, []Handler{
			&BroadcastHandler{Sessions: sessions},
			&UserHandler{Sessions: sessions},
		}, logger.NewTestLogger())
		require.NoError(t, sub.Start(context.Background()))
		t.Cleanup(sub.Stop)
	}

	pub := NewPublisher(medium, logger.NewTestLogger())
	require.NoError(t, pub.Publish(context.Background(), "alice", Envelope{Title: "hi"}))

	// Both instances receive the message; each delivers only to connections
	// it holds. Here neither "holds" a real socket, so both record the same
	// local handoff, which is exactly the every-instance-receives contract.
	require.Eventually(t, func() bool {
		return len(holder.targetedFor("alice")) == 1 && len(other.targetedFor("alice")) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSubscriberUnmatchedChannelIgnored(t *testing.T) {
	medium := NewMemoryMedium(logger.NewTestLogger())
	t.Cleanup(func() { _ = medium.Close() })

	sessions := newRecordingSender()
	sub := NewSubscriber(medium, []Handler{
		&BroadcastHandler{Sessions: sessions},
	}, logger.NewTestLogger())
	require.NoError(t, sub.Start(context.Background()))
	t.Cleanup(sub.Stop)

	// ws:user:* matches the subscription pattern but no handler
	require.NoError(t, medium.Publish(context.Background(), "ws:user:alice", []byte("orphan")))
	require.NoError(t, medium.Publish(context.Background(), "ws:crawling", []byte("progress")))

	require.Eventually(t, func() bool {
		return len(sessions.broadcasts()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, sessions.targetedFor("alice"))
}
