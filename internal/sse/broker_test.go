package sse

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerFanOut(t *testing.T) {
	b := NewBroker(nil)
	defer b.Close()

	a1 := b.Subscribe("alice")
	a2 := b.Subscribe("alice")
	bob := b.Subscribe("bob")

	assert.Equal(t, 2, b.ClientCount("alice"))
	assert.Equal(t, 3, b.TotalClients())

	event := Event{Type: "session_joined", Data: json.RawMessage(`{"sessionId":"g1"}`)}
	b.broadcast("alice", event)

	t.Run("every stream of the player receives the event", func(t *testing.T) {
		require.Len(t, a1.Events, 1)
		require.Len(t, a2.Events, 1)
		assert.Equal(t, event, <-a1.Events)
		assert.Equal(t, event, <-a2.Events)
	})

	t.Run("other players receive nothing", func(t *testing.T) {
		assert.Len(t, bob.Events, 0)
	})

	t.Run("unsubscribe closes done once", func(t *testing.T) {
		b.Unsubscribe(a1)
		b.Unsubscribe(a1)
		_, open := <-a1.Done
		assert.False(t, open)
		assert.Equal(t, 1, b.ClientCount("alice"))
	})
}

func TestBrokerDropsWhenBufferFull(t *testing.T) {
	b := NewBroker(nil)
	defer b.Close()

	c := b.Subscribe("alice")
	for i := 0; i < clientBufferSize+5; i++ {
		b.broadcast("alice", Event{Type: "choice_committed"})
	}
	assert.Len(t, c.Events, clientBufferSize)
}

func TestBrokerPublishWithoutRedis(t *testing.T) {
	b := NewBroker(nil)
	defer b.Close()

	c := b.Subscribe("alice")
	require.NoError(t, b.Publish(context.Background(), "alice", Event{Type: "session_resolved"}))

	require.Len(t, c.Events, 1)
	assert.Equal(t, "session_resolved", (<-c.Events).Type)
}
