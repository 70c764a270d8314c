package messaging

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/workflow-orchestrator/internal/domain/event"
)

func newTestPublisher(t *testing.T) (*RedisPublisher, *redis.Client, *miniredis.Miniredis) {
	t.Helper()
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	subscriber := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = subscriber.Close() })

	pub, err := NewRedisPublisher(client, "wf", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Close() })
	return pub, subscriber, server
}

func TestNewRedisPublisher_RequiresClient(t *testing.T) {
	_, err := NewRedisPublisher(nil, "", zap.NewNop())
	assert.Error(t, err)
}

func TestRedisPublisher_Channel(t *testing.T) {
	pub, err := NewRedisPublisher(redis.NewClient(&redis.Options{Addr: "localhost:0"}), "", zap.NewNop())
	require.NoError(t, err)
	defer pub.Close()

	evt := event.NewEvent(event.TypeTransitioned, "org-1", "inst-1", nil)
	assert.Equal(t, "workflow:org-1:"+string(event.TypeTransitioned), pub.Channel(evt))
}

func TestRedisPublisher_Relay(t *testing.T) {
	pub, subscriber, _ := newTestPublisher(t)
	ctx := context.Background()

	sub := subscriber.PSubscribe(ctx, "wf:org-1:*")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	evt := event.NewEvent(event.TypeTransitioned, "org-1", "inst-1", map[string]interface{}{
		"from_state": "open",
		"to_state":   "won",
	}).ForDefinition("def-1")
	require.NoError(t, pub.Relay(ctx, evt))

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, pub.Channel(evt), msg.Channel)

		var got event.Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, evt.ID, got.ID)
		assert.Equal(t, event.TypeTransitioned, got.Type)
		assert.Equal(t, "def-1", got.DefinitionID)
		assert.Equal(t, "won", got.Payload["to_state"])
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestRedisPublisher_RelayReportsOutage(t *testing.T) {
	pub, _, server := newTestPublisher(t)
	server.Close()

	evt := event.NewEvent(event.TypeCancelled, "org-1", "inst-1", nil)
	err := pub.Relay(context.Background(), evt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wf:org-1:"+string(event.TypeCancelled))
}
