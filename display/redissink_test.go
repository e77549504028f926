package display_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/massgen-ai/massgen/display"
)

func TestRedisSink_PublishesJSONEncodedEvent(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sub := client.Subscribe(context.Background(), "massgen-events")
	t.Cleanup(func() { _ = sub.Close() })
	msgCh := sub.Channel()

	sink := display.NewRedisSink(client, "massgen-events")
	event := display.Event{Kind: display.KindFinalAnswer, AgentID: "agent-a", Payload: map[string]any{"answer": "42"}}

	require.NoError(t, sink.Emit(context.Background(), event))

	select {
	case msg := <-msgCh:
		var got display.Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		require.Equal(t, display.KindFinalAnswer, got.Kind)
		require.Equal(t, "agent-a", got.AgentID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published event")
	}
}
