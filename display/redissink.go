package display

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisSink fans Events out to a Redis pub/sub channel so an external
// process (a TUI or web UI) can subscribe without being linked into the
// orchestrator's process. This is display fan-out, not coordination
// state.
type RedisSink struct {
	client  *redis.Client
	channel string
}

// NewRedisSink returns a Sink that publishes JSON-encoded Events to
// channel on client.
func NewRedisSink(client *redis.Client, channel string) *RedisSink {
	return &RedisSink{client: client, channel: channel}
}

func (s *RedisSink) Emit(ctx context.Context, event Event) error {
	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("display: encoding event: %w", err)
	}
	return s.client.Publish(ctx, s.channel, b).Err()
}
