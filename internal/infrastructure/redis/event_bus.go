package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"

	"minutes-orchestrator/internal/domain"

	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "workflow:events"

// RedisEventBus fans workflow events out over Redis Pub/Sub so other
// processes can follow progress without polling the API.
type RedisEventBus struct {
	client  *redis.Client
	channel string
	seq     atomic.Int64
}

func NewRedisEventBus(client *redis.Client, channel string) *RedisEventBus {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisEventBus{
		client:  client,
		channel: channel,
	}
}

// Publish broadcasts the event to the network
func (b *RedisEventBus) Publish(ctx context.Context, event domain.WorkflowEvent) error {
	event.Seq = b.seq.Add(1)

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return b.client.Publish(ctx, b.channel, payload).Err()
}

// Subscribe opens a continuous stream of events. The channel closes when ctx
// is done.
func (b *RedisEventBus) Subscribe(ctx context.Context) (<-chan domain.WorkflowEvent, error) {
	pubsub := b.client.Subscribe(ctx, b.channel)

	// Wait for the subscription to be confirmed so no event published after
	// Subscribe returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	msgChan := make(chan domain.WorkflowEvent)

	go func() {
		defer close(msgChan)
		defer pubsub.Close()
		for {
			msg, err := pubsub.ReceiveMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, redis.ErrClosed) {
					return
				}
				continue
			}
			var event domain.WorkflowEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue
			}
			select {
			case msgChan <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return msgChan, nil
}
