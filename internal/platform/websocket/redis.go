package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/edhub/edhub/internal/platform/metrics"
)

// envelope is the Redis wire format. Origin lets an instance ignore the
// copies of its own events.
type envelope struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

// RedisBridge fans events out across server instances. Publish delivers to
// local clients immediately and forwards the event on a Redis channel; Run
// relays events published by other instances into the local hub.
type RedisBridge struct {
	client     *redis.Client
	channel    string
	hub        *Hub
	logger     zerolog.Logger
	instanceID string

	readyOnce sync.Once
	ready     chan struct{}
}

func NewRedisBridge(client *redis.Client, channel string, hub *Hub, logger zerolog.Logger) *RedisBridge {
	return &RedisBridge{
		client:     client,
		channel:    channel,
		hub:        hub,
		logger:     logger,
		instanceID: uuid.New().String(),
		ready:      make(chan struct{}),
	}
}

// NewRedisClient builds a client from a redis:// URL.
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// Publish implements EventPublisher. Local delivery never depends on Redis
// being reachable.
func (b *RedisBridge) Publish(ctx context.Context, event Event) error {
	b.hub.Broadcast(event.Topic, event)

	payload, err := json.Marshal(envelope{Origin: b.instanceID, Event: event})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = b.client.Publish(ctx, b.channel, payload).Err()
	metrics.IncRealtimePublished("redis", err)
	if err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Ready is closed once Run holds an active subscription.
func (b *RedisBridge) Ready() <-chan struct{} { return b.ready }

// Ping reports whether Redis is reachable.
func (b *RedisBridge) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Run subscribes to the channel and relays foreign events until ctx is done.
func (b *RedisBridge) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", b.channel, err)
	}
	b.readyOnce.Do(func() { close(b.ready) })
	b.logger.Info().Str("channel", b.channel).Msg("realtime redis bridge subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.relay(msg.Payload)
		}
	}
}

func (b *RedisBridge) relay(payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		b.logger.Warn().Err(err).Msg("realtime redis bridge: malformed payload")
		return
	}
	if env.Origin == b.instanceID {
		return
	}
	b.hub.Broadcast(env.Event.Topic, env.Event)
}
