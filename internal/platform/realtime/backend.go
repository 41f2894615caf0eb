package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Envelope is an encoded frame together with its audience.
type Envelope struct {
	Scope Scope           `json:"scope"`
	Frame json.RawMessage `json:"frame"`
}

// Backend carries envelopes to the hubs that hold the target sessions.
type Backend interface {
	Publish(ctx context.Context, env Envelope) error
}

// LocalBackend delivers straight to an in-process hub. Suitable for a single
// instance.
type LocalBackend struct {
	hub *Hub
}

// NewLocalBackend creates a backend bound to hub.
func NewLocalBackend(hub *Hub) *LocalBackend {
	return &LocalBackend{hub: hub}
}

func (b *LocalBackend) Publish(_ context.Context, env Envelope) error {
	b.hub.Deliver(env.Scope, env.Frame)
	return nil
}

// RedisBackend fans envelopes out over a Redis Pub/Sub channel. Every
// instance runs a subscriber that delivers to its own local hub, so a session
// receives an event no matter which instance emitted it.
type RedisBackend struct {
	client  *redis.Client
	channel string
	hub     *Hub
	logger  zerolog.Logger
}

// NewRedisBackend creates a Redis-backed backend. Call Run to start the
// subscriber.
func NewRedisBackend(client *redis.Client, channel string, hub *Hub, logger zerolog.Logger) *RedisBackend {
	return &RedisBackend{
		client:  client,
		channel: channel,
		hub:     hub,
		logger:  logger.With().Str("component", "realtime-redis").Logger(),
	}
}

func (b *RedisBackend) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Run subscribes to the channel and delivers incoming envelopes until ctx is
// cancelled.
func (b *RedisBackend) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", b.channel, err)
	}
	b.logger.Info().Str("channel", b.channel).Msg("realtime subscriber started")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.handle([]byte(msg.Payload))
		}
	}
}

func (b *RedisBackend) handle(payload []byte) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		b.logger.Warn().Err(err).Msg("discarding malformed realtime envelope")
		return
	}
	if err := env.Scope.Validate(); err != nil {
		b.logger.Warn().Err(err).Msg("discarding realtime envelope with bad scope")
		return
	}
	b.hub.Deliver(env.Scope, env.Frame)
}

// NewRedisClient parses url, connects and pings.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}
