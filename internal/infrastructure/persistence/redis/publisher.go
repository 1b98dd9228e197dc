package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// PrefixPubSub is the prefix for pub/sub channels.
const PrefixPubSub = "studybuddy:notifications:"

// Publisher sends notification payloads to Redis pub/sub channels so that
// other processes (a push gateway, a websocket fan-out) can deliver them.
type Publisher struct {
	client *redis.Client
}

// NewPublisher creates a publisher on client.
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// Publish serializes message to JSON and publishes it on channel.
func (p *Publisher) Publish(ctx context.Context, channel string, message interface{}) error {
	if channel == "" {
		return ErrKeyEmpty
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("redis: encode message for %s: %w", channel, err)
	}

	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe creates a subscription to channels.
// Remember to call Close() on the returned PubSub when done.
func (p *Publisher) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return p.client.Subscribe(ctx, channels...)
}

// UserChannel returns the pub/sub channel of a user's notifications.
func UserChannel(userID string) string {
	return PrefixPubSub + "user:" + userID
}

// GroupChannel returns the pub/sub channel of a group's notifications.
func GroupChannel(groupID string) string {
	return PrefixPubSub + "group:" + groupID
}
