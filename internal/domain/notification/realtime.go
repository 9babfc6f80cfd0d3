package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	channelPrefix = "notifications:"
	eventNew      = "notification:new"
)

// RealtimePublisher publishes in-app notification realtime events.
type RealtimePublisher interface {
	PublishNew(ctx context.Context, n *Notification) error
}

// RedisPublisher publishes notification:new events on a per-user channel so
// any API instance holding the user's connection can forward them.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher creates a Redis-backed realtime publisher.
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

type realtimeEvent struct {
	Type string        `json:"type"`
	Data *Notification `json:"data"`
	Body string        `json:"body,omitempty"`
}

// Channel returns the pub/sub channel for a user.
func Channel(userID fmt.Stringer) string {
	return channelPrefix + userID.String()
}

func (p *RedisPublisher) PublishNew(ctx context.Context, n *Notification) error {
	if p == nil || p.client == nil {
		return nil
	}
	payload, err := json.Marshal(realtimeEvent{Type: eventNew, Data: n, Body: n.BodyText()})
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, Channel(n.UserID), payload).Err()
}
