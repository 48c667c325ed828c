package session

import (
	"context"
	"time"
)

// Backend is the key-value store a session store runs on
type Backend interface {
	// Get returns found=false without error when the key does not exist.
	Get(ctx context.Context, key string) (data []byte, found bool, err error)
	SetEX(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Publish(ctx context.Context, channel string, payload []byte) error
}

// channelSubscriber opens and closes channel subscriptions on the backend's
// pub/sub transport. *redis.PubSub satisfies it.
type channelSubscriber interface {
	Subscribe(ctx context.Context, channels ...string) error
	Unsubscribe(ctx context.Context, channels ...string) error
}
