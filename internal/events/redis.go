package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// redisPublisher is the part of *redis.Client the sink uses.
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSink publishes every event on "<prefix>.<kind>".
type RedisSink struct {
	client redisPublisher
	prefix string
}

// NewRedisClient connects and pings the server.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func NewRedisSink(client redisPublisher, prefix string) *RedisSink {
	if prefix == "" {
		prefix = "netmonitor"
	}
	return &RedisSink{client: client, prefix: prefix}
}

func (s *RedisSink) Send(ctx context.Context, e Event) error {
	data, err := Marshal(e)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.prefix+"."+string(e.Kind), string(data)).Err()
}

func (s *RedisSink) Name() string { return "redis" }
