package rdx

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var Conn *redis.Client

// Connect opens the shared Redis client from a redis:// URL and checks it.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	Conn = client
	return client, nil
}

func Close() error {
	if Conn == nil {
		return nil
	}
	return Conn.Close()
}
