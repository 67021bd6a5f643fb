package redis

import (
	"context"
	"fmt"
	"net"

	"github.com/mossy-p/videochat-signaling/config"
	"github.com/redis/go-redis/v9"
)

// Connect opens the client backing the presence mirror. It fails fast when
// the server is unreachable so the process does not start half-wired.
func Connect(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	addr := net.JoinHostPort(cfg.Host, cfg.Port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", addr, err)
	}
	return client, nil
}
