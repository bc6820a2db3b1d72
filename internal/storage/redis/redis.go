package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/stores/redis"
)

// Client wraps the go-zero redis client for dependency injection.
type Client struct {
	*redis.Redis
}

// NewClient connects to a single Redis node and verifies it answers PING.
func NewClient(ctx context.Context, addr, password string) (*Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address is empty")
	}

	conf := redis.RedisConf{
		Host:        addr,
		Type:        redis.NodeType,
		Pass:        password,
		NonBlock:    true,
		PingTimeout: time.Second,
	}
	r, err := redis.NewRedis(conf)
	if err != nil {
		return nil, fmt.Errorf("create redis client: %w", err)
	}

	if !r.PingCtx(ctx) {
		return nil, fmt.Errorf("ping redis at %s failed", addr)
	}

	return &Client{Redis: r}, nil
}

// ttlSeconds converts ttl to whole seconds for SETEX-style commands, never less than one.
func ttlSeconds(ttl time.Duration) int {
	secs := int((ttl + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
