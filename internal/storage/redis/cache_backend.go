package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"github.com/zeromicro/go-zero/core/stores/redis"

	"autotrade-coordinator/internal/storage"
)

// CacheBackend implements storage.CacheBackend on Redis strings and sets.
type CacheBackend struct {
	client *Client
}

// NewCacheBackend creates a new CacheBackend.
func NewCacheBackend(client *Client) *CacheBackend {
	return &CacheBackend{client: client}
}

// Compile-time interface check.
var _ storage.CacheBackend = (*CacheBackend)(nil)

// Get returns the value at key. Returns ErrNotFound if absent.
// go-zero reports a missing key as an empty string; empty payloads are never written.
func (b *CacheBackend) Get(ctx context.Context, key string) (string, error) {
	val, err := b.client.GetCtx(ctx, key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	if val == "" {
		return "", storage.ErrNotFound
	}
	return val, nil
}

// Set stores value at key.
func (b *CacheBackend) Set(ctx context.Context, key, value string) error {
	if err := b.client.SetCtx(ctx, key, value); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Del removes keys.
func (b *CacheBackend) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := b.client.DelCtx(ctx, keys...); err != nil {
		return fmt.Errorf("del %v: %w", keys, err)
	}
	return nil
}

// SAdd adds members to the set at key.
func (b *CacheBackend) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	if _, err := b.client.SaddCtx(ctx, key, lo.ToAnySlice(members)...); err != nil {
		return fmt.Errorf("sadd %s: %w", key, err)
	}
	return nil
}

// SRem removes members from the set at key.
func (b *CacheBackend) SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	if _, err := b.client.SremCtx(ctx, key, lo.ToAnySlice(members)...); err != nil {
		return fmt.Errorf("srem %s: %w", key, err)
	}
	return nil
}

// SMembers returns the members of the set at key.
func (b *CacheBackend) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := b.client.SmembersCtx(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("smembers %s: %w", key, err)
	}
	return members, nil
}

// SCard returns the size of the set at key.
func (b *CacheBackend) SCard(ctx context.Context, key string) (int64, error) {
	n, err := b.client.ScardCtx(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("scard %s: %w", key, err)
	}
	return n, nil
}
