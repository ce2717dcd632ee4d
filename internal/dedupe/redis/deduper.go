// Package redis implements cross-process emission dedup on Redis
// SET NX with a cooldown TTL.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"solana-coil-detector/internal/dedupe"
)

const keyPrefix = "scf:cooldown:"

// Deduper implements dedupe.Deduper on a shared Redis instance.
type Deduper struct {
	rdb *redis.Client
}

// Compile-time interface check.
var _ dedupe.Deduper = (*Deduper)(nil)

// New connects to Redis and verifies the connection.
func New(ctx context.Context, url string) (*Deduper, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Deduper{rdb: rdb}, nil
}

// Claim sets scf:cooldown:<pool> if absent; the TTL is the cooldown,
// so the key expiring reopens emission.
func (d *Deduper) Claim(ctx context.Context, pool string, cooldown time.Duration) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, keyPrefix+pool, 1, cooldown).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// Close releases the client.
func (d *Deduper) Close() error {
	return d.rdb.Close()
}
