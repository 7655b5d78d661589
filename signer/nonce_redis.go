package signer

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisNonces shares one counter per (auth, db) pair across every client
// process that signs with the same identity.
type RedisNonces struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisNonces creates a nonce source backed by Redis. Idle counters expire
// after ttl and are reseeded from the clock on next use.
func NewRedisNonces(client *redis.Client, ttl time.Duration) *RedisNonces {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisNonces{client: client, ttl: ttl, now: time.Now}
}

// Next seeds the counter with the current time on first use, then increments.
func (r *RedisNonces) Next(ctx context.Context, auth, db string) (int64, error) {
	k := nonceKey(auth, db)
	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, k, r.now().UnixMilli(), r.ttl)
		incr = pipe.Incr(ctx, k)
		pipe.Expire(ctx, k, r.ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
