// Package storage holds the Redis read cache and the Azure Table outcome
// journal.
package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"ledger-lists/domain"
)

type backend interface {
	FetchLists(ctx context.Context) ([]domain.List, error)
	FetchAssignees(ctx context.Context) ([]domain.Assignee, error)
	FetchOwners(ctx context.Context) ([]domain.Owner, error)
}

// Cache fronts the ledger bulk-load queries with Redis.
type Cache struct {
	base   backend
	redis  *redis.Client
	ttl    time.Duration
	prefix string
}

// NewCache creates a caching wrapper around base. Keys are namespaced by db
// so several ledgers can share one Redis.
func NewCache(base backend, client *redis.Client, db string, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl, prefix: "ledger:" + db + ":"}
}

func (c *Cache) FetchLists(ctx context.Context) ([]domain.List, error) {
	var lists []domain.List
	if c.load(ctx, c.key("lists"), &lists) {
		return lists, nil
	}
	lists, err := c.base.FetchLists(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, c.key("lists"), lists)
	return lists, nil
}

func (c *Cache) FetchAssignees(ctx context.Context) ([]domain.Assignee, error) {
	var assignees []domain.Assignee
	if c.load(ctx, c.key("assignees"), &assignees) {
		return assignees, nil
	}
	assignees, err := c.base.FetchAssignees(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, c.key("assignees"), assignees)
	return assignees, nil
}

func (c *Cache) FetchOwners(ctx context.Context) ([]domain.Owner, error) {
	var owners []domain.Owner
	if c.load(ctx, c.key("owners"), &owners) {
		return owners, nil
	}
	owners, err := c.base.FetchOwners(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, c.key("owners"), owners)
	return owners, nil
}

// Evict drops every cached bulk-load result. Called after a confirmed write.
func (c *Cache) Evict(ctx context.Context) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, c.key("lists"), c.key("assignees"), c.key("owners")).Result()
}

func (c *Cache) load(ctx context.Context, key string, out any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the ledger without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return false
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *Cache) store(ctx context.Context, key string, v any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(v)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) key(name string) string {
	return c.prefix + name
}
