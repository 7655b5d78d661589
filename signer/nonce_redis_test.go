package signer

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisNoncesSeedFromClockThenIncrement(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	n := NewRedisNonces(client, time.Hour)
	n.now = func() time.Time { return time.UnixMilli(1000) }

	ctx := context.Background()
	first, err := n.Next(ctx, "auth", "lists/todo")
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	second, err := n.Next(ctx, "auth", "lists/todo")
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if first != 1001 || second != 1002 {
		t.Fatalf("unexpected nonces %d %d", first, second)
	}
	if ttl := mr.TTL(nonceKey("auth", "lists/todo")); ttl <= 0 || ttl > time.Hour {
		t.Fatalf("unexpected TTL: %v", ttl)
	}
}

func TestRedisNoncesSharedAcrossSources(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	a := NewRedisNonces(client, time.Hour)
	b := NewRedisNonces(client, time.Hour)
	ctx := context.Background()
	x, _ := a.Next(ctx, "auth", "db")
	y, _ := b.Next(ctx, "auth", "db")
	if y <= x {
		t.Fatalf("expected shared monotonic counter, got %d then %d", x, y)
	}
}
