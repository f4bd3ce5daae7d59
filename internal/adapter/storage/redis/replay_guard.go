package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ReplayGuard implements ports.ReplayGuard using Redis SET NX.
// Keys look like consumed:<scope>:<id>.
type ReplayGuard struct {
	client *goredis.Client
	prefix string
}

// NewReplayGuard creates a Redis-backed replay guard.
func NewReplayGuard(client *goredis.Client) *ReplayGuard {
	return &ReplayGuard{
		client: client,
		prefix: "consumed:",
	}
}

// CheckAndSet atomically records id under scope.
// Returns true if id is new, false if it was already consumed.
func (g *ReplayGuard) CheckAndSet(ctx context.Context, scope string, id string, ttl time.Duration) (bool, error) {
	key := g.prefix + scope + ":" + id
	result, err := g.client.SetArgs(ctx, key, time.Now().Unix(), goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis replay check: %w", err)
	}
	return result == "OK", nil
}

// Release forgets id so it can be consumed again.
func (g *ReplayGuard) Release(ctx context.Context, scope string, id string) error {
	if err := g.client.Del(ctx, g.prefix+scope+":"+id).Err(); err != nil {
		return fmt.Errorf("redis replay release: %w", err)
	}
	return nil
}
