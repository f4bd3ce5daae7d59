// Package memory holds in-process fallbacks for the Redis-backed stores.
package memory

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// ReplayGuard is an in-process ports.ReplayGuard for single-instance runs.
// Expired entries are ignored on lookup and dropped by Run or Len.
type ReplayGuard struct {
	cache *ttlcache.Cache[string, struct{}]
}

// NewReplayGuard creates an empty guard.
func NewReplayGuard() *ReplayGuard {
	return &ReplayGuard{
		cache: ttlcache.New[string, struct{}](
			ttlcache.WithDisableTouchOnHit[string, struct{}](),
		),
	}
}

// CheckAndSet records id under scope, returning false if it is still held.
func (g *ReplayGuard) CheckAndSet(_ context.Context, scope string, id string, ttl time.Duration) (bool, error) {
	_, held := g.cache.GetOrSet(scope+":"+id, struct{}{}, ttlcache.WithTTL[string, struct{}](ttl))
	return !held, nil
}

// Release forgets id so it can be consumed again.
func (g *ReplayGuard) Release(_ context.Context, scope string, id string) error {
	g.cache.Delete(scope + ":" + id)
	return nil
}

// Len returns the number of live entries.
func (g *ReplayGuard) Len() int {
	g.cache.DeleteExpired()
	return g.cache.Len()
}

// Run evicts expired entries in the background until ctx is done.
func (g *ReplayGuard) Run(ctx context.Context) {
	go g.cache.Start()
	<-ctx.Done()
	g.cache.Stop()
}
