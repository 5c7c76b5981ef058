package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/student-insights/internal/domain/alert"
)

// PrefixAlertDedup namespaces dedup reservations.
const PrefixAlertDedup = "alert:dedup:"

var _ alert.DedupGuard = (*DedupGuard)(nil)

// DedupGuard admits one persisted firing per alert key per window.
type DedupGuard struct {
	cache *Cache
}

// NewDedupGuard creates a guard on cache.
func NewDedupGuard(cache *Cache) *DedupGuard {
	return &DedupGuard{cache: cache}
}

// DedupKey returns the Redis key of k, without the cache prefix.
func DedupKey(k alert.Key) string {
	return fmt.Sprintf("%s%d:%s:%s:%s", PrefixAlertDedup, k.StudentID, k.Type, k.Severity, k.Rule)
}

// Admit reserves k for window. It reports false when k is already reserved.
func (g *DedupGuard) Admit(ctx context.Context, k alert.Key, window time.Duration) (bool, error) {
	ok, err := g.cache.SetNX(ctx, DedupKey(k), time.Now().UTC().Unix(), window)
	if err != nil {
		return false, fmt.Errorf("failed to reserve alert key: %w", err)
	}
	return ok, nil
}

// Release drops the reservation of k so the next run may persist it.
func (g *DedupGuard) Release(ctx context.Context, k alert.Key) error {
	return g.cache.Delete(ctx, DedupKey(k))
}
