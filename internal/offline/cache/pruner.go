package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/kitchenline/internal/metrics"
)

// Pruner deletes entries older than the retention horizon in the
// background. Entries younger than that stay available to any caller whose
// max age reaches them.
type Pruner struct {
	cache     *Cache
	retention time.Duration
	interval  time.Duration
}

// NewPruner creates a new Pruner. A zero retention means DefaultRetention and
// a zero interval is derived from the retention.
func NewPruner(c *Cache, retention, interval time.Duration) *Pruner {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if interval <= 0 {
		interval = PruneInterval(retention)
	}
	return &Pruner{
		cache:     c,
		retention: retention,
		interval:  interval,
	}
}

// PruneInterval is 10% of retention, clamped to [1m, 1h].
func PruneInterval(retention time.Duration) time.Duration {
	interval := min(retention/10, 1*time.Hour)
	return max(interval, 1*time.Minute)
}

// Start runs the pruner loop until ctx is done.
func (p *Pruner) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Initial prune
	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	if n := p.cache.Prune(ctx, p.retention); n > 0 {
		metrics.CachePruned.Add(float64(n))
		slog.Info("Pruned expired cache entries", "count", n)
	}
}
