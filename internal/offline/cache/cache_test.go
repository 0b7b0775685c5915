package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vietddude/kitchenline/internal/core/domain"
	"github.com/vietddude/kitchenline/internal/infra/storage"
	"github.com/vietddude/kitchenline/internal/infra/storage/memory"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestCache() (*Cache, *memory.Storage, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	backend := memory.NewStorage()
	return New(backend, WithClock(clock.Now)), backend, clock
}

func TestCache_TTL(t *testing.T) {
	tests := []struct {
		name   string
		age    time.Duration
		maxAge time.Duration
		hit    bool
	}{
		{"fresh", time.Hour, 24 * time.Hour, true},
		{"exactly max age", 24 * time.Hour, 24 * time.Hour, true},
		{"just expired", 24*time.Hour + time.Millisecond, 24 * time.Hour, false},
		{"default max age", 23 * time.Hour, 0, true},
		{"default max age expired", 25 * time.Hour, 0, false},
		{"short max age", 10 * time.Minute, 5 * time.Minute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, clock := newTestCache()
			ctx := context.Background()

			c.Store(ctx, "cache:menu", json.RawMessage(`{"items":[]}`))
			clock.Advance(tt.age)

			payload, ok := c.Retrieve(ctx, "cache:menu", tt.maxAge)
			if ok != tt.hit {
				t.Fatalf("Retrieve hit = %v, want %v", ok, tt.hit)
			}
			if ok && string(payload) != `{"items":[]}` {
				t.Errorf("unexpected payload %s", payload)
			}

			if !tt.hit {
				// Eviction is permanent, whatever max age is asked for next.
				if _, ok := c.Retrieve(ctx, "cache:menu", 1000*time.Hour); ok {
					t.Error("expected expired entry to stay evicted")
				}
			}
		})
	}
}

func TestCache_StoreOverwrites(t *testing.T) {
	c, _, clock := newTestCache()
	ctx := context.Background()

	c.Store(ctx, "cache:orders", json.RawMessage(`[1]`))
	clock.Advance(time.Minute)
	c.Store(ctx, "cache:orders", json.RawMessage(`[1,2]`))

	payload, ok := c.Retrieve(ctx, "cache:orders", time.Minute)
	if !ok || string(payload) != `[1,2]` {
		t.Errorf("expected last write, got %s (ok=%v)", payload, ok)
	}

	keys, _ := c.Keys(ctx)
	if len(keys) != 1 {
		t.Errorf("expected one indexed key, got %v", keys)
	}
}

func TestCache_MissingKey(t *testing.T) {
	c, _, _ := newTestCache()
	if _, ok := c.Retrieve(context.Background(), "cache:tenant", 0); ok {
		t.Error("expected miss")
	}
}

func TestCache_StoreSwallowsBackendErrors(t *testing.T) {
	c := New(failingBackend{})
	// Must not panic or surface anything.
	c.Store(context.Background(), "cache:menu", json.RawMessage(`{}`))
	if _, ok := c.Retrieve(context.Background(), "cache:menu", 0); ok {
		t.Error("expected miss from failing backend")
	}
}

func TestCache_StoreSurvivesCanceledContext(t *testing.T) {
	c, _, _ := newTestCache()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c.Store(ctx, "cache:menu", json.RawMessage(`{"a":1}`))
	if _, ok := c.Retrieve(context.Background(), "cache:menu", 0); !ok {
		t.Error("expected entry stored despite canceled context")
	}
}

func TestCache_CorruptEntryDropped(t *testing.T) {
	c, backend, _ := newTestCache()
	ctx := context.Background()
	_ = backend.Set(ctx, "cache:menu", "not json")

	if _, ok := c.Retrieve(ctx, "cache:menu", 0); ok {
		t.Error("expected corrupt entry to be a miss")
	}
	if _, err := backend.Get(ctx, "cache:menu"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected corrupt entry removed, got %v", err)
	}
}

func TestCache_EvictAndClear(t *testing.T) {
	c, backend, _ := newTestCache()
	ctx := context.Background()

	c.Store(ctx, "cache:menu", json.RawMessage(`1`))
	c.Store(ctx, "cache:orders", json.RawMessage(`2`))
	c.Store(ctx, c.KeyFor(domain.MethodGet, "/reports/daily"), json.RawMessage(`3`))
	_ = backend.Set(ctx, domain.KeyPendingActions, "[]")

	if err := c.Evict(ctx, "cache:menu"); err != nil {
		t.Fatalf("Evict failed: %v", err)
	}
	if _, ok := c.Retrieve(ctx, "cache:menu", 0); ok {
		t.Error("expected evicted entry to be gone")
	}

	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if backend.Len() != 1 {
		t.Errorf("expected only pending_actions to survive Clear, have %d keys", backend.Len())
	}
	if _, err := backend.Get(ctx, domain.KeyPendingActions); err != nil {
		t.Errorf("Clear must not touch the queue: %v", err)
	}
}

func TestCache_Prune(t *testing.T) {
	c, backend, clock := newTestCache()
	ctx := context.Background()

	c.Store(ctx, "cache:menu", json.RawMessage(`1`))
	clock.Advance(2 * time.Hour)
	c.Store(ctx, "cache:orders", json.RawMessage(`2`))
	clock.Advance(30 * time.Minute)

	if n := c.Prune(ctx, time.Hour); n != 1 {
		t.Fatalf("expected 1 pruned entry, got %d", n)
	}
	if _, err := backend.Get(ctx, "cache:menu"); !errors.Is(err, storage.ErrNotFound) {
		t.Error("expected stale entry removed")
	}
	keys, _ := c.Keys(ctx)
	if len(keys) != 1 || keys[0] != "cache:orders" {
		t.Errorf("unexpected index after prune: %v", keys)
	}
	if n := c.Prune(ctx, time.Hour); n != 0 {
		t.Errorf("second prune should remove nothing, got %d", n)
	}
}

func TestKeyFor(t *testing.T) {
	c := New(memory.NewStorage())

	fixed := map[string]string{
		"/menu":            "cache:menu",
		"/Menu/":           "cache:menu",
		"menu":             "cache:menu",
		"/orders":          "cache:orders",
		"/tenant":          "cache:tenant",
		"/tenant/profile":  "cache:tenant",
		"/dashboard/stats": "cache:dashboard_stats",
		"/dashboard":       "cache:dashboard_stats",
	}
	for endpoint, want := range fixed {
		if got := c.KeyFor(domain.MethodGet, endpoint); got != want {
			t.Errorf("KeyFor(%q) = %q, want %q", endpoint, got, want)
		}
	}

	a := c.KeyFor(domain.MethodGet, "/orders/42")
	b := c.KeyFor(domain.MethodGet, "/orders/43")
	if a == b {
		t.Errorf("different endpoints share key %s", a)
	}
	if !strings.HasPrefix(a, domain.RequestCacheKeyPrefix) || len(a) != len(domain.RequestCacheKeyPrefix)+16 {
		t.Errorf("unexpected hashed key format %q", a)
	}
	if a != c.KeyFor(domain.MethodGet, "/orders/42") {
		t.Error("KeyFor is not deterministic")
	}

	// Query order does not matter, but the query does.
	q1 := c.KeyFor(domain.MethodGet, "/orders?status=open&page=2")
	q2 := c.KeyFor(domain.MethodGet, "/orders?page=2&status=open")
	if q1 != q2 {
		t.Errorf("query order changed key: %s vs %s", q1, q2)
	}
	if q1 == "cache:orders" {
		t.Error("filtered list must not share the fixed orders key")
	}

	if c.KeyFor(domain.MethodGet, "/orders/AbC") == c.KeyFor(domain.MethodGet, "/orders/abc") {
		t.Error("ids differing only in case must not share a key")
	}
	if c.KeyFor(domain.MethodGet, "/orders/AbC/") != c.KeyFor(domain.MethodGet, "/orders/AbC") {
		t.Error("trailing slash should not change the key")
	}

	if c.KeyFor(domain.MethodGet, "/reports") == c.KeyFor(domain.MethodHead, "/reports") {
		t.Error("method should be part of the hashed key")
	}
}

func TestKeyFor_ConfiguredResources(t *testing.T) {
	c := New(memory.NewStorage(), WithResources(map[string]domain.ResourceClass{
		"/v2/menu-items": domain.ResourceMenu,
	}))
	if got := c.KeyFor(domain.MethodGet, "/V2/Menu-Items/"); got != "cache:menu" {
		t.Errorf("expected configured path to map to cache:menu, got %s", got)
	}
}

func TestPruneInterval(t *testing.T) {
	tests := []struct {
		maxAge time.Duration
		want   time.Duration
	}{
		{24 * time.Hour, time.Hour},
		{5 * time.Hour, 30 * time.Minute},
		{5 * time.Minute, time.Minute},
	}
	for _, tt := range tests {
		if got := PruneInterval(tt.maxAge); got != tt.want {
			t.Errorf("PruneInterval(%v) = %v, want %v", tt.maxAge, got, tt.want)
		}
	}
}

func TestPruner_InitialPrune(t *testing.T) {
	c, _, clock := newTestCache()
	ctx, cancel := context.WithCancel(context.Background())

	c.Store(ctx, "cache:menu", json.RawMessage(`1`))
	clock.Advance(2 * time.Hour)

	p := NewPruner(c, time.Hour, time.Hour)
	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		keys, _ := c.Keys(context.Background())
		if len(keys) == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("pruner did not remove the stale entry")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

type failingBackend struct{}

var errBackend = errors.New("disk full")

func (failingBackend) Get(ctx context.Context, key string) (string, error) { return "", errBackend }
func (failingBackend) Set(ctx context.Context, key, value string) error    { return errBackend }
func (failingBackend) Remove(ctx context.Context, key string) error        { return errBackend }
func (failingBackend) RemoveMany(ctx context.Context, keys []string) error { return errBackend }
func (failingBackend) Close() error                                        { return nil }

func TestPruner_KeepsEntriesWithinRetention(t *testing.T) {
	c, _, clock := newTestCache()
	ctx := context.Background()

	c.Store(ctx, "cache:orders", json.RawMessage(`[1]`))
	clock.Advance(30 * time.Hour)

	p := NewPruner(c, DefaultRetention, time.Hour)
	p.prune(ctx)

	payload, ok := c.Retrieve(ctx, "cache:orders", 48*time.Hour)
	if !ok {
		t.Fatal("30h old entry must survive pruning and be served to a 48h max age")
	}
	if string(payload) != `[1]` {
		t.Errorf("unexpected payload %s", payload)
	}

	clock.Advance(DefaultRetention)
	p.prune(ctx)
	if _, ok := c.Retrieve(ctx, "cache:orders", 2*DefaultRetention); ok {
		t.Error("entry past the retention horizon should have been pruned")
	}
}
