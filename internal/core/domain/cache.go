package domain

import (
	"encoding/json"
	"time"
)

// CacheEntry is the latest known-good response for one logical resource.
type CacheEntry struct {
	Key      string          `json:"key"`
	Payload  json.RawMessage `json:"payload"`
	StoredAt time.Time       `json:"stored_at"`
}

// Age returns how long ago the entry was stored, relative to now.
func (e CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}

// ResourceClass is a well-known cached resource with a fixed backend key.
type ResourceClass string

const (
	ResourceTenant         ResourceClass = "tenant"
	ResourceOrders         ResourceClass = "orders"
	ResourceMenu           ResourceClass = "menu"
	ResourceDashboardStats ResourceClass = "dashboard_stats"
)

// ResourceClasses lists every well-known class.
var ResourceClasses = []ResourceClass{
	ResourceTenant,
	ResourceOrders,
	ResourceMenu,
	ResourceDashboardStats,
}

// Valid reports whether c is one of the well-known classes.
func (c ResourceClass) Valid() bool {
	for _, rc := range ResourceClasses {
		if rc == c {
			return true
		}
	}
	return false
}
