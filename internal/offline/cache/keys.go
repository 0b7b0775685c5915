package cache

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/vietddude/kitchenline/internal/core/domain"
)

func defaultResources() map[string]domain.ResourceClass {
	return map[string]domain.ResourceClass{
		"/tenant":          domain.ResourceTenant,
		"/tenant/profile":  domain.ResourceTenant,
		"/orders":          domain.ResourceOrders,
		"/menu":            domain.ResourceMenu,
		"/dashboard":       domain.ResourceDashboardStats,
		"/dashboard/stats": domain.ResourceDashboardStats,
	}
}

// KeyFor derives the cache key of a read. Well-known resource paths without a
// query map to fixed keys, matched case-insensitively. Everything else hashes
// the method, the path as given and the sorted query, so unrelated endpoints
// (including ids differing only in case) never share a key.
func (c *Cache) KeyFor(method domain.Method, endpoint string) string {
	path, query := normalize(endpoint)
	if query == "" {
		if class, ok := c.resources[strings.ToLower(path)]; ok {
			return domain.CacheKey(class)
		}
	}
	sum := xxhash.Sum64String(strings.ToUpper(string(method)) + " " + path + "?" + query)
	return fmt.Sprintf("%s%016x", domain.RequestCacheKeyPrefix, sum)
}

func normalize(endpoint string) (path, query string) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return normalizePath(endpoint), ""
	}
	return normalizePath(u.Path), u.Query().Encode()
}

func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}
	return p
}
