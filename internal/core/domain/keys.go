package domain

// Backend keys used by the offline layer.
const (
	KeyPendingActions = "pending_actions"
	KeyAuthToken      = "auth_token"
	KeyTenantID       = "tenant_id"
	KeyCacheIndex     = "cache:index"

	CacheKeyPrefix        = "cache:"
	RequestCacheKeyPrefix = "cache:req:"
)

// CacheKey returns the fixed backend key of a resource class.
func CacheKey(c ResourceClass) string {
	return CacheKeyPrefix + string(c)
}
