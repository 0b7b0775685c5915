package config

import (
	"time"

	"github.com/vietddude/kitchenline/internal/infra/retry"
	redisclient "github.com/vietddude/kitchenline/internal/infra/storage/redis"
	"github.com/vietddude/kitchenline/internal/infra/storage/sqlstore"
	"github.com/vietddude/kitchenline/internal/infra/transport"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	API          transport.Config   `yaml:"api"`
	Retry        retry.Config       `yaml:"retry"`
	Cache        CacheConfig        `yaml:"cache"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
	Storage      StorageConfig      `yaml:"storage"`
	Server       ServerConfig       `yaml:"server"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// CacheConfig holds offline cache settings.
type CacheConfig struct {
	MaxAge time.Duration `yaml:"max_age"`
	// Retention is how long the pruner keeps entries and the largest max
	// age a single call may ask for. Must be at least max_age.
	Retention     time.Duration `yaml:"retention"`
	PruneInterval time.Duration `yaml:"prune_interval"` // 0 = derived from retention
	// Resources maps extra request paths to a well-known resource class
	// (tenant, orders, menu, dashboard_stats).
	Resources map[string]string `yaml:"resources"`
}

// ConnectivityConfig holds reachability probe settings.
type ConnectivityConfig struct {
	ProbeURL         string        `yaml:"probe_url"` // defaults to api.base_url
	Interval         time.Duration `yaml:"interval"`
	ProbeTimeout     time.Duration `yaml:"probe_timeout"`
	DrainOnReconnect *bool         `yaml:"drain_on_reconnect"`
	StartOffline     bool          `yaml:"start_offline"`
}

// DrainEnabled reports whether queued writes replay when connectivity returns.
func (c ConnectivityConfig) DrainEnabled() bool {
	return c.DrainOnReconnect == nil || *c.DrainOnReconnect
}

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Backend  string             `yaml:"backend"`
	Redis    redisclient.Config `yaml:"redis"`
	Database sqlstore.Config    `yaml:"database"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}
