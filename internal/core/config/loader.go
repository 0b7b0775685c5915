package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/kitchenline/internal/core/domain"
	"github.com/vietddude/kitchenline/internal/infra/retry"
	"github.com/vietddude/kitchenline/internal/infra/storage/sqlstore"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// ApplyDefaults fills every unset field.
func (c *AppConfig) ApplyDefaults() {
	if c.API.Timeout == 0 {
		c.API.Timeout = 10 * time.Second
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = retry.DefaultConfig.MaxAttempts
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = retry.DefaultConfig.BaseDelay
	}
	if c.Cache.MaxAge == 0 {
		c.Cache.MaxAge = 24 * time.Hour
	}
	if c.Cache.Retention == 0 {
		c.Cache.Retention = max(7*24*time.Hour, c.Cache.MaxAge)
	}
	if c.Connectivity.ProbeURL == "" {
		c.Connectivity.ProbeURL = c.API.BaseURL
	}
	if c.Connectivity.Interval == 0 {
		c.Connectivity.Interval = 15 * time.Second
	}
	if c.Connectivity.ProbeTimeout == 0 {
		c.Connectivity.ProbeTimeout = 5 * time.Second
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendSQLite
	}
	if c.Storage.Backend == BackendSQLite {
		c.Storage.Database.Driver = sqlstore.DriverSQLite
		if c.Storage.Database.URL == "" {
			c.Storage.Database.URL = "kitchenline.db"
		}
	}
	if c.Storage.Backend == BackendPostgres && c.Storage.Database.Driver == "" {
		c.Storage.Database.Driver = sqlstore.DriverPgx
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate reports the first configuration problem found.
func (c *AppConfig) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}

	switch c.Storage.Backend {
	case BackendMemory, BackendSQLite:
	case BackendRedis:
		if c.Storage.Redis.URL == "" {
			return errors.New("storage.redis.url is required for the redis backend")
		}
	case BackendPostgres:
		if c.Storage.Database.URL == "" {
			return errors.New("storage.database.url is required for the postgres backend")
		}
		if d := c.Storage.Database.Driver; d != sqlstore.DriverPgx && d != sqlstore.DriverPostgres {
			return fmt.Errorf("storage.database.driver must be pgx or postgres, got %q", d)
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}

	if c.Cache.Retention < c.Cache.MaxAge {
		return fmt.Errorf("cache.retention (%s) must be at least cache.max_age (%s)", c.Cache.Retention, c.Cache.MaxAge)
	}

	for path, class := range c.Cache.Resources {
		if !domain.ResourceClass(class).Valid() {
			return fmt.Errorf("cache.resources[%s]: unknown resource class %q", path, class)
		}
	}
	return nil
}

// ResourceMap converts cache.resources into typed classes.
func (c CacheConfig) ResourceMap() map[string]domain.ResourceClass {
	out := make(map[string]domain.ResourceClass, len(c.Resources))
	for path, class := range c.Resources {
		out[path] = domain.ResourceClass(class)
	}
	return out
}
