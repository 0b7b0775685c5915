package dispatch

import (
	"net/http"
	"time"

	"github.com/vietddude/kitchenline/internal/infra/retry"
	"github.com/vietddude/kitchenline/internal/offline/cache"
)

const DefaultTimeout = 10 * time.Second

// Config holds the defaults every call starts from.
type Config struct {
	Timeout     time.Duration
	Retry       retry.Config
	CacheMaxAge time.Duration
	// CacheRetention caps CacheMaxAge and WithCacheMaxAge. It must match
	// the pruner's retention so served entries are never pruned early.
	CacheRetention time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = retry.DefaultConfig.MaxAttempts
	}
	if c.CacheRetention <= 0 {
		c.CacheRetention = cache.DefaultRetention
	}
	if c.Retry.BaseDelay <= 0 {
		c.Retry.BaseDelay = retry.DefaultConfig.BaseDelay
	}
	return c
}

type callOptions struct {
	timeout     time.Duration
	retry       retry.Config
	cacheMaxAge time.Duration
	header      http.Header
}

// CallOption overrides a default for a single call.
type CallOption func(*callOptions)

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithMaxAttempts(n int) CallOption {
	return func(o *callOptions) {
		if n > 0 {
			o.retry.MaxAttempts = n
		}
	}
}

func WithBaseDelay(d time.Duration) CallOption {
	return func(o *callOptions) {
		if d > 0 {
			o.retry.BaseDelay = d
		}
	}
}

// WithCacheMaxAge sets how old a cached response may be when served offline.
func WithCacheMaxAge(d time.Duration) CallOption {
	return func(o *callOptions) {
		if d > 0 {
			o.cacheMaxAge = d
		}
	}
}

// WithHeader adds a request header. Auth headers from the session win.
func WithHeader(key, value string) CallOption {
	return func(o *callOptions) {
		if o.header == nil {
			o.header = http.Header{}
		}
		o.header.Add(key, value)
	}
}

func (d *Dispatcher) options(opts []CallOption) callOptions {
	o := callOptions{
		timeout:     d.cfg.Timeout,
		retry:       d.cfg.Retry,
		cacheMaxAge: d.cfg.CacheMaxAge,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
