// Package retry runs an operation with bounded attempts and exponential
// backoff. Failures are classified with apierr; non-retryable categories stop
// the loop on first occurrence.
package retry

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/vietddude/kitchenline/internal/core/apierr"
)

// Config defines retry behavior.
type Config struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"` // 0 = uncapped
	Jitter      bool          `yaml:"jitter"`
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	MaxAttempts: 3,
	BaseDelay:   1 * time.Second,
}

// jitterFraction spreads delays by up to ±20%.
const jitterFraction = 0.2

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// OnRetryFunc is called before each backoff sleep.
type OnRetryFunc func(attempt int, delay time.Duration, err *apierr.Error)

// Handler holds the retry policy. It is safe for concurrent use.
type Handler struct {
	cfg     Config
	sleep   Sleeper
	onRetry OnRetryFunc
	rand    func() float64
	log     *slog.Logger
}

type Option func(*Handler)

// WithSleeper replaces the timer-based sleep, mostly for tests.
func WithSleeper(s Sleeper) Option {
	return func(h *Handler) { h.sleep = s }
}

func WithOnRetry(fn OnRetryFunc) Option {
	return func(h *Handler) { h.onRetry = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.log = l }
}

// WithRand sets the jitter source. fn must return values in [0, 1).
func WithRand(fn func() float64) Option {
	return func(h *Handler) { h.rand = fn }
}

// NewHandler creates a handler. Zero fields in cfg take DefaultConfig values.
func NewHandler(cfg Config, opts ...Option) *Handler {
	h := &Handler{
		cfg:   normalize(cfg),
		sleep: Sleep,
		rand:  rand.Float64,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func normalize(cfg Config) Config {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultConfig.BaseDelay
	}
	return cfg
}

// Config returns the effective policy.
func (h *Handler) Config() Config {
	return h.cfg
}

// WithConfig returns a copy of h using cfg. Hooks and the sleeper are shared.
func (h *Handler) WithConfig(cfg Config) *Handler {
	c := *h
	c.cfg = normalize(cfg)
	return &c
}

// Delay returns the wait after the given failed attempt (1-based):
// BaseDelay * 2^(attempt-1), capped at MaxDelay when set.
func (h *Handler) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(h.cfg.BaseDelay) * math.Pow(2, float64(attempt-1))
	if h.cfg.MaxDelay > 0 && delay > float64(h.cfg.MaxDelay) {
		delay = float64(h.cfg.MaxDelay)
	}
	if h.cfg.Jitter {
		delay *= 1 - jitterFraction + 2*jitterFraction*h.rand()
	}
	if delay >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

// Run executes op until it succeeds, fails with a non-retryable category, or
// MaxAttempts is reached. The returned error is always an *apierr.Error.
func Run[T any](ctx context.Context, h *Handler, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	var lastErr *apierr.Error

	for attempt := 1; attempt <= h.cfg.MaxAttempts; attempt++ {
		result, err := op(ctx, attempt)
		if err == nil {
			return result, nil
		}

		lastErr = apierr.Classify(err)
		if !lastErr.Retryable {
			return zero, lastErr
		}
		if attempt == h.cfg.MaxAttempts {
			break
		}

		delay := h.Delay(attempt)
		h.log.Debug("Retrying after failure",
			"attempt", attempt,
			"delay", delay,
			"category", lastErr.Category,
			"error", lastErr,
		)
		if h.onRetry != nil {
			h.onRetry(attempt, delay, lastErr)
		}
		if err := h.sleep(ctx, delay); err != nil {
			return zero, apierr.Classify(err)
		}
	}

	return zero, lastErr
}

// Sleep blocks the calling goroutine for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
