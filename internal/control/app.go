// Package control wires the offline-first API layer together and runs its
// background loops.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/vietddude/kitchenline/internal/core/config"
	"github.com/vietddude/kitchenline/internal/core/domain"
	"github.com/vietddude/kitchenline/internal/dispatch"
	"github.com/vietddude/kitchenline/internal/health"
	"github.com/vietddude/kitchenline/internal/infra/retry"
	"github.com/vietddude/kitchenline/internal/infra/storage"
	"github.com/vietddude/kitchenline/internal/infra/storage/memory"
	redisclient "github.com/vietddude/kitchenline/internal/infra/storage/redis"
	"github.com/vietddude/kitchenline/internal/infra/storage/sqlstore"
	"github.com/vietddude/kitchenline/internal/infra/transport"
	"github.com/vietddude/kitchenline/internal/metrics"
	"github.com/vietddude/kitchenline/internal/offline/cache"
	"github.com/vietddude/kitchenline/internal/offline/connectivity"
	"github.com/vietddude/kitchenline/internal/offline/queue"
	"github.com/vietddude/kitchenline/internal/offline/session"
)

// App owns every component and its lifecycle.
type App struct {
	cfg          *config.AppConfig
	backend      storage.Backend
	db           *sqlstore.DB
	transport    transport.Transport
	httpClient   *transport.HTTPTransport
	signal       connectivity.Signal
	monitor      *connectivity.Monitor
	cache        *cache.Cache
	queue        *queue.Queue
	session      *session.Session
	retry        *retry.Handler
	dispatcher   *dispatch.Dispatcher
	pruner       *cache.Pruner
	healthMon    *health.Monitor
	healthServer *health.Server
	log          *slog.Logger

	mu          sync.Mutex
	unsubscribe []func()
	drains      sync.WaitGroup
}

// Option customizes an App.
type Option func(*App)

// WithBackend replaces the configured storage backend.
func WithBackend(b storage.Backend) Option {
	return func(a *App) { a.backend = b }
}

// WithTransport replaces the HTTP transport.
func WithTransport(t transport.Transport) Option {
	return func(a *App) { a.transport = t }
}

// WithSignal replaces the HTTP reachability probe.
func WithSignal(s connectivity.Signal) Option {
	return func(a *App) { a.signal = s }
}

// WithRetryHandler replaces the retry handler built from config.
func WithRetryHandler(h *retry.Handler) Option {
	return func(a *App) { a.retry = h }
}

// NewApp creates an App with all dependencies initialized.
func NewApp(ctx context.Context, cfg *config.AppConfig, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, log: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}

	// 1. Storage
	if a.backend == nil {
		backend, db, err := openBackend(ctx, cfg.Storage)
		if err != nil {
			return nil, err
		}
		a.backend, a.db = backend, db
	}

	// 2. Transport
	if a.transport == nil {
		t, err := transport.NewHTTPTransport(cfg.API)
		if err != nil {
			_ = a.backend.Close()
			return nil, fmt.Errorf("failed to init transport: %w", err)
		}
		a.transport, a.httpClient = t, t
	}

	// 3. Connectivity
	if a.signal == nil {
		a.signal = connectivity.NewHTTPProbe(cfg.Connectivity.ProbeURL, cfg.Connectivity.ProbeTimeout, cfg.API.InsecureTLS)
	}
	initial := domain.StateOnline
	if cfg.Connectivity.StartOffline {
		initial = domain.StateOffline
	}
	a.monitor = connectivity.NewMonitor(a.signal, connectivity.WithInitialState(initial))

	// 4. Offline state
	a.cache = cache.New(a.backend, cache.WithResources(cfg.Cache.ResourceMap()))
	a.queue = queue.New(a.backend)
	a.session = session.New(a.backend)
	a.pruner = cache.NewPruner(a.cache, cfg.Cache.Retention, cfg.Cache.PruneInterval)

	// 5. Dispatcher
	a.dispatcher = dispatch.New(dispatch.Deps{
		Transport:    a.transport,
		Connectivity: a.monitor,
		Cache:        a.cache,
		Queue:        a.queue,
		Session:      a.session,
		Retry:        a.retry,
	}, dispatch.Config{
		Timeout:        cfg.API.Timeout,
		Retry:          cfg.Retry,
		CacheMaxAge:    cfg.Cache.MaxAge,
		CacheRetention: cfg.Cache.Retention,
	})

	// 6. Health
	var th health.TransportHealth
	if a.httpClient != nil {
		th = a.httpClient
	}
	a.healthMon = health.NewMonitor(a.monitor, a.queue, th, a.backend)
	a.healthServer = health.NewServer(a.healthMon, cfg.Server.Port, a.queue)

	a.track(a.dispatcher.OnSessionInvalidated(func(reason string) {
		a.log.Warn("Session invalidated, sign in again", "reason", reason)
	}))

	return a, nil
}

func openBackend(ctx context.Context, cfg config.StorageConfig) (storage.Backend, *sqlstore.DB, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		slog.Info("Using memory storage")
		return memory.NewStorage(), nil, nil
	case config.BackendRedis:
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to init redis: %w", err)
		}
		slog.Info("Using Redis storage")
		return client, nil, nil
	case config.BackendSQLite, config.BackendPostgres:
		db, err := sqlstore.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to init db: %w", err)
		}
		slog.Info("Using SQL storage", "driver", db.Driver())
		return db, db, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// Dispatcher returns the entry point for API calls.
func (a *App) Dispatcher() *dispatch.Dispatcher { return a.dispatcher }

// Connectivity returns the connectivity monitor.
func (a *App) Connectivity() *connectivity.Monitor { return a.monitor }

// Health returns the health monitor.
func (a *App) Health() *health.Monitor { return a.healthMon }

// Refresh probes reachability once.
func (a *App) Refresh(ctx context.Context) domain.ConnectivityState {
	return a.monitor.Refresh(ctx)
}

// Start starts the background loops. They stop when ctx is done.
func (a *App) Start(ctx context.Context) error {
	// Start Health Server
	go func() {
		if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("Health server failed", "error", err)
		}
	}()

	// Start DB Metrics Collector
	if a.db != nil {
		go a.db.StartMetricsCollector(ctx)
	}

	if n, err := a.queue.Len(ctx); err == nil {
		metrics.QueueDepth.Set(float64(n))
	}

	if a.cfg.Connectivity.DrainEnabled() {
		a.track(a.monitor.Subscribe(func(state domain.ConnectivityState) {
			if state.IsOnline() {
				a.drainAsync(ctx, "reconnect")
			}
		}))
	}

	before := a.monitor.Current()
	state := a.monitor.Refresh(ctx)
	a.log.Info("Connectivity", "state", state)
	// An offline->online change already triggered the subscriber above.
	if before.IsOnline() && state.IsOnline() && a.cfg.Connectivity.DrainEnabled() {
		a.drainAsync(ctx, "startup")
	}

	go a.monitor.Start(ctx, a.cfg.Connectivity.Interval)
	go a.pruner.Start(ctx)
	return nil
}

func (a *App) drainAsync(ctx context.Context, trigger string) {
	a.drains.Add(1)
	go func() {
		defer a.drains.Done()
		n, err := a.queue.Len(ctx)
		if err != nil || n == 0 {
			return
		}
		res, err := a.dispatcher.DrainPending(ctx)
		if err != nil {
			a.log.Warn("Drain incomplete",
				"trigger", trigger,
				"applied", len(res.Applied),
				"remaining", len(res.Remaining),
				"error", err,
			)
			return
		}
		a.log.Info("Drain complete", "trigger", trigger, "applied", len(res.Applied))
	}()
}

func (a *App) track(unsubscribe func()) {
	a.mu.Lock()
	a.unsubscribe = append(a.unsubscribe, unsubscribe)
	a.mu.Unlock()
}

// Stop shuts down the health server, waits for running drains and closes
// storage. Cancel the Start context first to stop the loops.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping kitchenline...")

	a.mu.Lock()
	for _, fn := range a.unsubscribe {
		fn()
	}
	a.unsubscribe = nil
	a.mu.Unlock()

	var errs []error
	if err := a.healthServer.Stop(ctx); err != nil {
		errs = append(errs, err)
	}

	done := make(chan struct{})
	go func() {
		a.drains.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	if err := a.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close releases the transport and storage without touching the loops.
func (a *App) Close() error {
	var errs []error
	if a.httpClient != nil {
		if err := a.httpClient.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.backend.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
