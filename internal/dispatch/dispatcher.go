// Package dispatch is the single entry point for API calls. It decides per
// call whether to go to the network or fall back to the offline cache and
// the pending-action queue, and it returns every failure as an
// *apierr.Error.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/vietddude/kitchenline/internal/core/apierr"
	"github.com/vietddude/kitchenline/internal/core/domain"
	"github.com/vietddude/kitchenline/internal/infra/retry"
	"github.com/vietddude/kitchenline/internal/infra/transport"
	"github.com/vietddude/kitchenline/internal/metrics"
	"github.com/vietddude/kitchenline/internal/offline/cache"
	"github.com/vietddude/kitchenline/internal/offline/queue"
	"github.com/vietddude/kitchenline/internal/offline/session"
)

// Source tells the caller where a result came from.
type Source string

const (
	SourceNetwork Source = "network"
	SourceCache   Source = "cache"
	SourceQueued  Source = "queued"
)

// Result is a successful logical call. For queued writes Data is an
// optimistic placeholder and Action is the queued entry.
type Result struct {
	Data   json.RawMessage
	Source Source
	Status int
	Action *domain.PendingAction
}

// ConnectivityReader reports the last known connectivity state.
type ConnectivityReader interface {
	Current() domain.ConnectivityState
}

// Deps are the collaborators a Dispatcher composes.
type Deps struct {
	Transport    transport.Transport
	Connectivity ConnectivityReader
	Cache        *cache.Cache
	Queue        *queue.Queue
	Session      *session.Session
	// Retry is optional; one is built from Config.Retry when nil.
	Retry *retry.Handler
}

// Dispatcher is safe for concurrent use.
type Dispatcher struct {
	transport    transport.Transport
	connectivity ConnectivityReader
	cache        *cache.Cache
	queue        *queue.Queue
	session      *session.Session
	retry        *retry.Handler
	cfg          Config
	newID        func() string
	drains       singleflight.Group
	log          *slog.Logger
}

// New creates a Dispatcher.
func New(deps Deps, cfg Config) *Dispatcher {
	cfg = cfg.withDefaults()

	h := deps.Retry
	if h == nil {
		h = retry.NewHandler(cfg.Retry, retry.WithOnRetry(recordRetry))
	}

	return &Dispatcher{
		transport:    deps.Transport,
		connectivity: deps.Connectivity,
		cache:        deps.Cache,
		queue:        deps.Queue,
		session:      deps.Session,
		retry:        h,
		cfg:          cfg,
		newID:        uuid.NewString,
		log:          slog.Default(),
	}
}

func recordRetry(attempt int, delay time.Duration, err *apierr.Error) {
	metrics.RetriesTotal.WithLabelValues(err.Category.String()).Inc()
}

// Call performs one logical API operation. body may be nil.
func (d *Dispatcher) Call(
	ctx context.Context,
	method domain.Method,
	endpoint string,
	body json.RawMessage,
	opts ...CallOption,
) (*Result, error) {
	if len(body) > 0 && !json.Valid(body) {
		return nil, d.fail(method, apierr.New(apierr.CategoryUnknown, "request body is not valid JSON", nil))
	}
	o := d.options(opts)
	if !method.IsWrite() && o.cacheMaxAge > d.cfg.CacheRetention {
		return nil, d.fail(method, apierr.New(apierr.CategoryUnknown,
			fmt.Sprintf("cache max age %s exceeds retention %s", o.cacheMaxAge, d.cfg.CacheRetention), nil))
	}

	header, err := d.session.Headers(ctx)
	if err != nil {
		d.log.Warn("Failed to load session, calling without credentials", "error", err)
		header = http.Header{}
	}
	for k, vs := range o.header {
		if header.Get(k) == "" {
			header[k] = vs
		}
	}

	if !d.connectivity.Current().IsOnline() {
		return d.offline(ctx, method, endpoint, body, o, nil)
	}
	// A write must not overtake older queued writes.
	if method.IsWrite() && !d.flushQueue(ctx) {
		return d.offline(ctx, method, endpoint, body, o, nil)
	}

	resp, err := d.execute(ctx, method, endpoint, header, body, o)
	if err == nil {
		if !method.IsWrite() && len(resp.Body) > 0 {
			d.cache.Store(ctx, d.cache.KeyFor(method, endpoint), resp.Body)
		}
		metrics.CallsTotal.WithLabelValues(string(method), string(SourceNetwork)).Inc()
		return &Result{Data: resp.Body, Source: SourceNetwork, Status: resp.Status}, nil
	}

	apiErr := apierr.Classify(err)
	switch apiErr.Category {
	case apierr.CategoryAuth:
		d.session.Invalidate(ctx, apiErr.Message)
	case apierr.CategoryNetwork:
		d.log.Info("Network unreachable, falling back to offline path",
			"method", method,
			"endpoint", endpoint,
			"error", apiErr,
		)
		return d.offline(ctx, method, endpoint, body, o, apiErr)
	}
	return nil, d.fail(method, apiErr)
}

// offline serves a read from the cache or queues a write. cause is the
// network failure that led here, nil when the monitor already said offline.
func (d *Dispatcher) offline(
	ctx context.Context,
	method domain.Method,
	endpoint string,
	body json.RawMessage,
	o callOptions,
	cause *apierr.Error,
) (*Result, error) {
	if !method.IsWrite() {
		payload, ok := d.cache.Retrieve(ctx, d.cache.KeyFor(method, endpoint), o.cacheMaxAge)
		if ok {
			metrics.CallsTotal.WithLabelValues(string(method), string(SourceCache)).Inc()
			return &Result{Data: payload, Source: SourceCache}, nil
		}
		if cause == nil {
			cause = apierr.New(apierr.CategoryNetwork,
				"offline and no cached response for "+endpoint, apierr.ErrNetworkUnavailable)
		}
		return nil, d.fail(method, cause)
	}

	action, err := d.queue.Enqueue(ctx, endpoint, method, body)
	if err != nil {
		return nil, d.fail(method, apierr.New(apierr.CategoryUnknown, "failed to queue write", err))
	}
	metrics.CallsTotal.WithLabelValues(string(method), string(SourceQueued)).Inc()
	return &Result{
		Data:   optimistic(method, body, "local-"+d.newID()),
		Source: SourceQueued,
		Action: &action,
	}, nil
}

// execute runs the transport inside the retry loop, each attempt bounded by
// the call timeout.
func (d *Dispatcher) execute(
	ctx context.Context,
	method domain.Method,
	endpoint string,
	header http.Header,
	body json.RawMessage,
	o callOptions,
) (*transport.Response, error) {
	req := &transport.Request{
		Method: method,
		Path:   endpoint,
		Header: header,
		Body:   body,
	}
	h := d.retry.WithConfig(o.retry)
	return retry.Run(ctx, h, func(ctx context.Context, attempt int) (*transport.Response, error) {
		d.log.Debug("Calling API", "method", method, "endpoint", endpoint, "attempt", attempt)
		return d.attempt(ctx, req, o.timeout)
	})
}

type outcome struct {
	resp *transport.Response
	err  error
}

// attempt makes one transport call. When the deadline fires first the
// in-flight call is canceled and whatever it returns later is dropped.
func (d *Dispatcher) attempt(ctx context.Context, req *transport.Request, timeout time.Duration) (*transport.Response, error) {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		resp, err := d.transport.Do(actx, req)
		done <- outcome{resp: resp, err: err}
	}()

	select {
	case out := <-done:
		return out.resp, out.err
	case <-actx.Done():
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Path, actx.Err())
	}
}

func (d *Dispatcher) fail(method domain.Method, err *apierr.Error) *apierr.Error {
	metrics.CallErrorsTotal.WithLabelValues(string(method), err.Category.String()).Inc()
	return err
}

// flushQueue replays queued writes ahead of a new one and reports whether
// the queue is empty afterwards.
func (d *Dispatcher) flushQueue(ctx context.Context) bool {
	n, err := d.queue.Len(ctx)
	if err != nil {
		d.log.Warn("Failed to read pending queue", "error", err)
		return false
	}
	if n == 0 {
		return true
	}

	res, err := d.DrainPending(ctx)
	if err != nil {
		d.log.Info("Older writes still pending, queueing behind them",
			"remaining", len(res.Remaining),
			"error", err,
		)
		return false
	}
	n, err = d.queue.Len(ctx)
	return err == nil && n == 0
}

// DrainPending replays the pending queue through the online path. Callers
// arriving while a drain runs share its result. The shared drain is not
// canceled with any one caller; a caller whose ctx ends stops waiting.
// When offline nothing is replayed and the whole queue comes back as
// remaining with a Network error.
func (d *Dispatcher) DrainPending(ctx context.Context) (domain.DrainResult, error) {
	ch := d.drains.DoChan("drain", func() (any, error) {
		return d.drain(context.WithoutCancel(ctx))
	})

	select {
	case r := <-ch:
		if r.Shared {
			d.log.Debug("Joined running drain")
		}
		res, _ := r.Val.(domain.DrainResult)
		return res, r.Err
	case <-ctx.Done():
		return domain.DrainResult{Applied: []string{}}, apierr.Classify(ctx.Err())
	}
}

func (d *Dispatcher) drain(ctx context.Context) (domain.DrainResult, error) {
	if !d.connectivity.Current().IsOnline() {
		actions, err := d.queue.List(ctx)
		if err != nil {
			return domain.DrainResult{}, apierr.New(apierr.CategoryUnknown, "list pending actions", err)
		}
		if actions == nil {
			actions = []domain.PendingAction{}
		}
		return domain.DrainResult{Applied: []string{}, Remaining: actions},
			apierr.New(apierr.CategoryNetwork, "offline, drain skipped", apierr.ErrNetworkUnavailable)
	}

	o := d.options(nil)
	res, err := d.queue.Drain(ctx, func(ctx context.Context, action domain.PendingAction) error {
		header, err := d.session.Headers(ctx)
		if err != nil {
			return err
		}
		_, err = d.execute(ctx, action.Method, action.Endpoint, header, action.Body, o)
		return err
	})
	if errors.Is(err, queue.ErrDrainInProgress) {
		return res, err
	}
	if err != nil {
		apiErr := apierr.Classify(err)
		if apiErr.Category == apierr.CategoryAuth {
			d.session.Invalidate(ctx, apiErr.Message)
		}
		d.log.Warn("Drain halted",
			"applied", len(res.Applied),
			"remaining", len(res.Remaining),
			"category", apiErr.Category,
			"error", apiErr,
		)
		return res, apiErr
	}

	if len(res.Applied) > 0 {
		d.log.Info("Drained pending actions", "applied", len(res.Applied))
	}
	return res, nil
}

// Pending returns the queued writes, oldest first.
func (d *Dispatcher) Pending(ctx context.Context) ([]domain.PendingAction, error) {
	return d.queue.List(ctx)
}

// DiscardPending abandons every queued write.
func (d *Dispatcher) DiscardPending(ctx context.Context) error {
	return d.queue.Clear(ctx)
}

// Login stores credentials obtained out of band.
func (d *Dispatcher) Login(ctx context.Context, token, tenantID string) error {
	return d.session.SetCredentials(ctx, token, tenantID)
}

// Logout tears down all local state: cache, queue and credentials.
func (d *Dispatcher) Logout(ctx context.Context) error {
	var errs []error
	if err := d.cache.Clear(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := d.queue.Clear(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := d.session.Clear(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	d.log.Info("Logged out, local state cleared")
	return nil
}

// OnSessionInvalidated registers fn for "session invalidated" events, raised
// when the server rejects the stored credentials.
func (d *Dispatcher) OnSessionInvalidated(fn func(reason string)) (unsubscribe func()) {
	return d.session.OnInvalidated(fn)
}

// optimistic builds the placeholder returned for a queued write: the body
// object with "success": true, plus a local id for creates that lack one.
// Non-object bodies are wrapped under "data".
func optimistic(method domain.Method, body json.RawMessage, localID string) json.RawMessage {
	var obj map[string]json.RawMessage
	if len(body) > 0 && json.Unmarshal(body, &obj) == nil && obj != nil {
		obj["success"] = json.RawMessage("true")
		if _, ok := obj["id"]; !ok && method == domain.MethodPost {
			obj["id"], _ = json.Marshal(localID)
		}
		out, _ := json.Marshal(obj)
		return out
	}

	wrapped := map[string]any{"success": true}
	if len(body) > 0 {
		wrapped["data"] = body
	}
	if method == domain.MethodPost {
		wrapped["id"] = localID
	}
	out, _ := json.Marshal(wrapped)
	return out
}
