// Package queue is the durable FIFO of writes that have not been confirmed by
// the server. The whole queue is persisted as one JSON array under
// domain.KeyPendingActions.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/kitchenline/internal/core/domain"
	"github.com/vietddude/kitchenline/internal/infra/storage"
	"github.com/vietddude/kitchenline/internal/metrics"
)

// ErrDrainInProgress is returned by Drain while another drain is running.
var ErrDrainInProgress = errors.New("drain already in progress")

// ExecFunc replays one action against the server.
type ExecFunc func(ctx context.Context, action domain.PendingAction) error

// Queue serialises every mutation under mu. draining guards against two
// concurrent drains; it is never held together with a backend call that
// blocks enqueues.
type Queue struct {
	backend storage.Backend
	now     func() time.Time
	newID   func() string
	log     *slog.Logger

	mu       sync.Mutex
	draining sync.Mutex
}

type Option func(*Queue)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithIDGenerator replaces the uuid generator.
func WithIDGenerator(fn func() string) Option {
	return func(q *Queue) { q.newID = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.log = l }
}

func New(backend storage.Backend, opts ...Option) *Queue {
	q := &Queue{
		backend: backend,
		now:     time.Now,
		newID:   uuid.NewString,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends a new action and persists the queue. The write is not
// abandoned if ctx is canceled.
func (q *Queue) Enqueue(
	ctx context.Context,
	endpoint string,
	method domain.Method,
	body json.RawMessage,
) (domain.PendingAction, error) {
	if !method.IsWrite() {
		return domain.PendingAction{}, fmt.Errorf("cannot queue %s %s: not a write", method, endpoint)
	}
	ctx = context.WithoutCancel(ctx)

	action := domain.PendingAction{
		ID:         q.newID(),
		Endpoint:   endpoint,
		Method:     method,
		Body:       body,
		EnqueuedAt: q.now(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	actions, err := q.load(ctx)
	if err != nil {
		return domain.PendingAction{}, err
	}
	actions = append(actions, action)
	if err := q.save(ctx, actions); err != nil {
		return domain.PendingAction{}, err
	}

	q.log.Info("Queued write for replay",
		"id", action.ID,
		"method", action.Method,
		"endpoint", action.Endpoint,
		"depth", len(actions),
	)
	return action, nil
}

// List returns a snapshot, oldest first.
func (q *Queue) List(ctx context.Context) ([]domain.PendingAction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(ctx)
}

// Len returns the number of pending actions.
func (q *Queue) Len(ctx context.Context) (int, error) {
	actions, err := q.List(ctx)
	return len(actions), err
}

// Remove deletes one action. Unknown ids are ignored.
func (q *Queue) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.removeLocked(ctx, id)
}

func (q *Queue) removeLocked(ctx context.Context, id string) error {
	actions, err := q.load(ctx)
	if err != nil {
		return err
	}
	i := slices.IndexFunc(actions, func(a domain.PendingAction) bool { return a.ID == id })
	if i < 0 {
		return nil
	}
	return q.save(ctx, slices.Delete(actions, i, i+1))
}

// Clear discards every pending action.
func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.backend.Remove(ctx, domain.KeyPendingActions); err != nil {
		return fmt.Errorf("clear pending actions: %w", err)
	}
	metrics.QueueDepth.Set(0)
	return nil
}

// Drain replays actions oldest first. Each applied action is removed before
// the next one runs. The first failure stops the drain and leaves that action
// and every later one in place; the failure is returned alongside the result.
// Actions enqueued during the drain are replayed by it too.
func (q *Queue) Drain(ctx context.Context, exec ExecFunc) (domain.DrainResult, error) {
	if !q.draining.TryLock() {
		return domain.DrainResult{}, ErrDrainInProgress
	}
	defer q.draining.Unlock()

	result := domain.DrainResult{Applied: []string{}}
	for {
		if err := ctx.Err(); err != nil {
			return q.finish(ctx, result, err)
		}

		head, ok, err := q.head(ctx)
		if err != nil {
			return q.finish(ctx, result, err)
		}
		if !ok {
			return q.finish(ctx, result, nil)
		}

		if err := exec(ctx, head); err != nil {
			metrics.DrainActions.WithLabelValues("failed").Inc()
			q.log.Warn("Replay halted",
				"id", head.ID,
				"method", head.Method,
				"endpoint", head.Endpoint,
				"error", err,
			)
			return q.finish(ctx, result, err)
		}

		if err := q.Remove(context.WithoutCancel(ctx), head.ID); err != nil {
			return q.finish(ctx, result, fmt.Errorf("remove applied action %s: %w", head.ID, err))
		}
		metrics.DrainActions.WithLabelValues("applied").Inc()
		result.Applied = append(result.Applied, head.ID)
	}
}

func (q *Queue) finish(ctx context.Context, result domain.DrainResult, err error) (domain.DrainResult, error) {
	remaining, listErr := q.List(context.WithoutCancel(ctx))
	if listErr != nil && err == nil {
		err = listErr
	}
	if remaining == nil {
		remaining = []domain.PendingAction{}
	}
	result.Remaining = remaining
	return result, err
}

func (q *Queue) head(ctx context.Context) (domain.PendingAction, bool, error) {
	actions, err := q.List(ctx)
	if err != nil || len(actions) == 0 {
		return domain.PendingAction{}, false, err
	}
	return actions[0], true, nil
}

func (q *Queue) load(ctx context.Context) ([]domain.PendingAction, error) {
	raw, err := q.backend.Get(ctx, domain.KeyPendingActions)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load pending actions: %w", err)
	}
	var actions []domain.PendingAction
	if err := json.Unmarshal([]byte(raw), &actions); err != nil {
		return nil, fmt.Errorf("decode pending actions: %w", err)
	}
	return actions, nil
}

func (q *Queue) save(ctx context.Context, actions []domain.PendingAction) error {
	if len(actions) == 0 {
		if err := q.backend.Remove(ctx, domain.KeyPendingActions); err != nil {
			return fmt.Errorf("save pending actions: %w", err)
		}
		metrics.QueueDepth.Set(0)
		return nil
	}
	data, err := json.Marshal(actions)
	if err != nil {
		return fmt.Errorf("encode pending actions: %w", err)
	}
	if err := q.backend.Set(ctx, domain.KeyPendingActions, string(data)); err != nil {
		return fmt.Errorf("save pending actions: %w", err)
	}
	metrics.QueueDepth.Set(float64(len(actions)))
	return nil
}
