// Package connectivity tracks whether the API is reachable and tells
// subscribers when that changes.
package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vietddude/kitchenline/internal/core/domain"
	"github.com/vietddude/kitchenline/internal/metrics"
)

// Signal answers "am I online" when asked.
type Signal interface {
	Online(ctx context.Context) bool
}

// Notifier is implemented by signals that push changes on their own.
type Notifier interface {
	Watch(fn func(online bool)) (stop func())
}

type subscriber struct {
	id uint64
	fn func(domain.ConnectivityState)
}

// Monitor holds the current connectivity state. Reads never block and never
// probe; Refresh probes the signal and notifies subscribers on change.
type Monitor struct {
	signal Signal
	state  atomic.Int32
	log    *slog.Logger

	mu     sync.Mutex
	subs   []subscriber
	nextID uint64
}

type Option func(*Monitor)

// WithInitialState sets the state reported before the first probe.
func WithInitialState(s domain.ConnectivityState) Option {
	return func(m *Monitor) { m.state.Store(int32(s)) }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.log = l }
}

// NewMonitor creates a monitor that starts Online unless told otherwise.
func NewMonitor(signal Signal, opts ...Option) *Monitor {
	m := &Monitor{
		signal: signal,
		log:    slog.Default(),
	}
	m.state.Store(int32(domain.StateOnline))
	for _, opt := range opts {
		opt(m)
	}
	metrics.ConnectivityOnline.Set(boolGauge(m.Current().IsOnline()))
	return m
}

// Current returns the last known state.
func (m *Monitor) Current() domain.ConnectivityState {
	return domain.ConnectivityState(m.state.Load())
}

// Refresh probes the signal and records the result. Concurrent calls are
// allowed; the last probe to finish wins.
func (m *Monitor) Refresh(ctx context.Context) domain.ConnectivityState {
	return m.set(m.signal.Online(ctx))
}

func (m *Monitor) set(online bool) domain.ConnectivityState {
	next := domain.StateOffline
	if online {
		next = domain.StateOnline
	}

	prev := domain.ConnectivityState(m.state.Swap(int32(next)))
	if prev == next {
		return next
	}

	m.log.Info("Connectivity changed", "from", prev, "to", next)
	metrics.ConnectivityOnline.Set(boolGauge(online))
	metrics.ConnectivityTransitions.WithLabelValues(next.String()).Inc()
	m.notify(next)
	return next
}

// Subscribe registers fn for state changes. The returned func removes it.
func (m *Monitor) Subscribe(fn func(domain.ConnectivityState)) (unsubscribe func()) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.subs = append(m.subs, subscriber{id: id, fn: fn})
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, s := range m.subs {
				if s.id == id {
					m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// notify calls subscribers outside the lock so they may subscribe, unsubscribe
// or call Current without deadlocking.
func (m *Monitor) notify(state domain.ConnectivityState) {
	m.mu.Lock()
	subs := make([]subscriber, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	for _, s := range subs {
		s.fn(state)
	}
}

// Start runs the poll loop until ctx is done. Signals that implement Notifier
// also update the state as soon as they push.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) {
	if n, ok := m.signal.(Notifier); ok {
		stop := n.Watch(func(online bool) { m.set(online) })
		defer stop()
	}

	m.Refresh(ctx)
	if interval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Refresh(ctx)
		}
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
