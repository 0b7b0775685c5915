// Package session persists the auth token and tenant id, attaches them to
// outgoing requests and announces when the server rejects them.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/vietddude/kitchenline/internal/core/domain"
	"github.com/vietddude/kitchenline/internal/infra/storage"
)

const (
	HeaderAuthorization = "Authorization"
	HeaderTenantID      = "X-Tenant-ID"
)

type listener struct {
	id uint64
	fn func(reason string)
}

// Session is safe for concurrent use.
type Session struct {
	backend storage.Backend
	log     *slog.Logger

	mu        sync.Mutex
	listeners []listener
	nextID    uint64
}

func New(backend storage.Backend) *Session {
	return &Session{
		backend: backend,
		log:     slog.Default(),
	}
}

// Credentials returns the stored token and tenant id; either may be empty.
func (s *Session) Credentials(ctx context.Context) (token, tenantID string, err error) {
	if token, err = s.get(ctx, domain.KeyAuthToken); err != nil {
		return "", "", err
	}
	if tenantID, err = s.get(ctx, domain.KeyTenantID); err != nil {
		return "", "", err
	}
	return token, tenantID, nil
}

func (s *Session) get(ctx context.Context, key string) (string, error) {
	v, err := s.backend.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return v, nil
}

// Headers returns the auth headers for an outgoing request.
func (s *Session) Headers(ctx context.Context) (http.Header, error) {
	token, tenantID, err := s.Credentials(ctx)
	if err != nil {
		return nil, err
	}
	h := http.Header{}
	if token != "" {
		h.Set(HeaderAuthorization, "Bearer "+token)
	}
	if tenantID != "" {
		h.Set(HeaderTenantID, tenantID)
	}
	return h, nil
}

// SetCredentials stores a token and tenant id obtained elsewhere.
// An empty tenantID leaves the stored one untouched.
func (s *Session) SetCredentials(ctx context.Context, token, tenantID string) error {
	if token == "" {
		return errors.New("token is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Set(ctx, domain.KeyAuthToken, token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	if tenantID != "" {
		if err := s.backend.Set(ctx, domain.KeyTenantID, tenantID); err != nil {
			return fmt.Errorf("store tenant id: %w", err)
		}
	}
	return nil
}

// Clear removes the stored credentials without notifying listeners.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearLocked(ctx)
}

func (s *Session) clearLocked(ctx context.Context) error {
	if err := s.backend.RemoveMany(ctx, []string{domain.KeyAuthToken, domain.KeyTenantID}); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

// Invalidate clears the credentials after the server rejected them and tells
// listeners. Listeners are only told when a token was actually stored, so
// concurrent rejections of the same token publish once. It reports whether it
// published.
func (s *Session) Invalidate(ctx context.Context, reason string) bool {
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	token, err := s.get(ctx, domain.KeyAuthToken)
	if err != nil {
		s.log.Warn("Failed to read token during invalidation", "error", err)
	}
	if token == "" && err == nil {
		s.mu.Unlock()
		return false
	}
	if err := s.clearLocked(ctx); err != nil {
		s.log.Error("Failed to clear credentials", "error", err)
	}
	listeners := make([]listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	s.log.Warn("Session invalidated", "reason", reason)
	for _, l := range listeners {
		l.fn(reason)
	}
	return true
}

// OnInvalidated registers fn for invalidation events. The returned func
// removes it.
func (s *Session) OnInvalidated(fn func(reason string)) (unsubscribe func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, l := range s.listeners {
				if l.id == id {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}
