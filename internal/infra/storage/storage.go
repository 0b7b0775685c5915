// Package storage defines the durable key/value backend shared by the offline
// cache, the pending-action queue and the session store.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when the key has no value.
	ErrNotFound = errors.New("key not found")
)

// Backend is a durable key -> string store.
type Backend interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// RemoveMany deletes every listed key.
	RemoveMany(ctx context.Context, keys []string) error

	// Close releases the underlying connection.
	Close() error
}

// Pinger is implemented by backends that can report their own reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks b if it supports it and reports nil otherwise.
func Ping(ctx context.Context, b Backend) error {
	if p, ok := b.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
