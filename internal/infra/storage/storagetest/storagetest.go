// Package storagetest holds a behaviour suite every storage.Backend must pass.
package storagetest

import (
	"context"
	"errors"
	"testing"

	"github.com/vietddude/kitchenline/internal/infra/storage"
)

// Run exercises b against the storage.Backend contract. b must start empty.
func Run(t *testing.T, b storage.Backend) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		_, err := b.Get(ctx, "missing")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("SetOverwrites", func(t *testing.T) {
		if err := b.Set(ctx, "auth_token", "first"); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if err := b.Set(ctx, "auth_token", "second"); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		got, err := b.Get(ctx, "auth_token")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got != "second" {
			t.Errorf("expected %q, got %q", "second", got)
		}
	})

	t.Run("Remove", func(t *testing.T) {
		if err := b.Set(ctx, "tenant_id", "t-1"); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if err := b.Remove(ctx, "tenant_id"); err != nil {
			t.Fatalf("Remove failed: %v", err)
		}
		if _, err := b.Get(ctx, "tenant_id"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound after Remove, got %v", err)
		}
		// absent key
		if err := b.Remove(ctx, "tenant_id"); err != nil {
			t.Errorf("Remove of absent key failed: %v", err)
		}
	})

	t.Run("RemoveMany", func(t *testing.T) {
		keys := []string{"cache:menu", "cache:orders", "cache:tenant"}
		for _, k := range keys {
			if err := b.Set(ctx, k, `{"ok":true}`); err != nil {
				t.Fatalf("Set %s failed: %v", k, err)
			}
		}
		if err := b.Set(ctx, "pending_actions", "[]"); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		if err := b.RemoveMany(ctx, keys); err != nil {
			t.Fatalf("RemoveMany failed: %v", err)
		}
		for _, k := range keys {
			if _, err := b.Get(ctx, k); !errors.Is(err, storage.ErrNotFound) {
				t.Errorf("expected %s removed, got %v", k, err)
			}
		}
		if _, err := b.Get(ctx, "pending_actions"); err != nil {
			t.Errorf("unlisted key should survive RemoveMany: %v", err)
		}
		if err := b.RemoveMany(ctx, nil); err != nil {
			t.Errorf("RemoveMany(nil) failed: %v", err)
		}
	})
}
