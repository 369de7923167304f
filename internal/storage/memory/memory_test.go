package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/louisbranch/narrative-engine/internal/storage"
)

func TestPutGetDelete(t *testing.T) {
	ctx := context.Background()
	store := New()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := store.Put(ctx, "engine.save.1", `{"gold":1}`); err != nil {
		t.Fatalf("put: %v", err)
	}
	value, err := store.Get(ctx, "engine.save.1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if value != `{"gold":1}` {
		t.Errorf("value = %q", value)
	}

	if err := store.Delete(ctx, "engine.save.1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "engine.save.1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, "engine.save.1"); err != nil {
		t.Errorf("delete of missing key should not fail: %v", err)
	}
}

func TestKeysSorted(t *testing.T) {
	ctx := context.Background()
	store := New()
	for _, key := range []string{"b", "a", "c"} {
		if err := store.Put(ctx, key, "v"); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	keys, err := store.Keys(ctx)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 3 || keys[0] != "a" || keys[1] != "b" || keys[2] != "c" {
		t.Errorf("keys = %v", keys)
	}
}

func TestContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := New()

	if err := store.Put(ctx, "k", "v"); err == nil {
		t.Error("expected error from cancelled context")
	}
	if _, err := store.Get(ctx, "k"); err == nil {
		t.Error("expected error from cancelled context")
	}
}
