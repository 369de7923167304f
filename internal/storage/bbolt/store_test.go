package bbolt

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/louisbranch/narrative-engine/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "engine.bolt"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestPutGetDelete(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := store.Put(ctx, "engine.autosave", `{"cursor":3}`); err != nil {
		t.Fatalf("put: %v", err)
	}
	value, err := store.Get(ctx, "engine.autosave")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if value != `{"cursor":3}` {
		t.Errorf("value = %q", value)
	}

	if err := store.Delete(ctx, "engine.autosave"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "engine.autosave"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestKeys(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	for _, key := range []string{"b", "a", "c"} {
		if err := store.Put(ctx, key, "v"); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	keys, err := store.Keys(ctx)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	// Bolt iterates keys in byte order.
	if len(keys) != 3 || keys[0] != "a" || keys[1] != "b" || keys[2] != "c" {
		t.Errorf("keys = %v", keys)
	}
}

func TestValuesSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.bolt")
	first, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := first.Put(context.Background(), "k", "v"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()

	value, err := second.Get(context.Background(), "k")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if value != "v" {
		t.Errorf("value = %q, want v", value)
	}
}
