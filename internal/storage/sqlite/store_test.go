package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/louisbranch/narrative-engine/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "engine.db"))
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
	if _, err := Open("  "); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestPutGetDelete(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := store.Put(ctx, "engine.save.1", `{"gold":1}`); err != nil {
		t.Fatalf("put: %v", err)
	}
	// Overwrite replaces the value.
	if err := store.Put(ctx, "engine.save.1", `{"gold":2}`); err != nil {
		t.Fatalf("put overwrite: %v", err)
	}

	value, err := store.Get(ctx, "engine.save.1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if value != `{"gold":2}` {
		t.Errorf("value = %q, want overwritten payload", value)
	}

	if err := store.Delete(ctx, "engine.save.1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "engine.save.1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestPutRequiresKey(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	if err := store.Put(ctx, "  ", "v"); err == nil {
		t.Error("expected error for blank key")
	}
}

func TestKeysSorted(t *testing.T) {
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
	if len(keys) != 3 || keys[0] != "a" || keys[1] != "b" || keys[2] != "c" {
		t.Errorf("keys = %v", keys)
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.db")
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

func TestExtractUpMigration(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "up and down sections",
			content: "-- +migrate Up\nCREATE TABLE a(x);\n-- +migrate Down\nDROP TABLE a;",
			want:    "CREATE TABLE a(x);",
		},
		{
			name:    "no markers returns all",
			content: "CREATE TABLE a(x);",
			want:    "CREATE TABLE a(x);",
		},
		{
			name:    "up only",
			content: "-- +migrate Up\nCREATE TABLE a(x);",
			want:    "CREATE TABLE a(x);",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractUpMigration(tt.content); got != tt.want {
				t.Errorf("extractUpMigration() = %q, want %q", got, tt.want)
			}
		})
	}
}
