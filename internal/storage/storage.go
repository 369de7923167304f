// Package storage defines the persistence boundary for engine save data.
//
// Adapters store opaque string payloads under structured keys scoped by
// engine name (save slots, the autosave, settings, achievements). Backends
// are pluggable; the engine depends only on this interface.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// Adapter persists engine records.
type Adapter interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// KeyLister is an optional adapter capability for efficient enumeration.
// Callers without it fall back to probing known key patterns.
type KeyLister interface {
	Keys(ctx context.Context) ([]string, error)
}
