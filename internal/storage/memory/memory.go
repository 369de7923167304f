// Package memory provides an in-memory storage adapter, used as the
// default backend and throughout the tests.
package memory

import (
	"context"
	"sort"

	"github.com/louisbranch/narrative-engine/internal/storage"
)

// Store keeps records in a map.
type Store struct {
	records map[string]string
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{records: make(map[string]string)}
}

// Get fetches a record by key.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	value, ok := s.records[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return value, nil
}

// Put persists a record.
func (s *Store) Put(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.records[key] = value
	return nil
}

// Delete removes a record. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	delete(s.records, key)
	return nil
}

// Keys lists every stored key in sorted order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(s.records))
	for key := range s.records {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}
