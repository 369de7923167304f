// Package bbolt provides a BoltDB-backed storage adapter.
package bbolt

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/narrative-engine/internal/storage"
	"go.etcd.io/bbolt"
)

const recordBucket = "record"

// Store provides a BoltDB-backed record store.
type Store struct {
	db *bbolt.DB
}

// Open opens a BoltDB-backed store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get fetches a record by key.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s == nil || s.db == nil {
		return "", fmt.Errorf("storage is not configured")
	}

	var value string
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(recordBucket))
		if bucket == nil {
			return fmt.Errorf("record bucket is missing")
		}
		payload := bucket.Get([]byte(key))
		if payload == nil {
			return storage.ErrNotFound
		}
		value = string(payload)
		return nil
	})
	if err != nil {
		return "", err
	}
	return value, nil
}

// Put persists a record.
func (s *Store) Put(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("record key is required")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(recordBucket))
		if bucket == nil {
			return fmt.Errorf("record bucket is missing")
		}
		return bucket.Put([]byte(key), []byte(value))
	})
}

// Delete removes a record. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(recordBucket))
		if bucket == nil {
			return fmt.Errorf("record bucket is missing")
		}
		return bucket.Delete([]byte(key))
	})
}

// Keys lists every stored key in bucket order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	var keys []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(recordBucket))
		if bucket == nil {
			return fmt.Errorf("record bucket is missing")
		}
		return bucket.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(recordBucket))
		if err != nil {
			return fmt.Errorf("create record bucket: %w", err)
		}
		return nil
	})
}
