// Package storage is the key-value layer under the trade mirror.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist or has expired.
var ErrNotFound = errors.New("key not found")

// DB is a key-value store whose writes may expire. A ttl of zero keeps the
// key until it is deleted.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte, ttl time.Duration) error
	Delete(key []byte) error
	// ForEach visits live keys with the given prefix in key order. The
	// callback receives copies. A non-nil error from fn stops iteration.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	NewBatch() Batch
	Close() error
}

// Batch buffers writes and applies them together on Commit. A batch that
// is abandoned must be cancelled; Cancel after Commit is a no-op, so
// callers can defer it.
type Batch interface {
	Put(key, value []byte, ttl time.Duration) error
	Delete(key []byte) error
	Commit() error
	Cancel()
}

// GetJSON decodes the value stored at key into v.
func GetJSON(db DB, key []byte, v any) error {
	data, err := db.Get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// PutJSON stores v at key as JSON.
func PutJSON(db DB, key []byte, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return db.Put(key, data, ttl)
}
