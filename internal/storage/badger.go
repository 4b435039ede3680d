package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerDB implements DB using Badger. TTLs map onto badger's native
// entry expiry.
type BadgerDB struct {
	db *badger.DB
}

// NewBadger opens (or creates) a Badger database at path.
func NewBadger(path string) (*BadgerDB, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // badger's own logger is too chatty for a daemon log.

	db, err := badger.Open(opts)
	if err != nil {
		msg := err.Error()
		if strings.Contains(msg, "Cannot acquire directory lock") ||
			strings.Contains(msg, "resource temporarily unavailable") {
			return nil, fmt.Errorf("mirror at %s is locked (is another klingpayd running?): %w", path, err)
		}
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return &BadgerDB{db: db}, nil
}

// NewBadgerInMemory opens a Badger database that lives only in memory.
func NewBadgerInMemory() (*BadgerDB, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory badger: %w", err)
	}
	return &BadgerDB{db: db}, nil
}

func newEntry(key, value []byte, ttl time.Duration) *badger.Entry {
	e := badger.NewEntry(append([]byte(nil), key...), append([]byte{}, value...))
	if ttl > 0 {
		e = e.WithTTL(ttl)
	}
	return e
}

// Get retrieves a value by key.
func (b *BadgerDB) Get(key []byte) ([]byte, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger get: %w", err)
	}
	return val, nil
}

// Put stores a value for ttl.
func (b *BadgerDB) Put(key, value []byte, ttl time.Duration) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(newEntry(key, value, ttl))
	})
	if err != nil {
		return fmt.Errorf("badger put: %w", err)
	}
	return nil
}

// Delete removes a key.
func (b *BadgerDB) Delete(key []byte) error {
	if err := b.db.Update(func(txn *badger.Txn) error { return txn.Delete(key) }); err != nil {
		return fmt.Errorf("badger delete: %w", err)
	}
	return nil
}

// ForEach visits live keys with prefix in key order. Badger skips expired
// entries itself.
func (b *BadgerDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(item.KeyCopy(nil), val); err != nil {
				return err
			}
		}
		return nil
	})
}

// NewBatch returns a batch backed by a badger WriteBatch.
func (b *BadgerDB) NewBatch() Batch {
	return &badgerBatch{wb: b.db.NewWriteBatch()}
}

// Compact runs one value-log GC pass. Expired mirror records only free
// disk space once their value-log file is rewritten.
func (b *BadgerDB) Compact() error {
	err := b.db.RunValueLogGC(0.5)
	if err == nil || errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return fmt.Errorf("badger gc: %w", err)
}

// Close closes the database.
func (b *BadgerDB) Close() error {
	return b.db.Close()
}

type badgerBatch struct {
	wb   *badger.WriteBatch
	done bool
}

func (b *badgerBatch) Put(key, value []byte, ttl time.Duration) error {
	return b.wb.SetEntry(newEntry(key, value, ttl))
}

func (b *badgerBatch) Delete(key []byte) error {
	return b.wb.Delete(append([]byte(nil), key...))
}

func (b *badgerBatch) Commit() error {
	if b.done {
		return errors.New("badger batch: already committed or cancelled")
	}
	b.done = true
	if err := b.wb.Flush(); err != nil {
		return fmt.Errorf("badger batch: %w", err)
	}
	return nil
}

// Cancel releases the write batch without applying it.
func (b *badgerBatch) Cancel() {
	if b.done {
		return
	}
	b.done = true
	b.wb.Cancel()
}
