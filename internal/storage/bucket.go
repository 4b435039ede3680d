package storage

import "time"

// Bucket is a named keyspace inside a DB. Keys are stored as
// "<name>/<key>" and callers only ever see the part after the slash.
type Bucket struct {
	db     DB
	prefix []byte
}

// NewBucket returns the bucket called name in db.
func NewBucket(db DB, name string) *Bucket {
	return &Bucket{db: db, prefix: []byte(name + "/")}
}

// Name returns the bucket name.
func (b *Bucket) Name() string {
	return string(b.prefix[:len(b.prefix)-1])
}

func (b *Bucket) key(k []byte) []byte {
	return append(b.prefix[:len(b.prefix):len(b.prefix)], k...)
}

// Get retrieves a value by key.
func (b *Bucket) Get(key []byte) ([]byte, error) {
	return b.db.Get(b.key(key))
}

// Put stores a value for ttl (zero for no expiry).
func (b *Bucket) Put(key, value []byte, ttl time.Duration) error {
	return b.db.Put(b.key(key), value, ttl)
}

// Delete removes a key.
func (b *Bucket) Delete(key []byte) error {
	return b.db.Delete(b.key(key))
}

// ForEach visits the bucket's keys that start with prefix.
func (b *Bucket) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	n := len(b.prefix)
	return b.db.ForEach(b.key(prefix), func(key, value []byte) error {
		return fn(key[n:], value)
	})
}

// NewBatch returns a batch whose keys land in the bucket.
func (b *Bucket) NewBatch() Batch {
	return &bucketBatch{inner: b.db.NewBatch(), bucket: b}
}

// Count returns the number of live keys in the bucket.
func (b *Bucket) Count() (int, error) {
	n := 0
	err := b.db.ForEach(b.prefix, func(_, _ []byte) error {
		n++
		return nil
	})
	return n, err
}

// Clear deletes every key in the bucket in one batch.
func (b *Bucket) Clear() error {
	batch := b.db.NewBatch()
	defer batch.Cancel()
	err := b.db.ForEach(b.prefix, func(key, _ []byte) error {
		return batch.Delete(key)
	})
	if err != nil {
		return err
	}
	return batch.Commit()
}

// Close is a no-op; the bucket does not own the DB.
func (b *Bucket) Close() error {
	return nil
}

type bucketBatch struct {
	inner  Batch
	bucket *Bucket
}

func (bb *bucketBatch) Put(key, value []byte, ttl time.Duration) error {
	return bb.inner.Put(bb.bucket.key(key), value, ttl)
}

func (bb *bucketBatch) Delete(key []byte) error {
	return bb.inner.Delete(bb.bucket.key(key))
}

func (bb *bucketBatch) Commit() error {
	return bb.inner.Commit()
}

func (bb *bucketBatch) Cancel() {
	bb.inner.Cancel()
}
