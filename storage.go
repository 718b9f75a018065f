package ledb

import "errors"

// ErrBucketNotFound is returned by storageTx.DeleteBucket when the named
// collection or index bucket has already been dropped (e.g. concurrent
// DropCollection/DropIndex calls racing each other).
var ErrBucketNotFound = errors.New("bucket not found")

// storage is the ordered key/value engine LEDB is built on. Every Storage
// (bolt-backed or in-memory) keeps exactly one "catalog" bucket plus one
// top-level bucket per collection; each collection's bucket holds a nested
// "data" bucket (documents keyed by big-endian primary) and one nested
// "idx:<path>" bucket per index (catalog.go, collection.go).
type storage interface {
	// BeginTx starts a new transaction against the whole database.
	BeginTx(writable bool) (storageTx, error)
	// Close releases the engine. Collections and Storage call this exactly
	// once, via Storage.Close.
	Close() error
}

// storageTx is one catalog-wide transaction: a collection's data bucket,
// its index buckets, and the shared catalog bucket are all read or written
// through the same storageTx so a Collection op commits or rolls back as a
// unit (spec §8 atomicity).
type storageTx interface {
	// Writable returns true if this is a writable transaction.
	Writable() bool

	// Bucket looks up a bucket by collection name and sub-bucket ("" for
	// the collection's own top-level bucket, "data" or "idx:<path>" for a
	// nested one). Returns nil if it doesn't exist yet.
	Bucket(name, sub string) storageBucket

	// CreateBucket creates a bucket if it doesn't exist, creating the
	// collection's top-level bucket first when sub is non-empty.
	CreateBucket(name, sub string) (storageBucket, error)

	// DeleteBucket drops a nested bucket (a collection's "data" bucket or
	// one index's "idx:<path>" bucket); sub must be non-empty.
	DeleteBucket(name, sub string) error

	// Commit commits every bucket mutation made under this transaction.
	Commit() error

	// Rollback aborts the transaction, discarding any mutations. Safe to
	// call after Commit or repeatedly (read transactions defer it even on
	// the success path; Collection.withWrite calls it only on error).
	Rollback() error

	// Size returns the database's on-disk size in bytes (0 for the
	// in-memory backend, which tracks no such thing).
	Size() int64
}

// storageBucket is one bucket: a collection's document store or one of its
// index stores.
type storageBucket interface {
	// Get retrieves a document or index row by key. Returns nil if not found.
	Get(key []byte) []byte

	// Put stores a document or index row.
	Put(key, value []byte) error

	// Delete removes a document or index row.
	Delete(key []byte) error

	// Cursor returns a cursor for scanning the bucket in key order, used
	// for catalog replay, Find's index probes, and Dump/Purge full scans.
	Cursor() storageCursor

	// Stats reports document/entry counts and allocation sizes, surfaced
	// by Storage.Stats.
	Stats() bucketStats

	// KeyCount returns the number of keys in the bucket (best effort).
	KeyCount() int
}

type bucketStats struct {
	KeyN        int
	LeafInuse   int64
	LeafAlloc   int64
	BranchAlloc int64
}

func (s bucketStats) TotalAlloc() int64 { return s.BranchAlloc + s.LeafAlloc }

// storageCursor iterates over a bucket's keys in sorted order: primaries
// for a data bucket, encoded index keys for an index bucket.
type storageCursor interface {
	// First moves to the first key-value pair.
	First() (key, value []byte)

	// Last moves to the last key-value pair.
	Last() (key, value []byte)

	// Seek moves to the first key >= seek, used by Index.probeRange for
	// Lt/Le/Gt/Ge/Between filters.
	Seek(seek []byte) (key, value []byte)

	// SeekLast moves to the last key still within prefix. Index.probeSet
	// does not use it: it bounds a Duplicate index's composite-key run with
	// Seek and a prefix check.
	SeekLast(prefix []byte) (key, value []byte)

	// Next moves to the next key-value pair.
	Next() (key, value []byte)

	// Prev moves to the previous key-value pair.
	Prev() (key, value []byte)

	// Delete deletes the current key-value pair.
	Delete() error
}
