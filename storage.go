package viewdb

import "errors"

// ErrBucketNotFound is returned by storageTx.DeleteBucket when the named
// section doesn't exist.
var ErrBucketNotFound = errors.New("bucket not found")

// viewSection names one of the fixed storage sections a view occupies
// within its own top-level bucket: its persisted viewState record lives at
// sectionState, its queryable rows at sectionRows, and its per-document
// emitted-keys bookkeeping at sectionDocKeys.
type viewSection string

const (
	sectionState   viewSection = ""
	sectionRows    viewSection = "rows"
	sectionDocKeys viewSection = "dockeys"
)

// storage is the pluggable key-value backend a View's sections are stored
// on (Bolt by default, in-memory for tests).
type storage interface {
	// BeginTx starts a new transaction.
	BeginTx(writable bool) (storageTx, error)
	// Close closes the storage.
	Close() error
}

// storageTx represents a storage transaction spanning every open View's
// sections.
type storageTx interface {
	// Writable returns true if this is a writable transaction.
	Writable() bool

	// Bucket returns the section of view's storage named by sec, or nil if
	// it hasn't been created yet.
	Bucket(view string, sec viewSection) storageBucket

	// CreateBucket returns the section of view's storage named by sec,
	// creating it (and view's top-level bucket, if sec is not
	// sectionState) if it doesn't already exist.
	CreateBucket(view string, sec viewSection) (storageBucket, error)

	// DeleteBucket removes one section of view's storage; sec must not be
	// sectionState.
	DeleteBucket(view string, sec viewSection) error

	// Commit commits the transaction.
	Commit() error

	// Rollback aborts the transaction. It should be safe to call multiple times.
	Rollback() error

	// Size returns the database size in bytes (0 if unknown / not applicable).
	Size() int64
}

// storageBucket represents one section's sorted key-value collection.
type storageBucket interface {
	// Get retrieves a value by key. Returns nil if not found.
	Get(key []byte) []byte

	// Put stores a key-value pair.
	Put(key, value []byte) error

	// Delete removes a key.
	Delete(key []byte) error

	// Cursor returns a cursor for iteration.
	Cursor() storageCursor
}

// storageCursor iterates over a sorted bucket.
type storageCursor interface {
	// First moves to the first key-value pair.
	First() (key, value []byte)

	// Last moves to the last key-value pair.
	Last() (key, value []byte)

	// Seek moves to the first key >= seek.
	Seek(seek []byte) (key, value []byte)

	// SeekLast moves to the last key strictly before the successor of the given prefix/boundary.
	// This is commonly implemented as: Seek(inc(prefix)) then Prev().
	SeekLast(prefix []byte) (key, value []byte)

	// Next moves to the next key-value pair.
	Next() (key, value []byte)

	// Prev moves to the previous key-value pair.
	Prev() (key, value []byte)

	// Delete deletes the current key-value pair.
	Delete() error
}
