package viewdb

import (
	"bytes"
	"os"
	"unsafe"

	"go.etcd.io/bbolt"
)

// boltStorage is the default on-disk backend: every view gets its own
// top-level bucket named after it, holding sectionState/sectionRows/
// sectionDocKeys as either a direct key (sectionState) or a nested bucket
// (sectionRows/sectionDocKeys).
type boltStorage struct {
	path string
	bdb  *bbolt.DB
}

func newBoltStorage(path string, bdb *bbolt.DB) storage {
	return &boltStorage{path: path, bdb: bdb}
}

func (s *boltStorage) BeginTx(writable bool) (storageTx, error) {
	btx, err := s.bdb.Begin(writable)
	if err != nil {
		return nil, err
	}
	return &boltStorageTx{btx: btx}, nil
}

func (s *boltStorage) Close() error {
	return s.bdb.Close()
}

// compact rewrites the storage file into a fresh one via bbolt's own
// Compact helper, replacing the live *bbolt.DB on success.
func (s *boltStorage) compact() error {
	tmpPath := s.path + ".compact"
	dst, err := bbolt.Open(tmpPath, 0600, nil)
	if err != nil {
		return wrapErr(KindIOError, "boltStorage.compact", err, "opening compaction target")
	}
	if err := bbolt.Compact(dst, s.bdb, 0); err != nil {
		_ = dst.Close()
		return wrapErr(KindIOError, "boltStorage.compact", err, "compacting")
	}
	if err := dst.Close(); err != nil {
		return wrapErr(KindIOError, "boltStorage.compact", err, "closing compaction target")
	}
	if err := s.bdb.Close(); err != nil {
		return wrapErr(KindIOError, "boltStorage.compact", err, "closing live database")
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return wrapErr(KindIOError, "boltStorage.compact", err, "replacing database file")
	}
	bdb, err := bbolt.Open(s.path, 0600, nil)
	if err != nil {
		return wrapErr(KindIOError, "boltStorage.compact", err, "reopening database")
	}
	s.bdb = bdb
	return nil
}

type boltStorageTx struct {
	btx *bbolt.Tx
}

func (tx *boltStorageTx) BoltTx() *bbolt.Tx { return tx.btx }

func (tx *boltStorageTx) Writable() bool { return tx.btx.Writable() }

func (tx *boltStorageTx) Bucket(view string, sec viewSection) storageBucket {
	root := tx.btx.Bucket(unsafeBytesFromString(view))
	if root == nil {
		return nil
	}
	if sec == sectionState {
		return boltBucket{b: root}
	}
	leaf := root.Bucket(unsafeBytesFromString(string(sec)))
	if leaf == nil {
		return nil
	}
	return boltBucket{b: leaf}
}

func (tx *boltStorageTx) CreateBucket(view string, sec viewSection) (storageBucket, error) {
	root, err := tx.btx.CreateBucketIfNotExists(unsafeBytesFromString(view))
	if err != nil {
		return nil, err
	}
	if sec == sectionState {
		return boltBucket{b: root}, nil
	}
	leaf, err := root.CreateBucketIfNotExists(unsafeBytesFromString(string(sec)))
	if err != nil {
		return nil, err
	}
	return boltBucket{b: leaf}, nil
}

func (tx *boltStorageTx) DeleteBucket(view string, sec viewSection) error {
	if sec == sectionState {
		return ErrBucketNotFound
	}
	root := tx.btx.Bucket(unsafeBytesFromString(view))
	if root == nil {
		return ErrBucketNotFound
	}
	err := root.DeleteBucket(unsafeBytesFromString(string(sec)))
	if err == bbolt.ErrBucketNotFound {
		return ErrBucketNotFound
	}
	return err
}

func (tx *boltStorageTx) Commit() error { return tx.btx.Commit() }

func (tx *boltStorageTx) Rollback() error {
	err := tx.btx.Rollback()
	if err == bbolt.ErrTxClosed {
		return nil
	}
	return err
}

func (tx *boltStorageTx) Size() int64 { return tx.btx.Size() }

type boltBucket struct {
	b *bbolt.Bucket
}

func (b boltBucket) Get(key []byte) []byte { return b.b.Get(key) }

func (b boltBucket) Put(key, value []byte) error { return b.b.Put(key, value) }

func (b boltBucket) Delete(key []byte) error { return b.b.Delete(key) }

func (b boltBucket) Cursor() storageCursor { return boltCursor{c: b.b.Cursor()} }

type boltCursor struct {
	c *bbolt.Cursor
}

func (c boltCursor) First() ([]byte, []byte) { return c.c.First() }

func (c boltCursor) Last() ([]byte, []byte) { return c.c.Last() }

func (c boltCursor) Seek(seek []byte) ([]byte, []byte) { return c.c.Seek(seek) }

func (c boltCursor) SeekLast(prefix []byte) ([]byte, []byte) {
	if prefix == nil || len(prefix) == 0 {
		return c.c.Last()
	}

	limit := append([]byte(nil), prefix...)
	if inc(limit) {
		k, _ := c.c.Seek(limit)
		if k == nil {
			return c.c.Last()
		}
		return c.c.Prev()
	}

	// All-0xFF prefix: fall back to linear scan.
	k, _ := c.c.Seek(prefix)
	if k == nil {
		return c.c.Last()
	}
	for k != nil && bytes.HasPrefix(k, prefix) {
		k, _ = c.c.Next()
	}
	if k == nil {
		return c.c.Last()
	}
	return c.c.Prev()
}

func (c boltCursor) Next() ([]byte, []byte) { return c.c.Next() }

func (c boltCursor) Prev() ([]byte, []byte) { return c.c.Prev() }

func (c boltCursor) Delete() error { return c.c.Delete() }

func unsafeBytesFromString(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}
