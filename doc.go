/*
Package viewdb implements the core of an embedded document database: a
view/index engine that incrementally materializes map/reduce indexes over a
stream of document revisions and answers range/key-list/grouped/reduced
queries against them, on top of a pluggable key-value storage backend (Bolt
by default).

We implement:

1. Collatable, a byte-order-preserving binary encoding for JSON-shaped
values, so that a lexicographic scan of encoded keys matches a defined
total order over the values they encode.

2. Views, named and versioned indexes with an optional document-type filter;
a View's rows live in its own section of the storage file and survive
across process restarts.

3. Indexer, a batch updater that pulls document revisions newer than a
View's watermark, invokes the caller's map function per document, and
commits or aborts the resulting row changes atomically across every View
in the batch.

4. Enumerator, a lazy cursor over a View's rows supporting range and
key-list traversal, grouping by a key prefix, and reduction.

# Technical Details

**Storage.** Views share one storage file through the storage/storageTx/
storageBucket abstraction; the Bolt backend maps each View to its own nested
buckets ("rows" and "dockeys"), and an in-memory backend exists for tests.

**Row key layout.** A row's key is collatable_key || 0x00 || docID || 0x00 ||
emitIndex_varint. The 0x00 separator cannot occur inside a collatable key:
the codec reserves it as the end-sequence tag and quotes any embedded 0x00
inside a string run.

**Index Writer.** Each document's prior emitted keys are recorded alongside
a content fingerprint (xxhash) so that re-indexing a document whose
emissions didn't change costs one read and one write of that record, not a
row-by-row diff.

**View state.** Each View's version, document-type filter, watermarks, and
row count are persisted as a small msgpack record in its own bucket.
*/
package viewdb
