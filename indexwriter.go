package viewdb

import (
	"bytes"

	"github.com/cespare/xxhash/v2"
)

// indexWriter updates one index for one document within a host transaction,
// per §4.3. wasEmpty lets the Indexer skip the old-keys load while the index
// is known to have no rows (a fresh view or one just erased); it is cleared
// as soon as this writer stores rows.
type indexWriter struct {
	store    *indexStore
	wasEmpty bool
}

func newIndexWriter(store *indexStore, wasEmpty bool) *indexWriter {
	return &indexWriter{store: store, wasEmpty: wasEmpty}
}

// fingerprint computes a stable hash over the emitted (key, value) pairs in
// order: sensitive to order and content, insensitive to allocator addresses.
func fingerprint(keys, values [][]byte) uint64 {
	h := xxhash.New()
	var lenBuf [8]byte
	for i, k := range keys {
		putUint64(lenBuf[:], uint64(len(k)))
		_, _ = h.Write(lenBuf[:])
		_, _ = h.Write(k)
		putUint64(lenBuf[:], uint64(len(values[i])))
		_, _ = h.Write(lenBuf[:])
		_, _ = h.Write(values[i])
	}
	return h.Sum64()
}

func putUint64(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

// update implements the §4.3 algorithm: update(docID, docSequence, newKeys,
// newValues, &rowCount) → changed. emitIndex is each key's position in
// newKeys, which also breaks ties when the same key is emitted twice.
func (w *indexWriter) update(docID string, docSequence uint64, newKeys [][]byte, newValues [][]byte, rowCount *int64) (changed bool, err error) {
	if len(newKeys) != len(newValues) {
		return false, newErr(KindInvalidParameter, "indexWriter.update", "keys/values length mismatch (%d vs %d)", len(newKeys), len(newValues))
	}

	var oldRec docKeysRecord
	var hadOld bool
	if !w.wasEmpty {
		oldRec, hadOld, err = w.store.getDocKeys(docID)
		if err != nil {
			return false, err
		}
	}

	newHash := fingerprint(newKeys, newValues)
	if hadOld && oldRec.Hash == newHash && docSequence > oldRec.Seq {
		oldRec.Seq = docSequence
		if err := w.store.putDocKeys(docID, oldRec); err != nil {
			return false, err
		}
		return false, nil
	}

	oldKeys := oldRec.Keys
	if len(oldKeys) == 0 && len(newKeys) == 0 {
		return false, nil
	}

	for i := 0; i < len(oldKeys) || i < len(newKeys); i++ {
		var ok, nk []byte
		if i < len(oldKeys) {
			ok = oldKeys[i]
		}
		if i < len(newKeys) {
			nk = newKeys[i]
		}
		switch {
		case i >= len(newKeys):
			// old but not new at this emitIndex: retract.
			if err := w.store.deleteRow(ok, docID, i); err != nil {
				return false, wrapErr(KindIOError, "indexWriter.update", err, "deleting row")
			}
			*rowCount--
		case i >= len(oldKeys):
			// new but not old: insert.
			if err := w.store.putRow(nk, docID, i, newValues[i]); err != nil {
				return false, wrapErr(KindIOError, "indexWriter.update", err, "putting row")
			}
			*rowCount++
		case !bytes.Equal(ok, nk):
			// same slot, different key: retract the old row, insert the new one.
			if err := w.store.deleteRow(ok, docID, i); err != nil {
				return false, wrapErr(KindIOError, "indexWriter.update", err, "deleting row")
			}
			if err := w.store.putRow(nk, docID, i, newValues[i]); err != nil {
				return false, wrapErr(KindIOError, "indexWriter.update", err, "putting row")
			}
		default:
			// same slot, same key: value-overwrite only, row count unchanged.
			if err := w.store.putRow(nk, docID, i, newValues[i]); err != nil {
				return false, wrapErr(KindIOError, "indexWriter.update", err, "putting row")
			}
		}
	}

	if len(newKeys) == 0 {
		if err := w.store.deleteDocKeys(docID); err != nil {
			return false, err
		}
	} else {
		if err := w.store.putDocKeys(docID, docKeysRecord{Keys: newKeys, Hash: newHash, Seq: docSequence}); err != nil {
			return false, err
		}
	}

	w.wasEmpty = false
	return true, nil
}
