package viewdb

import (
	"encoding/binary"
	"log/slog"

	"github.com/vmihailenco/msgpack/v5"
)

// indexStore is the mapping inside a host key-value file described in §4.2:
// docID → emitted-keys (for the diff algorithm), and (key, docID, emitIndex)
// → value (the queryable rows). It is built directly on a storageBucket, not
// on any particular backend.
type indexStore struct {
	rowsBucket    storageBucket // rows: rowKey(key, docID, emitIndex) -> value
	docKeysBucket storageBucket // per-doc record: docID -> msgpack{Keys, Hash, Seq}
}

func openIndexStore(tx storageTx, name string) (*indexStore, error) {
	if !tx.Writable() {
		// A read-only transaction cannot create sections; a view that has
		// never been indexed has none yet and reads as empty.
		s := &indexStore{rowsBucket: tx.Bucket(name, sectionRows), docKeysBucket: tx.Bucket(name, sectionDocKeys)}
		if s.rowsBucket == nil {
			s.rowsBucket = memBucketHandle{tx: &memTx{}, b: &memBucket{}}
		}
		if s.docKeysBucket == nil {
			s.docKeysBucket = memBucketHandle{tx: &memTx{}, b: &memBucket{}}
		}
		return s, nil
	}
	rows, err := tx.CreateBucket(name, sectionRows)
	if err != nil {
		return nil, wrapErr(KindIOError, "indexStore.open", err, "opening rows bucket")
	}
	docKeys, err := tx.CreateBucket(name, sectionDocKeys)
	if err != nil {
		return nil, wrapErr(KindIOError, "indexStore.open", err, "opening dockeys bucket")
	}
	return &indexStore{rowsBucket: rows, docKeysBucket: docKeys}, nil
}

// rowKey lays out collatable_key || 0x00 || docID || 0x00 || emitIndex_varint,
// which is guaranteed unambiguous because the codec reserves 0x00 as its
// top-level end-sequence tag and quotes any embedded 0x00 inside strings.
func rowKey(key []byte, docID string, emitIndex int) []byte {
	buf := keyBytesPool.Get().([]byte)[:0]
	buf = appendRaw(buf, key)
	buf = append(buf, 0x00)
	buf = appendRaw(buf, []byte(docID))
	buf = append(buf, 0x00)
	buf = appendUvarint(buf, uint64(emitIndex))
	out := make([]byte, len(buf))
	copy(out, buf)
	releaseKeyBytes(buf)
	return out
}

// splitRowKey recovers (key, docID, emitIndex) from a stored row key.
func splitRowKey(rk []byte) (key []byte, docID string, emitIndex int, err error) {
	i := indexByte(rk, 0x00, 0)
	if i < 0 {
		return nil, "", 0, dataErrf(rk, 0, nil, "row key missing key separator")
	}
	key = rk[:i]
	j := indexByte(rk, 0x00, i+1)
	if j < 0 {
		return nil, "", 0, dataErrf(rk, i+1, nil, "row key missing docID separator")
	}
	docID = string(rk[i+1 : j])
	v, n := binary.Uvarint(rk[j+1:])
	if n <= 0 {
		return nil, "", 0, dataErrf(rk, j+1, nil, "row key missing emitIndex")
	}
	return key, docID, int(v), nil
}

func indexByte(b []byte, c byte, from int) int {
	for i := from; i < len(b); i++ {
		if b[i] == c {
			return i
		}
	}
	return -1
}

func (s *indexStore) getEntry(key []byte, docID string, emitIndex int) ([]byte, error) {
	v := s.rowsBucket.Get(rowKey(key, docID, emitIndex))
	if v == nil {
		return nil, newErr(KindNotFound, "indexStore.getEntry", "no row for docID %q", docID)
	}
	return v, nil
}

func (s *indexStore) putRow(key []byte, docID string, emitIndex int, value []byte) error {
	return s.rowsBucket.Put(rowKey(key, docID, emitIndex), value)
}

func (s *indexStore) deleteRow(key []byte, docID string, emitIndex int) error {
	return s.rowsBucket.Delete(rowKey(key, docID, emitIndex))
}

// docKeysRecord is the persisted "document-to-keys map" entry: the
// collatable keys a view last emitted for one document, plus a stable
// fingerprint the Writer uses to short-circuit no-op re-indexing.
type docKeysRecord struct {
	Keys [][]byte `msgpack:"k"`
	Hash uint64   `msgpack:"h"`
	Seq  uint64   `msgpack:"s"`
}

func (s *indexStore) getDocKeys(docID string) (docKeysRecord, bool, error) {
	raw := s.docKeysBucket.Get([]byte(docID))
	if raw == nil {
		return docKeysRecord{}, false, nil
	}
	var rec docKeysRecord
	if err := msgpack.Unmarshal(raw, &rec); err != nil {
		return docKeysRecord{}, false, corruptErr("indexStore.getDocKeys", []byte(docID), err, "decoding doc-keys record")
	}
	return rec, true, nil
}

func (s *indexStore) putDocKeys(docID string, rec docKeysRecord) error {
	raw, err := msgpack.Marshal(&rec)
	if err != nil {
		return wrapErr(KindInvalidParameter, "indexStore.putDocKeys", err, "encoding doc-keys record")
	}
	return s.docKeysBucket.Put([]byte(docID), raw)
}

func (s *indexStore) deleteDocKeys(docID string) error {
	return s.docKeysBucket.Delete([]byte(docID))
}

// rangeRows returns a lazy cursor over rows bounded by (startKey, startDocID,
// endKey, endDocID), honoring inclusiveStart/inclusiveEnd and descending,
// exactly per §4.2's range operation signature.
//
// Stored row keys extend a collatable key with a 0x00-separated docID and
// emitIndex varint, so a bound built from a bare key (or key+docID) never
// equals a stored row key exactly — rows always carry the separator's
// trailing bytes. rowBound compensates using the same prefix-increment trick
// as a prefix scan's exclusive upper bound: an inclusive end is widened past
// every row continuing that key (and docID, if pinned), and an exclusive
// start is advanced past every row continuing that key (and docID).
func (s *indexStore) rangeRows(startKey []byte, startDocID string, endKey []byte, endDocID string, inclusiveStart, inclusiveEnd, descending bool, logger *slog.Logger) *rawRangeCursor {
	lower, lowerInc := rowBound(startKey, startDocID, inclusiveStart, true)
	upper, upperInc := rowBound(endKey, endDocID, inclusiveEnd, false)
	if descending && upper != nil && dec(upper) {
		// A reverse scan starts at the last key below inc(Upper), taken as an
		// inclusive prefix; stepping the exclusive row-domain bound down by
		// one makes that start exactly the last row below the bound.
		upperInc = true
	}
	raw := rawRange{Lower: lower, Upper: upper, LowerInc: lowerInc, UpperInc: upperInc, Reverse: descending}
	return raw.newCursor(s.rowsBucket.Cursor(), logger)
}

// rowBound builds one bound of a row-key-domain range. isLower selects which
// end it anchors: a lower bound that's inclusive of key(+docID) can be used
// as-is (any row continuing it sorts after it already); an exclusive lower,
// or an inclusive upper, must be advanced past every row continuing
// key(+docID) via inc(); an exclusive upper can likewise be used as-is
// (every continuation already sorts strictly after it).
func rowBound(key []byte, docID string, inclusive, isLower bool) (bound []byte, boundInclusive bool) {
	if key == nil {
		return nil, true
	}
	b := append([]byte{}, key...)
	if docID != "" {
		b = append(b, 0x00)
		b = append(b, docID...)
	}
	if isLower {
		if !inclusive {
			inc(b)
		}
		return b, true
	}
	if inclusive {
		inc(b)
	}
	return b, false
}

// erase deletes every row and doc-keys record, used by View.EraseIndex
// and the version-mismatch reset path.
func (s *indexStore) erase(tx storageTx, name string) error {
	if err := tx.DeleteBucket(name, sectionRows); err != nil && err != ErrBucketNotFound {
		return err
	}
	if err := tx.DeleteBucket(name, sectionDocKeys); err != nil && err != ErrBucketNotFound {
		return err
	}
	rows, err := tx.CreateBucket(name, sectionRows)
	if err != nil {
		return err
	}
	docKeys, err := tx.CreateBucket(name, sectionDocKeys)
	if err != nil {
		return err
	}
	s.rowsBucket = rows
	s.docKeysBucket = docKeys
	return nil
}
