package viewdb

import (
	"bytes"
	"log/slog"
)

// QueryOptions is the enumerator construction surface of §4.5/§4.6's query
// options, field-for-field. Keys, when non-empty, selects the key-list
// variant and StartKey/EndKey are ignored.
type QueryOptions struct {
	StartKey, EndKey           []byte
	StartKeyDocID, EndKeyDocID string
	InclusiveStart             bool
	InclusiveEnd               bool
	Descending                 bool
	Keys                       [][]byte
	Skip                       int
	Limit                      int // <=0 means unbounded
	GroupLevel                 int
	Reduce                     ReduceFunc
}

// DefaultQueryOptions returns the defaults named in §4.6: skip=0,
// limit=unbounded, inclusiveStart=true, inclusiveEnd=true, descending=false,
// groupLevel=0.
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{InclusiveStart: true, InclusiveEnd: true}
}

// Enumerator is a lazy cursor over a View's index rows, per §4.5. It owns a
// read transaction for its entire lifetime and must be closed.
type Enumerator struct {
	view  *View
	tx    storageTx
	store *indexStore

	descending bool
	specs      []rangeSpec
	specIdx    int
	cur        *rawRangeCursor

	skip    int
	limit   int // remaining; negative means unbounded
	group   int
	reduce  ReduceFunc

	pendKey, pendValue []byte
	pendRange          int
	pendValid          bool

	key, value []byte
	docID      string
	sequence   uint64
	emitIndex  int
	rangeIdx   int

	err    error
	atEnd  bool
	closed bool
}

type rangeSpec struct {
	startKey, endKey           []byte
	startDocID, endDocID       string
	inclusiveStart, inclusiveEnd bool
}

// NewEnumerator opens a read transaction over v's index store and returns an
// Enumerator bound to opts. Callers must call Close when done.
func (v *View) NewEnumerator(opts QueryOptions) (*Enumerator, error) {
	tx, err := v.engine.st.BeginTx(false)
	if err != nil {
		return nil, wrapErr(KindIOError, "View.NewEnumerator", err, "beginning read transaction")
	}
	store, err := v.openStoreIn(tx)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	e := &Enumerator{
		view:       v,
		tx:         tx,
		store:      store,
		descending: opts.Descending,
		skip:       opts.Skip,
		limit:      limit,
		group:      opts.GroupLevel,
		reduce:     opts.Reduce,
		specs:      buildRangeSpecs(opts),
	}
	v.addUser()
	return e, nil
}

// buildRangeSpecs lowers QueryOptions into the list of ranges to visit in
// order. The key-list variant treats each key as its own single-key range,
// in list order, never re-sorted, per §4.5.
func buildRangeSpecs(opts QueryOptions) []rangeSpec {
	if len(opts.Keys) > 0 {
		specs := make([]rangeSpec, len(opts.Keys))
		for i, k := range opts.Keys {
			specs[i] = rangeSpec{startKey: k, endKey: k, inclusiveStart: true, inclusiveEnd: true}
		}
		return specs
	}
	return []rangeSpec{{
		startKey:       opts.StartKey,
		endKey:         opts.EndKey,
		startDocID:     opts.StartKeyDocID,
		endDocID:       opts.EndKeyDocID,
		inclusiveStart: opts.InclusiveStart,
		inclusiveEnd:   opts.InclusiveEnd,
	}}
}

func (e *Enumerator) logger() *slog.Logger { return e.view.engine.logger }

// lowLevelNext returns the next raw row across the whole spec list, the
// index of the spec it came from (for range-boundary detection while
// grouping), or ok=false once every spec is exhausted.
func (e *Enumerator) lowLevelNext() (key, value []byte, specIdx int, ok bool) {
	for e.specIdx < len(e.specs) {
		if e.cur == nil {
			s := e.specs[e.specIdx]
			e.cur = e.store.rangeRows(s.startKey, s.startDocID, s.endKey, s.endDocID, s.inclusiveStart, s.inclusiveEnd, e.descending, e.logger())
		}
		if e.cur.Next() {
			return e.cur.Key(), e.cur.Value(), e.specIdx, true
		}
		e.cur = nil
		e.specIdx++
	}
	return nil, nil, -1, false
}

func (e *Enumerator) fillPending() {
	if e.pendValid || e.err != nil {
		return
	}
	k, v, si, ok := e.lowLevelNext()
	if !ok {
		return
	}
	e.pendKey, e.pendValue, e.pendRange, e.pendValid = k, v, si, true
}

// Next advances to the next result row (or grouped/reduced output row) and
// reports whether one is available; callers must call it before the first
// Key/Value/DocID access.
func (e *Enumerator) Next() bool {
	if e.closed || e.atEnd {
		return false
	}
	for {
		var ok bool
		if e.reduce != nil {
			ok = e.nextReduced()
		} else {
			ok = e.nextPlain()
		}
		if !ok {
			return false
		}
		if e.skip > 0 {
			e.skip--
			continue
		}
		if e.limit == 0 {
			e.atEnd = true
			return false
		}
		if e.limit > 0 {
			e.limit--
		}
		return true
	}
}

func (e *Enumerator) nextPlain() bool {
	e.fillPending()
	if e.err != nil {
		e.atEnd = true
		return false
	}
	if !e.pendValid {
		e.atEnd = true
		return false
	}
	rk, docID, emitIndex, err := splitRowKey(e.pendKey)
	if err != nil {
		e.err = asCorrupt("Enumerator.Next", err)
		e.atEnd = true
		return false
	}
	seq, err := e.sequenceOf(docID)
	if err != nil {
		e.err = err
		e.atEnd = true
		return false
	}
	e.key, e.value, e.docID, e.sequence, e.emitIndex, e.rangeIdx = rk, e.pendValue, docID, seq, emitIndex, e.pendRange
	e.pendValid = false
	return true
}

// sequenceOf looks up the document sequence a row's docID was last indexed
// at, per §4.5's non-reduction-path (key, value, docID, sequence) contract.
func (e *Enumerator) sequenceOf(docID string) (uint64, error) {
	rec, ok, err := e.store.getDocKeys(docID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return rec.Seq, nil
}

// nextReduced accumulates rows sharing a grouped key into one synthetic
// output row, flushing when the group changes or the current range (spec)
// ends, per §4.5's advance contract.
func (e *Enumerator) nextReduced() bool {
	started := false
	var groupKey []byte
	var groupRange int

	for {
		e.fillPending()
		if e.err != nil {
			e.atEnd = true
			return false
		}
		if !e.pendValid {
			if !started {
				e.atEnd = true
				return false
			}
			break
		}
		rk, _, _, err := splitRowKey(e.pendKey)
		if err != nil {
			e.err = asCorrupt("Enumerator.Next", err)
			e.atEnd = true
			return false
		}
		gk, err := groupKeyPrefix(rk, e.group)
		if err != nil {
			e.err = asCorrupt("Enumerator.Next", err)
			e.atEnd = true
			return false
		}
		if !started {
			started = true
			groupKey = gk
			groupRange = e.pendRange
		} else if !bytes.Equal(gk, groupKey) || e.pendRange != groupRange {
			break // new group, or the range ended: flush, leave pend for the next call
		}
		e.reduce.Accumulate(NewReader(rk), e.pendValue)
		e.pendValid = false
	}

	e.key = groupKey
	e.value = e.reduce.Reduce()
	e.docID, e.sequence, e.emitIndex = "", 0, 0
	e.rangeIdx = groupRange
	return true
}

// groupKeyPrefix returns the canonical collatable encoding of the first
// level elements of key (or of key itself, wrapped as a one-element group,
// if key isn't an array); level<=0 collapses every row into a single group
// keyed by the empty prefix, per §4.5.
func groupKeyPrefix(key []byte, level int) ([]byte, error) {
	if level <= 0 {
		return []byte{}, nil
	}
	r := NewReader(key)
	if err := r.BeginArray(); err != nil {
		v, derr := NewReader(key).ReadValue()
		if derr != nil {
			return nil, derr
		}
		return NewBuilder(nil).BeginArray().AddValue(v).EndArray().Bytes(), nil
	}
	b := NewBuilder(nil).BeginArray()
	for i := 0; i < level && !r.AtSequenceEnd(); i++ {
		v, err := r.ReadValue()
		if err != nil {
			return nil, err
		}
		b.AddValue(v)
	}
	return b.EndArray().Bytes(), nil
}

// CurrentRangeIndex reports which element of the constructed range/key list
// produced the current row, a supplemented diagnostic for callers paginating
// across a key-list query.
func (e *Enumerator) CurrentRangeIndex() int { return e.rangeIdx }

func (e *Enumerator) Key() []byte   { return e.key }
func (e *Enumerator) Value() []byte { return e.value }
func (e *Enumerator) DocID() string { return e.docID }

// Sequence reports the sequence number the current row's document was last
// indexed at. It is only meaningful on the non-reduction path; a grouped
// output row (Reduce set in QueryOptions) always reports 0, mirroring the
// original IndexEnumerator::sequence() which is likewise undefined once rows
// have been folded into a synthetic group.
func (e *Enumerator) Sequence() uint64 { return e.sequence }

func (e *Enumerator) EmitIndex() int { return e.emitIndex }
func (e *Enumerator) Err() error     { return e.err }

// Close releases the store cursor and the read transaction; it does not
// free the Enumerator object itself, per §4.5.
func (e *Enumerator) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	e.view.removeUser()
	return e.tx.Rollback()
}
