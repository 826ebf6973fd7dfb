package viewdb

import "context"

// indexerViewState is the per-view bookkeeping an Indexer batch carries
// between begin and end, per §4.4's "indexer task" definition.
type indexerViewState struct {
	view                 *View
	watermarkAtBegin     uint64
	wasEmpty             bool
	triggered            bool
	store                *indexStore
	writer               *indexWriter
	maxSequenceObserved  uint64
	changed              bool
	rowCount             int64
	pendingState         viewState
	visitedCount         int
	emittedCount         int
}

// Indexer coordinates one batch update of one or more Views over a shared
// DocSource, per §4.4. It is single-use: begin, zero or more emit calls
// driven by the caller's enumeration of documents, then exactly one end.
type Indexer struct {
	engine *Engine
	src    DocSource
	tx     storageTx
	views  []*indexerViewState
	ended  bool
}

// BeginIndexer opens one host transaction spanning every named view's index
// store and captures each view's watermark, failing with KindIndexBusy if
// any named view already has an Indexer in flight.
func BeginIndexer(e *Engine, src DocSource, views ...*View) (*Indexer, error) {
	locked := make([]*View, 0, len(views))
	for _, v := range views {
		if !v.tryBeginIndexing() {
			for _, u := range locked {
				u.endIndexing()
			}
			return nil, wrapErr(KindIndexBusy, "Indexer.Begin", nil, "view %q already has an active indexer", v.name)
		}
		locked = append(locked, v)
	}

	tx, err := e.st.BeginTx(true)
	if err != nil {
		for _, u := range locked {
			u.endIndexing()
		}
		return nil, wrapErr(KindIOError, "Indexer.Begin", err, "beginning write transaction")
	}

	ix := &Indexer{engine: e, src: src, tx: tx}
	for _, v := range views {
		store, err := v.openStoreIn(tx)
		if err != nil {
			_ = tx.Rollback()
			for _, u := range locked {
				u.endIndexing()
			}
			return nil, err
		}
		state := v.snapshotState()
		ivs := &indexerViewState{
			view:                v,
			watermarkAtBegin:    state.LastSequenceIndexed,
			wasEmpty:            state.TotalRows == 0,
			store:               store,
			maxSequenceObserved: state.LastSequenceIndexed,
			rowCount:            state.TotalRows,
		}
		ivs.writer = newIndexWriter(store, ivs.wasEmpty)
		ix.views = append(ix.views, ivs)
		v.addUser()
	}
	return ix, nil
}

// TriggerOnView marks v as "must index even if up to date", overriding the
// up-to-date short-circuit in EnumerateDocuments.
func (ix *Indexer) TriggerOnView(v *View) {
	for _, ivs := range ix.views {
		if ivs.view == v {
			ivs.triggered = true
			return
		}
	}
}

func (ix *Indexer) minWatermark() uint64 {
	min := ix.views[0].watermarkAtBegin
	for _, ivs := range ix.views[1:] {
		if ivs.watermarkAtBegin < min {
			min = ivs.watermarkAtBegin
		}
	}
	return min
}

// EnumerateDocuments returns a cursor over source documents with sequence
// strictly greater than the minimum participating watermark, or an empty
// cursor if no view was triggered and every view is already at the source's
// last sequence.
func (ix *Indexer) EnumerateDocuments(ctx context.Context) (DocCursor, error) {
	anyTriggered := false
	for _, ivs := range ix.views {
		if ivs.triggered {
			anyTriggered = true
			break
		}
	}
	if !anyTriggered {
		last, err := ix.src.LastSequence(ctx)
		if err != nil {
			return nil, wrapErr(KindIOError, "Indexer.EnumerateDocuments", err, "reading source last sequence")
		}
		upToDate := true
		for _, ivs := range ix.views {
			if ivs.watermarkAtBegin < last {
				upToDate = false
				break
			}
		}
		if upToDate {
			return emptyDocCursor{}, nil
		}
	}
	return ix.src.Documents(ctx, ix.minWatermark())
}

// ShouldIndexDocument reports whether doc must be visited for view v within
// this batch: its sequence is newer than v's watermark at begin, and it
// matches v's document-type filter (if any).
func (ix *Indexer) ShouldIndexDocument(v *View, doc Document) bool {
	ivs := ix.stateFor(v)
	if ivs == nil {
		return false
	}
	if doc.Sequence <= ivs.watermarkAtBegin {
		return false
	}
	if !v.matchesDocType(doc.DocType) {
		return false
	}
	ivs.visitedCount++
	return true
}

func (ix *Indexer) stateFor(v *View) *indexerViewState {
	for _, ivs := range ix.views {
		if ivs.view == v {
			return ivs
		}
	}
	return nil
}

// Emit forwards one document's emissions for view v to the Index Writer.
// Contract: for every (doc, v) pair ShouldIndexDocument returned true for,
// the caller must call Emit or EmitList exactly once, even with an empty
// keys list, so previously emitted rows get retracted.
func (ix *Indexer) Emit(v *View, doc Document, keys [][]byte, values [][]byte) error {
	ivs := ix.stateFor(v)
	if ivs == nil {
		return newErr(KindInvalidParameter, "Indexer.Emit", "view %q is not part of this indexer batch", v.name)
	}
	if doc.Deleted {
		keys, values = nil, nil
	}
	changed, err := ivs.writer.update(doc.DocID, doc.Sequence, keys, values, &ivs.rowCount)
	if err != nil {
		return wrapErr(KindIOError, "Indexer.Emit", err, "updating index for doc %q in view %q", doc.DocID, v.name)
	}
	if changed {
		ivs.changed = true
	}
	if doc.Sequence > ivs.maxSequenceObserved {
		ivs.maxSequenceObserved = doc.Sequence
	}
	ivs.emittedCount++
	return nil
}

// EmitList is Emit applied to a MapFunc's collected emissions, splitting the
// (key, value) pairs it produced into parallel slices for the Writer.
func (ix *Indexer) EmitList(v *View, doc Document, mapFn MapFunc) error {
	e := &collectingEmitter{}
	if !doc.Deleted {
		mapFn(doc, e)
	}
	keys := make([][]byte, len(e.emissions))
	values := make([][]byte, len(e.emissions))
	for i, em := range e.emissions {
		keys[i] = em.Key
		if Compare(em.Value, Special) == 0 {
			values[i] = doc.Body
		} else {
			values[i] = em.Value
		}
	}
	return ix.Emit(v, doc, keys, values)
}

// End commits (advancing watermarks and rowCount) or aborts this batch. It
// is the caller's responsibility to call End exactly once; calling it twice
// is a programming error.
func (ix *Indexer) End(commit bool) error {
	if ix.ended {
		return newErr(KindInvalidParameter, "Indexer.End", "indexer already ended")
	}
	ix.ended = true
	defer func() {
		for _, ivs := range ix.views {
			ivs.view.removeUser()
			ivs.view.endIndexing()
		}
	}()

	if !commit {
		return ix.tx.Rollback()
	}

	for _, ivs := range ix.views {
		if ivs.visitedCount != ivs.emittedCount {
			_ = ix.tx.Rollback()
			return newErr(KindInvalidParameter, "Indexer.End", "view %q: %d documents visited but only %d emitted", ivs.view.name, ivs.visitedCount, ivs.emittedCount)
		}
	}

	for _, ivs := range ix.views {
		state := ivs.view.snapshotState()
		state.LastSequenceIndexed = ivs.maxSequenceObserved
		if ivs.changed {
			state.LastSequenceChangedAt = ivs.maxSequenceObserved
		}
		state.TotalRows = ivs.rowCount
		buck, err := ix.tx.CreateBucket(ivs.view.name, sectionState)
		if err != nil {
			_ = ix.tx.Rollback()
			return wrapErr(KindIOError, "Indexer.End", err, "opening view bucket %q", ivs.view.name)
		}
		if err := saveViewState(buck, state); err != nil {
			_ = ix.tx.Rollback()
			return err
		}
		ivs.pendingState = state
	}

	if err := ix.tx.Commit(); err != nil {
		return wrapErr(KindIOError, "Indexer.End", err, "committing indexer batch")
	}

	for _, ivs := range ix.views {
		ivs.view.mu.Lock()
		ivs.view.state = ivs.pendingState
		ivs.view.mu.Unlock()
	}
	return nil
}
