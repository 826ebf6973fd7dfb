package viewdb

import (
	"sync"
	"sync/atomic"
)

// ViewConfig is the configuration passed to OpenView; plain struct per this
// module's "no CLI/config-file layer" ambient stance.
type ViewConfig struct {
	DocType string // optional document-type filter; empty means "all types"
}

// View is a named, versioned index over documents, per §4.6. It is shared by
// arbitrarily many readers (Enumerators) but modified by at most one writer
// (the Indexer) at a time; OpenView is a cheap, repeatable call.
type View struct {
	engine *Engine
	name   string

	mu      sync.Mutex
	version string
	docType string
	state   viewState

	users     atomic.Int64 // Enumerators + Indexers currently holding this view open
	indexLock sync.Mutex   // held for the duration of exactly one Indexer
	indexing  atomic.Bool  // mirrors indexLock, for a non-blocking busy check
}

// tryBeginIndexing acquires the single-writer slot for this view, returning
// false (no-op) if another Indexer already holds it, per §4.4's "at most one
// Indexer per View" rule. Distinct from isBusy: a read-only Enumerator never
// trips this, only a concurrent Indexer does.
func (v *View) tryBeginIndexing() bool {
	if !v.indexLock.TryLock() {
		return false
	}
	v.indexing.Store(true)
	return true
}

func (v *View) endIndexing() {
	v.indexing.Store(false)
	v.indexLock.Unlock()
}

// OpenView implements §4.6's open(name, version, config): it loads persisted
// metadata and, if the stored version differs from version, atomically
// clears the index store and resets both watermarks and rowCount to zero.
func (e *Engine) OpenView(name, version string, cfg ViewConfig) (*View, error) {
	v := &View{engine: e, name: name, version: version, docType: cfg.DocType}

	err := e.Update(func(tx storageTx) error {
		buck, err := tx.CreateBucket(name, sectionState)
		if err != nil {
			return wrapErr(KindIOError, "View.Open", err, "opening view bucket %q", name)
		}
		st, found, err := loadViewState(buck)
		if err != nil {
			return err
		}
		if !found {
			v.state = viewState{Version: version, DocType: cfg.DocType}
			return saveViewState(buck, v.state)
		}
		v.state = st
		if st.Version != version {
			if err := (&indexStore{}).erase(tx, name); err != nil {
				return wrapErr(KindIOError, "View.Open", err, "erasing stale index")
			}
			v.state = viewState{Version: version, DocType: cfg.DocType}
			return saveViewState(buck, v.state)
		}
		v.docType = st.DocType
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.registerView(v)
	return v, nil
}

func (v *View) Name() string { return v.name }

func (v *View) Version() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.version
}

// IsBusy reports whether any Enumerator or Indexer currently holds this view
// open, mirroring the original Index::isBusy probe (§SPEC_FULL supplemented
// features).
func (v *View) IsBusy() bool { return v.isBusy() }

func (v *View) isBusy() bool { return v.users.Load() > 0 }

func (v *View) addUser()    { v.users.Add(1) }
func (v *View) removeUser() { v.users.Add(-1) }

// SetMapVersion is equivalent to the version check performed by OpenView and
// is idempotent: calling it with the already-current version is a no-op.
func (v *View) SetMapVersion(version string) error {
	v.mu.Lock()
	current := v.version
	v.mu.Unlock()
	if current == version {
		return nil
	}
	return v.engine.Update(func(tx storageTx) error {
		buck, err := tx.CreateBucket(v.name, sectionState)
		if err != nil {
			return wrapErr(KindIOError, "View.SetMapVersion", err, "opening view bucket")
		}
		is := &indexStore{}
		if err := is.erase(tx, v.name); err != nil {
			return wrapErr(KindIOError, "View.SetMapVersion", err, "erasing stale index")
		}
		v.mu.Lock()
		v.version = version
		v.state = viewState{Version: version, DocType: v.docType}
		newState := v.state
		v.mu.Unlock()
		return saveViewState(buck, newState)
	})
}

// SetDocumentType updates the filter used by ShouldIndexDocument.
func (v *View) SetDocumentType(docType string) error {
	v.mu.Lock()
	v.docType = docType
	v.state.DocType = docType
	newState := v.state
	v.mu.Unlock()
	return v.engine.Update(func(tx storageTx) error {
		buck, err := tx.CreateBucket(v.name, sectionState)
		if err != nil {
			return wrapErr(KindIOError, "View.SetDocumentType", err, "opening view bucket")
		}
		return saveViewState(buck, newState)
	})
}

// EraseIndex clears rows and resets watermarks but preserves the view's
// identity and file; it fails while any Enumerator or Indexer is active.
func (v *View) EraseIndex() error {
	if v.isBusy() {
		return wrapErr(KindBusy, "View.EraseIndex", nil, "view %q has active users", v.name)
	}
	return v.engine.Update(func(tx storageTx) error {
		buck, err := tx.CreateBucket(v.name, sectionState)
		if err != nil {
			return wrapErr(KindIOError, "View.EraseIndex", err, "opening view bucket")
		}
		is := &indexStore{}
		if err := is.erase(tx, v.name); err != nil {
			return wrapErr(KindIOError, "View.EraseIndex", err, "erasing index")
		}
		v.mu.Lock()
		v.state.LastSequenceIndexed = 0
		v.state.LastSequenceChangedAt = 0
		v.state.TotalRows = 0
		newState := v.state
		v.mu.Unlock()
		return saveViewState(buck, newState)
	})
}

// Delete removes the view's rows, doc-keys records and persisted state from
// the shared storage file (the file itself stays); it fails while any
// Enumerator or Indexer is active.
func (v *View) Delete() error {
	if v.isBusy() {
		return wrapErr(KindBusy, "View.Delete", nil, "view %q has active users", v.name)
	}
	err := v.engine.Update(func(tx storageTx) error {
		if err := tx.DeleteBucket(v.name, sectionRows); err != nil && err != ErrBucketNotFound {
			return err
		}
		if err := tx.DeleteBucket(v.name, sectionDocKeys); err != nil && err != ErrBucketNotFound {
			return err
		}
		// sectionState isn't a nested bucket (DeleteBucket refuses it); the
		// persisted viewState record lives as a direct key in the view's
		// root bucket, so clear it the same way OpenView reads it.
		if buck := tx.Bucket(v.name, sectionState); buck != nil {
			if err := buck.Delete(viewStateKey); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	v.engine.unregisterView(v.name)
	return nil
}

// openStoreIn opens this view's indexStore bound to an already-open
// transaction; storageBucket handles are only valid for that transaction's
// lifetime, so callers (Indexer, Enumerator) always call this fresh.
func (v *View) openStoreIn(tx storageTx) (*indexStore, error) {
	return openIndexStore(tx, v.name)
}

func (v *View) lastSequenceIndexed() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state.LastSequenceIndexed
}

func (v *View) snapshotState() viewState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

func (v *View) matchesDocType(docType string) bool {
	v.mu.Lock()
	filter := v.docType
	v.mu.Unlock()
	return filter == "" || filter == docType
}
