package viewdb

import (
	"log/slog"
	"sync"

	"go.etcd.io/bbolt"
)

// EngineOptions configures Open. Logger defaults to slog.Default() when nil.
type EngineOptions struct {
	Logger *slog.Logger
}

// Engine owns the host storage file and the set of Views opened against it.
// It is the top-level handle embedding programs hold; Views are obtained
// through it and remain valid only while the Engine is open.
type Engine struct {
	st     storage
	logger *slog.Logger

	mu        sync.Mutex
	views     map[string]*View
	compactFn func()
}

// Open opens (creating if necessary) the bbolt-backed storage file at path
// and returns an Engine ready to host Views.
func Open(path string, opts EngineOptions) (*Engine, error) {
	bdb, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, wrapErr(KindIOError, "Open", err, "opening storage file %q", path)
	}
	return newEngine(newBoltStorage(path, bdb), opts), nil
}

// OpenMem returns an Engine backed by a transient in-memory store, intended
// for tests and short-lived embeddings that don't need a file.
func OpenMem(opts EngineOptions) *Engine {
	return newEngine(newMemStorage(), opts)
}

func newEngine(st storage, opts EngineOptions) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{st: st, logger: logger, views: map[string]*View{}}
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for name, v := range e.views {
		if v.isBusy() {
			return wrapErr(KindBusy, "Engine.Close", nil, "view %q has active users", name)
		}
	}
	return e.st.Close()
}

// Update runs fn within a single writable storage transaction, committing on
// a nil return and rolling back otherwise.
func (e *Engine) Update(fn func(tx storageTx) error) error {
	tx, err := e.st.BeginTx(true)
	if err != nil {
		return wrapErr(KindIOError, "Engine.Update", err, "beginning write transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return wrapErr(KindIOError, "Engine.Update", err, "committing transaction")
	}
	return nil
}

// View runs fn within a read-only storage transaction.
func (e *Engine) View(fn func(tx storageTx) error) error {
	tx, err := e.st.BeginTx(false)
	if err != nil {
		return wrapErr(KindIOError, "Engine.View", err, "beginning read transaction")
	}
	defer tx.Rollback()
	return fn(tx)
}

// compactor is implemented by storage backends that support Compact; the
// in-memory backend doesn't.
type compactor interface {
	compact() error
}

// Compact rewrites the bbolt-backed storage file into a fresh one with no
// free-list fragmentation, then invokes any callback registered with
// OnCompact. It fails with KindBusy if any View has active users, and with
// KindUnsupported on the in-memory backend.
func (e *Engine) Compact() error {
	c, ok := e.st.(compactor)
	if !ok {
		return wrapErr(KindUnsupported, "Engine.Compact", nil, "storage backend does not support compaction")
	}
	e.mu.Lock()
	for name, v := range e.views {
		if v.isBusy() {
			e.mu.Unlock()
			return wrapErr(KindBusy, "Engine.Compact", nil, "view %q has active users", name)
		}
	}
	e.mu.Unlock()
	if err := c.compact(); err != nil {
		return err
	}
	e.notifyCompact()
	return nil
}

// OnCompact registers a callback invoked after Compact runs, so cached size
// statistics held by open Views can be invalidated.
func (e *Engine) OnCompact(fn func()) {
	e.mu.Lock()
	e.compactFn = fn
	e.mu.Unlock()
}

func (e *Engine) notifyCompact() {
	e.mu.Lock()
	fn := e.compactFn
	e.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (e *Engine) registerView(v *View) {
	e.mu.Lock()
	e.views[v.name] = v
	e.mu.Unlock()
}

func (e *Engine) unregisterView(name string) {
	e.mu.Lock()
	delete(e.views, name)
	e.mu.Unlock()
}
