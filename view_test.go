package viewdb

import "testing"

func TestView_OpenPersistsAndReopens(t *testing.T) {
	e := OpenMem(EngineOptions{})
	defer e.Close()

	v, err := e.OpenView("v1", "a", ViewConfig{DocType: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if v.Version() != "a" {
		t.Fatalf("version = %q, wanted a", v.Version())
	}

	// Reopen with the same version: state carries over untouched.
	v.state.TotalRows = 5
	if err := v.engine.Update(func(tx storageTx) error {
		buck, err := tx.CreateBucket(v.name, sectionState)
		if err != nil {
			return err
		}
		return saveViewState(buck, v.state)
	}); err != nil {
		t.Fatal(err)
	}

	v2, err := e.OpenView("v1", "a", ViewConfig{DocType: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if v2.snapshotState().TotalRows != 5 {
		t.Fatalf("totalRows = %d, wanted 5 (same version should not reset)", v2.snapshotState().TotalRows)
	}
}

func TestView_VersionMismatchResets(t *testing.T) {
	e := OpenMem(EngineOptions{})
	defer e.Close()

	v, err := e.OpenView("v1", "a", ViewConfig{})
	if err != nil {
		t.Fatal(err)
	}
	v.mu.Lock()
	v.state.TotalRows = 5
	v.state.LastSequenceIndexed = 9
	newState := v.state
	v.mu.Unlock()
	if err := v.engine.Update(func(tx storageTx) error {
		buck, err := tx.CreateBucket(v.name, sectionState)
		if err != nil {
			return err
		}
		return saveViewState(buck, newState)
	}); err != nil {
		t.Fatal(err)
	}

	v2, err := e.OpenView("v1", "b", ViewConfig{})
	if err != nil {
		t.Fatal(err)
	}
	st := v2.snapshotState()
	if st.TotalRows != 0 || st.LastSequenceIndexed != 0 {
		t.Fatalf("state = %+v, wanted zeroed after version change", st)
	}
}

func TestView_BusySafety(t *testing.T) {
	e := OpenMem(EngineOptions{})
	defer e.Close()

	v, err := e.OpenView("v1", "a", ViewConfig{})
	if err != nil {
		t.Fatal(err)
	}

	v.addUser()
	if err := v.EraseIndex(); !Is(err, KindBusy) {
		t.Fatalf("EraseIndex err = %v, wanted KindBusy", err)
	}
	if err := v.Delete(); !Is(err, KindBusy) {
		t.Fatalf("Delete err = %v, wanted KindBusy", err)
	}
	v.removeUser()

	if err := v.EraseIndex(); err != nil {
		t.Fatalf("EraseIndex should succeed once idle: %v", err)
	}
}

func TestView_DeleteClearsPersistedState(t *testing.T) {
	e := OpenMem(EngineOptions{})
	defer e.Close()

	v, err := e.OpenView("v1", "a", ViewConfig{DocType: "x"})
	if err != nil {
		t.Fatal(err)
	}
	v.mu.Lock()
	v.state.TotalRows = 7
	v.state.LastSequenceIndexed = 3
	v.state.LastSequenceChangedAt = 3
	newState := v.state
	v.mu.Unlock()
	if err := v.engine.Update(func(tx storageTx) error {
		buck, err := tx.CreateBucket(v.name, sectionState)
		if err != nil {
			return err
		}
		return saveViewState(buck, newState)
	}); err != nil {
		t.Fatal(err)
	}

	if err := v.Delete(); err != nil {
		t.Fatalf("Delete() = %v", err)
	}

	v2, err := e.OpenView("v1", "a", ViewConfig{DocType: "x"})
	if err != nil {
		t.Fatal(err)
	}
	st := v2.snapshotState()
	if st.TotalRows != 0 || st.LastSequenceIndexed != 0 || st.LastSequenceChangedAt != 0 {
		t.Fatalf("state = %+v, wanted zeroed after Delete followed by reopen at the same version", st)
	}
}

func TestView_TryBeginIndexingExclusive(t *testing.T) {
	e := OpenMem(EngineOptions{})
	defer e.Close()
	v := must(e.OpenView("v1", "a", ViewConfig{}))

	if !v.tryBeginIndexing() {
		t.Fatal("first tryBeginIndexing should succeed")
	}
	if v.tryBeginIndexing() {
		t.Fatal("second concurrent tryBeginIndexing should fail")
	}
	v.endIndexing()
	if !v.tryBeginIndexing() {
		t.Fatal("tryBeginIndexing should succeed again after endIndexing")
	}
	v.endIndexing()
}
