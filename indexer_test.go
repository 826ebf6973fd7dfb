package viewdb

import (
	"context"
	"encoding/json"
	"testing"
)

type numDoc struct {
	N float64 `json:"n"`
}

func numMapFunc(doc Document, emit Emitter) {
	var body numDoc
	if err := json.Unmarshal(doc.Body, &body); err != nil {
		return
	}
	emit.Emit(NewBuilder(nil).BeginArray().AddNumber(body.N).EndArray().Bytes(), doc.Body)
}

func runBatch(t *testing.T, e *Engine, src DocSource, v *View) {
	t.Helper()
	ix := must(BeginIndexer(e, src, v))
	cur := must(ix.EnumerateDocuments(context.Background()))
	defer cur.Close()
	for cur.Next() {
		doc := cur.Document()
		if !ix.ShouldIndexDocument(v, doc) {
			continue
		}
		if err := ix.EmitList(v, doc, numMapFunc); err != nil {
			t.Fatal(err)
		}
	}
	if err := cur.Err(); err != nil {
		t.Fatal(err)
	}
	if err := ix.End(true); err != nil {
		t.Fatal(err)
	}
}

// TestIndexer_S1ThroughS4 walks spec scenarios S1-S4 end to end.
func TestIndexer_S1ThroughS4(t *testing.T) {
	e := OpenMem(EngineOptions{})
	defer e.Close()
	v := must(e.OpenView("v1", "a", ViewConfig{DocType: "x"}))
	src := newMemDocSource()

	// S1
	src.Put("d1", "x", []byte(`{"n":1}`))
	src.Put("d2", "x", []byte(`{"n":2}`))
	runBatch(t, e, src, v)
	st := v.snapshotState()
	if st.TotalRows != 2 || st.LastSequenceIndexed != 2 || st.LastSequenceChangedAt != 2 {
		t.Fatalf("S1: state = %+v", st)
	}

	en := must(v.NewEnumerator(QueryOptions{
		StartKey: NewBuilder(nil).BeginArray().AddNumber(1).EndArray().Bytes(),
		EndKey:   NewBuilder(nil).BeginArray().AddNumber(2).EndArray().Bytes(),
		InclusiveStart: true, InclusiveEnd: true,
	}))
	var docIDs []string
	for en.Next() {
		docIDs = append(docIDs, en.DocID())
	}
	en.Close()
	if len(docIDs) != 2 || docIDs[0] != "d1" || docIDs[1] != "d2" {
		t.Fatalf("S1 range = %v, wanted [d1 d2]", docIDs)
	}

	// S2: re-run, nothing changes.
	runBatch(t, e, src, v)
	st = v.snapshotState()
	if st.TotalRows != 2 || st.LastSequenceChangedAt != 2 {
		t.Fatalf("S2: state = %+v, wanted unchanged", st)
	}

	// S3: update d1.
	src.Put("d1", "x", []byte(`{"n":3}`))
	runBatch(t, e, src, v)
	st = v.snapshotState()
	if st.TotalRows != 2 || st.LastSequenceChangedAt != 3 {
		t.Fatalf("S3: state = %+v", st)
	}
	en = must(v.NewEnumerator(DefaultQueryOptions()))
	docIDs = nil
	for en.Next() {
		docIDs = append(docIDs, en.DocID())
	}
	en.Close()
	if len(docIDs) != 2 || docIDs[0] != "d2" || docIDs[1] != "d1" {
		t.Fatalf("S3 ascending order = %v, wanted [d2 d1]", docIDs)
	}

	// S4: delete d2.
	src.Delete("d2")
	runBatch(t, e, src, v)
	st = v.snapshotState()
	if st.TotalRows != 1 || st.LastSequenceChangedAt != 4 {
		t.Fatalf("S4: state = %+v", st)
	}
}

// TestIndexer_S5VersionInvalidation walks spec scenario S5.
func TestIndexer_S5VersionInvalidation(t *testing.T) {
	e := OpenMem(EngineOptions{})
	defer e.Close()
	v := must(e.OpenView("v1", "a", ViewConfig{DocType: "x"}))
	src := newMemDocSource()
	src.Put("d1", "x", []byte(`{"n":1}`))
	runBatch(t, e, src, v)

	v2 := must(e.OpenView("v1", "b", ViewConfig{DocType: "x"}))
	st := v2.snapshotState()
	if st.TotalRows != 0 || st.LastSequenceIndexed != 0 {
		t.Fatalf("S5: state = %+v, wanted zeroed", st)
	}
	en := must(v2.NewEnumerator(DefaultQueryOptions()))
	if en.Next() {
		t.Fatal("S5: expected no rows after version bump")
	}
	en.Close()
}

func TestIndexer_EmitExhaustivenessRequired(t *testing.T) {
	e := OpenMem(EngineOptions{})
	defer e.Close()
	v := must(e.OpenView("v1", "a", ViewConfig{}))
	src := newMemDocSource()
	src.Put("d1", "x", []byte(`{"n":1}`))

	ix := must(BeginIndexer(e, src, v))
	cur := must(ix.EnumerateDocuments(context.Background()))
	for cur.Next() {
		ix.ShouldIndexDocument(v, cur.Document()) // visited but never emitted
	}
	cur.Close()

	if err := ix.End(true); !Is(err, KindInvalidParameter) {
		t.Fatalf("End(true) err = %v, wanted KindInvalidParameter", err)
	}
}

func TestIndexer_IndexBusyOnOverlap(t *testing.T) {
	e := OpenMem(EngineOptions{})
	defer e.Close()
	v := must(e.OpenView("v1", "a", ViewConfig{}))
	src := newMemDocSource()

	ix1 := must(BeginIndexer(e, src, v))
	if _, err := BeginIndexer(e, src, v); !Is(err, KindIndexBusy) {
		t.Fatalf("second BeginIndexer err = %v, wanted KindIndexBusy", err)
	}
	if err := ix1.End(false); err != nil {
		t.Fatal(err)
	}
	if _, err := BeginIndexer(e, src, v); err != nil {
		t.Fatalf("BeginIndexer after abort should succeed: %v", err)
	}
}

func TestIndexer_ReduceScenarioS6(t *testing.T) {
	e := OpenMem(EngineOptions{})
	defer e.Close()
	v := must(e.OpenView("v1", "a", ViewConfig{}))
	src := newMemDocSource()

	mapFn := func(doc Document, emit Emitter) {
		var pair [2]any
		if err := json.Unmarshal(doc.Body, &pair); err != nil {
			return
		}
		group, _ := pair[0].(string)
		n, _ := pair[1].(float64)
		emit.Emit(NewBuilder(nil).BeginArray().AddString(group).AddNumber(n).EndArray().Bytes(), nil)
	}

	src.Put("d1", "", []byte(`["A",1]`))
	src.Put("d2", "", []byte(`["A",2]`))
	src.Put("d3", "", []byte(`["B",1]`))

	ix := must(BeginIndexer(e, src, v))
	cur := must(ix.EnumerateDocuments(context.Background()))
	for cur.Next() {
		doc := cur.Document()
		if !ix.ShouldIndexDocument(v, doc) {
			continue
		}
		if err := ix.EmitList(v, doc, mapFn); err != nil {
			t.Fatal(err)
		}
	}
	cur.Close()
	if err := ix.End(true); err != nil {
		t.Fatal(err)
	}

	en := must(v.NewEnumerator(QueryOptions{
		InclusiveStart: true, InclusiveEnd: true,
		GroupLevel: 1,
		Reduce:     &SumReduce{},
	}))
	defer en.Close()

	type row struct {
		key string
		sum float64
	}
	var rows []row
	for en.Next() {
		s, err := NewReader(en.Key()).ReadValue()
		if err != nil {
			t.Fatal(err)
		}
		arr, _ := s.([]any)
		var key string
		if len(arr) > 0 {
			key, _ = arr[0].(string)
		}
		v, err := NewReader(en.Value()).ReadValue()
		if err != nil {
			t.Fatal(err)
		}
		sum, _ := v.(float64)
		rows = append(rows, row{key, sum})
	}
	if en.Err() != nil {
		t.Fatal(en.Err())
	}
	if len(rows) != 2 || rows[0] != (row{"A", 3}) || rows[1] != (row{"B", 1}) {
		t.Fatalf("S6 rows = %+v, wanted [{A 3} {B 1}]", rows)
	}
}
