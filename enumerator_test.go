package viewdb

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
)

func setupNumberView(t *testing.T, nums ...float64) (*Engine, *View) {
	t.Helper()
	e := OpenMem(EngineOptions{})
	v := must(e.OpenView("v1", "a", ViewConfig{}))
	src := newMemDocSource()
	for i, n := range nums {
		src.Put(docIDFor(i), "", []byte(jsonNum(n)))
	}
	mapFn := func(doc Document, emit Emitter) {
		var body numDoc
		if err := json.Unmarshal(doc.Body, &body); err != nil {
			return
		}
		emit.Emit(NewBuilder(nil).AddNumber(body.N).Bytes(), nil)
	}
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
	return e, v
}

func docIDFor(i int) string { return string([]byte{'a' + byte(i)}) }
func jsonNum(n float64) string { return fmt.Sprintf(`{"n":%v}`, n) }

func TestEnumerator_SkipAndLimit(t *testing.T) {
	_, v := setupNumberView(t, 1, 2, 3, 4, 5)
	en := must(v.NewEnumerator(QueryOptions{InclusiveStart: true, InclusiveEnd: true, Skip: 1, Limit: 2}))
	defer en.Close()

	var got []float64
	for en.Next() {
		val, err := NewReader(en.Key()).ReadValue()
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, val.(float64))
	}
	if en.Err() != nil {
		t.Fatal(en.Err())
	}
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("got = %v, wanted [2 3]", got)
	}
}

func TestEnumerator_Descending(t *testing.T) {
	_, v := setupNumberView(t, 1, 2, 3)
	en := must(v.NewEnumerator(QueryOptions{InclusiveStart: true, InclusiveEnd: true, Descending: true}))
	defer en.Close()

	var got []float64
	for en.Next() {
		val, err := NewReader(en.Key()).ReadValue()
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, val.(float64))
	}
	if len(got) != 3 || got[0] != 3 || got[1] != 2 || got[2] != 1 {
		t.Fatalf("got = %v, wanted [3 2 1]", got)
	}
}

func TestEnumerator_KeyListHonorsListOrderAndTracksRange(t *testing.T) {
	_, v := setupNumberView(t, 1, 2, 3)
	keys := [][]byte{
		NewBuilder(nil).AddNumber(3).Bytes(),
		NewBuilder(nil).AddNumber(1).Bytes(),
	}
	en := must(v.NewEnumerator(QueryOptions{Keys: keys}))
	defer en.Close()

	var got []float64
	var ranges []int
	for en.Next() {
		val, err := NewReader(en.Key()).ReadValue()
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, val.(float64))
		ranges = append(ranges, en.CurrentRangeIndex())
	}
	if len(got) != 2 || got[0] != 3 || got[1] != 1 {
		t.Fatalf("got = %v, wanted [3 1] (list order, not re-sorted)", got)
	}
	if ranges[0] != 0 || ranges[1] != 1 {
		t.Fatalf("ranges = %v, wanted [0 1]", ranges)
	}
}

func TestEnumerator_ExclusiveBoundsExcludeEndpointRows(t *testing.T) {
	_, v := setupNumberView(t, 1, 2, 3)
	en := must(v.NewEnumerator(QueryOptions{
		StartKey: NewBuilder(nil).AddNumber(1).Bytes(),
		EndKey:   NewBuilder(nil).AddNumber(3).Bytes(),
	}))
	defer en.Close()

	var got []float64
	for en.Next() {
		val, err := NewReader(en.Key()).ReadValue()
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, val.(float64))
	}
	if len(got) != 1 || got[0] != 2 {
		t.Fatalf("got = %v, wanted [2] (both endpoints exclusive)", got)
	}
}

func TestEnumerator_SequenceReportsDocSequenceOnPlainPath(t *testing.T) {
	_, v := setupNumberView(t, 10, 20, 30)
	en := must(v.NewEnumerator(DefaultQueryOptions()))
	defer en.Close()

	var seqs []uint64
	for en.Next() {
		seqs = append(seqs, en.Sequence())
	}
	if en.Err() != nil {
		t.Fatal(en.Err())
	}
	if len(seqs) != 3 || seqs[0] != 1 || seqs[1] != 2 || seqs[2] != 3 {
		t.Fatalf("seqs = %v, wanted [1 2 3] (one per docIDFor(i) in Put order)", seqs)
	}
}

func TestEnumerator_SequenceIsZeroedOnReducedRows(t *testing.T) {
	_, v := setupNumberView(t, 1, 2, 3)
	en := must(v.NewEnumerator(QueryOptions{
		InclusiveStart: true, InclusiveEnd: true,
		GroupLevel: 0,
		Reduce:     &SumReduce{},
	}))
	defer en.Close()

	if !en.Next() {
		t.Fatalf("expected one reduced row, got none: %v", en.Err())
	}
	if en.Sequence() != 0 {
		t.Fatalf("Sequence() = %d on a reduced row, want 0", en.Sequence())
	}
}

func TestEnumerator_InclusiveEndIncludesAllRowsOfThatKey(t *testing.T) {
	e := OpenMem(EngineOptions{})
	v := must(e.OpenView("v1", "a", ViewConfig{}))
	src := newMemDocSource()
	src.Put("d1", "", nil)
	src.Put("d2", "", nil)
	sameKey := NewBuilder(nil).AddNumber(7).Bytes()

	ix := must(BeginIndexer(e, src, v))
	cur := must(ix.EnumerateDocuments(context.Background()))
	for cur.Next() {
		doc := cur.Document()
		if !ix.ShouldIndexDocument(v, doc) {
			continue
		}
		if err := ix.Emit(v, doc, [][]byte{sameKey}, [][]byte{[]byte(doc.DocID)}); err != nil {
			t.Fatal(err)
		}
	}
	cur.Close()
	if err := ix.End(true); err != nil {
		t.Fatal(err)
	}

	en := must(v.NewEnumerator(QueryOptions{StartKey: sameKey, EndKey: sameKey, InclusiveStart: true, InclusiveEnd: true}))
	defer en.Close()
	var docIDs []string
	for en.Next() {
		docIDs = append(docIDs, en.DocID())
	}
	if len(docIDs) != 2 {
		t.Fatalf("docIDs = %v, wanted both rows sharing the inclusive-end key", docIDs)
	}
}
