package viewdb

// Emission is one (key, value) pair produced by a MapFunc for one document.
// Value of exactly Special means "substitute the source document body".
type Emission struct {
	Key   []byte
	Value []byte
}

// Emitter is the capability object a MapFunc uses to emit rows for the
// document it was invoked on; the core owns no closures, per the design's
// callback-driven map/reduce model.
type Emitter interface {
	Emit(key, value []byte)
}

// MapFunc is invoked per document per view, between ShouldIndexDocument and
// Emit, to produce this view's rows for that document. The core imposes no
// language on its implementation and consumes only the emitted pairs.
type MapFunc func(doc Document, emit Emitter)

// collectingEmitter is the Emitter the Indexer passes to a MapFunc; it just
// accumulates emissions in call order so emitIndex (their position) is
// well-defined.
type collectingEmitter struct {
	emissions []Emission
}

func (e *collectingEmitter) Emit(key, value []byte) {
	e.emissions = append(e.emissions, Emission{Key: key, Value: value})
}

// ReduceFunc accumulates values sharing a grouped key and produces one
// reduced value per group. The slice returned by Reduce must remain valid
// until the next Accumulate call; the Enumerator must not retain it past its
// own next advance.
type ReduceFunc interface {
	// Accumulate folds one row's key (as a Reader positioned at its start)
	// and value into the running accumulator.
	Accumulate(key *Reader, value []byte)

	// Reduce returns the accumulated result and resets the accumulator for
	// the next group.
	Reduce() []byte
}

// SumReduce is a minimal ReduceFunc that sums the second element of each
// row's key array (a common "group by first element, sum the second" shape),
// used by this package's own tests and usable as a template for callers.
type SumReduce struct {
	sum float64
	buf []byte
}

func (r *SumReduce) Accumulate(key *Reader, _ []byte) {
	if err := key.BeginArray(); err != nil {
		return
	}
	var second float64
	for i := 0; !key.AtSequenceEnd(); i++ {
		v, err := key.ReadValue()
		if err != nil {
			return
		}
		if n, ok := v.(float64); ok && i == 1 {
			second = n // the row's second element is what gets summed
		}
	}
	r.sum += second
	_ = key.EndSequence()
}

func (r *SumReduce) Reduce() []byte {
	r.buf = NewBuilder(r.buf[:0]).AddNumber(r.sum).Bytes()
	r.sum = 0
	return r.buf
}
