package viewdb

import (
	"bytes"
	"context"
	"log/slog"
)

const debugLogRawScans = false

// KeyRange is a contiguous interval over collatable byte order, as described
// in the data model: (start, end, inclusiveStart, inclusiveEnd). A KeyRange
// with Start equal to End and both bounds inclusive denotes a single key.
type KeyRange struct {
	Start          []byte
	End            []byte
	InclusiveStart bool
	InclusiveEnd   bool
}

// SingleKey returns the KeyRange that matches exactly one collatable key.
func SingleKey(key []byte) KeyRange {
	return KeyRange{Start: key, End: key, InclusiveStart: true, InclusiveEnd: true}
}

// isPastEnd reports whether key falls beyond this range's relevant bound for
// the given traversal direction, letting an enumerator short-circuit instead
// of re-deriving the comparison inline (grounded on the original KeyRange's
// isKeyPastEnd helper).
func (kr KeyRange) isPastEnd(key []byte, descending bool) bool {
	if descending {
		if kr.Start == nil {
			return false
		}
		cmp := bytes.Compare(key, kr.Start)
		return cmp < 0 || (cmp == 0 && !kr.InclusiveStart)
	}
	if kr.End == nil {
		return false
	}
	cmp := bytes.Compare(key, kr.End)
	return cmp > 0 || (cmp == 0 && !kr.InclusiveEnd)
}

// toRaw lowers a public KeyRange, plus an optional grouping/common prefix,
// into the low-level range mechanics that drive a storageCursor directly.
func (kr KeyRange) toRaw(prefix []byte, descending bool) rawRange {
	r := rawRange{
		Prefix:   prefix,
		Lower:    kr.Start,
		Upper:    kr.End,
		LowerInc: kr.InclusiveStart,
		UpperInc: kr.InclusiveEnd,
		Reverse:  descending,
	}
	if kr.Start == nil {
		r.LowerInc = true
	}
	if kr.End == nil {
		r.UpperInc = true
	}
	return r
}

// rawRange drives a storageCursor directly over a byte range. The
// constructors use mnemonics: O means open, I means inclusive, E means
// exclusive; the first letter is for the lower bound, the second for the
// upper bound.
type rawRange struct {
	Prefix   []byte
	Lower    []byte
	Upper    []byte
	LowerInc bool
	UpperInc bool
	Reverse  bool
}

func rawOO() rawRange           { return rawRange{} }
func rawPrefix(p []byte) rawRange { return rawRange{Prefix: p} }
func (r rawRange) reversed() rawRange { r.Reverse = true; return r }

func (r *rawRange) start(bcur storageCursor, logger *slog.Logger) ([]byte, []byte) {
	var k, v []byte
	var skipInitial bool
	if r.Reverse {
		upper := r.Upper
		if upper != nil {
			skipInitial = !r.UpperInc
			if r.Prefix != nil && !bytes.HasPrefix(upper, r.Prefix) {
				panic("upper bound does not match prefix")
			}
		} else if r.Prefix != nil {
			upper = r.Prefix
		}
		if upper != nil {
			k, v = bcur.SeekLast(upper)
			if debugLogRawScans {
				logger.LogAttrs(context.Background(), slog.LevelDebug, "SEEK to upper", hexAttr("upper", upper), hexAttr("key", k), hexAttr("val", v))
			}
			if skipInitial && !bytes.HasPrefix(k, upper) {
				skipInitial = false
			}
		} else {
			k, v = bcur.Last()
		}
	} else {
		lower := r.Lower
		if lower != nil {
			skipInitial = !r.LowerInc
			if r.Prefix != nil && !bytes.HasPrefix(lower, r.Prefix) {
				panic("lower bound does not match prefix")
			}
		} else if r.Prefix != nil {
			lower = r.Prefix
		}
		if lower != nil {
			k, v = bcur.Seek(lower)
			if debugLogRawScans {
				logger.LogAttrs(context.Background(), slog.LevelDebug, "SEEK to lower", hexAttr("lower", lower), hexAttr("key", k), hexAttr("val", v))
			}
			if skipInitial && !bytes.HasPrefix(k, lower) {
				skipInitial = false
			}
		} else {
			k, v = bcur.First()
		}
	}
	if k != nil && r.match(k, v, logger) {
		if skipInitial {
			return r.next(bcur, logger)
		}
		return k, v
	}
	return nil, nil
}

func (r *rawRange) next(bcur storageCursor, logger *slog.Logger) ([]byte, []byte) {
	var k, v []byte
	if r.Reverse {
		k, v = bcur.Prev()
	} else {
		k, v = bcur.Next()
	}
	if k != nil && r.match(k, v, logger) {
		return k, v
	}
	return nil, nil
}

func (r *rawRange) match(k, v []byte, logger *slog.Logger) bool {
	if r.Prefix != nil && !bytes.HasPrefix(k, r.Prefix) {
		return false
	}
	if r.Reverse {
		if lower := r.Lower; lower != nil {
			cmp := bytes.Compare(k, lower)
			if cmp == -1 || (cmp == 0 && !r.LowerInc) {
				return false
			}
		}
	} else {
		if upper := r.Upper; upper != nil {
			cmp := bytes.Compare(k, upper)
			if cmp == 1 || (cmp == 0 && !r.UpperInc) {
				return false
			}
		}
	}
	if debugLogRawScans {
		logger.LogAttrs(context.Background(), slog.LevelDebug, "MATCH", hexAttr("key", k), hexAttr("val", v))
	}
	return true
}

func (r *rawRange) newCursor(bcur storageCursor, logger *slog.Logger) *rawRangeCursor {
	return &rawRangeCursor{rang: *r, bcur: bcur, logger: logger}
}

// rawRangeCursor is the low-level byte-range cursor the Enumerator composes
// across one or more KeyRanges (or a key list).
type rawRangeCursor struct {
	rang   rawRange
	bcur   storageCursor
	logger *slog.Logger
	k, v   []byte
	init   bool
}

func (c *rawRangeCursor) Next() bool {
	if c.init {
		c.k, c.v = c.rang.next(c.bcur, c.logger)
	} else {
		c.init = true
		c.k, c.v = c.rang.start(c.bcur, c.logger)
	}
	return c.k != nil
}

func (c *rawRangeCursor) Key() []byte   { return c.k }
func (c *rawRangeCursor) Value() []byte { return c.v }
