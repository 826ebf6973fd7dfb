package viewdb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// Tag identifies the kind of value encoded at a given position in a
// collatable byte string. Values are chosen so that ascending Tag order
// matches the defined total order of the JSON-shaped value space.
type Tag byte

const (
	TagEndSequence Tag = 0 // closes an array/map; also the decode-past-end sentinel
	TagNull        Tag = 1
	TagFalse       Tag = 2
	TagTrue        Tag = 3
	TagNegative    Tag = 4
	TagPositive    Tag = 5
	TagString      Tag = 6
	TagArray       Tag = 7
	TagMap         Tag = 8
	TagSpecial     Tag = 9 // placeholder meaning "the entire source document"

	tagError Tag = 255 // never stored; returned by PeekTag on malformed input
)

// Special is the single-byte row-value sentinel 0x2A ("*") meaning "substitute
// the source document body", per the map-function contract. It is a plain
// value byte emitted in place of real value-bytes, not a collatable-encoded
// value, so it is unrelated to TagSpecial (the tag ordinal used when the
// special value appears as an element inside a collatable-encoded key).
var Special = []byte{0x2A}

// Compare is byte-lexicographic comparison of two encoded collatable values.
// It exists only as a named synonym for bytes.Compare: implementations must
// not define any other notion of order for encoded values.
func Compare(a, b []byte) int {
	return bytes.Compare(a, b)
}

// Builder appends collatable-encoded values to an owned byte buffer. Every
// BeginArray/BeginMap must be matched by an EndArray/EndMap; map entries
// alternate key then value. Builders are not safe for concurrent use.
type Builder struct {
	buf   bytesBuilder
	depth int
}

// NewBuilder returns an empty Builder, optionally reusing buf's backing array.
func NewBuilder(buf []byte) *Builder {
	return &Builder{buf: bytesBuilder{Buf: buf[:0]}}
}

// Len returns the number of bytes appended so far.
func (b *Builder) Len() int { return len(b.buf.Buf) }

// Bytes extracts the owned buffer. It panics if a begin was never matched by
// an end — an assertion-class programming fault, not a runtime data error.
func (b *Builder) Bytes() []byte {
	if b.depth != 0 {
		panic(fmt.Sprintf("collatable: %d unmatched begin-array/begin-map", b.depth))
	}
	return b.buf.Buf
}

func (b *Builder) AddNull() *Builder {
	b.buf.AppendByte(byte(TagNull))
	return b
}

func (b *Builder) AddBool(v bool) *Builder {
	if v {
		b.buf.AppendByte(byte(TagTrue))
	} else {
		b.buf.AppendByte(byte(TagFalse))
	}
	return b
}

// AddNumber appends a float64 such that, for any x < y (excluding NaN),
// AddNumber(x) sorts before AddNumber(y). +0.0 and -0.0 encode identically.
func (b *Builder) AddNumber(v float64) *Builder {
	if math.IsNaN(v) {
		panic("collatable: cannot encode NaN")
	}
	bits := math.Float64bits(math.Abs(v))
	if v < 0 {
		b.buf.AppendByte(byte(TagNegative))
		bits = ^bits
	} else {
		b.buf.AppendByte(byte(TagPositive))
	}
	b.buf.AppendFixedUint64(bits)
	return b
}

// AddString appends s so that byte order matches ASCII case-insensitive
// collation as the primary key, with exact bytes (including case) as a
// deterministic tiebreak; decoding always recovers s exactly.
func (b *Builder) AddString(s string) *Builder {
	b.buf.AppendByte(byte(TagString))
	appendEscapedRun(&b.buf, foldASCII([]byte(s)))
	appendEscapedRun(&b.buf, []byte(s))
	return b
}

// AddSpecial appends the "substitute the source document body" placeholder.
func (b *Builder) AddSpecial() *Builder {
	b.buf.AppendByte(byte(TagSpecial))
	return b
}

func (b *Builder) BeginArray() *Builder {
	b.buf.AppendByte(byte(TagArray))
	b.depth++
	return b
}

func (b *Builder) EndArray() *Builder {
	return b.endSeq()
}

func (b *Builder) BeginMap() *Builder {
	b.buf.AppendByte(byte(TagMap))
	b.depth++
	return b
}

func (b *Builder) EndMap() *Builder {
	return b.endSeq()
}

func (b *Builder) endSeq() *Builder {
	if b.depth <= 0 {
		panic("collatable: end-sequence without matching begin")
	}
	b.depth--
	b.buf.AppendByte(byte(TagEndSequence))
	return b
}

// AddValue appends a generic Go value built from the usual JSON-shaped types
// (nil, bool, float64, int, string, []any, map[string]any), recursively.
// Map keys are sorted for determinism since Go map iteration order is not.
func (b *Builder) AddValue(v any) *Builder {
	switch x := v.(type) {
	case nil:
		b.AddNull()
	case bool:
		b.AddBool(x)
	case float64:
		b.AddNumber(x)
	case float32:
		b.AddNumber(float64(x))
	case int:
		b.AddNumber(float64(x))
	case int64:
		b.AddNumber(float64(x))
	case string:
		b.AddString(x)
	case []any:
		b.BeginArray()
		for _, e := range x {
			b.AddValue(e)
		}
		b.EndArray()
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sortStrings(keys)
		b.BeginMap()
		for _, k := range keys {
			b.AddString(k)
			b.AddValue(x[k])
		}
		b.EndMap()
	default:
		panic(fmt.Sprintf("collatable: unsupported value type %T", v))
	}
	return b
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// foldASCII returns a copy of b with ASCII letters mapped to lowercase; all
// other bytes, including multi-byte UTF-8 sequences, pass through unchanged.
// Folding never changes byte length, which is what keeps the primary and
// secondary runs in AddString self-delimiting with a shared escaping scheme.
func foldASCII(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return out
}

// appendEscapedRun appends data terminated by 0x00 0x00, escaping any literal
// 0x00 byte in data as 0x00 0xFF. Since the escape byte (0xFF) never equals
// the terminator's second byte (0x00), the terminator is unambiguous and the
// encoding remains order-preserving: an escaped 0x00 always sorts after the
// terminator at that position, correctly reflecting "the string continues".
func appendEscapedRun(buf *bytesBuilder, data []byte) {
	for _, c := range data {
		buf.AppendByte(c)
		if c == 0x00 {
			buf.AppendByte(0xFF)
		}
	}
	buf.AppendByte(0x00)
	buf.AppendByte(0x00)
}

// readEscapedRun reads and unescapes one run written by appendEscapedRun.
func readEscapedRun(d *byteDecoder) ([]byte, error) {
	var out []byte
	for {
		b, err := d.Raw(1)
		if err != nil {
			return nil, dataErrf(d.Orig, d.Off(), err, "unterminated string run")
		}
		if b[0] != 0x00 {
			out = append(out, b[0])
			continue
		}
		b2, err := d.Raw(1)
		if err != nil {
			return nil, dataErrf(d.Orig, d.Off(), err, "unterminated string run")
		}
		if b2[0] == 0x00 {
			return out, nil
		}
		if b2[0] == 0xFF {
			out = append(out, 0x00)
			continue
		}
		return nil, dataErrf(d.Orig, d.Off(), nil, "invalid escape in string run")
	}
}

// Reader decodes a collatable byte string in place, without copying it, so
// the source buffer must not change while the Reader is in use. The values
// it returns are freshly allocated and do not alias the source buffer.
type Reader struct {
	dec byteDecoder
}

func NewReader(data []byte) *Reader {
	return &Reader{dec: makeByteDecoder(data)}
}

func (r *Reader) AtEnd() bool { return len(r.dec.Buf) == 0 }

// PeekTag returns the tag at the current position without consuming it, or
// tagError if the reader is at end or the byte is not a recognized tag.
func (r *Reader) PeekTag() Tag {
	if r.AtEnd() {
		return tagError
	}
	t := Tag(r.dec.Buf[0])
	if t > TagSpecial {
		return tagError
	}
	return t
}

func (r *Reader) expectTag(want Tag) error {
	t := r.PeekTag()
	if t != want {
		return dataErrf(r.dec.Orig, r.dec.Off(), nil, "expected tag %d, found %d", want, t)
	}
	_, _ = r.dec.Raw(1)
	return nil
}

func (r *Reader) ReadNull() error { return r.expectTag(TagNull) }

func (r *Reader) ReadBool() (bool, error) {
	switch r.PeekTag() {
	case TagTrue:
		_, _ = r.dec.Raw(1)
		return true, nil
	case TagFalse:
		_, _ = r.dec.Raw(1)
		return false, nil
	default:
		return false, dataErrf(r.dec.Orig, r.dec.Off(), nil, "expected bool, found tag %d", r.PeekTag())
	}
}

func (r *Reader) ReadNumber() (float64, error) {
	t := r.PeekTag()
	if t != TagNegative && t != TagPositive {
		return 0, dataErrf(r.dec.Orig, r.dec.Off(), nil, "expected number, found tag %d", t)
	}
	_, _ = r.dec.Raw(1)
	raw, err := r.dec.Raw(8)
	if err != nil {
		return 0, dataErrf(r.dec.Orig, r.dec.Off(), err, "truncated number")
	}
	bits := beUint64(raw)
	if t == TagNegative {
		return -math.Float64frombits(^bits), nil
	}
	return math.Float64frombits(bits), nil
}

func (r *Reader) ReadString() (string, error) {
	if err := r.expectTag(TagString); err != nil {
		return "", err
	}
	if _, err := readEscapedRun(&r.dec); err != nil { // primary (folded) run, discarded
		return "", err
	}
	raw, err := readEscapedRun(&r.dec)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (r *Reader) BeginArray() error { return r.expectTag(TagArray) }
func (r *Reader) BeginMap() error   { return r.expectTag(TagMap) }

// EndSequence consumes the end-sequence tag closing the current array/map.
func (r *Reader) EndSequence() error { return r.expectTag(TagEndSequence) }

// AtSequenceEnd reports whether the next tag is the end-sequence tag, without
// consuming it; used to drive "for !r.AtSequenceEnd() { ... }" loops.
func (r *Reader) AtSequenceEnd() bool {
	return r.PeekTag() == TagEndSequence
}

func (r *Reader) ReadSpecial() error { return r.expectTag(TagSpecial) }

// Skip advances past the current value, recursing into arrays/maps.
func (r *Reader) Skip() error {
	t := r.PeekTag()
	switch t {
	case TagNull, TagFalse, TagTrue, TagSpecial:
		_, _ = r.dec.Raw(1)
		return nil
	case TagNegative, TagPositive:
		_, err := r.ReadNumber()
		return err
	case TagString:
		_, err := r.ReadString()
		return err
	case TagArray:
		if err := r.BeginArray(); err != nil {
			return err
		}
		for !r.AtSequenceEnd() {
			if r.AtEnd() {
				return dataErrf(r.dec.Orig, r.dec.Off(), nil, "unterminated array")
			}
			if err := r.Skip(); err != nil {
				return err
			}
		}
		return r.EndSequence()
	case TagMap:
		if err := r.BeginMap(); err != nil {
			return err
		}
		for !r.AtSequenceEnd() {
			if r.AtEnd() {
				return dataErrf(r.dec.Orig, r.dec.Off(), nil, "unterminated map")
			}
			if err := r.Skip(); err != nil { // key
				return err
			}
			if r.AtSequenceEnd() || r.AtEnd() {
				return dataErrf(r.dec.Orig, r.dec.Off(), nil, "map missing value")
			}
			if err := r.Skip(); err != nil { // value
				return err
			}
		}
		return r.EndSequence()
	default:
		return dataErrf(r.dec.Orig, r.dec.Off(), nil, "invalid tag %d", t)
	}
}

// ReadValue decodes the current value into a generic Go value (nil, bool,
// float64, string, []any, map[string]any), consuming it.
func (r *Reader) ReadValue() (any, error) {
	switch t := r.PeekTag(); t {
	case TagNull:
		return nil, r.ReadNull()
	case TagFalse, TagTrue:
		return r.ReadBool()
	case TagNegative, TagPositive:
		return r.ReadNumber()
	case TagString:
		return r.ReadString()
	case TagSpecial:
		return nil, r.ReadSpecial()
	case TagArray:
		if err := r.BeginArray(); err != nil {
			return nil, err
		}
		var out []any
		for !r.AtSequenceEnd() {
			if r.AtEnd() {
				return nil, dataErrf(r.dec.Orig, r.dec.Off(), nil, "unterminated array")
			}
			v, err := r.ReadValue()
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, r.EndSequence()
	case TagMap:
		if err := r.BeginMap(); err != nil {
			return nil, err
		}
		out := map[string]any{}
		for !r.AtSequenceEnd() {
			if r.AtEnd() {
				return nil, dataErrf(r.dec.Orig, r.dec.Off(), nil, "unterminated map")
			}
			k, err := r.ReadValue()
			if err != nil {
				return nil, err
			}
			if r.AtSequenceEnd() || r.AtEnd() {
				return nil, dataErrf(r.dec.Orig, r.dec.Off(), nil, "map missing value")
			}
			v, err := r.ReadValue()
			if err != nil {
				return nil, err
			}
			out[fmt.Sprint(k)] = v
		}
		return out, r.EndSequence()
	default:
		return nil, dataErrf(r.dec.Orig, r.dec.Off(), nil, "invalid tag %d", t)
	}
}

// DumpJSON decodes the value at the reader's current position and renders it
// as JSON text, for debugging and logging.
func (r *Reader) DumpJSON() (string, error) {
	v, err := r.ReadValue()
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func beUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}
