package viewdb

import (
	"encoding/binary"
	"errors"
	"reflect"
	"testing"
)

func TestBytesBuilder_Basics(t *testing.T) {
	var bb bytesBuilder
	off := bb.Grow(3)
	copy(bb.Buf[off:], []byte{1, 2, 3})
	bb.AppendByte(4)
	bb.AppendFixedUint64(0x0102030405060708)

	want := make([]byte, 0, 1+3+8)
	want = append(want, 1, 2, 3, 4)
	var u64 [8]byte
	binary.BigEndian.PutUint64(u64[:], 0x0102030405060708)
	want = append(want, u64[:]...)

	if !reflect.DeepEqual(bb.Buf, want) {
		t.Fatalf("bb.Buf = %x, wanted %x", bb.Buf, want)
	}
}

func TestByteUtil_AppendHelpers(t *testing.T) {
	src := []byte{0xAA, 0xBB, 0xCC}
	buf := appendRaw(nil, src)
	if !reflect.DeepEqual(buf, src) {
		t.Fatalf("appendRaw = %x, wanted %x", buf, src)
	}

	buf = appendUvarint(nil, 0x42)
	d := makeByteDecoder(buf)
	v, n := binary.Uvarint(d.Buf)
	if n <= 0 || v != 0x42 {
		t.Fatalf("appendUvarint roundtrip = (v=%d, n=%d), wanted (66, >0)", v, n)
	}
}

func TestByteDecoder_Errors(t *testing.T) {
	t.Run("Raw not enough data", func(t *testing.T) {
		d := makeByteDecoder([]byte{1, 2})
		_, err := d.Raw(3)
		if err == nil {
			t.Fatalf("Raw err = nil, wanted error")
		}
		var de *DataError
		if !errors.As(err, &de) {
			t.Fatalf("Raw err = %T %v, wanted *DataError", err, err)
		}
		if de.Off != 0 {
			t.Fatalf("DataError.Off = %d, wanted 0", de.Off)
		}
	})

	t.Run("Raw advances offset", func(t *testing.T) {
		d := makeByteDecoder([]byte{1, 2, 3})
		if _, err := d.Raw(1); err != nil {
			t.Fatal(err)
		}
		if d.Off() != 1 {
			t.Fatalf("Off() = %d, wanted 1", d.Off())
		}
	})
}
