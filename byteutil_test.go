package recordbin

import (
	"errors"
	"reflect"
	"testing"
)

func TestBuffer_Write(t *testing.T) {
	var b Buffer
	off := b.Alloc(3)
	copy(b.Buf[off:], []byte{1, 2, 3})
	b.WriteByte(4)
	at := b.WriteInt32BE(0)
	b.WriteInt64BE(0x0102030405060708)
	b.PutInt32BE(at, -2)

	want := []byte{1, 2, 3, 4, 0xff, 0xff, 0xff, 0xfe, 1, 2, 3, 4, 5, 6, 7, 8}
	if !reflect.DeepEqual(b.Bytes(), want) {
		t.Fatalf("b.Bytes() = %x, wanted %x", b.Bytes(), want)
	}
	if b.Off != len(want) {
		t.Fatalf("Off = %d, wanted %d", b.Off, len(want))
	}

	b.Reset()
	if b.Off != 0 || len(b.Buf) != 0 {
		t.Fatalf("after Reset: (off=%d, len=%d), wanted (0, 0)", b.Off, len(b.Buf))
	}
}

func TestBuffer_AllocOverwritesInPlace(t *testing.T) {
	b := NewBuffer([]byte{1, 2, 3, 4})
	b.Seek(1)
	b.WriteRaw([]byte{9})
	if !reflect.DeepEqual(b.Buf, []byte{1, 9, 3, 4}) {
		t.Fatalf("b.Buf = %x, wanted 01090304", b.Buf)
	}
	if b.Off != 2 {
		t.Fatalf("Off = %d, wanted 2", b.Off)
	}
}

func TestBuffer_AllocPanicsOnNegative(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	var b Buffer
	b.Alloc(-1)
}

func TestBuffer_Read(t *testing.T) {
	b := NewBuffer([]byte{7, 0, 0, 1, 0, 0xAA, 0xBB})
	c, err := b.ReadByte()
	if err != nil || c != 7 {
		t.Fatalf("ReadByte = (%d, %v), wanted (7, nil)", c, err)
	}
	v, err := b.ReadInt32BE()
	if err != nil || v != 0x100 {
		t.Fatalf("ReadInt32BE = (%x, %v), wanted (100, nil)", v, err)
	}
	raw, err := b.ReadRaw(2)
	if err != nil || !reflect.DeepEqual(raw, []byte{0xAA, 0xBB}) {
		t.Fatalf("ReadRaw = (%x, %v), wanted (aabb, nil)", raw, err)
	}
	if b.Remaining() != 0 {
		t.Fatalf("Remaining = %d, wanted 0", b.Remaining())
	}

	if _, err := b.ReadByte(); !errors.Is(err, ErrTruncated) {
		t.Fatalf("ReadByte at end err = %v, wanted ErrTruncated", err)
	}
	if _, err := b.ReadInt64BE(); !errors.Is(err, ErrTruncated) {
		t.Fatalf("ReadInt64BE at end err = %v, wanted ErrTruncated", err)
	}
}

func TestBuffer_SeekSkipSlice(t *testing.T) {
	b := NewBuffer([]byte{1, 2, 3, 4, 5})
	if err := b.Skip(2); err != nil || b.Off != 2 {
		t.Fatalf("Skip(2) = %v, off=%d, wanted nil, 2", err, b.Off)
	}
	if err := b.Skip(4); !errors.Is(err, ErrTruncated) || b.Off != 2 {
		t.Fatalf("Skip(4) = %v, off=%d, wanted ErrTruncated, 2", err, b.Off)
	}
	if err := b.Seek(5); err != nil || b.Off != 5 {
		t.Fatalf("Seek(5) = %v, off=%d, wanted nil, 5", err, b.Off)
	}
	if err := b.Seek(6); err == nil {
		t.Fatalf("Seek(6) = nil, wanted error")
	}

	s, err := b.Slice(1, 3)
	if err != nil || !reflect.DeepEqual(s, []byte{2, 3, 4}) {
		t.Fatalf("Slice(1, 3) = (%x, %v), wanted (020304, nil)", s, err)
	}
	if b.Off != 5 {
		t.Fatalf("Slice moved the cursor to %d", b.Off)
	}
	if cap(s) != 3 {
		t.Fatalf("cap(Slice(1, 3)) = %d, wanted 3", cap(s))
	}
	if _, err := b.Slice(4, 2); err == nil {
		t.Fatalf("Slice(4, 2) err = nil, wanted error")
	}
}

func TestPools_DetachCopies(t *testing.T) {
	b := getBuffer()
	b.WriteRaw([]byte{1, 2, 3})
	out := detach(b)
	releaseBuffer(b)

	b2 := getBuffer()
	defer releaseBuffer(b2)
	b2.WriteRaw([]byte{9, 9, 9})
	if !reflect.DeepEqual(out, []byte{1, 2, 3}) {
		t.Fatalf("detached = %x, wanted 010203", out)
	}
}
