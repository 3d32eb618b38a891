package recordbin

import (
	"encoding/binary"
	"fmt"
)

func ensureCapacity(buf []byte, minCap int) []byte {
	c := cap(buf)
	if minCap > c {
		if c < 16 {
			c = 16
		}
		for minCap > c {
			c <<= 1
		}
		old := buf
		buf = make([]byte, len(old), c)
		copy(buf, old)
	}
	return buf
}

func grow(buf []byte, n int) (int, []byte) {
	off := len(buf)
	newLen := off + n
	buf = ensureCapacity(buf, newLen)
	return off, buf[:newLen]
}

// Buffer is a growable byte array with a single cursor used both for writing
// and for reading. Writers call Alloc to reserve space at the cursor; readers
// move the cursor with Skip and Seek. A Buffer must not be used by more than
// one goroutine at a time.
type Buffer struct {
	Buf []byte
	Off int
}

// NewBuffer returns a read buffer positioned at the start of data.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{Buf: data}
}

// Alloc reserves n bytes at the cursor and returns their start offset.
// The cursor moves past the reserved bytes.
func (b *Buffer) Alloc(n int) int {
	if n < 0 {
		panic(fmt.Sprintf("Alloc(%d)", n))
	}
	off := b.Off
	end := off + n
	if end > len(b.Buf) {
		b.Buf = ensureCapacity(b.Buf, end)
		b.Buf = b.Buf[:end]
	}
	b.Off = end
	return off
}

// Bytes returns the written prefix of the buffer, i.e. everything up to the
// cursor.
func (b *Buffer) Bytes() []byte {
	return b.Buf[:b.Off]
}

func (b *Buffer) Remaining() int {
	return len(b.Buf) - b.Off
}

func (b *Buffer) Skip(n int) error {
	if n < 0 || b.Off+n > len(b.Buf) {
		return dataErrf(b.Buf, b.Off, ErrTruncated, "cannot skip %d bytes, %d remaining", n, b.Remaining())
	}
	b.Off += n
	return nil
}

func (b *Buffer) Seek(off int) error {
	if off < 0 || off > len(b.Buf) {
		return dataErrf(b.Buf, b.Off, ErrTruncated, "cannot seek to %d", off)
	}
	b.Off = off
	return nil
}

// Slice returns a read-only view of n bytes at off. It does not move the cursor.
func (b *Buffer) Slice(off, n int) ([]byte, error) {
	if off < 0 || n < 0 || off+n > len(b.Buf) {
		return nil, dataErrf(b.Buf, off, ErrTruncated, "slice [%d:+%d] out of bounds", off, n)
	}
	return b.Buf[off : off+n : off+n], nil
}

func (b *Buffer) WriteByte(v byte) error {
	off := b.Alloc(1)
	b.Buf[off] = v
	return nil
}

func (b *Buffer) WriteRaw(v []byte) int {
	off := b.Alloc(len(v))
	copy(b.Buf[off:], v)
	return off
}

func (b *Buffer) WriteInt32BE(v int32) int {
	off := b.Alloc(4)
	binary.BigEndian.PutUint32(b.Buf[off:], uint32(v))
	return off
}

func (b *Buffer) WriteInt64BE(v int64) int {
	off := b.Alloc(8)
	binary.BigEndian.PutUint64(b.Buf[off:], uint64(v))
	return off
}

// PutInt32BE overwrites 4 bytes at a previously allocated offset.
func (b *Buffer) PutInt32BE(at int, v int32) {
	binary.BigEndian.PutUint32(b.Buf[at:at+4], uint32(v))
}

func (b *Buffer) ReadByte() (byte, error) {
	if b.Off >= len(b.Buf) {
		return 0, dataErrf(b.Buf, b.Off, ErrTruncated, "not enough data: 0 bytes remaining, 1 wanted")
	}
	v := b.Buf[b.Off]
	b.Off++
	return v, nil
}

func (b *Buffer) ReadRaw(n int) ([]byte, error) {
	if n < 0 || b.Remaining() < n {
		return nil, dataErrf(b.Buf, b.Off, ErrTruncated, "not enough data: %d bytes remaining, %d wanted", b.Remaining(), n)
	}
	v := b.Buf[b.Off : b.Off+n : b.Off+n]
	b.Off += n
	return v, nil
}

func (b *Buffer) ReadInt32BE() (int32, error) {
	raw, err := b.ReadRaw(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(raw)), nil
}

func (b *Buffer) ReadInt64BE() (int64, error) {
	raw, err := b.ReadRaw(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(raw)), nil
}

func (b *Buffer) Reset() {
	b.Buf = b.Buf[:0]
	b.Off = 0
}
