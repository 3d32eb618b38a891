package recordbin

import "math"

const maxVarintLen = 10

func zigzag(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

func unzigzag(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}

// WriteVarint appends a signed varint at the cursor and returns the offset
// where it starts.
//
// The encoding folds the sign into the lowest bit (zig-zag) and then writes
// 7 bits per byte, least significant group first, with the high bit set on
// every byte except the last.
func WriteVarint(b *Buffer, v int64) int {
	var tmp [maxVarintLen]byte
	n := putVarint(tmp[:], v)
	return b.WriteRaw(tmp[:n])
}

func putVarint(buf []byte, v int64) int {
	u := zigzag(v)
	i := 0
	for u >= 0x80 {
		buf[i] = byte(u) | 0x80
		u >>= 7
		i++
	}
	buf[i] = byte(u)
	return i + 1
}

// VarintLen returns the number of bytes WriteVarint would use for v.
func VarintLen(v int64) int {
	u := zigzag(v)
	n := 1
	for u >= 0x80 {
		u >>= 7
		n++
	}
	return n
}

func ReadVarint(b *Buffer) (int64, error) {
	start := b.Off
	var u uint64
	var shift uint
	for i := 0; ; i++ {
		if i >= maxVarintLen {
			return 0, dataErrf(b.Buf, start, nil, "invalid varint: longer than %d bytes", maxVarintLen)
		}
		if b.Off >= len(b.Buf) {
			return 0, dataErrf(b.Buf, start, ErrTruncated, "invalid varint")
		}
		c := b.Buf[b.Off]
		b.Off++
		u |= uint64(c&0x7F) << shift
		if c&0x80 == 0 {
			break
		}
		shift += 7
	}
	return unzigzag(u), nil
}

func ReadVarint64(b *Buffer) (int64, error) {
	return ReadVarint(b)
}

func ReadVarint32(b *Buffer) (int32, error) {
	start := b.Off
	v, err := ReadVarint(b)
	if err != nil {
		return 0, err
	}
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, dataErrf(b.Buf, start, ErrVarintRange, "value does not fit into int32: %d", v)
	}
	return int32(v), nil
}

func ReadVarint16(b *Buffer) (int16, error) {
	start := b.Off
	v, err := ReadVarint(b)
	if err != nil {
		return 0, err
	}
	if v < math.MinInt16 || v > math.MaxInt16 {
		return 0, dataErrf(b.Buf, start, ErrVarintRange, "value does not fit into int16: %d", v)
	}
	return int16(v), nil
}

// readLen reads a non-negative int32 varint used as a length or count. It also
// rejects lengths that are larger than the remaining data when minElem > 0,
// since each element occupies at least minElem bytes.
func readLen(b *Buffer, minElem int) (int, error) {
	start := b.Off
	v, err := ReadVarint32(b)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, dataErrf(b.Buf, start, nil, "negative length %d", v)
	}
	if minElem > 0 && int(v) > b.Remaining()/minElem {
		return 0, dataErrf(b.Buf, start, ErrTruncated, "length %d exceeds remaining %d bytes", v, b.Remaining())
	}
	return int(v), nil
}
