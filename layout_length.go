package recordbin

import (
	"maps"
	"slices"
)

// lengthHeader is the length-table layout:
//
//	record = [class:string] hdrlen:varint entry* value*
//	entry  = (name:string | -(id+1):varint) length:varint type:byte?
//
// Top-level records carry no class name; embedded ones do unless the schema
// pins it. A value starts at the sum of the preceding lengths past the
// header. Length 0 marks a null value, whose type byte (if any) is ANY.
type lengthHeader struct{}

func (lengthHeader) version() Version   { return VersionLength }
func (lengthHeader) topLevelClass() bool { return false }

func (lengthHeader) writeFields(l *recordLayout, b *Buffer, entries []fieldEntry) error {
	hdr := getBuffer()
	defer releaseBuffer(hdr)
	vals := getBuffer()
	defer releaseBuffer(vals)

	for i := range entries {
		e := &entries[i]
		l.writeFieldName(hdr, e)
		if e.null {
			WriteVarint(hdr, 0)
			if e.typeInHeader {
				hdr.WriteByte(byte(Any))
			}
			continue
		}
		start := vals.Off
		if err := l.writeValue(vals, e.value, e.typ, e.ctx); err != nil {
			return err
		}
		WriteVarint(hdr, int64(vals.Off-start))
		if e.typeInHeader {
			hdr.WriteByte(byte(e.typ))
		}
	}
	WriteVarint(b, int64(hdr.Off))
	b.WriteRaw(hdr.Bytes())
	b.WriteRaw(vals.Bytes())
	return nil
}

func (lengthHeader) scanHeader(l *recordLayout, b *Buffer, fn func(s slot) (bool, error)) (int, int, error) {
	start := b.Off
	n, err := readLen(b, 0)
	if err != nil {
		return 0, -1, err
	}
	hdrEnd := b.Off + n
	if hdrEnd > len(b.Buf) {
		return 0, -1, dataErrf(b.Buf, start, ErrTruncated, "header length %d exceeds remaining %d bytes", n, b.Remaining())
	}
	valOff := hdrEnd
	for b.Off < hdrEnd {
		entryOff := b.Off
		v, err := ReadVarint(b)
		if err != nil {
			return 0, -1, err
		}
		if v == 0 {
			return 0, -1, dataErrf(b.Buf, entryOff, nil, "empty field name")
		}
		name, id, typ, err := l.readFieldName(b, v, entryOff)
		if err != nil {
			return 0, -1, err
		}
		lenOff := b.Off
		length, err := readLen(b, 0)
		if err != nil {
			return 0, -1, withField(err, name)
		}
		if typ == Any {
			typ, err = readType(b)
			if err != nil {
				return 0, -1, withField(err, name)
			}
		}
		if valOff+length > len(b.Buf) {
			return 0, -1, &DataError{Data: b.Buf, Off: lenOff, Field: name, Err: ErrTruncated, Msg: "value length exceeds data"}
		}
		s := slot{name: name, id: id, typ: typ, off: valOff, length: length, null: length == 0}
		valOff += length
		cont, err := fn(s)
		if err != nil || !cont {
			return hdrEnd, -1, err
		}
	}
	if b.Off != hdrEnd {
		return 0, -1, dataErrf(b.Buf, b.Off, nil, "header overruns its length %d", n)
	}
	return hdrEnd, valOff, nil
}

// Map entries are key type, key, nullable value type and the value inline.
// Keys are written sorted.
func (lengthHeader) writeMap(l *recordLayout, b *Buffer, m map[string]any, ctx valueCtx) error {
	ectx := ctx.element()
	WriteVarint(b, int64(len(m)))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		b.WriteByte(byte(String))
		writeString(b, k)
		v := m[k]
		if v == nil {
			writeNullableType(b, Any, true)
			continue
		}
		t, err := l.inferType(v, ectx)
		if err != nil {
			return err
		}
		writeNullableType(b, t, false)
		if err := l.writeValue(b, v, t, ectx); err != nil {
			return err
		}
	}
	return nil
}

func (lengthHeader) readMap(l *recordLayout, b *Buffer, ctx valueCtx) (map[string]any, error) {
	n, err := readLen(b, 3)
	if err != nil {
		return nil, err
	}
	ectx := ctx.element()
	m := make(map[string]any, n)
	for range n {
		if err := readMapKeyType(b); err != nil {
			return nil, err
		}
		k, err := readString(b)
		if err != nil {
			return nil, err
		}
		t, null, err := readNullableType(b)
		if err != nil {
			return nil, err
		}
		if null {
			m[k] = nil
			continue
		}
		m[k], err = l.readValue(b, t, ectx)
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (lengthHeader) skipMap(l *recordLayout, b *Buffer, ctx valueCtx) error {
	n, err := readLen(b, 3)
	if err != nil {
		return err
	}
	ectx := ctx.element()
	for range n {
		if err := readMapKeyType(b); err != nil {
			return err
		}
		if _, err := readBytes(b); err != nil {
			return err
		}
		t, null, err := readNullableType(b)
		if err != nil {
			return err
		}
		if null {
			continue
		}
		if err := l.skipValue(b, t, ectx); err != nil {
			return err
		}
	}
	return nil
}
