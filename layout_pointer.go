package recordbin

import (
	"maps"
	"slices"
)

// pointerHeader is the pointer-table layout:
//
//	record = class:string entry* 0:varint value*
//	entry  = (name:string | -(id+1):varint) offset:int32BE type:byte?
//
// Offsets are absolute within the record's outermost byte slice, 0 marks a
// null value. The type byte is omitted for global properties of a known type.
// Values follow the header in declaration order.
type pointerHeader struct{}

func (pointerHeader) version() Version   { return VersionPointer }
func (pointerHeader) topLevelClass() bool { return true }

func (pointerHeader) writeFields(l *recordLayout, b *Buffer, entries []fieldEntry) error {
	ptrs := make([]int, len(entries))
	for i := range entries {
		e := &entries[i]
		l.writeFieldName(b, e)
		ptrs[i] = b.WriteInt32BE(0)
		if e.typeInHeader {
			b.WriteByte(byte(e.typ))
		}
	}
	WriteVarint(b, 0)
	for i := range entries {
		e := &entries[i]
		if e.null {
			continue
		}
		b.PutInt32BE(ptrs[i], int32(b.Off))
		if err := l.writeValue(b, e.value, e.typ, e.ctx); err != nil {
			return err
		}
	}
	return nil
}

func (pointerHeader) scanHeader(l *recordLayout, b *Buffer, fn func(s slot) (bool, error)) (int, int, error) {
	for {
		start := b.Off
		v, err := ReadVarint(b)
		if err != nil {
			return 0, -1, err
		}
		if v == 0 {
			return b.Off, -1, nil
		}
		name, id, typ, err := l.readFieldName(b, v, start)
		if err != nil {
			return 0, -1, err
		}
		ptrOff := b.Off
		ptr, err := b.ReadInt32BE()
		if err != nil {
			return 0, -1, withField(err, name)
		}
		if ptr < 0 || int(ptr) >= len(b.Buf) {
			return 0, -1, &DataError{Data: b.Buf, Off: ptrOff, Field: name, Msg: "value offset out of bounds"}
		}
		if typ == Any {
			typ, err = readType(b)
			if err != nil {
				return 0, -1, withField(err, name)
			}
		}
		cont, err := fn(slot{name: name, id: id, typ: typ, off: int(ptr), length: -1, null: ptr == 0})
		if err != nil || !cont {
			return b.Off, -1, err
		}
	}
}

// Map entries are key type, key, value offset and value type, followed by
// the values. Keys are written sorted.
func (pointerHeader) writeMap(l *recordLayout, b *Buffer, m map[string]any, ctx valueCtx) error {
	keys := slices.Sorted(maps.Keys(m))
	types := make([]Type, len(keys))
	ptrs := make([]int, len(keys))
	ectx := ctx.element()
	WriteVarint(b, int64(len(keys)))
	for i, k := range keys {
		t := Any
		if v := m[k]; v != nil {
			var err error
			t, err = l.inferType(v, ectx)
			if err != nil {
				return err
			}
		}
		types[i] = t
		b.WriteByte(byte(String))
		writeString(b, k)
		ptrs[i] = b.WriteInt32BE(0)
		b.WriteByte(byte(t))
	}
	for i, k := range keys {
		v := m[k]
		if v == nil {
			continue
		}
		b.PutInt32BE(ptrs[i], int32(b.Off))
		if err := l.writeValue(b, v, types[i], ectx); err != nil {
			return err
		}
	}
	return nil
}

type pointerMapEntry struct {
	key string
	ptr int
	typ Type
}

func readPointerMapHeader(b *Buffer) ([]pointerMapEntry, error) {
	n, err := readLen(b, 7)
	if err != nil {
		return nil, err
	}
	entries := make([]pointerMapEntry, n)
	for i := range entries {
		if err := readMapKeyType(b); err != nil {
			return nil, err
		}
		k, err := readString(b)
		if err != nil {
			return nil, err
		}
		ptrOff := b.Off
		ptr, err := b.ReadInt32BE()
		if err != nil {
			return nil, err
		}
		if ptr < 0 || int(ptr) >= len(b.Buf) {
			return nil, dataErrf(b.Buf, ptrOff, nil, "map value offset out of bounds for key %q", k)
		}
		t, err := readType(b)
		if err != nil {
			return nil, err
		}
		entries[i] = pointerMapEntry{k, int(ptr), t}
	}
	return entries, nil
}

func (pointerHeader) readMap(l *recordLayout, b *Buffer, ctx valueCtx) (map[string]any, error) {
	entries, err := readPointerMapHeader(b)
	if err != nil {
		return nil, err
	}
	ectx := ctx.element()
	m := make(map[string]any, len(entries))
	end := b.Off
	for _, e := range entries {
		if e.ptr == 0 {
			m[e.key] = nil
			continue
		}
		if err := b.Seek(e.ptr); err != nil {
			return nil, err
		}
		v, err := l.readValue(b, e.typ, ectx)
		if err != nil {
			return nil, err
		}
		m[e.key] = v
		end = max(end, b.Off)
	}
	return m, b.Seek(end)
}

func (pointerHeader) skipMap(l *recordLayout, b *Buffer, ctx valueCtx) error {
	entries, err := readPointerMapHeader(b)
	if err != nil {
		return err
	}
	ectx := ctx.element()
	end := b.Off
	for _, e := range entries {
		if e.ptr == 0 {
			continue
		}
		if err := b.Seek(e.ptr); err != nil {
			return err
		}
		if err := l.skipValue(b, e.typ, ectx); err != nil {
			return err
		}
		end = max(end, b.Off)
	}
	return b.Seek(end)
}
