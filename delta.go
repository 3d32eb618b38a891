package recordbin

// Delta is the set of changes of one document. Changes come from an external
// change tracker; this package only encodes, decodes and applies them.
type Delta struct {
	Class  string
	Fields []FieldChange
}

// FieldChange is one changed field.
//
// For OpCreated and OpReplaced, Value is the new value and Type its type (Any
// to take it from the schema or the value). For OpChanged, Type is the
// field's type and Nested its structural change: a *Delta for EMBEDDED, a
// *CollectionDelta for embedded and link collections, and a *BagDelta for
// LINKBAG. OpRemoved carries only the name.
type FieldChange struct {
	Op     Op
	Name   string
	Type   Type
	Value  any
	Nested any
}

// CollectionDelta is the change of a collection. Changes hold membership
// edits and are applied first; Nested holds OpChanged entries for elements
// that were mutated in place, applied after Changes.
type CollectionDelta struct {
	Changes []ElementChange
	Nested  []ElementChange
}

// ElementChange is one collection edit. Pos addresses list elements (and set
// elements by iteration order in the nested pass), Key addresses map
// entries. For link collections Value is a RID.
type ElementChange struct {
	Op    Op
	Pos   int
	Key   string
	Type  Type
	Value any
	Delta any
}

func (d *Delta) Created(name string, v any) *Delta {
	d.Fields = append(d.Fields, FieldChange{Op: OpCreated, Name: name, Type: Any, Value: v})
	return d
}

func (d *Delta) Replaced(name string, v any) *Delta {
	d.Fields = append(d.Fields, FieldChange{Op: OpReplaced, Name: name, Type: Any, Value: v})
	return d
}

func (d *Delta) Changed(name string, t Type, nested any) *Delta {
	d.Fields = append(d.Fields, FieldChange{Op: OpChanged, Name: name, Type: t, Nested: nested})
	return d
}

func (d *Delta) Removed(name string) *Delta {
	d.Fields = append(d.Fields, FieldChange{Op: OpRemoved, Name: name})
	return d
}

// DeltaCodec encodes and applies deltas. Values inside deltas use the
// length-table layout's value encoding.
type DeltaCodec struct {
	l *recordLayout
}

func (c *Codec) Delta() *DeltaCodec {
	return &DeltaCodec{l: c.length}
}

// ApplyDelta decodes a delta and applies it to target. With a nil target the
// whole delta is still decoded and validated, and nothing is modified.
func (dc *DeltaCodec) ApplyDelta(data []byte, target *Record) error {
	d, err := dc.DecodeDelta(data)
	if err != nil {
		return err
	}
	if target == nil {
		return nil
	}
	return d.ApplyTo(target)
}

// DecodeDelta decodes a delta without applying it.
func (dc *DeltaCodec) DecodeDelta(data []byte) (*Delta, error) {
	b := NewBuffer(data)
	d, err := dc.readDocDelta(b, valueCtx{linked: Any})
	if err != nil {
		return nil, err
	}
	if b.Remaining() != 0 {
		return nil, dataErrf(b.Buf, b.Off, nil, "%d trailing bytes after delta", b.Remaining())
	}
	return d, nil
}

func (dc *DeltaCodec) readDocDelta(b *Buffer, ctx valueCtx) (*Delta, error) {
	var err error
	d := &Delta{}
	if d.Class, err = readString(b); err != nil {
		return nil, err
	}
	n, err := readLen(b, 2)
	if err != nil {
		return nil, err
	}
	d.Fields = make([]FieldChange, 0, n)
	for range n {
		tagOff := b.Off
		c, err := b.ReadByte()
		if err != nil {
			return nil, err
		}
		op := Op(c)
		name, err := readString(b)
		if err != nil {
			return nil, err
		}
		fctx := ctx.forProperty(name, dc.l.c.property(d.Class, name))
		fc := FieldChange{Op: op, Name: name, Type: Any}
		switch op {
		case OpCreated, OpReplaced:
			fc.Type, fc.Value, err = dc.readNullableValue(b, fctx)
		case OpChanged:
			if fc.Type, err = readType(b); err == nil {
				fc.Nested, err = dc.readNested(b, fc.Type, fctx)
			}
		case OpRemoved:
		default:
			err = dataErrf(b.Buf, tagOff, nil, "invalid delta tag %d", c)
		}
		if err != nil {
			return nil, withField(err, name)
		}
		d.Fields = append(d.Fields, fc)
	}
	return d, nil
}

func (dc *DeltaCodec) readNullableValue(b *Buffer, ctx valueCtx) (Type, any, error) {
	t, null, err := readNullableType(b)
	if err != nil || null {
		return Any, nil, err
	}
	v, err := dc.l.readValue(b, t, ctx)
	return t, v, err
}

func (dc *DeltaCodec) readNested(b *Buffer, t Type, ctx valueCtx) (any, error) {
	switch t {
	case Embedded:
		return dc.readDocDelta(b, ctx)
	case EmbeddedList, EmbeddedSet, EmbeddedMap:
		return dc.readEmbeddedCollectionDelta(b, t, ctx)
	case LinkListType, LinkSetType, LinkMapType:
		return dc.readLinkCollectionDelta(b, t)
	case LinkBag:
		return readBagDelta(b)
	default:
		return nil, dataErrf(b.Buf, b.Off-1, ErrDeltaUnsupported, "%v", t)
	}
}

func (dc *DeltaCodec) readEmbeddedCollectionDelta(b *Buffer, t Type, ctx valueCtx) (*CollectionDelta, error) {
	ectx := ctx.element()
	cd := &CollectionDelta{}
	n, err := readLen(b, 1)
	if err != nil {
		return nil, err
	}
	for range n {
		tagOff := b.Off
		c, err := b.ReadByte()
		if err != nil {
			return nil, err
		}
		ec := ElementChange{Op: Op(c), Type: Any}
		if !elementOpAllowed(t, ec.Op) {
			return nil, dataErrf(b.Buf, tagOff, nil, "invalid %v delta tag %d", t, c)
		}
		switch {
		case t == EmbeddedMap:
			if ec.Key, err = readString(b); err != nil {
				return nil, err
			}
		case t == EmbeddedList && ec.Op != OpCreated:
			if ec.Pos, err = readPos(b); err != nil {
				return nil, err
			}
		}
		if ec.Op != OpRemoved || t == EmbeddedSet {
			if ec.Type, ec.Value, err = dc.readNullableValue(b, ectx); err != nil {
				return nil, err
			}
		}
		cd.Changes = append(cd.Changes, ec)
	}

	n, err = readLen(b, 1)
	if err != nil {
		return nil, err
	}
	for range n {
		tagOff := b.Off
		c, err := b.ReadByte()
		if err != nil {
			return nil, err
		}
		if Op(c) != OpChanged {
			return nil, dataErrf(b.Buf, tagOff, nil, "invalid nested %v delta tag %d", t, c)
		}
		ec := ElementChange{Op: OpChanged}
		if t == EmbeddedMap {
			ec.Key, err = readString(b)
		} else {
			ec.Pos, err = readPos(b)
		}
		if err != nil {
			return nil, err
		}
		if ec.Type, err = readType(b); err != nil {
			return nil, err
		}
		if ec.Delta, err = dc.readNested(b, ec.Type, ectx); err != nil {
			return nil, err
		}
		cd.Nested = append(cd.Nested, ec)
	}
	return cd, nil
}

func (dc *DeltaCodec) readLinkCollectionDelta(b *Buffer, t Type) (*CollectionDelta, error) {
	cd := &CollectionDelta{}
	n, err := readLen(b, 1)
	if err != nil {
		return nil, err
	}
	for range n {
		tagOff := b.Off
		c, err := b.ReadByte()
		if err != nil {
			return nil, err
		}
		ec := ElementChange{Op: Op(c), Type: Link}
		if !elementOpAllowed(t, ec.Op) {
			return nil, dataErrf(b.Buf, tagOff, nil, "invalid %v delta tag %d", t, c)
		}
		switch {
		case t == LinkMapType:
			if ec.Key, err = readString(b); err != nil {
				return nil, err
			}
		case t == LinkListType && ec.Op != OpCreated:
			if ec.Pos, err = readPos(b); err != nil {
				return nil, err
			}
		}
		if ec.Op != OpRemoved || t == LinkSetType {
			rid, err := readLink(b)
			if err != nil {
				return nil, err
			}
			ec.Value = rid
		}
		cd.Changes = append(cd.Changes, ec)
	}
	return cd, nil
}

func readPos(b *Buffer) (int, error) {
	start := b.Off
	v, err := ReadVarint32(b)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, dataErrf(b.Buf, start, nil, "negative position %d", v)
	}
	return int(v), nil
}

// elementOpAllowed reports whether op may appear in the membership pass of a
// collection delta of type t. Sets have no REPLACED: an update is a removal
// plus an addition.
func elementOpAllowed(t Type, op Op) bool {
	switch op {
	case OpCreated, OpRemoved:
		return true
	case OpReplaced:
		return t != EmbeddedSet && t != LinkSetType
	default:
		return false
	}
}

// nestable reports whether a field of type t can carry a CHANGED delta.
func nestable(t Type) bool {
	switch t {
	case Embedded, EmbeddedList, EmbeddedSet, EmbeddedMap, LinkListType, LinkSetType, LinkMapType, LinkBag:
		return true
	default:
		return false
	}
}
