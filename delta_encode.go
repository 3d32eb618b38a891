package recordbin

import (
	"errors"
	"fmt"
	"math"
)

// SerializeDelta encodes a document delta:
//
//	delta  = class:string count:varint change*
//	change = tag:byte name:string (type:byte? value | type:byte nested)?
//
// CREATED and REPLACED carry a nullable type byte and the value, CHANGED the
// field type and a nested delta, REMOVED nothing.
func (dc *DeltaCodec) SerializeDelta(d *Delta) ([]byte, error) {
	if d == nil {
		return nil, errors.New("cannot serialize a nil delta")
	}
	b := getBuffer()
	defer releaseBuffer(b)
	if err := dc.writeDocDelta(b, d, valueCtx{linked: Any}); err != nil {
		return nil, err
	}
	return detach(b), nil
}

func (dc *DeltaCodec) writeDocDelta(b *Buffer, d *Delta, ctx valueCtx) error {
	writeString(b, d.Class)
	WriteVarint(b, int64(len(d.Fields)))
	for _, fc := range d.Fields {
		prop := dc.l.c.property(d.Class, fc.Name)
		fctx := ctx.forProperty(fc.Name, prop)
		b.WriteByte(byte(fc.Op))
		writeString(b, fc.Name)
		switch fc.Op {
		case OpCreated, OpReplaced:
			t := fc.Type
			if t == Any && prop != nil {
				t = prop.Type
			}
			if err := dc.writeNullableValue(b, fc.Value, t, fctx); err != nil {
				return err
			}
		case OpChanged:
			if err := dc.writeNested(b, fc.Type, fc.Nested, fctx); err != nil {
				return err
			}
		case OpRemoved:
		default:
			return fmt.Errorf("%s: invalid delta op %v", fc.Name, fc.Op)
		}
	}
	return nil
}

func (dc *DeltaCodec) writeNullableValue(b *Buffer, v any, t Type, ctx valueCtx) error {
	if v == nil {
		writeNullableType(b, Any, true)
		return nil
	}
	if t == Any {
		var err error
		if t, err = dc.l.inferType(v, ctx); err != nil {
			return err
		}
	}
	writeNullableType(b, t, false)
	return dc.l.writeValue(b, v, t, ctx)
}

// writeNested writes the type byte and the nested delta of a CHANGED entry.
func (dc *DeltaCodec) writeNested(b *Buffer, t Type, nested any, ctx valueCtx) error {
	if !nestable(t) {
		return fmt.Errorf("%s: %w: %v", ctx.field, ErrDeltaUnsupported, t)
	}
	b.WriteByte(byte(t))
	switch t {
	case Embedded:
		d, ok := nested.(*Delta)
		if !ok || d == nil {
			return fmt.Errorf("%s: EMBEDDED change needs a *Delta, got %T", ctx.field, nested)
		}
		return dc.writeDocDelta(b, d, ctx)
	case LinkBag:
		bd, ok := nested.(*BagDelta)
		if !ok || bd == nil {
			return fmt.Errorf("%s: LINKBAG change needs a *BagDelta, got %T", ctx.field, nested)
		}
		return dc.writeBagDelta(b, bd, ctx)
	}
	cd, ok := nested.(*CollectionDelta)
	if !ok || cd == nil {
		return fmt.Errorf("%s: %v change needs a *CollectionDelta, got %T", ctx.field, t, nested)
	}
	if t.IsLink() {
		return dc.writeLinkCollectionDelta(b, t, cd, ctx)
	}
	return dc.writeEmbeddedCollectionDelta(b, t, cd, ctx)
}

func (dc *DeltaCodec) writeEmbeddedCollectionDelta(b *Buffer, t Type, cd *CollectionDelta, ctx valueCtx) error {
	ectx := ctx.element()
	WriteVarint(b, int64(len(cd.Changes)))
	for _, ec := range cd.Changes {
		if !elementOpAllowed(t, ec.Op) {
			return fmt.Errorf("%s: %v element change cannot be %v", ctx.field, t, ec.Op)
		}
		b.WriteByte(byte(ec.Op))
		switch {
		case t == EmbeddedMap:
			writeString(b, ec.Key)
		case t == EmbeddedList && ec.Op != OpCreated:
			if err := writePos(b, ec.Pos, ctx); err != nil {
				return err
			}
		}
		if ec.Op != OpRemoved || t == EmbeddedSet {
			if err := dc.writeNullableValue(b, ec.Value, ec.Type, ectx); err != nil {
				return err
			}
		}
	}

	WriteVarint(b, int64(len(cd.Nested)))
	for _, ec := range cd.Nested {
		if ec.Op != OpChanged {
			return fmt.Errorf("%s: nested %v element change must be %v, got %v", ctx.field, t, OpChanged, ec.Op)
		}
		b.WriteByte(byte(OpChanged))
		if t == EmbeddedMap {
			writeString(b, ec.Key)
		} else if err := writePos(b, ec.Pos, ctx); err != nil {
			return err
		}
		if err := dc.writeNested(b, ec.Type, ec.Delta, ectx); err != nil {
			return err
		}
	}
	return nil
}

func (dc *DeltaCodec) writeLinkCollectionDelta(b *Buffer, t Type, cd *CollectionDelta, ctx valueCtx) error {
	if len(cd.Nested) > 0 {
		return fmt.Errorf("%s: %w: nested changes of %v", ctx.field, ErrDeltaUnsupported, t)
	}
	WriteVarint(b, int64(len(cd.Changes)))
	for _, ec := range cd.Changes {
		if !elementOpAllowed(t, ec.Op) {
			return fmt.Errorf("%s: %v element change cannot be %v", ctx.field, t, ec.Op)
		}
		b.WriteByte(byte(ec.Op))
		switch {
		case t == LinkMapType:
			writeString(b, ec.Key)
		case t == LinkListType && ec.Op != OpCreated:
			if err := writePos(b, ec.Pos, ctx); err != nil {
				return err
			}
		}
		if ec.Op != OpRemoved || t == LinkSetType {
			rid, ok := ec.Value.(RID)
			if !ok {
				if ec.Value != nil {
					return ctx.typeErr(Link, ec.Value)
				}
				rid = NullRID
			}
			rid, err := dc.l.resolveLink(rid, ctx)
			if err != nil {
				return err
			}
			writeLink(b, rid)
		}
	}
	return nil
}

func writePos(b *Buffer, pos int, ctx valueCtx) error {
	if pos < 0 || pos > math.MaxInt32 {
		return fmt.Errorf("%s: invalid element position %d", ctx.field, pos)
	}
	WriteVarint(b, int64(pos))
	return nil
}
