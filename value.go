package recordbin

import (
	"math"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// valueCtx carries the schema context of a value being encoded or decoded.
type valueCtx struct {
	field string
	// linked is the declared element type of a collection, Any if none
	linked Type
	// class is the declared class of an embedded record, "" if none
	class string
	// owner is the identity of the top-level record, passed to the tree
	// manager when a bag needs storage
	owner RID
}

func (ctx valueCtx) element() valueCtx {
	return valueCtx{field: ctx.field, linked: Any, owner: ctx.owner}
}

func (ctx valueCtx) forProperty(name string, prop *Property) valueCtx {
	sub := valueCtx{field: name, linked: Any, owner: ctx.owner}
	if prop != nil {
		sub.linked = prop.LinkedType
		sub.class = prop.LinkedClass
	}
	return sub
}

func (ctx valueCtx) typeErr(t Type, v any) error {
	return &TypeError{Field: ctx.field, Type: t, Value: v}
}

// inferType returns the logical type of a value whose type is not declared.
func (l *recordLayout) inferType(v any, ctx valueCtx) (Type, error) {
	if t, ok := TypeOf(v); ok {
		return t, nil
	}
	if _, ok := l.c.custom.ForValue(v); ok {
		return Custom, nil
	}
	return Any, ctx.typeErr(Any, v)
}

// writeValue encodes a non-nil value as type t at the cursor.
func (l *recordLayout) writeValue(b *Buffer, v any, t Type, ctx valueCtx) error {
	switch t {
	case Boolean:
		x, ok := v.(bool)
		if !ok {
			return ctx.typeErr(t, v)
		}
		if x {
			b.WriteByte(1)
		} else {
			b.WriteByte(0)
		}
	case Integer:
		x, ok := toInt64(v)
		if !ok || x < math.MinInt32 || x > math.MaxInt32 {
			return ctx.typeErr(t, v)
		}
		WriteVarint(b, x)
	case Short:
		x, ok := toInt64(v)
		if !ok || x < math.MinInt16 || x > math.MaxInt16 {
			return ctx.typeErr(t, v)
		}
		WriteVarint(b, x)
	case Long:
		x, ok := toInt64(v)
		if !ok {
			return ctx.typeErr(t, v)
		}
		WriteVarint(b, x)
	case Byte:
		x, ok := toInt64(v)
		if !ok || x < math.MinInt8 || x > math.MaxInt8 {
			return ctx.typeErr(t, v)
		}
		b.WriteByte(byte(int8(x)))
	case Float:
		x, ok := toFloat64(v)
		if !ok {
			return ctx.typeErr(t, v)
		}
		b.WriteInt32BE(int32(math.Float32bits(float32(x))))
	case Double:
		x, ok := toFloat64(v)
		if !ok {
			return ctx.typeErr(t, v)
		}
		b.WriteInt64BE(int64(math.Float64bits(x)))
	case Decimal:
		x, ok := toDecimal(v)
		if !ok {
			return ctx.typeErr(t, v)
		}
		if err := writeDecimal(b, x); err != nil {
			return withTypeField(err, ctx.field)
		}
	case String:
		x, ok := v.(string)
		if !ok {
			return ctx.typeErr(t, v)
		}
		writeString(b, x)
	case Binary:
		x, ok := v.([]byte)
		if !ok {
			return ctx.typeErr(t, v)
		}
		writeBytes(b, x)
	case DateTime:
		x, ok := toTime(v)
		if !ok {
			return ctx.typeErr(t, v)
		}
		WriteVarint(b, x.UnixMilli())
	case Date:
		x, ok := toTime(v)
		if !ok {
			return ctx.typeErr(t, v)
		}
		WriteVarint(b, l.c.dayNumber(x))
	case Link:
		x, ok := v.(RID)
		if !ok {
			return ctx.typeErr(t, v)
		}
		rid, err := l.resolveLink(x, ctx)
		if err != nil {
			return err
		}
		writeLink(b, rid)
	case LinkListType, LinkSetType:
		rids, ok := toRIDs(v)
		if !ok {
			return ctx.typeErr(t, v)
		}
		return l.writeLinkCollection(b, rids, ctx)
	case LinkMapType:
		m, ok := toLinkMap(v)
		if !ok {
			return ctx.typeErr(t, v)
		}
		return l.writeLinkMap(b, m, ctx)
	case Embedded:
		return l.writeEmbedded(b, v, ctx)
	case EmbeddedList, EmbeddedSet:
		items, ok := toList(v)
		if !ok {
			return ctx.typeErr(t, v)
		}
		return l.writeEmbeddedCollection(b, items, ctx)
	case EmbeddedMap:
		m, ok := toMap(v)
		if !ok {
			return ctx.typeErr(t, v)
		}
		return l.hdr.writeMap(l, b, m, ctx)
	case LinkBag:
		bag, ok := v.(*RidBag)
		if !ok || bag == nil {
			return ctx.typeErr(t, v)
		}
		return l.writeRidBag(b, bag, ctx)
	case Custom:
		return l.writeCustom(b, v, ctx)
	case Transient, Any:
		// nothing is stored
	default:
		return ctx.typeErr(t, v)
	}
	return nil
}

// readValue decodes a value of type t at the cursor.
func (l *recordLayout) readValue(b *Buffer, t Type, ctx valueCtx) (any, error) {
	switch t {
	case Boolean:
		c, err := b.ReadByte()
		if err != nil {
			return nil, err
		}
		return c != 0, nil
	case Integer:
		return ReadVarint32(b)
	case Short:
		return ReadVarint16(b)
	case Long:
		return ReadVarint64(b)
	case Byte:
		c, err := b.ReadByte()
		if err != nil {
			return nil, err
		}
		return int8(c), nil
	case Float:
		bits, err := b.ReadInt32BE()
		if err != nil {
			return nil, err
		}
		return math.Float32frombits(uint32(bits)), nil
	case Double:
		bits, err := b.ReadInt64BE()
		if err != nil {
			return nil, err
		}
		return math.Float64frombits(uint64(bits)), nil
	case Decimal:
		return readDecimal(b)
	case String:
		return readString(b)
	case Binary:
		raw, err := readBytes(b)
		if err != nil {
			return nil, err
		}
		return append([]byte(nil), raw...), nil
	case DateTime:
		ms, err := ReadVarint64(b)
		if err != nil {
			return nil, err
		}
		return time.UnixMilli(ms).UTC(), nil
	case Date:
		days, err := ReadVarint64(b)
		if err != nil {
			return nil, err
		}
		return l.c.dayTime(days), nil
	case Link:
		return readLink(b)
	case LinkListType:
		rids, err := readLinkCollection(b)
		return LinkList(rids), err
	case LinkSetType:
		rids, err := readLinkCollection(b)
		return LinkSet(rids), err
	case LinkMapType:
		return readLinkMap(b)
	case Embedded:
		return l.readEmbedded(b, ctx)
	case EmbeddedList:
		return l.readEmbeddedCollection(b, ctx)
	case EmbeddedSet:
		items, err := l.readEmbeddedCollection(b, ctx)
		return EmbeddedSetValue(items), err
	case EmbeddedMap:
		return l.hdr.readMap(l, b, ctx)
	case LinkBag:
		return readRidBag(b)
	case Custom:
		return l.readCustom(b, ctx)
	case Transient, Any:
		return nil, nil
	default:
		return nil, dataErrf(b.Buf, b.Off, nil, "cannot decode type %v", t)
	}
}

// skipValue advances the cursor past a value of type t without building it.
func (l *recordLayout) skipValue(b *Buffer, t Type, ctx valueCtx) error {
	switch t {
	case Boolean, Byte:
		return b.Skip(1)
	case Integer, Short, Long, DateTime, Date:
		_, err := ReadVarint(b)
		return err
	case Float:
		return b.Skip(4)
	case Double:
		return b.Skip(8)
	case Decimal:
		return skipDecimal(b)
	case String, Binary:
		_, err := readBytes(b)
		return err
	case Link:
		return skipLink(b)
	case LinkListType, LinkSetType:
		n, err := readLen(b, 2)
		if err != nil {
			return err
		}
		for range n {
			if err := skipLink(b); err != nil {
				return err
			}
		}
		return nil
	case LinkMapType:
		n, err := readLen(b, 4)
		if err != nil {
			return err
		}
		for range n {
			if err := readMapKeyType(b); err != nil {
				return err
			}
			if _, err := readBytes(b); err != nil {
				return err
			}
			if err := skipLink(b); err != nil {
				return err
			}
		}
		return nil
	case Embedded:
		return l.skipRecord(b, ctx)
	case EmbeddedList, EmbeddedSet:
		return l.skipEmbeddedCollection(b, ctx)
	case EmbeddedMap:
		return l.hdr.skipMap(l, b, ctx)
	case LinkBag:
		return skipRidBag(b)
	case Custom:
		if _, err := readBytes(b); err != nil {
			return err
		}
		_, err := readBytes(b)
		return err
	case Transient, Any:
		return nil
	default:
		return dataErrf(b.Buf, b.Off, nil, "cannot skip type %v", t)
	}
}

func writeString(b *Buffer, s string) {
	WriteVarint(b, int64(len(s)))
	off := b.Alloc(len(s))
	copy(b.Buf[off:], s)
}

func writeBytes(b *Buffer, v []byte) {
	WriteVarint(b, int64(len(v)))
	b.WriteRaw(v)
}

// readBytes returns a view of a length-prefixed byte string.
func readBytes(b *Buffer) ([]byte, error) {
	n, err := readLen(b, 0)
	if err != nil {
		return nil, err
	}
	return b.ReadRaw(n)
}

func readString(b *Buffer) (string, error) {
	raw, err := readBytes(b)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (l *recordLayout) writeCustom(b *Buffer, v any, ctx valueCtx) error {
	cc, ok := l.c.custom.ForValue(v)
	if !ok || cc.Encode == nil {
		return &TypeError{Field: ctx.field, Type: Custom, Value: v, Msg: "no custom codec registered for " + reflect.TypeOf(v).String()}
	}
	payload, err := cc.Encode(v)
	if err != nil {
		return &TypeError{Field: ctx.field, Type: Custom, Value: v, Msg: "custom encoding of " + cc.Name + " failed: " + err.Error()}
	}
	writeString(b, cc.Name)
	writeBytes(b, payload)
	return nil
}

func (l *recordLayout) readCustom(b *Buffer, ctx valueCtx) (any, error) {
	start := b.Off
	name, err := readString(b)
	if err != nil {
		return nil, err
	}
	payload, err := readBytes(b)
	if err != nil {
		return nil, err
	}
	cc, ok := l.c.custom.ByName(name)
	if !ok || cc.Decode == nil {
		return nil, dataErrf(b.Buf, start, ErrUnknownCustomType, "%q", name)
	}
	v, err := cc.Decode(payload)
	if err != nil {
		return nil, dataErrf(b.Buf, start, err, "custom type %q", name)
	}
	return v, nil
}

// resolveLink resolves a provisional reference and rejects references that
// cannot be stored.
func (l *recordLayout) resolveLink(rid RID, ctx valueCtx) (RID, error) {
	if rid.IsNull() {
		return rid, nil
	}
	if !rid.IsPersistent() && l.c.resolver != nil {
		rid = l.c.resolver.ResolveTemporary(rid)
	}
	if rid.Cluster < 0 {
		return rid, &TypeError{Field: ctx.field, Type: Link, Value: rid, Msg: "impossible to serialize invalid link " + rid.String()}
	}
	return rid, nil
}

func withTypeField(err error, field string) error {
	if te, ok := err.(*TypeError); ok && te.Field == "" {
		te.Field = field
	}
	return err
}

func toInt64(v any) (int64, bool) {
	switch v := v.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	default:
		return 0, false
	}
}

func toFloat64(v any) (float64, bool) {
	switch v := v.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case decimal.Decimal:
		return v.InexactFloat64(), true
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

// toList accepts []any, EmbeddedSetValue and other non-byte slices.
func toList(v any) ([]any, bool) {
	switch v := v.(type) {
	case []any:
		return v, true
	case EmbeddedSetValue:
		return v, true
	case []byte:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

// toMap accepts map[string]any and other maps with string keys.
func toMap(v any) (map[string]any, bool) {
	switch v := v.(type) {
	case map[string]any:
		return v, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	m := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		m[iter.Key().String()] = iter.Value().Interface()
	}
	return m, true
}

func toRIDs(v any) ([]RID, bool) {
	switch v := v.(type) {
	case LinkList:
		return v, true
	case LinkSet:
		return v, true
	case []RID:
		return v, true
	case []any:
		rids := make([]RID, len(v))
		for i, e := range v {
			switch e := e.(type) {
			case nil:
				rids[i] = NullRID
			case RID:
				rids[i] = e
			default:
				return nil, false
			}
		}
		return rids, true
	default:
		return nil, false
	}
}

func toLinkMap(v any) (map[string]RID, bool) {
	switch v := v.(type) {
	case LinkMap:
		return v, true
	case map[string]RID:
		return v, true
	case map[string]any:
		m := make(map[string]RID, len(v))
		for k, e := range v {
			switch e := e.(type) {
			case nil:
				m[k] = NullRID
			case RID:
				m[k] = e
			default:
				return nil, false
			}
		}
		return m, true
	default:
		return nil, false
	}
}

func writeUUID(b *Buffer, id uuid.UUID) {
	b.WriteRaw(id[:])
}

func readUUID(b *Buffer) (uuid.UUID, error) {
	raw, err := b.ReadRaw(16)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.UUID(raw), nil
}
