package recordbin

import (
	"context"
	"log/slog"
	"maps"
	"slices"

	"github.com/google/uuid"
)

func (l *recordLayout) writeLinkCollection(b *Buffer, rids []RID, ctx valueCtx) error {
	WriteVarint(b, int64(len(rids)))
	for _, rid := range rids {
		rid, err := l.resolveLink(rid, ctx)
		if err != nil {
			return err
		}
		writeLink(b, rid)
	}
	return nil
}

func readLinkCollection(b *Buffer) ([]RID, error) {
	n, err := readLen(b, 2)
	if err != nil {
		return nil, err
	}
	rids := make([]RID, n)
	for i := range rids {
		rids[i], err = readLink(b)
		if err != nil {
			return nil, err
		}
	}
	return rids, nil
}

func (l *recordLayout) writeLinkMap(b *Buffer, m map[string]RID, ctx valueCtx) error {
	WriteVarint(b, int64(len(m)))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		rid, err := l.resolveLink(m[k], ctx)
		if err != nil {
			return err
		}
		b.WriteByte(byte(String))
		writeString(b, k)
		writeLink(b, rid)
	}
	return nil
}

func readLinkMap(b *Buffer) (LinkMap, error) {
	n, err := readLen(b, 4)
	if err != nil {
		return nil, err
	}
	m := make(LinkMap, n)
	for range n {
		if err := readMapKeyType(b); err != nil {
			return nil, err
		}
		k, err := readString(b)
		if err != nil {
			return nil, err
		}
		m[k], err = readLink(b)
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

// readMapKeyType consumes the key type byte of a map entry. Only string keys
// are supported.
func readMapKeyType(b *Buffer) error {
	start := b.Off
	c, err := b.ReadByte()
	if err != nil {
		return err
	}
	if Type(c) != String {
		return dataErrf(b.Buf, start, nil, "unsupported map key type %v", Type(c))
	}
	return nil
}

// homogeneousType returns the element type to put in the collection header
// when every element can be written as the declared linked type.
func homogeneousType(items []any, linked Type) Type {
	if linked == Any || linked == Transient || !linked.Valid() {
		return Any
	}
	for _, e := range items {
		if e == nil || !compatible(e, linked) {
			return Any
		}
	}
	return linked
}

func compatible(v any, t Type) bool {
	vt, ok := TypeOf(v)
	if ok && vt == t {
		return true
	}
	switch t {
	case Integer, Short, Long, Byte:
		_, ok := toInt64(v)
		return ok
	case Float, Double:
		_, ok := toFloat64(v)
		return ok
	case Decimal:
		_, ok := toDecimal(v)
		return ok
	case Date, DateTime:
		return ok && (vt == Date || vt == DateTime)
	case EmbeddedList, EmbeddedSet:
		return ok && (vt == EmbeddedList || vt == EmbeddedSet)
	case LinkListType, LinkSetType:
		return ok && (vt == LinkListType || vt == LinkSetType)
	default:
		return false
	}
}

func (l *recordLayout) writeEmbeddedCollection(b *Buffer, items []any, ctx valueCtx) error {
	WriteVarint(b, int64(len(items)))
	lt := homogeneousType(items, ctx.linked)
	b.WriteByte(byte(lt))
	ectx := ctx.element()
	for _, e := range items {
		if lt != Any {
			if err := l.writeValue(b, e, lt, ectx); err != nil {
				return err
			}
			continue
		}
		if e == nil {
			b.WriteByte(byte(Any))
			continue
		}
		t, err := l.inferType(e, ectx)
		if err != nil {
			return err
		}
		b.WriteByte(byte(t))
		if err := l.writeValue(b, e, t, ectx); err != nil {
			return err
		}
	}
	return nil
}

func (l *recordLayout) readEmbeddedCollection(b *Buffer, ctx valueCtx) ([]any, error) {
	n, lt, err := readCollectionHeader(b)
	if err != nil {
		return nil, err
	}
	ectx := ctx.element()
	items := make([]any, n)
	for i := range items {
		t := lt
		if t == Any {
			t, err = readType(b)
			if err != nil {
				return nil, err
			}
			if t == Any {
				continue
			}
		}
		items[i], err = l.readValue(b, t, ectx)
		if err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (l *recordLayout) skipEmbeddedCollection(b *Buffer, ctx valueCtx) error {
	n, lt, err := readCollectionHeader(b)
	if err != nil {
		return err
	}
	ectx := ctx.element()
	for range n {
		t := lt
		if t == Any {
			t, err = readType(b)
			if err != nil {
				return err
			}
		}
		if err := l.skipValue(b, t, ectx); err != nil {
			return err
		}
	}
	return nil
}

func readCollectionHeader(b *Buffer) (int, Type, error) {
	n, err := readLen(b, 1)
	if err != nil {
		return 0, Any, err
	}
	lt, err := readType(b)
	if err != nil {
		return 0, Any, err
	}
	if lt == Transient {
		return 0, Any, dataErrf(b.Buf, b.Off-1, nil, "invalid collection element type %v", lt)
	}
	return n, lt, nil
}

// readType reads a type byte that must name a valid type.
func readType(b *Buffer) (Type, error) {
	start := b.Off
	c, err := b.ReadByte()
	if err != nil {
		return Any, err
	}
	t := Type(int8(c))
	if !t.Valid() {
		return Any, dataErrf(b.Buf, start, nil, "invalid type byte 0x%02x", c)
	}
	return t, nil
}

// readNullableType reads a type byte where -1 denotes a null value.
func readNullableType(b *Buffer) (Type, bool, error) {
	start := b.Off
	c, err := b.ReadByte()
	if err != nil {
		return Any, false, err
	}
	if int8(c) == nullType {
		return Any, true, nil
	}
	t := Type(int8(c))
	if !t.Valid() {
		return Any, false, dataErrf(b.Buf, start, nil, "invalid type byte 0x%02x", c)
	}
	return t, false, nil
}

func writeNullableType(b *Buffer, t Type, null bool) {
	if null {
		b.WriteByte(0xFF)
	} else {
		b.WriteByte(byte(t))
	}
}

const (
	bagEmbedded byte = 1 << 0
	bagHasUUID  byte = 1 << 1
)

func (l *recordLayout) writeRidBag(b *Buffer, bag *RidBag, ctx valueCtx) error {
	var config byte
	if bag.IsEmbedded() {
		config |= bagEmbedded
	}
	id, hasID := l.bagCorrelationID(bag)
	if hasID {
		config |= bagHasUUID
	}

	if !bag.IsEmbedded() && !bag.Pointer().IsValid() {
		if err := l.allocateBagPointer(bag, ctx); err != nil {
			return err
		}
	}

	b.WriteByte(config)
	if hasID {
		writeUUID(b, id)
	}

	if bag.IsEmbedded() {
		return l.writeLinkCollection(b, bag.Entries(), ctx)
	}

	p := bag.Pointer()
	WriteVarint(b, p.FileID)
	WriteVarint(b, p.PageIndex)
	WriteVarint(b, int64(p.PageOffset))
	WriteVarint(b, int64(bag.Size()))
	changes := bag.Changes()
	WriteVarint(b, int64(len(changes)))
	for _, rid := range slices.SortedFunc(maps.Keys(changes), RID.Compare) {
		c := changes[rid]
		rrid, err := l.resolveLink(rid, ctx)
		if err != nil {
			return err
		}
		writeLink(b, rrid)
		b.WriteByte(byte(c.Kind))
		WriteVarint(b, int64(c.Value))
	}
	return nil
}

func (l *recordLayout) bagCorrelationID(bag *RidBag) (id uuid.UUID, ok bool) {
	if !bag.IsEmbedded() && l.c.trees != nil {
		if lid, ok := l.c.trees.RegisterChangeListener(bag); ok {
			return lid, true
		}
		if tid, ok := bag.TemporaryID(); ok {
			l.c.logger.LogAttrs(context.Background(), slog.LevelDebug, "bag change listener unavailable, using temporary id", slog.String("id", tid.String()))
			return tid, true
		}
		return id, false
	}
	return bag.TemporaryID()
}

func (l *recordLayout) allocateBagPointer(bag *RidBag, ctx valueCtx) error {
	if l.c.trees == nil {
		return &PreconditionError{Field: ctx.field, Msg: "cannot allocate storage for tree-backed bag", Err: ErrNoTreeManager}
	}
	p, err := l.c.trees.AllocatePointer(ctx.owner)
	if err != nil {
		return &PreconditionError{Field: ctx.field, Msg: "cannot allocate storage for tree-backed bag", Err: err}
	}
	if !p.IsValid() {
		return &PreconditionError{Field: ctx.field, Msg: "tree manager returned an invalid pointer", Err: ErrNoWriteContext}
	}
	bag.SetPointer(p)
	l.c.logger.LogAttrs(context.Background(), slog.LevelDebug, "allocated tree-backed bag",
		slog.String("field", ctx.field),
		slog.String("owner", ctx.owner.String()),
		slog.Int64("file", p.FileID),
		slog.Int64("page", p.PageIndex),
		slog.Int("offset", int(p.PageOffset)))
	return nil
}

func readRidBag(b *Buffer) (*RidBag, error) {
	config, err := b.ReadByte()
	if err != nil {
		return nil, err
	}
	var bag *RidBag
	var tempID uuid.UUID
	hasID := config&bagHasUUID != 0
	if hasID {
		tempID, err = readUUID(b)
		if err != nil {
			return nil, err
		}
	}
	if config&bagEmbedded != 0 {
		rids, err := readLinkCollection(b)
		if err != nil {
			return nil, err
		}
		bag = &RidBag{embedded: true, entries: rids, pointer: InvalidPointer}
	} else {
		p, size, n, err := readBagTreeHeader(b)
		if err != nil {
			return nil, err
		}
		bag = NewTreeRidBag(p, size)
		for range n {
			rid, err := readLink(b)
			if err != nil {
				return nil, err
			}
			start := b.Off
			kind, err := b.ReadByte()
			if err != nil {
				return nil, err
			}
			if ChangeKind(kind) != ChangeDiff && ChangeKind(kind) != ChangeAbsolute {
				return nil, dataErrf(b.Buf, start, nil, "invalid bag change kind %d", kind)
			}
			v, err := ReadVarint32(b)
			if err != nil {
				return nil, err
			}
			bag.changes[rid] = Change{Kind: ChangeKind(kind), Value: v}
		}
	}
	if hasID {
		bag.SetTemporaryID(tempID)
	}
	return bag, nil
}

func readBagTreeHeader(b *Buffer) (p Pointer, size int, n int, err error) {
	if p.FileID, err = ReadVarint64(b); err != nil {
		return
	}
	if p.PageIndex, err = ReadVarint64(b); err != nil {
		return
	}
	if p.PageOffset, err = ReadVarint32(b); err != nil {
		return
	}
	var sz int32
	if sz, err = ReadVarint32(b); err != nil {
		return
	}
	size = int(sz)
	n, err = readLen(b, 4)
	return
}

func skipRidBag(b *Buffer) error {
	config, err := b.ReadByte()
	if err != nil {
		return err
	}
	if config&bagHasUUID != 0 {
		if err := b.Skip(16); err != nil {
			return err
		}
	}
	if config&bagEmbedded != 0 {
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
	}
	_, _, n, err := readBagTreeHeader(b)
	if err != nil {
		return err
	}
	for range n {
		if err := skipLink(b); err != nil {
			return err
		}
		if err := b.Skip(1); err != nil {
			return err
		}
		if _, err := ReadVarint(b); err != nil {
			return err
		}
	}
	return nil
}
