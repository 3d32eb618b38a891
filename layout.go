package recordbin

import (
	"errors"
	"slices"
)

// Layout is a record header organization. Both layouts share the value
// codec and differ only in how the header maps field names to values.
type Layout interface {
	Version() Version

	Serialize(rec *Record) ([]byte, error)

	// Deserialize decodes all fields into target. Fields target already has
	// are left untouched.
	Deserialize(data []byte, target *Record) error

	// DeserializePartial decodes only the named fields.
	DeserializePartial(data []byte, target *Record, fields ...string) error

	// LocateField finds a field without decoding the rest of the record.
	// class is the record's class and may be empty if the layout stores it.
	LocateField(data []byte, class, field string) (FieldLocation, bool, error)

	// Field returns a comparator-ready view of a field, or nil if the field
	// is absent or null.
	Field(data []byte, class, field string) (*BinaryField, error)

	// ReadField decodes a single field.
	ReadField(data []byte, class, field string) (any, Type, bool, error)

	FieldNames(data []byte) ([]string, error)

	// Debug inspects a record on a best-effort basis, collecting per-field
	// errors instead of failing.
	Debug(data []byte) *DebugInfo
}

// FieldLocation is the position of one encoded field value.
type FieldLocation struct {
	Name      string
	Type      Type
	Offset    int
	Length    int
	Null      bool
	Collation string
}

// BinaryField is an encoded field value positioned at Buf.Off.
type BinaryField struct {
	Name      string
	Type      Type
	Buf       *Buffer
	Collation string
}

type headerFormat interface {
	version() Version

	// topLevelClass reports whether top-level records start with the class
	// name. Embedded records always carry it unless the schema pins it.
	topLevelClass() bool

	writeFields(l *recordLayout, b *Buffer, entries []fieldEntry) error

	// scanHeader reads the header at the cursor, calling fn for every entry
	// until fn returns false. It returns the offset past the header and the
	// end of the record if the header alone determines it (-1 otherwise).
	scanHeader(l *recordLayout, b *Buffer, fn func(s slot) (bool, error)) (hdrEnd, end int, err error)

	writeMap(l *recordLayout, b *Buffer, m map[string]any, ctx valueCtx) error
	readMap(l *recordLayout, b *Buffer, ctx valueCtx) (map[string]any, error)
	skipMap(l *recordLayout, b *Buffer, ctx valueCtx) error
}

type recordLayout struct {
	c   *Codec
	hdr headerFormat
}

var _ Layout = (*recordLayout)(nil)

// fieldEntry is a field ready to be written.
type fieldEntry struct {
	name string
	// id is the global property id used instead of the name, or -1
	id  int
	typ Type
	// typeInHeader is false when the global property pins the type
	typeInHeader bool
	value        any
	null         bool
	ctx          valueCtx
}

// slot is a decoded header entry.
type slot struct {
	name   string
	id     int
	typ    Type
	off    int
	length int
	null   bool
}

const classField = "@class"

func (l *recordLayout) Version() Version {
	return l.hdr.version()
}

func (l *recordLayout) Serialize(rec *Record) ([]byte, error) {
	if rec == nil {
		return nil, errors.New("cannot serialize a nil record")
	}
	b := getBuffer()
	defer releaseBuffer(b)
	if err := l.writeRecord(b, rec, valueCtx{linked: Any, owner: rec.Identity}, true); err != nil {
		return nil, err
	}
	return detach(b), nil
}

func (l *recordLayout) writeRecord(b *Buffer, rec *Record, ctx valueCtx, top bool) error {
	class := rec.Class
	var writeClass bool
	switch {
	case top:
		writeClass = l.hdr.topLevelClass()
	case ctx.class != "":
		if class != "" && class != ctx.class {
			return &TypeError{Field: ctx.field, Type: Embedded, Value: rec, Msg: "embedded record of class " + class + " where " + ctx.class + " is declared"}
		}
		class = ctx.class
	default:
		writeClass = true
	}
	if writeClass {
		writeString(b, class)
	}
	entries, err := l.prepareFields(rec, class, ctx)
	if err != nil {
		return err
	}
	return l.hdr.writeFields(l, b, entries)
}

// prepareFields resolves field types and decides which names can be
// replaced by global property ids.
func (l *recordLayout) prepareFields(rec *Record, class string, ctx valueCtx) ([]fieldEntry, error) {
	entries := make([]fieldEntry, 0, rec.Len())
	for _, f := range rec.Fields() {
		if f.Name == "" {
			return nil, &TypeError{Type: f.Type, Value: f.Value, Msg: "empty field name"}
		}
		prop := l.c.property(class, f.Name)
		e := fieldEntry{
			name:         f.Name,
			id:           -1,
			typ:          f.Type,
			typeInHeader: true,
			value:        f.Value,
			null:         f.Value == nil,
			ctx:          ctx.forProperty(f.Name, prop),
		}
		if e.typ == Any && prop != nil {
			e.typ = prop.Type
		}
		if e.typ == Any && !e.null {
			t, err := l.inferType(f.Value, e.ctx)
			if err != nil {
				return nil, err
			}
			e.typ = t
		}
		if e.typ == Transient {
			continue
		}
		if prop != nil && prop.GlobalID >= 0 {
			if gp := l.c.globalProperty(prop.GlobalID); gp != nil && gp.Name == f.Name && (gp.Type == Any || gp.Type == e.typ) {
				e.id = gp.ID
				e.typeInHeader = gp.Type == Any
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (l *recordLayout) writeFieldName(b *Buffer, e *fieldEntry) {
	if e.id >= 0 {
		WriteVarint(b, -int64(e.id)-1)
	} else {
		writeString(b, e.name)
	}
}

// readFieldName decodes a header name given its leading varint v, which must
// be non-zero. It returns the pinned type of a global property, or Any if the
// header carries a type byte.
func (l *recordLayout) readFieldName(b *Buffer, v int64, start int) (name string, id int, pinned Type, err error) {
	if v < 0 {
		id = int(-v - 1)
		gp := l.c.globalProperty(id)
		if gp == nil {
			return "", id, Any, &SchemaError{GlobalID: id, Off: start}
		}
		return gp.Name, id, gp.Type, nil
	}
	if v > int64(b.Remaining()) {
		return "", -1, Any, dataErrf(b.Buf, start, ErrTruncated, "field name length %d exceeds remaining %d bytes", v, b.Remaining())
	}
	raw, err := b.ReadRaw(int(v))
	if err != nil {
		return "", -1, Any, err
	}
	return l.c.internString(raw), -1, Any, nil
}

// fieldFilter selects fields for partial decoding; nil selects all.
type fieldFilter map[string]struct{}

func newFieldFilter(fields []string) fieldFilter {
	f := make(fieldFilter, len(fields))
	for _, n := range fields {
		f[n] = struct{}{}
	}
	return f
}

func (f fieldFilter) wants(name string) bool {
	if f == nil {
		return true
	}
	_, ok := f[name]
	return ok
}

func (l *recordLayout) Deserialize(data []byte, target *Record) error {
	return l.readRecord(NewBuffer(data), target, valueCtx{linked: Any}, true, nil)
}

func (l *recordLayout) DeserializePartial(data []byte, target *Record, fields ...string) error {
	return l.readRecord(NewBuffer(data), target, valueCtx{linked: Any}, true, newFieldFilter(fields))
}

// readRecordClass consumes the class name if the record carries one and
// returns the effective class.
func (l *recordLayout) readRecordClass(b *Buffer, ctx valueCtx, top bool, known string) (string, error) {
	switch {
	case top && !l.hdr.topLevelClass():
		return known, nil
	case !top && ctx.class != "":
		return ctx.class, nil
	}
	raw, err := readBytes(b)
	if err != nil {
		return "", err
	}
	return l.c.internString(raw), nil
}

// readRecord decodes a record at the cursor and leaves the cursor at the end
// of the furthest value, so that an embedded record is fully consumed.
func (l *recordLayout) readRecord(b *Buffer, target *Record, ctx valueCtx, top bool, filter fieldFilter) error {
	class, err := l.readRecordClass(b, ctx, top, target.Class)
	if err != nil {
		return err
	}
	target.Class = class

	var slots []slot
	hdrEnd, end, err := l.hdr.scanHeader(l, b, func(s slot) (bool, error) {
		slots = append(slots, s)
		return true, nil
	})
	if err != nil {
		return err
	}

	maxEnd := hdrEnd
	for _, s := range slots {
		if !filter.wants(s.name) || target.Has(s.name) {
			if !top && end < 0 && !s.null {
				e, err := l.valueEnd(b, s, class, ctx)
				if err != nil {
					return withField(err, s.name)
				}
				maxEnd = max(maxEnd, e)
			}
			continue
		}
		if s.null {
			target.SetTyped(s.name, nil, s.typ)
			continue
		}
		if err := b.Seek(s.off); err != nil {
			return withField(err, s.name)
		}
		v, err := l.readValue(b, s.typ, ctx.forProperty(s.name, l.c.property(class, s.name)))
		if err != nil {
			return withField(err, s.name)
		}
		target.SetTyped(s.name, v, s.typ)
		maxEnd = max(maxEnd, b.Off)
	}
	if end >= 0 {
		maxEnd = end
	}
	return b.Seek(maxEnd)
}

// valueEnd returns the end offset of a slot's value.
func (l *recordLayout) valueEnd(b *Buffer, s slot, class string, ctx valueCtx) (int, error) {
	if s.length >= 0 {
		return s.off + s.length, nil
	}
	if err := b.Seek(s.off); err != nil {
		return 0, err
	}
	if err := l.skipValue(b, s.typ, ctx.forProperty(s.name, l.c.property(class, s.name))); err != nil {
		return 0, err
	}
	return b.Off, nil
}

func (l *recordLayout) skipRecord(b *Buffer, ctx valueCtx) error {
	class, err := l.readRecordClass(b, ctx, false, "")
	if err != nil {
		return err
	}
	var slots []slot
	hdrEnd, end, err := l.hdr.scanHeader(l, b, func(s slot) (bool, error) {
		slots = append(slots, s)
		return true, nil
	})
	if err != nil {
		return err
	}
	if end < 0 {
		end = hdrEnd
		for _, s := range slots {
			if s.null {
				continue
			}
			e, err := l.valueEnd(b, s, class, ctx)
			if err != nil {
				return withField(err, s.name)
			}
			end = max(end, e)
		}
	}
	return b.Seek(end)
}

func (l *recordLayout) writeEmbedded(b *Buffer, v any, ctx valueCtx) error {
	var rec *Record
	switch x := v.(type) {
	case *Record:
		if x == nil {
			return ctx.typeErr(Embedded, v)
		}
		rec = x
	case DocumentSerializable:
		cc, ok := l.c.custom.ForValue(v)
		if !ok {
			return &TypeError{Field: ctx.field, Type: Embedded, Value: v, Msg: "unregistered document type"}
		}
		r, err := x.ToRecord()
		if err != nil {
			return &TypeError{Field: ctx.field, Type: Embedded, Value: v, Msg: err.Error()}
		}
		rec = NewRecord(r.Class)
		rec.Set(classField, cc.Name)
		for _, f := range r.Fields() {
			rec.SetTyped(f.Name, f.Value, f.Type)
		}
	default:
		return ctx.typeErr(Embedded, v)
	}
	return l.writeRecord(b, rec, ctx, false)
}

func (l *recordLayout) readEmbedded(b *Buffer, ctx valueCtx) (any, error) {
	start := b.Off
	rec := &Record{}
	if err := l.readRecord(b, rec, ctx, false, nil); err != nil {
		return nil, err
	}
	name, ok := rec.Get(classField).(string)
	if !ok {
		return rec, nil
	}
	cc, ok := l.c.custom.ByName(name)
	if !ok || cc.FromRecord == nil {
		return nil, dataErrf(b.Buf, start, ErrUnknownCustomType, "document type %q", name)
	}
	rec.Remove(classField)
	v, err := cc.FromRecord(rec)
	if err != nil {
		return nil, dataErrf(b.Buf, start, err, "document type %q", name)
	}
	return v, nil
}

// locate scans the header for a field. It returns the record class as well.
func (l *recordLayout) locate(data []byte, class, field string) (*Buffer, slot, string, bool, error) {
	b := NewBuffer(data)
	cls, err := l.readRecordClass(b, valueCtx{}, true, class)
	if err != nil {
		return nil, slot{}, "", false, err
	}
	if class == "" {
		class = cls
	}
	var found slot
	var ok bool
	_, _, err = l.hdr.scanHeader(l, b, func(s slot) (bool, error) {
		if s.name == field {
			found, ok = s, true
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return nil, slot{}, class, false, err
	}
	return b, found, class, ok, nil
}

func (l *recordLayout) LocateField(data []byte, class, field string) (FieldLocation, bool, error) {
	b, s, class, ok, err := l.locate(data, class, field)
	if err != nil || !ok {
		return FieldLocation{}, false, err
	}
	loc := FieldLocation{
		Name:      s.name,
		Type:      s.typ,
		Offset:    s.off,
		Length:    s.length,
		Null:      s.null,
		Collation: l.collation(class, field),
	}
	if s.null {
		loc.Length = 0
		return loc, true, nil
	}
	if loc.Length < 0 {
		e, err := l.valueEnd(b, s, class, valueCtx{linked: Any})
		if err != nil {
			return FieldLocation{}, false, withField(err, field)
		}
		loc.Length = e - s.off
	}
	return loc, true, nil
}

func (l *recordLayout) Field(data []byte, class, field string) (*BinaryField, error) {
	_, s, class, ok, err := l.locate(data, class, field)
	if err != nil || !ok || s.null {
		return nil, err
	}
	return &BinaryField{
		Name:      s.name,
		Type:      s.typ,
		Buf:       &Buffer{Buf: data, Off: s.off},
		Collation: l.collation(class, field),
	}, nil
}

func (l *recordLayout) ReadField(data []byte, class, field string) (any, Type, bool, error) {
	b, s, class, ok, err := l.locate(data, class, field)
	if err != nil || !ok {
		return nil, Any, false, err
	}
	if s.null {
		return nil, s.typ, true, nil
	}
	if err := b.Seek(s.off); err != nil {
		return nil, s.typ, true, withField(err, field)
	}
	v, err := l.readValue(b, s.typ, valueCtx{linked: Any}.forProperty(field, l.c.property(class, field)))
	if err != nil {
		return nil, s.typ, true, withField(err, field)
	}
	return v, s.typ, true, nil
}

func (l *recordLayout) FieldNames(data []byte) ([]string, error) {
	b := NewBuffer(data)
	if _, err := l.readRecordClass(b, valueCtx{}, true, ""); err != nil {
		return nil, err
	}
	var names []string
	_, _, err := l.hdr.scanHeader(l, b, func(s slot) (bool, error) {
		names = append(names, s.name)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clip(names), nil
}

func (l *recordLayout) collation(class, field string) string {
	if p := l.c.property(class, field); p != nil && p.Collation != "" {
		return p.Collation
	}
	return CollationDefault
}
