package recordbin

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const indentStep = "  "

var dumpSep = strings.Repeat("-", 60)

type DebugField struct {
	Name   string
	Type   Type
	Offset int
	Length int
	Null   bool
	Value  any
	Err    error
}

// DebugInfo is the result of a best-effort record inspection. Err is set if
// the header itself could not be read; fields decoded up to that point are
// still reported.
type DebugInfo struct {
	Version Version
	Class   string
	Size    int
	Fields  []DebugField
	Err     error
}

func (l *recordLayout) Debug(data []byte) *DebugInfo {
	info := &DebugInfo{Version: l.Version(), Size: len(data)}
	b := NewBuffer(data)
	class, err := l.readRecordClass(b, valueCtx{}, true, "")
	if err != nil {
		info.Err = err
		l.logDebugFailure(data, "", err)
		return info
	}
	info.Class = class

	var slots []slot
	_, _, err = l.hdr.scanHeader(l, b, func(s slot) (bool, error) {
		slots = append(slots, s)
		return true, nil
	})
	if err != nil {
		info.Err = err
		l.logDebugFailure(data, "", err)
	}

	for _, s := range slots {
		df := DebugField{Name: s.name, Type: s.typ, Offset: s.off, Length: s.length, Null: s.null}
		if s.null {
			df.Length = 0
			info.Fields = append(info.Fields, df)
			continue
		}
		if err := b.Seek(s.off); err != nil {
			df.Err = err
		} else {
			df.Value, df.Err = l.readValue(b, s.typ, valueCtx{linked: Any}.forProperty(s.name, l.c.property(class, s.name)))
			if df.Err == nil && df.Length < 0 {
				df.Length = b.Off - s.off
			}
		}
		if df.Err != nil {
			df.Err = withField(df.Err, s.name)
			l.logDebugFailure(data, s.name, df.Err)
		}
		info.Fields = append(info.Fields, df)
	}
	return info
}

func (l *recordLayout) logDebugFailure(data []byte, field string, err error) {
	const maxExcerpt = 64
	excerpt := data
	if len(excerpt) > maxExcerpt {
		excerpt = excerpt[:maxExcerpt]
	}
	l.c.logger.LogAttrs(context.Background(), slog.LevelWarn, "recordbin: inspection failed",
		slog.String("layout", l.Version().String()),
		slog.String("field", field),
		hexAttr("data", excerpt),
		slog.Any("err", err))
}

func (d *DebugInfo) String() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "%s record, class %q, %d bytes, %d fields\n", d.Version, d.Class, d.Size, len(d.Fields))
	if d.Err != nil {
		fmt.Fprintf(&buf, "** HEADER ERROR: %v\n", d.Err)
	}
	if len(d.Fields) > 0 {
		fmt.Fprintln(&buf, dumpSep)
	}
	for _, f := range d.Fields {
		label := rpad(f.Name, 20, ' ') + " " + rpad(f.Type.String(), 12, ' ')
		switch {
		case f.Err != nil:
			fmt.Fprintf(&buf, "%s%s @%d ** ERROR: %v\n", indentStep, label, f.Offset, f.Err)
		case f.Null:
			fmt.Fprintf(&buf, "%s%s null\n", indentStep, label)
		default:
			fmt.Fprintf(&buf, "%s%s @%d+%d = %s\n", indentStep, label, f.Offset, f.Length, FormatValue(f.Value))
		}
	}
	return buf.String()
}

// FormatValue renders a decoded value for humans.
func FormatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", v)
	case []byte:
		return "0x" + hexstr(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case *Record:
		var buf strings.Builder
		buf.WriteString(v.Class)
		buf.WriteByte('{')
		for i, f := range v.Fields() {
			if i > 0 {
				buf.WriteString(", ")
			}
			buf.WriteString(f.Name)
			buf.WriteString(": ")
			buf.WriteString(FormatValue(f.Value))
		}
		buf.WriteByte('}')
		return buf.String()
	case *RidBag:
		if v.IsEmbedded() {
			return fmt.Sprintf("bag%v", v.Entries())
		}
		p := v.Pointer()
		return fmt.Sprintf("bag(tree %d:%d:%d size=%d changes=%d)", p.FileID, p.PageIndex, p.PageOffset, v.Size(), len(v.Changes()))
	case []any:
		parts := make([]string, len(v))
		for i, e := range v {
			parts[i] = FormatValue(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case EmbeddedSetValue:
		return "set" + FormatValue([]any(v))
	default:
		return fmt.Sprint(v)
	}
}
