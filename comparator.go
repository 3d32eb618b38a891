package recordbin

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/shopspring/decimal"
)

// Comparator compares encoded field values of possibly different types
// without decoding the records they belong to. Both operations leave the
// fields' buffer offsets as they found them, so one buffer can be probed by
// concurrent comparisons at different offsets.
type Comparator struct {
	c *Codec
}

func (c *Codec) Comparator() *Comparator {
	return &Comparator{c: c}
}

// Equals reports whether the two values are equal after coercion. Values of
// types that have no coercion rule are never equal.
func (c *Comparator) Equals(a, b *BinaryField) bool {
	r, ok := c.compare(a, b)
	return ok && r == 0
}

// Compare orders two values after coercion. It returns 1 for values of
// types that have no coercion rule, which callers must treat as "not
// ordered" rather than "greater".
func (c *Comparator) Compare(a, b *BinaryField) int {
	r, ok := c.compare(a, b)
	if !ok {
		return 1
	}
	return r
}

// Comparable reports whether the comparator has a coercion rule for the pair.
func (c *Comparator) Comparable(a, b Type) bool {
	ka, kb := kindOf(a), kindOf(b)
	if ka == kindNone || kb == kindNone {
		return false
	}
	if ka > kb {
		ka, kb = kb, ka
	}
	return comparableKinds(ka, kb)
}

func (c *Comparator) compare(a, b *BinaryField) (r int, ok bool) {
	if a == nil || b == nil || a.Buf == nil || b.Buf == nil {
		return 1, false
	}
	aOff, bOff := a.Buf.Off, b.Buf.Off
	defer func() {
		a.Buf.Off, b.Buf.Off = aOff, bOff
		if p := recover(); p != nil {
			c.c.logger.LogAttrs(context.Background(), slog.LevelWarn, "recordbin: comparison failed",
				slog.String("a", a.Name), slog.String("b", b.Name), slog.String("panic", fmt.Sprint(p)))
			r, ok = 1, false
		}
	}()

	x, err := c.operand(a)
	if err != nil {
		return 1, false
	}
	y, err := c.operand(b)
	if err != nil {
		return 1, false
	}
	if x.kind > y.kind {
		r, ok = c.rule(y, x)
		return -r, ok
	}
	return c.rule(x, y)
}

// kind groups types that share a comparison representation. Rules are
// defined for pairs with the lower kind first.
type kind uint8

const (
	kindNone kind = iota
	kindInt
	kindDateTime
	kindDate
	kindFloat
	kindDecimal
	kindString
	kindBool
	kindBinary
	kindLink
)

func kindOf(t Type) kind {
	switch t {
	case Byte, Short, Integer, Long:
		return kindInt
	case DateTime:
		return kindDateTime
	case Date:
		return kindDate
	case Float, Double:
		return kindFloat
	case Decimal:
		return kindDecimal
	case String:
		return kindString
	case Boolean:
		return kindBool
	case Binary:
		return kindBinary
	case Link:
		return kindLink
	default:
		return kindNone
	}
}

// operand is a decoded comparable value. i holds integers, epoch
// milliseconds of datetimes and day numbers of dates.
type operand struct {
	kind      kind
	typ       Type
	i         int64
	f         float64
	d         decimal.Decimal
	s         string
	raw       []byte
	b         bool
	rid       RID
	collation string
}

func (c *Comparator) operand(f *BinaryField) (operand, error) {
	b := f.Buf
	op := operand{kind: kindOf(f.Type), typ: f.Type, collation: f.Collation}
	var err error
	switch f.Type {
	case Byte:
		var v byte
		v, err = b.ReadByte()
		op.i = int64(int8(v))
	case Short, Integer, Long, DateTime, Date:
		op.i, err = ReadVarint(b)
	case Float:
		var bits int32
		bits, err = b.ReadInt32BE()
		op.f = float64(math.Float32frombits(uint32(bits)))
	case Double:
		var bits int64
		bits, err = b.ReadInt64BE()
		op.f = math.Float64frombits(uint64(bits))
	case Decimal:
		op.d, err = readDecimal(b)
	case String:
		op.s, err = readString(b)
	case Boolean:
		var v byte
		v, err = b.ReadByte()
		op.b = v != 0
	case Binary:
		op.raw, err = readBytes(b)
	case Link:
		op.rid, err = readLink(b)
	default:
		return op, fmt.Errorf("type %v is not comparable", f.Type)
	}
	return op, err
}
