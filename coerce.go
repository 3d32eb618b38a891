package recordbin

import (
	"bytes"
	"cmp"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
)

func comparableKinds(a, b kind) bool {
	switch a {
	case kindInt, kindDateTime, kindDate, kindFloat, kindDecimal:
		return b <= kindString
	case kindString:
		return b <= kindLink && b != kindBinary
	case kindBool:
		return b == kindBool
	case kindBinary:
		return b == kindBinary
	case kindLink:
		return b == kindLink
	default:
		return false
	}
}

// rule compares x and y where x.kind <= y.kind.
func (c *Comparator) rule(x, y operand) (int, bool) {
	switch x.kind {
	case kindInt:
		switch y.kind {
		case kindInt, kindDateTime:
			return cmp.Compare(x.i, y.i), true
		case kindDate:
			return cmp.Compare(x.i, y.i*millisPerDay), true
		case kindFloat:
			return compareFloat(float64(x.i), y.f)
		case kindDecimal:
			return decimal.NewFromInt(x.i).Cmp(y.d), true
		case kindString:
			return strings.Compare(strconv.FormatInt(x.i, 10), y.s), true
		}
	case kindDateTime:
		switch y.kind {
		case kindDateTime:
			return cmp.Compare(x.i, y.i), true
		case kindDate:
			return cmp.Compare(c.c.dayNumber(time.UnixMilli(x.i)), y.i), true
		case kindFloat:
			return compareFloat(float64(x.i), y.f)
		case kindDecimal:
			return decimal.NewFromInt(x.i).Cmp(y.d), true
		case kindString:
			return c.compareTimeString(x, y.s)
		}
	case kindDate:
		switch y.kind {
		case kindDate:
			return cmp.Compare(x.i, y.i), true
		case kindFloat:
			return compareFloat(float64(x.i*millisPerDay), y.f)
		case kindDecimal:
			return decimal.NewFromInt(x.i * millisPerDay).Cmp(y.d), true
		case kindString:
			return c.compareTimeString(x, y.s)
		}
	case kindFloat:
		switch y.kind {
		case kindFloat:
			return compareFloat(x.f, y.f)
		case kindDecimal:
			return compareFloatDecimal(x.f, y.d)
		case kindString:
			return strings.Compare(formatFloat(x), y.s), true
		}
	case kindDecimal:
		switch y.kind {
		case kindDecimal:
			return x.d.Cmp(y.d), true
		case kindString:
			if d, err := decimal.NewFromString(strings.TrimSpace(y.s)); err == nil {
				return x.d.Cmp(d), true
			}
			return strings.Compare(x.d.String(), y.s), true
		}
	case kindString:
		switch y.kind {
		case kindString:
			return compareCollated(x.s, y.s, pickCollation(x.collation, y.collation)), true
		case kindBool:
			return strings.Compare(x.s, strconv.FormatBool(y.b)), true
		case kindLink:
			if rid, err := ParseRID(x.s); err == nil {
				return rid.Compare(y.rid), true
			}
			return strings.Compare(x.s, y.rid.String()), true
		}
	case kindBool:
		if y.kind == kindBool {
			return compareBool(x.b, y.b), true
		}
	case kindBinary:
		if y.kind == kindBinary {
			return bytes.Compare(x.raw, y.raw), true
		}
	case kindLink:
		if y.kind == kindLink {
			return x.rid.Compare(y.rid), true
		}
	}
	return 1, false
}

// compareTimeString compares a date or datetime with a string. The string is
// tried as epoch milliseconds, then as a datetime, then as a date, all in the
// database zone. If nothing parses, the formatted date is compared with the
// string.
func (c *Comparator) compareTimeString(x operand, s string) (int, bool) {
	s = strings.TrimSpace(s)
	var t time.Time
	parsed := true
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		t = time.UnixMilli(ms)
	} else if pt, err := time.ParseInLocation(c.c.dateTimeFormat, s, c.c.tz); err == nil {
		t = pt
	} else if pt, err := time.ParseInLocation(c.c.dateFormat, s, c.c.tz); err == nil {
		t = pt
	} else {
		parsed = false
	}

	if x.kind == kindDate {
		if parsed {
			return cmp.Compare(x.i, c.c.dayNumber(t)), true
		}
		return strings.Compare(c.c.formatDate(c.c.dayTime(x.i)), s), true
	}
	if parsed {
		return cmp.Compare(x.i, t.UnixMilli()), true
	}
	return strings.Compare(c.c.formatDateTime(time.UnixMilli(x.i)), s), true
}

// compareFloatDecimal converts the float by its exact binary value, so a
// double 0.1 is greater than decimal 0.1. Index order depends on this rule
// staying fixed.
func compareFloatDecimal(f float64, d decimal.Decimal) (int, bool) {
	switch {
	case math.IsNaN(f):
		return 1, false
	case math.IsInf(f, 1):
		return 1, true
	case math.IsInf(f, -1):
		return -1, true
	}
	fd, _ := exactDecimal(f)
	return fd.Cmp(d), true
}

func compareFloat(a, b float64) (int, bool) {
	if math.IsNaN(a) || math.IsNaN(b) {
		return 1, false
	}
	return cmp.Compare(a, b), true
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case a:
		return 1
	default:
		return -1
	}
}

// formatFloat writes the shortest decimal form that round-trips, without an
// exponent: a double 3.0 is "3", not "3.0", so it equals the string "3" and
// sorts before "3.0".
func formatFloat(x operand) string {
	if x.typ == Float {
		return strconv.FormatFloat(x.f, 'f', -1, 32)
	}
	return strconv.FormatFloat(x.f, 'f', -1, 64)
}

// pickCollation prefers the first field's collation when both declare one.
func pickCollation(a, b string) string {
	if a != "" && a != CollationDefault {
		return a
	}
	if b != "" {
		return b
	}
	return CollationDefault
}

func compareCollated(a, b, collation string) int {
	if collation == CollationCaseInsensitive {
		fold := cases.Fold()
		a = fold.String(a)
		b = fold.String(b)
	}
	return strings.Compare(a, b)
}
