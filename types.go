package recordbin

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Type is a logical field type. Its numeric value is the one-byte type id
// used on the wire.
type Type int8

const (
	Boolean      Type = 0
	Integer      Type = 1
	Short        Type = 2
	Long         Type = 3
	Float        Type = 4
	Double       Type = 5
	DateTime     Type = 6
	String       Type = 7
	Binary       Type = 8
	Embedded     Type = 9
	EmbeddedList Type = 10
	EmbeddedSet  Type = 11
	EmbeddedMap  Type = 12
	Link         Type = 13
	LinkListType Type = 14
	LinkSetType  Type = 15
	LinkMapType  Type = 16
	Byte         Type = 17
	Transient    Type = 18
	Date         Type = 19
	Custom       Type = 20
	Decimal      Type = 21
	LinkBag      Type = 22
	Any          Type = 23

	maxType = Any
)

// nullType marks a null value in nullable type bytes.
const nullType = -1

var typeNames = [...]string{
	Boolean:      "BOOLEAN",
	Integer:      "INTEGER",
	Short:        "SHORT",
	Long:         "LONG",
	Float:        "FLOAT",
	Double:       "DOUBLE",
	DateTime:     "DATETIME",
	String:       "STRING",
	Binary:       "BINARY",
	Embedded:     "EMBEDDED",
	EmbeddedList: "EMBEDDEDLIST",
	EmbeddedSet:  "EMBEDDEDSET",
	EmbeddedMap:  "EMBEDDEDMAP",
	Link:         "LINK",
	LinkListType: "LINKLIST",
	LinkSetType:  "LINKSET",
	LinkMapType:  "LINKMAP",
	Byte:         "BYTE",
	Transient:    "TRANSIENT",
	Date:         "DATE",
	Custom:       "CUSTOM",
	Decimal:      "DECIMAL",
	LinkBag:      "LINKBAG",
	Any:          "ANY",
}

func (t Type) Valid() bool {
	return t >= 0 && t <= maxType
}

func (t Type) String() string {
	if t.Valid() {
		return typeNames[t]
	}
	return fmt.Sprintf("invalid type %d", int(t))
}

// ParseType maps an upper- or lower-case type name to a Type.
func ParseType(s string) (Type, bool) {
	for i, n := range typeNames {
		if strings.EqualFold(n, s) {
			return Type(i), true
		}
	}
	return Any, false
}

func (t Type) IsBinaryComparable() bool {
	switch t {
	case Integer, Long, DateTime, Short, String, Double, Float, Byte, Boolean, Date, Binary, Link, Decimal:
		return true
	default:
		return false
	}
}

func (t Type) IsEmbedded() bool {
	switch t {
	case Embedded, EmbeddedList, EmbeddedSet, EmbeddedMap:
		return true
	default:
		return false
	}
}

func (t Type) IsLink() bool {
	switch t {
	case Link, LinkListType, LinkSetType, LinkMapType, LinkBag:
		return true
	default:
		return false
	}
}

func (t Type) IsMultiValue() bool {
	switch t {
	case EmbeddedList, EmbeddedSet, EmbeddedMap, LinkListType, LinkSetType, LinkMapType, LinkBag:
		return true
	default:
		return false
	}
}

// EmbeddedSetValue is the Go value of an EMBEDDEDSET field. Order is preserved on
// the wire; uniqueness is the caller's responsibility.
type EmbeddedSetValue []any

// LinkList, LinkSet and LinkMap are the Go values of link collection fields.
// A NullRID element stands for a null link.
type (
	LinkList []RID
	LinkSet  []RID
	LinkMap  map[string]RID
)

// DocumentSerializable is implemented by Go types that are stored as embedded
// records. The type must be registered in the CustomRegistry under the name
// returned by its codec so that decoding can reconstruct it.
type DocumentSerializable interface {
	ToRecord() (*Record, error)
}

// TypeOf infers the logical type of a Go value. It returns false for values
// that have no natural logical type.
func TypeOf(v any) (Type, bool) {
	switch v := v.(type) {
	case nil:
		return Any, false
	case bool:
		return Boolean, true
	case int32:
		return Integer, true
	case int16:
		return Short, true
	case int64, int:
		return Long, true
	case int8:
		return Byte, true
	case float32:
		return Float, true
	case float64:
		return Double, true
	case decimal.Decimal, *decimal.Decimal:
		return Decimal, true
	case string:
		return String, true
	case []byte:
		return Binary, true
	case time.Time:
		return DateTime, true
	case RID:
		return Link, true
	case *Record:
		return Embedded, v != nil
	case DocumentSerializable:
		return Embedded, true
	case []any:
		return EmbeddedList, true
	case EmbeddedSetValue:
		return EmbeddedSet, true
	case map[string]any:
		return EmbeddedMap, true
	case LinkList:
		return LinkListType, true
	case LinkSet:
		return LinkSetType, true
	case LinkMap:
		return LinkMapType, true
	case *RidBag:
		return LinkBag, true
	default:
		return Any, false
	}
}
