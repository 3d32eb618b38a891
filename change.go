package recordbin

import "fmt"

// Op tags a delta entry. The numeric values are the wire tag bytes.
type Op byte

const (
	OpNone     Op = 0
	OpCreated  Op = 1
	OpReplaced Op = 2
	OpChanged  Op = 3
	OpRemoved  Op = 4
)

// DeltaRecordType is the record-type byte under which storage envelopes carry
// delta payloads.
const DeltaRecordType byte = 10

func (v Op) Valid() bool {
	return v >= OpCreated && v <= OpRemoved
}

func (v Op) String() string {
	switch v {
	case OpNone:
		return "none"
	case OpCreated:
		return "created"
	case OpReplaced:
		return "replaced"
	case OpChanged:
		return "changed"
	case OpRemoved:
		return "removed"
	default:
		return fmt.Sprintf("invalid op %d", int(v))
	}
}
