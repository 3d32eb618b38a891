package recordbin

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTruncated          = errors.New("truncated data")
	ErrVarintRange        = errors.New("varint out of range")
	ErrUnknownCustomType  = errors.New("unknown custom type")
	ErrUnsupportedVersion = errors.New("unsupported record format version")
	ErrNoWriteContext     = errors.New("no active write context")
	ErrNoTreeManager      = errors.New("tree-backed collection manager unavailable")
	ErrDeltaUnsupported   = errors.New("delta not supported for type")
)

// DataError reports malformed encoded data. Off is the byte offset at which
// decoding failed; Field is the record field being decoded, if known.
type DataError struct {
	Data  []byte
	Off   int
	Field string
	Err   error
	Msg   string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{Data: data, Off: off, Err: err, Msg: fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	var buf strings.Builder
	if e.Field != "" {
		buf.WriteString(e.Field)
		buf.WriteString(": ")
	}
	buf.WriteString(e.Msg)
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		fmt.Fprintf(&buf, " at %d: (%d) %x", e.Off, n, e.Data)
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		fmt.Fprintf(&buf, " at %d: (%d) %x...%x", e.Off, n, p, s)
	}
	return buf.String()
}

// withField attaches the field name to a *DataError that does not have one yet.
// Other errors are returned as is.
func withField(err error, field string) error {
	if err == nil || field == "" {
		return err
	}
	var de *DataError
	if errors.As(err, &de) && de.Field == "" {
		de.Field = field
	}
	return err
}

// TypeError reports a value whose runtime shape does not match the logical
// type it is being encoded as.
type TypeError struct {
	Field string
	Type  Type
	Value any
	Msg   string
}

func (e *TypeError) Error() string {
	var buf strings.Builder
	if e.Field != "" {
		buf.WriteString(e.Field)
		buf.WriteString(": ")
	}
	if e.Msg != "" {
		buf.WriteString(e.Msg)
	} else if e.Type == Any {
		fmt.Fprintf(&buf, "impossible to serialize value of type %T", e.Value)
	} else {
		fmt.Fprintf(&buf, "cannot encode %T as %v", e.Value, e.Type)
	}
	return buf.String()
}

// SchemaError reports a header that references a global property id the
// schema does not know.
type SchemaError struct {
	GlobalID int
	Off      int
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("missing property definition for property id %d (at %d)", e.GlobalID, e.Off)
}

// PreconditionError reports a collaborator that is unavailable or not ready,
// e.g. a tree-backed bag write outside of a write context.
type PreconditionError struct {
	Field string
	Msg   string
	Err   error
}

func (e *PreconditionError) Unwrap() error {
	return e.Err
}

func (e *PreconditionError) Error() string {
	var buf strings.Builder
	if e.Field != "" {
		buf.WriteString(e.Field)
		buf.WriteString(": ")
	}
	buf.WriteString(e.Msg)
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}
