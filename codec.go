package recordbin

import (
	"fmt"
	"log/slog"
	"time"
)

// Version selects a record layout. It is carried outside of the layout's own
// bytes, typically as the first byte of the storage envelope.
type Version byte

const (
	VersionPointer Version = 0
	VersionLength  Version = 1

	CurrentVersion = VersionLength
)

func (v Version) String() string {
	switch v {
	case VersionPointer:
		return "pointer"
	case VersionLength:
		return "length"
	default:
		return fmt.Sprintf("invalid version %d", int(v))
	}
}

const (
	DefaultDateFormat     = "2006-01-02"
	DefaultDateTimeFormat = "2006-01-02 15:04:05"
)

// Options configure a Codec. All fields are optional.
type Options struct {
	// TimeZone is the database time zone used to floor DATE values to a
	// calendar day and to parse date strings in the comparator. Defaults to UTC.
	TimeZone *time.Location

	Schema      Schema
	Resolver    Resolver
	TreeManager TreeManager
	Custom      *CustomRegistry

	// DateFormat and DateTimeFormat are Go time layouts used when comparing
	// dates against strings.
	DateFormat     string
	DateTimeFormat string

	Logger *slog.Logger

	// InternStrings makes decoders reuse field name strings across records.
	InternStrings bool
}

// Codec bundles the collaborators and settings shared by both layouts, the
// comparator and the delta codec. A Codec is immutable and safe for
// concurrent use.
type Codec struct {
	tz             *time.Location
	schema         Schema
	resolver       Resolver
	trees          TreeManager
	custom         *CustomRegistry
	dateFormat     string
	dateTimeFormat string
	logger         *slog.Logger
	names          *StringCache

	pointer *recordLayout
	length  *recordLayout
}

func NewCodec(o Options) *Codec {
	if o.TimeZone == nil {
		o.TimeZone = time.UTC
	}
	if o.DateFormat == "" {
		o.DateFormat = DefaultDateFormat
	}
	if o.DateTimeFormat == "" {
		o.DateTimeFormat = DefaultDateTimeFormat
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	c := &Codec{
		tz:             o.TimeZone,
		schema:         o.Schema,
		resolver:       o.Resolver,
		trees:          o.TreeManager,
		custom:         o.Custom,
		dateFormat:     o.DateFormat,
		dateTimeFormat: o.DateTimeFormat,
		logger:         o.Logger,
	}
	if o.InternStrings {
		c.names = NewStringCache(0)
	}
	c.pointer = &recordLayout{c: c, hdr: pointerHeader{}}
	c.length = &recordLayout{c: c, hdr: lengthHeader{}}
	return c
}

func (c *Codec) TimeZone() *time.Location {
	return c.tz
}

func (c *Codec) Schema() Schema {
	return c.schema
}

// Layout returns the record layout for the given format version.
func (c *Codec) Layout(v Version) (Layout, error) {
	switch v {
	case VersionPointer:
		return c.pointer, nil
	case VersionLength:
		return c.length, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, int(v))
	}
}

// Serialize encodes rec with the given layout and prefixes the result with
// the version byte.
func (c *Codec) Serialize(v Version, rec *Record) ([]byte, error) {
	l, err := c.Layout(v)
	if err != nil {
		return nil, err
	}
	data, err := l.Serialize(rec)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 1+len(data))
	out[0] = byte(v)
	copy(out[1:], data)
	return out, nil
}

// Deserialize decodes a record produced by Serialize.
func (c *Codec) Deserialize(data []byte, target *Record) error {
	l, body, err := c.Envelope(data)
	if err != nil {
		return err
	}
	return l.Deserialize(body, target)
}

// Envelope splits a version-prefixed payload into its layout and body.
func (c *Codec) Envelope(data []byte) (Layout, []byte, error) {
	if len(data) == 0 {
		return nil, nil, dataErrf(data, 0, ErrTruncated, "missing version byte")
	}
	l, err := c.Layout(Version(data[0]))
	if err != nil {
		return nil, nil, err
	}
	return l, data[1:], nil
}

func (c *Codec) internString(b []byte) string {
	if c.names != nil {
		return c.names.String(b)
	}
	return string(b)
}

func (c *Codec) property(class, field string) *Property {
	if c.schema == nil || class == "" {
		return nil
	}
	return c.schema.Property(class, field)
}

func (c *Codec) globalProperty(id int) *GlobalProperty {
	if c.schema == nil {
		return nil
	}
	return c.schema.GlobalProperty(id)
}
