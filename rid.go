package recordbin

import (
	"fmt"
	"strconv"
	"strings"
)

// RID identifies a record: a cluster (partition) id plus a position within it.
type RID struct {
	Cluster  int32
	Position int64
}

// NullRID is written in place of a null element of a link collection.
var NullRID = RID{Cluster: -2, Position: -1}

const (
	clusterIDInvalid   = -1
	clusterPosInvalid  = -1
	ridPrefix          = '#'
	ridClusterPosSplit = ':'
)

func (r RID) IsNull() bool {
	return r == NullRID
}

func (r RID) IsValid() bool {
	return r.Cluster != clusterIDInvalid
}

// IsPersistent reports whether the reference has been assigned its durable
// position.
func (r RID) IsPersistent() bool {
	return r.Cluster > -1 && r.Position > clusterPosInvalid
}

// IsTemporary reports whether the reference is a provisional in-memory one
// that must be resolved before being written.
func (r RID) IsTemporary() bool {
	return r.Cluster != clusterIDInvalid && r.Position < clusterPosInvalid
}

func (r RID) String() string {
	return fmt.Sprintf("#%d:%d", r.Cluster, r.Position)
}

func (r RID) Compare(o RID) int {
	switch {
	case r.Cluster < o.Cluster:
		return -1
	case r.Cluster > o.Cluster:
		return 1
	case r.Position < o.Position:
		return -1
	case r.Position > o.Position:
		return 1
	default:
		return 0
	}
}

// ParseRID parses the "#cluster:position" form. The leading '#' is optional.
func ParseRID(s string) (RID, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, string(ridPrefix))
	cs, ps, ok := strings.Cut(s, string(ridClusterPosSplit))
	if !ok {
		return RID{}, fmt.Errorf("invalid RID %q", s)
	}
	c, err := strconv.ParseInt(cs, 10, 32)
	if err != nil {
		return RID{}, fmt.Errorf("invalid RID %q: cluster: %w", s, err)
	}
	p, err := strconv.ParseInt(ps, 10, 64)
	if err != nil {
		return RID{}, fmt.Errorf("invalid RID %q: position: %w", s, err)
	}
	return RID{Cluster: int32(c), Position: p}, nil
}

// Resolver turns provisional references into their durable form.
type Resolver interface {
	ResolveTemporary(rid RID) RID
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(rid RID) RID

func (f ResolverFunc) ResolveTemporary(rid RID) RID {
	return f(rid)
}

func writeLink(b *Buffer, rid RID) int {
	off := WriteVarint(b, int64(rid.Cluster))
	WriteVarint(b, rid.Position)
	return off
}

func readLink(b *Buffer) (RID, error) {
	c, err := ReadVarint32(b)
	if err != nil {
		return RID{}, err
	}
	p, err := ReadVarint64(b)
	if err != nil {
		return RID{}, err
	}
	return RID{Cluster: c, Position: p}, nil
}

func skipLink(b *Buffer) error {
	_, err := readLink(b)
	return err
}
