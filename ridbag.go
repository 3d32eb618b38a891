package recordbin

import (
	"maps"
	"slices"

	"github.com/google/uuid"
)

// Pointer addresses the root of a tree-backed collection in external storage.
type Pointer struct {
	FileID     int64
	PageIndex  int64
	PageOffset int32
}

// InvalidPointer is written when a tree-backed bag has no storage yet.
var InvalidPointer = Pointer{FileID: -1, PageIndex: -1, PageOffset: -1}

func (p Pointer) IsValid() bool {
	return p.FileID >= 0
}

type ChangeKind byte

const (
	// ChangeDiff adds a signed delta to the persisted count of a reference.
	ChangeDiff ChangeKind = 0
	// ChangeAbsolute replaces the persisted count of a reference.
	ChangeAbsolute ChangeKind = 1
)

// Change is a pending edit of one reference in a tree-backed bag overlay.
type Change struct {
	Kind  ChangeKind
	Value int32
}

// Apply returns the new count of a reference given its persisted count.
func (c Change) Apply(persisted int) int {
	var n int
	if c.Kind == ChangeAbsolute {
		n = int(c.Value)
	} else {
		n = persisted + int(c.Value)
	}
	if n < 0 {
		n = 0
	}
	return n
}

// TreeManager is the collaborator that owns the external storage of
// tree-backed bags.
type TreeManager interface {
	// AllocatePointer creates storage for a new tree-backed bag owned by the
	// given record. It fails with ErrNoWriteContext outside of a write.
	AllocatePointer(owner RID) (Pointer, error)

	// RegisterChangeListener returns a correlation id through which remote
	// peers can match the bag with in-flight change events.
	RegisterChangeListener(bag *RidBag) (uuid.UUID, bool)
}

// RidBag is a multiset of references, stored either inline (embedded) or in
// an external tree with a local overlay of pending changes.
type RidBag struct {
	embedded bool
	entries  []RID

	pointer Pointer
	size    int
	changes map[RID]Change

	tempID    uuid.UUID
	hasTempID bool
}

func NewEmbeddedRidBag(rids ...RID) *RidBag {
	return &RidBag{embedded: true, entries: slices.Clone(rids), pointer: InvalidPointer}
}

// NewTreeRidBag returns a tree-backed bag. Pass InvalidPointer for a bag that
// has no storage yet and size -1 when the persisted size is unknown.
func NewTreeRidBag(ptr Pointer, size int) *RidBag {
	return &RidBag{pointer: ptr, size: size, changes: make(map[RID]Change)}
}

func (b *RidBag) IsEmbedded() bool {
	return b.embedded
}

// Entries returns the references of an embedded bag. It returns nil for a
// tree-backed bag.
func (b *RidBag) Entries() []RID {
	if !b.embedded {
		return nil
	}
	return b.entries
}

func (b *RidBag) Pointer() Pointer {
	return b.pointer
}

func (b *RidBag) SetPointer(p Pointer) {
	b.pointer = p
}

// Size returns the number of references, or -1 for a tree-backed bag whose
// persisted size is unknown.
func (b *RidBag) Size() int {
	if b.embedded {
		return len(b.entries)
	}
	return b.size
}

func (b *RidBag) SetSize(n int) {
	b.size = n
}

// Changes returns the pending overlay of a tree-backed bag.
func (b *RidBag) Changes() map[RID]Change {
	return b.changes
}

func (b *RidBag) ClearChanges() {
	clear(b.changes)
}

func (b *RidBag) TemporaryID() (uuid.UUID, bool) {
	return b.tempID, b.hasTempID
}

func (b *RidBag) SetTemporaryID(id uuid.UUID) {
	b.tempID = id
	b.hasTempID = true
}

func (b *RidBag) Add(rid RID) {
	if b.embedded {
		b.entries = append(b.entries, rid)
		return
	}
	b.adjust(rid, 1)
	if b.size >= 0 {
		b.size++
	}
}

// Remove removes one occurrence of rid. It reports whether an occurrence was
// known to exist; for a tree-backed bag the removal is recorded regardless.
func (b *RidBag) Remove(rid RID) bool {
	if b.embedded {
		i := slices.Index(b.entries, rid)
		if i < 0 {
			return false
		}
		b.entries = slices.Delete(b.entries, i, i+1)
		return true
	}
	b.adjust(rid, -1)
	if b.size > 0 {
		b.size--
	}
	return true
}

func (b *RidBag) Contains(rid RID) bool {
	if b.embedded {
		return slices.Contains(b.entries, rid)
	}
	c, ok := b.changes[rid]
	return ok && c.Apply(0) > 0
}

func (b *RidBag) adjust(rid RID, d int32) {
	if b.changes == nil {
		b.changes = make(map[RID]Change)
	}
	c := b.changes[rid]
	c.Value += d
	if c.Kind == ChangeDiff && c.Value == 0 {
		delete(b.changes, rid)
		return
	}
	if c.Kind == ChangeAbsolute && c.Value < 0 {
		c.Value = 0
	}
	b.changes[rid] = c
}

// ConvertToTree switches an embedded bag to tree-backed mode. The inline
// references become pending additions; the pointer is allocated on write.
func (b *RidBag) ConvertToTree() {
	if !b.embedded {
		return
	}
	entries := b.entries
	b.embedded = false
	b.entries = nil
	b.pointer = InvalidPointer
	b.size = 0
	b.changes = make(map[RID]Change, len(entries))
	for _, rid := range entries {
		b.Add(rid)
	}
}

// ConvertToEmbedded switches a tree-backed bag to embedded mode, given the
// references currently persisted under its pointer. The overlay is applied
// and cleared.
func (b *RidBag) ConvertToEmbedded(persisted []RID) {
	if b.embedded {
		return
	}
	counts := b.Multiset(persisted)
	keys := slices.SortedFunc(maps.Keys(counts), RID.Compare)
	var entries []RID
	for _, rid := range keys {
		for range counts[rid] {
			entries = append(entries, rid)
		}
	}
	b.embedded = true
	b.entries = entries
	b.pointer = InvalidPointer
	b.size = 0
	b.changes = nil
}

// Multiset returns reference counts of the bag. For a tree-backed bag the
// overlay is applied on top of the given persisted references.
func (b *RidBag) Multiset(persisted []RID) map[RID]int {
	counts := make(map[RID]int)
	if b.embedded {
		for _, rid := range b.entries {
			counts[rid]++
		}
		return counts
	}
	for _, rid := range persisted {
		counts[rid]++
	}
	for rid, c := range b.changes {
		n := c.Apply(counts[rid])
		if n == 0 {
			delete(counts, rid)
		} else {
			counts[rid] = n
		}
	}
	return counts
}
