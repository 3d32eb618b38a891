package recordbin

import (
	"errors"
	"maps"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/andreyvit/recordbin/internal/hexspec"
)

type fakeTrees struct {
	next      Pointer
	err       error
	listener  uuid.UUID
	owners    []RID
	allocated int
}

func (f *fakeTrees) AllocatePointer(owner RID) (Pointer, error) {
	if f.err != nil {
		return InvalidPointer, f.err
	}
	f.owners = append(f.owners, owner)
	f.allocated++
	p := f.next
	f.next.PageIndex++
	return p, nil
}

func (f *fakeTrees) RegisterChangeListener(bag *RidBag) (uuid.UUID, bool) {
	return f.listener, f.listener != uuid.Nil
}

var (
	ridA = RID{10, 1}
	ridB = RID{10, 2}
	ridC = RID{11, 7}
)

func TestRidBag_Embedded(t *testing.T) {
	bag := NewEmbeddedRidBag(ridA, ridB)
	bag.Add(ridA)
	if bag.Size() != 3 || !bag.Contains(ridA) {
		t.Fatalf("bag = %v, wanted [a b a]", bag.Entries())
	}
	if !bag.Remove(ridA) || bag.Remove(ridC) {
		t.Fatalf("Remove results are wrong")
	}
	require.Equal(t, []RID{ridB, ridA}, bag.Entries())
	require.Equal(t, map[RID]int{ridA: 1, ridB: 1}, bag.Multiset(nil))
}

func TestRidBag_OverlayNetsToZero(t *testing.T) {
	bag := NewTreeRidBag(Pointer{1, 2, 3}, 5)
	bag.Add(ridA)
	bag.Remove(ridA)
	if n := len(bag.Changes()); n != 0 {
		t.Fatalf("changes after add+remove = %v, wanted none", bag.Changes())
	}
	if bag.Size() != 5 {
		t.Fatalf("Size = %d, wanted 5", bag.Size())
	}

	bag.Add(ridB)
	bag.Add(ridB)
	bag.Remove(ridC)
	require.Equal(t, map[RID]Change{ridB: {ChangeDiff, 2}, ridC: {ChangeDiff, -1}}, bag.Changes())
	require.Equal(t, map[RID]int{ridA: 1, ridB: 2}, bag.Multiset([]RID{ridA, ridC}))
}

func TestRidBag_ModeRoundTrip(t *testing.T) {
	bag := NewEmbeddedRidBag(ridA, ridB, ridA, ridC)
	want := bag.Multiset(nil)

	bag.ConvertToTree()
	if bag.IsEmbedded() || bag.Pointer().IsValid() {
		t.Fatalf("after ConvertToTree: embedded=%v pointer=%v", bag.IsEmbedded(), bag.Pointer())
	}
	if bag.Size() != 4 {
		t.Fatalf("Size after ConvertToTree = %d, wanted 4", bag.Size())
	}
	require.Equal(t, want, bag.Multiset(nil))

	trees := &fakeTrees{next: Pointer{FileID: 3, PageIndex: 9, PageOffset: 64}}
	c := newTestCodec(t, Options{TreeManager: trees})
	l := testLayout(t, c, VersionLength)
	data := must(l.Serialize(NewRecord("").Set("bag", bag)))

	rec := NewRecord("")
	ensure(l.Deserialize(data, rec))
	got := rec.Get("bag").(*RidBag)
	require.Equal(t, Pointer{3, 9, 64}, got.Pointer())
	require.Equal(t, want, got.Multiset(nil))

	got.ConvertToEmbedded(nil)
	if !got.IsEmbedded() {
		t.Fatalf("ConvertToEmbedded left the bag tree-backed")
	}
	require.Equal(t, want, got.Multiset(nil))
	require.Equal(t, []RID{ridA, ridA, ridB, ridC}, got.Entries())
}

func TestRidBag_ConvertToEmbeddedWithPersisted(t *testing.T) {
	bag := NewTreeRidBag(Pointer{1, 1, 1}, 2)
	bag.Remove(ridA)
	bag.Add(ridC)
	bag.ConvertToEmbedded([]RID{ridA, ridB})
	require.Equal(t, []RID{ridB, ridC}, bag.Entries())
}

func TestChange_Apply(t *testing.T) {
	tests := []struct {
		c         Change
		persisted int
		want      int
	}{
		{Change{ChangeDiff, 2}, 1, 3},
		{Change{ChangeDiff, -5}, 1, 0},
		{Change{ChangeAbsolute, 4}, 1, 4},
	}
	for _, tt := range tests {
		if got := tt.c.Apply(tt.persisted); got != tt.want {
			t.Errorf("%+v.Apply(%d) = %d, wanted %d", tt.c, tt.persisted, got, tt.want)
		}
	}
}

func TestRidBag_Encoding(t *testing.T) {
	c := newTestCodec(t, Options{})
	l := c.length

	t.Run("embedded", func(t *testing.T) {
		var b Buffer
		ensure(l.writeValue(&b, NewEmbeddedRidBag(RID{1, 2}), LinkBag, valueCtx{linked: Any}))
		hexspec.BytesEq(t, b.Bytes(), hexspec.Expand("01/config #1 #1 #2"))
	})

	t.Run("embedded with temp id", func(t *testing.T) {
		bag := NewEmbeddedRidBag()
		id := uuid.MustParse("00112233-4455-6677-8899-aabbccddeeff")
		bag.SetTemporaryID(id)
		var b Buffer
		ensure(l.writeValue(&b, bag, LinkBag, valueCtx{linked: Any}))
		hexspec.BytesEq(t, b.Bytes(), hexspec.Expand("03/config 0011223344556677_8899aabbccddeeff #0"))

		got := must(readRidBag(NewBuffer(b.Bytes())))
		gid, ok := got.TemporaryID()
		if !ok || gid != id {
			t.Fatalf("TemporaryID = (%v, %v), wanted (%v, true)", gid, ok, id)
		}
	})

	t.Run("tree", func(t *testing.T) {
		bag := NewTreeRidBag(Pointer{5, 6, 7}, 2)
		bag.Add(RID{2, 1})
		bag.Add(RID{1, 4})
		bag.Remove(RID{1, 4})
		bag.Add(RID{1, 3})
		var b Buffer
		ensure(l.writeValue(&b, bag, LinkBag, valueCtx{linked: Any}))
		hexspec.BytesEq(t, b.Bytes(), hexspec.Expand(
			"00/config #5 #6 #7 #4/size #2/changes",
			"#1 #3 00 #1",
			"#2 #1 00 #1",
		))

		got := must(readRidBag(NewBuffer(b.Bytes())))
		require.Equal(t, 4, got.Size())
		require.True(t, maps.Equal(bag.Changes(), got.Changes()))

		sb := NewBuffer(b.Bytes())
		ensure(skipRidBag(sb))
		if sb.Remaining() != 0 {
			t.Fatalf("skipRidBag left %d bytes", sb.Remaining())
		}
	})
}

func TestRidBag_ListenerID(t *testing.T) {
	listener := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	trees := &fakeTrees{listener: listener}
	c := newTestCodec(t, Options{TreeManager: trees})
	l := testLayout(t, c, VersionLength)

	bag := NewTreeRidBag(Pointer{1, 2, 3}, 0)
	bag.SetTemporaryID(uuid.MustParse("99999999-2222-3333-4444-555555555555"))
	data := must(l.Serialize(NewRecord("").Set("bag", bag)))
	rec := NewRecord("")
	ensure(l.Deserialize(data, rec))
	id, ok := rec.Get("bag").(*RidBag).TemporaryID()
	if !ok || id != listener {
		t.Fatalf("bag id = (%v, %v), wanted listener id %v", id, ok, listener)
	}
	if trees.allocated != 0 {
		t.Fatalf("allocated %d pointers for a bag that has one", trees.allocated)
	}

	trees.listener = uuid.Nil
	data = must(l.Serialize(NewRecord("").Set("bag", bag)))
	rec = NewRecord("")
	ensure(l.Deserialize(data, rec))
	id, _ = rec.Get("bag").(*RidBag).TemporaryID()
	if want, _ := bag.TemporaryID(); id != want {
		t.Fatalf("bag id = %v, wanted temporary id %v", id, want)
	}
}

func TestRidBag_Preconditions(t *testing.T) {
	newBag := func() *RidBag {
		bag := NewTreeRidBag(InvalidPointer, 0)
		bag.Add(ridA)
		return bag
	}

	t.Run("no manager", func(t *testing.T) {
		l := testLayout(t, newTestCodec(t, Options{}), VersionLength)
		_, err := l.Serialize(NewRecord("").Set("friends", newBag()))
		var pe *PreconditionError
		if !errors.As(err, &pe) || !errors.Is(err, ErrNoTreeManager) {
			t.Fatalf("err = %v, wanted *PreconditionError wrapping ErrNoTreeManager", err)
		}
		if pe.Field != "friends" {
			t.Fatalf("PreconditionError.Field = %q, wanted friends", pe.Field)
		}
	})

	t.Run("no write context", func(t *testing.T) {
		trees := &fakeTrees{err: ErrNoWriteContext}
		l := testLayout(t, newTestCodec(t, Options{TreeManager: trees}), VersionPointer)
		_, err := l.Serialize(NewRecord("").Set("friends", newBag()))
		var pe *PreconditionError
		if !errors.As(err, &pe) || !errors.Is(err, ErrNoWriteContext) {
			t.Fatalf("err = %v, wanted *PreconditionError wrapping ErrNoWriteContext", err)
		}
	})

	t.Run("allocates with owner", func(t *testing.T) {
		trees := &fakeTrees{next: Pointer{1, 0, 0}}
		l := testLayout(t, newTestCodec(t, Options{TreeManager: trees}), VersionLength)
		rec := NewRecord("")
		rec.Identity = RID{4, 44}
		bag := newBag()
		if _, err := l.Serialize(rec.Set("friends", bag)); err != nil {
			t.Fatalf("Serialize failed: %v", err)
		}
		require.Equal(t, []RID{{4, 44}}, trees.owners)
		require.Equal(t, Pointer{1, 0, 0}, bag.Pointer())
	})
}
