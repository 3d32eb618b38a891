package bagstore

import (
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"github.com/cockroachdb/pebble/vfs"

	"github.com/andreyvit/recordbin"
	"github.com/andreyvit/recordbin/internal/hexspec"
)

var (
	ridA  = recordbin.RID{Cluster: 10, Position: 1}
	ridB  = recordbin.RID{Cluster: 10, Position: 2}
	ridC  = recordbin.RID{Cluster: 11, Position: 7}
	owner = recordbin.RID{Cluster: 9, Position: 1}
)

func backends(t *testing.T) map[string]func() *Manager {
	o := Options{Logger: hexspec.Logger(t)}
	return map[string]func() *Manager{
		"memory": func() *Manager { return NewMemory(o) },
		"bolt": func() *Manager {
			m, err := OpenBolt(filepath.Join(t.TempDir(), "bags.db"), o)
			if err != nil {
				t.Fatal(err)
			}
			return m
		},
		"pebble": func() *Manager {
			m, err := OpenPebble("bags", vfs.NewMem(), o)
			if err != nil {
				t.Fatal(err)
			}
			return m
		},
	}
}

func serialize(t *testing.T, tm recordbin.TreeManager, bag *recordbin.RidBag) []byte {
	t.Helper()
	c := recordbin.NewCodec(recordbin.Options{TreeManager: tm, Logger: hexspec.Logger(t)})
	rec := recordbin.NewRecord("User").Set("friends", bag)
	rec.Identity = owner
	data, err := c.Serialize(recordbin.VersionLength, rec)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	return data
}

func TestManager(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			m := open()
			defer m.Close()

			bag := recordbin.NewTreeRidBag(recordbin.InvalidPointer, 0)
			bag.Add(ridA)
			bag.Add(ridA)
			bag.Add(ridB)

			tx, err := m.Begin()
			if err != nil {
				t.Fatal(err)
			}
			serialize(t, tx, bag)
			ptr := bag.Pointer()
			if ptr != (recordbin.Pointer{FileID: 1}) {
				t.Fatalf("pointer = %+v, wanted file 1", ptr)
			}
			if err := tx.Commit(bag); err != nil {
				t.Fatalf("Commit failed: %v", err)
			}
			if len(bag.Changes()) != 0 || bag.Size() != 3 {
				t.Fatalf("after commit: changes=%v size=%d", bag.Changes(), bag.Size())
			}

			got, err := m.Persisted(ptr)
			if err != nil {
				t.Fatal(err)
			}
			if want := []recordbin.RID{ridA, ridA, ridB}; !slices.Equal(got, want) {
				t.Fatalf("Persisted = %v, wanted %v", got, want)
			}
			if o, err := m.Owner(ptr); err != nil || o != owner {
				t.Fatalf("Owner = (%v, %v), wanted %v", o, err, owner)
			}

			tx, err = m.Begin()
			if err != nil {
				t.Fatal(err)
			}
			bag.Remove(ridA)
			bag.Add(ridC)
			serialize(t, tx, bag)
			if bag.Pointer() != ptr {
				t.Fatalf("pointer reallocated: %+v", bag.Pointer())
			}
			if err := tx.Commit(bag); err != nil {
				t.Fatal(err)
			}
			got = must(m.Persisted(ptr))
			if want := []recordbin.RID{ridA, ridB, ridC}; !slices.Equal(got, want) {
				t.Fatalf("Persisted = %v, wanted %v", got, want)
			}

			bag.Remove(ridB)
			bag.ConvertToEmbedded(got)
			if want := []recordbin.RID{ridA, ridC}; !slices.Equal(bag.Entries(), want) {
				t.Fatalf("embedded entries = %v, wanted %v", bag.Entries(), want)
			}
		})
	}
}

func TestManager_Rollback(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			m := open()
			defer m.Close()

			tx := must(m.Begin())
			ptr := must(tx.AllocatePointer(owner))
			if err := tx.Rollback(); err != nil {
				t.Fatal(err)
			}
			if _, err := m.Persisted(ptr); !errors.Is(err, ErrBagNotFound) {
				t.Fatalf("Persisted after rollback err = %v, wanted ErrBagNotFound", err)
			}
			if _, err := tx.AllocatePointer(owner); !errors.Is(err, recordbin.ErrNoWriteContext) {
				t.Fatalf("AllocatePointer on finished tx err = %v", err)
			}

			tx = must(m.Begin())
			ptr2 := must(tx.AllocatePointer(owner))
			if ptr2 != ptr {
				t.Fatalf("rolled back sequence not reused: %+v vs %+v", ptr2, ptr)
			}
			if err := tx.Drop(ptr2); err != nil {
				t.Fatal(err)
			}
			if _, err := tx.Persisted(ptr2); !errors.Is(err, ErrBagNotFound) {
				t.Fatalf("Persisted after Drop err = %v", err)
			}
			ensure(tx.Commit())
		})
	}
}

func TestTx_FailedCommitKeepsOverlay(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			m := open()
			defer m.Close()

			bag := recordbin.NewTreeRidBag(recordbin.InvalidPointer, 0)
			bag.Add(ridA)
			tx := must(m.Begin())
			serialize(t, tx, bag)
			ptr := bag.Pointer()
			ensure(tx.Flush(bag))
			ensure(tx.Flush(bag))

			unallocated := recordbin.NewTreeRidBag(recordbin.InvalidPointer, 0)
			unallocated.Add(ridB)
			if err := tx.Commit(bag, unallocated); !errors.Is(err, ErrBagNotFound) {
				t.Fatalf("Commit err = %v, wanted ErrBagNotFound", err)
			}
			if _, ok := bag.Changes()[ridA]; !ok {
				t.Fatalf("overlay of the first bag lost after failed commit: %v", bag.Changes())
			}
			if bag.Pointer().IsValid() {
				t.Fatalf("pointer of the rolled back file was kept: %+v", bag.Pointer())
			}

			tx = must(m.Begin())
			serialize(t, tx, bag)
			if bag.Pointer() != ptr {
				t.Fatalf("pointer = %+v, wanted the reused %+v", bag.Pointer(), ptr)
			}
			ensure(tx.Flush(bag))
			ensure(tx.Commit(bag))
			if len(bag.Changes()) != 0 || bag.Size() != 1 {
				t.Fatalf("after commit: changes=%v size=%d, wanted size 1", bag.Changes(), bag.Size())
			}
			if got, want := must(m.Persisted(bag.Pointer())), []recordbin.RID{ridA}; !slices.Equal(got, want) {
				t.Fatalf("Persisted = %v, wanted %v", got, want)
			}
		})
	}
}

func TestManager_OutsideTransaction(t *testing.T) {
	m := NewMemory(Options{Logger: hexspec.Logger(t)})
	defer m.Close()

	c := recordbin.NewCodec(recordbin.Options{TreeManager: m, Logger: hexspec.Logger(t)})
	_, err := c.Serialize(recordbin.VersionLength, recordbin.NewRecord("").Set("friends", recordbin.NewTreeRidBag(recordbin.InvalidPointer, 0)))
	var pe *recordbin.PreconditionError
	if !errors.As(err, &pe) || !errors.Is(err, recordbin.ErrNoWriteContext) {
		t.Fatalf("Serialize err = %v, wanted PreconditionError(ErrNoWriteContext)", err)
	}
	if _, ok := m.RegisterChangeListener(nil); ok {
		t.Fatalf("Manager registered a listener")
	}
	if _, err := m.Persisted(recordbin.InvalidPointer); !errors.Is(err, ErrBagNotFound) {
		t.Fatalf("Persisted(invalid) err = %v", err)
	}
}

func TestTx_Listener(t *testing.T) {
	m := NewMemory(Options{Logger: hexspec.Logger(t)})
	defer m.Close()
	tx := must(m.Begin())
	defer tx.Rollback()

	bag := recordbin.NewTreeRidBag(recordbin.InvalidPointer, 0)
	bag.Add(ridA)
	data := serialize(t, tx, bag)

	c := recordbin.NewCodec(recordbin.Options{Logger: hexspec.Logger(t)})
	rec := recordbin.NewRecord("")
	if err := c.Deserialize(data, rec); err != nil {
		t.Fatal(err)
	}
	id, ok := rec.Get("friends").(*recordbin.RidBag).TemporaryID()
	if !ok {
		t.Fatalf("encoded bag carries no correlation id")
	}
	if b, ok := tx.Listener(id); !ok || b != bag {
		t.Fatalf("Listener(%v) = (%p, %v), wanted %p", id, b, ok, bag)
	}
	if id2, _ := tx.RegisterChangeListener(bag); id2 != id {
		t.Fatalf("second registration issued %v, wanted %v", id2, id)
	}

	bd := (&recordbin.BagDelta{ID: id, HasID: true}).Add(ridB)
	target, _ := tx.Listener(bd.ID)
	if err := bd.ApplyTo(target); err != nil || !bag.Contains(ridB) {
		t.Fatalf("delta correlated by listener id not applied: %v", err)
	}
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func ensure(err error) {
	if err != nil {
		panic(err)
	}
}
