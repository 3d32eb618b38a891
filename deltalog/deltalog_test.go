package deltalog

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/andreyvit/recordbin"
	"github.com/andreyvit/recordbin/internal/hexspec"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type testLog struct {
	*Log
	t   testing.TB
	dir string
	now time.Time
}

func openTestLog(t testing.TB, dir string, o Options) *testLog {
	tl := &testLog{t: t, dir: dir, now: start}
	o.FileName = "d*.log"
	o.Now = func() time.Time { return tl.now }
	o.Logger = hexspec.Logger(t)
	l, err := Open(dir, o)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	tl.Log = l
	t.Cleanup(func() { l.Close() })
	return tl
}

func (tl *testLog) advance(d time.Duration) {
	tl.now = tl.now.Add(d)
}

func (tl *testLog) data(name string) []byte {
	b, err := os.ReadFile(filepath.Join(tl.dir, name))
	if err != nil {
		tl.t.Fatalf("when reading %v: %v", name, err)
	}
	return b
}

func (tl *testLog) entries() []Entry {
	var ents []Entry
	if err := tl.Replay(func(e Entry) error {
		ents = append(ents, e)
		return nil
	}); err != nil {
		tl.t.Fatalf("Replay failed: %v", err)
	}
	return ents
}

// sealed appends the xxhash of everything so far, the way segment headers
// and batch trailers are checksummed.
func sealed(b []byte, trailer bool) []byte {
	sum := xxhash.Sum64(b)
	if trailer {
		sum |= uint64(trailerFlag)
	}
	return binary.LittleEndian.AppendUint64(b, sum)
}

func TestLog_Format(t *testing.T) {
	tl := openTestLog(t, t.TempDir(), Options{})
	ensure(tl.Append(KindDocument, []byte("hello")))
	ensure(tl.Append(KindBag, []byte("w")))
	tl.advance(1000 * time.Second)
	ensure(tl.Append(KindDocument, []byte("orld")))
	ensure(tl.Commit())

	names := must(tl.FileNames())
	if want := []string{"d000000000001-20240101T000000-0000000000000001.log"}; !slices.Equal(names, want) {
		t.Fatalf("FileNames = %v, wanted %v", names, want)
	}

	exp := sealed(hexspec.Expand("'DELTALOG 00/ver 00 0000/flags 00000000 01000000/seg 80009265/ts 00*32/reserved"), false)
	exp = append(exp, hexspec.Expand(
		"0c 00 01 'hello",
		"04 00 02 'w",
		"0a e807 01 'orld",
	)...)
	exp = sealed(exp, true)
	hexspec.BytesEq(t, tl.data(names[0]), exp)

	ents := tl.entries()
	if len(ents) != 3 {
		t.Fatalf("replayed %d entries, wanted 3", len(ents))
	}
	if e := ents[2]; e.ID != 3 || e.Kind != KindDocument || string(e.Data) != "orld" || !e.Timestamp.Equal(start.Add(1000*time.Second)) {
		t.Fatalf("entry 3 = %+v", e)
	}
	if e := ents[1]; e.Kind != KindBag || string(e.Data) != "w" || e.Segment != 1 {
		t.Fatalf("entry 2 = %+v", e)
	}
}

func TestLog_UncommittedInvisible(t *testing.T) {
	dir := t.TempDir()
	tl := openTestLog(t, dir, Options{})
	ensure(tl.Append(KindDocument, []byte("a")))
	ensure(tl.Commit())
	ensure(tl.Append(KindDocument, []byte("b")))

	if ents := tl.entries(); len(ents) != 1 || string(ents[0].Data) != "a" {
		t.Fatalf("entries = %+v, wanted only the committed one", ents)
	}
	ensure(tl.Close())

	name := must(tl.FileNames())[0]
	before := len(tl.data(name))

	tl2 := openTestLog(t, dir, Options{})
	if after := len(tl2.data(name)); after != before-4 {
		t.Fatalf("file size after recovery = %d, wanted %d", after, before-4)
	}
	ensure(tl2.Append(KindDocument, []byte("c")))
	ensure(tl2.Commit())

	names := must(tl2.FileNames())
	if len(names) != 2 {
		t.Fatalf("FileNames after reopen = %v", names)
	}
	ents := tl2.entries()
	if len(ents) != 2 || string(ents[1].Data) != "c" || ents[1].ID != 2 || ents[1].Segment != 2 {
		t.Fatalf("entries after reopen = %+v", ents)
	}
}

func TestLog_Corruption(t *testing.T) {
	dir := t.TempDir()
	tl := openTestLog(t, dir, Options{})
	ensure(tl.Append(KindDocument, []byte("first")))
	ensure(tl.Commit())
	ensure(tl.Append(KindDocument, []byte("second")))
	ensure(tl.Commit())
	ensure(tl.Close())

	name := must(tl.FileNames())[0]
	data := tl.data(name)
	data[len(data)-10] ^= 0xff // inside "second"
	ensure(os.WriteFile(filepath.Join(dir, name), data, 0o644))

	tl2 := openTestLog(t, dir, Options{})
	ents := tl2.entries()
	if len(ents) != 1 || string(ents[0].Data) != "first" {
		t.Fatalf("entries = %+v, wanted only the intact batch", ents)
	}
	if n := len(tl2.data(name)); n != segmentHeaderSize+3+5+8 {
		t.Fatalf("corrupted file not trimmed: %d bytes", n)
	}
}

func TestLog_CorruptedHeaderDeleted(t *testing.T) {
	dir := t.TempDir()
	name := "d000000000001-20240101T000000-0000000000000001.log"
	ensure(os.WriteFile(filepath.Join(dir, name), []byte("DELTA"), 0o644))
	tl := openTestLog(t, dir, Options{})
	if names := must(tl.FileNames()); len(names) != 0 {
		t.Fatalf("corrupted segment kept: %v", names)
	}
}

func TestLog_Rotation(t *testing.T) {
	dir := t.TempDir()
	tl := openTestLog(t, dir, Options{MaxFileSize: 100})
	for i := range 5 {
		ensure(tl.Append(KindDocument, make([]byte, 30+i)))
		ensure(tl.Commit())
	}
	ensure(tl.Rotate())
	names := must(tl.FileNames())
	if len(names) != 5 {
		t.Fatalf("FileNames = %v, wanted a segment per batch", names)
	}
	ents := tl.entries()
	for i, e := range ents {
		if e.ID != uint64(i+1) || len(e.Data) != 30+i {
			t.Fatalf("entry %d = %+v", i, e)
		}
	}

	// corruption before the newest segment is reported
	data := tl.data(names[1])
	data[segmentHeaderSize+4] ^= 0xff
	ensure(os.WriteFile(filepath.Join(dir, names[1]), data, 0o644))
	err := tl.Replay(func(Entry) error { return nil })
	if !errors.Is(err, ErrCorrupted) {
		t.Fatalf("Replay err = %v, wanted ErrCorrupted", err)
	}
}

func TestLog_Deltas(t *testing.T) {
	c := recordbin.NewCodec(recordbin.Options{Logger: hexspec.Logger(t)})
	dc := c.Delta()
	tl := openTestLog(t, t.TempDir(), Options{})

	d := (&recordbin.Delta{Class: "Person"}).Replaced("name", "Ann").Removed("nick")
	bd := (&recordbin.BagDelta{}).Add(recordbin.RID{Cluster: 10, Position: 1})
	ensure(tl.AppendDelta(dc, d))
	ensure(tl.AppendBagDelta(dc, bd))
	ensure(tl.Commit())

	rec := recordbin.NewRecord("Person").Set("nick", "A")
	bag := recordbin.NewEmbeddedRidBag()
	err := tl.Replay(func(e Entry) error {
		v, err := e.Decode(dc)
		if err != nil {
			return err
		}
		switch v := v.(type) {
		case *recordbin.Delta:
			return v.ApplyTo(rec)
		case *recordbin.BagDelta:
			return v.ApplyTo(bag)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Get("name") != "Ann" || rec.Has("nick") {
		t.Fatalf("record after replay = %v", rec.Fields())
	}
	if !bag.Contains(recordbin.RID{Cluster: 10, Position: 1}) {
		t.Fatalf("bag after replay = %v", bag.Entries())
	}

	if _, err := (Entry{ID: 9, Kind: 7}).Decode(dc); err == nil {
		t.Fatalf("Decode of unknown kind succeeded")
	}
}

func TestSegmentName(t *testing.T) {
	seq, ts, id, err := parseSegmentName("123-20230101T000000-11223344aabbccdd")
	if err != nil {
		t.Fatal(err)
	}
	if seq != 123 || ts != 1672531200 || id != 0x11223344_aabbccdd {
		t.Errorf("parsed (%v, %v, %x)", seq, ts, id)
	}
	if name := formatSegmentName(123, 1672531200, 0x11223344_aabbccdd); name != "000000000123-20230101T000000-11223344aabbccdd" {
		t.Errorf("name = %q", name)
	}
	for _, bad := range []string{"x", "1-2", "x-20230101T000000-1", "1-bad-1", "1-20230101T000000-zz"} {
		if _, _, _, err := parseSegmentName(bad); err == nil {
			t.Errorf("parseSegmentName(%q) succeeded", bad)
		}
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
