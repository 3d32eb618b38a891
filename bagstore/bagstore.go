// Package bagstore persists tree-backed reference bags on a key-value
// backend (Bolt, Pebble or memory) and serves as the recordbin.TreeManager of
// write transactions.
//
// Every bag lives in its own file, addressed by Pointer.FileID. A file holds
// the owning record and the persisted reference counts, msgpack-encoded and
// sorted by reference. Pending overlay changes of a bag are merged into its
// file when the transaction commits.
package bagstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/andreyvit/recordbin"
)

var ErrBagNotFound = errors.New("bag not found")

var seqKey = []byte("seq")

func fileKey(fileID int64) []byte {
	return binary.BigEndian.AppendUint64([]byte{'b'}, uint64(fileID))
}

type bagFile struct {
	Owner   recordbin.RID `msgpack:"o"`
	Entries []bagEntry    `msgpack:"e"`
}

type bagEntry struct {
	Cluster  int32 `msgpack:"c"`
	Position int64 `msgpack:"p"`
	Count    int   `msgpack:"n"`
}

func (f *bagFile) counts() map[recordbin.RID]int {
	m := make(map[recordbin.RID]int, len(f.Entries))
	for _, e := range f.Entries {
		m[recordbin.RID{Cluster: e.Cluster, Position: e.Position}] = e.Count
	}
	return m
}

func (f *bagFile) rids() []recordbin.RID {
	var rids []recordbin.RID
	for _, e := range f.Entries {
		for range e.Count {
			rids = append(rids, recordbin.RID{Cluster: e.Cluster, Position: e.Position})
		}
	}
	return rids
}

func (f *bagFile) setCounts(m map[recordbin.RID]int) int {
	f.Entries = f.Entries[:0]
	var total int
	for _, rid := range slices.SortedFunc(maps.Keys(m), recordbin.RID.Compare) {
		if n := m[rid]; n > 0 {
			f.Entries = append(f.Entries, bagEntry{rid.Cluster, rid.Position, n})
			total += n
		}
	}
	return total
}

type Options struct {
	Logger *slog.Logger
}

// Manager owns a bag storage. Outside of a transaction it only reads: as a
// TreeManager it refuses to allocate, so codecs configured with a Manager
// can decode tree-backed bags but cannot write new ones.
type Manager struct {
	st     storage
	logger *slog.Logger
}

var _ recordbin.TreeManager = (*Manager)(nil)

func newManager(st storage, o Options) *Manager {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return &Manager{st: st, logger: o.Logger}
}

// OpenBolt opens (creating if needed) a Bolt-backed manager at path.
func OpenBolt(path string, o Options) (*Manager, error) {
	st, err := openBoltStorage(path)
	if err != nil {
		return nil, err
	}
	return newManager(st, o), nil
}

// OpenPebble opens a Pebble-backed manager in dir. Pass vfs.NewMem() as fs
// for a transient store, or nil for the OS file system.
func OpenPebble(dir string, fs vfs.FS, o Options) (*Manager, error) {
	st, err := openPebbleStorage(dir, fs)
	if err != nil {
		return nil, err
	}
	return newManager(st, o), nil
}

// NewMemory returns a manager whose bags live in memory only.
func NewMemory(o Options) *Manager {
	return newManager(newMemStorage(), o)
}

func (m *Manager) Close() error {
	return m.st.Close()
}

func (m *Manager) AllocatePointer(owner recordbin.RID) (recordbin.Pointer, error) {
	return recordbin.InvalidPointer, recordbin.ErrNoWriteContext
}

func (m *Manager) RegisterChangeListener(bag *recordbin.RidBag) (uuid.UUID, bool) {
	return uuid.UUID{}, false
}

// Persisted returns the committed references of a bag, sorted, with one
// element per occurrence.
func (m *Manager) Persisted(ptr recordbin.Pointer) ([]recordbin.RID, error) {
	stx, err := m.st.BeginTx(false)
	if err != nil {
		return nil, err
	}
	defer stx.Rollback()
	f, err := loadFile(stx, ptr)
	if err != nil {
		return nil, err
	}
	return f.rids(), nil
}

// Owner returns the record a bag was allocated for.
func (m *Manager) Owner(ptr recordbin.Pointer) (recordbin.RID, error) {
	stx, err := m.st.BeginTx(false)
	if err != nil {
		return recordbin.RID{}, err
	}
	defer stx.Rollback()
	f, err := loadFile(stx, ptr)
	if err != nil {
		return recordbin.RID{}, err
	}
	return f.Owner, nil
}

// Begin starts a write transaction. Only one is active at a time.
func (m *Manager) Begin() (*Tx, error) {
	stx, err := m.st.BeginTx(true)
	if err != nil {
		return nil, err
	}
	return &Tx{
		m:         m,
		stx:       stx,
		listeners: make(map[uuid.UUID]*recordbin.RidBag),
		flushed:   make(map[*recordbin.RidBag]*flushedBag),
		allocated: make(map[int64]bool),
	}, nil
}

func loadFile(stx storageTx, ptr recordbin.Pointer) (*bagFile, error) {
	if !ptr.IsValid() {
		return nil, fmt.Errorf("%w: invalid pointer", ErrBagNotFound)
	}
	raw, err := stx.Get(fileKey(ptr.FileID))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: file %d", ErrBagNotFound, ptr.FileID)
	}
	f := new(bagFile)
	if err := msgpack.Unmarshal(raw, f); err != nil {
		return nil, fmt.Errorf("bag file %d: %w", ptr.FileID, err)
	}
	return f, nil
}

func saveFile(stx storageTx, fileID int64, f *bagFile) error {
	raw, err := msgpack.Marshal(f)
	if err != nil {
		return err
	}
	return stx.Put(fileKey(fileID), raw)
}

// Tx is a write transaction and the TreeManager of records serialized while
// it is active.
type Tx struct {
	m         *Manager
	stx       storageTx
	listeners map[uuid.UUID]*recordbin.RidBag
	flushed   map[*recordbin.RidBag]*flushedBag
	allocated map[int64]bool
	done      bool
}

// flushedBag is a bag whose overlay has been written in this transaction but
// not yet committed. base is the file as it was before the first flush.
type flushedBag struct {
	base  *bagFile
	total int
}

var _ recordbin.TreeManager = (*Tx)(nil)

func (tx *Tx) AllocatePointer(owner recordbin.RID) (recordbin.Pointer, error) {
	if tx.done {
		return recordbin.InvalidPointer, recordbin.ErrNoWriteContext
	}
	raw, err := tx.stx.Get(seqKey)
	if err != nil {
		return recordbin.InvalidPointer, err
	}
	var seq uint64
	if len(raw) == 8 {
		seq = binary.BigEndian.Uint64(raw)
	}
	seq++
	if err := tx.stx.Put(seqKey, binary.BigEndian.AppendUint64(nil, seq)); err != nil {
		return recordbin.InvalidPointer, err
	}
	ptr := recordbin.Pointer{FileID: int64(seq)}
	if err := saveFile(tx.stx, ptr.FileID, &bagFile{Owner: owner}); err != nil {
		return recordbin.InvalidPointer, err
	}
	tx.allocated[ptr.FileID] = true
	tx.m.logger.LogAttrs(context.Background(), slog.LevelDebug, "bagstore: allocated",
		slog.Int64("file", ptr.FileID), slog.String("owner", owner.String()))
	return ptr, nil
}

// RegisterChangeListener issues a fresh correlation id for the bag. The id
// stays resolvable through Listener until the transaction ends.
func (tx *Tx) RegisterChangeListener(bag *recordbin.RidBag) (uuid.UUID, bool) {
	if tx.done {
		return uuid.UUID{}, false
	}
	for id, b := range tx.listeners {
		if b == bag {
			return id, true
		}
	}
	id := uuid.New()
	tx.listeners[id] = bag
	return id, true
}

// Listener returns the bag registered under a correlation id.
func (tx *Tx) Listener(id uuid.UUID) (*recordbin.RidBag, bool) {
	bag, ok := tx.listeners[id]
	return bag, ok
}

// Persisted returns the references of a bag as seen by this transaction.
func (tx *Tx) Persisted(ptr recordbin.Pointer) ([]recordbin.RID, error) {
	f, err := loadFile(tx.stx, ptr)
	if err != nil {
		return nil, err
	}
	return f.rids(), nil
}

// Flush merges the overlay of a tree-backed bag into its file. The overlay
// stays on the bag until Commit succeeds, so flushing again recomputes the
// file from its pre-transaction content. Embedded bags are left alone.
func (tx *Tx) Flush(bag *recordbin.RidBag) error {
	if tx.done {
		return recordbin.ErrNoWriteContext
	}
	if bag.IsEmbedded() {
		return nil
	}
	ptr := bag.Pointer()
	fb := tx.flushed[bag]
	if fb == nil {
		base, err := loadFile(tx.stx, ptr)
		if err != nil {
			return err
		}
		fb = &flushedBag{base: base}
	}
	counts := fb.base.counts()
	for rid, c := range bag.Changes() {
		counts[rid] = c.Apply(counts[rid])
	}
	f := &bagFile{Owner: fb.base.Owner}
	fb.total = f.setCounts(counts)
	if err := saveFile(tx.stx, ptr.FileID, f); err != nil {
		return err
	}
	tx.flushed[bag] = fb
	tx.m.logger.LogAttrs(context.Background(), slog.LevelDebug, "bagstore: flushed",
		slog.Int64("file", ptr.FileID), slog.Int("size", fb.total))
	return nil
}

// Drop deletes the file of a bag, e.g. after it has been converted back to
// embedded mode.
func (tx *Tx) Drop(ptr recordbin.Pointer) error {
	if !ptr.IsValid() {
		return nil
	}
	return tx.stx.Delete(fileKey(ptr.FileID))
}

// Commit flushes the given bags and commits. Overlays of every flushed bag
// are cleared only after the storage commit succeeds. On failure the
// transaction is rolled back: overlays are kept, and bags pointing at files
// allocated by this transaction lose their pointer so that the next write
// allocates again.
func (tx *Tx) Commit(bags ...*recordbin.RidBag) error {
	if tx.done {
		return fmt.Errorf("transaction already finished")
	}
	for _, bag := range bags {
		if err := tx.Flush(bag); err != nil {
			tx.rollback(bags)
			return err
		}
	}
	flushed := tx.flushed
	if err := tx.stx.Commit(); err != nil {
		tx.m.logger.LogAttrs(context.Background(), slog.LevelError, "bagstore: commit failed", slog.Any("err", err))
		tx.rollback(bags)
		return err
	}
	tx.finish()
	for bag, fb := range flushed {
		bag.ClearChanges()
		bag.SetSize(fb.total)
	}
	return nil
}

// Rollback discards the transaction. Known bags are treated as in a failed
// Commit.
func (tx *Tx) Rollback() error {
	if tx.done {
		return tx.stx.Rollback()
	}
	return tx.rollback(nil)
}

func (tx *Tx) rollback(bags []*recordbin.RidBag) error {
	known := slices.Collect(maps.Values(tx.listeners))
	known = append(known, slices.Collect(maps.Keys(tx.flushed))...)
	for _, bag := range append(known, bags...) {
		if p := bag.Pointer(); !bag.IsEmbedded() && p.IsValid() && tx.allocated[p.FileID] {
			bag.SetPointer(recordbin.InvalidPointer)
		}
	}
	tx.finish()
	return tx.stx.Rollback()
}

func (tx *Tx) finish() {
	tx.done = true
	clear(tx.listeners)
	tx.flushed = nil
	tx.allocated = nil
}
