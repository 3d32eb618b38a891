// Package deltalog implements an append-only log of replication deltas.
//
// Entries are grouped into batches; a batch becomes durable when Commit
// writes its trailer. Readers only ever see committed batches, and on open
// the log is trimmed after the last intact batch of its newest segment.
//
// File format:
//
//   - file = segmentHeader (entry* trailer)*
//   - segmentHeader = magic:64 version:8 pad:8 flags:16 pad:32 segment:32 timestamp:32 reserved:64*4 checksum:64
//   - entry = (size<<1):uvarint tsDelta:uvarint kind:8 data:bytes*
//   - trailer = (xxhash64 of everything before it | 1):64
//
// All fixed-width integers are little-endian. The low bit of the first byte
// tells a trailer (1) from an entry (0). The checksum chain starts at the
// segment header, so a trailer covers the whole segment up to it.
package deltalog

import (
	"bufio"
	"cmp"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/andreyvit/recordbin/internal/mmapfile"
)

var (
	ErrClosed             = errors.New("delta log closed")
	ErrCorrupted          = errors.New("corrupted delta log segment")
	ErrUnsupportedVersion = errors.New("unsupported delta log version")
	errCorruptedHeader    = errors.New("corrupted delta log segment header")
)

type Kind byte

const (
	KindDocument Kind = 1
	KindBag      Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindDocument:
		return "document"
	case KindBag:
		return "bag"
	default:
		return "kind" + strconv.Itoa(int(k))
	}
}

type Options struct {
	Context     context.Context
	FileName    string // e.g. "deltas-*.log"
	MaxFileSize int64  // a new segment is started after a commit crosses it
	Now         func() time.Time
	Logger      *slog.Logger
}

const DefaultMaxFileSize = 4 * 1024 * 1024

// MaxEntrySize bounds the entry size accepted when reading.
const MaxEntrySize = 64 * 1024 * 1024

const (
	magic          = 0x474f4c41544c4544 // "DELTALOG" as little-endian uint64
	version0 uint8 = 0
)

const segmentHeaderSize = 8 * 8

type segmentHeader struct {
	Magic     uint64
	Version   uint8
	_         uint8
	Flags     uint16
	_         uint32
	Segment   uint32
	Timestamp uint32
	_         [4]uint64
	Checksum  uint64
}

const (
	trailerFlag  byte = 1
	sizeShift         = 1
	timestampFmt      = "20060102T150405"
)

// Entry is one committed log entry. ID numbers entries across segments,
// starting at 1.
type Entry struct {
	ID        uint64
	Segment   uint32
	Timestamp time.Time
	Kind      Kind
	Data      []byte
}

// Log is a directory of segment files. It is safe for concurrent use.
type Log struct {
	context        context.Context
	dir            string
	fileNamePrefix string
	fileNameSuffix string
	maxFileSize    int64
	now            func() time.Time
	logger         *slog.Logger

	mu       sync.Mutex
	closed   bool
	writeErr error
	writeSeg uint32
	writeRec uint64
	sw       *segmentWriter
}

// Open opens the log in dir, creating the directory if needed, and trims
// an interrupted batch from the newest segment.
func Open(dir string, o Options) (*Log, error) {
	if o.Context == nil {
		o.Context = context.Background()
	}
	if o.FileName == "" {
		o.FileName = "*"
	}
	if o.MaxFileSize == 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return nil, err
	}
	prefix, suffix, _ := strings.Cut(o.FileName, "*")
	l := &Log{
		context:        o.Context,
		dir:            dir,
		fileNamePrefix: prefix,
		fileNameSuffix: suffix,
		maxFileSize:    o.MaxFileSize,
		now:            o.Now,
		logger:         o.Logger,
	}
	if err := l.recover(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Log) String() string {
	return l.dir
}

func (l *Log) timestamp() uint32 {
	v := l.now().Unix()
	if v < 0 || uint64(v)&0xFFFF_FFFF_0000_0000 != 0 {
		panic("time travel disallowed")
	}
	return uint32(v)
}

func (l *Log) recover() error {
	for {
		segs, err := l.segments()
		if err != nil || len(segs) == 0 {
			return err
		}
		last := segs[len(segs)-1]
		res, err := l.scanSegment(last, nil)
		if err == errCorruptedHeader {
			l.logger.LogAttrs(l.context, slog.LevelWarn, "deltalog: deleting corrupted file", slog.String("dir", l.dir), slog.String("file", last.name))
			if err := os.Remove(l.path(last.name)); err != nil {
				return fmt.Errorf("deltalog: failed to delete corrupted file: %w", err)
			}
			continue
		} else if err != nil {
			return err
		}
		if res.goodSize < res.fileSize {
			l.logger.LogAttrs(l.context, slog.LevelWarn, "deltalog: trimming uncommitted tail",
				slog.String("file", last.name), slog.Int64("size", res.fileSize), slog.Int64("kept", res.goodSize))
			if err := os.Truncate(l.path(last.name), res.goodSize); err != nil {
				return err
			}
		}
		l.writeSeg = last.seq
		l.writeRec = last.id - 1 + uint64(res.entries)
		return nil
	}
}

// Append adds an entry to the current batch.
func (l *Log) Append(kind Kind, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if l.writeErr != nil {
		return l.writeErr
	}

	ts := l.timestamp()
	l.writeRec++
	if l.sw == nil {
		l.writeSeg++
		sw, err := startSegment(l, l.writeSeg, ts, l.writeRec)
		if err != nil {
			return l.fail(err)
		}
		l.sw = sw
	}
	return l.fail(l.sw.writeEntry(ts, kind, data))
}

// Commit makes the current batch durable.
func (l *Log) Commit() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writeErr != nil {
		return l.writeErr
	}
	if l.sw == nil {
		return nil
	}
	if err := l.sw.commit(); err != nil {
		return l.fail(err)
	}
	if l.sw.size >= l.maxFileSize {
		l.sw.close()
		l.sw = nil
	}
	return nil
}

// Rotate commits the current batch and starts a new segment on the next
// Append.
func (l *Log) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sw == nil {
		return l.writeErr
	}
	err := l.sw.commit()
	l.sw.close()
	l.sw = nil
	return l.fail(err)
}

// Close closes the log, dropping an uncommitted batch.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	if l.sw != nil {
		l.sw.close()
		l.sw = nil
	}
	return nil
}

func (l *Log) fail(err error) error {
	if err == nil {
		return nil
	}
	l.logger.LogAttrs(l.context, slog.LevelError, "deltalog: failed", slog.String("dir", l.dir), slog.Any("err", err))
	if l.sw != nil {
		l.sw.close()
		l.sw = nil
	}
	if l.writeErr == nil {
		l.writeErr = err
	}
	return err
}

// Replay calls fn for every committed entry in order. Corruption in the
// newest segment ends the replay silently; anywhere else it is reported as
// ErrCorrupted after the entries before it have been delivered.
func (l *Log) Replay(fn func(e Entry) error) error {
	segs, err := l.segments()
	if err != nil {
		return err
	}
	for i, seg := range segs {
		if err := l.context.Err(); err != nil {
			return err
		}
		res, err := l.scanSegment(seg, fn)
		last := i == len(segs)-1
		if err == errCorruptedHeader {
			if last {
				return nil
			}
			return fmt.Errorf("%w: %s: bad header", ErrCorrupted, seg.name)
		} else if err != nil {
			return err
		}
		if res.goodSize < res.fileSize && !last {
			return fmt.Errorf("%w: %s at offset %d", ErrCorrupted, seg.name, res.goodSize)
		}
	}
	return nil
}

// FileNames returns the segment file names in order.
func (l *Log) FileNames() ([]string, error) {
	segs, err := l.segments()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(segs))
	for i, s := range segs {
		names[i] = s.name
	}
	return names, nil
}

type segmentFile struct {
	name string
	seq  uint32
	ts   uint32
	id   uint64
}

func (l *Log) path(name string) string {
	return filepath.Join(l.dir, name)
}

func (l *Log) segments() ([]segmentFile, error) {
	ents, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, err
	}
	var segs []segmentFile
	for _, ent := range ents {
		if !ent.Type().IsRegular() {
			continue
		}
		name := ent.Name()
		base, ok := strings.CutPrefix(name, l.fileNamePrefix)
		if !ok {
			continue
		}
		base, ok = strings.CutSuffix(base, l.fileNameSuffix)
		if !ok {
			continue
		}
		seq, ts, id, err := parseSegmentName(base)
		if err != nil {
			l.logger.LogAttrs(l.context, slog.LevelWarn, "deltalog: ignoring file", slog.String("file", name), slog.Any("err", err))
			continue
		}
		segs = append(segs, segmentFile{name, seq, ts, id})
	}
	slices.SortFunc(segs, func(a, b segmentFile) int { return cmp.Compare(a.seq, b.seq) })
	return segs, nil
}

type scanResult struct {
	fileSize int64
	goodSize int64
	entries  int
}

func (l *Log) scanSegment(seg segmentFile, fn func(e Entry) error) (scanResult, error) {
	f, err := os.Open(l.path(seg.name))
	if err != nil {
		return scanResult{}, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return scanResult{}, err
	}
	res := scanResult{fileSize: st.Size()}
	r := bufio.NewReader(f)

	var hbuf [segmentHeaderSize]byte
	if _, err := io.ReadFull(r, hbuf[:]); err == io.EOF || err == io.ErrUnexpectedEOF {
		return res, errCorruptedHeader
	} else if err != nil {
		return res, err
	}
	var h segmentHeader
	if _, err := binary.Decode(hbuf[:], binary.LittleEndian, &h); err != nil {
		panic(err)
	}
	var hash xxhash.Digest
	hash.Reset()
	hash.Write(hbuf[:segmentHeaderSize-8])
	if h.Magic != magic || hash.Sum64() != h.Checksum || h.Segment != seg.seq {
		return res, errCorruptedHeader
	}
	if h.Version > version0 {
		return res, ErrUnsupportedVersion
	}
	hash.Write(hbuf[segmentHeaderSize-8:])

	off := int64(segmentHeaderSize)
	res.goodSize = off
	ts := h.Timestamp
	id := seg.id
	var pending []Entry
	for {
		first, err := r.Peek(1)
		if err == io.EOF {
			break
		} else if err != nil {
			return res, err
		}

		if first[0]&trailerFlag != 0 {
			var tbuf [8]byte
			if _, err := io.ReadFull(r, tbuf[:]); err != nil {
				break
			}
			if binary.LittleEndian.Uint64(tbuf[:]) != hash.Sum64()|uint64(trailerFlag) {
				l.logger.LogAttrs(l.context, slog.LevelWarn, "deltalog: checksum mismatch", slog.String("file", seg.name), slog.Int64("off", off))
				break
			}
			hash.Write(tbuf[:])
			off += 8
			for _, e := range pending {
				if fn != nil {
					if err := fn(e); err != nil {
						return res, err
					}
				}
			}
			res.entries += len(pending)
			res.goodSize = off
			pending = pending[:0]
			continue
		}

		sizeAndFlags, err := binary.ReadUvarint(r)
		if err != nil {
			break
		}
		tsDelta, err := binary.ReadUvarint(r)
		if err != nil || tsDelta > 0xFFFF_FFFF {
			break
		}
		size := sizeAndFlags >> sizeShift
		if size == 0 || size > MaxEntrySize || int64(size) > res.fileSize-off {
			break
		}
		data := make([]byte, size)
		if _, err := io.ReadFull(r, data); err != nil {
			break
		}
		hdr := appendEntryHeader(nil, int(size), uint32(tsDelta))
		hash.Write(hdr)
		hash.Write(data)
		off += int64(len(hdr)) + int64(size)
		ts += uint32(tsDelta)
		pending = append(pending, Entry{
			ID:        id,
			Segment:   seg.seq,
			Timestamp: time.Unix(int64(ts), 0).UTC(),
			Kind:      Kind(data[0]),
			Data:      data[1:],
		})
		id++
	}
	return res, nil
}

type segmentWriter struct {
	f           *os.File
	seg         uint32
	ts          uint32
	size        int64
	hash        xxhash.Digest
	uncommitted bool
}

func startSegment(l *Log, seg, ts uint32, rec uint64) (*segmentWriter, error) {
	name := l.fileNamePrefix + formatSegmentName(seg, ts, rec) + l.fileNameSuffix
	f, err := os.OpenFile(l.path(name), os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o666)
	if err != nil {
		return nil, err
	}

	var ok bool
	defer closeAndDeleteUnlessOK(f, &ok)

	sw := &segmentWriter{f: f, seg: seg, ts: ts, size: segmentHeaderSize}
	sw.hash.Reset()

	var hbuf [segmentHeaderSize]byte
	fillSegmentHeader(hbuf[:], seg, ts, &sw.hash)
	if _, err := f.Write(hbuf[:]); err != nil {
		return nil, err
	}

	ok = true
	return sw, nil
}

const maxEntryHeaderLen = binary.MaxVarintLen64 + binary.MaxVarintLen32

func (sw *segmentWriter) writeEntry(ts uint32, kind Kind, data []byte) error {
	var tsDelta uint32
	if ts > sw.ts {
		tsDelta = ts - sw.ts
		sw.ts = ts
	}
	sw.uncommitted = true

	var hbuf [maxEntryHeaderLen + 1]byte
	h := appendEntryHeader(hbuf[:0], len(data)+1, tsDelta)
	h = append(h, byte(kind))

	sw.hash.Write(h)
	sw.hash.Write(data)
	if _, err := sw.f.Write(h); err != nil {
		return err
	}
	if _, err := sw.f.Write(data); err != nil {
		return err
	}
	sw.size += int64(len(h) + len(data))
	return nil
}

func (sw *segmentWriter) commit() error {
	if !sw.uncommitted {
		return nil
	}
	sw.uncommitted = false

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], sw.hash.Sum64()|uint64(trailerFlag))
	sw.hash.Write(buf[:])
	if _, err := sw.f.Write(buf[:]); err != nil {
		return err
	}
	sw.size += 8
	return mmapfile.Fdatasync(sw.f)
}

func (sw *segmentWriter) close() {
	if sw.f == nil {
		return
	}
	sw.f.Close()
	sw.f = nil
}

func closeAndDeleteUnlessOK(f *os.File, ok *bool) {
	if *ok {
		return
	}
	f.Close()
	os.Remove(f.Name())
}

func fillSegmentHeader(buf []byte, seg, ts uint32, hash *xxhash.Digest) {
	h := segmentHeader{
		Magic:     magic,
		Version:   version0,
		Segment:   seg,
		Timestamp: ts,
	}
	n, err := binary.Encode(buf, binary.LittleEndian, h)
	if err != nil {
		panic(err)
	}
	if n != len(buf) {
		panic("internal size mismatch")
	}
	hash.Write(buf[:segmentHeaderSize-8])
	binary.LittleEndian.PutUint64(buf[segmentHeaderSize-8:], hash.Sum64())
	hash.Write(buf[segmentHeaderSize-8 : segmentHeaderSize])
}

func appendEntryHeader(b []byte, size int, tsDelta uint32) []byte {
	b = binary.AppendUvarint(b, uint64(size)<<sizeShift)
	b = binary.AppendUvarint(b, uint64(tsDelta))
	return b
}

func formatSegmentName(seq, ts uint32, id uint64) string {
	t := time.Unix(int64(uint64(ts)), 0).UTC()
	return fmt.Sprintf("%012d-%s-%016x", seq, t.Format(timestampFmt), id)
}

func parseSegmentName(name string) (seq, ts uint32, id uint64, err error) {
	seqStr, rem, ok := strings.Cut(name, "-")
	if !ok {
		return 0, 0, 0, fmt.Errorf("invalid segment file name %q", name)
	}
	v, err := strconv.ParseUint(seqStr, 10, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid segment file name %q (invalid segment number)", name)
	}
	seq = uint32(v)

	tsStr, idStr, ok := strings.Cut(rem, "-")
	if !ok {
		return 0, 0, 0, fmt.Errorf("invalid segment file name %q", name)
	}
	t, err := time.ParseInLocation(timestampFmt, tsStr, time.UTC)
	if err != nil {
		return seq, 0, 0, fmt.Errorf("invalid segment file name %q (invalid timestamp)", name)
	}
	ts = uint32(t.Unix())

	id, err = strconv.ParseUint(idStr, 16, 64)
	if err != nil {
		return seq, 0, 0, fmt.Errorf("invalid segment file name %q (invalid entry identifier)", name)
	}
	return
}
