// Package hexspec builds byte fixtures from a compact text notation and
// reports byte mismatches as hex dumps.
//
// Expand accepts whitespace-separated elements:
//
//	0a_ff      hex bytes (underscores separate bytes)
//	#-3        zig-zag varint
//	%12        int32, big-endian
//	'abc       raw ASCII bytes
//	$abc       varint length followed by the ASCII bytes
//	00*4       any element repeated 4 times
//	08/type    text after a slash is a comment
package hexspec

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"testing"
)

func Expand(specs ...string) []byte {
	var b []byte
	for _, spec := range specs {
		for _, elem := range strings.Fields(spec) {
			base, _, _ := strings.Cut(elem, "/") // comment
			if base == "" {
				continue
			}

			rep := 1
			if i := strings.LastIndexByte(base, '*'); i > 0 {
				var err error
				rep, err = strconv.Atoi(base[i+1:])
				if err != nil {
					panic(fmt.Sprintf("invalid repeat count %q in element %q", base[i+1:], elem))
				}
				base = base[:i]
			}

			baseBytes, err := appendElement(nil, base)
			if err != nil {
				panic(fmt.Errorf("%w in element %q", err, elem))
			}
			for range rep {
				b = append(b, baseBytes...)
			}
		}
	}
	return b
}

func appendElement(data []byte, elem string) ([]byte, error) {
	if decimal, ok := strings.CutPrefix(elem, "#"); ok {
		v, err := strconv.ParseInt(decimal, 10, 64)
		if err != nil {
			return nil, err
		}
		return AppendVarint(data, v), nil
	} else if decimal, ok := strings.CutPrefix(elem, "%"); ok {
		v, err := strconv.ParseInt(decimal, 10, 32)
		if err != nil {
			return nil, err
		}
		return binary.BigEndian.AppendUint32(data, uint32(int32(v))), nil
	} else if alpha, ok := strings.CutPrefix(elem, "'"); ok {
		return append(data, alpha...), nil
	} else if alpha, ok := strings.CutPrefix(elem, "$"); ok {
		data = AppendVarint(data, int64(len(alpha)))
		return append(data, alpha...), nil
	}
	return appendHexDecoding(data, elem)
}

// AppendVarint appends v in the zig-zag varint encoding.
func AppendVarint(data []byte, v int64) []byte {
	u := uint64((v << 1) ^ (v >> 63))
	for u >= 0x80 {
		data = append(data, byte(u)|0x80)
		u >>= 7
	}
	return append(data, byte(u))
}

// appendHexDecoding decodes underscore-separated groups of hex digits. A
// group of odd length ends with a single-digit byte.
func appendHexDecoding(data []byte, s string) ([]byte, error) {
	for _, group := range strings.Split(s, "_") {
		var last string
		if len(group)%2 == 1 {
			group, last = group[:len(group)-1], "0"+group[len(group)-1:]
		}
		var err error
		if data, err = hex.AppendDecode(data, []byte(group+last)); err != nil {
			return nil, fmt.Errorf("invalid hex %q: %w", s, err)
		}
	}
	return data, nil
}

const dumpWidth = 16

// HexDump formats b as rows of 16 bytes prefixed with the row offset. The byte
// at mark is bracketed; pass -1 for no mark.
func HexDump(b []byte, mark int) string {
	var buf strings.Builder
	for row := 0; row == 0 || row < len(b); row += dumpWidth {
		fmt.Fprintf(&buf, "%04x:", row)
		for i := row; i < row+dumpWidth && i < len(b); i++ {
			if i == mark {
				fmt.Fprintf(&buf, "[%02x]", b[i])
			} else if i-1 == mark {
				fmt.Fprintf(&buf, "%02x", b[i])
			} else {
				fmt.Fprintf(&buf, " %02x", b[i])
			}
		}
		buf.WriteByte('\n')
	}
	return buf.String()
}

// BytesEq reports a hex dump of both values if they differ.
func BytesEq(t testing.TB, a, e []byte) bool {
	if bytes.Equal(a, e) {
		return true
	}
	off := min(len(a), len(e))
	for i := range off {
		if a[i] != e[i] {
			off = i
			break
		}
	}
	t.Helper()
	t.Errorf("bytes differ at offset %d (0x%x), %d bytes vs %d wanted\ngot:\n%swanted:\n%s", off, off, len(a), len(e), HexDump(a, off), HexDump(e, off))
	return false
}

// Logger returns a debug-level logger that writes into the test log.
func Logger(t testing.TB) *slog.Logger {
	return slog.New(slog.NewTextHandler(&logWriter{t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type logWriter struct{ t testing.TB }

func (c *logWriter) Write(buf []byte) (int, error) {
	msg := string(buf)
	origLen := len(msg)
	msg = strings.TrimSuffix(msg, "\n")
	c.t.Log(msg)
	return origLen, nil
}
