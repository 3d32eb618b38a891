package hexspec

import (
	"bytes"
	"testing"
)

func TestExpand(t *testing.T) {
	tests := []struct {
		spec string
		want []byte
	}{
		{"0a ff", []byte{0x0a, 0xff}},
		{"0a_0b_c", []byte{0x0a, 0x0b, 0x0c}},
		{"#0 #1 #-1 #64", []byte{0x00, 0x02, 0x01, 0x80, 0x01}},
		{"%1", []byte{0, 0, 0, 1}},
		{"%-1", []byte{0xff, 0xff, 0xff, 0xff}},
		{"'ab $cd", []byte{'a', 'b', 0x04, 'c', 'd'}},
		{"00*3 01/comment", []byte{0, 0, 0, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got := Expand(tt.spec)
			if !bytes.Equal(got, tt.want) {
				t.Fatalf("Expand(%q) = %x, wanted %x", tt.spec, got, tt.want)
			}
		})
	}
}

func TestExpand_InvalidPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	Expand("zz")
}

func TestHexDump(t *testing.T) {
	b := Expand("00*16 01 02")
	got := HexDump(b, 17)
	want := "0000: 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00\n0010: 01[02]\n"
	if got != want {
		t.Fatalf("HexDump = %q, wanted %q", got, want)
	}
	if got := HexDump(nil, -1); got != "0000:\n" {
		t.Fatalf("HexDump(nil) = %q", got)
	}
}
