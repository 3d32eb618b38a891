package recordbin

import (
	"log/slog"
	"testing"
)

func TestRpad(t *testing.T) {
	if got := rpad("abc", 5, '.'); got != "abc.." {
		t.Fatalf("rpad = %q, wanted %q", got, "abc..")
	}
	if got := rpad("abc", 1, '.'); got != "abc" {
		t.Fatalf("rpad = %q, wanted %q", got, "abc")
	}
}

func TestHexHelpers(t *testing.T) {
	if got := hexstr(nil); got != "<nil>" {
		t.Fatalf("hexstr(nil) = %q, wanted <nil>", got)
	}
	if got := hexstr([]byte{}); got != "<empty>" {
		t.Fatalf("hexstr(empty) = %q, wanted <empty>", got)
	}
	if got := hexstr([]byte{0xAA, 0xBB}); got != "aabb" {
		t.Fatalf("hexstr = %q, wanted aabb", got)
	}
	a := hexAttr("k", []byte{0xAA})
	if a.Key != "k" || a.Value.Kind() != slog.KindString {
		t.Fatalf("hexAttr returned unexpected attr: %+v", a)
	}
}

func TestStringCache(t *testing.T) {
	c := NewStringCache(2)
	a := c.String([]byte("name"))
	b := c.String([]byte("name"))
	if a != b || c.Len() != 1 {
		t.Fatalf("String twice: (%q, %q), Len = %d, wanted one entry", a, b, c.Len())
	}
	c.String([]byte("age"))
	c.String([]byte("tags"))
	if c.Len() != 1 {
		t.Fatalf("Len after overflow = %d, wanted 1", c.Len())
	}

	long := make([]byte, maxInternLen+1)
	c.String(long)
	if c.Len() != 1 {
		t.Fatalf("long string was interned")
	}

	var nilCache *StringCache
	if got := nilCache.String([]byte("x")); got != "x" {
		t.Fatalf("nil cache String = %q, wanted x", got)
	}
}
