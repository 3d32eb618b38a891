package mmapfile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHint(t *testing.T) {
	var h Hint = Sequential
	if !h.Has(Sequential) || h.Has(Random) {
		t.Fatalf("Hint.Has returned unexpected results for %v", h)
	}
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	want := []byte("mapped record bytes")
	if err := os.WriteFile(path, want, 0o644); err != nil {
		t.Fatal(err)
	}
	for _, hint := range []Hint{0, Sequential, Random} {
		m, err := Open(path, hint)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if string(m.Bytes()) != string(want) {
			t.Fatalf("Bytes = %q, wanted %q", m.Bytes(), want)
		}
		if err := m.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
}

func TestOpen_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(m.Bytes()) != 0 {
		t.Fatalf("Bytes = %q", m.Bytes())
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(filepath.Join(t.TempDir(), "missing"), 0); err == nil {
		t.Fatalf("Open of a missing file succeeded")
	}
}

func TestFdatasync(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "log"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.Write([]byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := Fdatasync(f); err != nil {
		t.Fatalf("Fdatasync: %v", err)
	}

	f.Close()
	if err := Fdatasync(f); err == nil {
		t.Fatalf("Fdatasync of a closed file succeeded")
	}
}
