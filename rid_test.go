package recordbin

import (
	"slices"
	"testing"
)

func TestRID(t *testing.T) {
	tests := []struct {
		rid                     RID
		s                       string
		null, valid, persistent bool
		temporary               bool
	}{
		{RID{12, 5}, "#12:5", false, true, true, false},
		{RID{0, 0}, "#0:0", false, true, true, false},
		{NullRID, "#-2:-1", true, true, false, false},
		{RID{-1, -1}, "#-1:-1", false, false, false, false},
		{RID{5, -2}, "#5:-2", false, true, false, true},
	}
	for _, tt := range tests {
		if s := tt.rid.String(); s != tt.s {
			t.Errorf("String() = %q, wanted %q", s, tt.s)
		}
		if tt.rid.IsNull() != tt.null || tt.rid.IsValid() != tt.valid || tt.rid.IsPersistent() != tt.persistent || tt.rid.IsTemporary() != tt.temporary {
			t.Errorf("%v: predicates (null=%v valid=%v persistent=%v temporary=%v)", tt.rid,
				tt.rid.IsNull(), tt.rid.IsValid(), tt.rid.IsPersistent(), tt.rid.IsTemporary())
		}
		got, err := ParseRID(tt.s)
		if err != nil || got != tt.rid {
			t.Errorf("ParseRID(%q) = (%v, %v), wanted %v", tt.s, got, err, tt.rid)
		}
	}

	if got, err := ParseRID(" 3:4 "); err != nil || got != (RID{3, 4}) {
		t.Errorf("ParseRID without # = (%v, %v)", got, err)
	}
	for _, s := range []string{"", "#", "#1", "#a:1", "#1:b", "#99999999999:1"} {
		if _, err := ParseRID(s); err == nil {
			t.Errorf("ParseRID(%q) err = nil", s)
		}
	}
}

func TestRID_Compare(t *testing.T) {
	rids := []RID{{2, 1}, {1, 9}, {1, -3}, {-2, -1}}
	slices.SortFunc(rids, RID.Compare)
	want := []RID{{-2, -1}, {1, -3}, {1, 9}, {2, 1}}
	if !slices.Equal(rids, want) {
		t.Fatalf("sorted = %v, wanted %v", rids, want)
	}
}
