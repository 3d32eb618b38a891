package recordbin

import "testing"

func TestOp(t *testing.T) {
	tests := []struct {
		op    Op
		s     string
		valid bool
	}{
		{OpNone, "none", false},
		{OpCreated, "created", true},
		{OpReplaced, "replaced", true},
		{OpChanged, "changed", true},
		{OpRemoved, "removed", true},
		{Op(9), "invalid op 9", false},
	}
	for _, tt := range tests {
		if s := tt.op.String(); s != tt.s {
			t.Errorf("Op(%d).String() = %q, wanted %q", int(tt.op), s, tt.s)
		}
		if v := tt.op.Valid(); v != tt.valid {
			t.Errorf("Op(%d).Valid() = %v, wanted %v", int(tt.op), v, tt.valid)
		}
	}
}

func TestBagMode(t *testing.T) {
	if s := BagModeTree.String(); s != "tree" {
		t.Fatalf("BagModeTree.String() = %q, wanted tree", s)
	}
	if s := BagMode(7).String(); s != "invalid bag mode 7" {
		t.Fatalf("BagMode(7).String() = %q", s)
	}
}

func TestType(t *testing.T) {
	for typ := Boolean; typ <= Any; typ++ {
		got, ok := ParseType(typ.String())
		if !ok || got != typ {
			t.Errorf("ParseType(%q) = (%v, %v), wanted (%v, true)", typ.String(), got, ok, typ)
		}
	}
	if got, ok := ParseType("linklist"); !ok || got != LinkListType {
		t.Errorf("ParseType(linklist) = (%v, %v)", got, ok)
	}
	if _, ok := ParseType("nope"); ok {
		t.Errorf("ParseType(nope) succeeded")
	}
	if Type(30).Valid() || Type(-1).Valid() {
		t.Errorf("out of range types reported as valid")
	}
	if !LinkBag.IsLink() || !LinkBag.IsMultiValue() || LinkBag.IsBinaryComparable() {
		t.Errorf("LINKBAG predicates are wrong")
	}
	if !EmbeddedMap.IsEmbedded() || Link.IsEmbedded() {
		t.Errorf("IsEmbedded predicates are wrong")
	}
}

func TestTypeOf(t *testing.T) {
	tests := []struct {
		v    any
		want Type
		ok   bool
	}{
		{true, Boolean, true},
		{int32(1), Integer, true},
		{int16(1), Short, true},
		{int64(1), Long, true},
		{1, Long, true},
		{int8(1), Byte, true},
		{float32(1), Float, true},
		{1.0, Double, true},
		{"s", String, true},
		{[]byte{1}, Binary, true},
		{RID{1, 2}, Link, true},
		{NewRecord(""), Embedded, true},
		{(*Record)(nil), Embedded, false},
		{[]any{}, EmbeddedList, true},
		{EmbeddedSetValue{}, EmbeddedSet, true},
		{map[string]any{}, EmbeddedMap, true},
		{LinkList{}, LinkListType, true},
		{LinkSet{}, LinkSetType, true},
		{LinkMap{}, LinkMapType, true},
		{NewEmbeddedRidBag(), LinkBag, true},
		{nil, Any, false},
		{struct{}{}, Any, false},
	}
	for _, tt := range tests {
		got, ok := TypeOf(tt.v)
		if got != tt.want || ok != tt.ok {
			t.Errorf("TypeOf(%#v) = (%v, %v), wanted (%v, %v)", tt.v, got, ok, tt.want, tt.ok)
		}
	}
}
