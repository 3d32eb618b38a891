package recordbin

import (
	"math"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/andreyvit/recordbin/internal/hexspec"
)

func TestDecimal_Encoding(t *testing.T) {
	tests := []struct {
		v    string
		data string
	}{
		{"0", "%0 %1 00"},
		{"1.5", "%1 %1 0f"},
		{"-12.5", "%1 %1 83"},
		{"12.50", "%2 %2 04e2"},
		{"-1", "%0 %1 ff"},
		{"-129", "%0 %2 ff7f"},
		{"128", "%0 %2 0080"},
		{"5e2", "%0 %2 01f4"},
	}
	for _, tt := range tests {
		t.Run(tt.v, func(t *testing.T) {
			d := decimal.RequireFromString(tt.v)
			var b Buffer
			if err := writeDecimal(&b, d); err != nil {
				t.Fatalf("writeDecimal failed: %v", err)
			}
			hexspec.BytesEq(t, b.Bytes(), hexspec.Expand(tt.data))

			got, err := readDecimal(NewBuffer(b.Bytes()))
			if err != nil {
				t.Fatalf("readDecimal failed: %v", err)
			}
			if !got.Equal(d) {
				t.Fatalf("readDecimal = %v, wanted %v", got, d)
			}
		})
	}
}

func TestDecimal_Errors(t *testing.T) {
	for _, data := range []string{"%1 %0", "%1 %2 01", "%1 %-1 01", "%1"} {
		if _, err := readDecimal(NewBuffer(hexspec.Expand(data))); err == nil {
			t.Errorf("readDecimal(%s) err = nil", data)
		}
	}
	b := NewBuffer(hexspec.Expand("%1 %2 0102 ee"))
	if err := skipDecimal(b); err != nil || b.Off != 10 {
		t.Fatalf("skipDecimal = %v, off %d", err, b.Off)
	}
}

func TestTwosComplement(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 127, 128, -128, -129, 255, 256, -256, -32768, -32769, math.MaxInt64, math.MinInt64} {
		raw := twosComplement(big.NewInt(v))
		if got := fromTwosComplement(raw); got.Int64() != v {
			t.Errorf("%d -> %x -> %v", v, raw, got)
		}
		// minimal: dropping the first byte must change the value
		if len(raw) > 1 {
			if got := fromTwosComplement(raw[1:]); got.Int64() == v {
				t.Errorf("%d -> %x is not minimal", v, raw)
			}
		}
	}
}

func TestExactDecimal(t *testing.T) {
	d, ok := exactDecimal(0.1)
	if !ok {
		t.Fatalf("exactDecimal(0.1) failed")
	}
	if want := decimal.RequireFromString("0.1000000000000000055511151231257827021181583404541015625"); !d.Equal(want) {
		t.Fatalf("exactDecimal(0.1) = %v, wanted %v", d, want)
	}
	if d.Cmp(decimal.RequireFromString("0.1")) <= 0 {
		t.Fatalf("exactDecimal(0.1) is not above 0.1")
	}

	for _, f := range []float64{0, 1, -2.5, 1e20, 3 * (1 << 60), 0.375} {
		d, ok := exactDecimal(f)
		if !ok || d.InexactFloat64() != f {
			t.Errorf("exactDecimal(%v) = %v", f, d)
		}
	}
	for _, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, ok := exactDecimal(f); ok {
			t.Errorf("exactDecimal(%v) succeeded", f)
		}
	}
}
