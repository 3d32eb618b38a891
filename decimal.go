package recordbin

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// Decimals are stored as scale:int32BE, length:int32BE and the unscaled
// value as a minimal two's-complement big-endian integer, so the width of a
// value is known after reading its first 8 bytes.

func writeDecimal(b *Buffer, d decimal.Decimal) error {
	coef := d.Coefficient()
	exp := d.Exponent()
	if exp > 0 {
		coef.Mul(coef, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil))
		exp = 0
	}
	if int64(-exp) > math.MaxInt32 {
		return &TypeError{Type: Decimal, Value: d, Msg: "decimal scale out of range"}
	}
	raw := twosComplement(coef)
	b.WriteInt32BE(-exp)
	b.WriteInt32BE(int32(len(raw)))
	b.WriteRaw(raw)
	return nil
}

func readDecimal(b *Buffer) (decimal.Decimal, error) {
	start := b.Off
	scale, n, err := readDecimalHeader(b)
	if err != nil {
		return decimal.Decimal{}, err
	}
	raw, err := b.ReadRaw(n)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if n == 0 {
		return decimal.Decimal{}, dataErrf(b.Buf, start, nil, "empty decimal")
	}
	return decimal.NewFromBigInt(fromTwosComplement(raw), -scale), nil
}

func skipDecimal(b *Buffer) error {
	_, n, err := readDecimalHeader(b)
	if err != nil {
		return err
	}
	return b.Skip(n)
}

func readDecimalHeader(b *Buffer) (int32, int, error) {
	start := b.Off
	scale, err := b.ReadInt32BE()
	if err != nil {
		return 0, 0, err
	}
	n, err := b.ReadInt32BE()
	if err != nil {
		return 0, 0, err
	}
	if n < 0 || int(n) > b.Remaining() {
		return 0, 0, dataErrf(b.Buf, start, ErrTruncated, "invalid decimal length %d", n)
	}
	return scale, int(n), nil
}

// twosComplement returns the shortest big-endian two's-complement form of v.
func twosComplement(v *big.Int) []byte {
	switch v.Sign() {
	case 0:
		return []byte{0}
	case 1:
		raw := v.Bytes()
		if raw[0]&0x80 != 0 {
			raw = append([]byte{0}, raw...)
		}
		return raw
	default:
		// -v-1 has the same bits as v, inverted
		m := new(big.Int).Neg(v)
		m.Sub(m, big.NewInt(1))
		n := m.BitLen()/8 + 1
		raw := make([]byte, n)
		mb := m.Bytes()
		copy(raw[n-len(mb):], mb)
		for i := range raw {
			raw[i] = ^raw[i]
		}
		return raw
	}
}

func fromTwosComplement(raw []byte) *big.Int {
	v := new(big.Int).SetBytes(raw)
	if len(raw) > 0 && raw[0]&0x80 != 0 {
		v.Sub(v, new(big.Int).Lsh(big.NewInt(1), uint(8*len(raw))))
	}
	return v
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch v := v.(type) {
	case decimal.Decimal:
		return v, true
	case *decimal.Decimal:
		if v == nil {
			return decimal.Decimal{}, false
		}
		return *v, true
	case float32:
		return decimal.NewFromFloat32(v), true
	case float64:
		return decimal.NewFromFloat(v), true
	}
	if i, ok := toInt64(v); ok {
		return decimal.NewFromInt(i), true
	}
	return decimal.Decimal{}, false
}

// exactDecimal returns the exact value of the binary floating-point number f.
// 0.1 therefore becomes 0.1000000000000000055511151231257827..., not 0.1.
func exactDecimal(f float64) (decimal.Decimal, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Decimal{}, false
	}
	if f == 0 {
		return decimal.Zero, true
	}
	frac, exp := math.Frexp(f)
	// f = frac * 2^exp with 0.5 <= |frac| < 1; frac has 53 significant bits
	mant := int64(frac * (1 << 53))
	exp -= 53
	m := big.NewInt(mant)
	if exp >= 0 {
		m.Lsh(m, uint(exp))
		return decimal.NewFromBigInt(m, 0), true
	}
	// mant * 2^exp = mant * 5^-exp * 10^exp
	k := -exp
	m.Mul(m, new(big.Int).Exp(big.NewInt(5), big.NewInt(int64(k)), nil))
	return decimal.NewFromBigInt(m, int32(-k)), true
}
