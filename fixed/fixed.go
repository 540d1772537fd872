// Package fixed encodes signed reals and integers as prime field elements.
//
// A real x is represented by the integer round(x * 2^FracBits), and
// negative integers wrap to order - |v|. The codec also fixes the bit
// bound k = IntBits + 2*FracBits that every intermediate product must stay
// under so that probabilistic truncation never wraps around the field.
package fixed

import (
	"math"
	"math/big"

	"github.com/f3rmion/secema/field"
	"github.com/pkg/errors"
)

const (
	// DefaultFracBits is the number of fractional bits used for reals.
	DefaultFracBits = 32
	// DefaultIntBits is the number of bits (sign included) available to the
	// integer part of a real.
	DefaultIntBits = 32
	// StatBits is the statistical security parameter of truncation masks.
	StatBits = 40
)

var (
	// ErrNotFinite is returned when encoding NaN or an infinity.
	ErrNotFinite = errors.New("fixed: value is not finite")
	// ErrOutOfRange is returned when a value does not fit the codec.
	ErrOutOfRange = errors.New("fixed: value out of range")
)

// Codec converts between plaintext numbers and field elements.
type Codec struct {
	field    field.Field
	fracBits uint
	intBits  uint
}

// New returns a codec for f. The field must be large enough to hold a
// masked product: IntBits + 2*FracBits + StatBits + 2 bits.
func New(f field.Field, fracBits, intBits uint) (*Codec, error) {
	if intBits < 2 {
		return nil, errors.Errorf("fixed: need at least 2 integer bits, got %d", intBits)
	}
	need := int(intBits + 2*fracBits + StatBits + 2)
	if have := f.Order().BitLen() - 1; need > have {
		return nil, errors.Errorf("fixed: %d fractional and %d integer bits need a %d-bit field, %s has %d",
			fracBits, intBits, need, f.Name(), have)
	}
	return &Codec{field: f, fracBits: fracBits, intBits: intBits}, nil
}

// Field returns the codec's field.
func (c *Codec) Field() field.Field { return c.field }

// FracBits returns the number of fractional bits.
func (c *Codec) FracBits() uint { return c.fracBits }

// IntBits returns the number of integer bits.
func (c *Codec) IntBits() uint { return c.intBits }

// BoundBits returns k, the bit bound on the magnitude of any value fed to
// truncation (a product of two encoded reals).
func (c *Codec) BoundBits() uint { return c.intBits + 2*c.fracBits }

// Scale returns 2^FracBits as a big.Int.
func (c *Codec) Scale() *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), c.fracBits)
}

// EncodeFloat returns round(x * 2^FracBits) as a field element.
// Ties round away from zero.
func (c *Codec) EncodeFloat(x float64) (field.Element, error) {
	v, err := c.ScaleFloat(x)
	if err != nil {
		return nil, err
	}
	return c.field.NewElement().SetBigInt(v), nil
}

// ScaleFloat returns round(x * 2^FracBits) as a signed integer.
func (c *Codec) ScaleFloat(x float64) (*big.Int, error) {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return nil, ErrNotFinite
	}
	if math.Abs(x) >= math.Ldexp(1, int(c.intBits)-1) {
		return nil, errors.Wrapf(ErrOutOfRange, "|%g| >= 2^%d", x, c.intBits-1)
	}
	bf := new(big.Float).SetPrec(128).SetFloat64(x)
	bf.SetMantExp(bf, int(c.fracBits))
	half := big.NewFloat(0.5)
	if bf.Sign() < 0 {
		bf.Sub(bf, half)
	} else {
		bf.Add(bf, half)
	}
	v, _ := bf.Int(nil)
	return v, nil
}

// EncodeInt returns v as a field element with no scaling.
func (c *Codec) EncodeInt(v int64) (field.Element, error) {
	if bits := big.NewInt(v).BitLen(); bits >= int(c.BoundBits()) {
		return nil, errors.Wrapf(ErrOutOfRange, "%d needs %d bits", v, bits)
	}
	return c.field.NewElement().SetInt64(v), nil
}

// DecodeFloat interprets e as a signed integer scaled by 2^scale.
func (c *Codec) DecodeFloat(e field.Element, scale uint) float64 {
	bf := new(big.Float).SetPrec(128).SetInt(field.Signed(c.field, e))
	bf.SetMantExp(bf, -int(scale))
	f, _ := bf.Float64()
	return f
}

// DecodeInt interprets e as a signed integer.
func (c *Codec) DecodeInt(e field.Element) (int64, error) {
	v := field.Signed(c.field, e)
	if !v.IsInt64() {
		return 0, errors.Wrapf(ErrOutOfRange, "%s does not fit in int64", v)
	}
	return v.Int64(), nil
}

// Resolution returns the smallest positive real the codec can represent.
func (c *Codec) Resolution() float64 {
	return math.Ldexp(1, -int(c.fracBits))
}
