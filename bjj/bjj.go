package bjj

import (
	"io"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/twistededwards"
	"github.com/f3rmion/secema/field"
	"github.com/pkg/errors"
)

// Name is the registry name of the Baby Jubjub scalar field.
const Name = "bjj"

const byteLen = 32

// curveOrder is the Baby Jubjub subgroup order.
// This is distinct from the BN254 scalar field order (Fr).
var curveOrder *big.Int

func init() {
	curve := twistededwards.GetEdwardsCurve()
	curveOrder = new(big.Int).Set(&curve.Order)
	field.Register(&BJJ{})
}

// Scalar represents an element of the Baby Jubjub scalar field.
// It implements [field.Element] using big.Int with modular arithmetic
// over the curve's subgroup order.
//
// All arithmetic operations automatically reduce results modulo the
// curve order to maintain valid values.
type Scalar struct {
	inner *big.Int
}

// newScalar creates a new scalar initialized to zero.
func newScalar() *Scalar {
	return &Scalar{inner: new(big.Int)}
}

// reduce ensures the scalar is in the range [0, curveOrder).
func (s *Scalar) reduce() {
	s.inner.Mod(s.inner, curveOrder)
}

// Add sets s to a + b (mod curveOrder) and returns s.
func (s *Scalar) Add(a, b field.Element) field.Element {
	s.inner.Add(a.(*Scalar).inner, b.(*Scalar).inner)
	s.reduce()
	return s
}

// Sub sets s to a - b (mod curveOrder) and returns s.
func (s *Scalar) Sub(a, b field.Element) field.Element {
	s.inner.Sub(a.(*Scalar).inner, b.(*Scalar).inner)
	s.reduce()
	return s
}

// Mul sets s to a * b (mod curveOrder) and returns s.
func (s *Scalar) Mul(a, b field.Element) field.Element {
	s.inner.Mul(a.(*Scalar).inner, b.(*Scalar).inner)
	s.reduce()
	return s
}

// Negate sets s to -a (mod curveOrder) and returns s.
func (s *Scalar) Negate(a field.Element) field.Element {
	s.inner.Neg(a.(*Scalar).inner)
	s.reduce()
	return s
}

// Set copies the value of a into s and returns s.
func (s *Scalar) Set(a field.Element) field.Element {
	s.inner.Set(a.(*Scalar).inner)
	return s
}

// SetInt64 sets s to v (mod curveOrder) and returns s.
func (s *Scalar) SetInt64(v int64) field.Element {
	s.inner.SetInt64(v)
	s.reduce()
	return s
}

// SetBigInt sets s to v (mod curveOrder) and returns s.
func (s *Scalar) SetBigInt(v *big.Int) field.Element {
	s.inner.Set(v)
	s.reduce()
	return s
}

// BigInt returns a copy of the canonical value of s.
func (s *Scalar) BigInt() *big.Int {
	return new(big.Int).Set(s.inner)
}

// Bytes returns the scalar as a 32-byte big-endian representation.
func (s *Scalar) Bytes() []byte {
	out := make([]byte, byteLen)
	s.inner.FillBytes(out)
	return out
}

// SetBytes sets s from a 32-byte big-endian encoding and returns s.
// Encodings of values at or above the curve order are rejected.
func (s *Scalar) SetBytes(data []byte) (field.Element, error) {
	if len(data) != byteLen {
		return nil, errors.Errorf("bjj: scalar encoding must be %d bytes, got %d", byteLen, len(data))
	}
	v := new(big.Int).SetBytes(data)
	if v.Cmp(curveOrder) >= 0 {
		return nil, errors.New("bjj: scalar encoding out of range")
	}
	s.inner.Set(v)
	return s, nil
}

// Equal reports whether s and b represent the same scalar value.
func (s *Scalar) Equal(b field.Element) bool {
	return s.inner.Cmp(b.(*Scalar).inner) == 0
}

// IsZero reports whether s is the zero scalar.
func (s *Scalar) IsZero() bool {
	return s.inner.Sign() == 0
}

// BJJ implements [field.Field] for the Baby Jubjub scalar field.
//
// BJJ is a zero-sized type. Create an instance with &BJJ{} or new(BJJ).
type BJJ struct{}

// Name returns "bjj".
func (f *BJJ) Name() string {
	return Name
}

// NewElement returns a new scalar initialized to zero.
func (f *BJJ) NewElement() field.Element {
	return newScalar()
}

// RandomElement draws a scalar from r. The result is within statistical
// distance 2^-128 of uniform in [0, curveOrder).
func (f *BJJ) RandomElement(r io.Reader) (field.Element, error) {
	buf := make([]byte, field.RandomBytes(f))
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errors.Wrap(err, "bjj: reading randomness")
	}
	s := newScalar()
	s.inner.SetBytes(buf)
	s.reduce()
	return s, nil
}

// Order returns a copy of the order of the Baby Jubjub prime-order subgroup.
func (f *BJJ) Order() *big.Int {
	return new(big.Int).Set(curveOrder)
}

// ByteLen returns 32.
func (f *BJJ) ByteLen() int {
	return byteLen
}
