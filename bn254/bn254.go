package bn254

import (
	"io"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/f3rmion/secema/field"
	"github.com/pkg/errors"
)

// Name is the registry name of the BN254 scalar field.
const Name = "bn254"

func init() {
	field.Register(&Fr{})
}

// Element is an element of the BN254 scalar field.
type Element struct {
	inner fr.Element
}

// Add sets e to a + b and returns e.
func (e *Element) Add(a, b field.Element) field.Element {
	e.inner.Add(&a.(*Element).inner, &b.(*Element).inner)
	return e
}

// Sub sets e to a - b and returns e.
func (e *Element) Sub(a, b field.Element) field.Element {
	e.inner.Sub(&a.(*Element).inner, &b.(*Element).inner)
	return e
}

// Mul sets e to a * b and returns e.
func (e *Element) Mul(a, b field.Element) field.Element {
	e.inner.Mul(&a.(*Element).inner, &b.(*Element).inner)
	return e
}

// Negate sets e to -a and returns e.
func (e *Element) Negate(a field.Element) field.Element {
	e.inner.Neg(&a.(*Element).inner)
	return e
}

// Set copies a into e and returns e.
func (e *Element) Set(a field.Element) field.Element {
	e.inner.Set(&a.(*Element).inner)
	return e
}

// SetInt64 sets e to v mod r and returns e.
func (e *Element) SetInt64(v int64) field.Element {
	e.inner.SetInt64(v)
	return e
}

// SetBigInt sets e to v mod r and returns e.
func (e *Element) SetBigInt(v *big.Int) field.Element {
	reduced := new(big.Int).Mod(v, fr.Modulus())
	e.inner.SetBigInt(reduced)
	return e
}

// BigInt returns the canonical value of e.
func (e *Element) BigInt() *big.Int {
	return e.inner.BigInt(new(big.Int))
}

// Bytes returns the 32-byte big-endian encoding of e.
func (e *Element) Bytes() []byte {
	b := e.inner.Bytes()
	return b[:]
}

// SetBytes decodes a 32-byte big-endian encoding into e.
func (e *Element) SetBytes(data []byte) (field.Element, error) {
	if err := e.inner.SetBytesCanonical(data); err != nil {
		return nil, errors.Wrap(err, "bn254: decoding element")
	}
	return e, nil
}

// Equal reports whether e and b are the same element.
func (e *Element) Equal(b field.Element) bool {
	return e.inner.Equal(&b.(*Element).inner)
}

// IsZero reports whether e is zero.
func (e *Element) IsZero() bool {
	return e.inner.IsZero()
}

// Fr implements [field.Field] for the BN254 scalar field.
type Fr struct{}

// Name returns "bn254".
func (f *Fr) Name() string {
	return Name
}

// NewElement returns a new zero element.
func (f *Fr) NewElement() field.Element {
	return new(Element)
}

// RandomElement draws an element from r with bias below 2^-128.
func (f *Fr) RandomElement(r io.Reader) (field.Element, error) {
	buf := make([]byte, field.RandomBytes(f))
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errors.Wrap(err, "bn254: reading randomness")
	}
	return new(Element).SetBigInt(new(big.Int).SetBytes(buf)), nil
}

// Order returns the BN254 scalar field modulus.
func (f *Fr) Order() *big.Int {
	return fr.Modulus()
}

// ByteLen returns 32.
func (f *Fr) ByteLen() int {
	return fr.Bytes
}
