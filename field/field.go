package field

import (
	"io"
	"math/big"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Element represents an integer modulo the order of a prime field.
//
// All arithmetic methods use a mutable receiver pattern: they modify
// the receiver, store the result in it, and return it.
//
// Implementations must ensure all operations produce results in the
// valid range [0, order).
type Element interface {
	// Add sets the receiver to a+b and returns it.
	Add(a, b Element) Element
	// Sub sets the receiver to a-b and returns it.
	Sub(a, b Element) Element
	// Mul sets the receiver to a*b and returns it.
	Mul(a, b Element) Element
	// Negate sets the receiver to -a and returns it.
	Negate(a Element) Element
	// Set sets the receiver to a and returns it.
	Set(a Element) Element
	// SetInt64 sets the receiver to v mod order and returns it.
	SetInt64(v int64) Element
	// SetBigInt sets the receiver to v mod order and returns it.
	// Negative values are accepted.
	SetBigInt(v *big.Int) Element
	// BigInt returns the canonical value in [0, order).
	BigInt() *big.Int
	// Bytes returns the fixed-length big-endian encoding of the element.
	Bytes() []byte
	// SetBytes sets the receiver from its fixed-length encoding.
	// Returns an error if the data has the wrong length or is out of range.
	SetBytes(data []byte) (Element, error)
	// Equal reports whether the receiver equals b.
	Equal(b Element) bool
	// IsZero reports whether the receiver is zero.
	IsZero() bool
}

// Field is a prime field suitable for additive secret sharing.
type Field interface {
	// Name returns the registry name of the field.
	Name() string
	// NewElement returns a new zero element.
	NewElement() Element
	// RandomElement returns an element drawn from r.
	RandomElement(r io.Reader) (Element, error)
	// Order returns the field order.
	Order() *big.Int
	// ByteLen returns the length of the encoding produced by Element.Bytes.
	ByteLen() int
}

// ErrUnknownField is returned by ByName for unregistered names.
var ErrUnknownField = errors.New("unknown field")

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Field)
)

// Register makes a field available through ByName.
func Register(f Field) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[f.Name()] = f
}

// ByName returns the registered field with the given name.
func ByName(name string) (Field, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownField, "%q (known: %v)", name, namesLocked())
	}
	return f, nil
}

// Names lists the registered fields in lexical order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return namesLocked()
}

func namesLocked() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Sum returns the sum of elems as a new element.
func Sum(f Field, elems ...Element) Element {
	acc := f.NewElement()
	for _, e := range elems {
		acc.Add(acc, e)
	}
	return acc
}

// Signed lifts e to the centred range (-order/2, order/2].
func Signed(f Field, e Element) *big.Int {
	v := e.BigInt()
	half := new(big.Int).Rsh(f.Order(), 1)
	if v.Cmp(half) > 0 {
		v.Sub(v, f.Order())
	}
	return v
}

// RandomBytes is the number of bytes RandomElement implementations read.
// The extra 16 bytes keep the reduction bias below 2^-128.
func RandomBytes(f Field) int {
	return f.ByteLen() + 16
}
