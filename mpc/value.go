package mpc

import (
	"fmt"
	"sync"

	"github.com/f3rmion/secema/field"
	"github.com/pkg/errors"
)

// Kind is the numeric kind of a secret value.
type Kind uint8

const (
	// KindInt values are integers.
	KindInt Kind = iota + 1
	// KindFloat values are fixed-point reals.
	KindFloat
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// SecretValue is a handle to a secret-shared number. It never holds the
// plaintext. Until a value is first used in a task it holds the input
// shares produced by ShareFloat or ShareInt; after that each party holds
// its own share in a register and the handle only keeps the register
// number.
//
// SecretValue is safe to pass between goroutines but belongs to the
// runtime that created it.
type SecretValue struct {
	kind  Kind
	owner *Runtime

	mu     sync.Mutex
	reg    uint64
	shares []field.Element
	freed  bool
}

// Kind returns the numeric kind of v.
func (v *SecretValue) Kind() Kind {
	return v.kind
}

// String describes v without revealing anything about its value.
func (v *SecretValue) String() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	switch {
	case v.freed:
		return fmt.Sprintf("secret %s (freed)", v.kind)
	case v.reg == 0:
		return fmt.Sprintf("secret %s (unbound)", v.kind)
	}
	return fmt.Sprintf("secret %s #%d", v.kind, v.reg)
}

func newBound(owner *Runtime, kind Kind, reg uint64) *SecretValue {
	return &SecretValue{kind: kind, owner: owner, reg: reg}
}

// split returns n additive shares of e drawn from rt's input entropy.
func (rt *Runtime) split(e field.Element) ([]field.Element, error) {
	n := rt.cfg.Parties
	shares := make([]field.Element, n)
	last := rt.field.NewElement().Set(e)
	for i := 1; i < n; i++ {
		s, err := rt.field.RandomElement(rt.inputRand)
		if err != nil {
			return nil, errors.Wrap(err, "mpc: splitting input")
		}
		shares[i] = s
		last.Sub(last, s)
	}
	shares[0] = last
	return shares, nil
}

// ShareFloat splits x into fresh random shares, one per party. The runtime
// need not be started; shares are delivered when the value is first used.
func (rt *Runtime) ShareFloat(x float64) (*SecretValue, error) {
	e, err := rt.codec.EncodeFloat(x)
	if err != nil {
		return nil, err
	}
	return rt.share(KindFloat, e)
}

// ShareInt splits v into fresh random shares, one per party.
func (rt *Runtime) ShareInt(v int64) (*SecretValue, error) {
	e, err := rt.codec.EncodeInt(v)
	if err != nil {
		return nil, err
	}
	return rt.share(KindInt, e)
}

func (rt *Runtime) share(kind Kind, e field.Element) (*SecretValue, error) {
	shares, err := rt.split(e)
	e.SetInt64(0)
	if err != nil {
		return nil, err
	}
	return &SecretValue{kind: kind, owner: rt, shares: shares}, nil
}
