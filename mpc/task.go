package mpc

import (
	"context"
	"math"
	"sync"

	"github.com/f3rmion/secema/field"
	"github.com/f3rmion/secema/transport"
	"github.com/pkg/errors"
)

// Task is the handle a function passed to Runtime.Run uses to compute on
// secret values. Every operation runs on all parties before it returns.
// A Task is only valid until its function returns.
type Task struct {
	rt  *Runtime
	ctx context.Context

	mu   sync.Mutex
	done bool
}

// Context returns the context the task was submitted with. It must not be
// passed to Run.
func (t *Task) Context() context.Context { return t.ctx }

func (t *Task) check() error {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()
	if done {
		return ErrTaskDone
	}
	return t.rt.poisoned("task")
}

// bind returns the register holding v, delivering v's input shares to the
// parties first if it has not been used yet.
func (t *Task) bind(v *SecretValue) (uint64, error) {
	if v == nil {
		return 0, errors.New("mpc: nil secret value")
	}
	if v.owner != t.rt {
		return 0, ErrForeignValue
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.freed {
		return 0, ErrFreed
	}
	if v.reg != 0 {
		return v.reg, nil
	}

	rt := t.rt
	reg := rt.allocReg()
	deliver := func(ctx context.Context, seq uint64) error {
		for i, s := range v.shares {
			if err := rt.client.send(ctx, i, seq, transport.TagInput, encodeElems(rt.field, s)); err != nil {
				return errors.Wrapf(err, "delivering input share to party %d", i)
			}
		}
		return nil
	}
	err := rt.exec(t.ctx, instr{op: opInput, dst: reg}, deliver)
	for _, s := range v.shares {
		s.SetInt64(0)
	}
	v.shares = nil
	if err != nil {
		v.freed = true
		return 0, err
	}
	v.reg = reg
	return reg, nil
}

func (t *Task) binary(op opcode, a, b *SecretValue) (uint64, uint64, error) {
	if err := t.check(); err != nil {
		return 0, 0, err
	}
	ra, err := t.bind(a)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "%s: left operand", op)
	}
	rb, err := t.bind(b)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "%s: right operand", op)
	}
	return ra, rb, nil
}

func (t *Task) linear(op opcode, a, b *SecretValue) (*SecretValue, error) {
	if a != nil && b != nil && a.kind != b.kind {
		return nil, errors.Wrapf(ErrKindMismatch, "%s of %s and %s", op, a.kind, b.kind)
	}
	ra, rb, err := t.binary(op, a, b)
	if err != nil {
		return nil, err
	}
	dst := t.rt.allocReg()
	if err := t.rt.exec(t.ctx, instr{op: op, dst: dst, a: ra, b: rb}, nil); err != nil {
		return nil, err
	}
	return newBound(t.rt, a.kind, dst), nil
}

// Add returns a + b. Both values must have the same kind.
func (t *Task) Add(a, b *SecretValue) (*SecretValue, error) {
	return t.linear(opAdd, a, b)
}

// Sub returns a - b. Both values must have the same kind.
func (t *Task) Sub(a, b *SecretValue) (*SecretValue, error) {
	return t.linear(opSub, a, b)
}

// Neg returns -a.
func (t *Task) Neg(a *SecretValue) (*SecretValue, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	ra, err := t.bind(a)
	if err != nil {
		return nil, err
	}
	dst := t.rt.allocReg()
	if err := t.rt.exec(t.ctx, instr{op: opNeg, dst: dst, a: ra}, nil); err != nil {
		return nil, err
	}
	return newBound(t.rt, a.kind, dst), nil
}

// Mul returns a * b. The product of two floats is truncated back to the
// codec scale, which may round the last fractional bit either way. The
// product of an int and a float is a float.
func (t *Task) Mul(a, b *SecretValue) (*SecretValue, error) {
	ra, rb, err := t.binary(opMul, a, b)
	if err != nil {
		return nil, err
	}
	rt := t.rt
	dst := rt.allocReg()
	if err := rt.exec(t.ctx, instr{op: opMul, dst: dst, a: ra, b: rb}, rt.dealer.triple); err != nil {
		return nil, err
	}
	switch {
	case a.kind == KindInt && b.kind == KindInt:
		return newBound(rt, KindInt, dst), nil
	case a.kind == KindFloat && b.kind == KindFloat:
		return t.truncate(dst)
	}
	return newBound(rt, KindFloat, dst), nil
}

// truncate scales the double-scale product in reg down to a float and
// frees reg.
func (t *Task) truncate(reg uint64) (*SecretValue, error) {
	rt := t.rt
	dst := rt.allocReg()
	if err := rt.exec(t.ctx, instr{op: opTrunc, dst: dst, a: reg}, rt.dealer.trunc); err != nil {
		return nil, err
	}
	if err := rt.exec(t.ctx, instr{op: opFree, a: reg}, nil); err != nil {
		return nil, err
	}
	return newBound(rt, KindFloat, dst), nil
}

// constant encodes c for combination with a value of kind k.
func (t *Task) constant(k Kind, c float64) (field.Element, error) {
	if k == KindFloat {
		return t.rt.codec.EncodeFloat(c)
	}
	if c != math.Trunc(c) || math.Abs(c) > math.MaxInt64/2 {
		return nil, errors.Wrapf(ErrKindMismatch, "non-integral constant %v with an int", c)
	}
	return t.rt.codec.EncodeInt(int64(c))
}

// AddConst returns a + c for a public constant c. An int value only
// accepts integral constants.
func (t *Task) AddConst(a *SecretValue, c float64) (*SecretValue, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	if a == nil {
		return nil, errors.New("mpc: nil secret value")
	}
	k, err := t.constant(a.kind, c)
	if err != nil {
		return nil, err
	}
	ra, err := t.bind(a)
	if err != nil {
		return nil, err
	}
	dst := t.rt.allocReg()
	if err := t.rt.exec(t.ctx, instr{op: opAddConst, dst: dst, a: ra, konst: k}, nil); err != nil {
		return nil, err
	}
	return newBound(t.rt, a.kind, dst), nil
}

// SubFromConst returns c - a for a public constant c.
func (t *Task) SubFromConst(c float64, a *SecretValue) (*SecretValue, error) {
	if a == nil {
		return nil, errors.New("mpc: nil secret value")
	}
	if _, err := t.constant(a.kind, c); err != nil {
		return nil, err
	}
	neg, err := t.Neg(a)
	if err != nil {
		return nil, err
	}
	out, err := t.AddConst(neg, c)
	if err != nil {
		return nil, err
	}
	return out, t.Free(neg)
}

// MulConst returns a * c for a public constant c. An int value times an
// integral constant stays an int; any other product is a float.
func (t *Task) MulConst(a *SecretValue, c float64) (*SecretValue, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	if a == nil {
		return nil, errors.New("mpc: nil secret value")
	}
	rt := t.rt
	kind := KindFloat
	k, err := rt.codec.EncodeFloat(c)
	if a.kind == KindInt && c == math.Trunc(c) {
		if k, err = rt.codec.EncodeInt(int64(c)); err == nil {
			kind = KindInt
		}
	}
	if err != nil {
		return nil, err
	}
	ra, err := t.bind(a)
	if err != nil {
		return nil, err
	}
	dst := rt.allocReg()
	if err := rt.exec(t.ctx, instr{op: opMulConst, dst: dst, a: ra, konst: k}, nil); err != nil {
		return nil, err
	}
	if a.kind == KindFloat {
		return t.truncate(dst)
	}
	return newBound(rt, kind, dst), nil
}

// open reconstructs a at the client. The parties send their shares to the
// client only and learn nothing.
func (t *Task) open(a *SecretValue) (field.Element, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	ra, err := t.bind(a)
	if err != nil {
		return nil, err
	}
	rt := t.rt
	if err := rt.exec(t.ctx, instr{op: opReveal, a: ra}, nil); err != nil {
		return nil, err
	}
	seq := rt.seq
	from := make([]int, rt.cfg.Parties)
	for i := range from {
		from[i] = i
	}
	shares, err := rt.client.gather(t.ctx, rt.field, seq, transport.TagReveal, from, 1)
	if err != nil {
		return nil, rt.fail(&ComputationError{Op: opReveal.String(), Party: -1, Err: err})
	}
	sum := rt.field.NewElement()
	for _, s := range shares {
		sum.Add(sum, s[0])
	}
	return sum, nil
}

// Reveal reconstructs a and returns it as a float64.
func (t *Task) Reveal(a *SecretValue) (float64, error) {
	e, err := t.open(a)
	if err != nil {
		return 0, err
	}
	if a.kind == KindInt {
		v, err := t.rt.codec.DecodeInt(e)
		if err != nil {
			return 0, err
		}
		return float64(v), nil
	}
	return t.rt.codec.DecodeFloat(e, t.rt.codec.FracBits()), nil
}

// RevealInt reconstructs an int value.
func (t *Task) RevealInt(a *SecretValue) (int64, error) {
	if a != nil && a.kind != KindInt {
		return 0, errors.Wrapf(ErrKindMismatch, "RevealInt of a %s", a.kind)
	}
	e, err := t.open(a)
	if err != nil {
		return 0, err
	}
	return t.rt.codec.DecodeInt(e)
}

// Free releases a's shares on every party. Freeing twice is a no-op.
func (t *Task) Free(a *SecretValue) error {
	if a == nil {
		return nil
	}
	if a.owner != t.rt {
		return ErrForeignValue
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.freed {
		return nil
	}
	if a.reg == 0 {
		a.freed = true
		for _, s := range a.shares {
			s.SetInt64(0)
		}
		a.shares = nil
		return nil
	}
	// The parties still hold the register until the free lands.
	if err := t.check(); err != nil {
		return err
	}
	if err := t.rt.exec(t.ctx, instr{op: opFree, a: a.reg}, nil); err != nil {
		return err
	}
	a.freed = true
	return nil
}
