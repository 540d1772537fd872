package mpc

import (
	"context"
	"math/big"

	"github.com/f3rmion/secema/field"
	"github.com/f3rmion/secema/fixed"
	"github.com/f3rmion/secema/transport"
	"github.com/pkg/errors"
)

type opcode uint8

const (
	opSetup opcode = iota + 1
	opInput
	opAdd
	opSub
	opNeg
	opAddConst
	opMulConst
	opMul
	opTrunc
	opReveal
	opFree
)

var opNames = map[opcode]string{
	opSetup:    "setup",
	opInput:    "input",
	opAdd:      "add",
	opSub:      "sub",
	opNeg:      "neg",
	opAddConst: "addc",
	opMulConst: "mulc",
	opMul:      "mul",
	opTrunc:    "trunc",
	opReveal:   "reveal",
	opFree:     "free",
}

func (o opcode) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	return "unknown"
}

// instr is one step of the lock-step program every party executes.
type instr struct {
	ctx   context.Context
	seq   uint64
	op    opcode
	dst   uint64
	a, b  uint64
	konst field.Element
	reply chan<- outcome
}

type outcome struct {
	party int
	err   error
}

// party holds one party's shares and executes instructions against them.
type party struct {
	id     int
	n      int
	dealer int
	client int
	field  field.Field
	codec  *fixed.Codec
	box    *mailbox
	seed   []byte
	regs   map[uint64]field.Element
	inbox  chan *instr
}

func (p *party) loop() {
	for in := range p.inbox {
		err := p.step(in)
		in.reply <- outcome{party: p.id, err: err}
	}
	zero(p.seed)
	p.regs = nil
}

func (p *party) reg(id uint64) (field.Element, error) {
	e, ok := p.regs[id]
	if !ok {
		return nil, errors.Errorf("party %d has no register %d", p.id, id)
	}
	return e, nil
}

func (p *party) peers() []int {
	out := make([]int, 0, p.n-1)
	for i := 0; i < p.n; i++ {
		if i != p.id {
			out = append(out, i)
		}
	}
	return out
}

func (p *party) step(in *instr) error {
	switch in.op {
	case opSetup:
		m, err := p.box.await(in.ctx, in.seq, transport.TagSetup, p.dealer)
		if err != nil {
			return err
		}
		if len(m.Payload) != seedLen {
			return errors.Errorf("setup seed of %d bytes", len(m.Payload))
		}
		p.seed = m.Payload
		return nil

	case opInput:
		m, err := p.box.await(in.ctx, in.seq, transport.TagInput, p.client)
		if err != nil {
			return err
		}
		elems, err := decodeElems(p.field, m.Payload, 1)
		if err != nil {
			return err
		}
		p.regs[in.dst] = elems[0]
		return nil

	case opAdd, opSub:
		a, err := p.reg(in.a)
		if err != nil {
			return err
		}
		b, err := p.reg(in.b)
		if err != nil {
			return err
		}
		if in.op == opAdd {
			p.regs[in.dst] = p.field.NewElement().Add(a, b)
		} else {
			p.regs[in.dst] = p.field.NewElement().Sub(a, b)
		}
		return nil

	case opNeg:
		a, err := p.reg(in.a)
		if err != nil {
			return err
		}
		p.regs[in.dst] = p.field.NewElement().Negate(a)
		return nil

	case opAddConst:
		a, err := p.reg(in.a)
		if err != nil {
			return err
		}
		out := p.field.NewElement().Set(a)
		if p.id == 0 {
			out.Add(out, in.konst)
		}
		p.regs[in.dst] = out
		return nil

	case opMulConst:
		a, err := p.reg(in.a)
		if err != nil {
			return err
		}
		p.regs[in.dst] = p.field.NewElement().Mul(a, in.konst)
		return nil

	case opMul:
		return p.mul(in)

	case opTrunc:
		return p.trunc(in)

	case opReveal:
		a, err := p.reg(in.a)
		if err != nil {
			return err
		}
		return p.box.send(in.ctx, p.client, in.seq, transport.TagReveal, encodeElems(p.field, a))

	case opFree:
		delete(p.regs, in.a)
		return nil
	}
	return errors.Errorf("unknown opcode %d", in.op)
}

// broadcast sends payload to every other party.
func (p *party) broadcast(ctx context.Context, seq uint64, payload []byte) error {
	for _, j := range p.peers() {
		if err := p.box.send(ctx, j, seq, transport.TagOpen, payload); err != nil {
			return err
		}
	}
	return nil
}

// open broadcasts this party's shares of count values and returns the
// opened values.
func (p *party) open(ctx context.Context, seq uint64, mine ...field.Element) ([]field.Element, error) {
	if err := p.broadcast(ctx, seq, encodeElems(p.field, mine...)); err != nil {
		return nil, err
	}
	theirs, err := p.box.gather(ctx, p.field, seq, transport.TagOpen, p.peers(), len(mine))
	if err != nil {
		return nil, err
	}
	out := make([]field.Element, len(mine))
	for k := range mine {
		out[k] = p.field.NewElement().Set(mine[k])
		for _, t := range theirs {
			out[k].Add(out[k], t[k])
		}
	}
	return out, nil
}

// mul multiplies two registers with a Beaver triple (a, b, c = ab):
// open d = x - a and e = y - b, then xy = c + d*b + e*a + d*e.
func (p *party) mul(in *instr) error {
	x, err := p.reg(in.a)
	if err != nil {
		return err
	}
	y, err := p.reg(in.b)
	if err != nil {
		return err
	}
	a, b, c, err := partyTriple(p.field, p.seed, p.id, in.seq)
	if err != nil {
		return err
	}
	if p.id == 0 {
		m, err := p.box.await(in.ctx, in.seq, transport.TagDealer, p.dealer)
		if err != nil {
			return err
		}
		elems, err := decodeElems(p.field, m.Payload, 1)
		if err != nil {
			return err
		}
		c = elems[0]
	}

	d := p.field.NewElement().Sub(x, a)
	e := p.field.NewElement().Sub(y, b)
	opened, err := p.open(in.ctx, in.seq, d, e)
	if err != nil {
		return err
	}
	d, e = opened[0], opened[1]

	z := p.field.NewElement().Set(c)
	z.Add(z, p.field.NewElement().Mul(d, b))
	z.Add(z, p.field.NewElement().Mul(e, a))
	if p.id == 0 {
		z.Add(z, p.field.NewElement().Mul(d, e))
	}
	p.regs[in.dst] = z
	return nil
}

// trunc divides a register by 2^FracBits, rounding down or up by at most
// one unit. With |x| < 2^(k-1), c = x + 2^(k-1) + r never wraps, so
// (c >> f) - (r >> f) - 2^(k-1-f) equals x >> f plus a carry of 0 or 1.
func (p *party) trunc(in *instr) error {
	x, err := p.reg(in.a)
	if err != nil {
		return err
	}
	r, rHigh, err := partyTrunc(p.field, p.seed, p.id, in.seq)
	if err != nil {
		return err
	}
	k := p.codec.BoundBits()
	f := p.codec.FracBits()
	bias := new(big.Int).Lsh(big.NewInt(1), k-1)

	if p.id == 0 {
		m, err := p.box.await(in.ctx, in.seq, transport.TagDealer, p.dealer)
		if err != nil {
			return err
		}
		elems, err := decodeElems(p.field, m.Payload, 2)
		if err != nil {
			return err
		}
		r, rHigh = elems[0], elems[1]
	}

	masked := p.field.NewElement().Add(x, r)
	if p.id == 0 {
		masked.Add(masked, p.field.NewElement().SetBigInt(bias))
	}
	opened, err := p.open(in.ctx, in.seq, masked)
	if err != nil {
		return err
	}

	z := p.field.NewElement().Negate(rHigh)
	if p.id == 0 {
		c := opened[0].BigInt()
		c.Rsh(c, f)
		c.Sub(c, new(big.Int).Rsh(bias, f))
		z.Add(z, p.field.NewElement().SetBigInt(c))
	}
	p.regs[in.dst] = z
	return nil
}
