package mpc

import (
	"context"
	"io"
	"math/big"

	"github.com/f3rmion/secema/field"
	"github.com/f3rmion/secema/fixed"
	"github.com/f3rmion/secema/transport"
	"github.com/pkg/errors"
)

const (
	labelTriple = "triple"
	labelTrunc  = "trunc"
)

// dealer is the trusted preprocessing endpoint. It shares a seed with every
// party; parties 1..n-1 derive their preprocessing shares from their seed
// alone, and the dealer sends party 0 the correction that makes the shares
// add up.
type dealer struct {
	id    int
	field field.Field
	codec *fixed.Codec
	box   *mailbox
	seeds [][]byte
	own   []byte
}

// distribute sends every party its seed.
func (d *dealer) distribute(ctx context.Context, seq uint64) error {
	for i, seed := range d.seeds {
		if err := d.box.send(ctx, i, seq, transport.TagSetup, seed); err != nil {
			return errors.Wrapf(err, "sending setup seed to party %d", i)
		}
	}
	return nil
}

// partyTriple returns party i's shares (a, b, c) of the triple for step
// seq. Party 0's c is not derivable from its seed and is returned as nil.
func partyTriple(f field.Field, seed []byte, party int, seq uint64) (a, b, c field.Element, err error) {
	r, err := stream(seed, labelTriple, seq)
	if err != nil {
		return nil, nil, nil, err
	}
	if a, err = f.RandomElement(r); err != nil {
		return nil, nil, nil, err
	}
	if b, err = f.RandomElement(r); err != nil {
		return nil, nil, nil, err
	}
	if party == 0 {
		return a, b, nil, nil
	}
	if c, err = f.RandomElement(r); err != nil {
		return nil, nil, nil, err
	}
	return a, b, c, nil
}

// triple completes the Beaver triple for step seq by sending party 0 its
// share of c = a*b.
func (d *dealer) triple(ctx context.Context, seq uint64) error {
	a, b := d.field.NewElement(), d.field.NewElement()
	cRest := d.field.NewElement()
	for i, seed := range d.seeds {
		ai, bi, ci, err := partyTriple(d.field, seed, i, seq)
		if err != nil {
			return err
		}
		a.Add(a, ai)
		b.Add(b, bi)
		if ci != nil {
			cRest.Add(cRest, ci)
		}
	}
	c0 := d.field.NewElement().Mul(a, b)
	c0.Sub(c0, cRest)
	return d.box.send(ctx, 0, seq, transport.TagDealer, encodeElems(d.field, c0))
}

// partyTrunc returns party i's shares of the truncation pair (r, r>>f) for
// step seq. Party 0's shares come from the dealer and are returned as nil.
func partyTrunc(f field.Field, seed []byte, party int, seq uint64) (r, rHigh field.Element, err error) {
	if party == 0 {
		return nil, nil, nil
	}
	s, err := stream(seed, labelTrunc, seq)
	if err != nil {
		return nil, nil, err
	}
	if r, err = f.RandomElement(s); err != nil {
		return nil, nil, err
	}
	if rHigh, err = f.RandomElement(s); err != nil {
		return nil, nil, err
	}
	return r, rHigh, nil
}

// maskBits is the bit length of truncation masks.
func maskBits(c *fixed.Codec) uint {
	return c.BoundBits() + fixed.StatBits
}

// randomMask draws r uniformly from [0, 2^bits).
func randomMask(r io.Reader, bits uint) (*big.Int, error) {
	buf, err := randomBytes(r, int((bits+7)/8))
	if err != nil {
		return nil, err
	}
	v := new(big.Int).SetBytes(buf)
	return v.And(v, new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), bits), big.NewInt(1))), nil
}

// trunc draws a fresh mask r for step seq and sends party 0 its shares of
// r and r >> FracBits.
func (d *dealer) trunc(ctx context.Context, seq uint64) error {
	own, err := stream(d.own, labelTrunc, seq)
	if err != nil {
		return err
	}
	mask, err := randomMask(own, maskBits(d.codec))
	if err != nil {
		return err
	}
	r0 := d.field.NewElement().SetBigInt(mask)
	rHigh0 := d.field.NewElement().SetBigInt(new(big.Int).Rsh(mask, d.codec.FracBits()))
	for i := 1; i < len(d.seeds); i++ {
		ri, rHighi, err := partyTrunc(d.field, d.seeds[i], i, seq)
		if err != nil {
			return err
		}
		r0.Sub(r0, ri)
		rHigh0.Sub(rHigh0, rHighi)
	}
	return d.box.send(ctx, 0, seq, transport.TagDealer, encodeElems(d.field, r0, rHigh0))
}

func (d *dealer) wipe() {
	for _, s := range d.seeds {
		zero(s)
	}
	zero(d.own)
}
