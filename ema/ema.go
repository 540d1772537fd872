package ema

import (
	"context"

	"github.com/f3rmion/secema/mpc"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

var (
	// ErrInvalidPeriod is returned for a period of -1 or less.
	ErrInvalidPeriod = errors.New("ema: period must be greater than -1")
	// ErrInvalidInput is returned for an empty price series or a nil price.
	ErrInvalidInput = errors.New("ema: invalid price series")
)

// Engine is what the protocol needs from a session. *session.Session
// satisfies it.
type Engine interface {
	SecureFloat(x float64) (*mpc.SecretValue, error)
	Run(ctx context.Context, fn func(*mpc.Task) error) error
}

// Multiplier returns the smoothing factor 2/(period+1).
func Multiplier(period int) (float64, error) {
	if period <= -1 {
		return 0, errors.Wrapf(ErrInvalidPeriod, "got %d", period)
	}
	return 2 / float64(period+1), nil
}

func validate(prices []*mpc.SecretValue, period int) (float64, error) {
	m, err := Multiplier(period)
	if err != nil {
		return 0, err
	}
	if len(prices) == 0 {
		return 0, errors.Wrap(ErrInvalidInput, "no prices")
	}
	for i, p := range prices {
		if p == nil {
			return 0, errors.Wrapf(ErrInvalidInput, "price %d is nil", i)
		}
	}
	return m, nil
}

// Compute returns the secret EMA of prices. The whole fold runs as one
// task on e's scheduler. A single price is returned unchanged.
//
// Any failure inside the computation is returned as an
// *mpc.ComputationError; the engine must then be discarded.
func Compute(ctx context.Context, e Engine, prices []*mpc.SecretValue, period int) (*mpc.SecretValue, error) {
	var out *mpc.SecretValue
	err := fold(ctx, e, prices, period, func(t *mpc.Task, prev, next *mpc.SecretValue) error {
		if prev != prices[0] {
			if err := t.Free(prev); err != nil {
				return err
			}
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = prices[0]
	}
	return out, nil
}

// Series returns the secret EMA after every price: element i averages
// prices[0..i]. The first element is prices[0].
func Series(ctx context.Context, e Engine, prices []*mpc.SecretValue, period int) ([]*mpc.SecretValue, error) {
	var out []*mpc.SecretValue
	err := fold(ctx, e, prices, period, func(_ *mpc.Task, _, next *mpc.SecretValue) error {
		out = append(out, next)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return append([]*mpc.SecretValue{prices[0]}, out...), nil
}

// fold runs the recurrence as one task, calling step with the previous and
// the new average after every price.
func fold(ctx context.Context, e Engine, prices []*mpc.SecretValue, period int,
	step func(t *mpc.Task, prev, next *mpc.SecretValue) error) error {
	m, err := validate(prices, period)
	if err != nil {
		return err
	}
	multiplier, err := e.SecureFloat(m)
	if err != nil {
		return errors.Wrap(err, "ema: sharing multiplier")
	}

	jww.DEBUG.Printf("ema: folding %d prices with period %d", len(prices), period)
	return e.Run(ctx, func(t *mpc.Task) (err error) {
		defer release(t, multiplier, &err)
		if len(prices) == 1 {
			return nil
		}

		rest, err := t.SubFromConst(1, multiplier)
		if err != nil {
			return err
		}
		defer release(t, rest, &err)

		acc := prices[0]
		for _, p := range prices[1:] {
			next, err := update(t, acc, p, multiplier, rest)
			if err != nil {
				return err
			}
			if err := step(t, acc, next); err != nil {
				return err
			}
			acc = next
		}
		return nil
	})
}

// release frees v, reporting the failure through err unless err already
// holds an earlier one.
func release(t *mpc.Task, v *mpc.SecretValue, err *error) {
	ferr := t.Free(v)
	if ferr == nil {
		return
	}
	if *err != nil {
		jww.WARN.Printf("ema: freeing %s: %v", v, ferr)
		return
	}
	*err = errors.Wrap(ferr, "ema: freeing intermediate")
}

// update returns p*m + acc*rest.
func update(t *mpc.Task, acc, p, m, rest *mpc.SecretValue) (*mpc.SecretValue, error) {
	weighted, err := t.Mul(p, m)
	if err != nil {
		return nil, err
	}
	carried, err := t.Mul(acc, rest)
	if err != nil {
		return nil, err
	}
	next, err := t.Add(weighted, carried)
	if err != nil {
		return nil, err
	}
	if err := t.Free(weighted); err != nil {
		return nil, err
	}
	return next, t.Free(carried)
}

// Plain computes the same recurrence over plaintext prices the caller
// already holds.
func Plain(prices []float64, period int) (float64, error) {
	m, err := Multiplier(period)
	if err != nil {
		return 0, err
	}
	if len(prices) == 0 {
		return 0, errors.Wrap(ErrInvalidInput, "no prices")
	}
	acc := prices[0]
	for _, p := range prices[1:] {
		acc = p*m + acc*(1-m)
	}
	return acc, nil
}
