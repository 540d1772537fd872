package mpc

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/f3rmion/secema/bjj"
	"github.com/f3rmion/secema/bn254"
	"github.com/f3rmion/secema/field"
	"github.com/f3rmion/secema/transport"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// Truncation may be off by one unit in the last place per multiplication.
const tolerance = 1e-6

var fields = []field.Field{&bn254.Fr{}, &bjj.BJJ{}}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func startRuntime(t *testing.T, cfg Config) *Runtime {
	rt, err := NewRuntime(cfg)
	require.NoError(t, err)
	require.NoError(t, rt.Start(testCtx(t)))
	t.Cleanup(func() { _ = rt.Shutdown(context.Background()) })
	return rt
}

func TestConfigValidation(t *testing.T) {
	_, err := NewRuntime(Config{Parties: 1})
	require.Error(t, err)
	_, err = NewRuntime(Config{Parties: maxParties + 1})
	require.Error(t, err)
	_, err = NewRuntime(Config{Seed: []byte("short")})
	require.Error(t, err)

	rt, err := NewRuntime(Config{})
	require.NoError(t, err)
	require.Equal(t, DefaultParties, rt.Parties())
	require.Equal(t, bn254.Name, rt.Field().Name())
	require.Equal(t, DefaultParties+2, Config{}.Endpoints())
	require.Len(t, rt.ID(), 16)
}

func TestLifecycle(t *testing.T) {
	ctx := testCtx(t)
	rt, err := NewRuntime(Config{})
	require.NoError(t, err)

	noop := func(*Task) error { return nil }
	require.ErrorIs(t, rt.Run(ctx, noop), ErrNotStarted)

	require.NoError(t, rt.Start(ctx))
	require.ErrorIs(t, rt.Start(ctx), ErrAlreadyStarted)
	require.NoError(t, rt.Run(ctx, noop))

	require.NoError(t, rt.Shutdown(ctx))
	require.NoError(t, rt.Shutdown(ctx))
	require.ErrorIs(t, rt.Run(ctx, noop), ErrClosed)
	require.ErrorIs(t, rt.Start(ctx), ErrClosed)
}

func TestShutdownBeforeStart(t *testing.T) {
	ctx := testCtx(t)
	rt, err := NewRuntime(Config{})
	require.NoError(t, err)
	require.NoError(t, rt.Shutdown(ctx))
	require.ErrorIs(t, rt.Start(ctx), ErrClosed)
	require.ErrorIs(t, rt.Run(ctx, func(*Task) error { return nil }), ErrClosed)
}

func TestRunReturnsTaskError(t *testing.T) {
	rt := startRuntime(t, Config{})
	boom := errors.New("boom")
	err := rt.Run(testCtx(t), func(*Task) error { return boom })
	require.ErrorIs(t, err, boom)
	require.False(t, IsComputationError(err))

	// A plain task error does not poison the runtime.
	require.NoError(t, rt.Run(testCtx(t), func(*Task) error { return nil }))
}

func TestArithmetic(t *testing.T) {
	for _, f := range fields {
		for _, parties := range []int{2, 3, 5} {
			t.Run(fmt.Sprintf("%s/%d", f.Name(), parties), func(t *testing.T) {
				rt := startRuntime(t, Config{Field: f, Parties: parties})
				x, err := rt.ShareFloat(3.25)
				require.NoError(t, err)
				y, err := rt.ShareFloat(-1.5)
				require.NoError(t, err)
				i, err := rt.ShareInt(7)
				require.NoError(t, err)
				j, err := rt.ShareInt(-3)
				require.NoError(t, err)

				err = rt.Run(testCtx(t), func(tk *Task) error {
					reveal := func(v *SecretValue, err error) float64 {
						require.NoError(t, err)
						got, err := tk.Reveal(v)
						require.NoError(t, err)
						return got
					}
					revealInt := func(v *SecretValue, err error) int64 {
						require.NoError(t, err)
						require.Equal(t, KindInt, v.Kind())
						got, err := tk.RevealInt(v)
						require.NoError(t, err)
						return got
					}

					require.InDelta(t, 1.75, reveal(tk.Add(x, y)), tolerance)
					require.InDelta(t, 4.75, reveal(tk.Sub(x, y)), tolerance)
					require.InDelta(t, -3.25, reveal(tk.Neg(x)), tolerance)
					require.InDelta(t, -4.875, reveal(tk.Mul(x, y)), tolerance)
					require.InDelta(t, 22.75, reveal(tk.Mul(i, x)), tolerance)
					require.InDelta(t, 4.25, reveal(tk.AddConst(x, 1)), tolerance)
					require.InDelta(t, -2.25, reveal(tk.SubFromConst(1, x)), tolerance)
					require.InDelta(t, 1.625, reveal(tk.MulConst(x, 0.5)), tolerance)
					require.InDelta(t, 3.5, reveal(tk.MulConst(i, 0.5)), tolerance)

					require.Equal(t, int64(4), revealInt(tk.Add(i, j)))
					require.Equal(t, int64(10), revealInt(tk.Sub(i, j)))
					require.Equal(t, int64(-21), revealInt(tk.Mul(i, j)))
					require.Equal(t, int64(9), revealInt(tk.AddConst(i, 2)))
					require.Equal(t, int64(-14), revealInt(tk.MulConst(i, -2)))
					require.Equal(t, int64(-6), revealInt(tk.SubFromConst(1, i)))
					return nil
				})
				require.NoError(t, err)
			})
		}
	}
}

func TestChainedMultiplication(t *testing.T) {
	rt := startRuntime(t, Config{})
	v, err := rt.ShareFloat(1.1)
	require.NoError(t, err)
	want := 1.1
	err = rt.Run(testCtx(t), func(tk *Task) error {
		acc := v
		for range 10 {
			next, err := tk.Mul(acc, v)
			if err != nil {
				return err
			}
			want *= 1.1
			acc = next
		}
		got, err := tk.Reveal(acc)
		if err != nil {
			return err
		}
		require.InDelta(t, want, got, 1e-5)
		return nil
	})
	require.NoError(t, err)
}

func TestKindRules(t *testing.T) {
	rt := startRuntime(t, Config{})
	x, err := rt.ShareFloat(1)
	require.NoError(t, err)
	i, err := rt.ShareInt(1)
	require.NoError(t, err)

	err = rt.Run(testCtx(t), func(tk *Task) error {
		_, err := tk.Add(x, i)
		require.ErrorIs(t, err, ErrKindMismatch)
		_, err = tk.Sub(i, x)
		require.ErrorIs(t, err, ErrKindMismatch)
		_, err = tk.AddConst(i, 0.5)
		require.ErrorIs(t, err, ErrKindMismatch)
		_, err = tk.RevealInt(x)
		require.ErrorIs(t, err, ErrKindMismatch)

		got, err := tk.Reveal(i)
		require.NoError(t, err)
		require.Equal(t, 1.0, got)
		return nil
	})
	require.NoError(t, err)
}

func TestForeignAndFreedValues(t *testing.T) {
	a := startRuntime(t, Config{})
	b := startRuntime(t, Config{})
	foreign, err := b.ShareFloat(2)
	require.NoError(t, err)
	own, err := a.ShareFloat(2)
	require.NoError(t, err)
	unused, err := a.ShareFloat(5)
	require.NoError(t, err)

	err = a.Run(testCtx(t), func(tk *Task) error {
		_, err := tk.Add(own, foreign)
		require.ErrorIs(t, err, ErrForeignValue)
		require.ErrorIs(t, tk.Free(foreign), ErrForeignValue)

		sum, err := tk.Add(own, own)
		require.NoError(t, err)
		require.NoError(t, tk.Free(sum))
		require.NoError(t, tk.Free(sum))
		_, err = tk.Reveal(sum)
		require.ErrorIs(t, err, ErrFreed)

		require.NoError(t, tk.Free(unused))
		require.Contains(t, unused.String(), "freed")
		_, err = tk.Neg(unused)
		require.ErrorIs(t, err, ErrFreed)
		return nil
	})
	require.NoError(t, err)
}

func TestTaskOutlivesRun(t *testing.T) {
	rt := startRuntime(t, Config{})
	x, err := rt.ShareFloat(1)
	require.NoError(t, err)
	var leaked *Task
	require.NoError(t, rt.Run(testCtx(t), func(tk *Task) error {
		leaked = tk
		return nil
	}))
	_, err = leaked.Neg(x)
	require.ErrorIs(t, err, ErrTaskDone)
}

func TestFailedFreeKeepsValueLive(t *testing.T) {
	rt := startRuntime(t, Config{})
	x, err := rt.ShareFloat(1.5)
	require.NoError(t, err)
	var leaked *Task
	var y *SecretValue
	require.NoError(t, rt.Run(testCtx(t), func(tk *Task) error {
		leaked = tk
		y, err = tk.Neg(x)
		return err
	}))

	require.ErrorIs(t, leaked.Free(y), ErrTaskDone)
	require.NotContains(t, y.String(), "freed")

	require.NoError(t, rt.Run(testCtx(t), func(tk *Task) error {
		got, err := tk.Reveal(y)
		require.NoError(t, err)
		require.InDelta(t, -1.5, got, tolerance)
		require.NoError(t, tk.Free(y))
		require.Contains(t, y.String(), "freed")
		return nil
	}))
}

func TestNestedRun(t *testing.T) {
	rt := startRuntime(t, Config{})
	err := rt.Run(testCtx(t), func(tk *Task) error {
		return rt.Run(tk.Context(), func(*Task) error { return nil })
	})
	require.ErrorIs(t, err, ErrNestedRun)
}

func TestPanicPoisons(t *testing.T) {
	rt := startRuntime(t, Config{})
	err := rt.Run(testCtx(t), func(*Task) error { panic("bad task") })
	require.True(t, IsComputationError(err))
	require.ErrorIs(t, rt.Run(testCtx(t), func(*Task) error { return nil }), ErrPoisoned)
}

func TestTasksDoNotOverlap(t *testing.T) {
	rt := startRuntime(t, Config{})
	var running atomic.Int32
	var order []int
	done := make(chan error, 8)
	for i := range 8 {
		go func() {
			done <- rt.Run(testCtx(t), func(*Task) error {
				if running.Add(1) != 1 {
					return errors.New("tasks overlapped")
				}
				defer running.Add(-1)
				order = append(order, i)
				time.Sleep(time.Millisecond)
				return nil
			})
		}()
	}
	for range 8 {
		require.NoError(t, <-done)
	}
	require.Len(t, order, 8)
}

// flakyNetwork fails, or silently drops with drop set, every send of tag
// from party 1 once armed.
type flakyNetwork struct {
	transport.Network
	tag   transport.Tag
	drop  bool
	armed atomic.Bool
}

type flakyConn struct {
	transport.Conn
	net *flakyNetwork
}

func (n *flakyNetwork) Dial(ctx context.Context, id int) (transport.Conn, error) {
	c, err := n.Network.Dial(ctx, id)
	if err != nil {
		return nil, err
	}
	return &flakyConn{Conn: c, net: n}, nil
}

func (c *flakyConn) Send(ctx context.Context, m *transport.Message) error {
	if c.net.armed.Load() && m.Tag == c.net.tag && m.From == 1 {
		if c.net.drop {
			return nil
		}
		return errors.New("link down")
	}
	return c.Conn.Send(ctx, m)
}

func TestTransportFailurePoisons(t *testing.T) {
	net := &flakyNetwork{Network: transport.NewLocal(DefaultParties + 2), tag: transport.TagOpen}
	rt := startRuntime(t, Config{Network: net})
	x, err := rt.ShareFloat(2)
	require.NoError(t, err)

	net.armed.Store(true)
	err = rt.Run(testCtx(t), func(tk *Task) error {
		_, err := tk.Mul(x, x)
		return err
	})
	var ce *ComputationError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, "mul", ce.Op)
	require.Equal(t, 1, ce.Party)
	require.Contains(t, err.Error(), "link down")

	net.armed.Store(false)
	err = rt.Run(testCtx(t), func(*Task) error { return nil })
	require.True(t, IsComputationError(err))
	require.ErrorIs(t, err, ErrPoisoned)

	require.NoError(t, rt.Shutdown(testCtx(t)))
}

func TestCancelledTaskPoisons(t *testing.T) {
	rt := startRuntime(t, Config{})
	x, err := rt.ShareFloat(2)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(testCtx(t))
	err = rt.Run(ctx, func(tk *Task) error {
		cancel()
		_, err := tk.Mul(x, x)
		return err
	})
	require.True(t, IsComputationError(err))
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, rt.Run(testCtx(t), func(*Task) error { return nil }), ErrPoisoned)
}

func TestShutdownDeadlineWithQueuedRun(t *testing.T) {
	net := &flakyNetwork{Network: transport.NewLocal(DefaultParties + 2), tag: transport.TagOpen, drop: true}
	rt, err := NewRuntime(Config{Network: net})
	require.NoError(t, err)
	require.NoError(t, rt.Start(testCtx(t)))
	x, err := rt.ShareFloat(2)
	require.NoError(t, err)

	net.armed.Store(true)
	started := make(chan struct{})
	stuck := make(chan error, 1)
	go func() {
		stuck <- rt.Run(context.Background(), func(tk *Task) error {
			close(started)
			_, err := tk.Mul(x, x)
			return err
		})
	}()
	<-started

	queued := make(chan error, 1)
	go func() {
		queued <- rt.Run(context.Background(), func(*Task) error { return nil })
	}()
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- rt.Shutdown(ctx) }()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(3 * time.Second):
		t.Fatal("Shutdown ignored its deadline")
	}
	require.ErrorIs(t, <-queued, ErrClosed)
	require.True(t, IsComputationError(<-stuck))
}

func TestSeededRuntimesAgree(t *testing.T) {
	seed := []byte("0123456789abcdef0123456789abcdef")
	compute := func() (string, float64) {
		rt := startRuntime(t, Config{Seed: seed})
		x, err := rt.ShareFloat(10)
		require.NoError(t, err)
		var got float64
		require.NoError(t, rt.Run(testCtx(t), func(tk *Task) error {
			y, err := tk.MulConst(x, 1.0/3)
			if err != nil {
				return err
			}
			got, err = tk.Reveal(y)
			return err
		}))
		return rt.ID(), got
	}
	id1, v1 := compute()
	id2, v2 := compute()
	require.Equal(t, id1, id2)
	require.Equal(t, v1, v2)
	require.InDelta(t, 10.0/3, v1, tolerance)
}

func TestSharesAreFresh(t *testing.T) {
	rt, err := NewRuntime(Config{})
	require.NoError(t, err)
	a, err := rt.ShareFloat(42)
	require.NoError(t, err)
	b, err := rt.ShareFloat(42)
	require.NoError(t, err)

	for i := range a.shares {
		require.False(t, a.shares[i].Equal(b.shares[i]), "share %d reused", i)
	}
	want, err := rt.Codec().EncodeFloat(42)
	require.NoError(t, err)
	require.True(t, field.Sum(rt.Field(), a.shares...).Equal(want))
	require.True(t, field.Sum(rt.Field(), b.shares...).Equal(want))
	require.Equal(t, KindFloat, a.Kind())
	require.Contains(t, a.String(), "unbound")
}

func TestSharedValueIsWipedOnUse(t *testing.T) {
	rt := startRuntime(t, Config{})
	x, err := rt.ShareInt(5)
	require.NoError(t, err)
	require.NoError(t, rt.Run(testCtx(t), func(tk *Task) error {
		_, err := tk.Neg(x)
		return err
	}))
	require.Nil(t, x.shares)
	require.NotZero(t, x.reg)
}

func TestOverWebSocket(t *testing.T) {
	cfg := Config{Parties: 3, SealLinks: true}
	relay := transport.NewRelay(cfg.Endpoints())
	srv := httptest.NewServer(relay)
	t.Cleanup(func() {
		_ = relay.Close()
		srv.Close()
	})
	cfg.Network = transport.NewWebSocket("ws" + strings.TrimPrefix(srv.URL, "http"))

	rt := startRuntime(t, cfg)
	x, err := rt.ShareFloat(1.5)
	require.NoError(t, err)
	y, err := rt.ShareFloat(4)
	require.NoError(t, err)
	require.NoError(t, rt.Run(testCtx(t), func(tk *Task) error {
		z, err := tk.Mul(x, y)
		if err != nil {
			return err
		}
		got, err := tk.Reveal(z)
		require.InDelta(t, 6.0, got, tolerance)
		return err
	}))
	require.NoError(t, rt.Shutdown(testCtx(t)))
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	rt := startRuntime(t, Config{Metrics: m})
	require.Equal(t, 1.0, testutil.ToFloat64(m.RuntimesAlive))

	x, err := rt.ShareFloat(2)
	require.NoError(t, err)
	require.NoError(t, rt.Run(testCtx(t), func(tk *Task) error {
		_, err := tk.Mul(x, x)
		return err
	}))
	require.Equal(t, 1.0, testutil.ToFloat64(m.TasksTotal.WithLabelValues("ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.OpsTotal.WithLabelValues("mul")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.OpsTotal.WithLabelValues("trunc")))
	require.Positive(t, testutil.ToFloat64(m.MessagesSent))

	require.NoError(t, rt.Shutdown(testCtx(t)))
	require.Equal(t, 0.0, testutil.ToFloat64(m.RuntimesAlive))

	var nilMetrics *Metrics
	nilMetrics.op("add")
	nilMetrics.observeTask(nil, time.Now())
}

func TestComputationErrorMessage(t *testing.T) {
	err := &ComputationError{Op: "mul", Party: 2, Err: errors.New("eof")}
	require.Equal(t, "mpc: secure computation failed in mul (party 2): eof", err.Error())
	err.Party = -1
	require.Equal(t, "mpc: secure computation failed in mul: eof", err.Error())
	require.True(t, IsComputationError(errors.Wrap(err, "outer")))
}
