// Package fieldtest holds a conformance suite shared by field implementations.
package fieldtest

import (
	"bytes"
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/f3rmion/secema/field"
	"github.com/stretchr/testify/require"
)

// Run exercises f against the [field.Element] and [field.Field] contracts.
func Run(t *testing.T, f field.Field) {
	t.Run("AddSub", func(t *testing.T) {
		a, err := f.RandomElement(rand.Reader)
		require.NoError(t, err)
		b, err := f.RandomElement(rand.Reader)
		require.NoError(t, err)

		sum := f.NewElement().Add(a, b)
		diff := f.NewElement().Sub(sum, b)
		require.True(t, diff.Equal(a), "(a+b)-b != a")
	})

	t.Run("MulMatchesBigInt", func(t *testing.T) {
		a, _ := f.RandomElement(rand.Reader)
		b, _ := f.RandomElement(rand.Reader)

		want := new(big.Int).Mul(a.BigInt(), b.BigInt())
		want.Mod(want, f.Order())
		got := f.NewElement().Mul(a, b).BigInt()
		require.Zero(t, want.Cmp(got))
	})

	t.Run("Negate", func(t *testing.T) {
		a, _ := f.RandomElement(rand.Reader)
		negA := f.NewElement().Negate(a)
		require.True(t, f.NewElement().Add(a, negA).IsZero())
	})

	t.Run("SetInt64Negative", func(t *testing.T) {
		e := f.NewElement().SetInt64(-5)
		want := new(big.Int).Sub(f.Order(), big.NewInt(5))
		require.Zero(t, want.Cmp(e.BigInt()))
		require.Equal(t, int64(-5), field.Signed(f, e).Int64())
	})

	t.Run("SetBigIntReduces", func(t *testing.T) {
		v := new(big.Int).Add(f.Order(), big.NewInt(7))
		require.Equal(t, int64(7), f.NewElement().SetBigInt(v).BigInt().Int64())

		neg := new(big.Int).Neg(v)
		require.Equal(t, int64(-7), field.Signed(f, f.NewElement().SetBigInt(neg)).Int64())
	})

	t.Run("BytesRoundtrip", func(t *testing.T) {
		a, _ := f.RandomElement(rand.Reader)

		enc := a.Bytes()
		require.Len(t, enc, f.ByteLen())
		restored, err := f.NewElement().SetBytes(enc)
		require.NoError(t, err)
		require.True(t, restored.Equal(a))
	})

	t.Run("SetBytesRejects", func(t *testing.T) {
		_, err := f.NewElement().SetBytes([]byte{1, 2, 3})
		require.Error(t, err)

		tooBig := make([]byte, f.ByteLen())
		f.Order().FillBytes(tooBig)
		_, err = f.NewElement().SetBytes(tooBig)
		require.Error(t, err)
	})

	t.Run("NewElementIsZero", func(t *testing.T) {
		require.True(t, f.NewElement().IsZero())
	})

	t.Run("RandomElementDeterministicReader", func(t *testing.T) {
		seed := bytes.Repeat([]byte{0xAB}, field.RandomBytes(f))
		a, err := f.RandomElement(bytes.NewReader(seed))
		require.NoError(t, err)
		b, err := f.RandomElement(bytes.NewReader(seed))
		require.NoError(t, err)
		require.True(t, a.Equal(b))
	})

	t.Run("RandomElementShortRead", func(t *testing.T) {
		_, err := f.RandomElement(bytes.NewReader([]byte{1}))
		require.Error(t, err)
	})

	t.Run("Registered", func(t *testing.T) {
		got, err := field.ByName(f.Name())
		require.NoError(t, err)
		require.Equal(t, f.Name(), got.Name())
	})
}
