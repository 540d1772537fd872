package bn254

import (
	"math/big"
	"testing"

	"github.com/f3rmion/secema/field/fieldtest"
	"github.com/stretchr/testify/require"
)

func TestElement(t *testing.T) {
	fieldtest.Run(t, &Fr{})
}

func TestModulus(t *testing.T) {
	want, ok := new(big.Int).SetString("21888242871839275222246405745257275088548364400416034343698204186575808495617", 10)
	require.True(t, ok)
	require.Zero(t, want.Cmp((&Fr{}).Order()))
}
