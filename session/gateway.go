package session

import (
	"context"

	"github.com/f3rmion/secema/mpc"
)

// Gateway converts plaintext numbers into secret values and revealed
// results back into plaintext.
type Gateway struct {
	rt *mpc.Runtime
}

// Gateway returns the session's gateway.
func (s *Session) Gateway() *Gateway { return s.gw }

// SecureFloat is shorthand for s.Gateway().SecureFloat.
func (s *Session) SecureFloat(x float64) (*mpc.SecretValue, error) { return s.gw.SecureFloat(x) }

// SecureInt is shorthand for s.Gateway().SecureInt.
func (s *Session) SecureInt(v int64) (*mpc.SecretValue, error) { return s.gw.SecureInt(v) }

// Reveal is shorthand for s.Gateway().Reveal.
func (s *Session) Reveal(ctx context.Context, v *mpc.SecretValue) (float64, error) {
	return s.gw.Reveal(ctx, v)
}

// SecureFloat splits x into random shares. It works in any session state;
// the shares reach the parties when the value is first used.
func (g *Gateway) SecureFloat(x float64) (*mpc.SecretValue, error) {
	return g.rt.ShareFloat(x)
}

// SecureInt splits v into random shares.
func (g *Gateway) SecureInt(v int64) (*mpc.SecretValue, error) {
	return g.rt.ShareInt(v)
}

// Reveal reconstructs v for the caller. The parties never see the result.
func (g *Gateway) Reveal(ctx context.Context, v *mpc.SecretValue) (float64, error) {
	var out float64
	err := g.rt.Run(ctx, func(t *mpc.Task) error {
		var err error
		out, err = t.Reveal(v)
		return err
	})
	return out, err
}

// RevealInt reconstructs an int value.
func (g *Gateway) RevealInt(ctx context.Context, v *mpc.SecretValue) (int64, error) {
	var out int64
	err := g.rt.Run(ctx, func(t *mpc.Task) error {
		var err error
		out, err = t.RevealInt(v)
		return err
	})
	return out, err
}
