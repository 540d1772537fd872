// Package mpc implements a semi-honest secure-computation runtime based on
// additive secret sharing over a prime field.
//
// A [Runtime] connects n parties, a preprocessing dealer and a client
// endpoint over a [transport.Network]. Party i only ever holds its own
// share of each value; the client (the code calling this package) splits
// inputs into shares and receives output shares when a value is revealed.
//
// # Lifecycle
//
//	rt, err := mpc.NewRuntime(mpc.Config{Parties: 3})
//	x, err := rt.ShareFloat(10.5)  // allowed before Start
//	err = rt.Start(ctx)
//	err = rt.Run(ctx, func(t *mpc.Task) error {
//		y, err := t.MulConst(x, 2)
//		if err != nil {
//			return err
//		}
//		v, err := t.Reveal(y)
//		...
//	})
//	err = rt.Shutdown(ctx)
//
// Run submits a whole computation to the runtime's scheduler as one unit.
// Tasks run one at a time, in submission order, and every operation inside
// a task is executed by all parties in lock-step.
//
// # Arithmetic
//
// Addition and multiplication by public constants are local. Secret
// multiplication uses a Beaver triple and opens two masked values. Reals
// are fixed-point numbers (see package fixed); a product of two reals is
// followed by probabilistic truncation, which may be off by one unit in
// the last place.
//
// # Failures
//
// A failure inside a party (transport error, cancelled context) is
// returned as a [*ComputationError] and poisons the runtime: the parties
// may disagree about which step they completed, so no later task can be
// trusted. Shut the runtime down and start a new one.
//
// # Trust Model
//
// Parties are semi-honest. The dealer knows every party's seed and must
// not collude with the parties. The client learns revealed values only.
package mpc
