// Package session manages the lifecycle of a secure-computation session and
// admits plaintext numbers into it. It wraps the runtime in the [mpc]
// package with an explicit state machine and a small gateway API.
//
// A Session is a handle, not a process-wide global: independent sessions
// never share parties, keys or connections.
//
// # Lifecycle
//
// A session moves through three states:
//
//	Uninitialized --Initialize--> Running --Cleanup--> ShutDown
//
// Cleanup may also be called on an uninitialized session. No transition
// leaves ShutDown; a fresh session must be created to compute again.
//
//	s, err := session.New(session.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer s.Cleanup(context.Background())
//
//	// Inputs can be admitted before the runtime is up.
//	price, err := s.SecureFloat(10.5)
//	if err != nil {
//		return err
//	}
//
//	if err := s.Initialize(ctx); err != nil {
//		return err
//	}
//
//	v, err := s.Reveal(ctx, price)
//
// # Errors
//
// Computing before Initialize returns [ErrSessionNotStarted]; computing
// after Cleanup returns [ErrSessionClosed]. A failure inside the secure
// computation is returned as an [*mpc.ComputationError] and leaves the
// session poisoned: Cleanup it and start a new one before retrying.
package session
