// Package transport moves protocol messages between the endpoints of a
// secure-computation runtime.
//
// Endpoints are numbered: parties use 0..n-1, the preprocessing dealer
// uses n and the client that owns inputs and outputs uses n+1. A [Network] hands out one [Conn] per endpoint; a Conn sends
// point-to-point [Message] values and receives every message addressed to
// it, in arrival order. Matching messages to protocol steps is the
// caller's job (see [Message.Seq] and [Tag]).
//
// Two networks are provided:
//
//   - [NewLocal] connects endpoints in the same process with channels.
//   - [NewWebSocket] connects endpoints through a [Relay] over websockets.
//
// Either can be wrapped with [Seal], which encrypts and authenticates every
// payload under pairwise link keys so that a relay, or anything else on the
// path, only sees ciphertext.
package transport
