// Package ema computes exponential moving averages over secret-shared
// prices. The prices, every intermediate average and the result stay
// secret; only the caller can reveal the result through its session.
//
// For prices p0..pn and a public period the average follows
//
//	ema_0 = p0
//	ema_i = p_i*m + ema_(i-1)*(1-m),  m = 2/(period+1)
//
// The multiplier is public but is shared like any other input, so the
// protocol never mixes plaintext and secret operands and never branches on
// secret data. Its running time depends only on the number of prices and
// parties.
package ema
