// Package field defines abstract interfaces for the prime fields that
// secret shares live in.
//
// This package provides two core interfaces:
//
//   - [Element]: integers modulo the field order
//   - [Field]: factory and utility methods for creating elements
//
// # Design Philosophy
//
// The interfaces use a mutable receiver pattern for efficiency. Operations
// like Add and Mul set the receiver to the result and return it, allowing
// method chaining while minimizing allocations:
//
//	// Compute a + b*c
//	result := f.NewElement().Mul(b, c)
//	result = f.NewElement().Add(a, result)
//
// Decoding operations that can fail return errors rather than panicking.
//
// # Implementing a Field
//
// To plug in a new prime field:
//
//  1. Create an Element type that wraps your representation and implements [Element]
//  2. Create a Field type that implements [Field] as a factory
//  3. Register it with [Register] so it can be selected by name
//
// See the bn254 and bjj packages for complete implementations.
//
// # Security Considerations
//
// Implementations must ensure:
//
//   - Arithmetic is performed modulo the field order
//   - Random elements are drawn from the reader handed to RandomElement
//     with negligible bias
//   - Out-of-range encodings are rejected in SetBytes
package field
