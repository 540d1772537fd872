// Package bjj provides the Baby Jubjub scalar field as an implementation
// of the [field.Field] interface.
//
// Baby Jubjub is a twisted Edwards curve defined over the scalar field of
// BN254 (also known as alt_bn128). Its prime-order subgroup has size:
//
//	2736030358979909402780800718157159386076813972158567259200215660948447373041
//
// Secret shares in this field are integers modulo that order. The order
// is read from gnark-crypto so it always matches the curve parameters used
// by other Baby Jubjub tooling.
//
// # Usage
//
// Select the field directly or by name:
//
//	f := &bjj.BJJ{}
//	f, err := field.ByName(bjj.Name)
//
// The BJJ type implements [field.Field] and can be used anywhere a Field
// is required.
//
// # Security
//
// Arithmetic uses math/big and is not constant-time. All operations are
// performed modulo the subgroup order.
package bjj
