// Package bn254 provides the BN254 scalar field (Fr) as an implementation
// of the [field.Field] interface.
//
// Elements wrap gnark-crypto's Montgomery-form fr.Element, so additions
// and multiplications run on fixed-size limbs rather than math/big. This
// is the default field for secret sharing.
package bn254
