// Package felt provides field-element helpers for the Goldilocks prime field
// p = 2^64 - 2^32 + 1, the base field of every trace column and constraint in
// this module. The element type itself comes from gnark-crypto; this package
// only adds the constructors and codecs the VM layer needs.
package felt

import (
	"encoding/binary"
	"fmt"

	"github.com/consensys/gnark-crypto/field/goldilocks"
)

// Element is the Goldilocks base field element used throughout the module.
type Element = goldilocks.Element

// Modulus is the Goldilocks prime 2^64 - 2^32 + 1.
const Modulus uint64 = 0xffffffff00000001

// New returns the field element for v. Values >= Modulus are reduced, so
// callers that need canonicity must validate with IsCanonical first.
func New(v uint64) Element {
	var e Element
	e.SetUint64(v)
	return e
}

// Zero returns the additive identity.
func Zero() Element {
	var e Element
	return e
}

// One returns the multiplicative identity.
func One() Element {
	return goldilocks.One()
}

// IsCanonical reports whether v is a canonical representative, i.e. v < p.
func IsCanonical(v uint64) bool {
	return v < Modulus
}

// Add returns a + b.
func Add(a, b Element) Element {
	var e Element
	e.Add(&a, &b)
	return e
}

// Sub returns a - b.
func Sub(a, b Element) Element {
	var e Element
	e.Sub(&a, &b)
	return e
}

// Mul returns a * b.
func Mul(a, b Element) Element {
	var e Element
	e.Mul(&a, &b)
	return e
}

// Inverse returns a^-1. Inverting zero is a caller error; the result follows
// the gnark-crypto convention of returning zero.
func Inverse(a Element) Element {
	var e Element
	e.Inverse(&a)
	return e
}

// Neg returns -a.
func Neg(a Element) Element {
	var e Element
	e.Neg(&a)
	return e
}

// Equal reports whether a == b.
func Equal(a, b Element) bool {
	return a.Equal(&b)
}

// IsZero reports whether e is the additive identity.
func IsZero(e Element) bool {
	return e.IsZero()
}

// U64 returns the canonical uint64 value of e.
func U64(e Element) uint64 {
	return e.Uint64()
}

// Bias converts a raw 16-bit offset chunk into its signed interpretation in
// [-2^15, 2^15) as a field element: off - 2^15.
func Bias(raw uint16) Element {
	return Sub(New(uint64(raw)), New(1<<15))
}

// AppendLE appends the canonical 8-byte little-endian encoding of e to buf.
func AppendLE(buf []byte, e Element) []byte {
	return binary.LittleEndian.AppendUint64(buf, e.Uint64())
}

// FromLE decodes a canonical 8-byte little-endian field element.
func FromLE(b []byte) (Element, error) {
	if len(b) < 8 {
		return Element{}, fmt.Errorf("felt: need 8 bytes, have %d", len(b))
	}
	v := binary.LittleEndian.Uint64(b)
	if !IsCanonical(v) {
		return Element{}, fmt.Errorf("felt: value %#x is not a canonical field element", v)
	}
	return New(v), nil
}
