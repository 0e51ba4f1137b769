// Package gf32 implements the binary extension field GF(2^32) used for
// MAC keys and tags, together with the replicated secret sharing of its
// elements.
//
// Addition is XOR. Multiplication is carry-less polynomial multiplication
// reduced modulo x^32 + x^7 + x^3 + x^2 + 1. Both operations are linear
// over GF(2), which the shuffle verification relies on: the MAC of an XOR
// of rows is the XOR of the MACs.
package gf32

import "encoding/binary"

// Element is a field element of GF(2^32).
type Element uint32

// Zero and One are the additive and multiplicative identities.
const (
	Zero Element = 0
	One  Element = 1
)

// reduction polynomial x^32 + x^7 + x^3 + x^2 + 1, low 32 bits
const modulus uint32 = 0x8d

// Add returns e + o, which in a binary field is XOR.
func (e Element) Add(o Element) Element {
	return e ^ o
}

// Mul returns the product of e and o.
func (e Element) Mul(o Element) Element {
	var acc uint64
	a := uint64(e)
	for b := uint32(o); b != 0; b >>= 1 {
		if b&1 == 1 {
			acc ^= a
		}
		a <<= 1
	}
	// reduce the 63-bit product
	for i := 62; i >= 32; i-- {
		if acc&(1<<uint(i)) != 0 {
			acc ^= (1<<32 | uint64(modulus)) << uint(i-32)
		}
	}
	return Element(acc)
}

// Bytes returns the 4-byte little-endian encoding of e.
func (e Element) Bytes() []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(e))
	return b[:]
}

// FromBytes decodes a 4-byte little-endian element. Short or long input
// yields the zero element; callers that care about malformed input are
// expected to detect it through the MAC check, not here.
func FromBytes(b []byte) Element {
	if len(b) != 4 {
		return Zero
	}
	return Element(binary.LittleEndian.Uint32(b))
}

// Share is a replicated secret share of an Element. Each helper holds
// two of the three slices of the secret: Left is the slice shared with
// the left neighbor, Right the one shared with the right neighbor. The
// secret is the XOR of the three distinct slices.
type Share struct {
	Left  Element
	Right Element
}

// Add returns the share-wise sum, a share of the sum of the secrets.
// Purely local, no communication.
func (s Share) Add(o Share) Share {
	return Share{Left: s.Left ^ o.Left, Right: s.Right ^ o.Right}
}

// Bytes returns the 8-byte encoding of the share, left slice first.
func (s Share) Bytes() []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b[0:4], uint32(s.Left))
	binary.LittleEndian.PutUint32(b[4:8], uint32(s.Right))
	return b
}

// ShareFromBytes decodes an 8-byte share encoding. Malformed input
// yields the zero share.
func ShareFromBytes(b []byte) Share {
	if len(b) != 8 {
		return Share{}
	}
	return Share{
		Left:  Element(binary.LittleEndian.Uint32(b[0:4])),
		Right: Element(binary.LittleEndian.Uint32(b[4:8])),
	}
}
