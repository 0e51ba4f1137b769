// Package hashing produces the digests exchanged between helpers during
// shuffle verification. Only hashes ever cross the wire; comparing raw
// tag sequences would leak permutation structure.
package hashing

import (
	"crypto/sha256"

	"github.com/mixguard/mixguard/gf32"
)

// Hash is an equality-comparable digest over a sequence of field
// elements.
type Hash [sha256.Size]byte

// domain separates verification digests from any other sha256 use in an
// embedding application.
const domain = "mixguard/v1/tag-hash"

// HashElements digests a sequence of field elements in order. The empty
// sequence hashes to a defined value (the digest of the bare domain
// prefix), so callers never need a special case for zero rows.
func HashElements(elems []gf32.Element) Hash {
	h := sha256.New()
	h.Write([]byte(domain))
	for _, e := range elems {
		h.Write(e.Bytes())
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Bytes returns the digest as a slice for sending over a channel.
func (h Hash) Bytes() []byte {
	out := make([]byte, len(h))
	copy(out, h[:])
	return out
}

// FromBytes decodes a received digest. Wrong-length input yields the
// zero hash, which no honest digest equals except with negligible
// probability; the subsequent comparison fails rather than this codec.
func FromBytes(b []byte) Hash {
	var out Hash
	if len(b) != len(out) {
		return out
	}
	copy(out[:], b)
	return out
}
