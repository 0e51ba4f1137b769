// Package bitrow handles the fixed-width bit-string rows moved through
// the shuffle, and the bookkeeping between a plain row width and its
// tagged counterpart (row plus a 32-bit MAC tag).
package bitrow

import (
	"encoding/binary"
	"fmt"

	"github.com/mixguard/mixguard/gf32"
)

// Row is a fixed-width bit string, stored little-endian in whole bytes.
// The width is carried by the Spec under which the row was produced.
type Row []byte

// Clone returns an independent copy of the row.
func (r Row) Clone() Row {
	c := make(Row, len(r))
	copy(c, r)
	return c
}

// XOR returns the bitwise sum of two rows of equal length. Rows of
// different lengths indicate a programming error and panic.
func XOR(a, b Row) Row {
	if len(a) != len(b) {
		panic(fmt.Sprintf("bitrow: xor of rows with lengths %d and %d", len(a), len(b)))
	}
	out := make(Row, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// Share is a replicated secret share of a row; Left and Right follow
// the same slice convention as gf32.Share.
type Share struct {
	Left  Row
	Right Row
}

// Add returns the share-wise XOR, a share of the XOR of the secrets.
func (s Share) Add(o Share) Share {
	return Share{Left: XOR(s.Left, o.Left), Right: XOR(s.Right, o.Right)}
}

// Clone deep-copies the share.
func (s Share) Clone() Share {
	return Share{Left: s.Left.Clone(), Right: s.Right.Clone()}
}

// Spec witnesses a valid pair of row widths: a plain row of RowBits bits
// and its tagged form of exactly RowBits+32 bits. The zero Spec is
// invalid; obtain one through NewSpec so that a malformed configuration
// fails before any protocol round executes.
type Spec struct {
	rowBits    int
	taggedBits int
}

// TagBits is the width of the MAC tag appended to every row.
const TagBits = 32

// NewSpec validates the width pair and returns the witness. The tagged
// width must exceed the row width by exactly TagBits, and both widths
// must be positive multiples of 8.
func NewSpec(rowBits, taggedBits int) (Spec, error) {
	if rowBits <= 0 || rowBits%8 != 0 {
		return Spec{}, fmt.Errorf("bitrow: row width %d is not a positive multiple of 8", rowBits)
	}
	if taggedBits != rowBits+TagBits {
		return Spec{}, fmt.Errorf("bitrow: tagged width %d != row width %d + %d", taggedBits, rowBits, TagBits)
	}
	return Spec{rowBits: rowBits, taggedBits: taggedBits}, nil
}

// MustSpec is NewSpec for statically known widths.
func MustSpec(rowBits, taggedBits int) Spec {
	s, err := NewSpec(rowBits, taggedBits)
	if err != nil {
		panic(err)
	}
	return s
}

// Valid reports whether the spec was produced by NewSpec.
func (s Spec) Valid() bool { return s.rowBits > 0 }

// RowBits returns the plain row width in bits.
func (s Spec) RowBits() int { return s.rowBits }

// TaggedBits returns the tagged row width in bits.
func (s Spec) TaggedBits() int { return s.taggedBits }

// RowBytes returns the plain row width in bytes.
func (s Spec) RowBytes() int { return s.rowBits / 8 }

// TaggedBytes returns the tagged row width in bytes.
func (s Spec) TaggedBytes() int { return s.taggedBits / 8 }

// Keys returns how many 32-bit MAC keys a plain row needs, one per
// 32-bit column, the last column zero-padded.
func (s Spec) Keys() int { return (s.rowBits + 31) / 32 }

// ToElements splits a row into little-endian 32-bit field elements,
// zero-padding the final partial column.
func ToElements(r Row) []gf32.Element {
	n := (len(r) + 3) / 4
	out := make([]gf32.Element, n)
	for i := 0; i < n; i++ {
		var chunk [4]byte
		copy(chunk[:], r[i*4:])
		out[i] = gf32.Element(binary.LittleEndian.Uint32(chunk[:]))
	}
	return out
}

// ConcatRowAndTag appends the 4-byte tag encoding to the row, producing
// a tagged-width row.
func (s Spec) ConcatRowAndTag(row Row, tag gf32.Element) Row {
	if len(row) != s.RowBytes() {
		panic(fmt.Sprintf("bitrow: concat of %d-byte row under %d-bit spec", len(row), s.rowBits))
	}
	out := make(Row, 0, s.TaggedBytes())
	out = append(out, row...)
	out = append(out, tag.Bytes()...)
	return out
}

// SplitRowAndTag splits a tagged row into its plain row and tag. A
// malformed buffer deliberately yields zero values instead of an error:
// a tampered row becomes a wrong-but-defined value that the hash
// verification rejects, so the failure surfaces at the verifying party
// rather than wherever the malformed bytes happened to land.
func (s Spec) SplitRowAndTag(rowWithTag Row) (Row, gf32.Element) {
	if len(rowWithTag) != s.TaggedBytes() {
		return make(Row, s.RowBytes()), gf32.Zero
	}
	offset := s.RowBytes()
	return Row(rowWithTag[:offset]).Clone(), gf32.FromBytes(rowWithTag[offset:])
}

// ConcatShare applies ConcatRowAndTag to both slices of a row share and
// a tag share.
func (s Spec) ConcatShare(row Share, tag gf32.Share) Share {
	return Share{
		Left:  s.ConcatRowAndTag(row.Left, tag.Left),
		Right: s.ConcatRowAndTag(row.Right, tag.Right),
	}
}

// SplitShare drops the tag from both slices of a tagged row share.
func (s Spec) SplitShare(tagged Share) Share {
	left, _ := s.SplitRowAndTag(tagged.Left)
	right, _ := s.SplitRowAndTag(tagged.Right)
	return Share{Left: left, Right: right}
}
