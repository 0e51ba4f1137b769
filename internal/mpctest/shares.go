package mpctest

import (
	"math/rand"

	"github.com/mixguard/mixguard/bitrow"
	"github.com/mixguard/mixguard/boolean"
	"github.com/mixguard/mixguard/gf32"
)

// SplitRow splits a plaintext row into the three replicated shares,
// indexed by role.
func SplitRow(rng *rand.Rand, row bitrow.Row) [3]bitrow.Share {
	a := randomRow(rng, len(row))
	b := randomRow(rng, len(row))
	c := bitrow.XOR(bitrow.XOR(row, a), b)
	return [3]bitrow.Share{
		{Left: a, Right: b},
		{Left: b, Right: c},
		{Left: c, Right: a},
	}
}

// SplitRows splits a batch of rows, returning one slice per role.
func SplitRows(rng *rand.Rand, rows []bitrow.Row) [3][]bitrow.Share {
	var out [3][]bitrow.Share
	for p := range out {
		out[p] = make([]bitrow.Share, len(rows))
	}
	for i, row := range rows {
		s := SplitRow(rng, row)
		for p := range out {
			out[p][i] = s[p]
		}
	}
	return out
}

// ReconstructRows recombines per-role share batches into plaintext
// rows. Panics if the batches disagree on length.
func ReconstructRows(shares [3][]bitrow.Share) []bitrow.Row {
	n := len(shares[0])
	if len(shares[1]) != n || len(shares[2]) != n {
		panic("mpctest: reconstructing from unequal share batches")
	}
	rows := make([]bitrow.Row, n)
	for i := range rows {
		rows[i] = bitrow.XOR(bitrow.XOR(shares[0][i].Left, shares[0][i].Right), shares[1][i].Right)
	}
	return rows
}

// SplitElement splits a field element into three replicated shares.
func SplitElement(rng *rand.Rand, v gf32.Element) [3]gf32.Share {
	a := gf32.Element(rng.Uint32())
	b := gf32.Element(rng.Uint32())
	c := v.Add(a).Add(b)
	return [3]gf32.Share{
		{Left: a, Right: b},
		{Left: b, Right: c},
		{Left: c, Right: a},
	}
}

// ReconstructElement recombines a replicated field element.
func ReconstructElement(s [3]gf32.Share) gf32.Element {
	return s[0].Left.Add(s[0].Right).Add(s[1].Right)
}

// SplitBits splits the low n bits of a value, least significant first,
// into per-role bit decompositions.
func SplitBits(rng *rand.Rand, value uint64, n int) [3]boolean.Bits {
	var out [3]boolean.Bits
	for p := range out {
		out[p] = make(boolean.Bits, n)
	}
	for i := 0; i < n; i++ {
		var bit gf32.Element
		if value>>uint(i)&1 == 1 {
			bit = gf32.One
		}
		sh := splitBit(rng, bit)
		for p := range out {
			out[p][i] = sh[p]
		}
	}
	return out
}

// splitBit is SplitElement restricted to {0,1} slices.
func splitBit(rng *rand.Rand, bit gf32.Element) [3]gf32.Share {
	a := gf32.Element(rng.Uint32() & 1)
	b := gf32.Element(rng.Uint32() & 1)
	c := bit.Add(a).Add(b)
	return [3]gf32.Share{
		{Left: a, Right: b},
		{Left: b, Right: c},
		{Left: c, Right: a},
	}
}

// ReconstructBits recombines per-role bit decompositions into an
// unsigned integer, least significant bit first.
func ReconstructBits(shares [3]boolean.Bits) uint64 {
	var out uint64
	for i := range shares[0] {
		bit := shares[0][i].Left.Add(shares[0][i].Right).Add(shares[1][i].Right)
		out |= uint64(bit&1) << uint(i)
	}
	return out
}

func randomRow(rng *rand.Rand, n int) bitrow.Row {
	row := make(bitrow.Row, n)
	rng.Read(row)
	return row
}
