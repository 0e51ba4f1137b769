package bitrow

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mixguard/mixguard/gf32"
)

func randomRow(rng *rand.Rand, n int) Row {
	r := make(Row, n)
	rng.Read(r)
	return r
}

func TestNewSpecEnforcesWidthInvariant(t *testing.T) {
	_, err := NewSpec(112, 144)
	require.NoError(t, err)

	_, err = NewSpec(32, 112)
	require.Error(t, err)

	_, err = NewSpec(32, 32)
	require.Error(t, err)

	_, err = NewSpec(0, 32)
	require.Error(t, err)

	_, err = NewSpec(20, 52)
	require.Error(t, err)

	require.False(t, Spec{}.Valid())
	require.True(t, MustSpec(32, 64).Valid())
}

func TestSpecSizes(t *testing.T) {
	s := MustSpec(112, 144)
	require.Equal(t, 14, s.RowBytes())
	require.Equal(t, 18, s.TaggedBytes())
	require.Equal(t, 4, s.Keys())

	s = MustSpec(32, 64)
	require.Equal(t, 1, s.Keys())
}

func TestConcatSplitRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, widths := range [][2]int{{32, 64}, {112, 144}} {
		s := MustSpec(widths[0], widths[1])
		row := randomRow(rng, s.RowBytes())
		tag := gf32.Element(rng.Uint32())

		tagged := s.ConcatRowAndTag(row, tag)
		require.Len(t, []byte(tagged), s.TaggedBytes())

		gotRow, gotTag := s.SplitRowAndTag(tagged)
		require.Equal(t, row, gotRow)
		require.Equal(t, tag, gotTag)
	}
}

func TestSplitFallsBackToDefaults(t *testing.T) {
	s := MustSpec(32, 64)
	row, tag := s.SplitRowAndTag(Row{1, 2, 3})
	require.Equal(t, Row{0, 0, 0, 0}, row)
	require.Equal(t, gf32.Zero, tag)
}

func TestToElementsPadsLastColumn(t *testing.T) {
	// 14 bytes = 112 bits: three full columns plus a half column
	row := Row{
		0x01, 0x00, 0x00, 0x00,
		0x02, 0x00, 0x00, 0x00,
		0x03, 0x00, 0x00, 0x00,
		0x04, 0x00,
	}
	elems := ToElements(row)
	require.Equal(t, []gf32.Element{1, 2, 3, 4}, elems)
}

func TestXORAndShares(t *testing.T) {
	a := Row{0xff, 0x00}
	b := Row{0x0f, 0xf0}
	require.Equal(t, Row{0xf0, 0xf0}, XOR(a, b))
	require.Panics(t, func() { XOR(a, Row{1}) })

	s := Share{Left: a, Right: b}
	sum := s.Add(Share{Left: b, Right: a})
	require.Equal(t, Row{0xf0, 0xf0}, sum.Left)
	require.Equal(t, Row{0xf0, 0xf0}, sum.Right)
}

func TestConcatShareKeepsSliceLayout(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	s := MustSpec(112, 144)
	row := Share{Left: randomRow(rng, 14), Right: randomRow(rng, 14)}
	tag := gf32.Share{Left: gf32.Element(rng.Uint32()), Right: gf32.Element(rng.Uint32())}

	tagged := s.ConcatShare(row, tag)
	require.Equal(t, row.Left, Row(tagged.Left[:14]))
	require.Equal(t, tag.Left, gf32.FromBytes(tagged.Left[14:]))
	require.Equal(t, row.Right, Row(tagged.Right[:14]))
	require.Equal(t, tag.Right, gf32.FromBytes(tagged.Right[14:]))

	stripped := s.SplitShare(tagged)
	require.Equal(t, row.Left, stripped.Left)
	require.Equal(t, row.Right, stripped.Right)
}
