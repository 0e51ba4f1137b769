package hashing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mixguard/mixguard/gf32"
)

func TestEmptySequenceIsDefined(t *testing.T) {
	require.Equal(t, HashElements(nil), HashElements([]gf32.Element{}))
	require.NotEqual(t, Hash{}, HashElements(nil))
}

func TestOrderAndContentSensitive(t *testing.T) {
	a := HashElements([]gf32.Element{1, 2, 3})
	b := HashElements([]gf32.Element{3, 2, 1})
	c := HashElements([]gf32.Element{1, 2, 3})
	require.NotEqual(t, a, b)
	require.Equal(t, a, c)
	require.NotEqual(t, a, HashElements([]gf32.Element{1, 2}))
}

func TestBytesRoundTrip(t *testing.T) {
	h := HashElements([]gf32.Element{42})
	require.Equal(t, h, FromBytes(h.Bytes()))
	require.Equal(t, Hash{}, FromBytes([]byte{1, 2, 3}))
}
