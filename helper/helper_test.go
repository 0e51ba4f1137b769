package helper

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPeer(t *testing.T) {
	require.Equal(t, H2, H1.Peer(Right))
	require.Equal(t, H3, H1.Peer(Left))
	require.Equal(t, H3, H2.Peer(Right))
	require.Equal(t, H1, H2.Peer(Left))
	require.Equal(t, H1, H3.Peer(Right))
	require.Equal(t, H2, H3.Peer(Left))
}

func TestPeerIsInverse(t *testing.T) {
	for _, r := range []Role{H1, H2, H3} {
		require.Equal(t, r, r.Peer(Left).Peer(Right))
		require.Equal(t, r, r.Peer(Right).Peer(Left))
	}
}

func TestRoleString(t *testing.T) {
	require.Equal(t, "H1", H1.String())
	require.Equal(t, "H3", H3.String())
	require.Panics(t, func() { _ = Role(7).String() })
}
