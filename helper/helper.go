// Package helper defines the identities used by the three-party
// protocols: the fixed helper roles, the ring directions between them,
// record ids for ordering messages on a channel, and shard indices.
package helper

import "fmt"

// Role identifies one of the three helper parties. The assignment is
// fixed for the duration of a protocol run.
type Role uint8

const (
	H1 Role = iota
	H2
	H3
)

func (r Role) String() string {
	switch r {
	case H1:
		return "H1"
	case H2:
		return "H2"
	case H3:
		return "H3"
	default:
		panic(fmt.Sprintf("invalid helper role %d", uint8(r)))
	}
}

// Direction selects one of a helper's two neighbors on the ring
// H1 -> H2 -> H3 -> H1 (Right follows the arrow).
type Direction uint8

const (
	Left Direction = iota
	Right
)

func (d Direction) String() string {
	if d == Left {
		return "left"
	}
	return "right"
}

// Peer returns the role of the neighbor in the given direction.
func (r Role) Peer(d Direction) Role {
	if d == Right {
		return Role((uint8(r) + 1) % 3)
	}
	return Role((uint8(r) + 2) % 3)
}

// RecordID orders messages on a single logical channel. Two logically
// different values sent on one channel must use distinct record ids;
// delivery order between different ids carries no meaning.
type RecordID uint32

// FirstRecord is the id of the first message on a channel.
const FirstRecord RecordID = 0

// ShardIndex is a zero-based index into a shard set of known size.
type ShardIndex uint32

// FirstShard is the shard authoritative for shared key material.
const FirstShard ShardIndex = 0

func (s ShardIndex) String() string {
	return fmt.Sprintf("shard-%d", uint32(s))
}
