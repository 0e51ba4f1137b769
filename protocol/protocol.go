// Package protocol defines the execution-context interfaces the shuffle
// consumes. The surrounding system provides the implementations: the
// secret-sharing arithmetic (multiply, reveal), the shared-randomness
// source, and the transport. An in-memory implementation for tests and
// local runs lives in internal/mpctest.
//
// A channel is a (source, destination, step)-addressed ordered stream,
// keyed additionally by record id. Messages on one channel are delivered
// in record-id order; two logically different values sent on the same
// channel must use distinct record ids rather than rely on call order.
// Narrowing a context derives a fresh step, and with it fresh channels.
package protocol

import (
	"context"

	"github.com/mixguard/mixguard/gf32"
	"github.com/mixguard/mixguard/helper"
	"github.com/mixguard/mixguard/log"
)

// SharedRandomness generates values shared with the two neighbors
// without communication (pseudo-random secret sharing). Successive
// record ids yield independent values; the same (step, record id) pair
// yields the same value on every call, on every party.
type SharedRandomness interface {
	// GenerateShare returns a replicated share of a random field
	// element, no network rounds involved.
	GenerateShare(id helper.RecordID) gf32.Share
}

// Context is one helper's view of a protocol execution at a given step.
// Contexts are immutable; Narrow and SetTotalRecords derive new ones.
type Context interface {
	// Role returns this party's fixed helper role.
	Role() helper.Role

	// Log returns a logger scoped to this party.
	Log() log.Logger

	// Narrow derives a sub-context for the named protocol step. Every
	// distinct step owns its own channels and randomness streams.
	Narrow(step string) Context

	// SetTotalRecords pre-declares how many records the current step
	// will carry, letting the transport detect termination and apply
	// backpressure. Must be called before the first Send or Receive on
	// a step that communicates. Narrowing keeps the declaration, so a
	// gadget that runs one record per invocation can be handed an
	// already-declared context and narrow freely inside.
	SetTotalRecords(n int) Context

	// ActiveWork bounds how many records may be processed concurrently.
	ActiveWork() int

	// PRSS returns the shared-randomness source for this step.
	PRSS() SharedRandomness

	// Multiply runs one secure multiplication of two shared field
	// elements. One communication round; suspends until the peers'
	// messages arrive.
	Multiply(ctx context.Context, id helper.RecordID, a, b gf32.Share) (gf32.Share, error)

	// Reveal opens a shared field element to this party using the
	// malicious-secure reveal (the missing slice is received from both
	// neighbors and cross-checked).
	Reveal(ctx context.Context, id helper.RecordID, s gf32.Share) (gf32.Element, error)

	// Send transmits a message to a peer on this step's channel.
	Send(ctx context.Context, peer helper.Role, id helper.RecordID, msg []byte) error

	// Receive blocks until the peer's message with the given record id
	// arrives on this step's channel.
	Receive(ctx context.Context, peer helper.Role, id helper.RecordID) ([]byte, error)
}

// ShardedContext extends Context with the shard topology: each helper's
// workload may be split over several shards which hold disjoint data
// but must agree on shared cryptographic material.
type ShardedContext interface {
	Context

	// ShardID returns this party's shard index.
	ShardID() helper.ShardIndex

	// ShardCount returns the size of the shard set.
	ShardCount() int

	// NarrowShard is Narrow keeping the shard topology available.
	NarrowShard(step string) ShardedContext

	// SetShardRecords is SetTotalRecords keeping the shard topology
	// available.
	SetShardRecords(n int) ShardedContext

	// ShardSend transmits to the same-role party on another shard.
	ShardSend(ctx context.Context, shard helper.ShardIndex, id helper.RecordID, msg []byte) error

	// ShardReceive blocks for the message with the given record id from
	// the same-role party on another shard. It fails if the stream
	// closes before the record arrives.
	ShardReceive(ctx context.Context, shard helper.ShardIndex, id helper.RecordID) ([]byte, error)
}
