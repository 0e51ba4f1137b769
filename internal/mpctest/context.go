package mpctest

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20"

	"github.com/mixguard/mixguard/gf32"
	"github.com/mixguard/mixguard/helper"
	"github.com/mixguard/mixguard/log"
	"github.com/mixguard/mixguard/protocol"
)

// partyContext is one party's view of the world at one gate. Values
// are immutable; Narrow and SetTotalRecords copy.
type partyContext struct {
	world *World
	shard helper.ShardIndex
	role  helper.Role
	gate  string
	total int
	log   log.Logger
}

var _ protocol.ShardedContext = (*partyContext)(nil)

func (c *partyContext) Role() helper.Role { return c.role }
func (c *partyContext) Log() log.Logger   { return c.log }
func (c *partyContext) ActiveWork() int   { return defaultActiveWork }

func (c *partyContext) Narrow(step string) protocol.Context {
	d := *c
	d.gate = c.gate + "/" + step
	return &d
}

func (c *partyContext) SetTotalRecords(n int) protocol.Context {
	d := *c
	d.total = n
	return &d
}

func (c *partyContext) ShardID() helper.ShardIndex { return c.shard }
func (c *partyContext) ShardCount() int            { return c.world.shardCount }

func (c *partyContext) NarrowShard(step string) protocol.ShardedContext {
	return c.Narrow(step).(*partyContext)
}

func (c *partyContext) SetShardRecords(n int) protocol.ShardedContext {
	return c.SetTotalRecords(n).(*partyContext)
}

// leftSeed and rightSeed are the chacha20 keys shared with the two
// neighbors. Edge e carries the additive slice party e keeps on its
// left, so the left edge of role r is edge r and the right edge is
// edge r+1.
func (c *partyContext) leftSeed() [32]byte {
	return c.world.edgeSeed(c.shard, int(c.role))
}

func (c *partyContext) rightSeed() [32]byte {
	return c.world.edgeSeed(c.shard, (int(c.role)+1)%3)
}

// edgeBytes expands a shared edge seed into the byte stream for one
// (gate, record id) pair. Both ends derive identical bytes as long as
// they narrowed identically.
func edgeBytes(seed [32]byte, gate string, id helper.RecordID, n int) []byte {
	nonce := sha256.Sum256(binary.LittleEndian.AppendUint32([]byte(gate+"|"), uint32(id)))
	cipher, err := chacha20.NewUnauthenticatedCipher(seed[:], nonce[:chacha20.NonceSize])
	if err != nil {
		panic(fmt.Sprintf("mpctest: chacha20 init: %v", err))
	}
	out := make([]byte, n)
	cipher.XORKeyStream(out, out)
	return out
}

func edgeElement(seed [32]byte, gate string, id helper.RecordID) gf32.Element {
	return gf32.FromBytes(edgeBytes(seed, gate, id, 4))
}

// prssSource generates replicated shares without communication: the
// left slice comes from the stream shared with the left neighbor and
// the right slice from the right one, so adjacent parties agree on
// their common slice and the three slices reconstruct to a value no
// single party knows.
type prssSource struct {
	left, right [32]byte
	gate        string
}

func (p *prssSource) GenerateShare(id helper.RecordID) gf32.Share {
	return gf32.Share{
		Left:  edgeElement(p.left, p.gate, id),
		Right: edgeElement(p.right, p.gate, id),
	}
}

func (c *partyContext) PRSS() protocol.SharedRandomness {
	return &prssSource{left: c.leftSeed(), right: c.rightSeed(), gate: c.gate}
}

func (c *partyContext) Send(ctx context.Context, peer helper.Role, id helper.RecordID, msg []byte) error {
	if peer == c.role {
		panic(fmt.Sprintf("mpctest: %v sending to itself", c.role))
	}
	data := msg
	if c.world.intercept != nil {
		data = c.world.intercept(c.gate, c.role, peer, id, append([]byte(nil), msg...))
	}
	return c.world.transport.sendParty(ctx, partyKey{
		shard: c.shard, gate: c.gate, src: c.role, dst: peer, id: id,
	}, c.total, data)
}

func (c *partyContext) Receive(ctx context.Context, peer helper.Role, id helper.RecordID) ([]byte, error) {
	return c.world.transport.receiveParty(ctx, partyKey{
		shard: c.shard, gate: c.gate, src: peer, dst: c.role, id: id,
	})
}

func (c *partyContext) ShardSend(ctx context.Context, shard helper.ShardIndex, id helper.RecordID, msg []byte) error {
	return c.world.transport.sendShard(ctx, shardKey{
		gate: c.gate, role: c.role, src: c.shard, dst: shard, id: id,
	}, c.total, msg)
}

func (c *partyContext) ShardReceive(ctx context.Context, shard helper.ShardIndex, id helper.RecordID) ([]byte, error) {
	return c.world.transport.receiveShard(ctx, shardKey{
		gate: c.gate, role: c.role, src: shard, dst: c.shard, id: id,
	})
}

// Multiply runs the one-round replicated multiplication: each party
// combines its local cross products with a fresh zero sharing, passes
// the result to its left neighbor and completes its share with the
// value arriving from the right.
func (c *partyContext) Multiply(ctx context.Context, id helper.RecordID, a, b gf32.Share) (gf32.Share, error) {
	zeroGate := c.gate + "/zero"
	alpha := edgeElement(c.rightSeed(), zeroGate, id).Add(edgeElement(c.leftSeed(), zeroGate, id))

	z := a.Left.Mul(b.Left).
		Add(a.Left.Mul(b.Right)).
		Add(a.Right.Mul(b.Left)).
		Add(alpha)

	if err := c.Send(ctx, c.role.Peer(helper.Left), id, z.Bytes()); err != nil {
		return gf32.Share{}, err
	}
	rb, err := c.Receive(ctx, c.role.Peer(helper.Right), id)
	if err != nil {
		return gf32.Share{}, err
	}
	return gf32.Share{Left: z, Right: gf32.FromBytes(rb)}, nil
}

// Reveal opens a share to this party with the malicious-secure
// exchange: both neighbors independently supply the missing slice and
// the two copies must agree.
func (c *partyContext) Reveal(ctx context.Context, id helper.RecordID, s gf32.Share) (gf32.Element, error) {
	left := c.role.Peer(helper.Left)
	right := c.role.Peer(helper.Right)

	if err := c.Send(ctx, right, id, s.Left.Bytes()); err != nil {
		return gf32.Zero, err
	}
	if err := c.Send(ctx, left, id, s.Right.Bytes()); err != nil {
		return gf32.Zero, err
	}

	fromLeft, err := c.Receive(ctx, left, id)
	if err != nil {
		return gf32.Zero, err
	}
	fromRight, err := c.Receive(ctx, right, id)
	if err != nil {
		return gf32.Zero, err
	}
	missingL := gf32.FromBytes(fromLeft)
	missingR := gf32.FromBytes(fromRight)
	if missingL != missingR {
		return gf32.Zero, errors.New("reveal: neighbors disagree on the missing slice")
	}
	return s.Left.Add(s.Right).Add(missingL), nil
}
