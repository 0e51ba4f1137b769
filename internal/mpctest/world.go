// Package mpctest provides a complete in-memory three-party execution
// environment: a record-id-ordered transport, pseudo-random secret
// sharing over pairwise chacha20 streams, replicated multiplication and
// malicious reveal, and semi-honest shuffle collaborators for the
// single-shard and sharded topologies. Tests and the demo command run
// all parties in one process; an interceptor hook lets tests tamper
// with individual wire messages.
package mpctest

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/mixguard/mixguard/helper"
	"github.com/mixguard/mixguard/log"
	"github.com/mixguard/mixguard/protocol"
)

// rootGate is the step name all party contexts start from.
const rootGate = "run"

// defaultActiveWork bounds concurrent records per party.
const defaultActiveWork = 32

// Interceptor rewrites a party-to-party message in flight. It runs on
// the sender's side after the payload is final; returning the input
// unchanged makes it a no-op. Gates are slash-joined step paths.
type Interceptor func(gate string, src, dst helper.Role, id helper.RecordID, data []byte) []byte

// World is one in-memory protocol execution: three parties per shard,
// pairwise randomness seeds, and the transport connecting everyone.
type World struct {
	seed       [32]byte
	shardCount int
	transport  *transport
	intercept  Interceptor
	log        log.Logger
}

// Option configures a World.
type Option func(*World)

// WithSeed fixes the world's randomness seed, making every permutation
// and mask deterministic across runs.
func WithSeed(seed [32]byte) Option {
	return func(w *World) { w.seed = seed }
}

// WithInterceptor installs a message interceptor.
func WithInterceptor(i Interceptor) Option {
	return func(w *World) { w.intercept = i }
}

// WithLogger replaces the default no-op logger.
func WithLogger(l log.Logger) Option {
	return func(w *World) { w.log = l }
}

// NewWorld creates a single-shard world.
func NewWorld(opts ...Option) *World {
	return NewShardedWorld(1, opts...)
}

// NewShardedWorld creates a world with the given shard count.
func NewShardedWorld(shards int, opts ...Option) *World {
	if shards < 1 {
		panic(fmt.Sprintf("mpctest: world needs at least one shard, got %d", shards))
	}
	w := &World{
		seed:       sha256.Sum256([]byte("mixguard/mpctest/default-seed")),
		shardCount: shards,
		transport:  newTransport(),
		log:        log.NewNop(),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// MessagesSent reports how many party-to-party and shard-to-shard
// messages have been delivered so far.
func (w *World) MessagesSent() uint64 { return w.transport.sent() }

// edgeSeed derives the chacha20 key shared by the two parties on one
// ring edge of one shard. Edge index e holds the additive slice that
// party e keeps on its left.
func (w *World) edgeSeed(shard helper.ShardIndex, e int) [32]byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, w.seed[:]...)
	buf = append(buf, byte(e))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(shard))
	return sha256.Sum256(buf)
}

// worldSeed derives shared randomness known to every party on every
// shard, used only for public coordination such as resharding plans.
func (w *World) worldSeed(label string) [32]byte {
	return sha256.Sum256(append([]byte("public/"+label+"/"), w.seed[:]...))
}

// Context returns the party context for one role on one shard, rooted
// at the world's initial gate.
func (w *World) Context(shard helper.ShardIndex, role helper.Role) protocol.ShardedContext {
	return &partyContext{
		world: w,
		shard: shard,
		role:  role,
		gate:  rootGate,
		log:   w.log.Named(role.String()).With("shard", uint32(shard)),
	}
}

// Run executes one closure per party on a single-shard world and
// collects the three results and errors, both indexed by role. All
// parties run to completion even when one fails, so a test can assert
// exactly which role observed which failure.
func Run[T any](ctx context.Context, w *World, f func(ctx context.Context, pctx protocol.Context) (T, error)) ([3]T, [3]error) {
	var (
		out  [3]T
		errs [3]error
		wg   sync.WaitGroup
	)
	for _, role := range []helper.Role{helper.H1, helper.H2, helper.H3} {
		role := role
		wg.Add(1)
		go func() {
			defer wg.Done()
			out[role], errs[role] = f(ctx, w.Context(helper.FirstShard, role))
		}()
	}
	wg.Wait()
	return out, errs
}

// RunSharded executes one closure per (shard, party) pair and collects
// results and errors indexed by shard, then role.
func RunSharded[T any](ctx context.Context, w *World, f func(ctx context.Context, pctx protocol.ShardedContext) (T, error)) ([][3]T, [][3]error) {
	out := make([][3]T, w.shardCount)
	errs := make([][3]error, w.shardCount)
	var wg sync.WaitGroup
	for shard := 0; shard < w.shardCount; shard++ {
		for _, role := range []helper.Role{helper.H1, helper.H2, helper.H3} {
			shard, role := helper.ShardIndex(shard), role
			wg.Add(1)
			go func() {
				defer wg.Done()
				out[shard][role], errs[shard][role] = f(ctx, w.Context(shard, role))
			}()
		}
	}
	wg.Wait()
	return out, errs
}

// FirstError returns the first non-nil party error, if any.
func FirstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// transport delivers messages between parties. Every (shard, gate,
// src, dst, record id) key owns a one-shot slot; senders never block
// and receivers wait for their exact record. When the sender declared
// a total, the stream closes once all its records are delivered, and a
// receive beyond the last record fails instead of hanging.
type transport struct {
	mu      sync.Mutex
	party   map[partyKey]chan []byte
	shards  map[shardKey]chan []byte
	pstream map[partyStream]*stream
	sstream map[shardStream]*stream
	count   uint64
}

type partyKey struct {
	shard    helper.ShardIndex
	gate     string
	src, dst helper.Role
	id       helper.RecordID
}

type shardKey struct {
	gate     string
	role     helper.Role
	src, dst helper.ShardIndex
	id       helper.RecordID
}

// partyStream and shardStream identify one directed channel across all
// its record ids.
type partyStream struct {
	shard    helper.ShardIndex
	gate     string
	src, dst helper.Role
}

type shardStream struct {
	gate     string
	role     helper.Role
	src, dst helper.ShardIndex
}

// stream tracks close-on-done state for one directed channel. The
// sender's declared total is recorded on its first send; once that
// many records went out, end is closed and late receivers fail fast.
// Streams without a declared total never close.
type stream struct {
	end    chan struct{}
	total  int
	sent   int
	closed bool
}

func newTransport() *transport {
	return &transport{
		party:   make(map[partyKey]chan []byte),
		shards:  make(map[shardKey]chan []byte),
		pstream: make(map[partyStream]*stream),
		sstream: make(map[shardStream]*stream),
	}
}

func (t *transport) sent() uint64 { return atomic.LoadUint64(&t.count) }

func (t *transport) partySlot(k partyKey) chan []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.party[k]
	if !ok {
		c = make(chan []byte, 1)
		t.party[k] = c
	}
	return c
}

func (t *transport) shardSlot(k shardKey) chan []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.shards[k]
	if !ok {
		c = make(chan []byte, 1)
		t.shards[k] = c
	}
	return c
}

func (t *transport) partyStreamOf(k partyKey) *stream {
	t.mu.Lock()
	defer t.mu.Unlock()
	sk := partyStream{shard: k.shard, gate: k.gate, src: k.src, dst: k.dst}
	s, ok := t.pstream[sk]
	if !ok {
		s = &stream{end: make(chan struct{})}
		t.pstream[sk] = s
	}
	return s
}

func (t *transport) shardStreamOf(k shardKey) *stream {
	t.mu.Lock()
	defer t.mu.Unlock()
	sk := shardStream{gate: k.gate, role: k.role, src: k.src, dst: k.dst}
	s, ok := t.sstream[sk]
	if !ok {
		s = &stream{end: make(chan struct{})}
		t.sstream[sk] = s
	}
	return s
}

// delivered records one completed send. Concurrent senders may deliver
// records out of id order, so the stream closes only when every record
// up to the declared total is in its slot.
func (t *transport) delivered(s *stream, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s.sent++
	if total > 0 && s.total == 0 {
		s.total = total
	}
	if s.total > 0 && s.sent >= s.total && !s.closed {
		s.closed = true
		close(s.end)
	}
}

// endedTotal reads the declared total after end fired.
func (t *transport) endedTotal(s *stream) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return s.total
}

func (t *transport) sendParty(ctx context.Context, k partyKey, total int, data []byte) error {
	if total > 0 && int(k.id) >= total {
		return fmt.Errorf("send on %s %v->%v record %d past declared total %d", k.gate, k.src, k.dst, k.id, total)
	}
	select {
	case t.partySlot(k) <- data:
		atomic.AddUint64(&t.count, 1)
		t.delivered(t.partyStreamOf(k), total)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("duplicate send on %s %v->%v record %d", k.gate, k.src, k.dst, k.id)
	}
}

func (t *transport) receiveParty(ctx context.Context, k partyKey) ([]byte, error) {
	slot := t.partySlot(k)
	s := t.partyStreamOf(k)
	select {
	case b := <-slot:
		return b, nil
	case <-s.end:
		// the record may have landed just before the close
		select {
		case b := <-slot:
			return b, nil
		default:
			return nil, fmt.Errorf("stream %s %v->%v ended after %d records, wanted record %d", k.gate, k.src, k.dst, t.endedTotal(s), k.id)
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *transport) sendShard(ctx context.Context, k shardKey, total int, data []byte) error {
	if total > 0 && int(k.id) >= total {
		return fmt.Errorf("shard send on %s %v->%v record %d past declared total %d", k.gate, k.src, k.dst, k.id, total)
	}
	select {
	case t.shardSlot(k) <- data:
		atomic.AddUint64(&t.count, 1)
		t.delivered(t.shardStreamOf(k), total)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("duplicate shard send on %s %v->%v record %d", k.gate, k.src, k.dst, k.id)
	}
}

func (t *transport) receiveShard(ctx context.Context, k shardKey) ([]byte, error) {
	slot := t.shardSlot(k)
	s := t.shardStreamOf(k)
	select {
	case b := <-slot:
		return b, nil
	case <-s.end:
		select {
		case b := <-slot:
			return b, nil
		default:
			return nil, fmt.Errorf("shard stream %s %v->%v ended after %d records, wanted record %d", k.gate, k.src, k.dst, t.endedTotal(s), k.id)
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
