package mpctest

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/mixguard/mixguard/bitrow"
	"github.com/mixguard/mixguard/helper"
	"github.com/mixguard/mixguard/protocol"
	"github.com/mixguard/mixguard/shuffle"
)

// SemiHonestShardedShuffler extends the semi-honest shuffle to the
// sharded topology: rows are first scattered to pseudo-random
// destination shards, with all three parties of a shard following the
// same routing plan, then every shard shuffles what it gathered with
// the single-shard pass. The routing plan is public; only the
// within-shard permutations stay hidden.
type SemiHonestShardedShuffler struct{}

var _ shuffle.ShardedShuffler = SemiHonestShardedShuffler{}

func (SemiHonestShardedShuffler) H1ShuffleForShard(ctx context.Context, pctx protocol.ShardedContext, spec bitrow.Spec, rows []bitrow.Share) ([]bitrow.Share, shuffle.IntermediateMessages, error) {
	return shuffleForShard(ctx, pctx, spec, rows, h1Flow)
}

func (SemiHonestShardedShuffler) H2ShuffleForShard(ctx context.Context, pctx protocol.ShardedContext, spec bitrow.Spec, rows []bitrow.Share) ([]bitrow.Share, shuffle.IntermediateMessages, error) {
	return shuffleForShard(ctx, pctx, spec, rows, h2Flow)
}

func (SemiHonestShardedShuffler) H3ShuffleForShard(ctx context.Context, pctx protocol.ShardedContext, spec bitrow.Spec, rows []bitrow.Share) ([]bitrow.Share, shuffle.IntermediateMessages, error) {
	return shuffleForShard(ctx, pctx, spec, rows, h3Flow)
}

type roleFlow func(ctx context.Context, sh *partyContext, spec bitrow.Spec, rows []bitrow.Share) ([]bitrow.Share, shuffle.IntermediateMessages, error)

func shuffleForShard(ctx context.Context, pctx protocol.ShardedContext, spec bitrow.Spec, rows []bitrow.Share, flow roleFlow) ([]bitrow.Share, shuffle.IntermediateMessages, error) {
	pc, ok := pctx.(*partyContext)
	if !ok {
		return nil, nil, fmt.Errorf("shuffler needs an mpctest context, got %T", pctx)
	}
	gathered, err := reshard(ctx, pc.Narrow("reshard").(*partyContext), spec, rows)
	if err != nil {
		return nil, nil, err
	}
	return flow(ctx, pc.Narrow("shuffle").(*partyContext), spec, gathered)
}

// reshard scatters this shard's rows to their destination shards and
// gathers everything routed here. The destination of row i on shard s
// comes from a world-shared stream, so the three parties of s route
// their slices of a row identically and gathering order is the same at
// every role: own kept rows first, then source shards in index order,
// each in record order. Counts go out first so receivers know how many
// records to expect from each source.
func reshard(ctx context.Context, rc *partyContext, spec bitrow.Spec, rows []bitrow.Share) ([]bitrow.Share, error) {
	shards := rc.world.shardCount
	plan := rc.world.worldSeed("reshard")

	dests := make([]helper.ShardIndex, len(rows))
	counts := make([]uint32, shards)
	for i := range rows {
		raw := edgeBytes(plan, fmt.Sprintf("%s/%v", rc.gate, rc.shard), helper.RecordID(i), 4)
		dests[i] = helper.ShardIndex(binary.LittleEndian.Uint32(raw) % uint32(shards))
		counts[dests[i]]++
	}

	countCtx := rc.Narrow("counts").SetTotalRecords(1).(*partyContext)
	for dst := 0; dst < shards; dst++ {
		if helper.ShardIndex(dst) == rc.shard {
			continue
		}
		buf := binary.LittleEndian.AppendUint32(nil, counts[dst])
		if err := countCtx.ShardSend(ctx, helper.ShardIndex(dst), helper.FirstRecord, buf); err != nil {
			return nil, err
		}
	}

	rowCtx := rc.Narrow("rows").(*partyContext)
	kept := make([]bitrow.Share, 0, counts[rc.shard])
	next := make([]helper.RecordID, shards)
	for i, r := range rows {
		dst := dests[i]
		if dst == rc.shard {
			kept = append(kept, r.Clone())
			continue
		}
		id := next[dst]
		next[dst]++
		if err := rowCtx.ShardSend(ctx, dst, id, shareBytes(r)); err != nil {
			return nil, err
		}
	}

	gathered := kept
	for src := 0; src < shards; src++ {
		if helper.ShardIndex(src) == rc.shard {
			continue
		}
		buf, err := countCtx.ShardReceive(ctx, helper.ShardIndex(src), helper.FirstRecord)
		if err != nil {
			return nil, fmt.Errorf("receiving row count from %v: %w", helper.ShardIndex(src), err)
		}
		incoming := binary.LittleEndian.Uint32(buf)
		for id := helper.RecordID(0); id < helper.RecordID(incoming); id++ {
			b, err := rowCtx.ShardReceive(ctx, helper.ShardIndex(src), id)
			if err != nil {
				return nil, fmt.Errorf("receiving row %d from %v: %w", id, helper.ShardIndex(src), err)
			}
			gathered = append(gathered, shareFromBytes(spec, b))
		}
	}
	return gathered, nil
}

func shareBytes(s bitrow.Share) []byte {
	out := make([]byte, 0, len(s.Left)+len(s.Right))
	out = append(out, s.Left...)
	return append(out, s.Right...)
}

func shareFromBytes(spec bitrow.Spec, b []byte) bitrow.Share {
	w := spec.TaggedBytes()
	if len(b) != 2*w {
		return bitrow.Share{Left: make(bitrow.Row, w), Right: make(bitrow.Row, w)}
	}
	return bitrow.Share{
		Left:  bitrow.Row(b[:w]).Clone(),
		Right: bitrow.Row(b[w:]).Clone(),
	}
}
