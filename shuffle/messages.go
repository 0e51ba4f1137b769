package shuffle

import (
	"context"

	"github.com/mixguard/mixguard/bitrow"
	"github.com/mixguard/mixguard/helper"
	"github.com/mixguard/mixguard/protocol"
)

// IntermediateMessages is the bundle of permutation-pass-through values
// one helper observed during the semi-honest shuffle. The shape differs
// per role, so each role has its own concrete type and the verifier
// dispatches on the variant. The values are opaque to everything except
// verification; after that they are dropped.
type IntermediateMessages interface {
	// Role reports which helper this bundle belongs to.
	Role() helper.Role
}

// H1Messages is what H1 observes: the x1 table it computed during the
// first permutation pass.
type H1Messages struct {
	X1 []bitrow.Row
}

func (*H1Messages) Role() helper.Role { return helper.H1 }

// H2Messages is what H2 observes: the x2 table it received from H1.
type H2Messages struct {
	X2 []bitrow.Row
}

func (*H2Messages) Role() helper.Role { return helper.H2 }

// H3Messages is what H3 observes: the y1 table it received from H2 and
// the y2 table it derived from it.
type H3Messages struct {
	Y1 []bitrow.Row
	Y2 []bitrow.Row
}

func (*H3Messages) Role() helper.Role { return helper.H3 }

// Shuffler is the external semi-honest shuffle collaborator for the
// single-shard topology. It permutes the tagged rows and surfaces the
// per-role transcript the verifier needs. No verification logic lives
// behind this seam.
type Shuffler interface {
	Shuffle(ctx context.Context, pctx protocol.Context, spec bitrow.Spec, rows []bitrow.Share) ([]bitrow.Share, IntermediateMessages, error)
}

// ShardedShuffler is the sharded counterpart, with one entry point per
// role since the distributed message flow differs per helper.
type ShardedShuffler interface {
	H1ShuffleForShard(ctx context.Context, pctx protocol.ShardedContext, spec bitrow.Spec, rows []bitrow.Share) ([]bitrow.Share, IntermediateMessages, error)
	H2ShuffleForShard(ctx context.Context, pctx protocol.ShardedContext, spec bitrow.Spec, rows []bitrow.Share) ([]bitrow.Share, IntermediateMessages, error)
	H3ShuffleForShard(ctx context.Context, pctx protocol.ShardedContext, spec bitrow.Spec, rows []bitrow.Share) ([]bitrow.Share, IntermediateMessages, error)
}
