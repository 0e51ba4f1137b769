// Package shuffle implements the maliciously secure three-party shuffle.
//
// The construction wraps an external semi-honest shuffle with a MAC
// layer: every row gets a 32-bit tag (inner product of its 32-bit
// columns with shared keys) before shuffling, and afterwards the three
// helpers cross-check hashes of the per-row MAC values over everything
// they observed. Any single-bit tampering by one corrupt helper breaks a
// MAC relation and is caught with soundness error about 2^-32.
package shuffle

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/mixguard/mixguard/bitrow"
	"github.com/mixguard/mixguard/gf32"
	"github.com/mixguard/mixguard/helper"
	"github.com/mixguard/mixguard/metrics"
	"github.com/mixguard/mixguard/protocol"
)

// Protocol step names. Every step owns its own channels and randomness
// streams; see the protocol package for the channel addressing rules.
const (
	stepGenerateKeys = "generate_keys"
	stepSetupKeys    = "setup_keys"
	stepGenerateTags = "generate_tags"
	stepVerify       = "verify_shuffle"
	stepRevealMACKey = "reveal_mac_key"
	stepHashesH3toH1 = "hashes_h3_to_h1"
	stepHashH2toH1   = "hash_h2_to_h1"
	stepHashH3toH2   = "hash_h3_to_h2"
)

// MaliciousShuffle executes the maliciously secure shuffle on the given
// replicated row shares and returns the permuted shares with tags
// stripped. The shuffler argument is the semi-honest shuffle
// collaborator operating on tagged-width rows.
//
// An empty input returns immediately without any network round. Errors
// from the collaborators propagate unchanged; a *ValidationError means
// a corrupt helper was detected and the whole query must be abandoned.
//
// Panics when spec was not produced by bitrow.NewSpec; the width
// invariant is a precondition, not a runtime condition.
func MaliciousShuffle(ctx context.Context, pctx protocol.Context, spec bitrow.Spec, shuffler Shuffler, rows []bitrow.Share) ([]bitrow.Share, error) {
	if !spec.Valid() {
		panic("shuffle: spec must be built with bitrow.NewSpec")
	}
	if len(rows) == 0 {
		observeOutcome(nil)
		return []bitrow.Share{}, nil
	}
	metrics.ShuffleRows.Observe(float64(len(rows)))

	keyCtx := pctx.Narrow(stepGenerateKeys)
	keys := make([]gf32.Share, spec.Keys())
	for i := range keys {
		keys[i] = keyCtx.PRSS().GenerateShare(helper.RecordID(i))
	}

	out, err := shuffleTaggedAndVerify(ctx, pctx, spec, keys, rows, func(ctx context.Context, tagged []bitrow.Share) ([]bitrow.Share, IntermediateMessages, error) {
		return shuffler.Shuffle(ctx, pctx, spec, tagged)
	})
	observeOutcome(err)
	return out, err
}

// MaliciousShardedShuffle is the multi-shard entry point. Shard 0
// generates the MAC keys and distributes them, so that rows reshuffled
// across shard boundaries keep verifiable tags. Unlike the single-shard
// entry it never returns early on empty local input: a shard without
// rows still owes key distribution and shuffle participation to its
// peers, and may well receive output rows.
func MaliciousShardedShuffle(ctx context.Context, pctx protocol.ShardedContext, spec bitrow.Spec, shuffler ShardedShuffler, rows []bitrow.Share) ([]bitrow.Share, error) {
	if !spec.Valid() {
		panic("shuffle: spec must be built with bitrow.NewSpec")
	}
	metrics.ShuffleRows.Observe(float64(len(rows)))

	keys, err := SetupKeys(ctx, pctx.NarrowShard(stepSetupKeys), spec.Keys())
	if err != nil {
		observeOutcome(err)
		return nil, err
	}

	out, err := shuffleTaggedAndVerify(ctx, pctx, spec, keys, rows, func(ctx context.Context, tagged []bitrow.Share) ([]bitrow.Share, IntermediateMessages, error) {
		switch pctx.Role() {
		case helper.H1:
			return shuffler.H1ShuffleForShard(ctx, pctx, spec, tagged)
		case helper.H2:
			return shuffler.H2ShuffleForShard(ctx, pctx, spec, tagged)
		default:
			return shuffler.H3ShuffleForShard(ctx, pctx, spec, tagged)
		}
	})
	observeOutcome(err)
	return out, err
}

// shuffleTaggedAndVerify is the shared tail of both entry points:
// tag, shuffle, verify, truncate.
func shuffleTaggedAndVerify(
	ctx context.Context,
	pctx protocol.Context,
	spec bitrow.Spec,
	keys []gf32.Share,
	rows []bitrow.Share,
	run func(ctx context.Context, tagged []bitrow.Share) ([]bitrow.Share, IntermediateMessages, error),
) ([]bitrow.Share, error) {
	tagged, err := ComputeAndAddTags(ctx, pctx.Narrow(stepGenerateTags), spec, keys, rows)
	if err != nil {
		return nil, err
	}

	shuffled, messages, err := run(ctx, tagged)
	if err != nil {
		return nil, err
	}

	if err := verifyShuffle(ctx, pctx.Narrow(stepVerify), spec, keys, shuffled, messages); err != nil {
		return nil, err
	}

	// verification ensures truncation yields the correct rows
	return truncateTags(spec, shuffled), nil
}

func observeOutcome(err error) {
	switch err.(type) {
	case nil:
		metrics.ShuffleCounter.WithLabelValues("ok").Inc()
	case *ValidationError:
		metrics.ShuffleCounter.WithLabelValues("validation_failed").Inc()
	default:
		metrics.ShuffleCounter.WithLabelValues("error").Inc()
	}
}

// SetupKeys agrees on the MAC keys across all shards. The first shard
// generates them from shared randomness and sends each key share to
// every other shard, record id = key index; the rest block for exactly
// that many records and fail if the stream ends early.
func SetupKeys(ctx context.Context, sctx protocol.ShardedContext, amount int) ([]gf32.Share, error) {
	keyCtx := sctx.SetShardRecords(amount)
	if sctx.ShardID() != helper.FirstShard {
		keys := make([]gf32.Share, amount)
		for i := range keys {
			b, err := keyCtx.ShardReceive(ctx, helper.FirstShard, helper.RecordID(i))
			if err != nil {
				return nil, fmt.Errorf("receiving mac key %d from first shard: %w", i, err)
			}
			keys[i] = gf32.ShareFromBytes(b)
		}
		return keys, nil
	}

	keys := make([]gf32.Share, amount)
	for i := range keys {
		keys[i] = sctx.PRSS().GenerateShare(helper.RecordID(i))
	}
	for shard := 1; shard < sctx.ShardCount(); shard++ {
		shard := helper.ShardIndex(shard)
		g, gctx := errgroup.WithContext(ctx)
		for i := range keys {
			i := i
			g.Go(func() error {
				return keyCtx.ShardSend(gctx, shard, helper.RecordID(i), keys[i].Bytes())
			})
		}
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("distributing mac keys to %v: %w", shard, err)
		}
	}
	return keys, nil
}

// ComputeAndAddTags computes the MAC tag for every row and appends it.
// The tag is the inner product between the keys and the row's 32-bit
// columns; each (row, column) pair costs one secure multiplication, and
// the per-column products are summed locally. Rows are processed
// concurrently up to the context's active-work bound, output order
// matching input order.
//
// Panics when keys is empty with non-empty rows, or when a row's width
// disagrees with the spec: both are caller bugs, not runtime errors.
func ComputeAndAddTags(ctx context.Context, pctx protocol.Context, spec bitrow.Spec, keys []gf32.Share, rows []bitrow.Share) ([]bitrow.Share, error) {
	if len(rows) == 0 {
		return []bitrow.Share{}, nil
	}
	if len(keys) == 0 {
		panic("shuffle: tagging with an empty key set")
	}

	rowLength := len(keys)
	tagCtx := pctx.SetTotalRecords(len(rows) * rowLength)
	tagged := make([]bitrow.Share, len(rows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pctx.ActiveWork())
	for i := range rows {
		i := i
		g.Go(func() error {
			tag, err := rowTag(gctx, tagCtx, spec, keys, i, rows[i])
			if err != nil {
				return err
			}
			tagged[i] = spec.ConcatShare(rows[i], tag)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tagged, nil
}

// rowTag multiplies every 32-bit column of the row with its key and
// sums the products. The multiplications run concurrently; record ids
// are derived from the (row, column) position so ordering never depends
// on completion order.
func rowTag(ctx context.Context, tagCtx protocol.Context, spec bitrow.Spec, keys []gf32.Share, i int, row bitrow.Share) (gf32.Share, error) {
	left := bitrow.ToElements(row.Left)
	right := bitrow.ToElements(row.Right)
	if len(left) != len(keys) || len(right) != len(keys) {
		panic(fmt.Sprintf("shuffle: row %d decomposes into %d columns, have %d keys", i, len(left), len(keys)))
	}

	products := make([]gf32.Share, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	for j := range keys {
		j := j
		g.Go(func() error {
			entry := gf32.Share{Left: left[j], Right: right[j]}
			product, err := tagCtx.Multiply(gctx, helper.RecordID(i*len(keys)+j), entry, keys[j])
			if err != nil {
				return err
			}
			metrics.TagMultiplications.Inc()
			products[j] = product
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return gf32.Share{}, err
	}

	var tag gf32.Share
	for _, p := range products {
		tag = tag.Add(p)
	}
	return tag, nil
}

// truncateTags drops the trailing tag from every row share. Pure and
// local; only ever called on verified output.
func truncateTags(spec bitrow.Spec, shares []bitrow.Share) []bitrow.Share {
	out := make([]bitrow.Share, len(shares))
	for i, s := range shares {
		out[i] = spec.SplitShare(s)
	}
	return out
}
