package shuffle

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/mixguard/mixguard/bitrow"
	"github.com/mixguard/mixguard/gf32"
	"github.com/mixguard/mixguard/hashing"
	"github.com/mixguard/mixguard/helper"
	"github.com/mixguard/mixguard/metrics"
	"github.com/mixguard/mixguard/protocol"
)

// verifyShuffle checks the shuffled shares against the intermediate
// shuffle messages. The keys are revealed once, then behavior is fully
// determined by which message variant this role produced. Returns a
// *ValidationError naming the failed comparison, or a transport error.
func verifyShuffle(ctx context.Context, pctx protocol.Context, spec bitrow.Spec, keyShares []gf32.Share, shuffled []bitrow.Share, messages IntermediateMessages) error {
	keyCtx := pctx.Narrow(stepRevealMACKey).SetTotalRecords(len(keyShares))
	keys, err := revealKeys(ctx, keyCtx, keyShares)
	if err != nil {
		return err
	}

	if messages.Role() != pctx.Role() {
		panic(fmt.Sprintf("shuffle: %v verifying messages observed by %v", pctx.Role(), messages.Role()))
	}

	switch m := messages.(type) {
	case *H1Messages:
		return h1Verify(ctx, pctx, spec, keys, shuffled, m.X1)
	case *H2Messages:
		return h2Verify(ctx, pctx, spec, keys, shuffled, m.X2)
	case *H3Messages:
		return h3Verify(ctx, pctx, spec, keys, shuffled, m.Y1, m.Y2)
	default:
		panic(fmt.Sprintf("shuffle: unknown message variant %T", messages))
	}
}

// revealKeys opens every MAC key share and appends a one, since the
// trailing tag column of a row is not keyed any further. This is the
// only point where key material becomes plaintext, and it happens
// symmetrically at all three roles because all three recompute hashes
// locally.
func revealKeys(ctx context.Context, pctx protocol.Context, keyShares []gf32.Share) ([]gf32.Element, error) {
	keys := make([]gf32.Element, len(keyShares)+1)
	g, gctx := errgroup.WithContext(ctx)
	for i := range keyShares {
		i := i
		g.Go(func() error {
			k, err := pctx.Reveal(gctx, helper.RecordID(i), keyShares[i])
			if err != nil {
				return fmt.Errorf("revealing mac key %d: %w", i, err)
			}
			keys[i] = k
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	keys[len(keyShares)] = gf32.One
	return keys, nil
}

// h1Verify is the check run by H1. H1 hashes its x1 table and the sum
// of its two output share slices ("a xor b"), then compares against the
// y1 and c hashes received from H3 (record ids 0 and 1 on one channel)
// and the c hash received from H2 (a separate channel).
func h1Verify(ctx context.Context, pctx protocol.Context, spec bitrow.Spec, keys []gf32.Element, shares []bitrow.Share, x1 []bitrow.Row) error {
	hashX1 := computeAndHashTags(spec, keys, x1)

	aXorB := make([]bitrow.Row, len(shares))
	for i, s := range shares {
		aXorB[i] = bitrow.XOR(s.Left, s.Right)
	}
	hashAXorB := computeAndHashTags(spec, keys, aXorB)

	h3Ctx := pctx.Narrow(stepHashesH3toH1).SetTotalRecords(2)
	h2Ctx := pctx.Narrow(stepHashH2toH1).SetTotalRecords(1)
	h3 := pctx.Role().Peer(helper.Left)
	h2 := pctx.Role().Peer(helper.Right)

	var hashY1, hashCH3, hashCH2 hashing.Hash
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b, err := h3Ctx.Receive(gctx, h3, helper.FirstRecord)
		hashY1 = hashing.FromBytes(b)
		return err
	})
	g.Go(func() error {
		b, err := h3Ctx.Receive(gctx, h3, helper.FirstRecord+1)
		hashCH3 = hashing.FromBytes(b)
		return err
	})
	g.Go(func() error {
		b, err := h2Ctx.Receive(gctx, h2, helper.FirstRecord)
		hashCH2 = hashing.FromBytes(b)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if hashX1 != hashY1 {
		return failCheck(pctx, "y1",
			fmt.Sprintf("Y1 is inconsistent: hash of x1: %x, hash of y1: %x", hashX1, hashY1))
	}
	if hashAXorB != hashCH3 {
		return failCheck(pctx, "c_h3",
			fmt.Sprintf("C from H3 is inconsistent: hash of a_xor_b: %x, hash of C: %x", hashAXorB, hashCH3))
	}
	if hashAXorB != hashCH2 {
		return failCheck(pctx, "c_h2",
			fmt.Sprintf("C from H2 is inconsistent: hash of a_xor_b: %x, hash of C: %x", hashAXorB, hashCH2))
	}
	return nil
}

// h2Verify is the check run by H2. H2 hashes its x2 table and its right
// output slice ("c"), sends the c hash to H1, and compares the x2 hash
// against the y2 hash received from H3.
func h2Verify(ctx context.Context, pctx protocol.Context, spec bitrow.Spec, keys []gf32.Element, shares []bitrow.Share, x2 []bitrow.Row) error {
	hashX2 := computeAndHashTags(spec, keys, x2)

	c := make([]bitrow.Row, len(shares))
	for i, s := range shares {
		c[i] = s.Right
	}
	hashC := computeAndHashTags(spec, keys, c)

	h1Ctx := pctx.Narrow(stepHashH2toH1).SetTotalRecords(1)
	h3Ctx := pctx.Narrow(stepHashH3toH2).SetTotalRecords(1)
	h1 := pctx.Role().Peer(helper.Left)
	h3 := pctx.Role().Peer(helper.Right)

	var hashY2 hashing.Hash
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return h1Ctx.Send(gctx, h1, helper.FirstRecord, hashC.Bytes())
	})
	g.Go(func() error {
		b, err := h3Ctx.Receive(gctx, h3, helper.FirstRecord)
		hashY2 = hashing.FromBytes(b)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if hashX2 != hashY2 {
		return failCheck(pctx, "x2",
			fmt.Sprintf("X2 is inconsistent: hash of x2: %x, hash of y2: %x", hashX2, hashY2))
	}
	return nil
}

// h3Verify is run by H3, which only produces and forwards: it hashes
// y1, y2 and its left output slice ("c"), sends the y1 and c hashes to
// H1 as record ids 0 and 1 on one channel, and the y2 hash to H2. H3
// itself checks nothing.
func h3Verify(ctx context.Context, pctx protocol.Context, spec bitrow.Spec, keys []gf32.Element, shares []bitrow.Share, y1, y2 []bitrow.Row) error {
	hashY1 := computeAndHashTags(spec, keys, y1)
	hashY2 := computeAndHashTags(spec, keys, y2)

	c := make([]bitrow.Row, len(shares))
	for i, s := range shares {
		c[i] = s.Left
	}
	hashC := computeAndHashTags(spec, keys, c)

	h1Ctx := pctx.Narrow(stepHashesH3toH1).SetTotalRecords(2)
	h2Ctx := pctx.Narrow(stepHashH3toH2).SetTotalRecords(1)
	h1 := pctx.Role().Peer(helper.Right)
	h2 := pctx.Role().Peer(helper.Left)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return h1Ctx.Send(gctx, h1, helper.FirstRecord, hashY1.Bytes())
	})
	g.Go(func() error {
		return h1Ctx.Send(gctx, h1, helper.FirstRecord+1, hashC.Bytes())
	})
	g.Go(func() error {
		return h2Ctx.Send(gctx, h2, helper.FirstRecord, hashY2.Bytes())
	})
	return g.Wait()
}

func failCheck(pctx protocol.Context, check, reason string) error {
	metrics.ValidationFailures.WithLabelValues(check).Inc()
	pctx.Log().Errorw("shuffle verification failed", "role", pctx.Role(), "check", check)
	return &ValidationError{Reason: reason}
}

// computeAndHashTags recomputes the MAC value of every row (splitting
// off its tag, multiplying each 32-bit column with the matching
// revealed key, the tag with the appended one, and summing) and hashes
// the resulting sequence. When a row fails to split, the zero values
// feed the hash and verification fails, except with probability about
// 2^-32.
func computeAndHashTags(spec bitrow.Spec, keys []gf32.Element, rows []bitrow.Row) hashing.Hash {
	macs := make([]gf32.Element, len(rows))
	for i, rowWithTag := range rows {
		row, tag := spec.SplitRowAndTag(rowWithTag)
		entries := append(bitrow.ToElements(row), tag)

		var acc gf32.Element
		for j, entry := range entries {
			acc = acc.Add(entry.Mul(keys[j]))
		}
		macs[i] = acc
	}
	return hashing.HashElements(macs)
}
