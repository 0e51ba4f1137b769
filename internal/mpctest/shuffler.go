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

// SemiHonestShuffler is the in-memory semi-honest shuffle collaborator.
// Each ring edge contributes one shared permutation and fresh masks;
// every party applies the permutations it knows to re-randomized data
// and forwards, so no single party ever sees the composed permutation.
// The tables each role keeps or forwards double as the intermediate
// messages consumed by the verifier.
type SemiHonestShuffler struct{}

var _ shuffle.Shuffler = SemiHonestShuffler{}

func (SemiHonestShuffler) Shuffle(ctx context.Context, pctx protocol.Context, spec bitrow.Spec, rows []bitrow.Share) ([]bitrow.Share, shuffle.IntermediateMessages, error) {
	pc, ok := pctx.(*partyContext)
	if !ok {
		return nil, nil, fmt.Errorf("shuffler needs an mpctest context, got %T", pctx)
	}
	sh := pc.Narrow("shuffle").(*partyContext)
	switch pc.role {
	case helper.H1:
		return h1Flow(ctx, sh, spec, rows)
	case helper.H2:
		return h2Flow(ctx, sh, spec, rows)
	default:
		return h3Flow(ctx, sh, spec, rows)
	}
}

// Sub-steps of one semi-honest shuffle pass.
const (
	stepTransferXY = "transfer_x_y"
	stepTransferC  = "transfer_c"
)

// H1 masks and permutes its combined slices twice, hands the result to
// H2 and keeps only fresh output masks.
func h1Flow(ctx context.Context, sh *partyContext, spec bitrow.Spec, rows []bitrow.Share) ([]bitrow.Share, shuffle.IntermediateMessages, error) {
	n := len(rows)
	w := spec.TaggedBytes()

	// left edge is shared with H3, right edge with H2
	perm12 := edgePermutation(sh.rightSeed(), sh.gate, n)
	z12 := edgeMasks(sh.rightSeed(), sh.gate, n, w)
	perm31 := edgePermutation(sh.leftSeed(), sh.gate, n)
	z31 := edgeMasks(sh.leftSeed(), sh.gate, n, w)
	aHat := outputMasks(sh.leftSeed(), sh.gate, n, w)
	bHat := outputMasks(sh.rightSeed(), sh.gate, n, w)

	combined := make([]bitrow.Row, n)
	for i, r := range rows {
		combined[i] = bitrow.XOR(bitrow.XOR(r.Left, r.Right), z12[i])
	}
	x1 := applyPermutation(perm12, combined)

	x2 := applyPermutation(perm31, xorRows(x1, z31))
	xyCtx := sh.Narrow(stepTransferXY).SetTotalRecords(n)
	for i, row := range x2 {
		if err := xyCtx.Send(ctx, helper.H2, helper.RecordID(i), row); err != nil {
			return nil, nil, err
		}
	}

	out := make([]bitrow.Share, n)
	for i := range out {
		out[i] = bitrow.Share{Left: aHat[i], Right: bHat[i]}
	}
	return out, &shuffle.H1Messages{X1: x1}, nil
}

// H2 opens the pass by masking its right slice for H3, then applies
// the middle permutation to what H1 produced and forwards it onward.
func h2Flow(ctx context.Context, sh *partyContext, spec bitrow.Spec, rows []bitrow.Share) ([]bitrow.Share, shuffle.IntermediateMessages, error) {
	n := len(rows)
	w := spec.TaggedBytes()

	perm12 := edgePermutation(sh.leftSeed(), sh.gate, n)
	z12 := edgeMasks(sh.leftSeed(), sh.gate, n, w)
	perm23 := edgePermutation(sh.rightSeed(), sh.gate, n)
	z23 := edgeMasks(sh.rightSeed(), sh.gate, n, w)
	bHat := outputMasks(sh.leftSeed(), sh.gate, n, w)

	xyCtx := sh.Narrow(stepTransferXY).SetTotalRecords(n)
	masked := make([]bitrow.Row, n)
	for i, r := range rows {
		masked[i] = bitrow.XOR(r.Right, z12[i])
	}
	y1 := applyPermutation(perm12, masked)
	for i, row := range y1 {
		if err := xyCtx.Send(ctx, helper.H3, helper.RecordID(i), row); err != nil {
			return nil, nil, err
		}
	}

	x2 := make([]bitrow.Row, n)
	for i := range x2 {
		row, err := xyCtx.Receive(ctx, helper.H1, helper.RecordID(i))
		if err != nil {
			return nil, nil, err
		}
		x2[i] = row
	}

	cCtx := sh.Narrow(stepTransferC).SetTotalRecords(n)
	x3 := xorRows(applyPermutation(perm23, xorRows(x2, z23)), bHat)
	for i, row := range x3 {
		if err := cCtx.Send(ctx, helper.H3, helper.RecordID(i), row); err != nil {
			return nil, nil, err
		}
	}

	out := make([]bitrow.Share, n)
	for i := range out {
		cHat, err := cCtx.Receive(ctx, helper.H3, helper.RecordID(i))
		if err != nil {
			return nil, nil, err
		}
		out[i] = bitrow.Share{Left: bHat[i], Right: cHat}
	}
	return out, &shuffle.H2Messages{X2: x2}, nil
}

// H3 closes the ring: it applies the last two permutations to H2's
// table and combines with H2's forwarded branch into the C slice.
func h3Flow(ctx context.Context, sh *partyContext, spec bitrow.Spec, rows []bitrow.Share) ([]bitrow.Share, shuffle.IntermediateMessages, error) {
	n := len(rows)
	w := spec.TaggedBytes()

	perm23 := edgePermutation(sh.leftSeed(), sh.gate, n)
	z23 := edgeMasks(sh.leftSeed(), sh.gate, n, w)
	perm31 := edgePermutation(sh.rightSeed(), sh.gate, n)
	z31 := edgeMasks(sh.rightSeed(), sh.gate, n, w)
	aHat := outputMasks(sh.rightSeed(), sh.gate, n, w)

	xyCtx := sh.Narrow(stepTransferXY).SetTotalRecords(n)
	y1 := make([]bitrow.Row, n)
	for i := range y1 {
		row, err := xyCtx.Receive(ctx, helper.H2, helper.RecordID(i))
		if err != nil {
			return nil, nil, err
		}
		y1[i] = row
	}

	y2 := applyPermutation(perm31, xorRows(y1, z31))
	y3 := applyPermutation(perm23, xorRows(y2, z23))

	cCtx := sh.Narrow(stepTransferC).SetTotalRecords(n)
	out := make([]bitrow.Share, n)
	for i := range out {
		x3, err := cCtx.Receive(ctx, helper.H2, helper.RecordID(i))
		if err != nil {
			return nil, nil, err
		}
		cHat := bitrow.XOR(bitrow.XOR(x3, y3[i]), aHat[i])
		if err := cCtx.Send(ctx, helper.H2, helper.RecordID(i), cHat); err != nil {
			return nil, nil, err
		}
		out[i] = bitrow.Share{Left: cHat, Right: aHat[i]}
	}
	return out, &shuffle.H3Messages{Y1: y1, Y2: y2}, nil
}

// edgePermutation derives the permutation shared by one edge's two
// parties at this gate, by a seeded Fisher-Yates pass.
func edgePermutation(seed [32]byte, gate string, n int) []int {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	if n < 2 {
		return perm
	}
	raw := edgeBytes(seed, gate+"/permutation", helper.FirstRecord, 4*(n-1))
	for i := n - 1; i > 0; i-- {
		j := int(binary.LittleEndian.Uint32(raw[(n-1-i)*4:]) % uint32(i+1))
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm
}

func edgeMasks(seed [32]byte, gate string, n, width int) []bitrow.Row {
	return maskRows(seed, gate+"/masks", n, width)
}

func outputMasks(seed [32]byte, gate string, n, width int) []bitrow.Row {
	return maskRows(seed, gate+"/output_masks", n, width)
}

func maskRows(seed [32]byte, gate string, n, width int) []bitrow.Row {
	rows := make([]bitrow.Row, n)
	for i := range rows {
		rows[i] = bitrow.Row(edgeBytes(seed, gate, helper.RecordID(i), width))
	}
	return rows
}

func applyPermutation(perm []int, rows []bitrow.Row) []bitrow.Row {
	out := make([]bitrow.Row, len(rows))
	for i, p := range perm {
		out[i] = rows[p].Clone()
	}
	return out
}

func xorRows(a, b []bitrow.Row) []bitrow.Row {
	out := make([]bitrow.Row, len(a))
	for i := range a {
		out[i] = bitrow.XOR(a[i], b[i])
	}
	return out
}
