// Package boolean provides bit-level circuits over replicated
// XOR-shared bits: logic gates, ripple-carry addition, sign-extending
// multiplication, and bitwise comparison against a field prime.
//
// A shared bit is a gf32.Share whose slices are all zero or one; XOR is
// the local share addition and AND is one secure multiplication. All
// circuits take a context on which the caller has already declared the
// total record count, and derive their own sub-steps per gate, so a
// whole batch of rows can run one circuit concurrently under distinct
// record ids.
package boolean

import (
	"context"
	"fmt"

	"github.com/mixguard/mixguard/gf32"
	"github.com/mixguard/mixguard/helper"
	"github.com/mixguard/mixguard/protocol"
)

// Bits is a bit-decomposed shared integer, least significant bit first.
type Bits []gf32.Share

// Clone returns an independent copy.
func (b Bits) Clone() Bits {
	out := make(Bits, len(b))
	copy(out, b)
	return out
}

// One returns this role's share of the public constant one. The
// convention fixes the constant in the first additive slice, held by H1
// on its left and by H3 on its right.
func One(role helper.Role) gf32.Share {
	switch role {
	case helper.H1:
		return gf32.Share{Left: gf32.One}
	case helper.H3:
		return gf32.Share{Right: gf32.One}
	default:
		return gf32.Share{}
	}
}

// Not flips a shared bit by adding the public one. Local, no rounds.
func Not(role helper.Role, b gf32.Share) gf32.Share {
	return b.Add(One(role))
}

// And multiplies two shared bits. One secure multiplication round.
func And(ctx context.Context, pctx protocol.Context, id helper.RecordID, a, b gf32.Share) (gf32.Share, error) {
	return pctx.Multiply(ctx, id, a, b)
}

// Or computes a or b as a xor b xor ab. One multiplication round.
func Or(ctx context.Context, pctx protocol.Context, id helper.RecordID, a, b gf32.Share) (gf32.Share, error) {
	ab, err := pctx.Multiply(ctx, id, a, b)
	if err != nil {
		return gf32.Share{}, err
	}
	return a.Add(b).Add(ab), nil
}

func bitStep(i int) string {
	return fmt.Sprintf("bit%d", i)
}

// AllOnes returns a share of one iff every input bit is one, by a
// sequential fold of secure multiplications. len(x)-1 rounds.
func AllOnes(ctx context.Context, pctx protocol.Context, id helper.RecordID, x Bits) (gf32.Share, error) {
	if len(x) == 0 {
		return One(pctx.Role()), nil
	}
	acc := x[0]
	for i := 1; i < len(x); i++ {
		var err error
		acc, err = pctx.Narrow(bitStep(i)).Multiply(ctx, id, acc, x[i])
		if err != nil {
			return gf32.Share{}, err
		}
	}
	return acc, nil
}

// AnyOnes returns a share of one iff at least one input bit is one:
// the complement of all bits being zero.
func AnyOnes(ctx context.Context, pctx protocol.Context, id helper.RecordID, x Bits) (gf32.Share, error) {
	role := pctx.Role()
	flipped := make(Bits, len(x))
	for i, b := range x {
		flipped[i] = Not(role, b)
	}
	allZero, err := AllOnes(ctx, pctx, id, flipped)
	if err != nil {
		return gf32.Share{}, err
	}
	return Not(role, allZero), nil
}

// IntegerAdd adds two bit-decomposed shared integers with a ripple
// carry and returns the sum bits plus the final carry. The shorter
// input is zero-extended; the sum has the length of the longer one.
// One multiplication round per bit position.
func IntegerAdd(ctx context.Context, pctx protocol.Context, id helper.RecordID, x, y Bits) (Bits, gf32.Share, error) {
	n := len(x)
	if len(y) > n {
		n = len(y)
	}
	var carry gf32.Share
	sum := make(Bits, n)
	for i := 0; i < n; i++ {
		var xb, yb gf32.Share
		if i < len(x) {
			xb = x[i]
		}
		if i < len(y) {
			yb = y[i]
		}
		sum[i] = xb.Add(yb).Add(carry)

		// carry' = (x xor c)(y xor c) xor c
		m, err := pctx.Narrow(bitStep(i)).Multiply(ctx, id, xb.Add(carry), yb.Add(carry))
		if err != nil {
			return nil, gf32.Share{}, err
		}
		carry = m.Add(carry)
	}
	return sum, carry, nil
}

// IntegerMul multiplies two bit-decomposed shared integers by
// schoolbook shift-and-add at double precision: x is taken as
// unsigned and zero-extended, y as two's complement and sign-extended,
// and the product has len(x)+len(y) bits, so it never wraps.
func IntegerMul(ctx context.Context, pctx protocol.Context, id helper.RecordID, x, y Bits) (Bits, error) {
	if len(x) == 0 || len(y) == 0 {
		return Bits{}, nil
	}
	n := len(x) + len(y)

	xe := make(Bits, n)
	copy(xe, x)
	ye := make(Bits, n)
	copy(ye, y)
	for i := len(y); i < n; i++ {
		ye[i] = y[len(y)-1]
	}

	var result Bits
	for i := 0; i < n; i++ {
		yCtx := pctx.Narrow(bitStep(i))

		// partial product of y's bit i with x, shifted up i places
		partial := make(Bits, n)
		for j := 0; j < n-i; j++ {
			m, err := yCtx.Narrow(bitStep(j)).Multiply(ctx, id, ye[i], xe[j])
			if err != nil {
				return nil, err
			}
			partial[i+j] = m
		}

		if i == 0 {
			result = partial
			continue
		}
		sum, _, err := IntegerAdd(ctx, yCtx.Narrow("add_partial_products"), id, partial, result)
		if err != nil {
			return nil, err
		}
		result = sum
	}
	return result, nil
}
