package boolean

import (
	"context"
	"fmt"
	"math/bits"

	"github.com/mixguard/mixguard/gf32"
	"github.com/mixguard/mixguard/helper"
	"github.com/mixguard/mixguard/protocol"
)

// Comparison sub-steps.
const (
	stepCheckTrimmed      = "check_trimmed"
	stepCheckIfAnyOnes    = "check_if_any_ones"
	stepLeadingOnesOrRest = "leading_ones_or_rest"
	stepCheckIfAllOnes    = "check_if_all_ones"
	stepCheckLSB          = "check_least_significant_bits"
	stepFinal             = "final_step"
)

// LessThanPrime compares a bit-decomposed shared integer against the
// public prime and returns a share of one iff x < prime. Supported
// primes are Mersenne primes and primes of the form 2^n - 5 (which
// covers the 32-bit field prime 2^32 - 5); any other modulus is a
// caller bug and panics.
//
// Panics when x has fewer bits than the prime.
func LessThanPrime(ctx context.Context, pctx protocol.Context, id helper.RecordID, prime uint64, x Bits) (gf32.Share, error) {
	gtoe, err := greaterEqualPrime(ctx, pctx, id, prime, x)
	if err != nil {
		return gf32.Share{}, err
	}
	return Not(pctx.Role(), gtoe), nil
}

func greaterEqualPrime(ctx context.Context, pctx protocol.Context, id helper.RecordID, prime uint64, x Bits) (gf32.Share, error) {
	l := bits.Len64(prime)
	switch {
	case len(x) > l:
		// high bits set already put x above the prime
		leadingOnes, err := AnyOnes(ctx, pctx.Narrow(stepCheckIfAnyOnes), id, x[l:])
		if err != nil {
			return gf32.Share{}, err
		}
		trimmed, err := greaterEqualPrimeTrimmed(ctx, pctx.Narrow(stepCheckTrimmed), id, prime, x[:l])
		if err != nil {
			return gf32.Share{}, err
		}
		return Or(ctx, pctx.Narrow(stepLeadingOnesOrRest), id, leadingOnes, trimmed)
	case len(x) == l:
		return greaterEqualPrimeTrimmed(ctx, pctx.Narrow(stepCheckTrimmed), id, prime, x)
	default:
		panic(fmt.Sprintf("boolean: comparing %d bits against a %d-bit prime", len(x), l))
	}
}

func greaterEqualPrimeTrimmed(ctx context.Context, pctx protocol.Context, id helper.RecordID, prime uint64, x Bits) (gf32.Share, error) {
	l := bits.Len64(prime)

	// Mersenne prime: the only value >= p in l bits is p itself, all
	// ones.
	if prime == 1<<uint(l)-1 {
		return AllOnes(ctx, pctx.Narrow(stepCheckIfAllOnes), id, x)
	}

	// 2^l - 5: the prime's low three bits are [1 1 0], everything
	// above is ones.
	if prime == 1<<uint(l)-5 {
		lsb, err := checkLeastSignificantBits(ctx, pctx.Narrow(stepCheckLSB), id, x[:3])
		if err != nil {
			return gf32.Share{}, err
		}
		high, err := AllOnes(ctx, pctx.Narrow(stepCheckIfAllOnes), id, x[3:])
		if err != nil {
			return gf32.Share{}, err
		}
		return pctx.Narrow(stepFinal).Multiply(ctx, id, lsb, high)
	}

	panic(fmt.Sprintf("boolean: prime %d is neither Mersenne nor 2^n-5", prime))
}

// checkLeastSignificantBits assumes the prime's low bits are [1 1 0]
// (little-endian) and all higher bits of x are known to be ones. The
// low three bits then meet or exceed the prime's exactly when bit 2 is
// set, or when they equal [1 1 0]; three multiplications decide it.
func checkLeastSignificantBits(ctx context.Context, pctx protocol.Context, id helper.RecordID, x Bits) (gf32.Share, error) {
	lowTwo, err := pctx.Narrow(bitStep(0)).Multiply(ctx, id, x[0], x[1])
	if err != nil {
		return gf32.Share{}, err
	}
	pivot := x[2]
	equalsPrime, err := pctx.Narrow(bitStep(1)).Multiply(ctx, id, lowTwo, Not(pctx.Role(), pivot))
	if err != nil {
		return gf32.Share{}, err
	}
	return Or(ctx, pctx.Narrow(bitStep(2)), id, pivot, equalsPrime)
}
