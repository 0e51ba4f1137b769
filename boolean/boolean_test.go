package boolean_test

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mixguard/mixguard/boolean"
	"github.com/mixguard/mixguard/helper"
	"github.com/mixguard/mixguard/internal/mpctest"
	"github.com/mixguard/mixguard/protocol"
)

// runCircuit evaluates a bit circuit on all three parties and
// reconstructs the output bits.
func runCircuit(t *testing.T, f func(ctx context.Context, pctx protocol.Context, role helper.Role) (boolean.Bits, error)) uint64 {
	t.Helper()
	world := mpctest.NewWorld()
	out, errs := mpctest.Run(context.Background(), world, func(ctx context.Context, pctx protocol.Context) (boolean.Bits, error) {
		return f(ctx, pctx.Narrow("circuit").SetTotalRecords(1), pctx.Role())
	})
	for _, err := range errs {
		require.NoError(t, err)
	}
	return mpctest.ReconstructBits(out)
}

func TestNotAndOr(t *testing.T) {
	rng := rand.New(rand.NewSource(31))
	for _, pair := range [][2]uint64{{0, 0}, {0, 1}, {1, 0}, {1, 1}} {
		a := mpctest.SplitBits(rng, pair[0], 1)
		b := mpctest.SplitBits(rng, pair[1], 1)

		got := runCircuit(t, func(ctx context.Context, pctx protocol.Context, role helper.Role) (boolean.Bits, error) {
			or, err := boolean.Or(ctx, pctx, helper.FirstRecord, a[role][0], b[role][0])
			if err != nil {
				return nil, err
			}
			return boolean.Bits{or, boolean.Not(role, a[role][0])}, nil
		})
		wantOr := pair[0] | pair[1]
		wantNot := 1 &^ pair[0]
		require.Equal(t, wantOr|wantNot<<1, got, "a=%d b=%d", pair[0], pair[1])
	}
}

func TestAllOnesAnyOnes(t *testing.T) {
	rng := rand.New(rand.NewSource(32))
	for _, v := range []uint64{0, 1, 0b1010, 0b1111, 0b0111} {
		bits := mpctest.SplitBits(rng, v, 4)
		got := runCircuit(t, func(ctx context.Context, pctx protocol.Context, role helper.Role) (boolean.Bits, error) {
			all, err := boolean.AllOnes(ctx, pctx.Narrow("all"), helper.FirstRecord, bits[role])
			if err != nil {
				return nil, err
			}
			any, err := boolean.AnyOnes(ctx, pctx.Narrow("any"), helper.FirstRecord, bits[role])
			if err != nil {
				return nil, err
			}
			return boolean.Bits{all, any}, nil
		})
		var want uint64
		if v == 0b1111 {
			want |= 1
		}
		if v != 0 {
			want |= 2
		}
		require.Equal(t, want, got, "v=%b", v)
	}
}

func TestIntegerAdd(t *testing.T) {
	rng := rand.New(rand.NewSource(33))
	for i := 0; i < 8; i++ {
		x := rng.Uint64() & 0xff
		y := rng.Uint64() & 0xff
		xs := mpctest.SplitBits(rng, x, 8)
		ys := mpctest.SplitBits(rng, y, 8)

		got := runCircuit(t, func(ctx context.Context, pctx protocol.Context, role helper.Role) (boolean.Bits, error) {
			sum, carry, err := boolean.IntegerAdd(ctx, pctx, helper.FirstRecord, xs[role], ys[role])
			if err != nil {
				return nil, err
			}
			return append(sum, carry), nil
		})
		require.Equal(t, x+y, got, "x=%d y=%d", x, y)
	}
}

func TestIntegerMulSignExtends(t *testing.T) {
	rng := rand.New(rand.NewSource(34))
	cases := [][2]uint64{{3, 5}, {0, 200}, {255, 255}, {17, 0x80}, {200, 0xff}}
	for _, c := range cases {
		x, y := c[0], c[1]
		xs := mpctest.SplitBits(rng, x, 8)
		ys := mpctest.SplitBits(rng, y, 8)

		got := runCircuit(t, func(ctx context.Context, pctx protocol.Context, role helper.Role) (boolean.Bits, error) {
			return boolean.IntegerMul(ctx, pctx, helper.FirstRecord, xs[role], ys[role])
		})

		// x unsigned, y in two's complement over 8 bits
		ySigned := int64(y)
		if y&0x80 != 0 {
			ySigned -= 256
		}
		want := uint64(int64(x)*ySigned) & 0xffff
		require.Equal(t, want, got, "x=%d y=%d", x, y)
	}
}

func TestLessThanMersennePrime(t *testing.T) {
	const prime = 1<<31 - 1
	cases := map[uint64]uint64{
		0:         1,
		1:         1,
		prime - 1: 1,
		prime:     0,
	}
	rng := rand.New(rand.NewSource(35))
	for v, want := range cases {
		bits := mpctest.SplitBits(rng, v, 31)
		got := runCircuit(t, func(ctx context.Context, pctx protocol.Context, role helper.Role) (boolean.Bits, error) {
			lt, err := boolean.LessThanPrime(ctx, pctx, helper.FirstRecord, prime, bits[role])
			if err != nil {
				return nil, err
			}
			return boolean.Bits{lt}, nil
		})
		require.Equal(t, want, got, "v=%d", v)
	}
}

func TestLessThanPrime32BitWithLeadingBits(t *testing.T) {
	// 32-bit inputs against the 31-bit Mersenne prime exercise the
	// leading-ones branch
	const prime = 1<<31 - 1
	cases := map[uint64]uint64{
		prime - 1:        1,
		prime:            0,
		prime + 1:        0,
		1<<32 - 1:        0,
		(1 << 31) | 0x0f: 0,
		0x0f:             1,
	}
	rng := rand.New(rand.NewSource(36))
	for v, want := range cases {
		bits := mpctest.SplitBits(rng, v, 32)
		got := runCircuit(t, func(ctx context.Context, pctx protocol.Context, role helper.Role) (boolean.Bits, error) {
			lt, err := boolean.LessThanPrime(ctx, pctx, helper.FirstRecord, prime, bits[role])
			if err != nil {
				return nil, err
			}
			return boolean.Bits{lt}, nil
		})
		require.Equal(t, want, got, "v=%d", v)
	}
}

func TestLessThanPrimeMinus5(t *testing.T) {
	const prime = 1<<32 - 5
	cases := map[uint64]uint64{
		0:         1,
		65_535:    1,
		prime - 4: 1,
		prime - 1: 1,
		prime:     0,
		prime + 1: 0,
		prime + 4: 0,
	}
	rng := rand.New(rand.NewSource(37))
	for v, want := range cases {
		bits := mpctest.SplitBits(rng, v, 32)
		got := runCircuit(t, func(ctx context.Context, pctx protocol.Context, role helper.Role) (boolean.Bits, error) {
			lt, err := boolean.LessThanPrime(ctx, pctx, helper.FirstRecord, prime, bits[role])
			if err != nil {
				return nil, err
			}
			return boolean.Bits{lt}, nil
		})
		require.Equal(t, want, got, "v=%d", v)
	}
}
