package numeric

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

// max128 is 2^128 - 1.
const max128 = "340282366920938463463374607431768211455"

func TestFromString(t *testing.T) {
	x, err := FromString("12345")
	require.NoError(t, err)
	require.Equal(t, uint64(12345), x.Uint64())

	_, err = FromString("-1")
	require.Error(t, err)

	_, err = FromString("not a number")
	require.Error(t, err)

	x, err = FromString(max128)
	require.NoError(t, err)
	require.Equal(t, max128, x.String())

	_, err = FromString("340282366920938463463374607431768211456")
	require.ErrorIs(t, err, ErrOverflow)
}

func TestCheckedArithmetic(t *testing.T) {
	a := FromUint64(10)
	b := FromUint64(3)

	sum, err := a.Add(b)
	require.NoError(t, err)
	require.Equal(t, uint64(13), sum.Uint64())

	diff, err := a.Sub(b)
	require.NoError(t, err)
	require.Equal(t, uint64(7), diff.Uint64())

	_, err = b.Sub(a)
	require.ErrorIs(t, err, ErrOverflow)

	prod, err := a.Mul(b)
	require.NoError(t, err)
	require.Equal(t, uint64(30), prod.Uint64())

	quot, err := a.Div(b)
	require.NoError(t, err)
	require.Equal(t, uint64(3), quot.Uint64())

	_, err = a.Div(Zero())
	require.ErrorIs(t, err, ErrDivideByZero)

	limit := MustFromString(max128)
	_, err = limit.Add(FromUint64(1))
	require.ErrorIs(t, err, ErrOverflow)
	_, err = limit.Mul(FromUint64(2))
	require.ErrorIs(t, err, ErrOverflow)
}

func TestMulDivUsesWideIntermediate(t *testing.T) {
	// a*b overflows 128 bits but the quotient fits.
	a := MustFromString(max128)
	b := FromUint64(1000)
	c := FromUint64(2000)

	got, err := a.MulDiv(b, c)
	require.NoError(t, err)
	want, err := a.Div(FromUint64(2))
	require.NoError(t, err)
	require.True(t, got.Eq(want))

	// Quotient itself out of range.
	_, err = a.MulDiv(b, FromUint64(1))
	require.ErrorIs(t, err, ErrOverflow)
}

func TestMulDivCeil(t *testing.T) {
	exact, err := FromUint64(10).MulDivCeil(FromUint64(3), FromUint64(6))
	require.NoError(t, err)
	require.Equal(t, uint64(5), exact.Uint64())

	rounded, err := FromUint64(10).MulDivCeil(FromUint64(3), FromUint64(7))
	require.NoError(t, err)
	require.Equal(t, uint64(5), rounded.Uint64()) // 30/7 = 4.28 -> 5
}

func TestJSONRoundTrip(t *testing.T) {
	x := MustFromString("18446744073709551616") // 2^64, beyond uint64
	b, err := json.Marshal(x)
	require.NoError(t, err)
	require.Equal(t, `"18446744073709551616"`, string(b))

	var y U128
	require.NoError(t, json.Unmarshal(b, &y))
	require.True(t, x.Eq(y))

	// Bare numbers are accepted too.
	require.NoError(t, json.Unmarshal([]byte(`42`), &y))
	require.Equal(t, uint64(42), y.Uint64())
}

func TestSumAndMax(t *testing.T) {
	xs := []U128{FromUint64(1), FromUint64(5), FromUint64(3)}
	total, err := Sum(xs)
	require.NoError(t, err)
	require.Equal(t, uint64(9), total.Uint64())
	require.Equal(t, uint64(5), Max(xs).Uint64())
	require.True(t, Max(nil).IsZero())
}

func TestPow10(t *testing.T) {
	require.Equal(t, uint64(1), Pow10(0).Uint64())
	require.Equal(t, uint64(1_000_000), Pow10(6).Uint64())
	require.Equal(t, "100000000000000000000", Pow10(20).String())
}
