package pool_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openpredict/ammd/internal/domain"
	"github.com/openpredict/ammd/internal/numeric"
	"github.com/openpredict/ammd/internal/pool"
)

func u(v uint64) domain.U128 { return numeric.FromUint64(v) }

// newTestPool seeds a pool with the given reserves directly; decimals 6, so
// one collateral unit is 1_000_000.
func newTestPool(t *testing.T, swapFee uint64, reserves ...uint64) *domain.Pool {
	t.Helper()
	p, err := pool.New(1, "collateral.test", 6, u(swapFee), uint16(len(reserves)))
	require.NoError(t, err)
	for i, r := range reserves {
		p.Reserves[i] = u(r)
		p.Weights[i] = u(1)
	}
	p.TotalLPSupply = u(1) // mark seeded; LP accounting not under test here
	return &p
}

func TestSpotPriceSansFeeBalanced(t *testing.T) {
	p := newTestPool(t, 0, 1_000_000, 1_000_000)

	for target := uint16(0); target < 2; target++ {
		price, err := pool.SpotPriceSansFee(p, target)
		require.NoError(t, err)
		require.Equal(t, u(500_000), price, "balanced binary pool prices at one half")
	}
}

func TestSpotPriceSansFeeSkewed(t *testing.T) {
	// Outcome 0 holds the smaller reserve, so it is the likelier outcome
	// and must carry the higher price.
	p := newTestPool(t, 0, 100, 300)

	p0, err := pool.SpotPriceSansFee(p, 0)
	require.NoError(t, err)
	p1, err := pool.SpotPriceSansFee(p, 1)
	require.NoError(t, err)

	require.Equal(t, u(750_000), p0)
	require.Equal(t, u(250_000), p1)

	sum, err := p0.Add(p1)
	require.NoError(t, err)
	require.Equal(t, u(1_000_000), sum, "sans-fee prices sum to one")
}

func TestSpotPriceSansFeeThreeOutcomes(t *testing.T) {
	p := newTestPool(t, 0, 1_000, 1_000, 1_000)

	price, err := pool.SpotPriceSansFee(p, 0)
	require.NoError(t, err)
	require.Equal(t, u(333_333), price)
}

func TestSpotPriceFoldsFee(t *testing.T) {
	// 2% fee: effective price = sans-fee / 0.98.
	p := newTestPool(t, 20_000, 1_000_000, 1_000_000)

	price, err := pool.SpotPrice(p, 0)
	require.NoError(t, err)
	require.Equal(t, u(510_204), price)
}

func TestSpotPriceInvalidOutcome(t *testing.T) {
	p := newTestPool(t, 0, 1_000, 1_000)

	_, err := pool.SpotPriceSansFee(p, 5)
	require.ErrorIs(t, err, domain.ErrInvalidOutcome)
}

func TestCalcBuyAmountNoFee(t *testing.T) {
	p := newTestPool(t, 0, 1_000, 1_000)

	// Investing 1000 mints 1000 into both reserves; target reserve must
	// fall to 500 to keep the product constant, releasing 1500 shares.
	out, err := pool.CalcBuyAmount(p, u(1_000), 0)
	require.NoError(t, err)
	require.Equal(t, u(1_500), out)
}

func TestCalcBuyAmountWithFee(t *testing.T) {
	p := newTestPool(t, 20_000, 1_000_000, 1_000_000)

	// fee = 20_000, invested = 980_000;
	// newTarget = ceil(10^12 / 1_980_000) = 505_051;
	// shares = 1_000_000 + 980_000 - 505_051.
	out, err := pool.CalcBuyAmount(p, u(1_000_000), 0)
	require.NoError(t, err)
	require.Equal(t, u(1_474_949), out)
}

func TestCalcSellSharesInMirrorsBuy(t *testing.T) {
	// State after the no-fee buy above: selling the collateral back costs
	// the same number of shares the buy produced.
	p := newTestPool(t, 0, 500, 2_000)

	in, err := pool.CalcSellSharesIn(p, u(1_000), 0)
	require.NoError(t, err)
	require.Equal(t, u(1_500), in)
}

func TestCalcSellSharesInDrainsReserve(t *testing.T) {
	p := newTestPool(t, 0, 500, 800)

	_, err := pool.CalcSellSharesIn(p, u(900), 0)
	require.Error(t, err)
}

func TestFeeForAmountOut(t *testing.T) {
	p := newTestPool(t, 20_000, 1_000_000, 1_000_000)

	// fee = ceil(980_000 * 20_000 / 980_000) = 20_000: paying out what a
	// buy invested charges the same fee the buy did.
	fee, err := pool.FeeForAmountOut(p, u(980_000))
	require.NoError(t, err)
	require.Equal(t, u(20_000), fee)
}
