package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openpredict/ammd/internal/domain"
)

func TestCreateMarketAssignsDenseIDs(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.fundStorage(t, "creator")

	first, err := e.markets.Create(ctx, "creator", e.marketArgs())
	require.NoError(t, err)
	second, err := e.markets.Create(ctx, "creator", e.marketArgs())
	require.NoError(t, err)

	require.Equal(t, uint64(0), first)
	require.Equal(t, uint64(1), second)

	m, err := e.markets.Get(ctx, first)
	require.NoError(t, err)
	require.True(t, m.Enabled, "market enabled once construction completes")
	require.False(t, m.Finalized)
	require.Equal(t, uint8(6), m.Pool.CollateralDecimals)
	require.Equal(t, domain.StateOpen, m.State(e.clock))
}

func TestCreateMarketValidation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.fundStorage(t, "creator")

	tests := []struct {
		name   string
		mutate func(*domain.CreateMarketArgs)
		want   error
	}{
		{"unknown collateral", func(a *domain.CreateMarketArgs) { a.CollateralToken = "shady.token" }, domain.ErrInvalidCollateral},
		{"one outcome", func(a *domain.CreateMarketArgs) { a.OutcomeTags = []string{"yes"} }, domain.ErrInvalidTagCount},
		{"too many outcomes", func(a *domain.CreateMarketArgs) {
			a.OutcomeTags = []string{"a", "b", "c", "d", "e", "f", "g", "h", "i"}
		}, domain.ErrInvalidTagCount},
		{"end time in the past", func(a *domain.CreateMarketArgs) { a.EndTime = 1 }, domain.ErrInvalidEndTime},
		{"resolution before end", func(a *domain.CreateMarketArgs) { a.ResolutionTime = a.EndTime - 1 }, domain.ErrInvalidResolutionTime},
		{"fee at one", func(a *domain.CreateMarketArgs) { a.SwapFee = u(1_000_000) }, domain.ErrFeeTooHigh},
		{"scalar without bounds", func(a *domain.CreateMarketArgs) { a.IsScalar = true }, domain.ErrInvalidScalarBounds},
		{"scalar with three outcomes", func(a *domain.CreateMarketArgs) {
			a.IsScalar = true
			a.OutcomeTags = []string{"short", "long", "mid"}
		}, domain.ErrInvalidTagCount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := e.marketArgs()
			tt.mutate(&args)
			_, err := e.markets.Create(ctx, "creator", args)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCreateMarketRequiresStorageDeposit(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.markets.Create(context.Background(), "broke", e.marketArgs())
	require.ErrorIs(t, err, domain.ErrInsufficientStorage)
}

func TestCreateMarketPausedEngine(t *testing.T) {
	e := newTestEnv(t)
	e.fundStorage(t, "creator")
	e.pause.Pause()

	_, err := e.markets.Create(context.Background(), "creator", e.marketArgs())
	require.ErrorIs(t, err, domain.ErrPaused)

	e.pause.Resume()
	_, err = e.markets.Create(context.Background(), "creator", e.marketArgs())
	require.NoError(t, err)
}

func TestSetEnabled(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.createMarket(t)

	require.NoError(t, e.markets.SetEnabled(ctx, id, false))
	m, err := e.markets.Get(ctx, id)
	require.NoError(t, err)
	require.False(t, m.Enabled)

	// A disabled market refuses deposits.
	err = e.trading.Buy(ctx, "alice", testCollateral, u(1_000), domain.BuyArgs{MarketID: id})
	require.ErrorIs(t, err, domain.ErrMarketNotEnabled)

	require.NoError(t, e.markets.SetEnabled(ctx, id, true))
	m, err = e.markets.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, m.Enabled)
}

func TestListMarketsFilters(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.fundStorage(t, "creator")

	args := e.marketArgs()
	args.Categories = []string{"sports"}
	_, err := e.markets.Create(ctx, "creator", args)
	require.NoError(t, err)
	id2, err := e.markets.Create(ctx, "creator", e.marketArgs())
	require.NoError(t, err)
	require.NoError(t, e.markets.SetEnabled(ctx, id2, false))

	all, err := e.markets.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	enabled, err := e.markets.List(ctx, domain.ListOpts{EnabledOnly: true})
	require.NoError(t, err)
	require.Len(t, enabled, 1)

	sports, err := e.markets.List(ctx, domain.ListOpts{Category: "sports"})
	require.NoError(t, err)
	require.Len(t, sports, 1)

	n, err := e.markets.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}

func TestMarketQueries(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.createMarket(t)

	balances, err := e.markets.PoolBalances(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []domain.U128{u(1_000_000), u(1_000_000)}, balances)

	sansFee, err := e.markets.SpotPriceSansFee(ctx, id, 0)
	require.NoError(t, err)
	require.Equal(t, u(500_000), sansFee)

	withFee, err := e.markets.SpotPrice(ctx, id, 0)
	require.NoError(t, err)
	require.Equal(t, u(510_204), withFee)

	lp, err := e.markets.PoolTokenBalance(ctx, id, "lp")
	require.NoError(t, err)
	require.Equal(t, u(1_000_000), lp)

	fees, err := e.markets.WithdrawableFees(ctx, id, "lp")
	require.NoError(t, err)
	require.True(t, fees.IsZero())
}
