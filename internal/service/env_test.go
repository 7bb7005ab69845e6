package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openpredict/ammd/internal/domain"
	"github.com/openpredict/ammd/internal/ledger"
	"github.com/openpredict/ammd/internal/numeric"
	"github.com/openpredict/ammd/internal/store/memory"
)

const (
	testCollateral = "usdc.token"
	testBondToken  = "bond.token"
)

// testEnv wires the services against the in-memory ledger with a controlled
// clock. One collateral unit is 1_000_000 (six decimals).
type testEnv struct {
	store      *memory.Store
	tokens     *fakeTokens
	prices     *fakePrices
	bus        *fakeBus
	oracle     *fakeOracle
	archiver   *fakeArchiver
	pause      *Switch
	markets    *MarketService
	trading    *TradingService
	settlement *SettlementService
	storageSvc *StorageService
	gateway    *TransferGateway

	clock domain.Millis
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	e := &testEnv{
		store:    memory.New(),
		tokens:   newFakeTokens(6),
		prices:   newFakePrices(),
		bus:      newFakeBus(),
		archiver: &fakeArchiver{},
		pause:    NewSwitch(),
		clock:    1_000_000,
	}
	e.oracle = &fakeOracle{config: domain.OracleConfig{
		BondToken:    testBondToken,
		ValidityBond: u(100),
	}}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	acct := ledger.New(u(1))
	now := func() domain.Millis { return e.clock }

	e.markets = NewMarketService(e.store, fakeCache{}, e.bus, e.tokens, acct, e.pause, []string{testCollateral}, nil, logger)
	e.markets.now = now
	e.trading = NewTradingService(e.store, fakeLocks{}, fakeCache{}, e.prices, e.bus, e.tokens, acct, e.pause, 5*time.Second, logger)
	e.trading.now = now
	e.settlement = NewSettlementService(e.store, fakeLocks{}, fakeCache{}, e.prices, e.bus, e.tokens, e.oracle, e.archiver, acct, e.pause, 5*time.Second, logger)
	e.settlement.now = now
	e.storageSvc = NewStorageService(e.store, acct, e.tokens, e.pause, testCollateral, logger)
	e.gateway = NewTransferGateway(e.markets, e.trading, e.settlement, logger)
	return e
}

func u(v uint64) domain.U128 { return numeric.FromUint64(v) }

func (e *testEnv) fundStorage(t *testing.T, account string) {
	t.Helper()
	require.NoError(t, e.storageSvc.Deposit(context.Background(), account, u(10_000_000)))
}

func (e *testEnv) marketArgs() domain.CreateMarketArgs {
	return domain.CreateMarketArgs{
		Description:     "Will it rain tomorrow?",
		OutcomeTags:     []string{"yes", "no"},
		Categories:      []string{"weather"},
		Sources:         []domain.Source{{EndPoint: "https://api.weather.example", SourcePath: "data.rained"}},
		EndTime:         e.clock + 3_600_000,
		ResolutionTime:  e.clock + 7_200_000,
		ChallengePeriod: 43_200_000,
		CollateralToken: testCollateral,
		SwapFee:         u(20_000), // 2%
	}
}

// createMarket creates and seeds a binary market with one unit of liquidity
// at even odds, returning its id.
func (e *testEnv) createMarket(t *testing.T) uint64 {
	t.Helper()
	ctx := context.Background()

	e.fundStorage(t, "creator")
	id, err := e.markets.Create(ctx, "creator", e.marketArgs())
	require.NoError(t, err)

	e.fundStorage(t, "lp")
	err = e.trading.AddLiquidity(ctx, "lp", testCollateral, u(1_000_000), domain.AddLiquidityArgs{
		MarketID:         id,
		WeightIndication: []domain.U128{u(1), u(1)},
	})
	require.NoError(t, err)
	return id
}

// pastResolution advances the clock beyond the market's resolution time.
func (e *testEnv) pastResolution(t *testing.T, id uint64) {
	t.Helper()
	m, err := e.store.GetMarket(context.Background(), id)
	require.NoError(t, err)
	e.clock = m.ResolutionTime + 1
}
