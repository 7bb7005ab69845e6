package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openpredict/ammd/internal/domain"
)

func TestHandleTransferBuy(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.createMarket(t)
	e.fundStorage(t, "alice")

	unused, err := e.gateway.HandleTransfer(ctx, "alice", testCollateral, u(1_000_000),
		`{"BuyArgs": {"market_id": "0", "outcome_target": 0, "min_shares_out": "0"}}`)
	require.NoError(t, err)
	require.True(t, unused.IsZero(), "successful deposit is fully consumed")

	held, err := e.markets.ShareBalance(ctx, id, 0, "alice")
	require.NoError(t, err)
	require.Equal(t, u(1_474_949), held)
}

func TestHandleTransferRefundsBadPayload(t *testing.T) {
	e := newTestEnv(t)
	e.createMarket(t)

	for _, msg := range []string{
		`not json`,
		`{}`,
		`{"BuyArgs": {}, "AddLiquidityArgs": {}}`,
		`{"UnknownArgs": {}}`,
	} {
		unused, err := e.gateway.HandleTransfer(context.Background(), "alice", testCollateral, u(500), msg)
		require.NoError(t, err)
		require.Equal(t, u(500), unused, "refused payload refunds the full deposit: %s", msg)
	}
}

func TestHandleTransferRefundsDomainRejection(t *testing.T) {
	e := newTestEnv(t)
	id := e.createMarket(t)
	e.fundStorage(t, "alice")

	// Slippage guard trips: deposit comes back rather than erroring.
	unused, err := e.gateway.HandleTransfer(context.Background(), "alice", testCollateral, u(1_000_000),
		`{"BuyArgs": {"market_id": "0", "outcome_target": 0, "min_shares_out": "99000000"}}`)
	require.NoError(t, err)
	require.Equal(t, u(1_000_000), unused)

	held, err := e.markets.ShareBalance(context.Background(), id, 0, "alice")
	require.NoError(t, err)
	require.True(t, held.IsZero())
}

func TestHandleTransferZeroAmount(t *testing.T) {
	e := newTestEnv(t)
	e.createMarket(t)

	unused, err := e.gateway.HandleTransfer(context.Background(), "alice", testCollateral, u(0),
		`{"BuyArgs": {"market_id": "0", "outcome_target": 0, "min_shares_out": "0"}}`)
	require.NoError(t, err)
	require.True(t, unused.IsZero())
}

func TestHandleTransferWhilePaused(t *testing.T) {
	e := newTestEnv(t)
	e.createMarket(t)
	e.fundStorage(t, "alice")
	e.pause.Pause()

	unused, err := e.gateway.HandleTransfer(context.Background(), "alice", testCollateral, u(1_000),
		`{"BuyArgs": {"market_id": "0", "outcome_target": 0, "min_shares_out": "0"}}`)
	require.NoError(t, err)
	require.Equal(t, u(1_000), unused)
}

func TestHandleTransferCreateMarketRefundsDeposit(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.fundStorage(t, "creator")

	args, err := json.Marshal(map[string]domain.CreateMarketArgs{"CreateMarketArgs": e.marketArgs()})
	require.NoError(t, err)

	// Creation is paid from the storage deposit: the attached amount is
	// not consumed and comes back in full.
	unused, err := e.gateway.HandleTransfer(ctx, "creator", testCollateral, u(250_000), string(args))
	require.NoError(t, err)
	require.Equal(t, u(250_000), unused)

	m, err := e.store.GetMarket(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, "creator", m.Creator)
}

func TestHandleTransferCreateDataRequest(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.createMarket(t)
	e.pastResolution(t, id)

	unused, err := e.gateway.HandleTransfer(ctx, "reporter", testBondToken, u(100),
		`{"CreateDataRequestArgs": {"market_id": "0"}}`)
	require.NoError(t, err)
	require.True(t, unused.IsZero())

	m, err := e.store.GetMarket(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, m.DataRequest)
}
