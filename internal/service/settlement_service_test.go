package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openpredict/ammd/internal/domain"
)

func str(s string) *string { return &s }

func TestCreateDataRequestBeforeResolutionTime(t *testing.T) {
	e := newTestEnv(t)
	id := e.createMarket(t)
	e.fundStorage(t, "reporter")

	err := e.settlement.CreateDataRequest(context.Background(), "reporter", testBondToken, u(100), domain.CreateDataRequestArgs{MarketID: id})
	require.ErrorIs(t, err, domain.ErrResolutionTimeNotReached)
}

func TestCreateDataRequestHappyPath(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.createMarket(t)
	e.fundStorage(t, "reporter")
	e.pastResolution(t, id)

	err := e.settlement.CreateDataRequest(ctx, "reporter", testBondToken, u(250), domain.CreateDataRequestArgs{MarketID: id})
	require.NoError(t, err)

	m, err := e.store.GetMarket(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.StateDataRequestCreated, m.State(e.clock))
	require.NotNil(t, m.DataRequest)
	require.Equal(t, "reporter", m.DataRequest.Creator)
	require.Equal(t, u(100), m.DataRequest.ValidityBond)

	// The excess over the validity bond went straight back.
	require.Equal(t, u(150), e.tokens.sent("reporter"))

	// The oracle request describes the market's outcomes.
	require.Len(t, e.oracle.requests, 1)
	require.Equal(t, []string{"yes", "no"}, e.oracle.requests[0].Outcomes)
	require.True(t, e.oracle.requests[0].DataType.IsString())
}

func TestCreateDataRequestWrongToken(t *testing.T) {
	e := newTestEnv(t)
	id := e.createMarket(t)
	e.fundStorage(t, "reporter")
	e.pastResolution(t, id)

	err := e.settlement.CreateDataRequest(context.Background(), "reporter", testCollateral, u(250), domain.CreateDataRequestArgs{MarketID: id})
	require.ErrorIs(t, err, domain.ErrInvalidPaymentToken)

	// The pending marker was rolled back so a correct deposit can follow.
	m, err := e.store.GetMarket(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, domain.StateAwaitingDataRequest, m.State(e.clock))
}

func TestCreateDataRequestInsufficientBond(t *testing.T) {
	e := newTestEnv(t)
	id := e.createMarket(t)
	e.pastResolution(t, id)

	err := e.settlement.CreateDataRequest(context.Background(), "reporter", testBondToken, u(99), domain.CreateDataRequestArgs{MarketID: id})
	require.ErrorIs(t, err, domain.ErrInsufficientBond)
}

func TestCreateDataRequestConfigFetchFails(t *testing.T) {
	e := newTestEnv(t)
	id := e.createMarket(t)
	e.pastResolution(t, id)
	e.oracle.configErr = errors.New("oracle unreachable")

	err := e.settlement.CreateDataRequest(context.Background(), "reporter", testBondToken, u(250), domain.CreateDataRequestArgs{MarketID: id})
	require.ErrorIs(t, err, domain.ErrOracleConfigFetchFailed)

	m, err := e.store.GetMarket(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, domain.StateAwaitingDataRequest, m.State(e.clock))
}

func TestCreateDataRequestDoubleFunding(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.createMarket(t)
	e.pastResolution(t, id)

	err := e.settlement.CreateDataRequest(ctx, "reporter", testBondToken, u(100), domain.CreateDataRequestArgs{MarketID: id})
	require.NoError(t, err)

	err = e.settlement.CreateDataRequest(ctx, "other", testBondToken, u(100), domain.CreateDataRequestArgs{MarketID: id})
	require.ErrorIs(t, err, domain.ErrRequestCreated)
}

func TestCreateDataRequestRefundFailureKeepsRequest(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.createMarket(t)
	e.pastResolution(t, id)
	e.tokens.failTransfer = true

	err := e.settlement.CreateDataRequest(ctx, "reporter", testBondToken, u(250), domain.CreateDataRequestArgs{MarketID: id})
	require.NoError(t, err, "a failed refund leg must not unwind the request")

	m, err := e.store.GetMarket(ctx, id)
	require.NoError(t, err)
	require.Equal(t, domain.StateDataRequestCreated, m.State(e.clock))
	require.NotNil(t, m.RefundPending)
	require.Equal(t, u(150), m.RefundPending.Amount)
	require.Equal(t, "reporter", m.RefundPending.Account)

	// Once transfers work again the refund can be replayed.
	e.tokens.failTransfer = false
	require.NoError(t, e.settlement.RetryRefund(ctx, id))
	require.Equal(t, u(150), e.tokens.sent("reporter"))

	m, err = e.store.GetMarket(ctx, id)
	require.NoError(t, err)
	require.Nil(t, m.RefundPending)
}

func (e *testEnv) finalize(t *testing.T, id uint64, answer *domain.Answer) {
	t.Helper()
	ctx := context.Background()
	e.pastResolution(t, id)
	require.NoError(t, e.settlement.CreateDataRequest(ctx, "reporter", testBondToken, u(100), domain.CreateDataRequestArgs{MarketID: id}))
	require.NoError(t, e.settlement.Finalize(ctx, domain.ResolutionCallback{MarketID: id, Answer: answer, At: e.clock}))
}

func TestFinalizeCategorical(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.createMarket(t)
	e.finalize(t, id, &domain.Answer{String: str("yes")})

	m, err := e.store.GetMarket(ctx, id)
	require.NoError(t, err)
	require.True(t, m.Finalized)
	require.Equal(t, []domain.U128{u(1_000_000), u(0)}, m.PayoutNumerator)
	require.Equal(t, []uint64{id}, e.archiver.archived)
}

func TestFinalizeUnmatchedAnswerVoids(t *testing.T) {
	e := newTestEnv(t)
	id := e.createMarket(t)
	e.finalize(t, id, &domain.Answer{String: str("maybe")})

	m, err := e.store.GetMarket(context.Background(), id)
	require.NoError(t, err)
	require.True(t, m.Finalized)
	require.Nil(t, m.PayoutNumerator, "answer outside the outcome set voids the market")
}

func TestFinalizeIdempotent(t *testing.T) {
	e := newTestEnv(t)
	id := e.createMarket(t)
	e.finalize(t, id, &domain.Answer{String: str("yes")})

	err := e.settlement.Finalize(context.Background(), domain.ResolutionCallback{MarketID: id, Answer: &domain.Answer{String: str("no")}})
	require.ErrorIs(t, err, domain.ErrAlreadyFinalized)
}

func TestFinalizeScalar(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	e.fundStorage(t, "creator")
	args := e.marketArgs()
	args.IsScalar = true
	args.OutcomeTags = []string{"short", "long"}
	args.Scalar = &domain.ScalarRange{LowerBound: u(1_000), UpperBound: u(3_000), Multiplier: u(100)}
	id, err := e.markets.Create(ctx, "creator", args)
	require.NoError(t, err)

	e.fundStorage(t, "lp")
	require.NoError(t, e.trading.AddLiquidity(ctx, "lp", testCollateral, u(1_000_000), domain.AddLiquidityArgs{
		MarketID:         id,
		WeightIndication: []domain.U128{u(1), u(1)},
	}))

	v := u(2_500)
	e.finalize(t, id, &domain.Answer{Number: &v})

	m, err := e.store.GetMarket(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []domain.U128{u(250_000), u(750_000)}, m.PayoutNumerator)

	// The oracle request for a scalar market asks for a number.
	require.False(t, e.oracle.requests[len(e.oracle.requests)-1].DataType.IsString())
}

func TestClaimEarningsWinner(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.createMarket(t)
	e.fundStorage(t, "alice")

	require.NoError(t, e.trading.Buy(ctx, "alice", testCollateral, u(1_000_000), domain.BuyArgs{MarketID: id, OutcomeTarget: 0}))
	e.finalize(t, id, &domain.Answer{String: str("yes")})

	total, err := e.settlement.ClaimEarnings(ctx, "alice", id)
	require.NoError(t, err)
	require.Equal(t, u(1_474_949), total, "winning shares redeem one to one")
	require.Equal(t, u(1_474_949), e.tokens.sent("alice"))

	// Shares were consumed by the claim.
	held, err := e.markets.ShareBalance(ctx, id, 0, "alice")
	require.NoError(t, err)
	require.True(t, held.IsZero())

	_, err = e.settlement.ClaimEarnings(ctx, "alice", id)
	require.ErrorIs(t, err, domain.ErrNothingToClaim)
}

func TestClaimEarningsLoserGetsNothing(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.createMarket(t)
	e.fundStorage(t, "alice")

	require.NoError(t, e.trading.Buy(ctx, "alice", testCollateral, u(1_000_000), domain.BuyArgs{MarketID: id, OutcomeTarget: 0}))
	e.finalize(t, id, &domain.Answer{String: str("no")})

	_, err := e.settlement.ClaimEarnings(ctx, "alice", id)
	require.ErrorIs(t, err, domain.ErrNothingToClaim)
}

func TestClaimEarningsVoidMarket(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.createMarket(t)
	e.fundStorage(t, "alice")

	require.NoError(t, e.trading.Buy(ctx, "alice", testCollateral, u(1_000_000), domain.BuyArgs{MarketID: id, OutcomeTarget: 0}))
	e.finalize(t, id, nil)

	total, err := e.settlement.ClaimEarnings(ctx, "alice", id)
	require.NoError(t, err)
	// 1_474_949 outcome 0 shares valued at an equal slice across the two
	// outcomes.
	require.Equal(t, u(737_474), total)
}

func TestClaimEarningsBeforeFinalization(t *testing.T) {
	e := newTestEnv(t)
	id := e.createMarket(t)

	_, err := e.settlement.ClaimEarnings(context.Background(), "alice", id)
	require.ErrorIs(t, err, domain.ErrMarketNotFinalized)
}

func TestClaimEarningsSettlesLPFees(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.createMarket(t)
	e.fundStorage(t, "alice")

	require.NoError(t, e.trading.Buy(ctx, "alice", testCollateral, u(1_000_000), domain.BuyArgs{MarketID: id, OutcomeTarget: 0}))
	e.finalize(t, id, &domain.Answer{String: str("no")})

	// The LP exits after finalization, then claims: reserve slice of the
	// winning outcome plus any fees not yet paid by the exit.
	require.NoError(t, e.trading.ExitLiquidity(ctx, "lp", id, u(1_000_000)))
	require.Equal(t, u(20_000), e.tokens.sent("lp"))

	total, err := e.settlement.ClaimEarnings(ctx, "lp", id)
	require.NoError(t, err)
	require.Equal(t, u(1_980_000), total, "whole outcome 1 reserve slice redeems at par")
}
