package pool

import (
	"fmt"

	"github.com/openpredict/ammd/internal/domain"
	"github.com/openpredict/ammd/internal/numeric"
)

// MaxSwapFee caps the fee strictly below one whole unit; a fee of one or
// more makes every trade worthless.
func validateFee(fee, denom domain.U128) error {
	if !fee.Lt(denom) {
		return domain.ErrFeeTooHigh
	}
	return nil
}

// New constructs an empty pool for a market. Reserves and weights are sized
// at seeding time.
func New(marketID uint64, collateral string, decimals uint8, swapFee domain.U128, outcomes uint16) (domain.Pool, error) {
	p := domain.Pool{
		MarketID:           marketID,
		CollateralToken:    collateral,
		CollateralDecimals: decimals,
		SwapFee:            swapFee,
		Reserves:           make([]domain.U128, outcomes),
		Weights:            make([]domain.U128, outcomes),
	}
	if err := validateFee(swapFee, p.Denom()); err != nil {
		return domain.Pool{}, err
	}
	return p, nil
}

// AddLiquidityResult reports the effect of a liquidity deposit: pool tokens
// minted to the provider, outcome shares returned to the provider for the
// outcomes the pool kept less of, and the fee amount to attribute as already
// withdrawn so the new tokens do not dilute accrued fees.
type AddLiquidityResult struct {
	Minted         domain.U128
	Leftover       []domain.U128
	IneligibleFees domain.U128
}

// AddLiquidity deposits totalIn collateral. The seeding deposit must carry a
// weight indication that fixes the pool's initial odds; every later deposit
// must not, and is split pro rata against the deepest reserve so prices are
// unchanged.
func AddLiquidity(p *domain.Pool, totalIn domain.U128, weights []domain.U128) (AddLiquidityResult, error) {
	if totalIn.IsZero() {
		return AddLiquidityResult{}, domain.ErrZeroAmount
	}

	if !p.Seeded() {
		return seedLiquidity(p, totalIn, weights)
	}
	if weights != nil {
		return AddLiquidityResult{}, fmt.Errorf("%w: pool already seeded", domain.ErrWeightIndication)
	}

	maxReserve := numeric.Max(p.Reserves)
	leftover := make([]domain.U128, len(p.Reserves))
	for i, b := range p.Reserves {
		kept, err := totalIn.MulDiv(b, maxReserve)
		if err != nil {
			return AddLiquidityResult{}, err
		}
		if p.Reserves[i], err = b.Add(kept); err != nil {
			return AddLiquidityResult{}, err
		}
		if leftover[i], err = totalIn.Sub(kept); err != nil {
			return AddLiquidityResult{}, err
		}
	}

	toMint, err := totalIn.MulDiv(p.TotalLPSupply, maxReserve)
	if err != nil {
		return AddLiquidityResult{}, err
	}
	ineligible, err := mintPoolTokens(p, toMint)
	if err != nil {
		return AddLiquidityResult{}, err
	}
	return AddLiquidityResult{Minted: toMint, Leftover: leftover, IneligibleFees: ineligible}, nil
}

func seedLiquidity(p *domain.Pool, totalIn domain.U128, weights []domain.U128) (AddLiquidityResult, error) {
	if len(weights) != len(p.Reserves) {
		return AddLiquidityResult{}, fmt.Errorf("%w: got %d weights for %d outcomes", domain.ErrWeightIndication, len(weights), len(p.Reserves))
	}
	for i, w := range weights {
		if w.IsZero() {
			return AddLiquidityResult{}, fmt.Errorf("%w: zero weight for outcome %d", domain.ErrWeightIndication, i)
		}
	}

	maxWeight := numeric.Max(weights)
	leftover := make([]domain.U128, len(weights))
	for i, w := range weights {
		kept, err := totalIn.MulDiv(w, maxWeight)
		if err != nil {
			return AddLiquidityResult{}, err
		}
		p.Reserves[i] = kept
		p.Weights[i] = w
		if leftover[i], err = totalIn.Sub(kept); err != nil {
			return AddLiquidityResult{}, err
		}
	}

	ineligible, err := mintPoolTokens(p, totalIn)
	if err != nil {
		return AddLiquidityResult{}, err
	}
	return AddLiquidityResult{Minted: totalIn, Leftover: leftover, IneligibleFees: ineligible}, nil
}

// mintPoolTokens grows the LP supply and scales the fee pool weight with it
// so existing holders' fee entitlements are unchanged. The returned amount
// is the slice of fee pool weight the new tokens are not entitled to; the
// caller records it as already withdrawn for the recipient.
func mintPoolTokens(p *domain.Pool, amount domain.U128) (domain.U128, error) {
	ineligible := amount
	if !p.TotalLPSupply.IsZero() {
		var err error
		if ineligible, err = amount.MulDivCeil(p.FeePoolWeight, p.TotalLPSupply); err != nil {
			return numeric.Zero(), err
		}
	}
	var err error
	if p.TotalLPSupply, err = p.TotalLPSupply.Add(amount); err != nil {
		return numeric.Zero(), err
	}
	if p.FeePoolWeight, err = p.FeePoolWeight.Add(ineligible); err != nil {
		return numeric.Zero(), err
	}
	if p.TotalWithdrawnFees, err = p.TotalWithdrawnFees.Add(ineligible); err != nil {
		return numeric.Zero(), err
	}
	return ineligible, nil
}

// ExitLiquidityResult reports the effect of burning pool tokens: outcome
// shares transferred from the reserves to the provider, accrued fees paid
// out in collateral, and the provider's post-burn withdrawn-fees figure.
type ExitLiquidityResult struct {
	SharesOut     []domain.U128
	FeesPaid      domain.U128
	WithdrawnFees domain.U128
}

// ExitLiquidity burns totalIn pool tokens held by holder. Accrued fees are
// settled first, then the provider receives a pro-rata slice of every
// reserve. Exiting is allowed at any time, including after finalization,
// where the received shares feed the payout claim.
func ExitLiquidity(p *domain.Pool, holder domain.LPBalance, totalIn domain.U128) (ExitLiquidityResult, error) {
	if totalIn.IsZero() {
		return ExitLiquidityResult{}, domain.ErrZeroAmount
	}
	if holder.Balance.Lt(totalIn) {
		return ExitLiquidityResult{}, domain.ErrInsufficientLP
	}

	fees, newWithdrawn, err := WithdrawFees(p, holder)
	if err != nil {
		return ExitLiquidityResult{}, err
	}

	sharesOut := make([]domain.U128, len(p.Reserves))
	for i, b := range p.Reserves {
		if sharesOut[i], err = b.MulDiv(totalIn, p.TotalLPSupply); err != nil {
			return ExitLiquidityResult{}, err
		}
		if p.Reserves[i], err = b.Sub(sharesOut[i]); err != nil {
			return ExitLiquidityResult{}, err
		}
	}

	// Shrink the fee pool weight in step with the burned supply and release
	// the burned tokens' withdrawn-fees attribution.
	released, err := totalIn.MulDiv(p.FeePoolWeight, p.TotalLPSupply)
	if err != nil {
		return ExitLiquidityResult{}, err
	}
	if p.FeePoolWeight, err = p.FeePoolWeight.Sub(released); err != nil {
		return ExitLiquidityResult{}, err
	}
	if p.TotalWithdrawnFees, err = p.TotalWithdrawnFees.Sub(released); err != nil {
		return ExitLiquidityResult{}, err
	}
	if p.TotalLPSupply, err = p.TotalLPSupply.Sub(totalIn); err != nil {
		return ExitLiquidityResult{}, err
	}
	if newWithdrawn, err = newWithdrawn.Sub(released); err != nil {
		return ExitLiquidityResult{}, err
	}

	return ExitLiquidityResult{SharesOut: sharesOut, FeesPaid: fees, WithdrawnFees: newWithdrawn}, nil
}

// WithdrawableFees returns the collateral fees the holder can withdraw
// without touching its pool tokens.
func WithdrawableFees(p *domain.Pool, holder domain.LPBalance) (domain.U128, error) {
	if p.TotalLPSupply.IsZero() {
		return numeric.Zero(), nil
	}
	entitled, err := holder.Balance.MulDiv(p.FeePoolWeight, p.TotalLPSupply)
	if err != nil {
		return numeric.Zero(), err
	}
	if entitled.Lt(holder.WithdrawnFees) {
		// Rounding in pro-rata attribution can leave the figure a hair
		// behind; never underflow into a bogus balance.
		return numeric.Zero(), nil
	}
	return entitled.Sub(holder.WithdrawnFees)
}

// WithdrawFees settles the holder's accrued fees, returning the collateral
// to pay out and the holder's updated withdrawn-fees figure.
func WithdrawFees(p *domain.Pool, holder domain.LPBalance) (domain.U128, domain.U128, error) {
	fees, err := WithdrawableFees(p, holder)
	if err != nil {
		return numeric.Zero(), numeric.Zero(), err
	}
	withdrawn, err := holder.WithdrawnFees.Add(fees)
	if err != nil {
		return numeric.Zero(), numeric.Zero(), err
	}
	if p.TotalWithdrawnFees, err = p.TotalWithdrawnFees.Add(fees); err != nil {
		return numeric.Zero(), numeric.Zero(), err
	}
	return fees, withdrawn, nil
}

// BuyResult reports the effect of a buy: shares of the target outcome
// transferred to the buyer and the fee retained for liquidity providers.
type BuyResult struct {
	SharesOut domain.U128
	Fee       domain.U128
}

// Buy swaps amountIn collateral into shares of the target outcome. The
// invested amount mints one share of every outcome into the reserves, then
// the target reserve is rebalanced to keep the product across the other
// outcomes constant; the difference goes to the buyer.
func Buy(p *domain.Pool, amountIn domain.U128, target uint16, minSharesOut domain.U128) (BuyResult, error) {
	if amountIn.IsZero() {
		return BuyResult{}, domain.ErrZeroAmount
	}
	if !p.Seeded() {
		return BuyResult{}, domain.ErrPoolNotSeeded
	}

	sharesOut, err := CalcBuyAmount(p, amountIn, target)
	if err != nil {
		return BuyResult{}, err
	}
	if sharesOut.Lt(minSharesOut) {
		return BuyResult{}, fmt.Errorf("%w: %s < %s", domain.ErrMinSharesOut, sharesOut, minSharesOut)
	}

	fee, err := FeeForAmountIn(p, amountIn)
	if err != nil {
		return BuyResult{}, err
	}
	if p.FeePoolWeight, err = p.FeePoolWeight.Add(fee); err != nil {
		return BuyResult{}, err
	}
	invested, err := amountIn.Sub(fee)
	if err != nil {
		return BuyResult{}, err
	}

	for i, b := range p.Reserves {
		if p.Reserves[i], err = b.Add(invested); err != nil {
			return BuyResult{}, err
		}
	}
	if p.Reserves[target], err = p.Reserves[target].Sub(sharesOut); err != nil {
		return BuyResult{}, err
	}

	return BuyResult{SharesOut: sharesOut, Fee: fee}, nil
}

// SellResult reports the effect of a sell: shares of the target outcome
// surrendered by the seller and the fee retained for liquidity providers.
type SellResult struct {
	SharesIn domain.U128
	Fee      domain.U128
}

// Sell swaps target outcome shares into exactly amountOut collateral. The
// seller surrenders the computed shares, the pool burns one share of every
// outcome per unit withdrawn, and the fee stays in the fee pool.
func Sell(p *domain.Pool, amountOut domain.U128, target uint16, maxSharesIn domain.U128) (SellResult, error) {
	if amountOut.IsZero() {
		return SellResult{}, domain.ErrZeroAmount
	}
	if !p.Seeded() {
		return SellResult{}, domain.ErrPoolNotSeeded
	}

	sharesIn, err := CalcSellSharesIn(p, amountOut, target)
	if err != nil {
		return SellResult{}, err
	}
	if sharesIn.Gt(maxSharesIn) {
		return SellResult{}, fmt.Errorf("%w: %s > %s", domain.ErrMaxSharesIn, sharesIn, maxSharesIn)
	}

	fee, err := FeeForAmountOut(p, amountOut)
	if err != nil {
		return SellResult{}, err
	}
	if p.FeePoolWeight, err = p.FeePoolWeight.Add(fee); err != nil {
		return SellResult{}, err
	}

	totalOutPlusFee, err := amountOut.Add(fee)
	if err != nil {
		return SellResult{}, err
	}
	if p.Reserves[target], err = p.Reserves[target].Add(sharesIn); err != nil {
		return SellResult{}, err
	}
	for i, b := range p.Reserves {
		if p.Reserves[i], err = b.Sub(totalOutPlusFee); err != nil {
			return SellResult{}, fmt.Errorf("pool: sell drains outcome %d reserve: %w", i, err)
		}
	}

	return SellResult{SharesIn: sharesIn, Fee: fee}, nil
}
